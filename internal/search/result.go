package search

import (
	"errors"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ErrNoResultFound — поиск ничего не нашёл
var ErrNoResultFound = errors.New("no result found")

// Result — то, что показывается пользователю: подпись, картинка, кнопки
type Result struct {
	Key      string
	Caption  string
	ImageURL string
	Buttons  tgbotapi.InlineKeyboardMarkup
}

// clone — копия для каждого из ждавших один и тот же поиск
func (r *Result) clone() *Result {
	c := *r
	c.Buttons = WithExtra(r.Buttons, "")
	return &c
}

// WithExtra — копия кнопок с "-extra" в каждом yt_ callback (не длиннее 64 байт)
func (r *Result) WithExtra(extra string) tgbotapi.InlineKeyboardMarkup {
	return WithExtra(r.Buttons, extra)
}

func WithExtra(markup tgbotapi.InlineKeyboardMarkup, extra string) tgbotapi.InlineKeyboardMarkup {
	suffix := "-" + extra
	rows := make([][]tgbotapi.InlineKeyboardButton, len(markup.InlineKeyboard))
	for i, row := range markup.InlineKeyboard {
		rows[i] = make([]tgbotapi.InlineKeyboardButton, len(row))
		for j, btn := range row {
			if btn.CallbackData != nil {
				data := *btn.CallbackData
				if extra != "" && strings.HasPrefix(data, "yt_") && !strings.HasSuffix(data, suffix) {
					data += suffix
					if len(data) > 64 {
						data = data[:64]
					}
				}
				btn.CallbackData = &data
			}
			rows[i][j] = btn
		}
	}
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func sublists(btns []tgbotapi.InlineKeyboardButton, width int) [][]tgbotapi.InlineKeyboardButton {
	var rows [][]tgbotapi.InlineKeyboardButton
	for i := 0; i < len(btns); i += width {
		end := min(i+width, len(btns))
		rows = append(rows, btns[i:end])
	}
	return rows
}
