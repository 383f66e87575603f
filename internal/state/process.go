package state

import (
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ytdl-inline-bot/internal/chat"
)

// ErrUnsupportedUpdate — апдейт без сообщения/callback
var ErrUnsupportedUpdate = errors.New("unsupported update")

// CancelPrefix — префикс callback_data кнопки отмены
const CancelPrefix = "yt_cancel|"

// Process — передача, привязанная к сообщению с прогрессом
type Process struct {
	ID     ProcessID
	Target chat.Target
	extra  string
}

// NewProcess — id и цель правок из Message или CallbackQuery.
// extra дописывается к callback_data кнопки отмены.
func NewProcess(update any, extra string) (*Process, error) {
	switch u := update.(type) {
	case *tgbotapi.Message:
		if u == nil || u.Chat == nil {
			return nil, ErrUnsupportedUpdate
		}
		return fromMessage(u, extra), nil
	case *tgbotapi.CallbackQuery:
		if u == nil {
			return nil, ErrUnsupportedUpdate
		}
		if u.Message != nil && u.Message.Chat != nil {
			return fromMessage(u.Message, extra), nil
		}
		// inline-сообщение: id самого сообщения общий для всех нажатий
		if u.InlineMessageID != "" {
			return &Process{
				ID:     ProcessID(u.InlineMessageID),
				Target: chat.Target{InlineMessageID: u.InlineMessageID},
				extra:  extra,
			}, nil
		}
		return &Process{ID: ProcessID(u.ID), extra: extra}, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedUpdate, update)
	}
}

func fromMessage(m *tgbotapi.Message, extra string) *Process {
	return &Process{
		ID:     ProcessID(fmt.Sprintf("%d.%d", m.Chat.ID, m.MessageID)),
		Target: chat.Target{ChatID: m.Chat.ID, MessageID: m.MessageID},
		extra:  extra,
	}
}

// CancelData — callback_data кнопки отмены
func (p *Process) CancelData() string {
	data := CancelPrefix + string(p.ID)
	if p.extra != "" {
		data += "|" + p.extra
	}
	if len(data) > 64 {
		data = data[:64]
	}
	return data
}

// CancelMarkup — клавиатура с единственной кнопкой отмены
func (p *Process) CancelMarkup() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("❌ Cancel", p.CancelData())),
	)
}

// ParseCancelData — id процесса из callback_data кнопки отмены
func ParseCancelData(data string) (ProcessID, bool) {
	rest, ok := strings.CutPrefix(data, CancelPrefix)
	if !ok {
		return "", false
	}
	id, _, _ := strings.Cut(rest, "|")
	if id == "" {
		return "", false
	}
	return ProcessID(id), true
}
