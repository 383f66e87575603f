package downloader

import "fmt"

// DefaultMaxFileMB — потолок размера в фильтре формата
const DefaultMaxFileMB = 1950

// ChoiceByID — строка формата yt-dlp и подпись для выбора пользователя.
// mediaType: "v" или "a"; ytURL — ссылка с youtube.com.
func ChoiceByID(choiceID, mediaType string, ytURL bool, maxMB int64) (format, display string) {
	if maxMB <= 0 {
		maxMB = DefaultMaxFileMB
	}
	flt := fmt.Sprintf("[filesize<?%dM]", maxMB)

	switch choiceID {
	case "mkv":
		return "(bestvideo+bestaudio/best)[ext!=?webm]" + flt, "[ 🎵 + 📹 ]  Best"
	case "mp4":
		if ytURL {
			return "(bestvideo[ext=mp4]+(258/256/bestaudio[ext=m4a])/best[ext=mp4]/best[ext!=webm])" + flt,
				"[ 🎵 + 📹 ]  Best MP4"
		}
		return "(bestvideo[ext=?mp4]+bestaudio[ext=?m4a]/best[ext=?mp4]/best[ext!=?webm]/best)" + flt,
			"[ 🎵 + 📹 ]  Best MP4"
	case "mp3":
		return "320", "[ 🎵 ]  320 Kbps"
	}

	if mediaType == "v" {
		display = "[ 🎵 + 📹 ]  " + choiceID
		if ytURL {
			return fmt.Sprintf("(%s+(258/256/bestaudio[ext=?m4a]/bestaudio)/best[ext=mp4]/best)[ext!=?webm]%s", choiceID, flt), display
		}
		return fmt.Sprintf("(%s+bestaudio/best[ext=?mp4]/best)[ext!=?webm]%s", choiceID, flt), display
	}
	return choiceID, "[ 🎵 ]  " + choiceID
}
