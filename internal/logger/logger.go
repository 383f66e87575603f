package logger

import (
	"io"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// New — логгер приложения: уровень и формат из конфигурации
func New(level, format string) *log.Logger {
	l := log.New()
	l.Out = os.Stdout
	l.SetLevel(parseLevel(level))

	switch strings.ToLower(format) {
	case "json":
		l.Formatter = &log.JSONFormatter{TimestampFormat: time.RFC3339Nano}
	default:
		l.Formatter = &log.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339}
	}
	return l
}

// For — запись с именем компонента
func For(l *log.Logger, component string) *log.Entry {
	return l.WithField("component", component)
}

// Discard — логгер в никуда (тесты, заглушки)
func Discard() *log.Entry {
	l := log.New()
	l.Out = io.Discard
	return l.WithField("component", "discard")
}

func parseLevel(level string) log.Level {
	lv, err := log.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return log.InfoLevel
	}
	return lv
}
