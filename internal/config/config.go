package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config — общая конфигурация приложения
// комментарии КРАТКИЕ и на русском; логи — на английском

type Config struct {
	TelegramToken string `mapstructure:"telegram_token"`
	LogChannelID  int64  `mapstructure:"log_channel_id"`
	YouTubeAPIKey string `mapstructure:"youtube_api_key"`

	DownloadDir string `mapstructure:"download_dir"`
	CacheDir    string `mapstructure:"cache_dir"`
	CleanCache  bool   `mapstructure:"clean_cache"`

	YtDlpPath   string `mapstructure:"ytdlp_path"`
	FFmpegPath  string `mapstructure:"ffmpeg_path"`
	FFprobePath string `mapstructure:"ffprobe_path"`
	HTTPProxy   string `mapstructure:"http_proxy"`

	ExternalDownloader     string `mapstructure:"external_downloader"`
	ExternalDownloaderArgs string `mapstructure:"external_downloader_args"`

	Concurrency       int   `mapstructure:"concurrency"`
	QueueCapacity     int   `mapstructure:"queue_capacity"`
	MaxFileMB         int64 `mapstructure:"max_file_mb"`
	MaxUploadBytes    int64 `mapstructure:"max_upload_bytes"`
	EditRateSec       int   `mapstructure:"edit_rate_sec"`
	DeleteAfterUpload bool  `mapstructure:"delete_after_upload"`
	CleanupTTLHours   int   `mapstructure:"cleanup_ttl_hours"`
	CmdTimeoutSec     int   `mapstructure:"cmd_timeout_sec"`
	SearchLimit       int64 `mapstructure:"search_limit"`
	CancelTTLMinutes  int   `mapstructure:"cancel_ttl_minutes"`

	DefaultThumb string `mapstructure:"default_thumb"`
	LogLevel     string `mapstructure:"log_level"`
	LogFormat    string `mapstructure:"log_format"`
}

// значения по умолчанию
var defaults = map[string]any{
	"telegram_token":           "",
	"log_channel_id":           0,
	"youtube_api_key":          "",
	"download_dir":             "./downloads",
	"cache_dir":                ".",
	"clean_cache":              false,
	"ytdlp_path":               "",
	"ffmpeg_path":              "",
	"ffprobe_path":             "",
	"http_proxy":               "",
	"external_downloader":      "",
	"external_downloader_args": "",
	"concurrency":              2,
	"queue_capacity":           100,
	"max_file_mb":              1950,
	"max_upload_bytes":         2147000000,
	"edit_rate_sec":            8,
	"delete_after_upload":      false,
	"cleanup_ttl_hours":        12,
	"cmd_timeout_sec":          3600,
	"search_limit":             15,
	"cancel_ttl_minutes":       60,
	"default_thumb":            "https://i.imgur.com/4LwPLai.png",
	"log_level":                "info",
	"log_format":               "text",
}

// Load — загрузка конфигурации из окружения (+ .env если есть)
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile — то же, что Load, но с явным путём к .env
func LoadFile(envFile string) (*Config, error) {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}

	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			v.SetConfigFile(envFile)
			v.SetConfigType("env")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read %s: %w", envFile, err)
			}
		}
	}
	// окружение важнее файла
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.TelegramToken = strings.TrimSpace(cfg.TelegramToken)

	if cfg.TelegramToken == "" {
		return nil, errors.New("TELEGRAM_TOKEN is required")
	}
	if cfg.LogChannelID == 0 {
		return nil, errors.New("LOG_CHANNEL_ID is required")
	}

	// создать директорию загрузок
	if err := os.MkdirAll(cfg.DownloadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}

	// нормализуем путь
	if d, err := filepath.Abs(cfg.DownloadDir); err == nil {
		cfg.DownloadDir = d
	}

	return cfg, nil
}

// EditRate — минимальный интервал между правками прогресса
func (c *Config) EditRate() time.Duration {
	if c.EditRateSec <= 0 {
		return 8 * time.Second
	}
	return time.Duration(c.EditRateSec) * time.Second
}

// CmdTimeout — таймаут внешних процессов
func (c *Config) CmdTimeout() time.Duration {
	if c.CmdTimeoutSec <= 0 {
		return time.Hour
	}
	return time.Duration(c.CmdTimeoutSec) * time.Second
}

// CancelTTL — сколько держим отменённые id в реестре
func (c *Config) CancelTTL() time.Duration {
	if c.CancelTTLMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.CancelTTLMinutes) * time.Minute
}
