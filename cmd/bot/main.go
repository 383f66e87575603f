package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"ytdl-inline-bot/internal/cache"
	"ytdl-inline-bot/internal/chat"
	"ytdl-inline-bot/internal/config"
	"ytdl-inline-bot/internal/downloader"
	"ytdl-inline-bot/internal/files"
	"ytdl-inline-bot/internal/logger"
	"ytdl-inline-bot/internal/media"
	"ytdl-inline-bot/internal/queue"
	"ytdl-inline-bot/internal/search"
	"ytdl-inline-bot/internal/state"
	"ytdl-inline-bot/internal/telegram"
	"ytdl-inline-bot/internal/telegraph"
	"ytdl-inline-bot/internal/transfer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	l := logger.New(cfg.LogLevel, cfg.LogFormat)

	if err := files.EnsureDir(cfg.DownloadDir); err != nil {
		l.Fatalf("failed to ensure download dir: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := cache.Open(cfg.CacheDir, cfg.CleanCache, logger.For(l, "cache"))
	if err != nil {
		l.Fatalf("failed to open cache: %v", err)
	}
	defer store.Close()

	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		l.Fatalf("failed to init bot api: %v", err)
	}
	api.Debug = false
	l.Infof("[bot] authorized on account %s", api.Self.UserName)

	var provider search.Provider
	if cfg.YouTubeAPIKey != "" {
		yt, err := search.NewYouTubeProvider(ctx, cfg.YouTubeAPIKey)
		if err != nil {
			l.Fatalf("failed to init youtube client: %v", err)
		}
		provider = yt
	} else {
		l.Warn("[bot] YOUTUBE_API_KEY is empty, text search is disabled")
		provider = noSearch{}
	}

	registry := state.NewRegistry(cfg.CancelTTL())
	client := chat.NewTelegramClient(api)
	runner := downloader.NewRunner(cfg, logger.For(l, "yt-dlp"))

	svc := search.NewService(search.Options{
		Store:        store,
		Provider:     provider,
		Extractor:    runner,
		Thumbs:       search.NewThumbs(cfg.DefaultThumb),
		Paster:       telegraph.NewClient(),
		Limit:        cfg.SearchLimit,
		DefaultThumb: cfg.DefaultThumb,
		Log:          logger.For(l, "search"),
	})
	orch := transfer.New(transfer.Options{
		Downloader:        runner,
		Prober:            media.NewProber(cfg, logger.For(l, "media")),
		Uploader:          client,
		Registry:          registry,
		DownloadDir:       cfg.DownloadDir,
		LogChannelID:      cfg.LogChannelID,
		MaxFileMB:         cfg.MaxFileMB,
		EditRate:          cfg.EditRate(),
		DeleteAfterUpload: cfg.DeleteAfterUpload,
		Log:               logger.For(l, "transfer"),
	})

	q := queue.NewQueue(cfg.QueueCapacity, cfg.Concurrency)
	b := telegram.NewBot(cfg, telegram.Deps{
		Updates:   api,
		Client:    client,
		Search:    svc,
		URLs:      store,
		Registry:  registry,
		Queue:     q,
		Transfers: orch,
		Log:       logger.For(l, "bot"),
	})

	// GC реестра отмен и очистка старых загрузок
	registry.StartGC(ctx, 5*time.Minute)
	files.StartCleanup(ctx, cfg.DownloadDir, cfg.CleanupTTLHours, logger.For(l, "files"))

	// запуск воркеров очереди
	q.Start(ctx, b.Worker)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.Start(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		l.Info("[bot] shutting down...")
		q.Wait()
		return nil
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		l.Errorf("[bot] stopped: %v", err)
	}
}
