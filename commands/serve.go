package commands

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"reading-club-system/config"
	"reading-club-system/handlers"
	"reading-club-system/services"
	"reading-club-system/storage"
	"reading-club-system/utils"
	"reading-club-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server, scheduler and snapshot worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg.Storage(""))
	if err != nil {
		return fmt.Errorf("failed to open %s storage: %w", cfg.StorageBackend, err)
	}
	defer store.Close()

	telegram := utils.NewTelegramClient(cfg.TelegramAPI, cfg.TelegramToken)
	var delivery services.Notifier = telegram
	if cfg.TelegramToken == "" {
		log.Println("⚠️  TELEGRAM_BOT_TOKEN not set, outgoing messages are discarded")
		delivery = services.NopNotifier{}
	}
	outbox := workers.NewNotifyQueue(delivery, cfg.NotifyQueueSize)

	club := services.NewClub(cfg.Club(), outbox, time.Now)
	if err := restore(ctx, club, store); err != nil {
		return err
	}

	scheduler := services.NewScheduler(club, cfg.Scheduler())
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	snapshots := workers.NewSnapshotWorker(club, store, cfg.SaveInterval)

	// Workers outlive ctx so the final flush sees every handled update.
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		outbox.Run(workerCtx)
	}()
	go func() {
		defer wg.Done()
		snapshots.Run(workerCtx)
	}()

	app := fiber.New(fiber.Config{
		BodyLimit:             1 * 1024 * 1024,
		DisableStartupMessage: true,
	})
	app.Use(recover.New())

	dispatcher := handlers.NewDispatcher(club, handlers.DispatcherConfig{
		AllowedDomains: cfg.AllowedDomains,
		Topics:         cfg.DuelTopics,
		AdminIDs:       cfg.AdminIDs,
		BatchSize:      cfg.PublishBatchSize,
	})
	pinger, _ := store.(handlers.Pinger)
	handlers.SetupHealthRoutes(app, club, handlers.HealthSources{Store: pinger, Snapshots: snapshots, Outbox: outbox})
	handlers.SetupWebhookRoutes(app, dispatcher, cfg.WebhookSecret)
	handlers.SetupAdminRoutes(app, club, snapshots, cfg.AdminToken, cfg.PublishBatchSize)

	if cfg.WebhookURL != "" && cfg.TelegramToken != "" {
		if err := telegram.SetWebhook(ctx, cfg.WebhookURL, cfg.WebhookSecret); err != nil {
			log.Printf("⚠️  setWebhook failed: %v", err)
		} else {
			log.Printf("✅ Telegram webhook registered at %s", cfg.WebhookURL)
		}
	}

	go func() {
		if err := app.Listen(cfg.ListenAddr); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on %s", cfg.ListenAddr)
	log.Printf("✅ Scheduler running (tick %s, publish at %s %s)", cfg.TickInterval, cfg.PublishAt, cfg.TimeZone)
	log.Printf("✅ Snapshots to %s every %s", cfg.StorageBackend, cfg.SaveInterval)

	<-ctx.Done()
	log.Println("Shutting down server...")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("⚠️  HTTP shutdown: %v", err)
	}
	if err := scheduler.Stop(); err != nil {
		log.Printf("⚠️  Scheduler shutdown: %v", err)
	}
	stopWorkers()
	wg.Wait()
	log.Println("👋 Bye")
	return nil
}

// restore loads the stored snapshot once, before any update is handled. An
// empty store starts a fresh club; any other load error aborts startup so a
// broken backend is never overwritten with empty state.
func restore(ctx context.Context, club *services.Club, store storage.Store) error {
	snap, err := store.Load(ctx)
	if errors.Is(err, storage.ErrNoSnapshot) {
		log.Println("[Snapshot] no snapshot found, starting fresh")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}
	if err := club.Restore(snap); err != nil {
		return fmt.Errorf("failed to restore snapshot: %w", err)
	}
	log.Printf("[Snapshot] restored state from %s: members=%d submissions=%d duels=%d",
		snap.TakenAt.Format(time.RFC3339), len(snap.Members), len(snap.Submissions), len(snap.Duels))
	return nil
}
