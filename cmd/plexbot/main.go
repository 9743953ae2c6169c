package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/plexbot/plexbot/internal/aggregator"
	"github.com/plexbot/plexbot/internal/api"
	"github.com/plexbot/plexbot/internal/arr"
	"github.com/plexbot/plexbot/internal/config"
	"github.com/plexbot/plexbot/internal/database"
	"github.com/plexbot/plexbot/internal/history"
	"github.com/plexbot/plexbot/internal/logger"
	"github.com/plexbot/plexbot/internal/notify"
	"github.com/plexbot/plexbot/internal/notify/discord"
	"github.com/plexbot/plexbot/internal/plex"
	"github.com/plexbot/plexbot/internal/scan"
	"github.com/plexbot/plexbot/internal/scheduler"
	"github.com/plexbot/plexbot/internal/scheduler/tasks"
	"github.com/plexbot/plexbot/internal/status"
	"github.com/plexbot/plexbot/internal/users"
	"github.com/plexbot/plexbot/internal/websocket"
)

const statusRetention = 24 * time.Hour

func main() {
	// A missing .env file is fine; environment variables still apply.
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(logger.Config{
		Level:           cfg.Logging.Level,
		Format:          cfg.Logging.Format,
		Path:            cfg.Logging.Path,
		MaxSizeMB:       cfg.Logging.MaxSizeMB,
		MaxBackups:      cfg.Logging.MaxBackups,
		MaxAgeDays:      cfg.Logging.MaxAgeDays,
		Compress:        cfg.Logging.Compress,
		EnableStreaming: true,
		BufferSize:      1000,
	})
	defer log.Close()

	log.Info().
		Str("version", config.Version).
		Str("logLevel", cfg.Logging.Level).
		Msg("Starting PlexBot")

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	hub := websocket.NewHub()
	go hub.Run()
	log.SetBroadcastHub(hub)

	httpClient := &http.Client{Timeout: 30 * time.Second}

	store := status.NewStore(statusRetention)
	store.SetBroadcaster(hub)
	historySvc := history.NewService(db.Conn(), log.Logger)

	var directory users.Directory
	if cfg.Overseerr.Enabled {
		directory = users.NewOverseerrClient(httpClient, log.Logger, cfg.Overseerr.BaseURL, cfg.Overseerr.APIKey)
	}
	userSvc := users.NewService(directory, cfg.Overseerr, log.Logger)

	plexClient := plex.NewClient(httpClient, log.Logger, cfg.Plex.URL, cfg.Plex.Token, config.Version)
	scanner := scan.New(plexClient, cfg.Plex, store, log.Logger)

	sender := discord.NewSender(httpClient, log.Logger)
	dispatcher := notify.New(sender, cfg.Discord, userSvc, store, historySvc, log.Logger)

	window := time.Duration(cfg.Debounce.Seconds) * time.Second
	agg := aggregator.New(window, log.Logger, dispatcher, scanner)

	arrSvc := arr.NewService(httpClient, log.Logger, cfg.Arr, cfg.Server.BaseURL, store)

	sched, err := scheduler.New(log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create scheduler")
	}
	registerTasks(sched, cfg, store, historySvc, userSvc, plexClient, arrSvc, log)

	if err := sched.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start scheduler")
	}

	server := api.NewServer(api.Deps{
		Config:     cfg,
		Log:        log,
		Hub:        hub,
		Aggregator: agg,
		Dispatcher: dispatcher,
		Scanner:    scanner,
		Store:      store,
		History:    historySvc,
		Users:      userSvc,
		Plex:       plexClient,
		Arr:        arrSvc,
		Scheduler:  sched,
	}, log.Logger)

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	log.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Dur("debounceWindow", window).
		Msg("PlexBot started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")

	// Flush pending batches before the notification and scan consumers
	// lose their HTTP server siblings.
	agg.Stop()
	scanner.Wait()

	if err := sched.Stop(); err != nil {
		log.Error().Err(err).Msg("Scheduler shutdown error")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	log.Info().Msg("Shutdown complete")
}

func registerTasks(
	sched *scheduler.Scheduler,
	cfg *config.Config,
	store *status.Store,
	historySvc *history.Service,
	userSvc *users.Service,
	plexClient *plex.Client,
	arrSvc *arr.Service,
	log *logger.Logger,
) {
	if err := tasks.RegisterStatusPruneTask(sched, store); err != nil {
		log.Error().Err(err).Msg("Failed to register status prune task")
	}
	if err := tasks.RegisterHistoryCleanupTask(sched, historySvc, cfg.History.RetentionDays); err != nil {
		log.Error().Err(err).Msg("Failed to register history cleanup task")
	}
	if err := tasks.RegisterConnectivityTask(sched, plexClient, arrSvc, store); err != nil {
		log.Error().Err(err).Msg("Failed to register connectivity task")
	}
	if cfg.Overseerr.Enabled {
		if err := tasks.RegisterOverseerrSyncTask(sched, userSvc, cfg.Overseerr.RefreshIntervalMinutes); err != nil {
			log.Error().Err(err).Msg("Failed to register user sync task")
		}
	}
	if cfg.Arr.AutoRegisterWebhooks {
		if err := tasks.RegisterArrWebhookSyncTask(sched, arrSvc); err != nil {
			log.Error().Err(err).Msg("Failed to register webhook sync task")
		}
	}
}
