package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"

	"github.com/basel-ax/omni/internal/artifact"
	"github.com/basel-ax/omni/internal/config"
	"github.com/basel-ax/omni/internal/domain"
	"github.com/basel-ax/omni/internal/infrastructure/clarifai"
	"github.com/basel-ax/omni/internal/infrastructure/openai"
	"github.com/basel-ax/omni/internal/log"
	"github.com/basel-ax/omni/internal/repository"
	"github.com/basel-ax/omni/internal/server"
	"github.com/basel-ax/omni/internal/service"
	"github.com/basel-ax/omni/internal/session"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Parse command line flags
	verbose := flag.Bool("verbose", false, "Enable verbose logging")
	addr := flag.String("addr", "", "Listen address (overrides OMNI_ADDR)")
	noSweep := flag.Bool("no-sweep", false, "Disable the scheduled artifact and session sweep")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.SetLevel(cfg.LogLevel)
	if *verbose {
		log.SetLevel(log.LevelDebug)
		log.Debugf("Verbose logging enabled")
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	log.Infof("Configuration loaded, backend %s", cfg.Backend)

	history, closeHistory, err := openHistory(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize analysis history: %v", err)
	}
	defer closeHistory()

	artifacts := artifact.NewStore(cfg.ArtifactDir)
	svc := service.NewAssistantService(newFactory(cfg), artifacts, history, cfg.MaxDescription)
	sessions := session.NewStore(svc, cfg.DefaultCredential())

	srv, err := server.New(sessions, artifacts,
		server.WithAllowedOrigins(cfg.AllowedOrigins...),
		server.WithHistory(svc),
	)
	if err != nil {
		log.Fatalf("Failed to initialize server: %v", err)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Infof("Received signal: %v, initiating shutdown...", sig)
		cancel()
	}()

	if !*noSweep {
		stop, err := startSweeper(cfg, artifacts, sessions)
		if err != nil {
			log.Fatalf("Failed to schedule sweep: %v", err)
		}
		defer stop()
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("Listening on %s", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("HTTP server failed: %v", err)
			cancel()
		}
	}()

	// Wait for context cancellation
	<-ctx.Done()
	log.Infof("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Errorf("HTTP server shutdown: %v", err)
	}
}

func newFactory(cfg *config.Config) domain.AssistantFactory {
	if cfg.Backend == config.BackendOpenAI {
		opts := []openai.Option{openai.WithTimeout(cfg.RequestTimeout)}
		if cfg.OpenAIBaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.OpenAIBaseURL))
		}
		if cfg.OpenAIChatModel != "" {
			opts = append(opts, openai.WithChatModel(cfg.OpenAIChatModel))
		}
		return openai.NewFactory(opts...)
	}

	opts := []clarifai.Option{clarifai.WithTimeout(cfg.RequestTimeout)}
	if cfg.ClarifaiBaseURL != "" {
		opts = append(opts, clarifai.WithBaseURL(cfg.ClarifaiBaseURL))
	}
	return clarifai.NewFactory(opts...)
}

// openHistory connects to PostgreSQL when DB_HOST is set and falls back to
// an in-process history otherwise.
func openHistory(cfg *config.Config) (repository.AnalysisRepository, func(), error) {
	if !cfg.DB.Enabled() {
		log.Infof("DB_HOST not set, keeping analysis history in memory")
		return repository.NewMemoryAnalysisRepository(), func() {}, nil
	}

	log.Infof("Initializing database connection...")
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, nil, err
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	db.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()

	repo := repository.NewPostgresAnalysisRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	log.Infof("Database connection established")

	return repo, func() { db.Close() }, nil
}

// startSweeper removes stale generated images and idle sessions on the
// configured schedule.
func startSweeper(cfg *config.Config, artifacts *artifact.Store, sessions *session.Store) (func(), error) {
	c := cron.New(cron.WithSeconds())

	var sweepMutex sync.Mutex

	_, err := c.AddFunc(cfg.SweepSchedule, func() {
		sweepMutex.Lock()
		defer sweepMutex.Unlock()

		removed, err := artifacts.Sweep(cfg.ArtifactTTL)
		if err != nil {
			log.Errorf("[CRON] Error sweeping artifacts: %v", err)
		} else if removed > 0 {
			log.Infof("[CRON] Removed %d stale generated images", removed)
		}

		if expired := sessions.Expire(cfg.ArtifactTTL); expired > 0 {
			log.Infof("[CRON] Expired %d idle sessions", expired)
		}
	})
	if err != nil {
		return nil, err
	}

	c.Start()
	log.Infof("Sweep scheduled: %s", cfg.SweepSchedule)

	return func() {
		<-c.Stop().Done()
		log.Infof("Cron scheduler stopped")
	}, nil
}
