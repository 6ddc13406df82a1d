package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticket-triage/internal/api/http"
	"github.com/spec-kit/ticket-triage/internal/api/http/handlers"
	"github.com/spec-kit/ticket-triage/internal/config"
	"github.com/spec-kit/ticket-triage/internal/events"
	"github.com/spec-kit/ticket-triage/internal/llm"
	"github.com/spec-kit/ticket-triage/internal/observability"
	"github.com/spec-kit/ticket-triage/internal/persistence"
	"github.com/spec-kit/ticket-triage/internal/recovery"
	"github.com/spec-kit/ticket-triage/internal/repository"
	"github.com/spec-kit/ticket-triage/internal/service"
	"github.com/spec-kit/ticket-triage/internal/store"
	"github.com/spec-kit/ticket-triage/internal/worker"
	"github.com/spec-kit/ticket-triage/internal/workflow"
)

const journalPrefix = "triage:run"

func main() {
	var configPath string
	var logLevel string

	flagSet := pflag.NewFlagSet("triage", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", os.Getenv("TRIAGE_CONFIG"), "path to a YAML config file")
	flagSet.StringVar(&logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		log.Fatalf("invalid flags: %v", err)
	}

	cfg, err := config.LoadFile(configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if logLevel != "" {
		cfg.Logger.Level = logLevel
	}

	logger, err := observability.NewLogger(cfg.App, cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg := &persistence.Postgres{}
	if cfg.Store.Backend == "postgres" {
		pg, err = persistence.NewPostgres(ctx, cfg.Postgres, cfg.App.Name, logger)
		if err != nil {
			logger.Fatal("failed to connect postgres", zap.Error(err))
		}
	}
	defer pg.Close()

	docs, err := openStore(ctx, cfg, pg, logger)
	if err != nil {
		logger.Fatal("failed to open document store", zap.Error(err))
	}
	defer docs.Close() //nolint:errcheck

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	model, err := llm.New(cfg.LLM, logger)
	if err != nil {
		logger.Fatal("failed to init model client", zap.Error(err))
	}

	metrics := observability.NewMetrics()

	var journal workflow.Journal = workflow.NewMemoryJournal(cfg.Workflow.JournalTTL)
	if cfg.Workflow.Journal == "redis" {
		journal = workflow.NewRedisJournal(redis.Client, journalPrefix, cfg.Workflow.JournalTTL)
	}
	engine := workflow.NewEngine(workflow.Dependencies{
		Journal: journal,
		Policy:  workflow.PolicyFromConfig(cfg.Workflow),
		Logger:  logger,
		Metrics: metrics,
	})

	var dispatcher events.Dispatcher
	if cfg.Events.Transport == "redis" {
		dispatcher = events.NewRedisStreamDispatcher(redis.Client, events.RedisStreamOptions{
			Stream:      cfg.Events.Stream,
			Group:       cfg.Events.ConsumerGroup,
			Consumer:    cfg.Events.ConsumerName,
			Concurrency: cfg.Events.Concurrency,
		}, logger)
	} else {
		dispatcher = events.NewInMemoryDispatcher(logger, cfg.Events.Concurrency)
	}

	ticketRepo := repository.NewTicketRepository(docs)
	userRepo := repository.NewUserRepository(docs)

	classifier := service.NewClassifierService(service.ClassifierDependencies{
		Model:    model,
		Recovery: recovery.New(logger),
		Logger:   logger,
	})
	assigner := service.NewAssignmentService(service.AssignmentDependencies{
		UserRepo: userRepo,
		Logger:   logger,
	})
	triage := service.NewTriageService(service.TriageDependencies{
		TicketRepo: ticketRepo,
		Classifier: classifier,
		Assigner:   assigner,
		Engine:     engine,
		Dispatcher: dispatcher,
		Config:     cfg.Workflow,
		Logger:     logger,
	})
	tickets := service.NewTicketService(service.TicketDependencies{
		TicketRepo: ticketRepo,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	users := service.NewUserService(service.UserDependencies{
		UserRepo: userRepo,
		Logger:   logger,
	})

	worker.Register(dispatcher, triage, service.NewNotificationService(logger))
	if err := dispatcher.Start(ctx); err != nil {
		logger.Fatal("failed to start event consumer", zap.Error(err))
	}

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:  handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, docs, redis),
		Events:  handlers.NewEventsHandler(dispatcher),
		Tickets: handlers.NewTicketsHandler(tickets),
		Users:   handlers.NewUsersHandler(users),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
	cancel()
	if err := dispatcher.Close(); err != nil {
		logger.Warn("event dispatcher close", zap.Error(err))
	}
	logger.Info("stopped", zap.Any("metrics", metrics.Snapshot()))
}

func openStore(ctx context.Context, cfg *config.Config, pg *persistence.Postgres, logger *zap.Logger) (store.DocumentStore, error) {
	switch cfg.Store.Backend {
	case "postgres":
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
				return nil, fmt.Errorf("run migrations: %w", err)
			}
		}
		return store.NewPostgres(pg.PoolHandle()), nil
	case "sqlite":
		sqlite, err := store.OpenSQLite(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		return sqlite, nil
	default:
		logger.Warn("using in-memory document store; data is lost on restart")
		return store.NewMemory(), nil
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
