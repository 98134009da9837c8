package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"gitlab.ozon.dev/qwestard/laundry/internal/audit"
	"gitlab.ozon.dev/qwestard/laundry/internal/auth"
	"gitlab.ozon.dev/qwestard/laundry/internal/config"
	"gitlab.ozon.dev/qwestard/laundry/internal/db"
	"gitlab.ozon.dev/qwestard/laundry/internal/kafka"
	"gitlab.ozon.dev/qwestard/laundry/internal/models"
	taskprocessor "gitlab.ozon.dev/qwestard/laundry/internal/processor"
	"gitlab.ozon.dev/qwestard/laundry/internal/pricing"
	"gitlab.ozon.dev/qwestard/laundry/internal/repository"
	"gitlab.ozon.dev/qwestard/laundry/internal/server"
	"gitlab.ozon.dev/qwestard/laundry/internal/service"
	"gitlab.ozon.dev/qwestard/laundry/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config.LoadConfig()); err != nil {
		log.Fatalf("Server stopped: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	pricer, err := pricing.NewRandomPricer(cfg.PriceMin, cfg.PriceMax, cfg.PriceSeed)
	if err != nil {
		return err
	}

	processors := []audit.AuditLogProcessor{&audit.StdoutProcessor{Filter: cfg.FilterWord}}
	var (
		repo  repository.RequestRepository
		tasks repository.TaskRepository
		opts  []service.Option
	)
	if cfg.UsesSQL() {
		database, err := db.NewDB(cfg.DBDriver, cfg.DSN)
		if err != nil {
			return fmt.Errorf("connect to %s: %w", cfg.DBDriver, err)
		}
		defer database.Close()

		repo = repository.NewSQLRequestRepository(database)
		processors = append(processors, audit.NewDBProcessor(database))
		if cfg.KafkaEnabled {
			taskRepo := repository.NewSQLTaskRepository(database)
			tasks = taskRepo
			opts = append(opts, service.WithOutbox(taskRepo))
		}
	} else {
		st, err := storage.New(cfg.SnapshotFile)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		repo = st
	}

	// The pool outlives the server so records from in-flight requests are flushed.
	auditCtx, cancelAudit := context.WithCancel(context.Background())
	pool := audit.NewAuditWorkerPool(audit.AuditPoolConfig{
		BatchSize:   cfg.AuditBatchSize,
		Timeout:     cfg.AuditTimeout,
		ChannelSize: 100,
	}, processors...)
	pool.Start(auditCtx, cfg.AuditWorkers)
	defer pool.Shutdown(cancelAudit)
	opts = append(opts, service.WithAuditor(pool))

	svc := service.NewLaundryService(repo, models.UUIDGenerator{}, pricer, opts...)
	srv := server.NewServer(svc, auth.NewAuthenticator(models.UUIDGenerator{}), pool, cfg)

	var tp *taskprocessor.TaskProcessor
	if tasks != nil {
		producer, err := kafka.NewSaramaProducer(cfg.KafkaBrokers)
		if err != nil {
			return fmt.Errorf("kafka producer: %w", err)
		}
		defer producer.Close()
		tp = taskprocessor.NewTaskProcessor(tasks, producer, cfg.KafkaTopic, cfg.OutboxPollInterval, cfg.OutboxBatchLimit)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	if tp != nil {
		g.Go(func() error {
			log.Printf("Outbox processor publishing to %s", cfg.KafkaTopic)
			return tp.Start(gctx)
		})
	}

	return g.Wait()
}
