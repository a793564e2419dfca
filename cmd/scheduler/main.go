package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"birthday_notification_service/internal/app"
	domainDelivery "birthday_notification_service/internal/domain/delivery"
	"birthday_notification_service/internal/infra/config"
	idb "birthday_notification_service/internal/infra/database"
	"birthday_notification_service/internal/infra/delivery"
	"birthday_notification_service/internal/infra/logger"
	"birthday_notification_service/internal/infra/rabbitmq"
	"birthday_notification_service/internal/infra/scheduler"
	"birthday_notification_service/internal/schedule"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatalf("FATAL: Could not load application configuration: %v", err)
	}
	logger.Init(cfg)
	log := logger.Get()
	log.Infof("Configuration loaded. Environment: %s, DeliveryMode: %s", cfg.Environment, cfg.DeliveryMode)

	// Database
	db, err := idb.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("FATAL: Could not connect to database: %v", err)
	}
	defer db.Close()
	if err := idb.RunMigrations(db); err != nil {
		log.Fatalf("FATAL: Could not run migrations: %v", err)
	}
	log.Info("Database connection established and migrations applied")

	userRepo := idb.NewPostgresUserRepository(db)
	occRepo := idb.NewPostgresOccurrenceRepository(db)

	// Dispatch queue
	amqpConn, err := rabbitmq.Connect(cfg.AMQPURL)
	if err != nil {
		log.Fatalf("FATAL: Could not connect to RabbitMQ: %v", err)
	}
	defer amqpConn.Close()
	dispatchQueue, err := rabbitmq.NewDispatchQueue(amqpConn, cfg.WorkerCount)
	if err != nil {
		log.Fatalf("FATAL: Could not set up dispatch queue: %v", err)
	}
	defer dispatchQueue.Close()
	log.Info("Dispatch queue topology declared")

	// Delivery client
	var client domainDelivery.Client
	switch cfg.DeliveryMode {
	case "telegram":
		client, err = delivery.NewTelegramClient(cfg.TelegramToken)
		if err != nil {
			log.Fatalf("FATAL: Could not create Telegram delivery client: %v", err)
		}
	default:
		client = delivery.NewHTTPClient(cfg.DeliveryURL)
	}

	clock := schedule.RealClock{}
	resolver := &schedule.Resolver{
		TargetHour: cfg.TargetLocalHour,
		Grace:      cfg.GraceWindow,
		Policy:     schedule.LeapDayPolicy(cfg.LeapDayPolicy),
	}
	breaker := app.NewBreaker(app.BreakerConfig{
		Window:         cfg.BreakerWindow,
		MinSamples:     cfg.BreakerMinSamples,
		FailureRatio:   cfg.BreakerFailureRatio,
		Cooldown:       cfg.BreakerCooldown,
		HalfOpenProbes: cfg.BreakerHalfOpenProbes,
	}, clock)

	enqueuer := app.NewEnqueuer(occRepo, dispatchQueue)
	scanner := app.NewScannerService(userRepo, occRepo, enqueuer, resolver, clock, log, cfg.EnqueueHorizon)
	sweeper := app.NewSweeperService(occRepo, enqueuer, clock, log, cfg.QueuedStaleAfter)
	status := app.NewStatusService(occRepo, breaker, log)
	dispatcher := app.NewDispatcher(occRepo, userRepo, client, dispatchQueue, breaker, app.NewRenderRegistry(), log, app.DispatchConfig{
		Workers:         cfg.WorkerCount,
		RetryMax:        cfg.RetryMax,
		RetryBaseDelay:  cfg.RetryBaseDelay,
		RetryMaxDelay:   cfg.RetryMaxDelay,
		DeliveryTimeout: cfg.DeliveryTimeout,
		RateLimit:       cfg.DeliveryRateLimit,
	})

	// Worker pool: runs until shutdown cancels its context; unacked
	// messages at exit are redelivered by the broker.
	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		if err := dispatcher.Run(dispatchCtx); err != nil {
			log.Errorf("Dispatcher stopped with error: %v", err)
		}
	}()

	cycles := scheduler.NewCycleScheduler(scanner, sweeper, status, log, cfg.CronSpecScan, cfg.CronSpecSweep, cfg.CronSpecStatus)
	if err := cycles.Start(); err != nil {
		log.Fatalf("FATAL: Could not start cycle scheduler: %v", err)
	}

	log.Info("Application setup complete. Scheduler and worker pool are running.")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit // Block until a signal is received

	log.Info("Shutting down application...")
	cycles.Stop()
	stopDispatch()
	<-dispatchDone
	log.Info("Application shut down gracefully")
}
