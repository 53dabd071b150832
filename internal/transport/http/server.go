package http

import (
	"context"
	"fmt"
	"log"
	stdhttp "net/http"
	"os/signal"
	"syscall"
	"time"

	"gcmrelay/internal/config"
	"gcmrelay/internal/counter"
	"gcmrelay/internal/database"
	"gcmrelay/internal/gcm"
	"gcmrelay/internal/handler"
	"gcmrelay/internal/queue"
	"gcmrelay/internal/redis"
	"gcmrelay/internal/repository"
	"gcmrelay/internal/service"
	"gcmrelay/internal/worker"
)

func Run() error {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// 2. Connect to Database
	db, err := database.Connect(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	// 3. Connect to Redis
	rds, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to create redis client: %w", err)
	}
	defer rds.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rds.Ping(ctx); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	log.Println("Connected to redis successfully")

	// 4. Repositories
	appRepo := repository.NewAppRepository(db)
	deviceRepo := repository.NewDeviceRepository(db)
	shardRepo := repository.NewCounterShardRepository(db)
	dailyRepo := repository.NewDailyCountRepository(db)

	// 5. Core components
	registerCounter := counter.New(shardRepo, cfg.CounterShards)
	gcmClient := gcm.NewClient(cfg.GCMSendURL)
	publisher := queue.NewPublisher(rds.Client)
	consumer := queue.NewConsumer(rds.Client)
	scheduler := gcm.NewScheduler(publisher)

	// 6. Services
	authService := service.NewAuthService(cfg)
	registerService := service.NewRegisterService(appRepo, deviceRepo, registerCounter)
	pushService := service.NewPushService(gcmClient, scheduler, deviceRepo, cfg.RetryTransportErrors)
	statsService := service.NewStatsService(appRepo, dailyRepo, registerCounter)

	// 7. Delivery workers
	manager := worker.NewManager(consumer, worker.NewHandler(pushService), worker.ManagerConfig{
		WorkerCount: cfg.WorkerCount,
	})
	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}

	// 8. HTTP server
	router := NewRouter(RouterConfig{
		AuthHandler:     handler.NewAuthHandler(authService),
		RegisterHandler: handler.NewRegisterHandler(registerService),
		AppHandler:      handler.NewAppHandler(appRepo, deviceRepo),
		PushHandler:     handler.NewPushHandler(appRepo, deviceRepo, publisher),
		StatsHandler:    handler.NewStatsHandler(statsService),
		CronHandler:     handler.NewCronHandler(statsService),
		JWTSecret:       cfg.JWTSecret,
		CronSecret:      cfg.CronSecret,
	})

	srv := &stdhttp.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on :%s", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		manager.Stop()
		return err
	case <-ctx.Done():
	}

	log.Println("Shutting down...")
	manager.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
