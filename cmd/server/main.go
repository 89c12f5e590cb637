package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/tickethub/seat-reservation/internal/cache"
	"github.com/tickethub/seat-reservation/internal/config"
	"github.com/tickethub/seat-reservation/internal/database"
	"github.com/tickethub/seat-reservation/internal/engine"
	"github.com/tickethub/seat-reservation/internal/handler"
	internalmw "github.com/tickethub/seat-reservation/internal/middleware"
	"github.com/tickethub/seat-reservation/internal/queue"
	"github.com/tickethub/seat-reservation/internal/repository"
	"github.com/tickethub/seat-reservation/internal/router"
	queue_publisher "github.com/tickethub/seat-reservation/internal/service"
)

func main() {
	// .env is optional; real deployments inject the environment directly.
	_ = godotenv.Load()
	cfg := config.Load()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if cfg.Env == "dev" {
		logger.SetLevel(logrus.DebugLevel)
	}

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.DBLockWaitSecs)
	if err != nil {
		logger.WithError(err).Fatal("database connection failed")
	}
	defer db.Close()

	rdb := config.NewRedisClient()
	if rdb == nil {
		logger.Warn("redis unavailable, rate limiting and availability cache disabled")
	} else {
		defer rdb.Close()
	}

	publisher := queue_publisher.NewPublisher(logger, cfg.AMQPURL)
	defer publisher.Close()
	go queue.StartSeatStatusConsumer(logger, cfg.AMQPURL)

	clock := engine.SystemClock()
	avail := cache.NewAvailability(logger, rdb, 30*time.Second)
	seatRepo := repository.NewSeatRepo(logger, db)
	bookingRepo := repository.NewBookingRepo(logger, db)

	policy := engine.LockPolicy{
		DefaultTTL: cfg.LockTTL,
		MinTTL:     cfg.LockTTLMin,
		MaxTTL:     cfg.LockTTLMax,
	}
	manager := engine.NewLockManager(logger, seatRepo, clock, policy, publisher, avail)
	promoter := engine.NewReservationPromoter(logger, seatRepo, clock, publisher, avail)
	sweeper := engine.NewExpirySweeper(logger, seatRepo, clock, cfg.SweepBatchSize, publisher, avail)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sweeper.Run(ctx, cfg.SweepInterval)

	e := echo.New()
	e.HideBanner = true
	router.RegisterRoutes(e)
	router.RegisterSeatLock(e,
		handler.NewSeatLockHandler(logger, manager, promoter, bookingRepo),
		handler.NewAvailabilityHandler(logger, seatRepo, clock, avail),
		handler.NewBookingHandler(logger, bookingRepo),
		internalmw.HolderIdentity(cfg.JWTSecret),
		internalmw.NewTokenBucket(config.LoadRateLimitConfig(), rdb),
	)

	go func() {
		addr := ":" + cfg.Port
		logger.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env}).Info("listening")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	sigterm := make(chan os.Signal, 1)
	signal.Notify(sigterm, syscall.SIGINT, syscall.SIGTERM)
	<-sigterm

	cancel() // stop the sweeper
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("shutdown failed")
	}
}
