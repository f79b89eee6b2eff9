// README: Entry point; loads config, wires services, starts the HTTP server and the dispatch scheduler.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"dispatch/internal/config"
	httptransport "dispatch/internal/http"
	"dispatch/internal/infra"
	"dispatch/internal/maps"
	"dispatch/internal/modules/courier"
	"dispatch/internal/modules/earnings"
	"dispatch/internal/modules/location"
	"dispatch/internal/modules/matching"
	"dispatch/internal/modules/order"
	"dispatch/internal/modules/pricing"
	"dispatch/internal/notify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger := infra.NewLogger(cfg.Log.Level)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		logger.Fatal("postgres init", zap.Error(err))
	}
	defer dbPool.Close()

	redisClient, err := infra.NewRedis(ctx, cfg.Redis.Addr)
	if err != nil {
		logger.Fatal("redis init", zap.Error(err))
	}
	defer redisClient.Close()

	var verifier infra.TokenVerifier
	var notifiers notify.Multi
	notifiers = append(notifiers, notify.NewLog(logger))
	var mirror location.PositionMirror

	if cfg.Auth.Mode == config.AuthFirebase || cfg.Firebase.FCMEnabled || cfg.Firebase.DatabaseURL != "" {
		if cfg.Firebase.ProjectID == "" {
			logger.Fatal("DISPATCH_FIREBASE_PROJECT_ID is required for firebase features")
		}
		app, err := infra.NewFirebaseApp(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile, cfg.Firebase.DatabaseURL)
		if err != nil {
			logger.Fatal("firebase init", zap.Error(err))
		}
		if cfg.Auth.Mode == config.AuthFirebase {
			verifier, err = infra.NewFirebaseVerifier(ctx, app)
			if err != nil {
				logger.Fatal("firebase auth init", zap.Error(err))
			}
		}
		if cfg.Firebase.FCMEnabled {
			msg, err := infra.NewMessaging(ctx, app)
			if err != nil {
				logger.Fatal("firebase messaging init", zap.Error(err))
			}
			notifiers = append(notifiers, notify.NewFCM(msg, logger))
		}
		if cfg.Firebase.DatabaseURL != "" {
			rtdb, err := infra.NewRealtimeDB(ctx, app)
			if err != nil {
				logger.Fatal("firebase realtime database init", zap.Error(err))
			}
			mirror = location.NewRTDBMirror(rtdb)
		}
	}
	if cfg.Auth.Mode == config.AuthJWT {
		verifier = infra.NewJWTVerifier(cfg.Auth.JWTSecret)
	}

	if len(cfg.Kafka.Brokers) > 0 {
		kafkaNotifier := notify.NewKafka(notify.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic))
		defer kafkaNotifier.Close()
		notifiers = append(notifiers, kafkaNotifier)
	}

	orderOpts := []order.Option{
		order.WithLogger(logger),
		order.WithNotifier(notifiers),
		order.WithAttemptLimiter(order.NewRedisAttemptLimiter(redisClient, cfg.Order.OTPMaxAttempts, cfg.Order.OTPLockout)),
	}
	if cfg.Maps.APIKey != "" {
		geocoder, err := maps.NewGeocoder(cfg.Maps.APIKey, cfg.Maps.Region)
		if err != nil {
			logger.Fatal("maps geocoder init", zap.Error(err))
		}
		routes, err := maps.NewRouteService(cfg.Maps.APIKey)
		if err != nil {
			logger.Fatal("maps routes init", zap.Error(err))
		}
		orderOpts = append(orderOpts, order.WithGeocoder(geocoder), order.WithRouteEstimator(routes))
	}

	pricingSvc := pricing.NewService(pricing.NewStore(dbPool), cfg.Pricing)
	orderStore := order.NewStore(dbPool)
	orderSvc := order.NewService(orderStore, pricingSvc, cfg.Order, orderOpts...)
	courierSvc := courier.NewService(courier.NewStore(dbPool), logger)
	locationSvc := location.NewService(courierSvc, location.NewRedisIndex(redisClient), location.NewStore(dbPool), mirror, logger)
	matchingSvc := matching.NewService(
		orderStore,
		orderSvc,
		courierSvc,
		locationSvc,
		matching.NewStore(redisClient),
		notifiers,
		cfg.Matching,
		logger,
	)
	earningsSvc := earnings.NewService(earnings.NewStore(dbPool), courierSvc, cfg.Earnings, cfg.Pricing.Currency, logger)

	server := httptransport.NewServer(cfg.HTTP.Addr, httptransport.ServerDeps{
		Order:    orderSvc,
		Matching: matchingSvc,
		Courier:  courierSvc,
		Location: locationSvc,
		Earnings: earningsSvc,
		Verifier: verifier,
		Logger:   logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })
	g.Go(func() error {
		matchingSvc.RunScheduler(gctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
