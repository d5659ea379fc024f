package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/angelmondragon/betza-storefront/api/routes"
	"github.com/angelmondragon/betza-storefront/internal/cart"
	"github.com/angelmondragon/betza-storefront/internal/identity"
	"github.com/angelmondragon/betza-storefront/internal/notifications"
	"github.com/angelmondragon/betza-storefront/internal/orders"
	"github.com/angelmondragon/betza-storefront/internal/products"
	"github.com/angelmondragon/betza-storefront/internal/settlement"
	"github.com/angelmondragon/betza-storefront/internal/wishlist"
	"github.com/angelmondragon/betza-storefront/pkg/config"
	"github.com/angelmondragon/betza-storefront/pkg/db"
	"github.com/angelmondragon/betza-storefront/pkg/idempotency"
	"github.com/angelmondragon/betza-storefront/pkg/instance"
	"github.com/angelmondragon/betza-storefront/pkg/logger"
	"github.com/angelmondragon/betza-storefront/pkg/metrics"
	"github.com/angelmondragon/betza-storefront/pkg/migrate"
	"github.com/angelmondragon/betza-storefront/pkg/paystack"
	"github.com/angelmondragon/betza-storefront/pkg/pubsub"
	"github.com/angelmondragon/betza-storefront/pkg/redis"
	"github.com/joho/godotenv"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	guard, err := idempotency.NewGuard(redisClient, cfg.Checkout.SettlementLockTTL)
	if err != nil {
		return err
	}

	paystackClient, err := paystack.NewClient(ctx, cfg.Paystack, logg)
	if err != nil {
		return err
	}

	notifier, closeNotifier, err := buildNotifier(ctx, cfg, logg)
	if err != nil {
		return err
	}
	defer closeNotifier()

	registry := metrics.NewRegistry()

	conn := dbClient.DB()
	ordersRepo := orders.NewRepository(conn)
	productRepo := products.NewRepository(conn)

	settlementService, err := settlement.NewService(settlement.ServiceParams{
		Tx:       dbClient,
		Orders:   ordersRepo,
		Carts:    cart.NewRepository(conn),
		Provider: paystackClient,
		Guard:    guard,
		Notifier: notifier,
		Logger:   logg,
		Metrics:  metrics.NewSettlementMetrics(registry),
		Checkout: cfg.Checkout,
	})
	if err != nil {
		return err
	}

	ordersService, err := orders.NewService(ordersRepo)
	if err != nil {
		return err
	}
	productService, err := products.NewService(productRepo)
	if err != nil {
		return err
	}
	wishlistService, err := wishlist.NewService(wishlist.ServiceParams{
		WishlistRepo: wishlist.NewRepository(conn),
		ProductRepo:  productRepo,
	})
	if err != nil {
		return err
	}

	resolver, err := identity.NewTokenResolver(cfg.JWT)
	if err != nil {
		return err
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})
	logg.Info(logCtx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			registry,
			resolver,
			productService,
			ordersService,
			wishlistService,
			settlementService,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logg.Info(logCtx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildNotifier always logs notifications and also publishes them to Pub/Sub
// when a topic is configured.
func buildNotifier(ctx context.Context, cfg *config.Config, logg *logger.Logger) (notifications.Sink, func(), error) {
	logSink := notifications.NewLogSink(logg)
	if !cfg.PubSub.Enabled() {
		return logSink, func() {}, nil
	}

	psClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return nil, nil, err
	}
	publisher, err := notifications.NewTopicPublisher(psClient.NotificationPublisher())
	if err != nil {
		_ = psClient.Close()
		return nil, nil, err
	}
	pushSink, err := notifications.NewPubSubSink(publisher, logg)
	if err != nil {
		publisher.Stop()
		_ = psClient.Close()
		return nil, nil, err
	}

	closeFn := func() {
		publisher.Stop()
		if err := psClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub", err)
		}
	}
	return notifications.Fanout{logSink, pushSink}, closeFn, nil
}
