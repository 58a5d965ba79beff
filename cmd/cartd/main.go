package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ovenfresh/storefront-cart/internal/cart"
	"github.com/ovenfresh/storefront-cart/internal/catalog"
	"github.com/ovenfresh/storefront-cart/internal/notify"
	"github.com/ovenfresh/storefront-cart/internal/sweeps"
	"github.com/ovenfresh/storefront-cart/pkg/config"
	"github.com/ovenfresh/storefront-cart/pkg/kv"
	"github.com/ovenfresh/storefront-cart/pkg/logger"
	"github.com/ovenfresh/storefront-cart/pkg/metrics"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cartd"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "cartd",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	store, err := openStorage(context.Background(), cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to open durable storage", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logg.Error(context.Background(), "error closing storage", err)
		}
	}()

	persister, err := cart.NewPersister(store, logg, cfg.Storage.ActiveKey, cfg.Storage.SavedKey)
	if err != nil {
		logg.Error(context.Background(), "failed to create persister", err)
		os.Exit(1)
	}

	notifier := notify.NewBatcher(notify.BatcherParams{
		Sink:     logNotifier(logg),
		Logger:   logg,
		Cooldown: cfg.Cart.NotifyCooldown,
	})

	var dealDebounce *sweeps.Debouncer
	cartStore, err := cart.NewStore(cart.StoreParams{
		Persister: persister,
		Notifier:  notifier,
		Logger:    logg,
		OnChange:  func() { dealDebounce.Trigger() },
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cart store", err)
		os.Exit(1)
	}
	dealDebounce = sweeps.NewDebouncer(cfg.Cart.DealDebounce, func() {
		if _, err := cartStore.EnforceDealEligibility(context.Background()); err != nil {
			logg.Error(context.Background(), "deal eligibility pass failed", err)
		}
	})
	defer dealDebounce.Stop()

	if err := cartStore.Restore(context.Background()); err != nil {
		logg.Error(context.Background(), "failed to restore cart state", err)
		os.Exit(1)
	}

	slotSource := slotSourceFromConfig(cfg)
	metricsCollector := metrics.NewSweepJobMetrics(prometheus.DefaultRegisterer)

	slotRepair, err := sweeps.NewSlotRepairJob(sweeps.SlotRepairJobParams{
		Logger:   logg,
		Cart:     cartStore,
		Slots:    slotSource,
		Notifier: notifier,
		Metrics:  metricsCollector,
		Retries:  cfg.Cart.SlotLookupRetries,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create slot repair job", err)
		os.Exit(1)
	}
	dealEligibility, err := sweeps.NewDealEligibilityJob(sweeps.DealEligibilityJobParams{
		Logger:  logg,
		Cart:    cartStore,
		Metrics: metricsCollector,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create deal eligibility job", err)
		os.Exit(1)
	}

	service, err := sweeps.NewService(sweeps.ServiceParams{
		Logger:   logg,
		Registry: sweeps.NewRegistry(slotRepair, dealEligibility),
		Metrics:  metricsCollector,
		Interval: cfg.Cart.SlotSweepInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sweep service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env})
	logg.Info(ctx, "starting cart engine daemon")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "sweep service stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cart engine shutting down gracefully")
}

func openStorage(ctx context.Context, cfg *config.Config, logg *logger.Logger) (kv.Store, error) {
	if cfg.Storage.UseSQLite {
		logg.Info(ctx, "using embedded sqlite storage")
		return kv.NewSQLite(cfg.Storage.SQLitePath)
	}
	return kv.NewRedis(ctx, cfg.Redis)
}

func slotSourceFromConfig(cfg *config.Config) catalog.SlotSource {
	if cfg.Cart.SlotServiceURL == "" {
		return catalog.UnavailableSlotSource{}
	}
	source, err := catalog.NewHTTPSlotSource(cfg.Cart.SlotServiceURL, nil)
	if err != nil {
		return catalog.UnavailableSlotSource{}
	}
	return source
}

// logNotifier renders user notices into the structured log; the embedding
// storefront replaces this with its toast surface.
func logNotifier(logg *logger.Logger) notify.Notifier {
	return notify.Func(func(n notify.Notice) {
		ctx := logg.WithFields(context.Background(), map[string]any{
			"kind":   string(n.Kind),
			"title":  n.Title,
			"action": n.Action,
		})
		logg.Info(ctx, "user notice: "+n.Body)
	})
}
