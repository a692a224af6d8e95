package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Zhima-Mochi/storefront/internal/application"
	appInventory "github.com/Zhima-Mochi/storefront/internal/application/inventory"
	"github.com/Zhima-Mochi/storefront/internal/config"
	domoutbox "github.com/Zhima-Mochi/storefront/internal/domain/outbox"
	"github.com/Zhima-Mochi/storefront/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/storefront/internal/infrastructure/mysql"
	infraobs "github.com/Zhima-Mochi/storefront/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/storefront/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/storefront/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/storefront/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/storefront/internal/observability"
	"github.com/Zhima-Mochi/storefront/internal/pkg/logging"
	workerpresentation "github.com/Zhima-Mochi/storefront/internal/presentation/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

type dataStore interface {
	application.UnitOfWork
	domoutbox.Store
}

// runtime holds the process-wide dependencies shared by serve and relay.
type runtime struct {
	cfg      config.Config
	zap      *zap.Logger
	system   *zap.Logger
	registry *prometheus.Registry
	tel      observability.Observability
	store    dataStore
	health   func(ctx context.Context) error
	redis    redis.Cmdable
	bus      *outbox.Bus

	closers []func() error
}

func bootstrap(ctx context.Context, cfg config.Config) (*runtime, error) {
	base, err := logging.NewLogger(logging.Options{
		Service: cfg.ServiceName,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
	})
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(base)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	tel, err := infraobs.NewPrometheus(reg, "",
		oteltrace.New(cfg.ServiceName, attribute.String("deployment.environment", cfg.Env)),
		zaplogger.New(base),
	)
	if err != nil {
		return nil, err
	}

	rt := &runtime{
		cfg:      cfg,
		zap:      base,
		system:   logging.WithTrace(base, logging.SystemTraceID, logging.SystemSpanID),
		registry: reg,
		tel:      tel,
	}

	switch cfg.Store {
	case config.StoreMySQL:
		db, err := mysql.Open(ctx, cfg.DatabaseDSN, mysql.PoolConfig{
			MaxOpenConns: cfg.DBMaxOpenConns,
			MaxIdleConns: cfg.DBMaxOpenConns / 2,
		})
		if err != nil {
			return nil, err
		}
		rt.store, rt.health = db, db.Ping
		rt.closers = append(rt.closers, db.Close)
	default:
		rt.store = memory.NewStore()
		rt.system.Warn("memory_store_in_use", zap.String("env", cfg.Env))
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		rt.redis = client
		rt.closers = append(rt.closers, client.Close)
	}

	rt.bus = outbox.NewBus(rt.tel)
	lowStock := appInventory.NewLowStockWorker(
		workerpresentation.NewSubscriber(rt.bus, "inventory", rt.tel),
		rt.bus,
		cfg.LowStockThreshold,
		rt.tel,
	)
	lowStock.Start()
	rt.bus.Start(ctx)
	rt.closers = append(rt.closers, func() error {
		rt.bus.Stop(context.Background())
		return nil
	})
	return rt, nil
}

// sinks returns where the relay delivers outbox messages. External brokers are
// paired with the in-process bus so local workers still see every event.
// BrokerNone leaves messages pending for another relay process.
func (rt *runtime) sinks(ctx context.Context) ([]domoutbox.Publisher, error) {
	switch rt.cfg.OutboxBroker {
	case config.BrokerNone:
		return nil, nil
	case config.BrokerKafka:
		k, err := outbox.NewKafkaPublisher(rt.cfg.KafkaBrokers, rt.cfg.KafkaTopic)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, k.Close)
		return []domoutbox.Publisher{k, rt.bus}, nil
	case config.BrokerRabbitMQ:
		r, err := outbox.DialRabbit(ctx, rt.cfg.RabbitMQURL, rt.cfg.RabbitExchange, rt.tel.Logger())
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, r.Close)
		return []domoutbox.Publisher{r, rt.bus}, nil
	default:
		return []domoutbox.Publisher{rt.bus}, nil
	}
}

func (rt *runtime) relay(sinks []domoutbox.Publisher) *outbox.Relay {
	return outbox.NewRelay(rt.store, outbox.RelayConfig{
		Batch:    rt.cfg.RelayBatch,
		Interval: rt.cfg.RelayInterval,
	}, rt.tel, sinks...)
}

func (rt *runtime) metricsHandler() http.Handler {
	return promhttp.HandlerFor(rt.registry, promhttp.HandlerOpts{Registry: rt.registry})
}

// Close releases resources in reverse order of acquisition.
func (rt *runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	_ = rt.zap.Sync()
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
