package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/go-redis/redis/v8"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/cache"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/config"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/content"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/database"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/delivery"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/endpoint"
	applogger "github.com/prajwalbharadwajbm/mailbeacon/internal/logger"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/metrics"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/middleware"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/repository"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/service"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/transport"
	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	config.LoadConfigs()
}

func main() {
	cfg := config.AppConfigInstance
	logger := applogger.New(applogger.Config{
		Service: transport.ServiceName,
		Version: transport.ServiceVersion,
		Level:   cfg.GeneralConfig.LogLevel,
		Format:  cfg.GeneralConfig.LogFormat,
	})

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := runMigrate(os.Args[2:], logger); err != nil {
			level.Error(logger).Log("msg", "migration failed", "err", err)
			os.Exit(1)
		}
		return
	}

	if err := run(logger); err != nil {
		level.Error(logger).Log("msg", "server exited", "err", err)
		os.Exit(1)
	}
}

func run(logger log.Logger) error {
	cfg := config.AppConfigInstance

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.NewPrometheusMetrics(prometheus.DefaultRegisterer)

	st, err := openStores(ctx, logger, m)
	if err != nil {
		return err
	}
	defer st.close()

	disp, err := newDispatcher(logger, m, st)
	if err != nil {
		return err
	}
	defer disp.close()

	campaigns := service.NewCampaignService(st.campaigns, st.lists, disp.dispatcher, log.With(logger, "component", "service"),
		service.WithDefaultFromEmail(cfg.GeneralConfig.DefaultFromEmail))

	var svc service.Service = campaigns
	svc = middleware.NewServiceMetricsMiddleware(m)(svc)
	svc = middleware.NewLoggingMiddleware(log.With(logger, "component", "engine"))(svc)

	disp.start(ctx, svc)
	go runScheduler(ctx, svc, cfg.SchedulerConfig.Interval, logger)

	endpoints := endpoint.MakeCampaignEndpoints(svc, endpoint.InstrumentingMiddleware(m))
	router := Routes(endpoints, logger, m, st.checks...)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.GeneralConfig.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		level.Info(logger).Log("msg", "starting server", "port", cfg.GeneralConfig.Port,
			"store", cfg.GeneralConfig.Store, "delivery", cfg.DeliveryConfig.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		stop()
		return fmt.Errorf("failed to serve http server: %w", err)
	case <-ctx.Done():
	}

	level.Info(logger).Log("msg", "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// stores bundles the repositories picked by STORE
type stores struct {
	campaigns   service.CampaignRepository
	lists       service.ListRepository
	subscribers service.SubscriberRepository
	checks      []transport.HealthCheck
	cleanups    []func()
}

func (s *stores) close() {
	for i := len(s.cleanups) - 1; i >= 0; i-- {
		s.cleanups[i]()
	}
}

func openStores(ctx context.Context, logger log.Logger, m *metrics.Metrics) (*stores, error) {
	cfg := config.AppConfigInstance
	st := &stores{}

	switch cfg.GeneralConfig.Store {
	case "memory":
		repo := repository.NewSeededMemoryRepository()
		st.campaigns = repository.NewInstrumentedRepository(repo, m)
		st.lists = repo
		st.subscribers = repo

	case "postgres":
		db, cleanup, err := database.Initialize(cfg.DatabaseConfig, logger)
		if err != nil {
			return nil, err
		}
		st.cleanups = append(st.cleanups, cleanup)
		st.campaigns = repository.NewInstrumentedRepository(repository.NewPostgresRepository(db), m)
		lists := repository.NewPostgresListRepository(db)
		st.lists = lists
		st.subscribers = lists
		st.checks = append(st.checks, transport.HealthCheck{
			Name:    "database",
			Check:   func(context.Context) error { return db.HealthCheck() },
			Details: func(context.Context) any { return db.GetConnectionStats() },
		})

	default:
		return nil, fmt.Errorf("unknown STORE %q", cfg.GeneralConfig.Store)
	}

	cacheCfg := config.GetCacheConfig()
	hc, err := cache.NewHybridCache(cacheCfg)
	if err != nil {
		st.close()
		return nil, err
	}
	st.cleanups = append(st.cleanups, func() { hc.Close() })
	st.lists = cache.NewCachedListRepository(st.lists, hc, cacheCfg.DefaultTTL, log.With(logger, "component", "cache"))

	if cacheCfg.EnableRedis {
		go func() {
			if err := hc.WatchInvalidations(ctx); err != nil && !errors.Is(err, context.Canceled) {
				level.Warn(logger).Log("msg", "cache invalidation watcher stopped", "err", err)
			}
		}()
	}
	st.checks = append(st.checks, transport.HealthCheck{
		Name:  "cache",
		Check: hc.Ping,
		Details: func(ctx context.Context) any {
			return config.GetCacheHealth(ctx, cacheCfg, hc)
		},
	})

	return st, nil
}

// dispatcherSet is the delivery backend picked by DELIVERY_BACKEND
type dispatcherSet struct {
	dispatcher service.Dispatcher
	start      func(ctx context.Context, engine delivery.Engine)
	close      func()
}

func newDispatcher(logger log.Logger, m *metrics.Metrics, st *stores) (*dispatcherSet, error) {
	cfg := config.AppConfigInstance.DeliveryConfig
	logger = log.With(logger, "component", "delivery", "backend", cfg.Backend)

	switch cfg.Backend {
	case "memory":
		resolver := delivery.NewResolver(st.subscribers, content.NewRenderer(content.NewConverter()), cfg.BatchSize)
		d := delivery.NewMemoryDispatcher(resolver, delivery.NewLogMailer(logger), delivery.QueueConfig{
			Workers:    cfg.Workers,
			MaxRetries: cfg.MaxRetries,
			RetryDelay: cfg.RetryDelay,
		}, logger, m)
		return &dispatcherSet{
			dispatcher: d,
			start:      d.Start,
			close:      d.Wait,
		}, nil

	case "redis":
		cacheCfg := config.GetCacheConfig()
		client := redis.NewClient(&redis.Options{
			Addr:     cacheCfg.RedisAddr,
			Password: cacheCfg.RedisPassword,
			DB:       cacheCfg.RedisDB,
		})
		d := delivery.NewRedisDispatcher(client, cacheCfg.KeyPrefix, logger, m)
		return &dispatcherSet{
			dispatcher: d,
			start:      listen(logger, d.ListenCompletions),
			close:      func() { client.Close() },
		}, nil

	case "amqp":
		d, err := delivery.NewAMQPDispatcher(cfg.AMQPURL, cfg.Queue, logger, m)
		if err != nil {
			return nil, err
		}
		return &dispatcherSet{
			dispatcher: d,
			start:      listen(logger, d.ListenCompletions),
			close:      func() { d.Close() },
		}, nil
	}

	return nil, fmt.Errorf("unknown DELIVERY_BACKEND %q", cfg.Backend)
}

// listen runs a completion listener in the background until ctx is done
func listen(logger log.Logger, fn func(context.Context, delivery.Engine) error) func(context.Context, delivery.Engine) {
	return func(ctx context.Context, engine delivery.Engine) {
		go func() {
			if err := fn(ctx, engine); err != nil && !errors.Is(err, context.Canceled) {
				level.Error(logger).Log("msg", "completion listener stopped", "err", err)
			}
		}()
	}
}

// runScheduler starts due campaigns every interval
func runScheduler(ctx context.Context, svc service.Service, interval time.Duration, logger log.Logger) {
	if interval <= 0 {
		level.Warn(logger).Log("msg", "scheduler disabled", "interval", interval)
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := svc.StartDueCampaigns(ctx); err != nil && !errors.Is(err, context.Canceled) {
				level.Error(logger).Log("msg", "scheduler sweep failed", "err", err)
			}
		}
	}
}
