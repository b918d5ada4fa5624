package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"edge-gateway/config"
	"edge-gateway/metrics"
	"edge-gateway/middleware/accesslog"
	"edge-gateway/middleware/auth"
	"edge-gateway/middleware/pipeline"
	"edge-gateway/middleware/ratelimit"
	"edge-gateway/middleware/ratelimit/domain"
	"edge-gateway/middleware/ratelimit/infra"
	"edge-gateway/middleware/routing"
	"edge-gateway/server"
	"edge-gateway/telemetry"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("config error")
	}
	log := newLogger(cfg.Log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Tracing.Enabled {
		shutdown, err := telemetry.InitTracer(telemetry.Options{ServiceName: cfg.Tracing.ServiceName, Log: log})
		if err != nil {
			log.WithError(err).Fatal("tracing init error")
		}
		defer func() { _ = shutdown(context.Background()) }()
	}

	m := metrics.New()

	verifier, err := auth.NewVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		log.WithError(err).Fatal("auth config error")
	}

	table, err := routing.NewTable(routesFrom(cfg.Routes))
	if err != nil {
		log.WithError(err).Fatal("routes config error")
	}
	for _, e := range table.Entries() {
		log.WithFields(logrus.Fields{"route": e.ID, "prefix": e.Prefix, "strip": e.StripPrefix, "uri": e.Target.String()}).Info("route loaded")
	}

	stages := []pipeline.Stage{auth.NewStage(verifier, log, m)}

	var ready server.Pinger
	var memStats *infra.MemoryStatsStore
	if cfg.RateLimit.Enabled {
		var store domain.CounterStore
		var stats domain.StatsStore

		var rdb *redis.Client
		if cfg.RateLimit.Store == "redis" {
			rdb = redis.NewClient(&redis.Options{
				Addr:        cfg.Redis.Addr,
				Password:    cfg.Redis.Password,
				DB:          cfg.Redis.DB,
				DialTimeout: cfg.Redis.DialTimeout,
			})
			defer func() { _ = rdb.Close() }()
			connectRedis(ctx, rdb, cfg.Redis, log)
		}

		switch cfg.RateLimit.Store {
		case "memory":
			mem := infra.NewMemoryCounterStore()
			mem.StartJanitor(ctx)
			store = mem
		default:
			redisStore := infra.NewRedisCounterStore(rdb)
			store = redisStore
			ready = redisStore
		}

		switch {
		case !cfg.RateLimit.Stats.Enabled:
		case rdb == nil:
			mem := infra.NewMemoryStatsStore(infra.WithTrackKeys(cfg.RateLimit.Stats.TrackKeys))
			stats = mem
			memStats = mem
		default:
			stats = infra.NewRedisStatsStore(
				rdb,
				infra.WithStatsPrefix(cfg.RateLimit.Stats.Prefix),
				infra.WithStatsTTL(cfg.RateLimit.Stats.TTL),
				infra.WithStatsBucket(cfg.RateLimit.Stats.Bucket),
				infra.WithStatsTrackKeys(cfg.RateLimit.Stats.TrackKeys),
			)
		}

		stages = append(stages, ratelimit.NewStage(ratelimit.Options{
			Store:                    store,
			Stats:                    stats,
			KeyPrefix:                cfg.RateLimit.KeyPrefix,
			IdentityHeader:           cfg.RateLimit.IdentityHeader,
			UseAuthenticatedIdentity: cfg.RateLimit.UseAuthenticatedIdentity,
			Window:                   cfg.RateLimit.Window(),
			Limit:                    cfg.RateLimit.BurstCapacity,
			StoreTimeout:             cfg.RateLimit.StoreTimeout,
			Log:                      log,
			Recorder:                 m,
		}))
	}
	stages = append(stages, routing.NewStage(table, log))

	access := accesslog.New(accesslog.Options{Log: log, Buffer: cfg.Log.AccessBuffer, Dropped: m})

	proxy := routing.NewProxy(routing.ProxyOptions{
		Timeout:        cfg.Upstream.Timeout,
		MaxConcurrent:  cfg.Upstream.MaxConcurrent,
		AcquireTimeout: cfg.Upstream.AcquireTimeout,
		Log:            log,
	})

	var h http.Handler = pipeline.New(proxy, stages,
		pipeline.WithPublicPaths(cfg.Auth.PublicPaths...),
		pipeline.WithObservers(access, m),
		pipeline.WithLogger(log),
	)
	if cfg.Tracing.Enabled {
		h = telemetry.Middleware(h, "gateway")
	}

	servers := []*http.Server{server.New(cfg.Server.ListenAddr, h, cfg.Server.ReadHeaderTimeout)}
	if cfg.Server.AdminAddr != "" {
		opts := server.AdminOptions{Store: ready, Metrics: m.Handler()}
		if memStats != nil {
			opts.Stats = memStats
		}
		admin := server.NewAdminRouter(opts)
		servers = append(servers, server.New(cfg.Server.AdminAddr, admin, cfg.Server.ReadHeaderTimeout))
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		for _, srv := range servers {
			_ = srv.Shutdown(shutdownCtx)
		}
	}()

	log.WithFields(logrus.Fields{
		"listen":        cfg.Server.ListenAddr,
		"admin":         cfg.Server.AdminAddr,
		"public_paths":  cfg.Auth.PublicPaths,
		"rate_enabled":  cfg.RateLimit.Enabled,
		"rate_store":    cfg.RateLimit.Store,
		"rate_window":   cfg.RateLimit.Window().String(),
		"rate_capacity": cfg.RateLimit.BurstCapacity,
		"rate_identity": cfg.RateLimit.IdentityHeader,
		"upstream_max":  cfg.Upstream.MaxConcurrent,
	}).Info("gateway starting")

	errc := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- err
				return
			}
			errc <- nil
		}(srv)
	}

	exit := 0
	for range servers {
		if err := <-errc; err != nil {
			log.WithError(err).Error("server error")
			exit = 1
			cancel()
		}
	}

	// servidores parados: o que falta no buffer do access log ainda é escrito
	access.Close()
	if exit != 0 {
		os.Exit(exit)
	}
}

func newLogger(cfg config.LogConfig) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	if cfg.Format == "text" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	if lvl, err := logrus.ParseLevel(cfg.Level); err == nil {
		log.SetLevel(lvl)
	}
	return log
}

// connectRedis tenta o ping com backoff exponencial. Se não conectar, segue:
// o rate limit falha aberto até o Redis voltar.
func connectRedis(ctx context.Context, rdb *redis.Client, cfg config.RedisConfig, log logrus.FieldLogger) {
	tries := cfg.ConnectRetries
	if tries == 0 {
		tries = 1
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return struct{}{}, rdb.Ping(pingCtx).Err()
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(tries),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.WithError(err).WithField("retry_in", next.String()).Warn("redis ping failed")
		}),
	)
	if err != nil {
		log.WithError(err).WithField("addr", cfg.Addr).Warn("redis unavailable, rate limiting will fail open")
		return
	}
	log.WithField("addr", cfg.Addr).Info("redis connected")
}

func routesFrom(cfgs []config.RouteConfig) []routing.Route {
	routes := make([]routing.Route, 0, len(cfgs))
	for _, c := range cfgs {
		routes = append(routes, routing.Route{ID: c.ID, Path: c.Path, StripPrefix: c.StripPrefix, URI: c.URI})
	}
	return routes
}
