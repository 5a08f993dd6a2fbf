package internal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/strengthstats/rankengine/internal/config"
	"github.com/strengthstats/rankengine/internal/db"
	"github.com/strengthstats/rankengine/internal/middleware"
	"github.com/strengthstats/rankengine/internal/ranking"
	"github.com/strengthstats/rankengine/internal/ranking/comparison"
	"github.com/strengthstats/rankengine/internal/ranking/engine"
	"github.com/strengthstats/rankengine/internal/ranking/percentiles"
	"github.com/strengthstats/rankengine/internal/ranking/segments"
	"github.com/strengthstats/rankengine/internal/telemetry/metrics"
	"github.com/strengthstats/rankengine/internal/telemetry/tracing"
	"github.com/strengthstats/rankengine/pkg"

	"github.com/IBM/pgxpoolprometheus"
	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redis_rate/v9"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
)

type Server struct {
	httpServer        *http.Server
	metricsHttpServer *http.Server
	versionInfo       string

	config *config.Config
	dbPool *pgxpool.Pool

	redisClient *redis.Client

	engine            *engine.Engine
	comparisonService *comparison.Service

	// metrics
	metricsManager *metrics.Manager
	promRegistry   *prometheus.Registry
	otelShutdown   func()
}

type NewServerParams struct {
	Config                  *config.Config
	RedisPassword           string
	VersionInfo             string
	HoneycombTracingEnabled bool
}

func NewServer(
	ctx context.Context,
	params NewServerParams,
) (*Server, error) {
	dbPool, err := db.NewDBPool(ctx, db.NewDBPoolParams{
		DBHost:         params.Config.PostgresHost,
		DBPort:         params.Config.PostgresPort,
		DBName:         params.Config.PostgresDBName,
		DBUser:         params.Config.PostgresUser,
		MaxConns:       int32(params.Config.PostgresMaxConns),
		TracingEnabled: params.HoneycombTracingEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("new db pool: %w", err)
	}

	if err := dbPool.Ping(ctx); err != nil {
		log.Warnf("failed to ping db: %s", err)
	}

	pgxpoolCollector := pgxpoolprometheus.NewCollector(
		dbPool,
		map[string]string{"db_name": "rankengine_db"},
	)
	promRegistry := metrics.SetupPrometheus(pgxpoolCollector)
	metricsManager := metrics.NewManager("rankengine", "main", promRegistry)
	metricsManager.GaugeLifeSignal.Set(0)

	rdb := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(params.Config.RedisHost, params.Config.RedisPort),
		Password: params.RedisPassword,
		DB:       0, // use default DB
	})

	rdbStatus := rdb.Ping(ctx)
	if err := rdbStatus.Err(); err != nil {
		log.Errorf("--> failed to ping redis: %s", err)
	} else {
		log.Debugf("redis ping: %s", rdbStatus.Val())
	}

	// use honeycomb distro to setup OpenTelemetry SDK
	otelShutdown, err := tracing.HoneycombSetup(params.HoneycombTracingEnabled, "rankengine")
	if err != nil {
		return nil, err
	}

	engineCfg, err := engineConfig(params.Config.Engine)
	if err != nil {
		return nil, err
	}

	catalog := segments.NewCatalog(
		segments.NewStaticEstimator(segments.DefaultBasePopulation),
	)

	cacheTTL := time.Duration(params.Config.Engine.PercentileCacheTTLSeconds) * time.Second
	store := percentiles.NewCachedStore(
		percentiles.NewRepo(dbPool),
		params.Config.Engine.PercentileCacheSizeBytes,
		cacheTTL,
	)
	if warmed, err := store.Warmup(ctx); err != nil {
		log.Warnf("percentile cache warmup failed: %s", err)
	} else {
		log.Debugf("percentile cache warmed up with %d entries", warmed)
	}

	rankingEngine, err := engine.NewEngine(engine.NewEngineParams{
		Catalog:        catalog,
		Store:          store,
		Config:         engineCfg,
		MetricsManager: metricsManager,
		Publisher:      engine.NewRedisPublisher(rdb),
	})
	if err != nil {
		return nil, fmt.Errorf("new ranking engine: %w", err)
	}

	return &Server{
		config:      params.Config,
		dbPool:      dbPool,
		versionInfo: params.VersionInfo,

		redisClient: rdb,

		engine:            rankingEngine,
		comparisonService: comparison.NewService(catalog, store),

		// telemetry
		metricsManager: metricsManager,
		promRegistry:   promRegistry,
		otelShutdown:   otelShutdown,
	}, nil
}

func (s *Server) routerSetup() *mux.Router {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware("rankengine-router"))

	rankingsHandler := engine.NewHandler(s.engine)
	comparisonHandler := comparison.NewHandler(s.comparisonService)

	// submissions are rate limited per client deployment, reads are not
	reqRateLimiter := redis_rate.NewLimiter(s.redisClient)
	submitRouter := r.PathPrefix("/rankings/performance").Subrouter()
	submitRouter.HandleFunc("", rankingsHandler.HandleSubmitPerformance).
		Methods("POST", "OPTIONS").Name("submit-performance")
	submitRouter.Use(middleware.RateLimit(
		reqRateLimiter,
		"submit-performance",
		s.config.SubmitRateLimitPerMin,
		s.metricsManager,
	))

	r.HandleFunc("/rankings/force", rankingsHandler.HandleForceUpdate).
		Methods("POST", "OPTIONS").Name("force-update")
	r.HandleFunc("/rankings/compare", comparisonHandler.HandleCompare).
		Methods("GET", "OPTIONS").Name("compare")
	r.HandleFunc("/rankings/leaderboard/{exerciseId}", comparisonHandler.HandleLeaderboard).
		Methods("GET", "OPTIONS").Name("leaderboard")
	r.HandleFunc("/rankings/segments", rankingsHandler.HandleSegments).
		Methods("GET", "OPTIONS").Name("segments")
	r.HandleFunc("/rankings/segments/statuses", rankingsHandler.HandleSegmentStatuses).
		Methods("GET", "OPTIONS").Name("segment-statuses")
	r.HandleFunc("/rankings/stats", rankingsHandler.HandleStats).
		Methods("GET", "OPTIONS").Name("stats")
	r.HandleFunc("/rankings/queue", rankingsHandler.HandleClearQueue).
		Methods("DELETE", "OPTIONS").Name("clear-queue")

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		pkg.WriteTextResponseOK(w, "ok")
	}).Methods("GET").Name("health")
	r.HandleFunc("/version", func(w http.ResponseWriter, _ *http.Request) {
		pkg.WriteTextResponseOK(w, s.versionInfo)
	}).Methods("GET").Name("version")

	// all the rest - unhandled paths
	r.HandleFunc("/{unknown}", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}).Methods("GET", "POST", "PUT", "OPTIONS").Name("unknown")

	r.Use(middleware.PanicRecovery(s.metricsManager))
	r.Use(middleware.LogRequest())
	r.Use(middleware.RequestMetrics(s.metricsManager))
	r.Use(middleware.Cors())
	r.Use(middleware.DrainAndCloseRequest())

	return r
}

func (s *Server) Serve(_ context.Context, host string, port int) {
	router := s.routerSetup()

	ipAndPort := net.JoinHostPort(host, strconv.Itoa(port))
	s.httpServer = &http.Server{
		Handler:      router,
		Addr:         ipAndPort,
		WriteTimeout: time.Minute,
		ReadTimeout:  time.Minute,
		ConnState:    s.connStateMetrics,
	}

	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.HandlerFor(
		s.promRegistry,
		promhttp.HandlerOpts{},
	))
	metricsAddr := net.JoinHostPort(s.config.PrometheusMetricsHost, s.config.PrometheusMetricsPort)
	s.metricsHttpServer = &http.Server{
		Addr:    metricsAddr,
		Handler: metricsRouter,
	}

	s.engine.Start()

	go func() {
		log.Infof(" > server listening on: [%s]", ipAndPort)
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("main service, listen and serve: %s", err)
		}
	}()

	go func() {
		log.Debugf(" > metrics listening on: [%s]", metricsAddr)
		err := s.metricsHttpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("metrics service, listen and serve: %s", err)
		}
	}()

	s.metricsManager.GaugeLifeSignal.Set(1)
}

func (s *Server) GracefulShutdown() {
	log.Debug("graceful shutdown initiated ...")

	s.metricsManager.GaugeLifeSignal.Set(0)

	s.engine.Stop()
	log.Trace("ranking engine stopped ...")

	s.otelShutdown()
	log.Trace("otel shut down ...")

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			log.Errorf("failed to close redis client conn: %s", err)
		}
	}

	if s.dbPool != nil {
		log.Debugln("closing db pool ...")
		s.dbPool.Close() // blocking operation
		log.Debugln("db pool closed")
	}

	if ok := sentry.Flush(5 * time.Second); ok {
		log.Debugf("sentry flush ok: %t", ok)
	}

	maxWaitDuration := time.Second * 15
	ctx, timeoutCancel := context.WithTimeout(context.Background(), maxWaitDuration)
	defer timeoutCancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Error(" >>> failed to gracefully shutdown http server")
		}
		log.Warnln("server shut down")
	}

	if s.metricsHttpServer != nil {
		if err := s.metricsHttpServer.Shutdown(ctx); err != nil {
			log.Error(" >>> failed to gracefully shutdown metrics http server")
		}
		log.Warnln("metrics server shut down")
	}
}

func (s *Server) connStateMetrics(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		s.metricsManager.GaugeRequests.Add(1)
	case http.StateClosed:
		s.metricsManager.GaugeRequests.Add(-1)
	default:
		// do nothing
	}
}

// engineConfig converts the raw toml knobs to the validated engine config.
func engineConfig(cfg config.EngineConfig) (ranking.Config, error) {
	threshold := ranking.PriorityHigh
	if cfg.PriorityThreshold != "" {
		parsed, err := ranking.ParsePriority(cfg.PriorityThreshold)
		if err != nil {
			return ranking.Config{}, fmt.Errorf("parse priority threshold: %w", err)
		}
		threshold = parsed
	}

	engineCfg := ranking.Config{
		BatchSize:            cfg.BatchSize,
		MaxUpdateFrequency:   time.Duration(cfg.MaxUpdateFrequencyMinutes) * time.Minute,
		StatsInterval:        time.Duration(cfg.StatsIntervalSeconds) * time.Second,
		PriorityThreshold:    threshold,
		MaxQueueSize:         cfg.MaxQueueSize,
		EnableSmartBatching:  cfg.EnableSmartBatching,
		MaxSegmentsPerUpdate: cfg.MaxSegmentsPerUpdate,
	}
	engineCfg.SetDefaults()
	if err := engineCfg.Validate(); err != nil {
		return ranking.Config{}, err
	}
	return engineCfg, nil
}
