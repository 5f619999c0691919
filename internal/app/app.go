// Package app assembles the detection pipeline and its HTTP surface from configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/BradenHooton/loginguard/internal/alert"
	"github.com/BradenHooton/loginguard/internal/auth"
	"github.com/BradenHooton/loginguard/internal/background"
	"github.com/BradenHooton/loginguard/internal/classifier"
	"github.com/BradenHooton/loginguard/internal/config"
	"github.com/BradenHooton/loginguard/internal/database"
	"github.com/BradenHooton/loginguard/internal/denylist"
	"github.com/BradenHooton/loginguard/internal/detection"
	"github.com/BradenHooton/loginguard/internal/handlers"
	"github.com/BradenHooton/loginguard/internal/ledger"
	"github.com/BradenHooton/loginguard/internal/metrics"
	middlewareCustom "github.com/BradenHooton/loginguard/internal/middleware"
	"github.com/BradenHooton/loginguard/internal/repositories"
	"github.com/BradenHooton/loginguard/internal/resolver"
	"github.com/BradenHooton/loginguard/internal/routes"
	"github.com/BradenHooton/loginguard/internal/securitylog"
	"github.com/BradenHooton/loginguard/internal/services"
	"github.com/BradenHooton/loginguard/internal/stats"
	"github.com/BradenHooton/loginguard/internal/storage"
	"github.com/BradenHooton/loginguard/internal/tracker"
)

// Options overrides pieces New would otherwise build from configuration
type Options struct {
	// DB is used instead of opening a pool from cfg.Database
	DB *database.DB
	// Loader is used instead of the HTTP classifier at cfg.Detection.ClassifierURL
	Loader classifier.Loader
	// Ledger is used instead of the backend named by cfg.Ledger.Backend
	Ledger ledger.Sink
	// Alerter is used instead of the log and SES alerters
	Alerter alert.Alerter
}

// App is the assembled service
type App struct {
	Router     http.Handler
	Service    *services.DetectionService
	Janitor    *background.Janitor
	Metrics    *metrics.Metrics
	Classifier *classifier.Adapter
	Tracker    *tracker.Tracker

	logger  *slog.Logger
	closers []func()
}

// New builds every component and wires the router
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*App, error) {
	a := &App{Metrics: metrics.New(), logger: logger}

	db := opts.DB
	if db == nil && cfg.Database.Enabled {
		var err error
		db, err = database.NewConnection(ctx, &cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
	}
	if db != nil {
		db.RegisterPoolMetrics(a.Metrics)
	}

	// Durable event storage
	fileSink, err := storage.NewFileSink(cfg.SecurityLog.LogDir, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}
	var history securitylog.HistoryReader = fileSink
	var archive securitylog.Archive
	sinks := []storage.EventSink{fileSink}
	if db != nil {
		repo := repositories.NewSecurityEventRepository(db)
		sinks = append(sinks, repo)
		history = repo
		archive = repo
	}
	sink := storage.NewMultiSink(sinks...)

	deny, err := a.buildDenylist(cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	alerter := opts.Alerter
	if alerter == nil {
		alerter, err = buildAlerter(cfg, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	sinkLedger := opts.Ledger
	if sinkLedger == nil {
		sinkLedger, err = a.buildLedger(cfg, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	loader := opts.Loader
	if loader == nil && cfg.Detection.ClassifierURL != "" {
		loader = classifier.HTTPModelLoader(cfg.Detection.ClassifierURL, &http.Client{Timeout: cfg.Detection.ClassifierLoadTimeout})
	}
	a.Classifier = classifier.NewAdapter(loader, classifier.Config{
		CallTimeout: cfg.Detection.ClassifierTimeout,
		LoadTimeout: cfg.Detection.ClassifierLoadTimeout,
	}, logger)

	a.Tracker = tracker.New()
	aggregator := stats.NewAggregator(a.Tracker, a.Classifier, cfg.Detection.StatsFreshness)

	eventLogger := securitylog.New(securitylog.Deps{
		Sink:     sink,
		Denylist: deny,
		Stats:    aggregator,
		Alerter:  alerter,
		Metrics:  a.Metrics,
		History:  history,
		Archive:  archive,
	}, securitylog.Config{
		HighFrequencyThreshold: cfg.SecurityLog.HighFrequencyThreshold,
		HighFrequencyWindow:    cfg.SecurityLog.HighFrequencyWindow,
		SuspiciousAgents:       cfg.SecurityLog.SuspiciousUserAgents,
		StatsFreshness:         cfg.Detection.StatsFreshness,
	}, logger)

	a.Service = services.NewDetectionService(services.DetectionDeps{
		Classifier: a.Classifier,
		Behavioral: detection.NewBehavioralScorer(detection.BehavioralConfig{
			HighRiskRegions:      cfg.Detection.HighRiskRegions,
			SuspiciousIdentities: cfg.Detection.SuspiciousIdentities,
			ScriptingClients:     cfg.Detection.ScriptingClients,
		}),
		Combiner: detection.NewCombiner(cfg.Detection.Threshold),
		Tracker:  a.Tracker,
		Stats:    aggregator,
		Events:   eventLogger,
		Ledger:   sinkLedger,
		Alerter:  alerter,
		Metrics:  a.Metrics,
	}, logger)

	a.Janitor = background.NewJanitor(a.Tracker, a.Metrics, logger, cfg.Detection.CleanupInterval, cfg.Detection.TimeWindow)

	// Handlers
	var pinger handlers.Pinger
	if db != nil {
		pinger = db
	}
	clients := resolver.New(cfg.Server.TrustedProxies)
	securityHandler := handlers.NewSecurityHandler(a.Service, clients, logger)
	healthHandler := handlers.NewHealthHandler(pinger, a.Classifier)

	var validator auth.TokenValidator
	if cfg.DashboardAuthEnabled() {
		validator = auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiry)
	} else {
		logger.Warn("DASHBOARD_JWT_SECRET not set, dashboard routes are unauthenticated")
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger, a.Metrics))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, routes.RouteConfig{
		Security:       securityHandler,
		Health:         healthHandler,
		Metrics:        a.Metrics.Handler(),
		TokenValidator: validator,
		AnalyzeLimit:   middlewareCustom.RateLimitConfig{RequestsPerMinute: cfg.Server.AnalyzeRateLimit, ClientIP: clients.ClientIP},
		DashboardLimit: middlewareCustom.RateLimitConfig{RequestsPerMinute: cfg.Server.DashboardRateLimit, ClientIP: clients.ClientIP},
	})
	a.Router = router

	logger.Info("detection pipeline assembled",
		slog.Int("event_sinks", sink.Len()),
		slog.String("ledger", sinkLedger.Backend()),
		slog.Bool("database", db != nil),
		slog.Bool("classifier_configured", loader != nil),
		slog.Bool("dashboard_auth", validator != nil),
	)

	return a, nil
}

// Start runs the background janitor until ctx is cancelled
func (a *App) Start(ctx context.Context) {
	go a.Janitor.Start(ctx)
}

// Close stops the janitor and releases connections in reverse order of creation
func (a *App) Close() {
	if a.Janitor != nil {
		a.Janitor.Stop()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) buildDenylist(cfg *config.Config, logger *slog.Logger) (denylist.Checker, error) {
	chain := denylist.Chain{denylist.NewStatic(cfg.SecurityLog.DenylistIPs)}
	if cfg.Redis.URL == "" {
		return chain, nil
	}

	client, err := denylist.NewRedisClient(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	a.closers = append(a.closers, func() { _ = client.Close() })

	return append(chain, denylist.NewRedisDenylist(client, cfg.Redis.DenylistKey, logger)), nil
}

func buildAlerter(cfg *config.Config, logger *slog.Logger) (alert.Alerter, error) {
	alerters := alert.Fanout{alert.NewLogAlerter(logger)}
	if len(cfg.Alert.EmailTo) > 0 {
		ses, err := alert.NewAWSSESAlerter(cfg.Alert.AWSRegion, cfg.Alert.FromAddress, cfg.Alert.EmailTo, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize alert email: %w", err)
		}
		alerters = append(alerters, ses)
	}
	return alert.NewThrottled(alerters, cfg.Alert.Interval), nil
}

func (a *App) buildLedger(cfg *config.Config, logger *slog.Logger) (ledger.Sink, error) {
	switch cfg.Ledger.Backend {
	case config.LedgerBackendFile:
		l, err := ledger.OpenFileLedger(cfg.Ledger.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open ledger: %w", err)
		}
		return l, nil
	case config.LedgerBackendKafka:
		client, err := ledger.NewKafkaClient(cfg.Ledger.KafkaBrokers, cfg.Ledger.KafkaTopic)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		return ledger.NewKafkaLedger(client, cfg.Ledger.KafkaTopic, logger), nil
	default:
		return ledger.Noop{}, nil
	}
}
