package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hypernova-labs/fne-service/internal/config"
	"github.com/hypernova-labs/fne-service/internal/database"
	"github.com/hypernova-labs/fne-service/internal/email"
	"github.com/hypernova-labs/fne-service/internal/metrics"
	"github.com/hypernova-labs/fne-service/internal/services"
	"github.com/hypernova-labs/fne-service/internal/workflows"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// app agrupa las dependencias construidas a partir de la configuración
type app struct {
	cfg    *config.Config
	logger *logrus.Logger
	db     *database.DB
	redis  *database.Redis

	configs       *database.ConfigRepository
	certification *services.CertificationService
	verification  *services.VerificationService
	reporter      *services.MetricsService
	batch         *workflows.BatchWorkflow
	metrics       *metrics.CertificationMetrics
}

// newApp conecta la base de datos, Redis y el storage, y arma los servicios
func newApp(cfg *config.Config, logger *logrus.Logger) (*app, error) {
	// Conectar a la base de datos
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, db: db}

	// Conectar a Redis; sin Redis no hay cache de tokens ni lock de lote
	var cache services.TokenCache
	var locker workflows.Locker
	if r, err := database.ConnectRedis(cfg); err != nil {
		logger.Warnf("Error connecting to Redis: %v", err)
	} else {
		a.redis = r
		cache = r
		locker = r
	}

	if cfg.Metrics.Enabled {
		a.metrics = metrics.New(prometheus.DefaultRegisterer, cfg.Metrics.ServiceName)
	}

	// Repositorios
	invoiceRepo := database.NewInvoiceRepository(db, logger)
	logRepo := database.NewAPILogRepository(db, logger)
	configRepo := database.NewConfigRepository(db, logger)
	a.configs = configRepo
	store := database.NewCertificationStore(db, invoiceRepo, logRepo, logger)

	// Gateways
	remote := services.NewRemoteGateway(&http.Client{}, a.metrics, logger)
	synthetic := services.NewSyntheticGateway(
		cfg.FNE.VerificationBaseURL,
		cfg.FNE.SyntheticStartingStock,
		cfg.FNE.SyntheticWarningBelow,
		a.metrics,
		logger,
	)
	router := services.NewGatewayRouter(remote, synthetic)
	reconciler := services.NewReconciler(store, a.metrics, logger)

	notifier := email.NewResendService(cfg.Email.ResendAPIKey, cfg.Email.FromEmail, cfg.Email.OperatorEmail, logger)
	if !notifier.Enabled() {
		logger.Warn("Resend API key or operator email not provided, alerts will not be sent")
	}

	a.certification = services.NewCertificationService(
		configRepo,
		invoiceRepo,
		router,
		reconciler,
		notifier,
		a.metrics,
		services.CertificationServiceOptions{
			DefaultBatchSize: cfg.FNE.DefaultBatchSize,
			ReconcileTimeout: cfg.FNE.ReconcileTimeout,
		},
		logger,
	)

	opts := services.VerificationServiceOptions{
		WebBase:  cfg.FNE.VerificationBaseURL,
		CacheTTL: cfg.FNE.TokenCacheTTL,
		Cache:    cache,
	}
	if archive := newArchive(cfg, db, logger); archive != nil {
		opts.Archive = archive
	}
	a.verification = services.NewVerificationService(
		invoiceRepo,
		configRepo,
		remote,
		logRepo,
		services.NewDocumentGenerator(logger),
		opts,
		logger,
	)

	a.reporter = services.NewMetricsService(logRepo, logger)
	a.batch = workflows.NewBatchWorkflow(a.certification, locker, cfg.FNE.BatchLockTTL, logger)

	return a, nil
}

// newArchive inicializa el archivo de PDFs en Supabase si hay credenciales
func newArchive(cfg *config.Config, db *database.DB, logger *logrus.Logger) *services.ArchiveStorageService {
	if !cfg.HasStorage() {
		logger.Warn("Supabase storage credentials not provided, certified PDFs will not be archived")
		return nil
	}

	supabaseClient, err := database.NewSupabaseClient(&cfg.Supabase, logger)
	if err != nil {
		logger.Warnf("Error initializing Supabase client: %v", err)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := supabaseClient.HealthCheck(ctx); err != nil {
		logger.Warnf("Supabase health check failed: %v", err)
	} else {
		logger.Info("Supabase storage connection healthy")
	}

	return services.NewArchiveStorageService(
		supabaseClient,
		database.NewCertifiedDocumentRepository(db, logger),
		cfg.Supabase.URL,
		logger,
	)
}

// Close libera las conexiones
func (a *app) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
	a.db.Close()
}

// setupLogger configura el logger según la configuración
func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	// Configurar nivel de log
	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	// Configurar formato
	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

// newQRService arma un VerificationService sin stores, suficiente para URL y QR
func newQRService(cfg *config.Config, logger *logrus.Logger) *services.VerificationService {
	return services.NewVerificationService(
		nil,
		nil,
		nil,
		nil,
		services.NewDocumentGenerator(logger),
		services.VerificationServiceOptions{WebBase: cfg.FNE.VerificationBaseURL},
		logger,
	)
}
