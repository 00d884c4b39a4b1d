package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hypernova-labs/fne-service/internal/api"
	"github.com/hypernova-labs/fne-service/internal/config"
	"github.com/hypernova-labs/fne-service/internal/workflows"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "fne-service",
	Short: "FNE invoice certification service",
	Long: `fne-service certifies locally recorded invoices with the FNE
certification service, reconciles the results, and verifies issued tokens.

Without a subcommand it starts the HTTP server.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the workflow handler",
	RunE:  runServe,
}

var certifyPendingCmd = &cobra.Command{
	Use:   "certify-pending",
	Short: "Certify pending and retryable invoices",
	Example: `  # Run a batch with the configured size
  fne-service certify-pending

  # Queue a batch of 10 through Inngest
  fne-service certify-pending --max 10 --async`,
	RunE: runCertifyPending,
}

var certifyCmd = &cobra.Command{
	Use:   "certify",
	Short: "Certify a single invoice",
	RunE:  runCertify,
}

var activateConfigCmd = &cobra.Command{
	Use:   "activate-config",
	Short: "Make a certification configuration the only active one",
	RunE:  runActivateConfig,
}

var verifyTokenCmd = &cobra.Command{
	Use:   "verify-token TOKEN",
	Short: "Validate a verification token",
	Args:  cobra.ExactArgs(1),
	RunE:  runVerifyToken,
}

var qrCmd = &cobra.Command{
	Use:   "qr TOKEN",
	Short: "Write the verification QR code of a token as PNG",
	Args:  cobra.ExactArgs(1),
	RunE:  runQR,
}

func init() {
	certifyPendingCmd.Flags().Int("max", 0, "Maximum invoices to process (0 uses FNE_BATCH_SIZE)")
	certifyPendingCmd.Flags().Bool("async", false, "Send the batch request to Inngest instead of running it here")
	certifyCmd.Flags().String("id", "", "Invoice ID")
	_ = certifyCmd.MarkFlagRequired("id")
	activateConfigCmd.Flags().String("id", "", "Configuration ID")
	_ = activateConfigCmd.MarkFlagRequired("id")
	qrCmd.Flags().String("out", "qr.png", "Output file")

	rootCmd.AddCommand(serveCmd, certifyPendingCmd, certifyCmd, activateConfigCmd, verifyTokenCmd, qrCmd)
}

// bootstrap carga la configuración y arma las dependencias
func bootstrap() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("error loading configuration: %w", err)
	}
	return newApp(cfg, setupLogger(cfg))
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.Close()

	cfg, logger := a.cfg, a.logger
	logger.Info("Starting FNE Service...")

	// Configurar modo de Gin
	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Inicializar cliente de Inngest
	inngestClient, err := workflows.NewInngestClient(cfg, logger)
	if err != nil {
		logger.Warnf("Error initializing Inngest client: %v", err)
		inngestClient = nil
	} else if err := inngestClient.RegisterWorkflows(a.batch, cfg.FNE.BatchCron); err != nil {
		logger.Warnf("Error registering workflows: %v", err)
	}

	if cfg.Admin.APIKey == "" {
		if cfg.IsProduction() {
			return fmt.Errorf("ADMIN_API_KEY is required in production")
		}
		logger.Warn("ADMIN_API_KEY not set, admin endpoints will reject every request")
	}
	apiHandler := api.NewAPI(a.certification, a.batch, a.verification, a.reporter, cfg.Admin.APIKey, logger)

	router := setupRouter(apiHandler, inngestClient, a, cfg)

	// Crear servidor HTTP
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Canal para señales de terminación
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Reporte periódico del pool de conexiones
	statsCtx, stopStats := context.WithCancel(context.Background())
	defer stopStats()
	go logPoolStats(statsCtx, a, time.Minute)

	// Iniciar servidor en goroutine
	go func() {
		logger.Infof("Server starting on %s:%s", cfg.Server.Host, cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Error starting server: %v", err)
		}
	}()

	// Esperar señal de terminación
	<-quit
	logger.Info("Shutting down server...")

	// Contexto con timeout para shutdown graceful
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
	return nil
}

func logPoolStats(ctx context.Context, a *app, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.db.LogStats(a.logger)
			if a.redis != nil {
				a.redis.LogStats(a.logger)
			}
		}
	}
}

// setupRouter configura el router principal
func setupRouter(apiHandler *api.API, inngestClient *workflows.InngestClient, a *app, cfg *config.Config) *gin.Engine {
	router := gin.New()

	// Middleware global
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// Middleware de CORS para desarrollo
	if cfg.IsDevelopment() {
		router.Use(func(c *gin.Context) {
			c.Header("Access-Control-Allow-Origin", "*")
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, X-API-Key")

			if c.Request.Method == "OPTIONS" {
				c.AbortWithStatus(204)
				return
			}

			c.Next()
		})
	}

	// Health check
	router.GET("/health", func(c *gin.Context) {
		status := http.StatusOK
		checks := gin.H{"database": "ok"}
		if err := a.db.HealthCheck(c.Request.Context()); err != nil {
			status = http.StatusServiceUnavailable
			checks["database"] = err.Error()
		}
		if a.redis != nil {
			checks["redis"] = "ok"
			if err := a.redis.HealthCheck(c.Request.Context()); err != nil {
				checks["redis"] = err.Error()
			}
		}

		c.JSON(status, gin.H{
			"status":    http.StatusText(status),
			"timestamp": time.Now().UTC(),
			"service":   "fne-service",
			"version":   version,
			"checks":    checks,
		})
	})

	if cfg.Metrics.Enabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	if inngestClient != nil {
		router.Any("/api/inngest", gin.WrapH(inngestClient.Handler()))
	}

	apiHandler.RegisterRoutes(router)

	return router
}

func runCertifyPending(cmd *cobra.Command, args []string) error {
	maxCount, _ := cmd.Flags().GetInt("max")
	async, _ := cmd.Flags().GetBool("async")
	if maxCount < 0 {
		return fmt.Errorf("max must not be negative")
	}

	if async {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("error loading configuration: %w", err)
		}
		client, err := workflows.NewInngestClient(cfg, setupLogger(cfg))
		if err != nil {
			return err
		}
		id, err := client.RequestBatch(cmd.Context(), maxCount)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "batch requested, event %s\n", id)
		return nil
	}

	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.batch.Run(cmd.Context(), maxCount)
	if err != nil {
		return err
	}
	return printJSON(cmd, result)
}

func runCertify(cmd *cobra.Command, args []string) error {
	rawID, _ := cmd.Flags().GetString("id")
	id, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("invalid invoice id %q: %w", rawID, err)
	}

	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.Close()

	outcome, err := a.certification.CertifyInvoice(cmd.Context(), id)
	if outcome != nil {
		if printErr := printJSON(cmd, outcome); printErr != nil {
			return printErr
		}
	}
	return err
}

func runActivateConfig(cmd *cobra.Command, args []string) error {
	rawID, _ := cmd.Flags().GetString("id")
	id, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("invalid configuration id %q: %w", rawID, err)
	}

	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.configs.Activate(cmd.Context(), id); err != nil {
		return err
	}

	cfg, err := a.configs.GetActive(cmd.Context())
	if err != nil {
		return err
	}
	return printJSON(cmd, cfg)
}

func runVerifyToken(cmd *cobra.Command, args []string) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.Close()

	result := a.verification.ValidateToken(cmd.Context(), args[0])
	a.logger.WithFields(logrus.Fields{
		"valid":  result.IsValid,
		"source": result.Source,
	}).Debug("Token validated")
	return printJSON(cmd, result)
}

// runQR no necesita base de datos: solo la URL de verificación
func runQR(cmd *cobra.Command, args []string) error {
	out, _ := cmd.Flags().GetString("out")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}
	verification := newQRService(cfg, setupLogger(cfg))

	png, err := verification.GenerateQRCode(args[0])
	if err != nil {
		return err
	}
	if png == nil {
		return fmt.Errorf("token is empty")
	}
	if err := os.WriteFile(out, png, 0o644); err != nil {
		return fmt.Errorf("error writing %s: %w", out, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", verification.VerificationURL(args[0]), out)
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
