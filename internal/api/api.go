package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hypernova-labs/fne-service/internal/models"
	"github.com/hypernova-labs/fne-service/internal/services"
	"github.com/hypernova-labs/fne-service/internal/workflows"
	"github.com/sirupsen/logrus"
)

const periodDateLayout = "2006-01-02"

// Certifier expone el pipeline de certificación
type Certifier interface {
	CertifyInvoice(ctx context.Context, id uuid.UUID) (*models.InvoiceOutcome, error)
	GetPendingInvoicesCount(ctx context.Context) (int, error)
	GetInvoicesForPeriod(ctx context.Context, from, to time.Time) ([]models.PeriodInvoice, error)
}

// BatchRunner ejecuta el lote de certificación bajo lock
type BatchRunner interface {
	Run(ctx context.Context, maxCount int) (*models.BatchResult, error)
}

// Verifier expone el subsistema de verificación
type Verifier interface {
	ValidateToken(ctx context.Context, token string) *models.TokenValidationResult
	GenerateQRCode(token string) ([]byte, error)
	GenerateQRCodeBase64(token string) (string, error)
	DownloadCertifiedInvoice(ctx context.Context, invoiceID uuid.UUID) (*models.DownloadedInvoice, error)
}

// MetricsReporter expone las métricas de actividad
type MetricsReporter interface {
	GetCertificationMetrics(ctx context.Context) (*models.CertificationMetrics, error)
	GetRecentActivity(ctx context.Context, limit int) ([]models.ActivityItem, error)
}

// API maneja todos los endpoints de la API
type API struct {
	certifier   Certifier
	batch       BatchRunner
	verifier    Verifier
	metrics     MetricsReporter
	adminAPIKey string
	logger      *logrus.Logger
}

// NewAPI crea una nueva instancia de la API
func NewAPI(
	certifier Certifier,
	batch BatchRunner,
	verifier Verifier,
	metrics MetricsReporter,
	adminAPIKey string,
	logger *logrus.Logger,
) *API {
	return &API{
		certifier:   certifier,
		batch:       batch,
		verifier:    verifier,
		metrics:     metrics,
		adminAPIKey: adminAPIKey,
		logger:      logger,
	}
}

// RegisterRoutes registra los endpoints v1 en el router
func (api *API) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/v1")
	{
		// Endpoints PÚBLICOS (verificación de tokens impresos en facturas)
		public := v1.Group("/verification")
		{
			public.GET("", api.ValidateToken)
			public.GET("/qr", api.GetQRCode)
			public.GET("/:token", api.ValidateToken)
		}

		// Endpoints ADMIN (protegidos)
		admin := v1.Group("")
		admin.Use(api.AdminAuthMiddleware())
		{
			admin.POST("/certifications/batch", api.CertifyPending)
			admin.POST("/invoices/:id/certify", api.CertifyInvoice)
			admin.GET("/invoices/pending/count", api.GetPendingCount)
			admin.GET("/invoices", api.GetInvoicesForPeriod)
			admin.GET("/invoices/:id/download", api.DownloadCertifiedInvoice)
			admin.GET("/metrics/certification", api.GetCertificationMetrics)
			admin.GET("/metrics/activity", api.GetRecentActivity)
		}
	}
}

// CertifyPending corre un lote de certificación
func (api *API) CertifyPending(c *gin.Context) {
	maxCount, _ := strconv.Atoi(c.DefaultQuery("max", "0"))
	if maxCount < 0 {
		c.JSON(http.StatusBadRequest, models.NewValidationError("Invalid max", []models.ErrorDetail{
			{Field: "max", Issue: "Must be a positive integer"},
		}))
		return
	}

	result, err := api.batch.Run(c.Request.Context(), maxCount)
	if err != nil {
		if errors.Is(err, workflows.ErrBatchInProgress) {
			c.JSON(http.StatusConflict, models.NewConflictError("A certification batch is already running"))
			return
		}
		api.logger.WithError(err).Error("Error running certification batch")
		c.JSON(http.StatusInternalServerError, models.NewInternalError("Error running certification batch"))
		return
	}

	c.JSON(http.StatusOK, result)
}

// CertifyInvoice certifica una factura
func (api *API) CertifyInvoice(c *gin.Context) {
	id, ok := api.parseInvoiceID(c)
	if !ok {
		return
	}

	outcome, err := api.certifier.CertifyInvoice(c.Request.Context(), id)
	if err != nil && outcome == nil {
		api.writeError(c, err, "Error certifying invoice")
		return
	}
	if err != nil {
		api.logger.WithError(err).WithField("invoice_id", id).Error("Certification outcome not persisted")
		c.JSON(http.StatusInternalServerError, outcome)
		return
	}

	if !outcome.Success && outcome.ErrorKind != models.ErrorKindValidation {
		c.JSON(http.StatusBadGateway, outcome)
		return
	}
	if !outcome.Success {
		c.JSON(http.StatusUnprocessableEntity, outcome)
		return
	}

	c.JSON(http.StatusOK, outcome)
}

// GetPendingCount cuenta las facturas pendientes de certificación
func (api *API) GetPendingCount(c *gin.Context) {
	count, err := api.certifier.GetPendingInvoicesCount(c.Request.Context())
	if err != nil {
		api.writeError(c, err, "Error counting pending invoices")
		return
	}

	c.JSON(http.StatusOK, gin.H{"pending": count})
}

// GetInvoicesForPeriod lista las facturas de un periodo, en JSON o xlsx
func (api *API) GetInvoicesForPeriod(c *gin.Context) {
	from, err := time.ParseInLocation(periodDateLayout, c.Query("from"), time.Local)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewValidationError("Invalid period", []models.ErrorDetail{
			{Field: "from", Issue: "Must be a date in YYYY-MM-DD format"},
		}))
		return
	}
	to, err := time.ParseInLocation(periodDateLayout, c.Query("to"), time.Local)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewValidationError("Invalid period", []models.ErrorDetail{
			{Field: "to", Issue: "Must be a date in YYYY-MM-DD format"},
		}))
		return
	}

	// "to" es inclusivo en la API
	invoices, err := api.certifier.GetInvoicesForPeriod(c.Request.Context(), from, to.AddDate(0, 0, 1))
	if err != nil {
		api.writeError(c, err, "Error retrieving invoices")
		return
	}

	if c.Query("format") == "xlsx" {
		data, err := services.ExportPeriodXLSX(invoices)
		if err != nil {
			api.logger.WithError(err).Error("Error exporting period")
			c.JSON(http.StatusInternalServerError, models.NewInternalError("Error exporting invoices"))
			return
		}
		fileName := fmt.Sprintf("factures_%s_%s.xlsx", from.Format(periodDateLayout), to.Format(periodDateLayout))
		contentType := "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", fileName))
		c.Data(http.StatusOK, contentType, data)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items": invoices,
		"total": len(invoices),
	})
}

// DownloadCertifiedInvoice descarga el PDF certificado de una factura
func (api *API) DownloadCertifiedInvoice(c *gin.Context) {
	id, ok := api.parseInvoiceID(c)
	if !ok {
		return
	}

	doc, err := api.verifier.DownloadCertifiedInvoice(c.Request.Context(), id)
	if err != nil {
		api.writeError(c, err, "Error downloading certified invoice")
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%s", doc.FileName))
	c.Header("Content-Length", fmt.Sprintf("%d", len(doc.Data)))
	c.Data(http.StatusOK, doc.ContentType, doc.Data)
}

// ValidateToken valida un token de verificación, por path o query
func (api *API) ValidateToken(c *gin.Context) {
	token := c.Param("token")
	if token == "" {
		token = c.Query("token")
	}

	result := api.verifier.ValidateToken(c.Request.Context(), token)
	c.JSON(http.StatusOK, result)
}

// GetQRCode retorna el QR PNG de la URL de verificación, o su data URI con format=base64
func (api *API) GetQRCode(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, models.NewValidationError("Token required", []models.ErrorDetail{
			{Field: "token", Issue: "Must not be empty"},
		}))
		return
	}

	if c.Query("format") == "base64" {
		uri, err := api.verifier.GenerateQRCodeBase64(token)
		if err != nil {
			api.logger.WithError(err).Error("Error generating QR code")
			c.JSON(http.StatusInternalServerError, models.NewInternalError("Error generating QR code"))
			return
		}
		c.JSON(http.StatusOK, gin.H{"data_uri": uri})
		return
	}

	png, err := api.verifier.GenerateQRCode(token)
	if err != nil {
		api.logger.WithError(err).Error("Error generating QR code")
		c.JSON(http.StatusInternalServerError, models.NewInternalError("Error generating QR code"))
		return
	}

	c.Data(http.StatusOK, "image/png", png)
}

// GetCertificationMetrics retorna las métricas del día
func (api *API) GetCertificationMetrics(c *gin.Context) {
	metrics, err := api.metrics.GetCertificationMetrics(c.Request.Context())
	if err != nil {
		api.writeError(c, err, "Error retrieving metrics")
		return
	}

	c.JSON(http.StatusOK, metrics)
}

// GetRecentActivity retorna la actividad reciente
func (api *API) GetRecentActivity(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	items, err := api.metrics.GetRecentActivity(c.Request.Context(), limit)
	if err != nil {
		api.writeError(c, err, "Error retrieving activity")
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

// AdminAuthMiddleware retorna middleware para autenticación de admin
func (api *API) AdminAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("X-API-Key")
		if apiKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.NewUnauthorizedError("API key required"))
			return
		}
		if api.adminAPIKey == "" || subtle.ConstantTimeCompare([]byte(apiKey), []byte(api.adminAPIKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.NewUnauthorizedError("Invalid API key"))
			return
		}
		c.Next()
	}
}

func (api *API) parseInvoiceID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewValidationError("Invalid invoice ID", []models.ErrorDetail{
			{Field: "id", Issue: "Must be a valid UUID"},
		}))
		return uuid.Nil, false
	}
	return id, true
}

// writeError traduce los errores base a su código HTTP
func (api *API) writeError(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, models.NewNotFoundError(err.Error()))
	case errors.Is(err, models.ErrValidation):
		c.JSON(http.StatusBadRequest, models.NewValidationError(err.Error(), nil))
	case errors.Is(err, models.ErrAlreadyCertified):
		c.JSON(http.StatusConflict, models.NewConflictError(err.Error()))
	case errors.Is(err, models.ErrNoActiveConfig):
		c.JSON(http.StatusConflict, models.NewErrorResponse(models.ErrorCodeConflict, err.Error()))
	case errors.Is(err, models.ErrRemoteUnavailable):
		c.JSON(http.StatusBadGateway, models.NewBadGatewayError(err.Error(), models.ErrorKindNetwork))
	default:
		api.logger.WithError(err).Error(message)
		c.JSON(http.StatusInternalServerError, models.NewInternalError(message))
	}
}
