package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hypernova-labs/fne-service/internal/models"
	"github.com/hypernova-labs/fne-service/internal/workflows"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAdminKey = "admin-secret"

type fakeCertifier struct {
	outcome    *models.InvoiceOutcome
	err        error
	pending    int
	invoices   []models.PeriodInvoice
	periodFrom time.Time
	periodTo   time.Time
}

func (f *fakeCertifier) CertifyInvoice(ctx context.Context, id uuid.UUID) (*models.InvoiceOutcome, error) {
	return f.outcome, f.err
}

func (f *fakeCertifier) GetPendingInvoicesCount(ctx context.Context) (int, error) {
	return f.pending, nil
}

func (f *fakeCertifier) GetInvoicesForPeriod(ctx context.Context, from, to time.Time) ([]models.PeriodInvoice, error) {
	f.periodFrom, f.periodTo = from, to
	return f.invoices, nil
}

type fakeBatch struct {
	err error
}

func (f *fakeBatch) Run(ctx context.Context, maxCount int) (*models.BatchResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.BatchResult{Total: maxCount}, nil
}

type fakeVerifier struct{}

func (fakeVerifier) ValidateToken(ctx context.Context, token string) *models.TokenValidationResult {
	return &models.TokenValidationResult{IsValid: token == "valid-token", Token: token, Source: models.TokenSourceLocal}
}

func (fakeVerifier) GenerateQRCode(token string) ([]byte, error) {
	return []byte("\x89PNG"), nil
}

func (fakeVerifier) GenerateQRCodeBase64(token string) (string, error) {
	return "data:image/png;base64,iVBO", nil
}

func (fakeVerifier) DownloadCertifiedInvoice(ctx context.Context, invoiceID uuid.UUID) (*models.DownloadedInvoice, error) {
	return nil, fmt.Errorf("invoice %s: %w", invoiceID, models.ErrNotFound)
}

type fakeMetrics struct{}

func (fakeMetrics) GetCertificationMetrics(ctx context.Context) (*models.CertificationMetrics, error) {
	return &models.CertificationMetrics{AttemptsToday: 3}, nil
}

func (fakeMetrics) GetRecentActivity(ctx context.Context, limit int) ([]models.ActivityItem, error) {
	return []models.ActivityItem{}, nil
}

func newTestRouter(certifier *fakeCertifier, batch *fakeBatch) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	router := gin.New()
	NewAPI(certifier, batch, fakeVerifier{}, fakeMetrics{}, testAdminKey, logger).RegisterRoutes(router)
	return router
}

func doRequest(router *gin.Engine, method, path string, admin bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if admin {
		req.Header.Set("X-API-Key", testAdminKey)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAdminRoutesRequireAPIKey(t *testing.T) {
	router := newTestRouter(&fakeCertifier{}, &fakeBatch{})

	w := doRequest(router, http.MethodGet, "/v1/invoices/pending/count", false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/invoices/pending/count", nil)
	req.Header.Set("X-API-Key", "wrong")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetPendingCount(t *testing.T) {
	router := newTestRouter(&fakeCertifier{pending: 4}, &fakeBatch{})

	w := doRequest(router, http.MethodGet, "/v1/invoices/pending/count", true)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]int
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 4, body["pending"])
}

func TestCertifyPendingConflictWhenLocked(t *testing.T) {
	router := newTestRouter(&fakeCertifier{}, &fakeBatch{err: workflows.ErrBatchInProgress})

	w := doRequest(router, http.MethodPost, "/v1/certifications/batch?max=5", true)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCertifyInvoiceErrorMapping(t *testing.T) {
	id := uuid.New()

	cases := []struct {
		name string
		err  error
		code int
	}{
		{"not found", fmt.Errorf("invoice %s: %w", id, models.ErrNotFound), http.StatusNotFound},
		{"already certified", fmt.Errorf("invoice F-1: %w", models.ErrAlreadyCertified), http.StatusConflict},
		{"no configuration", models.ErrNoActiveConfig, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newTestRouter(&fakeCertifier{err: tc.err}, &fakeBatch{})
			w := doRequest(router, http.MethodPost, "/v1/invoices/"+id.String()+"/certify", true)
			assert.Equal(t, tc.code, w.Code)
		})
	}
}

func TestCertifyInvoiceOutcomeStatus(t *testing.T) {
	id := uuid.New()

	router := newTestRouter(&fakeCertifier{outcome: &models.InvoiceOutcome{
		InvoiceID: id, Success: false, ErrorKind: models.ErrorKindTimeout,
	}}, &fakeBatch{})
	w := doRequest(router, http.MethodPost, "/v1/invoices/"+id.String()+"/certify", true)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	router = newTestRouter(&fakeCertifier{outcome: &models.InvoiceOutcome{
		InvoiceID: id, Success: true, Status: models.InvoiceStatusCertified,
	}}, &fakeBatch{})
	w = doRequest(router, http.MethodPost, "/v1/invoices/"+id.String()+"/certify", true)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodPost, "/v1/invoices/not-a-uuid/certify", true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetInvoicesForPeriodInclusiveEnd(t *testing.T) {
	certifier := &fakeCertifier{invoices: []models.PeriodInvoice{{InvoiceNumber: "F-1"}}}
	router := newTestRouter(certifier, &fakeBatch{})

	w := doRequest(router, http.MethodGet, "/v1/invoices?from=2026-01-01&to=2026-01-31", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2026-01-01", certifier.periodFrom.Format(periodDateLayout))
	assert.Equal(t, "2026-02-01", certifier.periodTo.Format(periodDateLayout))

	w = doRequest(router, http.MethodGet, "/v1/invoices?from=2026-01-01&to=2026-01-31&format=xlsx", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".xlsx")
	assert.NotEmpty(t, w.Body.Bytes())

	w = doRequest(router, http.MethodGet, "/v1/invoices?from=bad&to=2026-01-31", true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVerificationRoutesArePublic(t *testing.T) {
	router := newTestRouter(&fakeCertifier{}, &fakeBatch{})

	w := doRequest(router, http.MethodGet, "/v1/verification/valid-token", false)
	require.Equal(t, http.StatusOK, w.Code)
	var result models.TokenValidationResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.IsValid)

	w = doRequest(router, http.MethodGet, "/v1/verification?token=other-token", false)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.False(t, result.IsValid)

	w = doRequest(router, http.MethodGet, "/v1/verification/qr?token=valid-token", false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

	w = doRequest(router, http.MethodGet, "/v1/verification/qr?token=valid-token&format=base64", false)
	require.Equal(t, http.StatusOK, w.Code)
	var qr map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &qr))
	assert.Contains(t, qr["data_uri"], "data:image/png;base64,")

	w = doRequest(router, http.MethodGet, "/v1/verification/qr", false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDownloadNotFound(t *testing.T) {
	router := newTestRouter(&fakeCertifier{}, &fakeBatch{})

	w := doRequest(router, http.MethodGet, "/v1/invoices/"+uuid.NewString()+"/download", true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
