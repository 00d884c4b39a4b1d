package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hypernova-labs/fne-service/internal/metrics"
	"github.com/hypernova-labs/fne-service/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	signPath     = "/external/invoices/sign"
	verifyPath   = "/external/invoices/verify/"
	downloadPath = "/external/invoices/%s/download"

	defaultGatewayTimeout = 30 * time.Second
	maxResponseBody       = 1 << 20
)

// maxDownloadBody limita el PDF descargado del servicio remoto
var maxDownloadBody int64 = 20 << 20

// Gateway certifica un request ya convertido. Nunca retorna error:
// toda falla queda clasificada dentro del resultado.
type Gateway interface {
	Certify(ctx context.Context, req *models.CertificationRequest, cfg *models.CertificationConfig) *models.CertificationResult
}

// GatewayRouter elige el gateway según el ambiente de la configuración activa
type GatewayRouter struct {
	remote    Gateway
	synthetic Gateway
}

// NewGatewayRouter crea una nueva instancia del router
func NewGatewayRouter(remote, synthetic Gateway) *GatewayRouter {
	return &GatewayRouter{remote: remote, synthetic: synthetic}
}

// SelectGateway retorna el gateway sintético solo para configuraciones marcadas test
func (r *GatewayRouter) SelectGateway(cfg *models.CertificationConfig) Gateway {
	if cfg.IsTestMode() {
		return r.synthetic
	}
	return r.remote
}

// Certify delega en el gateway seleccionado
func (r *GatewayRouter) Certify(ctx context.Context, req *models.CertificationRequest, cfg *models.CertificationConfig) *models.CertificationResult {
	return r.SelectGateway(cfg).Certify(ctx, req, cfg)
}

// RemoteGateway habla con el servicio FNE por HTTP
type RemoteGateway struct {
	httpClient *http.Client
	metrics    *metrics.CertificationMetrics
	logger     *logrus.Logger
}

// NewRemoteGateway crea una nueva instancia del gateway remoto
func NewRemoteGateway(httpClient *http.Client, m *metrics.CertificationMetrics, logger *logrus.Logger) *RemoteGateway {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &RemoteGateway{
		httpClient: httpClient,
		metrics:    m,
		logger:     logger,
	}
}

// Certify envía POST {baseURL}/external/invoices/sign. Un solo intento por llamada.
func (g *RemoteGateway) Certify(ctx context.Context, req *models.CertificationRequest, cfg *models.CertificationConfig) *models.CertificationResult {
	start := time.Now()
	result := g.certify(ctx, req, cfg)
	result.Elapsed = time.Since(start)
	result.ProcessedAt = time.Now().UTC()
	if cfg != nil {
		result.Environment = cfg.Environment
	}

	g.metrics.ObserveAttempt(string(result.Environment), result.Success, string(result.ErrorKind), result.Elapsed)

	fields := logrus.Fields{
		"invoice_number": invoiceNumberOf(req),
		"http_status":    result.HTTPStatus,
		"elapsed_ms":     result.Elapsed.Milliseconds(),
	}
	if result.Success {
		g.logger.WithFields(fields).Info("Invoice signed by certification service")
	} else {
		fields["error_kind"] = result.ErrorKind
		g.logger.WithFields(fields).Warnf("Certification call failed: %s", result.ErrorMessage)
	}

	return result
}

func (g *RemoteGateway) certify(ctx context.Context, req *models.CertificationRequest, cfg *models.CertificationConfig) *models.CertificationResult {
	if cfg == nil {
		return models.NewFailedResult(models.ErrorKindValidation, "no active configuration")
	}

	body, err := Encode(req)
	if err != nil {
		return models.NewFailedResult(models.ErrorKindValidation, err.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, gatewayTimeout(cfg))
	defer cancel()

	endpoint := joinURL(cfg.BaseURL, signPath)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return models.NewFailedResult(models.ErrorKindValidation, fmt.Sprintf("invalid base URL: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	result := &models.CertificationResult{
		Endpoint:    signPath,
		Method:      http.MethodPost,
		RequestBody: string(body),
	}

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		result.ErrorKind = classifyTransportError(ctx, err)
		result.ErrorMessage = transportMessage(result.ErrorKind)
		result.RawResponse = err.Error()
		return result
	}
	defer resp.Body.Close()

	result.HTTPStatus = resp.StatusCode
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		result.ErrorKind = classifyTransportError(ctx, err)
		result.ErrorMessage = transportMessage(result.ErrorKind)
		result.RawResponse = err.Error()
		return result
	}
	result.RawResponse = string(raw)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		result.ErrorKind = models.ErrorKindRemoteRejected
		result.ErrorMessage = fmt.Sprintf("certification service returned status %d", resp.StatusCode)
		return result
	}

	var signed models.SignResponse
	if err := json.Unmarshal(raw, &signed); err != nil {
		result.ErrorKind = models.ErrorKindRemoteRejected
		result.ErrorMessage = "invalid response body"
		return result
	}

	result.Success = true
	result.Response = &signed
	return result
}

// VerifyToken consulta la verificación pública de un token (sin autenticación)
func (g *RemoteGateway) VerifyToken(ctx context.Context, cfg *models.CertificationConfig, token string) (*models.RemoteVerification, int, error) {
	ctx, cancel := context.WithTimeout(ctx, gatewayTimeout(cfg))
	defer cancel()

	endpoint := joinURL(cfg.BaseURL, verifyPath+url.PathEscape(token))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("error creating verify request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", models.ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, nil
	}

	var verification models.RemoteVerification
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&verification); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("error decoding verify response: %w", err)
	}

	return &verification, resp.StatusCode, nil
}

// DownloadPDF descarga el PDF certificado identificado por tokenID
func (g *RemoteGateway) DownloadPDF(ctx context.Context, cfg *models.CertificationConfig, tokenID string) ([]byte, string, int, error) {
	ctx, cancel := context.WithTimeout(ctx, gatewayTimeout(cfg))
	defer cancel()

	endpoint := joinURL(cfg.BaseURL, fmt.Sprintf(downloadPath, url.PathEscape(tokenID)))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, "", 0, fmt.Errorf("error creating download request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	httpReq.Header.Set("Accept", "application/pdf")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, "", 0, fmt.Errorf("%w: %v", models.ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", resp.StatusCode, fmt.Errorf("%w: download returned status %d", models.ErrRemoteUnavailable, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBody+1))
	if err != nil {
		return nil, "", resp.StatusCode, fmt.Errorf("error reading download body: %w", err)
	}
	if int64(len(data)) > maxDownloadBody {
		return nil, "", resp.StatusCode, fmt.Errorf("download exceeds %d bytes", maxDownloadBody)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/pdf"
	}

	return data, contentType, resp.StatusCode, nil
}

// classifyTransportError separa los timeouts y las cancelaciones del resto de
// fallas de red
func classifyTransportError(ctx context.Context, err error) models.ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return models.ErrorKindTimeout
	}
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return models.ErrorKindCancelled
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return models.ErrorKindTimeout
	}
	return models.ErrorKindNetwork
}

func transportMessage(kind models.ErrorKind) string {
	switch kind {
	case models.ErrorKindTimeout:
		return "certification service timed out"
	case models.ErrorKindCancelled:
		return "certification call cancelled"
	}
	return "certification service unreachable"
}

func gatewayTimeout(cfg *models.CertificationConfig) time.Duration {
	if cfg == nil || cfg.Timeout <= 0 {
		return defaultGatewayTimeout
	}
	return cfg.Timeout
}

func joinURL(base, path string) string {
	return strings.TrimRight(strings.TrimSpace(base), "/") + path
}

func invoiceNumberOf(req *models.CertificationRequest) string {
	if req == nil {
		return ""
	}
	return req.InvoiceNumber
}
