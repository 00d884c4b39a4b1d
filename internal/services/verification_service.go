package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/hypernova-labs/fne-service/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	minTokenLength      = 8
	tokenCacheKeyPrefix = "fne:verify:"
)

// VerificationInvoiceStore resuelve facturas por ID o por token de verificación
type VerificationInvoiceStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	FindCertifiedByToken(ctx context.Context, token string) (*models.Invoice, error)
}

// RemoteVerifier son las consultas públicas y de descarga del servicio FNE
type RemoteVerifier interface {
	VerifyToken(ctx context.Context, cfg *models.CertificationConfig, token string) (*models.RemoteVerification, int, error)
	DownloadPDF(ctx context.Context, cfg *models.CertificationConfig, tokenID string) ([]byte, string, int, error)
}

// TokenCache guarda verificaciones remotas ya resueltas
type TokenCache interface {
	GetCached(ctx context.Context, key string) (string, bool, error)
	SetCached(ctx context.Context, key, value string, ttl time.Duration) error
}

// AuditLog agrega entradas sueltas al log de auditoría
type AuditLog interface {
	Append(ctx context.Context, entry *models.APILogEntry) error
}

// DocumentArchiver archiva los PDFs certificados descargados
type DocumentArchiver interface {
	StoreCertifiedPDF(ctx context.Context, invoiceID uuid.UUID, fileName string, data []byte) (*models.CertifiedDocument, error)
	Fetch(ctx context.Context, invoiceID uuid.UUID) (*models.CertifiedDocument, []byte, error)
}

// VerificationService maneja tokens de verificación, QR y descargas de PDFs certificados
type VerificationService struct {
	invoices  VerificationInvoiceStore
	configs   ConfigStore
	remote    RemoteVerifier
	cache     TokenCache
	logs      AuditLog
	documents *DocumentGenerator
	archive   DocumentArchiver
	webBase   string
	cacheTTL  time.Duration
	logger    *logrus.Logger
	now       func() time.Time
}

// VerificationServiceOptions agrupa las dependencias opcionales del servicio
type VerificationServiceOptions struct {
	WebBase  string
	CacheTTL time.Duration
	Cache    TokenCache
	Archive  DocumentArchiver
}

// NewVerificationService crea una nueva instancia del servicio
func NewVerificationService(
	invoices VerificationInvoiceStore,
	configs ConfigStore,
	remote RemoteVerifier,
	logs AuditLog,
	documents *DocumentGenerator,
	opts VerificationServiceOptions,
	logger *logrus.Logger,
) *VerificationService {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 24 * time.Hour
	}
	return &VerificationService{
		invoices:  invoices,
		configs:   configs,
		remote:    remote,
		cache:     opts.Cache,
		logs:      logs,
		documents: documents,
		archive:   opts.Archive,
		webBase:   strings.TrimRight(opts.WebBase, "/"),
		cacheTTL:  opts.CacheTTL,
		logger:    logger,
		now:       time.Now,
	}
}

// VerificationURL retorna la URL pública de verificación de un token.
// Una URL http(s) absoluta se retorna sin cambios, por lo que es idempotente.
func (s *VerificationService) VerificationURL(token string) string {
	token = strings.TrimSpace(token)
	if isAbsoluteHTTPURL(token) {
		return token
	}
	return s.webBase + "/verification/" + url.PathEscape(token)
}

// GenerateQRCode genera el PNG del QR de verificación. Un token vacío retorna nil, nil.
func (s *VerificationService) GenerateQRCode(token string) ([]byte, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}
	return encodeQRPNG(s.VerificationURL(token))
}

// GenerateQRCodeBase64 retorna el QR como data URI. Un token vacío retorna "".
func (s *VerificationService) GenerateQRCodeBase64(token string) (string, error) {
	data, err := s.GenerateQRCode(token)
	if err != nil || data == nil {
		return "", err
	}
	return pngDataURI(data), nil
}

// ValidateToken verifica un token contra la base local, su forma de URL y el
// servicio remoto. Un token desconocido produce IsValid=false, nunca un error.
func (s *VerificationService) ValidateToken(ctx context.Context, token string) *models.TokenValidationResult {
	token = strings.TrimSpace(token)
	result := &models.TokenValidationResult{Token: token, Source: models.TokenSourceNone}

	if token == "" {
		result.Message = "token is empty"
		return result
	}
	if utf8.RuneCountInString(token) < minTokenLength {
		result.Message = "token too short"
		return result
	}

	inv, err := s.invoices.FindCertifiedByToken(ctx, token)
	if err != nil {
		s.logger.WithError(err).Warn("Local token lookup failed")
	}
	if inv != nil {
		invoiceID := inv.ID
		result.IsValid = true
		result.Source = models.TokenSourceLocal
		result.TokenURL = s.VerificationURL(inv.VerificationToken)
		result.InvoiceID = &invoiceID
		result.InvoiceNumber = inv.InvoiceNumber
		result.FiscalReference = inv.FiscalReference
		result.CertifiedAt = inv.CertifiedAt
		result.Amount = inv.TotalAmount
		result.TaxAmount = inv.TaxAmount
		result.ClientName = inv.Client.DisplayName()
		result.Message = "certified invoice found"
		return result
	}

	if isAbsoluteHTTPURL(token) {
		result.IsValid = true
		result.Source = models.TokenSourceURL
		result.TokenURL = token
		result.Message = "verification URL"
		return result
	}

	if verification := s.verifyRemote(ctx, token); verification != nil {
		result.IsValid = true
		result.Source = models.TokenSourceRemote
		result.TokenURL = s.VerificationURL(token)
		result.FiscalReference = verification.Reference
		result.Amount = verification.Amount
		result.TaxAmount = verification.VatAmount
		result.ClientName = verification.ClientName
		result.CompanyName = verification.CompanyName
		if t := parseResponseDate(verification.Date); !t.IsZero() {
			result.CertifiedAt = &t
		}
		result.Message = "verified by certification service"
		return result
	}

	result.Message = "token not recognized"
	return result
}

// verifyRemote consulta el cache y luego el servicio remoto. Retorna nil si no hay verificación.
func (s *VerificationService) verifyRemote(ctx context.Context, token string) *models.RemoteVerification {
	cfg, err := s.configs.GetActive(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Could not load configuration for remote verification")
		return nil
	}
	if cfg == nil || cfg.IsTestMode() || strings.TrimSpace(cfg.BaseURL) == "" || s.remote == nil {
		return nil
	}

	key := tokenCacheKeyPrefix + token
	if s.cache != nil {
		if cached, found, err := s.cache.GetCached(ctx, key); err != nil {
			s.logger.WithError(err).Debug("Token cache read failed")
		} else if found {
			var v models.RemoteVerification
			if err := json.Unmarshal([]byte(cached), &v); err == nil {
				return &v
			}
		}
	}

	start := s.now()
	verification, status, err := s.remote.VerifyToken(ctx, cfg, token)
	elapsed := s.now().Sub(start)

	entry := &models.APILogEntry{
		ID:          uuid.New(),
		Operation:   models.OperationVerification,
		Endpoint:    verifyPath + token,
		Method:      http.MethodGet,
		HTTPStatus:  status,
		ElapsedMs:   elapsed.Milliseconds(),
		Success:     err == nil && verification != nil,
		Attempt:     1,
		Environment: cfg.Environment,
		CreatedAt:   s.now().UTC(),
	}
	if err != nil {
		entry.ErrorKind = downloadErrorKind(ctx, entry.HTTPStatus, err)
		entry.ErrorMessage = err.Error()
	} else if verification == nil {
		entry.ErrorKind = models.ErrorKindRemoteRejected
		entry.ErrorMessage = fmt.Sprintf("verification returned status %d", status)
	}
	s.appendLog(ctx, entry)

	if err != nil || verification == nil {
		return nil
	}

	if s.cache != nil {
		if data, err := json.Marshal(verification); err == nil {
			if err := s.cache.SetCached(ctx, key, string(data), s.cacheTTL); err != nil {
				s.logger.WithError(err).Debug("Token cache write failed")
			}
		}
	}

	return verification
}

// DownloadCertifiedInvoice obtiene el PDF certificado de una factura
func (s *VerificationService) DownloadCertifiedInvoice(ctx context.Context, invoiceID uuid.UUID) (*models.DownloadedInvoice, error) {
	inv, err := s.invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if !inv.IsCertified() || strings.TrimSpace(inv.VerificationToken) == "" {
		return nil, fmt.Errorf("invoice %s has no verification token: %w", inv.InvoiceNumber, models.ErrValidation)
	}

	cfg, err := s.configs.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("error loading configuration: %w", err)
	}
	if cfg == nil {
		return nil, models.ErrNoActiveConfig
	}

	fileName := fmt.Sprintf("FNE_%s_%s.pdf", safeFileComponent(inv.InvoiceNumber), safeFileComponent(inv.FiscalReference))
	tokenID := lastPathSegment(inv.VerificationToken)

	entryInvoiceID := inv.ID
	entry := &models.APILogEntry{
		ID:          uuid.New(),
		InvoiceID:   &entryInvoiceID,
		Operation:   models.OperationDownload,
		Endpoint:    fmt.Sprintf(downloadPath, tokenID),
		Method:      http.MethodGet,
		Attempt:     1,
		Environment: cfg.Environment,
		Amount:      inv.TotalAmount,
	}

	start := s.now()
	var data []byte
	contentType := "application/pdf"

	if cfg.IsTestMode() || strings.HasPrefix(inv.FiscalReference, SyntheticReferencePrefix) {
		var qrPNG []byte
		qrPNG, err = s.GenerateQRCode(inv.VerificationToken)
		if err == nil {
			data, err = s.documents.GenerateCertifiedPDF(inv, s.VerificationURL(inv.VerificationToken), qrPNG)
		}
		entry.Endpoint = "local"
		if err == nil {
			entry.HTTPStatus = http.StatusOK
		}
	} else {
		data, contentType, entry.HTTPStatus, err = s.remote.DownloadPDF(ctx, cfg, tokenID)
	}

	entry.ElapsedMs = s.now().Sub(start).Milliseconds()
	entry.CreatedAt = s.now().UTC()
	entry.Success = err == nil
	if err != nil {
		entry.ErrorKind = downloadErrorKind(ctx, entry.HTTPStatus, err)
		entry.ErrorMessage = err.Error()
	}
	s.appendLog(ctx, entry)

	if err != nil {
		if archived := s.fetchArchived(ctx, inv); archived != nil {
			return archived, nil
		}
		return nil, fmt.Errorf("error downloading certified invoice: %w", err)
	}

	downloaded := &models.DownloadedInvoice{
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		FiscalReference: inv.FiscalReference,
		FileName:        fileName,
		ContentType:     contentType,
		Size:            int64(len(data)),
		Data:            data,
	}

	if s.archive != nil {
		doc, err := s.archive.StoreCertifiedPDF(ctx, inv.ID, fileName, data)
		if err != nil {
			s.logger.WithError(err).WithField("invoice_id", inv.ID).Warn("Could not archive certified PDF")
		} else if doc != nil {
			downloaded.ArchiveURL = doc.PublicURL
		}
	}

	return downloaded, nil
}

// downloadErrorKind clasifica una descarga fallida: con status HTTP el servicio
// respondió y la rechazó; sin status es una falla de transporte
func downloadErrorKind(ctx context.Context, status int, err error) models.ErrorKind {
	if status > 0 {
		return models.ErrorKindRemoteRejected
	}
	return classifyTransportError(ctx, err)
}

// fetchArchived sirve la copia archivada cuando el servicio remoto no responde
func (s *VerificationService) fetchArchived(ctx context.Context, inv *models.Invoice) *models.DownloadedInvoice {
	if s.archive == nil {
		return nil
	}
	doc, data, err := s.archive.Fetch(ctx, inv.ID)
	if err != nil {
		return nil
	}

	s.logger.WithField("invoice_id", inv.ID).Info("Serving archived certified PDF")
	return &models.DownloadedInvoice{
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		FiscalReference: inv.FiscalReference,
		FileName:        doc.FileName,
		ContentType:     "application/pdf",
		Size:            int64(len(data)),
		ArchiveURL:      doc.PublicURL,
		Data:            data,
	}
}

func (s *VerificationService) appendLog(ctx context.Context, entry *models.APILogEntry) {
	if s.logs == nil {
		return
	}
	if err := s.logs.Append(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.WithError(err).WithField("operation", entry.Operation).Warn("Could not write audit log entry")
	}
}

func isAbsoluteHTTPURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// lastPathSegment extrae el identificador final de una URL de verificación
func lastPathSegment(token string) string {
	token = strings.TrimRight(strings.TrimSpace(token), "/")
	if u, err := url.Parse(token); err == nil && u.Path != "" && u.Host != "" {
		token = u.Path
	}
	if i := strings.LastIndex(token, "/"); i >= 0 {
		return token[i+1:]
	}
	return token
}

func safeFileComponent(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "NA"
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, s)
}
