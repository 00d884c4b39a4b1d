package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hypernova-labs/fne-service/internal/metrics"
	"github.com/hypernova-labs/fne-service/internal/models"
	"github.com/sirupsen/logrus"
)

// FallbackHashPrefix marca los hashes de integridad que no pudieron calcularse
const FallbackHashPrefix = "FALLBACK-"

// ReconciliationStore persiste la factura y su entrada de auditoría juntas
type ReconciliationStore interface {
	SaveReconciliation(ctx context.Context, inv *models.Invoice, entry *models.APILogEntry) error
}

// Hasher calcula el hash de integridad de una certificación
type Hasher func(data []byte) (string, error)

// SHA256Hasher es el hasher por defecto (hex en minúsculas)
func SHA256Hasher(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Reconciler pliega el resultado de un intento en la factura y en el log de auditoría
type Reconciler struct {
	store   ReconciliationStore
	hasher  Hasher
	metrics *metrics.CertificationMetrics
	logger  *logrus.Logger
	now     func() time.Time
}

// NewReconciler crea una nueva instancia del reconciliador
func NewReconciler(store ReconciliationStore, m *metrics.CertificationMetrics, logger *logrus.Logger) *Reconciler {
	return &Reconciler{
		store:   store,
		hasher:  SHA256Hasher,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// Reconcile aplica el resultado a la factura y escribe una entrada de auditoría.
// Si la persistencia falla la factura en memoria no cambia y se retorna un
// error que envuelve models.ErrPersistence.
func (r *Reconciler) Reconcile(ctx context.Context, inv *models.Invoice, result *models.CertificationResult) error {
	if inv == nil {
		return fmt.Errorf("nil invoice: %w", models.ErrValidation)
	}
	if result == nil {
		result = models.NewFailedResult(models.ErrorKindNetwork, "missing certification result")
	}
	if result.ProcessedAt.IsZero() {
		result.ProcessedAt = r.now().UTC()
	}

	if result.Success {
		resolveSignResponse(result)
		if result.FiscalReference == "" || result.Token == "" {
			result.Success = false
			result.ErrorKind = models.ErrorKindIntegrity
			result.ErrorMessage = "certification response missing fiscal reference or token"
		}
	}

	attempt := inv.RetryCount + 1
	updated := *inv
	processedAt := result.ProcessedAt
	updated.LastAttemptAt = &processedAt
	updated.UpdatedAt = r.now().UTC()

	if result.Success {
		r.applySuccess(&updated, result)
	} else {
		applyFailure(&updated, result)
	}

	entry := r.buildLogEntry(inv, result, attempt)

	if err := r.store.SaveReconciliation(ctx, &updated, entry); err != nil {
		r.logger.WithFields(logrus.Fields{
			"invoice_id":     inv.ID,
			"invoice_number": inv.InvoiceNumber,
			"success":        result.Success,
		}).WithError(err).Error("Failed to persist certification outcome")
		return fmt.Errorf("%w: invoice %s: %v", models.ErrPersistence, inv.InvoiceNumber, err)
	}

	*inv = updated

	if result.Success && result.StickerBalance != nil {
		r.metrics.SetStickerBalance(*result.StickerBalance)
	}

	return nil
}

func (r *Reconciler) applySuccess(inv *models.Invoice, result *models.CertificationResult) {
	processedAt := result.ProcessedAt

	inv.Status = models.InvoiceStatusCertified
	inv.FiscalReference = result.FiscalReference
	inv.VerificationToken = result.Token
	inv.QRPayload = result.Token
	inv.CompanyNCC = result.CompanyNCC
	inv.StickerBalance = result.StickerBalance
	inv.Warning = result.Warning
	inv.WarningMessage = result.WarningMessage
	inv.ProcessingStatus = models.ProcessingStatusCertified
	inv.CertifiedAt = &processedAt
	inv.ErrorMessage = ""
	inv.ErrorKind = ""

	if inv.ParentReference == "" && result.Invoice != nil {
		inv.ParentReference = result.Invoice.ParentReference
	}

	inv.IntegrityHash = r.integrityHash(inv.InvoiceNumber, result)
}

func applyFailure(inv *models.Invoice, result *models.CertificationResult) {
	message := strings.TrimSpace(result.ErrorMessage)
	if message == "" {
		message = "certification failed"
	}
	kind := result.ErrorKind
	if kind == "" {
		kind = models.ErrorKindNetwork
	}

	inv.Status = models.InvoiceStatusError
	inv.RetryCount++
	inv.ErrorMessage = message
	inv.ErrorKind = kind
	inv.ProcessingStatus = models.ProcessingStatusFailed
}

// integrityHash = SHA-256(invoiceNumber|reference|token|processedAt)
func (r *Reconciler) integrityHash(invoiceNumber string, result *models.CertificationResult) string {
	data := strings.Join([]string{
		invoiceNumber,
		result.FiscalReference,
		result.Token,
		result.ProcessedAt.UTC().Format(time.RFC3339Nano),
	}, "|")

	hash, err := r.hasher([]byte(data))
	if err != nil || hash == "" {
		r.logger.WithError(err).WithField("invoice_number", invoiceNumber).Warn("Integrity hash failed, using fallback")
		return FallbackHashPrefix + uuid.NewString()
	}
	return hash
}

func (r *Reconciler) buildLogEntry(inv *models.Invoice, result *models.CertificationResult, attempt int) *models.APILogEntry {
	invoiceID := inv.ID
	endpoint := result.Endpoint
	if endpoint == "" {
		endpoint = signPath
	}
	method := result.Method
	if method == "" {
		method = http.MethodPost
	}

	entry := &models.APILogEntry{
		ID:           uuid.New(),
		InvoiceID:    &invoiceID,
		Operation:    models.OperationCertification,
		Endpoint:     endpoint,
		Method:       method,
		RequestBody:  result.RequestBody,
		ResponseBody: result.RawResponse,
		HTTPStatus:   result.HTTPStatus,
		ElapsedMs:    result.Elapsed.Milliseconds(),
		Success:      result.Success,
		Attempt:      attempt,
		Environment:  result.Environment,
		Amount:       inv.TotalAmount,
		CreatedAt:    r.now().UTC(),
	}
	if !result.Success {
		entry.ErrorKind = result.ErrorKind
		entry.ErrorMessage = result.ErrorMessage
	}
	return entry
}

// resolveSignResponse es el único punto donde se resuelven los nombres de campo
// de la respuesta: nombre actual, luego alias legado, luego valor por defecto.
func resolveSignResponse(result *models.CertificationResult) {
	resp := result.Response
	if resp == nil {
		return
	}

	var nested *models.SignResponseInvoice
	if resp.Invoice != nil {
		nested = resp.Invoice
	} else {
		nested = &models.SignResponseInvoice{}
	}

	result.FiscalReference = firstString(result.FiscalReference, resp.Reference, resp.FiscalRef, nested.Reference)
	result.Token = firstString(result.Token, resp.Token, resp.VerifyToken)
	result.CompanyNCC = firstString(result.CompanyNCC, resp.NCC, resp.CompanyNCC)
	if result.StickerBalance == nil {
		result.StickerBalance = firstInt(resp.BalanceSticker, resp.BalanceLegacy, resp.BalanceFunds)
	}
	if resp.Warning != nil {
		result.Warning = *resp.Warning
	}
	result.WarningMessage = firstString(result.WarningMessage, resp.WarningMessage)

	if resp.Invoice != nil {
		result.Invoice = &models.CertifiedInvoiceDetail{
			ID:                firstString("", nested.ID),
			ParentID:          firstString("", nested.ParentID),
			ParentReference:   firstString("", nested.ParentReference),
			Reference:         firstString("", nested.Reference, resp.Reference),
			Type:              firstString("", nested.Type),
			Subtype:           firstString("", nested.Subtype),
			Date:              parseResponseDate(firstString("", nested.Date)),
			PaymentMethod:     firstString("", nested.PaymentMethod),
			Amount:            floatOr(nested.Amount),
			VatAmount:         floatOr(nested.VatAmount),
			FiscalStamp:       floatOr(nested.FiscalStamp),
			Discount:          floatOr(nested.Discount),
			ClientNCC:         firstString("", nested.ClientNCC),
			ClientCompanyName: firstString("", nested.ClientCompanyName),
			ClientPhone:       firstString("", nested.ClientPhone),
			ClientEmail:       firstString("", nested.ClientEmail),
		}
	}
}

func firstString(current string, candidates ...*string) string {
	if current != "" {
		return current
	}
	for _, c := range candidates {
		if c != nil && strings.TrimSpace(*c) != "" {
			return strings.TrimSpace(*c)
		}
	}
	return ""
}

func firstInt(candidates ...*int) *int {
	for _, c := range candidates {
		if c != nil {
			v := *c
			return &v
		}
	}
	return nil
}

func floatOr(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func parseResponseDate(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
