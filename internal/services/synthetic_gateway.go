package services

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hypernova-labs/fne-service/internal/metrics"
	"github.com/hypernova-labs/fne-service/internal/models"
	"github.com/sirupsen/logrus"
)

// SyntheticReferencePrefix identifica las referencias generadas sin servicio remoto
const SyntheticReferencePrefix = "FNE-TEST-"

// SyntheticGateway produce certificaciones de prueba sin tocar la red.
// Solo acepta configuraciones marcadas como test.
type SyntheticGateway struct {
	mu           sync.Mutex
	balance      int
	warningBelow int
	webBase      string
	companyNCC   string
	metrics      *metrics.CertificationMetrics
	logger       *logrus.Logger
	now          func() time.Time
}

// NewSyntheticGateway crea una nueva instancia del gateway sintético
func NewSyntheticGateway(webBase string, startingStock, warningBelow int, m *metrics.CertificationMetrics, logger *logrus.Logger) *SyntheticGateway {
	return &SyntheticGateway{
		balance:      startingStock,
		warningBelow: warningBelow,
		webBase:      strings.TrimRight(webBase, "/"),
		companyNCC:   "TEST0000000A",
		metrics:      m,
		logger:       logger,
		now:          time.Now,
	}
}

// Certify retorna un éxito sintético para configuraciones test y una falla de
// validación para cualquier otra
func (g *SyntheticGateway) Certify(ctx context.Context, req *models.CertificationRequest, cfg *models.CertificationConfig) *models.CertificationResult {
	start := g.now()

	if !cfg.IsTestMode() {
		g.logger.Error("Synthetic certification requested with a non-test configuration")
		result := models.NewFailedResult(models.ErrorKindValidation, "synthetic certification is only allowed in test mode")
		if cfg != nil {
			result.Environment = cfg.Environment
		}
		return result
	}
	if req == nil {
		return models.NewFailedResult(models.ErrorKindValidation, "missing certification request")
	}

	reference := g.nextReference(start)
	token := g.webBase + "/verification/" + uuid.NewString()
	balance, warning := g.consumeSticker()
	ncc := g.companyNCC

	resp := &models.SignResponse{
		NCC:            &ncc,
		Reference:      &reference,
		Token:          &token,
		Warning:        &warning,
		BalanceSticker: &balance,
		Invoice:        syntheticInvoiceBlock(req, reference, start),
	}
	if warning {
		msg := fmt.Sprintf("sticker balance is low: %d remaining", balance)
		resp.WarningMessage = &msg
	}

	elapsed := g.now().Sub(start)
	g.metrics.ObserveAttempt(string(cfg.Environment), true, "", elapsed)
	g.metrics.SetStickerBalance(balance)

	g.logger.WithFields(logrus.Fields{
		"invoice_number": req.InvoiceNumber,
		"reference":      reference,
		"balance":        balance,
	}).Info("Synthetic certification issued")

	return &models.CertificationResult{
		Success:     true,
		Synthetic:   true,
		Response:    resp,
		ProcessedAt: g.now().UTC(),
		Elapsed:     elapsed,
		HTTPStatus:  200,
		Endpoint:    signPath,
		Method:      "POST",
		Environment: cfg.Environment,
	}
}

// Balance retorna el saldo de timbres sintético restante
func (g *SyntheticGateway) Balance() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.balance
}

func (g *SyntheticGateway) consumeSticker() (int, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.balance > 0 {
		g.balance--
	}
	return g.balance, g.balance < g.warningBelow
}

func (g *SyntheticGateway) nextReference(at time.Time) string {
	id := uuid.New()
	return SyntheticReferencePrefix + at.UTC().Format("20060102") + "-" + strings.ToUpper(hex.EncodeToString(id[:4]))
}

func syntheticInvoiceBlock(req *models.CertificationRequest, reference string, at time.Time) *models.SignResponseInvoice {
	id := uuid.NewString()
	date := at.UTC().Format(time.RFC3339)
	invoiceType := string(req.InvoiceType)
	amount := req.Totals.AmountTTC
	vat := req.Totals.AmountTVA

	block := &models.SignResponseInvoice{
		ID:            &id,
		Reference:     &reference,
		Type:          &invoiceType,
		Date:          &date,
		PaymentMethod: &req.PaymentMethod,
		Amount:        &amount,
		VatAmount:     &vat,
	}
	if req.ParentReference != "" {
		block.ParentReference = &req.ParentReference
	}
	if req.Client.NCC != "" {
		block.ClientNCC = &req.Client.NCC
	}
	if name := req.Client.CompanyName; name != "" {
		block.ClientCompanyName = &name
	} else if req.Client.Name != "" {
		block.ClientCompanyName = &req.Client.Name
	}
	return block
}
