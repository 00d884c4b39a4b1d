package email

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/hypernova-labs/fne-service/internal/models"
	"github.com/resend/resend-go/v2"
	"github.com/sirupsen/logrus"
)

// maxListedErrors limita las facturas listadas en el resumen de errores
const maxListedErrors = 20

// mailer es la parte del cliente Resend que se usa
type mailer interface {
	Send(params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// ResendService envía alertas al operador usando la API de Resend
type ResendService struct {
	emails        mailer
	fromEmail     string
	operatorEmail string
	logger        *logrus.Logger
}

// NewResendService crea una nueva instancia de ResendService. Sin API key o
// sin email del operador el servicio no envía nada.
func NewResendService(apiKey, fromEmail, operatorEmail string, logger *logrus.Logger) *ResendService {
	s := &ResendService{
		fromEmail:     fromEmail,
		operatorEmail: strings.TrimSpace(operatorEmail),
		logger:        logger,
	}
	if apiKey != "" {
		s.emails = resend.NewClient(apiKey).Emails
	}
	return s
}

// Enabled indica si hay credenciales y destinatario configurados
func (s *ResendService) Enabled() bool {
	return s.emails != nil && s.operatorEmail != ""
}

// NotifyBatchResult envía una alerta de saldo bajo si alguna certificación la
// reportó, y un resumen si el lote tuvo errores
func (s *ResendService) NotifyBatchResult(ctx context.Context, result *models.BatchResult) {
	if !s.Enabled() || result == nil {
		return
	}

	var warning *models.InvoiceOutcome
	for i := range result.Results {
		if result.Results[i].Success && result.Results[i].Warning {
			warning = &result.Results[i]
		}
	}
	if warning != nil {
		if err := s.sendLowBalanceAlert(warning); err != nil {
			s.logger.WithError(err).Warn("Could not send low sticker balance alert")
		}
	}

	if result.ErrorCount > 0 {
		if err := s.sendBatchErrorSummary(result); err != nil {
			s.logger.WithError(err).Warn("Could not send batch error summary")
		}
	}
}

func (s *ResendService) sendLowBalanceAlert(outcome *models.InvoiceOutcome) error {
	subject := "FNE: stock de stickers faible"
	body := fmt.Sprintf(`<p>Le service de certification signale un stock de stickers faible.</p>
<p>Dernière facture certifiée: <strong>%s</strong> (référence %s).</p>
<p>Pensez à renouveler le stock avant qu'il ne soit épuisé.</p>`,
		html.EscapeString(outcome.InvoiceNumber),
		html.EscapeString(outcome.FiscalReference),
	)
	return s.send(subject, body)
}

func (s *ResendService) sendBatchErrorSummary(result *models.BatchResult) error {
	subject := fmt.Sprintf("FNE: %d facture(s) non certifiée(s)", result.ErrorCount)

	var b strings.Builder
	fmt.Fprintf(&b, "<p>Lot du %s: %d traitée(s), %d certifiée(s), %d en erreur.</p>",
		result.StartedAt.Format("02/01/2006 15:04"), result.Total, result.SuccessCount, result.ErrorCount)
	if result.Error != "" {
		fmt.Fprintf(&b, "<p><strong>%s</strong></p>", html.EscapeString(result.Error))
	}

	listed := 0
	b.WriteString("<ul>")
	for _, r := range result.Results {
		if r.Success {
			continue
		}
		if listed == maxListedErrors {
			b.WriteString("<li>...</li>")
			break
		}
		fmt.Fprintf(&b, "<li>%s: [%s] %s</li>",
			html.EscapeString(r.InvoiceNumber), r.ErrorKind, html.EscapeString(r.ErrorMessage))
		listed++
	}
	b.WriteString("</ul>")

	return s.send(subject, b.String())
}

func (s *ResendService) send(subject, htmlContent string) error {
	request := &resend.SendEmailRequest{
		From:    s.fromEmail,
		To:      []string{s.operatorEmail},
		Subject: subject,
		Html:    htmlContent,
	}

	result, err := s.emails.Send(request)
	if err != nil {
		return fmt.Errorf("error sending email via Resend: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"email_id": result.Id,
		"to":       s.operatorEmail,
		"subject":  subject,
	}).Info("Operator alert sent via Resend")

	return nil
}
