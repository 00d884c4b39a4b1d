package services

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/hypernova-labs/fne-service/internal/models"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Códigos de forma de pago aceptados por el servicio FNE
const (
	PaymentCash         = "cash"
	PaymentCard         = "card"
	PaymentMobileMoney  = "mobile-money"
	PaymentBankTransfer = "bank-transfer"
	PaymentCheck        = "check"
	PaymentDeferred     = "deferred"
)

const (
	TemplateB2B = "B2B"
	TemplateB2C = "B2C"

	defaultMeasurementUnit = "pcs"
)

// paymentMethodTable mapea el texto libre ya normalizado a su código
var paymentMethodTable = map[string]string{
	"especes":           PaymentCash,
	"espece":            PaymentCash,
	"cash":              PaymentCash,
	"liquide":           PaymentCash,
	"carte":             PaymentCard,
	"carte bancaire":    PaymentCard,
	"card":              PaymentCard,
	"cb":                PaymentCard,
	"mobile money":      PaymentMobileMoney,
	"mobile-money":      PaymentMobileMoney,
	"mobile":            PaymentMobileMoney,
	"orange money":      PaymentMobileMoney,
	"mtn money":         PaymentMobileMoney,
	"moov money":        PaymentMobileMoney,
	"wave":              PaymentMobileMoney,
	"virement":          PaymentBankTransfer,
	"virement bancaire": PaymentBankTransfer,
	"bank transfer":     PaymentBankTransfer,
	"bank-transfer":     PaymentBankTransfer,
	"transfer":          PaymentBankTransfer,
	"cheque":            PaymentCheck,
	"check":             PaymentCheck,
	"a terme":           PaymentDeferred,
	"credit":            PaymentDeferred,
	"differe":           PaymentDeferred,
	"deferred":          PaymentDeferred,
}

// normalizePaymentText quita acentos, pasa a minúsculas y colapsa espacios
func normalizePaymentText(s string) string {
	t := transform.Chain(norm.NFD, transform.RemoveFunc(func(r rune) bool {
		return unicode.Is(unicode.Mn, r)
	}))
	result, _, err := transform.String(t, s)
	if err != nil {
		result = s
	}
	result = strings.ToLower(result)
	result = strings.ReplaceAll(result, "_", " ")
	return strings.Join(strings.Fields(result), " ")
}

// MapPaymentMethod traduce la forma de pago registrada al código FNE.
// Un valor desconocido o vacío se envía como efectivo.
func MapPaymentMethod(raw string) string {
	if code, ok := paymentMethodTable[normalizePaymentText(raw)]; ok {
		return code
	}
	return PaymentCash
}

// ToExternalFormat convierte una factura al request de firma del servicio FNE.
// Es una función pura: la misma factura produce siempre el mismo request.
func ToExternalFormat(inv *models.Invoice) (*models.CertificationRequest, error) {
	if inv == nil {
		return nil, fmt.Errorf("nil invoice: %w", models.ErrValidation)
	}

	req := &models.CertificationRequest{
		InvoiceNumber:   inv.InvoiceNumber,
		InvoiceType:     inv.Type,
		Template:        TemplateB2C,
		Date:            inv.InvoiceDate.UTC().Format(time.RFC3339),
		PointOfSale:     inv.PointOfSale,
		Establishment:   inv.Establishment,
		PaymentMethod:   MapPaymentMethod(inv.PaymentMethod),
		ParentReference: inv.ParentReference,
		Totals: models.CertificationTotals{
			AmountHT:  inv.Subtotal,
			AmountTVA: inv.TaxAmount,
			AmountTTC: inv.TotalAmount,
		},
		Items: make([]models.CertificationItem, 0, len(inv.Items)),
	}
	if req.InvoiceType == "" {
		req.InvoiceType = models.InvoiceTypeSale
	}

	if c := inv.Client; c != nil {
		req.Client = models.CertificationClient{
			Name:        c.Name,
			CompanyName: c.CompanyName,
			NCC:         deref(c.NCC),
			Address:     deref(c.AddressLine),
			Phone:       deref(c.Phone),
			Email:       deref(c.Email),
		}
		if req.Client.NCC != "" {
			req.Template = TemplateB2B
		}
	}

	for _, item := range inv.Items {
		unit := strings.TrimSpace(item.MeasurementUnit)
		if unit == "" {
			unit = defaultMeasurementUnit
		}
		taxCode := item.TaxCode
		if taxCode == "" {
			taxCode = models.TaxCodeTVA
		}

		req.Items = append(req.Items, models.CertificationItem{
			Reference:       item.Reference,
			Description:     item.Description,
			Quantity:        item.Quantity,
			UnitPrice:       item.UnitPrice,
			Discount:        item.Discount,
			Amount:          item.LineTotal,
			Taxes:           []models.TaxCode{taxCode},
			TaxRate:         item.TaxRate,
			TaxAmount:       item.TaxAmount,
			MeasurementUnit: unit,
			CustomTaxes:     item.CustomTaxes,
		})
	}

	return req, nil
}

// Encode serializa el request. Dos llamadas sobre el mismo request producen los mismos bytes.
func Encode(req *models.CertificationRequest) ([]byte, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("error encoding certification request: %w", err)
	}
	return data, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
