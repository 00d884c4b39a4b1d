package services

import (
	"testing"

	"github.com/hypernova-labs/fne-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapPaymentMethod(t *testing.T) {
	cases := map[string]string{
		"Espèces":           PaymentCash,
		"  CARTE  bancaire": PaymentCard,
		"Orange Money":      PaymentMobileMoney,
		"virement_bancaire": PaymentBankTransfer,
		"Chèque":            PaymentCheck,
		"À terme":           PaymentDeferred,
		"":                  PaymentCash,
		"troc":              PaymentCash,
	}
	for raw, want := range cases {
		assert.Equal(t, want, MapPaymentMethod(raw), raw)
	}
}

func TestToExternalFormat(t *testing.T) {
	inv := testInvoice("F-010", 1180)
	inv.Type = ""
	inv.Items[0].TaxCode = ""
	inv.Items = append(inv.Items, models.InvoiceItem{
		Description: "Transport", Quantity: 1, UnitPrice: 100, LineTotal: 100,
		TaxCode: models.TaxCodeTVAB, MeasurementUnit: "forfait",
	})

	req, err := ToExternalFormat(inv)
	require.NoError(t, err)

	assert.Equal(t, "F-010", req.InvoiceNumber)
	assert.Equal(t, models.InvoiceTypeSale, req.InvoiceType)
	assert.Equal(t, TemplateB2C, req.Template)
	assert.Equal(t, "2026-03-14T10:30:00Z", req.Date)
	assert.Equal(t, PaymentCash, req.PaymentMethod)
	assert.Equal(t, 1180.0, req.Totals.AmountTTC)
	require.Len(t, req.Items, 2)
	assert.Equal(t, "pcs", req.Items[0].MeasurementUnit)
	assert.Equal(t, []models.TaxCode{models.TaxCodeTVA}, req.Items[0].Taxes)
	assert.Equal(t, "forfait", req.Items[1].MeasurementUnit)
	assert.Equal(t, []models.TaxCode{models.TaxCodeTVAB}, req.Items[1].Taxes)
}

func TestToExternalFormatB2B(t *testing.T) {
	inv := testInvoice("F-011", 590)
	inv.Client.CompanyName = "SARL Bâtir"
	inv.Client.NCC = strPtr(" 1234567A ")

	req, err := ToExternalFormat(inv)
	require.NoError(t, err)
	assert.Equal(t, TemplateB2B, req.Template)
	assert.Equal(t, "1234567A", req.Client.NCC)
}

func TestEncodeIsDeterministic(t *testing.T) {
	inv := testInvoice("F-012", 2360)

	first, err := ToExternalFormat(inv)
	require.NoError(t, err)
	second, err := ToExternalFormat(inv)
	require.NoError(t, err)

	a, err := Encode(first)
	require.NoError(t, err)
	b, err := Encode(second)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestToExternalFormatNil(t *testing.T) {
	_, err := ToExternalFormat(nil)
	assert.ErrorIs(t, err, models.ErrValidation)
}
