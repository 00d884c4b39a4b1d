package services

import (
	"bytes"
	"fmt"
	"time"

	"github.com/hypernova-labs/fne-service/internal/models"
	"github.com/jung-kurt/gofpdf"
	"github.com/sirupsen/logrus"
)

// DocumentGenerator genera el PDF de una factura certificada
type DocumentGenerator struct {
	logger *logrus.Logger
	now    func() time.Time
}

// NewDocumentGenerator crea una nueva instancia del generador
func NewDocumentGenerator(logger *logrus.Logger) *DocumentGenerator {
	return &DocumentGenerator{
		logger: logger,
		now:    time.Now,
	}
}

// GenerateCertifiedPDF genera el PDF con la referencia fiscal y el QR de verificación.
// Se usa cuando no hay servicio remoto del que descargar el PDF oficial.
func (d *DocumentGenerator) GenerateCertifiedPDF(inv *models.Invoice, verificationURL string, qrPNG []byte) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(fmt.Sprintf("FNE %s", inv.InvoiceNumber), true)
	pdf.AddPage()

	// Header
	pdf.SetFillColor(41, 128, 185)
	pdf.Rect(0, 0, 210, 40, "F")

	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Arial", "B", 22)
	pdf.Cell(190, 15, tr("FACTURE NORMALISÉE"))
	pdf.Ln(15)

	pdf.SetFont("Arial", "B", 14)
	pdf.Cell(190, 10, fmt.Sprintf("#%s", inv.InvoiceNumber))
	pdf.Ln(10)

	pdf.SetFont("Arial", "", 11)
	pdf.Cell(190, 8, fmt.Sprintf("Date: %s", inv.InvoiceDate.Format("02/01/2006")))
	pdf.Ln(8)

	pdf.SetTextColor(44, 62, 80)

	// Bloque de certificación (izquierda) y QR (derecha)
	pdf.SetY(50)
	pdf.SetFont("Arial", "B", 13)
	pdf.Cell(120, 8, "CERTIFICATION")
	pdf.Ln(8)

	pdf.SetFont("Arial", "", 10)
	pdf.Cell(120, 6, tr(fmt.Sprintf("Référence fiscale: %s", inv.FiscalReference)))
	pdf.Ln(6)
	if inv.CompanyNCC != "" {
		pdf.Cell(120, 6, fmt.Sprintf("NCC: %s", inv.CompanyNCC))
		pdf.Ln(6)
	}
	if inv.CertifiedAt != nil {
		pdf.Cell(120, 6, tr(fmt.Sprintf("Certifiée le: %s", inv.CertifiedAt.Format("02/01/2006 15:04:05"))))
		pdf.Ln(6)
	}
	if inv.ParentReference != "" {
		pdf.Cell(120, 6, tr(fmt.Sprintf("Facture d'origine: %s", inv.ParentReference)))
		pdf.Ln(6)
	}

	if len(qrPNG) > 0 {
		opts := gofpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader("verification-qr", opts, bytes.NewReader(qrPNG))
		pdf.ImageOptions("verification-qr", 150, 45, 45, 45, false, opts, 0, verificationURL)
	}

	// Cliente
	pdf.SetY(95)
	pdf.SetFont("Arial", "B", 13)
	pdf.Cell(190, 8, "CLIENT")
	pdf.Ln(8)

	pdf.SetFont("Arial", "", 10)
	if c := inv.Client; c != nil {
		pdf.Cell(190, 6, tr(c.DisplayName()))
		pdf.Ln(6)
		if c.NCC != nil && *c.NCC != "" {
			pdf.Cell(190, 6, fmt.Sprintf("NCC: %s", *c.NCC))
			pdf.Ln(6)
		}
		if c.AddressLine != nil && *c.AddressLine != "" {
			pdf.Cell(190, 6, tr(*c.AddressLine))
			pdf.Ln(6)
		}
	}

	// Tabla de líneas
	pdf.SetY(130)
	pdf.SetFillColor(236, 240, 241)
	pdf.SetFont("Arial", "B", 10)

	colWidths := []float64{15, 75, 25, 30, 45}
	colHeaders := []string{"#", tr("Désignation"), tr("Quantité"), "P.U.", "Montant HT"}
	for i, header := range colHeaders {
		pdf.CellFormat(colWidths[i], 10, header, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(10)

	pdf.SetFont("Arial", "", 9)
	rowHeight := 8.0
	for i, item := range inv.Items {
		if i%2 == 0 {
			pdf.SetFillColor(248, 249, 250)
		} else {
			pdf.SetFillColor(255, 255, 255)
		}

		pdf.CellFormat(colWidths[0], rowHeight, fmt.Sprintf("%d", item.LineNo), "1", 0, "C", true, 0, "")
		pdf.CellFormat(colWidths[1], rowHeight, tr(item.Description), "1", 0, "L", true, 0, "")
		pdf.CellFormat(colWidths[2], rowHeight, fmt.Sprintf("%.2f", item.Quantity), "1", 0, "R", true, 0, "")
		pdf.CellFormat(colWidths[3], rowHeight, fmt.Sprintf("%.0f", item.UnitPrice), "1", 0, "R", true, 0, "")
		pdf.CellFormat(colWidths[4], rowHeight, fmt.Sprintf("%.0f", item.LineTotal), "1", 0, "R", true, 0, "")
		pdf.Ln(rowHeight)
	}

	// Totales
	totalY := pdf.GetY() + 10
	pdf.SetY(totalY)
	pdf.SetDrawColor(189, 195, 199)
	pdf.Line(120, totalY, 200, totalY)
	pdf.Ln(5)

	pdf.SetFont("Arial", "B", 11)
	pdf.SetX(120)
	pdf.Cell(45, 8, "Total HT:")
	pdf.Cell(35, 8, fmt.Sprintf("%.0f FCFA", inv.Subtotal))
	pdf.Ln(8)

	pdf.SetX(120)
	pdf.Cell(45, 8, "TVA:")
	pdf.Cell(35, 8, fmt.Sprintf("%.0f FCFA", inv.TaxAmount))
	pdf.Ln(8)

	pdf.SetFillColor(41, 128, 185)
	pdf.SetTextColor(255, 255, 255)
	pdf.SetX(120)
	pdf.CellFormat(45, 12, "TOTAL TTC:", "", 0, "L", true, 0, "")
	pdf.CellFormat(35, 12, fmt.Sprintf("%.0f FCFA", inv.TotalAmount), "", 0, "L", true, 0, "")
	pdf.Ln(12)

	// Footer
	pdf.SetY(265)
	pdf.SetTextColor(149, 165, 166)
	pdf.SetFont("Arial", "", 8)
	pdf.Cell(190, 5, tr(fmt.Sprintf("Vérification: %s", verificationURL)))
	pdf.Ln(5)
	pdf.Cell(190, 5, tr(fmt.Sprintf("Généré le: %s", d.now().Format("02/01/2006 15:04:05"))))

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("error generating PDF: %w", err)
	}

	d.logger.WithFields(logrus.Fields{
		"invoice_id": inv.ID,
		"pdf_size":   buf.Len(),
	}).Debug("Certified invoice PDF generated")

	return buf.Bytes(), nil
}
