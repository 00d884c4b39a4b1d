package services

import (
	"fmt"

	"github.com/hypernova-labs/fne-service/internal/models"
	"github.com/xuri/excelize/v2"
)

const periodSheet = "Factures"

var periodHeaders = []string{
	"Numéro", "Date", "Client", "Statut", "Montant TTC", "TVA", "Référence FNE", "Tentatives",
}

// ExportPeriodXLSX genera el reporte de facturas de un periodo en formato xlsx
func ExportPeriodXLSX(invoices []models.PeriodInvoice) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", periodSheet); err != nil {
		return nil, fmt.Errorf("error naming sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"ECF0F1"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("error creating header style: %w", err)
	}

	for i, header := range periodHeaders {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(periodSheet, cell, header); err != nil {
			return nil, fmt.Errorf("error writing header: %w", err)
		}
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(periodHeaders), 1)
	if err := f.SetCellStyle(periodSheet, "A1", lastHeader, headerStyle); err != nil {
		return nil, fmt.Errorf("error styling header: %w", err)
	}

	for row, inv := range invoices {
		values := []interface{}{
			inv.InvoiceNumber,
			inv.InvoiceDate.Format("2006-01-02"),
			inv.ClientName,
			string(inv.Status),
			inv.TotalAmount,
			inv.TaxAmount,
			inv.FiscalReference,
			inv.RetryCount,
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(periodSheet, cell, v); err != nil {
				return nil, fmt.Errorf("error writing row %d: %w", row+2, err)
			}
		}
	}

	if err := f.SetColWidth(periodSheet, "A", "H", 18); err != nil {
		return nil, fmt.Errorf("error setting column width: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("error writing xlsx: %w", err)
	}
	return buf.Bytes(), nil
}
