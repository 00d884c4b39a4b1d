package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hypernova-labs/fne-service/internal/models"
	"github.com/sirupsen/logrus"
)

// InvoiceRepository maneja las operaciones de base de datos para Invoice
type InvoiceRepository struct {
	db     *DB
	logger *logrus.Logger
}

// NewInvoiceRepository crea una nueva instancia del repositorio
func NewInvoiceRepository(db *DB, logger *logrus.Logger) *InvoiceRepository {
	return &InvoiceRepository{
		db:     db,
		logger: logger,
	}
}

// CertifiableFilter restringe qué facturas puede tomar un lote
type CertifiableFilter struct {
	Limit int
	// MaxRetries excluye facturas en ERROR con retry_count >= MaxRetries (0 = sin tope)
	MaxRetries int
	// RetryCutoff excluye facturas en ERROR intentadas después de este instante
	RetryCutoff time.Time
}

const invoiceColumns = `
	i.id, i.invoice_number, i.invoice_type, i.invoice_date, i.client_id,
	COALESCE(i.point_of_sale, ''), COALESCE(i.establishment, ''), COALESCE(i.payment_method, ''),
	i.subtotal, i.tax_amount, i.total_amount,
	i.status, i.retry_count, COALESCE(i.error_message, ''), COALESCE(i.error_kind, ''), i.last_attempt_at,
	COALESCE(i.fiscal_reference, ''), COALESCE(i.verification_token, ''), COALESCE(i.qr_payload, ''),
	COALESCE(i.processing_status, ''), COALESCE(i.integrity_hash, ''), COALESCE(i.company_ncc, ''),
	i.sticker_balance, i.warning, COALESCE(i.warning_message, ''), COALESCE(i.parent_reference, ''),
	i.certified_at, i.created_at, i.updated_at`

const clientColumns = `
	c.id, COALESCE(c.name, ''), COALESCE(c.company_name, ''), c.ncc, c.email, c.phone, c.address_line`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInvoice(row rowScanner, withClient bool) (*models.Invoice, error) {
	var inv models.Invoice
	var errorKind string
	dest := []interface{}{
		&inv.ID, &inv.InvoiceNumber, &inv.Type, &inv.InvoiceDate, &inv.ClientID,
		&inv.PointOfSale, &inv.Establishment, &inv.PaymentMethod,
		&inv.Subtotal, &inv.TaxAmount, &inv.TotalAmount,
		&inv.Status, &inv.RetryCount, &inv.ErrorMessage, &errorKind, &inv.LastAttemptAt,
		&inv.FiscalReference, &inv.VerificationToken, &inv.QRPayload,
		&inv.ProcessingStatus, &inv.IntegrityHash, &inv.CompanyNCC,
		&inv.StickerBalance, &inv.Warning, &inv.WarningMessage, &inv.ParentReference,
		&inv.CertifiedAt, &inv.CreatedAt, &inv.UpdatedAt,
	}

	var clientID uuid.NullUUID
	var client models.Client
	if withClient {
		dest = append(dest,
			&clientID, &client.Name, &client.CompanyName,
			&client.NCC, &client.Email, &client.Phone, &client.AddressLine,
		)
	}

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	inv.ErrorKind = models.ErrorKind(errorKind)

	if withClient && clientID.Valid {
		client.ID = clientID.UUID
		inv.Client = &client
	}

	return &inv, nil
}

// GetByID obtiene una factura por ID con su cliente y sus líneas
func (r *InvoiceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + invoiceColumns + `,` + clientColumns + `
		FROM invoices i
		LEFT JOIN clients c ON i.client_id = c.id
		WHERE i.id = $1`

	inv, err := scanInvoice(r.db.QueryRowContext(ctx, query, id), true)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("invoice %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("error querying invoice: %w", err)
	}

	items, err := r.GetItemsByInvoiceID(ctx, id)
	if err != nil {
		return nil, err
	}
	inv.Items = items

	return inv, nil
}

// GetItemsByInvoiceID obtiene las líneas de una factura
func (r *InvoiceRepository) GetItemsByInvoiceID(ctx context.Context, invoiceID uuid.UUID) ([]models.InvoiceItem, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, invoice_id, line_no, COALESCE(reference, ''), description, qty, unit_price,
			   discount, tax_code, tax_rate, line_total, tax_amount, COALESCE(measurement_unit, ''),
			   custom_taxes, created_at
		FROM invoice_items
		WHERE invoice_id = $1
		ORDER BY line_no
	`

	rows, err := r.db.QueryContext(ctx, query, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("error querying invoice items: %w", err)
	}
	defer rows.Close()

	var items []models.InvoiceItem
	for rows.Next() {
		var item models.InvoiceItem
		var customTaxes []byte
		err := rows.Scan(
			&item.ID, &item.InvoiceID, &item.LineNo, &item.Reference, &item.Description,
			&item.Quantity, &item.UnitPrice, &item.Discount, &item.TaxCode, &item.TaxRate,
			&item.LineTotal, &item.TaxAmount, &item.MeasurementUnit, &customTaxes, &item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning invoice item: %w", err)
		}
		if len(customTaxes) > 0 {
			if err := json.Unmarshal(customTaxes, &item.CustomTaxes); err != nil {
				r.logger.WithError(err).WithField("item_id", item.ID).Warn("Invalid custom_taxes payload, ignoring")
			}
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

// ListCertifiable obtiene las facturas PENDING y las ERROR reintentables,
// de la más antigua a la más reciente
func (r *InvoiceRepository) ListCertifiable(ctx context.Context, filter CertifiableFilter) ([]models.Invoice, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	where := []string{"i.status = $1", "(i.status = $2"}
	args := []interface{}{models.InvoiceStatusPending, models.InvoiceStatusError}
	argIndex := 3

	if filter.MaxRetries > 0 {
		where[1] += fmt.Sprintf(" AND i.retry_count < $%d", argIndex)
		args = append(args, filter.MaxRetries)
		argIndex++
	}
	if !filter.RetryCutoff.IsZero() {
		where[1] += fmt.Sprintf(" AND (i.last_attempt_at IS NULL OR i.last_attempt_at <= $%d)", argIndex)
		args = append(args, filter.RetryCutoff)
		argIndex++
	}
	where[1] += ")"

	query := fmt.Sprintf(`SELECT %s,%s
		FROM invoices i
		LEFT JOIN clients c ON i.client_id = c.id
		WHERE %s
		ORDER BY i.created_at ASC, i.invoice_number ASC
		LIMIT $%d`, invoiceColumns, clientColumns, strings.Join(where, " OR "), argIndex)
	args = append(args, filter.Limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying certifiable invoices: %w", err)
	}
	defer rows.Close()

	var invoices []models.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows, true)
		if err != nil {
			return nil, fmt.Errorf("error scanning invoice: %w", err)
		}
		invoices = append(invoices, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Las líneas se cargan aparte para no multiplicar filas en el JOIN
	for i := range invoices {
		items, err := r.GetItemsByInvoiceID(ctx, invoices[i].ID)
		if err != nil {
			return nil, err
		}
		invoices[i].Items = items
	}

	return invoices, nil
}

// CountCertifiable cuenta las facturas en PENDING o ERROR
func (r *InvoiceRepository) CountCertifiable(ctx context.Context) (int, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM invoices WHERE status IN ($1, $2)`,
		models.InvoiceStatusPending, models.InvoiceStatusError,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("error counting pending invoices: %w", err)
	}

	return total, nil
}

// ListForPeriod obtiene las facturas con fecha dentro de [from, to)
func (r *InvoiceRepository) ListForPeriod(ctx context.Context, from, to time.Time) ([]models.PeriodInvoice, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT i.id, i.invoice_number, i.invoice_date,
			   COALESCE(NULLIF(c.company_name, ''), c.name, ''),
			   i.status, i.total_amount, i.tax_amount, COALESCE(i.fiscal_reference, ''), i.retry_count
		FROM invoices i
		LEFT JOIN clients c ON i.client_id = c.id
		WHERE i.invoice_date >= $1 AND i.invoice_date < $2
		ORDER BY i.invoice_date ASC, i.invoice_number ASC
	`

	rows, err := r.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("error querying invoices for period: %w", err)
	}
	defer rows.Close()

	var invoices []models.PeriodInvoice
	for rows.Next() {
		var p models.PeriodInvoice
		if err := rows.Scan(
			&p.ID, &p.InvoiceNumber, &p.InvoiceDate, &p.ClientName,
			&p.Status, &p.TotalAmount, &p.TaxAmount, &p.FiscalReference, &p.RetryCount,
		); err != nil {
			return nil, fmt.Errorf("error scanning period invoice: %w", err)
		}
		invoices = append(invoices, p)
	}

	return invoices, rows.Err()
}

// FindCertifiedByToken busca una factura certificada por su token o por el
// último segmento de la URL de verificación guardada. La comparación es exacta:
// el token no se interpreta como patrón. Retorna nil, nil si no existe.
func (r *InvoiceRepository) FindCertifiedByToken(ctx context.Context, token string) (*models.Invoice, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + invoiceColumns + `,` + clientColumns + `
		FROM invoices i
		LEFT JOIN clients c ON i.client_id = c.id
		WHERE i.status = $1
		  AND (i.verification_token = $2 OR i.qr_payload = $2
		       OR right(i.verification_token, length($2) + 1) = '/' || $2)
		ORDER BY i.certified_at DESC
		LIMIT 1`

	inv, err := scanInvoice(r.db.QueryRowContext(ctx, query, models.InvoiceStatusCertified, token), true)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("error querying invoice by token: %w", err)
	}

	return inv, nil
}

// updateCertificationTx escribe el estado reconciliado de la factura
func (r *InvoiceRepository) updateCertificationTx(ctx context.Context, tx *sql.Tx, inv *models.Invoice) error {
	query := `
		UPDATE invoices SET
			status = $1, retry_count = $2, error_message = $3, error_kind = $4, last_attempt_at = $5,
			fiscal_reference = $6, verification_token = $7, qr_payload = $8, processing_status = $9,
			integrity_hash = $10, company_ncc = $11, sticker_balance = $12, warning = $13,
			warning_message = $14, certified_at = $15, updated_at = $16
		WHERE id = $17
	`

	result, err := tx.ExecContext(ctx, query,
		inv.Status, inv.RetryCount, nullString(inv.ErrorMessage), nullString(string(inv.ErrorKind)), inv.LastAttemptAt,
		nullString(inv.FiscalReference), nullString(inv.VerificationToken), nullString(inv.QRPayload), inv.ProcessingStatus,
		nullString(inv.IntegrityHash), nullString(inv.CompanyNCC), inv.StickerBalance, inv.Warning,
		nullString(inv.WarningMessage), inv.CertifiedAt, inv.UpdatedAt,
		inv.ID,
	)
	if err != nil {
		return fmt.Errorf("error updating invoice certification: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("invoice %s: %w", inv.ID, models.ErrNotFound)
	}

	return nil
}

// nullString convierte cadenas vacías en NULL
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
