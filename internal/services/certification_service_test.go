package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hypernova-labs/fne-service/internal/database"
	"github.com/hypernova-labs/fne-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInvoiceStore struct {
	invoices   []models.Invoice
	lastFilter database.CertifiableFilter
	period     []models.PeriodInvoice
}

func (f *fakeInvoiceStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	for i := range f.invoices {
		if f.invoices[i].ID == id {
			inv := f.invoices[i]
			return &inv, nil
		}
	}
	return nil, models.ErrNotFound
}

func (f *fakeInvoiceStore) ListCertifiable(ctx context.Context, filter database.CertifiableFilter) ([]models.Invoice, error) {
	f.lastFilter = filter
	out := make([]models.Invoice, 0, len(f.invoices))
	for _, inv := range f.invoices {
		if inv.Status == models.InvoiceStatusPending || inv.Status == models.InvoiceStatusError {
			out = append(out, inv)
		}
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (f *fakeInvoiceStore) CountCertifiable(ctx context.Context) (int, error) {
	count := 0
	for _, inv := range f.invoices {
		if inv.Status == models.InvoiceStatusPending || inv.Status == models.InvoiceStatusError {
			count++
		}
	}
	return count, nil
}

func (f *fakeInvoiceStore) ListForPeriod(ctx context.Context, from, to time.Time) ([]models.PeriodInvoice, error) {
	return f.period, nil
}

type fakeConfigStore struct {
	cfg *models.CertificationConfig
	err error
}

func (f *fakeConfigStore) GetActive(ctx context.Context) (*models.CertificationConfig, error) {
	return f.cfg, f.err
}

type recordingNotifier struct {
	mu      sync.Mutex
	results []*models.BatchResult
}

func (n *recordingNotifier) NotifyBatchResult(ctx context.Context, result *models.BatchResult) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.results = append(n.results, result)
}

// cancellingGateway cancela el contexto del lote después de n llamadas
type cancellingGateway struct {
	inner  Gateway
	after  int
	cancel context.CancelFunc
	calls  int
}

func (g *cancellingGateway) Certify(ctx context.Context, req *models.CertificationRequest, cfg *models.CertificationConfig) *models.CertificationResult {
	g.calls++
	result := g.inner.Certify(ctx, req, cfg)
	if g.calls == g.after {
		g.cancel()
	}
	return result
}

// interruptedGateway simula una llamada cortada por cancelación en la llamada n
type interruptedGateway struct {
	inner  Gateway
	at     int
	cancel context.CancelFunc
	calls  int
}

func (g *interruptedGateway) Certify(ctx context.Context, req *models.CertificationRequest, cfg *models.CertificationConfig) *models.CertificationResult {
	g.calls++
	if g.calls == g.at {
		g.cancel()
		return &models.CertificationResult{
			ErrorKind:    models.ErrorKindCancelled,
			ErrorMessage: "certification call cancelled",
			Environment:  cfg.Environment,
		}
	}
	return g.inner.Certify(ctx, req, cfg)
}

type batchFixture struct {
	invoices *fakeInvoiceStore
	store    *fakeReconciliationStore
	notifier *recordingNotifier
	service  *CertificationService
}

func newBatchFixture(cfg *models.CertificationConfig, gateway Gateway, invoices ...models.Invoice) *batchFixture {
	f := &batchFixture{
		invoices: &fakeInvoiceStore{invoices: invoices},
		store:    &fakeReconciliationStore{},
		notifier: &recordingNotifier{},
	}
	if gateway == nil {
		gateway = NewGatewayRouter(
			newRemoteGateway(),
			NewSyntheticGateway("https://verify.example.test", 100, 5, nil, quietLogger()),
		)
	}
	f.service = NewCertificationService(
		&fakeConfigStore{cfg: cfg},
		f.invoices,
		gateway,
		NewReconciler(f.store, nil, quietLogger()),
		f.notifier,
		nil,
		CertificationServiceOptions{DefaultBatchSize: 10, ReconcileTimeout: time.Second},
		quietLogger(),
	)
	return f
}

func TestCertifyPendingMixedBatch(t *testing.T) {
	invalid1 := *testInvoice("F-303", 0)
	invalid2 := *testInvoice("F-304", 500)
	invalid2.Client = nil

	f := newBatchFixture(testConfig(models.EnvironmentTest), nil,
		*testInvoice("F-301", 1180),
		*testInvoice("F-302", 590),
		invalid1,
		invalid2,
		*testInvoice("F-305", 2360),
	)

	result := f.service.CertifyPending(context.Background(), 0)

	assert.Equal(t, 5, result.Total)
	assert.Equal(t, 3, result.SuccessCount)
	assert.Equal(t, 2, result.ErrorCount)
	assert.False(t, result.Cancelled)
	require.Len(t, result.Results, 5)
	assert.Equal(t, models.ErrorKindValidation, result.Results[2].ErrorKind)
	assert.Equal(t, "invalid amount", result.Results[2].ErrorMessage)
	assert.Equal(t, "missing client", result.Results[3].ErrorMessage)
	assert.Regexp(t, syntheticRefPattern, result.Results[0].FiscalReference)

	// una entrada de auditoría por intento, éxito o falla
	assert.Len(t, f.store.entries, 5)
	assert.Equal(t, 10, f.invoices.lastFilter.Limit)
	assert.Equal(t, 3, f.invoices.lastFilter.MaxRetries)
	assert.False(t, f.invoices.lastFilter.RetryCutoff.IsZero())
	require.Len(t, f.notifier.results, 1)
}

func TestCertifyPendingWithoutConfigFailsFast(t *testing.T) {
	f := newBatchFixture(nil, nil,
		*testInvoice("F-310", 1180),
		*testInvoice("F-311", 590),
	)

	result := f.service.CertifyPending(context.Background(), 0)

	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 2, result.ErrorCount)
	assert.Equal(t, 0, result.SuccessCount)
	assert.Equal(t, "no active configuration", result.Error)
	assert.Empty(t, result.Results)
	assert.Empty(t, f.store.entries)
}

func TestCertifyPendingConfigError(t *testing.T) {
	f := newBatchFixture(nil, nil, *testInvoice("F-312", 1180))
	f.service.configs = &fakeConfigStore{err: errors.New("db down")}

	result := f.service.CertifyPending(context.Background(), 0)

	assert.NotEmpty(t, result.Error)
	assert.Zero(t, result.Total)
}

func TestCertifyPendingRespectsMaxCount(t *testing.T) {
	f := newBatchFixture(testConfig(models.EnvironmentTest), nil,
		*testInvoice("F-320", 100),
		*testInvoice("F-321", 100),
		*testInvoice("F-322", 100),
	)

	result := f.service.CertifyPending(context.Background(), 2)

	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 2, f.invoices.lastFilter.Limit)
}

func TestCertifyPendingCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	synthetic := NewSyntheticGateway("https://verify.example.test", 100, 5, nil, quietLogger())
	gateway := &cancellingGateway{inner: synthetic, after: 2, cancel: cancel}
	f := newBatchFixture(testConfig(models.EnvironmentTest), gateway,
		*testInvoice("F-330", 100),
		*testInvoice("F-331", 100),
		*testInvoice("F-332", 100),
		*testInvoice("F-333", 100),
	)

	result := f.service.CertifyPending(ctx, 0)

	assert.True(t, result.Cancelled)
	assert.Equal(t, 4, result.Total)
	assert.Equal(t, 2, result.SuccessCount)
	assert.Equal(t, 2, result.Skipped)
	// la segunda factura se reconcilió aunque el contexto se canceló durante su llamada
	assert.Len(t, f.store.entries, 2)
}

func TestCertifyPendingCancelledCallLeavesInvoiceUntouched(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	synthetic := NewSyntheticGateway("https://verify.example.test", 100, 5, nil, quietLogger())
	gateway := &interruptedGateway{inner: synthetic, at: 2, cancel: cancel}
	f := newBatchFixture(testConfig(models.EnvironmentTest), gateway,
		*testInvoice("F-334", 100),
		*testInvoice("F-335", 100),
		*testInvoice("F-336", 100),
		*testInvoice("F-337", 100),
	)

	result := f.service.CertifyPending(ctx, 0)

	assert.True(t, result.Cancelled)
	assert.Equal(t, 4, result.Total)
	assert.Equal(t, 1, result.SuccessCount)
	assert.Equal(t, 0, result.ErrorCount)
	assert.Equal(t, 3, result.Skipped)
	require.Len(t, result.Results, 1)
	// la llamada cortada no genera auditoría ni consume reintento
	assert.Len(t, f.store.entries, 1)
	assert.Equal(t, models.InvoiceStatusPending, f.invoices.invoices[1].Status)
	assert.Zero(t, f.invoices.invoices[1].RetryCount)
}

func TestCertifyInvoice(t *testing.T) {
	inv := *testInvoice("F-340", 1180)
	certified := *testInvoice("F-341", 1180)
	certified.Status = models.InvoiceStatusCertified

	f := newBatchFixture(testConfig(models.EnvironmentTest), nil, inv, certified)

	outcome, err := f.service.CertifyInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, models.InvoiceStatusCertified, outcome.Status)

	_, err = f.service.CertifyInvoice(context.Background(), certified.ID)
	assert.ErrorIs(t, err, models.ErrAlreadyCertified)

	_, err = f.service.CertifyInvoice(context.Background(), uuid.New())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCertifyInvoiceWithoutConfig(t *testing.T) {
	inv := *testInvoice("F-342", 1180)
	f := newBatchFixture(nil, nil, inv)

	_, err := f.service.CertifyInvoice(context.Background(), inv.ID)
	assert.ErrorIs(t, err, models.ErrNoActiveConfig)
	assert.Empty(t, f.store.entries)
}

func TestCertifyInvoicePersistenceFailure(t *testing.T) {
	inv := *testInvoice("F-343", 1180)
	f := newBatchFixture(testConfig(models.EnvironmentTest), nil, inv)
	f.store.err = errors.New("disk full")

	outcome, err := f.service.CertifyInvoice(context.Background(), inv.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrPersistence)
	require.NotNil(t, outcome)
	assert.False(t, outcome.Success)
	assert.Equal(t, models.InvoiceStatusPending, outcome.Status)
	assert.NotEmpty(t, outcome.PersistError)
}

func TestGetInvoicesForPeriodRejectsEmptyRange(t *testing.T) {
	f := newBatchFixture(testConfig(models.EnvironmentTest), nil)
	day := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := f.service.GetInvoicesForPeriod(context.Background(), day, day)
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = f.service.GetInvoicesForPeriod(context.Background(), day, day.AddDate(0, 1, 0))
	assert.NoError(t, err)
}

func TestGetPendingInvoicesCount(t *testing.T) {
	certified := *testInvoice("F-350", 100)
	certified.Status = models.InvoiceStatusCertified
	failed := *testInvoice("F-351", 100)
	failed.Status = models.InvoiceStatusError

	f := newBatchFixture(testConfig(models.EnvironmentTest), nil, *testInvoice("F-352", 100), certified, failed)

	count, err := f.service.GetPendingInvoicesCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
