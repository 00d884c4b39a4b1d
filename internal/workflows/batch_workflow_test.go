package workflows

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/hypernova-labs/fne-service/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCertifier struct {
	calls   int
	lastMax int
}

func (f *fakeCertifier) CertifyPending(ctx context.Context, maxCount int) *models.BatchResult {
	f.calls++
	f.lastMax = maxCount
	return &models.BatchResult{Total: 1, SuccessCount: 1}
}

type fakeLocker struct {
	held       map[string]string
	acquireErr error
	released   int
}

func (f *fakeLocker) AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	if f.acquireErr != nil {
		return false, f.acquireErr
	}
	if _, ok := f.held[key]; ok {
		return false, nil
	}
	f.held[key] = owner
	return true, nil
}

func (f *fakeLocker) ReleaseLock(ctx context.Context, key, owner string) error {
	if f.held[key] == owner {
		delete(f.held, key)
		f.released++
	}
	return nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestBatchWorkflowRunReleasesLock(t *testing.T) {
	certifier := &fakeCertifier{}
	locker := &fakeLocker{held: map[string]string{}}
	w := NewBatchWorkflow(certifier, locker, time.Minute, quietLogger())

	result, err := w.Run(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 1, result.SuccessCount)
	assert.Equal(t, 7, certifier.lastMax)
	assert.Equal(t, 1, locker.released)
	assert.Empty(t, locker.held)
}

func TestBatchWorkflowSkipsWhenLockHeld(t *testing.T) {
	certifier := &fakeCertifier{}
	locker := &fakeLocker{held: map[string]string{BatchLockKey: "other-run"}}
	w := NewBatchWorkflow(certifier, locker, time.Minute, quietLogger())

	_, err := w.Run(context.Background(), 0)
	assert.ErrorIs(t, err, ErrBatchInProgress)
	assert.Zero(t, certifier.calls)
	assert.Equal(t, "other-run", locker.held[BatchLockKey])
}

func TestBatchWorkflowLockError(t *testing.T) {
	certifier := &fakeCertifier{}
	locker := &fakeLocker{held: map[string]string{}, acquireErr: errors.New("redis down")}
	w := NewBatchWorkflow(certifier, locker, time.Minute, quietLogger())

	_, err := w.Run(context.Background(), 0)
	require.Error(t, err)
	assert.Zero(t, certifier.calls)
}

func TestBatchWorkflowWithoutLocker(t *testing.T) {
	certifier := &fakeCertifier{}
	w := NewBatchWorkflow(certifier, nil, time.Minute, quietLogger())

	_, err := w.Run(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 1, certifier.calls)
}

func TestMaxFromEvent(t *testing.T) {
	assert.Equal(t, 25, maxFromEvent(map[string]any{"max": float64(25)}))
	assert.Equal(t, 4, maxFromEvent(map[string]any{"max": 4}))
	assert.Equal(t, 0, maxFromEvent(map[string]any{}))
	assert.Equal(t, 0, maxFromEvent(nil))
}
