package services

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/hypernova-labs/fne-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var syntheticRefPattern = regexp.MustCompile(`^FNE-TEST-\d{8}-[0-9A-F]{8}$`)

func TestSyntheticGatewayIssuesTestReference(t *testing.T) {
	g := NewSyntheticGateway("https://verify.example.test/", 100, 10, nil, quietLogger())
	g.now = func() time.Time { return time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC) }

	result := g.Certify(context.Background(), signRequest(t), testConfig(models.EnvironmentTest))

	require.True(t, result.Success)
	assert.True(t, result.Synthetic)
	require.NotNil(t, result.Response)
	ref := *result.Response.Reference
	assert.Regexp(t, syntheticRefPattern, ref)
	assert.Contains(t, ref, "20260502")
	assert.Contains(t, *result.Response.Token, "https://verify.example.test/verification/")
	assert.Equal(t, 99, *result.Response.BalanceSticker)
	assert.False(t, *result.Response.Warning)
	require.NotNil(t, result.Response.Invoice)
	assert.Equal(t, 1180.0, *result.Response.Invoice.Amount)
}

func TestSyntheticGatewayRefusesNonTestConfig(t *testing.T) {
	g := NewSyntheticGateway("https://verify.example.test", 100, 10, nil, quietLogger())

	for _, env := range []models.Environment{models.EnvironmentProduction, models.EnvironmentSandbox} {
		result := g.Certify(context.Background(), signRequest(t), testConfig(env))
		assert.False(t, result.Success)
		assert.Equal(t, models.ErrorKindValidation, result.ErrorKind)
		assert.Nil(t, result.Response)
	}
	assert.Equal(t, 100, g.Balance())
}

func TestSyntheticGatewayLowBalanceWarning(t *testing.T) {
	g := NewSyntheticGateway("https://verify.example.test", 3, 2, nil, quietLogger())
	cfg := testConfig(models.EnvironmentTest)

	first := g.Certify(context.Background(), signRequest(t), cfg)
	assert.False(t, *first.Response.Warning)

	second := g.Certify(context.Background(), signRequest(t), cfg)
	assert.True(t, *second.Response.Warning)
	require.NotNil(t, second.Response.WarningMessage)
	assert.Contains(t, *second.Response.WarningMessage, "1 remaining")
}

func TestSyntheticGatewayConcurrentBalance(t *testing.T) {
	g := NewSyntheticGateway("https://verify.example.test", 50, 0, nil, quietLogger())
	cfg := testConfig(models.EnvironmentTest)
	req := signRequest(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Certify(context.Background(), req, cfg)
		}()
	}
	wg.Wait()

	assert.Equal(t, 30, g.Balance())
}
