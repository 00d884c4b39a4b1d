package services

import (
	"testing"

	"github.com/hypernova-labs/fne-service/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestValidateOrder(t *testing.T) {
	valid := testInvoice("F-001", 1180)

	cases := []struct {
		name   string
		inv    *models.Invoice
		cfg    func() *models.CertificationConfig
		reason string
	}{
		{"no config", valid, func() *models.CertificationConfig { return nil }, "no active configuration"},
		{"missing base url before everything else", nil, func() *models.CertificationConfig {
			c := testConfig(models.EnvironmentSandbox)
			c.BaseURL = " "
			c.APIKey = ""
			return c
		}, "missing base URL"},
		{"missing key", valid, func() *models.CertificationConfig {
			c := testConfig(models.EnvironmentSandbox)
			c.APIKey = ""
			return c
		}, "missing API key"},
		{"missing key in test mode", valid, func() *models.CertificationConfig {
			c := testConfig(models.EnvironmentTest)
			c.APIKey = ""
			return c
		}, "missing API key"},
		{"zero amount", testInvoice("F-002", 0), func() *models.CertificationConfig {
			return testConfig(models.EnvironmentSandbox)
		}, "invalid amount"},
		{"nil invoice", nil, func() *models.CertificationConfig {
			return testConfig(models.EnvironmentSandbox)
		}, "invalid amount"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, reason := Validate(tc.inv, tc.cfg())
			assert.False(t, ok)
			assert.Equal(t, tc.reason, reason)
		})
	}
}

func TestValidateClient(t *testing.T) {
	cfg := testConfig(models.EnvironmentSandbox)

	inv := testInvoice("F-003", 500)
	inv.Client = nil
	ok, reason := Validate(inv, cfg)
	assert.False(t, ok)
	assert.Equal(t, "missing client", reason)

	inv.Client = &models.Client{Name: "  "}
	ok, reason = Validate(inv, cfg)
	assert.False(t, ok)
	assert.Equal(t, "missing client", reason)

	inv.Client = &models.Client{CompanyName: "SARL Bâtir"}
	ok, reason = Validate(inv, cfg)
	assert.True(t, ok)
	assert.Empty(t, reason)
}
