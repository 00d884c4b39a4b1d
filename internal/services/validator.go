package services

import (
	"strings"

	"github.com/hypernova-labs/fne-service/internal/models"
)

// Validate verifica las precondiciones locales de certificación sin tocar la red.
// Retorna la primera violación encontrada, en orden fijo.
func Validate(inv *models.Invoice, cfg *models.CertificationConfig) (bool, string) {
	if cfg == nil {
		return false, "no active configuration"
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return false, "missing base URL"
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return false, "missing API key"
	}
	if inv == nil || inv.TotalAmount <= 0 {
		return false, "invalid amount"
	}
	if inv.Client == nil || (strings.TrimSpace(inv.Client.Name) == "" && strings.TrimSpace(inv.Client.CompanyName) == "") {
		return false, "missing client"
	}

	return true, ""
}
