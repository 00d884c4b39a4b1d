package models

import (
	"time"

	"github.com/google/uuid"
)

// Client representa el cliente de una factura
type Client struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	CompanyName string    `json:"company_name,omitempty" db:"company_name"`
	NCC         *string   `json:"ncc,omitempty" db:"ncc"`
	Email       *string   `json:"email,omitempty" db:"email"`
	Phone       *string   `json:"phone,omitempty" db:"phone"`
	AddressLine *string   `json:"address_line,omitempty" db:"address_line"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// DisplayName retorna la razón social si existe, sino el nombre
func (c *Client) DisplayName() string {
	if c == nil {
		return ""
	}
	if c.CompanyName != "" {
		return c.CompanyName
	}
	return c.Name
}
