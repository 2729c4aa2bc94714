package model

import "time"

// AnagraphicsType distinguishes clients from suppliers.
type AnagraphicsType string

// Anagraphics type constants, using the backend's wire values.
const (
	AnagraphicsClient   AnagraphicsType = "Cliente"
	AnagraphicsSupplier AnagraphicsType = "Fornitore"
)

// Anagraphics is a counterparty registry entry.
type Anagraphics struct {
	UpdatedAt    time.Time       `json:"updated_at"`
	Type         AnagraphicsType `json:"type"`
	Denomination string          `json:"denomination"`
	VATNumber    string          `json:"piva,omitempty"`
	FiscalCode   string          `json:"cf,omitempty"`
	City         string          `json:"city,omitempty"`
	Score        float64         `json:"score"`
	ID           int64           `json:"id"`
}

// EntityID returns the counterparty identifier.
func (a Anagraphics) EntityID() int64 { return a.ID }

// AnagraphicsFilter selects counterparties on the backend list endpoint.
type AnagraphicsFilter struct {
	Type   AnagraphicsType
	Search string
	City   string
	Page   int
	Size   int
}
