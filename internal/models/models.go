package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type User struct {
	ID           int64       `json:"id"`
	Name         string      `json:"name"`
	Email        string      `json:"email"`
	PasswordHash string      `json:"-"`
	Role         Role        `json:"role"`
	StockIDs     []uuid.UUID `json:"stocks"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// StockItem is one inventory line. ItemID is the human-readable identifier
// that the QR code points at; ID is the storage key.
type StockItem struct {
	ID        uuid.UUID       `json:"id"`
	ItemID    string          `json:"item_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Category  string          `json:"category"`
	QRCode    *string         `json:"qr_code"`
	OwnerID   int64           `json:"owner_id"`
	Version   int             `json:"version"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// StockPatch holds the mutable fields of a StockItem. Nil means unchanged.
type StockPatch struct {
	Name     *string
	Quantity *int
	Price    *decimal.Decimal
	Category *string
}

func (p StockPatch) IsEmpty() bool {
	return p.Name == nil && p.Quantity == nil && p.Price == nil && p.Category == nil
}

// Apply returns a copy of item with the patch fields applied.
func (p StockPatch) Apply(item StockItem) StockItem {
	if p.Name != nil {
		item.Name = *p.Name
	}
	if p.Quantity != nil {
		item.Quantity = *p.Quantity
	}
	if p.Price != nil {
		item.Price = *p.Price
	}
	if p.Category != nil {
		item.Category = *p.Category
	}
	return item
}

// StockFilter narrows a stock listing. A nil OwnerID means every owner.
type StockFilter struct {
	OwnerID *int64
	Query   string
}
