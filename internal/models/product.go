package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	Category       string          `json:"category"`
	Description    string          `json:"description,omitempty"`
	SellingPrice   decimal.Decimal `json:"selling_price"`
	AvailableStock int             `json:"available_stock"`
	IsActive       bool            `json:"is_active"`
	CreatedAt      time.Time       `json:"created_at"`
}

type CodeStatus string

const (
	CodeAvailable CodeStatus = "available"
	CodeSold      CodeStatus = "sold"
)

// ProductCode is one redeemable unit of a product's inventory.
type ProductCode struct {
	ID           int64      `json:"id"`
	ProductID    int64      `json:"product_id"`
	Code         string     `json:"code"`
	SerialNumber string     `json:"serial_number"`
	Status       CodeStatus `json:"status"`
	OrderID      *int64     `json:"order_id,omitempty"`
	SoldAt       *time.Time `json:"sold_at,omitempty"`
}

// NewCode is the input shape for stocking a product.
type NewCode struct {
	Code         string `json:"code" yaml:"code"`
	SerialNumber string `json:"serial_number" yaml:"serial_number"`
}
