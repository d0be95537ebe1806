package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const OrderCompleted OrderStatus = "completed"

// DeliveredCode is what the buyer receives for every unit of an order.
type DeliveredCode struct {
	Code         string `json:"code"`
	SerialNumber string `json:"serial_number"`
}

type Order struct {
	ID         int64           `json:"id"`
	UserID     int64           `json:"user_id"`
	ProductID  int64           `json:"product_id"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Status     OrderStatus     `json:"status"`
	Codes      []DeliveredCode `json:"codes"`
	CreatedAt  time.Time       `json:"created_at"`
}

type PurchaseRequest struct {
	UserID    int64
	ProductID int64
	Quantity  int
}

type PurchaseResult struct {
	OrderID    int64           `json:"order_id"`
	ProductID  int64           `json:"product_id"`
	Quantity   int             `json:"quantity"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Codes      []DeliveredCode `json:"codes"`
	NewBalance decimal.Decimal `json:"new_balance"`
	CreatedAt  time.Time       `json:"created_at"`
}
