package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

// Transitions lists the statuses reachable from each status. Statuses with
// no entry are terminal.
type Transitions map[Status][]Status

func (t Transitions) Allowed(from, to Status) bool {
	for _, s := range t[from] {
		if s == to {
			return true
		}
	}
	return false
}

var (
	ReviewTransitions = Transitions{
		StatusPending: {StatusApproved, StatusRejected},
	}
	StoreTransitions = Transitions{
		StatusActive: {StatusPaused},
		StatusPaused: {StatusActive},
	}
	CampaignTransitions = Transitions{
		StatusActive: {StatusPaused, StatusCompleted},
		StatusPaused: {StatusActive, StatusCompleted},
	}
)

// Resource is implemented by the owner-scoped CRUD entities.
type Resource interface {
	GetID() int64
	SetID(int64)
	// Key is the unique natural key, if the entity has one.
	Key() string
	GetUserID() int64
	GetStatus() Status
	SetStatus(Status)
	Transitions() Transitions
}

type GatewayApplication struct {
	ID           int64     `gorm:"primaryKey" json:"id"`
	UserID       int64     `gorm:"index;not null" json:"user_id"`
	GatewayName  string    `gorm:"not null" json:"gateway_name"`
	BusinessName string    `json:"business_name"`
	Details      string    `json:"details,omitempty"`
	Status       Status    `gorm:"type:varchar(16);not null;default:pending" json:"status"`
	AdminNote    string    `json:"admin_note,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (g *GatewayApplication) GetID() int64             { return g.ID }
func (g *GatewayApplication) SetID(id int64)           { g.ID = id }
func (g *GatewayApplication) Key() string              { return "" }
func (g *GatewayApplication) GetUserID() int64         { return g.UserID }
func (g *GatewayApplication) GetStatus() Status        { return g.Status }
func (g *GatewayApplication) SetStatus(s Status)       { g.Status = s }
func (g *GatewayApplication) Transitions() Transitions { return ReviewTransitions }

type Domain struct {
	ID         int64           `gorm:"primaryKey" json:"id"`
	UserID     int64           `gorm:"index;not null" json:"user_id"`
	StoreID    *int64          `json:"store_id,omitempty"`
	DomainName string          `gorm:"uniqueIndex;not null" json:"domain_name"`
	Fee        decimal.Decimal `gorm:"type:numeric(18,2);not null;default:0" json:"fee"`
	Status     Status          `gorm:"type:varchar(16);not null;default:pending" json:"status"`
	AdminNote  string          `json:"admin_note,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func (d *Domain) GetID() int64             { return d.ID }
func (d *Domain) SetID(id int64)           { d.ID = id }
func (d *Domain) Key() string              { return d.DomainName }
func (d *Domain) GetUserID() int64         { return d.UserID }
func (d *Domain) GetStatus() Status        { return d.Status }
func (d *Domain) SetStatus(s Status)       { d.Status = s }
func (d *Domain) Transitions() Transitions { return ReviewTransitions }

// Store is a seller's public storefront, reachable by slug.
type Store struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	UserID      int64     `gorm:"index;not null" json:"user_id"`
	Name        string    `gorm:"not null" json:"name"`
	Slug        string    `gorm:"uniqueIndex;not null" json:"slug"`
	Description string    `json:"description,omitempty"`
	Theme       string    `json:"theme,omitempty"`
	Status      Status    `gorm:"type:varchar(16);not null;default:active" json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (s *Store) GetID() int64             { return s.ID }
func (s *Store) SetID(id int64)           { s.ID = id }
func (s *Store) Key() string              { return s.Slug }
func (s *Store) GetUserID() int64         { return s.UserID }
func (s *Store) GetStatus() Status        { return s.Status }
func (s *Store) SetStatus(st Status)      { s.Status = st }
func (s *Store) Transitions() Transitions { return StoreTransitions }

type Campaign struct {
	ID        int64           `gorm:"primaryKey" json:"id"`
	UserID    int64           `gorm:"index;not null" json:"user_id"`
	Name      string          `gorm:"not null" json:"name"`
	Channel   string          `json:"channel"`
	Budget    decimal.Decimal `gorm:"type:numeric(18,2);not null;default:0" json:"budget"`
	Status    Status          `gorm:"type:varchar(16);not null;default:active" json:"status"`
	StartsAt  *time.Time      `json:"starts_at,omitempty"`
	EndsAt    *time.Time      `json:"ends_at,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (c *Campaign) GetID() int64             { return c.ID }
func (c *Campaign) SetID(id int64)           { c.ID = id }
func (c *Campaign) Key() string              { return "" }
func (c *Campaign) GetUserID() int64         { return c.UserID }
func (c *Campaign) GetStatus() Status        { return c.Status }
func (c *Campaign) SetStatus(s Status)       { c.Status = s }
func (c *Campaign) Transitions() Transitions { return CampaignTransitions }

type Subscription struct {
	ID        int64           `gorm:"primaryKey" json:"id"`
	UserID    int64           `gorm:"index;not null" json:"user_id"`
	Plan      string          `gorm:"not null" json:"plan"`
	Price     decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"price"`
	Status    Status          `gorm:"type:varchar(16);not null;default:active" json:"status"`
	ExpiresAt time.Time       `json:"expires_at"`
	CreatedAt time.Time       `json:"created_at"`
}

func (s *Subscription) GetID() int64             { return s.ID }
func (s *Subscription) SetID(id int64)           { s.ID = id }
func (s *Subscription) Key() string              { return "" }
func (s *Subscription) GetUserID() int64         { return s.UserID }
func (s *Subscription) GetStatus() Status        { return s.Status }
func (s *Subscription) SetStatus(st Status)      { s.Status = st }
func (s *Subscription) Transitions() Transitions { return nil }
