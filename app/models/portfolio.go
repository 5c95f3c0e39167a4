package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type TransactionType string

const (
	TransactionBuy   TransactionType = "buy"
	TransactionSell  TransactionType = "sell"
	TransactionReset TransactionType = "reset"
)

// Position is one open holding per (user, symbol).
type Position struct {
	ID        string          `gorm:"primaryKey" json:"id"`
	UserID    string          `gorm:"not null;uniqueIndex:ux_portfolio_user_symbol,priority:1" json:"user_id"`
	Symbol    string          `gorm:"not null;uniqueIndex:ux_portfolio_user_symbol,priority:2" json:"symbol"`
	Shares    decimal.Decimal `gorm:"type:numeric;not null" json:"shares"`
	AvgCost   decimal.Decimal `gorm:"type:numeric;not null" json:"avg_cost"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (Position) TableName() string { return "portfolio" }

func (p *Position) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// Transaction is an immutable trade record. Resets flip Archived instead of
// deleting rows.
type Transaction struct {
	ID        string          `gorm:"primaryKey" json:"id"`
	UserID    string          `gorm:"not null;index" json:"user_id"`
	Symbol    string          `json:"symbol"`
	Type      TransactionType `gorm:"type:varchar(16);not null" json:"type"`
	Shares    decimal.Decimal `gorm:"type:numeric;not null;default:0" json:"shares"`
	Price     decimal.Decimal `gorm:"type:numeric;not null;default:0" json:"price"`
	Archived  bool            `gorm:"not null;default:false;index" json:"archived"`
	CreatedAt time.Time       `json:"created_at"`
}

func (Transaction) TableName() string { return "transactions" }

func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

const (
	ResetTypePaid = "paid"
)

// PaidResetPriceSEK is what a paid portfolio reset costs.
var PaidResetPriceSEK = decimal.NewFromInt(49)

// ResetTransaction is the append-only log of paid resets. CheckoutID is the
// provider checkout that paid for it, unique when present.
type ResetTransaction struct {
	ID         string          `gorm:"primaryKey" json:"id"`
	UserID     string          `gorm:"not null;index" json:"user_id"`
	AmountSEK  decimal.Decimal `gorm:"column:amount_sek;type:numeric;not null" json:"amount_sek"`
	ResetType  string          `gorm:"type:varchar(16);not null" json:"reset_type"`
	CheckoutID *string         `gorm:"uniqueIndex" json:"checkout_id,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

func (ResetTransaction) TableName() string { return "reset_transactions" }

func (r *ResetTransaction) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
