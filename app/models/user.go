// Package models defines profile entitlement and usage tracking fields.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Plan string

const (
	PlanFree Plan = "FREE"
	PlanPro  Plan = "PRO"
)

const (
	FreeWatchlistLimit = 10
	ProWatchlistLimit  = 50
)

// Profile is the per-user record holding entitlements, the AI usage counter
// and paper-trading stats. ID is the auth subject.
type Profile struct {
	ID             string          `gorm:"primaryKey" json:"id"`
	Email          string          `json:"email"`
	Username       string          `json:"username"`
	IsPro          bool            `gorm:"not null;default:false" json:"is_pro"`
	ProExpiresAt   *time.Time      `json:"pro_expires_at"`
	WatchlistLimit int             `gorm:"not null;default:10" json:"watchlist_limit"`
	AIUsageCount   int             `gorm:"column:ai_usage_count;not null;default:0" json:"ai_usage_count"`
	AIUsageDate    *string         `gorm:"column:ai_usage_date;type:varchar(10)" json:"ai_usage_date"`
	PaidResetCount int             `gorm:"not null;default:0" json:"paid_reset_count"`
	PaperWinStreak int             `gorm:"not null;default:0" json:"paper_win_streak"`
	PaperTotalPnL  decimal.Decimal `gorm:"column:paper_total_pnl;type:numeric;not null;default:0" json:"paper_total_pnl"`
	PaperWinRate   decimal.Decimal `gorm:"type:numeric;not null;default:0" json:"paper_win_rate"`
	PaperLastReset *time.Time      `json:"paper_last_reset"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (Profile) TableName() string { return "profiles" }

func (p Profile) Plan() Plan {
	if p.IsPro {
		return PlanPro
	}
	return PlanFree
}
