package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ReportKind string

const (
	ReportMorning  ReportKind = "morning"
	ReportInsights ReportKind = "insights"
)

// Report is a stored AI-generated text for a user.
type Report struct {
	ID        string     `gorm:"primaryKey" json:"id"`
	UserID    string     `gorm:"not null;index" json:"user_id"`
	Kind      ReportKind `gorm:"type:varchar(16);not null" json:"kind"`
	Content   string     `gorm:"type:text;not null" json:"content"`
	Fallback  bool       `gorm:"not null;default:false" json:"fallback"`
	CreatedAt time.Time  `json:"created_at"`
}

func (Report) TableName() string { return "reports" }

func (r *Report) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
