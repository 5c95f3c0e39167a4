package store

import (
	"context"
	"errors"

	"github.com/popules/ticko-sub001/app/models"

	"gorm.io/gorm"
)

var ErrReportNotFound = errors.New("report not found")

// ListPositions returns the user's open positions ordered by symbol.
func (s *Store) ListPositions(ctx context.Context, userID string) ([]models.Position, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	var out []models.Position
	if err := db.Where("user_id = ?", userID).Order("symbol").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// RecentTransactions returns up to limit non-archived transactions, newest first.
func (s *Store) RecentTransactions(ctx context.Context, userID string, limit int) ([]models.Transaction, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	var out []models.Transaction
	err := db.Where("user_id = ? AND archived = ?", userID, false).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) SaveReport(ctx context.Context, report *models.Report) error {
	db, cancel := s.conn(ctx)
	defer cancel()
	return db.Create(report).Error
}

// LatestReport returns the newest report of a kind for the user.
func (s *Store) LatestReport(ctx context.Context, userID string, kind models.ReportKind) (models.Report, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	var r models.Report
	err := db.Where("user_id = ? AND kind = ?", userID, kind).Order("created_at DESC").Take(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Report{}, ErrReportNotFound
	}
	return r, err
}
