package store

import (
	"context"
	"errors"
	"time"

	"github.com/popules/ticko-sub001/app/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ResetApplied reports whether a paid reset for checkoutID is already logged.
func (s *Store) ResetApplied(ctx context.Context, checkoutID string) (bool, error) {
	if checkoutID == "" {
		return false, nil
	}
	db, cancel := s.conn(ctx)
	defer cancel()

	var n int64
	if err := db.Model(&models.ResetTransaction{}).Where("checkout_id = ?", checkoutID).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// ArchiveTransactions flags every transaction of the user as archived.
func (s *Store) ArchiveTransactions(ctx context.Context, userID string) (int64, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	res := db.Model(&models.Transaction{}).Where("user_id = ? AND archived = ?", userID, false).Update("archived", true)
	return res.RowsAffected, res.Error
}

// DeletePositions removes every open position of the user.
func (s *Store) DeletePositions(ctx context.Context, userID string) (int64, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	res := db.Where("user_id = ?", userID).Delete(&models.Position{})
	return res.RowsAffected, res.Error
}

// PaidResetCount reads the current paid_reset_count of the user.
func (s *Store) PaidResetCount(ctx context.Context, userID string) (int, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	var p models.Profile
	if err := db.Select("id", "paid_reset_count").Where("id = ?", userID).Take(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrProfileNotFound
		}
		return 0, err
	}
	return p.PaidResetCount, nil
}

// ResetPaperStats zeroes the trading stats, bumps paid_reset_count and stamps
// paper_last_reset.
func (s *Store) ResetPaperStats(ctx context.Context, userID string, at time.Time) error {
	db, cancel := s.conn(ctx)
	defer cancel()

	res := db.Model(&models.Profile{}).Where("id = ?", userID).Updates(map[string]any{
		"paper_win_streak": 0,
		"paper_total_pnl":  decimal.Zero,
		"paper_win_rate":   decimal.Zero,
		"paid_reset_count": gorm.Expr("paid_reset_count + 1"),
		"paper_last_reset": at,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// AppendResetTransaction writes one row to the paid reset log.
func (s *Store) AppendResetTransaction(ctx context.Context, userID, checkoutID string, at time.Time) error {
	db, cancel := s.conn(ctx)
	defer cancel()

	row := models.ResetTransaction{
		UserID:    userID,
		AmountSEK: models.PaidResetPriceSEK,
		ResetType: models.ResetTypePaid,
		CreatedAt: at,
	}
	if checkoutID != "" {
		row.CheckoutID = &checkoutID
	}
	return db.Create(&row).Error
}

// CountResetTransactions is the number of logged paid resets for the user.
func (s *Store) CountResetTransactions(ctx context.Context, userID string) (int64, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	var n int64
	err := db.Model(&models.ResetTransaction{}).Where("user_id = ?", userID).Count(&n).Error
	return n, err
}
