package store

import (
	"context"
	"errors"
	"time"

	"github.com/popules/ticko-sub001/app/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetProfile loads a profile by auth subject.
func (s *Store) GetProfile(ctx context.Context, userID string) (models.Profile, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	var p models.Profile
	if err := db.Where("id = ?", userID).Take(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Profile{}, ErrProfileNotFound
		}
		return models.Profile{}, err
	}
	return p, nil
}

// EnsureProfile creates a free-tier profile if none exists yet.
func (s *Store) EnsureProfile(ctx context.Context, userID, email, username string) error {
	if userID == "" {
		return errors.New("missing user id")
	}
	db, cancel := s.conn(ctx)
	defer cancel()

	p := models.Profile{
		ID:             userID,
		Email:          email,
		Username:       username,
		WatchlistLimit: models.FreeWatchlistLimit,
	}
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&p).Error
}

// GrantPro marks the user Pro until expiresAt and raises the watchlist limit.
// A nil expiresAt clears any earlier expiry. wasPro reports the state before
// the update.
func (s *Store) GrantPro(ctx context.Context, userID string, expiresAt *time.Time) (wasPro bool, err error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	var before models.Profile
	if err := db.Select("id", "is_pro").Where("id = ?", userID).Take(&before).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrProfileNotFound
		}
		return false, err
	}

	updates := map[string]any{
		"is_pro":          true,
		"watchlist_limit": models.ProWatchlistLimit,
		"pro_expires_at":  nil,
	}
	if expiresAt != nil {
		updates["pro_expires_at"] = *expiresAt
	}
	if err := db.Model(&models.Profile{}).Where("id = ?", userID).Updates(updates).Error; err != nil {
		return before.IsPro, err
	}
	return before.IsPro, nil
}

// RevokePro drops the user to the free tier. pro_expires_at is kept; is_pro is
// authoritative.
func (s *Store) RevokePro(ctx context.Context, userID string) error {
	db, cancel := s.conn(ctx)
	defer cancel()

	res := db.Model(&models.Profile{}).Where("id = ?", userID).Updates(map[string]any{
		"is_pro":          false,
		"watchlist_limit": models.FreeWatchlistLimit,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// UsageResult is the outcome of one metered AI call attempt.
type UsageResult struct {
	Allowed bool
	Count   int
	IsPro   bool
}

// ConsumeAIUsage increments the daily AI counter in a single conditional
// UPDATE. The row only changes when the user is Pro, the stored date is not
// today, or the count is still below limit; otherwise Allowed is false and the
// row is untouched.
func (s *Store) ConsumeAIUsage(ctx context.Context, userID, today string, limit int) (UsageResult, error) {
	var out UsageResult
	err := s.Transaction(ctx, func(tx *Store) error {
		res := tx.db.Model(&models.Profile{}).
			Where("id = ?", userID).
			Where("(is_pro = ? OR ai_usage_date IS NULL OR ai_usage_date <> ? OR ai_usage_count < ?)", true, today, limit).
			Updates(map[string]any{
				"ai_usage_count": gorm.Expr("CASE WHEN ai_usage_date = ? THEN ai_usage_count + 1 ELSE 1 END", today),
				"ai_usage_date":  today,
			})
		if res.Error != nil {
			return res.Error
		}

		var p models.Profile
		if err := tx.db.Select("id", "is_pro", "ai_usage_count", "ai_usage_date").Where("id = ?", userID).Take(&p).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrProfileNotFound
			}
			return err
		}
		out = UsageResult{Allowed: res.RowsAffected > 0, Count: p.AIUsageCount, IsPro: p.IsPro}
		return nil
	})
	return out, err
}
