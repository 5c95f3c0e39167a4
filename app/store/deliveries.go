package store

import (
	"context"
	"time"

	"github.com/popules/ticko-sub001/app/models"

	"gorm.io/gorm/clause"
)

// ClaimDelivery records a webhook-id. It returns false when the id was
// already claimed, which callers treat as a redelivery.
func (s *Store) ClaimDelivery(ctx context.Context, webhookID, eventType string, at time.Time) (bool, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.WebhookDelivery{
		ID:          webhookID,
		EventType:   eventType,
		ProcessedAt: at,
	})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// PruneDeliveries forgets claims processed before cutoff.
func (s *Store) PruneDeliveries(ctx context.Context, cutoff time.Time) (int64, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	res := db.Where("processed_at < ?", cutoff).Delete(&models.WebhookDelivery{})
	return res.RowsAffected, res.Error
}
