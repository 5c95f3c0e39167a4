// Package usage enforces the daily AI call quota for free-tier users.
package usage

import (
	"context"
	"errors"
	"time"

	"github.com/popules/ticko-sub001/app/models"
	"github.com/popules/ticko-sub001/app/store"

	"go.uber.org/zap"
)

const FreeDailyLimit = 3

const dateLayout = "2006-01-02"

// Decision is the outcome of CheckAndIncrement.
type Decision struct {
	Allowed bool
	Count   int
	Limit   int
	IsPro   bool
}

// Remaining is the number of calls left today; -1 means unlimited.
func (d Decision) Remaining() int {
	if d.IsPro {
		return -1
	}
	if d.Count >= d.Limit {
		return 0
	}
	return d.Limit - d.Count
}

type Meter struct {
	store *store.Store
	log   *zap.Logger
	limit int
	loc   *time.Location
	now   func() time.Time
}

func NewMeter(s *store.Store, log *zap.Logger, loc *time.Location) *Meter {
	if loc == nil {
		loc = time.Local
	}
	return &Meter{store: s, log: log, limit: FreeDailyLimit, loc: loc, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (m *Meter) WithClock(now func() time.Time) *Meter {
	m.now = now
	return m
}

func (m *Meter) Limit() int { return m.limit }

// Today is the server-local date key the counter is stored under.
func (m *Meter) Today() string {
	return UsageDate(m.now(), m.loc)
}

// UsageDate formats t as the counter's date key in loc.
func UsageDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(dateLayout)
}

// EffectiveCount is the stored count when it belongs to today and 0 otherwise.
// Both the read path and the write path go through this rule.
func EffectiveCount(p models.Profile, today string) int {
	if p.AIUsageDate == nil || *p.AIUsageDate != today {
		return 0
	}
	return p.AIUsageCount
}

// CheckAndIncrement consumes one AI call for userID if the quota allows it.
// Pro users always pass. A denied call leaves the counter unchanged.
func (m *Meter) CheckAndIncrement(ctx context.Context, userID string) (Decision, error) {
	today := m.Today()
	res, err := m.store.ConsumeAIUsage(ctx, userID, today, m.limit)
	if errors.Is(err, store.ErrProfileNotFound) {
		if err := m.store.EnsureProfile(ctx, userID, "", ""); err != nil {
			return Decision{}, err
		}
		res, err = m.store.ConsumeAIUsage(ctx, userID, today, m.limit)
	}
	if err != nil {
		return Decision{}, err
	}

	d := Decision{Allowed: res.Allowed, Count: res.Count, Limit: m.limit, IsPro: res.IsPro}
	if !d.Allowed {
		m.log.Debug("ai quota reached", zap.String("user_id", userID), zap.Int("count", d.Count), zap.String("date", today))
	}
	return d, nil
}

// Status reports today's usage without consuming a call.
func (m *Meter) Status(p models.Profile) Decision {
	count := EffectiveCount(p, m.Today())
	return Decision{
		Allowed: p.IsPro || count < m.limit,
		Count:   count,
		Limit:   m.limit,
		IsPro:   p.IsPro,
	}
}
