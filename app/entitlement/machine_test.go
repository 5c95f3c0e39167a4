package entitlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/popules/ticko-sub001/app/models"
	"github.com/popules/ticko-sub001/app/store"
	"github.com/popules/ticko-sub001/app/store/storetest"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)

type recordingNotifier struct {
	mu        sync.Mutex
	activated []string
	resets    []string
}

func (n *recordingNotifier) ProActivated(_ context.Context, p models.Profile) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.activated = append(n.activated, p.ID)
	return nil
}

func (n *recordingNotifier) PortfolioReset(_ context.Context, p models.Profile) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resets = append(n.resets, p.ID)
	return errors.New("mail provider down")
}

func newTestMachine(t *testing.T) (*Machine, *store.Store, *recordingNotifier) {
	t.Helper()
	s := storetest.New(t)
	n := &recordingNotifier{}
	m := NewMachine(s, zap.NewNop(), n, 5*time.Minute).WithClock(func() time.Time { return testNow })
	return m, s, n
}

func resetDelivery(webhookID, userID, checkoutID string) Delivery {
	return Delivery{
		WebhookID: webhookID,
		Event: Event{
			Type: EventCheckoutUpdated,
			Data: EventData{
				ID:       checkoutID,
				Status:   StatusSucceeded,
				Metadata: Metadata{UserID: userID, Action: ActionPortfolioReset},
			},
		},
	}
}

func subscriptionDelivery(webhookID, eventType, status, userID string, periodEnd *time.Time) Delivery {
	return Delivery{
		WebhookID: webhookID,
		Event: Event{
			Type: eventType,
			Data: EventData{
				ID:               "sub_1",
				Status:           status,
				CurrentPeriodEnd: periodEnd,
				Metadata:         Metadata{UserID: userID},
			},
		},
	}
}

func seedPortfolio(t *testing.T, s *store.Store, userID string) {
	t.Helper()
	db := s.DB()
	require.NoError(t, db.Create(&models.Position{UserID: userID, Symbol: "VOLV-B.ST", Shares: decimal.NewFromInt(10), AvgCost: decimal.NewFromInt(250)}).Error)
	require.NoError(t, db.Create(&models.Position{UserID: userID, Symbol: "AAPL", Shares: decimal.NewFromInt(2), AvgCost: decimal.NewFromInt(180)}).Error)
	for i := 0; i < 3; i++ {
		require.NoError(t, db.Create(&models.Transaction{UserID: userID, Symbol: "AAPL", Type: models.TransactionBuy, Shares: decimal.NewFromInt(1), Price: decimal.NewFromInt(180)}).Error)
	}
}

func countRows(t *testing.T, s *store.Store, model any, where string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, s.DB().Model(model).Where(where, args...).Count(&n).Error)
	return n
}

func TestResolve(t *testing.T) {
	end := testNow.Add(30 * 24 * time.Hour)
	cases := []struct {
		name string
		ev   Event
		want Kind
	}{
		{"reset", resetDelivery("", "u1", "co_1").Event, KindPaidReset},
		{"checkout other action", Event{Type: EventCheckoutUpdated, Data: EventData{Status: StatusSucceeded, Metadata: Metadata{UserID: "u1", Action: "upgrade"}}}, KindNone},
		{"checkout pending", Event{Type: EventCheckoutUpdated, Data: EventData{Status: "open", Metadata: Metadata{UserID: "u1", Action: ActionPortfolioReset}}}, KindNone},
		{"created active", subscriptionDelivery("", EventSubscriptionCreated, StatusActive, "u1", &end).Event, KindActivatePro},
		{"created incomplete", subscriptionDelivery("", EventSubscriptionCreated, "incomplete", "u1", nil).Event, KindNone},
		{"updated active", subscriptionDelivery("", EventSubscriptionUpdated, StatusActive, "u1", &end).Event, KindActivatePro},
		{"updated canceled", subscriptionDelivery("", EventSubscriptionUpdated, StatusCanceled, "u1", nil).Event, KindDeactivatePro},
		{"updated expired", subscriptionDelivery("", EventSubscriptionUpdated, StatusExpired, "u1", nil).Event, KindDeactivatePro},
		{"updated past_due", subscriptionDelivery("", EventSubscriptionUpdated, "past_due", "u1", nil).Event, KindNone},
		{"canceled", subscriptionDelivery("", EventSubscriptionCanceled, StatusActive, "u1", nil).Event, KindDeactivatePro},
		{"revoked", subscriptionDelivery("", EventSubscriptionRevoked, StatusCanceled, "u1", nil).Event, KindDeactivatePro},
		{"unknown type", Event{Type: "order.created"}, KindNone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr, err := Resolve(tc.ev)
			require.NoError(t, err)
			require.Equal(t, tc.want, tr.Kind)
		})
	}

	_, err := Resolve(Event{Type: EventSubscriptionRevoked, Data: EventData{Status: StatusCanceled}})
	require.ErrorIs(t, err, ErrMissingUserID)
}

func TestParseEvent(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"type":"subscription.updated","data":{"id":"sub_9","status":"active","current_period_end":"2026-11-15T09:30:00.123456Z","metadata":{"userId":"u7"}}}`))
	require.NoError(t, err)
	require.Equal(t, EventSubscriptionUpdated, ev.Type)
	require.Equal(t, "u7", ev.Data.Metadata.UserID)
	require.NotNil(t, ev.Data.CurrentPeriodEnd)
	require.Equal(t, 2026, ev.Data.CurrentPeriodEnd.Year())

	_, err = ParseEvent([]byte(`{"type":`))
	require.Error(t, err)
	_, err = ParseEvent([]byte(`{"data":{}}`))
	require.Error(t, err)
}

func TestPaidResetEndToEnd(t *testing.T) {
	m, s, n := newTestMachine(t)
	ctx := context.Background()
	storetest.SeedProfile(t, s, models.Profile{
		ID:             "u1",
		Email:          "u1@example.com",
		PaperWinStreak: 4,
		PaperTotalPnL:  decimal.NewFromInt(1250),
		PaperWinRate:   decimal.RequireFromString("0.62"),
	})
	seedPortfolio(t, s, "u1")

	res, err := m.Apply(ctx, resetDelivery("msg_1", "u1", "co_1"))
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, res.Outcome)
	require.Equal(t, 1, res.PaidResetCount)

	require.Zero(t, countRows(t, s, &models.Position{}, "user_id = ?", "u1"))
	require.Zero(t, countRows(t, s, &models.Transaction{}, "user_id = ? AND archived = ?", "u1", false))
	require.EqualValues(t, 3, countRows(t, s, &models.Transaction{}, "user_id = ? AND archived = ?", "u1", true))

	p, err := s.GetProfile(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 1, p.PaidResetCount)
	require.Zero(t, p.PaperWinStreak)
	require.True(t, p.PaperTotalPnL.IsZero())
	require.True(t, p.PaperWinRate.IsZero())
	require.NotNil(t, p.PaperLastReset)
	require.True(t, p.PaperLastReset.Equal(testNow))

	var logged models.ResetTransaction
	require.NoError(t, s.DB().Where("user_id = ?", "u1").Take(&logged).Error)
	require.True(t, logged.AmountSEK.Equal(decimal.NewFromInt(49)))
	require.Equal(t, models.ResetTypePaid, logged.ResetType)

	// notifier errors are logged, never surfaced
	require.Equal(t, []string{"u1"}, n.resets)
}

func TestPaidResetIsMonotonic(t *testing.T) {
	m, s, _ := newTestMachine(t)
	ctx := context.Background()
	storetest.SeedProfile(t, s, models.Profile{ID: "u1"})

	for i := 1; i <= 4; i++ {
		seedPortfolio(t, s, "u1")
		checkout := "co_" + string(rune('0'+i))
		res, err := m.Apply(ctx, resetDelivery("msg_"+checkout, "u1", checkout))
		require.NoError(t, err)
		require.Equal(t, i, res.PaidResetCount)
	}

	count, err := s.PaidResetCount(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 4, count)
	logged, err := s.CountResetTransactions(ctx, "u1")
	require.NoError(t, err)
	require.EqualValues(t, 4, logged)
}

func TestDuplicateDeliveryIsSkipped(t *testing.T) {
	m, s, _ := newTestMachine(t)
	ctx := context.Background()
	storetest.SeedProfile(t, s, models.Profile{ID: "u1"})

	res, err := m.Apply(ctx, resetDelivery("msg_1", "u1", "co_1"))
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, res.Outcome)

	res, err = m.Apply(ctx, resetDelivery("msg_1", "u1", "co_1"))
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, res.Outcome)

	count, err := s.PaidResetCount(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestRedeliveredCheckoutIsNotReapplied(t *testing.T) {
	m, s, _ := newTestMachine(t)
	ctx := context.Background()
	storetest.SeedProfile(t, s, models.Profile{ID: "u1"})

	_, err := m.Apply(ctx, resetDelivery("msg_1", "u1", "co_1"))
	require.NoError(t, err)

	// same checkout under a fresh webhook-id, e.g. after the dedup window
	res, err := m.Apply(ctx, resetDelivery("msg_2", "u1", "co_1"))
	require.NoError(t, err)
	require.Equal(t, OutcomeAlreadyApplied, res.Outcome)

	count, err := s.PaidResetCount(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestDeliveryClaimsExpire(t *testing.T) {
	m, s, _ := newTestMachine(t)
	ctx := context.Background()
	storetest.SeedProfile(t, s, models.Profile{ID: "u1"})

	_, err := m.Apply(ctx, subscriptionDelivery("msg_1", EventSubscriptionRevoked, StatusCanceled, "u1", nil))
	require.NoError(t, err)

	later := testNow.Add(6 * time.Minute)
	m.WithClock(func() time.Time { return later })
	res, err := m.Apply(ctx, subscriptionDelivery("msg_1", EventSubscriptionRevoked, StatusCanceled, "u1", nil))
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, res.Outcome)
}

func TestProLifecycle(t *testing.T) {
	m, s, n := newTestMachine(t)
	ctx := context.Background()
	storetest.SeedProfile(t, s, models.Profile{ID: "u1"})
	end := testNow.Add(30 * 24 * time.Hour)

	res, err := m.Apply(ctx, subscriptionDelivery("msg_1", EventSubscriptionCreated, StatusActive, "u1", &end))
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, res.Outcome)

	p, err := s.GetProfile(ctx, "u1")
	require.NoError(t, err)
	require.True(t, p.IsPro)
	require.Equal(t, models.ProWatchlistLimit, p.WatchlistLimit)
	require.NotNil(t, p.ProExpiresAt)
	require.True(t, p.ProExpiresAt.Equal(end))

	// renewal keeps the user Pro and does not mail again
	renewed := end.Add(30 * 24 * time.Hour)
	_, err = m.Apply(ctx, subscriptionDelivery("msg_2", EventSubscriptionUpdated, StatusActive, "u1", &renewed))
	require.NoError(t, err)
	require.Equal(t, []string{"u1"}, n.activated)

	_, err = m.Apply(ctx, subscriptionDelivery("msg_3", EventSubscriptionCanceled, StatusCanceled, "u1", nil))
	require.NoError(t, err)
	p, err = s.GetProfile(ctx, "u1")
	require.NoError(t, err)
	require.False(t, p.IsPro)
	require.Equal(t, models.FreeWatchlistLimit, p.WatchlistLimit)

	// deactivating twice is a no-op on state
	_, err = m.Apply(ctx, subscriptionDelivery("msg_4", EventSubscriptionRevoked, StatusCanceled, "u1", nil))
	require.NoError(t, err)
	p, err = s.GetProfile(ctx, "u1")
	require.NoError(t, err)
	require.False(t, p.IsPro)
}

func TestActivationIsIdempotent(t *testing.T) {
	m, s, n := newTestMachine(t)
	ctx := context.Background()
	storetest.SeedProfile(t, s, models.Profile{ID: "u1"})
	end := testNow.Add(30 * 24 * time.Hour)

	_, err := m.Apply(ctx, subscriptionDelivery("msg_1", EventSubscriptionUpdated, StatusActive, "u1", &end))
	require.NoError(t, err)
	once, err := s.GetProfile(ctx, "u1")
	require.NoError(t, err)

	res, err := m.Apply(ctx, subscriptionDelivery("msg_2", EventSubscriptionUpdated, StatusActive, "u1", &end))
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, res.Outcome)
	twice, err := s.GetProfile(ctx, "u1")
	require.NoError(t, err)

	once.UpdatedAt, twice.UpdatedAt = time.Time{}, time.Time{}
	require.True(t, once.ProExpiresAt.Equal(*twice.ProExpiresAt))
	once.ProExpiresAt, twice.ProExpiresAt = nil, nil
	require.Equal(t, once, twice)
	require.Equal(t, []string{"u1"}, n.activated)
}

func TestIgnoredAndInvalidEvents(t *testing.T) {
	m, s, _ := newTestMachine(t)
	ctx := context.Background()

	res, err := m.Apply(ctx, Delivery{WebhookID: "msg_1", Event: Event{Type: "order.created"}})
	require.NoError(t, err)
	require.Equal(t, OutcomeIgnored, res.Outcome)
	require.Zero(t, countRows(t, s, &models.WebhookDelivery{}, "1 = 1"))

	_, err = m.Apply(ctx, resetDelivery("msg_2", "", "co_1"))
	require.ErrorIs(t, err, ErrMissingUserID)
}

func TestFailedStepRollsBack(t *testing.T) {
	m, s, _ := newTestMachine(t)
	ctx := context.Background()
	storetest.SeedProfile(t, s, models.Profile{ID: "u1", PaperWinStreak: 2})
	seedPortfolio(t, s, "u1")

	failLog := true
	require.NoError(t, s.DB().Callback().Create().Before("gorm:create").Register("test:fail_reset_log", func(db *gorm.DB) {
		if failLog && db.Statement.Table == "reset_transactions" {
			_ = db.AddError(errors.New("insert rejected"))
		}
	}))

	_, err := m.Apply(ctx, resetDelivery("msg_1", "u1", "co_1"))
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	require.Equal(t, StepAppendResetLog, stepErr.Step)
	require.Equal(t, "u1", stepErr.UserID)

	require.EqualValues(t, 2, countRows(t, s, &models.Position{}, "user_id = ?", "u1"))
	require.Zero(t, countRows(t, s, &models.Transaction{}, "archived = ?", true))
	p, err := s.GetProfile(ctx, "u1")
	require.NoError(t, err)
	require.Zero(t, p.PaidResetCount)
	require.Equal(t, 2, p.PaperWinStreak)

	// the claim rolled back too, so the same delivery can be replayed
	failLog = false
	res, err := m.Apply(ctx, resetDelivery("msg_1", "u1", "co_1"))
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, res.Outcome)
	require.Equal(t, 1, res.PaidResetCount)
}

func TestUnknownUserFailsWithStep(t *testing.T) {
	m, s, _ := newTestMachine(t)

	_, err := m.Apply(context.Background(), subscriptionDelivery("msg_1", EventSubscriptionCreated, StatusActive, "ghost", nil))
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	require.Equal(t, StepGrantPro, stepErr.Step)
	require.ErrorIs(t, err, store.ErrProfileNotFound)
	require.Zero(t, countRows(t, s, &models.WebhookDelivery{}, "id = ?", "msg_1"))
}
