package entitlement

import (
	"context"
	"fmt"
	"time"

	"github.com/popules/ticko-sub001/app/models"
	"github.com/popules/ticko-sub001/app/store"

	"go.uber.org/zap"
)

const (
	StepClaimDelivery     = "claim_delivery"
	StepCheckCheckout     = "check_checkout"
	StepArchive           = "archive_transactions"
	StepDeletePositions   = "delete_positions"
	StepReadResetCount    = "read_paid_reset_count"
	StepResetStats        = "reset_paper_stats"
	StepAppendResetLog    = "append_reset_transaction"
	StepGrantPro          = "grant_pro"
	StepRevokePro         = "revoke_pro"
	defaultDeliveryMaxAge = 5 * time.Minute
)

// StepError names the step of a transition that failed. The surrounding
// database transaction has been rolled back when it is returned.
type StepError struct {
	Step   string
	UserID string
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s failed for user %s: %v", e.Step, e.UserID, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

type Outcome string

const (
	OutcomeApplied        Outcome = "applied"
	OutcomeIgnored        Outcome = "ignored"
	OutcomeDuplicate      Outcome = "duplicate"
	OutcomeAlreadyApplied Outcome = "already_applied"
)

type Result struct {
	Kind           Kind
	Outcome        Outcome
	UserID         string
	PaidResetCount int
}

// Notifier tells users about entitlement changes. Failures never undo them.
type Notifier interface {
	ProActivated(ctx context.Context, p models.Profile) error
	PortfolioReset(ctx context.Context, p models.Profile) error
}

type Machine struct {
	store    *store.Store
	log      *zap.Logger
	notifier Notifier
	dedupTTL time.Duration
	now      func() time.Time
}

func NewMachine(s *store.Store, log *zap.Logger, notifier Notifier, dedupTTL time.Duration) *Machine {
	if dedupTTL <= 0 {
		dedupTTL = defaultDeliveryMaxAge
	}
	return &Machine{store: s, log: log, notifier: notifier, dedupTTL: dedupTTL, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (m *Machine) WithClock(now func() time.Time) *Machine {
	m.now = now
	return m
}

// Apply runs the transition for a verified delivery. The delivery claim and
// every side effect share one database transaction, so a failure leaves the
// user untouched and the delivery unclaimed.
func (m *Machine) Apply(ctx context.Context, d Delivery) (Result, error) {
	tr, err := Resolve(d.Event)
	if err != nil {
		return Result{}, err
	}
	res := Result{Kind: tr.Kind, UserID: tr.UserID, Outcome: OutcomeIgnored}
	if tr.Kind == KindNone {
		return res, nil
	}

	now := m.now()
	if n, err := m.store.PruneDeliveries(ctx, now.Add(-m.dedupTTL)); err != nil {
		m.log.Warn("prune webhook deliveries failed", zap.Error(err))
	} else if n > 0 {
		m.log.Debug("pruned webhook deliveries", zap.Int64("count", n))
	}

	var wasPro bool
	err = m.store.Transaction(ctx, func(tx *store.Store) error {
		if d.WebhookID != "" {
			claimed, err := tx.ClaimDelivery(ctx, d.WebhookID, d.Event.Type, now)
			if err != nil {
				return &StepError{Step: StepClaimDelivery, UserID: tr.UserID, Err: err}
			}
			if !claimed {
				res.Outcome = OutcomeDuplicate
				return nil
			}
		}

		switch tr.Kind {
		case KindActivatePro:
			if tr.ExpiresAt == nil {
				m.log.Warn("pro activation without current_period_end",
					zap.String("webhook_id", d.WebhookID),
					zap.String("user_id", tr.UserID),
				)
			}
			wasPro, err = tx.GrantPro(ctx, tr.UserID, tr.ExpiresAt)
			if err != nil {
				return &StepError{Step: StepGrantPro, UserID: tr.UserID, Err: err}
			}
			res.Outcome = OutcomeApplied
		case KindDeactivatePro:
			if err := tx.RevokePro(ctx, tr.UserID); err != nil {
				return &StepError{Step: StepRevokePro, UserID: tr.UserID, Err: err}
			}
			res.Outcome = OutcomeApplied
		case KindPaidReset:
			outcome, count, err := paidReset(ctx, tx, tr.UserID, tr.CheckoutID, now)
			if err != nil {
				return err
			}
			res.Outcome = outcome
			res.PaidResetCount = count
		}
		return nil
	})
	if err != nil {
		return res, err
	}

	m.log.Info("entitlement event processed",
		zap.String("webhook_id", d.WebhookID),
		zap.String("event_type", d.Event.Type),
		zap.String("transition", tr.Kind.String()),
		zap.String("outcome", string(res.Outcome)),
		zap.String("user_id", tr.UserID),
	)

	if res.Outcome == OutcomeApplied {
		m.notify(ctx, tr, wasPro)
	}
	return res, nil
}

// paidReset archives history, clears positions, resets stats and logs the
// reset, in that order. A checkout that was already logged is not reapplied.
func paidReset(ctx context.Context, tx *store.Store, userID, checkoutID string, now time.Time) (Outcome, int, error) {
	applied, err := tx.ResetApplied(ctx, checkoutID)
	if err != nil {
		return "", 0, &StepError{Step: StepCheckCheckout, UserID: userID, Err: err}
	}
	if applied {
		return OutcomeAlreadyApplied, 0, nil
	}

	if _, err := tx.ArchiveTransactions(ctx, userID); err != nil {
		return "", 0, &StepError{Step: StepArchive, UserID: userID, Err: err}
	}
	if _, err := tx.DeletePositions(ctx, userID); err != nil {
		return "", 0, &StepError{Step: StepDeletePositions, UserID: userID, Err: err}
	}
	count, err := tx.PaidResetCount(ctx, userID)
	if err != nil {
		return "", 0, &StepError{Step: StepReadResetCount, UserID: userID, Err: err}
	}
	if err := tx.ResetPaperStats(ctx, userID, now); err != nil {
		return "", 0, &StepError{Step: StepResetStats, UserID: userID, Err: err}
	}
	if err := tx.AppendResetTransaction(ctx, userID, checkoutID, now); err != nil {
		return "", 0, &StepError{Step: StepAppendResetLog, UserID: userID, Err: err}
	}
	return OutcomeApplied, count + 1, nil
}

func (m *Machine) notify(ctx context.Context, tr Transition, wasPro bool) {
	if m.notifier == nil {
		return
	}
	var send func(context.Context, models.Profile) error
	switch {
	case tr.Kind == KindActivatePro && !wasPro:
		send = m.notifier.ProActivated
	case tr.Kind == KindPaidReset:
		send = m.notifier.PortfolioReset
	default:
		return
	}

	p, err := m.store.GetProfile(ctx, tr.UserID)
	if err != nil {
		m.log.Warn("load profile for notification failed", zap.String("user_id", tr.UserID), zap.Error(err))
		return
	}
	if err := send(ctx, p); err != nil {
		m.log.Warn("entitlement notification failed",
			zap.String("user_id", tr.UserID),
			zap.String("transition", tr.Kind.String()),
			zap.Error(err),
		)
	}
}
