// Package entitlement applies verified payment provider events to user
// entitlements: Pro activation, Pro deactivation and paid portfolio resets.
package entitlement

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	EventCheckoutUpdated      = "checkout.updated"
	EventSubscriptionCreated  = "subscription.created"
	EventSubscriptionUpdated  = "subscription.updated"
	EventSubscriptionCanceled = "subscription.canceled"
	EventSubscriptionRevoked  = "subscription.revoked"

	StatusSucceeded = "succeeded"
	StatusActive    = "active"
	StatusCanceled  = "canceled"
	StatusExpired   = "expired"

	ActionPortfolioReset = "portfolio_reset"
)

var ErrMissingUserID = errors.New("missing userId in event metadata")

// Event is the provider's webhook envelope, reduced to the fields we act on.
type Event struct {
	Type string    `json:"type"`
	Data EventData `json:"data"`
}

type EventData struct {
	ID               string     `json:"id"`
	Status           string     `json:"status"`
	CurrentPeriodEnd *time.Time `json:"current_period_end"`
	Metadata         Metadata   `json:"metadata"`
}

type Metadata struct {
	UserID string `json:"userId"`
	Action string `json:"action"`
}

// Delivery is one verified webhook message.
type Delivery struct {
	WebhookID  string    `json:"webhook_id"`
	Event      Event     `json:"event"`
	ReceivedAt time.Time `json:"received_at"`
}

// ParseEvent decodes a raw webhook body.
func ParseEvent(body []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if ev.Type == "" {
		return Event{}, errors.New("decode event: missing type")
	}
	return ev, nil
}

type Kind int

const (
	KindNone Kind = iota
	KindActivatePro
	KindDeactivatePro
	KindPaidReset
)

func (k Kind) String() string {
	switch k {
	case KindActivatePro:
		return "activate_pro"
	case KindDeactivatePro:
		return "deactivate_pro"
	case KindPaidReset:
		return "paid_reset"
	default:
		return "none"
	}
}

// Transition is the state change an event asks for.
type Transition struct {
	Kind       Kind
	UserID     string
	CheckoutID string
	ExpiresAt  *time.Time
}

func recognised(eventType string) bool {
	switch eventType {
	case EventCheckoutUpdated, EventSubscriptionCreated, EventSubscriptionUpdated,
		EventSubscriptionCanceled, EventSubscriptionRevoked:
		return true
	}
	return false
}

// Resolve maps an event to its transition. Events we do not handle resolve to
// KindNone; recognised events without a userId fail with ErrMissingUserID.
func Resolve(ev Event) (Transition, error) {
	if !recognised(ev.Type) {
		return Transition{Kind: KindNone}, nil
	}
	userID := ev.Data.Metadata.UserID
	if userID == "" {
		return Transition{}, ErrMissingUserID
	}

	t := Transition{Kind: KindNone, UserID: userID}
	switch ev.Type {
	case EventCheckoutUpdated:
		if ev.Data.Status == StatusSucceeded && ev.Data.Metadata.Action == ActionPortfolioReset {
			t.Kind = KindPaidReset
			t.CheckoutID = ev.Data.ID
		}
	case EventSubscriptionCreated:
		if ev.Data.Status == StatusActive {
			t.Kind = KindActivatePro
			t.ExpiresAt = ev.Data.CurrentPeriodEnd
		}
	case EventSubscriptionUpdated:
		switch ev.Data.Status {
		case StatusActive:
			t.Kind = KindActivatePro
			t.ExpiresAt = ev.Data.CurrentPeriodEnd
		case StatusCanceled, StatusExpired:
			t.Kind = KindDeactivatePro
		}
	case EventSubscriptionCanceled, EventSubscriptionRevoked:
		t.Kind = KindDeactivatePro
	}
	return t, nil
}
