package app

import (
	"context"
	"time"

	"github.com/popules/ticko-sub001/app/ai"
	"github.com/popules/ticko-sub001/app/entitlement"
	"github.com/popules/ticko-sub001/app/quotes"
	"github.com/popules/ticko-sub001/app/reconcile"
	"github.com/popules/ticko-sub001/app/store"
	"github.com/popules/ticko-sub001/app/usage"
	"github.com/popules/ticko-sub001/app/webhook"

	"go.uber.org/zap"
)

type QuoteGetter interface {
	GetQuote(ctx context.Context, symbol string) (quotes.Quote, error)
}

// Handlers holds the dependencies of every HTTP handler.
type Handlers struct {
	store     *store.Store
	meter     *usage.Meter
	machine   *entitlement.Machine
	verifier  *webhook.Verifier
	reconcile reconcile.Publisher
	ai        *ai.Service
	quotes    QuoteGetter
	log       *zap.Logger
	now       func() time.Time
}

type Deps struct {
	Store     *store.Store
	Meter     *usage.Meter
	Machine   *entitlement.Machine
	Verifier  *webhook.Verifier
	Reconcile reconcile.Publisher
	AI        *ai.Service
	Quotes    QuoteGetter
	Log       *zap.Logger
}

func NewHandlers(d Deps) *Handlers {
	pub := d.Reconcile
	if pub == nil {
		pub = reconcile.NewNopPublisher(d.Log)
	}
	return &Handlers{
		store:     d.Store,
		meter:     d.Meter,
		machine:   d.Machine,
		verifier:  d.Verifier,
		reconcile: pub,
		ai:        d.AI,
		quotes:    d.Quotes,
		log:       d.Log,
		now:       time.Now,
	}
}
