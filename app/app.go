package app

import (
	"context"
	"fmt"

	"github.com/popules/ticko-sub001/app/ai"
	"github.com/popules/ticko-sub001/app/config"
	"github.com/popules/ticko-sub001/app/entitlement"
	"github.com/popules/ticko-sub001/app/llm"
	"github.com/popules/ticko-sub001/app/mail"
	"github.com/popules/ticko-sub001/app/quotes"
	"github.com/popules/ticko-sub001/app/reconcile"
	"github.com/popules/ticko-sub001/app/store"
	"github.com/popules/ticko-sub001/app/usage"
	"github.com/popules/ticko-sub001/app/webhook"
	"github.com/popules/ticko-sub001/auth"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// App is the assembled API: store, state machine and router.
type App struct {
	Config  *config.Config
	Log     *zap.Logger
	Store   *store.Store
	Machine *entitlement.Machine
	Router  *gin.Engine
}

// NewMachine opens the store and builds the entitlement state machine. The
// reconcile worker needs only this much.
func NewMachine(ctx context.Context, cfg *config.Config, log *zap.Logger) (*store.Store, *entitlement.Machine, error) {
	st, err := store.Open(ctx, cfg.DB, log.Named("store"))
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	mailer := mail.New(cfg.Email.APIKey, cfg.Email.From, log.Named("mail"))
	machine := entitlement.NewMachine(st, log.Named("entitlement"), mailer, cfg.Webhook.DedupTTL)
	return st, machine, nil
}

// New wires every component from cfg.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	if !cfg.IsLocal() {
		gin.SetMode(gin.ReleaseMode)
	}

	loc, err := cfg.Usage.Location()
	if err != nil {
		return nil, fmt.Errorf("USAGE_TIMEZONE: %w", err)
	}

	var verifier *auth.Verifier
	authDisabled := cfg.AuthDisabled()
	if !authDisabled {
		verifier, err = auth.NewVerifierFromConfig(cfg.Auth)
		if err != nil {
			return nil, err
		}
	}

	st, machine, err := NewMachine(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	publisher, err := reconcile.NewPublisher(ctx, cfg.Queue.ReconcileURL, log.Named("reconcile"))
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	hooks := webhook.NewVerifier(cfg.Webhook.Secret, cfg.Webhook.Tolerance)
	if !hooks.Configured() {
		log.Warn("POLAR_WEBHOOK_SECRET missing or not base64, every webhook will be rejected")
	}

	quoteClient := quotes.NewClient(cfg.Quotes.BaseURL, cfg.Quotes.Timeout, log.Named("quotes"))
	llmClient := llm.New(cfg.AI.APIKey, cfg.AI.BaseURL, cfg.AI.Model, cfg.AI.Timeout, log.Named("llm"))

	meter := usage.NewMeter(st, log.Named("usage"), loc)

	h := NewHandlers(Deps{
		Store:     st,
		Meter:     meter,
		Machine:   machine,
		Verifier:  hooks,
		Reconcile: publisher,
		AI:        ai.NewService(st, llmClient, quoteClient, log.Named("ai")).WithQuota(meter),
		Quotes:    quoteClient,
		Log:       log,
	})
	router := NewRouter(h, verifier, auth.MiddlewareConfig{DisableAuth: authDisabled})

	return &App{Config: cfg, Log: log, Store: st, Machine: machine, Router: router}, nil
}

func (a *App) Close() error {
	return a.Store.Close()
}
