// Package mail sends transactional emails about entitlement changes.
package mail

import (
	"context"
	"errors"
	"fmt"

	"github.com/popules/ticko-sub001/app/models"

	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"
)

// Sender delivers one message. resend.EmailsSvc satisfies it.
type Sender interface {
	Send(params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

type Mailer struct {
	sender Sender
	from   string
	log    *zap.Logger
}

// New returns a Resend-backed mailer, or a logging no-op when apiKey is empty.
func New(apiKey, from string, log *zap.Logger) *Mailer {
	if apiKey == "" || from == "" {
		log.Info("email disabled: RESEND_API_KEY or EMAIL_FROM not set")
		return &Mailer{from: from, log: log}
	}
	return NewWithSender(resend.NewClient(apiKey).Emails, from, log)
}

func NewWithSender(sender Sender, from string, log *zap.Logger) *Mailer {
	return &Mailer{sender: sender, from: from, log: log}
}

func (m *Mailer) ProActivated(ctx context.Context, p models.Profile) error {
	return m.send(ctx, p, "Welcome to Ticko Pro",
		fmt.Sprintf(`<p>Hi %s,</p><p>Your Pro subscription is active. Your watchlist now holds up to %d symbols and AI calls are unlimited.</p>`,
			displayName(p), models.ProWatchlistLimit))
}

func (m *Mailer) PortfolioReset(ctx context.Context, p models.Profile) error {
	return m.send(ctx, p, "Your paper portfolio was reset",
		fmt.Sprintf(`<p>Hi %s,</p><p>Your paper portfolio has been reset. Your trade history is archived and your stats start fresh. This was reset number %d.</p>`,
			displayName(p), p.PaidResetCount))
}

func (m *Mailer) send(ctx context.Context, p models.Profile, subject, html string) error {
	if m.sender == nil {
		m.log.Debug("email skipped", zap.String("user_id", p.ID), zap.String("subject", subject))
		return nil
	}
	if p.Email == "" {
		return errors.New("profile has no email")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	sent, err := m.sender.Send(&resend.SendEmailRequest{
		From:    m.from,
		To:      []string{p.Email},
		Subject: subject,
		Html:    html,
	})
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	m.log.Info("email sent", zap.String("user_id", p.ID), zap.String("subject", subject), zap.String("email_id", sent.Id))
	return nil
}

func displayName(p models.Profile) string {
	if p.Username != "" {
		return p.Username
	}
	return "there"
}
