// Package ai builds prompts from a user's paper portfolio, calls the LLM
// gateway and falls back to canned text when the gateway or quotes fail.
package ai

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/popules/ticko-sub001/app/llm"
	"github.com/popules/ticko-sub001/app/models"
	"github.com/popules/ticko-sub001/app/quotes"
	"github.com/popules/ticko-sub001/app/store"
	"github.com/popules/ticko-sub001/app/usage"

	"go.uber.org/zap"
)

const (
	MaxMessageLength   = 2000
	recentTransactions = 20
)

var (
	ErrEmptyMessage   = errors.New("message is empty")
	ErrMessageTooLong = errors.New("message is too long")
	ErrLimitReached   = errors.New("daily AI limit reached")
)

const (
	FallbackChat     = "The AI copilot is unavailable right now. Try again in a little while."
	FallbackMorning  = "Good morning! We could not build your market report right now. Check your watchlist for today's moves and try again later."
	FallbackInsights = "We could not analyse your trades right now. Keep logging trades and check back later for insights."
)

const (
	systemCopilot = "You are Ticko, a friendly trading copilot for a paper-trading app. " +
		"Answer briefly and concretely. Never give personalised financial advice; remind the user this is paper trading when relevant."
	systemMorning = "You write a short morning market report for a paper trader. " +
		"Summarise how each holding moved, mention the biggest mover, and keep it under 150 words."
	systemInsights = "You review a paper trader's recent trades and stats. " +
		"Give three short, actionable observations about their trading habits."
)

type Completer interface {
	Complete(ctx context.Context, p llm.Prompt) (string, error)
}

type QuoteSource interface {
	GetQuotes(ctx context.Context, symbols []string) map[string]quotes.Quote
}

// Quota charges one AI call for a user.
type Quota interface {
	CheckAndIncrement(ctx context.Context, userID string) (usage.Decision, error)
}

// Answer is generated text; Fallback marks canned text.
type Answer struct {
	Text     string
	Fallback bool
}

type Service struct {
	store  *store.Store
	llm    Completer
	quotes QuoteSource
	quota  Quota
	log    *zap.Logger
}

func NewService(s *store.Store, completer Completer, quoteSource QuoteSource, log *zap.Logger) *Service {
	return &Service{store: s, llm: completer, quotes: quoteSource, log: log}
}

// WithQuota meters every LLM call through q. Canned answers that need no LLM
// call are never charged.
func (s *Service) WithQuota(q Quota) *Service {
	s.quota = q
	return s
}

// ValidateMessage trims a chat message and checks its length.
func ValidateMessage(message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", ErrEmptyMessage
	}
	if utf8.RuneCountInString(message) > MaxMessageLength {
		return "", ErrMessageTooLong
	}
	return message, nil
}

// Chat answers a free-form question with the user's positions as context.
func (s *Service) Chat(ctx context.Context, userID, message string) (Answer, error) {
	message, err := ValidateMessage(message)
	if err != nil {
		return Answer{}, err
	}

	positions, err := s.store.ListPositions(ctx, userID)
	if err != nil {
		return Answer{}, fmt.Errorf("load positions: %w", err)
	}

	var b strings.Builder
	b.WriteString("My paper portfolio:\n")
	writePositions(&b, positions, nil)
	b.WriteString("\nQuestion: ")
	b.WriteString(message)

	return s.complete(ctx, "chat", userID, llm.Prompt{System: systemCopilot, User: b.String(), MaxTokens: 400}, FallbackChat)
}

// MorningReport prices the user's positions and summarises the day. The
// result is stored as a report.
func (s *Service) MorningReport(ctx context.Context, userID string) (Answer, error) {
	positions, err := s.store.ListPositions(ctx, userID)
	if err != nil {
		return Answer{}, fmt.Errorf("load positions: %w", err)
	}

	var ans Answer
	if len(positions) == 0 {
		ans = Answer{Text: "Good morning! Your paper portfolio is empty. Add a few positions and your morning report will track them.", Fallback: true}
	} else {
		symbols := make([]string, 0, len(positions))
		for _, p := range positions {
			symbols = append(symbols, p.Symbol)
		}
		priced := s.quotes.GetQuotes(ctx, symbols)
		if len(priced) == 0 {
			s.log.Warn("morning report without quotes", zap.String("user_id", userID))
			ans = Answer{Text: FallbackMorning, Fallback: true}
		} else {
			var b strings.Builder
			fmt.Fprintf(&b, "Date: %s\nHoldings:\n", time.Now().UTC().Format("2006-01-02"))
			writePositions(&b, positions, priced)
			ans, err = s.complete(ctx, "morning_report", userID, llm.Prompt{System: systemMorning, User: b.String(), MaxTokens: 350}, FallbackMorning)
			if err != nil {
				return Answer{}, err
			}
		}
	}

	s.saveReport(ctx, userID, models.ReportMorning, ans)
	return ans, nil
}

// Insights reviews recent non-archived trades and paper stats. The result is
// stored as a report.
func (s *Service) Insights(ctx context.Context, userID string) (Answer, error) {
	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return Answer{}, fmt.Errorf("load profile: %w", err)
	}
	txs, err := s.store.RecentTransactions(ctx, userID, recentTransactions)
	if err != nil {
		return Answer{}, fmt.Errorf("load transactions: %w", err)
	}

	var ans Answer
	if len(txs) == 0 {
		ans = Answer{Text: "You have no trades since your last reset. Make a few paper trades and insights will appear here.", Fallback: true}
	} else {
		var b strings.Builder
		fmt.Fprintf(&b, "Stats: win streak %d, win rate %s, total P&L %s\nRecent trades (newest first):\n",
			profile.PaperWinStreak, profile.PaperWinRate.StringFixed(2), profile.PaperTotalPnL.StringFixed(2))
		for _, tx := range txs {
			fmt.Fprintf(&b, "- %s %s %s @ %s on %s\n",
				tx.Type, tx.Shares.String(), tx.Symbol, tx.Price.StringFixed(2), tx.CreatedAt.UTC().Format("2006-01-02"))
		}
		ans, err = s.complete(ctx, "insights", userID, llm.Prompt{System: systemInsights, User: b.String(), MaxTokens: 400}, FallbackInsights)
		if err != nil {
			return Answer{}, err
		}
	}

	s.saveReport(ctx, userID, models.ReportInsights, ans)
	return ans, nil
}

// complete charges the quota, then calls the LLM. An LLM failure degrades to
// fallback; a spent quota is ErrLimitReached.
func (s *Service) complete(ctx context.Context, kind, userID string, p llm.Prompt, fallback string) (Answer, error) {
	if s.quota != nil {
		decision, err := s.quota.CheckAndIncrement(ctx, userID)
		if err != nil {
			return Answer{}, fmt.Errorf("check ai usage: %w", err)
		}
		if !decision.Allowed {
			return Answer{}, ErrLimitReached
		}
	}

	text, err := s.llm.Complete(ctx, p)
	if err != nil {
		s.log.Warn("llm call failed, using fallback",
			zap.String("kind", kind),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return Answer{Text: fallback, Fallback: true}, nil
	}
	return Answer{Text: text}, nil
}

func (s *Service) saveReport(ctx context.Context, userID string, kind models.ReportKind, ans Answer) {
	r := &models.Report{UserID: userID, Kind: kind, Content: ans.Text, Fallback: ans.Fallback}
	if err := s.store.SaveReport(ctx, r); err != nil {
		s.log.Error("save report failed", zap.String("user_id", userID), zap.String("kind", string(kind)), zap.Error(err))
	}
}

func writePositions(b *strings.Builder, positions []models.Position, priced map[string]quotes.Quote) {
	if len(positions) == 0 {
		b.WriteString("(no open positions)\n")
		return
	}
	sorted := append([]models.Position(nil), positions...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Symbol < sorted[j].Symbol })
	for _, p := range sorted {
		fmt.Fprintf(b, "- %s: %s shares, avg cost %s", p.Symbol, p.Shares.String(), p.AvgCost.StringFixed(2))
		key := p.Symbol
		if sym, err := quotes.NormalizeSymbol(p.Symbol); err == nil {
			key = sym
		}
		if q, ok := priced[key]; ok {
			fmt.Fprintf(b, ", now %s %s (%s%%)", q.Price.StringFixed(2), q.Currency, q.ChangePercent.StringFixed(2))
		}
		b.WriteString("\n")
	}
}
