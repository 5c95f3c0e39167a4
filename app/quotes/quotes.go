// Package quotes fetches market quotes from the Yahoo Finance chart API.
package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrNotFound      = errors.New("symbol not found")
	ErrInvalidSymbol = errors.New("invalid symbol")
)

var symbolPattern = regexp.MustCompile(`^[A-Z0-9^][A-Z0-9.\-=^]{0,19}$`)

const (
	userAgent   = "Mozilla/5.0 (compatible; ticko/1.0)"
	maxAttempts = 3
)

// Quote is a normalised snapshot of one symbol.
type Quote struct {
	Symbol        string          `json:"symbol"`
	Currency      string          `json:"currency"`
	Price         decimal.Decimal `json:"price"`
	PreviousClose decimal.Decimal `json:"previous_close"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"change_percent"`
	MarketTime    time.Time       `json:"market_time"`
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string          `json:"symbol"`
				Currency           string          `json:"currency"`
				RegularMarketPrice decimal.Decimal `json:"regularMarketPrice"`
				ChartPreviousClose decimal.Decimal `json:"chartPreviousClose"`
				PreviousClose      decimal.Decimal `json:"previousClose"`
				RegularMarketTime  int64           `json:"regularMarketTime"`
			} `json:"meta"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type httpError struct {
	Status int
	Body   string
}

func (e httpError) Error() string { return fmt.Sprintf("http %d: %s", e.Status, e.Body) }

type Client struct {
	httpc   *retryablehttp.Client
	baseURL string
	log     *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	return NewClientWithHTTP(&http.Client{Timeout: timeout}, baseURL, log)
}

// NewClientWithHTTP sends through httpc, retrying 429 and 5xx answers up to
// maxAttempts in total.
func NewClientWithHTTP(httpc *http.Client, baseURL string, log *zap.Logger) *Client {
	rc := retryablehttp.NewClient()
	rc.HTTPClient = httpc
	rc.RetryMax = maxAttempts - 1
	rc.RetryWaitMin = 250 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = retryLogger{log.Sugar()}
	// hand the last response back so its status can be mapped
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return &Client{
		httpc:   rc,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log,
	}
}

// retryLogger routes retryablehttp's leveled logging into zap.
type retryLogger struct {
	s *zap.SugaredLogger
}

func (l retryLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l retryLogger) Info(msg string, kv ...interface{})  { l.s.Infow(msg, kv...) }
func (l retryLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l retryLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }

// NormalizeSymbol upper-cases and validates a ticker such as "volv-b.st".
func NormalizeSymbol(symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if !symbolPattern.MatchString(s) {
		return "", ErrInvalidSymbol
	}
	return s, nil
}

func (c *Client) GetQuote(ctx context.Context, symbol string) (Quote, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return Quote{}, err
	}

	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=1d", c.baseURL, url.PathEscape(sym))
	var resp chartResponse
	if err := c.getJSON(ctx, u, &resp); err != nil {
		var herr httpError
		if errors.As(err, &herr) && herr.Status == http.StatusNotFound {
			return Quote{}, ErrNotFound
		}
		return Quote{}, err
	}
	if resp.Chart.Error != nil || len(resp.Chart.Result) == 0 {
		return Quote{}, ErrNotFound
	}

	meta := resp.Chart.Result[0].Meta
	prev := meta.PreviousClose
	if prev.IsZero() {
		prev = meta.ChartPreviousClose
	}
	q := Quote{
		Symbol:        sym,
		Currency:      meta.Currency,
		Price:         meta.RegularMarketPrice,
		PreviousClose: prev,
		Change:        meta.RegularMarketPrice.Sub(prev),
	}
	if !prev.IsZero() {
		q.ChangePercent = q.Change.Div(prev).Mul(decimal.NewFromInt(100)).Round(2)
	}
	if meta.RegularMarketTime > 0 {
		q.MarketTime = time.Unix(meta.RegularMarketTime, 0).UTC()
	}
	return q, nil
}

// GetQuotes fetches each symbol in turn. Symbols that fail are logged and left
// out of the result.
func (c *Client) GetQuotes(ctx context.Context, symbols []string) map[string]Quote {
	out := make(map[string]Quote, len(symbols))
	for _, s := range symbols {
		q, err := c.GetQuote(ctx, s)
		if err != nil {
			c.log.Warn("quote fetch failed", zap.String("symbol", s), zap.Error(err))
			continue
		}
		out[q.Symbol] = q
	}
	return out
}

func (c *Client) getJSON(ctx context.Context, u string, v any) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	res, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	c.log.Debug("quote request",
		zap.String("url", u),
		zap.Int("status", res.StatusCode),
		zap.Duration("took", time.Since(start)),
	)

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return httpError{Status: res.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return json.NewDecoder(res.Body).Decode(v)
}
