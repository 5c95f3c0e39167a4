package quotes

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func response(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func newTestClient(rt roundTripFunc) *Client {
	c := NewClientWithHTTP(&http.Client{Transport: rt}, "https://query1.example.test/", zap.NewNop())
	c.httpc.RetryWaitMin = 0
	c.httpc.RetryWaitMax = 0
	return c
}

const volvoChart = `{"chart":{"result":[{"meta":{"symbol":"VOLV-B.ST","currency":"SEK","regularMarketPrice":251.5,"chartPreviousClose":248.0,"previousClose":250.0,"regularMarketTime":1792051200}}],"error":null}}`

func TestGetQuoteNormalises(t *testing.T) {
	var gotURL string
	c := newTestClient(func(r *http.Request) (*http.Response, error) {
		gotURL = r.URL.String()
		require.NotEmpty(t, r.Header.Get("User-Agent"))
		return response(http.StatusOK, volvoChart), nil
	})

	q, err := c.GetQuote(context.Background(), " volv-b.st ")
	require.NoError(t, err)
	require.Equal(t, "https://query1.example.test/v8/finance/chart/VOLV-B.ST?interval=1d&range=1d", gotURL)
	require.Equal(t, "VOLV-B.ST", q.Symbol)
	require.Equal(t, "SEK", q.Currency)
	require.True(t, q.Price.Equal(decimal.RequireFromString("251.5")))
	require.True(t, q.PreviousClose.Equal(decimal.NewFromInt(250)))
	require.True(t, q.Change.Equal(decimal.RequireFromString("1.5")))
	require.True(t, q.ChangePercent.Equal(decimal.RequireFromString("0.6")))
	require.False(t, q.MarketTime.IsZero())
}

func TestGetQuoteFallsBackToChartPreviousClose(t *testing.T) {
	c := newTestClient(func(r *http.Request) (*http.Response, error) {
		return response(http.StatusOK, `{"chart":{"result":[{"meta":{"currency":"USD","regularMarketPrice":110,"chartPreviousClose":100}}]}}`), nil
	})
	q, err := c.GetQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	require.True(t, q.ChangePercent.Equal(decimal.NewFromInt(10)))
}

func TestGetQuoteRetriesTransientErrors(t *testing.T) {
	calls := 0
	c := newTestClient(func(r *http.Request) (*http.Response, error) {
		calls++
		if calls < 3 {
			return response(http.StatusTooManyRequests, "slow down"), nil
		}
		return response(http.StatusOK, volvoChart), nil
	})
	_, err := c.GetQuote(context.Background(), "VOLV-B.ST")
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestGetQuoteGivesUpAfterThreeAttempts(t *testing.T) {
	calls := 0
	c := newTestClient(func(r *http.Request) (*http.Response, error) {
		calls++
		return response(http.StatusBadGateway, "bad gateway"), nil
	})
	_, err := c.GetQuote(context.Background(), "AAPL")
	var herr httpError
	require.True(t, errors.As(err, &herr))
	require.Equal(t, http.StatusBadGateway, herr.Status)
	require.Equal(t, 3, calls)
}

func TestGetQuoteNotFound(t *testing.T) {
	calls := 0
	c := newTestClient(func(r *http.Request) (*http.Response, error) {
		calls++
		return response(http.StatusNotFound, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`), nil
	})
	_, err := c.GetQuote(context.Background(), "NOPE")
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, 1, calls)

	c = newTestClient(func(r *http.Request) (*http.Response, error) {
		return response(http.StatusOK, `{"chart":{"result":[],"error":null}}`), nil
	})
	_, err = c.GetQuote(context.Background(), "NOPE")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestNormalizeSymbol(t *testing.T) {
	for _, ok := range []string{"aapl", "VOLV-B.ST", "^OMX", "EURUSD=X", "BRK.B"} {
		_, err := NormalizeSymbol(ok)
		require.NoError(t, err, ok)
	}
	for _, bad := range []string{"", "../etc", "AAPL MSFT", "a/b", strings.Repeat("A", 21)} {
		_, err := NormalizeSymbol(bad)
		require.ErrorIs(t, err, ErrInvalidSymbol, bad)
	}
}

func TestGetQuotesSkipsFailures(t *testing.T) {
	c := newTestClient(func(r *http.Request) (*http.Response, error) {
		if strings.Contains(r.URL.Path, "VOLV") {
			return response(http.StatusOK, volvoChart), nil
		}
		return response(http.StatusNotFound, ""), nil
	})
	got := c.GetQuotes(context.Background(), []string{"VOLV-B.ST", "GONE"})
	require.Len(t, got, 1)
	require.Contains(t, got, "VOLV-B.ST")
}

func TestGetQuoteRetriesTransportErrors(t *testing.T) {
	calls := 0
	c := newTestClient(func(r *http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("connection reset by peer")
		}
		return response(http.StatusOK, volvoChart), nil
	})
	q, err := c.GetQuote(context.Background(), "VOLV-B.ST")
	require.NoError(t, err)
	require.Equal(t, "VOLV-B.ST", q.Symbol)
	require.Equal(t, 2, calls)
}
