// Package webhook verifies Standard Webhooks signatures on inbound payment
// provider deliveries.
package webhook

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	standardwebhooks "github.com/standard-webhooks/standard-webhooks/libraries/go"
)

const (
	HeaderID        = "webhook-id"
	HeaderTimestamp = "webhook-timestamp"
	HeaderSignature = "webhook-signature"

	DefaultTolerance = 5 * time.Minute
)

// Polar hands out secrets as polar_whs_<base64>; generic senders use whsec_.
var secretPrefixes = []string{"polar_whs_", "whsec_"}

// Verifier checks authenticity and freshness of a delivery. Freshness is
// checked here against the injected clock; the signature itself is checked by
// the Standard Webhooks library.
type Verifier struct {
	hook      *standardwebhooks.Webhook
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier builds a verifier for secret. An empty or undecodable secret
// yields a verifier that rejects everything.
func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	v := &Verifier{tolerance: tolerance, now: time.Now}
	if secret != "" {
		if hook, err := newHook(secret); err == nil {
			v.hook = hook
		}
	}
	return v
}

// WithClock overrides the time source, for tests.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

// Configured reports whether a usable signing secret is present.
func (v *Verifier) Configured() bool {
	return v != nil && v.hook != nil
}

// Verify returns true only when every header is present, the timestamp is
// within tolerance of now and one v1 signature matches the body.
func (v *Verifier) Verify(body []byte, headers http.Header) bool {
	if !v.Configured() {
		return false
	}
	if headers.Get(HeaderID) == "" || headers.Get(HeaderSignature) == "" {
		return false
	}
	unix, err := strconv.ParseInt(headers.Get(HeaderTimestamp), 10, 64)
	if err != nil {
		return false
	}
	skew := v.now().Sub(time.Unix(unix, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > v.tolerance {
		return false
	}
	return v.hook.VerifyIgnoringTimestamp(body, headers) == nil
}

// Sign builds a webhook-signature header value for the given delivery.
func Sign(secret, id string, timestamp time.Time, body []byte) (string, error) {
	hook, err := newHook(secret)
	if err != nil {
		return "", err
	}
	return hook.Sign(id, timestamp, body)
}

func newHook(secret string) (*standardwebhooks.Webhook, error) {
	for _, prefix := range secretPrefixes {
		if strings.HasPrefix(secret, prefix) {
			secret = strings.TrimPrefix(secret, prefix)
			break
		}
	}
	return standardwebhooks.NewWebhook(secret)
}
