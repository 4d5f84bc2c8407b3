package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries the processor's webhook signature in the form
// "t=<unix>,v1=<hex hmac-sha256>". The signed payload is "<t>.<body>".
const SignatureHeader = "Payment-Signature"

// DefaultTolerance bounds how old a signed timestamp may be. Replays inside
// the window are handled by the session-id idempotency key, not here.
const DefaultTolerance = 5 * time.Minute

var ErrInvalidSignature = errors.New("webhook signature verification failed")

const EventCheckoutSessionCompleted = "checkout.session.completed"

type Event struct {
	ID   string    `json:"id"`
	Type string    `json:"type"`
	Data EventData `json:"data"`
}

type EventData struct {
	Object SessionObject `json:"object"`
}

// SessionObject is the completed-session payload. Metadata is echoed back
// verbatim from session creation.
type SessionObject struct {
	ID            string            `json:"id"`
	CustomerEmail string            `json:"customer_email"`
	AmountTotal   int64             `json:"amount_total"`
	Metadata      map[string]string `json:"metadata"`
}

// ConstructEvent verifies the signature header against the shared secret and
// parses the payload. Fails closed: any header malformation, stale
// timestamp or digest mismatch returns ErrInvalidSignature and the payload
// is never parsed.
func ConstructEvent(payload []byte, sigHeader, secret string) (Event, error) {
	return ConstructEventWithTolerance(payload, sigHeader, secret, DefaultTolerance, time.Now())
}

func ConstructEventWithTolerance(payload []byte, sigHeader, secret string, tolerance time.Duration, now time.Time) (Event, error) {
	ts, sig, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return Event{}, err
	}

	age := now.Sub(time.Unix(ts, 0))
	if age > tolerance || age < -tolerance {
		return Event{}, fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := mac.Sum(nil)

	if !hmac.Equal(expected, sig) {
		return Event{}, fmt.Errorf("%w: digest mismatch", ErrInvalidSignature)
	}

	var evt Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return Event{}, fmt.Errorf("invalid event payload: %w", err)
	}
	return evt, nil
}

// Sign produces a signature header for a payload. Used by tests and the
// bench-runner to emit deliverable webhook events.
func Sign(payload []byte, secret string, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	return "t=" + ts + ",v1=" + hex.EncodeToString(mac.Sum(nil))
}

func parseSignatureHeader(header string) (int64, []byte, error) {
	var ts int64 = -1
	var sig []byte

	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
			}
			ts = parsed
		case "v1":
			decoded, err := hex.DecodeString(v)
			if err != nil {
				return 0, nil, fmt.Errorf("%w: bad digest encoding", ErrInvalidSignature)
			}
			sig = decoded
		}
	}

	if ts < 0 || len(sig) == 0 {
		return 0, nil, fmt.Errorf("%w: missing signature components", ErrInvalidSignature)
	}
	return ts, sig, nil
}
