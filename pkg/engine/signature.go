package engine

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// Callback signature headers. The signing payload is
// HMAC-SHA256(secret, timestamp + "." + body), hex-encoded.
const (
	HeaderSignature = "X-Notify-Signature"
	HeaderTimestamp = "X-Notify-Timestamp"
)

// SignCallback produces the signature and timestamp headers a provider (or
// a provider simulator in tests) attaches to a delivery callback.
func SignCallback(secret string, payload []byte, at time.Time) (signature, timestamp string) {
	ts := at.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return hex.EncodeToString(mac.Sum(nil)), strconv.FormatInt(ts, 10)
}

// verifyCallback validates a callback body against its signature headers.
// The timestamp binding rejects replayed requests older than maxAge and
// tolerates up to one minute of clock skew into the future.
func verifyCallback(secret string, payload []byte, signature, timestamp string, maxAge time.Duration, now time.Time) error {
	if secret == "" {
		return fmt.Errorf("%w: no callback secret configured", ErrInvalidSignature)
	}
	if signature == "" || timestamp == "" {
		return fmt.Errorf("%w: missing signature headers", ErrInvalidSignature)
	}
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: invalid timestamp format", ErrInvalidSignature)
	}
	if maxAge > 0 {
		age := now.Sub(time.Unix(ts, 0))
		if age > maxAge {
			return fmt.Errorf("%w: timestamp too old: %v", ErrInvalidSignature, age)
		}
		if age < -time.Minute {
			return fmt.Errorf("%w: timestamp is in the future", ErrInvalidSignature)
		}
	}

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("%w: signature mismatch", ErrInvalidSignature)
	}
	return nil
}
