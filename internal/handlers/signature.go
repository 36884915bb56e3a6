package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BradenHooton/turnstile/internal/models"
)

// SignatureHeader carries "t=<unix seconds>,v1=<hex hmac>" for each delivery.
// Several v1 entries may be present while a provider rotates secrets.
const SignatureHeader = "Stripe-Signature"

// ComputeSignature returns the hex HMAC-SHA256 of "<timestamp>.<body>"
func ComputeSignature(secret string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureHeaderValue builds a header value for body signed at ts
func SignatureHeaderValue(secret string, ts time.Time, body []byte) string {
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), ComputeSignature(secret, ts.Unix(), body))
}

// VerifySignature checks header against body. The timestamp must be within
// tolerance of now in either direction.
func VerifySignature(header string, body []byte, secret string, tolerance time.Duration, now time.Time) error {
	var (
		timestamp  int64
		haveTS     bool
		signatures []string
	)
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("%w: malformed timestamp", models.ErrInvalidSignature)
			}
			timestamp, haveTS = ts, true
		case "v1":
			signatures = append(signatures, value)
		}
	}

	if !haveTS || len(signatures) == 0 {
		return fmt.Errorf("%w: missing timestamp or signature", models.ErrInvalidSignature)
	}

	age := now.Sub(time.Unix(timestamp, 0))
	if age < 0 {
		age = -age
	}
	if tolerance > 0 && age > tolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", models.ErrInvalidSignature)
	}

	expected := []byte(ComputeSignature(secret, timestamp, body))
	for _, sig := range signatures {
		if hmac.Equal(expected, []byte(sig)) {
			return nil
		}
	}
	return fmt.Errorf("%w: no matching signature", models.ErrInvalidSignature)
}
