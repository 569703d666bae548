package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultTolerance is the maximum accepted age of a signed webhook payload.
const DefaultTolerance = 5 * time.Minute

var (
	ErrMissingSignature   = errors.New("stripe: missing webhook signature")
	ErrInvalidSignature   = errors.New("stripe: webhook signature verification failed")
	ErrSignatureTooOld    = errors.New("stripe: webhook timestamp outside tolerance")
	ErrMalformedSignature = errors.New("stripe: malformed signature header")
)

// signatureHeader holds the parsed Stripe-Signature header.
// Format: t=<unix>,v1=<hex>[,v1=<hex>...]
type signatureHeader struct {
	timestamp  time.Time
	signatures []string
}

func parseSignatureHeader(header string) (*signatureHeader, error) {
	if strings.TrimSpace(header) == "" {
		return nil, ErrMissingSignature
	}

	parsed := &signatureHeader{}
	for _, pair := range strings.Split(header, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 {
			return nil, ErrMalformedSignature
		}
		switch parts[0] {
		case "t":
			ts, err := strconv.ParseInt(parts[1], 10, 64)
			if err != nil {
				return nil, ErrMalformedSignature
			}
			parsed.timestamp = time.Unix(ts, 0)
		case "v1":
			parsed.signatures = append(parsed.signatures, parts[1])
		}
	}

	if parsed.timestamp.IsZero() || len(parsed.signatures) == 0 {
		return nil, ErrMalformedSignature
	}
	return parsed, nil
}

// ComputeSignature computes the expected hex signature for a payload:
// HMAC-SHA256(secret, "<unix timestamp>.<payload>")
func ComputeSignature(t time.Time, payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", t.Unix())
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature validates a webhook payload against its Stripe-Signature
// header. The signature must match and the timestamp must be within
// tolerance. Verification happens before any parsing of the payload.
func VerifySignature(payload []byte, header, secret string, tolerance time.Duration) error {
	parsed, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}

	if tolerance > 0 {
		age := time.Since(parsed.timestamp)
		if age > tolerance || age < -tolerance {
			return ErrSignatureTooOld
		}
	}

	expected := ComputeSignature(parsed.timestamp, payload, secret)
	for _, sig := range parsed.signatures {
		if subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(sig)))) == 1 {
			return nil
		}
	}

	return ErrInvalidSignature
}
