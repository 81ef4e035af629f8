package paddle

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/salymed/salymed-backend/pkg/config"
)

// SignatureHeader carries the webhook signature on every notification.
const SignatureHeader = "Paddle-Signature"

const defaultTolerance = 5 * time.Minute

var (
	ErrSignatureMissing   = errors.New("paddle signature missing")
	ErrSignatureMalformed = errors.New("paddle signature malformed")
	ErrSignatureExpired   = errors.New("paddle signature timestamp outside tolerance")
	ErrSignatureMismatch  = errors.New("paddle signature mismatch")
	ErrSecretNotSet       = errors.New("paddle webhook secret not configured")
)

// Verifier checks the Paddle-Signature header: "ts=<unix>;h1=<hex hmac>".
// The signed payload is "<ts>:<raw body>" keyed with the notification secret.
type Verifier struct {
	secret    []byte
	tolerance time.Duration
	skip      bool
	now       func() time.Time
}

// NewVerifier builds a verifier from configuration. With no secret configured
// every request is rejected unless SkipSignature is explicitly enabled.
func NewVerifier(cfg config.PaddleConfig) *Verifier {
	tolerance := cfg.SignatureTolerance
	if tolerance <= 0 {
		tolerance = defaultTolerance
	}
	return &Verifier{
		secret:    []byte(strings.TrimSpace(cfg.WebhookSecret)),
		tolerance: tolerance,
		skip:      cfg.SkipSignature,
		now:       time.Now,
	}
}

// Verify returns nil when header is a valid signature of body.
func (v *Verifier) Verify(header string, body []byte) error {
	if v.skip {
		return nil
	}
	if len(v.secret) == 0 {
		return ErrSecretNotSet
	}
	header = strings.TrimSpace(header)
	if header == "" {
		return ErrSignatureMissing
	}

	var ts string
	var signatures []string
	for _, part := range strings.Split(header, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return ErrSignatureMalformed
		}
		switch key {
		case "ts":
			ts = value
		case "h1":
			signatures = append(signatures, value)
		}
	}
	if ts == "" || len(signatures) == 0 {
		return ErrSignatureMalformed
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrSignatureMalformed
	}
	skew := v.now().Sub(time.Unix(unix, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > v.tolerance {
		return ErrSignatureExpired
	}

	expected := Sign(v.secret, ts, body)
	for _, candidate := range signatures {
		if hmac.Equal([]byte(expected), []byte(strings.ToLower(candidate))) {
			return nil
		}
	}
	return ErrSignatureMismatch
}

// Sign computes the hex HMAC-SHA256 Paddle expects for ts and body.
func Sign(secret []byte, ts string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(ts))
	mac.Write([]byte(":"))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
