package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// maxClockSkew is how far in the future a signature timestamp may be.
const maxClockSkew = time.Minute

// Sign returns the lowercase hex HMAC-SHA256 of message keyed by secret.
func Sign(secret string, message []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(message)
	return hex.EncodeToString(h.Sum(nil))
}

// Verify checks signature against the HMAC of message using a constant-time
// comparison. Hex case is ignored.
func Verify(secret string, message []byte, signature string) error {
	if secret == "" {
		return fmt.Errorf("%w: secret is required", ErrInvalidConfiguration)
	}
	if signature == "" {
		return ErrMissingSignature
	}

	expected := Sign(secret, message)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		return ErrSignatureMismatch
	}
	return nil
}

// ParseHeader splits a header of sep-separated key=value pairs. Keys are
// lowercased and whitespace is trimmed; malformed pairs are skipped.
func ParseHeader(header, sep string) map[string]string {
	out := make(map[string]string)
	for pair := range strings.SplitSeq(header, sep) {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || k == "" {
			continue
		}
		out[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return out
}

// CheckTimestamp validates a unix timestamp in seconds or milliseconds
// against now. Timestamps older than maxAge are rejected; maxAge <= 0
// disables the age check but the value must still parse.
func CheckTimestamp(ts string, maxAge time.Duration, now time.Time) error {
	n, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || n <= 0 {
		return ErrInvalidTimestamp
	}
	// Millisecond timestamps have 13 digits until the year 2286.
	var at time.Time
	if n > 1e12 {
		at = time.UnixMilli(n)
	} else {
		at = time.Unix(n, 0)
	}

	if maxAge <= 0 {
		return nil
	}
	age := now.Sub(at)
	if age > maxAge || age < -maxClockSkew {
		return fmt.Errorf("%w: age %s", ErrTimestampOutOfRange, age.Truncate(time.Second))
	}
	return nil
}
