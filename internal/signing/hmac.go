// Package signing produces the HMAC signatures carried on outbound calls
// so receivers can authenticate hookbeat as the sender.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Sign computes the v1 signature over "<unix timestamp>.<payload>".
func Sign(secret string, payload []byte) (signature string, timestamp int64) {
	timestamp = time.Now().Unix()
	return SignAt(secret, payload, timestamp), timestamp
}

// SignAt signs with an explicit timestamp. Split out for verification
// and for deterministic tests.
func SignAt(secret string, payload []byte, timestamp int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", timestamp, payload)
	return fmt.Sprintf("v1=%s", hex.EncodeToString(mac.Sum(nil)))
}

// Verify checks a signature produced by Sign.
func Verify(secret string, payload []byte, timestamp int64, signature string) bool {
	expected := SignAt(secret, payload, timestamp)
	return hmac.Equal([]byte(expected), []byte(signature))
}
