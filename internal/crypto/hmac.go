package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignHMACSHA256Hex returns the hex-encoded HMAC-SHA256 of message under
// secret. Both bitFlyer and Coincheck authenticate requests with this
// signature over a timestamp/nonce + method + path + body string.
func SignHMACSHA256Hex(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}
