package notify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// SignPayload generates the signature header value for a webhook payload.
// The signed content is "{unix_timestamp}.{payload}" using HMAC-SHA256,
// rendered as "t=<unix>,v1=<hex>". Receivers recompute the HMAC over the
// same content and compare; the timestamp bounds replay windows.
func SignPayload(payload []byte, secret string, now time.Time) string {
	timestamp := now.Unix()
	signedContent := fmt.Sprintf("%d.%s", timestamp, string(payload))
	return fmt.Sprintf("t=%d,v1=%s", timestamp, computeHMAC(signedContent, secret))
}

// computeHMAC returns the hex-encoded HMAC-SHA256 of content under key.
func computeHMAC(content, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(content))
	return hex.EncodeToString(mac.Sum(nil))
}
