package shopify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// VerifyWebCall checks the hmac query parameter on OAuth browser calls:
// the remaining parameters, sorted by key and joined k=v with '&', are
// HMAC-SHA256'd with the app secret and hex-compared.
func VerifyWebCall(params map[string]string, secret string) bool {
	provided := strings.TrimSpace(params["hmac"])
	if provided == "" {
		return false
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "hmac" || k == "signature" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, params[k]))
	}
	msg := strings.Join(parts, "&")

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(msg))
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(strings.ToLower(provided)))
}

// VerifyWebhook checks the X-Shopify-Hmac-Sha256 header on webhook
// deliveries: base64(HMAC-SHA256(body)) with the app secret.
func VerifyWebhook(body []byte, secret, headerB64 string) bool {
	provided, err := base64.StdEncoding.DecodeString(strings.TrimSpace(headerB64))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)

	return hmac.Equal(mac.Sum(nil), provided)
}
