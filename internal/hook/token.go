package hook

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/sentrywatch/watchdog/internal/classify"
)

// tokenPayload is serialized with stable key order to match the
// approval token wire format.
type tokenPayload struct {
	RequestID      string `json:"requestId"`
	Timestamp      int64  `json:"timestamp"`
	Classification string `json:"classification"`
}

// mintToken produces base64( json_body + "|" + hex_signature_prefix_16 ),
// where the signature is HMAC-SHA256(hmac_key, json_body) truncated to
// 16 hex characters. Tokens are opaque to callers; the hook does not
// verify its own tokens, but the format is reproducible for external
// verification given the same key.
func (h *Hook) mintToken(requestID string, timestampMs int64, class classify.Classification) string {
	body, err := json.Marshal(tokenPayload{RequestID: requestID, Timestamp: timestampMs, Classification: class.String()})
	if err != nil {
		log.Error().Err(err).Msg("approval token payload marshal failed")
		return ""
	}
	mac := hmac.New(sha256.New, h.hmacKey)
	mac.Write(body)
	sig := hex.EncodeToString(mac.Sum(nil))
	if len(sig) > 16 {
		sig = sig[:16]
	}
	raw := string(body) + "|" + sig
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

// hashContent computes the keyed content hash stored on quarantine
// entries and decision log rows: HMAC-SHA256(hmac_key, content), hex.
// The content itself is never stored.
func (h *Hook) hashContent(content string) string {
	mac := hmac.New(sha256.New, h.hmacKey)
	mac.Write([]byte(content))
	return hex.EncodeToString(mac.Sum(nil))
}

// randomHMACKey generates a fresh per-process key when none is
// configured. Tokens minted with it do not survive a restart.
func randomHMACKey() []byte {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		log.Error().Err(err).Msg("failed to generate random HMAC key, falling back to a static process key")
		for i := range key {
			key[i] = byte(i)
		}
	}
	return key
}
