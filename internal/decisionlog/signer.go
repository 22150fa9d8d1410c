package decisionlog

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// signer produces tamper-evident signatures over ledger events, modeled
// on the pack's audit Signer: a canonical deterministic serialization
// HMAC'd with a process key, hex-encoded.
type signer struct {
	key []byte
}

func newSigner(key []byte) *signer {
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			// crypto/rand failing is effectively unrecoverable; a zero key
			// still yields deterministic (if weak) signatures rather than
			// a panic that would abort the whole process.
			key = make([]byte, 32)
		}
	}
	return &signer{key: key}
}

// canonicalForm renders the fields that matter for tamper-evidence in a
// fixed order. Signature itself and the surrogate ID are excluded.
func canonicalForm(ev Event) string {
	return fmt.Sprintf("%s|%s|%v|%v|%v|%v|%v|%v|%v|%v|%v|%v|%v|%v|%v|%v|%v|%s|%s",
		ev.EventType, ev.Timestamp.UTC().Format(timeLayout),
		deref(ev.RequestID), deref(ev.SessionKey), deref(ev.Action), deref(ev.Verdict),
		deref(ev.Destination), deref(ev.Target), deref(ev.ContentHash), derefInt(ev.ContentLength),
		derefInt(ev.FlagCount), deref(ev.HighestClassification), derefInt64(ev.DurationMs),
		deref(ev.Operator), deref(ev.Reason), deref(ev.PreviousState), deref(ev.NewState),
		string(ev.FlagDetails), string(ev.Metadata))
}

func (s *signer) sign(ev Event) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(canonicalForm(ev)))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *signer) verify(ev Event) bool {
	return hmac.Equal([]byte(ev.Signature), []byte(s.sign(ev)))
}

// exportKey returns the signing key as base64, for operators who need to
// verify signatures out-of-process.
func (s *signer) exportKey() string {
	return base64.StdEncoding.EncodeToString(s.key)
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func derefInt64(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}

const timeLayout = "2006-01-02T15:04:05.000Z"
