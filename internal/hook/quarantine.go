package hook

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sentrywatch/watchdog/internal/classify"
	"github.com/sentrywatch/watchdog/internal/scanner"
)

// QuarantineStatus is the lifecycle state of a held request. Once it
// leaves pending, it is terminal — mirrors the approval lifecycle in
// the pack's approval store.
type QuarantineStatus string

const (
	QuarantinePending  QuarantineStatus = "pending"
	QuarantineApproved QuarantineStatus = "approved"
	QuarantineRejected QuarantineStatus = "rejected"
	QuarantineExpired  QuarantineStatus = "expired"
)

// QuarantineEntry is an in-memory held outbound request. The content
// itself is never stored, only its keyed hash and length.
type QuarantineEntry struct {
	ID                     string
	RequestID              string
	ContentHash            string
	ContentLength          int
	Destination            classify.Destination
	Target                 string
	Flags                  []scanner.Flag
	HighestClassification  classify.Classification
	CreatedAt              time.Time
	Status                 QuarantineStatus
	ResolvedAt             *time.Time
	ResolvedBy             string
}

// quarantineStore is the mutex-guarded map of held requests, with a
// periodic sweeper that expires stale pending entries — the direct
// adaptation of the pack's approval store lifecycle to the gateway
// hook's domain.
type quarantineStore struct {
	mu      sync.RWMutex
	entries map[string]*QuarantineEntry
	ttl     time.Duration
}

func newQuarantineStore(ttl time.Duration) *quarantineStore {
	return &quarantineStore{entries: make(map[string]*QuarantineEntry), ttl: ttl}
}

func newQuarantineID() string {
	b := make([]byte, 4)
	rand.Read(b)
	return "quar-" + hex.EncodeToString(b)
}

func (q *quarantineStore) create(entry *QuarantineEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries[entry.ID] = entry
}

func (q *quarantineStore) get(id string) (*QuarantineEntry, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	e, ok := q.entries[id]
	if !ok {
		return nil, false
	}
	copyEntry := *e
	return &copyEntry, true
}

// approve transitions id from pending to approved. Returns ok=false if
// the entry is missing or already resolved — second attempts are a no-op,
// per the terminal-state invariant.
func (q *quarantineStore) approve(id, approver string) (*QuarantineEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[id]
	if !ok || e.Status != QuarantinePending {
		return nil, false
	}
	now := time.Now().UTC()
	e.Status = QuarantineApproved
	e.ResolvedAt = &now
	e.ResolvedBy = approver
	copyEntry := *e
	return &copyEntry, true
}

// reject transitions id from pending to rejected.
func (q *quarantineStore) reject(id, rejector string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[id]
	if !ok || e.Status != QuarantinePending {
		return false
	}
	now := time.Now().UTC()
	e.Status = QuarantineRejected
	e.ResolvedAt = &now
	e.ResolvedBy = rejector
	return true
}

// listPending returns all entries still pending.
func (q *quarantineStore) listPending() []*QuarantineEntry {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var out []*QuarantineEntry
	for _, e := range q.entries {
		if e.Status == QuarantinePending {
			copyEntry := *e
			out = append(out, &copyEntry)
		}
	}
	return out
}

// countPending returns the number of entries still pending, for health
// counters.
func (q *quarantineStore) countPending() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	n := 0
	for _, e := range q.entries {
		if e.Status == QuarantinePending {
			n++
		}
	}
	return n
}

// sweepExpired transitions pending entries older than ttl to expired and
// returns the ids swept, so callers can emit quarantine_expired log
// events.
func (q *quarantineStore) sweepExpired() []string {
	if q.ttl <= 0 {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	var swept []string
	cutoff := time.Now().Add(-q.ttl)
	for id, e := range q.entries {
		if e.Status == QuarantinePending && e.CreatedAt.Before(cutoff) {
			e.Status = QuarantineExpired
			now := time.Now().UTC()
			e.ResolvedAt = &now
			swept = append(swept, id)
		}
	}
	return swept
}

// StartSweeper runs sweepExpired on the given interval until stop is
// closed, logging each expiry the way the pack's cleanup loop does.
func (h *Hook) StartSweeper(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				for _, id := range h.quarantine.sweepExpired() {
					log.Info().Str("quarantine_id", id).Msg("quarantine entry expired")
					h.recordQuarantineTransition(id, "quarantine_expired", "")
				}
			}
		}
	}()
}
