package secagent

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/sentrywatch/watchdog/internal/classify"
)

// contentHash is a deterministic, non-cryptographic hash of the full
// content, used only for cache-key composition (never for tamper
// evidence, which belongs to the decision logger).
func contentHash(content string) string {
	h := fnv.New64a()
	h.Write([]byte(content))
	return fmt.Sprintf("%x", h.Sum64())
}

func cacheKey(patternType, matchedText, contentHash string) string {
	return patternType + "|" + matchedText + "|" + contentHash
}

type cacheEntry struct {
	analysis  FlagAnalysis
	expiresAt time.Time
}

// analysisCache is a TTL cache with soft-cap pruning; inserts and prunes
// run under a single mutex.
type analysisCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	softCap int
	entries map[string]cacheEntry
}

func newAnalysisCache(ttlMs int) *analysisCache {
	return &analysisCache{
		ttl:     time.Duration(ttlMs) * time.Millisecond,
		softCap: 1000,
		entries: make(map[string]cacheEntry),
	}
}

func (c *analysisCache) get(key string) (FlagAnalysis, bool) {
	if c.ttl <= 0 {
		return FlagAnalysis{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return FlagAnalysis{}, false
	}
	analysis := e.analysis
	analysis.Cached = true
	return analysis, true
}

func (c *analysisCache) put(key string, analysis FlagAnalysis) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{analysis: analysis, expiresAt: time.Now().Add(c.ttl)}
	if len(c.entries) > c.softCap {
		c.pruneExpiredLocked()
	}
}

func (c *analysisCache) pruneExpiredLocked() {
	now := time.Now()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
}

// FlagAnalysis is the Security Agent's per-flag reclassification.
type FlagAnalysis struct {
	PatternType    string
	MatchedText    string
	Classification classify.Classification
	Confidence     float64
	Reasoning      string
	Cached         bool
}
