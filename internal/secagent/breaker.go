package secagent

import (
	"strings"
	"sync"
	"time"
)

// breakerState mirrors the three-state circuit breaker used elsewhere in
// the pack for resilience around external calls: closed (normal),
// open (tripped, calls fail fast), half-open (probing recovery).
type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

type breaker struct {
	mu sync.Mutex

	failureThreshold int
	successThreshold int
	initialBackoff   time.Duration
	maxBackoff       time.Duration
	backoffMultiplier float64

	state           breakerState
	consecutiveFail int
	consecutiveOK   int
	backoff         time.Duration
	openedAt        time.Time
}

func newBreaker() *breaker {
	return &breaker{
		failureThreshold:  3,
		successThreshold:  2,
		initialBackoff:    time.Second,
		maxBackoff:        5 * time.Minute,
		backoffMultiplier: 2.0,
		state:             breakerClosed,
	}
}

// allow reports whether a call may proceed. When the breaker is open it
// transitions to half-open once the backoff window elapses.
func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerClosed:
		return true
	case breakerHalfOpen:
		return true
	case breakerOpen:
		if time.Since(b.openedAt) >= b.backoff {
			b.state = breakerHalfOpen
			return true
		}
		return false
	}
	return true
}

func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerHalfOpen:
		b.consecutiveOK++
		if b.consecutiveOK >= b.successThreshold {
			b.state = breakerClosed
			b.consecutiveFail = 0
			b.consecutiveOK = 0
			b.backoff = 0
		}
	case breakerClosed:
		b.consecutiveFail = 0
	}
}

func (b *breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveOK = 0
	switch b.state {
	case breakerHalfOpen:
		b.trip()
	case breakerClosed:
		b.consecutiveFail++
		if b.consecutiveFail >= b.failureThreshold {
			b.trip()
		}
	}
}

func (b *breaker) trip() {
	b.state = breakerOpen
	b.openedAt = time.Now()
	if b.backoff == 0 {
		b.backoff = b.initialBackoff
	} else {
		b.backoff = time.Duration(float64(b.backoff) * b.backoffMultiplier)
		if b.backoff > b.maxBackoff {
			b.backoff = b.maxBackoff
		}
	}
}

// categorizeTransportErr classifies a transport-level failure string so
// callers can log with the right severity; it never changes fail-closed
// behavior, which always treats any error identically.
func categorizeTransportErr(err error) string {
	if err == nil {
		return ""
	}
	text := strings.ToLower(err.Error())
	switch {
	case strings.Contains(text, "rate limit") || strings.Contains(text, "429"):
		return "rate_limit"
	case strings.Contains(text, "timeout") || strings.Contains(text, "deadline exceeded"):
		return "timeout"
	case strings.Contains(text, "connection refused") || strings.Contains(text, "no such host"):
		return "unreachable"
	default:
		return "transient"
	}
}
