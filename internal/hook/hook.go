// Package hook implements the Layer 3 Gateway Hook: the posture-driven
// decision engine that turns a scan into allow/quarantine/block, mints
// approval tokens, and holds quarantined requests awaiting an operator.
package hook

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sentrywatch/watchdog/internal/classify"
	"github.com/sentrywatch/watchdog/internal/decisionlog"
	"github.com/sentrywatch/watchdog/internal/registry"
	"github.com/sentrywatch/watchdog/internal/scanner"
	"github.com/sentrywatch/watchdog/internal/secagent"
)

// Config configures the Gateway Hook. AgentConfig and LoggerConfig let
// the hook orchestrate the whole outbound pipeline (scan -> agent ->
// decision -> log): it owns optional handles to both, constructed the
// same way ScannerConfig already is.
type Config struct {
	DatabasePath    string
	HMACKey         []byte
	OutboundEnabled bool
	InboundEnabled  bool
	PostureLevel    string
	ScannerConfig   *scanner.Config
	AgentConfig     *secagent.Config
	LoggerConfig    *decisionlog.Config
	QuarantineTTL   time.Duration
}

func applyDefaults(cfg Config) Config {
	if cfg.PostureLevel == "" {
		cfg.PostureLevel = "standard"
	}
	if cfg.QuarantineTTL <= 0 {
		cfg.QuarantineTTL = 24 * time.Hour
	}
	return cfg
}

// Counters are the monotonic, eventually-consistent operation counts
// returned from GetHealth.
type Counters struct {
	Scans              int64
	Blocks             int64
	Quarantines        int64
	PendingQuarantines int64
	Errors             int64
}

// Health summarizes the hook's operational state.
type Health struct {
	Initialized bool
	Outbound    bool
	Inbound     bool
	Posture     classify.Posture
	Counters    Counters
	UptimeMs    int64
}

// Hook is the stateful decision engine. It is safe for concurrent use:
// posture/kill-switch reads and writes are guarded, the quarantine map
// has its own internal lock, and counters are atomic.
type Hook struct {
	cfg     Config
	store   *registry.Store
	scanner *scanner.Scanner
	agent   *secagent.Agent
	logger  *decisionlog.Logger

	hmacKey    []byte
	quarantine *quarantineStore

	mu         sync.RWMutex
	posture    classify.Posture
	killSwitch bool

	scans, blocks, quarantines, errs atomic.Int64
	startedAt                         time.Time
	initialized                       bool
}

// New constructs a Hook: it opens the registry, builds a scanner over
// the same store, and optionally wires a security agent and decision
// logger when their configs are supplied.
func New(ctx context.Context, cfg Config) (*Hook, error) {
	cfg = applyDefaults(cfg)

	store, err := registry.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("hook: open registry: %w", err)
	}

	scanCfg := scanner.DefaultConfig()
	if cfg.ScannerConfig != nil {
		scanCfg = *cfg.ScannerConfig
	}
	sc, err := scanner.NewWithStore(ctx, scanCfg, store)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("hook: build scanner: %w", err)
	}

	posture, ok := classify.ParsePosture(cfg.PostureLevel)
	if !ok {
		log.Warn().Str("posture_level", cfg.PostureLevel).Msg("unrecognized posture_level, defaulting to standard")
	}

	hmacKey := cfg.HMACKey
	if len(hmacKey) == 0 {
		hmacKey = randomHMACKey()
		log.Warn().Msg("no hmac_key configured, generated a per-process key; approval tokens will not survive restart")
	}

	h := &Hook{
		cfg:        cfg,
		store:      store,
		scanner:    sc,
		hmacKey:    hmacKey,
		quarantine: newQuarantineStore(cfg.QuarantineTTL),
		posture:    posture,
		startedAt:  time.Now(),
		initialized: true,
	}

	if cfg.AgentConfig != nil {
		h.agent = secagent.New(*cfg.AgentConfig)
	}
	if cfg.LoggerConfig != nil {
		l, err := decisionlog.New(*cfg.LoggerConfig)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("hook: build decision logger: %w", err)
		}
		h.logger = l
		h.log(ctx, decisionlog.Event{EventType: decisionlog.EventSystemStartup})
	}

	return h, nil
}

// Close releases the scanner's registry handle and, if present, flushes
// and closes the decision logger.
func (h *Hook) Close(ctx context.Context) error {
	if h.logger != nil {
		if err := h.logger.Close(ctx); err != nil {
			return err
		}
	}
	return h.scanner.Close()
}

// GetRegistry exposes the underlying registry store.
func (h *Hook) GetRegistry() *registry.Store { return h.store }

// Reload rebuilds the scanner's detector snapshot from the registry and
// records a registry_updated event so the audit trail reflects when the
// detector set changed underneath in-flight scans.
func (h *Hook) Reload(ctx context.Context) error {
	if err := h.scanner.Reload(ctx); err != nil {
		return err
	}
	h.log(ctx, decisionlog.Event{EventType: decisionlog.EventRegistryUpdated})
	return nil
}

// GetPosture returns the current posture.
func (h *Hook) GetPosture() classify.Posture {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.posture
}

// SetPosture atomically updates the posture; a scan in flight observes
// either the prior or the new value, never a torn state.
func (h *Hook) SetPosture(ctx context.Context, level classify.Posture, actor string) {
	h.mu.Lock()
	previous := h.posture
	h.posture = level
	h.mu.Unlock()

	prevStr, newStr := previous.String(), level.String()
	h.log(ctx, decisionlog.Event{
		EventType: decisionlog.EventPostureChanged, Operator: strPtr(actor),
		PreviousState: &prevStr, NewState: &newStr,
	})
}

// SetSystemMode translates an orchestrator system mode into a posture.
func (h *Hook) SetSystemMode(ctx context.Context, mode classify.SystemMode, actor string) {
	h.SetPosture(ctx, classify.ModeToPosture(mode), actor)
}

// SetKillSwitch flips the kill switch; when on, ScanOutbound
// deterministically blocks regardless of content.
func (h *Hook) SetKillSwitch(ctx context.Context, on bool, actor string) {
	h.mu.Lock()
	h.killSwitch = on
	h.mu.Unlock()

	eventType := decisionlog.EventKillSwitchOff
	if on {
		eventType = decisionlog.EventKillSwitchOn
	}
	h.log(ctx, decisionlog.Event{EventType: eventType, Operator: strPtr(actor)})
}

// GetHealth returns initialization state, feature toggles, posture, and
// counters.
func (h *Hook) GetHealth() Health {
	h.mu.RLock()
	posture := h.posture
	h.mu.RUnlock()

	return Health{
		Initialized: h.initialized,
		Outbound:    h.cfg.OutboundEnabled,
		Inbound:     h.cfg.InboundEnabled,
		Posture:     posture,
		Counters: Counters{
			Scans:              h.scans.Load(),
			Blocks:             h.blocks.Load(),
			Quarantines:        h.quarantines.Load(),
			PendingQuarantines: int64(h.quarantine.countPending()),
			Errors:             h.errs.Load(),
		},
		UptimeMs: time.Since(h.startedAt).Milliseconds(),
	}
}

func (h *Hook) log(ctx context.Context, ev decisionlog.Event) {
	if h.logger == nil {
		return
	}
	if err := h.logger.Log(ctx, ev); err != nil {
		log.Error().Err(err).Str("event_type", string(ev.EventType)).Msg("decision log write failed")
	}
}

// sanitizedFlagDetails serializes flags omitting matched_text and
// context, per the decision logger's sensitive-content rule.
func sanitizedFlagDetails(flags []scanner.Flag) json.RawMessage {
	if len(flags) == 0 {
		return nil
	}
	type wire struct {
		PatternType    string  `json:"patternType"`
		Classification string  `json:"classification"`
		Confidence     float64 `json:"confidence"`
		Source         string  `json:"source"`
	}
	out := make([]wire, len(flags))
	for i, f := range flags {
		out[i] = wire{PatternType: f.PatternType, Classification: f.Classification.String(),
			Confidence: f.Confidence, Source: f.Source}
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil
	}
	return b
}

func (h *Hook) recordQuarantineTransition(id, eventType, actor string) {
	if h.logger == nil {
		return
	}
	ev := decisionlog.Event{EventType: decisionlog.EventType(eventType)}
	ev.Target = strPtr(id)
	if actor != "" {
		ev.Operator = strPtr(actor)
	}
	h.log(context.Background(), ev)
}

func strPtr(s string) *string { return &s }

func newRequestID() string { return uuid.NewString() }
