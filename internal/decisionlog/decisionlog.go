// Package decisionlog implements the tamper-evident, queryable audit
// ledger over every decision-worthy event in the pipeline. It never
// persists sensitive content: callers must have already sanitized any
// flag details before calling Log.
package decisionlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	_ "modernc.org/sqlite"
)

// EventType enumerates the decision-worthy events recorded in the ledger.
type EventType string

const (
	EventOutboundScan       EventType = "outbound_scan"
	EventInboundInspect     EventType = "inbound_inspect"
	EventQuarantineCreated  EventType = "quarantine_created"
	EventQuarantineApproved EventType = "quarantine_approved"
	EventQuarantineRejected EventType = "quarantine_rejected"
	EventQuarantineExpired  EventType = "quarantine_expired"
	EventPostureChanged     EventType = "posture_changed"
	EventKillSwitchOn       EventType = "kill_switch_on"
	EventKillSwitchOff      EventType = "kill_switch_off"
	EventRegistryUpdated    EventType = "registry_updated"
	EventSystemStartup      EventType = "system_startup"
	EventSystemShutdown     EventType = "system_shutdown"
)

// Event is a single ledger row. Optional fields are pointers; nil means
// "not applicable to this event type", not zero.
type Event struct {
	ID                     int64
	EventType              EventType
	Timestamp              time.Time
	RequestID              *string
	SessionKey             *string
	Action                 *string
	Verdict                *string
	Destination            *string
	Target                 *string
	ContentHash            *string
	ContentLength          *int
	FlagCount              *int
	HighestClassification  *string
	DurationMs             *int64
	Operator               *string
	Reason                 *string
	PreviousState          *string
	NewState               *string
	FlagDetails            json.RawMessage
	Metadata               json.RawMessage
	Signature              string
}

// Config configures the Decision Logger.
type Config struct {
	DatabasePath        string
	LogFilePath         string
	RetentionDays       int
	FileLoggingEnabled  bool
	BatchSize           int
	SignKey             []byte
}

// DefaultConfig returns the decision logger's configuration defaults.
func DefaultConfig() Config {
	return Config{RetentionDays: 90, BatchSize: 100}
}

func applyDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = def.RetentionDays
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	return cfg
}

// Logger is the SQLite-backed append-only ledger. Writes accumulate in a
// pending buffer and flush on size threshold, on shutdown, or on
// explicit Flush.
type Logger struct {
	cfg Config
	db  *sql.DB

	mu      sync.Mutex
	pending []Event
	signer  *signer
	closed  bool
}

// New opens (creating if needed) the ledger database at cfg.DatabasePath
// and applies its schema. Schema initialization errors are fatal.
func New(cfg Config) (*Logger, error) {
	cfg = applyDefaults(cfg)
	db, err := sql.Open("sqlite", cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("decisionlog: open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(ledgerSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("decisionlog: apply schema: %w", err)
	}

	l := &Logger{cfg: cfg, db: db, signer: newSigner(cfg.SignKey)}
	log.Info().Str("path", cfg.DatabasePath).Msg("decision logger opened")
	return l, nil
}

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS decision_log (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type          TEXT NOT NULL,
	timestamp           TEXT NOT NULL,
	request_id          TEXT,
	session_key         TEXT,
	action              TEXT,
	verdict             TEXT,
	destination         TEXT,
	target              TEXT,
	content_hash        TEXT,
	content_length      INTEGER,
	flag_count          INTEGER,
	highest_classification TEXT,
	duration_ms         INTEGER,
	operator            TEXT,
	reason              TEXT,
	previous_state      TEXT,
	new_state           TEXT,
	flag_details        TEXT,
	metadata            TEXT,
	signature           TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_decision_log_timestamp ON decision_log(timestamp);
CREATE INDEX IF NOT EXISTS idx_decision_log_type ON decision_log(event_type);
CREATE INDEX IF NOT EXISTS idx_decision_log_action ON decision_log(action);
CREATE INDEX IF NOT EXISTS idx_decision_log_session ON decision_log(session_key);
CREATE INDEX IF NOT EXISTS idx_decision_log_request ON decision_log(request_id);
`

// Log appends an event to the pending buffer, signing it first, and
// auto-flushes once the buffer reaches batch_size. Per the sanitization
// rule, ev.FlagDetails must already omit matched_text and context: Log
// rejects flag details containing either key, and callers (the gateway
// hook) own producing the sanitized form before calling Log.
func (l *Logger) Log(ctx context.Context, ev Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if strings.Contains(string(ev.FlagDetails), `"matched_text"`) || strings.Contains(string(ev.FlagDetails), `"context"`) {
		return fmt.Errorf("decisionlog: flag_details must not contain matched_text or context")
	}
	ev.Signature = l.signer.sign(ev)

	l.mu.Lock()
	l.pending = append(l.pending, ev)
	shouldFlush := len(l.pending) >= l.cfg.BatchSize
	l.mu.Unlock()

	if l.cfg.FileLoggingEnabled && l.cfg.LogFilePath != "" {
		if err := l.appendToFile(ev); err != nil {
			log.Warn().Err(err).Msg("decision logger file logging failed")
		}
	}

	if shouldFlush {
		return l.Flush(ctx)
	}
	return nil
}

// Flush drains the pending buffer in a single transaction.
func (l *Logger) Flush(ctx context.Context) error {
	l.mu.Lock()
	batch := l.pending
	l.pending = nil
	l.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		l.requeue(batch)
		return fmt.Errorf("decisionlog: begin flush tx: %w", err)
	}
	defer tx.Rollback()

	for _, ev := range batch {
		if err := insertEvent(ctx, tx, ev); err != nil {
			l.requeue(batch)
			return fmt.Errorf("decisionlog: insert event: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		l.requeue(batch)
		return fmt.Errorf("decisionlog: commit flush tx: %w", err)
	}
	return nil
}

// requeue puts a failed batch back at the front of the pending buffer so
// a subsequent flush can retry it.
func (l *Logger) requeue(batch []Event) {
	l.mu.Lock()
	l.pending = append(batch, l.pending...)
	l.mu.Unlock()
}

// Close flushes pending writes, emits system_shutdown, then closes the
// database. Idempotent.
func (l *Logger) Close(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	if err := l.Flush(ctx); err != nil {
		return err
	}
	if err := l.Log(ctx, Event{EventType: EventSystemShutdown}); err != nil {
		return err
	}
	if err := l.Flush(ctx); err != nil {
		return err
	}
	return l.db.Close()
}

func (l *Logger) appendToFile(ev Event) error {
	if err := os.MkdirAll(filepath.Dir(l.cfg.LogFilePath), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(l.cfg.LogFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	line, err := json.Marshal(toWireEvent(ev))
	if err != nil {
		return err
	}
	_, err = f.Write(append(line, '\n'))
	return err
}
