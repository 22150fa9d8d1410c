package decisionlog

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestLogger(t *testing.T) *Logger {
	t.Helper()
	l, err := New(Config{DatabasePath: filepath.Join(t.TempDir(), "decisions.db"), BatchSize: 2})
	require.NoError(t, err)
	t.Cleanup(func() { l.Close(context.Background()) })
	return l
}

func strp(s string) *string { return &s }

func TestLogAndQueryRoundTrip(t *testing.T) {
	ctx := context.Background()
	l := openTestLogger(t)

	action := "allow"
	require.NoError(t, l.Log(ctx, Event{EventType: EventOutboundScan, RequestID: strp("req-1"), Action: &action}))
	require.NoError(t, l.Flush(ctx))

	rows, err := l.Query(ctx, Filter{RequestID: strp("req-1")})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "req-1", *rows[0].RequestID)
	require.True(t, l.VerifySignature(rows[0]))
}

func TestAutoFlushOnBatchSize(t *testing.T) {
	ctx := context.Background()
	l := openTestLogger(t)

	require.NoError(t, l.Log(ctx, Event{EventType: EventOutboundScan}))
	require.NoError(t, l.Log(ctx, Event{EventType: EventOutboundScan}))

	// Read the table directly: Count flushes on its own, so only this
	// shows the second Log already flushed the batch.
	var stored int
	require.NoError(t, l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM decision_log").Scan(&stored))
	require.Equal(t, 2, stored)

	n, err := l.Count(ctx, Filter{})
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestSanitizationRejectsMatchedTextOrContext(t *testing.T) {
	ctx := context.Background()
	l := openTestLogger(t)

	err := l.Log(ctx, Event{EventType: EventOutboundScan, FlagDetails: json.RawMessage(`[{"matched_text":"123-45-6789"}]`)})
	require.Error(t, err)
}

func TestCloseIsIdempotentAndEmitsShutdown(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "d.db")
	l, err := New(Config{DatabasePath: path})
	require.NoError(t, err)

	require.NoError(t, l.Close(ctx))
	require.NoError(t, l.Close(ctx))

	reopened, err := New(Config{DatabasePath: path})
	require.NoError(t, err)
	defer reopened.Close(ctx)
	shutdown := EventSystemShutdown
	n, err := reopened.Count(ctx, Filter{Type: &shutdown})
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestPurgeOldEntries(t *testing.T) {
	ctx := context.Background()
	l := openTestLogger(t)
	require.NoError(t, l.Log(ctx, Event{EventType: EventSystemStartup}))
	require.NoError(t, l.Flush(ctx))

	n, err := l.PurgeOldEntries(ctx)
	require.NoError(t, err)
	require.Zero(t, n) // fresh event is not older than the 90-day retention default
}

func TestExportToFileWritesJSONLWithCamelCase(t *testing.T) {
	ctx := context.Background()
	l := openTestLogger(t)

	action := "allow"
	require.NoError(t, l.Log(ctx, Event{EventType: EventOutboundScan, Action: &action}))

	path := filepath.Join(t.TempDir(), "export", "out.jsonl")
	n, err := l.ExportToFile(ctx, path, Filter{})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"eventType"`)
	require.Contains(t, string(data), `"allow"`)
}

func TestStatsAggregates(t *testing.T) {
	ctx := context.Background()
	l := openTestLogger(t)

	allow, block := "allow", "block"
	require.NoError(t, l.Log(ctx, Event{EventType: EventOutboundScan, Action: &allow}))
	require.NoError(t, l.Log(ctx, Event{EventType: EventOutboundScan, Action: &block}))
	require.NoError(t, l.Flush(ctx))

	stats, err := l.Stats(ctx, Filter{})
	require.NoError(t, err)
	require.Equal(t, 1, stats.ByAction["allow"])
	require.Equal(t, 1, stats.ByAction["block"])
}

func TestStatsWithEmptyFilterStillBuildsValidSQL(t *testing.T) {
	ctx := context.Background()
	l := openTestLogger(t)
	_, err := l.Stats(ctx, Filter{})
	require.NoError(t, err)
}
