package hook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sentrywatch/watchdog/internal/classify"
	"github.com/sentrywatch/watchdog/internal/decisionlog"
	"github.com/sentrywatch/watchdog/internal/registry"
	"github.com/sentrywatch/watchdog/internal/secagent"
)

func newTestHook(t *testing.T, posture string, agentCfg *secagent.Config) *Hook {
	t.Helper()
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "registry.db")

	store, err := registry.Open(dbPath)
	require.NoError(t, err)

	locale, err := store.CreateLocale(ctx, "default", "Default", nil, 0)
	require.NoError(t, err)

	ssnRegex := `\b\d{3}-\d{2}-\d{4}\b`
	_, err = store.CreatePattern(ctx, registry.PatternInput{
		LocaleID: locale.ID, Category: "identifiers", PatternType: "ssn",
		DisplayName: "SSN", RegexSource: &ssnRegex, DefaultClass: classify.NeverShare,
	})
	require.NoError(t, err)

	_, err = store.CreateEntry(ctx, registry.EntryInput{
		Label: "internal-email", DisplayName: "Internal Email", PrimaryValue: "jane@acme.com",
		Classification: classify.InternalOnly,
	}, nil)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	h, err := New(ctx, Config{
		DatabasePath:    dbPath,
		OutboundEnabled: true,
		InboundEnabled:  true,
		PostureLevel:    posture,
		AgentConfig:     agentCfg,
		LoggerConfig:    &decisionlog.Config{DatabasePath: filepath.Join(t.TempDir(), "decisions.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { h.Close(ctx) })
	return h
}

func TestScanOutboundCleanContentAllows(t *testing.T) {
	ctx := context.Background()
	h := newTestHook(t, "standard", nil)

	res := h.ScanOutbound(ctx, OutboundRequest{Content: "just a normal message", Destination: classify.DestEmail})
	require.Equal(t, classify.ActionAllow, res.Action)
	require.NotEmpty(t, res.ApprovalToken)
	require.Empty(t, res.QuarantineID)
}

func TestScanOutboundNeverShareUnderStandardQuarantines(t *testing.T) {
	ctx := context.Background()
	h := newTestHook(t, "standard", nil)

	res := h.ScanOutbound(ctx, OutboundRequest{Content: "SSN 123-45-6789", Destination: classify.DestEmail})
	require.Equal(t, classify.ActionQuarantine, res.Action)
	require.NotEmpty(t, res.QuarantineID)
	require.Empty(t, res.ApprovalToken)

	entry, ok := h.GetQuarantine(res.QuarantineID)
	require.True(t, ok)
	require.Equal(t, QuarantinePending, entry.Status)
}

func TestScanOutboundNeverShareUnderPermissiveQuarantines(t *testing.T) {
	ctx := context.Background()
	h := newTestHook(t, "permissive", nil)

	res := h.ScanOutbound(ctx, OutboundRequest{Content: "SSN 123-45-6789", Destination: classify.DestEmail})
	require.Equal(t, classify.ActionQuarantine, res.Action)
}

func TestScanOutboundInternalOnlyToClipboardAllowsButToEmailQuarantines(t *testing.T) {
	ctx := context.Background()
	h := newTestHook(t, "standard", nil)

	toClipboard := h.ScanOutbound(ctx, OutboundRequest{Content: "contact jane@acme.com", Destination: classify.DestClipboard})
	require.Equal(t, classify.ActionAllow, toClipboard.Action)

	toEmail := h.ScanOutbound(ctx, OutboundRequest{Content: "contact jane@acme.com", Destination: classify.DestEmail})
	require.Equal(t, classify.ActionQuarantine, toEmail.Action)
}

func TestScanOutboundLockdownAlwaysBlocksFlagged(t *testing.T) {
	ctx := context.Background()
	h := newTestHook(t, "lockdown", nil)

	res := h.ScanOutbound(ctx, OutboundRequest{Content: "SSN 123-45-6789", Destination: classify.DestEmail})
	require.Equal(t, classify.ActionBlock, res.Action)
	require.Empty(t, res.ApprovalToken)
	require.Empty(t, res.QuarantineID)
}

func TestScanOutboundKillSwitchBlocksRegardlessOfContent(t *testing.T) {
	ctx := context.Background()
	h := newTestHook(t, "permissive", nil)
	h.SetKillSwitch(ctx, true, "admin")

	res := h.ScanOutbound(ctx, OutboundRequest{Content: "harmless text", Destination: classify.DestEmail})
	require.Equal(t, classify.ActionBlock, res.Action)
}

func TestApproveQuarantineIsTerminal(t *testing.T) {
	ctx := context.Background()
	h := newTestHook(t, "standard", nil)

	res := h.ScanOutbound(ctx, OutboundRequest{Content: "SSN 123-45-6789", Destination: classify.DestEmail})
	require.Equal(t, classify.ActionQuarantine, res.Action)

	token, ok := h.ApproveQuarantine(ctx, res.QuarantineID, "admin")
	require.True(t, ok)
	require.NotEmpty(t, token)

	_, ok = h.ApproveQuarantine(ctx, res.QuarantineID, "admin")
	require.False(t, ok)

	entry, _ := h.GetQuarantine(res.QuarantineID)
	require.Equal(t, QuarantineApproved, entry.Status)
	require.Equal(t, "admin", entry.ResolvedBy)
}

func TestRejectQuarantineIsTerminal(t *testing.T) {
	ctx := context.Background()
	h := newTestHook(t, "standard", nil)

	res := h.ScanOutbound(ctx, OutboundRequest{Content: "SSN 123-45-6789", Destination: classify.DestEmail})
	require.True(t, h.RejectQuarantine(ctx, res.QuarantineID, "admin"))
	require.False(t, h.RejectQuarantine(ctx, res.QuarantineID, "admin"))
}

func TestScanOutboundAgentDowngradesToPublic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant",
					"content": `{"classification":"PUBLIC","confidence":0.9,"reasoning":"example data"}`}},
			},
		})
	}))
	defer srv.Close()

	ctx := context.Background()
	h := newTestHook(t, "standard", &secagent.Config{Enabled: true, ModelURL: srv.URL, ModelName: "m", TimeoutMs: 2000})

	res := h.ScanOutbound(ctx, OutboundRequest{Content: "SSN 123-45-6789 (example data)", Destination: classify.DestEmail})
	require.True(t, res.AgentUsed)
	require.Equal(t, classify.Public, res.HighestClassification)
	require.Equal(t, classify.ActionAllow, res.Action)
}

func TestScanOutboundAgentFailureStaysFailClosed(t *testing.T) {
	ctx := context.Background()
	h := newTestHook(t, "standard", &secagent.Config{Enabled: true, ModelURL: "http://127.0.0.1:1", ModelName: "m", TimeoutMs: 500})

	res := h.ScanOutbound(ctx, OutboundRequest{Content: "SSN 123-45-6789", Destination: classify.DestEmail})
	require.True(t, res.AgentUsed)
	require.Equal(t, classify.NeverShare, res.HighestClassification)
	require.Equal(t, classify.ActionQuarantine, res.Action)
}

func TestInspectInboundRecommendsStricterPosture(t *testing.T) {
	ctx := context.Background()
	h := newTestHook(t, "standard", nil)

	res := h.InspectInbound(ctx, InboundRequest{Content: "SSN 123-45-6789"})
	require.True(t, res.Detected)
	require.True(t, res.HasRecommendation)
	require.Equal(t, classify.Strict, res.RecommendedPosture)
}

func TestInspectInboundCleanHasNoRecommendation(t *testing.T) {
	ctx := context.Background()
	h := newTestHook(t, "standard", nil)

	res := h.InspectInbound(ctx, InboundRequest{Content: "nothing interesting"})
	require.False(t, res.Detected)
	require.False(t, res.HasRecommendation)
}

func TestScanOutboundDisabledAllowsImmediately(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "r.db")
	store, err := registry.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	h, err := New(ctx, Config{DatabasePath: dbPath, OutboundEnabled: false, InboundEnabled: true, PostureLevel: "standard"})
	require.NoError(t, err)
	defer h.Close(ctx)

	res := h.ScanOutbound(ctx, OutboundRequest{Content: "SSN 123-45-6789", Destination: classify.DestEmail})
	require.Equal(t, classify.ActionAllow, res.Action)
	require.NotEmpty(t, res.ApprovalToken)
}

func TestGetHealthReflectsCounters(t *testing.T) {
	ctx := context.Background()
	h := newTestHook(t, "standard", nil)

	h.ScanOutbound(ctx, OutboundRequest{Content: "clean", Destination: classify.DestEmail})
	h.ScanOutbound(ctx, OutboundRequest{Content: "SSN 123-45-6789", Destination: classify.DestEmail})

	health := h.GetHealth()
	require.True(t, health.Initialized)
	require.Equal(t, int64(2), health.Counters.Scans)
	require.Equal(t, int64(1), health.Counters.Quarantines)
	require.EqualValues(t, 1, health.Counters.PendingQuarantines)
}
