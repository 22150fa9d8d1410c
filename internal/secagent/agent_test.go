package secagent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sentrywatch/watchdog/internal/classify"
	"github.com/sentrywatch/watchdog/internal/scanner"
)

func flaggedResult(patternType, matched string, class classify.Classification) scanner.Result {
	return scanner.Result{
		Verdict:   "flagged",
		FlagCount: 1,
		Flags: []scanner.Flag{
			{PatternType: patternType, MatchedText: matched, Classification: class, Context: "ctx", Source: "pattern"},
		},
	}
}

func TestAnalyzeDisabledPassthrough(t *testing.T) {
	agent := New(Config{Enabled: false})
	res := agent.Analyze(context.Background(), flaggedResult("ssn", "123-45-6789", classify.NeverShare), "content")
	require.False(t, res.AgentUsed)
	require.Len(t, res.Analyses, 1)
	require.Equal(t, classify.NeverShare, res.Analyses[0].Classification)
	require.Contains(t, res.Analyses[0].Reasoning, "agent disabled")
}

func TestAnalyzeNoFlags(t *testing.T) {
	agent := New(Config{Enabled: true})
	res := agent.Analyze(context.Background(), scanner.Result{Verdict: "clean"}, "content")
	require.False(t, res.AgentUsed)
	require.Equal(t, classify.Public, res.Overall)
	require.Empty(t, res.Analyses)
}

func TestAnalyzeDowngradesViaLM(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant",
					"content": "```json\n{\"classification\":\"PUBLIC\",\"confidence\":0.9,\"reasoning\":\"example data\"}\n```"}},
			},
		})
	}))
	defer srv.Close()

	agent := New(Config{Enabled: true, ModelURL: srv.URL, ModelName: "test-model", TimeoutMs: 2000})
	res := agent.Analyze(context.Background(), flaggedResult("ssn", "123-45-6789", classify.NeverShare), "example data 123-45-6789")
	require.True(t, res.AgentUsed)
	require.Equal(t, classify.Public, res.Overall)
	require.False(t, res.Analyses[0].Cached)

	second := agent.Analyze(context.Background(), flaggedResult("ssn", "123-45-6789", classify.NeverShare), "example data 123-45-6789")
	require.True(t, second.Analyses[0].Cached)
}

func TestAnalyzeFailsClosedOnTransportError(t *testing.T) {
	agent := New(Config{Enabled: true, ModelURL: "http://127.0.0.1:1", ModelName: "test-model", TimeoutMs: 500})
	res := agent.Analyze(context.Background(), flaggedResult("ssn", "123-45-6789", classify.NeverShare), "content")
	require.True(t, res.AgentUsed)
	require.Equal(t, classify.NeverShare, res.Overall)
	require.Contains(t, res.Analyses[0].Reasoning, "failed")
}

func TestTestConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	agent := New(Config{ModelURL: srv.URL})
	_, err := agent.TestConnection(context.Background())
	require.NoError(t, err)
}
