// Package secagent implements the Layer 2 Security Agent: contextual
// re-classification of scanner flags via an external language model,
// with caching and fail-closed semantics.
package secagent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sentrywatch/watchdog/internal/classify"
	"github.com/sentrywatch/watchdog/internal/scanner"
)

// Config configures the Security Agent.
type Config struct {
	ModelURL         string
	ModelName        string
	TimeoutMs        int
	Enabled          bool
	MaxContentLength int
	CacheTTLMs       int
}

// DefaultConfig returns the security agent's configuration defaults.
func DefaultConfig() Config {
	return Config{
		TimeoutMs:        30000,
		Enabled:          true,
		MaxContentLength: 4000,
		CacheTTLMs:       300000,
	}
}

func applyDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.TimeoutMs <= 0 {
		cfg.TimeoutMs = def.TimeoutMs
	}
	if cfg.MaxContentLength <= 0 {
		cfg.MaxContentLength = def.MaxContentLength
	}
	if cfg.CacheTTLMs == 0 {
		cfg.CacheTTLMs = def.CacheTTLMs
	}
	return cfg
}

const systemPrompt = `You classify a single detected text span into exactly one of four
tiers: NEVER_SHARE, ASK_FIRST, INTERNAL_ONLY, PUBLIC. NEVER_SHARE is for
live credentials, government identifiers, and financial account numbers.
ASK_FIRST is for personal data that may be shared with explicit consent.
INTERNAL_ONLY is for values that are fine within the organization but not
external. PUBLIC is for placeholders, documentation examples, and
already-public values. Reply with a single JSON object:
{"classification": "...", "confidence": 0.0-1.0, "reasoning": "..."}`

// Result is the outcome of Analyze: one FlagAnalysis per input flag,
// plus the overall (strictest) classification across them.
type Result struct {
	Analyses  []FlagAnalysis
	Overall   classify.Classification
	AgentUsed bool
}

// Agent re-classifies scanner flags by consulting an external language
// model, the way the pack's provider clients talk to a local or
// OpenAI-compatible chat endpoint, wrapped in fail-closed semantics.
type Agent struct {
	cfg     Config
	client  *lmClient
	cache   *analysisCache
	breaker *breaker
}

// New builds a Security Agent. When cfg.Enabled is false, Analyze always
// returns a passthrough of the scanner's own classifications.
func New(cfg Config) *Agent {
	cfg = applyDefaults(cfg)
	return &Agent{
		cfg:     cfg,
		client:  newLMClient(cfg.ModelURL, time.Duration(cfg.TimeoutMs)*time.Millisecond),
		cache:   newAnalysisCache(cfg.CacheTTLMs),
		breaker: newBreaker(),
	}
}

// Analyze re-classifies each flag in res against the original content.
func (a *Agent) Analyze(ctx context.Context, res scanner.Result, content string) Result {
	if !a.cfg.Enabled {
		return a.passthrough(res)
	}
	if len(res.Flags) == 0 {
		return Result{Overall: classify.Public, AgentUsed: false}
	}

	hash := contentHash(content)
	analyses := make([]FlagAnalysis, 0, len(res.Flags))
	used := false

	for _, f := range res.Flags {
		key := cacheKey(f.PatternType, f.MatchedText, hash)
		if cached, ok := a.cache.get(key); ok {
			analyses = append(analyses, cached)
			continue
		}

		analysis, attempted := a.classifyFlag(ctx, f, content)
		if attempted {
			used = true
		}
		a.cache.put(key, analysis)
		analyses = append(analyses, analysis)
	}

	classes := make([]classify.Classification, len(analyses))
	for i, an := range analyses {
		classes[i] = an.Classification
	}
	return Result{Analyses: analyses, Overall: classify.Overall(classes), AgentUsed: used}
}

func (a *Agent) passthrough(res scanner.Result) Result {
	analyses := make([]FlagAnalysis, len(res.Flags))
	classes := make([]classify.Classification, len(res.Flags))
	for i, f := range res.Flags {
		analyses[i] = FlagAnalysis{
			PatternType:    f.PatternType,
			MatchedText:    f.MatchedText,
			Classification: f.Classification,
			Confidence:     1.0,
			Reasoning:      "agent disabled",
		}
		classes[i] = f.Classification
	}
	return Result{Analyses: analyses, Overall: classify.Overall(classes), AgentUsed: false}
}

// classifyFlag checks the circuit breaker, then calls the model; the
// cache is consulted by Analyze before this is reached. The second
// return value reports whether an LM call was actually attempted (true
// even when it failed, false when the open breaker skipped the call).
func (a *Agent) classifyFlag(ctx context.Context, f scanner.Flag, content string) (FlagAnalysis, bool) {
	fallback := FlagAnalysis{
		PatternType:    f.PatternType,
		MatchedText:    f.MatchedText,
		Classification: f.Classification,
		Confidence:     0.5,
		Reasoning:      "LLM analysis failed / using scanner classification",
	}

	if !a.breaker.allow() {
		log.Warn().Str("pattern_type", f.PatternType).Msg("security agent breaker open, using fallback")
		return fallback, false
	}

	truncated := content
	if len(truncated) > a.cfg.MaxContentLength {
		truncated = truncated[:a.cfg.MaxContentLength]
	}
	userMsg := fmt.Sprintf(
		"pattern_type: %s\nmatched_value: %s\nscanner_context: %s\nscanner_classification: %s\ncontent: %s",
		f.PatternType, f.MatchedText, f.Context, f.Classification.String(), truncated)

	reqCtx, cancel := context.WithTimeout(ctx, time.Duration(a.cfg.TimeoutMs)*time.Millisecond)
	defer cancel()

	raw, err := a.client.chat(reqCtx, a.cfg.ModelName, []chatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userMsg},
	}, 0.0, 256)
	if err != nil {
		a.breaker.recordFailure()
		log.Warn().Str("pattern_type", f.PatternType).Str("category", categorizeTransportErr(err)).
			Err(err).Msg("security agent LM call failed, falling back to scanner classification")
		return fallback, true
	}

	obj, ok := extractJSONObject(raw)
	if !ok {
		a.breaker.recordFailure()
		log.Warn().Str("pattern_type", f.PatternType).Msg("security agent could not find JSON object in LM response")
		return fallback, true
	}

	var parsed struct {
		Classification string  `json:"classification"`
		Confidence     float64 `json:"confidence"`
		Reasoning      string  `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(obj), &parsed); err != nil {
		a.breaker.recordFailure()
		log.Warn().Str("pattern_type", f.PatternType).Err(err).Msg("security agent could not parse LM JSON")
		return fallback, true
	}

	a.breaker.recordSuccess()
	confidence := parsed.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return FlagAnalysis{
		PatternType:    f.PatternType,
		MatchedText:    f.MatchedText,
		Classification: classify.ParseClassification(parsed.Classification),
		Confidence:     confidence,
		Reasoning:      parsed.Reasoning,
	}, true
}

// TestConnection probes the model service's tag-listing endpoint.
func (a *Agent) TestConnection(ctx context.Context) (time.Duration, error) {
	return a.client.testConnection(ctx)
}
