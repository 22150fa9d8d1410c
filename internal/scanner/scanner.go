// Package scanner implements the deterministic Layer 1 detector: regex
// and exact-substring matching against a snapshot of the registry's
// patterns and entries.
package scanner

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sentrywatch/watchdog/internal/classify"
	"github.com/sentrywatch/watchdog/internal/registry"
)

// Config configures the scanner. FuseThreshold and FuseDistance are
// reserved for the fuzzy_search operator tool and are not consulted by
// the deterministic Scan pass.
type Config struct {
	DatabasePath   string
	FuseThreshold  float64
	FuseDistance   int
	MinMatchLength int
	MaxScanTimeMs  int
	ContextSize    int
}

// DefaultConfig returns the scanner's configuration defaults.
func DefaultConfig() Config {
	return Config{
		FuseThreshold:  0.4,
		FuseDistance:   100,
		MinMatchLength: 3,
		MaxScanTimeMs:  5000,
		ContextSize:    30,
	}
}

func applyDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.MinMatchLength <= 0 {
		cfg.MinMatchLength = def.MinMatchLength
	}
	if cfg.MaxScanTimeMs <= 0 {
		cfg.MaxScanTimeMs = def.MaxScanTimeMs
	}
	if cfg.ContextSize <= 0 {
		cfg.ContextSize = def.ContextSize
	}
	if cfg.FuseThreshold == 0 {
		cfg.FuseThreshold = def.FuseThreshold
	}
	if cfg.FuseDistance == 0 {
		cfg.FuseDistance = def.FuseDistance
	}
	return cfg
}

// Flag is a single detection.
type Flag struct {
	Start          int
	End            int
	PatternType    string
	MatchedText    string
	Context        string
	Classification classify.Classification
	Confidence     float64
	Source         string // "pattern" or "entry"
	Locale         string
}

// Result is the outcome of a single Scan call.
type Result struct {
	ScanID                string
	ScannedAt             time.Time
	InputLength           int
	DurationMs            int64
	Flags                 []Flag
	FlagCount             int
	HighestClassification classify.Classification
	Verdict               string // "clean", "flagged", or "error"
	Error                 string
}

type compiledPattern struct {
	patternType string
	locale      string
	class       classify.Classification
	re          *regexp.Regexp
}

type entrySnapshot struct {
	label    string
	class    classify.Classification
	primary  string
	variants []string
}

// Scanner holds an atomically-swappable snapshot of the compiled detector
// set. The registry remains the single source of truth; reload()
// rebuilds this snapshot from it.
type Scanner struct {
	cfg   Config
	store *registry.Store

	snapshot atomic.Pointer[snapshot]
}

type snapshot struct {
	patterns        []compiledPattern
	entries         []entrySnapshot
	compileFailures []string
}

// New opens a registry handle at cfg.DatabasePath and loads the initial
// detector snapshot.
func New(ctx context.Context, cfg Config) (*Scanner, error) {
	cfg = applyDefaults(cfg)
	store, err := registry.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("scanner: open registry: %w", err)
	}
	s := &Scanner{cfg: cfg, store: store}
	if err := s.Reload(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return s, nil
}

// NewWithStore builds a scanner over an already-open registry handle,
// for callers (e.g. the gateway hook) that share one store instance.
func NewWithStore(ctx context.Context, cfg Config, store *registry.Store) (*Scanner, error) {
	cfg = applyDefaults(cfg)
	s := &Scanner{cfg: cfg, store: store}
	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases the underlying registry handle.
func (s *Scanner) Close() error { return s.store.Close() }

// Reload rebuilds the detector set from the registry under an atomic
// pointer swap, so in-flight scans always observe a coherent snapshot
// (either the old or the new one, never a torn mix).
func (s *Scanner) Reload(ctx context.Context) error {
	patterns, err := s.store.ListPatterns(ctx, registry.PatternFilter{Active: boolPtr(true)})
	if err != nil {
		return fmt.Errorf("scanner: load patterns: %w", err)
	}

	var failures []string
	var compiled []compiledPattern
	for _, p := range patterns {
		if p.RegexSource == nil {
			continue
		}
		reSrc := translateFlags(*p.RegexSource, p.RegexFlags)
		re, err := regexp.Compile(reSrc)
		if err != nil {
			log.Warn().Str("pattern_type", p.PatternType).Err(err).Msg("pattern failed to compile, skipping")
			failures = append(failures, p.PatternType)
			continue
		}
		locale, _ := s.store.GetLocale(ctx, p.LocaleID)
		compiled = append(compiled, compiledPattern{
			patternType: p.PatternType,
			locale:      locale.Slug,
			class:       p.DefaultClass,
			re:          re,
		})
	}

	entries, err := s.store.ListActiveEntries(ctx)
	if err != nil {
		return fmt.Errorf("scanner: load entries: %w", err)
	}
	var snapEntries []entrySnapshot
	for _, e := range entries {
		variants, err := s.store.ListVariants(ctx, e.ID)
		if err != nil {
			return fmt.Errorf("scanner: load variants for entry %d: %w", e.ID, err)
		}
		texts := make([]string, len(variants))
		for i, v := range variants {
			texts[i] = v.VariantText
		}
		snapEntries = append(snapEntries, entrySnapshot{
			label:    e.Label,
			class:    e.Classification,
			primary:  e.PrimaryValue,
			variants: texts,
		})
	}

	s.snapshot.Store(&snapshot{patterns: compiled, entries: snapEntries, compileFailures: failures})
	log.Info().Int("patterns", len(compiled)).Int("entries", len(snapEntries)).
		Int("compile_failures", len(failures)).Msg("scanner snapshot reloaded")
	return nil
}

// CompileFailures returns the pattern_type identifiers of patterns that
// failed to compile and were skipped at the last reload.
func (s *Scanner) CompileFailures() []string {
	return append([]string(nil), s.snapshot.Load().compileFailures...)
}

// Scan runs the deterministic detection pass: pattern regexes and entry
// substrings are matched against text, exact duplicate flags (same span
// and pattern type/label) are dropped, and the overall classification is
// the strictest flag found. Overlapping flags with different spans or
// types are all kept. localeFilter,
// when non-empty, restricts the pattern set to those locales.
func (s *Scanner) Scan(text string, localeFilter []string) Result {
	start := time.Now()
	result := Result{
		ScanID:    "scan-" + uuid.NewString()[:8],
		ScannedAt: start.UTC(),
		InputLength: len(text),
	}

	if text == "" {
		result.Verdict = "clean"
		result.DurationMs = time.Since(start).Milliseconds()
		return result
	}

	flags, err := s.scanFlags(text, localeFilter, start)
	result.DurationMs = time.Since(start).Milliseconds()
	if err != nil {
		result.Verdict = "error"
		result.Error = err.Error()
		return result
	}

	flags = dedupeFlags(flags)
	result.Flags = flags
	result.FlagCount = len(flags)
	classes := make([]classify.Classification, len(flags))
	for i, f := range flags {
		classes[i] = f.Classification
	}
	result.HighestClassification = classify.Overall(classes)
	if result.FlagCount > 0 {
		result.Verdict = "flagged"
	} else {
		result.Verdict = "clean"
	}
	return result
}

func (s *Scanner) scanFlags(text string, localeFilter []string, start time.Time) ([]Flag, error) {
	deadline := time.Duration(s.cfg.MaxScanTimeMs) * time.Millisecond
	localeSet := toSet(localeFilter)

	var flags []Flag
	snap := s.snapshot.Load()

	for _, p := range snap.patterns {
		if time.Since(start) > deadline {
			return nil, fmt.Errorf("scan exceeded max_scan_time_ms=%d", s.cfg.MaxScanTimeMs)
		}
		if len(localeSet) > 0 && !localeSet[p.locale] {
			continue
		}
		matches := p.re.FindAllStringIndex(text, -1)
		for _, m := range matches {
			startIdx, endIdx := m[0], m[1]
			if endIdx == startIdx {
				// Zero-length match: the cursor in FindAllStringIndex
				// already advances by one internally; nothing to flag.
				continue
			}
			if endIdx-startIdx < s.cfg.MinMatchLength {
				continue
			}
			flags = append(flags, Flag{
				Start:          startIdx,
				End:            endIdx,
				PatternType:    p.patternType,
				MatchedText:    text[startIdx:endIdx],
				Context:        extractContext(text, startIdx, endIdx, s.cfg.ContextSize),
				Classification: p.class,
				Confidence:     1.0,
				Source:         "pattern",
				Locale:         p.locale,
			})
		}
	}

	lowered := strings.ToLower(text)
	for _, e := range snap.entries {
		flags = append(flags, findSubstringFlags(text, lowered, e.primary, e.label, e.class, 1.0, s.cfg)...)
		for _, v := range e.variants {
			flags = append(flags, findSubstringFlags(text, lowered, v, e.label, e.class, 0.95, s.cfg)...)
		}
	}

	return flags, nil
}

func findSubstringFlags(text, lowered, needle, label string, class classify.Classification, confidence float64, cfg Config) []Flag {
	if needle == "" || len(needle) < cfg.MinMatchLength {
		return nil
	}
	neededLower := strings.ToLower(needle)
	var out []Flag
	offset := 0
	for {
		idx := strings.Index(lowered[offset:], neededLower)
		if idx < 0 {
			break
		}
		startIdx := offset + idx
		endIdx := startIdx + len(needle)
		out = append(out, Flag{
			Start:          startIdx,
			End:            endIdx,
			PatternType:    label,
			MatchedText:    text[startIdx:endIdx],
			Context:        extractContext(text, startIdx, endIdx, cfg.ContextSize),
			Classification: class,
			Confidence:     confidence,
			Source:         "entry",
		})
		offset = endIdx
	}
	return out
}

// dedupeFlags removes duplicates by (start, end, pattern_type/label),
// retaining the first occurrence.
func dedupeFlags(flags []Flag) []Flag {
	seen := make(map[string]bool, len(flags))
	out := make([]Flag, 0, len(flags))
	for _, f := range flags {
		key := fmt.Sprintf("%d:%d:%s", f.Start, f.End, f.PatternType)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, f)
	}
	return out
}

// extractContext brackets the match as [matched] with up to size
// characters of surrounding context, prefixing/suffixing with "..." if
// truncated.
func extractContext(text string, start, end, size int) string {
	preStart := start - size
	prefix := "..."
	if preStart <= 0 {
		preStart = 0
		prefix = ""
	}
	postEnd := end + size
	suffix := "..."
	if postEnd >= len(text) {
		postEnd = len(text)
		suffix = ""
	}
	return prefix + text[preStart:start] + "[" + text[start:end] + "]" + text[end:postEnd] + suffix
}

func toSet(ss []string) map[string]bool {
	if len(ss) == 0 {
		return nil
	}
	out := make(map[string]bool, len(ss))
	for _, s := range ss {
		out[s] = true
	}
	return out
}

func boolPtr(b bool) *bool { return &b }

// translateFlags folds the stored regex_flags string (subset: "i" case
// insensitive, "m" multiline, "s" dot-matches-newline) into a Go RE2
// inline flag group, since the pack's patterns are sourced with PCRE-style
// flag letters rather than Go's (?flags) syntax.
func translateFlags(source string, flags *string) string {
	if flags == nil || *flags == "" {
		return source
	}
	var goFlags []byte
	for _, r := range *flags {
		switch r {
		case 'i', 'm', 's':
			goFlags = append(goFlags, byte(r))
		}
	}
	if len(goFlags) == 0 {
		return source
	}
	return "(?" + string(goFlags) + ")" + source
}
