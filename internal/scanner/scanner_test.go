package scanner

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sentrywatch/watchdog/internal/classify"
	"github.com/sentrywatch/watchdog/internal/registry"
)

func newTestScanner(t *testing.T) (*Scanner, *registry.Store, int64) {
	t.Helper()
	ctx := context.Background()

	store, err := registry.Open(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	locale, err := store.CreateLocale(ctx, "default", "Default", nil, 0)
	require.NoError(t, err)

	ssnRegex := `\b\d{3}-\d{2}-\d{4}\b`
	_, err = store.CreatePattern(ctx, registry.PatternInput{
		LocaleID: locale.ID, Category: "identifiers", PatternType: "ssn",
		DisplayName: "SSN", RegexSource: &ssnRegex, DefaultClass: classify.NeverShare,
	})
	require.NoError(t, err)

	badRegex := `(?<=foo)bar`
	_, err = store.CreatePattern(ctx, registry.PatternInput{
		LocaleID: locale.ID, Category: "identifiers", PatternType: "bad-lookbehind",
		DisplayName: "Unsupported", RegexSource: &badRegex, DefaultClass: classify.AskFirst,
	})
	require.NoError(t, err)

	_, err = store.CreateEntry(ctx, registry.EntryInput{
		Label: "internal-email", DisplayName: "Internal Email", PrimaryValue: "jane@acme.com",
		Classification: classify.InternalOnly,
	}, []registry.VariantInput{{Text: "jane (at) acme", Type: "alias"}})
	require.NoError(t, err)

	scanner, err := NewWithStore(ctx, DefaultConfig(), store)
	require.NoError(t, err)
	return scanner, store, locale.ID
}

func TestNewOpensOwnRegistryHandle(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "standalone.db")
	sc, err := New(ctx, Config{DatabasePath: path})
	require.NoError(t, err)
	defer sc.Close()

	res := sc.Scan("nothing sensitive here", nil)
	require.Equal(t, "clean", res.Verdict)
}

func TestScanCleanInput(t *testing.T) {
	scanner, _, _ := newTestScanner(t)
	res := scanner.Scan("Hello world", nil)
	require.Equal(t, "clean", res.Verdict)
	require.Zero(t, res.FlagCount)
}

func TestScanEmptyInput(t *testing.T) {
	scanner, _, _ := newTestScanner(t)
	res := scanner.Scan("", nil)
	require.Equal(t, "clean", res.Verdict)
	require.Zero(t, res.FlagCount)
}

func TestScanDetectsPatternAndEntry(t *testing.T) {
	scanner, _, _ := newTestScanner(t)
	res := scanner.Scan("My SSN is 123-45-6789, contact jane@acme.com", nil)
	require.Equal(t, "flagged", res.Verdict)
	require.Equal(t, classify.NeverShare, res.HighestClassification)

	var sawSSN, sawEntry bool
	for _, f := range res.Flags {
		if f.Source == "pattern" && f.PatternType == "ssn" {
			sawSSN = true
			require.Equal(t, "123-45-6789", f.MatchedText)
		}
		if f.Source == "entry" {
			sawEntry = true
		}
	}
	require.True(t, sawSSN)
	require.True(t, sawEntry)
}

func TestScanKeepsDistinctSpansOfSamePattern(t *testing.T) {
	scanner, _, _ := newTestScanner(t)
	res := scanner.Scan("123-45-6789 123-45-6789", nil)
	require.Equal(t, 2, res.FlagCount) // two distinct spans, not deduped against each other
}

func TestCompileFailuresSkipUnsupportedRegex(t *testing.T) {
	scanner, _, _ := newTestScanner(t)
	failures := scanner.CompileFailures()
	require.Contains(t, failures, "bad-lookbehind")
}

func TestReloadPicksUpNewPattern(t *testing.T) {
	ctx := context.Background()
	scanner, store, localeID := newTestScanner(t)

	phoneRegex := `\b\d{3}-\d{3}-\d{4}\b`
	_, err := store.CreatePattern(ctx, registry.PatternInput{
		LocaleID: localeID, Category: "identifiers", PatternType: "phone",
		DisplayName: "Phone", RegexSource: &phoneRegex, DefaultClass: classify.AskFirst,
	})
	require.NoError(t, err)

	before := scanner.Scan("Call 555-123-4567", nil)
	require.Equal(t, "clean", before.Verdict)

	require.NoError(t, scanner.Reload(ctx))
	after := scanner.Scan("Call 555-123-4567", nil)
	require.Equal(t, "flagged", after.Verdict)
}

func TestMinMatchLengthDiscardsShortMatches(t *testing.T) {
	ctx := context.Background()
	store, err := registry.Open(t.TempDir() + "/r.db")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	locale, err := store.CreateLocale(ctx, "l", "L", nil, 0)
	require.NoError(t, err)
	shortRegex := `ab`
	_, err = store.CreatePattern(ctx, registry.PatternInput{
		LocaleID: locale.ID, Category: "c", PatternType: "short", DisplayName: "short",
		RegexSource: &shortRegex, DefaultClass: classify.Public,
	})
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.MinMatchLength = 3
	scanner, err := NewWithStore(ctx, cfg, store)
	require.NoError(t, err)

	res := scanner.Scan("ab", nil)
	require.Equal(t, "clean", res.Verdict)
}
