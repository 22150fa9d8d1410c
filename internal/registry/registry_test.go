package registry

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sentrywatch/watchdog/internal/classify"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCreateLocaleAndPattern(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	locale, err := store.CreateLocale(ctx, "us-en", "US English", nil, 10)
	require.NoError(t, err)
	require.Equal(t, "us-en", locale.Slug)

	regex := `\b\d{3}-\d{2}-\d{4}\b`
	p, err := store.CreatePattern(ctx, PatternInput{
		LocaleID:     locale.ID,
		Category:     "identifiers",
		PatternType:  "ssn",
		DisplayName:  "US Social Security Number",
		RegexSource:  &regex,
		DefaultClass: classify.NeverShare,
	})
	require.NoError(t, err)
	require.Equal(t, "ssn", p.PatternType)
	require.True(t, p.Active)

	_, err = store.CreatePattern(ctx, PatternInput{
		LocaleID: locale.ID, Category: "identifiers", PatternType: "ssn", DisplayName: "dup", RegexSource: &regex,
	})
	require.ErrorIs(t, err, ErrUniquenessViolation)

	_, err = store.CreatePattern(ctx, PatternInput{
		LocaleID: 99999, Category: "x", PatternType: "y", DisplayName: "z", RegexSource: &regex,
	})
	require.Error(t, err)

	_, err = store.CreatePattern(ctx, PatternInput{
		LocaleID: locale.ID, Category: "x", PatternType: "no-detector", DisplayName: "z",
	})
	require.ErrorIs(t, err, ErrInvalidInput)

	require.NoError(t, store.DeactivatePattern(ctx, p.ID))
	got, err := store.GetPattern(ctx, p.ID)
	require.NoError(t, err)
	require.False(t, got.Active)
}

func TestCreateEntryWithVariants(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	entry, err := store.CreateEntry(ctx, EntryInput{
		Label: "ceo-email", DisplayName: "CEO Email", PrimaryValue: "ceo@acme.com",
		Classification: classify.InternalOnly,
	}, []VariantInput{{Text: "ceo (at) acme dot com", Type: "alias"}})
	require.NoError(t, err)

	variants, err := store.ListVariants(ctx, entry.ID)
	require.NoError(t, err)
	require.Len(t, variants, 1)

	_, err = store.CreateEntry(ctx, EntryInput{Label: "ceo-email", DisplayName: "dup", PrimaryValue: "x"}, nil)
	require.ErrorIs(t, err, ErrUniquenessViolation)

	_, err = store.AddVariant(ctx, entry.ID, "ceo (at) acme dot com", "")
	require.ErrorIs(t, err, ErrUniquenessViolation)
}

func TestRecordDetectionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	in := DetectionInput{
		RefType: RefPattern, RefID: 1, RefLabel: "ssn", StorageLocation: "/tmp/foo.txt",
		StorageType: StorageFile, DataForm: FormVerbatim, CurrentClass: classify.NeverShare,
	}
	first, err := store.RecordDetection(ctx, in)
	require.NoError(t, err)

	second, err := store.RecordDetection(ctx, in)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	input, err := store.GetPostureInput(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, input.TotalActive)
	require.Equal(t, 1, input.CountsByClass[classify.NeverShare])
}

func TestClearInventoryByLocation(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	_, err := store.RecordDetection(ctx, DetectionInput{
		RefType: RefUserEntry, RefID: 1, RefLabel: "a", StorageLocation: "loc-a",
		StorageType: StorageMemory, DataForm: FormVerbatim, CurrentClass: classify.AskFirst,
	})
	require.NoError(t, err)

	n, err := store.ClearInventoryByLocation(ctx, "loc-a", "operator-1")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	input, err := store.GetPostureInput(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, input.TotalActive)
}

func TestGetHealth(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	h, err := store.GetHealth(ctx)
	require.NoError(t, err)
	require.True(t, h.OK)
	require.Equal(t, 0, h.PatternCount)
}

func TestFuzzySearch(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	_, err := store.CreateEntry(ctx, EntryInput{Label: "l1", DisplayName: "d", PrimaryValue: "jonathan.smith@acme.com"}, nil)
	require.NoError(t, err)

	matches, err := store.FuzzySearch(ctx, "jonathan.smith@acme.co", 5)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	require.Equal(t, "l1", matches[0].Label)
}
