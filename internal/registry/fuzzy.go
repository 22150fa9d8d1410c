package registry

import "context"

// FuzzyMatch is one result from FuzzySearch.
type FuzzyMatch struct {
	EntryID int64
	Label   string
	Value   string
	Distance int
}

// FuzzySearch is an auxiliary operator-tooling lookup: it ranks active
// entries and variants by Levenshtein distance to query. It is never
// consulted by the pattern scanner and must not influence scan verdicts.
func (s *Store) FuzzySearch(ctx context.Context, query string, limit int) ([]FuzzyMatch, error) {
	if limit <= 0 {
		limit = 20
	}
	entries, err := s.ListActiveEntries(ctx)
	if err != nil {
		return nil, err
	}

	var matches []FuzzyMatch
	for _, e := range entries {
		matches = append(matches, FuzzyMatch{EntryID: e.ID, Label: e.Label, Value: e.PrimaryValue,
			Distance: levenshtein(query, e.PrimaryValue)})

		variants, err := s.ListVariants(ctx, e.ID)
		if err != nil {
			return nil, err
		}
		for _, v := range variants {
			matches = append(matches, FuzzyMatch{EntryID: e.ID, Label: e.Label, Value: v.VariantText,
				Distance: levenshtein(query, v.VariantText)})
		}
	}

	sortMatchesByDistance(matches)
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func sortMatchesByDistance(m []FuzzyMatch) {
	for i := 1; i < len(m); i++ {
		for j := i; j > 0 && m[j].Distance < m[j-1].Distance; j-- {
			m[j], m[j-1] = m[j-1], m[j]
		}
	}
}

// levenshtein computes the classic edit distance between a and b.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}

	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[lb]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
