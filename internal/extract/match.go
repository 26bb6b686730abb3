package extract

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

const (
	// DefaultLabelThreshold is the minimum similarity for a restated label
	// to be accepted as the canonical one.
	DefaultLabelThreshold = 0.90

	// DefaultAssociationCutoff is the minimum similarity used when attaching
	// predicate descriptions to triplets. Below it the description stays
	// absent. Zero lets the closest key win unconditionally.
	DefaultAssociationCutoff = 0.6
)

// MatchPolicy configures how model-restated labels are reconciled with
// canonical ones.
type MatchPolicy struct {
	// LabelThreshold gates entity labels in mention and relation answers and
	// predicate labels in description answers.
	LabelThreshold float64
	// AssociationCutoff gates the lookup of a description for each triplet.
	AssociationCutoff float64
}

// DefaultMatchPolicy returns the strict 0.90 gate and the 0.6 association cutoff.
func DefaultMatchPolicy() MatchPolicy {
	return MatchPolicy{
		LabelThreshold:    DefaultLabelThreshold,
		AssociationCutoff: DefaultAssociationCutoff,
	}
}

// LabelMatches reports whether restated plausibly refers to canonical.
func (p MatchPolicy) LabelMatches(restated, canonical string) bool {
	return Ratio(strings.ToLower(restated), strings.ToLower(canonical)) >= p.LabelThreshold
}

// Ratio is the matching-blocks similarity of a and b in [0, 1]:
// twice the number of matched characters over the total length.
// Two empty strings are identical.
func Ratio(a, b string) float64 {
	return difflib.NewMatcher(runes(a), runes(b)).Ratio()
}

// CloseMatch returns the candidate most similar to word, provided its
// similarity is at least cutoff. On equal scores the lexically greater
// candidate wins.
func CloseMatch(word string, candidates []string, cutoff float64) (string, bool) {
	var (
		best      string
		bestScore float64
		found     bool
	)

	m := difflib.NewMatcher(nil, nil)
	m.SetSeq2(runes(word))
	for _, c := range candidates {
		m.SetSeq1(runes(c))
		if m.RealQuickRatio() < cutoff || m.QuickRatio() < cutoff {
			continue
		}
		score := m.Ratio()
		if score < cutoff {
			continue
		}
		if !found || score > bestScore || (score == bestScore && c > best) {
			best, bestScore, found = c, score, true
		}
	}
	return best, found
}

func runes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
