package handlers

import (
	"strings"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"
)

// foldCaser lowercases with full Unicode case folding so answers that
// differ only in case or width compare equal.
var foldCaser = cases.Fold()

// legalKeywords are weighted terms for answer similarity in the legal
// domain. Shared keywords between two answers add a bonus on top of
// plain token overlap.
var legalKeywords = map[string]struct{}{
	"liability":    {},
	"negligence":   {},
	"contract":     {},
	"tort":         {},
	"statute":      {},
	"precedent":    {},
	"jurisdiction": {},
	"damages":      {},
	"breach":       {},
	"remedy":       {},
	"plaintiff":    {},
	"defendant":    {},
	"appeal":       {},
	"injunction":   {},
	"culpa":        {},
	"dolo":         {},
}

// legalKeywordBonus scales the shared-keyword fraction added to the
// token-overlap score.
const legalKeywordBonus = 0.3

// normalizeText canonicalizes free text for position comparison:
// case folding plus whitespace collapse.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(foldCaser.String(s)), " ")
}

// tokenize splits normalized text into a token set.
func tokenize(s string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, tok := range strings.Fields(normalizeText(s)) {
		tokens[tok] = struct{}{}
	}
	return tokens
}

// textSimilarity scores two free-text answers in [0,1]. Exact matches
// after normalization score 1. Single-token answers fall back to
// Levenshtein similarity since token overlap is too coarse for them.
// Otherwise the score is Jaccard token overlap plus a capped bonus for
// shared legal keywords.
func textSimilarity(a, b string) float64 {
	na, nb := normalizeText(a), normalizeText(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}

	ta, tb := tokenize(na), tokenize(nb)
	if len(ta) == 1 && len(tb) == 1 {
		return levenshteinSimilarity(na, nb)
	}

	score := jaccard(ta, tb) + legalKeywordBonus*sharedKeywordFraction(ta, tb)
	if score > 1 {
		score = 1
	}
	return score
}

// jaccard is intersection over union of two token sets.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// sharedKeywordFraction is the share of legal keywords present in both
// token sets relative to legal keywords present in either.
func sharedKeywordFraction(a, b map[string]struct{}) float64 {
	shared, either := 0, 0
	for kw := range legalKeywords {
		_, inA := a[kw]
		_, inB := b[kw]
		if inA || inB {
			either++
		}
		if inA && inB {
			shared++
		}
	}
	if either == 0 {
		return 0
	}
	return float64(shared) / float64(either)
}

// levenshteinSimilarity converts edit distance to a [0,1] similarity.
func levenshteinSimilarity(a, b string) float64 {
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}
