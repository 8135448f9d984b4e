package dedupe

import (
	"fmt"
	"math"
	"strings"

	"github.com/latticehq/lattice/internal/core/model"
)

// Match methods recorded on DuplicateMatch so reviewers can see which signal
// flagged a pair.
const (
	MethodExactKey    = "exact_key"
	MethodAlias       = "alias"
	MethodContainment = "containment"
	MethodLevenshtein = "levenshtein"
	MethodEmbedding   = "embedding"
	MethodLLM         = "llm"
)

const (
	// Shorter keys than this are too ambiguous for substring containment.
	minContainmentLen = 3
	// Edit distance on very short names rewrites most of the string with a
	// single edit, so both sides must reach this length before the
	// levenshtein method applies.
	minFuzzyLen = 5
	// Length ratio required for bare substring containment when the shorter
	// key is not a whole word of the longer one.
	containmentRatio = 0.8
)

// pairScore is one method's verdict on a candidate pair.
type pairScore struct {
	Score  float64
	Method string
	Reason string
}

// scorePair runs the heuristic ensemble on two same-type entities and returns
// the highest-scoring method. Embeddings may be nil when no embedder is
// configured or a fetch failed; the embedding method is skipped then.
func scorePair(a, b *model.Entity, embA, embB []float32) pairScore {
	if a.NormalizedKey == b.NormalizedKey {
		return pairScore{
			Score:  1.0,
			Method: MethodExactKey,
			Reason: fmt.Sprintf("identical normalized key %q", a.NormalizedKey),
		}
	}

	best := pairScore{}
	if s, reason := aliasScore(a, b); s > best.Score {
		best = pairScore{Score: s, Method: MethodAlias, Reason: reason}
	}
	if s, reason := containmentScore(a.NormalizedKey, b.NormalizedKey); s > best.Score {
		best = pairScore{Score: s, Method: MethodContainment, Reason: reason}
	}
	if s := levenshteinSimilarity(a.NormalizedKey, b.NormalizedKey); s > best.Score {
		best = pairScore{
			Score:  s,
			Method: MethodLevenshtein,
			Reason: fmt.Sprintf("edit distance similarity %.2f between %q and %q", s, a.NormalizedKey, b.NormalizedKey),
		}
	}
	if len(embA) > 0 && len(embB) > 0 {
		if s := cosineSimilarity(embA, embB); s > best.Score {
			best = pairScore{
				Score:  s,
				Method: MethodEmbedding,
				Reason: fmt.Sprintf("embedding cosine similarity %.2f", s),
			}
		}
	}
	return best
}

// aliasScore checks whether either entity's recorded aliases normalize to the
// other's identity key. Aliases accumulate through merges, so this catches
// re-extracted surface forms of an already-merged entity.
func aliasScore(a, b *model.Entity) (float64, string) {
	for _, alias := range a.AliasStrings() {
		if model.NormalizeKey(alias) == b.NormalizedKey {
			return 0.95, fmt.Sprintf("alias %q of %q matches %q", alias, a.DisplayValue, b.DisplayValue)
		}
	}
	for _, alias := range b.AliasStrings() {
		if model.NormalizeKey(alias) == a.NormalizedKey {
			return 0.95, fmt.Sprintf("alias %q of %q matches %q", alias, b.DisplayValue, a.DisplayValue)
		}
	}
	return 0, ""
}

// containmentScore handles surface forms where one key embeds the other, such
// as "acme" inside "acme corp". A bare substring is unreliable for short keys
// ("ada" sits inside "canada"), so the shorter key must either appear as a
// whole word of the longer one or cover most of its length.
func containmentScore(a, b string) (float64, string) {
	shorter, longer := a, b
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if len(shorter) < minContainmentLen || !strings.Contains(longer, shorter) {
		return 0, ""
	}
	if containsWord(longer, shorter) {
		return 0.9, fmt.Sprintf("%q appears as a word in %q", shorter, longer)
	}
	if float64(len(shorter))/float64(len(longer)) >= containmentRatio {
		return 0.85, fmt.Sprintf("%q is contained in %q", shorter, longer)
	}
	return 0, ""
}

func containsWord(longer, shorter string) bool {
	for _, w := range strings.Fields(longer) {
		if w == shorter {
			return true
		}
	}
	return false
}

// levenshteinSimilarity maps edit distance into [0,1], where 1 means equal.
func levenshteinSimilarity(a, b string) float64 {
	if len(a) < minFuzzyLen || len(b) < minFuzzyLen {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	if maxLen == 0 {
		return 0
	}
	dist := levenshtein(ra, rb)
	return 1.0 - float64(dist)/float64(maxLen)
}

// levenshtein computes edit distance with the classic two-row dynamic
// programming table.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
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

// cosineSimilarity returns the cosine of two embedding vectors, clamped to
// [0,1]. Mismatched or zero-length vectors score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	s := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
