// Package search implements hybrid ranking: weighted fusion of dense cosine
// similarity and a bounded term-frequency lexical rank.
package search

import (
	"math"
	"sort"
)

const (
	MinTopK = 1
	MaxTopK = 20

	// BM25 term-frequency saturation parameters.
	k1 = 1.2
	b  = 0.75
)

// Candidate is one chunk's component scores. A nil score contributes 0.
type Candidate struct {
	Index   int // position in the caller's candidate slice
	Dense   *float64
	Lexical *float64
}

// Ranked is a fused result.
type Ranked struct {
	Index   int
	Score   float64
	Dense   float64
	Lexical float64
	Rank    int // 1-based
}

// Fuse scores candidates as alpha*dense + (1-alpha)*lexical, sorts them by
// descending score keeping input order on ties, keeps the first topK and
// assigns ranks 1..N.
func Fuse(cands []Candidate, alpha float64, topK int) []Ranked {
	if len(cands) == 0 || topK <= 0 {
		return []Ranked{}
	}
	beta := 1 - alpha

	ranked := make([]Ranked, len(cands))
	for i, c := range cands {
		dense := valueOrZero(c.Dense)
		lexical := valueOrZero(c.Lexical)
		ranked[i] = Ranked{
			Index:   c.Index,
			Dense:   dense,
			Lexical: lexical,
			Score:   alpha*dense + beta*lexical,
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

func valueOrZero(v *float64) float64 {
	if v == nil || math.IsNaN(*v) {
		return 0
	}
	return *v
}

// Cosine returns the cosine similarity of a and b. ok is false when the
// vectors differ in length or either has zero norm.
func Cosine(a, b []float32) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}

// LexicalRank scores docTokens against queryTokens with the BM25
// term-frequency component (no IDF) and maps the raw rank r to r/(r+1), so
// the result lies in [0,1). avgLen is the mean token length of the chunks
// being ranked; 0 disables length normalization.
func LexicalRank(queryTokens, docTokens []string, avgLen float64) float64 {
	if len(queryTokens) == 0 || len(docTokens) == 0 {
		return 0
	}

	tf := make(map[string]int, len(docTokens))
	for _, t := range docTokens {
		tf[t]++
	}

	norm := 1.0
	if avgLen > 0 {
		norm = 1 - b + b*float64(len(docTokens))/avgLen
	}

	seen := make(map[string]struct{}, len(queryTokens))
	var raw float64
	for _, q := range queryTokens {
		if _, dup := seen[q]; dup {
			continue
		}
		seen[q] = struct{}{}
		f := float64(tf[q])
		if f == 0 {
			continue
		}
		raw += f * (k1 + 1) / (f + k1*norm)
	}
	return raw / (raw + 1)
}

// AverageLength returns the mean length of the token slices.
func AverageLength(docs [][]string) float64 {
	if len(docs) == 0 {
		return 0
	}
	total := 0
	for _, d := range docs {
		total += len(d)
	}
	return float64(total) / float64(len(docs))
}

// ClampTopK bounds a requested top-k to 1..20, using def when k is unset.
func ClampTopK(k, def int) int {
	if k <= 0 {
		k = def
	}
	if k < MinTopK {
		return MinTopK
	}
	if k > MaxTopK {
		return MaxTopK
	}
	return k
}
