package ingestion

import "github.com/knoguchi/tender/internal/repository"

// BuildStats computes average and per-chunk token counts. ok is false when
// no chunk has a single token, in which case no statistics are kept.
func BuildStats(tokenized [][]string) (repository.CorpusStats, bool) {
	lens := make([]int, len(tokenized))
	total := 0
	for i, tokens := range tokenized {
		lens[i] = len(tokens)
		total += len(tokens)
	}
	if total == 0 {
		return repository.CorpusStats{}, false
	}
	return repository.CorpusStats{
		AvgDocLen: float64(total) / float64(len(tokenized)),
		DocLens:   lens,
	}, true
}
