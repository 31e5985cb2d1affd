package feedback

import (
	"strings"

	"github.com/aneven/knowd/internal/query"
	"github.com/aneven/knowd/internal/storage"
)

// Improver substitutes high-confidence corrected answers for generated ones.
// Before a response leaves the engine, the incoming query is compared against
// the inputs of stored training pairs; a close enough match to a high-quality
// pair replaces the generated response with the corrected output.
type Improver struct {
	db         *storage.Store
	threshold  float64 // minimum lexical similarity, default 0.8
	minQuality float64 // minimum pair quality, default 4.0
}

// NewImprover creates an Improver. Non-positive parameters take the defaults.
func NewImprover(db *storage.Store, threshold, minQuality float64) *Improver {
	if threshold <= 0 {
		threshold = 0.8
	}
	if minQuality <= 0 {
		minQuality = 4.0
	}
	return &Improver{db: db, threshold: threshold, minQuality: minQuality}
}

// Improve returns a corrected response for rawQuery when a stored pair's
// input is lexically similar above the threshold. The boolean reports
// whether a substitution happened; when false the caller keeps its own
// response. Storage errors surface so the caller can log and degrade.
func (im *Improver) Improve(rawQuery string) (string, bool, error) {
	pairs, err := im.db.ListTrainingPairs(im.minQuality)
	if err != nil {
		return "", false, err
	}
	if len(pairs) == 0 {
		return "", false, nil
	}

	queryWords := wordSet(query.Normalize(rawQuery))
	if len(queryWords) == 0 {
		return "", false, nil
	}

	var best storage.TrainingPair
	bestSim := 0.0
	for _, p := range pairs {
		if p.NeedsReview || p.Output == "" {
			continue
		}
		sim := jaccard(queryWords, wordSet(query.Normalize(p.Input)))
		if sim < im.threshold {
			continue
		}
		// Prefer the closest match, then the higher-quality pair.
		if sim > bestSim || (sim == bestSim && p.QualityScore > best.QualityScore) {
			best = p
			bestSim = sim
		}
	}

	if bestSim == 0 {
		return "", false, nil
	}
	return best.Output, true, nil
}

// wordSet splits normalized text into its unique words.
func wordSet(normalized string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(normalized) {
		set[w] = true
	}
	return set
}

// jaccard computes |a∩b| / |a∪b| over word sets.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var inter int
	for w := range a {
		if b[w] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
