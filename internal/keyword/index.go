// Package keyword provides a lexical relevance index over chunk text.
// TF-IDF weights with cosine similarity, sklearn-style smooth IDF.
//
// The index is read-mostly: Rebuild constructs a fresh immutable snapshot and
// atomically swaps it in, so in-flight scoring continues on the snapshot it
// started with and readers never block on a rebuild.
package keyword

import (
	"math"
	"strings"
	"sync/atomic"
	"time"
	"unicode"
)

// Document is one indexable chunk of text.
type Document struct {
	ID        string
	Text      string
	CreatedAt time.Time
}

// Index holds the current TF-IDF snapshot.
type Index struct {
	snap atomic.Pointer[snapshot]
}

// snapshot is an immutable TF-IDF model over a document set.
type snapshot struct {
	// weights maps docID -> term -> L2-normalized tf-idf weight.
	weights map[string]map[string]float64
	idf     map[string]float64
	times   map[string]time.Time
	count   int
}

// NewIndex returns an empty index. Call Rebuild to populate it.
func NewIndex() *Index {
	ix := &Index{}
	ix.snap.Store(&snapshot{
		weights: map[string]map[string]float64{},
		idf:     map[string]float64{},
		times:   map[string]time.Time{},
	})
	return ix
}

// Rebuild constructs a new snapshot from docs and swaps it in atomically.
func (ix *Index) Rebuild(docs []Document) {
	ix.snap.Store(build(docs))
}

// Empty reports whether the current snapshot has no indexed documents.
func (ix *Index) Empty() bool {
	return ix.snap.Load().count == 0
}

// Size returns the number of indexed documents in the current snapshot.
func (ix *Index) Size() int {
	return ix.snap.Load().count
}

// CreatedAt returns the indexed document's timestamp, zero if unknown.
// Rankers use it to put the most recent document first on score ties.
func (ix *Index) CreatedAt(id string) time.Time {
	return ix.snap.Load().times[id]
}

// Score returns the cosine similarity in [0, 1] between the query and every
// indexed document with a non-zero score. An empty map means no lexical
// signal is available.
func (ix *Index) Score(query string) map[string]float64 {
	s := ix.snap.Load()
	if s.count == 0 {
		return nil
	}

	qTerms := tokenize(query)
	if len(qTerms) == 0 {
		return nil
	}

	// Query vector uses the snapshot's IDF; unseen terms carry no signal.
	qWeights := make(map[string]float64, len(qTerms))
	for term, tf := range termFrequencies(qTerms) {
		if idf, ok := s.idf[term]; ok {
			qWeights[term] = tf * idf
		}
	}
	if len(qWeights) == 0 {
		return nil
	}
	var qNormSq float64
	for _, w := range qWeights {
		qNormSq += w * w
	}
	qNorm := math.Sqrt(qNormSq)

	scores := make(map[string]float64)
	for docID, dWeights := range s.weights {
		var dot float64
		for term, qw := range qWeights {
			if dw, ok := dWeights[term]; ok {
				dot += qw * dw
			}
		}
		if dot > 0 {
			// Document weights are pre-normalized; divide by query norm only.
			scores[docID] = clamp01(dot / qNorm)
		}
	}
	return scores
}

func build(docs []Document) *snapshot {
	df := make(map[string]int)
	docTerms := make(map[string]map[string]float64, len(docs))
	times := make(map[string]time.Time, len(docs))

	for _, d := range docs {
		terms := tokenize(d.Text)
		if len(terms) == 0 {
			continue
		}
		tf := termFrequencies(terms)
		docTerms[d.ID] = tf
		times[d.ID] = d.CreatedAt
		for term := range tf {
			df[term]++
		}
	}

	n := len(docTerms)
	idf := make(map[string]float64, len(df))
	for term, count := range df {
		// Smooth IDF: ln((1+n)/(1+df)) + 1, never zero.
		idf[term] = math.Log(float64(1+n)/float64(1+count)) + 1
	}

	weights := make(map[string]map[string]float64, n)
	for docID, tf := range docTerms {
		w := make(map[string]float64, len(tf))
		var normSq float64
		for term, f := range tf {
			v := f * idf[term]
			w[term] = v
			normSq += v * v
		}
		if normSq > 0 {
			norm := math.Sqrt(normSq)
			for term := range w {
				w[term] /= norm
			}
		}
		weights[docID] = w
	}

	return &snapshot{weights: weights, idf: idf, times: times, count: n}
}

// termFrequencies returns raw term counts as floats.
func termFrequencies(terms []string) map[string]float64 {
	tf := make(map[string]float64, len(terms))
	for _, t := range terms {
		tf[t]++
	}
	return tf
}

// tokenize lowercases, splits on non-alphanumeric runes, drops stopwords and
// single-character tokens, and appends word bigrams.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	unigrams := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 || stopwords[f] {
			continue
		}
		unigrams = append(unigrams, f)
	}

	tokens := make([]string, len(unigrams), len(unigrams)*2)
	copy(tokens, unigrams)
	for i := 0; i+1 < len(unigrams); i++ {
		tokens = append(tokens, unigrams[i]+" "+unigrams[i+1])
	}
	return tokens
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "can": true, "do": true, "for": true, "from": true,
	"has": true, "have": true, "how": true, "in": true, "is": true, "it": true,
	"of": true, "on": true, "or": true, "that": true, "the": true, "this": true,
	"to": true, "was": true, "what": true, "when": true, "where": true,
	"which": true, "who": true, "will": true, "with": true, "you": true,
	"your": true,
}
