package memory

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

// stopwords are common English terms excluded from the search vocabulary.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "for": {}, "from": {}, "has": {}, "he": {}, "in": {}, "is": {},
	"it": {}, "its": {}, "of": {}, "on": {}, "that": {}, "the": {}, "to": {},
	"was": {}, "were": {}, "will": {}, "with": {}, "i": {}, "you": {},
	"me": {}, "my": {}, "this": {}, "what": {}, "when": {}, "where": {},
	"how": {}, "can": {}, "do": {}, "did": {}, "have": {}, "had": {},
}

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// tokenize lowercases text and splits it into alphanumeric terms, dropping
// stopwords.
func tokenize(text string) []string {
	var terms []string
	for _, term := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		if _, skip := stopwords[term]; skip {
			continue
		}
		terms = append(terms, term)
	}
	return terms
}

// maxVocabularyTerms caps the vocabulary at the most frequent corpus terms,
// keeping vector size bounded for large candidate sets.
const maxVocabularyTerms = 100

// Vectorizer converts documents to L2-normalized TF-IDF vectors over a
// vocabulary fitted from a document corpus. A Vectorizer is fitted once per
// query, over the query text plus the candidate documents, so scores are
// comparable within one search but not across searches.
type Vectorizer struct {
	vocabulary map[string]int // term -> vector index
	idf        []float64
}

// NewVectorizer fits a vectorizer on the given documents. Returns nil when
// the corpus yields no usable terms.
func NewVectorizer(documents []string) *Vectorizer {
	docTerms := make([][]string, len(documents))
	termFreq := make(map[string]int)
	docFreq := make(map[string]int)
	for i, doc := range documents {
		terms := tokenize(doc)
		docTerms[i] = terms
		seen := make(map[string]struct{})
		for _, term := range terms {
			termFreq[term]++
			if _, ok := seen[term]; !ok {
				seen[term] = struct{}{}
				docFreq[term]++
			}
		}
	}
	if len(termFreq) == 0 {
		return nil
	}

	terms := make([]string, 0, len(termFreq))
	for term := range termFreq {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if termFreq[terms[i]] != termFreq[terms[j]] {
			return termFreq[terms[i]] > termFreq[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > maxVocabularyTerms {
		terms = terms[:maxVocabularyTerms]
	}

	v := &Vectorizer{vocabulary: make(map[string]int, len(terms))}
	v.idf = make([]float64, len(terms))
	n := float64(len(documents))
	for i, term := range terms {
		v.vocabulary[term] = i
		// Smooth IDF keeps terms present in every document at a small
		// positive weight instead of zeroing them out.
		v.idf[i] = math.Log((n+1)/(float64(docFreq[term])+1)) + 1
	}
	return v
}

// Vectorize converts text to an L2-normalized TF-IDF vector. Text with no
// vocabulary terms yields the zero vector.
func (v *Vectorizer) Vectorize(text string) []float64 {
	vec := make([]float64, len(v.idf))
	for _, term := range tokenize(text) {
		if idx, ok := v.vocabulary[term]; ok {
			vec[idx]++
		}
	}
	var norm float64
	for i := range vec {
		vec[i] *= v.idf[i]
		norm += vec[i] * vec[i]
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}

// CosineSimilarity returns the cosine similarity of two equal-length vectors.
// For L2-normalized vectors this is just their dot product.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// RankBySimilarity scores candidates against the query by TF-IDF cosine
// similarity and returns those at or above threshold, ordered by score
// descending, then importance, then recency. Degenerate input (empty query,
// no candidates, stopword-only text) yields an empty result, never an error.
func RankBySimilarity(query string, candidates []*Record, threshold float64) []SearchResult {
	if strings.TrimSpace(query) == "" || len(candidates) == 0 {
		return nil
	}

	corpus := make([]string, 0, len(candidates)+1)
	corpus = append(corpus, query)
	for _, rec := range candidates {
		corpus = append(corpus, rec.Content)
	}
	vectorizer := NewVectorizer(corpus)
	if vectorizer == nil {
		return nil
	}

	queryVec := vectorizer.Vectorize(query)
	var results []SearchResult
	for _, rec := range candidates {
		score := CosineSimilarity(queryVec, vectorizer.Vectorize(rec.Content))
		if score >= threshold {
			results = append(results, SearchResult{Record: rec, Score: score})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		ri, rj := results[i].Record, results[j].Record
		if ri.Importance.Rank() != rj.Importance.Rank() {
			return ri.Importance.Rank() > rj.Importance.Rank()
		}
		return ri.CreatedAt.After(rj.CreatedAt)
	})
	return results
}
