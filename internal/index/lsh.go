// Package index provides the cosine similarity index and fraud-ring
// detector over user embeddings.
package index

import (
	"math"
	"math/rand"
	"sort"

	"github.com/trustlab/kestrel/internal/domain"
)

// Candidate is one nearest-neighbor result.
type Candidate struct {
	UserID     string
	Similarity float64
}

// Index is a random-hyperplane LSH index over user embeddings with exact
// cosine re-ranking of candidates. Cosine is the only supported metric.
// The index is immutable after Build and safe for concurrent queries.
type Index struct {
	modelVersion string
	dims         int
	hyperplanes  [][]float64
	probes       int

	vectors map[string][]float64 // normalized
	buckets map[uint64][]string
	users   []string
}

// Build constructs the index from one epoch's embeddings. Hyperplanes are
// drawn from the given seed so the bucket layout is reproducible. All
// embeddings must share a model version; vectors from different versions
// are never comparable.
func Build(embeddings []*domain.Embedding, cfg domain.IndexConfig, seed int64) (*Index, error) {
	idx := &Index{
		probes:  cfg.Probes,
		vectors: make(map[string][]float64, len(embeddings)),
		buckets: make(map[uint64][]string),
	}
	if len(embeddings) == 0 {
		return idx, nil
	}

	idx.modelVersion = embeddings[0].ModelVersion
	idx.dims = len(embeddings[0].Vector)

	for _, e := range embeddings {
		if e.ModelVersion != idx.modelVersion {
			return nil, domain.ErrInvalidInput
		}
		if len(e.Vector) != idx.dims {
			return nil, domain.ErrInvalidInput
		}
		idx.vectors[e.UserID] = normalize(e.Vector)
		idx.users = append(idx.users, e.UserID)
	}
	sort.Strings(idx.users)

	planes := cfg.Hyperplanes
	if planes <= 0 {
		planes = 16
	}
	if planes > 64 {
		planes = 64
	}
	rng := rand.New(rand.NewSource(seed))
	idx.hyperplanes = make([][]float64, planes)
	for i := range idx.hyperplanes {
		h := make([]float64, idx.dims)
		for d := range h {
			h[d] = rng.NormFloat64()
		}
		idx.hyperplanes[i] = h
	}

	for _, u := range idx.users {
		sig := idx.signature(idx.vectors[u])
		idx.buckets[sig] = append(idx.buckets[sig], u)
	}

	return idx, nil
}

// Size returns the number of indexed users.
func (idx *Index) Size() int {
	return len(idx.users)
}

// ModelVersion returns the embedding model version the index was built from.
func (idx *Index) ModelVersion() string {
	return idx.modelVersion
}

// Has reports whether a user is present in the index.
func (idx *Index) Has(userID string) bool {
	_, ok := idx.vectors[userID]
	return ok
}

// Query returns up to k neighbors of userID ordered by descending cosine
// similarity, ties broken by lower user ID. The query user itself is never
// returned. Unknown users get an ErrEmbeddingUnavailable.
func (idx *Index) Query(userID string, k int) ([]Candidate, error) {
	vec, ok := idx.vectors[userID]
	if !ok {
		return nil, domain.ErrEmbeddingUnavailable
	}
	if k <= 0 {
		return nil, nil
	}

	candidates := idx.probe(userID, vec)

	// Sparse buckets fall back to a full scan; the exact re-rank below
	// keeps results correct either way.
	if len(candidates) < k {
		candidates = candidates[:0]
		for _, u := range idx.users {
			if u != userID {
				candidates = append(candidates, u)
			}
		}
	}

	results := make([]Candidate, 0, len(candidates))
	for _, u := range candidates {
		results = append(results, Candidate{
			UserID:     u,
			Similarity: dot(vec, idx.vectors[u]),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].UserID < results[j].UserID
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Similarity returns the exact cosine similarity between two indexed users.
func (idx *Index) Similarity(a, b string) (float64, error) {
	va, ok := idx.vectors[a]
	if !ok {
		return 0, domain.ErrEmbeddingUnavailable
	}
	vb, ok := idx.vectors[b]
	if !ok {
		return 0, domain.ErrEmbeddingUnavailable
	}
	return dot(va, vb), nil
}

// probe gathers candidate users from the query's bucket plus, for each
// probe level, every bucket within that Hamming distance of the signature.
func (idx *Index) probe(userID string, vec []float64) []string {
	sig := idx.signature(vec)

	seen := make(map[string]bool)
	var out []string
	collect := func(s uint64) {
		for _, u := range idx.buckets[s] {
			if u == userID || seen[u] {
				continue
			}
			seen[u] = true
			out = append(out, u)
		}
	}

	collect(sig)
	if idx.probes >= 1 {
		for bit := 0; bit < len(idx.hyperplanes); bit++ {
			collect(sig ^ (1 << uint(bit)))
		}
	}
	if idx.probes >= 2 {
		n := len(idx.hyperplanes)
		for a := 0; a < n; a++ {
			for b := a + 1; b < n; b++ {
				collect(sig ^ (1 << uint(a)) ^ (1 << uint(b)))
			}
		}
	}

	return out
}

func (idx *Index) signature(vec []float64) uint64 {
	var sig uint64
	for i, h := range idx.hyperplanes {
		if dot(vec, h) >= 0 {
			sig |= 1 << uint(i)
		}
	}
	return sig
}

func normalize(v []float32) []float64 {
	out := make([]float64, len(v))
	var norm float64
	for i, x := range v {
		out[i] = float64(x)
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return out
	}
	for i := range out {
		out[i] /= norm
	}
	return out
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
