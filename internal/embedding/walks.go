// Package embedding learns user vectors from the behavior graph using
// biased random walks and a skip-gram model.
package embedding

import (
	"math/rand"

	"github.com/trustlab/kestrel/internal/graph"
)

// walker generates second-order biased random walks (node2vec style).
// Walks are bit-reproducible: nodes are visited in sorted order from a
// single seeded source, so a fixed snapshot + seed + parameters always
// yields the same corpus.
type walker struct {
	snapshot *graph.Snapshot
	rng      *rand.Rand

	walksPerNode int
	walkLength   int
	p            float64 // return parameter
	q            float64 // in-out parameter
}

func newWalker(s *graph.Snapshot, seed int64, walksPerNode, walkLength int, p, q float64) *walker {
	if p <= 0 {
		p = 1
	}
	if q <= 0 {
		q = 1
	}
	return &walker{
		snapshot:     s,
		rng:          rand.New(rand.NewSource(seed)),
		walksPerNode: walksPerNode,
		walkLength:   walkLength,
		p:            p,
		q:            q,
	}
}

// corpus generates all walks starting from every user node. Users with no
// edges produce no walks; the engine reports them separately.
func (w *walker) corpus() [][]string {
	users := w.snapshot.Users()
	walks := make([][]string, 0, len(users)*w.walksPerNode)

	for i := 0; i < w.walksPerNode; i++ {
		for _, u := range users {
			if w.snapshot.Degree(u) == 0 {
				continue
			}
			walks = append(walks, w.walk(u))
		}
	}

	return walks
}

// walk produces one biased walk starting at node start.
func (w *walker) walk(start string) []string {
	path := make([]string, 1, w.walkLength)
	path[0] = start

	for len(path) < w.walkLength {
		cur := path[len(path)-1]
		nbrs := w.snapshot.Neighbors(cur)
		if len(nbrs) == 0 {
			break
		}

		var next string
		if len(path) == 1 {
			next = w.pickWeighted(nbrs)
		} else {
			prev := path[len(path)-2]
			next = w.pickBiased(prev, nbrs)
		}
		path = append(path, next)
	}

	return path
}

// pickWeighted samples a neighbor proportionally to edge weight.
func (w *walker) pickWeighted(nbrs []graph.Neighbor) string {
	total := 0.0
	for _, n := range nbrs {
		total += n.Weight
	}

	r := w.rng.Float64() * total
	for _, n := range nbrs {
		r -= n.Weight
		if r <= 0 {
			return n.ID
		}
	}
	return nbrs[len(nbrs)-1].ID
}

// pickBiased applies the node2vec second-order bias: returning to the
// previous node is scaled by 1/p, moving to a node adjacent to it keeps the
// base weight, and exploring outward is scaled by 1/q.
func (w *walker) pickBiased(prev string, nbrs []graph.Neighbor) string {
	weights := make([]float64, len(nbrs))
	total := 0.0

	for i, n := range nbrs {
		weight := n.Weight
		switch {
		case n.ID == prev:
			weight /= w.p
		case w.snapshot.HasEdge(prev, n.ID):
			// distance 1 from prev: unbiased
		default:
			weight /= w.q
		}
		weights[i] = weight
		total += weight
	}

	r := w.rng.Float64() * total
	for i, n := range nbrs {
		r -= weights[i]
		if r <= 0 {
			return n.ID
		}
	}
	return nbrs[len(nbrs)-1].ID
}
