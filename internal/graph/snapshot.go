package graph

import (
	"context"
	"fmt"
	"sort"

	"github.com/trustlab/kestrel/internal/domain"
)

// Neighbor is one weighted adjacency entry. Weight is the edge occurrence
// count, so walks favor frequently reused infrastructure.
type Neighbor struct {
	ID     string
	Weight float64
}

// Snapshot is an immutable in-memory view of the behavior graph at a pinned
// version. All pipeline stages of one epoch read the same snapshot; the
// loader fails with ErrSnapshotInconsistency if the graph version moves
// while edges are being read.
type Snapshot struct {
	Version int64

	adjacency     map[string][]Neighbor
	userResources map[string]map[string]domain.ResourceType
	users         []string
}

// Load reads the full edge set at the current graph version. Ingestion
// batches commit atomically with their version bump, so the scan can never
// observe part of a batch; the version is still checked before and after
// the scan to catch a batch that lands in between.
func Load(ctx context.Context, repo domain.Repository) (*Snapshot, error) {
	before, err := repo.GraphVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph version: %w", err)
	}

	edges, err := repo.ListEdges(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list edges: %w", err)
	}

	after, err := repo.GraphVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to re-read graph version: %w", err)
	}
	if before != after {
		return nil, fmt.Errorf("%w: graph version moved from %d to %d during snapshot",
			domain.ErrSnapshotInconsistency, before, after)
	}

	return build(before, edges), nil
}

func build(version int64, edges []*domain.AssociationEdge) *Snapshot {
	s := &Snapshot{
		Version:       version,
		adjacency:     make(map[string][]Neighbor),
		userResources: make(map[string]map[string]domain.ResourceType),
	}

	seen := make(map[string]bool)
	for _, e := range edges {
		w := float64(e.Occurrences)
		if w <= 0 {
			w = 1
		}
		s.adjacency[e.UserID] = append(s.adjacency[e.UserID], Neighbor{ID: e.ResourceID, Weight: w})
		s.adjacency[e.ResourceID] = append(s.adjacency[e.ResourceID], Neighbor{ID: e.UserID, Weight: w})

		if s.userResources[e.UserID] == nil {
			s.userResources[e.UserID] = make(map[string]domain.ResourceType)
		}
		s.userResources[e.UserID][e.ResourceID] = e.ResourceType

		if !seen[e.UserID] {
			seen[e.UserID] = true
			s.users = append(s.users, e.UserID)
		}
	}

	// Deterministic iteration order for walk generation.
	sort.Strings(s.users)
	for id := range s.adjacency {
		nbrs := s.adjacency[id]
		sort.Slice(nbrs, func(i, j int) bool { return nbrs[i].ID < nbrs[j].ID })
	}

	return s
}

// Users returns all user node IDs in sorted order.
func (s *Snapshot) Users() []string {
	return s.users
}

// Neighbors returns the weighted adjacency list for a node (user or
// resource), sorted by neighbor ID.
func (s *Snapshot) Neighbors(id string) []Neighbor {
	return s.adjacency[id]
}

// HasEdge reports whether nodes a and b are directly connected.
func (s *Snapshot) HasEdge(a, b string) bool {
	for _, n := range s.adjacency[a] {
		if n.ID == b {
			return true
		}
	}
	return false
}

// SharedResources counts the resources used by both users.
func (s *Snapshot) SharedResources(userA, userB string) int {
	a, b := s.userResources[userA], s.userResources[userB]
	if len(a) > len(b) {
		a, b = b, a
	}
	count := 0
	for id := range a {
		if _, ok := b[id]; ok {
			count++
		}
	}
	return count
}

// SharedByType counts resources of each type shared across a set of users
// (used by two or more of them).
func (s *Snapshot) SharedByType(users []string) map[domain.ResourceType]int {
	usage := make(map[string]int)
	types := make(map[string]domain.ResourceType)
	for _, u := range users {
		for id, t := range s.userResources[u] {
			usage[id]++
			types[id] = t
		}
	}

	counts := make(map[domain.ResourceType]int)
	for id, n := range usage {
		if n >= 2 {
			counts[types[id]]++
		}
	}
	return counts
}

// SharedCounts reports, per resource type, how many of the user's resources
// are also used by at least one other user.
func (s *Snapshot) SharedCounts(userID string) map[domain.ResourceType]int {
	counts := make(map[domain.ResourceType]int)
	for id, t := range s.userResources[userID] {
		if len(s.adjacency[id]) >= 2 {
			counts[t]++
		}
	}
	return counts
}

// Degree returns the number of distinct neighbors of a node.
func (s *Snapshot) Degree(id string) int {
	return len(s.adjacency[id])
}
