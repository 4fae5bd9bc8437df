package database

import (
	"sync"

	"github.com/coder/hnsw"
)

// HNSWIndex wraps an HNSW graph over the active biometric set.
// Rows are only ever added; the graph is rebuilt from the datastore on startup.
type HNSWIndex struct {
	graph   *hnsw.Graph[int64]
	idToRow map[int64]*ActiveBiometric
	mu      sync.RWMutex
	dim     int
}

// NewHNSWIndex creates a new empty HNSW index.
func NewHNSWIndex() *HNSWIndex {
	return &HNSWIndex{
		idToRow: make(map[int64]*ActiveBiometric),
	}
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.CosineDistance
	return g
}

// Build replaces the index contents with rows.
func (h *HNSWIndex) Build(rows []ActiveBiometric) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.graph = nil
	h.dim = 0
	h.idToRow = make(map[int64]*ActiveBiometric, len(rows))

	for i := range rows {
		h.addLocked(&rows[i])
	}
}

// Add inserts a single row.
func (h *HNSWIndex) Add(row *ActiveBiometric) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.addLocked(row)
}

func (h *HNSWIndex) addLocked(row *ActiveBiometric) {
	if len(row.Embedding) == 0 {
		return
	}
	if _, ok := h.idToRow[row.ID]; ok {
		return
	}
	if h.graph == nil {
		h.graph = newGraph()
		h.dim = len(row.Embedding)
	}
	// the graph cannot mix dimensions; such rows stay out of the index
	if len(row.Embedding) != h.dim {
		return
	}

	cp := *row
	h.graph.Add(hnsw.MakeNode(cp.ID, cp.Embedding))
	h.idToRow[cp.ID] = &cp
}

// Search returns up to limit rows with similarity >= minSimilarity, ordered like SortMatches.
func (h *HNSWIndex) Search(query []float32, minSimilarity float64, limit int) []SimilarityMatch {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil || limit <= 0 || len(query) != h.dim {
		return nil
	}

	searchK := max(limit*HNSWSearchMultiplier, HNSWMinCandidates)
	neighbors := h.graph.Search(query, searchK)

	maxDistance := 1 - minSimilarity
	matches := make([]SimilarityMatch, 0, len(neighbors))
	for _, n := range neighbors {
		row, ok := h.idToRow[n.Key]
		if !ok {
			continue
		}
		// Compute actual cosine distance using the embedding from the node directly.
		d := CosineDistance(query, n.Value)
		if d > maxDistance {
			continue
		}
		matches = append(matches, SimilarityMatch{Biometric: *row, Distance: d})
	}

	SortMatches(matches)
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// Count returns the number of indexed rows.
func (h *HNSWIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.idToRow)
}

// IsEmpty returns true if nothing has been indexed.
func (h *HNSWIndex) IsEmpty() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.graph == nil
}
