// Package vectorindex provides a brute-force flat index over float64 vectors
// with squared-Euclidean nearest-neighbor search. Exact search is deliberate:
// corpus sizes here are small enough that exactness and simplicity beat
// approximate structures, and callers see only the add/search contract.
package vectorindex

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"docqa/internal/domain"
)

// ErrCardinality is returned when vectors and payloads differ in length.
var ErrCardinality = errors.New("vectors and payloads must have the same length")

// Flat is an append-only flat L2 index. Ids are assigned sequentially from 0
// in insertion order and are never compacted or renumbered; each id resolves
// to its payload for the lifetime of the index.
type Flat struct {
	mu        sync.RWMutex
	dimension int
	vectors   [][]float64
	payloads  []string
}

// NewFlat creates an empty index for vectors of the given dimension.
func NewFlat(dimension int) (*Flat, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid dimension %d", dimension)
	}
	return &Flat{dimension: dimension}, nil
}

// Dimension returns the vector dimensionality the index was built for.
func (f *Flat) Dimension() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dimension
}

// Len returns the number of entries in the index.
func (f *Flat) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.vectors)
}

// Add appends vectors with their payloads, assigning sequential ids.
func (f *Flat) Add(vectors [][]float64, payloads []string) error {
	if len(vectors) != len(payloads) {
		return ErrCardinality
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range vectors {
		if len(v) != f.dimension {
			return fmt.Errorf("vector dimension %d does not match index dimension %d", len(v), f.dimension)
		}
	}
	f.vectors = append(f.vectors, vectors...)
	f.payloads = append(f.payloads, payloads...)
	return nil
}

// Search returns up to k entries nearest to the query vector, ordered by
// ascending squared L2 distance. Fewer than k results are returned when the
// index holds fewer entries.
func (f *Flat) Search(vector []float64, k int) ([]domain.Hit, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if len(vector) != f.dimension {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d", len(vector), f.dimension)
	}
	if k <= 0 {
		k = 5
	}
	hits := make([]domain.Hit, len(f.vectors))
	for i, v := range f.vectors {
		hits[i] = domain.Hit{ID: i, Payload: f.payloads[i], Distance: squaredL2(v, vector)}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// flatState is the gob wire form of the whole index.
type flatState struct {
	Dimension int
	Vectors   [][]float64
	Payloads  []string
}

// Save serializes the full index to path, replacing any existing file.
func (f *Flat) Save(path string) error {
	f.mu.RLock()
	state := flatState{Dimension: f.dimension, Vectors: f.vectors, Payloads: f.payloads}
	f.mu.RUnlock()

	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating index file: %w", err)
	}
	if err := gob.NewEncoder(file).Encode(state); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("encoding index: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// Load replaces the in-memory state entirely with the index stored at path.
func (f *Flat) Load(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening index file: %w", err)
	}
	defer file.Close()

	var state flatState
	if err := gob.NewDecoder(file).Decode(&state); err != nil {
		return fmt.Errorf("decoding index: %w", err)
	}
	if state.Dimension <= 0 || len(state.Vectors) != len(state.Payloads) {
		return errors.New("corrupt index file")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dimension = state.Dimension
	f.vectors = state.Vectors
	f.payloads = state.Payloads
	return nil
}

func squaredL2(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
