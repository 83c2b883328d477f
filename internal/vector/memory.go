package vector

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hyperjump/kontext/pkg/utils"
)

// MemoryIndex is an in-process index using brute-force cosine search.
type MemoryIndex struct {
	dimensions int

	mu      sync.RWMutex
	ids     []string
	vectors [][]float32
	pos     map[string]int
}

// NewMemoryIndex creates an empty in-memory index with the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryIndex{
		dimensions: dimensions,
		pos:        make(map[string]int),
	}, nil
}

// Upsert inserts vectors, replacing any existing vector with the same id.
func (m *MemoryIndex) Upsert(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch")
	}
	for i := range vectors {
		if len(vectors[i]) != m.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vectors[i]), m.dimensions)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, id := range ids {
		vec := make([]float32, m.dimensions)
		copy(vec, vectors[i])
		if p, ok := m.pos[id]; ok {
			m.vectors[p] = vec
			continue
		}
		m.pos[id] = len(m.ids)
		m.ids = append(m.ids, id)
		m.vectors = append(m.vectors, vec)
	}
	return nil
}

// Search returns the top-k ids by cosine similarity. Equal scores keep insertion order.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int) ([]Result, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), m.dimensions)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 || len(m.ids) == 0 {
		return nil, nil
	}
	results := make([]Result, len(m.ids))
	for i, vec := range m.vectors {
		results[i] = Result{ID: m.ids[i], Score: utils.Cosine(query, vec)}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if k > len(results) {
		k = len(results)
	}
	return results[:k], nil
}

// Remove deletes vectors by id. Unknown ids are ignored.
func (m *MemoryIndex) Remove(ctx context.Context, ids []string) error {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	keptIDs := m.ids[:0]
	keptVecs := m.vectors[:0]
	for i, id := range m.ids {
		if !drop[id] {
			keptIDs = append(keptIDs, id)
			keptVecs = append(keptVecs, m.vectors[i])
		}
	}
	m.ids, m.vectors = keptIDs, keptVecs
	m.reindex()
	return nil
}

func (m *MemoryIndex) reindex() {
	m.pos = make(map[string]int, len(m.ids))
	for i, id := range m.ids {
		m.pos[id] = i
	}
}

// Size returns the number of stored vectors.
func (m *MemoryIndex) Size(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids), nil
}

// Close is a no-op.
func (m *MemoryIndex) Close() error {
	return nil
}

// Save writes the index to path through a temporary file. Format: dimension (4), n (4),
// then per vector: idLen (4), id bytes, vector (dimension*4 bytes), little endian.
func (m *MemoryIndex) Save(path string) error {
	if path == "" {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	w := bufio.NewWriter(f)
	if err := m.write(w); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("flush index: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close index file: %w", err)
	}
	return os.Rename(tmp, path)
}

func (m *MemoryIndex) write(w io.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(m.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(m.ids))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for i, id := range m.ids {
		if err := binary.Write(w, binary.LittleEndian, uint32(len(id))); err != nil {
			return fmt.Errorf("write id len: %w", err)
		}
		if _, err := io.WriteString(w, id); err != nil {
			return fmt.Errorf("write id: %w", err)
		}
		if _, err := w.Write(float32SliceToBytes(m.vectors[i])); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return nil
}

// Load replaces the contents with the index stored at path. A missing file leaves the
// index unchanged.
func (m *MemoryIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	var dim, n uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return fmt.Errorf("read dimensions: %w", err)
	}
	if int(dim) != m.dimensions {
		return fmt.Errorf("dimension mismatch: file has %d, index expects %d", dim, m.dimensions)
	}
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("read count: %w", err)
	}
	ids := make([]string, 0, n)
	vectors := make([][]float32, 0, n)
	buf := make([]byte, m.dimensions*4)
	for i := uint32(0); i < n; i++ {
		var idLen uint32
		if err := binary.Read(r, binary.LittleEndian, &idLen); err != nil {
			return fmt.Errorf("read id len: %w", err)
		}
		idBytes := make([]byte, idLen)
		if _, err := io.ReadFull(r, idBytes); err != nil {
			return fmt.Errorf("read id: %w", err)
		}
		if _, err := io.ReadFull(r, buf); err != nil {
			return fmt.Errorf("read vector: %w", err)
		}
		ids = append(ids, string(idBytes))
		vectors = append(vectors, bytesToFloat32Slice(buf))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids, m.vectors = ids, vectors
	m.reindex()
	return nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
