// Package graph is a small JSON-file relationship store.
package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/hyperjump/kontext/internal/models"
	"github.com/hyperjump/kontext/pkg/utils"
)

// RelationWords are relation verbs recognised in questions.
var RelationWords = []string{"合作", "协作", "沟通", "负责", "参与"}

type fileNode struct {
	ID         string         `json:"id"`
	Label      string         `json:"label"`
	Properties map[string]any `json:"properties"`
}

type fileRelationship struct {
	From       string         `json:"from"`
	To         string         `json:"to"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
}

type fileData struct {
	Nodes         []fileNode         `json:"nodes"`
	Relationships []fileRelationship `json:"relationships"`
}

// Store holds the graph in memory and writes it back to path after every mutation.
type Store struct {
	path   string
	logger *zap.Logger

	mu    sync.RWMutex
	flock *flock.Flock
	data  fileData
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Open loads the graph at path. A missing file is an empty graph; an unreadable one is logged
// and treated as empty.
func Open(path string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create graph dir: %w", err)
	}
	s := &Store{
		path:   path,
		logger: zap.NewNop(),
		flock:  flock.New(path + ".lock"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.Reload(); err != nil {
		s.logger.Warn("graph data unreadable, starting empty", zap.String("path", path), zap.Error(err))
	}
	return s, nil
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Reload re-reads the backing file. On error the in-memory graph is emptied.
func (s *Store) Reload() error {
	if err := s.flock.RLock(); err != nil {
		return fmt.Errorf("lock graph: %w", err)
	}
	d, err := s.readFile()
	_ = s.flock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = d
	return err
}

// readFile decodes the backing file. A missing file is an empty graph. Caller holds the file lock.
func (s *Store) readFile() (fileData, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return fileData{}, nil
	}
	if err != nil {
		return fileData{}, err
	}
	var d fileData
	if err := json.Unmarshal(raw, &d); err != nil {
		return fileData{}, fmt.Errorf("decode graph: %w", err)
	}
	return d, nil
}

// LastModified returns the backing file's modification time, or the zero time if it does
// not exist.
func (s *Store) LastModified() (time.Time, error) {
	info, err := os.Stat(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// AddNode appends a node. A later node with the same ID shadows earlier ones.
func (s *Store) AddNode(id, label string, props map[string]string) error {
	if id == "" {
		return fmt.Errorf("node id is required")
	}
	return s.update(func(d *fileData) {
		d.Nodes = append(d.Nodes, fileNode{ID: id, Label: label, Properties: toAny(props)})
	})
}

// AddRelationship appends a typed edge between two node IDs.
func (s *Store) AddRelationship(from, to, relation string, props map[string]string) error {
	if from == "" || to == "" || relation == "" {
		return fmt.Errorf("relationship needs from, to, and type")
	}
	return s.update(func(d *fileData) {
		d.Relationships = append(d.Relationships, fileRelationship{
			From: from, To: to, Type: relation, Properties: toAny(props),
		})
	})
}

// update applies fn to the graph as currently on disk and writes the result back, all under
// the exclusive file lock. The in-memory graph is replaced only after the rename succeeded.
// A file that cannot be decoded is left untouched.
func (s *Store) update(fn func(*fileData)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.flock.Lock(); err != nil {
		return fmt.Errorf("lock graph: %w", err)
	}
	defer s.flock.Unlock()

	d, err := s.readFile()
	if err != nil {
		return err
	}
	fn(&d)
	raw, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return fmt.Errorf("write graph: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write graph: %w", err)
	}
	s.data = d
	return nil
}

// Node returns the last node with id.
func (s *Store) Node(id string) (models.Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.node(id)
}

func (s *Store) node(id string) (models.Node, bool) {
	var found *fileNode
	for i := range s.data.Nodes {
		if s.data.Nodes[i].ID == id {
			found = &s.data.Nodes[i]
		}
	}
	if found == nil {
		return models.Node{}, false
	}
	return models.Node{ID: found.ID, Label: found.Label, Properties: toStrings(found.Properties)}, true
}

// Keywords extracts graph search terms: CJK runs cut into two-to-three character pieces,
// relation words present in the question, and ASCII words longer than two letters.
func Keywords(question string) []string {
	var kw []string
	for _, run := range utils.HanRuns(question) {
		r := []rune(run)
		for len(r) >= 2 {
			n := 3
			if len(r) < 3 {
				n = len(r)
			}
			kw = append(kw, string(r[:n]))
			r = r[n:]
		}
	}
	for _, w := range RelationWords {
		if strings.Contains(question, w) {
			kw = append(kw, w)
		}
	}
	for _, w := range utils.ASCIIWords(question) {
		if len(w) > 2 {
			kw = append(kw, strings.ToLower(w))
		}
	}
	return utils.Dedupe(kw)
}

// FindRelationships returns edges whose type, endpoint IDs, or endpoint/edge properties
// contain a keyword from question. Edges with a missing endpoint node are skipped and
// duplicate (from, relation, to) edges are collapsed. At most limit edges are returned.
func (s *Store) FindRelationships(question string, limit int) []models.Relationship {
	keywords := Keywords(question)
	if len(keywords) == 0 || limit <= 0 {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Relationship
	seen := make(map[string]bool)
	for _, rel := range s.data.Relationships {
		from, okFrom := s.node(rel.From)
		to, okTo := s.node(rel.To)
		if !okFrom || !okTo || !matches(keywords, rel, from, to) {
			continue
		}
		r := models.Relationship{From: from, To: to, Relation: rel.Type, Properties: toStrings(rel.Properties)}
		if seen[r.DedupKey()] {
			continue
		}
		seen[r.DedupKey()] = true
		out = append(out, r)
		if len(out) >= limit {
			break
		}
	}
	return out
}

func matches(keywords []string, rel fileRelationship, from, to models.Node) bool {
	for _, kw := range keywords {
		k := strings.ToLower(kw)
		if containsFold(rel.Type, k) || containsFold(rel.From, k) || containsFold(rel.To, k) ||
			anyValueContains(toStrings(rel.Properties), k) ||
			anyValueContains(from.Properties, k) || anyValueContains(to.Properties, k) {
			return true
		}
	}
	return false
}

func containsFold(s, lowerSub string) bool {
	return strings.Contains(strings.ToLower(s), lowerSub)
}

func anyValueContains(props map[string]string, lowerSub string) bool {
	for _, v := range props {
		if containsFold(v, lowerSub) {
			return true
		}
	}
	return false
}

// Stats returns node and relationship counts.
func (s *Store) Stats() (nodes, relationships int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data.Nodes), len(s.data.Relationships)
}

func toAny(props map[string]string) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}

func toStrings(props map[string]any) map[string]string {
	out := make(map[string]string, len(props))
	for k, raw := range props {
		switch v := raw.(type) {
		case string:
			out[k] = v
		case nil:
			out[k] = ""
		default:
			out[k] = fmt.Sprint(v)
		}
	}
	return out
}
