// Package memory keeps the short-term conversation window and the long-term topic summary.
package memory

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
)

const (
	// ShortTermFile holds the JSON array of turns in the window.
	ShortTermFile = "short_term_memory.json"
	// LongTermFile holds {"summary": "..."}.
	LongTermFile = "long_term_summary.json"
	// EmptySummary is returned by Summary when nothing has been summarized yet.
	EmptySummary = "暂无历史对话摘要"

	lockFileName = ".memory.lock"

	// DefaultWindow is the short-term window capacity.
	DefaultWindow = 10
)

// Summarizer turns a full window into one summary fragment. An empty fragment is ignored.
type Summarizer func(window []models.ConversationTurn) string

// Store is a bounded FIFO of conversation turns plus a monotonically growing summary.
// Both halves are persisted after every mutation.
type Store struct {
	dir        string
	window     int
	summarizer Summarizer
	now        func() time.Time
	logger     *zap.Logger

	mu      sync.RWMutex
	flock   *flock.Flock
	turns   []models.ConversationTurn
	summary string
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

// WithWindow sets the short-term capacity. Values below 1 are ignored.
func WithWindow(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.window = n
		}
	}
}

// WithSummarizer replaces the default topic summarizer run on the window-full event.
func WithSummarizer(fn Summarizer) Option {
	return func(s *Store) {
		if fn != nil {
			s.summarizer = fn
		}
	}
}

// WithClock overrides the time source used to stamp turns.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New opens the memory store in dir and loads any persisted state. A missing or unreadable
// file leaves that half of the store empty.
func New(dir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create memory dir: %w", err)
	}
	s := &Store{
		dir:        dir,
		window:     DefaultWindow,
		summarizer: TopicSummary,
		now:        time.Now,
		logger:     zap.NewNop(),
		flock:      flock.New(filepath.Join(dir, lockFileName)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.load()
	return s, nil
}

func (s *Store) load() {
	if err := s.flock.RLock(); err != nil {
		s.logger.Warn("memory lock failed", zap.Error(err))
		return
	}
	defer s.flock.Unlock()
	s.turns, s.summary = s.readFiles()
}

// readFiles loads both halves from disk. Caller holds the file lock.
func (s *Store) readFiles() ([]models.ConversationTurn, string) {
	var turns []models.ConversationTurn
	if err := readJSON(filepath.Join(s.dir, ShortTermFile), &turns); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("short-term memory unreadable, starting empty", zap.Error(err))
		}
		turns = nil
	} else if len(turns) > s.window {
		turns = turns[len(turns)-s.window:]
	}

	var lt struct {
		Summary string `json:"summary"`
	}
	if err := readJSON(filepath.Join(s.dir, LongTermFile), &lt); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("long-term summary unreadable, starting empty", zap.Error(err))
		}
		lt.Summary = ""
	}
	return turns, lt.Summary
}

// Record appends a turn, evicting the oldest when the window is full, and persists the window.
// When the window is at capacity afterwards the summarizer runs and its fragment is appended
// to the long-term summary. The files are re-read under the exclusive lock, so writers in
// other processes are not overwritten. In-memory state changes only once the write succeeded.
func (s *Store) Record(user, assistant string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.flock.Lock(); err != nil {
		return fmt.Errorf("lock memory: %w", err)
	}
	defer s.flock.Unlock()

	turns, summary := s.readFiles()
	turns = append(turns, models.ConversationTurn{
		Timestamp: s.now(),
		User:      user,
		Assistant: assistant,
	})
	if len(turns) > s.window {
		turns = append([]models.ConversationTurn(nil), turns[len(turns)-s.window:]...)
	}

	if err := writeJSON(filepath.Join(s.dir, ShortTermFile), turns); err != nil {
		return fmt.Errorf("save short-term memory: %w", err)
	}
	s.turns, s.summary = turns, summary
	if len(turns) >= s.window {
		return s.windowFull()
	}
	return nil
}

// windowFull handles the window-at-capacity event. Caller holds both locks.
func (s *Store) windowFull() error {
	fragment := s.summarizer(s.turns)
	if fragment == "" {
		return nil
	}
	summary := fragment
	if s.summary != "" {
		summary = s.summary + "\n" + fragment
	}
	if err := writeJSON(filepath.Join(s.dir, LongTermFile), map[string]string{"summary": summary}); err != nil {
		return fmt.Errorf("save long-term summary: %w", err)
	}
	s.summary = summary
	s.logger.Debug("long-term summary updated", zap.String("fragment", fragment))
	return nil
}

// Turns returns a copy of the window, oldest first.
func (s *Store) Turns() []models.ConversationTurn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.ConversationTurn(nil), s.turns...)
}

// RecentContext renders the last maxTurns turns as alternating "用户:"/"助手:" lines.
func (s *Store) RecentContext(maxTurns int) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	turns := s.turns
	if maxTurns >= 0 && len(turns) > maxTurns {
		turns = turns[len(turns)-maxTurns:]
	}
	lines := make([]string, 0, 2*len(turns))
	for _, t := range turns {
		lines = append(lines, "用户: "+t.User, "助手: "+t.Assistant)
	}
	return strings.Join(lines, "\n")
}

// Summary returns the long-term summary, or EmptySummary when there is none.
func (s *Store) Summary() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.summary == "" {
		return EmptySummary
	}
	return s.summary
}

// Reset clears both halves of the store and removes their files.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.flock.Lock(); err != nil {
		return fmt.Errorf("lock memory: %w", err)
	}
	defer s.flock.Unlock()

	s.turns = nil
	s.summary = ""
	var errs []error
	for _, name := range []string{ShortTermFile, LongTermFile} {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
