// Package progress persists the last-read page per document, so reopening
// a document resumes where the reader left off.
package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/zstd"
)

// flushDelay batches rapid page flips into one disk write.
const flushDelay = 2 * time.Second

// Store is a debounced, zstd-compressed JSON file of per-document
// positions. Writes are fire-and-forget; Close flushes anything pending.
type Store struct {
	path string

	mu      sync.Mutex
	entries map[string]int
	dirty   bool
	timer   *time.Timer
	closed  bool
}

// Open loads the store at path, creating an empty one if absent.
func Open(path string) (*Store, error) {
	s := &Store{path: path, entries: make(map[string]int)}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// LastPage reports the saved page for a document, if any.
func (s *Store) LastPage(doc string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	page, ok := s.entries[doc]
	return page, ok
}

// SetLastPage records the last-read page and schedules a flush.
func (s *Store) SetLastPage(doc string, page int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if cur, ok := s.entries[doc]; ok && cur == page {
		return
	}
	s.entries[doc] = page
	s.dirty = true
	if s.timer == nil {
		s.timer = time.AfterFunc(flushDelay, s.flushTimer)
	} else {
		s.timer.Reset(flushDelay)
	}
}

func (s *Store) flushTimer() {
	if err := s.Flush(); err != nil {
		log.Warn("persisting reading progress", "err", err)
	}
}

// Flush writes pending changes to disk.
func (s *Store) Flush() error {
	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	snapshot := make(map[string]int, len(s.entries))
	for k, v := range s.entries {
		snapshot[k] = v
	}
	s.dirty = false
	s.mu.Unlock()

	return s.write(snapshot)
}

// Close flushes pending changes and stops the debounce timer.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	return s.Flush()
}

func (s *Store) load() error {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading progress file: %w", err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return err
	}
	defer dec.Close()
	plain, err := dec.DecodeAll(raw, nil)
	if err != nil {
		// A torn or corrupt file is not worth failing startup over.
		log.Warn("discarding unreadable progress file", "path", s.path, "err", err)
		return nil
	}
	if err := json.Unmarshal(plain, &s.entries); err != nil {
		log.Warn("discarding unreadable progress file", "path", s.path, "err", err)
		s.entries = make(map[string]int)
	}
	return nil
}

func (s *Store) write(entries map[string]int) error {
	plain, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return err
	}
	packed := enc.EncodeAll(plain, nil)
	if err := enc.Close(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, packed, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
