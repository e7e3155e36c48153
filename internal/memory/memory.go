// Package memory is a translation memory: finished translations keyed by
// the hash of their original text, shared across documents and checkouts.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"toh-translator/internal/document"
	"toh-translator/internal/textutil"

	"github.com/rs/zerolog/log"
)

// ErrNotFound is returned by a Backend for an unknown hash.
var ErrNotFound = errors.New("translation not found")

// Record is one remembered translation.
type Record struct {
	Source     string
	Translated string
	Status     string
}

// Backend persists records.
type Backend interface {
	Get(ctx context.Context, hash string) (Record, error)
	Upsert(ctx context.Context, hashes []string, records []Record) error
	List(ctx context.Context) (map[string]Record, error)
}

// Memory provides in-memory caching in front of an optional Backend.
type Memory struct {
	backend Backend
	mu      sync.RWMutex
	records map[string]Record // hash → record
}

// New creates a memory. A nil backend keeps everything in process.
func New(backend Backend) *Memory {
	return &Memory{backend: backend, records: make(map[string]Record)}
}

// Get retrieves a remembered translation of source.
func (m *Memory) Get(ctx context.Context, source string) (Record, bool) {
	hash := textutil.Hash(source)

	m.mu.RLock()
	if r, ok := m.records[hash]; ok {
		m.mu.RUnlock()
		return r, true
	}
	m.mu.RUnlock()

	if m.backend == nil {
		return Record{}, false
	}
	r, err := m.backend.Get(ctx, hash)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Warn().Err(err).Str("source", textutil.Truncate(source, 20)).Msg("Translation memory lookup failed")
		}
		return Record{}, false
	}

	m.mu.Lock()
	m.records[hash] = r
	m.mu.Unlock()
	return r, true
}

// SetBatch stores records in memory and in the backend.
func (m *Memory) SetBatch(ctx context.Context, records []Record) error {
	hashes := make([]string, len(records))
	m.mu.Lock()
	for i, r := range records {
		hashes[i] = textutil.Hash(r.Source)
		m.records[hashes[i]] = r
	}
	m.mu.Unlock()

	if m.backend == nil || len(records) == 0 {
		return nil
	}
	if err := m.backend.Upsert(ctx, hashes, records); err != nil {
		return fmt.Errorf("memory set: %w", err)
	}
	return nil
}

// Preload loads every backend record into memory.
func (m *Memory) Preload(ctx context.Context) error {
	if m.backend == nil {
		return nil
	}
	all, err := m.backend.List(ctx)
	if err != nil {
		return fmt.Errorf("preload memory: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for h, r := range all {
		m.records[h] = r
	}

	log.Info().Int("count", len(all)).Msg("Preloaded translation memory")
	return nil
}

// Push remembers every selected translation of d and returns how many.
func (m *Memory) Push(ctx context.Context, d *document.Document, statuses document.Statuses) (int, error) {
	var records []Record
	for _, e := range d.Entries() {
		if !statuses.Selected(e) {
			continue
		}
		records = append(records, Record{Source: e.JapaneseText, Translated: e.EnglishText, Status: e.Status})
	}
	if err := m.SetBatch(ctx, records); err != nil {
		return 0, err
	}
	return len(records), nil
}

// Pull fills untranslated entries of d from memory and returns how many.
// Entries that already carry a translation are left alone.
func (m *Memory) Pull(ctx context.Context, d *document.Document) int {
	n := 0
	for _, e := range d.Entries() {
		if e.EnglishText != "" || e.JapaneseText == "" {
			continue
		}
		r, ok := m.Get(ctx, e.JapaneseText)
		if !ok {
			continue
		}
		e.EnglishText = r.Translated
		e.Status = r.Status
		n++
	}
	return n
}
