// Package dedup tracks which event ids this session has already processed.
//
// The in-memory set answers Has/MarkSeen. A copy of the set, keyed by id with
// the first-seen time in epoch milliseconds, is persisted as one JSON object
// so a restart does not resurface events seen within the retention window.
// Persistence is best effort: storage failures are logged and counted, and
// the in-memory set keeps working.
package dedup

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-live-alerts/internal/observability"
	"github.com/mr1hm/go-live-alerts/internal/repository"
)

const (
	DefaultKey        = "live-alerts:seen-ids"
	DefaultMaxAge     = 7 * 24 * time.Hour
	DefaultMaxEntries = 500
)

type Options struct {
	Key        string
	MaxAge     time.Duration
	MaxEntries int
}

type Store struct {
	kv      repository.KeyValueStore
	clock   clockwork.Clock
	metrics *observability.Metrics
	opts    Options

	mu   sync.Mutex
	seen map[string]int64
}

func NewStore(kv repository.KeyValueStore, clock clockwork.Clock, metrics *observability.Metrics, opts Options) *Store {
	if opts.Key == "" {
		opts.Key = DefaultKey
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultMaxAge
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{
		kv:      kv,
		clock:   clock,
		metrics: metrics,
		opts:    opts,
		seen:    make(map[string]int64),
	}
}

func (s *Store) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[id]
	return ok
}

func (s *Store) MarkSeen(id string) {
	now := s.clock.Now().UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[id]; ok {
		return
	}
	s.seen[id] = now
	// Past 4x the persisted cap, drop expired ids and keep the 2x newest.
	// The set stays a superset of the persisted record.
	if len(s.seen) > 4*s.opts.MaxEntries {
		s.seen = s.trim(s.seen, 2*s.opts.MaxEntries)
	}
	s.metrics.SeenIDs.Set(float64(len(s.seen)))
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// LoadPersisted populates the in-memory set from storage, dropping expired
// and excess entries. The trimmed record is written back when it changed.
func (s *Store) LoadPersisted(ctx context.Context) {
	record, ok := s.read(ctx)
	if !ok {
		return
	}

	trimmed := s.prune(record)

	s.mu.Lock()
	for id, ts := range trimmed {
		if _, exists := s.seen[id]; !exists {
			s.seen[id] = ts
		}
	}
	s.metrics.SeenIDs.Set(float64(len(s.seen)))
	s.mu.Unlock()

	if len(trimmed) != len(record) {
		s.write(ctx, trimmed)
	}
	slog.Info("loaded persisted dedup state", "loaded", len(record), "kept", len(trimmed))
}

// PersistAdd merges id into the stored record.
func (s *Store) PersistAdd(ctx context.Context, id string) {
	record, ok := s.read(ctx)
	if !ok {
		return
	}
	if _, exists := record[id]; !exists {
		record[id] = s.clock.Now().UnixMilli()
	}
	s.write(ctx, s.prune(record))
}

// read returns the stored record. A missing or corrupt record reads as empty;
// ok is false only when storage itself failed, so callers never overwrite a
// record they could not read.
func (s *Store) read(ctx context.Context) (map[string]int64, bool) {
	raw, found, err := s.kv.Get(ctx, s.opts.Key)
	if err != nil {
		s.metrics.PersistErrors.Inc()
		slog.Warn("reading persisted dedup state failed", "key", s.opts.Key, "error", err)
		return nil, false
	}
	record := make(map[string]int64)
	if !found || raw == "" {
		return record, true
	}

	var decoded map[string]float64
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		slog.Warn("persisted dedup state is corrupt, starting empty", "key", s.opts.Key, "error", err)
		return record, true
	}
	for id, ts := range decoded {
		record[id] = int64(ts)
	}
	return record, true
}

func (s *Store) write(ctx context.Context, record map[string]int64) {
	data, err := json.Marshal(record)
	if err != nil {
		s.metrics.PersistErrors.Inc()
		slog.Warn("encoding dedup state failed", "error", err)
		return
	}
	if err := s.kv.Set(ctx, s.opts.Key, string(data)); err != nil {
		s.metrics.PersistErrors.Inc()
		slog.Warn("writing persisted dedup state failed", "key", s.opts.Key, "error", fmt.Errorf("persist: %w", err))
	}
}

type seenEntry struct {
	id string
	ts int64
}

// prune drops entries older than MaxAge and keeps the MaxEntries most recent.
func (s *Store) prune(record map[string]int64) map[string]int64 {
	return s.trim(record, s.opts.MaxEntries)
}

func (s *Store) trim(record map[string]int64, limit int) map[string]int64 {
	cutoff := s.clock.Now().UnixMilli() - s.opts.MaxAge.Milliseconds()

	entries := make([]seenEntry, 0, len(record))
	for id, ts := range record {
		if ts < cutoff {
			continue
		}
		entries = append(entries, seenEntry{id: id, ts: ts})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].ts != entries[j].ts {
			return entries[i].ts > entries[j].ts
		}
		return entries[i].id < entries[j].id
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}

	out := make(map[string]int64, len(entries))
	for _, e := range entries {
		out[e.id] = e.ts
	}
	return out
}
