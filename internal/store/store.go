// Package store keeps executed lab runs in memory so API clients can fetch
// them again by ID until they expire.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

// DefaultTTL is how long a run is kept when no TTL is configured.
const DefaultTTL = 24 * time.Hour

var (
	ErrRunNotFound = errors.New("run not found")
	ErrRunExpired  = errors.New("run has expired")
)

// Record is one stored run. Input and Output hold the JSON request and
// result exactly as the caller produced them.
type Record struct {
	ID        uuid.UUID       `json:"id"`
	Kind      string          `json:"kind"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
	Input     json.RawMessage `json:"input,omitempty"`
	Output    json.RawMessage `json:"output,omitempty"`
}

// entry keeps the record snappy-compressed; the expiry is held alongside so
// cleanup never decodes.
type entry struct {
	kind      string
	createdAt time.Time
	expiresAt time.Time
	blob      []byte
}

// RunStore is a concurrency-safe map of runs keyed by uuid.
type RunStore struct {
	mu     sync.RWMutex
	runs   map[uuid.UUID]*entry
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a RunStore.
type Option func(*RunStore)

// WithTTL sets the lifetime of new runs.
func WithTTL(ttl time.Duration) Option {
	return func(s *RunStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *RunStore) { s.now = now }
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *RunStore) { s.logger = logger }
}

// New creates an empty store.
func New(opts ...Option) *RunStore {
	s := &RunStore{
		runs:   make(map[uuid.UUID]*entry),
		ttl:    DefaultTTL,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put marshals input and output, stores them under a fresh ID and returns the
// record.
func (s *RunStore) Put(kind string, input, output interface{}) (*Record, error) {
	in, err := json.Marshal(input)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "marshal run input")
	}
	out, err := json.Marshal(output)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "marshal run output")
	}

	now := s.now()
	rec := &Record{
		ID:        uuid.New(),
		Kind:      kind,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
		Input:     in,
		Output:    out,
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "marshal run record")
	}
	e := &entry{
		kind:      kind,
		createdAt: rec.CreatedAt,
		expiresAt: rec.ExpiresAt,
		blob:      snappy.Encode(nil, raw),
	}

	s.mu.Lock()
	s.runs[rec.ID] = e
	s.mu.Unlock()

	s.logger.Debug("run stored",
		zap.String("id", rec.ID.String()),
		zap.String("kind", kind),
		zap.Int("raw_bytes", len(raw)),
		zap.Int("stored_bytes", len(e.blob)))
	return rec, nil
}

// Get returns the run with id. An expired run is reported as ErrRunExpired
// until CleanupExpired removes it.
func (s *RunStore) Get(id uuid.UUID) (*Record, error) {
	s.mu.RLock()
	e, ok := s.runs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, pkgerrors.Wrapf(ErrRunNotFound, "%s", id)
	}
	if s.now().After(e.expiresAt) {
		return nil, pkgerrors.Wrapf(ErrRunExpired, "%s", id)
	}
	return decode(e.blob)
}

func decode(blob []byte) (*Record, error) {
	raw, err := snappy.Decode(nil, blob)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "decompress run")
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, pkgerrors.Wrap(err, "unmarshal run")
	}
	return &rec, nil
}

// Delete removes a run.
func (s *RunStore) Delete(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[id]; !ok {
		return pkgerrors.Wrapf(ErrRunNotFound, "%s", id)
	}
	delete(s.runs, id)
	return nil
}

// Summary describes a run without its payload.
type Summary struct {
	ID        uuid.UUID `json:"id"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// List returns live runs, oldest first. An empty kind matches every run.
func (s *RunStore) List(kind string) []Summary {
	now := s.now()

	s.mu.RLock()
	out := make([]Summary, 0, len(s.runs))
	for id, e := range s.runs {
		if now.After(e.expiresAt) || (kind != "" && e.kind != kind) {
			continue
		}
		out = append(out, Summary{ID: id, Kind: e.kind, CreatedAt: e.createdAt, ExpiresAt: e.expiresAt})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Len returns the number of stored runs, expired ones included.
func (s *RunStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}

// CleanupExpired removes expired runs and returns how many were dropped.
func (s *RunStore) CleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, e := range s.runs {
		if now.After(e.expiresAt) {
			delete(s.runs, id)
			removed++
		}
	}
	return removed
}

// Janitor calls CleanupExpired every interval until ctx is done.
func (s *RunStore) Janitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.CleanupExpired(); n > 0 {
				s.logger.Info("expired runs removed", zap.Int("count", n))
			}
		}
	}
}
