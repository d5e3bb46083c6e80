// Package session holds the set of loaded datasets and the current parameter
// selection. A Session is created when the application starts and cleared
// on exit; loads are deduplicated per path and published only once complete.
package session

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/kronigert/timsCompare/internal/compare"
	"github.com/kronigert/timsCompare/internal/loader"
	"github.com/kronigert/timsCompare/internal/logging"
	"github.com/kronigert/timsCompare/internal/method"
	"github.com/kronigert/timsCompare/internal/normalize"
	"github.com/kronigert/timsCompare/internal/telemetry"
)

// Sentinel errors for session operations.
var (
	// ErrAlreadyLoaded indicates the path is already part of the session.
	ErrAlreadyLoaded = errors.New("dataset already loaded")
	// ErrNotLoaded indicates an unknown dataset ID or path.
	ErrNotLoaded = errors.New("dataset not loaded")
)

// DefaultWorkers bounds the number of concurrent loads in LoadAll.
const DefaultWorkers = 4

// LoadFunc loads one dataset. loader.Load satisfies it.
type LoadFunc func(ctx context.Context, dir string, opts ...loader.Option) (*method.Dataset, error)

// Entry is one published dataset.
type Entry struct {
	ID       string          `json:"id"`
	Path     string          `json:"path"`
	Dataset  *method.Dataset `json:"-"`
	LoadedAt time.Time       `json:"loaded_at"`

	// seq orders entries by request, not by completion.
	seq uint64
}

// Result is the outcome of loading one path in a batch.
type Result struct {
	Path  string
	Entry *Entry
	Err   error
}

// call is a load in progress. Waiters block on done.
type call struct {
	done chan struct{}
	ds   *method.Dataset
	err  error
}

// Session is safe for concurrent use.
type Session struct {
	mu        sync.RWMutex
	entries   []*Entry // sorted by seq
	nextSeq   uint64
	inflight  map[string]*call
	selection []string

	load      LoadFunc
	catalogue *normalize.Catalogue
	ionSource string
	relTol    float64
	workers   int
	log       *zap.Logger
	events    *telemetry.Emitter
}

// Option configures a Session.
type Option func(*Session)

// WithLoadFunc replaces loader.Load.
func WithLoadFunc(fn LoadFunc) Option {
	return func(s *Session) { s.load = fn }
}

// WithCatalogue sets the parameter catalogue used for loads and comparisons.
func WithCatalogue(c *normalize.Catalogue) Option {
	return func(s *Session) { s.catalogue = c }
}

// WithIonSource selects source-dependent parameter blocks for every load.
func WithIonSource(source string) Option {
	return func(s *Session) { s.ionSource = source }
}

// WithRelativeTolerance sets the relative numeric tolerance of comparisons.
func WithRelativeTolerance(tol float64) Option {
	return func(s *Session) { s.relTol = tol }
}

// WithWorkers bounds concurrent loads in LoadAll.
func WithWorkers(n int) Option {
	return func(s *Session) { s.workers = n }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithTelemetry records session events on e.
func WithTelemetry(e *telemetry.Emitter) Option {
	return func(s *Session) { s.events = e }
}

// New creates an empty session.
func New(opts ...Option) *Session {
	s := &Session{
		inflight: make(map[string]*call),
		load:     loader.Load,
		relTol:   compare.DefaultRelativeTolerance,
		workers:  DefaultWorkers,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.catalogue == nil {
		s.catalogue = normalize.Default()
	}
	s.log = logging.OrNop(s.log)
	if s.workers < 1 {
		s.workers = 1
	}
	return s
}

// Catalogue returns the catalogue the session loads and compares with.
func (s *Session) Catalogue() *normalize.Catalogue {
	return s.catalogue
}

func normPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", path, err)
	}
	return filepath.Clean(abs), nil
}

// Load reads path and adds the dataset to the session. Concurrent calls for
// the same path share one load. A path that is already published yields
// its entry together with ErrAlreadyLoaded.
func (s *Session) Load(ctx context.Context, path string) (*Entry, error) {
	return s.loadAt(ctx, path, s.reserve(1))
}

// reserve hands out n consecutive publication positions.
func (s *Session) reserve(n int) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	first := s.nextSeq
	s.nextSeq += uint64(n)
	return first
}

// loadAt is Load with the entry published at position seq, so that a batch
// keeps the order of its paths however its loads finish.
func (s *Session) loadAt(ctx context.Context, path string, seq uint64) (*Entry, error) {
	abs, err := normPath(path)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	existing := s.byPathLocked(abs)
	s.mu.RUnlock()
	if existing != nil {
		return existing, fmt.Errorf("%s: %w", abs, ErrAlreadyLoaded)
	}

	ds, err := s.do(ctx, abs)
	if err != nil {
		s.emit(telemetry.Event{Kind: telemetry.KindDatasetFailed, Path: abs, Data: err.Error()})
		s.log.Warn("load failed", zap.String("path", abs), zap.Error(err))
		return nil, err
	}

	s.mu.Lock()
	if e := s.byPathLocked(abs); e != nil {
		s.mu.Unlock()
		if e.Dataset == ds {
			return e, nil
		}
		return e, fmt.Errorf("%s: %w", abs, ErrAlreadyLoaded)
	}
	e := &Entry{ID: uuid.NewString(), Path: abs, Dataset: ds, LoadedAt: time.Now().UTC(), seq: seq}
	idx, _ := slices.BinarySearchFunc(s.entries, seq, func(x *Entry, seq uint64) int { return cmp.Compare(x.seq, seq) })
	s.entries = slices.Insert(s.entries, idx, e)
	s.mu.Unlock()

	s.emit(telemetry.Event{
		Kind:    telemetry.KindDatasetLoaded,
		Dataset: e.ID,
		Path:    abs,
		Data: map[string]any{
			"mode":     ds.Mode().String(),
			"segments": ds.Len(),
			"warnings": len(ds.Warnings()),
		},
	})
	return e, nil
}

// do runs the load of abs, or joins the one already in flight. The result
// is checked against ctx once more so an abandoned load publishes nothing.
func (s *Session) do(ctx context.Context, abs string) (*method.Dataset, error) {
	s.mu.Lock()
	if c, ok := s.inflight[abs]; ok {
		s.mu.Unlock()
		select {
		case <-c.done:
			return c.ds, c.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	c := &call{done: make(chan struct{})}
	s.inflight[abs] = c
	s.mu.Unlock()

	c.ds, c.err = s.load(ctx, abs,
		loader.WithCatalogue(s.catalogue),
		loader.WithIonSource(s.ionSource),
		loader.WithLogger(s.log),
	)
	if c.err == nil && ctx.Err() != nil {
		c.ds, c.err = nil, ctx.Err()
	}

	s.mu.Lock()
	delete(s.inflight, abs)
	s.mu.Unlock()
	close(c.done)
	return c.ds, c.err
}

// LoadAll loads paths concurrently. Every path gets its own Result, in the
// order given, and the loaded datasets are published in that order too. One
// failure never affects another path.
func (s *Session) LoadAll(ctx context.Context, paths []string) []Result {
	results := make([]Result, len(paths))
	first := s.reserve(len(paths))
	p := pool.New().WithMaxGoroutines(s.workers)
	for i, path := range paths {
		p.Go(func() {
			e, err := s.loadAt(ctx, path, first+uint64(i))
			results[i] = Result{Path: path, Entry: e, Err: err}
		})
	}
	p.Wait()
	return results
}

// Reload re-reads the dataset id from disk and replaces it in place. The
// previous dataset stays published if the reload fails.
func (s *Session) Reload(ctx context.Context, id string) (*Entry, error) {
	s.mu.RLock()
	old := s.byIDLocked(id)
	s.mu.RUnlock()
	if old == nil {
		return nil, fmt.Errorf("%s: %w", id, ErrNotLoaded)
	}

	ds, err := s.do(ctx, old.Path)
	if err != nil {
		s.emit(telemetry.Event{Kind: telemetry.KindDatasetFailed, Dataset: id, Path: old.Path, Data: err.Error()})
		return nil, err
	}

	s.mu.Lock()
	idx := slices.IndexFunc(s.entries, func(e *Entry) bool { return e.ID == id })
	if idx < 0 {
		s.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", id, ErrNotLoaded)
	}
	e := &Entry{ID: id, Path: old.Path, Dataset: ds, LoadedAt: time.Now().UTC(), seq: s.entries[idx].seq}
	s.entries[idx] = e
	s.mu.Unlock()

	s.emit(telemetry.Event{Kind: telemetry.KindDatasetReloaded, Dataset: id, Path: e.Path})
	return e, nil
}

// Unload removes the dataset id from the session.
func (s *Session) Unload(id string) error {
	s.mu.Lock()
	idx := slices.IndexFunc(s.entries, func(e *Entry) bool { return e.ID == id })
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%s: %w", id, ErrNotLoaded)
	}
	e := s.entries[idx]
	s.entries = slices.Delete(s.entries, idx, idx+1)
	s.mu.Unlock()

	s.emit(telemetry.Event{Kind: telemetry.KindDatasetUnloaded, Dataset: id, Path: e.Path})
	return nil
}

// Clear unloads every dataset and resets the selection.
func (s *Session) Clear() {
	s.mu.Lock()
	entries := s.entries
	s.entries = nil
	s.selection = nil
	s.mu.Unlock()
	for _, e := range entries {
		s.emit(telemetry.Event{Kind: telemetry.KindDatasetUnloaded, Dataset: e.ID, Path: e.Path})
	}
}

// Get returns the entry id.
func (s *Session) Get(id string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e := s.byIDLocked(id); e != nil {
		return e, nil
	}
	return nil, fmt.Errorf("%s: %w", id, ErrNotLoaded)
}

// Lookup returns the entry loaded from path.
func (s *Session) Lookup(path string) (*Entry, error) {
	abs, err := normPath(path)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e := s.byPathLocked(abs); e != nil {
		return e, nil
	}
	return nil, fmt.Errorf("%s: %w", abs, ErrNotLoaded)
}

// Entries returns the published entries in the order their loads were
// requested.
func (s *Session) Entries() []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.entries)
}

// Datasets returns the published datasets in the order of Entries.
func (s *Session) Datasets() []*method.Dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*method.Dataset, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Dataset
	}
	return out
}

// SetSelection replaces the selected parameter keys. An empty selection
// falls back to the default view.
func (s *Session) SetSelection(keys []string) {
	s.mu.Lock()
	s.selection = slices.Clone(keys)
	s.mu.Unlock()
	s.emit(telemetry.Event{Kind: telemetry.KindSelectionChanged, Data: map[string]any{"keys": keys}})
}

// Selection returns the explicit selection, or the catalogue's default view
// over the loaded datasets when nothing was selected.
func (s *Session) Selection() []string {
	s.mu.RLock()
	sel := slices.Clone(s.selection)
	s.mu.RUnlock()
	if len(sel) > 0 {
		return sel
	}
	return s.catalogue.DefaultView(s.Datasets())
}

// Compare builds the comparison matrix of the loaded datasets over the
// current selection.
func (s *Session) Compare(onlyDifferences bool) *compare.Matrix {
	datasets := s.Datasets()
	m := compare.Compare(datasets, s.Selection(),
		compare.WithCatalogue(s.catalogue),
		compare.WithRelativeTolerance(s.relTol),
		compare.OnlyDifferences(onlyDifferences),
	)
	s.emit(telemetry.Event{
		Kind: telemetry.KindComparison,
		Data: map[string]any{
			"datasets":    len(datasets),
			"rows":        len(m.Rows),
			"differences": len(m.Differences()),
		},
	})
	return m
}

func (s *Session) byPathLocked(abs string) *Entry {
	for _, e := range s.entries {
		if e.Path == abs {
			return e
		}
	}
	return nil
}

func (s *Session) byIDLocked(id string) *Entry {
	for _, e := range s.entries {
		if e.ID == id {
			return e
		}
	}
	return nil
}

func (s *Session) emit(evt telemetry.Event) {
	if err := s.events.Emit(evt); err != nil {
		s.log.Warn("telemetry", zap.Error(err))
	}
}
