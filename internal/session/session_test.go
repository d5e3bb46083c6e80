package session

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/kronigert/timsCompare/internal/fixture"
	"github.com/kronigert/timsCompare/internal/loader"
	"github.com/kronigert/timsCompare/internal/method"
	"github.com/kronigert/timsCompare/internal/telemetry"
)

func msMethod(ce string) fixture.Method {
	return fixture.Method{Params: fixture.Override(fixture.Base("0"), fixture.P("Collision_Energy_Set", ce))}
}

func stubDataset(t *testing.T, path string) *method.Dataset {
	t.Helper()
	ds, err := method.NewDataset(path, []method.SegmentSpec{{End: -1}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return ds
}

func TestLoadAndCompare(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	a := fixture.Write(t, root, "a", msMethod("10"))
	b := fixture.Write(t, root, "b", msMethod("12"))

	s := New()
	for _, dir := range []string{a, b} {
		if _, err := s.Load(context.Background(), dir); err != nil {
			t.Fatalf("Load(%s): %v", dir, err)
		}
	}

	m := s.Compare(true)
	var keys []string
	for _, r := range m.Rows {
		keys = append(keys, r.Key)
	}
	if diff := cmp.Diff([]string{"collision_energy"}, keys); diff != "" {
		t.Errorf("differing keys mismatch (-want +got):\n%s", diff)
	}
	if len(m.Columns) != 2 || m.Columns[0].Name != "a.d" || m.Columns[1].Name != "b.d" {
		t.Errorf("columns = %+v", m.Columns)
	}
}

func TestLoadAlreadyLoaded(t *testing.T) {
	t.Parallel()

	dir := fixture.Write(t, t.TempDir(), "a", msMethod("10"))
	s := New()
	first, err := s.Load(context.Background(), dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	second, err := s.Load(context.Background(), dir+string(filepath.Separator))
	if !errors.Is(err, ErrAlreadyLoaded) {
		t.Fatalf("expected ErrAlreadyLoaded, got %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("second load returned a different entry")
	}
	if n := len(s.Entries()); n != 1 {
		t.Errorf("entries = %d, want 1", n)
	}
}

func TestLoadSharesInFlight(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{})
	s := New(WithLoadFunc(func(ctx context.Context, dir string, _ ...loader.Option) (*method.Dataset, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return stubDataset(t, dir), nil
	}))

	const n = 8
	entries := make([]*Entry, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := range n {
		go func() {
			defer wg.Done()
			entries[i], errs[i] = s.Load(context.Background(), "/data/shared.d")
		}()
	}
	<-started
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("load ran %d times, want 1", got)
	}
	for i := range n {
		if errs[i] != nil && !errors.Is(errs[i], ErrAlreadyLoaded) {
			t.Errorf("caller %d: %v", i, errs[i])
		}
		if entries[i] == nil || entries[i].ID != entries[0].ID {
			t.Errorf("caller %d got entry %+v", i, entries[i])
		}
	}
	if len(s.Entries()) != 1 {
		t.Errorf("entries = %d, want 1", len(s.Entries()))
	}
}

func TestLoadCancelledLeavesNoTrace(t *testing.T) {
	t.Parallel()

	t.Run("during load", func(t *testing.T) {
		t.Parallel()
		s := New(WithLoadFunc(func(ctx context.Context, dir string, _ ...loader.Option) (*method.Dataset, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}))
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()
		if _, err := s.Load(ctx, "/data/slow.d"); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if len(s.Entries()) != 0 {
			t.Errorf("cancelled load was published")
		}
	})

	t.Run("after load before publish", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		s := New(WithLoadFunc(func(_ context.Context, dir string, _ ...loader.Option) (*method.Dataset, error) {
			cancel()
			return stubDataset(t, dir), nil
		}))
		if _, err := s.Load(ctx, "/data/late.d"); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if len(s.Entries()) != 0 {
			t.Errorf("cancelled load was published")
		}
	})
}

func TestLoadAllReportsEachPath(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	good := fixture.Write(t, root, "good", msMethod("10"))
	missing := filepath.Join(root, "missing.d")
	if err := os.MkdirAll(missing, 0o755); err != nil {
		t.Fatal(err)
	}
	other := fixture.Write(t, root, "other", msMethod("15"))

	s := New(WithWorkers(2))
	results := s.LoadAll(context.Background(), []string{good, missing, other})
	if len(results) != 3 {
		t.Fatalf("results = %d", len(results))
	}
	if results[0].Err != nil || results[2].Err != nil {
		t.Errorf("good paths failed: %v, %v", results[0].Err, results[2].Err)
	}
	if !errors.Is(results[1].Err, method.ErrUnsupportedMethod) {
		t.Errorf("missing method: %v", results[1].Err)
	}
	if results[1].Path != missing {
		t.Errorf("result path = %q", results[1].Path)
	}
	if n := len(s.Entries()); n != 2 {
		t.Errorf("entries = %d, want 2", n)
	}
}

func TestLoadAllPublishesInRequestOrder(t *testing.T) {
	t.Parallel()

	var s *Session
	s = New(WithWorkers(3), WithLoadFunc(func(ctx context.Context, dir string, _ ...loader.Option) (*method.Dataset, error) {
		if filepath.Base(dir) == "first.d" {
			// Finish last: wait until both other paths are published.
			deadline := time.Now().Add(5 * time.Second)
			for len(s.Entries()) < 2 && time.Now().Before(deadline) {
				time.Sleep(time.Millisecond)
			}
		}
		return stubDataset(t, dir), nil
	}))

	paths := []string{"/data/first.d", "/data/second.d", "/data/third.d"}
	for _, res := range s.LoadAll(context.Background(), paths) {
		if res.Err != nil {
			t.Fatalf("%s: %v", res.Path, res.Err)
		}
	}

	later, err := s.Load(context.Background(), "/data/fourth.d")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := s.Reload(context.Background(), s.Entries()[0].ID); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	var names []string
	for _, ds := range s.Datasets() {
		names = append(names, ds.Name())
	}
	if diff := cmp.Diff([]string{"first.d", "second.d", "third.d", "fourth.d"}, names); diff != "" {
		t.Errorf("dataset order mismatch (-want +got):\n%s", diff)
	}
	if got := s.Entries()[3].ID; got != later.ID {
		t.Errorf("last entry = %s, want %s", got, later.ID)
	}
}

func TestUnload(t *testing.T) {
	t.Parallel()

	dir := fixture.Write(t, t.TempDir(), "a", msMethod("10"))
	s := New()
	e, err := s.Load(context.Background(), dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := s.Unload(e.ID); err != nil {
		t.Fatalf("Unload: %v", err)
	}
	if err := s.Unload(e.ID); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("second Unload: %v", err)
	}
	if _, err := s.Get(e.ID); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("Get after Unload: %v", err)
	}
	if _, err := s.Load(context.Background(), dir); err != nil {
		t.Errorf("reload after unload: %v", err)
	}
}

func TestReloadReplacesDataset(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dir := fixture.Write(t, root, "a", msMethod("10"))
	s := New()
	e, err := s.Load(context.Background(), dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	old := e.Dataset

	fixture.Write(t, root, "a", msMethod("25"))
	got, err := s.Reload(context.Background(), e.ID)
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got.ID != e.ID {
		t.Errorf("reload changed the ID")
	}
	v, _ := got.Dataset.Value(0, "collision_energy")
	if v.Display != "25.0 eV" {
		t.Errorf("collision_energy = %q", v.Display)
	}
	if p, _ := old.Value(0, "collision_energy"); p.Display != "10.0 eV" {
		t.Errorf("previous dataset mutated: %q", p.Display)
	}

	if _, err := s.Reload(context.Background(), "nope"); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("Reload unknown: %v", err)
	}
}

func TestReloadFailureKeepsDataset(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dir := fixture.Write(t, root, "a", msMethod("10"))
	s := New()
	e, err := s.Load(context.Background(), dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := os.RemoveAll(fixture.MethodDir(dir)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Reload(context.Background(), e.ID); err == nil {
		t.Fatal("expected reload error")
	}
	cur, err := s.Get(e.ID)
	if err != nil || cur.Dataset != e.Dataset {
		t.Errorf("dataset replaced after failed reload: %v", err)
	}
}

func TestSelection(t *testing.T) {
	t.Parallel()

	dir := fixture.Write(t, t.TempDir(), "a", msMethod("10"))
	s := New()
	if got := s.Selection(); len(got) != 0 {
		t.Errorf("empty session selection = %v", got)
	}
	if _, err := s.Load(context.Background(), dir); err != nil {
		t.Fatalf("Load: %v", err)
	}
	def := s.Selection()
	if len(def) == 0 || def[0] != "scan_mode" {
		t.Errorf("default view = %v", def)
	}

	s.SetSelection([]string{"collision_energy", "ramp_time"})
	if diff := cmp.Diff([]string{"collision_energy", "ramp_time"}, s.Selection()); diff != "" {
		t.Errorf("selection mismatch (-want +got):\n%s", diff)
	}
	m := s.Compare(false)
	if len(m.Rows) != 2 {
		t.Errorf("rows = %d, want 2", len(m.Rows))
	}

	s.Clear()
	if len(s.Entries()) != 0 || len(s.Selection()) != 0 {
		t.Errorf("Clear left state behind")
	}
}

func TestTelemetryEvents(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dir := fixture.Write(t, root, "a", msMethod("10"))
	var buf bytes.Buffer
	s := New(WithTelemetry(telemetry.NewWriterEmitter(&buf)))

	e, err := s.Load(context.Background(), dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	_, _ = s.Load(context.Background(), filepath.Join(root, "absent.d"))
	s.SetSelection([]string{"collision_energy"})
	s.Compare(false)
	if err := s.Unload(e.ID); err != nil {
		t.Fatalf("Unload: %v", err)
	}

	events, err := telemetry.ReadEvents(&buf)
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	var kinds []string
	for _, evt := range events {
		kinds = append(kinds, evt.Kind)
	}
	want := []string{
		telemetry.KindDatasetLoaded,
		telemetry.KindDatasetFailed,
		telemetry.KindSelectionChanged,
		telemetry.KindComparison,
		telemetry.KindDatasetUnloaded,
	}
	if diff := cmp.Diff(want, kinds); diff != "" {
		t.Errorf("event kinds mismatch (-want +got):\n%s", diff)
	}
	if events[0].Dataset != e.ID || events[0].Path != e.Path {
		t.Errorf("loaded event = %+v", events[0])
	}
}
