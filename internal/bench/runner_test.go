package bench

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"

	"jail-bench/internal/launch"
	"jail-bench/internal/launcher"
)

type events struct {
	mu  sync.Mutex
	log []string
}

func (e *events) add(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log = append(e.log, name)
}

type fakeFixtures struct {
	ev       *events
	setupErr error
	warnings int
	count    int
}

func (f *fakeFixtures) Setup(count int) error {
	f.ev.add("fixtures.setup")
	if f.setupErr != nil {
		return f.setupErr
	}
	f.count = count
	return nil
}

func (f *fakeFixtures) Teardown() int {
	f.ev.add("fixtures.teardown")
	f.count = 0
	return f.warnings
}

type fakeTracer struct {
	ev *events
}

func (f *fakeTracer) Start(ctx context.Context, outputPath string) error {
	f.ev.add("tracer.start")
	return nil
}

func (f *fakeTracer) Stop() error {
	f.ev.add("tracer.stop")
	return nil
}

type captureSink struct {
	mu     sync.Mutex
	dims   map[string]string
	values []float64
}

func (s *captureSink) SetDimensions(dims map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dims = dims
}

func (s *captureSink) Record(name string, value float64, unit string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = append(s.values, value)
	return nil
}

func (s *captureSink) Flush() error { return nil }

func makeSpecs(n int) []launch.Spec {
	specs := make([]launch.Spec, n)
	for i := range specs {
		specs[i] = launch.Spec{ID: fmt.Sprintf("fakefc%d", i), Path: "/bin/true"}
	}
	return specs
}

func newTestRunner(ev *events, sink *captureSink, exec func(ctx context.Context, spec launch.Spec) ([]byte, error)) (*Runner, *fakeFixtures) {
	fixtures := &fakeFixtures{ev: ev}
	r := NewRunner(
		fixtures,
		&fakeTracer{ev: ev},
		launcher.New(sink, launcher.WithExecFunc(exec)),
		sink,
		Dimensions{Instance: "m5.metal", CPUModel: "test-cpu", TestID: "test_jailer_startup"},
	)
	return r, fixtures
}

func TestRun_AllSucceed(t *testing.T) {
	ev := &events{}
	sink := &captureSink{}

	// Launch i prints "(1000+i) (100+i)", so every duration is 900.
	r, _ := newTestRunner(ev, sink, func(ctx context.Context, spec launch.Spec) ([]byte, error) {
		i, _ := strconv.Atoi(strings.TrimPrefix(spec.ID, "fakefc"))
		return []byte(fmt.Sprintf("%d %d", 1000+i, 100+i)), nil
	})

	summary, err := r.Run(context.Background(), makeSpecs(10), 5, 0, "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Succeeded != 10 || summary.Failed != 0 {
		t.Fatalf("expected 10/0, got %d/%d", summary.Succeeded, summary.Failed)
	}
	if summary.FixtureWarnings != 0 {
		t.Fatalf("expected 0 fixture warnings, got %d", summary.FixtureWarnings)
	}
	if len(sink.values) != 10 {
		t.Fatalf("expected 10 samples, got %d", len(sink.values))
	}
	for _, v := range sink.values {
		if v != 900 {
			t.Fatalf("expected every duration to be 900, got %v", sink.values)
		}
	}
	if sink.dims["parallel"] != "5" || sink.dims["mounts"] != "0" {
		t.Fatalf("unexpected dimensions: %v", sink.dims)
	}
	if sink.dims["performance_test"] != "test_jailer_startup" {
		t.Fatalf("unexpected test dimension: %v", sink.dims)
	}
}

func TestRun_OneFailure(t *testing.T) {
	ev := &events{}
	sink := &captureSink{}

	r, _ := newTestRunner(ev, sink, func(ctx context.Context, spec launch.Spec) ([]byte, error) {
		if spec.ID == "fakefc2" {
			return nil, errors.New("exit status 1")
		}
		return []byte("1000 100"), nil
	})

	summary, err := r.Run(context.Background(), makeSpecs(5), 2, 0, "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := summary.String(); got != "4/5 succeeded" {
		t.Fatalf("expected %q, got %q", "4/5 succeeded", got)
	}
	if len(sink.values) != 4 {
		t.Fatalf("expected 4 samples, got %d", len(sink.values))
	}
}

func TestRun_ZeroSuccessesIsOverallFailure(t *testing.T) {
	ev := &events{}
	sink := &captureSink{}

	r, _ := newTestRunner(ev, sink, func(ctx context.Context, spec launch.Spec) ([]byte, error) {
		return nil, errors.New("exit status 1")
	})

	_, err := r.Run(context.Background(), makeSpecs(3), 1, 0, "")
	if err == nil {
		t.Fatal("expected overall failure when no launch succeeds")
	}

	// Teardown still ran on the error path.
	joined := strings.Join(ev.log, ",")
	if !strings.Contains(joined, "tracer.stop") || !strings.Contains(joined, "fixtures.teardown") {
		t.Fatalf("expected teardown on error path, got %v", ev.log)
	}
}

func TestRun_TeardownOrder(t *testing.T) {
	ev := &events{}
	sink := &captureSink{}

	r, _ := newTestRunner(ev, sink, func(ctx context.Context, spec launch.Spec) ([]byte, error) {
		return []byte("1000 100"), nil
	})

	if _, err := r.Run(context.Background(), makeSpecs(2), 1, 3, ""); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{"fixtures.setup", "tracer.start", "tracer.stop", "fixtures.teardown"}
	if len(ev.log) != len(want) {
		t.Fatalf("expected events %v, got %v", want, ev.log)
	}
	for i := range want {
		if ev.log[i] != want[i] {
			t.Fatalf("expected events %v, got %v", want, ev.log)
		}
	}
}

func TestRun_FixtureSetupFailureSkipsWorkload(t *testing.T) {
	ev := &events{}
	sink := &captureSink{}

	r, fixtures := newTestRunner(ev, sink, func(ctx context.Context, spec launch.Spec) ([]byte, error) {
		t.Fatal("launcher must not run when fixture setup fails")
		return nil, nil
	})
	fixtures.setupErr = errors.New("mount: operation not permitted")

	_, err := r.Run(context.Background(), makeSpecs(2), 1, 100, "")
	if err == nil {
		t.Fatal("expected error from fixture setup")
	}
	for _, e := range ev.log {
		if e == "tracer.start" {
			t.Fatal("tracer must not start when fixture setup fails")
		}
	}
}

func TestRun_ReportsFixtureWarnings(t *testing.T) {
	ev := &events{}
	sink := &captureSink{}

	r, fixtures := newTestRunner(ev, sink, func(ctx context.Context, spec launch.Spec) ([]byte, error) {
		return []byte("1000 100"), nil
	})
	fixtures.warnings = 2

	summary, err := r.Run(context.Background(), makeSpecs(2), 1, 5, "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.FixtureWarnings != 2 {
		t.Fatalf("expected 2 fixture warnings, got %d", summary.FixtureWarnings)
	}
}

func TestRun_LauncherSetupErrorStillTearsDown(t *testing.T) {
	ev := &events{}
	sink := &captureSink{}

	r, _ := newTestRunner(ev, sink, func(ctx context.Context, spec launch.Spec) ([]byte, error) {
		return []byte("1000 100"), nil
	})

	_, err := r.Run(context.Background(), makeSpecs(2), 0, 0, "")
	if err == nil {
		t.Fatal("expected launcher setup error")
	}
	var setupErr *launcher.SetupError
	if !errors.As(err, &setupErr) {
		t.Fatalf("expected *launcher.SetupError, got %T: %v", err, err)
	}

	joined := strings.Join(ev.log, ",")
	if !strings.Contains(joined, "fixtures.teardown") {
		t.Fatalf("expected fixture teardown after launcher setup failure, got %v", ev.log)
	}
}
