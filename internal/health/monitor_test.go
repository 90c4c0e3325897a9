package health

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"agora/internal/resilience"
)

func fastExecutor() *resilience.Executor {
	return resilience.New(resilience.Options{
		MaxAttempts:  1,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Timeout:      100 * time.Millisecond,
	}, nil)
}

func always(up bool) Transport {
	return func() bool { return up }
}

// toggle is a probe whose outcome can be switched at runtime.
type toggle struct {
	ok    atomic.Bool
	calls atomic.Int32
}

func (p *toggle) probe(name string) Probe {
	return Probe{Name: name, Check: func(ctx context.Context) error {
		p.calls.Add(1)
		if p.ok.Load() {
			return nil
		}
		return &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	}}
}

func TestCheckAvailabilityAllProbesUnreachable(t *testing.T) {
	reg := prometheus.NewRegistry()
	dead := Probe{Name: "dead", Check: func(ctx context.Context) error {
		return errors.New("dial tcp 10.0.0.1:5432: connect: connection refused")
	}}
	m := NewMonitor(Config{
		Probes:     []Probe{dead, dead, dead},
		Executor:   fastExecutor(),
		Transport:  always(true),
		Registerer: reg,
	})

	if m.CheckAvailability(context.Background()) {
		t.Fatal("CheckAvailability = true, want false")
	}
	s := m.State()
	if s.State != StateDegraded || s.IsOnline || s.ConsecutiveFailures != 1 {
		t.Errorf("state = %+v", s)
	}
	if got := testutil.ToFloat64(m.failures); got != 1 {
		t.Errorf("probe failures metric = %v, want 1", got)
	}
}

func TestCheckAvailabilityRecoversPanickingProbe(t *testing.T) {
	m := NewMonitor(Config{
		Probes: []Probe{{Name: "boom", Check: func(ctx context.Context) error {
			panic("nil map")
		}}},
		Executor:  fastExecutor(),
		Transport: always(true),
	})

	if m.CheckAvailability(context.Background()) {
		t.Error("CheckAvailability = true, want false")
	}
}

func TestCheckAvailabilityTriesProbesInOrder(t *testing.T) {
	var first, second toggle
	second.ok.Store(true)
	m := NewMonitor(Config{
		Probes:    []Probe{first.probe("a"), second.probe("b")},
		Executor:  fastExecutor(),
		Transport: always(true),
	})

	if !m.CheckAvailability(context.Background()) {
		t.Fatal("CheckAvailability = false, want true")
	}
	if first.calls.Load() == 0 || second.calls.Load() != 1 {
		t.Errorf("calls: first=%d second=%d", first.calls.Load(), second.calls.Load())
	}
	if s := m.State(); s.State != StateOnline || !s.IsOnline {
		t.Errorf("state = %+v", s)
	}
}

func TestStateTransitions(t *testing.T) {
	var p toggle
	m := NewMonitor(Config{Probes: []Probe{p.probe("p")}, Executor: fastExecutor(), Transport: always(true)})
	ctx := context.Background()

	if m.State().State != StateUnknown {
		t.Fatalf("initial state = %v", m.State().State)
	}
	for i := 1; i <= 3; i++ {
		m.CheckAvailability(ctx)
		if s := m.State(); s.State != StateDegraded || s.ConsecutiveFailures != i {
			t.Fatalf("after %d failures: %+v", i, s)
		}
	}
	m.CheckAvailability(ctx)
	if s := m.State(); s.State != StateOffline {
		t.Fatalf("after 4 failures: %+v", s)
	}

	p.ok.Store(true)
	m.CheckAvailability(ctx)
	if s := m.State(); s.State != StateOnline || s.ConsecutiveFailures != 0 {
		t.Fatalf("after success: %+v", s)
	}
}

func TestNoTransportIsOffline(t *testing.T) {
	var p toggle
	p.ok.Store(true)
	m := NewMonitor(Config{Probes: []Probe{p.probe("p")}, Executor: fastExecutor(), Transport: always(false)})

	if m.CheckAvailability(context.Background()) {
		t.Fatal("CheckAvailability = true without transport")
	}
	if s := m.State(); s.State != StateOffline {
		t.Errorf("state = %v, want offline", s.State)
	}
	if p.calls.Load() != 0 {
		t.Error("probe ran without transport")
	}
}

func TestNetworkSignals(t *testing.T) {
	var p toggle
	m := NewMonitor(Config{Probes: []Probe{p.probe("p")}, Executor: fastExecutor(), Transport: always(true)})
	ctx := context.Background()

	m.NetworkLost()
	if m.State().State != StateOffline {
		t.Fatalf("state = %v, want offline", m.State().State)
	}

	// Restored but the service still fails: Degraded, not Offline.
	if m.NetworkRestored(ctx) {
		t.Fatal("NetworkRestored = true while probe fails")
	}
	if s := m.State(); s.State != StateDegraded || s.ConsecutiveFailures != 1 {
		t.Errorf("state = %+v", s)
	}

	p.ok.Store(true)
	if !m.NetworkRestored(ctx) || m.State().State != StateOnline {
		t.Errorf("state = %+v, want online", m.State())
	}
}

func TestWaitForConnectionImmediate(t *testing.T) {
	var p toggle
	p.ok.Store(true)
	m := NewMonitor(Config{Probes: []Probe{p.probe("p")}, Executor: fastExecutor(), Transport: always(true)})
	m.CheckAvailability(context.Background())
	calls := p.calls.Load()

	if !m.WaitForConnection(context.Background(), time.Second) {
		t.Fatal("WaitForConnection = false while online")
	}
	if p.calls.Load() != calls {
		t.Error("WaitForConnection probed while already online")
	}
}

func TestWaitForConnectionTimesOut(t *testing.T) {
	var p toggle
	m := NewMonitor(Config{Probes: []Probe{p.probe("p")}, Executor: fastExecutor(), Transport: always(true)})

	start := time.Now()
	if m.WaitForConnection(context.Background(), 80*time.Millisecond) {
		t.Fatal("WaitForConnection = true while unreachable")
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond || elapsed > time.Second {
		t.Errorf("returned after %v", elapsed)
	}
}

func TestWaitForConnectionSeesLaterOnline(t *testing.T) {
	var p toggle
	m := NewMonitor(Config{Probes: []Probe{p.probe("p")}, Executor: fastExecutor(), Transport: always(true)})

	go func() {
		time.Sleep(50 * time.Millisecond)
		p.ok.Store(true)
		m.NetworkRestored(context.Background())
	}()

	if !m.WaitForConnection(context.Background(), 2*time.Second) {
		t.Fatal("WaitForConnection = false, want true after restore")
	}
}

func TestSubscribeReceivesChanges(t *testing.T) {
	var p toggle
	p.ok.Store(true)
	m := NewMonitor(Config{Probes: []Probe{p.probe("p")}, Executor: fastExecutor(), Transport: always(true)})
	ch, cancel := m.Subscribe()
	defer cancel()

	m.CheckAvailability(context.Background())
	select {
	case s := <-ch:
		if s.State != StateOnline {
			t.Errorf("state = %v, want online", s.State)
		}
	case <-time.After(time.Second):
		t.Fatal("no state change delivered")
	}

	// Unchanged state is not re-announced.
	m.CheckAvailability(context.Background())
	select {
	case s := <-ch:
		t.Errorf("unexpected notification %+v", s)
	default:
	}

	cancel()
	cancel()
	if _, open := <-ch; open {
		t.Error("channel still open after cancel")
	}
}

func TestStateText(t *testing.T) {
	for _, s := range []State{StateUnknown, StateOnline, StateDegraded, StateOffline} {
		b, _ := s.MarshalText()
		var got State
		if err := got.UnmarshalText(b); err != nil || got != s {
			t.Errorf("round trip %v: got %v, %v", s, got, err)
		}
	}
	var s State
	if err := s.UnmarshalText([]byte("sideways")); err == nil {
		t.Error("expected error for unknown state")
	}
}

type tableRecorder struct{ tables []string }

func (r *tableRecorder) Probe(ctx context.Context, table string) error {
	r.tables = append(r.tables, table)
	return errors.New("network unreachable")
}

func TestTableProbesOrder(t *testing.T) {
	rec := &tableRecorder{}
	m := NewMonitor(Config{Probes: TableProbes(rec), Executor: fastExecutor(), Transport: always(true)})

	m.CheckAvailability(context.Background())

	want := []string{"community_categories", "categories", "communities"}
	if len(rec.tables) != len(want) {
		t.Fatalf("probed %v, want %v", rec.tables, want)
	}
	for i := range want {
		if rec.tables[i] != want[i] {
			t.Errorf("probe %d = %q, want %q", i, rec.tables[i], want[i])
		}
	}
}
