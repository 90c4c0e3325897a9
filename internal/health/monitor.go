// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package health

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"agora/internal/resilience"
)

// Probe is one cheap read proving the data service answers.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// TableProber reads one row from a named table.
type TableProber interface {
	Probe(ctx context.Context, table string) error
}

// DefaultProbeTables are read in this order until one answers.
var DefaultProbeTables = []string{"community_categories", "categories", "communities"}

// TableProbes builds one probe per table.
func TableProbes(p TableProber, tables ...string) []Probe {
	if len(tables) == 0 {
		tables = DefaultProbeTables
	}
	probes := make([]Probe, 0, len(tables))
	for _, table := range tables {
		probes = append(probes, Probe{
			Name: table,
			Check: func(ctx context.Context) error {
				return p.Probe(ctx, table)
			},
		})
	}
	return probes
}

// Transport reports whether the host has any usable network at all.
type Transport func() bool

// InterfacesUp reports whether any non-loopback interface is up.
func InterfacesUp() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagLoopback == 0 {
			return true
		}
	}
	return false
}

// Config configures a Monitor.
type Config struct {
	// Probes are tried in order until one succeeds.
	Probes []Probe

	// Executor runs each probe. Its budget is shortened for probing.
	Executor *resilience.Executor

	// Transport defaults to InterfacesUp.
	Transport Transport

	// Registerer receives the monitor's metrics. Nil leaves them
	// unregistered.
	Registerer prometheus.Registerer
}

// Monitor tracks the reachability of the data service.
type Monitor struct {
	probes    []Probe
	exec      *resilience.Executor
	transport Transport
	now       func() time.Time

	mu        sync.Mutex
	state     ConnectionState
	subs      map[int]chan ConnectionState
	nextSub   int
	keepAlive *KeepAlive

	stateGauge prometheus.Gauge
	failures   prometheus.Counter
}

// NewMonitor creates a monitor in the Unknown state.
func NewMonitor(cfg Config) *Monitor {
	exec := cfg.Executor
	if exec == nil {
		exec = resilience.New(resilience.DefaultOptions(), nil)
	}
	// A probe is a liveness hint, not a query worth waiting on.
	exec = exec.With(func(o *resilience.Options) {
		o.MaxAttempts = min(o.MaxAttempts, 2)
		o.InitialDelay = min(o.InitialDelay, 250*time.Millisecond)
		o.MaxDelay = min(o.MaxDelay, 250*time.Millisecond)
		o.Timeout = min(o.Timeout, 5*time.Second)
	})

	transport := cfg.Transport
	if transport == nil {
		transport = InterfacesUp
	}

	f := promauto.With(cfg.Registerer)
	m := &Monitor{
		probes:    cfg.Probes,
		exec:      exec,
		transport: transport,
		now:       time.Now,
		subs:      make(map[int]chan ConnectionState),
		stateGauge: f.NewGauge(prometheus.GaugeOpts{
			Name: "agora_connection_state",
			Help: "Data service reachability: 0 unknown, 1 online, 2 degraded, 3 offline.",
		}),
		failures: f.NewCounter(prometheus.CounterOpts{
			Name: "agora_connection_probe_failures_total",
			Help: "Availability checks in which every probe failed.",
		}),
	}
	return m
}

// State returns the current snapshot.
func (m *Monitor) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CheckAvailability runs the probes once and reports whether one of them
// succeeded. It never returns an error and never panics.
func (m *Monitor) CheckAvailability(ctx context.Context) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("availability check panicked", "panic", r)
			m.recordFailure(true)
			ok = false
		}
	}()

	transportUp := m.transport()
	if !transportUp {
		slog.Debug("no network transport")
		m.recordFailure(false)
		return false
	}

	if len(m.probes) == 0 {
		m.recordSuccess()
		return true
	}

	for _, p := range m.probes {
		err := m.exec.Run(ctx, p.Check)
		if err == nil {
			m.recordSuccess()
			return true
		}
		slog.Debug("probe failed", "probe", p.Name, "error", err)
		if ctx.Err() != nil {
			break
		}
	}

	m.recordFailure(true)
	return false
}

// NetworkRestored reacts to the host regaining network: the failure count
// is reset and the service is probed, ending Online or Degraded.
func (m *Monitor) NetworkRestored(ctx context.Context) bool {
	m.mu.Lock()
	m.state.ConsecutiveFailures = 0
	m.mu.Unlock()
	slog.Info("network restored, probing data service")
	return m.CheckAvailability(ctx)
}

// NetworkLost reacts to the host losing network by going Offline.
func (m *Monitor) NetworkLost() {
	slog.Warn("network lost")
	m.update(func(s *ConnectionState) {
		s.State = StateOffline
		s.IsOnline = false
		s.LastCheckedAt = m.now()
	})
}

// WaitForConnection reports whether the service is, or becomes, Online
// within timeout. A probe is started if the monitor is not already
// Online. It never returns an error.
func (m *Monitor) WaitForConnection(ctx context.Context, timeout time.Duration) bool {
	if m.State().State == StateOnline {
		return true
	}

	ch, cancel := m.Subscribe()
	defer cancel()

	ctx, stop := context.WithTimeout(ctx, timeout)
	defer stop()

	// Re-check after subscribing so a transition in between is not lost.
	if m.State().State == StateOnline {
		return true
	}
	go m.CheckAvailability(ctx)

	for {
		select {
		case s, open := <-ch:
			if !open {
				return false
			}
			if s.State == StateOnline {
				return true
			}
		case <-ctx.Done():
			return m.State().State == StateOnline
		}
	}
}

// Subscribe returns a channel receiving every state change, and a function
// that ends the subscription. A subscriber that falls behind misses
// intermediate states but always receives the latest one.
func (m *Monitor) Subscribe() (<-chan ConnectionState, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSub
	m.nextSub++
	ch := make(chan ConnectionState, 1)
	m.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if c, ok := m.subs[id]; ok {
				delete(m.subs, id)
				close(c)
			}
		})
	}
}

// Close stops the keep-alive loop and ends every subscription.
func (m *Monitor) Close() {
	m.mu.Lock()
	ka := m.keepAlive
	m.keepAlive = nil
	m.mu.Unlock()

	if ka != nil {
		ka.Stop()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.subs {
		delete(m.subs, id)
		close(c)
	}
}

func (m *Monitor) recordSuccess() {
	m.update(func(s *ConnectionState) {
		s.State = StateOnline
		s.IsOnline = true
		s.ConsecutiveFailures = 0
		s.LastCheckedAt = m.now()
	})
}

func (m *Monitor) recordFailure(transportUp bool) {
	m.failures.Inc()
	m.update(func(s *ConnectionState) {
		s.ConsecutiveFailures++
		s.State = stateAfterFailure(s.ConsecutiveFailures, transportUp)
		s.IsOnline = false
		s.LastCheckedAt = m.now()
	})
}

// update applies fn to the state and notifies subscribers when the state
// name changed.
func (m *Monitor) update(fn func(*ConnectionState)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.state.State
	fn(&m.state)
	m.stateGauge.Set(float64(m.state.State))

	if m.state.State == prev {
		return
	}
	slog.Info("connection state changed",
		"from", prev.String(),
		"to", m.state.State.String(),
		"failures", m.state.ConsecutiveFailures,
	)
	for _, c := range m.subs {
		// Replace an unread state with the newest one.
		select {
		case <-c:
		default:
		}
		c <- m.state
	}
}
