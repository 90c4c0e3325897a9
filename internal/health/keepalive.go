// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package health

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultKeepAliveInterval is the probe interval when none is given.
const DefaultKeepAliveInterval = 25 * time.Second

// KeepAlive is a running keep-alive loop.
type KeepAlive struct {
	monitor *Monitor
	stopCh  chan struct{}
	done    chan struct{}
	once    sync.Once
}

// StartKeepAlive starts probing every interval so idle connections are not
// torn down. A monitor owns at most one loop: starting a new one stops the
// previous. The loop also watches the network transport and raises
// NetworkLost and NetworkRestored on transitions.
func (m *Monitor) StartKeepAlive(interval time.Duration) *KeepAlive {
	if interval <= 0 {
		interval = DefaultKeepAliveInterval
	}

	ka := &KeepAlive{
		monitor: m,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}

	m.mu.Lock()
	prev := m.keepAlive
	m.keepAlive = ka
	m.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}

	go ka.run(interval)
	slog.Info("keep-alive started", "interval", interval.String())
	return ka
}

func (ka *KeepAlive) run(interval time.Duration) {
	defer close(ka.done)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-ka.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	m := ka.monitor
	transportUp := m.transport()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ka.stopCh:
			return
		case <-ticker.C:
		}

		up := m.transport()
		tctx, tcancel := context.WithTimeout(ctx, interval)
		switch {
		case transportUp && !up:
			m.NetworkLost()
		case !transportUp && up:
			m.NetworkRestored(tctx)
		case up:
			m.CheckAvailability(tctx)
		}
		tcancel()
		transportUp = up
	}
}

// Stop ends the loop and waits for it to exit. Safe to call more than once.
func (ka *KeepAlive) Stop() {
	ka.once.Do(func() {
		close(ka.stopCh)
		<-ka.done

		m := ka.monitor
		m.mu.Lock()
		if m.keepAlive == ka {
			m.keepAlive = nil
		}
		m.mu.Unlock()
		slog.Info("keep-alive stopped")
	})
}

// Running reports whether ka is the monitor's active loop.
func (m *Monitor) Running(ka *KeepAlive) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keepAlive == ka && ka != nil
}
