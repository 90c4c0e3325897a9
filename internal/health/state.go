// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package health keeps a best-effort view of whether the data service is
// reachable and keeps idle connections warm. It is advisory: nothing here
// returns an error or panics to its caller.
package health

import (
	"fmt"
	"time"
)

// State is the monitor's view of the data service.
type State int

const (
	StateUnknown State = iota
	StateOnline
	StateDegraded
	StateOffline
)

// maxDegradedFailures is the number of consecutive probe failures that
// still count as Degraded. One more and the service is Offline.
const maxDegradedFailures = 3

func (s State) String() string {
	switch s {
	case StateOnline:
		return "online"
	case StateDegraded:
		return "degraded"
	case StateOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "unknown":
		*s = StateUnknown
	case "online":
		*s = StateOnline
	case "degraded":
		*s = StateDegraded
	case "offline":
		*s = StateOffline
	default:
		return fmt.Errorf("unknown connection state %q", b)
	}
	return nil
}

// ConnectionState is a snapshot of the monitor.
type ConnectionState struct {
	State               State     `json:"state"`
	IsOnline            bool      `json:"is_online"`
	LastCheckedAt       time.Time `json:"last_checked_at"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
}

// stateAfterFailure is the state reached after failures consecutive probe
// failures.
func stateAfterFailure(failures int, transportUp bool) State {
	if !transportUp || failures > maxDegradedFailures {
		return StateOffline
	}
	return StateDegraded
}
