// Package cache provides the process-local query result cache and the
// Valkey-backed (Redis-compatible) sidebar listing cache.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
)

// The sidebar copy is advisory, so a slow Valkey must never hold up a
// request for long: calls fail fast and the caller reads the backend.
const (
	valkeyDialTimeout = 2 * time.Second
	valkeyIOTimeout   = 500 * time.Millisecond
)

// ConnectValkey creates a Valkey client and verifies it with a ping.
func ConnectValkey(ctx context.Context, host, port, password string) (*redis.Client, error) {
	addr := net.JoinHostPort(host, port)
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DialTimeout:  valkeyDialTimeout,
		ReadTimeout:  valkeyIOTimeout,
		WriteTimeout: valkeyIOTimeout,
		MaxRetries:   1,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("valkey ping %s: %w", addr, err)
	}

	slog.Info("valkey connected", "addr", addr)
	return client, nil
}
