// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package resilience

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
)

// retriableStatus lists HTTP statuses worth another attempt.
var retriableStatus = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// retriableCodes lists network-style error codes a remote client may report.
var retriableCodes = map[string]bool{
	"ECONNRESET":   true,
	"ECONNREFUSED": true,
	"ECONNABORTED": true,
	"ETIMEDOUT":    true,
	"ENOTFOUND":    true,
	"EAI_AGAIN":    true,
	"EPIPE":        true,
}

// retriableKeywords is the last-resort check for errors that carry no
// structured status or code.
var retriableKeywords = []string{
	"timeout", "network", "connection", "offline", "unreachable",
	"refused", "reset", "aborted", "failed", "temporary",
}

// IsRetriable reports whether err looks transient. Structured information
// (HTTP status, SQLSTATE, network error types) decides first; the keyword
// scan only applies to errors that carry none.
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPanic) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var se *StatusError
	if errors.As(err, &se) {
		if se.Status != 0 {
			return retriableStatus[se.Status]
		}
		if se.Code != "" {
			return retriableCodes[strings.ToUpper(se.Code)] || retriableSQLState(se.Code)
		}
		return hasKeyword(se.Message)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return retriableSQLState(pgErr.SQLState())
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}

	if isNetworkError(err) {
		return true
	}
	return hasKeyword(err.Error())
}

// retriableSQLState covers connection exceptions (class 08), serialization
// and deadlock failures, lock timeouts, connection limits and server shutdown.
func retriableSQLState(code string) bool {
	if strings.HasPrefix(code, "08") {
		return true
	}
	switch code {
	case "40001", // serialization_failure
		"40P01", // deadlock_detected
		"55P03", // lock_not_available
		"53300", // too_many_connections
		"57P01", // admin_shutdown
		"57P02", // crash_shutdown
		"57P03": // cannot_connect_now
		return true
	}
	return false
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed)
}

func hasKeyword(msg string) bool {
	msg = strings.ToLower(msg)
	for _, kw := range retriableKeywords {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}
