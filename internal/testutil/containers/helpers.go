//go:build integration

package containers

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

// PingTCP dials host:port once.
func PingTCP(host string, port int) error {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), 2*time.Second)
	if err != nil {
		return err
	}
	return conn.Close()
}

// RetryWithBackoff calls fn until it succeeds, doubling the delay from
// initialDelay up to maxDelay between attempts.
func RetryWithBackoff(ctx context.Context, maxAttempts int, initialDelay, maxDelay time.Duration, fn func() error) error {
	var lastErr error
	delay := initialDelay

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w (last error: %w)", ctx.Err(), lastErr)
		case <-time.After(delay):
			delay = min(delay*2, maxDelay)
		}
	}
	return fmt.Errorf("max attempts (%d) reached: %w", maxAttempts, lastErr)
}
