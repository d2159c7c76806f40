package headset

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"
)

const (
	defaultDialTimeout   = 5 * time.Second
	defaultRetryInterval = time.Second
	defaultRetryMax      = 30 * time.Second
)

// TCPSource connects to a bridge (typically a phone app) that forwards the
// headset's notification bytes over TCP. Dialing retries with linear backoff
// until the context is cancelled; once connected, a read failure ends the
// stream and the host decides whether to restart.
type TCPSource struct {
	addr string

	dialTimeout   time.Duration
	retryInterval time.Duration
	retryMax      time.Duration
}

// WithDialTimeout sets the per-attempt dial timeout.
func WithDialTimeout(d time.Duration) func(*TCPSource) {
	return func(s *TCPSource) {
		if d > 0 {
			s.dialTimeout = d
		}
	}
}

// WithRetryInterval sets the base interval between dial attempts.
func WithRetryInterval(d time.Duration) func(*TCPSource) {
	return func(s *TCPSource) {
		if d > 0 {
			s.retryInterval = d
		}
	}
}

// NewTCPSource creates a source dialing the bridge at addr (host:port).
func NewTCPSource(addr string, options ...func(*TCPSource)) *TCPSource {
	s := TCPSource{
		addr:          addr,
		dialTimeout:   defaultDialTimeout,
		retryInterval: defaultRetryInterval,
		retryMax:      defaultRetryMax,
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

func (s *TCPSource) Name() string { return "tcp" }

func (s *TCPSource) Open(ctx context.Context) (io.ReadCloser, error) {
	dialer := net.Dialer{Timeout: s.dialTimeout}

	for attempt := 1; ; attempt++ {
		conn, err := dialer.DialContext(ctx, "tcp", s.addr)
		if err == nil {
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("dialing %s: %w", s.addr, ctx.Err())
		}

		wait := min(s.retryInterval*time.Duration(attempt), s.retryMax)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("dialing %s: %w", s.addr, ctx.Err())
		case <-timer.C:
		}
	}
}
