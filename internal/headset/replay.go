package headset

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"
)

// ReplaySource replays a recorded headset byte-stream dump from disk,
// optionally pacing reads to approximate the live link.
type ReplaySource struct {
	path string
	pace time.Duration
}

// WithPacing delays each read by d, simulating notification cadence.
func WithPacing(d time.Duration) func(*ReplaySource) {
	return func(s *ReplaySource) {
		if d > 0 {
			s.pace = d
		}
	}
}

// NewReplaySource creates a source reading the dump at path.
func NewReplaySource(path string, options ...func(*ReplaySource)) *ReplaySource {
	s := ReplaySource{path: path}

	for _, option := range options {
		option(&s)
	}

	return &s
}

func (s *ReplaySource) Name() string { return "replay" }

func (s *ReplaySource) Open(ctx context.Context) (io.ReadCloser, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("opening replay file: %w", err)
	}

	if s.pace == 0 {
		return f, nil
	}
	return &pacedReader{ctx: ctx, inner: f, pace: s.pace}, nil
}

// pacedReader sleeps before each read so a replay does not flood the
// pipeline orders of magnitude faster than a live headset would.
type pacedReader struct {
	ctx   context.Context
	inner io.ReadCloser
	pace  time.Duration
}

func (r *pacedReader) Read(p []byte) (int, error) {
	timer := time.NewTimer(r.pace)
	defer timer.Stop()

	select {
	case <-r.ctx.Done():
		return 0, r.ctx.Err()
	case <-timer.C:
	}
	return r.inner.Read(p)
}

func (r *pacedReader) Close() error {
	return r.inner.Close()
}
