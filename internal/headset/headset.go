// Package headset runs the ingestion loop between a byte-chunk source (a BLE
// bridge, a TCP forwarder or a recorded dump) and the protocol decoder.
package headset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"

	"github.com/StoicSim/brainwave/internal/thinkgear"
)

const (
	// DefaultChunkSize is the read size per source read. BLE notification
	// payloads are at most 20 bytes on most stacks; reads larger than one
	// notification simply batch several of them.
	DefaultChunkSize = 256

	// ChecksumFailureThreshold is the run of consecutive checksum failures
	// without a single decoded packet after which streaming aborts. A lossy
	// link corrupts occasional frames; a wall of failures means the source
	// is not speaking the protocol at all.
	ChecksumFailureThreshold = 64
)

// ErrTooManyChecksumErrors is returned when the consecutive checksum failure
// threshold is exceeded.
var ErrTooManyChecksumErrors = errors.New("too many consecutive checksum failures")

// Source delivers the opaque byte stream of one headset connection.
// Connection management (pairing, subscriptions) happens behind Open.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	Name() string
}

// WithLogger sets the logger for the headset.
func WithLogger(logger *slog.Logger) func(*Headset) {
	return func(h *Headset) {
		h.logger = logger.With(
			slog.String("source", h.source.Name()),
			slog.String("deviceID", h.deviceID),
		)
	}
}

// WithChunkSize sets the per-read buffer size.
func WithChunkSize(n int) func(*Headset) {
	return func(h *Headset) {
		if n > 0 {
			h.chunkSize = n
		}
	}
}

// WithChecksumFailureThreshold sets the consecutive checksum failure limit.
func WithChecksumFailureThreshold(n uint64) func(*Headset) {
	return func(h *Headset) {
		if n > 0 {
			h.failureThreshold = n
		}
	}
}

// Headset owns one decoder instance and one source, and pumps decoded packets
// to a channel. It can be started and stopped; the decoder state is reset on
// every start so a reconnect never inherits a stale partial frame.
type Headset struct {
	deviceID string
	source   Source
	decoder  *thinkgear.Decoder

	isStreaming atomic.Bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup

	chunkSize        int
	failureThreshold uint64
	logger           *slog.Logger
}

// NewHeadset creates a Headset with a discard logger.
func NewHeadset(deviceID string, source Source, options ...func(*Headset)) *Headset {
	h := Headset{
		deviceID:         deviceID,
		source:           source,
		decoder:          thinkgear.NewDecoder(),
		chunkSize:        DefaultChunkSize,
		failureThreshold: ChecksumFailureThreshold,
		logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&h)
	}

	return &h
}

// DeviceID returns the headset identifier used for session bookkeeping.
func (h *Headset) DeviceID() string { return h.deviceID }

// Stats returns the decoder counters of the current or last stream.
func (h *Headset) Stats() thinkgear.Stats { return h.decoder.Stats() }

// BeginStreaming opens the source and pumps decoded packets into the packets
// channel until the context is cancelled, the source drains, or decoding
// degrades past the failure threshold. The returned channel is closed when
// streaming ends and carries the terminal error, if any.
func (h *Headset) BeginStreaming(ctx context.Context, packets chan<- thinkgear.SensorPacket) (<-chan error, error) {
	if h.isStreaming.Load() {
		return nil, fmt.Errorf("headset is already streaming")
	}
	h.isStreaming.Store(true)

	ctx, h.cancel = context.WithCancel(ctx)

	stream, err := h.source.Open(ctx)
	if err != nil {
		h.isStreaming.Store(false)
		h.cancel()
		return nil, fmt.Errorf("opening source: %w", err)
	}

	h.decoder.Reset()
	streamingStopped := make(chan error, 1)

	// Closing the stream is what unblocks a pending Read on cancellation;
	// sources are not required to honor the context mid-read.
	go func() {
		<-ctx.Done()
		_ = stream.Close()
	}()

	h.wg.Add(1)
	go func() {
		defer close(streamingStopped)
		defer h.wg.Done()
		defer h.cancel()

		h.logger.Info("starting packet stream")
		err := h.pump(ctx, stream, packets)

		stats := h.decoder.Stats()
		h.logger.Info("packet stream stopped",
			slog.String("packets", humanize.Comma(int64(stats.PacketsDecoded))),
			slog.String("checksumFailures", humanize.Comma(int64(stats.ChecksumFailures))),
			slog.String("discarded", humanize.Bytes(stats.BytesDiscarded)))

		h.isStreaming.Store(false)
		if err != nil && !errors.Is(err, context.Canceled) {
			h.logger.Error(err.Error())
			streamingStopped <- err
		}
	}()

	return streamingStopped, nil
}

// Stop cancels streaming and waits for the pump goroutine to exit.
func (h *Headset) Stop() {
	if !h.isStreaming.Load() {
		return
	}

	h.cancel()
	h.wg.Wait()
}

// IsStreaming reports whether the pump goroutine is running.
func (h *Headset) IsStreaming() bool {
	return h.isStreaming.Load()
}

func (h *Headset) pump(ctx context.Context, stream io.Reader, packets chan<- thinkgear.SensorPacket) error {
	buf := make([]byte, h.chunkSize)
	var failureRun uint64
	lastFailures := h.decoder.Stats().ChecksumFailures

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		n, err := stream.Read(buf)
		if n > 0 {
			decoded := h.decoder.Feed(buf[:n])

			stats := h.decoder.Stats()
			failureRun += stats.ChecksumFailures - lastFailures
			lastFailures = stats.ChecksumFailures
			if len(decoded) > 0 {
				failureRun = 0
			}
			if failureRun >= h.failureThreshold {
				return fmt.Errorf("%w: %d in a row", ErrTooManyChecksumErrors, failureRun)
			}

			for _, pkt := range decoded {
				select {
				case packets <- pkt:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil // source drained (replay files end; live links do not)
			}
			if ctx.Err() != nil {
				return ctx.Err() // read failed because cancellation closed the stream
			}
			return fmt.Errorf("reading source: %w", err)
		}
	}
}
