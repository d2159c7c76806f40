package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/StoicSim/brainwave/internal/calibration"
	"github.com/StoicSim/brainwave/internal/dsp"
	"github.com/StoicSim/brainwave/internal/headset"
	"github.com/StoicSim/brainwave/internal/storage"
	"github.com/StoicSim/brainwave/internal/telemetry"
	"github.com/StoicSim/brainwave/internal/thinkgear"
)

const (
	defaultMaxBatchSize  = 10
	defaultBufferSeconds = 4

	snapshotInterval = time.Second
)

// WithMaxBatchSize sets the number of metric snapshots accumulated before they
// are written to the database in a single transaction.
func WithMaxBatchSize(size int) func(*Orchestrator) {
	return func(o *Orchestrator) {
		if size > 0 {
			o.maxBatchSize = size
		}
	}
}

// WithBufferSeconds sets how many seconds of raw samples the live analysis
// ring retains.
func WithBufferSeconds(seconds int) func(*Orchestrator) {
	return func(o *Orchestrator) {
		if seconds > 0 {
			o.bufferSeconds = seconds
		}
	}
}

// LiveView is the snapshot served to websocket clients: the latest eSense
// telemetry merged with the most recent computed spectrum.
type LiveView struct {
	Telemetry   *telemetry.Telemetry `json:"telemetry"`
	AlphaPeakHz float64              `json:"alphaPeakHz"`
	AlphaPower  float64              `json:"alphaPower"`
	Frequencies []float64            `json:"frequencies,omitempty"`
	Power       []float64            `json:"power,omitempty"`
	Decoder     thinkgear.Stats      `json:"decoder"`
}

// Orchestrator runs the ingestion pipeline for one headset: decoded packets
// update the telemetry state and feed the raw-sample ring, spectra are
// recomputed as the ring fills, and per-second snapshots are batched into
// the database.
type Orchestrator struct {
	headset  *headset.Headset
	analyzer *dsp.Analyzer
	store    *storage.Store
	state    *telemetry.State
	ring     *dsp.SampleRing
	logger   *slog.Logger

	maxBatchSize  int
	bufferSeconds int
	sessionID     int64
	config        any

	mu           sync.RWMutex
	lastSpectrum *dsp.PowerSpectrum
	alphaPeakHz  float64
	alphaPower   float64
}

// NewOrchestrator creates an Orchestrator. The config value is stored with the
// session record for later reference.
func NewOrchestrator(hs *headset.Headset, analyzer *dsp.Analyzer, store *storage.Store, config any, logger *slog.Logger, options ...func(*Orchestrator)) (*Orchestrator, error) {
	o := Orchestrator{
		headset:       hs,
		analyzer:      analyzer,
		store:         store,
		state:         telemetry.NewState(),
		logger:        logger,
		maxBatchSize:  defaultMaxBatchSize,
		bufferSeconds: defaultBufferSeconds,
		config:        config,
	}

	for _, option := range options {
		option(&o)
	}

	ring, err := dsp.NewSampleRing(o.bufferSeconds * int(analyzer.SampleRate()))
	if err != nil {
		return nil, fmt.Errorf("creating sample ring: %w", err)
	}
	o.ring = ring

	return &o, nil
}

// SessionID returns the database session created by Run, or zero before Run.
func (o *Orchestrator) SessionID() int64 { return o.sessionID }

// Live returns the current view for streaming clients.
func (o *Orchestrator) Live() LiveView {
	o.mu.RLock()
	defer o.mu.RUnlock()

	view := LiveView{
		Telemetry:   o.state.Get(),
		AlphaPeakHz: o.alphaPeakHz,
		AlphaPower:  o.alphaPower,
		Decoder:     o.headset.Stats(),
	}
	if o.lastSpectrum != nil {
		view.Frequencies = o.lastSpectrum.Frequencies
		view.Power = o.lastSpectrum.Power
	}
	return view
}

// Run begins streaming and blocks until the context is cancelled or the
// stream terminates. Pending metric snapshots are flushed before returning.
func (o *Orchestrator) Run(ctx context.Context) error {
	sessionID, err := o.store.CreateSession(ctx, "thinkgear", o.headset.DeviceID(), o.config)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	o.sessionID = sessionID

	packets := make(chan thinkgear.SensorPacket, 64)
	done, err := o.headset.BeginStreaming(ctx, packets)
	if err != nil {
		return fmt.Errorf("starting stream: %w", err)
	}

	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()

	var pending []storage.MetricData
	var sinceSpectrum int

	flush := func() {
		if len(pending) == 0 {
			return
		}
		// Shutdown must still be able to flush after ctx is cancelled.
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := o.store.BatchInsertMetrics(flushCtx, pending); err != nil {
			o.logger.Error("storing metrics", slog.Any("error", err))
		}
		pending = pending[:0]
	}
	defer flush()

	for {
		select {
		case <-ctx.Done():
			o.headset.Stop()
			<-done
			return nil

		case err, ok := <-done:
			if ok && err != nil {
				return fmt.Errorf("stream terminated: %w", err)
			}
			o.logger.Info("stream drained")
			return nil

		case pkt := <-packets:
			o.state.Update(pkt, time.Now())
			if pkt.RawEEG != nil {
				o.ring.Append(float64(*pkt.RawEEG))
				sinceSpectrum++
				if sinceSpectrum >= o.analyzer.WindowSize()/2 {
					sinceSpectrum = 0
					o.refreshSpectrum()
				}
			}

		case <-ticker.C:
			pending = append(pending, o.snapshot())
			if len(pending) >= o.maxBatchSize {
				flush()
			}
		}
	}
}

func (o *Orchestrator) refreshSpectrum() {
	// The live view reflects the last window only; the ring's longer history
	// stays available for consumers that want a smoothed estimate.
	spectrum, err := o.analyzer.Spectrum(o.ring.Tail(o.analyzer.WindowSize()))
	if err != nil {
		return // not enough samples buffered yet
	}
	freqHz, power := calibration.AlphaPeak(spectrum)

	o.mu.Lock()
	o.lastSpectrum = spectrum
	o.alphaPeakHz = freqHz
	o.alphaPower = power
	o.mu.Unlock()
}

func (o *Orchestrator) snapshot() storage.MetricData {
	t := o.state.Get()

	m := storage.MetricData{
		SessionID: o.sessionID,
		Timestamp: time.Now().UTC(),
	}
	if t.PoorSignal != nil {
		m.PoorSignal = sql.NullInt64{Int64: int64(*t.PoorSignal), Valid: true}
	}
	if t.Attention != nil {
		m.Attention = sql.NullInt64{Int64: int64(*t.Attention), Valid: true}
	}
	if t.Meditation != nil {
		m.Meditation = sql.NullInt64{Int64: int64(*t.Meditation), Valid: true}
	}
	if t.BandPowers != nil {
		for i, p := range t.BandPowers {
			m.BandPowers[i] = sql.NullInt64{Int64: int64(p), Valid: true}
		}
	}

	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.lastSpectrum != nil {
		m.AlphaPeakHz = sql.NullFloat64{Float64: o.alphaPeakHz, Valid: true}
		for i := range m.PSD {
			m.PSD[i] = sql.NullFloat64{
				Float64: o.lastSpectrum.PowerAt(float64(6 + i)),
				Valid:   true,
			}
		}
	}
	return m
}
