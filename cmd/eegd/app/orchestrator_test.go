package app

import (
	"context"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"testing"

	"github.com/StoicSim/brainwave/internal/dsp"
	"github.com/StoicSim/brainwave/internal/headset"
	"github.com/StoicSim/brainwave/internal/storage"
)

type nullSource struct{}

func (nullSource) Name() string                                { return "null" }
func (nullSource) Open(ctx context.Context) (io.ReadCloser, error) { return nil, io.EOF }

func sine(freq float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 * math.Sin(2*math.Pi*freq*float64(i)/512)
	}
	return out
}

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()

	analyzer, err := dsp.NewAnalyzer(512)
	if err != nil {
		t.Fatalf("creating analyzer: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hs := headset.NewHeadset("test-device", nullSource{})
	store := storage.New(filepath.Join(t.TempDir(), "test.sqlite"))

	o, err := NewOrchestrator(hs, analyzer, store, nil, logger, WithBufferSeconds(4))
	if err != nil {
		t.Fatalf("creating orchestrator: %v", err)
	}
	return o
}

func TestOrchestrator_LiveSpectrumTracksLatestWindow(t *testing.T) {
	o := newTestOrchestrator(t)

	// Three seconds of a 5 Hz tone followed by one full window of 10 Hz.
	// The live view reflects only the most recent window, so the old tone
	// must not bleed into it.
	o.ring.Append(sine(5, 512*3)...)
	o.ring.Append(sine(10, 512)...)
	o.refreshSpectrum()

	view := o.Live()
	if view.AlphaPeakHz != 10.0 {
		t.Errorf("expected alpha peak at 10 Hz, got %f", view.AlphaPeakHz)
	}

	o.mu.RLock()
	spectrum := o.lastSpectrum
	o.mu.RUnlock()
	if spectrum == nil {
		t.Fatal("expected a live spectrum")
	}
	if at5, at10 := spectrum.PowerAt(5), spectrum.PowerAt(10); at10 < 100*at5 {
		t.Errorf("stale tone dominates the live window: power(10)=%g power(5)=%g", at10, at5)
	}
}

func TestOrchestrator_LiveViewBeforeFirstWindow(t *testing.T) {
	o := newTestOrchestrator(t)

	o.ring.Append(sine(10, 100)...) // less than one window
	o.refreshSpectrum()

	view := o.Live()
	if view.Frequencies != nil || view.Power != nil {
		t.Error("expected no spectrum before a full window is buffered")
	}
}
