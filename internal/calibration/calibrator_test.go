package calibration

import (
	"errors"
	"math"
	"testing"

	"github.com/StoicSim/brainwave/internal/dsp"
)

func newTestAnalyzer(t *testing.T) *dsp.Analyzer {
	t.Helper()
	a, err := dsp.NewAnalyzer(512)
	if err != nil {
		t.Fatalf("failed to create analyzer: %v", err)
	}
	return a
}

func sine(freq, amplitude float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/512)
	}
	return out
}

func TestCalibrator_SuccessfulRun(t *testing.T) {
	c := NewCalibrator(newTestAnalyzer(t))

	if err := c.BeginRest(); err != nil {
		t.Fatalf("BeginRest: %v", err)
	}
	c.Append(sine(10, 100, 512*4)...) // strong alpha at rest

	if err := c.BeginTask(); err != nil {
		t.Fatalf("BeginTask: %v", err)
	}
	c.Append(sine(10, 20, 512*4)...) // suppressed during task

	result, err := c.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if c.State() != StateSucceeded {
		t.Errorf("expected state succeeded, got %s", c.State())
	}
	if result.FrequencyHz != 10.0 {
		t.Errorf("expected IAF at 10 Hz, got %f", result.FrequencyHz)
	}
	if result.Desynchronization <= 0 {
		t.Errorf("expected positive desynchronization, got %f", result.Desynchronization)
	}
	if result.PowerAtFrequency <= 0 {
		t.Errorf("expected positive rest power, got %f", result.PowerAtFrequency)
	}
}

func TestCalibrator_IdenticalSpectraFail(t *testing.T) {
	c := NewCalibrator(newTestAnalyzer(t))

	// Identical rest and task signals give identical spectra: no bin shows
	// strict suppression anywhere in the search band.
	signal := sine(10, 100, 512*2)

	if err := c.BeginRest(); err != nil {
		t.Fatal(err)
	}
	c.Append(signal...)
	if err := c.BeginTask(); err != nil {
		t.Fatal(err)
	}
	c.Append(signal...)

	_, err := c.Finish()
	if !errors.Is(err, ErrIAFNotFound) {
		t.Fatalf("expected ErrIAFNotFound, got %v", err)
	}
	if c.State() != StateFailed {
		t.Errorf("expected state failed, got %s", c.State())
	}
}

func TestCalibrator_InsufficientData(t *testing.T) {
	c := NewCalibrator(newTestAnalyzer(t))

	if err := c.BeginRest(); err != nil {
		t.Fatal(err)
	}
	c.Append(sine(10, 100, 100)...) // far short of one window
	if err := c.BeginTask(); err != nil {
		t.Fatal(err)
	}
	c.Append(sine(10, 100, 1024)...)

	_, err := c.Finish()
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestCalibrator_StateMachine(t *testing.T) {
	c := NewCalibrator(newTestAnalyzer(t))

	if c.State() != StateIdle {
		t.Fatalf("expected idle, got %s", c.State())
	}

	// Out-of-order transitions are rejected.
	if err := c.BeginTask(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("BeginTask from idle: expected ErrInvalidTransition, got %v", err)
	}
	if _, err := c.Finish(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Finish from idle: expected ErrInvalidTransition, got %v", err)
	}

	if err := c.BeginRest(); err != nil {
		t.Fatal(err)
	}
	if err := c.BeginRest(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("BeginRest twice: expected ErrInvalidTransition, got %v", err)
	}

	// Samples outside a collecting phase are dropped silently.
	c.Abort()
	c.Append(1, 2, 3)
	if c.State() != StateIdle {
		t.Errorf("expected idle after abort, got %s", c.State())
	}

	// A failed attempt can be restarted.
	if err := c.BeginRest(); err != nil {
		t.Fatal(err)
	}
	if err := c.BeginTask(); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Finish(); err == nil {
		t.Fatal("expected failure with empty buffers")
	}
	if err := c.BeginRest(); err != nil {
		t.Errorf("restart after failure: %v", err)
	}
}

func TestCalibrator_AbortDiscardsData(t *testing.T) {
	c := NewCalibrator(newTestAnalyzer(t))

	if err := c.BeginRest(); err != nil {
		t.Fatal(err)
	}
	c.Append(sine(10, 100, 2048)...)
	c.Abort()

	if result, err := c.Result(); result != nil || err != nil {
		t.Errorf("expected no result after abort, got %v / %v", result, err)
	}
}

func TestCalibrator_AbortDuringProcessing(t *testing.T) {
	c := NewCalibrator(newTestAnalyzer(t))

	if err := c.BeginRest(); err != nil {
		t.Fatal(err)
	}
	c.Append(sine(10, 100, 512*8)...)
	if err := c.BeginTask(); err != nil {
		t.Fatal(err)
	}
	c.Append(sine(10, 20, 512*8)...)

	// Abort and restart collection while Finish is computing the spectra.
	// The attempt in flight must not read buffers the new phase writes to,
	// and its outcome must not clobber the new phase.
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		_, _ = c.Finish()
	}()

	c.Abort()
	if err := c.BeginRest(); err != nil {
		t.Fatalf("BeginRest after abort: %v", err)
	}
	c.Append(sine(10, 100, 512*4)...)
	<-finished

	if c.State() != StateRestCollecting {
		t.Fatalf("expected restCollecting after restart, got %s", c.State())
	}

	// The restarted attempt must run to completion untouched.
	if err := c.BeginTask(); err != nil {
		t.Fatal(err)
	}
	c.Append(sine(10, 20, 512*4)...)

	result, err := c.Finish()
	if err != nil {
		t.Fatalf("Finish after restart: %v", err)
	}
	if result.FrequencyHz != 10.0 {
		t.Errorf("expected IAF at 10 Hz, got %f", result.FrequencyHz)
	}
}

func TestSelectIAF_MaxDesyncWins(t *testing.T) {
	// Hand-built spectra with 1 Hz bins: 10 Hz drops 100 -> 40 (desync 60),
	// 9 Hz drops 80 -> 50 (desync 30). 10 Hz must win.
	rest := flatSpectrum(30, 1.0)
	task := flatSpectrum(30, 1.0)
	rest.Power[9], task.Power[9] = 80, 50
	rest.Power[10], task.Power[10] = 100, 40

	result, err := selectIAF(rest, task)
	if err != nil {
		t.Fatalf("selectIAF: %v", err)
	}
	if result.FrequencyHz != 10.0 {
		t.Errorf("expected 10 Hz, got %f", result.FrequencyHz)
	}
	if result.PowerAtFrequency != 100.0 {
		t.Errorf("expected rest power 100, got %f", result.PowerAtFrequency)
	}
	if result.Desynchronization != 60.0 {
		t.Errorf("expected desync 60, got %f", result.Desynchronization)
	}
}

func TestSelectIAF_TieBreaksToLowestFrequency(t *testing.T) {
	rest := flatSpectrum(30, 1.0)
	task := flatSpectrum(30, 1.0)
	rest.Power[9], task.Power[9] = 90, 40 // desync 50
	rest.Power[12], task.Power[12] = 90, 40

	result, err := selectIAF(rest, task)
	if err != nil {
		t.Fatalf("selectIAF: %v", err)
	}
	if result.FrequencyHz != 9.0 {
		t.Errorf("expected tie broken to 9 Hz, got %f", result.FrequencyHz)
	}
}

func TestSelectIAF_SuppressionRequired(t *testing.T) {
	// Power rose everywhere in the search band: no valid candidate, even
	// though desync outside the band is irrelevant.
	rest := flatSpectrum(30, 1.0)
	task := flatSpectrum(30, 2.0)

	if _, err := selectIAF(rest, task); !errors.Is(err, ErrIAFNotFound) {
		t.Fatalf("expected ErrIAFNotFound, got %v", err)
	}
}

func TestSelectIAF_IgnoresBinsOutsideSearchBand(t *testing.T) {
	rest := flatSpectrum(30, 1.0)
	task := flatSpectrum(30, 1.0)
	rest.Power[3], task.Power[3] = 500, 0 // huge desync at 3 Hz, out of band
	rest.Power[11], task.Power[11] = 10, 5

	result, err := selectIAF(rest, task)
	if err != nil {
		t.Fatalf("selectIAF: %v", err)
	}
	if result.FrequencyHz != 11.0 {
		t.Errorf("expected 11 Hz, got %f", result.FrequencyHz)
	}
}

func TestAlphaPeak(t *testing.T) {
	spectrum := flatSpectrum(30, 0.5)
	spectrum.Power[11] = 9.0

	freq, power := AlphaPeak(spectrum)
	if freq != 11.0 || power != 9.0 {
		t.Errorf("expected peak 11 Hz / 9.0, got %f / %f", freq, power)
	}

	// No alpha-range bins: default, never an error.
	freq, power = AlphaPeak(&dsp.PowerSpectrum{
		Frequencies: []float64{0, 1, 2},
		Power:       []float64{1, 1, 1},
	})
	if freq != 10.0 || power != 0.0 {
		t.Errorf("expected default 10 Hz / 0.0, got %f / %f", freq, power)
	}
}

// flatSpectrum builds a spectrum with 1 Hz bins from 0 to n-1 Hz.
func flatSpectrum(n int, power float64) *dsp.PowerSpectrum {
	ps := dsp.PowerSpectrum{
		Frequencies: make([]float64, n),
		Power:       make([]float64, n),
	}
	for k := range ps.Frequencies {
		ps.Frequencies[k] = float64(k)
		ps.Power[k] = power
	}
	return &ps
}
