// Package calibration implements Individual Alpha Frequency estimation using
// the channel reactivity-based method: spectral power during an eyes-closed
// rest phase is compared against a cognitively active task phase, and the
// frequency with the strongest task-related suppression wins.
package calibration

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/StoicSim/brainwave/internal/dsp"
)

const (
	// Alpha search band in Hz, wider than the canonical alpha bands to
	// tolerate individual variation.
	searchLowHz  = 6.0
	searchHighHz = 14.0

	// Instantaneous alpha peak range and fallback for live display.
	alphaPeakLowHz   = 8.0
	alphaPeakHighHz  = 13.0
	defaultAlphaPeak = 10.0
)

var (
	// ErrInsufficientData is returned when a phase buffer is shorter than
	// the analysis window. The caller may collect more data and retry.
	ErrInsufficientData = errors.New("insufficient calibration data")

	// ErrIAFNotFound is returned when no frequency in the search band shows
	// strict suppression during the task. Terminal for the attempt; the
	// usual causes are poor electrode contact or an unperformed task.
	ErrIAFNotFound = errors.New("no alpha desynchronization found")

	// ErrInvalidTransition is returned when a phase call does not match the
	// calibrator's current state.
	ErrInvalidTransition = errors.New("invalid calibration state transition")
)

// State is the calibrator lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRestCollecting
	StateTaskCollecting
	StateProcessing
	StateSucceeded
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:           "idle",
	StateRestCollecting: "restCollecting",
	StateTaskCollecting: "taskCollecting",
	StateProcessing:     "processing",
	StateSucceeded:      "succeeded",
	StateFailed:         "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Result is a completed IAF estimate.
type Result struct {
	FrequencyHz       float64 // frequency of maximal suppression
	PowerAtFrequency  float64 // rest-phase power at that frequency
	Desynchronization float64 // rest power minus task power
}

// WithLogger sets the logger for the calibrator.
func WithLogger(logger *slog.Logger) func(*Calibrator) {
	return func(c *Calibrator) {
		c.logger = logger
	}
}

// Calibrator accumulates raw samples over an externally driven rest phase and
// task phase, then estimates the IAF from their Welch-averaged spectra.
// Phase transitions and sample appends are serialized by an internal mutex so
// the ingestion goroutine and the host controller may call concurrently.
type Calibrator struct {
	analyzer *dsp.Analyzer
	logger   *slog.Logger

	mu     sync.Mutex
	state  State
	rest   []float64
	task   []float64
	result *Result
	err    error
}

// NewCalibrator creates an idle Calibrator backed by the given analyzer.
func NewCalibrator(analyzer *dsp.Analyzer, options ...func(*Calibrator)) *Calibrator {
	c := Calibrator{
		analyzer: analyzer,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&c)
	}

	return &c
}

// State returns the current lifecycle state.
func (c *Calibrator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// BeginRest starts the rest collection phase. Valid from Idle, or from a
// finished attempt (Succeeded/Failed) to start over.
func (c *Calibrator) BeginRest() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateIdle, StateSucceeded, StateFailed:
	default:
		return fmt.Errorf("%w: BeginRest from %s", ErrInvalidTransition, c.state)
	}

	c.rest = c.rest[:0]
	c.task = c.task[:0]
	c.result = nil
	c.err = nil
	c.state = StateRestCollecting

	c.logger.Info("calibration rest phase started")
	return nil
}

// BeginTask ends the rest phase and starts task collection.
func (c *Calibrator) BeginTask() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateRestCollecting {
		return fmt.Errorf("%w: BeginTask from %s", ErrInvalidTransition, c.state)
	}
	c.state = StateTaskCollecting

	c.logger.Info("calibration task phase started", slog.Int("restSamples", len(c.rest)))
	return nil
}

// Append adds raw samples to the buffer of the active collection phase.
// Samples arriving outside a collection phase are dropped: the stream keeps
// flowing between phases and that is not an error.
func (c *Calibrator) Append(samples ...float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateRestCollecting:
		c.rest = append(c.rest, samples...)
	case StateTaskCollecting:
		c.task = append(c.task, samples...)
	}
}

// Abort discards both phase buffers and returns to Idle. Safe in any state;
// no partial result survives.
func (c *Calibrator) Abort() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rest = c.rest[:0]
	c.task = c.task[:0]
	c.result = nil
	c.err = nil
	c.state = StateIdle
}

// Finish ends the task phase and runs the comparison. On success the
// calibrator lands in Succeeded with a result; otherwise in Failed with the
// error also available from Result.
func (c *Calibrator) Finish() (*Result, error) {
	c.mu.Lock()
	if c.state != StateTaskCollecting {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: Finish from %s", ErrInvalidTransition, c.state)
	}
	c.state = StateProcessing

	// Detach the phase buffers before unlocking so the spectral passes read
	// them without the lock. An Abort or BeginRest racing with Processing
	// starts fresh buffers instead of reusing the backing arrays being read.
	rest, task := c.rest, c.task
	c.rest, c.task = nil, nil
	c.mu.Unlock()

	result, err := c.compute(rest, task)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateProcessing {
		// Aborted or restarted mid-processing; the attempt's outcome is
		// discarded rather than clobbering the new phase.
		return nil, fmt.Errorf("%w: attempt abandoned during processing", ErrInvalidTransition)
	}

	c.result, c.err = result, err
	if err != nil {
		c.state = StateFailed
		c.logger.Warn("calibration failed", slog.Any("error", err))
		return nil, err
	}

	c.state = StateSucceeded
	c.logger.Info("calibration succeeded",
		slog.Float64("iafHz", result.FrequencyHz),
		slog.Float64("desynchronization", result.Desynchronization))
	return result, nil
}

// Result returns the outcome of the last finished attempt.
func (c *Calibrator) Result() (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result, c.err
}

func (c *Calibrator) compute(rest, task []float64) (*Result, error) {
	w := c.analyzer.WindowSize()
	if len(rest) < w || len(task) < w {
		return nil, fmt.Errorf("%w: rest %d/%d samples, task %d/%d samples",
			ErrInsufficientData, len(rest), w, len(task), w)
	}

	restSpectrum, err := c.analyzer.Spectrum(rest)
	if err != nil {
		return nil, fmt.Errorf("rest spectrum: %w", err)
	}
	taskSpectrum, err := c.analyzer.Spectrum(task)
	if err != nil {
		return nil, fmt.Errorf("task spectrum: %w", err)
	}

	return selectIAF(restSpectrum, taskSpectrum)
}

// selectIAF scans the search band for the bin with maximal desynchronization.
// Only bins where task power strictly dropped below rest power are candidates;
// ties break toward the lowest frequency because the scan ascends.
func selectIAF(rest, task *dsp.PowerSpectrum) (*Result, error) {
	best := -1
	var bestDesync float64

	for idx, f := range rest.Frequencies {
		if f < searchLowHz || f > searchHighHz {
			continue
		}
		if task.Power[idx] >= rest.Power[idx] {
			continue // no suppression at this frequency
		}

		desync := rest.Power[idx] - task.Power[idx]
		if best < 0 || desync > bestDesync {
			best, bestDesync = idx, desync
		}
	}

	if best < 0 {
		return nil, ErrIAFNotFound
	}

	return &Result{
		FrequencyHz:       rest.Frequencies[best],
		PowerAtFrequency:  rest.Power[best],
		Desynchronization: bestDesync,
	}, nil
}

// AlphaPeak returns the frequency with maximum power in the canonical alpha
// range of a single spectrum. It is the cheap estimator for live display and
// cannot fail: a spectrum with no alpha-range bins reports the 10 Hz default
// with zero power.
func AlphaPeak(spectrum *dsp.PowerSpectrum) (freqHz, power float64) {
	freqHz = defaultAlphaPeak

	best := -1
	for idx, f := range spectrum.Frequencies {
		if f < alphaPeakLowHz || f > alphaPeakHighHz {
			continue
		}
		if best < 0 || spectrum.Power[idx] > power {
			best = idx
			freqHz, power = f, spectrum.Power[idx]
		}
	}
	return freqHz, power
}
