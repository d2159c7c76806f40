package dsp

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/StoicSim/brainwave/internal/thinkgear"
)

const (
	// DefaultSampleRate is the sample rate of the supported headsets in Hz.
	DefaultSampleRate = 512.0

	// DefaultWindowSize is the analysis window length in samples,
	// one second of signal at the default rate.
	DefaultWindowSize = 512

	// DefaultNotchFrequency is the mains frequency suppressed by the
	// comb filter, in Hz.
	DefaultNotchFrequency = 50.0
)

// ErrInsufficientSamples is returned when a signal is shorter than the
// analysis window. The caller should collect more samples and retry.
var ErrInsufficientSamples = errors.New("insufficient samples for analysis")

// PowerSpectrum holds a one-sided power spectral density estimate.
// Frequencies ascend with Frequencies[k] = k * sampleRate / N and both
// slices have length N/2.
type PowerSpectrum struct {
	Frequencies []float64
	Power       []float64
}

// BandPowers maps each hardware band to the mean spectral power of the bins
// falling inside its canonical frequency range.
type BandPowers map[thinkgear.Band]float64

// WithWindowSize sets the analysis window length in samples.
func WithWindowSize(n int) func(*Analyzer) {
	return func(a *Analyzer) {
		a.windowSize = n
	}
}

// WithNotchFrequency sets the mains frequency suppressed by the comb filter.
// A zero value disables the filter.
func WithNotchFrequency(hz float64) func(*Analyzer) {
	return func(a *Analyzer) {
		a.notchHz = hz
	}
}

// Analyzer turns windows of raw EEG samples into power spectra. The FFT plan
// and Hamming coefficients are sized once for the configured window length and
// reused across calls; long signals are estimated with overlapping windows
// rather than a variable-size transform.
//
// An Analyzer is stateless between calls and safe for concurrent use.
type Analyzer struct {
	sampleRate float64
	windowSize int
	notchHz    float64

	fft     *fourier.FFT
	hamming []float64
}

// NewAnalyzer creates an Analyzer for the given sample rate.
func NewAnalyzer(sampleRate float64, options ...func(*Analyzer)) (*Analyzer, error) {
	a := Analyzer{
		sampleRate: sampleRate,
		windowSize: DefaultWindowSize,
		notchHz:    DefaultNotchFrequency,
	}

	for _, option := range options {
		option(&a)
	}

	if a.sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %f", a.sampleRate)
	}
	if a.windowSize < 2 || a.windowSize%2 != 0 {
		return nil, fmt.Errorf("invalid window size: %d", a.windowSize)
	}
	if a.notchHz < 0 || a.notchHz > a.sampleRate/2 {
		return nil, fmt.Errorf("invalid notch frequency: %f", a.notchHz)
	}

	a.fft = fourier.NewFFT(a.windowSize)

	a.hamming = make([]float64, a.windowSize)
	for n := range a.hamming {
		a.hamming[n] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(n)/float64(a.windowSize-1))
	}

	return &a, nil
}

// SampleRate returns the configured sample rate in Hz.
func (a *Analyzer) SampleRate() float64 { return a.sampleRate }

// WindowSize returns the analysis window length in samples.
func (a *Analyzer) WindowSize() int { return a.windowSize }

// Spectrum estimates the power spectral density of signal. Signals longer
// than one window are partitioned into windows with 50% overlap and the
// per-bin powers are averaged (Welch's method), so a one-minute calibration
// buffer and a one-second live window go through the same code path.
//
// Returns ErrInsufficientSamples when signal is shorter than the window.
func (a *Analyzer) Spectrum(signal []float64) (*PowerSpectrum, error) {
	w := a.windowSize
	if len(signal) < w {
		return nil, fmt.Errorf("%w: have %d samples, need %d", ErrInsufficientSamples, len(signal), w)
	}

	half := w / 2
	power := make([]float64, half)
	scratch := make([]float64, w)
	coeff := make([]complex128, a.fft.Len()/2+1)

	var windows int
	for start := 0; start+w <= len(signal); start += half {
		a.preprocess(signal[start:start+w], scratch)
		coeff = a.fft.Coefficients(coeff, scratch)

		norm := float64(w) * float64(w)
		for k := 0; k < half; k++ {
			re := real(coeff[k])
			im := imag(coeff[k])
			power[k] += (re*re + im*im) / norm
		}
		windows++
	}

	frequencies := make([]float64, half)
	for k := range frequencies {
		frequencies[k] = float64(k) * a.sampleRate / float64(w)
		power[k] /= float64(windows)
	}

	return &PowerSpectrum{Frequencies: frequencies, Power: power}, nil
}

// preprocess runs the time-domain pipeline for one window into dst:
// mean removal, comb notch, Hamming window.
func (a *Analyzer) preprocess(window, dst []float64) {
	var mean float64
	for _, v := range window {
		mean += v
	}
	mean /= float64(len(window))

	for i, v := range window {
		dst[i] = v - mean
	}

	if a.notchHz > 0 {
		period := int(math.Round(a.sampleRate / a.notchHz))
		if period > 0 && period < len(dst) {
			// y[i] = x[i] - x[i-period], computed in place back to front so
			// x[i-period] is still the unfiltered value when read.
			for i := len(dst) - 1; i >= period; i-- {
				dst[i] -= dst[i-period]
			}
		}
	}

	for i := range dst {
		dst[i] *= a.hamming[i]
	}
}

// BandPowers averages spectrum power over each band's closed frequency range.
// A band with no bins in range reports 0.0, never NaN.
func (a *Analyzer) BandPowers(spectrum *PowerSpectrum) BandPowers {
	powers := make(BandPowers, thinkgear.NumBands)

	for b := thinkgear.Band(0); b < thinkgear.NumBands; b++ {
		low, high := b.Range()

		var sum float64
		var count int
		for k, f := range spectrum.Frequencies {
			if f < low || f > high {
				continue
			}
			sum += spectrum.Power[k]
			count++
		}

		if count == 0 {
			powers[b] = 0.0
			continue
		}
		powers[b] = sum / float64(count)
	}

	return powers
}

// PowerAt returns the spectrum power at the bin closest to the given
// frequency. Used for the per-integer-Hz PSD export sweep.
func (ps *PowerSpectrum) PowerAt(freqHz float64) float64 {
	if len(ps.Frequencies) == 0 {
		return 0
	}

	best := 0
	bestDist := math.Abs(ps.Frequencies[0] - freqHz)
	for k := 1; k < len(ps.Frequencies); k++ {
		if d := math.Abs(ps.Frequencies[k] - freqHz); d < bestDist {
			best, bestDist = k, d
		}
	}
	return ps.Power[best]
}
