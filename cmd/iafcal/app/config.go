package app

import (
	"errors"
	"flag"
	"fmt"

	"github.com/StoicSim/brainwave/internal/dsp"
)

// Config holds the command line options. The tool runs in one or both of two
// modes: calibration (rest and task recordings given) and CSV export of an
// existing session.
type Config struct {
	DBPath    string
	SessionID int64

	RestFile string
	TaskFile string

	SampleRate float64
	WindowSize int
	NotchHz    float64

	OutputFile string // PNG of the rest/task spectra, empty to skip
	FontFile   string // TTF used for image labels, empty to skip text
	CSVFile    string // metrics export destination, empty to skip

	Verbose bool
}

func NewConfig() *Config {
	return &Config{
		SampleRate: dsp.DefaultSampleRate,
		WindowSize: dsp.DefaultWindowSize,
		NotchHz:    dsp.DefaultNotchFrequency,
	}
}

func NewConfigFromCLI() (*Config, error) {
	c := NewConfig()

	flag.StringVar(&c.DBPath, "db", "", "Path to the database file")
	flag.Int64Var(&c.SessionID, "s", 0, "Session ID (0 creates a new session)")
	flag.StringVar(&c.RestFile, "rest", "", "Path to the eyes-closed rest recording")
	flag.StringVar(&c.TaskFile, "task", "", "Path to the cognitive task recording")
	flag.Float64Var(&c.SampleRate, "rate", c.SampleRate, "Raw EEG sample rate in Hz")
	flag.IntVar(&c.WindowSize, "window", c.WindowSize, "FFT window size in samples")
	flag.Float64Var(&c.NotchHz, "notch", c.NotchHz, "Mains notch frequency in Hz (0 disables)")
	flag.StringVar(&c.OutputFile, "o", "", "Path to the output spectra image (PNG)")
	flag.StringVar(&c.FontFile, "font", "", "Path to a TTF font for image labels")
	flag.StringVar(&c.CSVFile, "csv", "", "Path to the metrics CSV export")
	flag.BoolVar(&c.Verbose, "verbose", false, "Enable more verbose output")
	flag.Parse()

	if err := c.validate(); err != nil {
		flag.Usage()
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	switch {
	case c.DBPath == "":
		return errors.New("db path is required")
	case (c.RestFile == "") != (c.TaskFile == ""):
		return errors.New("calibration requires both rest and task recordings")
	case c.RestFile == "" && c.CSVFile == "":
		return errors.New("nothing to do: provide recordings to calibrate or -csv to export")
	case c.CSVFile != "" && c.SessionID <= 0:
		// A session created by this very run has no metric rows to export;
		// only sessions recorded by the daemon carry them.
		return errors.New("csv export requires the id of an existing session")
	case c.WindowSize < 2 || c.WindowSize%2 != 0:
		return fmt.Errorf("invalid window size: %d", c.WindowSize)
	}
	return nil
}

// Calibrate reports whether recordings were supplied.
func (c *Config) Calibrate() bool { return c.RestFile != "" }
