package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/StoicSim/brainwave/internal/calibration"
	"github.com/StoicSim/brainwave/internal/dsp"
	"github.com/StoicSim/brainwave/internal/headset"
	"github.com/StoicSim/brainwave/internal/storage"
	"github.com/StoicSim/brainwave/internal/thinkgear"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	if !config.Calibrate() {
		// Export-only mode reads an existing database.
		if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
			return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
		}
	}

	store := storage.New(config.DBPath)
	defer store.Close()

	if config.Calibrate() {
		if _, err := calibrate(ctx, store, config, logger); err != nil {
			return err
		}
	}

	if config.CSVFile != "" {
		if err := exportMetrics(ctx, store, config.SessionID, config.CSVFile, logger); err != nil {
			return err
		}
	}
	return nil
}

func calibrate(ctx context.Context, store *storage.Store, config *Config, logger *slog.Logger) (int64, error) {
	analyzer, err := dsp.NewAnalyzer(config.SampleRate,
		dsp.WithWindowSize(config.WindowSize),
		dsp.WithNotchFrequency(config.NotchHz))
	if err != nil {
		return 0, fmt.Errorf("creating analyzer: %w", err)
	}

	rest, err := readRecording(ctx, config.RestFile, logger)
	if err != nil {
		return 0, fmt.Errorf("reading rest recording: %w", err)
	}
	task, err := readRecording(ctx, config.TaskFile, logger)
	if err != nil {
		return 0, fmt.Errorf("reading task recording: %w", err)
	}

	logger.Info("recordings decoded",
		slog.Int("restSamples", len(rest)),
		slog.Int("taskSamples", len(task)))

	calibrator := calibration.NewCalibrator(analyzer, calibration.WithLogger(logger))
	if err = calibrator.BeginRest(); err != nil {
		return 0, err
	}
	calibrator.Append(rest...)
	if err = calibrator.BeginTask(); err != nil {
		return 0, err
	}
	calibrator.Append(task...)

	result, err := calibrator.Finish()
	if err != nil {
		return 0, fmt.Errorf("calibration failed: %w", err)
	}

	logger.Info("calibration complete",
		slog.Float64("iafHz", result.FrequencyHz),
		slog.Float64("powerAtIAF", result.PowerAtFrequency),
		slog.Float64("desynchronization", result.Desynchronization))

	sessionID, err := resolveSession(ctx, store, config)
	if err != nil {
		return 0, err
	}

	if _, err = store.StoreCalibration(ctx, calibrationToModel(sessionID, result, len(rest), len(task))); err != nil {
		return 0, fmt.Errorf("storing calibration: %w", err)
	}

	if config.OutputFile != "" {
		restSpec, err := analyzer.Spectrum(rest)
		if err != nil {
			return 0, fmt.Errorf("computing rest spectrum: %w", err)
		}
		taskSpec, err := analyzer.Spectrum(task)
		if err != nil {
			return 0, fmt.Errorf("computing task spectrum: %w", err)
		}

		if err = renderSpectra(config.OutputFile, config.FontFile, restSpec, taskSpec, result); err != nil {
			return 0, fmt.Errorf("rendering spectra: %w", err)
		}
		logger.Info("spectra image written", slog.String("path", config.OutputFile))
	}

	return sessionID, nil
}

func resolveSession(ctx context.Context, store *storage.Store, config *Config) (int64, error) {
	if config.SessionID > 0 {
		if _, err := store.Session(ctx, config.SessionID); err != nil {
			return 0, fmt.Errorf("loading session %d: %w", config.SessionID, err)
		}
		return config.SessionID, nil
	}

	sessionID, err := store.CreateSession(ctx, "thinkgear", "offline", map[string]any{
		"restFile":   config.RestFile,
		"taskFile":   config.TaskFile,
		"sampleRate": config.SampleRate,
		"windowSize": config.WindowSize,
		"notchHz":    config.NotchHz,
	})
	if err != nil {
		return 0, fmt.Errorf("creating session: %w", err)
	}
	return sessionID, nil
}

// readRecording decodes a recorded headset dump and returns the raw EEG
// samples in order.
func readRecording(ctx context.Context, path string, logger *slog.Logger) ([]float64, error) {
	hs := headset.NewHeadset("offline", headset.NewReplaySource(path), headset.WithLogger(logger))

	packets := make(chan thinkgear.SensorPacket, 64)
	done, err := hs.BeginStreaming(ctx, packets)
	if err != nil {
		return nil, err
	}

	var samples []float64
	appendRaw := func(pkt thinkgear.SensorPacket) {
		if pkt.RawEEG != nil {
			samples = append(samples, float64(*pkt.RawEEG))
		}
	}

	for {
		select {
		case pkt := <-packets:
			appendRaw(pkt)

		case err, ok := <-done:
			if ok && err != nil {
				return nil, err
			}
			// The pump has exited; drain whatever it buffered.
			for {
				select {
				case pkt := <-packets:
					appendRaw(pkt)
				default:
					return samples, nil
				}
			}
		}
	}
}

func calibrationToModel(sessionID int64, r *calibration.Result, restSamples, taskSamples int) storage.CalibrationData {
	return storage.CalibrationData{
		SessionID:         sessionID,
		Timestamp:         time.Now().UTC(),
		IAFHz:             r.FrequencyHz,
		PowerAtIAF:        r.PowerAtFrequency,
		Desynchronization: r.Desynchronization,
		RestSamples:       int64(restSamples),
		TaskSamples:       int64(taskSamples),
	}
}
