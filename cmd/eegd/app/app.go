package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/StoicSim/brainwave/internal/dsp"
	"github.com/StoicSim/brainwave/internal/headset"
	"github.com/StoicSim/brainwave/internal/storage"
)

const storageDir = "data"

// Run wires the configured source, analyzer and store together and drives the
// ingestion pipeline until ctx is cancelled.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	store, err := createStorage(&config.Storage)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	defer store.Close()

	analyzer, err := dsp.NewAnalyzer(config.Analysis.SampleRate,
		dsp.WithWindowSize(config.Analysis.WindowSize),
		dsp.WithNotchFrequency(config.Analysis.NotchHz))
	if err != nil {
		return fmt.Errorf("failed to create analyzer: %w", err)
	}

	hs, err := createHeadset(&config.Device, logger)
	if err != nil {
		return fmt.Errorf("failed to create headset: %w", err)
	}

	orchestrator, err := NewOrchestrator(hs, analyzer, store, config, logger,
		WithMaxBatchSize(config.Storage.MaxBatchSize),
		WithBufferSeconds(config.Analysis.BufferSeconds))
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	if config.Server.Enabled {
		server := NewServer(config.Server.ListenAddr, orchestrator, logger)
		go func() {
			if err := server.Run(ctx); err != nil {
				logger.Error("live server failed", slog.Any("error", err))
			}
		}()
	}

	return orchestrator.Run(ctx)
}

func createHeadset(config *DeviceConfig, logger *slog.Logger) (*headset.Headset, error) {
	var source headset.Source
	switch config.Source {
	case SourceReplay:
		var options []func(*headset.ReplaySource)
		if config.PaceMs > 0 {
			options = append(options, headset.WithPacing(config.Pace()))
		}
		source = headset.NewReplaySource(config.Path, options...)

	case SourceTCP:
		source = headset.NewTCPSource(config.Address)

	default:
		return nil, fmt.Errorf("unknown source '%s'", config.Source)
	}

	return headset.NewHeadset(config.ID, source,
		headset.WithLogger(logger),
		headset.WithChunkSize(config.ChunkSize)), nil
}

func createStorage(config *StorageConfig) (*storage.Store, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current working directory: %w", err)
	}

	dir := config.DataDirectory
	if dir == "" {
		dir = storageDir
	}
	dbDir := filepath.Join(wd, dir)

	stat, err := os.Stat(dbDir)
	if err != nil {
		return nil, fmt.Errorf("storage directory '%s': %w", dbDir, err)
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("invalid storage directory '%s'", dbDir)
	}

	dbPath := filepath.Join(dbDir, fmt.Sprintf("eeg_session_%s.sqlite", time.Now().UTC().Format("20060102_150405")))
	return storage.New(dbPath), nil
}
