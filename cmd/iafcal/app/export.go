package app

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/StoicSim/brainwave/internal/storage"
	"github.com/StoicSim/brainwave/internal/thinkgear"
)

func exportMetrics(ctx context.Context, store *storage.Store, sessionID int64, path string, logger *slog.Logger) (err error) {
	reader, err := store.Metrics(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("reading metrics: %w", err)
	}
	defer func() {
		if cErr := reader.Close(); cErr != nil && err == nil {
			err = cErr
		}
	}()

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer func() {
		if cErr := out.Close(); cErr != nil && err == nil {
			err = cErr
		}
	}()

	rows, err := writeMetricsCSV(out, reader)
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("session %d: %w", sessionID, storage.ErrNoData)
	}

	logger.Info("metrics exported",
		slog.Int64("session", sessionID),
		slog.Int("rows", rows),
		slog.String("path", path))
	return nil
}

func writeMetricsCSV(w io.Writer, reader *storage.MetricReader) (int, error) {
	cw := csv.NewWriter(w)

	header := []string{"timestamp", "poor_signal", "attention", "meditation"}
	for b := thinkgear.Band(0); b < thinkgear.NumBands; b++ {
		header = append(header, b.String())
	}
	header = append(header, "alpha_peak_hz")
	for hz := 6; hz <= 14; hz++ {
		header = append(header, fmt.Sprintf("psd_%dhz", hz))
	}
	if err := cw.Write(header); err != nil {
		return 0, fmt.Errorf("writing header: %w", err)
	}

	var rows int
	for reader.Next() {
		m := reader.Current()

		record := []string{
			m.Timestamp.UTC().Format(time.RFC3339),
			nullInt(m.PoorSignal),
			nullInt(m.Attention),
			nullInt(m.Meditation),
		}
		for _, p := range m.BandPowers {
			record = append(record, nullInt(p))
		}
		record = append(record, nullFloat(m.AlphaPeakHz))
		for _, p := range m.PSD {
			record = append(record, nullFloat(p))
		}

		if err := cw.Write(record); err != nil {
			return rows, fmt.Errorf("writing record: %w", err)
		}
		rows++
	}
	if err := reader.Error(); err != nil {
		return rows, err
	}

	cw.Flush()
	return rows, cw.Error()
}

func nullInt(v sql.NullInt64) string {
	if !v.Valid {
		return ""
	}
	return strconv.FormatInt(v.Int64, 10)
}

func nullFloat(v sql.NullFloat64) string {
	if !v.Valid {
		return ""
	}
	return strconv.FormatFloat(v.Float64, 'f', -1, 64)
}
