package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s := New(filepath.Join(t.TempDir(), "test.sqlite"))
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing store: %v", err)
		}
	})
	return s
}

func TestStore_SessionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateSession(ctx, "thinkgear", "34:81:F4:33:AE:91", map[string]any{"sampleRate": 512})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if id <= 0 {
		t.Fatalf("expected positive session ID, got %d", id)
	}

	sess, err := s.Session(ctx, id)
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if sess.DeviceType != "thinkgear" || sess.DeviceID != "34:81:F4:33:AE:91" {
		t.Errorf("session mismatch: %+v", sess)
	}
	if !sess.Config.Valid {
		t.Error("expected config to be stored")
	}

	sessions, err := s.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Errorf("expected 1 session, got %d", len(sessions))
	}
}

func TestStore_MetricsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sessionID, err := s.CreateSession(ctx, "thinkgear", "device-1", nil)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	metrics := []MetricData{
		{
			SessionID:   sessionID,
			Timestamp:   base,
			PoorSignal:  sql.NullInt64{Int64: 0, Valid: true},
			Attention:   sql.NullInt64{Int64: 54, Valid: true},
			AlphaPeakHz: sql.NullFloat64{Float64: 10.0, Valid: true},
		},
		{
			SessionID: sessionID,
			Timestamp: base.Add(time.Second),
			BandPowers: [8]sql.NullInt64{
				{Int64: 1000, Valid: true}, {Int64: 900, Valid: true},
			},
			PSD: [9]sql.NullFloat64{{Float64: 0.5, Valid: true}},
		},
	}

	if err := s.BatchInsertMetrics(ctx, metrics); err != nil {
		t.Fatalf("BatchInsertMetrics: %v", err)
	}

	reader, err := s.Metrics(ctx, sessionID)
	if err != nil {
		t.Fatalf("Metrics: %v", err)
	}
	defer reader.Close()

	var rows []*MetricData
	for reader.Next() {
		rows = append(rows, reader.Current())
	}
	if err := reader.Error(); err != nil {
		t.Fatalf("iteration error: %v", err)
	}

	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if !rows[0].Attention.Valid || rows[0].Attention.Int64 != 54 {
		t.Errorf("row 0 attention mismatch: %+v", rows[0].Attention)
	}
	if rows[0].Meditation.Valid {
		t.Error("row 0 meditation should be null")
	}
	if !rows[1].BandPowers[0].Valid || rows[1].BandPowers[0].Int64 != 1000 {
		t.Errorf("row 1 delta power mismatch: %+v", rows[1].BandPowers[0])
	}
	if !rows[1].PSD[0].Valid || rows[1].PSD[0].Float64 != 0.5 {
		t.Errorf("row 1 psd_6hz mismatch: %+v", rows[1].PSD[0])
	}
}

func TestStore_CalibrationRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sessionID, err := s.CreateSession(ctx, "thinkgear", "device-1", nil)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	id, err := s.StoreCalibration(ctx, CalibrationData{
		SessionID:         sessionID,
		Timestamp:         time.Now(),
		IAFHz:             10.2,
		PowerAtIAF:        123.4,
		Desynchronization: 61.7,
		RestSamples:       30720,
		TaskSamples:       30720,
	})
	if err != nil {
		t.Fatalf("StoreCalibration: %v", err)
	}
	if id <= 0 {
		t.Fatalf("expected positive calibration ID, got %d", id)
	}

	calibrations, err := s.Calibrations(ctx, sessionID)
	if err != nil {
		t.Fatalf("Calibrations: %v", err)
	}
	if len(calibrations) != 1 {
		t.Fatalf("expected 1 calibration, got %d", len(calibrations))
	}
	if calibrations[0].IAFHz != 10.2 || calibrations[0].RestSamples != 30720 {
		t.Errorf("calibration mismatch: %+v", calibrations[0])
	}
}

func TestStore_BatchInsertEmptyIsNoop(t *testing.T) {
	s := newTestStore(t)
	if err := s.BatchInsertMetrics(context.Background(), nil); err != nil {
		t.Fatalf("expected nil error on empty batch, got %v", err)
	}
}
