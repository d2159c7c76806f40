package storage

import (
	"database/sql"
	"time"
)

// SessionData describes one recording session with a specific headset.
type SessionData struct {
	ID         int64
	StartTime  time.Time
	DeviceType string
	DeviceID   string
	Config     sql.NullString
}

// MetricData is one per-second snapshot of headset telemetry and computed
// spectral features. The PSD columns carry the power at the integer
// frequencies of the 6-14 Hz calibration sweep.
type MetricData struct {
	ID         int64
	SessionID  int64
	Timestamp  time.Time
	PoorSignal sql.NullInt64
	Attention  sql.NullInt64
	Meditation sql.NullInt64

	// Hardware band powers in wire order.
	BandPowers [8]sql.NullInt64

	AlphaPeakHz sql.NullFloat64

	// PSD[i] is the power at (6+i) Hz.
	PSD [9]sql.NullFloat64
}

// CalibrationData is one stored IAF calibration outcome.
type CalibrationData struct {
	ID                int64
	SessionID         int64
	Timestamp         time.Time
	IAFHz             float64
	PowerAtIAF        float64
	Desynchronization float64
	RestSamples       int64
	TaskSamples       int64
}
