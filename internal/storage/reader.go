package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNoData indicates that no metric data exists for the given session.
var ErrNoData = errors.New("no data available")

// MetricReader iterates over a session's metric snapshots in timestamp order
// without loading the whole session into memory. The CSV exporter streams
// rows through it.
type MetricReader struct {
	session *SessionData
	rows    *sql.Rows
	current *MetricData
	err     error
}

// Metrics opens a MetricReader for the given session.
func (s *Store) Metrics(ctx context.Context, sessionID int64) (*MetricReader, error) {
	session, err := s.Session(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}

	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	rows, err := db.QueryContext(ctx, selectMetricsSQL, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying metrics: %w", err)
	}

	return &MetricReader{session: session, rows: rows}, nil
}

// Session returns metadata for the session being read.
func (r *MetricReader) Session() *SessionData { return r.session }

// Next advances to the next metric row. It returns false at the end of data
// or on error; check Error to tell the two apart.
func (r *MetricReader) Next() bool {
	if r.err != nil {
		return false
	}
	if !r.rows.Next() {
		r.err = r.rows.Err()
		return false
	}

	var m MetricData
	dest := []any{&m.ID, &m.SessionID, &m.Timestamp, &m.PoorSignal, &m.Attention, &m.Meditation}
	for i := range m.BandPowers {
		dest = append(dest, &m.BandPowers[i])
	}
	dest = append(dest, &m.AlphaPeakHz)
	for i := range m.PSD {
		dest = append(dest, &m.PSD[i])
	}

	if err := r.rows.Scan(dest...); err != nil {
		r.err = fmt.Errorf("scanning metric: %w", err)
		return false
	}

	r.current = &m
	return true
}

// Current returns the row at the iterator position.
func (r *MetricReader) Current() *MetricData { return r.current }

// Error returns the error that stopped iteration, if any.
func (r *MetricReader) Error() error { return r.err }

// Close releases the underlying rows.
func (r *MetricReader) Close() error { return r.rows.Close() }
