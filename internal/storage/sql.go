package storage

import (
	_ "embed"
)

//go:embed schema.sql
var schemaSQL string

const (
	insertSessionSQL = `
INSERT INTO sessions (start_time,
                      device_type,
                      device_id,
                      config)
VALUES (CURRENT_TIMESTAMP, ?, ?, ?)`

	selectSessionSQL = `
SELECT id,
       start_time,
       device_type,
       device_id,
       config
FROM sessions
WHERE id = ?`

	selectSessionsSQL = `
SELECT id,
       start_time,
       device_type,
       device_id,
       config
FROM sessions
ORDER BY start_time`

	insertMetricSQL = `
INSERT INTO metrics (session_id,
                     timestamp,
                     poor_signal,
                     attention,
                     meditation,
                     delta,
                     theta,
                     alpha_low,
                     alpha_high,
                     beta_low,
                     beta_high,
                     gamma_low,
                     gamma_high,
                     alpha_peak_hz,
                     psd_6hz,
                     psd_7hz,
                     psd_8hz,
                     psd_9hz,
                     psd_10hz,
                     psd_11hz,
                     psd_12hz,
                     psd_13hz,
                     psd_14hz)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectMetricsSQL = `
SELECT id,
       session_id,
       timestamp,
       poor_signal,
       attention,
       meditation,
       delta,
       theta,
       alpha_low,
       alpha_high,
       beta_low,
       beta_high,
       gamma_low,
       gamma_high,
       alpha_peak_hz,
       psd_6hz,
       psd_7hz,
       psd_8hz,
       psd_9hz,
       psd_10hz,
       psd_11hz,
       psd_12hz,
       psd_13hz,
       psd_14hz
FROM metrics
WHERE session_id = ?
ORDER BY timestamp`

	insertCalibrationSQL = `
INSERT INTO calibrations (session_id,
                          timestamp,
                          iaf_hz,
                          power_at_iaf,
                          desynchronization,
                          rest_samples,
                          task_samples)
VALUES (?, ?, ?, ?, ?, ?, ?)`

	selectCalibrationsSQL = `
SELECT id,
       session_id,
       timestamp,
       iaf_hz,
       power_at_iaf,
       desynchronization,
       rest_samples,
       task_samples
FROM calibrations
WHERE session_id = ?
ORDER BY timestamp`
)
