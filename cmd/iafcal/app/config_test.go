package app

import "testing"

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:   "calibration with both recordings",
			mutate: func(c *Config) { c.RestFile, c.TaskFile = "rest.bin", "task.bin" },
		},
		{
			name:   "export of an existing session",
			mutate: func(c *Config) { c.CSVFile, c.SessionID = "out.csv", 3 },
		},
		{
			name: "calibration plus export of an existing session",
			mutate: func(c *Config) {
				c.RestFile, c.TaskFile = "rest.bin", "task.bin"
				c.CSVFile, c.SessionID = "out.csv", 3
			},
		},
		{
			name:    "missing db path",
			mutate:  func(c *Config) { c.DBPath = ""; c.RestFile, c.TaskFile = "rest.bin", "task.bin" },
			wantErr: true,
		},
		{
			name:    "rest without task",
			mutate:  func(c *Config) { c.RestFile = "rest.bin" },
			wantErr: true,
		},
		{
			name:    "no mode selected",
			mutate:  func(c *Config) {},
			wantErr: true,
		},
		{
			name:    "export without a session id",
			mutate:  func(c *Config) { c.CSVFile = "out.csv" },
			wantErr: true,
		},
		{
			name: "calibration plus export without a session id",
			mutate: func(c *Config) {
				c.RestFile, c.TaskFile = "rest.bin", "task.bin"
				c.CSVFile = "out.csv"
			},
			wantErr: true,
		},
		{
			name: "odd window size",
			mutate: func(c *Config) {
				c.RestFile, c.TaskFile = "rest.bin", "task.bin"
				c.WindowSize = 511
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewConfig()
			c.DBPath = "session.sqlite"
			tt.mutate(c)

			err := c.validate()
			if tt.wantErr && err == nil {
				t.Error("expected a validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}
