package cmd

import (
	"testing"
)

func TestServiceURL(t *testing.T) {
	tests := []struct {
		name   string
		server string
		path   string
		want   string
	}{
		{
			name:   "default server",
			server: "localhost:8080",
			path:   "/v1/users",
			want:   "http://localhost:8080/v1/users",
		},
		{
			name:   "custom host",
			server: "users.internal:9000",
			path:   "/healthz",
			want:   "http://users.internal:9000/healthz",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orig := serverAddr
			serverAddr = tt.server
			defer func() { serverAddr = orig }()

			if got := serviceURL(tt.path); got != tt.want {
				t.Errorf("serviceURL(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestPrintOutput(t *testing.T) {
	tests := []struct {
		name       string
		v          interface{}
		outputJSON bool
	}{
		{
			name:       "simple string - human readable",
			v:          "hello world",
			outputJSON: false,
		},
		{
			name:       "simple map - json format",
			v:          map[string]interface{}{"key": "value", "number": 42},
			outputJSON: true,
		},
		{
			name:       "backlog counts - json format",
			v:          map[string]int64{"outbox": 3, "scheduled": 12},
			outputJSON: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			origOutputJSON := outputJSON
			outputJSON = tt.outputJSON
			defer func() { outputJSON = origOutputJSON }()

			defer func() {
				if r := recover(); r != nil {
					t.Errorf("printOutput() panicked unexpectedly: %v", r)
				}
			}()

			printOutput(tt.v)
		})
	}
}
