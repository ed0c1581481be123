package main

import (
	"context"
	"log/slog"
	"testing"
)

func TestSetupLoggerLevels(t *testing.T) {
	cases := []struct {
		env      string
		debugOn  bool
		wantJSON bool
	}{
		{env: "dev", debugOn: true},
		{env: "staging", debugOn: true, wantJSON: true},
		{env: "prod", debugOn: false, wantJSON: true},
		{env: "", debugOn: true},
	}
	for _, tc := range cases {
		log := setupLogger(tc.env)
		if got := log.Enabled(context.Background(), slog.LevelDebug); got != tc.debugOn {
			t.Errorf("env %q: debug enabled = %v, want %v", tc.env, got, tc.debugOn)
		}
		_, isJSON := log.Handler().(*slog.JSONHandler)
		if isJSON != tc.wantJSON {
			t.Errorf("env %q: JSON handler = %v, want %v", tc.env, isJSON, tc.wantJSON)
		}
	}
}
