package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestBuild_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	l := Component(Build(Config{Level: "debug"}, &buf), "split")
	l.Debug().Int("zoom", 7).Msg("planned")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("log line is not JSON: %v\n%s", err, buf.String())
	}
	if rec["msg"] != "planned" || rec["component"] != "split" || rec["zoom"] != float64(7) {
		t.Errorf("unexpected record: %v", rec)
	}
	if _, ok := rec["timestamp"]; !ok {
		t.Error("missing timestamp")
	}
}

func TestBuild_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := Build(Config{Level: "warn"}, &buf)
	l.Info().Msg("hidden")
	l.Warn().Msg("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("level filtering failed: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"":        zerolog.InfoLevel,
		"DEBUG":   zerolog.DebugLevel,
		" warn ":  zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"off":     zerolog.Disabled,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
