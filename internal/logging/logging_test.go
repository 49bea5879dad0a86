package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestSetupJSON(t *testing.T) {
	var buf bytes.Buffer
	Setup(Options{Out: &buf, JSON: true})
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	logger := WithComponent("renderd")
	logger.Info().Int("segments", 3).Msg("render job accepted")
	logger.Debug().Msg("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, debug should be filtered: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatal(err)
	}
	if entry["component"] != "renderd" || entry["segments"] != float64(3) || entry["time"] == nil {
		t.Errorf("entry = %v", entry)
	}
}

func TestSetupVerboseConsole(t *testing.T) {
	var buf bytes.Buffer
	Setup(Options{Out: &buf, Verbose: true})
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	logger := WithComponent("editor")
	logger.Debug().Msg("clips placed")
	out := buf.String()
	if !strings.Contains(out, "clips placed") || !strings.Contains(out, "component=editor") {
		t.Errorf("console output = %q", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("color codes written to a non-terminal writer")
	}
}
