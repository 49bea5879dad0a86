package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"45.5", 45.5, false},
		{"1:30", 90, false},
		{"01:02:03.5", 3723.5, false},
		{" 2 ", 2, false},
		{"", 0, true},
		{"1:2:3:4", 0, true},
		{"a:10", 0, true},
		{"-5", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseTimestamp(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseTimestamp(%q) err = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFormatTimestamp(t *testing.T) {
	tests := map[float64]string{
		0:      "00:00:00.000",
		90.25:  "00:01:30.250",
		3723.5: "01:02:03.500",
		-1:     "00:00:00.000",
	}
	for in, want := range tests {
		if got := FormatTimestamp(in); got != want {
			t.Errorf("FormatTimestamp(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestParseFrameRate(t *testing.T) {
	tests := map[string]float64{
		"30/1":       30,
		"30000/1001": 30000.0 / 1001,
		"0/0":        0,
		"25":         0,
	}
	for in, want := range tests {
		if got := ParseFrameRate(in); got != want {
			t.Errorf("ParseFrameRate(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestAvailablePath(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "render.mp4")
	if got := AvailablePath(out); got != out {
		t.Errorf("free path changed to %q", got)
	}
	for _, name := range []string{"render.mp4", "render-1.mp4"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if got := AvailablePath(out); got != filepath.Join(dir, "render-2.mp4") {
		t.Errorf("AvailablePath = %q", got)
	}
}
