package fingerprint

import (
	"context"
	"errors"
	"os"
	"testing"
)

func TestParseFpcalcOutput(t *testing.T) {
	fp, err := parseFpcalcOutput([]byte(`{"duration": 212.51, "fingerprint": "AQAAf0qUJEuXJEGW"}`))
	if err != nil {
		t.Fatalf("parseFpcalcOutput failed: %v", err)
	}
	if fp.Token != "AQAAf0qUJEuXJEGW" {
		t.Errorf("Unexpected token: %q", fp.Token)
	}
	if fp.Duration != 212.51 {
		t.Errorf("Unexpected duration: %v", fp.Duration)
	}
}

func TestParseFpcalcOutputErrors(t *testing.T) {
	cases := []struct {
		name string
		out  string
	}{
		{"not json", "ERROR: unable to open file"},
		{"missing fingerprint", `{"duration": 10.0}`},
		{"empty fingerprint", `{"duration": 10.0, "fingerprint": ""}`},
		{"zero duration", `{"duration": 0, "fingerprint": "AQAA"}`},
		{"negative duration", `{"duration": -3, "fingerprint": "AQAA"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseFpcalcOutput([]byte(tc.out))
			if !errors.Is(err, ErrExtraction) {
				t.Errorf("Expected ErrExtraction, got: %v", err)
			}
		})
	}
}

func TestExtractMissingFile(t *testing.T) {
	e := NewExtractor()
	_, err := e.Extract(context.Background(), "/nonexistent/audio.mp3")
	if err == nil {
		t.Fatal("Expected error for missing file")
	}
}

func TestNewExtractorHonorsEnv(t *testing.T) {
	old := os.Getenv("FPCALC_PATH")
	os.Setenv("FPCALC_PATH", "/opt/chromaprint/fpcalc")
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv("FPCALC_PATH")
		} else {
			os.Setenv("FPCALC_PATH", old)
		}
	})

	e := NewExtractor()
	if e.FpcalcPath != "/opt/chromaprint/fpcalc" {
		t.Errorf("Expected env override, got %q", e.FpcalcPath)
	}
}
