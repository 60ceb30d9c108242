package render

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/melodyscope/melodyscope/pkg/melodyscope/analysis"
	"github.com/melodyscope/melodyscope/pkg/melodyscope/dtw"
	"github.com/melodyscope/melodyscope/pkg/melodyscope/pitch"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

func testRecord() *analysis.Analysis {
	score := 0.73
	return &analysis.Analysis{
		ID:           "a-1",
		Method:       analysis.MethodDTW,
		TrackID:      "t1",
		OtherTrackID: "t2",
		Score:        &score,
		Summary:      map[string]any{"path_len": 12},
		CreatedAt:    time.Now().UTC(),
	}
}

func testContour(freqs []float64) *pitch.Contour {
	frames := make([]pitch.Frame, len(freqs))
	for i, f := range freqs {
		frames[i] = pitch.Frame{Time: float64(i) * 0.02, Freq: f, Voiced: f > 0}
	}
	return &pitch.Contour{Frames: frames, SampleRate: 22050, HopSize: 512}
}

func TestNewRenderer(t *testing.T) {
	if r, err := New(StrategyLite); err != nil || r.ContentType() != "application/json" {
		t.Errorf("Lite renderer: %v, %v", r, err)
	}
	if r, err := New(StrategyFull); err != nil || r.ContentType() != "image/png" {
		t.Errorf("Full renderer: %v, %v", r, err)
	}
	if r, err := New(""); err != nil || r.ContentType() != "application/json" {
		t.Errorf("Empty strategy must default to lite: %v, %v", r, err)
	}
	if _, err := New("hologram"); err == nil {
		t.Error("Expected error for unknown strategy")
	}
}

func TestLiteRenderer(t *testing.T) {
	r := &LiteRenderer{}

	out, err := r.Render(testRecord(), &Data{
		ContourA: testContour([]float64{440, 440, 880}),
	})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(out, &doc); err != nil {
		t.Fatalf("Lite artifact is not valid JSON: %v", err)
	}
	if doc["method"] != "dtw" {
		t.Errorf("Expected method dtw, got %v", doc["method"])
	}
	if doc["score"] != 0.73 {
		t.Errorf("Expected score 0.73, got %v", doc["score"])
	}
	if doc["contour_a_frames"] != 3.0 {
		t.Errorf("Expected 3 contour frames, got %v", doc["contour_a_frames"])
	}
}

func TestLiteRendererNilAnalysis(t *testing.T) {
	r := &LiteRenderer{}
	if _, err := r.Render(nil, nil); err == nil {
		t.Error("Expected error for nil analysis")
	}
}

func TestFullRendererWithContours(t *testing.T) {
	a := testContour([]float64{440, 494, 523, 0, 587})
	b := testContour([]float64{440, 523, 587})
	alignment, err := dtw.Align(context.Background(), a, b, dtw.DefaultOptions())
	if err != nil {
		t.Fatalf("Align failed: %v", err)
	}

	r := &FullRenderer{}
	out, err := r.Render(testRecord(), &Data{ContourA: a, ContourB: b, Alignment: alignment})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !bytes.HasPrefix(out, pngMagic) {
		t.Error("Full artifact is not a PNG")
	}
}

func TestFullRendererScoreBarFallback(t *testing.T) {
	r := &FullRenderer{}

	// No contour data at all, e.g. re-rendering a stored record.
	out, err := r.Render(testRecord(), nil)
	if err != nil {
		t.Fatalf("Render without data failed: %v", err)
	}
	if !bytes.HasPrefix(out, pngMagic) {
		t.Error("Fallback artifact is not a PNG")
	}
}
