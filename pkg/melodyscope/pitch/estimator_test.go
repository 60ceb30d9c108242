package pitch

import (
	"context"
	"math"
	"testing"
)

func sineWave(freq float64, sampleRate int, seconds float64) []float64 {
	n := int(float64(sampleRate) * seconds)
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return samples
}

func TestEstimateContourPureTone(t *testing.T) {
	const sampleRate = 22050
	samples := sineWave(440, sampleRate, 2.0)

	est := NewAutocorrEstimator(DefaultParams())
	contour, err := est.EstimateContour(context.Background(), samples, sampleRate)
	if err != nil {
		t.Fatalf("EstimateContour failed: %v", err)
	}

	if contour.Len() == 0 {
		t.Fatal("Expected frames for a two-second tone")
	}
	if ratio := contour.VoicedRatio(); ratio < 0.9 {
		t.Errorf("Expected a pure tone to be almost fully voiced, got ratio %v", ratio)
	}

	for _, f := range contour.Frames {
		if !f.Voiced {
			continue
		}
		if math.Abs(f.Freq-440) > 5 {
			t.Fatalf("Frame at %.3fs estimated %v Hz, want 440 +/- 5", f.Time, f.Freq)
		}
	}
}

func TestEstimateContourSilence(t *testing.T) {
	const sampleRate = 22050
	samples := make([]float64, sampleRate) // one second of zeros

	est := NewAutocorrEstimator(DefaultParams())
	contour, err := est.EstimateContour(context.Background(), samples, sampleRate)
	if err != nil {
		t.Fatalf("Silence must not produce an error, got: %v", err)
	}

	if contour.Len() == 0 {
		t.Fatal("Expected frames even for silent input")
	}
	for _, f := range contour.Frames {
		if f.Voiced {
			t.Fatalf("Silent frame at %.3fs marked voiced with freq %v", f.Time, f.Freq)
		}
		if f.Freq != 0 {
			t.Fatalf("Unvoiced frame must carry freq 0, got %v", f.Freq)
		}
	}
}

func TestEstimateContourDeterministic(t *testing.T) {
	const sampleRate = 22050
	samples := sineWave(523.25, sampleRate, 1.0)

	est := NewAutocorrEstimator(DefaultParams())
	first, err := est.EstimateContour(context.Background(), samples, sampleRate)
	if err != nil {
		t.Fatalf("First run failed: %v", err)
	}
	second, err := est.EstimateContour(context.Background(), samples, sampleRate)
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}

	if first.Len() != second.Len() {
		t.Fatalf("Frame counts differ: %d vs %d", first.Len(), second.Len())
	}
	for i := range first.Frames {
		if first.Frames[i] != second.Frames[i] {
			t.Fatalf("Frame %d differs between runs: %+v vs %+v", i, first.Frames[i], second.Frames[i])
		}
	}
}

func TestEstimateContourCancellation(t *testing.T) {
	const sampleRate = 22050
	samples := sineWave(440, sampleRate, 5.0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	est := NewAutocorrEstimator(DefaultParams())
	if _, err := est.EstimateContour(ctx, samples, sampleRate); err == nil {
		t.Error("Expected error from cancelled context")
	}
}

func TestSmoothVoicedRunsRemovesOctaveError(t *testing.T) {
	frames := []Frame{
		{Freq: 440, Voiced: true},
		{Freq: 440, Voiced: true},
		{Freq: 440, Voiced: true},
		{Freq: 880, Voiced: true}, // isolated octave jump
		{Freq: 440, Voiced: true},
		{Freq: 440, Voiced: true},
		{Freq: 440, Voiced: true},
	}
	smoothVoicedRuns(frames, 5)

	for i, f := range frames {
		if f.Freq != 440 {
			t.Errorf("Frame %d still carries octave error: %v", i, f.Freq)
		}
	}
}

func TestSmoothVoicedRunsKeepsUnvoicedBoundaries(t *testing.T) {
	frames := []Frame{
		{Freq: 440, Voiced: true},
		{Freq: 0, Voiced: false},
		{Freq: 440, Voiced: true},
		{Freq: 440, Voiced: true},
		{Freq: 880, Voiced: true},
		{Freq: 440, Voiced: true},
		{Freq: 440, Voiced: true},
	}
	smoothVoicedRuns(frames, 5)

	if frames[1].Voiced || frames[1].Freq != 0 {
		t.Errorf("Unvoiced frame was modified: %+v", frames[1])
	}
}

func TestHzMIDIConversion(t *testing.T) {
	cases := []struct {
		hz   float64
		midi float64
	}{
		{440, 69},
		{880, 81},
		{220, 57},
		{261.63, 60},
	}
	for _, c := range cases {
		if got := HzToMIDI(c.hz); math.Abs(got-c.midi) > 0.01 {
			t.Errorf("HzToMIDI(%v) = %v, want %v", c.hz, got, c.midi)
		}
		if got := MIDIToHz(c.midi); math.Abs(got-c.hz) > 0.05 {
			t.Errorf("MIDIToHz(%v) = %v, want %v", c.midi, got, c.hz)
		}
	}
}

func TestContourMIDINotes(t *testing.T) {
	c := &Contour{Frames: []Frame{
		{Freq: 440, Voiced: true},
		{Freq: 0, Voiced: false},
		{Freq: 880, Voiced: true},
	}}

	notes := c.MIDINotes()
	if len(notes) != 3 {
		t.Fatalf("Expected 3 notes, got %d", len(notes))
	}
	if math.Abs(notes[0]-69) > 0.01 || math.Abs(notes[2]-81) > 0.01 {
		t.Errorf("Unexpected MIDI notes: %v", notes)
	}
	if notes[1] != 0 {
		t.Errorf("Unvoiced frame must map to 0, got %v", notes[1])
	}

	if ratio := c.VoicedRatio(); math.Abs(ratio-2.0/3.0) > 1e-9 {
		t.Errorf("Expected voiced ratio 2/3, got %v", ratio)
	}
}
