package pitch

import "math"

// Frame is one pitch estimate. Freq is 0 when the frame is unvoiced.
type Frame struct {
	Time   float64 `json:"time"`
	Freq   float64 `json:"freq"`
	Voiced bool    `json:"voiced"`
}

// Contour is an ordered sequence of pitch estimates with monotonically
// increasing timestamps. It is never mutated after creation.
type Contour struct {
	Frames     []Frame `json:"frames"`
	SampleRate int     `json:"sample_rate"`
	HopSize    int     `json:"hop_size"`
}

func (c *Contour) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Frames)
}

// VoicedRatio returns the fraction of frames carrying a pitch estimate.
func (c *Contour) VoicedRatio() float64 {
	if c.Len() == 0 {
		return 0
	}
	voiced := 0
	for _, f := range c.Frames {
		if f.Voiced {
			voiced++
		}
	}
	return float64(voiced) / float64(len(c.Frames))
}

// MIDINotes converts the contour to MIDI note numbers (semitone space), with
// 0 for unvoiced frames. Comparing melodies in semitones makes interval
// distances uniform across the register.
func (c *Contour) MIDINotes() []float64 {
	notes := make([]float64, c.Len())
	for i, f := range c.Frames {
		if f.Voiced && f.Freq > 0 {
			notes[i] = HzToMIDI(f.Freq)
		}
	}
	return notes
}

// HzToMIDI converts a frequency in Hz to a (fractional) MIDI note number.
func HzToMIDI(hz float64) float64 {
	return 69.0 + 12.0*math.Log2(hz/440.0)
}

// MIDIToHz converts a MIDI note number back to Hz.
func MIDIToHz(midi float64) float64 {
	return 440.0 * math.Pow(2.0, (midi-69.0)/12.0)
}
