package analysis

import (
	"errors"
	"fmt"
	"time"
)

// Contract errors at the write boundary. Both are fatal to the write and
// never silently coerced.
var (
	ErrInvalidMethod   = errors.New("method outside the closed enumeration")
	ErrPayloadMismatch = errors.New("payload does not match method shape")
)

// MatchCandidate is an external identification match carried in a
// music_identification payload.
type MatchCandidate struct {
	RecordingID string  `json:"recording_id"`
	Title       string  `json:"title,omitempty"`
	Artist      string  `json:"artist,omitempty"`
	Confidence  float64 `json:"confidence"`
}

// Payload is the candidate content of an analysis record before validation.
type Payload struct {
	TrackID      string
	OtherTrackID string
	Score        *float64         // similarity score, required for two-track methods
	Confidence   *float64         // external-match confidence, required for music_identification
	Candidates   []MatchCandidate // may be empty: "no match" is a valid outcome
	Summary      map[string]any
}

// Analysis is a persisted, immutable record of one identification or
// comparison outcome.
type Analysis struct {
	ID           string         `json:"id"`
	Method       Method         `json:"method"`
	TrackID      string         `json:"track_id"`
	OtherTrackID string         `json:"other_track_id,omitempty"`
	Score        *float64       `json:"score,omitempty"`
	Summary      map[string]any `json:"summary,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Validate checks the closed-taxonomy invariant and the per-method payload
// shape. It never mutates the payload.
func Validate(m Method, p *Payload) error {
	if !m.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMethod, m)
	}
	if p == nil {
		return fmt.Errorf("%w: nil payload", ErrPayloadMismatch)
	}
	if p.TrackID == "" {
		return fmt.Errorf("%w: %s requires a track reference", ErrPayloadMismatch, m)
	}

	if m.TwoTrack() {
		if p.OtherTrackID == "" {
			return fmt.Errorf("%w: %s requires two track references", ErrPayloadMismatch, m)
		}
		if p.Score == nil {
			return fmt.Errorf("%w: %s requires a similarity score", ErrPayloadMismatch, m)
		}
		if *p.Score < 0 || *p.Score > 1 {
			return fmt.Errorf("%w: score %v outside [0,1]", ErrPayloadMismatch, *p.Score)
		}
		return nil
	}

	// One-track methods; "other" additionally tolerates a second reference.
	if p.OtherTrackID != "" && m != MethodOther {
		return fmt.Errorf("%w: %s takes a single track reference", ErrPayloadMismatch, m)
	}

	if m == MethodMusicIdentification {
		if p.Confidence == nil {
			return fmt.Errorf("%w: %s requires a match confidence", ErrPayloadMismatch, m)
		}
		if *p.Confidence < 0 || *p.Confidence > 1 {
			return fmt.Errorf("%w: confidence %v outside [0,1]", ErrPayloadMismatch, *p.Confidence)
		}
		for _, c := range p.Candidates {
			if c.Confidence < 0 || c.Confidence > 1 {
				return fmt.Errorf("%w: candidate confidence %v outside [0,1]", ErrPayloadMismatch, c.Confidence)
			}
		}
	}

	if p.Score != nil && (*p.Score < 0 || *p.Score > 1) {
		return fmt.Errorf("%w: score %v outside [0,1]", ErrPayloadMismatch, *p.Score)
	}

	return nil
}
