package render

import (
	"encoding/json"
	"fmt"

	"github.com/melodyscope/melodyscope/pkg/melodyscope/analysis"
	"github.com/melodyscope/melodyscope/pkg/melodyscope/dtw"
	"github.com/melodyscope/melodyscope/pkg/melodyscope/pitch"
)

// Strategy selects how an analysis artifact is rendered.
type Strategy string

const (
	StrategyLite Strategy = "lite"
	StrategyFull Strategy = "full"
)

// Data carries the intermediate products a renderer may draw from. Any field
// may be nil; renderers degrade to whatever is available.
type Data struct {
	ContourA  *pitch.Contour
	ContourB  *pitch.Contour
	Alignment *dtw.Result
}

// Renderer turns a recorded analysis plus its intermediate data into a
// presentation artifact. Rendering is best-effort: a failure never invalidates
// the underlying record.
type Renderer interface {
	Render(a *analysis.Analysis, data *Data) ([]byte, error)
	ContentType() string
}

// New returns the renderer for a strategy, defaulting to lite.
func New(strategy Strategy) (Renderer, error) {
	switch strategy {
	case StrategyLite, "":
		return &LiteRenderer{}, nil
	case StrategyFull:
		return &FullRenderer{}, nil
	}
	return nil, fmt.Errorf("unknown render strategy %q", strategy)
}

// LiteRenderer emits a compact JSON summary suitable for terminals and
// machine consumption.
type LiteRenderer struct{}

func (r *LiteRenderer) ContentType() string { return "application/json" }

func (r *LiteRenderer) Render(a *analysis.Analysis, data *Data) ([]byte, error) {
	if a == nil {
		return nil, fmt.Errorf("rendering nil analysis")
	}

	doc := map[string]any{
		"id":       a.ID,
		"method":   a.Method.String(),
		"track_id": a.TrackID,
	}
	if a.OtherTrackID != "" {
		doc["other_track_id"] = a.OtherTrackID
	}
	if a.Score != nil {
		doc["score"] = *a.Score
	}
	if a.Summary != nil {
		doc["summary"] = a.Summary
	}
	if data != nil {
		if data.ContourA != nil {
			doc["contour_a_frames"] = data.ContourA.Len()
			doc["contour_a_voiced_ratio"] = data.ContourA.VoicedRatio()
		}
		if data.ContourB != nil {
			doc["contour_b_frames"] = data.ContourB.Len()
			doc["contour_b_voiced_ratio"] = data.ContourB.VoicedRatio()
		}
		if data.Alignment != nil {
			doc["alignment_path_len"] = len(data.Alignment.Path)
			doc["normalized_cost"] = data.Alignment.NormalizedCost
		}
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding render summary: %w", err)
	}
	return out, nil
}
