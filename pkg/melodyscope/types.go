package melodyscope

import (
	"github.com/melodyscope/melodyscope/pkg/melodyscope/analysis"
	"github.com/melodyscope/melodyscope/pkg/melodyscope/dtw"
	"github.com/melodyscope/melodyscope/pkg/melodyscope/fingerprint"
	"github.com/melodyscope/melodyscope/pkg/melodyscope/identify"
	"github.com/melodyscope/melodyscope/pkg/melodyscope/pitch"
)

// IdentificationResult is the outcome of identifying one track against the
// external lookup service. An empty Candidates slice is a valid "no match".
type IdentificationResult struct {
	Analysis     *analysis.Analysis // persisted record, never nil on success
	Fingerprint  *fingerprint.Fingerprint
	Candidates   []identify.Candidate // ranked by confidence, descending
	Best         *identify.Candidate  // nil when Candidates is empty
	Artifact     []byte               // rendered artifact; nil when rendering failed
	ArtifactType string
}

// ComparisonResult is the outcome of a melodic-contour comparison between two
// tracks.
type ComparisonResult struct {
	Analysis     *analysis.Analysis
	Similarity   float64
	Alignment    *dtw.Result    // nil when melody analysis is disabled
	ContourA     *pitch.Contour // nil when melody analysis is disabled
	ContourB     *pitch.Contour
	Artifact     []byte
	ArtifactType string
}
