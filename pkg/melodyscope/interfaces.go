package melodyscope

import (
	"context"

	"github.com/melodyscope/melodyscope/pkg/melodyscope/analysis"
	"github.com/melodyscope/melodyscope/pkg/melodyscope/fingerprint"
	"github.com/melodyscope/melodyscope/pkg/melodyscope/identify"
	"github.com/melodyscope/melodyscope/pkg/melodyscope/storage"
)

type Service interface {
	Identify(ctx context.Context, audioPath string) (*IdentificationResult, error)
	Compare(ctx context.Context, audioPathA, audioPathB string) (*ComparisonResult, error)
	RecordAnalysis(ctx context.Context, method analysis.Method, payload *analysis.Payload) (*analysis.Analysis, error)
	Render(analysisID string) ([]byte, string, error)
	RegisterTrack(ctx context.Context, audioPath, title string) (*storage.Track, error)
	GetTrack(trackID string) (*storage.Track, error)
	ListTracks() ([]storage.Track, error)
	ListAnalyses(trackID string) ([]analysis.Analysis, error)
	DeleteTrack(trackID string) error
	Close() error
}

type Storage interface {
	RegisterTrack(title, location, checksum string, durationSeconds float64, sampleRate int) (*storage.Track, error)
	GetTrackByID(trackID string) (*storage.Track, error)
	ListTracks() ([]storage.Track, error)
	DeleteTrackByID(trackID string) error
	AppendAnalysis(ctx context.Context, a *analysis.Analysis) error
	GetAnalysisByID(analysisID string) (*analysis.Analysis, error)
	ListAnalysesByTrack(trackID string) ([]analysis.Analysis, error)
	Close() error
}

// Fingerprinter extracts a compact audio fingerprint from a file on disk.
type Fingerprinter interface {
	Extract(ctx context.Context, audioPath string) (*fingerprint.Fingerprint, error)
}

// Lookup resolves a fingerprint against an external identification service.
type Lookup interface {
	Lookup(ctx context.Context, fp *fingerprint.Fingerprint) ([]identify.Candidate, error)
}

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}
