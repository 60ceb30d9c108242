package melodyscope

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/melodyscope/melodyscope/pkg/logger"
	"github.com/melodyscope/melodyscope/pkg/melodyscope/analysis"
	"github.com/melodyscope/melodyscope/pkg/melodyscope/audio"
	"github.com/melodyscope/melodyscope/pkg/melodyscope/dtw"
	"github.com/melodyscope/melodyscope/pkg/melodyscope/fingerprint"
	"github.com/melodyscope/melodyscope/pkg/melodyscope/identify"
	"github.com/melodyscope/melodyscope/pkg/melodyscope/pitch"
	"github.com/melodyscope/melodyscope/pkg/melodyscope/render"
	"github.com/melodyscope/melodyscope/pkg/melodyscope/storage"
)

// melodyService is the default implementation of the Service interface.
type melodyService struct {
	storage       Storage
	writer        *analysis.Writer
	fingerprinter Fingerprinter
	lookup        Lookup
	estimator     pitch.Estimator
	renderer      render.Renderer
	log           Logger
	config        *Config
}

// NewSQLiteStorage creates the default SQLite storage backend.
func NewSQLiteStorage(dbPath string) (Storage, error) {
	db, err := storage.NewDBClientWithPath(dbPath)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func NewService(opts ...Option) (Service, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}

	var stor Storage
	var err error
	if cfg.Storage != nil {
		stor = cfg.Storage
	} else {
		stor, err = NewSQLiteStorage(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage: %w", err)
		}
	}

	fp := cfg.Fingerprinter
	if fp == nil {
		fp = fingerprint.NewExtractor()
	}

	lookup := cfg.Lookup
	if lookup == nil {
		client := identify.NewClient(cfg.LookupEndpoint, cfg.APIKey)
		if cfg.HTTPClient != nil {
			client.HTTPClient = cfg.HTTPClient
		}
		lookup = client
	}

	renderer := cfg.Renderer
	if renderer == nil {
		renderer, err = render.New(cfg.RenderStrategy)
		if err != nil {
			stor.Close()
			return nil, err
		}
	}

	return &melodyService{
		storage:       stor,
		writer:        analysis.NewWriter(stor),
		fingerprinter: fp,
		lookup:        lookup,
		estimator:     pitch.NewAutocorrEstimator(pitch.DefaultParams()),
		renderer:      renderer,
		log:           cfg.Logger,
		config:        cfg,
	}, nil
}

// Identify fingerprints an audio file, resolves it against the external
// lookup service, and persists a music_identification record. A well-formed
// "no match" reply still produces a record with zero confidence.
func (s *melodyService) Identify(ctx context.Context, audioPath string) (*IdentificationResult, error) {
	s.log.Infof("Identifying audio: %s", audioPath)

	fp, err := s.fingerprinter.Extract(ctx, audioPath)
	if err != nil {
		return nil, fmt.Errorf("fingerprint extraction failed: %w", err)
	}

	track, err := s.ensureTrack(audioPath, "", fp.Duration, 0)
	if err != nil {
		return nil, err
	}

	candidates, err := s.lookup.Lookup(ctx, fp)
	if err != nil {
		return nil, fmt.Errorf("lookup failed: %w", err)
	}
	s.log.Infof("Lookup returned %d candidates", len(candidates))

	confidence := 0.0
	var best *identify.Candidate
	if len(candidates) > 0 {
		best = &candidates[0]
		confidence = best.Confidence
	}

	payloadCandidates := make([]analysis.MatchCandidate, len(candidates))
	for i, c := range candidates {
		payloadCandidates[i] = analysis.MatchCandidate{
			RecordingID: c.RecordingID,
			Title:       c.Title,
			Artist:      c.Artist,
			Confidence:  c.Confidence,
		}
	}

	rec, err := s.writer.Record(ctx, analysis.MethodMusicIdentification, &analysis.Payload{
		TrackID:    track.ID,
		Confidence: &confidence,
		Candidates: payloadCandidates,
		Summary: map[string]any{
			"fingerprint_duration": fp.Duration,
		},
	})
	if err != nil {
		return nil, err
	}

	result := &IdentificationResult{
		Analysis:    rec,
		Fingerprint: fp,
		Candidates:  candidates,
		Best:        best,
	}
	s.renderInto(rec, nil, &result.Artifact, &result.ArtifactType)
	return result, nil
}

// Compare extracts the pitch contour of each file, aligns them with dynamic
// time warping, and persists a dtw record with the similarity score. When
// melody analysis is disabled the comparison degrades to an "other" record
// with zero score instead of failing.
func (s *melodyService) Compare(ctx context.Context, audioPathA, audioPathB string) (*ComparisonResult, error) {
	s.log.Infof("Comparing %s against %s", audioPathA, audioPathB)

	samplesA, rateA, err := s.loadSamples(ctx, audioPathA)
	if err != nil {
		return nil, err
	}
	samplesB, rateB, err := s.loadSamples(ctx, audioPathB)
	if err != nil {
		return nil, err
	}

	trackA, err := s.ensureTrack(audioPathA, "", audio.Duration(samplesA, rateA), rateA)
	if err != nil {
		return nil, err
	}
	trackB, err := s.ensureTrack(audioPathB, "", audio.Duration(samplesB, rateB), rateB)
	if err != nil {
		return nil, err
	}

	if !s.config.MelodyEnabled {
		zero := 0.0
		rec, err := s.writer.Record(ctx, analysis.MethodOther, &analysis.Payload{
			TrackID:      trackA.ID,
			OtherTrackID: trackB.ID,
			Score:        &zero,
			Summary: map[string]any{
				"reason": "melody analysis disabled",
			},
		})
		if err != nil {
			return nil, err
		}
		result := &ComparisonResult{Analysis: rec, Similarity: 0}
		s.renderInto(rec, nil, &result.Artifact, &result.ArtifactType)
		return result, nil
	}

	contourA, err := s.estimator.EstimateContour(ctx, samplesA, rateA)
	if err != nil {
		return nil, fmt.Errorf("pitch estimation failed for %s: %w", audioPathA, err)
	}
	contourB, err := s.estimator.EstimateContour(ctx, samplesB, rateB)
	if err != nil {
		return nil, fmt.Errorf("pitch estimation failed for %s: %w", audioPathB, err)
	}
	s.log.Infof("Contours: %d and %d frames (voiced %.2f / %.2f)",
		contourA.Len(), contourB.Len(), contourA.VoicedRatio(), contourB.VoicedRatio())

	alignOpts := dtw.DefaultOptions()
	if s.config.MaxContourLen > 0 {
		alignOpts.MaxContourLen = s.config.MaxContourLen
	}
	alignment, err := dtw.Align(ctx, contourA, contourB, alignOpts)
	if err != nil {
		return nil, fmt.Errorf("alignment failed: %w", err)
	}

	rec, err := s.writer.Record(ctx, analysis.MethodDTW, &analysis.Payload{
		TrackID:      trackA.ID,
		OtherTrackID: trackB.ID,
		Score:        &alignment.Similarity,
		Summary: map[string]any{
			"normalized_cost":  alignment.NormalizedCost,
			"path_len":         len(alignment.Path),
			"contour_a_frames": contourA.Len(),
			"contour_b_frames": contourB.Len(),
		},
	})
	if err != nil {
		return nil, err
	}

	result := &ComparisonResult{
		Analysis:   rec,
		Similarity: alignment.Similarity,
		Alignment:  alignment,
		ContourA:   contourA,
		ContourB:   contourB,
	}
	s.renderInto(rec, &render.Data{
		ContourA:  contourA,
		ContourB:  contourB,
		Alignment: alignment,
	}, &result.Artifact, &result.ArtifactType)
	return result, nil
}

// RecordAnalysis persists an externally produced analysis outcome through the
// same validated write path the built-in analyses use.
func (s *melodyService) RecordAnalysis(ctx context.Context, method analysis.Method, payload *analysis.Payload) (*analysis.Analysis, error) {
	return s.writer.Record(ctx, method, payload)
}

// Render regenerates the presentation artifact for a stored record. Contour
// data is not persisted, so re-rendering a comparison falls back to the
// score-only form.
func (s *melodyService) Render(analysisID string) ([]byte, string, error) {
	rec, err := s.storage.GetAnalysisByID(analysisID)
	if err != nil {
		return nil, "", err
	}
	artifact, err := s.renderer.Render(rec, nil)
	if err != nil {
		return nil, "", fmt.Errorf("rendering analysis %s: %w", analysisID, err)
	}
	return artifact, s.renderer.ContentType(), nil
}

// RegisterTrack stores a track reference without running any analysis.
func (s *melodyService) RegisterTrack(ctx context.Context, audioPath, title string) (*storage.Track, error) {
	duration := 0.0
	sampleRate := 0
	if strings.EqualFold(filepath.Ext(audioPath), ".wav") {
		if samples, rate, err := audio.ReadWAV(audioPath); err == nil {
			duration = audio.Duration(samples, rate)
			sampleRate = rate
		}
	}
	return s.ensureTrack(audioPath, title, duration, sampleRate)
}

func (s *melodyService) GetTrack(trackID string) (*storage.Track, error) {
	return s.storage.GetTrackByID(trackID)
}

func (s *melodyService) ListTracks() ([]storage.Track, error) {
	return s.storage.ListTracks()
}

func (s *melodyService) ListAnalyses(trackID string) ([]analysis.Analysis, error) {
	return s.storage.ListAnalysesByTrack(trackID)
}

// DeleteTrack removes a track and all analyses referencing it.
func (s *melodyService) DeleteTrack(trackID string) error {
	return s.storage.DeleteTrackByID(trackID)
}

func (s *melodyService) Close() error {
	return s.storage.Close()
}

// ensureTrack registers the file as a track, deduplicating on content
// checksum so repeat analyses of the same bytes share one reference.
func (s *melodyService) ensureTrack(audioPath, title string, durationSeconds float64, sampleRate int) (*storage.Track, error) {
	checksum, err := checksumFile(audioPath)
	if err != nil {
		return nil, fmt.Errorf("checksumming %s: %w", audioPath, err)
	}
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	}
	track, err := s.storage.RegisterTrack(title, audioPath, checksum, durationSeconds, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("registering track: %w", err)
	}
	return track, nil
}

// loadSamples reads a file as normalized mono samples, converting through
// ffmpeg first unless it is already a WAV.
func (s *melodyService) loadSamples(ctx context.Context, audioPath string) ([]float64, int, error) {
	wavPath := audioPath
	if !strings.EqualFold(filepath.Ext(audioPath), ".wav") {
		converted, err := audio.ConvertToMonoWAV(ctx, audioPath, s.config.TempDir, audio.ConvertWAVConfig{
			SampleRate: s.config.SampleRate,
		})
		if err != nil {
			return nil, 0, fmt.Errorf("audio conversion failed: %w", err)
		}
		defer os.Remove(converted)
		wavPath = converted
	}

	samples, rate, err := audio.ReadWAV(wavPath)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read WAV file: %w", err)
	}
	return samples, rate, nil
}

// renderInto renders best-effort: a failure is logged and the record stands.
func (s *melodyService) renderInto(rec *analysis.Analysis, data *render.Data, artifact *[]byte, contentType *string) {
	out, err := s.renderer.Render(rec, data)
	if err != nil {
		s.log.Warnf("Rendering analysis %s failed: %v", rec.ID, err)
		return
	}
	*artifact = out
	*contentType = s.renderer.ContentType()
}

func checksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
