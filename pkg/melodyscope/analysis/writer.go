package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/melodyscope/melodyscope/pkg/logger"
)

// Store appends validated records durably. The append must be atomic: the
// record and all its payload fields become visible together or not at all.
type Store interface {
	AppendAnalysis(ctx context.Context, a *Analysis) error
}

// Writer is the single write path for analysis records. It validates the
// taxonomy and payload-shape invariants before anything reaches storage.
type Writer struct {
	store Store
	log   *logger.Logger
}

func NewWriter(store Store) *Writer {
	return &Writer{store: store, log: logger.GetLogger()}
}

// Record validates and persists one analysis outcome, returning the stored
// record with its generated identifier and timestamp.
func (w *Writer) Record(ctx context.Context, m Method, p *Payload) (*Analysis, error) {
	if err := Validate(m, p); err != nil {
		return nil, err
	}

	a := &Analysis{
		ID:           uuid.NewString(),
		Method:       m,
		TrackID:      p.TrackID,
		OtherTrackID: p.OtherTrackID,
		Score:        p.Score,
		Summary:      buildSummary(p),
		CreatedAt:    time.Now().UTC(),
	}
	if a.Score == nil && p.Confidence != nil {
		a.Score = p.Confidence
	}

	if err := w.store.AppendAnalysis(ctx, a); err != nil {
		return nil, fmt.Errorf("appending analysis: %w", err)
	}

	w.log.Infof("Recorded %s analysis %s for track %s", m, a.ID, a.TrackID)
	return a, nil
}

func buildSummary(p *Payload) map[string]any {
	summary := make(map[string]any, len(p.Summary)+2)
	for k, v := range p.Summary {
		summary[k] = v
	}
	if p.Confidence != nil {
		summary["confidence"] = *p.Confidence
	}
	if p.Candidates != nil {
		summary["candidates"] = p.Candidates
		summary["candidate_count"] = len(p.Candidates)
	}
	if len(summary) == 0 {
		return nil
	}
	return summary
}
