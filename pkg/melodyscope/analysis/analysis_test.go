package analysis

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func floatPtr(v float64) *float64 { return &v }

// fakeStore records appended analyses in memory.
type fakeStore struct {
	appended []*Analysis
	err      error
}

func (s *fakeStore) AppendAnalysis(ctx context.Context, a *Analysis) error {
	if s.err != nil {
		return s.err
	}
	s.appended = append(s.appended, a)
	return nil
}

func TestMethodsClosedSet(t *testing.T) {
	methods := Methods()
	if len(methods) != 10 {
		t.Fatalf("Expected 10 methods, got %d", len(methods))
	}
	for _, m := range methods {
		if !m.Valid() {
			t.Errorf("Enumerated method %q reported invalid", m)
		}
	}

	for _, bad := range []Method{"", "spectral", "DTW", "Chromaprint", "melody"} {
		if bad.Valid() {
			t.Errorf("Method %q must be outside the closed set", bad)
		}
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		method  Method
		payload *Payload
		wantErr error
	}{
		{
			name:    "invalid method",
			method:  "spectral",
			payload: &Payload{TrackID: "t1"},
			wantErr: ErrInvalidMethod,
		},
		{
			name:    "nil payload",
			method:  MethodDTW,
			payload: nil,
			wantErr: ErrPayloadMismatch,
		},
		{
			name:    "missing track reference",
			method:  MethodChromaprint,
			payload: &Payload{},
			wantErr: ErrPayloadMismatch,
		},
		{
			name:    "two-track method missing second track",
			method:  MethodDTW,
			payload: &Payload{TrackID: "t1", Score: floatPtr(0.5)},
			wantErr: ErrPayloadMismatch,
		},
		{
			name:    "two-track method missing score",
			method:  MethodMelodySimilarity,
			payload: &Payload{TrackID: "t1", OtherTrackID: "t2"},
			wantErr: ErrPayloadMismatch,
		},
		{
			name:    "score above one",
			method:  MethodDTW,
			payload: &Payload{TrackID: "t1", OtherTrackID: "t2", Score: floatPtr(1.2)},
			wantErr: ErrPayloadMismatch,
		},
		{
			name:    "one-track method with stray second track",
			method:  MethodChromaprint,
			payload: &Payload{TrackID: "t1", OtherTrackID: "t2"},
			wantErr: ErrPayloadMismatch,
		},
		{
			name:    "identification missing confidence",
			method:  MethodMusicIdentification,
			payload: &Payload{TrackID: "t1"},
			wantErr: ErrPayloadMismatch,
		},
		{
			name:   "identification candidate confidence out of range",
			method: MethodMusicIdentification,
			payload: &Payload{
				TrackID:    "t1",
				Confidence: floatPtr(0.9),
				Candidates: []MatchCandidate{{RecordingID: "r1", Confidence: 1.5}},
			},
			wantErr: ErrPayloadMismatch,
		},
		{
			name:    "valid dtw comparison",
			method:  MethodDTW,
			payload: &Payload{TrackID: "t1", OtherTrackID: "t2", Score: floatPtr(0.42)},
		},
		{
			name:    "valid cover detection",
			method:  MethodCoverDetection,
			payload: &Payload{TrackID: "t1", OtherTrackID: "t2", Score: floatPtr(1.0)},
		},
		{
			name:   "valid identification with no match",
			method: MethodMusicIdentification,
			payload: &Payload{
				TrackID:    "t1",
				Confidence: floatPtr(0),
				Candidates: nil,
			},
		},
		{
			name:    "valid chromaprint",
			method:  MethodChromaprint,
			payload: &Payload{TrackID: "t1"},
		},
		{
			name:    "other tolerates a pair of references",
			method:  MethodOther,
			payload: &Payload{TrackID: "t1", OtherTrackID: "t2"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.method, tc.payload)
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("Expected valid payload, got: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestWriterRecord(t *testing.T) {
	store := &fakeStore{}
	w := NewWriter(store)

	rec, err := w.Record(context.Background(), MethodDTW, &Payload{
		TrackID:      "t1",
		OtherTrackID: "t2",
		Score:        floatPtr(0.77),
		Summary:      map[string]any{"path_len": 42},
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	if rec.ID == "" {
		t.Error("Expected a generated record ID")
	}
	if rec.CreatedAt.IsZero() {
		t.Error("Expected a creation timestamp")
	}
	if rec.Score == nil || *rec.Score != 0.77 {
		t.Errorf("Score not carried through: %v", rec.Score)
	}
	if len(store.appended) != 1 {
		t.Fatalf("Expected exactly one append, got %d", len(store.appended))
	}
	if store.appended[0] != rec {
		t.Error("Stored record differs from returned record")
	}
	if rec.Summary["path_len"] != 42 {
		t.Errorf("Summary not carried through: %v", rec.Summary)
	}
}

func TestWriterRecordIdentification(t *testing.T) {
	store := &fakeStore{}
	w := NewWriter(store)

	rec, err := w.Record(context.Background(), MethodMusicIdentification, &Payload{
		TrackID:    "t1",
		Confidence: floatPtr(0.91),
		Candidates: []MatchCandidate{
			{RecordingID: "r1", Title: "Song", Artist: "Artist", Confidence: 0.91},
		},
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	// Confidence doubles as the record score when no explicit score is set.
	if rec.Score == nil || *rec.Score != 0.91 {
		t.Errorf("Expected score to fall back to confidence, got %v", rec.Score)
	}
	if rec.Summary["confidence"] != 0.91 {
		t.Errorf("Summary missing confidence: %v", rec.Summary)
	}
	if rec.Summary["candidate_count"] != 1 {
		t.Errorf("Summary missing candidate count: %v", rec.Summary)
	}
}

func TestWriterRejectionWritesNothing(t *testing.T) {
	store := &fakeStore{}
	w := NewWriter(store)

	_, err := w.Record(context.Background(), Method("bogus"), &Payload{TrackID: "t1"})
	if !errors.Is(err, ErrInvalidMethod) {
		t.Fatalf("Expected ErrInvalidMethod, got %v", err)
	}

	_, err = w.Record(context.Background(), MethodDTW, &Payload{TrackID: "t1"})
	if !errors.Is(err, ErrPayloadMismatch) {
		t.Fatalf("Expected ErrPayloadMismatch, got %v", err)
	}

	if len(store.appended) != 0 {
		t.Errorf("Rejected writes must not reach the store, found %d records", len(store.appended))
	}
}

func TestWriterStoreFailure(t *testing.T) {
	store := &fakeStore{err: fmt.Errorf("disk full")}
	w := NewWriter(store)

	_, err := w.Record(context.Background(), MethodChromaprint, &Payload{TrackID: "t1"})
	if err == nil {
		t.Fatal("Expected store failure to propagate")
	}
}
