package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/melodyscope/melodyscope/pkg/logger"
	"github.com/melodyscope/melodyscope/pkg/melodyscope"
	"github.com/melodyscope/melodyscope/pkg/melodyscope/analysis"
	"github.com/melodyscope/melodyscope/pkg/melodyscope/identify"
)

const maxUploadBytes = 64 << 20

// Server encapsulates the HTTP server and its dependencies.
type Server struct {
	service melodyscope.Service
	config  *ServerConfig
	log     melodyscope.Logger
}

func NewServer(service melodyscope.Service, config *ServerConfig) *Server {
	return &Server{
		service: service,
		config:  config,
		log:     logger.GetLogger(),
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("Failed to encode JSON response: %v", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

// handleRoot handles GET /
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"service": "melodyscope API",
		"version": "1.0.0",
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleTracks handles GET and POST /api/tracks
func (s *Server) handleTracks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		tracks, err := s.service.ListTracks()
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.respondJSON(w, http.StatusOK, map[string]any{"tracks": tracks, "count": len(tracks)})

	case http.MethodPost:
		path, cleanup, err := s.saveUpload(r, "audio")
		if err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		defer cleanup()

		title := r.FormValue("title")
		track, err := s.service.RegisterTrack(r.Context(), path, title)
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.respondJSON(w, http.StatusCreated, track)

	default:
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleTrack handles GET/DELETE /api/tracks/{id} and GET /api/tracks/{id}/analyses
func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/tracks/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		s.respondError(w, http.StatusBadRequest, "missing track id")
		return
	}
	trackID := parts[0]

	if len(parts) == 2 && parts[1] == "analyses" {
		if r.Method != http.MethodGet {
			s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		analyses, err := s.service.ListAnalyses(trackID)
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.respondJSON(w, http.StatusOK, map[string]any{"analyses": analyses, "count": len(analyses)})
		return
	}

	switch r.Method {
	case http.MethodGet:
		track, err := s.service.GetTrack(trackID)
		if err != nil {
			s.respondError(w, http.StatusNotFound, fmt.Sprintf("track %s not found", trackID))
			return
		}
		s.respondJSON(w, http.StatusOK, track)

	case http.MethodDelete:
		if err := s.service.DeleteTrack(trackID); err != nil {
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.respondJSON(w, http.StatusOK, map[string]any{"deleted": trackID})

	default:
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleIdentify handles POST /api/identify
func (s *Server) handleIdentify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	path, cleanup, err := s.saveUpload(r, "audio")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer cleanup()

	result, err := s.service.Identify(r.Context(), path)
	if err != nil {
		s.respondError(w, identifyStatus(err), err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"analysis":   result.Analysis,
		"candidates": result.Candidates,
		"best":       result.Best,
	})
}

// handleCompare handles POST /api/compare
func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	pathA, cleanupA, err := s.saveUpload(r, "audio_a")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer cleanupA()

	pathB, cleanupB, err := s.saveUpload(r, "audio_b")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer cleanupB()

	result, err := s.service.Compare(r.Context(), pathA, pathB)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"analysis":   result.Analysis,
		"similarity": result.Similarity,
	})
}

// handleRecordAnalysis handles POST /api/analyses
func (s *Server) handleRecordAnalysis(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req RecordAnalysisRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	rec, err := s.service.RecordAnalysis(r.Context(), analysis.Method(req.Method), &analysis.Payload{
		TrackID:      req.TrackID,
		OtherTrackID: req.OtherTrackID,
		Score:        req.Score,
		Confidence:   req.Confidence,
		Summary:      req.Summary,
	})
	if err != nil {
		if errors.Is(err, analysis.ErrInvalidMethod) || errors.Is(err, analysis.ErrPayloadMismatch) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, rec)
}

// handleAnalysisArtifact handles GET /api/analyses/{id}/artifact
func (s *Server) handleAnalysisArtifact(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/analyses/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 || parts[1] != "artifact" {
		http.NotFound(w, r)
		return
	}

	artifact, contentType, err := s.service.Render(parts[0])
	if err != nil {
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(artifact)
}

// saveUpload writes a multipart file field to the temp directory and returns
// its path with a cleanup function.
func (s *Server) saveUpload(r *http.Request, field string) (string, func(), error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return "", nil, fmt.Errorf("parsing multipart form: %w", err)
	}

	file, header, err := r.FormFile(field)
	if err != nil {
		return "", nil, fmt.Errorf("missing %q file field", field)
	}
	defer file.Close()

	ext := filepath.Ext(header.Filename)
	tmp, err := os.CreateTemp(s.config.TempDir, "upload-*"+ext)
	if err != nil {
		return "", nil, fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", nil, fmt.Errorf("saving upload: %w", err)
	}
	tmp.Close()

	path := tmp.Name()
	return path, func() { os.Remove(path) }, nil
}

// identifyStatus maps lookup failures to HTTP statuses.
func identifyStatus(err error) int {
	switch {
	case errors.Is(err, identify.ErrLookupTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, identify.ErrServiceUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, identify.ErrInvalidResponse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
