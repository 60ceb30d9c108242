package main

import (
	"fmt"
	"net/http"
)

// setupRoutes registers all HTTP routes and middleware.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)

	mux.HandleFunc("/api/tracks", s.handleTracks)
	mux.HandleFunc("/api/tracks/", s.handleTrack)

	mux.HandleFunc("/api/identify", s.handleIdentify)
	mux.HandleFunc("/api/compare", s.handleCompare)

	mux.HandleFunc("/api/analyses", s.handleRecordAnalysis)
	mux.HandleFunc("/api/analyses/", s.handleAnalysisArtifact)

	return corsMiddleware(s.config.AllowedOrigins)(mux)
}

// corsMiddleware adds CORS headers to responses.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := false
			if len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*") {
				w.Header().Set("Access-Control-Allow-Origin", "*")
				allowed = true
			} else {
				for _, allowedOrigin := range allowedOrigins {
					if allowedOrigin == origin {
						w.Header().Set("Access-Control-Allow-Origin", origin)
						allowed = true
						break
					}
				}
			}

			if allowed {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
				w.Header().Set("Access-Control-Max-Age", "3600")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	handler := s.setupRoutes()

	addr := fmt.Sprintf(":%d", s.config.Port)
	s.log.Infof("melodyscope server starting on %s", addr)
	s.log.Infof("   Database: %s", s.config.DBPath)
	s.log.Infof("   Sample Rate: %d Hz", s.config.SampleRate)
	s.log.Infof("Endpoints:")
	s.log.Infof("   GET    /health                      - Health check")
	s.log.Infof("   GET    /api/tracks                  - List tracks")
	s.log.Infof("   POST   /api/tracks                  - Register track from file")
	s.log.Infof("   GET    /api/tracks/{id}             - Get track by ID")
	s.log.Infof("   DELETE /api/tracks/{id}             - Delete track and its analyses")
	s.log.Infof("   GET    /api/tracks/{id}/analyses    - List analyses for a track")
	s.log.Infof("   POST   /api/identify                - Identify an uploaded file")
	s.log.Infof("   POST   /api/compare                 - Compare two uploaded files")
	s.log.Infof("   POST   /api/analyses                - Record an external analysis")
	s.log.Infof("   GET    /api/analyses/{id}/artifact  - Render a stored analysis")

	return http.ListenAndServe(addr, handler)
}
