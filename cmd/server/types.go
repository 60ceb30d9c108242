package main

// ServerConfig holds server configuration.
type ServerConfig struct {
	Port           int
	DBPath         string
	TempDir        string
	SampleRate     int
	AllowedOrigins []string
}

// ErrorResponse is the JSON body for failed requests.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// RecordAnalysisRequest is the request body for POST /api/analyses.
type RecordAnalysisRequest struct {
	Method       string         `json:"method"`
	TrackID      string         `json:"track_id"`
	OtherTrackID string         `json:"other_track_id,omitempty"`
	Score        *float64       `json:"score,omitempty"`
	Confidence   *float64       `json:"confidence,omitempty"`
	Summary      map[string]any `json:"summary,omitempty"`
}
