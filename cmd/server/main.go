package main

import (
	"flag"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/melodyscope/melodyscope/pkg/melodyscope"
	"github.com/melodyscope/melodyscope/pkg/melodyscope/render"
)

var (
	port           int
	dbPath         string
	tempDir        string
	sampleRate     int
	lookupEndpoint string
	apiKey         string
	renderStrategy string
	allowedOrigins string
)

func init() {
	godotenv.Load()

	flag.IntVar(&port, "port", 8080, "HTTP server port")
	flag.StringVar(&dbPath, "db", getEnvOrDefault("MELODYSCOPE_DB_PATH", "melodyscope.sqlite3"), "Path to SQLite database")
	flag.StringVar(&tempDir, "temp", getEnvOrDefault("MELODYSCOPE_TEMP_DIR", "/tmp"), "Temporary directory")
	flag.IntVar(&sampleRate, "rate", 22050, "Audio sample rate")
	flag.StringVar(&lookupEndpoint, "endpoint", getEnvOrDefault("MELODYSCOPE_LOOKUP_ENDPOINT", ""), "Identification lookup endpoint")
	flag.StringVar(&apiKey, "apikey", getEnvOrDefault("MELODYSCOPE_API_KEY", ""), "Identification service API key")
	flag.StringVar(&renderStrategy, "render", getEnvOrDefault("MELODYSCOPE_RENDER", "lite"), "Render strategy: lite or full")
	flag.StringVar(&allowedOrigins, "origins", "*", "Comma-separated list of allowed CORS origins (use * for all)")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	flag.Parse()

	var origins []string
	if allowedOrigins == "*" {
		origins = []string{"*"}
	} else {
		origins = strings.Split(allowedOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
	}

	service, err := melodyscope.NewService(
		melodyscope.WithDBPath(dbPath),
		melodyscope.WithTempDir(tempDir),
		melodyscope.WithSampleRate(sampleRate),
		melodyscope.WithLookupEndpoint(lookupEndpoint),
		melodyscope.WithAPIKey(apiKey),
		melodyscope.WithRenderStrategy(render.Strategy(renderStrategy)),
	)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}
	defer service.Close()

	config := &ServerConfig{
		Port:           port,
		DBPath:         dbPath,
		TempDir:        tempDir,
		SampleRate:     sampleRate,
		AllowedOrigins: origins,
	}

	server := NewServer(service, config)
	if err := server.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
