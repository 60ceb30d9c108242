package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/melodyscope/melodyscope/pkg/logger"
	"github.com/melodyscope/melodyscope/pkg/melodyscope"
	"github.com/melodyscope/melodyscope/pkg/melodyscope/render"
	"github.com/melodyscope/melodyscope/pkg/melodyscope/storage"
)

// Global flags
var (
	dbPath         string
	tempDir        string
	sampleRate     int
	lookupEndpoint string
	apiKey         string
	renderStrategy string
	melodyEnabled  bool
)

func init() {
	flag.StringVar(&dbPath, "db", getEnvOrDefault("MELODYSCOPE_DB_PATH", "melodyscope.sqlite3"), "Path to the SQLite database file")
	flag.StringVar(&tempDir, "temp", getEnvOrDefault("MELODYSCOPE_TEMP_DIR", "/tmp"), "Directory for temporary audio conversion files")
	flag.IntVar(&sampleRate, "rate", 22050, "Audio sample rate for processing")
	flag.StringVar(&lookupEndpoint, "endpoint", getEnvOrDefault("MELODYSCOPE_LOOKUP_ENDPOINT", ""), "Identification lookup endpoint (default AcoustID)")
	flag.StringVar(&apiKey, "apikey", getEnvOrDefault("MELODYSCOPE_API_KEY", ""), "Identification service API key")
	flag.StringVar(&renderStrategy, "render", "lite", "Render strategy: lite or full")
	flag.BoolVar(&melodyEnabled, "melody", true, "Enable the pitch/DTW comparison pipeline")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func createService() (melodyscope.Service, error) {
	return melodyscope.NewService(
		melodyscope.WithDBPath(dbPath),
		melodyscope.WithTempDir(tempDir),
		melodyscope.WithSampleRate(sampleRate),
		melodyscope.WithLookupEndpoint(lookupEndpoint),
		melodyscope.WithAPIKey(apiKey),
		melodyscope.WithRenderStrategy(render.Strategy(renderStrategy)),
		melodyscope.WithMelodyEnabled(melodyEnabled),
	)
}

func main() {
	log := logger.GetLogger()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	log.Infof("Executing command: %s", command)

	switch command {
	case "identify":
		handleIdentify()
	case "compare":
		handleCompare()
	case "tracks":
		handleTracks()
	case "analyses":
		handleAnalyses()
	case "delete":
		handleDelete()
	case "migrate":
		handleMigrate()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`melodyscope - audio identification and melody comparison

Usage:
  melodyscope identify <audio_file> [flags]
  melodyscope compare <audio_file_a> <audio_file_b> [flags]
  melodyscope tracks [flags]
  melodyscope analyses <track_id> [flags]
  melodyscope delete <track_id> [flags]
  melodyscope migrate [flags]

Flags:`)
	flag.PrintDefaults()
}

func handleIdentify() {
	args, flagArgs := splitArgs(os.Args[2:], 1)
	if len(args) < 1 {
		fmt.Println("Usage: melodyscope identify <audio_file>")
		os.Exit(1)
	}
	parseGlobalFlags(flagArgs)

	svc := mustCreateService()
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	result, err := svc.Identify(ctx, args[0])
	if err != nil {
		fmt.Printf("Identification failed: %v\n", err)
		os.Exit(1)
	}

	if result.Best == nil {
		fmt.Println("No match found")
	} else {
		fmt.Printf("Best match: %s - %s (confidence %.2f)\n", result.Best.Artist, result.Best.Title, result.Best.Confidence)
		for i, c := range result.Candidates {
			fmt.Printf("  %2d. %-40s %-24s %.2f\n", i+1, c.Title, c.Artist, c.Confidence)
		}
	}
	fmt.Printf("Recorded analysis %s\n", result.Analysis.ID)
	writeArtifact(result.Artifact, result.ArtifactType, result.Analysis.ID)
}

func handleCompare() {
	args, flagArgs := splitArgs(os.Args[2:], 2)
	if len(args) < 2 {
		fmt.Println("Usage: melodyscope compare <audio_file_a> <audio_file_b>")
		os.Exit(1)
	}
	parseGlobalFlags(flagArgs)

	svc := mustCreateService()
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	result, err := svc.Compare(ctx, args[0], args[1])
	if err != nil {
		fmt.Printf("Comparison failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Similarity: %.4f\n", result.Similarity)
	if result.Alignment != nil {
		fmt.Printf("Normalized cost: %.4f over %d aligned frames\n",
			result.Alignment.NormalizedCost, len(result.Alignment.Path))
	}
	fmt.Printf("Recorded analysis %s\n", result.Analysis.ID)
	writeArtifact(result.Artifact, result.ArtifactType, result.Analysis.ID)
}

func handleTracks() {
	parseGlobalFlags(os.Args[2:])

	svc := mustCreateService()
	defer svc.Close()

	tracks, err := svc.ListTracks()
	if err != nil {
		fmt.Printf("Failed to list tracks: %v\n", err)
		os.Exit(1)
	}

	if len(tracks) == 0 {
		fmt.Println("No tracks registered")
		return
	}
	fmt.Printf("%-36s  %-30s  %8s  %s\n", "ID", "TITLE", "DURATION", "LOCATION")
	for _, t := range tracks {
		fmt.Printf("%-36s  %-30s  %7.1fs  %s\n", t.ID, t.Title, t.DurationSeconds, t.Location)
	}
}

func handleAnalyses() {
	args, flagArgs := splitArgs(os.Args[2:], 1)
	if len(args) < 1 {
		fmt.Println("Usage: melodyscope analyses <track_id>")
		os.Exit(1)
	}
	parseGlobalFlags(flagArgs)

	svc := mustCreateService()
	defer svc.Close()

	analyses, err := svc.ListAnalyses(args[0])
	if err != nil {
		fmt.Printf("Failed to list analyses: %v\n", err)
		os.Exit(1)
	}

	if len(analyses) == 0 {
		fmt.Println("No analyses recorded for this track")
		return
	}
	for _, a := range analyses {
		score := "-"
		if a.Score != nil {
			score = fmt.Sprintf("%.4f", *a.Score)
		}
		fmt.Printf("%s  %-22s  score=%-8s  %s\n", a.ID, a.Method, score, a.CreatedAt.Format(time.RFC3339))
	}
}

func handleDelete() {
	args, flagArgs := splitArgs(os.Args[2:], 1)
	if len(args) < 1 {
		fmt.Println("Usage: melodyscope delete <track_id>")
		os.Exit(1)
	}
	parseGlobalFlags(flagArgs)

	svc := mustCreateService()
	defer svc.Close()

	if err := svc.DeleteTrack(args[0]); err != nil {
		fmt.Printf("Failed to delete track: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Deleted track %s and its analyses\n", args[0])
}

func handleMigrate() {
	parseGlobalFlags(os.Args[2:])

	db, err := storage.NewDBClientWithPath(dbPath)
	if err != nil {
		fmt.Printf("Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.RebuildMethodConstraint(); err != nil {
		fmt.Printf("Migration failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Analyses method constraint rebuilt")
}

func mustCreateService() melodyscope.Service {
	svc, err := createService()
	if err != nil {
		fmt.Printf("Failed to create service: %v\n", err)
		os.Exit(1)
	}
	return svc
}

// splitArgs separates up to n leading positional arguments from the flags
// that follow them.
func splitArgs(args []string, n int) (positional, flags []string) {
	for i, arg := range args {
		if len(positional) == n || (len(arg) > 0 && arg[0] == '-') {
			flags = args[i:]
			break
		}
		positional = append(positional, arg)
	}
	return positional, flags
}

func parseGlobalFlags(args []string) {
	flag.CommandLine.Parse(args)
}

// writeArtifact saves a rendered artifact next to the working directory.
func writeArtifact(artifact []byte, contentType, analysisID string) {
	if len(artifact) == 0 {
		return
	}
	ext := ".json"
	if contentType == "image/png" {
		ext = ".png"
	}
	path := "analysis-" + analysisID + ext
	if err := os.WriteFile(path, artifact, 0o644); err != nil {
		logger.GetLogger().Warnf("Failed to write artifact: %v", err)
		return
	}
	fmt.Printf("Artifact written to %s\n", path)
}
