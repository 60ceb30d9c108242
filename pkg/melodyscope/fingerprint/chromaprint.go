package fingerprint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/melodyscope/melodyscope/pkg/melodyscope/audio"
)

// ErrExtraction marks audio that decoded fine but produced no usable
// signature (e.g. silence).
var ErrExtraction = errors.New("fingerprint extraction error")

// Fingerprint is an opaque Chromaprint signature plus the duration it was
// computed over. It is derived per request and only persisted when attached
// to an analysis record.
type Fingerprint struct {
	Token    string
	Duration float64
}

// Extractor derives fingerprints by shelling out to fpcalc (the Chromaprint
// CLI). It performs no network I/O.
type Extractor struct {
	FpcalcPath string
	Timeout    time.Duration
}

func NewExtractor() *Extractor {
	path := os.Getenv("FPCALC_PATH")
	if path == "" {
		path = "fpcalc"
	}
	return &Extractor{
		FpcalcPath: path,
		Timeout:    30 * time.Second,
	}
}

// Extract fingerprints the audio file at path. Decode failures are reported
// as audio.ErrDecode; an empty signature as ErrExtraction.
func (e *Extractor) Extract(ctx context.Context, audioPath string) (*Fingerprint, error) {
	if _, err := os.Stat(audioPath); err != nil {
		return nil, fmt.Errorf("%w: %v", audio.ErrDecode, err)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, e.FpcalcPath, "-json", audioPath)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		return nil, fmt.Errorf("%w: fpcalc failed: %v (%s)", audio.ErrDecode, err, msg)
	}

	return parseFpcalcOutput(stdout.Bytes())
}

// parseFpcalcOutput pulls the signature and duration out of fpcalc's -json
// output.
func parseFpcalcOutput(out []byte) (*Fingerprint, error) {
	if !gjson.ValidBytes(out) {
		return nil, fmt.Errorf("%w: fpcalc produced invalid JSON", ErrExtraction)
	}

	token := gjson.GetBytes(out, "fingerprint").String()
	duration := gjson.GetBytes(out, "duration").Float()

	if token == "" {
		return nil, fmt.Errorf("%w: empty signature", ErrExtraction)
	}
	if duration <= 0 {
		return nil, fmt.Errorf("%w: missing duration", ErrExtraction)
	}

	return &Fingerprint{Token: token, Duration: duration}, nil
}
