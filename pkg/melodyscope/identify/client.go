package identify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/melodyscope/melodyscope/pkg/logger"
	"github.com/melodyscope/melodyscope/pkg/melodyscope/fingerprint"
)

// Error taxonomy for the lookup call. Timeout and unavailability are
// transient and retried with backoff; an unparseable reply is not.
var (
	ErrLookupTimeout      = errors.New("identification lookup timed out")
	ErrServiceUnavailable = errors.New("identification service unavailable")
	ErrInvalidResponse    = errors.New("invalid identification response")
)

const (
	DefaultEndpoint   = "https://api.acoustid.org/v2/lookup"
	DefaultTimeout    = 10 * time.Second
	DefaultMaxRetries = 2
	defaultBackoff    = 500 * time.Millisecond
)

// Candidate is one ranked external match.
type Candidate struct {
	RecordingID string  `json:"recording_id"`
	Title       string  `json:"title"`
	Artist      string  `json:"artist"`
	Confidence  float64 `json:"confidence"`
}

// Client calls an AcoustID-style lookup service keyed by fingerprint and
// duration. Every call is bounded by a per-attempt timeout; transient
// transport failures are retried up to MaxRetries times with exponential
// backoff.
type Client struct {
	Endpoint   string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
	HTTPClient *http.Client

	backoff time.Duration
	log     *logger.Logger
}

func NewClient(endpoint, apiKey string) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		Endpoint:   endpoint,
		APIKey:     apiKey,
		Timeout:    DefaultTimeout,
		MaxRetries: DefaultMaxRetries,
		HTTPClient: &http.Client{},
		backoff:    defaultBackoff,
		log:        logger.GetLogger(),
	}
}

// Lookup returns candidate matches ranked by confidence, descending. An
// empty slice is a successful "no match" outcome, not an error.
func (c *Client) Lookup(ctx context.Context, fp *fingerprint.Fingerprint) ([]Candidate, error) {
	var lastErr error
	backoff := c.backoff

	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			c.log.Warnf("Lookup attempt %d/%d after transient failure: %v", attempt+1, c.MaxRetries+1, lastErr)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrLookupTimeout, ctx.Err())
			}
			backoff *= 2
		}

		candidates, err := c.lookupOnce(ctx, fp)
		if err == nil {
			return candidates, nil
		}
		if !errors.Is(err, ErrLookupTimeout) && !errors.Is(err, ErrServiceUnavailable) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
	}

	return nil, lastErr
}

func (c *Client) lookupOnce(ctx context.Context, fp *fingerprint.Fingerprint) ([]Candidate, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	params := url.Values{}
	params.Set("client", c.APIKey)
	params.Set("fingerprint", fp.Token)
	params.Set("duration", strconv.Itoa(int(fp.Duration)))
	params.Set("meta", "recordings")

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, c.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", ErrInvalidResponse, err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if attemptCtx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrLookupTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrServiceUnavailable, err)
	}

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: status %d", ErrServiceUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrInvalidResponse, resp.StatusCode, body)
	}

	return parseLookupResponse(body)
}

// parseLookupResponse maps the service reply to ranked candidates. A
// well-formed reply with zero results is valid.
func parseLookupResponse(body []byte) ([]Candidate, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: not JSON", ErrInvalidResponse)
	}
	if status := gjson.GetBytes(body, "status").String(); status != "ok" {
		return nil, fmt.Errorf("%w: service status %q", ErrInvalidResponse, status)
	}

	results := gjson.GetBytes(body, "results")
	if !results.Exists() {
		return nil, fmt.Errorf("%w: missing results field", ErrInvalidResponse)
	}

	candidates := make([]Candidate, 0, len(results.Array()))
	for _, r := range results.Array() {
		score := r.Get("score").Float()
		if score < 0 {
			score = 0
		} else if score > 1 {
			score = 1
		}

		recordings := r.Get("recordings").Array()
		if len(recordings) == 0 {
			candidates = append(candidates, Candidate{
				RecordingID: r.Get("id").String(),
				Confidence:  score,
			})
			continue
		}
		for _, rec := range recordings {
			candidates = append(candidates, Candidate{
				RecordingID: rec.Get("id").String(),
				Title:       rec.Get("title").String(),
				Artist:      rec.Get("artists.0.name").String(),
				Confidence:  score,
			})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})
	return candidates, nil
}
