package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nkoenig/chord-librarian/internal/chord"
	"github.com/nkoenig/chord-librarian/internal/util"
)

const (
	// DefaultURL is the public chords-db ukulele dataset
	DefaultURL = "https://raw.githubusercontent.com/tombatossals/chords-db/master/lib/ukulele.json"

	// UserAgent identifies this tool to the CDN
	UserAgent = "chord-librarian/1.0 (https://github.com/nkoenig/chord-librarian)"

	// DefaultMaxAttempts bounds fetch retries
	DefaultMaxAttempts = 3
)

// Config controls dataset fetching
type Config struct {
	URL         string
	MaxAttempts int
}

// Fetcher retrieves the source dataset over HTTP with retry/backoff.
// Network calls carry no client-side timeout; the run relies on the remote
// side to fail or finish.
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	url        string
	retry      *util.RetryConfig
}

// New creates a Fetcher. Defaults: DefaultURL, 3 attempts with exponential
// backoff starting at one second (1s, 2s, ...).
func New(cfg Config) *Fetcher {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	return &Fetcher{
		httpClient: &http.Client{},
		userAgent:  UserAgent,
		url:        cfg.URL,
		retry: &util.RetryConfig{
			MaxAttempts: cfg.MaxAttempts,
			BaseDelay:   time.Second,
			Backoff:     util.ExponentialBackoff,
		},
	}
}

// URL returns the configured source URL
func (f *Fetcher) URL() string {
	return f.url
}

// Fetch downloads the dataset and returns the raw document bytes. Any
// non-2xx status counts as a failure. Once the attempt budget is exhausted
// the returned error wraps util.ErrFetchFailed; fetch failure is fatal to
// the run.
func (f *Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	data, err := util.RetryWithBackoff(ctx, f.retry, func() ([]byte, error) {
		return f.fetchOnce(ctx)
	}, "fetch source dataset")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrFetchFailed, err)
	}
	return data, nil
}

// FetchDataset downloads and parses the dataset in one step. A document
// that fails to parse is as fatal as one that never arrived.
func (f *Fetcher) FetchDataset(ctx context.Context) (*chord.Dataset, error) {
	data, err := f.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	ds, err := chord.ParseDataset(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrFetchFailed, err)
	}
	util.DebugLog("Parsed %d chord groups from %s", len(ds.Groups), f.url)
	return ds, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	util.DebugLog("Fetched %d bytes from %s", len(body), f.url)
	return body, nil
}
