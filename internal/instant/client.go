package instant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/nkoenig/chord-librarian/internal/chord"
	"github.com/nkoenig/chord-librarian/internal/util"
)

const (
	// DefaultBaseURL is the hosted database's admin API endpoint
	DefaultBaseURL = "https://api.instantdb.com"

	// DefaultNamespace is the entity namespace chord voicings live in
	DefaultNamespace = "chords"
)

// Config carries the credentials and endpoint for the destination store
type Config struct {
	AppID      string
	AdminToken string
	BaseURL    string // defaults to DefaultBaseURL
	Namespace  string // defaults to DefaultNamespace
}

// Client talks to the destination store's admin HTTP API. Requests carry no
// client-side timeout: the store is trusted to fail or finish on its own,
// and a long-scanning query timing out server-side must surface as a
// timeout, not be cut short locally.
type Client struct {
	httpClient *http.Client
	baseURL    string
	appID      string
	adminToken string
	namespace  string
}

// New creates a client for the destination store. Missing credentials are
// a configuration error and abort before any network call.
func New(cfg Config) (*Client, error) {
	if cfg.AppID == "" || cfg.AdminToken == "" {
		return nil, fmt.Errorf("%w: app id and admin token are required", util.ErrMissingCredentials)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	return &Client{
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		appID:      cfg.AppID,
		adminToken: cfg.AdminToken,
		namespace:  cfg.Namespace,
	}, nil
}

// Namespace returns the entity namespace this client reads and writes
func (c *Client) Namespace() string {
	return c.namespace
}

// BaseURL returns the API endpoint this client talks to
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Partition scopes queries, deletes and counts to one library slice
type Partition struct {
	Instrument  string
	Tuning      string
	LibraryType string
}

// MainPartition is the slice this pipeline owns: the curated main library
// for standard-tuned ukulele
func MainPartition() Partition {
	return Partition{
		Instrument:  chord.Instrument,
		Tuning:      chord.Tuning,
		LibraryType: chord.LibraryMain,
	}
}

func (p Partition) where() map[string]any {
	return map[string]any{
		"libraryType": p.LibraryType,
		"instrument":  p.Instrument,
		"tuning":      p.Tuning,
	}
}

// Step is one operation of an atomic transact batch, in the API's tuple
// encoding: ["update", namespace, id, attrs] or ["delete", namespace, id]
type Step []any

// UpsertStep builds an upsert-by-id step for one voicing
func (c *Client) UpsertStep(v chord.Voicing) Step {
	attrs := map[string]any{
		"name":        v.Name,
		"key":         v.Key,
		"suffix":      v.Suffix,
		"frets":       v.Frets,
		"fingers":     v.Fingers,
		"baseFret":    v.BaseFret,
		"barres":      v.Barres,
		"position":    v.Position,
		"instrument":  v.Instrument,
		"tuning":      v.Tuning,
		"libraryType": v.LibraryType,
	}
	return Step{"update", c.namespace, v.ID, attrs}
}

// DeleteStep builds a delete-by-id step
func (c *Client) DeleteStep(id string) Step {
	return Step{"delete", c.namespace, id}
}

// Query runs a where-filtered query against the namespace and decodes the
// matching voicings. Timeouts are wrapped in util.ErrQueryTimeout so
// callers can tell "the query died" from "the partition is empty".
func (c *Client) Query(ctx context.Context, where map[string]any) ([]chord.Voicing, error) {
	payload := map[string]any{
		"query": map[string]any{
			c.namespace: map[string]any{
				"$": map[string]any{"where": where},
			},
		},
	}

	body, status, err := c.post(ctx, "/admin/query", payload)
	if err != nil {
		if isTimeoutError(err) {
			return nil, fmt.Errorf("%w: %v", util.ErrQueryTimeout, err)
		}
		return nil, fmt.Errorf("query: %w", err)
	}
	if status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout {
		return nil, fmt.Errorf("%w: status code %d", util.ErrQueryTimeout, status)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("query: unexpected status code %d: %s", status, body)
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("query: failed to decode response: %w", err)
	}
	if msg := errorMessage(decoded["error"]); msg != "" {
		if strings.Contains(strings.ToLower(msg), "timeout") {
			return nil, fmt.Errorf("%w: %s", util.ErrQueryTimeout, msg)
		}
		return nil, fmt.Errorf("query: %s", msg)
	}

	raw, ok := decoded[c.namespace]
	if !ok {
		return nil, nil
	}
	var voicings []chord.Voicing
	if err := json.Unmarshal(raw, &voicings); err != nil {
		return nil, fmt.Errorf("query: failed to decode records: %w", err)
	}
	return voicings, nil
}

// QueryPartition returns every voicing in the partition
func (c *Client) QueryPartition(ctx context.Context, p Partition) ([]chord.Voicing, error) {
	return c.Query(ctx, p.where())
}

// CountPartition counts the voicings in the partition. The store exposes no
// count operation, so this scans the partition; on very large partitions
// the scan itself can time out, which callers must treat as "unknown", not
// zero.
func (c *Client) CountPartition(ctx context.Context, p Partition) (int, error) {
	voicings, err := c.QueryPartition(ctx, p)
	if err != nil {
		return 0, err
	}
	return len(voicings), nil
}

// QueryByIDs returns the voicings whose ids are in the given set
func (c *Client) QueryByIDs(ctx context.Context, ids []string) ([]chord.Voicing, error) {
	return c.Query(ctx, map[string]any{
		"id": map[string]any{"$in": ids},
	})
}

// QueryByName returns the partition's voicings with exactly this display
// name. Name captures the suffix equivalence rule: "" and "major" format to
// the same name, so one lookup covers both spellings.
func (c *Client) QueryByName(ctx context.Context, p Partition, name string) ([]chord.Voicing, error) {
	where := p.where()
	where["name"] = name
	return c.Query(ctx, where)
}

// QueryNamePrefix returns the partition's voicings whose name starts with
// prefix
func (c *Client) QueryNamePrefix(ctx context.Context, p Partition, prefix string) ([]chord.Voicing, error) {
	where := p.where()
	where["name"] = map[string]any{"$like": prefix + "%"}
	return c.Query(ctx, where)
}

// Transact submits one atomic batch of steps. The outcome separates the two
// failure channels: transport/HTTP errors and error-shaped 200 responses.
func (c *Client) Transact(ctx context.Context, steps []Step) WriteOutcome {
	payload := map[string]any{"steps": steps}

	body, status, err := c.post(ctx, "/admin/transact", payload)
	if err != nil {
		return TransportFailure(fmt.Errorf("transact: %w", err))
	}
	if status < 200 || status > 299 {
		return TransportFailure(fmt.Errorf("transact: unexpected status code %d: %s", status, body))
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(body, &decoded); err == nil {
		if msg := errorMessage(decoded["error"]); msg != "" {
			return Failure(fmt.Errorf("transact: %s", msg))
		}
	}
	return Success()
}

// Ping verifies credentials and connectivity with a minimal query
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Query(ctx, map[string]any{"id": map[string]any{"$in": []string{}}})
	return err
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, int, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.adminToken)
	req.Header.Set("App-Id", c.appID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, resp.StatusCode, nil
}

// errorMessage extracts a message from an error-shaped response field,
// tolerating both {"error": "..."} and {"error": {"message": "..."}}
func errorMessage(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return string(raw)
}

// IsTimeout reports whether err represents a timed-out destination call.
// Read-side callers use this to render "data incomplete" instead of
// "nothing found".
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, util.ErrQueryTimeout) || isTimeoutError(err)
}

func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out")
}
