// Package layerapi is a typed client for the Layer-style GraphQL image
// generation backend. It covers job submission, status polling, workspace
// entitlements and style management, and maps the backend's union responses
// onto the pipeline's error taxonomy.
package layerapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/playable-forge/internal/config"
	ferrors "github.com/p-blackswan/playable-forge/internal/errors"
	"github.com/p-blackswan/playable-forge/internal/retry"
	"github.com/p-blackswan/playable-forge/pkg/lru"
)

const serviceName = "layer"

// HTTPClient abstracts HTTP calls for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client wraps the generation backend's GraphQL API.
type Client struct {
	endpoint    string
	apiKey      string
	workspaceID string

	httpClient  HTTPClient
	transport   retry.Config // retry schedule for transport-level failures
	poll        retry.Config // backoff schedule between status polls
	pollTimeout time.Duration

	styleCache *lru.Cache[string, Style]
	logger     zerolog.Logger
}

// NewClient creates a generation backend client from configuration.
func NewClient(cfg *config.Config, logger zerolog.Logger) *Client {
	return &Client{
		endpoint:    strings.TrimSuffix(cfg.LayerAPIURL, "/"),
		apiKey:      cfg.LayerAPIKey,
		workspaceID: cfg.LayerWorkspaceID,
		httpClient:  &http.Client{Timeout: cfg.LayerHTTPTimeout},
		transport: retry.Config{
			MaxAttempts: 3,
			BaseDelay:   2 * time.Second,
			MaxDelay:    10 * time.Second,
		},
		poll:        cfg.PollBackoff(),
		pollTimeout: cfg.PollTimeout,
		styleCache:  lru.New[string, Style](max(cfg.StyleCacheSize, 1)),
		logger:      logger.With().Str("component", "layerapi").Logger(),
	}
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(hc HTTPClient) {
	c.httpClient = hc
}

// SetSleep injects the sleep function used between polls and transport
// retries (for testing).
func (c *Client) SetSleep(fn retry.SleepFunc) {
	c.transport.Sleep = fn
	c.poll.Sleep = fn
}

// WorkspaceID returns the configured workspace.
func (c *Client) WorkspaceID() string {
	return c.workspaceID
}

// unionHeader is the discriminator shared by every union response arm.
type unionHeader struct {
	Typename string `json:"__typename"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

// asError converts an Error union arm into a typed API error.
func (u unionHeader) asError() error {
	if u.Typename != "Error" {
		return nil
	}
	return &ferrors.APIError{Service: serviceName, Code: u.Code, Message: u.Message}
}

type inferenceFile struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	URL    string `json:"url"`
}

type inferencePayload struct {
	unionHeader
	ID        string          `json:"id"`
	Status    string          `json:"status"`
	ErrorCode string          `json:"errorCode"`
	Files     []inferenceFile `json:"files"`
}

// toGeneration maps a backend inference onto a Generation. A COMPLETE file
// with a URL marks the job completed even if the inference status lags.
func (p *inferencePayload) toGeneration(jobID string) *Generation {
	if jobID == "" {
		jobID = p.ID
	}
	gen := &Generation{
		JobID:     jobID,
		Status:    backendStatus(p.Status),
		ErrorCode: p.ErrorCode,
	}
	if len(p.Files) > 0 {
		f := p.Files[0]
		gen.ImageID = f.ID
		gen.ImageURL = f.URL
		if f.Status == "COMPLETE" && f.URL != "" {
			gen.Status = StatusCompleted
		}
	}
	return gen
}

// execute runs a GraphQL operation and unmarshals the named response field
// into out. Transport-level failures (5xx, 429, timeouts) are retried per
// the transport schedule; GraphQL-level errors are not.
func (c *Client) execute(ctx context.Context, query string, variables map[string]any, field string, out any) error {
	payload, err := json.Marshal(map[string]any{
		"query":     query,
		"variables": variables,
	})
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	return retry.Do(ctx, c.transport, func(ctx context.Context) error {
		return c.post(ctx, payload, field, out)
	})
}

func (c *Client) post(ctx context.Context, payload []byte, field string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ferrors.APIError{Service: serviceName, Message: "request failed", Err: fmt.Errorf("%w: %v", ferrors.ErrUnavailable, err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return &ferrors.APIError{
			Service:    serviceName,
			StatusCode: resp.StatusCode,
			Message:    "check LAYER_API_KEY and workspace permissions",
			Err:        ferrors.ErrAuthFailure,
		}
	case resp.StatusCode >= 400:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &ferrors.APIError{
			Service:    serviceName,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
		}
	}

	var envelope struct {
		Data   map[string]json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		return &ferrors.APIError{Service: serviceName, StatusCode: resp.StatusCode, Message: envelope.Errors[0].Message}
	}

	raw, ok := envelope.Data[field]
	if !ok {
		return &ferrors.APIError{Service: serviceName, Message: fmt.Sprintf("response missing field %q", field)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding %s: %w", field, err)
	}
	return nil
}

// WorkspaceBalance fetches the workspace entitlement snapshot.
func (c *Client) WorkspaceBalance(ctx context.Context) (*Workspace, error) {
	var result struct {
		unionHeader
		Entitlement struct {
			Balance   float64 `json:"balance"`
			HasAccess bool    `json:"hasAccess"`
		} `json:"entitlement"`
	}

	err := c.execute(ctx, queryGetWorkspaceUsage, map[string]any{
		"input": map[string]any{
			"workspaceId": c.workspaceID,
			"filtering":   []any{},
		},
	}, "getWorkspaceUsage", &result)
	if err != nil {
		return nil, err
	}
	if err := result.asError(); err != nil {
		return nil, err
	}

	ws := &Workspace{
		WorkspaceID: c.workspaceID,
		Balance:     int(result.Entitlement.Balance),
		HasAccess:   result.Entitlement.HasAccess,
	}
	c.logger.Info().Int("balance", ws.Balance).Bool("has_access", ws.HasAccess).Msg("workspace balance fetched")
	return ws, nil
}

// Submit starts a generation job. The style must be ready; referenceID, when
// non-empty, pins the job to a session's reference image for consistency.
func (c *Client) Submit(ctx context.Context, prompt, styleID, referenceID string) (*Generation, error) {
	if styleID == "" {
		return nil, fmt.Errorf("%w: style ID is required", ferrors.ErrInvalidInput)
	}

	style, err := c.GetStyle(ctx, styleID)
	if err != nil {
		return nil, err
	}
	if !style.Ready() {
		return nil, &ferrors.InvalidStyleError{StyleID: styleID, Status: style.Status}
	}

	input := map[string]any{
		"workspaceId": c.workspaceID,
		"styleId":     styleID,
		"prompt":      prompt,
	}
	if referenceID != "" {
		input["referenceImageId"] = referenceID
	}

	c.logger.Info().
		Str("style_id", styleID).
		Str("prompt_preview", truncate(prompt, 80)).
		Bool("has_reference", referenceID != "").
		Msg("submitting generation")

	var result inferencePayload
	if err := c.execute(ctx, mutationGenerateImages, map[string]any{"input": input}, "generateImages", &result); err != nil {
		return nil, err
	}
	if err := result.asError(); err != nil {
		return nil, err
	}

	gen := result.toGeneration("")
	gen.Prompt = prompt
	if gen.JobID == "" {
		return nil, &ferrors.APIError{Service: serviceName, Message: "no inference ID returned"}
	}
	return gen, nil
}

// Status performs a single status check for a job. It never blocks waiting
// for completion.
func (c *Client) Status(ctx context.Context, jobID string) (*Generation, error) {
	var result struct {
		unionHeader
		Inferences []inferencePayload `json:"inferences"`
	}

	err := c.execute(ctx, queryGetInferencesByID, map[string]any{
		"input": map[string]any{"inferenceIds": []string{jobID}},
	}, "getInferencesById", &result)
	if err != nil {
		return nil, err
	}
	if err := result.asError(); err != nil {
		return nil, err
	}
	if len(result.Inferences) == 0 {
		// Not indexed yet; report processing and let the poller come back.
		return &Generation{JobID: jobID, Status: StatusProcessing}, nil
	}
	return result.Inferences[0].toGeneration(jobID), nil
}

// AwaitCompletion polls a job with exponential backoff until it reaches a
// terminal state or the timeout elapses. Transient status-check failures
// keep the poll going; the deadline is the only thing that gives up.
func (c *Client) AwaitCompletion(ctx context.Context, jobID string, timeout time.Duration) (*Generation, error) {
	if timeout <= 0 {
		timeout = c.pollTimeout
	}

	var elapsed time.Duration
	for attempt := 0; ; attempt++ {
		gen, err := c.Status(ctx, jobID)
		switch {
		case err != nil && !ferrors.IsRetryable(err):
			return nil, err
		case err == nil && gen.Status == StatusCompleted:
			c.logger.Info().Str("job_id", jobID).Dur("elapsed", elapsed).Msg("generation completed")
			return gen, nil
		case err == nil && gen.Status == StatusFailed:
			return nil, &ferrors.GenerationFailedError{
				JobID:   jobID,
				Code:    gen.ErrorCode,
				Message: "backend reported terminal failure",
			}
		}

		delay := c.poll.Delay(attempt)
		if elapsed+delay > timeout {
			return nil, &ferrors.GenerationTimeoutError{JobID: jobID, Timeout: timeout}
		}
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
		elapsed += delay
	}
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	if c.poll.Sleep != nil {
		return c.poll.Sleep(ctx, d)
	}
	return retry.Sleep(ctx, d)
}

// Generate submits a job and waits for its completion.
func (c *Client) Generate(ctx context.Context, prompt, styleID, referenceID string) (*Generation, error) {
	gen, err := c.Submit(ctx, prompt, styleID, referenceID)
	if err != nil {
		return nil, err
	}
	if gen.Status == StatusCompleted && gen.ImageURL != "" {
		return gen, nil
	}

	done, err := c.AwaitCompletion(ctx, gen.JobID, c.pollTimeout)
	if err != nil {
		return nil, err
	}
	done.Prompt = prompt
	return done, nil
}

// GetStyle fetches a style by ID. Ready styles are cached; styles still
// training are fetched fresh every time so readiness flips are seen.
func (c *Client) GetStyle(ctx context.Context, styleID string) (Style, error) {
	if style, ok := c.styleCache.Get(styleID); ok {
		return style, nil
	}

	var result struct {
		unionHeader
		Style
	}
	err := c.execute(ctx, queryGetStyleByID, map[string]any{
		"input": map[string]any{"styleId": styleID},
	}, "getStyleById", &result)
	if err != nil {
		return Style{}, err
	}
	if err := result.asError(); err != nil {
		return Style{}, err
	}
	if result.ID == "" {
		return Style{}, fmt.Errorf("%w: style %s", ferrors.ErrNotFound, styleID)
	}

	if result.Style.Ready() {
		c.styleCache.Put(styleID, result.Style)
	}
	return result.Style, nil
}

// ListStyles returns up to limit styles, optionally filtered by status.
func (c *Client) ListStyles(ctx context.Context, limit int, statusFilter []string) ([]Style, error) {
	if limit <= 0 {
		limit = 20
	}
	input := map[string]any{"first": limit}
	if len(statusFilter) > 0 {
		input["status"] = statusFilter
	}

	var result struct {
		unionHeader
		Edges []struct {
			Node Style `json:"node"`
		} `json:"edges"`
	}
	if err := c.execute(ctx, queryListStyles, map[string]any{"input": input}, "listStyles", &result); err != nil {
		return nil, err
	}
	if err := result.asError(); err != nil {
		return nil, err
	}

	styles := make([]Style, 0, len(result.Edges))
	for _, edge := range result.Edges {
		if edge.Node.ID != "" {
			styles = append(styles, edge.Node)
		}
	}
	return styles, nil
}

// CreateStyle trains a new style from a recipe and returns its ID. The
// style is not ready until the backend finishes training.
func (c *Client) CreateStyle(ctx context.Context, recipe StyleRecipe) (string, error) {
	if recipe.Name == "" {
		return "", fmt.Errorf("%w: style name is required", ferrors.ErrInvalidInput)
	}

	var result struct {
		unionHeader
		Style
	}
	err := c.execute(ctx, mutationCreateStyle, map[string]any{
		"input": map[string]any{
			"workspaceId": c.workspaceID,
			"name":        recipe.Name,
			"prefix":      recipe.Prefix,
			"technical":   recipe.Technical,
			"negative":    recipe.Negative,
		},
	}, "createStyle", &result)
	if err != nil {
		return "", err
	}
	if err := result.asError(); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", &ferrors.APIError{Service: serviceName, Message: "no style ID returned"}
	}

	c.logger.Info().Str("style_id", result.ID).Str("name", recipe.Name).Msg("style created")
	return result.ID, nil
}

// DownloadImage fetches the raw bytes behind a generated image URL.
func (c *Client) DownloadImage(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ferrors.APIError{Service: serviceName, Message: "image download failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &ferrors.APIError{Service: serviceName, StatusCode: resp.StatusCode, Message: "image download failed"}
	}
	return io.ReadAll(resp.Body)
}

// StyleDashboardURL builds the web dashboard URL for a style, for operators
// who want to tweak training manually.
func (c *Client) StyleDashboardURL(styleID string) string {
	base := strings.TrimSuffix(c.endpoint, "/v1/graphql")
	base = strings.TrimSuffix(base, "/graphql")
	base = strings.Replace(base, "api.", "", 1)
	return fmt.Sprintf("%s/workspace/%s/styles/%s", base, c.workspaceID, styleID)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
