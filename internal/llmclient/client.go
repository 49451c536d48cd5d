// Package llmclient implements C1, a typed, retrying HTTP client to the
// remote analysis backend (spec §4.1). It never pre-parses the response
// body: the caller (C2) owns interpretation.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/renovate-ai/pr-analyzer/internal/types"
)

// Caller is the interface the analyzer (C5) depends on, so tests can swap
// in a scripted fake instead of a real HTTP client.
type Caller interface {
	Analyze(ctx context.Context, repoURL, branchRef, prompt, modelID string, opts Options) (types.RawResponse, error)
}

// Options bounds a single analyze call (spec §4.1).
type Options struct {
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

const (
	MaxPromptBytes = 32 * 1024
	MaxTokensLimit = 8192
	MinTimeout     = time.Second
	MaxTimeout     = 300 * time.Second
)

// Validate enforces the option bounds from spec §4.1.
func (o Options) Validate() error {
	if o.MaxTokens <= 0 || o.MaxTokens > MaxTokensLimit {
		return fmt.Errorf("maxTokens must be in (0, %d], got %d", MaxTokensLimit, o.MaxTokens)
	}
	if o.Temperature < 0 || o.Temperature > 1 {
		return fmt.Errorf("temperature must be in [0,1], got %f", o.Temperature)
	}
	if o.Timeout < MinTimeout || o.Timeout > MaxTimeout {
		return fmt.Errorf("timeout must be in [%s, %s], got %s", MinTimeout, MaxTimeout, o.Timeout)
	}
	return nil
}

// ConnRefusedError, TimeoutError, HTTPStatusError and RateLimitedError are
// the four error shapes C1 can surface (spec §4.1).
type ConnRefusedError struct{ Cause error }

func (e *ConnRefusedError) Error() string { return fmt.Sprintf("connection refused: %v", e.Cause) }
func (e *ConnRefusedError) Unwrap() error  { return e.Cause }

type TimeoutError struct{ Cause error }

func (e *TimeoutError) Error() string { return fmt.Sprintf("request timed out: %v", e.Cause) }
func (e *TimeoutError) Unwrap() error  { return e.Cause }

type HTTPStatusError struct {
	Status int
	Body   string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("llm backend returned HTTP %d: %s", e.Status, e.Body)
}

type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// retryableStatuses are the HTTP statuses the backoff policy retries on,
// per spec §4.1.
var retryableStatuses = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// chatRequest mirrors the external interface in spec §6 exactly.
type chatRequest struct {
	RepoURL     string            `json:"repo_url"`
	Messages    []chatMessage     `json:"messages"`
	Stream      bool              `json:"stream"`
	Provider    string            `json:"provider"`
	Model       string            `json:"model"`
	Temperature float64           `json:"temperature"`
	MaxTokens   int               `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client is the concrete Caller talking to the LLM backend over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	provider   string
	httpClient *http.Client
	logger     *logrus.Logger

	// inFlight bounds concurrent outbound requests to cfg.MaxInFlight
	// (spec §5: "a global concurrency limit ... to protect the LLM
	// backend from overload"). It is the single Client shared by every
	// AnalyzeBranch call across however many pairs run concurrently, so
	// this is where that limit actually has to live, not per-pair.
	inFlight *semaphore.Weighted
}

// New builds a Client. logger may be nil, in which case a discarding
// logger is used (constructor injection only, per spec §9 — no
// package-level logger). maxInFlight <= 0 is treated as 1.
func New(baseURL, apiKey, provider string, maxInFlight int, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		provider:   provider,
		httpClient: &http.Client{},
		logger:     logger,
		inFlight:   semaphore.NewWeighted(int64(maxInFlight)),
	}
}

// Analyze posts the prompt to /chat/completions/stream and returns the raw
// response body, retrying transient failures with exponential backoff and
// full jitter starting at 500ms, up to 3 attempts total (spec §4.1).
func (c *Client) Analyze(ctx context.Context, repoURL, branchRef, prompt, modelID string, opts Options) (types.RawResponse, error) {
	if len(prompt) > MaxPromptBytes {
		return types.RawResponse{}, fmt.Errorf("prompt exceeds %d bytes", MaxPromptBytes)
	}
	if err := opts.Validate(); err != nil {
		return types.RawResponse{}, err
	}

	reqBody := chatRequest{
		RepoURL:     repoURL,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Stream:      false,
		Provider:    c.provider,
		Model:       modelID,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return types.RawResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.RandomizationFactor = 1.0 // full jitter
	bo.Multiplier = 2.0
	retryPolicy := backoff.WithMaxRetries(bo, 2) // 3 attempts total

	var resp types.RawResponse
	attempt := 0
	err = backoff.Retry(func() error {
		attempt++
		if acqErr := c.inFlight.Acquire(callCtx, 1); acqErr != nil {
			return backoff.Permanent(&TimeoutError{Cause: acqErr})
		}
		r, callErr := c.doRequest(callCtx, payload)
		c.inFlight.Release(1)
		if callErr == nil {
			resp = r
			return nil
		}

		c.logger.WithFields(logrus.Fields{
			"branch_ref": branchRef,
			"attempt":    attempt,
			"error":      callErr.Error(),
		}).Warn("llm call failed")

		if isRetryable(callErr) {
			return callErr
		}
		return backoff.Permanent(callErr)
	}, backoff.WithContext(retryPolicy, callCtx))

	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return types.RawResponse{}, perm.Err
		}
		return types.RawResponse{}, err
	}
	return resp, nil
}

func isRetryable(err error) bool {
	var connErr *ConnRefusedError
	var timeoutErr *TimeoutError
	var rateLimited *RateLimitedError
	var statusErr *HTTPStatusError
	switch {
	case errors.As(err, &connErr), errors.As(err, &timeoutErr), errors.As(err, &rateLimited):
		return true
	case errors.As(err, &statusErr):
		return retryableStatuses[statusErr.Status]
	}
	return false
}

func (c *Client) doRequest(ctx context.Context, payload []byte) (types.RawResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions/stream", bytes.NewReader(payload))
	if err != nil {
		return types.RawResponse{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return types.RawResponse{}, &TimeoutError{Cause: err}
		}
		return types.RawResponse{}, &ConnRefusedError{Cause: err}
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return types.RawResponse{}, fmt.Errorf("read response body: %w", err)
	}

	if httpResp.StatusCode == http.StatusTooManyRequests {
		retryAfter := parseRetryAfter(httpResp.Header.Get("Retry-After"))
		return types.RawResponse{}, &RateLimitedError{RetryAfter: retryAfter}
	}
	if httpResp.StatusCode != http.StatusOK {
		return types.RawResponse{}, &HTTPStatusError{Status: httpResp.StatusCode, Body: string(body)}
	}

	kind := types.RawResponseText
	contentType := httpResp.Header.Get("Content-Type")
	if json.Valid(body) {
		kind = types.RawResponseJSON
	}
	return types.RawResponse{Kind: kind, Body: body, ContentType: contentType}, nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := time.ParseDuration(header + "s"); err == nil {
		return secs
	}
	return 0
}
