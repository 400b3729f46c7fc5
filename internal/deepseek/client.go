// Copyright (c) 2025 Alex Walker
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package deepseek implements the client for the DeepSeek chat completions API.
package deepseek

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/awalker/deepterm/internal/model"
)

// Configuration constants for the DeepSeek API.
const (
	// DefaultBaseURL is the base URL for the DeepSeek API.
	DefaultBaseURL = "https://api.deepseek.com/v1"

	// DefaultModel is the chat model requested when none is configured.
	DefaultModel = "deepseek-chat"

	// DefaultTemperature is the sampling temperature sent with each request.
	DefaultTemperature = 0.7

	// DefaultMaxTokens caps the completion length.
	DefaultMaxTokens = 2000

	// DefaultTimeout bounds a single completion request.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries is the number of attempts for retryable failures.
	DefaultMaxRetries = 3

	// retryBaseDelay is the base delay for exponential backoff.
	retryBaseDelay = 500 * time.Millisecond

	// retryMaxDelay caps the exponential backoff.
	retryMaxDelay = 10 * time.Second

	// MaxResponseSize bounds the response body read. A completion capped at
	// DefaultMaxTokens never comes close; anything larger is hostile or broken.
	MaxResponseSize = 10 * 1024 * 1024
)

// ErrNotConfigured indicates the API key is not set. Like every other Send
// failure it is a *ClientError; errors.Is matches it by kind.
var ErrNotConfigured = &ClientError{Kind: KindConfig, Message: "API key not configured"}

// =============================================================================
// WIRE TYPES
// =============================================================================

// ChatMessage is one message in the wire format of the completions endpoint.
// Timestamps and any other local metadata are stripped before sending.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the request body for the chat completions endpoint.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Stream      bool          `json:"stream"`
}

// chatResponse is the response body of the chat completions endpoint.
type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      ChatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// apiErrorResponse is the error body the API returns on non-200 statuses.
type apiErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the DeepSeek chat completions API. Construct it with
// NewClient and adjust it with the With* methods before first use; the client
// is safe for concurrent Send calls once configured.
type Client struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	maxRetries  int
	httpClient  *http.Client
	limiter     *rate.Limiter
	logger      *log.Logger
}

// NewClient creates a client with the given API key and default settings.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:      strings.TrimSpace(apiKey),
		baseURL:     DefaultBaseURL,
		model:       DefaultModel,
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxTokens,
		maxRetries:  DefaultMaxRetries,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		// One request per second, small burst. The UI blocks on one in-flight
		// request at a time anyway; this guards command-driven bursts.
		limiter: rate.NewLimiter(rate.Every(time.Second), 2),
		logger:  log.Default(),
	}
}

// WithBaseURL sets a custom base URL for the API.
func (c *Client) WithBaseURL(url string) *Client {
	c.baseURL = strings.TrimSuffix(url, "/")
	return c
}

// WithModel sets the model requested for completions.
func (c *Client) WithModel(m string) *Client {
	if m != "" {
		c.model = m
	}
	return c
}

// WithTimeout sets the per-request timeout.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	c.httpClient.Timeout = timeout
	return c
}

// WithMaxRetries sets the number of attempts for retryable failures.
func (c *Client) WithMaxRetries(n int) *Client {
	if n > 0 {
		c.maxRetries = n
	}
	return c
}

// WithSampling sets the temperature and completion token cap.
func (c *Client) WithSampling(temperature float64, maxTokens int) *Client {
	c.temperature = temperature
	if maxTokens > 0 {
		c.maxTokens = maxTokens
	}
	return c
}

// WithLogger replaces the client's logger.
func (c *Client) WithLogger(l *log.Logger) *Client {
	if l != nil {
		c.logger = l
	}
	return c
}

// IsConfigured reports whether an API key is set.
func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

// =============================================================================
// SEND
// =============================================================================

// Send posts the full message history to the completions endpoint and returns
// the assistant's reply text. Server errors (5xx) are retried with exponential
// backoff; client errors (4xx) and malformed responses are returned
// immediately. Cancel ctx to abandon the request.
func (c *Client) Send(ctx context.Context, messages []model.Message) (string, error) {
	if !c.IsConfigured() {
		return "", ErrNotConfigured
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", &ClientError{Kind: KindTransport, Message: "rate limit wait aborted", Cause: err}
	}

	reqBody := chatRequest{
		Model:       c.model,
		Messages:    toWire(messages),
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Stream:      false,
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", &ClientError{Kind: KindTransport, Message: "request cancelled", Cause: ctx.Err()}
			case <-time.After(calculateBackoff(attempt)):
			}
		}

		content, err := c.doRequest(ctx, reqBody)
		if err != nil {
			if isRetryable(err) {
				lastErr = err
				continue
			}
			return "", err
		}
		return content, nil
	}

	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

// toWire strips messages down to the role and content fields the API accepts.
func toWire(messages []model.Message) []ChatMessage {
	wire := make([]ChatMessage, 0, len(messages))
	for _, m := range messages {
		wire = append(wire, ChatMessage{Role: m.Role.String(), Content: m.Content})
	}
	return wire
}

// doRequest performs a single request to the chat completions endpoint.
func (c *Client) doRequest(ctx context.Context, reqBody chatRequest) (string, error) {
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", &ClientError{Kind: KindProtocol, Message: "failed to encode request", Cause: err}
	}

	url := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", &ClientError{Kind: KindTransport, Message: "failed to create request", Cause: err}
	}
	c.setHeaders(req)

	reqID := req.Header.Get("X-Request-ID")
	c.logger.Debug("sending chat request", "request_id", reqID, "messages", len(reqBody.Messages), "model", reqBody.Model)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts and cancellations land here too and are transport failures
		// from the caller's point of view.
		return "", &ClientError{Kind: KindTransport, Message: "request failed", Cause: err}
	}
	defer resp.Body.Close()

	body, err := readResponse(resp)
	if err != nil {
		return "", err
	}

	c.logger.Debug("chat response", "request_id", reqID, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode != http.StatusOK {
		return "", errorFromStatus(resp.StatusCode, body)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", &ClientError{Kind: KindProtocol, Message: "failed to decode response", Cause: err}
	}
	if len(chatResp.Choices) == 0 {
		return "", &ClientError{Kind: KindProtocol, Message: "response contained no choices"}
	}
	content := chatResp.Choices[0].Message.Content
	if content == "" {
		return "", &ClientError{Kind: KindProtocol, Message: "response contained empty content"}
	}
	return content, nil
}

// setHeaders sets the required headers for a completions request.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "deepterm/0.1.0")
	req.Header.Set("X-Request-ID", uuid.NewString())
}

// readResponse reads the response body with a size limit.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return nil, &ClientError{Kind: KindTransport, Message: "failed to read response", Cause: err}
	}
	if int64(len(body)) == MaxResponseSize {
		return nil, &ClientError{Kind: KindProtocol, Message: fmt.Sprintf("response exceeded maximum size of %d bytes", MaxResponseSize)}
	}
	return body, nil
}

// errorFromStatus converts a non-200 response into a ClientError, pulling the
// API's own error message out of the body when it parses.
func errorFromStatus(statusCode int, body []byte) error {
	message := http.StatusText(statusCode)
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		message = apiErr.Error.Message
	}
	return &ClientError{
		Kind:    KindStatus,
		Status:  statusCode,
		Body:    string(body),
		Message: message,
	}
}

// isRetryable reports whether an error should trigger another attempt.
// Only server-side failures qualify; 4xx responses, protocol violations and
// cancelled requests will not get better on retry.
func isRetryable(err error) bool {
	var cerr *ClientError
	if !errors.As(err, &cerr) {
		return false
	}
	return cerr.Kind == KindStatus && cerr.Status >= 500 && cerr.Status < 600
}

// calculateBackoff returns the delay before the next retry attempt.
func calculateBackoff(attempt int) time.Duration {
	delay := retryBaseDelay * time.Duration(1<<uint(attempt))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}
