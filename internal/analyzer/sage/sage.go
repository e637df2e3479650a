package sage

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

	"golang.org/x/time/rate"

	"github.com/jo-hoe/sagextract/internal/analyzer"
	"github.com/jo-hoe/sagextract/internal/common"
	"github.com/jo-hoe/sagextract/internal/config"
	"github.com/jo-hoe/sagextract/internal/encode"
)

var _ analyzer.Client = (*Client)(nil)

const (
	errorSnippetLimit = 400
	maxResponseBytes  = 16 << 20
)

// Role represents the sender role for a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PartType represents the type for a multimodal message part.
type PartType string

const (
	PartText     PartType = "text"
	PartImageURL PartType = "image_url"
)

// Client implements analyzer.Client against an OpenAI-compatible chat completions endpoint.
type Client struct {
	httpClient  *http.Client
	endpoint    string
	token       string
	model       string
	prompt      string
	temperature *float32
	maxTokens   *int
	retries     int
	backoff     time.Duration
	limiter     *rate.Limiter
}

// New creates a client. An empty token fails with analyzer.ErrAuthentication.
func New(cfg config.AnalyzerConfig) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("no api token configured (set %s): %w", common.EnvAPIToken, analyzer.ErrAuthentication)
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = common.DefaultEndpoint
	}
	prompt := strings.TrimSpace(cfg.Prompt)
	if prompt == "" {
		prompt = common.DefaultPrompt
	}
	c := &Client{
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		endpoint:    endpoint,
		token:       cfg.Token,
		model:       cfg.Model,
		prompt:      prompt,
		temperature: optionalFloat32(cfg.Temperature),
		maxTokens:   optionalInt(cfg.MaxTokens),
		retries:     cfg.Retries,
		backoff:     cfg.RetryBackoff,
	}
	if cfg.MinInterval > 0 {
		c.limiter = rate.NewLimiter(rate.Every(cfg.MinInterval), 1)
	}
	return c, nil
}

// AnalyzeImage asks the model to extract text and bounding boxes from the image.
func (c *Client) AnalyzeImage(ctx context.Context, data []byte, mime string) (string, error) {
	if len(data) == 0 {
		return "", errors.New("image is empty")
	}
	msgs := []chatMessage{
		{Role: RoleUser, Content: c.prompt},
		{
			Role: RoleUser,
			Content: []messagePart{
				{Type: PartImageURL, ImageURL: &imageURL{URL: encode.DataURL(mime, data)}},
			},
		},
	}
	return c.complete(ctx, msgs)
}

// AnalyzeText forwards text as a single user message.
func (c *Client) AnalyzeText(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", errors.New("text is empty")
	}
	return c.complete(ctx, []chatMessage{{Role: RoleUser, Content: text}})
}

func (c *Client) complete(ctx context.Context, msgs []chatMessage) (string, error) {
	reqBody := chatCompletionRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, time.Duration(attempt)*c.backoff); err != nil {
				return "", err
			}
		}
		out, err := c.post(ctx, bodyBytes)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !retryable(ctx, err) {
			return "", err
		}
	}
	return "", fmt.Errorf("after %d attempts: %w", c.retries+1, lastErr)
}

func (c *Client) post(ctx context.Context, body []byte) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set(common.HeaderContentType, common.ContentTypeJSON)
	req.Header.Set(common.HeaderAccept, common.ContentTypeJSON)
	req.Header.Set(common.HeaderAuthorization, common.AuthSchemeBearer+" "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &transportError{err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	respBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", &analyzer.RemoteAnalysisError{
			StatusCode: resp.StatusCode,
			Body:       truncate(string(respBytes), errorSnippetLimit),
		}
	}

	var comp chatCompletionResponse
	if err := json.Unmarshal(respBytes, &comp); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if len(comp.Choices) == 0 {
		return "", errors.New("response has no choices")
	}
	return comp.Choices[0].Message.Content, nil
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, analyzer.ErrAuthentication) {
		return false
	}
	var rae *analyzer.RemoteAnalysisError
	if errors.As(err, &rae) {
		return rae.Retryable()
	}
	var te *transportError
	return errors.As(err, &te)
}

// transportError marks failures where no HTTP response was received.
type transportError struct {
	err error
}

func (e *transportError) Error() string { return "http do: " + e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func optionalFloat32(v float32) *float32 {
	if v == 0 {
		return nil
	}
	return &v
}

func optionalInt(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// OpenAI-compatible Chat Completions request/response types

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float32      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    Role `json:"role"`
	Content any  `json:"content"` // string or []messagePart
}

type messagePart struct {
	Type     PartType  `json:"type"`                // "text" | "image_url"
	Text     *string   `json:"text,omitempty"`      // when Type == "text"
	ImageURL *imageURL `json:"image_url,omitempty"` // when Type == "image_url"
}

type imageURL struct {
	URL string `json:"url"`
}

type chatCompletionResponse struct {
	ID      string                 `json:"id"`
	Object  string                 `json:"object"`
	Created int64                  `json:"created"`
	Choices []chatCompletionChoice `json:"choices"`
}

type chatCompletionChoice struct {
	Index        int         `json:"index"`
	Message      responseMsg `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type responseMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
