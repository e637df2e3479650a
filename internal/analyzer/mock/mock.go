package mock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jo-hoe/sagextract/internal/analyzer"
	"github.com/jo-hoe/sagextract/internal/config"
)

var _ analyzer.Client = (*Client)(nil)

// Client is an offline analyzer that answers deterministically without network access.
type Client struct {
	delay  time.Duration
	prefix string
}

// New creates a mock analyzer.
func New(cfg config.MockSettings) *Client {
	return &Client{delay: cfg.Delay, prefix: cfg.Prefix}
}

func (c *Client) AnalyzeImage(ctx context.Context, data []byte, mime string) (string, error) {
	if len(data) == 0 {
		return "", errors.New("image is empty")
	}
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s: %s image, %d bytes", c.prefix, mime, len(data)), nil
}

func (c *Client) AnalyzeText(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", errors.New("text is empty")
	}
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s: %d words", c.prefix, len(strings.Fields(text))), nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(c.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
