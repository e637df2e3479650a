package analyzer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Client sends one payload to a remote model and returns its reply verbatim.
type Client interface {
	// AnalyzeImage sends the image bytes together with the configured extraction prompt.
	AnalyzeImage(ctx context.Context, data []byte, mime string) (string, error)
	// AnalyzeText sends text as a plain user message without any prompt.
	AnalyzeText(ctx context.Context, text string) (string, error)
}

// ErrAuthentication reports a missing token or one the remote service rejected.
var ErrAuthentication = errors.New("authentication failed")

// RemoteAnalysisError is returned for non-2xx responses.
type RemoteAnalysisError struct {
	StatusCode int
	Body       string
}

func (e *RemoteAnalysisError) Error() string {
	return fmt.Sprintf("remote analysis status %d: %s", e.StatusCode, e.Body)
}

// Is lets 401 and 403 responses match ErrAuthentication.
func (e *RemoteAnalysisError) Is(target error) bool {
	return target == ErrAuthentication &&
		(e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden)
}

// Retryable reports whether repeating the request could succeed.
func (e *RemoteAnalysisError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}
