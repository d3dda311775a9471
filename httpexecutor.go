package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// HTTPExecutor invokes a stage collaborator over HTTP: the input payload
// is POSTed as JSON, the response body is the stage payload. Response
// status codes map to error categories so the retry layer can tell
// pushback from permanent failure.
type HTTPExecutor struct {
	url    string
	apiKey string
	client *http.Client
}

// NewHTTPExecutor creates an executor for one collaborator endpoint. A
// nil client uses http.DefaultClient; the per-invocation timeout comes
// from the stage context.
func NewHTTPExecutor(url, apiKey string, client *http.Client) *HTTPExecutor {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPExecutor{url: url, apiKey: apiKey, client: client}
}

// Invoke implements StageExecutor
func (e *HTTPExecutor) Invoke(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(input))
	if err != nil {
		return nil, NewStageError(CategorySystem, "", fmt.Sprintf("build request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, NewStageError(CategoryNetwork, "", err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, NewStageError(CategoryNetwork, "", fmt.Sprintf("read response: %v", err))
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if !json.Valid(body) {
			return nil, NewStageError(CategoryProcessing, "", "collaborator returned invalid JSON")
		}
		return body, nil
	}

	return nil, NewStageError(
		categoryForStatus(resp.StatusCode),
		"",
		fmt.Sprintf("collaborator returned %d: %s", resp.StatusCode, truncate(body, 200)),
	)
}

// categoryForStatus maps an HTTP status code to an error category
func categoryForStatus(code int) ErrorCategory {
	switch {
	case code == http.StatusTooManyRequests:
		return CategoryRateLimited
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return CategoryAuth
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return CategoryTimeout
	case code >= 400 && code < 500:
		return CategoryValidation
	case code >= 500:
		return CategoryNetwork
	default:
		return CategoryUnknown
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
