package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prepline/prepline/pkg/lineage"
)

// Processor executes a transformation remotely. Submit returns nil only for
// a 2xx response; any other response code yields a SubmissionError.
type Processor interface {
	Submit(ctx context.Context, sub Submission) error
}

// HTTPProcessor submits invocations to the Remote Processor endpoint.
type HTTPProcessor struct {
	endpoint string
	token    string
	http     *http.Client
}

// NewHTTPProcessor creates a processor client for the given submission
// endpoint. token, when non-empty, is sent as a bearer credential.
func NewHTTPProcessor(endpoint, token string) *HTTPProcessor {
	return &HTTPProcessor{
		endpoint: endpoint,
		token:    token,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Submit posts the submission body. A 2xx response is required for success.
func (p *HTTPProcessor) Submit(ctx context.Context, sub Submission) error {
	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("marshal submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build submission request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("submit to processor: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &lineage.SubmissionError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return nil
}
