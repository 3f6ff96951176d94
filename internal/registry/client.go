package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/prepline/prepline/pkg/lineage"
	"github.com/prepline/prepline/pkg/versionstore"
)

const apiBase = "/api/lineage/v1alpha1"

// Client is the HTTP client for the version lineage API. It satisfies both
// the version store's Backend and the pipeline orchestrator's Backend, so
// every fetch-side failure surfaces as the FetchError the store and poll
// loop expect.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a client for the registry at baseURL. token, when
// non-empty, is sent as a bearer credential.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ListVersions fetches a task's versions in creation order.
func (c *Client) ListVersions(ctx context.Context, taskID int64) ([]lineage.Version, error) {
	path := fmt.Sprintf("%s/versions?taskId=%d", apiBase, taskID)

	var body struct {
		Versions []versionResponse `json:"versions"`
	}
	if err := c.getJSON(ctx, path, &body); err != nil {
		return nil, &lineage.FetchError{Op: "list versions", Err: err}
	}

	versions := make([]lineage.Version, len(body.Versions))
	for i := range body.Versions {
		v, err := responseToVersion(&body.Versions[i])
		if err != nil {
			return nil, &lineage.FetchError{Op: "list versions", Err: err}
		}
		versions[i] = *v
	}
	return versions, nil
}

// GetVersion fetches a single version by id. An unknown status value in the
// response is a fetch failure, not a new state.
func (c *Client) GetVersion(ctx context.Context, id int64) (*lineage.Version, error) {
	path := fmt.Sprintf("%s/versions/%d", apiBase, id)

	var body versionResponse
	if err := c.getJSON(ctx, path, &body); err != nil {
		var se *statusCodeError
		if errors.As(err, &se) && se.code == http.StatusNotFound {
			return nil, &lineage.NotFoundError{VersionID: id}
		}
		return nil, &lineage.FetchError{Op: "get version", Err: err}
	}

	v, err := responseToVersion(&body)
	if err != nil {
		return nil, &lineage.FetchError{Op: "get version", Err: err}
	}
	return v, nil
}

// CreateVersion persists a new RAW version.
func (c *Client) CreateVersion(ctx context.Context, req versionstore.CreateRequest) (*lineage.Version, error) {
	payload := createVersionRequest{
		TaskID:      req.TaskID,
		MethodID:    req.MethodID,
		Name:        req.Name,
		PrevVersion: req.ParentVersionID,
		Config:      req.Config,
	}
	if req.DataTypes != nil {
		payload.DataTypes = make(map[string]string, len(req.DataTypes))
		for col, dt := range req.DataTypes {
			payload.DataTypes[col] = string(dt)
		}
	}

	var body versionResponse
	if err := c.postJSON(ctx, apiBase+"/versions", payload, &body); err != nil {
		var se *statusCodeError
		if errors.As(err, &se) && se.code == http.StatusBadRequest {
			return nil, &lineage.ValidationError{Reason: se.body}
		}
		return nil, &lineage.FetchError{Op: "create version", Err: err}
	}

	return responseToVersion(&body)
}

// UpdateStatus requests a guarded status transition. The from status is
// implied by the target on the server side; it is accepted here so callers
// state the transition they expect.
func (c *Client) UpdateStatus(ctx context.Context, id int64, from, to lineage.Status) error {
	path := fmt.Sprintf("%s/versions/%d:status", apiBase, id)

	err := c.postJSON(ctx, path, map[string]string{"status": string(to)}, nil)
	if err == nil {
		return nil
	}
	var se *statusCodeError
	if errors.As(err, &se) {
		switch se.code {
		case http.StatusNotFound:
			return &lineage.NotFoundError{VersionID: id}
		case http.StatusConflict:
			return &lineage.StateError{VersionID: id, Status: from}
		}
	}
	return &lineage.FetchError{Op: "update status", Err: err}
}

// statusCodeError preserves the response code and body of a non-2xx reply.
type statusCodeError struct {
	code int
	body string
}

func (e *statusCodeError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.code, e.body)
}

// getJSON performs a GET request and decodes the response.
func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("request creation failed: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readStatusError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// postJSON performs a POST request with a JSON body and decodes the response.
func (c *Client) postJSON(ctx context.Context, path string, body any, v any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("request creation failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return readStatusError(resp)
	}
	if v != nil {
		return json.NewDecoder(resp.Body).Decode(v)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("X-Request-ID", uuid.New().String())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func readStatusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := string(body)
	var wire struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &wire) == nil && wire.Error != "" {
		msg = wire.Error
	}
	return &statusCodeError{code: resp.StatusCode, body: msg}
}

func responseToVersion(r *versionResponse) (*lineage.Version, error) {
	status, err := lineage.ParseStatus(r.Status)
	if err != nil {
		return nil, err
	}

	createdAt, err := time.Parse(time.RFC3339Nano, r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	var types lineage.DataTypes
	if r.DataTypes != nil {
		types = make(lineage.DataTypes, len(r.DataTypes))
		for col, raw := range r.DataTypes {
			dt, err := lineage.ParseDataType(raw)
			if err != nil {
				return nil, err
			}
			types[col] = dt
		}
	}

	return &lineage.Version{
		ID:              r.ID,
		TaskID:          r.TaskID,
		ParentVersionID: r.PrevVersion,
		MethodID:        r.MethodID,
		Name:            r.Name,
		Status:          status,
		Config:          json.RawMessage(r.Config),
		DataTypes:       types,
		ProducedFileRef: r.ProcessedFile,
		CreatedAt:       createdAt,
	}, nil
}
