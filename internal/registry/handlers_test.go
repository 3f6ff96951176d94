package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestServer(t *testing.T) (*httptest.Server, *Store) {
	t.Helper()
	store := setupTestDB(t)
	srv := httptest.NewServer(Router(store))
	t.Cleanup(srv.Close)
	return srv, store
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestCreateVersionEndpoint(t *testing.T) {
	srv, _ := setupTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/versions", map[string]any{
		"task_id": 1,
		"name":    "clean",
		"data_types": map[string]string{
			"age":    "QUANTITATIVE",
			"gender": "QUALITATIVE",
		},
	})

	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "RAW", body["status"])
	assert.Nil(t, body["prev_version"])
	assert.Nil(t, body["processed_file"])
	assert.Equal(t, "clean", body["name"])
	assert.Equal(t, map[string]any{
		"age":    "QUANTITATIVE",
		"gender": "QUALITATIVE",
	}, body["data_types"])
	assert.NotEmpty(t, body["created_at"])
}

func TestCreateVersionValidation(t *testing.T) {
	srv, _ := setupTestServer(t)

	cases := []struct {
		name string
		body map[string]any
	}{
		{"missing task_id", map[string]any{"name": "clean", "data_types": map[string]string{"age": "QUANTITATIVE"}}},
		{"missing name", map[string]any{"task_id": 1, "data_types": map[string]string{"age": "QUANTITATIVE"}}},
		{"root without data types", map[string]any{"task_id": 1, "name": "clean"}},
		{"unknown data type", map[string]any{"task_id": 1, "name": "clean", "data_types": map[string]string{"age": "NUMERIC"}}},
		{"dangling parent", map[string]any{"task_id": 1, "name": "imputed", "prev_version": 99}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := doJSON(t, http.MethodPost, srv.URL+"/versions", tc.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestListVersionsEndpoint(t *testing.T) {
	srv, store := setupTestServer(t)
	first := createRoot(t, store, 1, "clean")
	second := &VersionRecord{TaskID: 1, Name: "imputed", PrevVersion: &first.ID, DataTypes: quantTypes()}
	require.NoError(t, store.Create(second))
	createRoot(t, store, 2, "other-task")

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/versions?taskId=1", nil)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), body["totalSize"])
	versions := body["versions"].([]any)
	require.Len(t, versions, 2)
	assert.Equal(t, "clean", versions[0].(map[string]any)["name"])
	assert.Equal(t, "imputed", versions[1].(map[string]any)["name"])
}

func TestListVersionsRequiresTaskID(t *testing.T) {
	srv, _ := setupTestServer(t)

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/versions", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/versions?taskId=abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetVersionEndpoint(t *testing.T) {
	srv, store := setupTestServer(t)
	record := createRoot(t, store, 1, "clean")

	resp, body := doJSON(t, http.MethodGet, fmt.Sprintf("%s/versions/%d", srv.URL, record.ID), nil)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(record.ID), body["id"])
	assert.Equal(t, "RAW", body["status"])
}

func TestGetVersionNotFound(t *testing.T) {
	srv, _ := setupTestServer(t)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/versions/99", nil)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.NotEmpty(t, body["error"])
}

func TestUpdateStatusEndpoint(t *testing.T) {
	srv, store := setupTestServer(t)
	record := createRoot(t, store, 1, "clean")
	statusURL := fmt.Sprintf("%s/versions/%d:status", srv.URL, record.ID)

	resp, body := doJSON(t, http.MethodPost, statusURL, map[string]any{"status": "RUNNING"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "RUNNING", body["status"])

	// Terminal write from the processor attaches the produced file.
	resp, _ = doJSON(t, http.MethodPost, statusURL, map[string]any{
		"status":         "PROCESSED",
		"processed_file": 41,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	stored, err := store.Get(record.ID)
	require.NoError(t, err)
	assert.Equal(t, "PROCESSED", string(stored.Status))
	require.NotNil(t, stored.ProcessedFile)
	assert.Equal(t, int64(41), *stored.ProcessedFile)
}

func TestUpdateStatusConflicts(t *testing.T) {
	srv, store := setupTestServer(t)
	record := createRoot(t, store, 1, "clean")
	statusURL := fmt.Sprintf("%s/versions/%d:status", srv.URL, record.ID)

	// RAW cannot skip RUNNING.
	resp, body := doJSON(t, http.MethodPost, statusURL, map[string]any{"status": "PROCESSED"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.NotEmpty(t, body["error"])

	// Unknown status value.
	resp, _ = doJSON(t, http.MethodPost, statusURL, map[string]any{"status": "DONE"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// RAW is never a transition target.
	resp, _ = doJSON(t, http.MethodPost, statusURL, map[string]any{"status": "RAW"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Unknown record.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/versions/99:status", map[string]any{"status": "RUNNING"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
