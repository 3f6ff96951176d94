package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/prepline/prepline/pkg/lineage"
	"github.com/prepline/prepline/pkg/session"
)

// versionResponse is the wire representation of a persisted version record.
// Field names and types follow the external interface contract; created_at
// is ISO-8601.
type versionResponse struct {
	ID            int64             `json:"id"`
	TaskID        int64             `json:"task_id"`
	MethodID      *int64            `json:"method_id"`
	Name          string            `json:"name"`
	PrevVersion   *int64            `json:"prev_version"`
	Status        string            `json:"status"`
	ProcessedFile *int64            `json:"processed_file"`
	DataTypes     map[string]string `json:"data_types"`
	Config        json.RawMessage   `json:"config,omitempty"`
	CreatedAt     string            `json:"created_at"`
}

func recordToResponse(r *VersionRecord) versionResponse {
	resp := versionResponse{
		ID:            r.ID,
		TaskID:        r.TaskID,
		MethodID:      r.MethodID,
		Name:          r.Name,
		PrevVersion:   r.PrevVersion,
		Status:        string(r.Status),
		ProcessedFile: r.ProcessedFile,
		Config:        json.RawMessage(r.Config),
		CreatedAt:     r.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if r.DataTypes != nil {
		resp.DataTypes = make(map[string]string, len(r.DataTypes))
		for col, dt := range r.DataTypes {
			resp.DataTypes[col] = string(dt)
		}
	}
	return resp
}

// createVersionRequest is the POST body for a new version.
type createVersionRequest struct {
	TaskID      int64             `json:"task_id"`
	MethodID    *int64            `json:"method_id"`
	Name        string            `json:"name"`
	PrevVersion *int64            `json:"prev_version"`
	DataTypes   map[string]string `json:"data_types"`
	Config      json.RawMessage   `json:"config"`
}

// ListVersionsHandler handles GET /api/lineage/v1alpha1/versions?taskId=N
func ListVersionsHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID, err := strconv.ParseInt(r.URL.Query().Get("taskId"), 10, 64)
		if err != nil || taskID <= 0 {
			writeError(w, http.StatusBadRequest, "missing or invalid taskId")
			return
		}

		records, err := store.ListByTask(taskID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list versions: %v", err))
			return
		}

		versions := make([]versionResponse, len(records))
		for i := range records {
			versions[i] = recordToResponse(&records[i])
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"versions":  versions,
			"totalSize": len(versions),
		})
	}
}

// GetVersionHandler handles GET /api/lineage/v1alpha1/versions/{versionId}
func GetVersionHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "versionId"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid version id")
			return
		}

		record, err := store.Get(id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get version: %v", err))
			return
		}
		if record == nil {
			writeError(w, http.StatusNotFound, fmt.Sprintf("version %d not found", id))
			return
		}

		writeJSON(w, http.StatusOK, recordToResponse(record))
	}
}

// CreateVersionHandler handles POST /api/lineage/v1alpha1/versions
func CreateVersionHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body createVersionRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		if body.TaskID <= 0 {
			writeError(w, http.StatusBadRequest, "task_id is required")
			return
		}
		if body.Name == "" {
			writeError(w, http.StatusBadRequest, "name is required")
			return
		}

		var types DataTypeMap
		if body.DataTypes != nil {
			types = make(DataTypeMap, len(body.DataTypes))
			for col, raw := range body.DataTypes {
				dt, err := lineage.ParseDataType(raw)
				if err != nil {
					writeError(w, http.StatusBadRequest, err.Error())
					return
				}
				types[col] = dt
			}
		}

		record := &VersionRecord{
			TaskID:      body.TaskID,
			MethodID:    body.MethodID,
			Name:        body.Name,
			PrevVersion: body.PrevVersion,
			DataTypes:   types,
			Config:      JSONRaw(body.Config),
		}

		if err := store.Create(record); err != nil {
			var ve *lineage.ValidationError
			if errors.As(err, &ve) {
				writeError(w, http.StatusBadRequest, ve.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to create version: %v", err))
			return
		}

		requester := "anonymous"
		if id, ok := session.FromContext(r.Context()); ok {
			requester = id.Subject
		}
		logger(r).Info("version created", "versionId", record.ID,
			"taskId", record.TaskID, "requestedBy", requester)

		writeJSON(w, http.StatusCreated, recordToResponse(record))
	}
}

// statusRequest is the POST body for the out-of-band status write.
type statusRequest struct {
	Status        string `json:"status"`
	ProcessedFile *int64 `json:"processed_file"`
}

// UpdateStatusHandler handles POST /api/lineage/v1alpha1/versions/{versionId}:status.
// This is the write path used by the Remote Processor when a transformation
// finishes, and by the orchestrator for the RAW→RUNNING transition.
func UpdateStatusHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "versionId"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid version id")
			return
		}

		var body statusRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		status, err := lineage.ParseStatus(body.Status)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		if err := store.UpdateStatus(id, status, body.ProcessedFile); err != nil {
			var (
				nfe *lineage.NotFoundError
				se  *lineage.StateError
				ve  *lineage.ValidationError
			)
			switch {
			case errors.As(err, &nfe):
				writeError(w, http.StatusNotFound, err.Error())
			case errors.As(err, &se):
				writeError(w, http.StatusConflict, err.Error())
			case errors.As(err, &ve):
				writeError(w, http.StatusBadRequest, err.Error())
			default:
				writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to update status: %v", err))
			}
			return
		}

		logger(r).Info("version status updated", "versionId", id, "status", status)

		writeJSON(w, http.StatusOK, map[string]any{
			"id":     id,
			"status": string(status),
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
