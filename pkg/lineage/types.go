// Package lineage defines the domain model for dataset transformation
// lineage: versions, their statuses, per-column data type annotations,
// and the error taxonomy shared by the store, the pipeline orchestrator,
// and the registry backend.
package lineage

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status represents the lifecycle state of a version.
type Status string

const (
	StatusRaw       Status = "RAW"
	StatusRunning   Status = "RUNNING"
	StatusProcessed Status = "PROCESSED"
	StatusFailed    Status = "FAILED"
)

// Terminal returns true if no further automatic transition occurs.
func (s Status) Terminal() bool {
	return s == StatusProcessed || s == StatusFailed
}

// ParseStatus validates a wire status value. Unknown values are rejected
// rather than treated as a new state.
func ParseStatus(v string) (Status, error) {
	switch Status(v) {
	case StatusRaw, StatusRunning, StatusProcessed, StatusFailed:
		return Status(v), nil
	}
	return "", fmt.Errorf("unknown version status %q", v)
}

// CanTransition reports whether the monotonic status machine permits
// moving from one status to another. RAW may only become RUNNING;
// RUNNING may only become PROCESSED or FAILED; terminal states never move.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusRaw:
		return to == StatusRunning
	case StatusRunning:
		return to == StatusProcessed || to == StatusFailed
	}
	return false
}

// DataType classifies a dataset column.
type DataType string

const (
	DataTypeQuantitative DataType = "QUANTITATIVE"
	DataTypeQualitative  DataType = "QUALITATIVE"
)

// ParseDataType validates a wire data type value.
func ParseDataType(v string) (DataType, error) {
	switch DataType(v) {
	case DataTypeQuantitative, DataTypeQualitative:
		return DataType(v), nil
	}
	return "", fmt.Errorf("unknown data type %q", v)
}

// DataTypes maps column names to their classification. It is inherited
// verbatim down the lineage at creation time unless explicitly overridden.
// A nil map is legal only for non-root versions whose parent lookup failed.
type DataTypes map[string]DataType

// Clone returns a copy so that inherited mappings never alias the parent's.
func (d DataTypes) Clone() DataTypes {
	if d == nil {
		return nil
	}
	out := make(DataTypes, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Version is one node in the dataset transformation lineage. A version with
// a nil ParentVersionID is a root and represents original uploaded data.
type Version struct {
	ID              int64
	TaskID          int64
	ParentVersionID *int64
	MethodID        *int64
	Name            string
	Status          Status
	Config          json.RawMessage
	DataTypes       DataTypes
	ProducedFileRef *int64
	CreatedAt       time.Time
}

// Root reports whether the version represents original uploaded data.
func (v *Version) Root() bool { return v.ParentVersionID == nil }
