// Package registry is the persistence layer and HTTP surface for version
// records: the authoritative backend the version store fetches from and the
// Remote Processor writes terminal statuses to.
package registry

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prepline/prepline/pkg/lineage"
)

// DataTypeMap is a custom GORM type storing the per-column data type
// mapping as JSON text. A NULL column round-trips as a nil map.
type DataTypeMap lineage.DataTypes

// Scan implements the sql.Scanner interface for DataTypeMap.
func (m *DataTypeMap) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case string:
		bytes = []byte(v)
	case []byte:
		bytes = v
	default:
		return fmt.Errorf("unsupported type for DataTypeMap: %T", value)
	}
	return json.Unmarshal(bytes, m)
}

// Value implements the driver.Valuer interface for DataTypeMap.
func (m DataTypeMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// JSONRaw stores opaque JSON (the pass-through transformation config).
type JSONRaw json.RawMessage

// Scan implements the sql.Scanner interface for JSONRaw.
func (j *JSONRaw) Scan(value any) error {
	if value == nil {
		*j = nil
		return nil
	}
	switch v := value.(type) {
	case string:
		*j = JSONRaw([]byte(v))
	case []byte:
		*j = JSONRaw(append([]byte(nil), v...))
	default:
		return fmt.Errorf("unsupported type for JSONRaw: %T", value)
	}
	return nil
}

// Value implements the driver.Valuer interface for JSONRaw.
func (j JSONRaw) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return string(j), nil
}

// VersionRecord is the GORM model for one persisted version. Records are
// immutable after creation except for the guarded status transition and the
// produced file reference attached with it.
type VersionRecord struct {
	ID            int64          `gorm:"primaryKey;column:id;autoIncrement"`
	TaskID        int64          `gorm:"column:task_id;index:idx_version_task;not null"`
	MethodID      *int64         `gorm:"column:method_id"`
	Name          string         `gorm:"column:name;not null"`
	PrevVersion   *int64         `gorm:"column:prev_version;index:idx_version_parent"`
	Status        lineage.Status `gorm:"column:status;not null;default:RAW"`
	ProcessedFile *int64         `gorm:"column:processed_file"`
	DataTypes     DataTypeMap    `gorm:"column:data_types;type:text"`
	Config        JSONRaw        `gorm:"column:config;type:text"`
	CreatedAt     time.Time      `gorm:"column:created_at;autoCreateTime"`
}

// TableName returns the GORM table name.
func (VersionRecord) TableName() string { return "dataset_versions" }

// ToVersion converts the record to its domain representation.
func (r *VersionRecord) ToVersion() lineage.Version {
	return lineage.Version{
		ID:              r.ID,
		TaskID:          r.TaskID,
		ParentVersionID: r.PrevVersion,
		MethodID:        r.MethodID,
		Name:            r.Name,
		Status:          r.Status,
		Config:          json.RawMessage(r.Config),
		DataTypes:       lineage.DataTypes(r.DataTypes),
		ProducedFileRef: r.ProcessedFile,
		CreatedAt:       r.CreatedAt,
	}
}
