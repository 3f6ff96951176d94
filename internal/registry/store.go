package registry

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/prepline/prepline/pkg/lineage"
)

// Store provides database operations for version records.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the dataset_versions table.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(&VersionRecord{}); err != nil {
		return fmt.Errorf("auto-migrate dataset_versions: %w", err)
	}
	return nil
}

// Create inserts a new version record. Every version starts RAW; a caller
// cannot create one in any other status. A root record (nil prev_version)
// must carry a data type mapping, and a non-root record must reference an
// existing version in the same task.
func (s *Store) Create(record *VersionRecord) error {
	record.Status = lineage.StatusRaw
	record.ProcessedFile = nil

	if record.PrevVersion == nil {
		if record.DataTypes == nil {
			return &lineage.ValidationError{Reason: "root version requires a data type mapping"}
		}
	} else {
		parent, err := s.Get(*record.PrevVersion)
		if err != nil {
			return err
		}
		if parent == nil || parent.TaskID != record.TaskID {
			return &lineage.ValidationError{Reason: fmt.Sprintf("parent version %d does not exist in task %d", *record.PrevVersion, record.TaskID)}
		}
	}

	if err := s.db.Create(record).Error; err != nil {
		return fmt.Errorf("create version: %w", err)
	}
	return nil
}

// Get retrieves a version record by id. Returns nil, nil if no record exists.
func (s *Store) Get(id int64) (*VersionRecord, error) {
	var record VersionRecord
	err := s.db.Where("id = ?", id).First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get version: %w", err)
	}
	return &record, nil
}

// ListByTask returns all version records for a task in creation order.
func (s *Store) ListByTask(taskID int64) ([]VersionRecord, error) {
	var records []VersionRecord
	err := s.db.Where("task_id = ?", taskID).
		Order("created_at ASC, id ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	return records, nil
}

// UpdateStatus applies the monotonic status machine in a single conditional
// UPDATE: RAW may only become RUNNING, RUNNING may only become PROCESSED or
// FAILED, and terminal records never move. processedFile, when non-nil, is
// attached with a terminal write. A violating transition yields StateError;
// an unknown id yields NotFoundError.
func (s *Store) UpdateStatus(id int64, to lineage.Status, processedFile *int64) error {
	var from lineage.Status
	switch to {
	case lineage.StatusRunning:
		from = lineage.StatusRaw
	case lineage.StatusProcessed, lineage.StatusFailed:
		from = lineage.StatusRunning
	default:
		return &lineage.ValidationError{Reason: fmt.Sprintf("status %q is not a transition target", to)}
	}

	updates := map[string]any{"status": to}
	if processedFile != nil && to.Terminal() {
		updates["processed_file"] = *processedFile
	}

	res := s.db.Model(&VersionRecord{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update status: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	// Nothing matched: distinguish a missing record from a bad transition.
	record, err := s.Get(id)
	if err != nil {
		return err
	}
	if record == nil {
		return &lineage.NotFoundError{VersionID: id}
	}
	return &lineage.StateError{VersionID: id, Status: record.Status}
}
