// Package versionstore maintains the authoritative, ordered snapshot of a
// task's versions and the currently selected one. The snapshot is immutable
// per fetch: refreshes replace it wholesale, never patch it incrementally.
package versionstore

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prepline/prepline/pkg/lineage"
)

// CreateRequest carries the parameters for a new version. DataTypes may be
// left nil for a non-root version to inherit the parent's mapping.
type CreateRequest struct {
	TaskID          int64
	ParentVersionID *int64
	MethodID        *int64
	Name            string
	Config          json.RawMessage
	DataTypes       lineage.DataTypes
}

// Backend is the persistence/transport collaborator the store fetches from.
// It is satisfied by the registry HTTP client.
type Backend interface {
	ListVersions(ctx context.Context, taskID int64) ([]lineage.Version, error)
	GetVersion(ctx context.Context, id int64) (*lineage.Version, error)
	CreateVersion(ctx context.Context, req CreateRequest) (*lineage.Version, error)
}

// Store holds one task's version snapshot and selection state.
type Store struct {
	backend Backend
	taskID  int64
	logger  *slog.Logger
	types   *typeCache

	mu       sync.Mutex
	snapshot []lineage.Version
	byID     map[int64]lineage.Version
	selected *int64
	// pending is a preferred selection that has not yet appeared in a
	// fetched snapshot; it is honored by the first refresh that contains it.
	pending *int64
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New creates a Store for one task.
func New(backend Backend, taskID int64, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		taskID:  taskID,
		logger:  slog.Default(),
		types:   newTypeCache(256, 5*time.Minute),
		byID:    map[int64]lineage.Version{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Refresh re-fetches the version list and reconciles the active selection by
// priority: (1) the preferred id, if present in the new snapshot; (2) the
// previously selected id, if still present; (3) the earliest version by
// creation order. A preferred id not yet present is remembered until a later
// refresh finally contains it.
//
// On fetch failure the last-known-good snapshot is retained and a FetchError
// is returned.
func (s *Store) Refresh(ctx context.Context, preferred *int64) error {
	s.mu.Lock()
	if preferred != nil {
		id := *preferred
		s.pending = &id
	}
	s.mu.Unlock()

	list, err := s.backend.ListVersions(ctx, s.taskID)
	if err != nil {
		s.logger.Warn("version list fetch failed, keeping last snapshot",
			"taskId", s.taskID, "error", err)
		var fe *lineage.FetchError
		if errors.As(err, &fe) {
			return err
		}
		return &lineage.FetchError{Op: "list versions", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot = list
	s.byID = make(map[int64]lineage.Version, len(list))
	for _, v := range list {
		s.byID[v.ID] = v
	}
	s.types.reset()

	switch {
	case s.pending != nil && s.present(*s.pending):
		s.selected = s.pending
		s.pending = nil
	case s.selected != nil && s.present(*s.selected):
		// Keep the existing selection.
	case len(list) > 0:
		id := list[0].ID
		s.selected = &id
	default:
		s.selected = nil
	}
	return nil
}

// Create persists a new RAW version. Root versions must supply a data type
// mapping. Non-root versions without an explicit mapping inherit the
// parent's verbatim. A failed parent lookup does not abort creation: the
// version is created with a nil mapping and a non-fatal InheritanceError is
// returned alongside it.
func (s *Store) Create(ctx context.Context, req CreateRequest) (*lineage.Version, error) {
	req.TaskID = s.taskID

	var inheritErr error
	if req.ParentVersionID == nil {
		if req.DataTypes == nil {
			return nil, &lineage.ValidationError{Reason: "root version requires a data type mapping"}
		}
	} else if req.DataTypes == nil {
		types, err := s.parentDataTypes(ctx, *req.ParentVersionID)
		if err != nil {
			s.logger.Warn("parent data type lookup failed, creating without mapping",
				"taskId", s.taskID, "parentVersionId", *req.ParentVersionID, "error", err)
			inheritErr = &lineage.InheritanceError{ParentVersionID: *req.ParentVersionID, Err: err}
		} else {
			req.DataTypes = types.Clone()
		}
	}

	v, err := s.backend.CreateVersion(ctx, req)
	if err != nil {
		return nil, err
	}
	return v, inheritErr
}

// parentDataTypes resolves a parent's mapping from the current snapshot,
// then the inheritance cache, then the backend.
func (s *Store) parentDataTypes(ctx context.Context, parentID int64) (lineage.DataTypes, error) {
	s.mu.Lock()
	parent, ok := s.byID[parentID]
	s.mu.Unlock()
	if ok {
		return parent.DataTypes, nil
	}

	if types, ok := s.types.get(parentID); ok {
		return types, nil
	}

	fetched, err := s.backend.GetVersion(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if fetched.DataTypes != nil {
		s.types.set(parentID, fetched.DataTypes)
	}
	return fetched.DataTypes, nil
}

// Select sets the active selection only if the id is present in the current
// snapshot; otherwise it is a no-op.
func (s *Store) Select(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.present(id) {
		s.selected = &id
	}
}

// Versions returns a copy of the current snapshot in creation order.
func (s *Store) Versions() []lineage.Version {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]lineage.Version, len(s.snapshot))
	copy(out, s.snapshot)
	return out
}

// Selected returns the currently selected version, or nil.
func (s *Store) Selected() *lineage.Version {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == nil {
		return nil
	}
	v, ok := s.byID[*s.selected]
	if !ok {
		return nil
	}
	return &v
}

// Lookup returns a version from the current snapshot without touching the
// network.
func (s *Store) Lookup(id int64) (*lineage.Version, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return &v, true
}

// present must be called with s.mu held.
func (s *Store) present(id int64) bool {
	_, ok := s.byID[id]
	return ok
}
