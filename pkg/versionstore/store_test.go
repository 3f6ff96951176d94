package versionstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prepline/prepline/pkg/lineage"
)

// fakeBackend implements Backend over in-memory fixtures.
type fakeBackend struct {
	versions []lineage.Version
	listErr  error
	getErr   error

	listCalls int
	getCalls  int
	nextID    int64
}

func (b *fakeBackend) ListVersions(ctx context.Context, taskID int64) ([]lineage.Version, error) {
	b.listCalls++
	if b.listErr != nil {
		return nil, b.listErr
	}
	out := make([]lineage.Version, len(b.versions))
	copy(out, b.versions)
	return out, nil
}

func (b *fakeBackend) GetVersion(ctx context.Context, id int64) (*lineage.Version, error) {
	b.getCalls++
	if b.getErr != nil {
		return nil, b.getErr
	}
	for _, v := range b.versions {
		if v.ID == id {
			v := v
			return &v, nil
		}
	}
	return nil, &lineage.NotFoundError{VersionID: id}
}

func (b *fakeBackend) CreateVersion(ctx context.Context, req CreateRequest) (*lineage.Version, error) {
	b.nextID++
	v := lineage.Version{
		ID:              b.nextID + 100,
		TaskID:          req.TaskID,
		ParentVersionID: req.ParentVersionID,
		MethodID:        req.MethodID,
		Name:            req.Name,
		Status:          lineage.StatusRaw,
		Config:          req.Config,
		DataTypes:       req.DataTypes,
		CreatedAt:       time.Now(),
	}
	return &v, nil
}

func testVersion(id int64, parent *int64, offset time.Duration) lineage.Version {
	return lineage.Version{
		ID:              id,
		TaskID:          1,
		ParentVersionID: parent,
		Status:          lineage.StatusProcessed,
		DataTypes:       lineage.DataTypes{"age": lineage.DataTypeQuantitative},
		CreatedAt:       time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC).Add(offset),
	}
}

func ptr(v int64) *int64 { return &v }

func TestRefreshSelectsEarliestByDefault(t *testing.T) {
	backend := &fakeBackend{versions: []lineage.Version{
		testVersion(1, nil, 0),
		testVersion(2, ptr(1), time.Minute),
	}}
	store := New(backend, 1)

	require.NoError(t, store.Refresh(context.Background(), nil))

	selected := store.Selected()
	require.NotNil(t, selected)
	assert.Equal(t, int64(1), selected.ID)
	assert.Len(t, store.Versions(), 2)
}

func TestRefreshKeepsPreviousSelection(t *testing.T) {
	backend := &fakeBackend{versions: []lineage.Version{
		testVersion(1, nil, 0),
		testVersion(2, ptr(1), time.Minute),
	}}
	store := New(backend, 1)
	require.NoError(t, store.Refresh(context.Background(), nil))
	store.Select(2)

	backend.versions = append(backend.versions, testVersion(3, ptr(1), 2*time.Minute))
	require.NoError(t, store.Refresh(context.Background(), nil))

	selected := store.Selected()
	require.NotNil(t, selected)
	assert.Equal(t, int64(2), selected.ID)
}

func TestRefreshPrefersRequestedID(t *testing.T) {
	backend := &fakeBackend{versions: []lineage.Version{
		testVersion(1, nil, 0),
		testVersion(2, ptr(1), time.Minute),
	}}
	store := New(backend, 1)
	require.NoError(t, store.Refresh(context.Background(), nil))

	require.NoError(t, store.Refresh(context.Background(), ptr(2)))
	selected := store.Selected()
	require.NotNil(t, selected)
	assert.Equal(t, int64(2), selected.ID)
}

// A preferred id that has not yet appeared in any snapshot is remembered
// and honored by the refresh that finally contains it. This resolves the
// race between creating a version and the next list fetch completing.
func TestRefreshHonorsPendingPreferenceLater(t *testing.T) {
	backend := &fakeBackend{versions: []lineage.Version{
		testVersion(1, nil, 0),
	}}
	store := New(backend, 1)

	// Version 5 was just created but the backend snapshot is stale.
	require.NoError(t, store.Refresh(context.Background(), ptr(5)))
	selected := store.Selected()
	require.NotNil(t, selected)
	assert.Equal(t, int64(1), selected.ID)

	// The next refresh finally contains it; no preference argument needed.
	backend.versions = append(backend.versions, testVersion(5, ptr(1), time.Minute))
	require.NoError(t, store.Refresh(context.Background(), nil))

	selected = store.Selected()
	require.NotNil(t, selected)
	assert.Equal(t, int64(5), selected.ID)

	// Once honored, the preference is spent: a later refresh keeps the
	// previous selection instead of re-applying it.
	store.Select(1)
	require.NoError(t, store.Refresh(context.Background(), nil))
	selected = store.Selected()
	require.NotNil(t, selected)
	assert.Equal(t, int64(1), selected.ID)
}

func TestRefreshFailureRetainsSnapshot(t *testing.T) {
	backend := &fakeBackend{versions: []lineage.Version{
		testVersion(1, nil, 0),
		testVersion(2, ptr(1), time.Minute),
	}}
	store := New(backend, 1)
	require.NoError(t, store.Refresh(context.Background(), nil))
	store.Select(2)

	backend.listErr = &lineage.FetchError{Op: "list versions", Err: errors.New("backend down")}
	err := store.Refresh(context.Background(), nil)

	var fe *lineage.FetchError
	require.ErrorAs(t, err, &fe)

	// Last-known-good snapshot and selection survive.
	assert.Len(t, store.Versions(), 2)
	selected := store.Selected()
	require.NotNil(t, selected)
	assert.Equal(t, int64(2), selected.ID)
}

func TestRefreshWrapsPlainErrors(t *testing.T) {
	backend := &fakeBackend{listErr: errors.New("boom")}
	store := New(backend, 1)

	err := store.Refresh(context.Background(), nil)
	var fe *lineage.FetchError
	require.ErrorAs(t, err, &fe)
}

func TestSelectUnknownIDIsNoOp(t *testing.T) {
	backend := &fakeBackend{versions: []lineage.Version{testVersion(1, nil, 0)}}
	store := New(backend, 1)
	require.NoError(t, store.Refresh(context.Background(), nil))

	store.Select(99)

	selected := store.Selected()
	require.NotNil(t, selected)
	assert.Equal(t, int64(1), selected.ID)
}

func TestCreateRootRequiresDataTypes(t *testing.T) {
	store := New(&fakeBackend{}, 1)

	_, err := store.Create(context.Background(), CreateRequest{Name: "clean"})

	var ve *lineage.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestCreateRootVersion(t *testing.T) {
	store := New(&fakeBackend{}, 1)

	v, err := store.Create(context.Background(), CreateRequest{
		Name:      "clean",
		MethodID:  ptr(5),
		DataTypes: lineage.DataTypes{"age": lineage.DataTypeQuantitative},
	})
	require.NoError(t, err)

	assert.Equal(t, lineage.StatusRaw, v.Status)
	assert.Nil(t, v.ParentVersionID)
	assert.Equal(t, lineage.DataTypes{"age": lineage.DataTypeQuantitative}, v.DataTypes)
	assert.Equal(t, int64(1), v.TaskID)
}

func TestCreateInheritsDataTypesFromSnapshot(t *testing.T) {
	backend := &fakeBackend{versions: []lineage.Version{testVersion(1, nil, 0)}}
	store := New(backend, 1)
	require.NoError(t, store.Refresh(context.Background(), nil))

	v, err := store.Create(context.Background(), CreateRequest{
		Name:            "imputed",
		ParentVersionID: ptr(1),
	})
	require.NoError(t, err)

	assert.Equal(t, lineage.DataTypes{"age": lineage.DataTypeQuantitative}, v.DataTypes)
	// No backend fetch was needed; the snapshot already had the parent.
	assert.Equal(t, 0, backend.getCalls)
}

func TestCreateInheritsDataTypesFromBackend(t *testing.T) {
	backend := &fakeBackend{versions: []lineage.Version{testVersion(7, nil, 0)}}
	store := New(backend, 1) // never refreshed: snapshot is empty

	v, err := store.Create(context.Background(), CreateRequest{
		Name:            "encoded",
		ParentVersionID: ptr(7),
	})
	require.NoError(t, err)
	assert.Equal(t, lineage.DataTypes{"age": lineage.DataTypeQuantitative}, v.DataTypes)
	assert.Equal(t, 1, backend.getCalls)

	// A second create for the same parent hits the inheritance cache.
	_, err = store.Create(context.Background(), CreateRequest{
		Name:            "binned",
		ParentVersionID: ptr(7),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, backend.getCalls)
}

func TestCreateDegradesOnParentLookupFailure(t *testing.T) {
	backend := &fakeBackend{getErr: &lineage.FetchError{Op: "get version", Err: errors.New("timeout")}}
	store := New(backend, 1)

	v, err := store.Create(context.Background(), CreateRequest{
		Name:            "imputed",
		ParentVersionID: ptr(42),
	})

	// Creation proceeds; the failure is reported as a non-fatal
	// InheritanceError next to the created version.
	var ie *lineage.InheritanceError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, int64(42), ie.ParentVersionID)

	require.NotNil(t, v)
	assert.Equal(t, lineage.StatusRaw, v.Status)
	assert.Nil(t, v.DataTypes)
}

func TestCreateExplicitOverrideSkipsInheritance(t *testing.T) {
	backend := &fakeBackend{versions: []lineage.Version{testVersion(1, nil, 0)}}
	store := New(backend, 1)
	require.NoError(t, store.Refresh(context.Background(), nil))

	override := lineage.DataTypes{"age": lineage.DataTypeQualitative}
	v, err := store.Create(context.Background(), CreateRequest{
		Name:            "recoded",
		ParentVersionID: ptr(1),
		DataTypes:       override,
	})
	require.NoError(t, err)
	assert.Equal(t, override, v.DataTypes)
}

func TestLookupDoesNotTouchBackend(t *testing.T) {
	backend := &fakeBackend{versions: []lineage.Version{testVersion(1, nil, 0)}}
	store := New(backend, 1)
	require.NoError(t, store.Refresh(context.Background(), nil))
	listCalls, getCalls := backend.listCalls, backend.getCalls

	v, ok := store.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, int64(1), v.ID)

	_, ok = store.Lookup(99)
	assert.False(t, ok)

	assert.Equal(t, listCalls, backend.listCalls)
	assert.Equal(t, getCalls, backend.getCalls)
}
