package lineage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessages(t *testing.T) {
	assert.EqualError(t,
		&ValidationError{Reason: "name is required"},
		"validation failed: name is required")
	assert.EqualError(t,
		&NotFoundError{VersionID: 7},
		"version 7 not found")
	assert.EqualError(t,
		&StateError{VersionID: 7, Status: StatusProcessed},
		"version 7 is PROCESSED, which does not permit this operation")
	assert.EqualError(t,
		&SubmissionError{StatusCode: 503, Body: "overloaded"},
		"processor returned 503: overloaded")
	assert.EqualError(t,
		&ConsistencyError{VersionID: 5, ParentID: 4},
		"version 5 references parent 4 absent from the snapshot")
}

func TestFetchErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := &FetchError{Op: "list versions", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.EqualError(t, err, "fetch list versions: connection refused")
}

func TestInheritanceErrorUnwrap(t *testing.T) {
	cause := &FetchError{Op: "get version", Err: errors.New("timeout")}
	err := &InheritanceError{ParentVersionID: 3, Err: cause}

	var fe *FetchError
	assert.ErrorAs(t, err, &fe)
}
