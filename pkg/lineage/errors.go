package lineage

import "fmt"

// ValidationError reports a locally detectable bad request: a missing
// data type mapping on a root version, a bad parent reference, or an
// invalid method selection. It blocks the operation synchronously.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

// AuthError reports that no valid session context was bound at submission
// time. It is never auto-retried.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "no valid session: " + e.Reason
}

// NotFoundError reports an unknown version id.
type NotFoundError struct {
	VersionID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("version %d not found", e.VersionID)
}

// StateError reports an operation invoked against a version whose current
// status does not permit it, e.g. starting a non-RAW version.
type StateError struct {
	VersionID int64
	Status    Status
}

func (e *StateError) Error() string {
	return fmt.Sprintf("version %d is %s, which does not permit this operation", e.VersionID, e.Status)
}

// SubmissionError reports a non-2xx response from the Remote Processor.
// The version is left in RAW; the caller may retry manually.
type SubmissionError struct {
	StatusCode int
	Body       string
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("processor returned %d: %s", e.StatusCode, e.Body)
}

// FetchError reports a transport or backend failure during a list or poll
// fetch. Polling retries automatically at the next interval; a list refresh
// preserves the last-known-good snapshot.
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// InheritanceError reports that the parent data type lookup failed during
// creation. It is non-fatal: creation proceeds with a nil mapping.
type InheritanceError struct {
	ParentVersionID int64
	Err             error
}

func (e *InheritanceError) Error() string {
	return fmt.Sprintf("inherit data types from version %d: %v", e.ParentVersionID, e.Err)
}

func (e *InheritanceError) Unwrap() error { return e.Err }

// ConsistencyError reports a version whose declared parent id is absent
// from the fetched set. The orphan is surfaced, never silently promoted
// to a root.
type ConsistencyError struct {
	VersionID int64
	ParentID  int64
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("version %d references parent %d absent from the snapshot", e.VersionID, e.ParentID)
}
