package pipeline

// Invocation is the opaque method invocation payload produced by a method
// configuration builder. The orchestrator forwards it unmodified; it never
// interprets the transformation parameters.
type Invocation struct {
	Technique string   `json:"technique"`
	Method    string   `json:"method"`
	Step      string   `json:"step"`
	Value     any      `json:"value"`
	Target    string   `json:"target"`
	Columns   []string `json:"columns"`
}

// Submission is the body sent to the Remote Processor: the invocation merged
// with the requesting user and the task method being applied.
type Submission struct {
	Invocation
	UserID       int64 `json:"userId"`
	TaskMethodID int64 `json:"taskMethodId"`
}

// PayloadSource produces the invocation payload from the current column and
// parameter selections. GeneratePayload returns nil when the selection is
// invalid for the method (e.g. fewer than the minimum required columns);
// the orchestrator treats a nil payload as a local validation failure and
// never calls the Remote Processor.
type PayloadSource interface {
	GeneratePayload() *Invocation
}

// StaticPayload is a PayloadSource with a fixed invocation, used by callers
// that assemble the payload ahead of time (the CLI reads it from a file).
type StaticPayload Invocation

// GeneratePayload implements PayloadSource.
func (p *StaticPayload) GeneratePayload() *Invocation {
	if p == nil {
		return nil
	}
	inv := Invocation(*p)
	return &inv
}
