// Package pipeline drives one version at a time through its lifecycle:
// submit the transformation to the Remote Processor, transition the version
// to RUNNING, and poll until a terminal status is observed.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prepline/prepline/pkg/lineage"
	"github.com/prepline/prepline/pkg/session"
)

// Source looks versions up in the local snapshot. Lookups never touch the
// network, so the orchestrator's pre-submission guards stay synchronous.
type Source interface {
	Lookup(id int64) (*lineage.Version, bool)
}

// Backend is the authoritative version record access the poll loop and the
// status transition use. It is satisfied by the registry HTTP client.
type Backend interface {
	GetVersion(ctx context.Context, id int64) (*lineage.Version, error)
	UpdateStatus(ctx context.Context, id int64, from, to lineage.Status) error
}

// StatusUpdate is pushed on the updates channel when a polled version
// reaches a terminal status.
type StatusUpdate struct {
	VersionID       int64
	Status          lineage.Status
	ProducedFileRef *int64
}

// pollHandle owns one poll loop's cancellation state.
type pollHandle struct {
	versionID int64
	cancel    context.CancelFunc
	done      chan struct{}
}

// Orchestrator drives versions RAW → RUNNING → terminal. At most one poll
// target is active per instance; starting a new target stops the previous
// one first. The session identity is bound at construction rather than read
// from ambient state.
type Orchestrator struct {
	source    Source
	backend   Backend
	processor Processor
	session   *session.Identity
	cfg       *Config
	logger    *slog.Logger
	updates   chan StatusUpdate

	mu          sync.Mutex
	poll        *pollHandle
	lastPollErr error
}

// New creates an Orchestrator. cfg and logger may be nil for defaults.
func New(source Source, backend Backend, processor Processor, id *session.Identity, cfg *Config, logger *slog.Logger) *Orchestrator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		source:    source,
		backend:   backend,
		processor: processor,
		session:   id,
		cfg:       cfg,
		logger:    logger,
		updates:   make(chan StatusUpdate, cfg.UpdateBuffer),
	}
}

// Updates is the single-consumer channel carrying terminal status
// observations from the poll loop.
func (o *Orchestrator) Updates() <-chan StatusUpdate { return o.updates }

// Start submits the transformation for a RAW version and begins polling.
//
// Failure modes, all checked before any network traffic: NotFoundError for
// an unknown id, AuthError when no valid session is bound, StateError when
// the version is not RAW (a RUNNING or terminal version cannot be
// restarted; a new version must be created instead), and ValidationError
// when the payload source declines to produce an invocation.
//
// A non-2xx submission yields SubmissionError and leaves the version in RAW
// with no status write. On success the version transitions RAW → RUNNING
// and the poll loop starts, stopping any previous poll target.
func (o *Orchestrator) Start(ctx context.Context, versionID int64, payloads PayloadSource) error {
	v, ok := o.source.Lookup(versionID)
	if !ok {
		return &lineage.NotFoundError{VersionID: versionID}
	}
	if !o.session.Valid(time.Now()) {
		return &lineage.AuthError{Reason: "no usable session identity bound to the orchestrator"}
	}
	if v.Status != lineage.StatusRaw {
		return &lineage.StateError{VersionID: v.ID, Status: v.Status}
	}

	payload := payloads.GeneratePayload()
	if payload == nil {
		return &lineage.ValidationError{Reason: "method selection does not produce a valid payload"}
	}

	sub := Submission{Invocation: *payload, UserID: o.session.UserID}
	if v.MethodID != nil {
		sub.TaskMethodID = *v.MethodID
	}

	if err := o.processor.Submit(ctx, sub); err != nil {
		// No optimistic transition: the version stays RAW.
		return err
	}

	if err := o.backend.UpdateStatus(ctx, versionID, lineage.StatusRaw, lineage.StatusRunning); err != nil {
		// The processor already accepted the job; the poll loop will observe
		// the authoritative status regardless, so this is advisory only.
		o.logger.Warn("transition to RUNNING failed after accepted submission",
			"versionId", versionID, "error", err)
	}

	o.logger.Info("transformation submitted", "versionId", versionID,
		"method", payload.Method, "userId", sub.UserID)
	o.beginPoll(versionID)
	return nil
}

// Stop cancels the active poll loop, if any, and waits for it to release
// its timer. It is idempotent and safe to call from any poll phase.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	h := o.poll
	o.poll = nil
	o.mu.Unlock()

	if h != nil {
		h.cancel()
		<-h.done
	}
}

// LastPollError returns the most recent transient poll failure, or nil.
// Such failures never stop the loop; they are retried at the next tick.
func (o *Orchestrator) LastPollError() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastPollErr
}

// Polling reports the currently polled version id, if any.
func (o *Orchestrator) Polling() (int64, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.poll == nil {
		return 0, false
	}
	return o.poll.versionID, true
}

// beginPoll replaces the active poll target. The poll context is detached
// from the Start context: the loop's lifetime is owned by the orchestrator.
func (o *Orchestrator) beginPoll(versionID int64) {
	ctx, cancel := context.WithCancel(context.Background())
	h := &pollHandle{versionID: versionID, cancel: cancel, done: make(chan struct{})}

	o.mu.Lock()
	prev := o.poll
	o.poll = h
	o.lastPollErr = nil
	o.mu.Unlock()

	if prev != nil {
		prev.cancel()
		<-prev.done
	}

	go o.pollLoop(ctx, h)
}

// pollLoop fetches the version each tick until it observes a terminal
// status or is cancelled. The fetch is synchronous within the tick, so
// fetches for the same version never overlap.
func (o *Orchestrator) pollLoop(ctx context.Context, h *pollHandle) {
	defer close(h.done)
	defer h.cancel()

	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			v, err := o.backend.GetVersion(ctx, h.versionID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				o.setPollErr(err)
				o.logger.Warn("poll fetch failed, retrying next tick",
					"versionId", h.versionID, "error", err)
				continue
			}
			o.setPollErr(nil)

			if v.Status.Terminal() {
				o.logger.Info("version reached terminal status",
					"versionId", h.versionID, "status", v.Status)
				o.emit(StatusUpdate{
					VersionID:       h.versionID,
					Status:          v.Status,
					ProducedFileRef: v.ProducedFileRef,
				})
				o.release(h)
				return
			}
		}
	}
}

func (o *Orchestrator) setPollErr(err error) {
	o.mu.Lock()
	o.lastPollErr = err
	o.mu.Unlock()
}

// release clears the handle if it is still the active one, so a later Stop
// is a no-op and a later Start does not wait on a finished loop.
func (o *Orchestrator) release(h *pollHandle) {
	o.mu.Lock()
	if o.poll == h {
		o.poll = nil
	}
	o.mu.Unlock()
}

func (o *Orchestrator) emit(u StatusUpdate) {
	select {
	case o.updates <- u:
	default:
		o.logger.Warn("status update dropped, channel full",
			"versionId", u.VersionID, "status", u.Status)
	}
}
