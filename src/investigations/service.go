// Package investigations is the façade front ends use to run investigations.
package investigations

import (
	"context"
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	agentcore "github.com/stake-plus/osintops/src/agents/core"
	"github.com/stake-plus/osintops/src/cache"
	"github.com/stake-plus/osintops/src/consolidate"
	"github.com/stake-plus/osintops/src/controller"
	"github.com/stake-plus/osintops/src/data"
	"github.com/stake-plus/osintops/src/logging"
	"github.com/stake-plus/osintops/src/shared/osint"
	"github.com/stake-plus/osintops/src/tracing"
)

var (
	// ErrInvalidRequest is returned for malformed submissions.
	ErrInvalidRequest = errors.New("investigations: invalid request")
	// ErrAlreadyTerminal is returned when cancelling a finished investigation.
	ErrAlreadyTerminal = errors.New("investigations: already terminal")
	// ErrShuttingDown is returned by Submit after Shutdown began.
	ErrShuttingDown = errors.New("investigations: shutting down")
)

const (
	defaultDeadline = 10 * time.Minute
	maxDeadline     = time.Hour
	finalizeTimeout = 30 * time.Second
	maxNotesLen     = 2000
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// Resolver is the registry view the service needs.
type Resolver interface {
	Resolve(targetType osint.TargetType, scope []osint.Category) ([]agentcore.AdapterRef, error)
	Describe() []agentcore.Descriptor
}

// Traces is the tracer view the service needs.
type Traces interface {
	tracing.Recorder
	Events(investigationID string, after uint64) []tracing.Event
	Release(investigationID string)
	Flush(ctx context.Context) error
	Forget(investigationID string)
}

// Evidence is the evidence-store view the service needs.
type Evidence interface {
	Drop(investigationID string)
}

// Options wires the service.
type Options struct {
	Registry     Resolver
	Controller   *controller.Controller
	Evidence     Evidence
	Consolidator *consolidate.Consolidator
	Repository   data.Repository
	Cache        *cache.ReportCache
	Tracer       Traces
	Logger       *zap.Logger
	Now          func() time.Time
	NewID        func() string

	DefaultDeadline time.Duration
	MaxDeadline     time.Duration
}

// Request is one operator submission.
type Request struct {
	InvestigationID string
	Target          osint.Target
	Scope           []string
	Deadline        time.Duration
	RequestedBy     string
	Notes           string
}

// Ack acknowledges an accepted submission.
type Ack struct {
	InvestigationID string                    `json:"investigationId"`
	Status          osint.InvestigationStatus `json:"status"`
	Deadline        time.Time                 `json:"deadline"`
	Adapters        []string                  `json:"adapters"`
}

// StatusView is an investigation with its tasks and latest report.
type StatusView struct {
	Investigation osint.Investigation `json:"investigation"`
	Tasks         []osint.Task        `json:"tasks"`
	Report        *osint.Report       `json:"report,omitempty"`
}

// Notification is delivered to OnReport hooks when an investigation ends.
type Notification struct {
	Investigation osint.Investigation
	Report        *osint.Report
	Err           error
}

// Service coordinates submission, lifecycle and reporting.
type Service struct {
	registry     Resolver
	controller   *controller.Controller
	evidence     Evidence
	consolidator *consolidate.Consolidator
	repo         data.Repository
	cache        *cache.ReportCache
	tracer       Traces
	logger       *zap.Logger
	now          func() time.Time
	newID        func() string
	sanitizer    *bluemonday.Policy

	defaultDeadline time.Duration
	maxDeadline     time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	watches map[string]chan struct{}
	// unsynced holds final snapshots whose rows could not be written yet.
	unsynced map[string]controller.Snapshot
	hooks    []func(context.Context, Notification)
	shutdown bool
}

// New constructs the service.
func New(opts Options) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		registry:        opts.Registry,
		controller:      opts.Controller,
		evidence:        opts.Evidence,
		consolidator:    opts.Consolidator,
		repo:            opts.Repository,
		cache:           opts.Cache,
		tracer:          opts.Tracer,
		logger:          logging.OrNop(opts.Logger).Named("investigations"),
		now:             opts.Now,
		newID:           opts.NewID,
		sanitizer:       bluemonday.StrictPolicy(),
		defaultDeadline: opts.DefaultDeadline,
		maxDeadline:     opts.MaxDeadline,
		ctx:             ctx,
		cancel:          cancel,
		watches:         map[string]chan struct{}{},
		unsynced:        map[string]controller.Snapshot{},
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.maxDeadline <= 0 {
		s.maxDeadline = maxDeadline
	}
	if s.defaultDeadline <= 0 {
		s.defaultDeadline = defaultDeadline
	}
	if s.defaultDeadline > s.maxDeadline {
		s.defaultDeadline = s.maxDeadline
	}
	return s
}

// OnReport registers a hook fired after an investigation's report is built.
func (s *Service) OnReport(fn func(context.Context, Notification)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// Agents lists the registered adapters.
func (s *Service) Agents() []agentcore.Descriptor {
	return s.registry.Describe()
}

func (s *Service) clean(raw string) string {
	return strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(raw)))
}

// Submit validates a request and starts the investigation. Unsupported
// targets are rejected before anything is persisted.
func (s *Service) Submit(ctx context.Context, req Request) (Ack, error) {
	target := osint.Target{Type: req.Target.Type, Value: s.clean(req.Target.Value)}
	if err := target.Validate(); err != nil {
		return Ack{}, err
	}
	scope, err := osint.ParseScope(req.Scope)
	if err != nil {
		return Ack{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	id := strings.TrimSpace(req.InvestigationID)
	if id == "" {
		id = s.newID()
	} else if !idPattern.MatchString(id) {
		return Ack{}, fmt.Errorf("%w: investigation id %q", ErrInvalidRequest, id)
	}
	notes := s.clean(req.Notes)
	if len(notes) > maxNotesLen {
		notes = notes[:maxNotesLen]
	}

	refs, err := s.registry.Resolve(target.Type, scope)
	if err != nil {
		return Ack{}, err
	}

	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return Ack{}, ErrShuttingDown
	}
	if _, running := s.watches[id]; running {
		s.mu.Unlock()
		return Ack{}, fmt.Errorf("%w: %s", osint.ErrDuplicateInvestigation, id)
	}
	done := make(chan struct{})
	s.watches[id] = done
	s.mu.Unlock()

	release := func() {
		s.mu.Lock()
		delete(s.watches, id)
		s.mu.Unlock()
	}

	if _, err := s.repo.GetInvestigation(ctx, id); err == nil {
		release()
		return Ack{}, fmt.Errorf("%w: %s", osint.ErrDuplicateInvestigation, id)
	} else if !errors.Is(err, osint.ErrNotFound) {
		release()
		return Ack{}, fmt.Errorf("%w: %w", osint.ErrStoreUnavailable, err)
	}

	now := s.now()
	inv := osint.Investigation{
		ID:          id,
		Target:      target,
		Scope:       scope,
		Status:      osint.InvestigationPending,
		CreatedAt:   now,
		Deadline:    now.Add(s.clampDeadline(req.Deadline)),
		RequestedBy: s.clean(req.RequestedBy),
		Notes:       notes,
	}
	if err := s.repo.SaveInvestigation(ctx, inv); err != nil {
		release()
		return Ack{}, fmt.Errorf("%w: %w", osint.ErrStoreUnavailable, err)
	}

	names := make([]string, 0, len(refs))
	for _, ref := range refs {
		names = append(names, ref.Name())
	}
	s.tracer.Record(id, tracing.EventInvestigationCreated, map[string]any{
		"target":      target.String(),
		"scope":       req.Scope,
		"adapters":    names,
		"requestedBy": inv.RequestedBy,
	})

	handle, err := s.controller.Start(s.ctx, inv, refs)
	if err != nil {
		release()
		inv.Status = osint.InvestigationFailed
		inv.Error = err.Error()
		inv.CompletedAt = s.now()
		if saveErr := s.repo.SaveInvestigation(context.WithoutCancel(ctx), inv); saveErr != nil {
			s.logger.Warn("persist failed investigation", zap.String("investigation", id), zap.Error(saveErr))
		}
		return Ack{}, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.finalize(handle, done)
	}()

	s.logger.Info("investigation submitted",
		zap.String("investigation", id),
		zap.String("target", target.String()),
		zap.Strings("adapters", names))
	return Ack{InvestigationID: id, Status: osint.InvestigationRunning, Deadline: inv.Deadline, Adapters: names}, nil
}

func (s *Service) clampDeadline(d time.Duration) time.Duration {
	switch {
	case d <= 0:
		return s.defaultDeadline
	case d > s.maxDeadline:
		return s.maxDeadline
	}
	return d
}

// finalize consolidates a finished investigation, caches its views and
// notifies hooks.
func (s *Service) finalize(handle *controller.Handle, done chan struct{}) {
	<-handle.Done()
	id := handle.ID()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), finalizeTimeout)
	defer cancel()

	snap := handle.Snapshot()
	s.sync(ctx, snap)
	report, err := s.consolidator.ConsolidateFrom(ctx, snap.Investigation, snap.Tasks)
	if err != nil {
		s.logger.Warn("consolidation failed", zap.String("investigation", id), zap.Error(err))
	} else {
		if err := s.cache.PutReport(ctx, *report); err != nil {
			s.logger.Warn("cache report failed", zap.String("investigation", id), zap.Error(err))
		}
	}
	if err := s.cache.PutSnapshot(ctx, cache.Snapshot{Investigation: snap.Investigation, Tasks: snap.Tasks, Report: report}); err != nil {
		s.logger.Warn("cache status failed", zap.String("investigation", id), zap.Error(err))
	}
	if s.evidence != nil {
		s.evidence.Drop(id)
	}

	s.mu.Lock()
	delete(s.watches, id)
	hooks := append([]func(context.Context, Notification){}, s.hooks...)
	s.mu.Unlock()
	close(done)

	note := Notification{Investigation: snap.Investigation, Report: report, Err: err}
	for _, hook := range hooks {
		s.runHook(ctx, hook, note)
	}
	s.tracer.Release(id)
}

// sync writes a final snapshot's rows. The controller persists as it goes,
// so this only matters when one of those writes failed; a snapshot that
// still cannot be written is kept and retried on the next Report call.
func (s *Service) sync(ctx context.Context, snap controller.Snapshot) bool {
	id := snap.Investigation.ID
	err := s.repo.SaveInvestigation(ctx, snap.Investigation)
	for _, task := range snap.Tasks {
		if err != nil {
			break
		}
		err = s.repo.SaveTask(ctx, task)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.unsynced[id] = snap
		s.logger.Warn("final state not persisted", zap.String("investigation", id), zap.Error(err))
		return false
	}
	delete(s.unsynced, id)
	return true
}

func (s *Service) unsyncedSnapshot(id string) (controller.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.unsynced[id]
	return snap, ok
}

func (s *Service) runHook(ctx context.Context, hook func(context.Context, Notification), note Notification) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("report hook panicked",
				zap.String("investigation", note.Investigation.ID), zap.Any("panic", r))
		}
	}()
	hook(ctx, note)
}

// Status returns the current view of an investigation.
func (s *Service) Status(ctx context.Context, id string) (StatusView, error) {
	if handle, ok := s.controller.Lookup(id); ok {
		snap := handle.Snapshot()
		return StatusView{Investigation: snap.Investigation, Tasks: snap.Tasks}, nil
	}
	if snap, ok, err := s.cache.GetSnapshot(ctx, id); err == nil && ok {
		return StatusView(snap), nil
	} else if err != nil {
		s.logger.Debug("status cache read failed", zap.String("investigation", id), zap.Error(err))
	}
	return s.load(ctx, id)
}

func (s *Service) load(ctx context.Context, id string) (StatusView, error) {
	inv, err := s.repo.GetInvestigation(ctx, id)
	if err != nil {
		return StatusView{}, err
	}
	tasks, err := s.repo.ListTasks(ctx, id)
	if err != nil {
		return StatusView{}, fmt.Errorf("%w: %w", osint.ErrStoreUnavailable, err)
	}
	view := StatusView{Investigation: inv, Tasks: tasks}
	if inv.Status.IsTerminal() {
		report, err := s.repo.GetReport(ctx, id)
		switch {
		case err == nil:
			view.Report = &report
		case !errors.Is(err, osint.ErrNotFound):
			return StatusView{}, fmt.Errorf("%w: %w", osint.ErrStoreUnavailable, err)
		}
	}
	return view, nil
}

// Cancel stops a running investigation.
func (s *Service) Cancel(ctx context.Context, id string) error {
	err := s.controller.Cancel(id)
	if err == nil {
		s.logger.Info("investigation cancel requested", zap.String("investigation", id))
		return nil
	}
	if !errors.Is(err, osint.ErrNotFound) {
		return err
	}
	inv, lookupErr := s.repo.GetInvestigation(ctx, id)
	if lookupErr != nil {
		return lookupErr
	}
	if inv.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrAlreadyTerminal, id, inv.Status)
	}
	return err
}

// Report returns the latest report, building one if a terminal investigation
// has none yet. Running investigations yield osint.ErrInvestigationNotTerminal.
func (s *Service) Report(ctx context.Context, id string) (osint.Report, error) {
	snap, pending := s.unsyncedSnapshot(id)
	pending = pending && !s.sync(ctx, snap)
	if report, ok, err := s.cache.GetReport(ctx, id); err == nil && ok {
		return report, nil
	}
	report, err := s.repo.GetReport(ctx, id)
	if err == nil {
		return report, nil
	}
	if !errors.Is(err, osint.ErrNotFound) {
		return osint.Report{}, fmt.Errorf("%w: %w", osint.ErrStoreUnavailable, err)
	}
	if _, running := s.controller.Lookup(id); running {
		return osint.Report{}, fmt.Errorf("%w: %s", osint.ErrInvestigationNotTerminal, id)
	}
	var built *osint.Report
	if pending {
		built, err = s.consolidator.ConsolidateFrom(ctx, snap.Investigation, snap.Tasks)
	} else {
		built, err = s.consolidator.Consolidate(ctx, id)
	}
	if err != nil {
		return osint.Report{}, err
	}
	return *built, nil
}

// Traces returns recorded events with sequence numbers above after. Running
// investigations are served from memory, finished ones from the repository.
func (s *Service) Traces(ctx context.Context, id string, after uint64) ([]tracing.Event, error) {
	if events := s.tracer.Events(id, after); len(events) > 0 {
		return events, nil
	}
	events, err := s.repo.ListTraceEvents(ctx, id, after)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", osint.ErrStoreUnavailable, err)
	}
	return events, nil
}

// Wait blocks until the investigation is terminal and its report is built.
func (s *Service) Wait(ctx context.Context, id string) (StatusView, error) {
	s.mu.Lock()
	done, ok := s.watches[id]
	s.mu.Unlock()
	if ok {
		select {
		case <-done:
		case <-ctx.Done():
			return StatusView{}, ctx.Err()
		}
	}
	return s.Status(ctx, id)
}

// List returns the most recent investigations.
func (s *Service) List(ctx context.Context, limit int) ([]osint.Investigation, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return s.repo.ListInvestigations(ctx, limit)
}

// Purge deletes a terminal investigation and everything recorded about it.
func (s *Service) Purge(ctx context.Context, id string) error {
	if _, running := s.controller.Lookup(id); running {
		return fmt.Errorf("%w: %s", osint.ErrInvestigationNotTerminal, id)
	}
	inv, err := s.repo.GetInvestigation(ctx, id)
	if err != nil {
		return err
	}
	if !inv.Status.IsTerminal() {
		return fmt.Errorf("%w: %s", osint.ErrInvestigationNotTerminal, id)
	}
	if err := s.tracer.Flush(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteInvestigation(ctx, id); err != nil {
		return fmt.Errorf("%w: %w", osint.ErrStoreUnavailable, err)
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("investigation", id), zap.Error(err))
	}
	s.tracer.Forget(id)
	s.mu.Lock()
	delete(s.unsynced, id)
	s.mu.Unlock()
	return nil
}

// Recover closes out investigations a previous process left running. Their
// open tasks are cancelled and a report is built from whatever evidence was
// persisted. Finished investigations that never got a report, because their
// final task rows were not written, are closed out the same way.
func (s *Service) Recover(ctx context.Context) (int, error) {
	invs, err := s.repo.ListInvestigations(ctx, 1000)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", osint.ErrStoreUnavailable, err)
	}
	recovered := 0
	for _, inv := range invs {
		if _, running := s.controller.Lookup(inv.ID); running {
			continue
		}
		if inv.Status.IsTerminal() {
			if _, err := s.repo.GetReport(ctx, inv.ID); !errors.Is(err, osint.ErrNotFound) {
				continue
			}
		}
		if err := s.interrupt(ctx, inv); err != nil {
			return recovered, err
		}
		recovered++
	}
	return recovered, nil
}

func (s *Service) interrupt(ctx context.Context, inv osint.Investigation) error {
	tasks, err := s.repo.ListTasks(ctx, inv.ID)
	if err != nil {
		return fmt.Errorf("%w: %w", osint.ErrStoreUnavailable, err)
	}
	now := s.now()
	for i, task := range tasks {
		if task.State.IsTerminal() {
			continue
		}
		if err := task.Transition(osint.TaskCancelled, now); err != nil {
			return err
		}
		task.Error = "interrupted by restart"
		task.ErrorKind = "cancelled"
		if err := s.repo.SaveTask(ctx, task); err != nil {
			return fmt.Errorf("%w: %w", osint.ErrStoreUnavailable, err)
		}
		tasks[i] = task
	}
	if !inv.Status.IsTerminal() {
		inv.Status = osint.InvestigationCancelled
		inv.CompletedAt = now
		inv.Error = "interrupted by restart"
		if err := s.repo.SaveInvestigation(ctx, inv); err != nil {
			return fmt.Errorf("%w: %w", osint.ErrStoreUnavailable, err)
		}
		s.tracer.Record(inv.ID, tracing.EventInvestigationCancelled, map[string]any{"reason": "interrupted"})
	}
	if _, err := s.consolidator.ConsolidateFrom(ctx, inv, tasks); err != nil {
		s.logger.Warn("consolidation after restart failed", zap.String("investigation", inv.ID), zap.Error(err))
	}
	s.logger.Info("interrupted investigation closed", zap.String("investigation", inv.ID))
	return nil
}

// Shutdown stops accepting work, cancels running investigations and waits
// for their reports to be written.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()

	s.cancel()

	finished := make(chan struct{})
	go func() {
		s.controller.Close()
		s.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
