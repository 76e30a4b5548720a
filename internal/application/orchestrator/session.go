package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aescanero/varflow/internal/application/depgraph"
	"github.com/aescanero/varflow/internal/application/resolvers"
	"github.com/aescanero/varflow/internal/application/workers"
	"github.com/aescanero/varflow/pkg/domain"
	"github.com/aescanero/varflow/pkg/ports"
)

// Submitter runs load tasks. *workers.Pool satisfies it.
type Submitter interface {
	Submit(task workers.Task) error
}

// Session resolves one variable set. It owns the variables, the old-value
// snapshot and the in-flight load handles; all of them are guarded by mu,
// which is never held across a load.
type Session struct {
	id        string
	resolvers *resolvers.Set
	runner    Submitter
	emitter   *Emitter
	validator *Validator
	metrics   ports.MetricsCollector
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	vars       []*domain.Variable
	index      map[string]*domain.Variable
	known      map[string]bool
	graph      *depgraph.Graph
	oldValues  map[string][]string
	loads      map[string]*loadHandle
	nextGen    uint64
	timeRange  domain.TimeRange
	sequence   uint64
	latest     *domain.Snapshot
	inflight   int
	settled    chan struct{}
	closed     bool
	lastActive time.Time
}

// loadHandle identifies the single in-flight load of a variable.
type loadHandle struct {
	generation uint64
	cancel     context.CancelFunc
}

// loadJob is one scheduled load.
type loadJob struct {
	name       string
	generation uint64
	variable   *domain.Variable
	ctx        context.Context
	resolver   resolvers.Resolver
	req        *resolvers.Request
}

func newSession(
	id string,
	tr domain.TimeRange,
	resolverSet *resolvers.Set,
	runner Submitter,
	emitter *Emitter,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
) *Session {
	ctx, cancel := context.WithCancel(context.Background())

	settled := make(chan struct{})
	close(settled)

	s := &Session{
		id:         id,
		resolvers:  resolverSet,
		runner:     runner,
		emitter:    emitter,
		validator:  NewValidator(),
		metrics:    metrics,
		logger:     logger.With(zap.String("session_id", id)),
		ctx:        ctx,
		cancel:     cancel,
		index:      make(map[string]*domain.Variable),
		known:      make(map[string]bool),
		oldValues:  make(map[string][]string),
		loads:      make(map[string]*loadHandle),
		timeRange:  tr,
		settled:    settled,
		lastActive: time.Now(),
	}

	graph, _ := depgraph.Build(nil)
	s.graph = graph
	s.latest = domain.NewSnapshot(id, 0, tr, nil)

	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Configure replaces the variable set. Every variable is created fresh,
// in-flight loads of the previous set are discarded, and a full resolution
// cycle runs over the current time range.
func (s *Session) Configure(configs []domain.VariableConfig, initial domain.InitialValues) error {
	graph, err := s.validator.Validate(configs, initial)
	if err != nil {
		return err
	}

	vars := make([]*domain.Variable, 0, len(configs))
	index := make(map[string]*domain.Variable, len(configs))
	known := make(map[string]bool, len(configs))
	oldValues := make(map[string][]string)

	for _, cfg := range configs {
		v := domain.NewVariable(cfg)
		raw := initial[cfg.Name]

		if cfg.Kind == domain.KindDynamicFilters {
			v.Value = v.EmptyValue()
			if len(raw) > 0 {
				filters, err := domain.DecodeFilters(raw[0])
				if err != nil {
					return fmt.Errorf("invalid initial value for %s: %w", cfg.Name, err)
				}
				if filters != nil {
					v.Value.Filters = filters
				}
			}
		} else {
			v.Value = v.EmptyValue()
			if len(raw) > 0 {
				oldValues[cfg.Name] = append([]string{}, raw...)
			}
		}

		vars = append(vars, v)
		index[cfg.Name] = v
		known[cfg.Name] = true
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrSessionClosed
	}
	for name := range s.loads {
		s.cancelLoadLocked(name)
	}
	s.vars = vars
	s.index = index
	s.known = known
	s.graph = graph
	s.oldValues = oldValues
	tr := s.timeRange
	s.mu.Unlock()

	s.logger.Info("variables configured",
		zap.Int("variables", len(vars)),
		zap.Strings("roots", graph.Roots()))

	s.resolveAll(tr, "configure")
	return nil
}

// ResolveAll marks every variable pending and resolves the whole set over
// tr. An invalid tr leaves every variable pending.
func (s *Session) ResolveAll(tr domain.TimeRange) {
	s.resolveAll(tr, "time_range")
}

func (s *Session) resolveAll(tr domain.TimeRange, trigger string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.lastActive = time.Now()
	s.timeRange = tr
	for _, v := range s.vars {
		s.invalidateLocked(v)
	}
	snap := s.snapshotLocked()
	names := s.graph.Names()
	s.mu.Unlock()

	s.metrics.RecordCycle(trigger)
	s.emitter.Emit(context.Background(), snap)

	if !tr.Valid() {
		s.logger.Debug("time range invalid, resolution deferred",
			zap.Time("start", tr.Start),
			zap.Time("end", tr.End))
		return
	}

	for _, name := range names {
		s.attemptResolve(name)
	}
}

// SetValue applies a user edit to name and re-resolves its descendants.
// A variable that was not resolved is re-resolved too, using the edit as
// its prior selection.
func (s *Session) SetValue(name string, value domain.Value) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrSessionClosed
	}

	v, ok := s.index[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrUnknownVariable, name)
	}
	if v.Kind() == domain.KindConstant {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrReadOnlyVariable, name)
	}

	normalized, err := v.Normalize(value)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	s.lastActive = time.Now()
	v.Value = normalized
	if v.Kind() != domain.KindDynamicFilters {
		s.oldValues[name] = append([]string{}, normalized.Items...)
	}
	if v.State != domain.StateResolved {
		s.invalidateLocked(v)
	}

	descendants := s.graph.Descendants(name)
	for _, d := range descendants {
		s.invalidateLocked(s.index[d])
	}

	snap := s.snapshotLocked()
	tr := s.timeRange
	names := s.graph.Names()
	s.mu.Unlock()

	s.logger.Debug("variable edited",
		zap.String("variable", name),
		zap.Strings("invalidated", descendants))

	s.metrics.RecordCycle("set_value")
	s.emitter.Emit(context.Background(), snap)

	if !tr.Valid() {
		return nil
	}

	for _, n := range names {
		s.attemptResolve(n)
	}
	return nil
}

// attemptResolve starts a load for name if it is pending, every parent is
// resolved and the time range is valid. Otherwise it does nothing; the
// variable is attempted again when a parent resolves or a new cycle starts.
func (s *Session) attemptResolve(name string) {
	s.mu.Lock()
	job, ok := s.prepareLoadLocked(name)
	if !ok {
		s.mu.Unlock()
		return
	}
	s.beginTaskLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.emitter.Emit(context.Background(), snap)

	if err := s.runner.Submit(func(context.Context) { s.runLoad(job) }); err != nil {
		s.logger.Warn("failed to schedule load",
			zap.String("variable", name),
			zap.Error(err))
		s.complete(job, nil, fmt.Errorf("failed to schedule load: %w", err), 0)
	}
}

func (s *Session) prepareLoadLocked(name string) (*loadJob, bool) {
	if s.closed {
		return nil, false
	}

	v, ok := s.index[name]
	if !ok || v.State != domain.StatePending {
		return nil, false
	}
	if !s.timeRange.Valid() {
		return nil, false
	}

	parents := s.graph.Parents(name)
	for _, p := range parents {
		if s.index[p].State != domain.StateResolved {
			return nil, false
		}
	}

	resolver, err := s.resolvers.For(v.Kind())
	if err != nil {
		s.logger.Error("no resolver for variable",
			zap.String("variable", name),
			zap.Error(err))
		return nil, false
	}

	s.cancelLoadLocked(name)
	s.nextGen++
	ctx, cancel := context.WithCancel(s.ctx)
	s.loads[name] = &loadHandle{generation: s.nextGen, cancel: cancel}
	v.State = domain.StateLoading

	resolved := make(map[string]*domain.Variable, len(parents))
	for _, p := range parents {
		resolved[p] = s.index[p].Clone()
	}

	return &loadJob{
		name:       name,
		generation: s.nextGen,
		variable:   v,
		ctx:        ctx,
		resolver:   resolver,
		req: &resolvers.Request{
			SessionID: s.id,
			Variable:  v.Clone(),
			Resolved:  resolved,
			Known:     s.known,
			OldValue:  append([]string(nil), s.oldValues[name]...),
			TimeRange: s.timeRange,
		},
	}, true
}

func (s *Session) runLoad(job *loadJob) {
	start := time.Now()
	res, err := job.resolver.Load(job.ctx, job.req)
	s.complete(job, res, err, time.Since(start))
}

// complete commits a finished load unless it was superseded, then attempts
// the variable's children.
func (s *Session) complete(job *loadJob, res *resolvers.Result, err error, took time.Duration) {
	defer s.endTask()

	kind := job.variable.Kind()

	s.mu.Lock()
	handle, ok := s.loads[job.name]
	if s.closed || !ok || handle.generation != job.generation {
		s.mu.Unlock()
		s.metrics.RecordLoad(kind, "cancelled", took)
		s.logger.Debug("discarding superseded load",
			zap.String("variable", job.name),
			zap.Uint64("generation", job.generation))
		return
	}
	delete(s.loads, job.name)
	handle.cancel()

	v := job.variable
	var children []string
	var outcome string

	switch {
	case errors.Is(err, resolvers.ErrUnresolvedReference):
		v.State = domain.StatePending
		outcome = "deferred"
	case err != nil:
		v.Value = v.EmptyValue()
		v.Options = []domain.Option{}
		v.State = domain.StateFailed
		outcome = "failed"
	default:
		value, normErr := v.Normalize(res.Value)
		if normErr != nil {
			value = v.EmptyValue()
		}
		v.Options = append([]domain.Option{}, res.Options...)
		v.Value = value
		v.State = domain.StateResolved
		if v.Kind() != domain.KindDynamicFilters {
			s.oldValues[job.name] = append([]string{}, value.Items...)
		}
		children = s.graph.Children(job.name)
		outcome = "resolved"
	}

	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.metrics.RecordLoad(kind, outcome, took)
	if outcome == "failed" {
		s.logger.Warn("variable load failed",
			zap.String("variable", job.name),
			zap.String("kind", string(kind)),
			zap.Error(err))
	} else {
		s.logger.Debug("variable load finished",
			zap.String("variable", job.name),
			zap.String("outcome", outcome),
			zap.Duration("duration", took))
	}

	s.emitter.Emit(context.Background(), snap)

	for _, child := range children {
		s.attemptResolve(child)
	}
}

// invalidateLocked marks v pending and discards its in-flight load.
func (s *Session) invalidateLocked(v *domain.Variable) {
	s.cancelLoadLocked(v.Name())
	v.State = domain.StatePending
}

func (s *Session) cancelLoadLocked(name string) {
	if handle, ok := s.loads[name]; ok {
		handle.cancel()
		delete(s.loads, name)
	}
}

func (s *Session) snapshotLocked() *domain.Snapshot {
	s.sequence++
	s.latest = domain.NewSnapshot(s.id, s.sequence, s.timeRange, s.vars)
	return s.latest
}

func (s *Session) beginTaskLocked() {
	if s.inflight == 0 {
		s.settled = make(chan struct{})
	}
	s.inflight++
}

func (s *Session) endTask() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inflight--
	if s.inflight == 0 {
		close(s.settled)
	}
}

// Wait blocks until no load is in flight or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	s.mu.Lock()
	settled := s.settled
	s.mu.Unlock()

	select {
	case <-settled:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns a copy of the latest snapshot.
func (s *Session) Snapshot() *domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest.Clone()
}

// TimeRange returns the current time range.
func (s *Session) TimeRange() domain.TimeRange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeRange
}

// IdleSince returns when the session was last touched by a caller.
func (s *Session) IdleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Close cancels every in-flight load and stops snapshot publication. Loads
// finishing afterwards are discarded.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for name := range s.loads {
		s.cancelLoadLocked(name)
	}
	s.cancel()
	s.emitter.Close()
}
