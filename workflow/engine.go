package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/flowengine/types"
	"github.com/BaSui01/flowengine/workflow/breaker"
	"github.com/BaSui01/flowengine/workflow/cache"
	"github.com/BaSui01/flowengine/workflow/expr"
	"github.com/BaSui01/flowengine/workflow/metrics"
	"github.com/BaSui01/flowengine/workflow/ratelimit"
	"github.com/BaSui01/flowengine/workflow/retry"
)

// DefaultDefinitionTTL is how long a resolved definition stays cached.
const DefaultDefinitionTTL = time.Hour

const tracerName = "github.com/BaSui01/flowengine/workflow"

// Option configures an Engine.
type Option func(*Engine)

// WithHandlers sets the step handler table.
func WithHandlers(t *HandlerTable) Option {
	return func(e *Engine) { e.handlers = t }
}

// WithCheckpointStore sets where runs are persisted.
func WithCheckpointStore(s CheckpointStore) Option {
	return func(e *Engine) { e.store = s }
}

// WithDeadLetterSink sets where exhausted runs go.
func WithDeadLetterSink(s DeadLetterSink) Option {
	return func(e *Engine) { e.deadLetters = s }
}

// WithRateLimiter throttles runs per actor and workflow.
func WithRateLimiter(l ratelimit.Limiter, points int, window time.Duration) Option {
	return func(e *Engine) {
		e.limiter = l
		e.ratePoints = points
		e.rateWindow = window
	}
}

// WithAuthorizer enables role checks before a run starts.
func WithAuthorizer(a *Authorizer) Option {
	return func(e *Engine) { e.authorizer = a }
}

// WithRecorder records one sample per finished run.
func WithRecorder(r *metrics.Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithStepRetryPolicy sets the policy used for steps of RETRY workflows.
// MaxRetries is taken from the definition.
func WithStepRetryPolicy(p retry.Policy) Option {
	return func(e *Engine) { e.stepPolicy = p }
}

// WithDefaultStepTimeout bounds each step attempt that has no own timeout.
func WithDefaultStepTimeout(d time.Duration) Option {
	return func(e *Engine) { e.stepTimeout = d }
}

// WithBreakers shares a breaker registry, reported by Stats.
func WithBreakers(r *breaker.Registry) Option {
	return func(e *Engine) { e.breakers = r }
}

// WithDecisionCache shares a decision cache, reported by Stats and swept by the janitor.
func WithDecisionCache(c *cache.DecisionCache) Option {
	return func(e *Engine) { e.decisions = c }
}

// WithDefinitionTTL sets the definition cache TTL.
func WithDefinitionTTL(ttl time.Duration) Option {
	return func(e *Engine) { e.definitions = cache.NewTable[*Definition](ttl) }
}

// WithEventSink publishes progress events.
func WithEventSink(s EventSink) Option {
	return func(e *Engine) { e.events = s }
}

// WithTracerProvider sets the OpenTelemetry provider for run and step spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) { e.tracer = tp.Tracer(tracerName) }
}

// WithMaxParallelism bounds concurrent steps per group. 0 means unbounded.
func WithMaxParallelism(n int) Option {
	return func(e *Engine) { e.maxParallelism = n }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine runs registered workflows.
type Engine struct {
	registry       *Registry
	handlers       *HandlerTable
	definitions    *cache.Table[*Definition]
	decisions      *cache.DecisionCache
	breakers       *breaker.Registry
	evaluator      *expr.ConditionEvaluator
	limiter        ratelimit.Limiter
	ratePoints     int
	rateWindow     time.Duration
	authorizer     *Authorizer
	store          CheckpointStore
	deadLetters    DeadLetterSink
	recorder       *metrics.Recorder
	stepPolicy     retry.Policy
	stepTimeout    time.Duration
	events         EventSink
	tracer         trace.Tracer
	maxParallelism int
	now            func() time.Time
	logger         *zap.Logger

	mu     sync.Mutex
	active map[string]*activeRun
}

type activeRun struct {
	cancelled bool
}

// NewEngine creates an engine over registry. Without options it keeps runs
// in memory, skips authorization and rate limiting, and does not retry.
func NewEngine(registry *Registry, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	mem := NewMemoryStore()
	e := &Engine{
		registry:    registry,
		handlers:    NewHandlerTable(),
		definitions: cache.NewTable[*Definition](DefaultDefinitionTTL),
		store:       mem,
		deadLetters: mem,
		stepPolicy:  defaultStepPolicy(),
		tracer:      otel.Tracer(tracerName),
		now:         time.Now,
		logger:      logger.With(zap.String("component", "workflow_engine")),
		active:      make(map[string]*activeRun),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.evaluator = expr.NewConditionEvaluator(logger)
	registry.OnChange(func(id string) { e.definitions.Delete(id) })
	return e
}

func defaultStepPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	p.Timeout = 0
	p.Retryable = retry.StepRetryable
	return p
}

// Registry returns the definition registry.
func (e *Engine) Registry() *Registry { return e.registry }

// Handlers returns the step handler table.
func (e *Engine) Handlers() *HandlerTable { return e.handlers }

// Recorder returns the metrics recorder, which may be nil.
func (e *Engine) Recorder() *metrics.Recorder { return e.recorder }

// DeadLetters returns the dead letter sink.
func (e *Engine) DeadLetters() DeadLetterSink { return e.deadLetters }

// resolve 先查定义缓存，未命中则查注册表并回填缓存
func (e *Engine) resolve(workflowID string) (*Definition, error) {
	if def, ok := e.definitions.Get(workflowID); ok {
		return def, nil
	}
	def, err := e.registry.Get(workflowID)
	if err != nil {
		return nil, err
	}
	e.definitions.Set(workflowID, def, 0)
	return def, nil
}

// runState is the mutable bookkeeping of one run.
type runState struct {
	def     *Definition
	run     *Execution
	groups  [][]Step
	blocked map[string]bool
	span    trace.Span
	started time.Time
}

// Execute runs workflowID to completion. Failures before the first step
// (unknown workflow, invalid input, unauthorized, rate limited) return a
// *types.Error and no run. Once steps start, the run is returned with its
// terminal status and a nil error.
func (e *Engine) Execute(ctx context.Context, workflowID string, input map[string]any, actorID string) (*Execution, error) {
	st, err := e.prepare(ctx, workflowID, input, actorID)
	if err != nil {
		return nil, err
	}
	e.run(ctx, st)
	return st.run.Clone(), nil
}

// Start runs the same checks as Execute, then continues the run in the
// background and returns the RUNNING record. The background run is detached
// from ctx cancellation; use Cancel to stop it.
func (e *Engine) Start(ctx context.Context, workflowID string, input map[string]any, actorID string) (*Execution, error) {
	st, err := e.prepare(ctx, workflowID, input, actorID)
	if err != nil {
		return nil, err
	}
	snapshot := st.run.Clone()
	go e.run(context.WithoutCancel(ctx), st)
	return snapshot, nil
}

func (e *Engine) prepare(ctx context.Context, workflowID string, input map[string]any, actorID string) (*runState, error) {
	if err := ValidateInputShape(input); err != nil {
		return nil, err
	}
	def, err := e.resolve(workflowID)
	if err != nil {
		return nil, err
	}
	if err := def.ValidateInput(input); err != nil {
		return nil, err
	}
	if e.authorizer != nil {
		if err := e.authorizer.Authorize(ctx, actorID, workflowID); err != nil {
			e.logger.Warn("workflow execution unauthorized",
				zap.String("workflow_id", workflowID),
				zap.String("actor_id", actorID),
			)
			return nil, err
		}
	}
	if err := e.checkRateLimit(ctx, actorID, workflowID); err != nil {
		return nil, err
	}

	groups, err := Plan(def)
	if err != nil {
		return nil, err
	}

	now := e.now()
	run := &Execution{
		ID:         NewExecutionID(),
		WorkflowID: workflowID,
		ActorID:    actorID,
		Status:     ExecutionRunning,
		Input:      cloneMap(input),
		Output:     map[string]any{},
		Steps:      []StepRecord{},
		Groups:     GroupIDs(groups),
		StartedAt:  now,
	}
	if run.Input == nil {
		run.Input = map[string]any{}
	}
	if err := e.store.Begin(ctx, run); err != nil {
		return nil, types.WrapError(err, types.ErrInternalError, "failed to persist workflow run")
	}

	e.mu.Lock()
	e.active[run.ID] = &activeRun{}
	e.mu.Unlock()

	return &runState{
		def:     def,
		run:     run,
		groups:  groups,
		blocked: make(map[string]bool),
		started: now,
	}, nil
}

func (e *Engine) checkRateLimit(ctx context.Context, actorID, workflowID string) error {
	if e.limiter == nil {
		return nil
	}
	actor := actorID
	if actor == "" {
		actor = SystemActor
	}
	key := ratelimit.UserKey(actor, workflowID)
	res, err := e.limiter.Check(ctx, key, e.ratePoints, e.rateWindow)
	if err != nil {
		// 限流后端故障时放行
		e.logger.Warn("rate limiter unavailable", zap.String("key", key), zap.Error(err))
		return nil
	}
	if res.Allowed {
		return nil
	}
	return types.Errorf(types.ErrRateLimited, "rate limit exceeded for workflow %s", workflowID).
		WithRetryable(true).
		WithDetail("key", key).
		WithDetail("resetAt", res.ResetAt).
		WithDetail("remaining", res.Remaining)
}

func (e *Engine) run(ctx context.Context, st *runState) {
	run := st.run
	ctx, st.span = e.tracer.Start(ctx, "workflow.execute", trace.WithAttributes(
		attribute.String("workflow.id", run.WorkflowID),
		attribute.String("execution.id", run.ID),
	))
	defer st.span.End()

	e.logger.Info("workflow execution started",
		zap.String("workflow_id", run.WorkflowID),
		zap.String("execution_id", run.ID),
		zap.Int("groups", len(st.groups)),
		zap.Any("input", types.MaskMap(run.Input)),
	)
	e.publish(Event{Type: EventRunStarted, WorkflowID: run.WorkflowID, ExecutionID: run.ID, Status: string(run.Status)})

	for gi, group := range st.groups {
		if reason := e.interrupted(ctx, run.ID); reason != "" {
			e.fail(st, ExecutionCancelled, types.ErrCancelled, reason)
			break
		}

		records := e.runGroup(ctx, st, gi, group)
		stop := e.absorb(st, records)

		if err := e.store.Checkpoint(ctx, run); err != nil {
			e.logger.Error("checkpoint failed",
				zap.String("execution_id", run.ID),
				zap.Int("group", gi),
				zap.Error(err),
			)
			msg := fmt.Sprintf("checkpoint after group %d failed: %v", gi, err)
			if run.Status == ExecutionRunning {
				e.fail(st, ExecutionFailed, types.ErrStepExecutionFailed, msg)
			} else {
				// 保留首个终止错误码，死信判断依赖它
				run.Error += "; " + msg
			}
			break
		}
		e.publish(Event{Type: EventRunCheckpointed, WorkflowID: run.WorkflowID, ExecutionID: run.ID, Group: gi})

		if stop {
			break
		}
	}

	if run.Status == ExecutionRunning {
		run.Status = ExecutionCompleted
	}
	e.finish(ctx, st)
}

// interrupted returns a reason when the run was cancelled.
func (e *Engine) interrupted(ctx context.Context, executionID string) string {
	if err := ctx.Err(); err != nil {
		return "execution cancelled: " + err.Error()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if a, ok := e.active[executionID]; ok && a.cancelled {
		return "execution cancelled"
	}
	return ""
}

func (e *Engine) fail(st *runState, status ExecutionStatus, code types.ErrorCode, msg string) {
	st.run.Status = status
	st.run.ErrorCode = string(code)
	st.run.Error = msg
}

// runGroup executes one group against a snapshot of input ∪ output and
// returns records in declaration order.
func (e *Engine) runGroup(ctx context.Context, st *runState, gi int, group []Step) []StepRecord {
	vars := scopeVars(st.run.Input, st.run.Output)
	records := make([]StepRecord, len(group))

	var pending []int
	for i, s := range group {
		if st.def.Policy() == OnErrorContinue && e.dependsOnBlocked(st, s) {
			now := e.now()
			records[i] = StepRecord{
				StepID:      s.ID,
				Type:        s.Type,
				Status:      StepSkipped,
				Error:       "skipped: a dependency did not complete",
				StartedAt:   now,
				CompletedAt: &now,
			}
			continue
		}
		pending = append(pending, i)
	}

	if len(pending) == 1 {
		i := pending[0]
		records[i] = e.executeStep(ctx, st, gi, group[i], vars)
		return records
	}

	var g errgroup.Group
	if e.maxParallelism > 0 {
		g.SetLimit(e.maxParallelism)
	}
	for _, i := range pending {
		g.Go(func() error {
			records[i] = e.executeStep(ctx, st, gi, group[i], vars)
			return nil
		})
	}
	_ = g.Wait()
	return records
}

func (e *Engine) dependsOnBlocked(st *runState, s Step) bool {
	for _, dep := range s.DependsOn {
		if st.blocked[dep] {
			return true
		}
	}
	return false
}

// absorb appends a group's records, merges completed outputs and applies the
// error policy. It reports whether the run must stop.
func (e *Engine) absorb(st *runState, records []StepRecord) bool {
	run := st.run
	stop := false
	for _, r := range records {
		run.Steps = append(run.Steps, r)
		switch r.Status {
		case StepCompleted:
			for k, v := range r.Output {
				run.Output[k] = cloneValue(v)
			}
		case StepSkipped:
			st.blocked[r.StepID] = true
			e.publish(Event{Type: EventStepSkipped, WorkflowID: run.WorkflowID, ExecutionID: run.ID, StepID: r.StepID, StepType: r.Type, Status: string(r.Status)})
		case StepFailed:
			st.blocked[r.StepID] = true
			if st.def.Policy() == OnErrorContinue {
				continue
			}
			if !stop {
				run.Status = ExecutionFailed
				run.Error = r.Error
				run.ErrorCode = r.ErrorCode
			}
			stop = true
		}
	}
	return stop
}

// executeStep runs one step, retrying under the RETRY policy.
func (e *Engine) executeStep(ctx context.Context, st *runState, gi int, step Step, vars map[string]any) StepRecord {
	run := st.run
	ctx, span := e.tracer.Start(ctx, "workflow.step", trace.WithAttributes(
		attribute.String("workflow.id", run.WorkflowID),
		attribute.String("execution.id", run.ID),
		attribute.String("step.id", step.ID),
		attribute.String("step.type", string(step.Type)),
	))
	defer span.End()

	input := ResolvePlaceholders(step.Input, vars)
	rec := StepRecord{
		StepID:    step.ID,
		Type:      step.Type,
		Status:    StepRunning,
		Input:     input,
		StartedAt: e.now(),
	}

	var attempt atomic.Int32
	call := func(ctx context.Context) (any, error) {
		n := attempt.Add(1)
		return e.invoke(ctx, StepContext{
			ExecutionID: run.ID,
			WorkflowID:  run.WorkflowID,
			ActorID:     run.ActorID,
			Step:        step,
			Input:       cloneMap(input),
			Vars:        vars,
			Attempt:     int(n),
		})
	}

	policy := e.stepPolicy
	policy.Timeout = e.stepTimeout
	if step.Timeout > 0 {
		policy.Timeout = step.Timeout
	}
	if st.def.Policy() == OnErrorRetry {
		policy.MaxRetries = st.def.Retries()
	} else {
		policy.MaxRetries = 0
		policy.Retryable = func(error) bool { return false }
	}

	out, attempts, err := retry.NewWrapper(policy, nil, nil, e.logger).
		CallCounted(ctx, retry.CallSpec{Method: step.ID, SkipCache: true}, call)
	now := e.now()
	rec.CompletedAt = &now
	rec.Attempts = attempts

	if err != nil {
		code := types.GetErrorCode(err)
		if code == "" {
			code = types.ErrStepExecutionFailed
		}
		rec.Status = StepFailed
		rec.Error = err.Error()
		rec.ErrorCode = string(code)

		span.RecordError(err)
		span.SetStatus(codes.Error, rec.Error)
		e.logger.Warn("step failed",
			zap.String("execution_id", run.ID),
			zap.String("step_id", step.ID),
			zap.String("error_code", rec.ErrorCode),
			zap.Int("attempts", attempts),
			zap.Any("input", types.MaskMap(input)),
			zap.Error(err),
		)
		e.publish(Event{Type: EventStepFailed, WorkflowID: run.WorkflowID, ExecutionID: run.ID, StepID: step.ID, StepType: step.Type,
			Status: string(rec.Status), Group: gi, Attempts: attempts, Duration: rec.Duration(), ErrorCode: rec.ErrorCode, Error: rec.Error})
	} else {
		output, _ := out.(map[string]any)
		rec.Status = StepCompleted
		rec.Output = cloneMap(output)
		if rec.Output == nil {
			rec.Output = map[string]any{}
		}
		e.logger.Debug("step completed",
			zap.String("execution_id", run.ID),
			zap.String("step_id", step.ID),
			zap.Int("attempts", attempts),
			zap.Any("output", types.MaskMap(rec.Output)),
		)
		e.publish(Event{Type: EventStepCompleted, WorkflowID: run.WorkflowID, ExecutionID: run.ID, StepID: step.ID, StepType: step.Type,
			Status: string(rec.Status), Group: gi, Attempts: attempts, Duration: rec.Duration()})
	}
	span.SetAttributes(attribute.String("step.status", string(rec.Status)), attribute.Int("step.attempts", attempts))
	return rec
}

// invoke dispatches a single attempt of a step. A panicking handler fails
// the attempt instead of the process.
func (e *Engine) invoke(ctx context.Context, sc StepContext) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("step handler panicked",
				zap.String("execution_id", sc.ExecutionID),
				zap.String("step_id", sc.Step.ID),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			out = nil
			err = types.Errorf(types.ErrStepExecutionFailed, "step %s panicked: %v", sc.Step.ID, r).
				WithDetail("stepId", sc.Step.ID)
		}
	}()

	if sc.Step.Type == StepConditional {
		result := e.evaluator.Evaluate(sc.Step.Condition, sc.Vars)
		next := sc.Step.OnFalse
		if result {
			next = sc.Step.OnTrue
		}
		return map[string]any{"conditionResult": result, "nextStep": next}, nil
	}

	h, ok := e.handlers.resolve(sc.Step)
	if !ok {
		name := string(sc.Step.Type)
		if sc.Step.Type == StepCustom {
			name = sc.Step.HandlerName()
		}
		return nil, types.Errorf(types.ErrStepExecutionFailed, "no handler registered for step %s (%s)", sc.Step.ID, name).
			WithDetail("stepId", sc.Step.ID)
	}
	res, err := h(ctx, sc)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Engine) finish(ctx context.Context, st *runState) {
	run := st.run
	now := e.now()
	run.CompletedAt = &now

	e.mu.Lock()
	delete(e.active, run.ID)
	e.mu.Unlock()

	if err := e.store.Complete(ctx, run); err != nil {
		e.logger.Error("failed to persist finished run", zap.String("execution_id", run.ID), zap.Error(err))
	}

	if e.recorder != nil {
		e.recorder.Record(metrics.Sample{
			WorkflowID:      run.WorkflowID,
			ExecutionID:     run.ID,
			Status:          string(run.Status),
			Duration:        run.Duration(),
			StepCount:       len(run.Steps),
			FailedStepCount: run.FailedSteps(),
			Timestamp:       now,
			ErrorCode:       run.ErrorCode,
		})
	}

	if run.ErrorCode == string(types.ErrMaxRetriesExceeded) && e.deadLetters != nil {
		dl := DeadLetter{
			ID:          NewDeadLetterID(),
			WorkflowID:  run.WorkflowID,
			ExecutionID: run.ID,
			Input:       types.MaskMap(run.Input),
			Error:       run.Error,
			ErrorCode:   run.ErrorCode,
			CreatedAt:   now,
		}
		if err := e.deadLetters.Record(ctx, dl); err != nil {
			e.logger.Error("failed to record dead letter", zap.String("execution_id", run.ID), zap.Error(err))
		}
	}

	st.span.SetAttributes(attribute.String("workflow.status", string(run.Status)))
	if run.Status != ExecutionCompleted {
		st.span.SetStatus(codes.Error, run.Error)
	}

	fields := []zap.Field{
		zap.String("workflow_id", run.WorkflowID),
		zap.String("execution_id", run.ID),
		zap.String("status", string(run.Status)),
		zap.Duration("duration", run.Duration()),
		zap.Int("steps", len(run.Steps)),
	}
	if run.ErrorCode != "" {
		fields = append(fields, zap.String("error_code", run.ErrorCode), zap.String("error", run.Error))
	}
	e.logger.Info("workflow execution finished", fields...)

	e.publish(Event{
		Type:        EventRunFinished,
		WorkflowID:  run.WorkflowID,
		ExecutionID: run.ID,
		Status:      string(run.Status),
		Duration:    run.Duration(),
		ErrorCode:   run.ErrorCode,
		Error:       run.Error,
		Run: &ExecutionBrief{
			Status:          run.Status,
			StepCount:       len(run.Steps),
			FailedStepCount: run.FailedSteps(),
		},
	})
}

func (e *Engine) publish(ev Event) {
	if e.events == nil {
		return
	}
	ev.Timestamp = e.now()
	e.events.Publish(ev)
}

// Cancel marks an in-flight run; it stops before its next group.
func (e *Engine) Cancel(executionID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.active[executionID]
	if !ok {
		return types.Errorf(types.ErrExecutionNotFound, "execution %s is not running", executionID).
			WithDetail("executionId", executionID)
	}
	a.cancelled = true
	e.logger.Info("workflow execution cancel requested", zap.String("execution_id", executionID))
	return nil
}

// Get loads a run from the store.
func (e *Engine) Get(ctx context.Context, executionID string) (*Execution, error) {
	run, err := e.store.Load(ctx, executionID)
	if err != nil {
		if errors.Is(err, ErrRunNotFound) {
			return nil, types.Errorf(types.ErrExecutionNotFound, "execution %s not found", executionID).
				WithDetail("executionId", executionID)
		}
		return nil, types.WrapError(err, types.ErrInternalError, "failed to load execution")
	}
	return run, nil
}

// Stats describes engine caches and dependency health.
type Stats struct {
	DefinitionEntries int                         `json:"definitionEntries"`
	DecisionEntries   int                         `json:"decisionEntries"`
	Total             int                         `json:"total"`
	ActiveRuns        int                         `json:"activeRuns"`
	Breakers          map[string]breaker.Snapshot `json:"breakers,omitempty"`
}

// Stats returns a snapshot of engine state.
func (e *Engine) Stats() Stats {
	s := Stats{DefinitionEntries: e.definitions.Len()}
	if e.decisions != nil {
		s.DecisionEntries = e.decisions.Len()
	}
	s.Total = s.DefinitionEntries + s.DecisionEntries
	e.mu.Lock()
	s.ActiveRuns = len(e.active)
	e.mu.Unlock()
	if e.breakers != nil {
		s.Breakers = e.breakers.Snapshots()
	}
	return s
}

// Janitor returns a janitor sweeping the engine's expiring tables.
func (e *Engine) Janitor(interval, metricsRetention time.Duration) *cache.Janitor {
	j := cache.NewJanitor(interval, e.logger)
	j.Add("definitions", e.definitions)
	if e.decisions != nil {
		j.Add("decisions", e.decisions)
	}
	if sw, ok := e.limiter.(cache.Sweeper); ok {
		j.Add("rate_limits", sw)
	}
	if e.recorder != nil && metricsRetention > 0 {
		j.Add("metrics", cache.SweeperFunc(func() int { return e.recorder.ClearOlderThan(metricsRetention) }))
	}
	return j
}

// scopeVars is what placeholders and conditions resolve against: input
// overlaid with output, plus "input" and "output" namespaces unless a key
// already claims them.
func scopeVars(input, output map[string]any) map[string]any {
	vars := mergeVars(input, output)
	if _, ok := vars["input"]; !ok {
		vars["input"] = cloneMap(input)
	}
	if _, ok := vars["output"]; !ok {
		vars["output"] = cloneMap(output)
	}
	return vars
}
