package workflow

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"

	"github.com/BaSui01/flowengine/types"
	"github.com/BaSui01/flowengine/workflow/metrics"
	"github.com/BaSui01/flowengine/workflow/ratelimit"
	"github.com/BaSui01/flowengine/workflow/retry"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func fastRetryPolicy() retry.Policy {
	return retry.Policy{
		BaseDelay: time.Millisecond,
		MaxDelay:  5 * time.Millisecond,
		Retryable: retry.StepRetryable,
	}
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	base := []Option{
		WithCheckpointStore(store),
		WithDeadLetterSink(store),
		WithStepRetryPolicy(fastRetryPolicy()),
	}
	e := NewEngine(NewRegistry(zap.NewNop()), zap.NewNop(), append(base, opts...)...)
	return e, store
}

func register(t *testing.T, e *Engine, def *Definition) {
	t.Helper()
	require.NoError(t, e.Registry().Register(def))
}

func output(out map[string]any) Handler {
	return func(context.Context, StepContext) (map[string]any, error) {
		return out, nil
	}
}

func failing(msg string) Handler {
	return func(context.Context, StepContext) (map[string]any, error) {
		return nil, errors.New(msg)
	}
}

func sleeping(d time.Duration, out map[string]any) Handler {
	return func(ctx context.Context, _ StepContext) (map[string]any, error) {
		select {
		case <-time.After(d):
			return out, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// ---------------------------------------------------------------------------
// execution
// ---------------------------------------------------------------------------

func TestEngine_EndToEndGroups(t *testing.T) {
	e, store := newTestEngine(t)
	register(t, e, &Definition{ID: "wf", Steps: []Step{
		step("A"),
		{ID: "B", Type: StepCustom, DependsOn: []string{"A"}, Input: map[string]any{"value": "${a}", "msg": "a is ${a}"}},
		step("C", "A"),
	}})

	var seenB StepContext
	e.Handlers().RegisterCustom("A", output(map[string]any{"a": 1}))
	e.Handlers().RegisterCustom("B", func(_ context.Context, sc StepContext) (map[string]any, error) {
		seenB = sc
		return map[string]any{"b": sc.Input["value"]}, nil
	})
	e.Handlers().RegisterCustom("C", output(map[string]any{"c": "done"}))

	run, err := e.Execute(context.Background(), "wf", map[string]any{"seed": true}, "")
	require.NoError(t, err)

	assert.Equal(t, ExecutionCompleted, run.Status)
	assert.Equal(t, [][]string{{"A"}, {"B", "C"}}, run.Groups)
	require.Len(t, run.Steps, 3)
	assert.Equal(t, []string{"A", "B", "C"}, []string{run.Steps[0].StepID, run.Steps[1].StepID, run.Steps[2].StepID})
	for _, r := range run.Steps {
		assert.Equal(t, StepCompleted, r.Status)
		assert.Equal(t, 1, r.Attempts)
	}
	assert.Equal(t, map[string]any{"a": 1, "b": 1, "c": "done"}, run.Output)
	assert.Equal(t, 1, seenB.Input["value"])
	assert.Equal(t, "a is 1", seenB.Input["msg"])
	assert.NotNil(t, run.CompletedAt)
	assert.Regexp(t, `^exec-[0-9a-f-]{36}$`, run.ID)

	assert.Equal(t, 2, store.Checkpoints(run.ID))
	stored, err := e.Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, ExecutionCompleted, stored.Status)
}

func TestEngine_OutputIsolationWithinGroup(t *testing.T) {
	e, _ := newTestEngine(t)
	register(t, e, &Definition{ID: "wf", Steps: []Step{
		step("B"),
		{ID: "C", Type: StepCustom, Input: map[string]any{"seen": "${x}"}},
		{ID: "D", Type: StepCustom, DependsOn: []string{"B", "C"}, Input: map[string]any{"seen": "${x}"}},
	}})

	var cSaw, dSaw atomic.Value
	e.Handlers().RegisterCustom("B", output(map[string]any{"x": "from-b", "k": "b"}))
	e.Handlers().RegisterCustom("C", func(_ context.Context, sc StepContext) (map[string]any, error) {
		cSaw.Store(sc.Input["seen"])
		return map[string]any{"k": "c"}, nil
	})
	e.Handlers().RegisterCustom("D", func(_ context.Context, sc StepContext) (map[string]any, error) {
		dSaw.Store(sc.Input["seen"])
		return nil, nil
	})

	run, err := e.Execute(context.Background(), "wf", map[string]any{"x": "from-input"}, "")
	require.NoError(t, err)
	assert.Equal(t, ExecutionCompleted, run.Status)
	assert.Equal(t, "from-input", cSaw.Load())
	assert.Equal(t, "from-b", dSaw.Load())
	// 同组内按声明顺序合并，后声明者覆盖
	assert.Equal(t, "c", run.Output["k"])
}

func TestEngine_ParallelSpeedUp(t *testing.T) {
	build := func(parallel bool) *Definition {
		b := step("B")
		c := step("C")
		if !parallel {
			c = serialStep("C")
		}
		return &Definition{ID: "wf", Steps: []Step{b, c}}
	}

	for _, tc := range []struct {
		name     string
		parallel bool
		check    func(t *testing.T, d time.Duration)
	}{
		{"parallel", true, func(t *testing.T, d time.Duration) { assert.Less(t, d, 190*time.Millisecond) }},
		{"serial", false, func(t *testing.T, d time.Duration) { assert.GreaterOrEqual(t, d, 200*time.Millisecond) }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			e, _ := newTestEngine(t)
			register(t, e, build(tc.parallel))
			e.Handlers().RegisterCustom("B", sleeping(100*time.Millisecond, map[string]any{"b": 1}))
			e.Handlers().RegisterCustom("C", sleeping(100*time.Millisecond, map[string]any{"c": 1}))

			start := time.Now()
			run, err := e.Execute(context.Background(), "wf", nil, "")
			elapsed := time.Since(start)

			require.NoError(t, err)
			assert.Equal(t, ExecutionCompleted, run.Status)
			tc.check(t, elapsed)
		})
	}
}

func TestEngine_StopPolicy(t *testing.T) {
	e, store := newTestEngine(t)
	register(t, e, &Definition{ID: "wf", OnError: OnErrorStop, Steps: []Step{
		step("A"), step("B", "A"),
	}})
	var bCalls atomic.Int32
	e.Handlers().RegisterCustom("A", failing("boom"))
	e.Handlers().RegisterCustom("B", func(context.Context, StepContext) (map[string]any, error) {
		bCalls.Add(1)
		return nil, nil
	})

	run, err := e.Execute(context.Background(), "wf", nil, "")
	require.NoError(t, err)
	assert.Equal(t, ExecutionFailed, run.Status)
	assert.Equal(t, string(types.ErrStepExecutionFailed), run.ErrorCode)
	assert.Contains(t, run.Error, "boom")
	require.Len(t, run.Steps, 1)
	assert.Equal(t, StepFailed, run.Steps[0].Status)
	assert.Zero(t, bCalls.Load())
	assert.Empty(t, run.Output)

	dls, _ := store.List(context.Background(), "", 0)
	assert.Empty(t, dls)
}

func TestEngine_ContinuePolicySkipsDependents(t *testing.T) {
	e, _ := newTestEngine(t)
	register(t, e, &Definition{ID: "wf", OnError: OnErrorContinue, Steps: []Step{
		step("A"), step("B", "A"), step("C"), step("D", "B"),
	}})
	e.Handlers().RegisterCustom("A", failing("boom"))
	e.Handlers().RegisterCustom("B", output(map[string]any{"b": 1}))
	e.Handlers().RegisterCustom("C", output(map[string]any{"c": 1}))
	e.Handlers().RegisterCustom("D", output(map[string]any{"d": 1}))

	run, err := e.Execute(context.Background(), "wf", nil, "")
	require.NoError(t, err)
	assert.Equal(t, ExecutionCompleted, run.Status)

	status := map[string]StepStatus{}
	for _, r := range run.Steps {
		status[r.StepID] = r.Status
	}
	assert.Equal(t, map[string]StepStatus{
		"A": StepFailed, "B": StepSkipped, "C": StepCompleted, "D": StepSkipped,
	}, status)
	assert.Equal(t, map[string]any{"c": 1}, run.Output)
}

func TestEngine_RetryThenSuccess(t *testing.T) {
	e, store := newTestEngine(t)
	register(t, e, &Definition{ID: "wf", OnError: OnErrorRetry, MaxRetries: 3, Steps: []Step{step("A")}})

	var calls atomic.Int32
	e.Handlers().RegisterCustom("A", func(_ context.Context, sc StepContext) (map[string]any, error) {
		if calls.Add(1) <= 2 {
			return nil, errors.New("transient")
		}
		return map[string]any{"attempt": sc.Attempt}, nil
	})

	run, err := e.Execute(context.Background(), "wf", nil, "")
	require.NoError(t, err)
	assert.Equal(t, ExecutionCompleted, run.Status)
	require.Len(t, run.Steps, 1)
	assert.Equal(t, StepCompleted, run.Steps[0].Status)
	assert.Equal(t, 3, run.Steps[0].Attempts)
	assert.Equal(t, 3, run.Output["attempt"])

	dls, _ := store.List(context.Background(), "", 0)
	assert.Empty(t, dls)
}

func TestEngine_RetryExhaustionDeadLetters(t *testing.T) {
	e, store := newTestEngine(t)
	register(t, e, &Definition{ID: "wf", OnError: OnErrorRetry, MaxRetries: 2, Steps: []Step{
		step("A"), step("B", "A"),
	}})
	var calls atomic.Int32
	e.Handlers().RegisterCustom("A", func(context.Context, StepContext) (map[string]any, error) {
		calls.Add(1)
		return nil, errors.New("always broken")
	})
	e.Handlers().RegisterCustom("B", output(nil))

	input := map[string]any{"email": "tenant@example.com", "unit": 4}
	run, err := e.Execute(context.Background(), "wf", input, "")
	require.NoError(t, err)

	assert.Equal(t, ExecutionFailed, run.Status)
	assert.Equal(t, string(types.ErrMaxRetriesExceeded), run.ErrorCode)
	assert.Equal(t, int32(3), calls.Load())
	require.Len(t, run.Steps, 1)
	assert.Equal(t, 3, run.Steps[0].Attempts)

	dls, err := store.List(context.Background(), "wf", 10)
	require.NoError(t, err)
	require.Len(t, dls, 1)
	assert.Equal(t, run.ID, dls[0].ExecutionID)
	assert.Equal(t, types.MaskedValue, dls[0].Input["email"])
	assert.Equal(t, 4, dls[0].Input["unit"])
	// 原始输入不被脱敏修改
	assert.Equal(t, "tenant@example.com", run.Input["email"])
}

func TestEngine_RetryStopsOnNonRetryable(t *testing.T) {
	e, store := newTestEngine(t)
	register(t, e, &Definition{ID: "wf", OnError: OnErrorRetry, Steps: []Step{step("A")}})
	var calls atomic.Int32
	e.Handlers().RegisterCustom("A", func(context.Context, StepContext) (map[string]any, error) {
		calls.Add(1)
		return nil, types.NewError(types.ErrInvalidInput, "bad unit")
	})

	run, err := e.Execute(context.Background(), "wf", nil, "")
	require.NoError(t, err)
	assert.Equal(t, ExecutionFailed, run.Status)
	assert.Equal(t, string(types.ErrInvalidInput), run.ErrorCode)
	assert.Equal(t, int32(1), calls.Load())

	dls, _ := store.List(context.Background(), "", 0)
	assert.Empty(t, dls)
}

func TestEngine_StepTimeout(t *testing.T) {
	e, _ := newTestEngine(t)
	register(t, e, &Definition{ID: "wf", Steps: []Step{
		{ID: "slow", Type: StepCustom, Timeout: 20 * time.Millisecond},
	}})
	e.Handlers().RegisterCustom("slow", sleeping(time.Second, nil))

	run, err := e.Execute(context.Background(), "wf", nil, "")
	require.NoError(t, err)
	assert.Equal(t, ExecutionFailed, run.Status)
	assert.Equal(t, string(types.ErrTimeout), run.Steps[0].ErrorCode)
}

func TestEngine_ConditionalIsAdvisory(t *testing.T) {
	e, _ := newTestEngine(t)
	register(t, e, &Definition{ID: "wf", Steps: []Step{
		{ID: "check", Type: StepConditional, Condition: "${amount} > 100", OnTrue: "big", OnFalse: "small"},
		step("big", "check"),
		step("small", "check"),
	}})
	e.Handlers().RegisterCustom("big", output(map[string]any{"big": true}))
	e.Handlers().RegisterCustom("small", output(map[string]any{"small": true}))

	run, err := e.Execute(context.Background(), "wf", map[string]any{"amount": 250}, "")
	require.NoError(t, err)
	assert.Equal(t, ExecutionCompleted, run.Status)
	assert.Equal(t, true, run.Output["conditionResult"])
	assert.Equal(t, "big", run.Output["nextStep"])
	assert.Equal(t, true, run.Output["big"])
	assert.Equal(t, true, run.Output["small"])

	run, err = e.Execute(context.Background(), "wf", map[string]any{}, "")
	require.NoError(t, err)
	assert.Equal(t, false, run.Output["conditionResult"])
	assert.Equal(t, "small", run.Output["nextStep"])
}

func TestEngine_MissingHandler(t *testing.T) {
	e, _ := newTestEngine(t)
	register(t, e, &Definition{ID: "wf", Steps: []Step{
		{ID: "A", Type: StepCustom, Handler: "not-registered"},
		{ID: "lease", Type: StepCreateLease},
	}})

	run, err := e.Execute(context.Background(), "wf", nil, "")
	require.NoError(t, err)
	assert.Equal(t, ExecutionFailed, run.Status)
	for _, r := range run.Steps {
		assert.Equal(t, StepFailed, r.Status)
		assert.Equal(t, string(types.ErrStepExecutionFailed), r.ErrorCode)
	}
}

func TestEngine_HandlerByName(t *testing.T) {
	e, _ := newTestEngine(t)
	register(t, e, &Definition{ID: "wf", Steps: []Step{{ID: "A", Type: StepCustom, Handler: "shared"}}})
	e.Handlers().RegisterCustom("shared", output(map[string]any{"ok": true}))

	run, err := e.Execute(context.Background(), "wf", nil, "")
	require.NoError(t, err)
	assert.Equal(t, true, run.Output["ok"])
}

// ---------------------------------------------------------------------------
// pre-execution failures
// ---------------------------------------------------------------------------

func TestEngine_WorkflowNotFound(t *testing.T) {
	e, _ := newTestEngine(t)
	run, err := e.Execute(context.Background(), "ghost", nil, "")
	assert.Nil(t, run)
	assert.True(t, types.IsCode(err, types.ErrWorkflowNotFound))
}

func TestEngine_InvalidInput(t *testing.T) {
	e, _ := newTestEngine(t)
	register(t, e, &Definition{ID: "wf", Steps: []Step{step("A")}, Input: []InputField{
		{Name: "leaseId", Type: FieldNumber, Required: true},
	}})

	run, err := e.Execute(context.Background(), "wf", map[string]any{}, "")
	assert.Nil(t, run)
	assert.True(t, types.IsCode(err, types.ErrInvalidInput))
}

func TestEngine_Unauthorized(t *testing.T) {
	perms := NewStaticPermissions(map[string]string{"tenant-1": "TENANT", "boss": "ADMIN"})
	e, _ := newTestEngine(t, WithAuthorizer(NewAuthorizer(perms, DefaultElevatedRoles, map[string][]string{
		"TENANT": {"other"},
	})))
	register(t, e, &Definition{ID: "wf", Steps: []Step{step("A")}})
	e.Handlers().RegisterCustom("A", output(nil))

	run, err := e.Execute(context.Background(), "wf", nil, "tenant-1")
	assert.Nil(t, run)
	assert.True(t, types.IsCode(err, types.ErrUnauthorized))

	run, err = e.Execute(context.Background(), "wf", nil, "boss")
	require.NoError(t, err)
	assert.Equal(t, ExecutionCompleted, run.Status)
	assert.Equal(t, "boss", run.ActorID)
}

func TestEngine_RateLimited(t *testing.T) {
	limiter := ratelimit.NewFixedWindow()
	e, _ := newTestEngine(t, WithRateLimiter(limiter, 2, time.Minute))
	register(t, e, &Definition{ID: "wf", Steps: []Step{step("A")}})
	e.Handlers().RegisterCustom("A", output(nil))

	for i := 0; i < 2; i++ {
		_, err := e.Execute(context.Background(), "wf", nil, "u1")
		require.NoError(t, err)
	}
	run, err := e.Execute(context.Background(), "wf", nil, "u1")
	assert.Nil(t, run)
	require.True(t, types.IsCode(err, types.ErrRateLimited))
	te, _ := types.AsError(err)
	assert.Contains(t, te.Details, "resetAt")
	assert.Equal(t, "workflow:u1:wf", te.Details["key"])

	// 其他用户有独立的窗口
	_, err = e.Execute(context.Background(), "wf", nil, "u2")
	assert.NoError(t, err)
}

// ---------------------------------------------------------------------------
// cancellation, checkpoints, observability
// ---------------------------------------------------------------------------

func TestEngine_CancelBetweenGroups(t *testing.T) {
	e, store := newTestEngine(t)
	register(t, e, &Definition{ID: "wf", Steps: []Step{step("A"), step("B", "A")}})

	started := make(chan struct{})
	release := make(chan struct{})
	var bCalls atomic.Int32
	e.Handlers().RegisterCustom("A", func(context.Context, StepContext) (map[string]any, error) {
		close(started)
		<-release
		return map[string]any{"a": 1}, nil
	})
	e.Handlers().RegisterCustom("B", func(context.Context, StepContext) (map[string]any, error) {
		bCalls.Add(1)
		return nil, nil
	})

	snapshot, err := e.Start(context.Background(), "wf", nil, "")
	require.NoError(t, err)
	assert.Equal(t, ExecutionRunning, snapshot.Status)

	<-started
	require.NoError(t, e.Cancel(snapshot.ID))
	close(release)

	require.Eventually(t, func() bool {
		run, err := store.Load(context.Background(), snapshot.ID)
		return err == nil && run.Status.Terminal()
	}, 2*time.Second, 5*time.Millisecond)

	run, err := e.Get(context.Background(), snapshot.ID)
	require.NoError(t, err)
	assert.Equal(t, ExecutionCancelled, run.Status)
	assert.Equal(t, string(types.ErrCancelled), run.ErrorCode)
	require.Len(t, run.Steps, 1)
	assert.Equal(t, StepCompleted, run.Steps[0].Status)
	assert.Equal(t, 1, run.Output["a"])
	assert.Zero(t, bCalls.Load())

	assert.True(t, types.IsCode(e.Cancel(snapshot.ID), types.ErrExecutionNotFound))
}

func TestEngine_CancelledContext(t *testing.T) {
	e, _ := newTestEngine(t)
	register(t, e, &Definition{ID: "wf", Steps: []Step{step("A")}})
	e.Handlers().RegisterCustom("A", output(nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := e.Execute(ctx, "wf", nil, "")
	require.NoError(t, err)
	assert.Equal(t, ExecutionCancelled, run.Status)
	assert.Empty(t, run.Steps)
}

type failingCheckpoints struct {
	*MemoryStore
}

func (s failingCheckpoints) Checkpoint(context.Context, *Execution) error {
	return errors.New("disk full")
}

func TestEngine_CheckpointFailureFailsRun(t *testing.T) {
	mem := NewMemoryStore()
	e, _ := newTestEngine(t, WithCheckpointStore(failingCheckpoints{mem}))
	register(t, e, &Definition{ID: "wf", Steps: []Step{step("A"), step("B", "A")}})
	e.Handlers().RegisterCustom("A", output(map[string]any{"a": 1}))
	e.Handlers().RegisterCustom("B", output(map[string]any{"b": 1}))

	run, err := e.Execute(context.Background(), "wf", nil, "")
	require.NoError(t, err)
	assert.Equal(t, ExecutionFailed, run.Status)
	assert.Equal(t, string(types.ErrStepExecutionFailed), run.ErrorCode)
	assert.Contains(t, run.Error, "disk full")
	assert.Len(t, run.Steps, 1)

	stored, err := mem.Load(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, ExecutionFailed, stored.Status)
}

func TestEngine_CheckpointFailureKeepsRetryExhaustion(t *testing.T) {
	mem := NewMemoryStore()
	e, dead := newTestEngine(t, WithCheckpointStore(failingCheckpoints{mem}))
	register(t, e, &Definition{ID: "wf", OnError: OnErrorRetry, MaxRetries: 1, Steps: []Step{step("A")}})
	e.Handlers().RegisterCustom("A", failing("upstream 503"))

	run, err := e.Execute(context.Background(), "wf", nil, "")
	require.NoError(t, err)
	assert.Equal(t, ExecutionFailed, run.Status)
	assert.Equal(t, string(types.ErrMaxRetriesExceeded), run.ErrorCode)
	assert.Contains(t, run.Error, "disk full")

	dls, err := dead.List(context.Background(), "wf", 10)
	require.NoError(t, err)
	assert.Len(t, dls, 1)
}

func TestEngine_PanickingHandlerFailsStep(t *testing.T) {
	e, _ := newTestEngine(t)
	register(t, e, &Definition{ID: "wf", OnError: OnErrorContinue, Steps: []Step{
		step("A"), step("B"), step("C", "A"),
	}})
	e.Handlers().RegisterCustom("A", func(context.Context, StepContext) (map[string]any, error) {
		var m map[string]any
		m["boom"] = 1
		return m, nil
	})
	e.Handlers().RegisterCustom("B", output(map[string]any{"b": 1}))
	e.Handlers().RegisterCustom("C", output(map[string]any{"c": 1}))

	run, err := e.Execute(context.Background(), "wf", nil, "")
	require.NoError(t, err)

	a, ok := run.StepRecord("A")
	require.True(t, ok)
	assert.Equal(t, StepFailed, a.Status)
	assert.Equal(t, string(types.ErrStepExecutionFailed), a.ErrorCode)
	assert.Contains(t, a.Error, "panicked")

	b, _ := run.StepRecord("B")
	assert.Equal(t, StepCompleted, b.Status, "sibling in the same group is unaffected")
	c, _ := run.StepRecord("C")
	assert.Equal(t, StepSkipped, c.Status)
	assert.Equal(t, 1, run.Output["b"])
}

func TestEngine_GetUnknown(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.Get(context.Background(), "exec-missing")
	assert.True(t, types.IsCode(err, types.ErrExecutionNotFound))
}

func TestEngine_DefinitionCacheInvalidatedOnRegister(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Handlers().RegisterCustom("A", output(map[string]any{"v": 1}))
	e.Handlers().RegisterCustom("B", output(map[string]any{"v": 2}))

	register(t, e, &Definition{ID: "wf", Steps: []Step{step("A")}})
	run, err := e.Execute(context.Background(), "wf", nil, "")
	require.NoError(t, err)
	assert.Equal(t, 1, run.Output["v"])
	assert.Equal(t, 1, e.Stats().DefinitionEntries)

	register(t, e, &Definition{ID: "wf", Steps: []Step{step("B")}})
	run, err = e.Execute(context.Background(), "wf", nil, "")
	require.NoError(t, err)
	assert.Equal(t, 2, run.Output["v"])
}

func TestEngine_RecorderAndEvents(t *testing.T) {
	recorder := metrics.NewRecorder(zap.NewNop())
	bus := NewEventBus(32, zap.NewNop())
	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	e, _ := newTestEngine(t, WithRecorder(recorder), WithEventSink(bus))
	register(t, e, &Definition{ID: "wf", OnError: OnErrorContinue, Steps: []Step{step("A"), step("B")}})
	e.Handlers().RegisterCustom("A", output(nil))
	e.Handlers().RegisterCustom("B", failing("nope"))

	run, err := e.Execute(context.Background(), "wf", nil, "")
	require.NoError(t, err)

	m := recorder.WorkflowMetrics("wf", time.Hour)
	assert.Equal(t, 1, m.TotalExecutions)
	assert.Equal(t, 1, m.SuccessfulExecutions)
	assert.InDelta(t, 2.0, m.AverageStepCount, 0.001)

	var got []EventType
	for len(events) > 0 {
		ev := <-events
		assert.Equal(t, run.ID, ev.ExecutionID)
		got = append(got, ev.Type)
	}
	require.NotEmpty(t, got)
	assert.Equal(t, EventRunStarted, got[0])
	assert.Equal(t, EventRunFinished, got[len(got)-1])
	assert.Contains(t, got, EventStepCompleted)
	assert.Contains(t, got, EventStepFailed)
	assert.Contains(t, got, EventRunCheckpointed)
}

func TestEngine_Spans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	e, _ := newTestEngine(t, WithTracerProvider(tp))
	register(t, e, &Definition{ID: "wf", Steps: []Step{step("A"), step("B", "A")}})
	e.Handlers().RegisterCustom("A", output(nil))
	e.Handlers().RegisterCustom("B", output(nil))

	_, err := e.Execute(context.Background(), "wf", nil, "")
	require.NoError(t, err)

	names := map[string]int{}
	for _, s := range sr.Ended() {
		names[s.Name()]++
	}
	assert.Equal(t, 1, names["workflow.execute"])
	assert.Equal(t, 2, names["workflow.step"])
}

func TestEngine_JanitorSweepsDefinitions(t *testing.T) {
	now := time.Now()
	e, _ := newTestEngine(t, WithDefinitionTTL(time.Minute), WithRateLimiter(ratelimit.NewFixedWindow(), 10, time.Minute))
	register(t, e, &Definition{ID: "wf", Steps: []Step{step("A")}})
	e.Handlers().RegisterCustom("A", output(nil))
	e.definitions.WithClock(func() time.Time { return now })

	_, err := e.Execute(context.Background(), "wf", nil, "")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	swept := e.Janitor(time.Minute, 0).SweepOnce()
	assert.Equal(t, 1, swept["definitions"])
	assert.Contains(t, swept, "rate_limits")
	assert.Equal(t, 0, e.Stats().DefinitionEntries)
}
