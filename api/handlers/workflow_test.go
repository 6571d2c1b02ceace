package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/flowengine/api"
	"github.com/BaSui01/flowengine/types"
	"github.com/BaSui01/flowengine/workflow"
	"github.com/BaSui01/flowengine/workflow/metrics"
	"github.com/BaSui01/flowengine/workflow/retry"
)

// =============================================================================
// 🧪 测试辅助
// =============================================================================

type rawResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *ErrorInfo      `json:"error"`
}

type workflowFixture struct {
	engine *workflow.Engine
	mux    *http.ServeMux
}

func newWorkflowFixture(t *testing.T, opts ...workflow.Option) *workflowFixture {
	t.Helper()
	store := workflow.NewMemoryStore()
	base := []workflow.Option{
		workflow.WithCheckpointStore(store),
		workflow.WithDeadLetterSink(store),
		workflow.WithRecorder(metrics.NewRecorder(zap.NewNop())),
		workflow.WithStepRetryPolicy(retry.Policy{
			BaseDelay: time.Millisecond,
			MaxDelay:  2 * time.Millisecond,
			Retryable: retry.StepRetryable,
		}),
	}
	engine := workflow.NewEngine(workflow.NewRegistry(zap.NewNop()), zap.NewNop(), append(base, opts...)...)
	engine.Handlers().RegisterCustom("echo", func(_ context.Context, sc workflow.StepContext) (map[string]any, error) {
		return map[string]any{"echoed": sc.Input["value"]}, nil
	})
	engine.Handlers().RegisterCustom("broken", func(context.Context, workflow.StepContext) (map[string]any, error) {
		return nil, errors.New("always broken")
	})
	engine.Handlers().RegisterCustom("slow", func(ctx context.Context, _ workflow.StepContext) (map[string]any, error) {
		select {
		case <-time.After(100 * time.Millisecond):
			return map[string]any{"slow": true}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	mux := http.NewServeMux()
	NewWorkflowHandler(engine, zap.NewNop()).Register(mux)
	return &workflowFixture{engine: engine, mux: mux}
}

func (f *workflowFixture) register(t *testing.T, def *workflow.Definition) {
	t.Helper()
	require.NoError(t, f.engine.Registry().Register(def))
}

func (f *workflowFixture) do(t *testing.T, method, path, contentType, body string) (*httptest.ResponseRecorder, rawResponse) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	f.mux.ServeHTTP(w, req)

	var resp rawResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w, resp
}

func echoDefinition(id string) *workflow.Definition {
	return &workflow.Definition{
		ID:   id,
		Name: "Echo",
		Steps: []workflow.Step{
			{ID: "echo", Type: workflow.StepCustom, Handler: "echo", Input: map[string]any{"value": "${input.value}"}},
		},
		Input: []workflow.InputField{{Name: "value", Type: workflow.FieldString, Required: true}},
	}
}

// =============================================================================
// 🧪 定义管理
// =============================================================================

func TestWorkflowHandler_CreateJSON(t *testing.T) {
	f := newWorkflowFixture(t)
	body, err := json.Marshal(echoDefinition("echo-wf"))
	require.NoError(t, err)

	w, resp := f.do(t, http.MethodPost, "/api/v1/workflows", "application/json", string(body))

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, resp.Success)
	var summary api.WorkflowSummary
	require.NoError(t, json.Unmarshal(resp.Data, &summary))
	assert.Equal(t, "echo-wf", summary.ID)
	assert.Equal(t, workflow.OnErrorStop, summary.OnError)
	assert.Equal(t, workflow.DefaultMaxRetries, summary.MaxRetries)
	assert.Equal(t, 1, summary.StepCount)

	_, err = f.engine.Registry().Get("echo-wf")
	assert.NoError(t, err)
}

func TestWorkflowHandler_CreateYAML(t *testing.T) {
	f := newWorkflowFixture(t)
	doc := `
version: "1"
id: yaml-wf
name: From YAML
on_error: continue
steps:
  - id: first
    type: CUSTOM
    handler: echo
    input:
      value: hi
`
	w, resp := f.do(t, http.MethodPost, "/api/v1/workflows", "application/yaml; charset=utf-8", doc)

	assert.Equal(t, http.StatusCreated, w.Code)
	var summary api.WorkflowSummary
	require.NoError(t, json.Unmarshal(resp.Data, &summary))
	assert.Equal(t, "yaml-wf", summary.ID)
	assert.Equal(t, workflow.OnErrorContinue, summary.OnError)
}

func TestWorkflowHandler_CreateYAMLUnknownHandler(t *testing.T) {
	f := newWorkflowFixture(t)
	doc := `
version: "1"
id: yaml-wf
steps:
  - id: first
    type: CUSTOM
    handler: missing
`
	w, resp := f.do(t, http.MethodPost, "/api/v1/workflows", "text/yaml", doc)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(types.ErrInvalidDefinition), resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "missing")
}

func TestWorkflowHandler_CreateRejects(t *testing.T) {
	f := newWorkflowFixture(t)

	tests := []struct {
		name        string
		contentType string
		body        string
		wantStatus  int
		wantCode    types.ErrorCode
	}{
		{
			name:        "unsupported media type",
			contentType: "text/plain",
			body:        "id: x",
			wantStatus:  http.StatusUnsupportedMediaType,
			wantCode:    types.ErrInvalidInput,
		},
		{
			name:        "malformed json",
			contentType: "application/json",
			body:        `{"id":`,
			wantStatus:  http.StatusBadRequest,
			wantCode:    types.ErrInvalidInput,
		},
		{
			name:        "no steps",
			contentType: "application/json",
			body:        `{"id":"empty","name":"Empty","steps":[]}`,
			wantStatus:  http.StatusBadRequest,
			wantCode:    types.ErrInvalidDefinition,
		},
		{
			name:        "dependency cycle",
			contentType: "application/json",
			body: `{"id":"cyc","name":"Cycle","steps":[
				{"id":"a","type":"CUSTOM","dependsOn":["b"]},
				{"id":"b","type":"CUSTOM","dependsOn":["a"]}]}`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := f.do(t, http.MethodPost, "/api/v1/workflows", tt.contentType, tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
			require.NotNil(t, resp.Error)
			if tt.wantCode != "" {
				assert.Equal(t, string(tt.wantCode), resp.Error.Code)
			}
		})
	}
}

func TestWorkflowHandler_ListAndGet(t *testing.T) {
	f := newWorkflowFixture(t)
	f.register(t, echoDefinition("b-wf"))
	f.register(t, echoDefinition("a-wf"))

	w, resp := f.do(t, http.MethodGet, "/api/v1/workflows", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	var list []api.WorkflowSummary
	require.NoError(t, json.Unmarshal(resp.Data, &list))
	require.Len(t, list, 2)

	w, resp = f.do(t, http.MethodGet, "/api/v1/workflows/a-wf", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	var def workflow.Definition
	require.NoError(t, json.Unmarshal(resp.Data, &def))
	assert.Equal(t, "a-wf", def.ID)
	require.Len(t, def.Steps, 1)

	w, resp = f.do(t, http.MethodGet, "/api/v1/workflows/nope", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, string(types.ErrWorkflowNotFound), resp.Error.Code)
}

// =============================================================================
// 🧪 执行
// =============================================================================

func TestWorkflowHandler_ExecuteSync(t *testing.T) {
	f := newWorkflowFixture(t)
	f.register(t, echoDefinition("echo-wf"))

	w, resp := f.do(t, http.MethodPost, "/api/v1/workflows/echo-wf/execute", "application/json", `{"input":{"value":"ping"}}`)

	assert.Equal(t, http.StatusOK, w.Code)
	var run workflow.Execution
	require.NoError(t, json.Unmarshal(resp.Data, &run))
	assert.Equal(t, workflow.ExecutionCompleted, run.Status)
	assert.Equal(t, "ping", run.Output["echoed"])

	w, resp = f.do(t, http.MethodGet, "/api/v1/executions/"+run.ID, "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	var stored workflow.Execution
	require.NoError(t, json.Unmarshal(resp.Data, &stored))
	assert.Equal(t, run.ID, stored.ID)
	assert.Equal(t, workflow.ExecutionCompleted, stored.Status)
}

func TestWorkflowHandler_ExecuteAsActor(t *testing.T) {
	perms := workflow.NewStaticPermissions(map[string]string{"tenant-1": "TENANT", "boss": "ADMIN"})
	f := newWorkflowFixture(t, workflow.WithAuthorizer(workflow.NewAuthorizer(perms, workflow.DefaultElevatedRoles, nil)))
	f.register(t, echoDefinition("echo-wf"))

	call := func(actor string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/workflows/echo-wf/execute",
			bytes.NewBufferString(`{"input":{"value":"x"}}`))
		req.Header.Set("Content-Type", "application/json")
		req = req.WithContext(types.WithUserID(req.Context(), actor))
		w := httptest.NewRecorder()
		f.mux.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusForbidden, call("tenant-1").Code)
	assert.Equal(t, http.StatusOK, call("boss").Code)
}

func TestWorkflowHandler_ExecuteErrors(t *testing.T) {
	f := newWorkflowFixture(t)
	f.register(t, echoDefinition("echo-wf"))

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantCode   types.ErrorCode
	}{
		{
			name:       "unknown workflow",
			path:       "/api/v1/workflows/nope/execute",
			body:       `{"input":{"value":"x"}}`,
			wantStatus: http.StatusNotFound,
			wantCode:   types.ErrWorkflowNotFound,
		},
		{
			name:       "missing required input",
			path:       "/api/v1/workflows/echo-wf/execute",
			wantStatus: http.StatusBadRequest,
			wantCode:   types.ErrInvalidInput,
		},
		{
			name:       "unknown body field",
			path:       "/api/v1/workflows/echo-wf/execute",
			body:       `{"inputs":{}}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   types.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := f.do(t, http.MethodPost, tt.path, "application/json", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
			require.NotNil(t, resp.Error)
			assert.Equal(t, string(tt.wantCode), resp.Error.Code)
		})
	}
}

func TestWorkflowHandler_ExecuteAsyncAndCancel(t *testing.T) {
	f := newWorkflowFixture(t)
	f.register(t, &workflow.Definition{
		ID:   "slow-wf",
		Name: "Slow",
		Steps: []workflow.Step{
			{ID: "one", Type: workflow.StepCustom, Handler: "slow"},
			{ID: "two", Type: workflow.StepCustom, Handler: "slow", DependsOn: []string{"one"}},
		},
	})

	w, resp := f.do(t, http.MethodPost, "/api/v1/workflows/slow-wf/execute", "application/json", `{"async":true}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	var run workflow.Execution
	require.NoError(t, json.Unmarshal(resp.Data, &run))
	assert.Equal(t, workflow.ExecutionRunning, run.Status)

	w, _ = f.do(t, http.MethodPost, "/api/v1/executions/"+run.ID+"/cancel", "", "")
	assert.Equal(t, http.StatusAccepted, w.Code)

	require.Eventually(t, func() bool {
		got, err := f.engine.Get(context.Background(), run.ID)
		return err == nil && got.Status.Terminal()
	}, 2*time.Second, 10*time.Millisecond)

	got, err := f.engine.Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.ExecutionCancelled, got.Status)
}

func TestWorkflowHandler_ExecutionNotFound(t *testing.T) {
	f := newWorkflowFixture(t)

	w, resp := f.do(t, http.MethodGet, "/api/v1/executions/exec-missing", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, string(types.ErrExecutionNotFound), resp.Error.Code)

	w, resp = f.do(t, http.MethodPost, "/api/v1/executions/exec-missing/cancel", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, string(types.ErrExecutionNotFound), resp.Error.Code)
}

// =============================================================================
// 🧪 指标与死信
// =============================================================================

func TestWorkflowHandler_Metrics(t *testing.T) {
	f := newWorkflowFixture(t)
	f.register(t, echoDefinition("echo-wf"))
	_, err := f.engine.Execute(context.Background(), "echo-wf", map[string]any{"value": "a"}, "")
	require.NoError(t, err)

	w, resp := f.do(t, http.MethodGet, "/api/v1/metrics/health?window=30m", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	var health metrics.Health
	require.NoError(t, json.Unmarshal(resp.Data, &health))
	assert.True(t, health.Healthy)
	assert.Equal(t, 1, health.TotalExecutions)

	w, resp = f.do(t, http.MethodGet, "/api/v1/metrics/workflows/echo-wf", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	var m metrics.WorkflowMetrics
	require.NoError(t, json.Unmarshal(resp.Data, &m))
	assert.Equal(t, 1, m.SuccessfulExecutions)

	w, resp = f.do(t, http.MethodGet, "/api/v1/metrics/workflows", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	var all []metrics.WorkflowMetrics
	require.NoError(t, json.Unmarshal(resp.Data, &all))
	require.Len(t, all, 1)
	assert.Equal(t, "echo-wf", all[0].WorkflowID)

	for _, bad := range []string{"soon", "-5m", "0s"} {
		w, _ = f.do(t, http.MethodGet, "/api/v1/metrics/health?window="+bad, "", "")
		assert.Equal(t, http.StatusBadRequest, w.Code, bad)
	}
}

func TestWorkflowHandler_MetricsDisabled(t *testing.T) {
	engine := workflow.NewEngine(workflow.NewRegistry(nil), nil)
	mux := http.NewServeMux()
	NewWorkflowHandler(engine, nil).Register(mux)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/metrics/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestWorkflowHandler_DeadLetters(t *testing.T) {
	f := newWorkflowFixture(t)
	f.register(t, &workflow.Definition{
		ID:         "broken-wf",
		Name:       "Broken",
		OnError:    workflow.OnErrorRetry,
		MaxRetries: 1,
		Steps:      []workflow.Step{{ID: "a", Type: workflow.StepCustom, Handler: "broken"}},
	})
	for i := 0; i < 3; i++ {
		run, err := f.engine.Execute(context.Background(), "broken-wf", map[string]any{"password": "hunter2"}, "")
		require.NoError(t, err)
		require.Equal(t, workflow.ExecutionFailed, run.Status)
	}

	w, resp := f.do(t, http.MethodGet, "/api/v1/dead-letters?workflowId=broken-wf&limit=2", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	var letters []workflow.DeadLetter
	require.NoError(t, json.Unmarshal(resp.Data, &letters))
	require.Len(t, letters, 2)
	assert.Equal(t, "broken-wf", letters[0].WorkflowID)
	assert.Equal(t, types.MaskedValue, letters[0].Input["password"])

	w, resp = f.do(t, http.MethodGet, "/api/v1/dead-letters?workflowId=other", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, string(resp.Data))

	w, _ = f.do(t, http.MethodGet, "/api/v1/dead-letters?limit=zero", "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
