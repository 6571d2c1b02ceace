package handlers

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/flowengine/api"
	"github.com/BaSui01/flowengine/types"
	"github.com/BaSui01/flowengine/workflow"
	"github.com/BaSui01/flowengine/workflow/dsl"
	"github.com/BaSui01/flowengine/workflow/metrics"
)

// =============================================================================
// Workflow Handler
// =============================================================================

// WorkflowEngine is the part of *workflow.Engine the HTTP layer drives.
type WorkflowEngine interface {
	Registry() *workflow.Registry
	Handlers() *workflow.HandlerTable
	Recorder() *metrics.Recorder
	DeadLetters() workflow.DeadLetterSink
	Execute(ctx context.Context, workflowID string, input map[string]any, actorID string) (*workflow.Execution, error)
	Start(ctx context.Context, workflowID string, input map[string]any, actorID string) (*workflow.Execution, error)
	Get(ctx context.Context, executionID string) (*workflow.Execution, error)
	Cancel(executionID string) error
}

// defaultDeadLetterLimit caps GET /api/v1/dead-letters without ?limit.
const defaultDeadLetterLimit = 100

// WorkflowHandler serves definitions, executions, execution metrics and dead letters.
type WorkflowHandler struct {
	engine WorkflowEngine
	logger *zap.Logger
}

// NewWorkflowHandler creates a workflow handler.
func NewWorkflowHandler(engine WorkflowEngine, logger *zap.Logger) *WorkflowHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowHandler{
		engine: engine,
		logger: logger.With(zap.String("component", "workflow_handler")),
	}
}

// Register mounts the workflow routes on mux.
func (h *WorkflowHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/workflows", h.HandleCreateWorkflow)
	mux.HandleFunc("GET /api/v1/workflows", h.HandleListWorkflows)
	mux.HandleFunc("GET /api/v1/workflows/{id}", h.HandleGetWorkflow)
	mux.HandleFunc("POST /api/v1/workflows/{id}/execute", h.HandleExecuteWorkflow)
	mux.HandleFunc("GET /api/v1/executions/{id}", h.HandleGetExecution)
	mux.HandleFunc("POST /api/v1/executions/{id}/cancel", h.HandleCancelExecution)
	mux.HandleFunc("GET /api/v1/metrics/health", h.HandleHealthMetrics)
	mux.HandleFunc("GET /api/v1/metrics/workflows", h.HandleAllWorkflowMetrics)
	mux.HandleFunc("GET /api/v1/metrics/workflows/{id}", h.HandleWorkflowMetrics)
	mux.HandleFunc("GET /api/v1/dead-letters", h.HandleListDeadLetters)
}

// HandleCreateWorkflow registers a definition given as JSON or as a YAML DSL document.
// @Summary Register workflow
// @Tags workflow
// @Accept json,yaml
// @Produce json
// @Success 201 {object} Response{data=api.WorkflowSummary} "Registered"
// @Failure 400 {object} Response "Invalid definition"
// @Router /api/v1/workflows [post]
func (h *WorkflowHandler) HandleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var (
		def *workflow.Definition
		err error
	)
	switch mediaType(r) {
	case "application/yaml", "application/x-yaml", "text/yaml":
		def, err = h.parseYAML(w, r)
		if err != nil {
			WriteError(w, err, h.logger)
			return
		}
	case "application/json":
		def = &workflow.Definition{}
		if err := DecodeJSONBody(w, r, def, h.logger); err != nil {
			return
		}
	default:
		WriteErrorMessage(w, http.StatusUnsupportedMediaType, types.ErrInvalidInput,
			"Content-Type must be application/json or application/yaml", h.logger)
		return
	}

	if err := h.engine.Registry().Register(def); err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteStatus(w, http.StatusCreated, api.SummarizeDefinition(def))
}

func (h *WorkflowHandler) parseYAML(w http.ResponseWriter, r *http.Request) (*workflow.Definition, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, types.NewError(types.ErrInvalidInput, "failed to read request body").WithCause(err)
	}
	return dsl.NewParser().KnownHandlers(h.engine.Handlers().CustomNames()...).Parse(data)
}

// HandleListWorkflows lists registered definitions.
// @Summary List workflows
// @Tags workflow
// @Produce json
// @Success 200 {object} Response{data=[]api.WorkflowSummary} "Workflow list"
// @Router /api/v1/workflows [get]
func (h *WorkflowHandler) HandleListWorkflows(w http.ResponseWriter, r *http.Request) {
	defs := h.engine.Registry().List()
	out := make([]api.WorkflowSummary, 0, len(defs))
	for _, d := range defs {
		out = append(out, api.SummarizeDefinition(d))
	}
	WriteSuccess(w, out)
}

// HandleGetWorkflow returns one definition.
// @Summary Get workflow
// @Tags workflow
// @Produce json
// @Param id path string true "Workflow ID"
// @Success 200 {object} Response{data=workflow.Definition} "Definition"
// @Failure 404 {object} Response "Workflow not found"
// @Router /api/v1/workflows/{id} [get]
func (h *WorkflowHandler) HandleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	def, err := h.engine.Registry().Get(r.PathValue("id"))
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, def)
}

// HandleExecuteWorkflow runs a workflow as the calling actor.
// @Summary Execute workflow
// @Tags workflow
// @Accept json
// @Produce json
// @Param id path string true "Workflow ID"
// @Param request body api.ExecuteRequest false "Execution input"
// @Success 200 {object} Response{data=workflow.Execution} "Finished run"
// @Success 202 {object} Response{data=workflow.Execution} "Started run"
// @Failure 400 {object} Response "Invalid input"
// @Failure 403 {object} Response "Unauthorized"
// @Failure 404 {object} Response "Workflow not found"
// @Failure 429 {object} Response "Rate limited"
// @Router /api/v1/workflows/{id}/execute [post]
func (h *WorkflowHandler) HandleExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	var req api.ExecuteRequest
	if r.ContentLength != 0 && r.Body != nil && r.Body != http.NoBody {
		if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
			return
		}
	}
	workflowID := r.PathValue("id")
	actorID, _ := types.UserID(r.Context())

	if req.Async {
		run, err := h.engine.Start(r.Context(), workflowID, req.Input, actorID)
		if err != nil {
			WriteError(w, err, h.logger)
			return
		}
		WriteStatus(w, http.StatusAccepted, run)
		return
	}

	run, err := h.engine.Execute(r.Context(), workflowID, req.Input, actorID)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, run)
}

// HandleGetExecution returns a run by id.
// @Summary Get execution
// @Tags execution
// @Produce json
// @Param id path string true "Execution ID"
// @Success 200 {object} Response{data=workflow.Execution} "Run"
// @Failure 404 {object} Response "Execution not found"
// @Router /api/v1/executions/{id} [get]
func (h *WorkflowHandler) HandleGetExecution(w http.ResponseWriter, r *http.Request) {
	run, err := h.engine.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, run)
}

// HandleCancelExecution requests cancellation of a running execution.
// @Summary Cancel execution
// @Tags execution
// @Produce json
// @Param id path string true "Execution ID"
// @Success 202 {object} Response{data=api.CancelResponse} "Cancel requested"
// @Failure 404 {object} Response "Execution not running"
// @Router /api/v1/executions/{id}/cancel [post]
func (h *WorkflowHandler) HandleCancelExecution(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.engine.Cancel(id); err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteStatus(w, http.StatusAccepted, api.CancelResponse{ExecutionID: id, Status: api.CancelRequested})
}

// HandleHealthMetrics returns overall execution health over ?window= (default 1h).
// @Summary Execution health
// @Tags metrics
// @Produce json
// @Param window query string false "Go duration, e.g. 30m"
// @Success 200 {object} Response{data=metrics.Health} "Health"
// @Router /api/v1/metrics/health [get]
func (h *WorkflowHandler) HandleHealthMetrics(w http.ResponseWriter, r *http.Request) {
	rec, window, ok := h.metricsRequest(w, r)
	if !ok {
		return
	}
	WriteSuccess(w, rec.OverallHealth(window))
}

// HandleAllWorkflowMetrics returns per-workflow aggregates.
func (h *WorkflowHandler) HandleAllWorkflowMetrics(w http.ResponseWriter, r *http.Request) {
	rec, window, ok := h.metricsRequest(w, r)
	if !ok {
		return
	}
	WriteSuccess(w, rec.AllWorkflowMetrics(window))
}

// HandleWorkflowMetrics returns aggregates for one workflow.
// @Summary Workflow metrics
// @Tags metrics
// @Produce json
// @Param id path string true "Workflow ID"
// @Param window query string false "Go duration, e.g. 30m"
// @Success 200 {object} Response{data=metrics.WorkflowMetrics} "Metrics"
// @Router /api/v1/metrics/workflows/{id} [get]
func (h *WorkflowHandler) HandleWorkflowMetrics(w http.ResponseWriter, r *http.Request) {
	rec, window, ok := h.metricsRequest(w, r)
	if !ok {
		return
	}
	WriteSuccess(w, rec.WorkflowMetrics(r.PathValue("id"), window))
}

func (h *WorkflowHandler) metricsRequest(w http.ResponseWriter, r *http.Request) (*metrics.Recorder, time.Duration, bool) {
	rec := h.engine.Recorder()
	if rec == nil {
		WriteErrorMessage(w, http.StatusServiceUnavailable, types.ErrInternalError, "execution metrics are not enabled", h.logger)
		return nil, 0, false
	}
	var window time.Duration
	if raw := r.URL.Query().Get("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidInput, "window must be a positive duration", h.logger)
			return nil, 0, false
		}
		window = d
	}
	return rec, window, true
}

// HandleListDeadLetters lists recent dead letters, newest first.
// @Summary List dead letters
// @Tags execution
// @Produce json
// @Param workflowId query string false "Filter by workflow"
// @Param limit query int false "Maximum entries (default 100)"
// @Success 200 {object} Response{data=[]workflow.DeadLetter} "Dead letters"
// @Router /api/v1/dead-letters [get]
func (h *WorkflowHandler) HandleListDeadLetters(w http.ResponseWriter, r *http.Request) {
	sink := h.engine.DeadLetters()
	if sink == nil {
		WriteSuccess(w, []workflow.DeadLetter{})
		return
	}
	limit := defaultDeadLetterLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidInput, "limit must be a positive integer", h.logger)
			return
		}
		limit = n
	}
	letters, err := sink.List(r.Context(), r.URL.Query().Get("workflowId"), limit)
	if err != nil {
		WriteError(w, types.WrapError(err, types.ErrInternalError, "failed to list dead letters"), h.logger)
		return
	}
	if letters == nil {
		letters = []workflow.DeadLetter{}
	}
	WriteSuccess(w, letters)
}
