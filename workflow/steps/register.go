package steps

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/flowengine/types"
	"github.com/BaSui01/flowengine/workflow"
	"github.com/BaSui01/flowengine/workflow/cache"
	"github.com/BaSui01/flowengine/workflow/retry"
)

// Custom handler names used by the default workflows.
const (
	HandlerSetupPaymentAccount  = "setup-payment-account"
	HandlerGenerateRenewalOffer = "generate-renewal-offer"
)

// renewalOfferThreshold is the minimum renewal probability for an offer.
const renewalOfferThreshold = 0.3

// Options wires the built-in handlers.
type Options struct {
	Backend  Backend
	Services Services
	// Retrier wraps decision calls. Nil uses a wrapper with the default policy
	// and no breakers or cache.
	Retrier *retry.Wrapper
	// CacheTTL is how long decisions are cached; 0 uses cache.DefaultDecisionTTL.
	CacheTTL time.Duration
	Logger   *zap.Logger
}

type handlers struct {
	backend  Backend
	services Services
	retrier  *retry.Wrapper
	cacheTTL time.Duration
	logger   *zap.Logger
}

// Register binds every built-in step kind and the default custom handlers
// into table.
func Register(table *workflow.HandlerTable, opts Options) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handlers{
		backend:  opts.Backend,
		services: opts.Services,
		retrier:  opts.Retrier,
		cacheTTL: opts.CacheTTL,
		logger:   logger.With(zap.String("component", "steps")),
	}
	if h.backend == nil {
		h.backend = NopBackend{}
	}
	if h.retrier == nil {
		h.retrier = retry.NewWrapper(retry.DefaultPolicy(), nil, nil, logger)
	}
	if h.cacheTTL <= 0 {
		h.cacheTTL = cache.DefaultDecisionTTL
	}

	table.RegisterKind(workflow.StepCreateLease, h.simple(h.backend.CreateLease))
	table.RegisterKind(workflow.StepSendEmail, h.simple(h.backend.SendEmail))
	table.RegisterKind(workflow.StepScheduleInspection, h.simple(h.backend.ScheduleInspection))
	table.RegisterKind(workflow.StepCreateMaintenanceRequest, h.simple(h.backend.CreateMaintenanceRequest))
	table.RegisterKind(workflow.StepSendNotification, h.simple(h.backend.SendNotification))
	table.RegisterKind(workflow.StepAssignTechnician, h.assignTechnician)
	table.RegisterKind(workflow.StepAssignPriorityAI, h.assignPriority)
	table.RegisterKind(workflow.StepAssessPaymentRiskAI, h.assessPaymentRisk)
	table.RegisterKind(workflow.StepPredictRenewalAI, h.predictRenewal)
	table.RegisterKind(workflow.StepPersonalizeNotification, h.personalizeNotification)

	table.RegisterCustom(HandlerSetupPaymentAccount, h.simple(h.backend.SetupPaymentAccount))
	table.RegisterCustom(HandlerGenerateRenewalOffer, h.generateRenewalOffer)
}

func (h *handlers) simple(fn func(context.Context, map[string]any) (map[string]any, error)) workflow.Handler {
	return func(ctx context.Context, sc workflow.StepContext) (map[string]any, error) {
		h.logger.Debug("executing step",
			zap.String("step_id", sc.Step.ID),
			zap.String("type", string(sc.Step.Type)),
			zap.Any("input", types.MaskMap(sc.Input)),
		)
		return fn(ctx, sc.Input)
	}
}

func (h *handlers) assignTechnician(ctx context.Context, sc workflow.StepContext) (map[string]any, error) {
	requestID, ok := lookup(sc, "requestId", "maintenanceRequestId")
	if !ok {
		return nil, missingInput(sc, "requestId")
	}
	return h.backend.AssignTechnician(ctx, requestID, sc.Input)
}

func (h *handlers) assignPriority(ctx context.Context, sc workflow.StepContext) (map[string]any, error) {
	svc := h.services.Maintenance
	if svc == nil {
		return h.unavailable(sc, ServiceMaintenance, priorityFallback())
	}
	requestID, ok := lookup(sc, "requestId", "maintenanceRequestId")
	if !ok {
		return nil, missingInput(sc, "requestId")
	}
	params := map[string]any{"requestId": requestID}
	copyPresent(params, sc, "title", "description")

	out, err := h.decide(ctx, svc, ServiceMaintenance, "assignPriority", params)
	if err != nil {
		return h.failed(sc, ServiceMaintenance, err, priorityFallback())
	}
	return merge(out, map[string]any{"requestId": requestID, "assignedBy": "AI"}), nil
}

func (h *handlers) assessPaymentRisk(ctx context.Context, sc workflow.StepContext) (map[string]any, error) {
	svc := h.services.Payment
	if svc == nil {
		return h.unavailable(sc, ServicePayment, paymentRiskFallback())
	}
	tenantID, ok1 := lookup(sc, "tenantId")
	invoiceID, ok2 := lookup(sc, "invoiceId")
	if !ok1 || !ok2 {
		return nil, missingInput(sc, "tenantId", "invoiceId")
	}
	params := map[string]any{"tenantId": tenantID, "invoiceId": invoiceID}

	out, err := h.decide(ctx, svc, ServicePayment, "assessPaymentRisk", params)
	if err != nil {
		return h.failed(sc, ServicePayment, err, paymentRiskFallback())
	}
	return merge(out, params), nil
}

func (h *handlers) predictRenewal(ctx context.Context, sc workflow.StepContext) (map[string]any, error) {
	svc := h.services.LeaseRenewal
	if svc == nil {
		return h.unavailable(sc, ServiceLeaseRenewal, renewalFallback())
	}
	leaseID, ok := lookup(sc, "leaseId")
	if !ok {
		return nil, missingInput(sc, "leaseId")
	}
	params := map[string]any{"leaseId": leaseID}

	out, err := h.decide(ctx, svc, ServiceLeaseRenewal, "predictRenewal", params)
	if err != nil {
		return h.failed(sc, ServiceLeaseRenewal, err, renewalFallback())
	}
	return merge(out, params), nil
}

func (h *handlers) personalizeNotification(ctx context.Context, sc workflow.StepContext) (map[string]any, error) {
	content, _ := lookup(sc, "content")
	contentStr, _ := content.(string)

	svc := h.services.Notification
	if svc == nil {
		return h.unavailable(sc, ServiceNotification, personalizationFallback(contentStr))
	}
	userID, ok1 := lookup(sc, "userId")
	if !ok1 && sc.ActorID != "" {
		userID, ok1 = sc.ActorID, true
	}
	notificationType, ok2 := lookup(sc, "notificationType")
	if !ok1 || !ok2 || contentStr == "" {
		return nil, missingInput(sc, "userId", "notificationType", "content")
	}
	params := map[string]any{
		"userId":           userID,
		"notificationType": notificationType,
		"content":          contentStr,
	}
	urgency, ok := lookup(sc, "urgency")
	if !ok {
		urgency = "MEDIUM"
	}
	params["urgency"] = urgency

	out, err := h.decide(ctx, svc, ServiceNotification, "personalize", params)
	if err != nil {
		return h.failed(sc, ServiceNotification, err, personalizationFallback(contentStr))
	}
	return merge(out, map[string]any{
		"personalized":     true,
		"originalContent":  contentStr,
		"userId":           userID,
		"notificationType": notificationType,
	}), nil
}

// generateRenewalOffer 根据续租预测结果生成续租报价
func (h *handlers) generateRenewalOffer(ctx context.Context, sc workflow.StepContext) (map[string]any, error) {
	leaseID, ok := lookup(sc, "leaseId")
	probability, hasProb := toFloat(sc.Vars["renewalProbability"])
	if !ok || !hasProb || probability <= renewalOfferThreshold {
		return map[string]any{"offerId": 0, "note": "Low renewal probability or missing data"}, nil
	}

	terms := map[string]any{
		"baseRent":             orDefault(sc.Vars["recommendedRent"], 0),
		"adjustmentPercentage": orDefault(sc.Vars["adjustmentPercentage"], 0),
		"reasoning":            orDefault(sc.Vars["reasoning"], "Based on AI analysis"),
		"renewalProbability":   probability,
	}
	out, err := h.backend.CreateRenewalOffer(ctx, leaseID, terms)
	if err != nil {
		return nil, err
	}
	return merge(out, terms), nil
}

func (h *handlers) decide(ctx context.Context, svc DecisionService, service, method string, params map[string]any) (map[string]any, error) {
	return retry.Do(ctx, h.retrier, retry.CallSpec{
		Service:  service,
		Method:   method,
		Params:   params,
		CacheTTL: h.cacheTTL,
	}, func(ctx context.Context) (map[string]any, error) {
		return svc.Decide(ctx, params)
	})
}

// unavailable 处理决策服务未配置的情况
func (h *handlers) unavailable(sc workflow.StepContext, service string, fallback map[string]any) (map[string]any, error) {
	if required(sc) {
		return nil, types.Errorf(types.ErrStepExecutionFailed, "step %s requires %s, which is not configured", sc.Step.ID, service).
			WithDetail("stepId", sc.Step.ID).
			WithDetail("service", service)
	}
	h.logger.Warn("decision service not available, using fallback",
		zap.String("step_id", sc.Step.ID),
		zap.String("service", service),
	)
	return fallback, nil
}

// failed 处理决策服务调用失败的情况
func (h *handlers) failed(sc workflow.StepContext, service string, err error, fallback map[string]any) (map[string]any, error) {
	if required(sc) {
		return nil, err
	}
	h.logger.Warn("decision service failed, using fallback",
		zap.String("step_id", sc.Step.ID),
		zap.String("service", service),
		zap.String("error_code", string(types.GetErrorCode(err))),
		zap.Error(err),
	)
	return fallback, nil
}

func required(sc workflow.StepContext) bool {
	v, _ := sc.Input["required"].(bool)
	return v
}

func missingInput(sc workflow.StepContext, fields ...string) error {
	return types.Errorf(types.ErrInvalidInput, "step %s requires %s", sc.Step.ID, strings.Join(fields, ", ")).
		WithDetail("stepId", sc.Step.ID).
		WithDetail("fields", fields)
}

// lookup 依次在步骤输入、工作流变量中查找第一个存在的键；
// 未解析的 ${...} 占位符视为缺失
func lookup(sc workflow.StepContext, keys ...string) (any, bool) {
	for _, src := range []map[string]any{sc.Input, sc.Vars} {
		for _, k := range keys {
			if v, ok := present(src[k]); ok {
				return v, true
			}
		}
	}
	return nil, false
}

func present(v any) (any, bool) {
	switch t := v.(type) {
	case nil:
		return nil, false
	case string:
		if t == "" || strings.Contains(t, "${") {
			return nil, false
		}
	}
	return v, true
}

func copyPresent(dst map[string]any, sc workflow.StepContext, keys ...string) {
	for _, k := range keys {
		if v, ok := lookup(sc, k); ok {
			dst[k] = v
		}
	}
}

func merge(maps ...map[string]any) map[string]any {
	out := make(map[string]any)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

func orDefault(v any, def any) any {
	if v, ok := present(v); ok {
		return v
	}
	return def
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}
