package steps

import (
	"context"
)

// Decision service names. They double as breaker names and cache key prefixes.
const (
	ServiceMaintenance  = "ai-maintenance"
	ServicePayment      = "ai-payment"
	ServiceLeaseRenewal = "ai-lease-renewal"
	ServiceNotification = "ai-notification"
)

// FallbackNote marks outputs produced without a decision service.
const FallbackNote = "AI service not available"

// DecisionService answers one kind of AI decision.
type DecisionService interface {
	Decide(ctx context.Context, params map[string]any) (map[string]any, error)
}

// DecisionFunc adapts a function to DecisionService.
type DecisionFunc func(ctx context.Context, params map[string]any) (map[string]any, error)

// Decide implements DecisionService.
func (f DecisionFunc) Decide(ctx context.Context, params map[string]any) (map[string]any, error) {
	return f(ctx, params)
}

// Services groups the decision service of each AI step kind. Nil entries fall back.
type Services struct {
	Maintenance  DecisionService
	Payment      DecisionService
	LeaseRenewal DecisionService
	Notification DecisionService
}

func priorityFallback() map[string]any {
	return map[string]any{"priority": "MEDIUM", "note": FallbackNote}
}

func paymentRiskFallback() map[string]any {
	return map[string]any{"riskLevel": "MEDIUM", "riskScore": 0.5, "note": FallbackNote}
}

func renewalFallback() map[string]any {
	return map[string]any{"renewalProbability": 0.5, "confidence": "LOW", "note": FallbackNote}
}

func personalizationFallback(content string) map[string]any {
	return map[string]any{"personalized": false, "originalContent": content, "note": FallbackNote}
}
