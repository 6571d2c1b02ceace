package steps

import (
	"context"
)

// Backend performs the side effects of the built-in step kinds. Each method
// receives the resolved step input and returns the step output.
type Backend interface {
	CreateLease(ctx context.Context, in map[string]any) (map[string]any, error)
	SendEmail(ctx context.Context, in map[string]any) (map[string]any, error)
	ScheduleInspection(ctx context.Context, in map[string]any) (map[string]any, error)
	CreateMaintenanceRequest(ctx context.Context, in map[string]any) (map[string]any, error)
	AssignTechnician(ctx context.Context, requestID any, in map[string]any) (map[string]any, error)
	SendNotification(ctx context.Context, in map[string]any) (map[string]any, error)
	SetupPaymentAccount(ctx context.Context, in map[string]any) (map[string]any, error)
	CreateRenewalOffer(ctx context.Context, leaseID any, terms map[string]any) (map[string]any, error)
}

// NopBackend returns fixed placeholder outputs and touches nothing.
type NopBackend struct{}

var _ Backend = NopBackend{}

func (NopBackend) CreateLease(context.Context, map[string]any) (map[string]any, error) {
	return map[string]any{"leaseId": 123}, nil
}

func (NopBackend) SendEmail(context.Context, map[string]any) (map[string]any, error) {
	return map[string]any{"emailSent": true}, nil
}

func (NopBackend) ScheduleInspection(context.Context, map[string]any) (map[string]any, error) {
	return map[string]any{"inspectionId": 456}, nil
}

func (NopBackend) CreateMaintenanceRequest(context.Context, map[string]any) (map[string]any, error) {
	return map[string]any{"maintenanceRequestId": 789}, nil
}

func (NopBackend) AssignTechnician(_ context.Context, requestID any, _ map[string]any) (map[string]any, error) {
	return map[string]any{"technicianAssigned": true, "requestId": requestID}, nil
}

func (NopBackend) SendNotification(context.Context, map[string]any) (map[string]any, error) {
	return map[string]any{"notificationSent": true}, nil
}

func (NopBackend) SetupPaymentAccount(context.Context, map[string]any) (map[string]any, error) {
	return map[string]any{"paymentAccountSetup": true}, nil
}

func (NopBackend) CreateRenewalOffer(context.Context, any, map[string]any) (map[string]any, error) {
	return map[string]any{"offerId": 123}, nil
}
