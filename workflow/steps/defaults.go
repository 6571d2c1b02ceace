package steps

import (
	"github.com/BaSui01/flowengine/workflow"
)

// Default workflow ids.
const (
	WorkflowTenantOnboarding   = "new-tenant-onboarding"
	WorkflowMaintenanceRequest = "maintenance-request-lifecycle"
	WorkflowLeaseRenewal       = "lease-renewal"
)

// DefaultDefinitions returns the built-in property management workflows.
func DefaultDefinitions() []*workflow.Definition {
	return []*workflow.Definition{
		{
			ID:          WorkflowTenantOnboarding,
			Name:        "New Tenant Onboarding",
			Description: "Automated workflow for onboarding new tenants",
			OnError:     workflow.OnErrorContinue,
			MaxRetries:  3,
			Input: []workflow.InputField{
				{Name: "tenantId", Required: true},
				{Name: "unitId", Required: true},
				{Name: "tenantEmail", Type: workflow.FieldString},
			},
			Steps: []workflow.Step{
				{
					ID:    "create-lease",
					Type:  workflow.StepCreateLease,
					Input: map[string]any{"tenantId": "${input.tenantId}", "unitId": "${input.unitId}"},
				},
				{
					ID:        "send-welcome-email",
					Type:      workflow.StepSendEmail,
					DependsOn: []string{"create-lease"},
					Input:     map[string]any{"to": "${input.tenantEmail}", "template": "welcome"},
				},
				{
					ID:        "schedule-move-in-inspection",
					Type:      workflow.StepScheduleInspection,
					DependsOn: []string{"create-lease"},
					Input:     map[string]any{"unitId": "${input.unitId}", "type": "MOVE_IN"},
				},
				{
					ID:        "setup-payment-account",
					Type:      workflow.StepCustom,
					Handler:   HandlerSetupPaymentAccount,
					DependsOn: []string{"create-lease"},
					Input:     map[string]any{"leaseId": "${output.leaseId}"},
				},
			},
		},
		{
			ID:          WorkflowMaintenanceRequest,
			Name:        "Maintenance Request Lifecycle",
			Description: "Automated workflow for handling maintenance requests",
			OnError:     workflow.OnErrorRetry,
			MaxRetries:  3,
			Input: []workflow.InputField{
				{Name: "title", Type: workflow.FieldString, Required: true},
				{Name: "description", Type: workflow.FieldString},
			},
			Steps: []workflow.Step{
				{
					ID:    "create-request",
					Type:  workflow.StepCreateMaintenanceRequest,
					Input: map[string]any{"title": "${input.title}", "description": "${input.description}"},
				},
				{
					ID:        "assign-priority",
					Type:      workflow.StepAssignPriorityAI,
					DependsOn: []string{"create-request"},
					Input: map[string]any{
						"requestId":   "${output.maintenanceRequestId}",
						"title":       "${input.title}",
						"description": "${input.description}",
					},
				},
				{
					ID:        "assign-technician",
					Type:      workflow.StepAssignTechnician,
					DependsOn: []string{"assign-priority"},
					Input:     map[string]any{"requestId": "${output.maintenanceRequestId}"},
				},
				{
					ID:        "notify-tenant",
					Type:      workflow.StepSendNotification,
					DependsOn: []string{"assign-technician"},
					Input:     map[string]any{"userId": "${input.userId}", "type": "MAINTENANCE_REQUEST_CREATED"},
				},
			},
		},
		{
			ID:          WorkflowLeaseRenewal,
			Name:        "Lease Renewal Process",
			Description: "Automated workflow for lease renewals",
			OnError:     workflow.OnErrorContinue,
			MaxRetries:  2,
			Input: []workflow.InputField{
				{Name: "leaseId", Required: true},
				{Name: "tenantEmail", Type: workflow.FieldString},
			},
			Steps: []workflow.Step{
				{
					ID:    "check-renewal-likelihood",
					Type:  workflow.StepPredictRenewalAI,
					Input: map[string]any{"leaseId": "${input.leaseId}"},
				},
				{
					ID:        "generate-offer",
					Type:      workflow.StepCustom,
					Handler:   HandlerGenerateRenewalOffer,
					DependsOn: []string{"check-renewal-likelihood"},
					Input:     map[string]any{"leaseId": "${input.leaseId}"},
				},
				{
					ID:        "send-offer",
					Type:      workflow.StepSendEmail,
					DependsOn: []string{"generate-offer"},
					Input:     map[string]any{"to": "${input.tenantEmail}", "template": "renewal-offer"},
				},
			},
		},
	}
}

// RegisterDefaults registers DefaultDefinitions into r.
func RegisterDefaults(r *workflow.Registry) error {
	for _, def := range DefaultDefinitions() {
		if err := r.Register(def); err != nil {
			return err
		}
	}
	return nil
}
