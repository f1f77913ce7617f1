package scheduler

import (
	"context"

	"github.com/arnavshah/turni-api-go/pkg/models"
	"github.com/arnavshah/turni-api-go/pkg/scope"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Reset deletes the assignments of a tenant in range, optionally limited to a
// station or slot. Availability is never touched.
func (e *Engine) Reset(ctx context.Context, req models.ResetRequest) (models.ResetSummary, error) {
	summary := models.ResetSummary{RunID: uuid.NewString()}
	if req.TenantID == 0 {
		return summary, scope.ErrMissingTenant
	}
	if _, err := checkHorizon(req.Start, req.End, e.today(), e.horizonMonths); err != nil {
		return summary, err
	}

	unlock := e.lockTenant(req.TenantID)
	defer unlock()

	f := req.Filter()
	if f.StationID != nil || f.SlotID != nil {
		if _, err := e.store.Stations(ctx, f); err != nil {
			return summary, err
		}
	}

	deleted, err := e.store.DeleteAssignments(ctx, f)
	if err != nil {
		return summary, err
	}
	summary.Deleted = deleted

	e.log.Info("assignments reset",
		zap.String("run_id", summary.RunID),
		zap.Uint("tenant_id", req.TenantID),
		zap.String("start", req.Start),
		zap.String("end", req.End),
		zap.Int64("deleted", deleted))
	return summary, nil
}

// Unassign removes one volunteer from an assignment; the assignment goes away
// with its last volunteer
func (e *Engine) Unassign(ctx context.Context, tenantID, assignmentID, volunteerID uint) error {
	if tenantID == 0 {
		return scope.ErrMissingTenant
	}

	unlock := e.lockTenant(tenantID)
	defer unlock()

	if err := e.store.RemoveVolunteer(ctx, tenantID, assignmentID, volunteerID); err != nil {
		return err
	}
	e.log.Info("volunteer unassigned",
		zap.Uint("tenant_id", tenantID),
		zap.Uint("assignment_id", assignmentID),
		zap.Uint("volunteer_id", volunteerID))
	return nil
}

// Assignments lists the tenant's assignments in range
func (e *Engine) Assignments(ctx context.Context, req models.RunRequest) ([]models.AssignmentView, error) {
	if req.TenantID == 0 {
		return nil, scope.ErrMissingTenant
	}
	if _, err := checkReport(req.Start, req.End); err != nil {
		return nil, err
	}
	views, err := e.store.Assignments(ctx, req.Filter())
	if err != nil {
		return nil, err
	}
	if views == nil {
		views = []models.AssignmentView{}
	}
	return views, nil
}
