package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hylla/takt/internal/domain"
)

// AdjustInput moves one assignment to a new resource and start.
type AdjustInput struct {
	Schedule      domain.Schedule
	WorkOrders    []domain.WorkOrder
	Resources     []domain.Resource
	WorkOrderID   string
	ResourceID    string
	Start         time.Time
	NewScheduleID string
	Now           time.Time
}

// AdjustResult holds the adjusted schedule and its re-detected conflicts.
type AdjustResult struct {
	Schedule   domain.Schedule
	Conflicts  []domain.ResourceConflict
	Before     domain.Assignment
	After      domain.Assignment
	NewVersion bool
}

// Adjust reassigns one work order. Drafts change in place and keep any conflicts as data;
// confirmed schedules produce the next version and refuse moves that leave an overlap.
func Adjust(ctx context.Context, in AdjustInput) (AdjustResult, error) {
	if err := ctx.Err(); err != nil {
		return AdjustResult{}, err
	}
	switch in.Schedule.Status {
	case domain.ScheduleStatusDraft, domain.ScheduleStatusConfirmed:
	default:
		return AdjustResult{}, fmt.Errorf("%w: schedule %s is %s", domain.ErrInvalidTransition, in.Schedule.ID, in.Schedule.Status)
	}

	workOrderID := strings.TrimSpace(in.WorkOrderID)
	before, ok := in.Schedule.AssignmentFor(workOrderID)
	if !ok {
		return AdjustResult{}, fmt.Errorf("%w: %s", domain.ErrAssignmentNotFound, workOrderID)
	}
	resourceID := strings.TrimSpace(in.ResourceID)
	if resourceID == "" {
		resourceID = before.ResourceID
	}
	start := in.Start.UTC()
	if start.IsZero() {
		start = before.Start
	}

	cal := NewCalendar(in.Resources)
	resource, ok := cal.Resource(resourceID)
	if !ok {
		return AdjustResult{}, fmt.Errorf("%w: %s", domain.ErrResourceNotFound, resourceID)
	}
	p, err := newPlan(cal, in.Schedule.Horizon(), in.WorkOrders)
	if err != nil {
		return AdjustResult{}, err
	}
	p.load(in.Schedule.Assignments)

	duration := before.End.Sub(before.Start)
	order, known := p.orders[workOrderID]
	if known {
		duration = order.Duration
		if !resource.HasCapability(order.Capability) {
			return AdjustResult{}, fmt.Errorf("%w: resource %s lacks capability %q", domain.ErrInfeasibleWorkOrder, resourceID, order.Capability)
		}
		if start.Before(order.EarliestStart) {
			return AdjustResult{}, fmt.Errorf("%w: %s cannot start before %s", domain.ErrInfeasibleWorkOrder, workOrderID, order.EarliestStart.Format(time.RFC3339))
		}
	}
	after := domain.Assignment{WorkOrderID: workOrderID, ResourceID: resourceID, Start: start, End: start.Add(duration)}
	if !p.timelines[resourceID].insideWindow(after.Interval()) {
		return AdjustResult{}, fmt.Errorf("%w: %s on %s", domain.ErrOutsideCalendar, after.Start.Format(time.RFC3339), resourceID)
	}

	p.unplace(workOrderID)
	if known {
		for _, pred := range order.Predecessors {
			if a, ok := p.placed[pred]; ok && after.Start.Before(a.End) {
				return AdjustResult{}, fmt.Errorf("%w: %s would start before predecessor %s ends", domain.ErrInfeasibleWorkOrder, workOrderID, pred)
			}
		}
	}
	if !p.successorsClear(workOrderID, after.End) {
		return AdjustResult{}, fmt.Errorf("%w: %s would end after a successor starts", domain.ErrInfeasibleWorkOrder, workOrderID)
	}
	p.place(after)
	assignments := p.assignments()

	var next domain.Schedule
	newVersion := in.Schedule.Status == domain.ScheduleStatusConfirmed
	if newVersion {
		next = in.Schedule.NextVersion(in.NewScheduleID, assignments, in.Now)
	} else {
		next = in.Schedule.Clone()
		next.Assignments = assignments
	}
	conflicts := Detect(next.ID, next.Assignments, in.Now)
	if newVersion && len(conflicts) > 0 {
		return AdjustResult{}, fmt.Errorf("%w: moving %s leaves %d overlaps", domain.ErrConflictsUnresolved, workOrderID, len(conflicts))
	}
	placed, _ := next.AssignmentFor(workOrderID)
	return AdjustResult{
		Schedule:   next,
		Conflicts:  conflicts,
		Before:     before,
		After:      placed,
		NewVersion: newVersion,
	}, nil
}
