package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hylla/takt/internal/domain"
	"github.com/hylla/takt/internal/scheduler"
)

// AdjustScheduleInput holds input values for manual adjust operations.
type AdjustScheduleInput struct {
	ScheduleID      string
	ExpectedVersion int
	WorkOrderID     string
	ResourceID      string
	Start           time.Time
	Actor           string
	Reason          string
}

// AdjustSchedule moves one assignment. Drafts change in place; confirmed schedules get a new version.
func (s *Service) AdjustSchedule(ctx context.Context, in AdjustScheduleInput) (ScheduleResult, error) {
	schedule, orders, resources, err := s.loadScheduleInputs(ctx, in.ScheduleID, in.ExpectedVersion)
	if err != nil {
		return ScheduleResult{}, err
	}
	now := s.clock().UTC()
	res, err := scheduler.Adjust(ctx, scheduler.AdjustInput{
		Schedule:      schedule,
		WorkOrders:    orders,
		Resources:     resources,
		WorkOrderID:   in.WorkOrderID,
		ResourceID:    in.ResourceID,
		Start:         in.Start,
		NewScheduleID: s.idGen(),
		Now:           now,
	})
	if err != nil {
		return ScheduleResult{}, err
	}

	var open []domain.ResourceConflict
	if res.NewVersion {
		open, err = s.commitNextVersion(ctx, schedule, res.Schedule, res.Conflicts, now)
	} else {
		open, err = s.commitDraft(ctx, res.Schedule, res.Conflicts, now)
	}
	if err != nil {
		return ScheduleResult{}, err
	}

	warning := s.record(ctx, domain.AdjustmentLogEntry{
		LineageID:  schedule.LineageID,
		ScheduleID: res.Schedule.ID,
		Type:       domain.AdjustmentManual,
		Actor:      s.actor(ctx, in.Actor),
		BeforeRef:  schedule.ID,
		AfterRef:   res.Schedule.ID,
		Reason:     in.Reason,
		Metadata: map[string]string{
			"work_order_id": res.After.WorkOrderID,
			"from_resource": res.Before.ResourceID,
			"from_start":    res.Before.Start.Format(time.RFC3339),
			"to_resource":   res.After.ResourceID,
			"to_start":      res.After.Start.Format(time.RFC3339),
		},
	})
	return ScheduleResult{Schedule: res.Schedule, Conflicts: open, AuditWarning: warning}, nil
}

// UrgentInsertInput holds input values for urgent insertion. Order creates a new work order;
// otherwise WorkOrderID names an existing one, which is escalated to urgent.
type UrgentInsertInput struct {
	ScheduleID      string
	ExpectedVersion int
	WorkOrderID     string
	Order           *domain.WorkOrderInput
	Actor           string
	Reason          string
}

// InsertUrgent places an urgent order into a confirmed schedule and commits the next version.
func (s *Service) InsertUrgent(ctx context.Context, in UrgentInsertInput) (ScheduleResult, error) {
	schedule, orders, resources, err := s.loadScheduleInputs(ctx, in.ScheduleID, in.ExpectedVersion)
	if err != nil {
		return ScheduleResult{}, err
	}
	if schedule.Status != domain.ScheduleStatusConfirmed {
		return ScheduleResult{}, fmt.Errorf("%w: schedule %s is %s", domain.ErrScheduleNotConfirmed, schedule.ID, schedule.Status)
	}
	order, err := s.urgentOrder(ctx, in)
	if err != nil {
		return ScheduleResult{}, err
	}

	now := s.clock().UTC()
	res, err := scheduler.InsertUrgent(ctx, scheduler.UrgentInput{
		Schedule:      schedule,
		WorkOrders:    orders,
		Resources:     resources,
		Order:         order,
		NewScheduleID: s.idGen(),
		Now:           now,
	})
	if err != nil {
		return ScheduleResult{}, err
	}
	open, err := s.commitNextVersion(ctx, schedule, res.Schedule, res.Conflicts, now, order)
	if err != nil {
		return ScheduleResult{}, err
	}

	metadata := map[string]string{
		"work_order_id": order.ID,
		"displaced":     strconv.FormatBool(res.Displaced),
		"shifted":       strconv.Itoa(len(res.Shifted)),
	}
	for _, shifted := range res.Shifted {
		metadata["shift."+shifted.WorkOrderID] = shifted.Delta.String()
	}
	warning := s.record(ctx, domain.AdjustmentLogEntry{
		LineageID:  schedule.LineageID,
		ScheduleID: res.Schedule.ID,
		Type:       domain.AdjustmentUrgentInsert,
		Actor:      s.actor(ctx, in.Actor),
		BeforeRef:  schedule.ID,
		AfterRef:   res.Schedule.ID,
		Reason:     in.Reason,
		Metadata:   metadata,
	})
	return ScheduleResult{Schedule: res.Schedule, Conflicts: open, Shifted: res.Shifted, AuditWarning: warning}, nil
}

// urgentOrder builds the order to insert with urgent priority. It is only stored together
// with the schedule version that places it.
func (s *Service) urgentOrder(ctx context.Context, in UrgentInsertInput) (domain.WorkOrder, error) {
	if in.Order != nil {
		orderIn := *in.Order
		orderIn.Priority = domain.PriorityUrgent
		return s.buildWorkOrder(ctx, orderIn)
	}
	id := strings.TrimSpace(in.WorkOrderID)
	if id == "" {
		return domain.WorkOrder{}, fmt.Errorf("%w: work order id or definition required", domain.ErrInvalidID)
	}
	order, _, err := s.escalatedWorkOrder(ctx, id)
	return order, err
}

// RollbackInput holds input values for rollback operations.
type RollbackInput struct {
	ScheduleID      string
	TargetVersion   int
	ExpectedVersion int
	Actor           string
	Reason          string
}

// Rollback writes a new confirmed version carrying the assignments of an earlier version.
func (s *Service) Rollback(ctx context.Context, in RollbackInput) (ScheduleResult, error) {
	head, err := s.GetSchedule(ctx, in.ScheduleID)
	if err != nil {
		return ScheduleResult{}, err
	}
	if err := checkExpectedVersion(head, in.ExpectedVersion); err != nil {
		return ScheduleResult{}, err
	}
	if head.Status != domain.ScheduleStatusConfirmed {
		return ScheduleResult{}, fmt.Errorf("%w: schedule %s is %s", domain.ErrScheduleNotConfirmed, head.ID, head.Status)
	}
	versions, err := s.repo.ListLineageSchedules(ctx, head.LineageID)
	if err != nil {
		return ScheduleResult{}, err
	}
	var target *domain.Schedule
	for i := range versions {
		if versions[i].Version == in.TargetVersion {
			target = &versions[i]
			break
		}
	}
	if target == nil {
		return ScheduleResult{}, fmt.Errorf("%w: version %d of lineage %s", ErrNotFound, in.TargetVersion, head.LineageID)
	}
	if target.Status == domain.ScheduleStatusDraft || target.ID == head.ID {
		return ScheduleResult{}, fmt.Errorf("%w: cannot roll back to %s version %d", domain.ErrInvalidTransition, target.Status, target.Version)
	}

	now := s.clock().UTC()
	next := head.NextVersion(s.idGen(), target.Assignments, now)
	next.WorkOrderIDs = append([]string(nil), target.WorkOrderIDs...)
	next.Excluded = append([]domain.Exclusion(nil), target.Excluded...)
	next.Strategy = target.Strategy
	detected := scheduler.Detect(next.ID, next.Assignments, now)
	open, err := s.commitNextVersion(ctx, head, next, detected, now)
	if err != nil {
		return ScheduleResult{}, err
	}

	warning := s.record(ctx, domain.AdjustmentLogEntry{
		LineageID:  head.LineageID,
		ScheduleID: next.ID,
		Type:       domain.AdjustmentRollback,
		Actor:      s.actor(ctx, in.Actor),
		BeforeRef:  head.ID,
		AfterRef:   next.ID,
		Reason:     in.Reason,
		Metadata: map[string]string{
			"target_version":  strconv.Itoa(target.Version),
			"target_schedule": target.ID,
		},
	})
	return ScheduleResult{Schedule: next, Conflicts: open, AuditWarning: warning}, nil
}

// loadScheduleInputs fetches a schedule plus the work orders and resources it was built from.
func (s *Service) loadScheduleInputs(ctx context.Context, scheduleID string, expectedVersion int) (domain.Schedule, []domain.WorkOrder, []domain.Resource, error) {
	schedule, err := s.GetSchedule(ctx, scheduleID)
	if err != nil {
		return domain.Schedule{}, nil, nil, err
	}
	if err := checkExpectedVersion(schedule, expectedVersion); err != nil {
		return domain.Schedule{}, nil, nil, err
	}
	orders, resources, err := s.scheduleCatalog(ctx, schedule)
	if err != nil {
		return domain.Schedule{}, nil, nil, err
	}
	return schedule, orders, resources, nil
}

// commitNextVersion writes next as the new head, supersedes prev and resolves prev's open conflicts.
func (s *Service) commitNextVersion(ctx context.Context, prev, next domain.Schedule, detected []domain.ResourceConflict, now time.Time, orders ...domain.WorkOrder) ([]domain.ResourceConflict, error) {
	existing, err := s.repo.ListConflicts(ctx, prev.ID, false)
	if err != nil {
		return nil, err
	}
	resolve := make([]string, 0, len(existing))
	for _, c := range existing {
		resolve = append(resolve, c.ID)
	}
	superseded := prev.Clone()
	if err := superseded.Supersede(now); err != nil {
		return nil, err
	}
	conflicts := s.withConflictIDs(detected)
	err = s.repo.CommitVersion(ctx, VersionCommit{
		ExpectedVersion:  prev.Version,
		Schedule:         next,
		Conflicts:        conflicts,
		ResolveConflicts: resolve,
		ResolvedAt:       now,
		Supersede:        &superseded,
		WorkOrders:       orders,
	})
	if err != nil {
		if errors.Is(err, domain.ErrStaleScheduleVersion) {
			s.logger.Warn("stale schedule version", "schedule_id", prev.ID, "version", prev.Version)
		}
		return nil, err
	}
	return conflicts, nil
}

// commitDraft rewrites a draft in place and reconciles its stored conflicts.
func (s *Service) commitDraft(ctx context.Context, draft domain.Schedule, detected []domain.ResourceConflict, now time.Time) ([]domain.ResourceConflict, error) {
	existing, err := s.repo.ListConflicts(ctx, draft.ID, false)
	if err != nil {
		return nil, err
	}
	insert, resolve, open := s.reconcileConflicts(existing, detected)
	err = s.repo.CommitVersion(ctx, VersionCommit{
		ExpectedVersion:  draft.Version,
		Schedule:         draft,
		Conflicts:        insert,
		ResolveConflicts: resolve,
		ResolvedAt:       now,
	})
	if err != nil {
		return nil, err
	}
	return open, nil
}
