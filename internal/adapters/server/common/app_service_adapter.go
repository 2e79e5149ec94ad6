package common

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hylla/takt/internal/app"
	"github.com/hylla/takt/internal/domain"
	"github.com/hylla/takt/internal/scheduler"
)

// AppServiceAdapter maps transport contracts onto app.Service scheduling APIs.
type AppServiceAdapter struct {
	service *app.Service
}

var (
	_ SchedulingService = (*AppServiceAdapter)(nil)
	_ CatalogService    = (*AppServiceAdapter)(nil)
)

// NewAppServiceAdapter builds one common adapter over an app.Service instance.
func NewAppServiceAdapter(service *app.Service) *AppServiceAdapter {
	return &AppServiceAdapter{service: service}
}

// GenerateSchedule creates a draft for the requested lineage.
func (a *AppServiceAdapter) GenerateSchedule(ctx context.Context, in GenerateScheduleRequest) (ScheduleResponse, error) {
	if err := a.ready(); err != nil {
		return ScheduleResponse{}, err
	}
	if strings.TrimSpace(in.LineageID) == "" {
		return ScheduleResponse{}, fmt.Errorf("lineage_id is required: %w", ErrInvalidRequest)
	}
	var strategy domain.Strategy
	if strings.TrimSpace(in.Strategy) != "" {
		parsed, err := domain.ParseStrategy(in.Strategy)
		if err != nil {
			return ScheduleResponse{}, fmt.Errorf("strategy %q: %w", in.Strategy, errors.Join(ErrInvalidRequest, err))
		}
		strategy = parsed
	}
	if in.HorizonDays < 0 {
		return ScheduleResponse{}, fmt.Errorf("horizon_days must not be negative: %w", ErrInvalidRequest)
	}
	var horizonStart time.Time
	if in.HorizonStart != nil {
		horizonStart = in.HorizonStart.UTC()
	}
	res, err := a.service.GenerateSchedule(ctx, app.GenerateScheduleInput{
		LineageID:    in.LineageID,
		Name:         in.Name,
		WorkOrderIDs: in.WorkOrderIDs,
		Pending:      in.Pending,
		ResourceIDs:  in.ResourceIDs,
		Strategy:     strategy,
		HorizonStart: horizonStart,
		HorizonDays:  in.HorizonDays,
		Actor:        in.Actor,
	})
	if err != nil {
		return ScheduleResponse{}, mapAppError("generate schedule", err)
	}
	return mapScheduleResult(res), nil
}

// GetSchedule returns one schedule version.
func (a *AppServiceAdapter) GetSchedule(ctx context.Context, id string) (ScheduleView, error) {
	if err := a.ready(); err != nil {
		return ScheduleView{}, err
	}
	id, err := requireID("schedule id", id)
	if err != nil {
		return ScheduleView{}, err
	}
	schedule, err := a.service.GetSchedule(ctx, id)
	if err != nil {
		return ScheduleView{}, mapAppError("get schedule", err)
	}
	return MapSchedule(schedule), nil
}

// PreviewSchedule projects a draft without persisting anything.
func (a *AppServiceAdapter) PreviewSchedule(ctx context.Context, id string) (GanttResponse, error) {
	if err := a.ready(); err != nil {
		return GanttResponse{}, err
	}
	id, err := requireID("schedule id", id)
	if err != nil {
		return GanttResponse{}, err
	}
	view, err := a.service.Preview(ctx, id)
	if err != nil {
		return GanttResponse{}, mapAppError("preview schedule", err)
	}
	return MapGantt(view), nil
}

// Gantt projects one schedule version with its metrics.
func (a *AppServiceAdapter) Gantt(ctx context.Context, id string) (GanttResponse, error) {
	if err := a.ready(); err != nil {
		return GanttResponse{}, err
	}
	id, err := requireID("schedule id", id)
	if err != nil {
		return GanttResponse{}, err
	}
	view, err := a.service.Gantt(ctx, id)
	if err != nil {
		return GanttResponse{}, mapAppError("gantt", err)
	}
	return MapGantt(view), nil
}

// ListConflicts lists conflicts of one schedule version.
func (a *AppServiceAdapter) ListConflicts(ctx context.Context, id string, includeResolved bool) ([]ConflictView, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	id, err := requireID("schedule id", id)
	if err != nil {
		return nil, err
	}
	conflicts, err := a.service.ListConflicts(ctx, id, includeResolved)
	if err != nil {
		return nil, mapAppError("list conflicts", err)
	}
	return mapConflicts(conflicts), nil
}

// ConfirmSchedule confirms one draft.
func (a *AppServiceAdapter) ConfirmSchedule(ctx context.Context, in ConfirmScheduleRequest) (ScheduleResponse, error) {
	if err := a.ready(); err != nil {
		return ScheduleResponse{}, err
	}
	id, err := requireID("schedule id", in.ScheduleID)
	if err != nil {
		return ScheduleResponse{}, err
	}
	res, err := a.service.ConfirmSchedule(ctx, app.ConfirmInput{
		ScheduleID:      id,
		ExpectedVersion: in.ExpectedVersion,
		Force:           in.Force,
		Actor:           in.Actor,
		Reason:          in.Reason,
	})
	if err != nil {
		return ScheduleResponse{}, mapAppError("confirm schedule", err)
	}
	return mapScheduleResult(res), nil
}

// AdjustSchedule moves one assignment.
func (a *AppServiceAdapter) AdjustSchedule(ctx context.Context, in AdjustScheduleRequest) (ScheduleResponse, error) {
	if err := a.ready(); err != nil {
		return ScheduleResponse{}, err
	}
	id, err := requireID("schedule id", in.ScheduleID)
	if err != nil {
		return ScheduleResponse{}, err
	}
	orderID, err := requireID("work_order_id", in.WorkOrderID)
	if err != nil {
		return ScheduleResponse{}, err
	}
	if in.Start.IsZero() {
		return ScheduleResponse{}, fmt.Errorf("start is required: %w", ErrInvalidRequest)
	}
	res, err := a.service.AdjustSchedule(ctx, app.AdjustScheduleInput{
		ScheduleID:      id,
		ExpectedVersion: in.ExpectedVersion,
		WorkOrderID:     orderID,
		ResourceID:      strings.TrimSpace(in.ResourceID),
		Start:           in.Start.UTC(),
		Actor:           in.Actor,
		Reason:          in.Reason,
	})
	if err != nil {
		return ScheduleResponse{}, mapAppError("adjust schedule", err)
	}
	return mapScheduleResult(res), nil
}

// UrgentInsert places one urgent order into a confirmed schedule.
func (a *AppServiceAdapter) UrgentInsert(ctx context.Context, in UrgentInsertRequest) (ScheduleResponse, error) {
	if err := a.ready(); err != nil {
		return ScheduleResponse{}, err
	}
	id, err := requireID("schedule id", in.ScheduleID)
	if err != nil {
		return ScheduleResponse{}, err
	}
	input := app.UrgentInsertInput{
		ScheduleID:      id,
		ExpectedVersion: in.ExpectedVersion,
		WorkOrderID:     strings.TrimSpace(in.WorkOrderID),
		Actor:           in.Actor,
		Reason:          in.Reason,
	}
	if in.Order != nil {
		order := workOrderInput(*in.Order)
		input.Order = &order
		if input.WorkOrderID == "" {
			input.WorkOrderID = order.ID
		}
	}
	if input.WorkOrderID == "" {
		return ScheduleResponse{}, fmt.Errorf("work_order_id or order is required: %w", ErrInvalidRequest)
	}
	res, err := a.service.InsertUrgent(ctx, input)
	if err != nil {
		return ScheduleResponse{}, mapAppError("urgent insert", err)
	}
	return mapScheduleResult(res), nil
}

// CompareStrategies diffs a stored schedule against an alternative strategy.
func (a *AppServiceAdapter) CompareStrategies(ctx context.Context, id string, strategy string) (ComparisonResponse, error) {
	if err := a.ready(); err != nil {
		return ComparisonResponse{}, err
	}
	id, err := requireID("schedule id", id)
	if err != nil {
		return ComparisonResponse{}, err
	}
	var alt domain.Strategy
	if strings.TrimSpace(strategy) != "" {
		alt, err = domain.ParseStrategy(strategy)
		if err != nil {
			return ComparisonResponse{}, fmt.Errorf("strategy %q: %w", strategy, errors.Join(ErrInvalidRequest, err))
		}
	}
	cmp, err := a.service.CompareStrategies(ctx, id, alt)
	if err != nil {
		return ComparisonResponse{}, mapAppError("compare strategies", err)
	}
	out := ComparisonResponse{
		ScheduleID:  cmp.Schedule.ID,
		Strategy:    string(cmp.Strategy),
		Alternative: mapAssignments(cmp.Alternative),
		Excluded:    mapExclusions(cmp.AlternativeExclude),
		Diff:        make([]DiffView, 0, len(cmp.Diff)),
		Current:     MapMetrics(cmp.Current),
		Candidate:   MapMetrics(cmp.Candidate),
	}
	for _, d := range cmp.Diff {
		view := DiffView{
			WorkOrderID:       d.WorkOrderID,
			Kind:              string(d.Kind),
			StartDeltaMinutes: d.StartDelta.Minutes(),
		}
		if d.Kind != scheduler.DiffAdded {
			before := mapAssignment(d.Before)
			view.Before = &before
		}
		if d.Kind != scheduler.DiffRemoved {
			after := mapAssignment(d.After)
			view.After = &after
		}
		out.Diff = append(out.Diff, view)
	}
	return out, nil
}

// ResetSchedule discards one draft.
func (a *AppServiceAdapter) ResetSchedule(ctx context.Context, in ResetScheduleRequest) (ResetResponse, error) {
	if err := a.ready(); err != nil {
		return ResetResponse{}, err
	}
	id, err := requireID("schedule id", in.ScheduleID)
	if err != nil {
		return ResetResponse{}, err
	}
	warning, err := a.service.ResetSchedule(ctx, app.ResetInput{ScheduleID: id, Actor: in.Actor, Reason: in.Reason})
	if err != nil {
		return ResetResponse{}, mapAppError("reset schedule", err)
	}
	return ResetResponse{ScheduleID: id, Reset: true, AuditWarning: warning}, nil
}

// Rollback restores the assignments of an earlier version as a new version.
func (a *AppServiceAdapter) Rollback(ctx context.Context, in RollbackRequest) (ScheduleResponse, error) {
	if err := a.ready(); err != nil {
		return ScheduleResponse{}, err
	}
	id, err := requireID("schedule id", in.ScheduleID)
	if err != nil {
		return ScheduleResponse{}, err
	}
	if in.TargetVersion <= 0 {
		return ScheduleResponse{}, fmt.Errorf("target_version must be positive: %w", ErrInvalidRequest)
	}
	res, err := a.service.Rollback(ctx, app.RollbackInput{
		ScheduleID:      id,
		TargetVersion:   in.TargetVersion,
		ExpectedVersion: in.ExpectedVersion,
		Actor:           in.Actor,
		Reason:          in.Reason,
	})
	if err != nil {
		return ScheduleResponse{}, mapAppError("rollback", err)
	}
	return mapScheduleResult(res), nil
}

// History lists adjustment log entries of one lineage.
func (a *AppServiceAdapter) History(ctx context.Context, lineageID string, limit int) ([]HistoryEntry, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	lineageID, err := requireID("lineage id", lineageID)
	if err != nil {
		return nil, err
	}
	entries, err := a.service.History(ctx, lineageID, limit)
	if err != nil {
		return nil, mapAppError("history", err)
	}
	out := make([]HistoryEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, HistoryEntry{
			ID:         e.ID,
			LineageID:  e.LineageID,
			ScheduleID: e.ScheduleID,
			Type:       string(e.Type),
			Actor:      e.Actor,
			BeforeRef:  e.BeforeRef,
			AfterRef:   e.AfterRef,
			Reason:     e.Reason,
			Metadata:   e.Metadata,
			OccurredAt: e.OccurredAt,
		})
	}
	return out, nil
}

// ListWorkOrders lists every stored work order.
func (a *AppServiceAdapter) ListWorkOrders(ctx context.Context) ([]WorkOrderView, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	orders, err := a.service.ListWorkOrders(ctx, nil)
	if err != nil {
		return nil, mapAppError("list work orders", err)
	}
	out := make([]WorkOrderView, 0, len(orders))
	for _, o := range orders {
		out = append(out, mapWorkOrder(o))
	}
	return out, nil
}

// UpsertWorkOrder creates or replaces one work order.
func (a *AppServiceAdapter) UpsertWorkOrder(ctx context.Context, in WorkOrderRequest) (WorkOrderView, error) {
	if err := a.ready(); err != nil {
		return WorkOrderView{}, err
	}
	order, err := a.service.UpsertWorkOrder(ctx, workOrderInput(in))
	if err != nil {
		return WorkOrderView{}, mapAppError("upsert work order", err)
	}
	return mapWorkOrder(order), nil
}

// ListResources lists every stored resource.
func (a *AppServiceAdapter) ListResources(ctx context.Context) ([]ResourceView, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	resources, err := a.service.ListResources(ctx, nil)
	if err != nil {
		return nil, mapAppError("list resources", err)
	}
	out := make([]ResourceView, 0, len(resources))
	for _, r := range resources {
		out = append(out, mapResource(r))
	}
	return out, nil
}

// UpsertResource creates or replaces one resource.
func (a *AppServiceAdapter) UpsertResource(ctx context.Context, in ResourceRequest) (ResourceView, error) {
	if err := a.ready(); err != nil {
		return ResourceView{}, err
	}
	input := domain.ResourceInput{
		ID:           in.ID,
		Name:         in.Name,
		Capabilities: in.Capabilities,
	}
	for i, shift := range in.Shifts {
		window, err := app.SnapshotShift{Start: shift.Start, End: shift.End, Weekdays: shift.Weekdays}.ToDomain()
		if err != nil {
			return ResourceView{}, fmt.Errorf("shifts[%d]: %w", i, errors.Join(ErrInvalidRequest, err))
		}
		input.Shifts = append(input.Shifts, window)
	}
	for _, ex := range in.Exceptions {
		input.Exceptions = append(input.Exceptions, domain.Interval{Start: ex.Start, End: ex.End})
	}
	resource, err := a.service.UpsertResource(ctx, input)
	if err != nil {
		return ResourceView{}, mapAppError("upsert resource", err)
	}
	return mapResource(resource), nil
}

// ready reports whether the adapter has a backing service.
func (a *AppServiceAdapter) ready() error {
	if a == nil || a.service == nil {
		return errors.New("app service adapter is not configured")
	}
	return nil
}

// requireID trims one identifier and rejects empty values.
func requireID(field, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%s is required: %w", field, ErrInvalidRequest)
	}
	return id, nil
}

// workOrderInput converts one transport work order into domain input.
func workOrderInput(in WorkOrderRequest) domain.WorkOrderInput {
	return domain.WorkOrderInput{
		ID:            in.ID,
		Name:          in.Name,
		Capability:    in.Capability,
		Duration:      time.Duration(in.DurationMinutes) * time.Minute,
		EarliestStart: in.EarliestStart.UTC(),
		DueAt:         in.DueAt.UTC(),
		Priority:      domain.Priority(in.Priority),
		Predecessors:  in.Predecessors,
	}
}

// mapAppError maps app and domain errors into transport sentinels.
func mapAppError(operation string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, app.ErrNotFound),
		errors.Is(err, domain.ErrResourceNotFound),
		errors.Is(err, domain.ErrAssignmentNotFound):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrNotFound, err))
	case errors.Is(err, domain.ErrStaleScheduleVersion):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrStaleVersion, err))
	case errors.Is(err, domain.ErrConflictsUnresolved):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrConflictsUnresolved, err))
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrScheduleNotConfirmed),
		errors.Is(err, app.ErrWorkOrderCommitted):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrInvalidState, err))
	case errors.Is(err, domain.ErrInfeasibleWorkOrder),
		errors.Is(err, domain.ErrInsertionInfeasible),
		errors.Is(err, domain.ErrOutsideCalendar):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrInfeasible, err))
	case errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidPriority),
		errors.Is(err, domain.ErrInvalidDuration),
		errors.Is(err, domain.ErrInvalidInterval),
		errors.Is(err, domain.ErrInvalidCapability),
		errors.Is(err, domain.ErrInvalidShift),
		errors.Is(err, domain.ErrInvalidStrategy),
		errors.Is(err, app.ErrInvalidSnapshot),
		errors.Is(err, app.ErrUnsupportedSnapshot):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrInvalidRequest, err))
	default:
		return fmt.Errorf("%s: %w", operation, err)
	}
}

// MapSchedule converts one domain schedule into its wire form.
func MapSchedule(s domain.Schedule) ScheduleView {
	return ScheduleView{
		ID:           s.ID,
		LineageID:    s.LineageID,
		Name:         s.Name,
		Version:      s.Version,
		Status:       string(s.Status),
		Strategy:     string(s.Strategy),
		ParentID:     s.ParentID,
		HorizonStart: s.HorizonStart,
		HorizonEnd:   s.HorizonEnd,
		WorkOrderIDs: nonNil(s.WorkOrderIDs),
		ResourceIDs:  nonNil(s.ResourceIDs),
		Assignments:  mapAssignments(s.Assignments),
		Excluded:     mapExclusions(s.Excluded),
		CreatedAt:    s.CreatedAt,
		ConfirmedAt:  s.ConfirmedAt,
		SupersededAt: s.SupersededAt,
	}
}

// MapGantt converts one gantt projection into its wire form.
func MapGantt(view app.GanttView) GanttResponse {
	out := GanttResponse{
		Schedule:  MapSchedule(view.Schedule),
		Bars:      make([]GanttBarView, 0, len(view.Bars)),
		Metrics:   MapMetrics(view.Metrics),
		Conflicts: mapConflicts(view.Conflicts),
	}
	for _, bar := range view.Bars {
		out.Bars = append(out.Bars, GanttBarView{
			ResourceID:       bar.ResourceID,
			WorkOrderID:      bar.WorkOrderID,
			Name:             bar.Name,
			Start:            bar.Start,
			End:              bar.End,
			Sequence:         bar.Sequence,
			Priority:         string(bar.Priority),
			Late:             bar.Late,
			TardinessMinutes: bar.Tardiness.Minutes(),
		})
	}
	return out
}

// MapMetrics converts schedule metrics into their wire form.
func MapMetrics(m scheduler.Metrics) MetricsView {
	out := MetricsView{
		Start:                 m.Start,
		End:                   m.End,
		MakespanMinutes:       m.Makespan.Minutes(),
		Resources:             make([]UtilizationView, 0, len(m.Resources)),
		AverageUtilization:    m.AverageUtilization,
		TotalTardinessMinutes: m.TotalTardiness.Minutes(),
		LateCount:             m.LateCount,
		QualityScore:          m.QualityScore,
	}
	for _, r := range m.Resources {
		out.Resources = append(out.Resources, UtilizationView{
			ResourceID:       r.ResourceID,
			BusyMinutes:      r.Busy.Minutes(),
			AvailableMinutes: r.Available.Minutes(),
			Utilization:      r.Utilization,
		})
	}
	return out
}

func mapScheduleResult(res app.ScheduleResult) ScheduleResponse {
	out := ScheduleResponse{
		Schedule:     MapSchedule(res.Schedule),
		Conflicts:    mapConflicts(res.Conflicts),
		AuditWarning: res.AuditWarning,
	}
	for _, s := range res.Shifted {
		out.Shifted = append(out.Shifted, ShiftedView{
			WorkOrderID:  s.WorkOrderID,
			ResourceID:   s.ResourceID,
			FromStart:    s.FromStart,
			ToStart:      s.ToStart,
			DeltaMinutes: s.Delta.Minutes(),
		})
	}
	return out
}

func mapAssignment(a domain.Assignment) AssignmentView {
	return AssignmentView{
		WorkOrderID: a.WorkOrderID,
		ResourceID:  a.ResourceID,
		Start:       a.Start,
		End:         a.End,
		Sequence:    a.Sequence,
	}
}

func mapAssignments(in []domain.Assignment) []AssignmentView {
	out := make([]AssignmentView, 0, len(in))
	for _, a := range in {
		out = append(out, mapAssignment(a))
	}
	return out
}

func mapExclusions(in []domain.Exclusion) []ExclusionView {
	if len(in) == 0 {
		return nil
	}
	out := make([]ExclusionView, 0, len(in))
	for _, ex := range in {
		out = append(out, ExclusionView{WorkOrderID: ex.WorkOrderID, Reason: ex.Reason})
	}
	return out
}

func mapConflicts(in []domain.ResourceConflict) []ConflictView {
	out := make([]ConflictView, 0, len(in))
	for _, c := range in {
		out = append(out, ConflictView{
			ID:           c.ID,
			ScheduleID:   c.ScheduleID,
			ResourceID:   c.ResourceID,
			AssignmentA:  c.AssignmentA,
			AssignmentB:  c.AssignmentB,
			OverlapStart: c.OverlapStart,
			OverlapEnd:   c.OverlapEnd,
			DetectedAt:   c.DetectedAt,
			ResolvedAt:   c.ResolvedAt,
		})
	}
	return out
}

func mapWorkOrder(o domain.WorkOrder) WorkOrderView {
	return WorkOrderView{
		ID:              o.ID,
		Name:            o.Name,
		Capability:      o.Capability,
		DurationMinutes: int64(o.Duration / time.Minute),
		EarliestStart:   o.EarliestStart,
		DueAt:           o.DueAt,
		Priority:        string(o.Priority),
		Predecessors:    o.Predecessors,
		UpdatedAt:       o.UpdatedAt,
	}
}

func mapResource(r domain.Resource) ResourceView {
	out := ResourceView{
		ID:           r.ID,
		Name:         r.Name,
		Capabilities: nonNil(r.Capabilities),
		Shifts:       make([]ShiftView, 0, len(r.Shifts)),
		UpdatedAt:    r.UpdatedAt,
	}
	for _, shift := range r.Shifts {
		snap := app.SnapshotShiftFromDomain(shift)
		out.Shifts = append(out.Shifts, ShiftView{Start: snap.Start, End: snap.End, Weekdays: snap.Weekdays})
	}
	for _, ex := range r.Exceptions {
		out.Exceptions = append(out.Exceptions, IntervalView{Start: ex.Start, End: ex.End})
	}
	return out
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
