package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hylla/takt/internal/domain"
	"github.com/hylla/takt/internal/scheduler"
)

// ScheduleResult is the outcome of one schedule operation.
type ScheduleResult struct {
	Schedule     domain.Schedule
	Conflicts    []domain.ResourceConflict
	Shifted      []domain.ShiftedAssignment
	AuditWarning string
}

// GenerateScheduleInput holds input values for generate schedule operations.
type GenerateScheduleInput struct {
	LineageID    string
	Name         string
	WorkOrderIDs []string
	// Pending selects every catalog order not yet committed when WorkOrderIDs is empty.
	Pending      bool
	ResourceIDs  []string
	Strategy     domain.Strategy
	HorizonStart time.Time
	HorizonDays  int
	Actor        string
}

// GenerateSchedule computes a draft for the selected orders and resources and stores it
// as the next version of its lineage. No ids and no Pending flag yields an empty schedule.
func (s *Service) GenerateSchedule(ctx context.Context, in GenerateScheduleInput) (ScheduleResult, error) {
	var (
		orders []domain.WorkOrder
		err    error
	)
	if len(cleanIDs(in.WorkOrderIDs)) == 0 && in.Pending {
		orders, err = s.pendingWorkOrders(ctx)
	} else {
		orders, err = s.loadWorkOrders(ctx, in.WorkOrderIDs)
	}
	if err != nil {
		return ScheduleResult{}, err
	}
	resources, err := s.loadResources(ctx, in.ResourceIDs)
	if err != nil {
		return ScheduleResult{}, err
	}
	strategy := in.Strategy
	if strategy == "" {
		strategy = s.defaultStrategy
	}

	lineageID := strings.TrimSpace(in.LineageID)
	if lineageID == "" {
		lineageID = s.idGen()
	}
	current, err := s.repo.LineageVersion(ctx, lineageID)
	if err != nil {
		return ScheduleResult{}, err
	}

	now := s.clock().UTC()
	length := s.horizon
	if in.HorizonDays > 0 {
		length = time.Duration(in.HorizonDays) * 24 * time.Hour
	}
	start := in.HorizonStart.UTC()
	if in.HorizonStart.IsZero() {
		start = scheduler.ResolveHorizon(domain.Interval{}, orders).Start
	}
	horizon := domain.Interval{Start: start, End: start.Add(length)}

	scheduleID := s.idGen()
	res, err := scheduler.Generate(ctx, scheduler.GenerateInput{
		ScheduleID:      scheduleID,
		WorkOrders:      orders,
		Resources:       resources,
		Strategy:        strategy,
		Horizon:         horizon,
		IterationFactor: s.iterationFactor,
		DetectedAt:      now,
	})
	if err != nil {
		return ScheduleResult{}, err
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = lineageID
	}
	schedule := domain.Schedule{
		ID:           scheduleID,
		LineageID:    lineageID,
		Name:         name,
		Version:      current + 1,
		Status:       domain.ScheduleStatusDraft,
		Strategy:     res.Strategy,
		HorizonStart: res.Horizon.Start,
		HorizonEnd:   res.Horizon.End,
		WorkOrderIDs: idsOf(orders, func(o domain.WorkOrder) string { return o.ID }),
		ResourceIDs:  idsOf(resources, func(r domain.Resource) string { return r.ID }),
		Assignments:  res.Assignments,
		Excluded:     res.Excluded,
		CreatedAt:    now,
	}
	conflicts := s.withConflictIDs(res.Conflicts)
	if err := s.repo.CommitVersion(ctx, VersionCommit{
		ExpectedVersion: current,
		Schedule:        schedule,
		Conflicts:       conflicts,
	}); err != nil {
		return ScheduleResult{}, err
	}

	s.logger.Info("schedule generated",
		"schedule_id", schedule.ID,
		"lineage_id", lineageID,
		"version", schedule.Version,
		"strategy", schedule.Strategy,
		"assignments", len(schedule.Assignments),
		"excluded", len(schedule.Excluded),
		"conflicts", len(conflicts),
		"moves", res.Stats.Moves,
	)
	warning := s.record(ctx, domain.AdjustmentLogEntry{
		LineageID:  lineageID,
		ScheduleID: schedule.ID,
		Type:       domain.AdjustmentGenerate,
		Actor:      s.actor(ctx, in.Actor),
		AfterRef:   schedule.ID,
		Metadata: map[string]string{
			"strategy": string(schedule.Strategy),
			"version":  strconv.Itoa(schedule.Version),
			"excluded": strconv.Itoa(len(schedule.Excluded)),
		},
	})
	return ScheduleResult{Schedule: schedule, Conflicts: conflicts, AuditWarning: warning}, nil
}

// GetSchedule returns one schedule version.
func (s *Service) GetSchedule(ctx context.Context, id string) (domain.Schedule, error) {
	return s.repo.GetSchedule(ctx, strings.TrimSpace(id))
}

// ListLineageSchedules returns every stored version of one lineage ordered by version.
func (s *Service) ListLineageSchedules(ctx context.Context, lineageID string) ([]domain.Schedule, error) {
	return s.repo.ListLineageSchedules(ctx, strings.TrimSpace(lineageID))
}

// GanttView is the timeline projection and quality metrics of one schedule.
type GanttView struct {
	Schedule  domain.Schedule
	Bars      []scheduler.GanttBar
	Metrics   scheduler.Metrics
	Conflicts []domain.ResourceConflict
}

// Preview projects a draft without writing anything.
func (s *Service) Preview(ctx context.Context, id string) (GanttView, error) {
	schedule, err := s.GetSchedule(ctx, id)
	if err != nil {
		return GanttView{}, err
	}
	if schedule.Status != domain.ScheduleStatusDraft {
		return GanttView{}, fmt.Errorf("%w: preview needs a draft, %s is %s", domain.ErrInvalidTransition, schedule.ID, schedule.Status)
	}
	return s.ganttFor(ctx, schedule)
}

// Gantt projects any schedule version together with its metrics.
func (s *Service) Gantt(ctx context.Context, id string) (GanttView, error) {
	schedule, err := s.GetSchedule(ctx, id)
	if err != nil {
		return GanttView{}, err
	}
	return s.ganttFor(ctx, schedule)
}

func (s *Service) ganttFor(ctx context.Context, schedule domain.Schedule) (GanttView, error) {
	orders, resources, err := s.scheduleCatalog(ctx, schedule)
	if err != nil {
		return GanttView{}, err
	}
	conflicts, err := s.repo.ListConflicts(ctx, schedule.ID, false)
	if err != nil {
		return GanttView{}, err
	}
	return GanttView{
		Schedule:  schedule,
		Bars:      scheduler.Project(schedule, orders),
		Metrics:   scheduler.Evaluate(schedule, orders, scheduler.NewCalendar(resources), s.weights),
		Conflicts: conflicts,
	}, nil
}

// ListConflicts returns the conflicts stored for one schedule.
func (s *Service) ListConflicts(ctx context.Context, scheduleID string, includeResolved bool) ([]domain.ResourceConflict, error) {
	schedule, err := s.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListConflicts(ctx, schedule.ID, includeResolved)
}

// ConfirmInput holds input values for confirm operations.
type ConfirmInput struct {
	ScheduleID      string
	ExpectedVersion int
	Force           bool
	Actor           string
	Reason          string
}

// ConfirmSchedule commits a draft and supersedes the previously confirmed version of its lineage.
func (s *Service) ConfirmSchedule(ctx context.Context, in ConfirmInput) (ScheduleResult, error) {
	schedule, err := s.GetSchedule(ctx, in.ScheduleID)
	if err != nil {
		return ScheduleResult{}, err
	}
	if err := checkExpectedVersion(schedule, in.ExpectedVersion); err != nil {
		return ScheduleResult{}, err
	}
	if schedule.Status != domain.ScheduleStatusDraft {
		return ScheduleResult{}, fmt.Errorf("%w: %s is %s", domain.ErrInvalidTransition, schedule.ID, schedule.Status)
	}
	now := s.clock().UTC()

	detected := scheduler.Detect(schedule.ID, schedule.Assignments, now)
	if len(detected) > 0 && !in.Force {
		return ScheduleResult{}, fmt.Errorf("%w: %d overlaps in %s", domain.ErrConflictsUnresolved, len(detected), schedule.ID)
	}
	if err := schedule.Confirm(now); err != nil {
		return ScheduleResult{}, fmt.Errorf("confirm %s: %w", schedule.ID, err)
	}

	prior, err := s.confirmedHead(ctx, schedule.LineageID)
	if err != nil {
		return ScheduleResult{}, err
	}
	existing, err := s.repo.ListConflicts(ctx, schedule.ID, false)
	if err != nil {
		return ScheduleResult{}, err
	}
	insert, resolve, open := s.reconcileConflicts(existing, detected)

	commit := VersionCommit{
		ExpectedVersion:  schedule.Version,
		Schedule:         schedule,
		Conflicts:        insert,
		ResolveConflicts: resolve,
		ResolvedAt:       now,
	}
	beforeRef := ""
	if prior != nil {
		if err := prior.Supersede(now); err != nil {
			return ScheduleResult{}, err
		}
		commit.Supersede = prior
		beforeRef = prior.ID
	}
	if err := s.repo.CommitVersion(ctx, commit); err != nil {
		return ScheduleResult{}, err
	}

	warning := s.record(ctx, domain.AdjustmentLogEntry{
		LineageID:  schedule.LineageID,
		ScheduleID: schedule.ID,
		Type:       domain.AdjustmentConfirm,
		Actor:      s.actor(ctx, in.Actor),
		BeforeRef:  beforeRef,
		AfterRef:   schedule.ID,
		Reason:     in.Reason,
		Metadata: map[string]string{
			"force":     strconv.FormatBool(in.Force),
			"conflicts": strconv.Itoa(len(open)),
		},
	})
	return ScheduleResult{Schedule: schedule, Conflicts: open, AuditWarning: warning}, nil
}

// ResetInput holds input values for reset operations.
type ResetInput struct {
	ScheduleID string
	Actor      string
	Reason     string
}

// ResetSchedule discards a draft. Its conflicts are flagged resolved, never deleted.
func (s *Service) ResetSchedule(ctx context.Context, in ResetInput) (string, error) {
	schedule, err := s.GetSchedule(ctx, in.ScheduleID)
	if err != nil {
		return "", err
	}
	if schedule.Status != domain.ScheduleStatusDraft {
		return "", fmt.Errorf("%w: only drafts can be reset, %s is %s", domain.ErrInvalidTransition, schedule.ID, schedule.Status)
	}
	if err := s.repo.DeleteDraftSchedule(ctx, schedule.ID, s.clock().UTC()); err != nil {
		return "", err
	}
	return s.record(ctx, domain.AdjustmentLogEntry{
		LineageID:  schedule.LineageID,
		ScheduleID: schedule.ID,
		Type:       domain.AdjustmentReset,
		Actor:      s.actor(ctx, in.Actor),
		BeforeRef:  schedule.ID,
		Reason:     in.Reason,
	}), nil
}

// Comparison diffs a stored schedule against a fresh generation with another strategy.
type Comparison struct {
	Schedule           domain.Schedule
	Strategy           domain.Strategy
	Alternative        []domain.Assignment
	AlternativeExclude []domain.Exclusion
	Diff               []scheduler.AssignmentDiff
	Current            scheduler.Metrics
	Candidate          scheduler.Metrics
}

// CompareStrategies re-runs generation over the schedule's inputs without persisting anything.
func (s *Service) CompareStrategies(ctx context.Context, scheduleID string, strategy domain.Strategy) (Comparison, error) {
	schedule, err := s.GetSchedule(ctx, scheduleID)
	if err != nil {
		return Comparison{}, err
	}
	if strategy == "" {
		strategy = domain.StrategyHeuristic
		if schedule.Strategy == domain.StrategyHeuristic {
			strategy = domain.StrategyGreedy
		}
	}
	orders, resources, err := s.scheduleCatalog(ctx, schedule)
	if err != nil {
		return Comparison{}, err
	}
	res, err := scheduler.Generate(ctx, scheduler.GenerateInput{
		ScheduleID:      schedule.ID,
		WorkOrders:      orders,
		Resources:       resources,
		Strategy:        strategy,
		Horizon:         schedule.Horizon(),
		IterationFactor: s.iterationFactor,
		DetectedAt:      s.clock().UTC(),
	})
	if err != nil {
		return Comparison{}, err
	}

	cal := scheduler.NewCalendar(resources)
	candidate := schedule.Clone()
	candidate.Assignments = res.Assignments
	return Comparison{
		Schedule:           schedule,
		Strategy:           res.Strategy,
		Alternative:        res.Assignments,
		AlternativeExclude: res.Excluded,
		Diff:               scheduler.Diff(schedule.Assignments, res.Assignments),
		Current:            scheduler.Evaluate(schedule, orders, cal, s.weights),
		Candidate:          scheduler.Evaluate(candidate, orders, cal, s.weights),
	}, nil
}

// confirmedHead returns the confirmed version of a lineage, if any.
func (s *Service) confirmedHead(ctx context.Context, lineageID string) (*domain.Schedule, error) {
	versions, err := s.repo.ListLineageSchedules(ctx, lineageID)
	if err != nil {
		return nil, err
	}
	for i := len(versions) - 1; i >= 0; i-- {
		if versions[i].Status == domain.ScheduleStatusConfirmed {
			head := versions[i]
			return &head, nil
		}
	}
	return nil, nil
}

func checkExpectedVersion(schedule domain.Schedule, expected int) error {
	if expected > 0 && expected != schedule.Version {
		return fmt.Errorf("%w: %s is version %d, expected %d", domain.ErrStaleScheduleVersion, schedule.ID, schedule.Version, expected)
	}
	return nil
}

func (s *Service) withConflictIDs(conflicts []domain.ResourceConflict) []domain.ResourceConflict {
	out := make([]domain.ResourceConflict, 0, len(conflicts))
	for _, c := range conflicts {
		if c.ID == "" {
			c.ID = s.idGen()
		}
		out = append(out, c)
	}
	return out
}

// reconcileConflicts keeps stored conflicts whose pair still overlaps, resolves the rest
// and returns newly detected pairs for insertion.
func (s *Service) reconcileConflicts(existing, detected []domain.ResourceConflict) (insert []domain.ResourceConflict, resolve []string, open []domain.ResourceConflict) {
	stored := make(map[string]domain.ResourceConflict, len(existing))
	for _, c := range existing {
		stored[c.Key()] = c
	}
	seen := map[string]struct{}{}
	insert = []domain.ResourceConflict{}
	open = []domain.ResourceConflict{}
	for _, c := range detected {
		seen[c.Key()] = struct{}{}
		if prev, ok := stored[c.Key()]; ok {
			open = append(open, prev)
			continue
		}
		c.ID = s.idGen()
		insert = append(insert, c)
		open = append(open, c)
	}
	for _, c := range existing {
		if _, ok := seen[c.Key()]; !ok {
			resolve = append(resolve, c.ID)
		}
	}
	return insert, resolve, open
}

func idsOf[T any](items []T, id func(T) string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, id(item))
	}
	return out
}
