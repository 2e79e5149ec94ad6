package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/hylla/takt/internal/domain"
)

type fakeRepo struct {
	workOrders map[string]domain.WorkOrder
	resources  map[string]domain.Resource
	schedules  map[string]domain.Schedule
	lineages   map[string]int
	conflicts  map[string]domain.ResourceConflict
	log        []domain.AdjustmentLogEntry
	logErr     error
	commits    int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		workOrders: map[string]domain.WorkOrder{},
		resources:  map[string]domain.Resource{},
		schedules:  map[string]domain.Schedule{},
		lineages:   map[string]int{},
		conflicts:  map[string]domain.ResourceConflict{},
	}
}

func (f *fakeRepo) UpsertWorkOrder(_ context.Context, o domain.WorkOrder) error {
	f.workOrders[o.ID] = o
	return nil
}

func (f *fakeRepo) GetWorkOrder(_ context.Context, id string) (domain.WorkOrder, error) {
	o, ok := f.workOrders[id]
	if !ok {
		return domain.WorkOrder{}, ErrNotFound
	}
	return o, nil
}

func (f *fakeRepo) ListWorkOrders(_ context.Context, ids []string) ([]domain.WorkOrder, error) {
	out := []domain.WorkOrder{}
	for id, o := range f.workOrders {
		if len(ids) > 0 && !slices.Contains(ids, id) {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRepo) WorkOrderCommitted(_ context.Context, id string) (bool, error) {
	for _, s := range f.schedules {
		if s.Status == domain.ScheduleStatusDraft {
			continue
		}
		if _, ok := s.AssignmentFor(id); ok {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepo) UpsertResource(_ context.Context, r domain.Resource) error {
	f.resources[r.ID] = r
	return nil
}

func (f *fakeRepo) GetResource(_ context.Context, id string) (domain.Resource, error) {
	r, ok := f.resources[id]
	if !ok {
		return domain.Resource{}, ErrNotFound
	}
	return r, nil
}

func (f *fakeRepo) ListResources(_ context.Context, ids []string) ([]domain.Resource, error) {
	out := []domain.Resource{}
	for id, r := range f.resources {
		if len(ids) > 0 && !slices.Contains(ids, id) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRepo) LineageVersion(_ context.Context, lineageID string) (int, error) {
	return f.lineages[lineageID], nil
}

func (f *fakeRepo) CommitVersion(_ context.Context, c VersionCommit) error {
	if f.lineages[c.Schedule.LineageID] != c.ExpectedVersion {
		return domain.ErrStaleScheduleVersion
	}
	f.commits++
	f.schedules[c.Schedule.ID] = c.Schedule.Clone()
	if c.Schedule.Version > f.lineages[c.Schedule.LineageID] {
		f.lineages[c.Schedule.LineageID] = c.Schedule.Version
	}
	for _, conflict := range c.Conflicts {
		f.conflicts[conflict.ID] = conflict
	}
	for _, id := range c.ResolveConflicts {
		conflict := f.conflicts[id]
		conflict.Resolve(c.ResolvedAt)
		f.conflicts[id] = conflict
	}
	if c.Supersede != nil {
		f.schedules[c.Supersede.ID] = c.Supersede.Clone()
	}
	for _, o := range c.WorkOrders {
		f.workOrders[o.ID] = o
	}
	return nil
}

func (f *fakeRepo) GetSchedule(_ context.Context, id string) (domain.Schedule, error) {
	s, ok := f.schedules[id]
	if !ok {
		return domain.Schedule{}, ErrNotFound
	}
	return s.Clone(), nil
}

func (f *fakeRepo) ListLineageSchedules(_ context.Context, lineageID string) ([]domain.Schedule, error) {
	out := []domain.Schedule{}
	for _, s := range f.schedules {
		if s.LineageID == lineageID {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (f *fakeRepo) DeleteDraftSchedule(_ context.Context, id string, at time.Time) error {
	s, ok := f.schedules[id]
	if !ok {
		return ErrNotFound
	}
	delete(f.schedules, id)
	for cid, c := range f.conflicts {
		if c.ScheduleID == id {
			c.Resolve(at)
			f.conflicts[cid] = c
		}
	}
	head := 0
	for _, other := range f.schedules {
		if other.LineageID == s.LineageID && other.Version > head {
			head = other.Version
		}
	}
	f.lineages[s.LineageID] = head
	return nil
}

func (f *fakeRepo) ListConflicts(_ context.Context, scheduleID string, includeResolved bool) ([]domain.ResourceConflict, error) {
	out := []domain.ResourceConflict{}
	for _, c := range f.conflicts {
		if c.ScheduleID != scheduleID || (!includeResolved && !c.Open()) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRepo) AppendAdjustment(_ context.Context, e domain.AdjustmentLogEntry) (domain.AdjustmentLogEntry, error) {
	if f.logErr != nil {
		return domain.AdjustmentLogEntry{}, f.logErr
	}
	e.ID = int64(len(f.log) + 1)
	f.log = append(f.log, e)
	return e, nil
}

func (f *fakeRepo) ListAdjustments(_ context.Context, lineageID string, limit int) ([]domain.AdjustmentLogEntry, error) {
	out := []domain.AdjustmentLogEntry{}
	for _, e := range f.log {
		if e.LineageID == lineageID {
			out = append(out, e)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type captureLogger struct {
	warnings []string
}

func (c *captureLogger) Info(any, ...any) {}

func (c *captureLogger) Warn(msg any, _ ...any) {
	c.warnings = append(c.warnings, fmt.Sprint(msg))
}

var planDay = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func hour(h int) time.Time {
	return planDay.Add(time.Duration(h) * time.Hour)
}

func sequentialIDs() IDGenerator {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%03d", n)
	}
}

func newTestService(t *testing.T) (*Service, *fakeRepo, *captureLogger) {
	t.Helper()
	repo := newFakeRepo()
	logger := &captureLogger{}
	svc := NewService(repo, sequentialIDs(), func() time.Time { return planDay }, ServiceConfig{HorizonDays: 1, Logger: logger})
	ctx := context.Background()
	if _, err := svc.UpsertResource(ctx, domain.ResourceInput{
		ID:           "m1",
		Capabilities: []string{"cnc"},
		Shifts:       []domain.ShiftWindow{{StartMinute: 8 * 60, EndMinute: 17 * 60}},
	}); err != nil {
		t.Fatalf("UpsertResource() error = %v", err)
	}
	for _, in := range []domain.WorkOrderInput{
		{ID: "A", Capability: "cnc", Duration: 2 * time.Hour, EarliestStart: hour(8), DueAt: hour(10)},
		{ID: "B", Capability: "cnc", Duration: 3 * time.Hour, EarliestStart: hour(8), DueAt: hour(12)},
	} {
		if _, err := svc.UpsertWorkOrder(ctx, in); err != nil {
			t.Fatalf("UpsertWorkOrder() error = %v", err)
		}
	}
	return svc, repo, logger
}

func generateAndConfirm(t *testing.T, svc *Service) domain.Schedule {
	t.Helper()
	ctx := context.Background()
	gen, err := svc.GenerateSchedule(ctx, GenerateScheduleInput{LineageID: "line-1", Pending: true, Name: "week 10", HorizonStart: planDay})
	if err != nil {
		t.Fatalf("GenerateSchedule() error = %v", err)
	}
	confirmed, err := svc.ConfirmSchedule(ctx, ConfirmInput{ScheduleID: gen.Schedule.ID, Actor: "planner"})
	if err != nil {
		t.Fatalf("ConfirmSchedule() error = %v", err)
	}
	return confirmed.Schedule
}

func TestGenerateScheduleStoresDraft(t *testing.T) {
	svc, repo, _ := newTestService(t)
	res, err := svc.GenerateSchedule(context.Background(), GenerateScheduleInput{LineageID: "line-1", Pending: true, HorizonStart: planDay})
	if err != nil {
		t.Fatalf("GenerateSchedule() error = %v", err)
	}
	if res.Schedule.Status != domain.ScheduleStatusDraft || res.Schedule.Version != 1 {
		t.Fatalf("unexpected schedule %#v", res.Schedule)
	}
	if len(res.Schedule.Assignments) != 2 {
		t.Fatalf("expected 2 assignments, got %#v", res.Schedule.Assignments)
	}
	if !res.Schedule.HorizonEnd.Equal(planDay.Add(24 * time.Hour)) {
		t.Fatalf("expected one-day horizon, got %s", res.Schedule.HorizonEnd)
	}
	if res.AuditWarning != "" {
		t.Fatalf("unexpected audit warning %q", res.AuditWarning)
	}
	if len(repo.log) != 1 || repo.log[0].Type != domain.AdjustmentGenerate || repo.log[0].Actor != "system" {
		t.Fatalf("unexpected log %#v", repo.log)
	}
}

func TestGenerateScheduleUnknownInputs(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.GenerateSchedule(ctx, GenerateScheduleInput{WorkOrderIDs: []string{"nope"}}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.GenerateSchedule(ctx, GenerateScheduleInput{ResourceIDs: []string{"m9"}}); !errors.Is(err, domain.ErrResourceNotFound) {
		t.Fatalf("expected ErrResourceNotFound, got %v", err)
	}
}

func TestGenerateScheduleEmptySelection(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	res, err := svc.GenerateSchedule(ctx, GenerateScheduleInput{LineageID: "line-1", HorizonStart: planDay})
	if err != nil {
		t.Fatalf("GenerateSchedule() error = %v", err)
	}
	if len(res.Schedule.Assignments) != 0 || len(res.Schedule.WorkOrderIDs) != 0 || len(res.Conflicts) != 0 {
		t.Fatalf("expected empty schedule, got %#v (conflicts %#v)", res.Schedule, res.Conflicts)
	}
	if res.Schedule.Status != domain.ScheduleStatusDraft || repo.lineages["line-1"] != 1 {
		t.Fatalf("expected stored draft version 1, got %#v", res.Schedule)
	}
	view, err := svc.Gantt(ctx, res.Schedule.ID)
	if err != nil {
		t.Fatalf("Gantt() error = %v", err)
	}
	if len(view.Bars) != 0 || view.Metrics.Makespan != 0 {
		t.Fatalf("expected empty timeline, got %#v", view)
	}
}

func TestGeneratePendingSkipsCommittedOrders(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	generateAndConfirm(t, svc)
	if _, err := svc.UpsertWorkOrder(ctx, domain.WorkOrderInput{ID: "C", Capability: "cnc", Duration: time.Hour, EarliestStart: hour(8)}); err != nil {
		t.Fatalf("UpsertWorkOrder() error = %v", err)
	}
	res, err := svc.GenerateSchedule(ctx, GenerateScheduleInput{LineageID: "line-2", Pending: true, HorizonStart: planDay})
	if err != nil {
		t.Fatalf("GenerateSchedule() error = %v", err)
	}
	if !slices.Equal(res.Schedule.WorkOrderIDs, []string{"C"}) {
		t.Fatalf("expected only C pending, got %#v", res.Schedule.WorkOrderIDs)
	}
	if len(res.Schedule.Assignments) != 1 || res.Schedule.Assignments[0].WorkOrderID != "C" {
		t.Fatalf("unexpected assignments %#v", res.Schedule.Assignments)
	}
}

func TestConfirmSupersedesPriorVersion(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	first := generateAndConfirm(t, svc)

	second := generateAndConfirm(t, svc)
	if second.Version != 2 {
		t.Fatalf("expected version 2, got %d", second.Version)
	}
	prior, err := svc.GetSchedule(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetSchedule() error = %v", err)
	}
	if prior.Status != domain.ScheduleStatusSuperseded || prior.SupersededAt == nil {
		t.Fatalf("expected superseded prior, got %#v", prior)
	}
	last := repo.log[len(repo.log)-1]
	if last.Type != domain.AdjustmentConfirm || last.BeforeRef != first.ID || last.AfterRef != second.ID || last.Actor != "planner" {
		t.Fatalf("unexpected confirm entry %#v", last)
	}
}

func TestConfirmRejectsConflictsUnlessForced(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	gen, err := svc.GenerateSchedule(ctx, GenerateScheduleInput{LineageID: "line-1", Pending: true, HorizonStart: planDay})
	if err != nil {
		t.Fatalf("GenerateSchedule() error = %v", err)
	}
	adjusted, err := svc.AdjustSchedule(ctx, AdjustScheduleInput{ScheduleID: gen.Schedule.ID, WorkOrderID: "B", Start: hour(9)})
	if err != nil {
		t.Fatalf("AdjustSchedule() error = %v", err)
	}
	if len(adjusted.Conflicts) != 1 {
		t.Fatalf("expected one draft conflict, got %#v", adjusted.Conflicts)
	}

	if _, err := svc.ConfirmSchedule(ctx, ConfirmInput{ScheduleID: gen.Schedule.ID}); !errors.Is(err, domain.ErrConflictsUnresolved) {
		t.Fatalf("expected ErrConflictsUnresolved, got %v", err)
	}
	forced, err := svc.ConfirmSchedule(ctx, ConfirmInput{ScheduleID: gen.Schedule.ID, Force: true})
	if err != nil {
		t.Fatalf("ConfirmSchedule(force) error = %v", err)
	}
	if len(forced.Conflicts) != 1 || forced.Conflicts[0].ID != adjusted.Conflicts[0].ID {
		t.Fatalf("expected the stored conflict to stay open, got %#v", forced.Conflicts)
	}
	stored, err := repo.ListConflicts(ctx, gen.Schedule.ID, true)
	if err != nil {
		t.Fatalf("ListConflicts() error = %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("expected one stored conflict, got %#v", stored)
	}
}

func TestConfirmStaleVersion(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	first, err := svc.GenerateSchedule(ctx, GenerateScheduleInput{LineageID: "line-1", Pending: true, HorizonStart: planDay})
	if err != nil {
		t.Fatalf("GenerateSchedule() error = %v", err)
	}
	if _, err := svc.GenerateSchedule(ctx, GenerateScheduleInput{LineageID: "line-1", Pending: true, HorizonStart: planDay}); err != nil {
		t.Fatalf("GenerateSchedule() error = %v", err)
	}
	if _, err := svc.ConfirmSchedule(ctx, ConfirmInput{ScheduleID: first.Schedule.ID}); !errors.Is(err, domain.ErrStaleScheduleVersion) {
		t.Fatalf("expected ErrStaleScheduleVersion, got %v", err)
	}
	if _, err := svc.ConfirmSchedule(ctx, ConfirmInput{ScheduleID: first.Schedule.ID, ExpectedVersion: 7}); !errors.Is(err, domain.ErrStaleScheduleVersion) {
		t.Fatalf("expected ErrStaleScheduleVersion, got %v", err)
	}
}

func TestInsertUrgentCommitsNextVersion(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	base := generateAndConfirm(t, svc)

	res, err := svc.InsertUrgent(ctx, UrgentInsertInput{
		ScheduleID: base.ID,
		Order: &domain.WorkOrderInput{
			ID:            "C",
			Capability:    "cnc",
			Duration:      time.Hour,
			EarliestStart: hour(8),
			DueAt:         hour(9),
		},
		Reason: "rush order",
	})
	if err != nil {
		t.Fatalf("InsertUrgent() error = %v", err)
	}
	if res.Schedule.Version != base.Version+1 || res.Schedule.ParentID != base.ID {
		t.Fatalf("unexpected version %#v", res.Schedule)
	}
	if len(res.Shifted) != 2 {
		t.Fatalf("expected two shifted assignments, got %#v", res.Shifted)
	}
	order, err := repo.GetWorkOrder(ctx, "C")
	if err != nil {
		t.Fatalf("GetWorkOrder() error = %v", err)
	}
	if !order.Urgent() {
		t.Fatalf("expected stored urgent order, got %#v", order)
	}
	prior, _ := repo.GetSchedule(ctx, base.ID)
	if prior.Status != domain.ScheduleStatusSuperseded {
		t.Fatalf("expected base superseded, got %s", prior.Status)
	}
	last := repo.log[len(repo.log)-1]
	if last.Type != domain.AdjustmentUrgentInsert || last.Metadata["shift.A"] != "1h0m0s" || last.Reason != "rush order" {
		t.Fatalf("unexpected urgent log entry %#v", last)
	}
}

func TestInsertUrgentRequiresConfirmed(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	gen, err := svc.GenerateSchedule(ctx, GenerateScheduleInput{LineageID: "line-1", Pending: true, HorizonStart: planDay})
	if err != nil {
		t.Fatalf("GenerateSchedule() error = %v", err)
	}
	if _, err := svc.InsertUrgent(ctx, UrgentInsertInput{ScheduleID: gen.Schedule.ID, WorkOrderID: "A"}); !errors.Is(err, domain.ErrScheduleNotConfirmed) {
		t.Fatalf("expected ErrScheduleNotConfirmed, got %v", err)
	}
}

func TestInsertUrgentFailureLeavesCatalogUntouched(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	base := generateAndConfirm(t, svc)
	if _, err := svc.UpsertWorkOrder(ctx, domain.WorkOrderInput{ID: "D", Capability: "milling", Duration: time.Hour, EarliestStart: hour(8), DueAt: hour(12)}); err != nil {
		t.Fatalf("UpsertWorkOrder() error = %v", err)
	}
	commits := repo.commits

	if _, err := svc.InsertUrgent(ctx, UrgentInsertInput{ScheduleID: base.ID, WorkOrderID: "D"}); !errors.Is(err, domain.ErrInsertionInfeasible) {
		t.Fatalf("expected ErrInsertionInfeasible, got %v", err)
	}
	stored, err := repo.GetWorkOrder(ctx, "D")
	if err != nil {
		t.Fatalf("GetWorkOrder() error = %v", err)
	}
	if stored.Priority != domain.PriorityNormal {
		t.Fatalf("expected D to stay normal, got %s", stored.Priority)
	}

	_, err = svc.InsertUrgent(ctx, UrgentInsertInput{
		ScheduleID: base.ID,
		Order:      &domain.WorkOrderInput{ID: "E", Capability: "milling", Duration: time.Hour, EarliestStart: hour(8), DueAt: hour(12)},
	})
	if !errors.Is(err, domain.ErrInsertionInfeasible) {
		t.Fatalf("expected ErrInsertionInfeasible, got %v", err)
	}
	if _, err := repo.GetWorkOrder(ctx, "E"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected inline order E not stored, got %v", err)
	}
	if repo.commits != commits {
		t.Fatalf("expected no commit, got %d new", repo.commits-commits)
	}
}

func TestInsertUrgentByIDEscalatesWithCommit(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	base := generateAndConfirm(t, svc)
	if _, err := svc.UpsertWorkOrder(ctx, domain.WorkOrderInput{ID: "D", Capability: "cnc", Duration: time.Hour, EarliestStart: hour(8), DueAt: hour(16)}); err != nil {
		t.Fatalf("UpsertWorkOrder() error = %v", err)
	}
	res, err := svc.InsertUrgent(ctx, UrgentInsertInput{ScheduleID: base.ID, WorkOrderID: "D"})
	if err != nil {
		t.Fatalf("InsertUrgent() error = %v", err)
	}
	if _, ok := res.Schedule.AssignmentFor("D"); !ok {
		t.Fatalf("expected D placed, got %#v", res.Schedule.Assignments)
	}
	stored, err := repo.GetWorkOrder(ctx, "D")
	if err != nil {
		t.Fatalf("GetWorkOrder() error = %v", err)
	}
	if !stored.Urgent() {
		t.Fatalf("expected D escalated, got %s", stored.Priority)
	}
}

func TestDegradedAuditKeepsMutation(t *testing.T) {
	svc, repo, logger := newTestService(t)
	base := generateAndConfirm(t, svc)
	repo.logErr = errors.New("disk full")

	res, err := svc.AdjustSchedule(context.Background(), AdjustScheduleInput{ScheduleID: base.ID, WorkOrderID: "B", Start: hour(13)})
	if err != nil {
		t.Fatalf("AdjustSchedule() error = %v", err)
	}
	if !strings.Contains(res.AuditWarning, "disk full") {
		t.Fatalf("expected degraded audit warning, got %q", res.AuditWarning)
	}
	if _, err := repo.GetSchedule(context.Background(), res.Schedule.ID); err != nil {
		t.Fatalf("expected committed version despite audit failure, got %v", err)
	}
	if len(logger.warnings) != 1 {
		t.Fatalf("expected one logged warning, got %#v", logger.warnings)
	}
}

func TestRollbackWritesNewVersion(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	base := generateAndConfirm(t, svc)
	moved, err := svc.AdjustSchedule(ctx, AdjustScheduleInput{ScheduleID: base.ID, WorkOrderID: "B", Start: hour(13)})
	if err != nil {
		t.Fatalf("AdjustSchedule() error = %v", err)
	}

	res, err := svc.Rollback(ctx, RollbackInput{ScheduleID: moved.Schedule.ID, TargetVersion: base.Version})
	if err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	if res.Schedule.Version != 3 || res.Schedule.Status != domain.ScheduleStatusConfirmed {
		t.Fatalf("unexpected rollback version %#v", res.Schedule)
	}
	b, _ := res.Schedule.AssignmentFor("B")
	if !b.Start.Equal(hour(10)) {
		t.Fatalf("expected B restored to 10:00, got %#v", b)
	}
	history, err := svc.History(ctx, "line-1", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	types := make([]domain.AdjustmentType, 0, len(history))
	for _, e := range history {
		types = append(types, e.Type)
	}
	want := []domain.AdjustmentType{domain.AdjustmentGenerate, domain.AdjustmentConfirm, domain.AdjustmentManual, domain.AdjustmentRollback}
	if !slices.Equal(types, want) {
		t.Fatalf("unexpected history %#v", types)
	}
	if len(repo.schedules) != 3 {
		t.Fatalf("expected three stored versions, got %d", len(repo.schedules))
	}
}

func TestResetDiscardsDraftOnly(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	base := generateAndConfirm(t, svc)
	if _, err := svc.ResetSchedule(ctx, ResetInput{ScheduleID: base.ID}); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	draft, err := svc.GenerateSchedule(ctx, GenerateScheduleInput{LineageID: "line-1", Pending: true, HorizonStart: planDay})
	if err != nil {
		t.Fatalf("GenerateSchedule() error = %v", err)
	}
	if _, err := svc.ResetSchedule(ctx, ResetInput{ScheduleID: draft.Schedule.ID}); err != nil {
		t.Fatalf("ResetSchedule() error = %v", err)
	}
	if _, err := svc.GetSchedule(ctx, draft.Schedule.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after reset, got %v", err)
	}
	if repo.lineages["line-1"] != base.Version {
		t.Fatalf("expected lineage head back at %d, got %d", base.Version, repo.lineages["line-1"])
	}
	if _, err := svc.AdjustSchedule(ctx, AdjustScheduleInput{ScheduleID: base.ID, WorkOrderID: "B", Start: hour(13)}); err != nil {
		t.Fatalf("AdjustSchedule() after reset error = %v", err)
	}
}

func TestCompareStrategiesDoesNotPersist(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	base := generateAndConfirm(t, svc)
	commits := repo.commits

	cmp, err := svc.CompareStrategies(ctx, base.ID, domain.StrategyHeuristic)
	if err != nil {
		t.Fatalf("CompareStrategies() error = %v", err)
	}
	if cmp.Strategy != domain.StrategyHeuristic {
		t.Fatalf("unexpected strategy %q", cmp.Strategy)
	}
	if len(cmp.Alternative) != 2 || cmp.Current.QualityScore == 0 {
		t.Fatalf("unexpected comparison %#v", cmp)
	}
	if repo.commits != commits {
		t.Fatal("comparison must not write")
	}
}

func TestPreviewAndGantt(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	gen, err := svc.GenerateSchedule(ctx, GenerateScheduleInput{LineageID: "line-1", Pending: true, HorizonStart: planDay})
	if err != nil {
		t.Fatalf("GenerateSchedule() error = %v", err)
	}
	view, err := svc.Preview(ctx, gen.Schedule.ID)
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	if len(view.Bars) != 2 || view.Metrics.Makespan != 5*time.Hour {
		t.Fatalf("unexpected preview %#v", view)
	}
	if _, err := svc.ConfirmSchedule(ctx, ConfirmInput{ScheduleID: gen.Schedule.ID}); err != nil {
		t.Fatalf("ConfirmSchedule() error = %v", err)
	}
	if _, err := svc.Preview(ctx, gen.Schedule.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for confirmed preview, got %v", err)
	}
	if _, err := svc.Gantt(ctx, gen.Schedule.ID); err != nil {
		t.Fatalf("Gantt() error = %v", err)
	}
}

func TestUpsertWorkOrderLocksCommittedOrders(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	generateAndConfirm(t, svc)

	in := domain.WorkOrderInput{ID: "A", Capability: "cnc", Duration: 3 * time.Hour, EarliestStart: hour(8), DueAt: hour(10)}
	if _, err := svc.UpsertWorkOrder(ctx, in); !errors.Is(err, ErrWorkOrderCommitted) {
		t.Fatalf("expected ErrWorkOrderCommitted, got %v", err)
	}
	in.Duration = 2 * time.Hour
	in.Priority = domain.PriorityUrgent
	order, err := svc.UpsertWorkOrder(ctx, in)
	if err != nil {
		t.Fatalf("UpsertWorkOrder(escalate) error = %v", err)
	}
	if !order.Urgent() {
		t.Fatalf("expected escalation, got %#v", order)
	}
}

func TestActorFromContext(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := WithActor(context.Background(), " mcp-agent ")
	if _, err := svc.GenerateSchedule(ctx, GenerateScheduleInput{LineageID: "line-1", Pending: true, HorizonStart: planDay}); err != nil {
		t.Fatalf("GenerateSchedule() error = %v", err)
	}
	if repo.log[0].Actor != "mcp-agent" {
		t.Fatalf("expected context actor, got %q", repo.log[0].Actor)
	}
}
