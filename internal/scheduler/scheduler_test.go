package scheduler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/hylla/takt/internal/domain"
)

var day = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func mustResource(t *testing.T, id string, startHour, endHour int, capabilities ...string) domain.Resource {
	t.Helper()
	r, err := domain.NewResource(domain.ResourceInput{
		ID:           id,
		Capabilities: capabilities,
		Shifts:       []domain.ShiftWindow{{StartMinute: startHour * 60, EndMinute: endHour * 60}},
	}, day)
	if err != nil {
		t.Fatalf("NewResource() error = %v", err)
	}
	return r
}

func mustOrder(t *testing.T, id string, duration time.Duration, due time.Time, priority domain.Priority, predecessors ...string) domain.WorkOrder {
	t.Helper()
	o, err := domain.NewWorkOrder(domain.WorkOrderInput{
		ID:            id,
		Capability:    "cnc",
		Duration:      duration,
		EarliestStart: at(8, 0),
		DueAt:         due,
		Priority:      priority,
		Predecessors:  predecessors,
	}, day)
	if err != nil {
		t.Fatalf("NewWorkOrder() error = %v", err)
	}
	return o
}

func oneDay() domain.Interval {
	return domain.Interval{Start: day, End: day.Add(24 * time.Hour)}
}

func assignmentFor(t *testing.T, assignments []domain.Assignment, id string) domain.Assignment {
	t.Helper()
	for _, a := range assignments {
		if a.WorkOrderID == id {
			return a
		}
	}
	t.Fatalf("missing assignment for %s in %#v", id, assignments)
	return domain.Assignment{}
}

func assertNoOverlap(t *testing.T, assignments []domain.Assignment) {
	t.Helper()
	if conflicts := Detect("check", assignments, day); len(conflicts) != 0 {
		t.Fatalf("expected no overlaps, got %#v", conflicts)
	}
}

func TestAvailableWindowsSubtractsExceptions(t *testing.T) {
	r, err := domain.NewResource(domain.ResourceInput{
		ID:           "m1",
		Capabilities: []string{"cnc"},
		Shifts: []domain.ShiftWindow{
			{StartMinute: 8 * 60, EndMinute: 12 * 60},
			{StartMinute: 12 * 60, EndMinute: 17 * 60},
		},
		Exceptions: []domain.Interval{{Start: at(10, 0), End: at(11, 0)}},
	}, day)
	if err != nil {
		t.Fatalf("NewResource() error = %v", err)
	}
	cal := NewCalendar([]domain.Resource{r})

	windows, err := cal.AvailableWindows("m1", oneDay())
	if err != nil {
		t.Fatalf("AvailableWindows() error = %v", err)
	}
	want := []domain.Interval{
		{Start: at(8, 0), End: at(10, 0)},
		{Start: at(11, 0), End: at(17, 0)},
	}
	if !slices.Equal(windows, want) {
		t.Fatalf("unexpected windows %#v", windows)
	}

	total, err := cal.AvailableTime("m1", oneDay())
	if err != nil {
		t.Fatalf("AvailableTime() error = %v", err)
	}
	if total != 8*time.Hour {
		t.Fatalf("expected 8h available, got %s", total)
	}
}

func TestAvailableWindowsWeekdaysAndClipping(t *testing.T) {
	r, err := domain.NewResource(domain.ResourceInput{
		ID:           "m1",
		Capabilities: []string{"cnc"},
		Shifts:       []domain.ShiftWindow{{StartMinute: 8 * 60, EndMinute: 16 * 60, Weekdays: []time.Weekday{time.Monday}}},
	}, day)
	if err != nil {
		t.Fatalf("NewResource() error = %v", err)
	}
	cal := NewCalendar([]domain.Resource{r})

	windows, err := cal.AvailableWindows("m1", domain.Interval{Start: at(9, 0), End: day.Add(72 * time.Hour)})
	if err != nil {
		t.Fatalf("AvailableWindows() error = %v", err)
	}
	if len(windows) != 1 || !windows[0].Start.Equal(at(9, 0)) || !windows[0].End.Equal(at(16, 0)) {
		t.Fatalf("expected one clipped monday window, got %#v", windows)
	}
}

func TestAvailableWindowsUnknownResource(t *testing.T) {
	cal := NewCalendar(nil)
	if _, err := cal.AvailableWindows("ghost", oneDay()); !errors.Is(err, domain.ErrResourceNotFound) {
		t.Fatalf("expected ErrResourceNotFound, got %v", err)
	}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name        string
		assignments []domain.Assignment
		want        int
	}{
		{name: "empty", assignments: nil, want: 0},
		{
			name: "touching slots do not overlap",
			assignments: []domain.Assignment{
				{WorkOrderID: "a", ResourceID: "m1", Start: at(8, 0), End: at(10, 0)},
				{WorkOrderID: "b", ResourceID: "m1", Start: at(10, 0), End: at(11, 0)},
			},
			want: 0,
		},
		{
			name: "different resources never conflict",
			assignments: []domain.Assignment{
				{WorkOrderID: "a", ResourceID: "m1", Start: at(8, 0), End: at(10, 0)},
				{WorkOrderID: "b", ResourceID: "m2", Start: at(8, 0), End: at(10, 0)},
			},
			want: 0,
		},
		{
			name: "long slot overlaps two later slots",
			assignments: []domain.Assignment{
				{WorkOrderID: "a", ResourceID: "m1", Start: at(8, 0), End: at(12, 0)},
				{WorkOrderID: "b", ResourceID: "m1", Start: at(9, 0), End: at(10, 0)},
				{WorkOrderID: "c", ResourceID: "m1", Start: at(11, 0), End: at(13, 0)},
			},
			want: 2,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Detect("s1", tc.assignments, day)
			if got == nil {
				t.Fatal("expected non-nil conflict slice")
			}
			if len(got) != tc.want {
				t.Fatalf("expected %d conflicts, got %#v", tc.want, got)
			}
		})
	}
}

func TestDetectReportsOverlapBounds(t *testing.T) {
	got := Detect("s1", []domain.Assignment{
		{WorkOrderID: "b", ResourceID: "m1", Start: at(9, 0), End: at(11, 0)},
		{WorkOrderID: "a", ResourceID: "m1", Start: at(8, 0), End: at(10, 0)},
	}, day)
	if len(got) != 1 {
		t.Fatalf("expected one conflict, got %#v", got)
	}
	c := got[0]
	if c.AssignmentA != "a" || c.AssignmentB != "b" || !c.OverlapStart.Equal(at(9, 0)) || !c.OverlapEnd.Equal(at(10, 0)) {
		t.Fatalf("unexpected conflict %#v", c)
	}
	if c.ScheduleID != "s1" || !c.Open() {
		t.Fatalf("expected open conflict for s1, got %#v", c)
	}
}

func threeOrderScenario(t *testing.T) ([]domain.WorkOrder, []domain.Resource, domain.WorkOrder) {
	t.Helper()
	orders := []domain.WorkOrder{
		mustOrder(t, "B", 3*time.Hour, at(12, 0), domain.PriorityNormal),
		mustOrder(t, "A", 2*time.Hour, at(10, 0), domain.PriorityNormal),
	}
	resources := []domain.Resource{mustResource(t, "m1", 8, 17, "cnc")}
	urgent := mustOrder(t, "C", time.Hour, at(9, 0), domain.PriorityUrgent)
	return orders, resources, urgent
}

func TestGenerateGreedyScenario(t *testing.T) {
	orders, resources, _ := threeOrderScenario(t)
	res, err := Generate(context.Background(), GenerateInput{
		ScheduleID: "s1",
		WorkOrders: orders,
		Resources:  resources,
		Strategy:   domain.StrategyGreedy,
		Horizon:    oneDay(),
		DetectedAt: day,
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	a := assignmentFor(t, res.Assignments, "A")
	b := assignmentFor(t, res.Assignments, "B")
	if !a.Start.Equal(at(8, 0)) || !a.End.Equal(at(10, 0)) {
		t.Fatalf("unexpected A slot %#v", a)
	}
	if !b.Start.Equal(at(10, 0)) || !b.End.Equal(at(13, 0)) {
		t.Fatalf("unexpected B slot %#v", b)
	}
	if a.Sequence != 0 || b.Sequence != 1 {
		t.Fatalf("unexpected sequence numbers A=%d B=%d", a.Sequence, b.Sequence)
	}
	if len(res.Conflicts) != 0 || len(res.Excluded) != 0 {
		t.Fatalf("expected clean schedule, got conflicts=%#v excluded=%#v", res.Conflicts, res.Excluded)
	}
}

func TestGenerateEmptyInput(t *testing.T) {
	res, err := Generate(context.Background(), GenerateInput{Strategy: domain.StrategyHeuristic})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(res.Assignments) != 0 || len(res.Conflicts) != 0 || len(res.Excluded) != 0 {
		t.Fatalf("expected empty result, got %#v", res)
	}
	if res.Conflicts == nil {
		t.Fatal("expected empty, non-nil conflicts")
	}
}

func TestGenerateNoSlackExcludesSecondOrder(t *testing.T) {
	orders := []domain.WorkOrder{
		mustOrder(t, "wo-1", 2*time.Hour, at(10, 0), domain.PriorityNormal),
		mustOrder(t, "wo-2", 2*time.Hour, at(10, 0), domain.PriorityNormal),
	}
	resources := []domain.Resource{mustResource(t, "m1", 8, 10, "cnc")}
	res, err := Generate(context.Background(), GenerateInput{
		ScheduleID: "s1",
		WorkOrders: orders,
		Resources:  resources,
		Horizon:    oneDay(),
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(res.Assignments) != 1 || res.Assignments[0].WorkOrderID != "wo-1" {
		t.Fatalf("expected wo-1 placed, got %#v", res.Assignments)
	}
	if len(res.Excluded) != 1 || res.Excluded[0].WorkOrderID != "wo-2" {
		t.Fatalf("expected wo-2 excluded, got %#v", res.Excluded)
	}
	if err := ExclusionError(res.Excluded[0]); !errors.Is(err, domain.ErrInfeasibleWorkOrder) {
		t.Fatalf("expected ErrInfeasibleWorkOrder, got %v", err)
	}
}

func TestGenerateDefaultHorizonPlacesSecondOrderLate(t *testing.T) {
	orders := []domain.WorkOrder{
		mustOrder(t, "wo-1", 2*time.Hour, at(10, 0), domain.PriorityNormal),
		mustOrder(t, "wo-2", 2*time.Hour, at(10, 0), domain.PriorityNormal),
	}
	resources := []domain.Resource{mustResource(t, "m1", 8, 10, "cnc")}
	res, err := Generate(context.Background(), GenerateInput{
		ScheduleID: "s1",
		WorkOrders: orders,
		Resources:  resources,
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !res.Horizon.Start.Equal(at(8, 0)) || res.Horizon.End.Sub(res.Horizon.Start) != DefaultHorizon {
		t.Fatalf("unexpected default horizon %#v", res.Horizon)
	}
	if len(res.Excluded) != 0 {
		t.Fatalf("expected no exclusions, got %#v", res.Excluded)
	}
	first := assignmentFor(t, res.Assignments, "wo-1")
	second := assignmentFor(t, res.Assignments, "wo-2")
	if !first.Start.Equal(at(8, 0)) || !first.End.Equal(at(10, 0)) {
		t.Fatalf("unexpected wo-1 slot %#v", first)
	}
	nextDay := at(8, 0).Add(24 * time.Hour)
	if !second.Start.Equal(nextDay) || !second.End.Equal(nextDay.Add(2*time.Hour)) {
		t.Fatalf("expected wo-2 on the next shift, got %#v", second)
	}
	if late := orders[1].Tardiness(second.End); late != 24*time.Hour {
		t.Fatalf("wo-2 tardiness = %s, want 24h", late)
	}
}

func TestGenerateExclusions(t *testing.T) {
	late, err := domain.NewWorkOrder(domain.WorkOrderInput{
		ID:            "late",
		Capability:    "cnc",
		Duration:      3 * time.Hour,
		EarliestStart: at(9, 0),
		DueAt:         at(10, 0),
	}, day)
	if err != nil {
		t.Fatalf("NewWorkOrder() error = %v", err)
	}
	paint, err := domain.NewWorkOrder(domain.WorkOrderInput{
		ID:            "paint",
		Capability:    "paint",
		Duration:      time.Hour,
		EarliestStart: at(8, 0),
		DueAt:         at(17, 0),
	}, day)
	if err != nil {
		t.Fatalf("NewWorkOrder() error = %v", err)
	}
	child := mustOrder(t, "child", time.Hour, at(17, 0), domain.PriorityNormal, "late")

	res, err := Generate(context.Background(), GenerateInput{
		WorkOrders: []domain.WorkOrder{late, paint, child},
		Resources:  []domain.Resource{mustResource(t, "m1", 8, 17, "cnc")},
		Horizon:    oneDay(),
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(res.Assignments) != 0 {
		t.Fatalf("expected no assignments, got %#v", res.Assignments)
	}
	excluded := map[string]string{}
	for _, e := range res.Excluded {
		excluded[e.WorkOrderID] = e.Reason
	}
	if excluded["late"] != "cannot finish by due date" {
		t.Fatalf("unexpected reason for late: %q", excluded["late"])
	}
	if excluded["paint"] != `no resource with capability "paint"` {
		t.Fatalf("unexpected reason for paint: %q", excluded["paint"])
	}
	if excluded["child"] != "predecessor late excluded" {
		t.Fatalf("unexpected reason for child: %q", excluded["child"])
	}
}

func TestGenerateHonoursPredecessors(t *testing.T) {
	orders := []domain.WorkOrder{
		mustOrder(t, "second", time.Hour, at(11, 0), domain.PriorityNormal, "first"),
		mustOrder(t, "first", 2*time.Hour, at(12, 0), domain.PriorityNormal),
	}
	resources := []domain.Resource{
		mustResource(t, "m1", 8, 17, "cnc"),
		mustResource(t, "m2", 8, 17, "cnc"),
	}
	res, err := Generate(context.Background(), GenerateInput{WorkOrders: orders, Resources: resources, Horizon: oneDay()})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	first := assignmentFor(t, res.Assignments, "first")
	second := assignmentFor(t, res.Assignments, "second")
	if second.Start.Before(first.End) {
		t.Fatalf("successor starts before predecessor ends: first=%#v second=%#v", first, second)
	}
}

func TestGenerateRejectsDuplicatesAndUnknownStrategy(t *testing.T) {
	o := mustOrder(t, "a", time.Hour, at(12, 0), domain.PriorityNormal)
	if _, err := Generate(context.Background(), GenerateInput{WorkOrders: []domain.WorkOrder{o, o}}); !errors.Is(err, domain.ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
	if _, err := Generate(context.Background(), GenerateInput{Strategy: "annealing"}); !errors.Is(err, domain.ErrInvalidStrategy) {
		t.Fatalf("expected ErrInvalidStrategy, got %v", err)
	}
}

func batch(t *testing.T, n int) ([]domain.WorkOrder, []domain.Resource) {
	t.Helper()
	orders := make([]domain.WorkOrder, 0, n)
	for i := 0; i < n; i++ {
		priority := domain.PriorityNormal
		if i%7 == 0 {
			priority = domain.PriorityUrgent
		}
		due := at(10, 0).Add(time.Duration((i*37)%48) * time.Hour)
		orders = append(orders, mustOrder(t, fmt.Sprintf("wo-%03d", i), time.Duration(30+(i*13)%90)*time.Minute, due, priority))
	}
	resources := []domain.Resource{
		mustResource(t, "m1", 6, 22, "cnc"),
		mustResource(t, "m2", 8, 17, "cnc"),
		mustResource(t, "m3", 0, 24, "cnc"),
	}
	return orders, resources
}

func TestGenerateIsDeterministic(t *testing.T) {
	orders, resources := batch(t, 100)
	horizon := domain.Interval{Start: day, End: day.Add(7 * 24 * time.Hour)}
	for _, strategy := range []domain.Strategy{domain.StrategyGreedy, domain.StrategyHeuristic} {
		first, err := Generate(context.Background(), GenerateInput{ScheduleID: "s", WorkOrders: orders, Resources: resources, Strategy: strategy, Horizon: horizon, DetectedAt: day})
		if err != nil {
			t.Fatalf("Generate(%s) error = %v", strategy, err)
		}
		shuffled := slices.Clone(orders)
		slices.Reverse(shuffled)
		second, err := Generate(context.Background(), GenerateInput{ScheduleID: "s", WorkOrders: shuffled, Resources: resources, Strategy: strategy, Horizon: horizon, DetectedAt: day})
		if err != nil {
			t.Fatalf("Generate(%s) error = %v", strategy, err)
		}
		if !slices.Equal(first.Assignments, second.Assignments) {
			t.Fatalf("%s generation is not deterministic", strategy)
		}
		if len(first.Assignments) != len(orders) {
			t.Fatalf("%s placed %d of %d orders, excluded %#v", strategy, len(first.Assignments), len(orders), first.Excluded)
		}
		assertNoOverlap(t, first.Assignments)
		detected := Detect("s", first.Assignments, day)
		if !slices.Equal(detected, first.Conflicts) {
			t.Fatalf("detect after generate differs: %#v vs %#v", detected, first.Conflicts)
		}
	}
}

func totalTardiness(orders []domain.WorkOrder, assignments []domain.Assignment) time.Duration {
	byID := indexOrders(orders)
	var total time.Duration
	for _, a := range assignments {
		total += byID[a.WorkOrderID].Tardiness(a.End)
	}
	return total
}

func TestHeuristicNeverWorsensTardiness(t *testing.T) {
	orders, resources := batch(t, 60)
	horizon := domain.Interval{Start: day, End: day.Add(7 * 24 * time.Hour)}
	greedy, err := Generate(context.Background(), GenerateInput{WorkOrders: orders, Resources: resources, Horizon: horizon})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	heuristic, err := Generate(context.Background(), GenerateInput{WorkOrders: orders, Resources: resources, Horizon: horizon, Strategy: domain.StrategyHeuristic})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if heuristic.Stats.Iterations > DefaultIterationFactor*len(orders) {
		t.Fatalf("iteration cap exceeded: %d", heuristic.Stats.Iterations)
	}
	if totalTardiness(orders, heuristic.Assignments) > totalTardiness(orders, greedy.Assignments) {
		t.Fatal("heuristic pass increased tardiness")
	}
}

func TestHeuristicSwapReducesCompletionTime(t *testing.T) {
	// Equal keys put the long order first; running the short one first lowers the completion sum.
	long := mustOrder(t, "long", 4*time.Hour, at(13, 0), domain.PriorityNormal)
	short := mustOrder(t, "short", time.Hour, at(13, 0), domain.PriorityNormal)
	resources := []domain.Resource{mustResource(t, "m1", 8, 17, "cnc")}

	greedy, err := Generate(context.Background(), GenerateInput{WorkOrders: []domain.WorkOrder{long, short}, Resources: resources, Horizon: oneDay()})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if greedy.Assignments[0].WorkOrderID != "long" {
		t.Fatalf("expected greedy to keep key order, got %#v", greedy.Assignments)
	}

	res, err := Generate(context.Background(), GenerateInput{
		WorkOrders: []domain.WorkOrder{long, short},
		Resources:  resources,
		Horizon:    oneDay(),
		Strategy:   domain.StrategyHeuristic,
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if res.Assignments[0].WorkOrderID != "short" {
		t.Fatalf("expected short order first after swap, got %#v", res.Assignments)
	}
	if res.Stats.Moves != 1 {
		t.Fatalf("expected one accepted move, got %#v", res.Stats)
	}
}

func TestHeuristicStopsOnCancelledContext(t *testing.T) {
	orders, resources := batch(t, 20)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := Generate(ctx, GenerateInput{WorkOrders: orders, Resources: resources, Strategy: domain.StrategyHeuristic, Horizon: domain.Interval{Start: day, End: day.Add(72 * time.Hour)}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(res.Assignments) == 0 {
		t.Fatal("expected greedy placement to survive cancellation")
	}
}

func confirmedSchedule(t *testing.T, orders []domain.WorkOrder, resources []domain.Resource) domain.Schedule {
	t.Helper()
	res, err := Generate(context.Background(), GenerateInput{ScheduleID: "s1", WorkOrders: orders, Resources: resources, Horizon: oneDay()})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	s := domain.Schedule{
		ID:           "s1",
		LineageID:    "line-1",
		Version:      1,
		Status:       domain.ScheduleStatusDraft,
		HorizonStart: res.Horizon.Start,
		HorizonEnd:   res.Horizon.End,
		Assignments:  res.Assignments,
	}
	for _, o := range orders {
		s.WorkOrderIDs = append(s.WorkOrderIDs, o.ID)
	}
	if err := s.Confirm(day); err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	return s
}

func TestInsertUrgentShiftsLowerPriorityWork(t *testing.T) {
	orders, resources, urgent := threeOrderScenario(t)
	s := confirmedSchedule(t, orders, resources)

	res, err := InsertUrgent(context.Background(), UrgentInput{
		Schedule:      s,
		WorkOrders:    orders,
		Resources:     resources,
		Order:         urgent,
		NewScheduleID: "s2",
		Now:           day,
	})
	if err != nil {
		t.Fatalf("InsertUrgent() error = %v", err)
	}
	c := assignmentFor(t, res.Schedule.Assignments, "C")
	if c.End.After(urgent.DueAt) {
		t.Fatalf("urgent order finishes after due date: %#v", c)
	}
	if !c.Start.Equal(at(8, 0)) {
		t.Fatalf("expected C at 08:00, got %#v", c)
	}
	a := assignmentFor(t, res.Schedule.Assignments, "A")
	b := assignmentFor(t, res.Schedule.Assignments, "B")
	if !a.Start.Equal(at(9, 0)) || !b.Start.Equal(at(11, 0)) {
		t.Fatalf("unexpected cascade A=%#v B=%#v", a, b)
	}
	if len(res.Shifted) != 2 || res.Shifted[0].Delta != time.Hour || res.Shifted[1].Delta != time.Hour {
		t.Fatalf("unexpected shifted list %#v", res.Shifted)
	}
	if res.Schedule.Version != 2 || res.Schedule.ParentID != "s1" || res.Schedule.Status != domain.ScheduleStatusConfirmed {
		t.Fatalf("unexpected version metadata %#v", res.Schedule)
	}
	if !slices.Contains(res.Schedule.WorkOrderIDs, "C") {
		t.Fatalf("expected C in work order ids, got %#v", res.Schedule.WorkOrderIDs)
	}
	if len(res.Conflicts) != 0 {
		t.Fatalf("expected no conflicts, got %#v", res.Conflicts)
	}
	if _, ok := s.AssignmentFor("C"); ok {
		t.Fatal("input schedule was mutated")
	}
	for _, a := range res.Schedule.Assignments {
		if a.Start.Before(at(8, 0)) {
			t.Fatalf("assignment starts before earliest start: %#v", a)
		}
	}
}

func TestInsertUrgentUsesFreeWindowFirst(t *testing.T) {
	orders, _, urgent := threeOrderScenario(t)
	resources := []domain.Resource{
		mustResource(t, "m1", 8, 17, "cnc"),
		mustResource(t, "m2", 8, 17, "cnc"),
		mustResource(t, "m3", 8, 17, "cnc"),
	}
	s := confirmedSchedule(t, orders, resources)
	res, err := InsertUrgent(context.Background(), UrgentInput{Schedule: s, WorkOrders: orders, Resources: resources, Order: urgent, NewScheduleID: "s2", Now: day})
	if err != nil {
		t.Fatalf("InsertUrgent() error = %v", err)
	}
	if res.Displaced || len(res.Shifted) != 0 {
		t.Fatalf("expected displacement-free insertion, got %#v", res.Shifted)
	}
	if c := assignmentFor(t, res.Schedule.Assignments, "C"); c.ResourceID != "m3" || !c.Start.Equal(at(8, 0)) {
		t.Fatalf("expected C on idle m3 at 08:00, got %#v", c)
	}
	assertNoOverlap(t, res.Schedule.Assignments)
}

func TestInsertUrgentFailures(t *testing.T) {
	orders, resources, urgent := threeOrderScenario(t)
	s := confirmedSchedule(t, orders, resources)

	draft := s.Clone()
	draft.Status = domain.ScheduleStatusDraft
	if _, err := InsertUrgent(context.Background(), UrgentInput{Schedule: draft, Order: urgent}); !errors.Is(err, domain.ErrScheduleNotConfirmed) {
		t.Fatalf("expected ErrScheduleNotConfirmed, got %v", err)
	}

	blocker := mustOrder(t, "blocker", 9*time.Hour, at(17, 0), domain.PriorityUrgent)
	full := confirmedSchedule(t, []domain.WorkOrder{blocker}, resources)
	_, err := InsertUrgent(context.Background(), UrgentInput{Schedule: full, WorkOrders: []domain.WorkOrder{blocker}, Resources: resources, Order: urgent, NewScheduleID: "s2", Now: day})
	if !errors.Is(err, domain.ErrInsertionInfeasible) {
		t.Fatalf("expected ErrInsertionInfeasible, got %v", err)
	}
	if len(full.Assignments) != 1 || !full.Assignments[0].Start.Equal(at(8, 0)) {
		t.Fatalf("input schedule changed: %#v", full.Assignments)
	}
}

func TestAdjustDraftKeepsConflictsAsData(t *testing.T) {
	orders, resources, _ := threeOrderScenario(t)
	s := confirmedSchedule(t, orders, resources)
	s.Status = domain.ScheduleStatusDraft
	s.ConfirmedAt = nil

	res, err := Adjust(context.Background(), AdjustInput{
		Schedule:    s,
		WorkOrders:  orders,
		Resources:   resources,
		WorkOrderID: "B",
		Start:       at(9, 0),
		Now:         day,
	})
	if err != nil {
		t.Fatalf("Adjust() error = %v", err)
	}
	if res.NewVersion || res.Schedule.ID != "s1" {
		t.Fatalf("expected in-place draft change, got %#v", res.Schedule)
	}
	if len(res.Conflicts) != 1 {
		t.Fatalf("expected one conflict, got %#v", res.Conflicts)
	}
}

func TestAdjustConfirmedWritesNextVersion(t *testing.T) {
	orders, resources, _ := threeOrderScenario(t)
	s := confirmedSchedule(t, orders, resources)

	res, err := Adjust(context.Background(), AdjustInput{Schedule: s, WorkOrders: orders, Resources: resources, WorkOrderID: "B", Start: at(13, 0), NewScheduleID: "s2", Now: day})
	if err != nil {
		t.Fatalf("Adjust() error = %v", err)
	}
	if !res.NewVersion || res.Schedule.Version != 2 || res.Schedule.ParentID != "s1" {
		t.Fatalf("expected next version, got %#v", res.Schedule)
	}
	if !res.After.Start.Equal(at(13, 0)) || !res.Before.Start.Equal(at(10, 0)) {
		t.Fatalf("unexpected before/after %#v %#v", res.Before, res.After)
	}

	_, err = Adjust(context.Background(), AdjustInput{Schedule: s, WorkOrders: orders, Resources: resources, WorkOrderID: "B", Start: at(9, 0), NewScheduleID: "s3", Now: day})
	if !errors.Is(err, domain.ErrConflictsUnresolved) {
		t.Fatalf("expected ErrConflictsUnresolved, got %v", err)
	}
}

func TestAdjustValidation(t *testing.T) {
	orders, resources, _ := threeOrderScenario(t)
	s := confirmedSchedule(t, orders, resources)
	tests := []struct {
		name string
		in   AdjustInput
		want error
	}{
		{name: "unknown assignment", in: AdjustInput{WorkOrderID: "zzz"}, want: domain.ErrAssignmentNotFound},
		{name: "unknown resource", in: AdjustInput{WorkOrderID: "A", ResourceID: "m9"}, want: domain.ErrResourceNotFound},
		{name: "before earliest start", in: AdjustInput{WorkOrderID: "A", Start: at(7, 0)}, want: domain.ErrInfeasibleWorkOrder},
		{name: "outside shift", in: AdjustInput{WorkOrderID: "B", Start: at(15, 0)}, want: domain.ErrOutsideCalendar},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := tc.in
			in.Schedule = s
			in.WorkOrders = orders
			in.Resources = resources
			in.NewScheduleID = "s2"
			if _, err := Adjust(context.Background(), in); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestEvaluateAndProject(t *testing.T) {
	orders, resources, _ := threeOrderScenario(t)
	s := confirmedSchedule(t, orders, resources)

	m := Evaluate(s, orders, NewCalendar(resources), DefaultWeights)
	if m.Makespan != 5*time.Hour {
		t.Fatalf("expected 5h makespan, got %s", m.Makespan)
	}
	if m.TotalTardiness != time.Hour || m.LateCount != 1 {
		t.Fatalf("unexpected tardiness %s late=%d", m.TotalTardiness, m.LateCount)
	}
	if len(m.Resources) != 1 || m.Resources[0].Utilization != 100 {
		t.Fatalf("unexpected utilization %#v", m.Resources)
	}
	// 0.4*100 + 0.4*80 + 0.2*100
	if m.QualityScore != 92 {
		t.Fatalf("expected quality score 92, got %v", m.QualityScore)
	}

	bars := Project(s, orders)
	if len(bars) != 2 || bars[0].WorkOrderID != "A" || bars[1].WorkOrderID != "B" {
		t.Fatalf("unexpected bars %#v", bars)
	}
	if bars[0].Late || !bars[1].Late {
		t.Fatalf("unexpected lateness flags %#v", bars)
	}

	empty := Evaluate(domain.Schedule{}, nil, nil, DefaultWeights)
	if empty.QualityScore != 0 || empty.Makespan != 0 {
		t.Fatalf("expected zero metrics, got %#v", empty)
	}
}

func TestDiff(t *testing.T) {
	base := []domain.Assignment{
		{WorkOrderID: "a", ResourceID: "m1", Start: at(8, 0), End: at(9, 0)},
		{WorkOrderID: "b", ResourceID: "m1", Start: at(9, 0), End: at(10, 0)},
		{WorkOrderID: "c", ResourceID: "m1", Start: at(10, 0), End: at(11, 0)},
	}
	alt := []domain.Assignment{
		{WorkOrderID: "a", ResourceID: "m1", Start: at(8, 0), End: at(9, 0)},
		{WorkOrderID: "b", ResourceID: "m2", Start: at(9, 30), End: at(10, 30)},
		{WorkOrderID: "d", ResourceID: "m1", Start: at(10, 0), End: at(11, 0)},
	}
	got := Diff(base, alt)
	kinds := make([]DiffKind, 0, len(got))
	for _, d := range got {
		kinds = append(kinds, d.Kind)
	}
	if !slices.Equal(kinds, []DiffKind{DiffMoved, DiffRemoved, DiffAdded}) {
		t.Fatalf("unexpected diff kinds %#v", got)
	}
	if got[0].StartDelta != 30*time.Minute {
		t.Fatalf("unexpected start delta %s", got[0].StartDelta)
	}
}
