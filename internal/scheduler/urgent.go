package scheduler

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/hylla/takt/internal/domain"
)

// UrgentInput describes one urgent insertion into a confirmed schedule.
type UrgentInput struct {
	Schedule      domain.Schedule
	WorkOrders    []domain.WorkOrder
	Resources     []domain.Resource
	Order         domain.WorkOrder
	NewScheduleID string
	Now           time.Time
}

// UrgentResult carries the new schedule version and everything the insertion moved.
type UrgentResult struct {
	Schedule  domain.Schedule
	Conflicts []domain.ResourceConflict
	Shifted   []domain.ShiftedAssignment
	Displaced bool
}

// insertion is one evaluated candidate for the displacement phase.
type insertion struct {
	resourceIdx int
	slot        domain.Assignment
	moves       []domain.ShiftedAssignment
	totalShift  time.Duration
	firstRank   int
	firstDue    time.Time
}

// InsertUrgent places an urgent order into a confirmed schedule, shifting later
// lower-priority work on one resource when no free window meets the due date.
// The input schedule is never modified.
func InsertUrgent(ctx context.Context, in UrgentInput) (UrgentResult, error) {
	if in.Schedule.Status != domain.ScheduleStatusConfirmed {
		return UrgentResult{}, fmt.Errorf("%w: schedule %s is %s", domain.ErrScheduleNotConfirmed, in.Schedule.ID, in.Schedule.Status)
	}
	if err := ctx.Err(); err != nil {
		return UrgentResult{}, err
	}
	order := in.Order
	if _, exists := in.Schedule.AssignmentFor(order.ID); exists {
		return UrgentResult{}, fmt.Errorf("%w: work order %s already scheduled", domain.ErrInvalidID, order.ID)
	}

	cal := NewCalendar(in.Resources)
	orders := append(slices.Clone(in.WorkOrders), order)
	p, err := newPlan(cal, in.Schedule.Horizon(), orders)
	if err != nil {
		return UrgentResult{}, err
	}
	p.load(in.Schedule.Assignments)

	ready := p.readyAt(order)
	if ready.Add(order.Duration).After(order.DueAt) {
		return UrgentResult{}, fmt.Errorf("%w: %s cannot finish by %s", domain.ErrInsertionInfeasible, order.ID, order.DueAt.Format(time.RFC3339))
	}
	eligible := cal.Eligible(order.Capability)
	if len(eligible) == 0 {
		return UrgentResult{}, fmt.Errorf("%w: no resource with capability %q", domain.ErrInsertionInfeasible, order.Capability)
	}

	if slot, ok := freeSlot(p, eligible, order, ready); ok {
		p.place(slot)
		return finishInsertion(p, in, nil, false)
	}

	best, ok := bestDisplacement(p, eligible, order, ready)
	if !ok {
		return UrgentResult{}, fmt.Errorf("%w: no window on %d eligible resources can host %s by its due date", domain.ErrInsertionInfeasible, len(eligible), order.ID)
	}
	for _, mv := range best.moves {
		moved, _ := p.unplace(mv.WorkOrderID)
		moved.Start = mv.ToStart
		moved.End = mv.ToStart.Add(moved.End.Sub(mv.FromStart))
		p.place(moved)
	}
	p.place(best.slot)
	return finishInsertion(p, in, best.moves, true)
}

// freeSlot returns the earliest-completing displacement-free slot that meets the due date.
func freeSlot(p *plan, eligible []domain.Resource, order domain.WorkOrder, ready time.Time) (domain.Assignment, bool) {
	var (
		best  domain.Assignment
		found bool
	)
	for _, r := range eligible {
		start, ok := p.timelines[r.ID].earliestFit(ready, order.Duration)
		if !ok {
			continue
		}
		end := start.Add(order.Duration)
		if end.After(order.DueAt) {
			continue
		}
		if !found || end.Before(best.End) {
			best = domain.Assignment{WorkOrderID: order.ID, ResourceID: r.ID, Start: start, End: end}
			found = true
		}
	}
	return best, found
}

// bestDisplacement evaluates every candidate start on every eligible resource and keeps the
// one with the smallest total downstream shift.
func bestDisplacement(p *plan, eligible []domain.Resource, order domain.WorkOrder, ready time.Time) (insertion, bool) {
	var (
		best  insertion
		found bool
	)
	for idx, r := range eligible {
		tl := p.timelines[r.ID]
		for _, start := range candidateStarts(tl, ready) {
			cand, ok := evaluateInsertion(p, tl, order, start)
			if !ok {
				continue
			}
			cand.resourceIdx = idx
			if !found || compareInsertions(cand, best) < 0 {
				best, found = cand, true
			}
		}
	}
	return best, found
}

func candidateStarts(tl *timeline, ready time.Time) []time.Time {
	starts := []time.Time{ready}
	for _, a := range tl.busy {
		if !a.Start.Before(ready) {
			starts = append(starts, a.Start)
		}
	}
	for _, w := range tl.windows {
		if !w.Start.Before(ready) {
			starts = append(starts, w.Start)
		}
	}
	slices.SortFunc(starts, func(a, b time.Time) int { return a.Compare(b) })
	return slices.CompactFunc(starts, func(a, b time.Time) bool { return a.Equal(b) })
}

// evaluateInsertion cascades every assignment overlapping or following slot to the
// earliest window-fitting start after the previous one ends.
func evaluateInsertion(p *plan, tl *timeline, order domain.WorkOrder, start time.Time) (insertion, bool) {
	slot := domain.Assignment{WorkOrderID: order.ID, ResourceID: tl.resourceID, Start: start, End: start.Add(order.Duration)}
	if slot.End.After(order.DueAt) || !tl.insideWindow(slot.Interval()) {
		return insertion{}, false
	}

	cand := insertion{slot: slot}
	newEnds := map[string]time.Time{order.ID: slot.End}
	newStarts := map[string]time.Time{}
	cursor := slot.End
	for _, a := range tl.busy {
		if !a.End.After(slot.Start) {
			continue
		}
		if !a.Start.Before(cursor) {
			break
		}
		owner, known := p.orders[a.WorkOrderID]
		if known && owner.Urgent() {
			return insertion{}, false
		}
		duration := a.End.Sub(a.Start)
		to, ok := tl.windowFit(laterOf(cursor, a.Start), duration)
		if !ok {
			return insertion{}, false
		}
		if known && to.Before(owner.EarliestStart) {
			return insertion{}, false
		}
		if len(cand.moves) == 0 {
			cand.firstRank = owner.Priority.Rank()
			cand.firstDue = owner.DueAt
		}
		cand.moves = append(cand.moves, domain.ShiftedAssignment{
			WorkOrderID: a.WorkOrderID,
			ResourceID:  a.ResourceID,
			FromStart:   a.Start,
			ToStart:     to,
			Delta:       to.Sub(a.Start),
		})
		cand.totalShift += to.Sub(a.Start)
		newStarts[a.WorkOrderID] = to
		newEnds[a.WorkOrderID] = to.Add(duration)
		cursor = to.Add(duration)
	}

	for id, end := range newEnds {
		for _, succ := range p.successors[id] {
			succStart, ok := newStarts[succ]
			if !ok {
				placed, isPlaced := p.placed[succ]
				if !isPlaced {
					continue
				}
				succStart = placed.Start
			}
			if succStart.Before(end) {
				return insertion{}, false
			}
		}
	}
	return cand, true
}

// compareInsertions prefers the smallest total shift, then displacing lower priority,
// then later due dates, then resource scan order, then earlier starts.
func compareInsertions(a, b insertion) int {
	if c := cmp.Compare(a.totalShift, b.totalShift); c != 0 {
		return c
	}
	if c := cmp.Compare(a.firstRank, b.firstRank); c != 0 {
		return c
	}
	if c := b.firstDue.Compare(a.firstDue); c != 0 {
		return c
	}
	if c := cmp.Compare(a.resourceIdx, b.resourceIdx); c != 0 {
		return c
	}
	return a.slot.Start.Compare(b.slot.Start)
}

// finishInsertion validates the earliest-start invariant and builds the next version.
func finishInsertion(p *plan, in UrgentInput, moves []domain.ShiftedAssignment, displaced bool) (UrgentResult, error) {
	assignments := p.assignments()
	for _, a := range assignments {
		o, ok := p.orders[a.WorkOrderID]
		if ok && a.Start.Before(o.EarliestStart) {
			return UrgentResult{}, fmt.Errorf("%w: %s would start before its earliest start", domain.ErrInsertionInfeasible, a.WorkOrderID)
		}
	}

	next := in.Schedule.NextVersion(in.NewScheduleID, assignments, in.Now)
	next.WorkOrderIDs = append(next.WorkOrderIDs, in.Order.ID)
	slices.Sort(next.WorkOrderIDs)
	next.WorkOrderIDs = slices.Compact(next.WorkOrderIDs)

	shifted := slices.Clone(moves)
	if shifted == nil {
		shifted = []domain.ShiftedAssignment{}
	}
	return UrgentResult{
		Schedule:  next,
		Conflicts: Detect(next.ID, next.Assignments, in.Now),
		Shifted:   shifted,
		Displaced: displaced,
	}, nil
}
