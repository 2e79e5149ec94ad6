package scheduler

import (
	"slices"
	"strings"
	"time"

	"github.com/hylla/takt/internal/domain"
)

// timeline holds one resource's working windows and its current assignments sorted by start.
type timeline struct {
	resourceID string
	windows    []domain.Interval
	busy       []domain.Assignment
}

// earliestFit finds the first start >= ready where duration fits inside one window without
// touching any busy slot other than those owned by the ignored work orders.
func (t *timeline) earliestFit(ready time.Time, duration time.Duration, ignore ...string) (time.Time, bool) {
	for _, w := range t.windows {
		if !w.End.After(ready) {
			continue
		}
		start := laterOf(ready, w.Start)
		for {
			end := start.Add(duration)
			if end.After(w.End) {
				break
			}
			blocker, ok := t.firstOverlap(start, end, ignore)
			if !ok {
				return start, true
			}
			start = blocker.End
		}
	}
	return time.Time{}, false
}

// windowFit finds the first start >= ready where duration fits inside one window, ignoring busy slots.
func (t *timeline) windowFit(ready time.Time, duration time.Duration) (time.Time, bool) {
	for _, w := range t.windows {
		if !w.End.After(ready) {
			continue
		}
		start := laterOf(ready, w.Start)
		if !start.Add(duration).After(w.End) {
			return start, true
		}
	}
	return time.Time{}, false
}

// insideWindow reports whether slot lies fully inside one working window.
func (t *timeline) insideWindow(slot domain.Interval) bool {
	for _, w := range t.windows {
		if w.Contains(slot) {
			return true
		}
	}
	return false
}

func (t *timeline) firstOverlap(start, end time.Time, ignore []string) (domain.Assignment, bool) {
	slot := domain.Interval{Start: start, End: end}
	for _, b := range t.busy {
		if !b.Start.Before(end) {
			break
		}
		if slices.Contains(ignore, b.WorkOrderID) {
			continue
		}
		if b.Interval().Overlaps(slot) {
			return b, true
		}
	}
	return domain.Assignment{}, false
}

func (t *timeline) insert(a domain.Assignment) {
	idx, _ := slices.BinarySearchFunc(t.busy, a, compareByStart)
	t.busy = slices.Insert(t.busy, idx, a)
}

func (t *timeline) remove(workOrderID string) (domain.Assignment, bool) {
	for i, b := range t.busy {
		if b.WorkOrderID == workOrderID {
			t.busy = slices.Delete(t.busy, i, i+1)
			return b, true
		}
	}
	return domain.Assignment{}, false
}

func compareByStart(a, b domain.Assignment) int {
	if c := a.Start.Compare(b.Start); c != 0 {
		return c
	}
	if c := a.End.Compare(b.End); c != 0 {
		return c
	}
	return strings.Compare(a.WorkOrderID, b.WorkOrderID)
}

// plan is the mutable working state shared by the generator, its strategies and the urgent handler.
type plan struct {
	horizon    domain.Interval
	calendar   *Calendar
	timelines  map[string]*timeline
	orders     map[string]domain.WorkOrder
	placed     map[string]domain.Assignment
	successors map[string][]string
}

func newPlan(cal *Calendar, horizon domain.Interval, orders []domain.WorkOrder) (*plan, error) {
	p := &plan{
		horizon:    horizon,
		calendar:   cal,
		timelines:  make(map[string]*timeline, len(cal.order)),
		orders:     make(map[string]domain.WorkOrder, len(orders)),
		placed:     map[string]domain.Assignment{},
		successors: map[string][]string{},
	}
	for _, id := range cal.order {
		windows, err := cal.AvailableWindows(id, horizon)
		if err != nil {
			return nil, err
		}
		p.timelines[id] = &timeline{resourceID: id, windows: windows}
	}
	for _, o := range orders {
		p.orders[o.ID] = o
	}
	for _, o := range orders {
		for _, pred := range o.Predecessors {
			p.successors[pred] = append(p.successors[pred], o.ID)
		}
	}
	for pred := range p.successors {
		slices.Sort(p.successors[pred])
	}
	return p, nil
}

// load places existing assignments without any feasibility checks.
func (p *plan) load(assignments []domain.Assignment) {
	for _, a := range assignments {
		p.placed[a.WorkOrderID] = a
		if tl, ok := p.timelines[a.ResourceID]; ok {
			tl.insert(a)
		}
	}
}

func (p *plan) place(a domain.Assignment) {
	p.placed[a.WorkOrderID] = a
	p.timelines[a.ResourceID].insert(a)
}

func (p *plan) unplace(workOrderID string) (domain.Assignment, bool) {
	a, ok := p.placed[workOrderID]
	if !ok {
		return domain.Assignment{}, false
	}
	delete(p.placed, workOrderID)
	if tl, ok := p.timelines[a.ResourceID]; ok {
		tl.remove(workOrderID)
	}
	return a, true
}

// readyAt returns the earliest instant an order may start given its own constraint,
// the horizon and the current end of every placed predecessor.
func (p *plan) readyAt(o domain.WorkOrder) time.Time {
	ready := laterOf(o.EarliestStart, p.horizon.Start)
	for _, pred := range o.Predecessors {
		if a, ok := p.placed[pred]; ok {
			ready = laterOf(ready, a.End)
		}
	}
	return ready
}

// successorsClear reports whether every placed successor of id starts at or after end.
func (p *plan) successorsClear(id string, end time.Time) bool {
	for _, succ := range p.successors[id] {
		if a, ok := p.placed[succ]; ok && a.Start.Before(end) {
			return false
		}
	}
	return true
}

func (p *plan) tardiness(a domain.Assignment) time.Duration {
	o, ok := p.orders[a.WorkOrderID]
	if !ok {
		return 0
	}
	return o.Tardiness(a.End)
}

// assignments returns the placed slots in canonical order.
func (p *plan) assignments() []domain.Assignment {
	out := make([]domain.Assignment, 0, len(p.placed))
	for _, a := range p.placed {
		out = append(out, a)
	}
	return domain.SequenceAssignments(out)
}

func laterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
