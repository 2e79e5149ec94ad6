package domain

import (
	"slices"
	"strings"
	"time"
)

// ScheduleStatus describes where a schedule version sits in its lifecycle.
type ScheduleStatus string

const (
	ScheduleStatusDraft      ScheduleStatus = "draft"
	ScheduleStatusConfirmed  ScheduleStatus = "confirmed"
	ScheduleStatusSuperseded ScheduleStatus = "superseded"
)

// Strategy selects how the generator orders and improves assignments.
type Strategy string

const (
	StrategyGreedy    Strategy = "greedy"
	StrategyHeuristic Strategy = "heuristic"
)

// ParseStrategy normalizes a strategy name.
func ParseStrategy(raw string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(raw))) {
	case StrategyGreedy:
		return StrategyGreedy, nil
	case StrategyHeuristic:
		return StrategyHeuristic, nil
	default:
		return "", ErrInvalidStrategy
	}
}

// Assignment places one work order on one resource for one time slot.
type Assignment struct {
	WorkOrderID string
	ResourceID  string
	Start       time.Time
	End         time.Time
	Sequence    int
}

// Interval returns the slot as an interval.
func (a Assignment) Interval() Interval {
	return Interval{Start: a.Start, End: a.End}
}

// Exclusion reports a work order the generator could not place.
type Exclusion struct {
	WorkOrderID string
	Reason      string
}

// Schedule is one immutable-once-confirmed version of a production plan.
type Schedule struct {
	ID           string
	LineageID    string
	Name         string
	Version      int
	Status       ScheduleStatus
	Strategy     Strategy
	ParentID     string
	HorizonStart time.Time
	HorizonEnd   time.Time
	WorkOrderIDs []string
	ResourceIDs  []string
	Assignments  []Assignment
	Excluded     []Exclusion
	CreatedAt    time.Time
	ConfirmedAt  *time.Time
	SupersededAt *time.Time
}

// Horizon returns the planning range.
func (s Schedule) Horizon() Interval {
	return Interval{Start: s.HorizonStart, End: s.HorizonEnd}
}

// Confirm moves a draft to confirmed.
func (s *Schedule) Confirm(now time.Time) error {
	if s.Status != ScheduleStatusDraft {
		return ErrInvalidTransition
	}
	ts := now.UTC()
	s.Status = ScheduleStatusConfirmed
	s.ConfirmedAt = &ts
	return nil
}

// Supersede marks a confirmed version as replaced by a newer one.
func (s *Schedule) Supersede(now time.Time) error {
	if s.Status != ScheduleStatusConfirmed {
		return ErrScheduleNotConfirmed
	}
	ts := now.UTC()
	s.Status = ScheduleStatusSuperseded
	s.SupersededAt = &ts
	return nil
}

// NextVersion derives version N+1 carrying the given assignments. The receiver is not modified.
func (s Schedule) NextVersion(id string, assignments []Assignment, now time.Time) Schedule {
	ts := now.UTC()
	next := s.Clone()
	next.ID = id
	next.Version = s.Version + 1
	next.Status = ScheduleStatusConfirmed
	next.ParentID = s.ID
	next.Assignments = SequenceAssignments(assignments)
	next.CreatedAt = ts
	next.ConfirmedAt = &ts
	next.SupersededAt = nil
	return next
}

// Clone deep-copies slices so callers can mutate the copy freely.
func (s Schedule) Clone() Schedule {
	out := s
	out.WorkOrderIDs = slices.Clone(s.WorkOrderIDs)
	out.ResourceIDs = slices.Clone(s.ResourceIDs)
	out.Assignments = slices.Clone(s.Assignments)
	out.Excluded = slices.Clone(s.Excluded)
	if s.ConfirmedAt != nil {
		ts := *s.ConfirmedAt
		out.ConfirmedAt = &ts
	}
	if s.SupersededAt != nil {
		ts := *s.SupersededAt
		out.SupersededAt = &ts
	}
	return out
}

// AssignmentFor returns the assignment of one work order.
func (s Schedule) AssignmentFor(workOrderID string) (Assignment, bool) {
	for _, a := range s.Assignments {
		if a.WorkOrderID == workOrderID {
			return a, true
		}
	}
	return Assignment{}, false
}

// CompareAssignments orders by resource, start, then work order id.
func CompareAssignments(a, b Assignment) int {
	if c := strings.Compare(a.ResourceID, b.ResourceID); c != 0 {
		return c
	}
	if c := a.Start.Compare(b.Start); c != 0 {
		return c
	}
	return strings.Compare(a.WorkOrderID, b.WorkOrderID)
}

// SequenceAssignments sorts a copy canonically and renumbers Sequence per resource from zero.
func SequenceAssignments(in []Assignment) []Assignment {
	out := slices.Clone(in)
	slices.SortFunc(out, CompareAssignments)
	seq := 0
	for i := range out {
		if i > 0 && out[i].ResourceID != out[i-1].ResourceID {
			seq = 0
		}
		out[i].Sequence = seq
		seq++
	}
	return out
}
