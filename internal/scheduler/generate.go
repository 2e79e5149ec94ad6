package scheduler

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hylla/takt/internal/domain"
)

// DefaultHorizon is the planning range used when the caller does not provide one.
const DefaultHorizon = 14 * 24 * time.Hour

// GenerateInput holds the immutable snapshot one generation works on.
type GenerateInput struct {
	ScheduleID      string
	WorkOrders      []domain.WorkOrder
	Resources       []domain.Resource
	Strategy        domain.Strategy
	Horizon         domain.Interval
	IterationFactor int
	DetectedAt      time.Time
}

// GenerateResult is the draft placement plus everything surfaced for review.
type GenerateResult struct {
	Strategy    domain.Strategy
	Horizon     domain.Interval
	Assignments []domain.Assignment
	Excluded    []domain.Exclusion
	Conflicts   []domain.ResourceConflict
	Stats       ImproveStats
}

// Generate assigns work orders to resources. Orders that violate a hard constraint are
// excluded and reported; conflicts found afterwards are returned, never raised.
func Generate(ctx context.Context, in GenerateInput) (GenerateResult, error) {
	strategy, err := StrategyFor(in.Strategy)
	if err != nil {
		return GenerateResult{}, err
	}
	if err := validateUniqueOrders(in.WorkOrders); err != nil {
		return GenerateResult{}, err
	}

	horizon := ResolveHorizon(in.Horizon, in.WorkOrders)
	cal := NewCalendar(in.Resources)
	orders := SortWorkOrders(in.WorkOrders)
	p, err := newPlan(cal, horizon, orders)
	if err != nil {
		return GenerateResult{}, err
	}

	excluded := placeGreedy(p, orders)

	factor := in.IterationFactor
	if factor <= 0 {
		factor = DefaultIterationFactor
	}
	stats, improveErr := strategy.Improve(ctx, p, factor*len(orders))

	assignments := p.assignments()
	result := GenerateResult{
		Strategy:    strategy.Name(),
		Horizon:     horizon,
		Assignments: assignments,
		Excluded:    excluded,
		Conflicts:   Detect(in.ScheduleID, assignments, in.DetectedAt),
		Stats:       stats,
	}
	if improveErr != nil {
		return result, improveErr
	}
	return result, nil
}

// ResolveHorizon fills a zero horizon from the earliest work order start.
func ResolveHorizon(h domain.Interval, orders []domain.WorkOrder) domain.Interval {
	if !h.Start.IsZero() && h.End.After(h.Start) {
		return domain.Interval{Start: h.Start.UTC(), End: h.End.UTC()}
	}
	start := h.Start.UTC()
	if start.IsZero() {
		for i, o := range orders {
			if i == 0 || o.EarliestStart.Before(start) {
				start = o.EarliestStart.UTC()
			}
		}
	}
	if start.IsZero() {
		start = time.Unix(0, 0).UTC()
	}
	return domain.Interval{Start: start, End: start.Add(DefaultHorizon)}
}

// SortWorkOrders returns a copy ordered by due date, then priority (urgent first), then id.
func SortWorkOrders(in []domain.WorkOrder) []domain.WorkOrder {
	out := slices.Clone(in)
	slices.SortFunc(out, func(a, b domain.WorkOrder) int {
		if c := a.DueAt.Compare(b.DueAt); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Priority.Rank(), a.Priority.Rank()); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// placeGreedy walks orders in key order, always taking the first order whose in-batch
// predecessors are resolved.
func placeGreedy(p *plan, orders []domain.WorkOrder) []domain.Exclusion {
	excluded := []domain.Exclusion{}
	excludedIDs := map[string]struct{}{}
	pending := slices.Clone(orders)

	for len(pending) > 0 {
		idx := -1
		for i, o := range pending {
			if predecessorsResolved(p, o, excludedIDs) {
				idx = i
				break
			}
		}
		if idx < 0 {
			for _, o := range pending {
				excluded = append(excluded, domain.Exclusion{WorkOrderID: o.ID, Reason: "predecessor cycle"})
				excludedIDs[o.ID] = struct{}{}
			}
			break
		}

		order := pending[idx]
		pending = slices.Delete(pending, idx, idx+1)
		if reason := placeOne(p, order, excludedIDs); reason != "" {
			excluded = append(excluded, domain.Exclusion{WorkOrderID: order.ID, Reason: reason})
			excludedIDs[order.ID] = struct{}{}
		}
	}
	return excluded
}

func predecessorsResolved(p *plan, o domain.WorkOrder, excluded map[string]struct{}) bool {
	for _, pred := range o.Predecessors {
		if _, inBatch := p.orders[pred]; !inBatch {
			continue
		}
		if _, ok := p.placed[pred]; ok {
			continue
		}
		if _, ok := excluded[pred]; ok {
			continue
		}
		return false
	}
	return true
}

// placeOne assigns one order and returns an exclusion reason when it cannot be placed.
func placeOne(p *plan, order domain.WorkOrder, excluded map[string]struct{}) string {
	for _, pred := range order.Predecessors {
		if _, ok := excluded[pred]; ok {
			return fmt.Sprintf("predecessor %s excluded", pred)
		}
	}
	ready := p.readyAt(order)
	if ready.Add(order.Duration).After(order.DueAt) {
		return "cannot finish by due date"
	}
	eligible := p.calendar.Eligible(order.Capability)
	if len(eligible) == 0 {
		return fmt.Sprintf("no resource with capability %q", order.Capability)
	}

	var (
		best      domain.Assignment
		found     bool
		bestFinal time.Time
	)
	for _, r := range eligible {
		start, ok := p.timelines[r.ID].earliestFit(ready, order.Duration)
		if !ok {
			continue
		}
		end := start.Add(order.Duration)
		candidate := domain.Assignment{WorkOrderID: order.ID, ResourceID: r.ID, Start: start, End: end}
		if !end.After(order.DueAt) {
			best, found = candidate, true
			break
		}
		if !found || end.Before(bestFinal) {
			best, found, bestFinal = candidate, true, end
		}
	}
	if !found {
		return "no free window in horizon"
	}
	p.place(best)
	return ""
}

func validateUniqueOrders(orders []domain.WorkOrder) error {
	seen := make(map[string]struct{}, len(orders))
	for _, o := range orders {
		if _, ok := seen[o.ID]; ok {
			return fmt.Errorf("%w: duplicate work order %s", domain.ErrInvalidID, o.ID)
		}
		seen[o.ID] = struct{}{}
	}
	return nil
}

// ExclusionError wraps one exclusion as an ErrInfeasibleWorkOrder error.
func ExclusionError(e domain.Exclusion) error {
	return fmt.Errorf("%w: %s: %s", domain.ErrInfeasibleWorkOrder, e.WorkOrderID, e.Reason)
}
