package scheduler

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/hylla/takt/internal/domain"
)

// DefaultIterationFactor caps heuristic iterations at factor × order count.
const DefaultIterationFactor = 2

// ImproveStats summarizes one improvement pass.
type ImproveStats struct {
	Iterations int
	Moves      int
}

// Strategy post-processes the greedy placement of a plan.
type Strategy interface {
	Name() domain.Strategy
	Improve(ctx context.Context, p *plan, iterationCap int) (ImproveStats, error)
}

// StrategyFor resolves a strategy name to its implementation once per generation.
func StrategyFor(name domain.Strategy) (Strategy, error) {
	switch name {
	case domain.StrategyGreedy, "":
		return greedyStrategy{}, nil
	case domain.StrategyHeuristic:
		return heuristicStrategy{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidStrategy, name)
	}
}

// greedyStrategy keeps the greedy placement untouched.
type greedyStrategy struct{}

func (greedyStrategy) Name() domain.Strategy { return domain.StrategyGreedy }

func (greedyStrategy) Improve(context.Context, *plan, int) (ImproveStats, error) {
	return ImproveStats{}, nil
}

// heuristicStrategy runs first-improvement hill climbing over adjacent same-resource pairs.
type heuristicStrategy struct{}

func (heuristicStrategy) Name() domain.Strategy { return domain.StrategyHeuristic }

func (heuristicStrategy) Improve(ctx context.Context, p *plan, iterationCap int) (ImproveStats, error) {
	stats := ImproveStats{}
	for stats.Iterations < iterationCap {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("heuristic pass interrupted after %d iterations: %w", stats.Iterations, err)
		}
		stats.Iterations++
		if !p.improveOnce() {
			break
		}
		stats.Moves++
	}
	return stats, nil
}

// improveOnce applies the first accepted move in resource scan order.
func (p *plan) improveOnce() bool {
	for _, resourceID := range p.calendar.order {
		tl := p.timelines[resourceID]
		for i := 0; i+1 < len(tl.busy); i++ {
			if p.trySwap(tl, tl.busy[i], tl.busy[i+1]) {
				return true
			}
		}
	}
	for _, resourceID := range p.calendar.order {
		tl := p.timelines[resourceID]
		for i := 0; i < len(tl.busy); i++ {
			if p.tryShiftLeft(tl, tl.busy[i]) {
				return true
			}
		}
	}
	return false
}

// trySwap lets b run before a. The move is kept when total tardiness drops, or stays equal
// while the summed completion time drops; otherwise the pair is restored.
func (p *plan) trySwap(tl *timeline, a, b domain.Assignment) bool {
	orderA, okA := p.orders[a.WorkOrderID]
	orderB, okB := p.orders[b.WorkOrderID]
	if !okA || !okB {
		return false
	}
	if slices.Contains(orderB.Predecessors, orderA.ID) {
		return false
	}

	p.unplace(a.WorkOrderID)
	p.unplace(b.WorkOrderID)
	restore := func() {
		p.place(a)
		p.place(b)
	}

	startB, ok := tl.earliestFit(laterOf(p.readyAt(orderB), a.Start), orderB.Duration)
	if !ok {
		restore()
		return false
	}
	newB := domain.Assignment{WorkOrderID: b.WorkOrderID, ResourceID: tl.resourceID, Start: startB, End: startB.Add(orderB.Duration)}
	p.place(newB)

	startA, ok := tl.earliestFit(laterOf(p.readyAt(orderA), newB.End), orderA.Duration)
	if !ok {
		p.unplace(newB.WorkOrderID)
		restore()
		return false
	}
	newA := domain.Assignment{WorkOrderID: a.WorkOrderID, ResourceID: tl.resourceID, Start: startA, End: startA.Add(orderA.Duration)}
	p.place(newA)

	if !p.successorsClear(newA.WorkOrderID, newA.End) || !p.successorsClear(newB.WorkOrderID, newB.End) {
		p.unplace(newA.WorkOrderID)
		p.unplace(newB.WorkOrderID)
		restore()
		return false
	}

	before := p.tardiness(a) + p.tardiness(b)
	after := p.tardiness(newA) + p.tardiness(newB)
	beforeCompletion := p.completionSum(a, b)
	afterCompletion := p.completionSum(newA, newB)
	if after < before || (after == before && afterCompletion < beforeCompletion) {
		return true
	}
	p.unplace(newA.WorkOrderID)
	p.unplace(newB.WorkOrderID)
	restore()
	return false
}

// tryShiftLeft moves one assignment into an earlier gap on the same resource.
func (p *plan) tryShiftLeft(tl *timeline, a domain.Assignment) bool {
	order, ok := p.orders[a.WorkOrderID]
	if !ok {
		return false
	}
	start, ok := tl.earliestFit(p.readyAt(order), order.Duration, a.WorkOrderID)
	if !ok || !start.Before(a.Start) {
		return false
	}
	p.unplace(a.WorkOrderID)
	p.place(domain.Assignment{WorkOrderID: a.WorkOrderID, ResourceID: tl.resourceID, Start: start, End: start.Add(order.Duration)})
	return true
}

// completionSum adds completion offsets from the horizon start.
func (p *plan) completionSum(as ...domain.Assignment) time.Duration {
	var total time.Duration
	for _, a := range as {
		total += a.End.Sub(p.horizon.Start)
	}
	return total
}
