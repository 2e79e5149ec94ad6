package domain

import (
	"slices"
	"strings"
	"time"
)

// Priority is the tier a work order is scheduled with.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityUrgent Priority = "urgent"
)

var validPriorities = []Priority{PriorityNormal, PriorityUrgent}

// Rank orders priorities so that higher tiers sort first.
func (p Priority) Rank() int {
	if p == PriorityUrgent {
		return 1
	}
	return 0
}

// NormalizePriority canonicalizes a priority value, defaulting to normal.
func NormalizePriority(p Priority) Priority {
	p = Priority(strings.ToLower(strings.TrimSpace(string(p))))
	if p == "" {
		return PriorityNormal
	}
	return p
}

// WorkOrder is one unit of production work requiring a capable resource.
type WorkOrder struct {
	ID            string
	Name          string
	Capability    string
	Duration      time.Duration
	EarliestStart time.Time
	DueAt         time.Time
	Priority      Priority
	Predecessors  []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type WorkOrderInput struct {
	ID            string
	Name          string
	Capability    string
	Duration      time.Duration
	EarliestStart time.Time
	DueAt         time.Time
	Priority      Priority
	Predecessors  []string
}

func NewWorkOrder(in WorkOrderInput, now time.Time) (WorkOrder, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.Name = strings.TrimSpace(in.Name)
	in.Capability = NormalizeCapability(in.Capability)
	in.Priority = NormalizePriority(in.Priority)

	if in.ID == "" {
		return WorkOrder{}, ErrInvalidID
	}
	if in.Name == "" {
		in.Name = in.ID
	}
	if in.Capability == "" {
		return WorkOrder{}, ErrInvalidCapability
	}
	if in.Duration <= 0 {
		return WorkOrder{}, ErrInvalidDuration
	}
	if !slices.Contains(validPriorities, in.Priority) {
		return WorkOrder{}, ErrInvalidPriority
	}
	if in.EarliestStart.IsZero() || in.DueAt.IsZero() {
		return WorkOrder{}, ErrInvalidInterval
	}

	predecessors, err := normalizePredecessors(in.ID, in.Predecessors)
	if err != nil {
		return WorkOrder{}, err
	}

	return WorkOrder{
		ID:            in.ID,
		Name:          in.Name,
		Capability:    in.Capability,
		Duration:      in.Duration.Truncate(time.Second),
		EarliestStart: in.EarliestStart.UTC().Truncate(time.Second),
		DueAt:         in.DueAt.UTC().Truncate(time.Second),
		Priority:      in.Priority,
		Predecessors:  predecessors,
		CreatedAt:     now.UTC(),
		UpdatedAt:     now.UTC(),
	}, nil
}

// Escalate raises the order to urgent. It is the only change allowed once a committed schedule references the order.
func (w *WorkOrder) Escalate(now time.Time) {
	w.Priority = PriorityUrgent
	w.UpdatedAt = now.UTC()
}

// Urgent reports whether the order is in the urgent tier.
func (w WorkOrder) Urgent() bool {
	return w.Priority == PriorityUrgent
}

// Tardiness returns how far a completion time exceeds the due date.
func (w WorkOrder) Tardiness(completion time.Time) time.Duration {
	if completion.After(w.DueAt) {
		return completion.Sub(w.DueAt)
	}
	return 0
}

// NormalizeCapability canonicalizes a capability tag.
func NormalizeCapability(c string) string {
	return strings.ToLower(strings.TrimSpace(c))
}

func normalizePredecessors(selfID string, in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, raw := range in {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		if id == selfID {
			return nil, ErrInvalidID
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	slices.Sort(out)
	return out, nil
}
