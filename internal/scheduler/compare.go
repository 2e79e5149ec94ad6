package scheduler

import (
	"slices"
	"strings"
	"time"

	"github.com/hylla/takt/internal/domain"
)

// DiffKind describes how one work order differs between two assignment sets.
type DiffKind string

const (
	DiffAdded   DiffKind = "added"
	DiffRemoved DiffKind = "removed"
	DiffMoved   DiffKind = "moved"
)

// AssignmentDiff is one changed work order. Before is zero for added orders, After for removed ones.
type AssignmentDiff struct {
	WorkOrderID string
	Kind        DiffKind
	Before      domain.Assignment
	After       domain.Assignment
	StartDelta  time.Duration
}

// Diff compares two assignment sets keyed by work order id, ordered by id.
func Diff(base, alt []domain.Assignment) []AssignmentDiff {
	baseByID := make(map[string]domain.Assignment, len(base))
	for _, a := range base {
		baseByID[a.WorkOrderID] = a
	}
	altByID := make(map[string]domain.Assignment, len(alt))
	for _, a := range alt {
		altByID[a.WorkOrderID] = a
	}

	out := []AssignmentDiff{}
	for id, b := range baseByID {
		a, ok := altByID[id]
		switch {
		case !ok:
			out = append(out, AssignmentDiff{WorkOrderID: id, Kind: DiffRemoved, Before: b})
		case a.ResourceID != b.ResourceID || !a.Start.Equal(b.Start) || !a.End.Equal(b.End):
			out = append(out, AssignmentDiff{WorkOrderID: id, Kind: DiffMoved, Before: b, After: a, StartDelta: a.Start.Sub(b.Start)})
		}
	}
	for id, a := range altByID {
		if _, ok := baseByID[id]; !ok {
			out = append(out, AssignmentDiff{WorkOrderID: id, Kind: DiffAdded, After: a})
		}
	}
	slices.SortFunc(out, func(x, y AssignmentDiff) int { return strings.Compare(x.WorkOrderID, y.WorkOrderID) })
	return out
}
