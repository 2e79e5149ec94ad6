// Package scheduler implements the production scheduling engine: resource calendars,
// conflict detection, schedule generation, urgent insertion, manual adjustment and
// schedule metrics. Every function here is a pure computation over its inputs.
package scheduler

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hylla/takt/internal/domain"
)

// Calendar is a read view of resource working windows.
type Calendar struct {
	resources map[string]domain.Resource
	order     []string
}

// NewCalendar indexes resources by id. Later duplicates replace earlier ones.
func NewCalendar(resources []domain.Resource) *Calendar {
	c := &Calendar{resources: make(map[string]domain.Resource, len(resources))}
	for _, r := range resources {
		if _, ok := c.resources[r.ID]; !ok {
			c.order = append(c.order, r.ID)
		}
		c.resources[r.ID] = r
	}
	slices.Sort(c.order)
	return c
}

// Resource returns one resource by id.
func (c *Calendar) Resource(id string) (domain.Resource, bool) {
	r, ok := c.resources[id]
	return r, ok
}

// ResourceIDs returns resource ids in the fixed scan order.
func (c *Calendar) ResourceIDs() []string {
	return slices.Clone(c.order)
}

// Eligible returns resources able to process capability, in scan order.
func (c *Calendar) Eligible(capability string) []domain.Resource {
	out := make([]domain.Resource, 0, len(c.order))
	for _, id := range c.order {
		r := c.resources[id]
		if r.HasCapability(capability) {
			out = append(out, r)
		}
	}
	return out
}

// AvailableWindows returns the ordered working windows of one resource inside rng,
// with calendar exceptions subtracted from the daily shift windows.
func (c *Calendar) AvailableWindows(resourceID string, rng domain.Interval) ([]domain.Interval, error) {
	r, ok := c.resources[strings.TrimSpace(resourceID)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrResourceNotFound, resourceID)
	}
	if rng.Empty() {
		return []domain.Interval{}, nil
	}
	return subtractIntervals(expandShifts(r.Shifts, rng), r.Exceptions), nil
}

// AvailableTime sums the working time of one resource inside rng.
func (c *Calendar) AvailableTime(resourceID string, rng domain.Interval) (time.Duration, error) {
	windows, err := c.AvailableWindows(resourceID, rng)
	if err != nil {
		return 0, err
	}
	var total time.Duration
	for _, w := range windows {
		total += w.Duration()
	}
	return total, nil
}

// expandShifts materializes daily shift windows over rng and merges touching windows.
func expandShifts(shifts []domain.ShiftWindow, rng domain.Interval) []domain.Interval {
	start := rng.Start.UTC()
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	out := []domain.Interval{}
	for ; day.Before(rng.End); day = day.AddDate(0, 0, 1) {
		for _, shift := range shifts {
			if !shift.AppliesOn(day.Weekday()) {
				continue
			}
			w := domain.Interval{
				Start: day.Add(time.Duration(shift.StartMinute) * time.Minute),
				End:   day.Add(time.Duration(shift.EndMinute) * time.Minute),
			}
			if clipped, ok := w.Intersect(rng); ok {
				out = append(out, clipped)
			}
		}
	}
	return mergeIntervals(out)
}

// mergeIntervals sorts and coalesces overlapping or touching intervals.
func mergeIntervals(in []domain.Interval) []domain.Interval {
	if len(in) == 0 {
		return []domain.Interval{}
	}
	sorted := slices.Clone(in)
	slices.SortFunc(sorted, func(a, b domain.Interval) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return a.End.Compare(b.End)
	})
	out := []domain.Interval{sorted[0]}
	for _, cur := range sorted[1:] {
		last := &out[len(out)-1]
		if !cur.Start.After(last.End) {
			if cur.End.After(last.End) {
				last.End = cur.End
			}
			continue
		}
		out = append(out, cur)
	}
	return out
}

// subtractIntervals removes every cut from every window.
func subtractIntervals(windows, cuts []domain.Interval) []domain.Interval {
	out := make([]domain.Interval, 0, len(windows))
	for _, w := range windows {
		pieces := []domain.Interval{w}
		for _, cut := range cuts {
			next := make([]domain.Interval, 0, len(pieces)+1)
			for _, p := range pieces {
				if !p.Overlaps(cut) {
					next = append(next, p)
					continue
				}
				if cut.Start.After(p.Start) {
					next = append(next, domain.Interval{Start: p.Start, End: cut.Start})
				}
				if cut.End.Before(p.End) {
					next = append(next, domain.Interval{Start: cut.End, End: p.End})
				}
			}
			pieces = next
		}
		out = append(out, pieces...)
	}
	return out
}
