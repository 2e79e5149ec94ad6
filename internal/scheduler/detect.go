package scheduler

import (
	"slices"
	"time"

	"github.com/hylla/takt/internal/domain"
)

// Detect reports every pair of assignments that overlap on the same resource.
// Pairs are ordered by resource, then by the start of the later assignment.
func Detect(scheduleID string, assignments []domain.Assignment, detectedAt time.Time) []domain.ResourceConflict {
	out := []domain.ResourceConflict{}
	if len(assignments) == 0 {
		return out
	}

	byResource := map[string][]domain.Assignment{}
	resourceIDs := []string{}
	for _, a := range assignments {
		if _, ok := byResource[a.ResourceID]; !ok {
			resourceIDs = append(resourceIDs, a.ResourceID)
		}
		byResource[a.ResourceID] = append(byResource[a.ResourceID], a)
	}
	slices.Sort(resourceIDs)

	detectedAt = detectedAt.UTC()
	for _, resourceID := range resourceIDs {
		slots := byResource[resourceID]
		slices.SortFunc(slots, compareByStart)

		active := make([]domain.Assignment, 0, 4)
		for _, cur := range slots {
			kept := active[:0]
			for _, a := range active {
				if a.End.After(cur.Start) {
					kept = append(kept, a)
				}
			}
			active = kept
			for _, a := range active {
				end := a.End
				if cur.End.Before(end) {
					end = cur.End
				}
				out = append(out, domain.ResourceConflict{
					ScheduleID:   scheduleID,
					ResourceID:   resourceID,
					AssignmentA:  a.WorkOrderID,
					AssignmentB:  cur.WorkOrderID,
					OverlapStart: cur.Start,
					OverlapEnd:   end,
					DetectedAt:   detectedAt,
				})
			}
			if cur.End.After(cur.Start) {
				active = append(active, cur)
			}
		}
	}
	return out
}
