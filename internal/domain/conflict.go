package domain

import "time"

// ResourceConflict records two assignments overlapping on one resource.
type ResourceConflict struct {
	ID           string
	ScheduleID   string
	ResourceID   string
	AssignmentA  string
	AssignmentB  string
	OverlapStart time.Time
	OverlapEnd   time.Time
	DetectedAt   time.Time
	ResolvedAt   *time.Time
}

// Key identifies the overlapping pair independent of detection time.
func (c ResourceConflict) Key() string {
	return c.ResourceID + "|" + c.AssignmentA + "|" + c.AssignmentB
}

// Resolve flags the conflict as resolved. Conflicts are never deleted.
func (c *ResourceConflict) Resolve(now time.Time) {
	if c.ResolvedAt != nil {
		return
	}
	ts := now.UTC()
	c.ResolvedAt = &ts
}

// Open reports whether the conflict still needs attention.
func (c ResourceConflict) Open() bool {
	return c.ResolvedAt == nil
}
