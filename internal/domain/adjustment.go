package domain

import "time"

// AdjustmentType describes the kind of schedule mutation recorded in the audit log.
type AdjustmentType string

const (
	AdjustmentGenerate     AdjustmentType = "generate"
	AdjustmentConfirm      AdjustmentType = "confirm"
	AdjustmentManual       AdjustmentType = "adjust"
	AdjustmentUrgentInsert AdjustmentType = "urgent_insert"
	AdjustmentReset        AdjustmentType = "reset"
	AdjustmentRollback     AdjustmentType = "rollback"
)

// AdjustmentLogEntry is one append-only audit record for a schedule lineage.
type AdjustmentLogEntry struct {
	ID         int64
	LineageID  string
	ScheduleID string
	Type       AdjustmentType
	Actor      string
	BeforeRef  string
	AfterRef   string
	Reason     string
	Metadata   map[string]string
	OccurredAt time.Time
}

// ShiftedAssignment reports how far an urgent insertion pushed an existing assignment.
type ShiftedAssignment struct {
	WorkOrderID string
	ResourceID  string
	FromStart   time.Time
	ToStart     time.Time
	Delta       time.Duration
}
