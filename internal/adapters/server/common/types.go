// Package common provides transport-agnostic server contracts used by HTTP and MCP adapters.
package common

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidRequest reports malformed transport input.
var ErrInvalidRequest = errors.New("invalid request")

// ErrNotFound reports missing transport-visible resources.
var ErrNotFound = errors.New("not found")

// ErrStaleVersion reports an optimistic version check failure.
var ErrStaleVersion = errors.New("stale schedule version")

// ErrConflictsUnresolved reports a mutation blocked by open resource conflicts.
var ErrConflictsUnresolved = errors.New("conflicts unresolved")

// ErrInvalidState reports an operation not allowed in the schedule's current status.
var ErrInvalidState = errors.New("invalid schedule state")

// ErrInfeasible reports work that cannot be placed under the given constraints.
var ErrInfeasible = errors.New("infeasible")

// ErrorCode returns the stable wire code for one mapped error.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrStaleVersion):
		return "stale_version"
	case errors.Is(err, ErrConflictsUnresolved):
		return "conflicts_unresolved"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrInfeasible):
		return "infeasible"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		return "internal_error"
	}
}

// GenerateScheduleRequest captures input for one schedule generation.
type GenerateScheduleRequest struct {
	LineageID    string     `json:"lineage_id"`
	Name         string     `json:"name,omitempty"`
	WorkOrderIDs []string   `json:"work_order_ids,omitempty"`
	Pending      bool       `json:"pending,omitempty"`
	ResourceIDs  []string   `json:"resource_ids,omitempty"`
	Strategy     string     `json:"strategy,omitempty"`
	HorizonStart *time.Time `json:"horizon_start,omitempty"`
	HorizonDays  int        `json:"horizon_days,omitempty"`
	Actor        string     `json:"actor,omitempty"`
}

// ConfirmScheduleRequest captures input for confirming a draft.
type ConfirmScheduleRequest struct {
	ScheduleID      string `json:"-"`
	ExpectedVersion int    `json:"expected_version,omitempty"`
	Force           bool   `json:"force,omitempty"`
	Actor           string `json:"actor,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

// AdjustScheduleRequest captures input for one manual reassignment.
type AdjustScheduleRequest struct {
	ScheduleID      string    `json:"-"`
	ExpectedVersion int       `json:"expected_version,omitempty"`
	WorkOrderID     string    `json:"work_order_id"`
	ResourceID      string    `json:"resource_id,omitempty"`
	Start           time.Time `json:"start"`
	Actor           string    `json:"actor,omitempty"`
	Reason          string    `json:"reason,omitempty"`
}

// UrgentInsertRequest captures input for inserting an urgent order into a confirmed schedule.
// Either WorkOrderID names a stored order or Order describes a new one.
type UrgentInsertRequest struct {
	ScheduleID      string            `json:"-"`
	ExpectedVersion int               `json:"expected_version,omitempty"`
	WorkOrderID     string            `json:"work_order_id,omitempty"`
	Order           *WorkOrderRequest `json:"order,omitempty"`
	Actor           string            `json:"actor,omitempty"`
	Reason          string            `json:"reason,omitempty"`
}

// ResetScheduleRequest captures input for discarding a draft.
type ResetScheduleRequest struct {
	ScheduleID string `json:"-"`
	Actor      string `json:"actor,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// RollbackRequest captures input for restoring an earlier version.
type RollbackRequest struct {
	ScheduleID      string `json:"-"`
	TargetVersion   int    `json:"target_version"`
	ExpectedVersion int    `json:"expected_version,omitempty"`
	Actor           string `json:"actor,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

// WorkOrderRequest captures input for creating or replacing one work order.
type WorkOrderRequest struct {
	ID              string    `json:"id"`
	Name            string    `json:"name,omitempty"`
	Capability      string    `json:"capability"`
	DurationMinutes int64     `json:"duration_minutes"`
	EarliestStart   time.Time `json:"earliest_start"`
	DueAt           time.Time `json:"due_at"`
	Priority        string    `json:"priority,omitempty"`
	Predecessors    []string  `json:"predecessors,omitempty"`
}

// ResourceRequest captures input for creating or replacing one resource.
type ResourceRequest struct {
	ID           string         `json:"id"`
	Name         string         `json:"name,omitempty"`
	Capabilities []string       `json:"capabilities"`
	Shifts       []ShiftView    `json:"shifts"`
	Exceptions   []IntervalView `json:"exceptions,omitempty"`
}

// ShiftView is one daily working window in "HH:MM" form.
type ShiftView struct {
	Start    string   `json:"start"`
	End      string   `json:"end"`
	Weekdays []string `json:"weekdays,omitempty"`
}

// IntervalView is one absolute time range.
type IntervalView struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// WorkOrderView is the wire form of one work order.
type WorkOrderView struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Capability      string    `json:"capability"`
	DurationMinutes int64     `json:"duration_minutes"`
	EarliestStart   time.Time `json:"earliest_start"`
	DueAt           time.Time `json:"due_at"`
	Priority        string    `json:"priority"`
	Predecessors    []string  `json:"predecessors,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ResourceView is the wire form of one resource.
type ResourceView struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Capabilities []string       `json:"capabilities"`
	Shifts       []ShiftView    `json:"shifts"`
	Exceptions   []IntervalView `json:"exceptions,omitempty"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// AssignmentView is the wire form of one assignment.
type AssignmentView struct {
	WorkOrderID string    `json:"work_order_id"`
	ResourceID  string    `json:"resource_id"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Sequence    int       `json:"sequence"`
}

// ExclusionView reports one unplaced work order.
type ExclusionView struct {
	WorkOrderID string `json:"work_order_id"`
	Reason      string `json:"reason"`
}

// ScheduleView is the wire form of one schedule version.
type ScheduleView struct {
	ID           string           `json:"id"`
	LineageID    string           `json:"lineage_id"`
	Name         string           `json:"name"`
	Version      int              `json:"version"`
	Status       string           `json:"status"`
	Strategy     string           `json:"strategy"`
	ParentID     string           `json:"parent_id,omitempty"`
	HorizonStart time.Time        `json:"horizon_start"`
	HorizonEnd   time.Time        `json:"horizon_end"`
	WorkOrderIDs []string         `json:"work_order_ids"`
	ResourceIDs  []string         `json:"resource_ids"`
	Assignments  []AssignmentView `json:"assignments"`
	Excluded     []ExclusionView  `json:"excluded,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	ConfirmedAt  *time.Time       `json:"confirmed_at,omitempty"`
	SupersededAt *time.Time       `json:"superseded_at,omitempty"`
}

// ConflictView is the wire form of one resource conflict.
type ConflictView struct {
	ID           string     `json:"id"`
	ScheduleID   string     `json:"schedule_id"`
	ResourceID   string     `json:"resource_id"`
	AssignmentA  string     `json:"assignment_a"`
	AssignmentB  string     `json:"assignment_b"`
	OverlapStart time.Time  `json:"overlap_start"`
	OverlapEnd   time.Time  `json:"overlap_end"`
	DetectedAt   time.Time  `json:"detected_at"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
}

// ShiftedView reports how far one assignment moved.
type ShiftedView struct {
	WorkOrderID  string    `json:"work_order_id"`
	ResourceID   string    `json:"resource_id"`
	FromStart    time.Time `json:"from_start"`
	ToStart      time.Time `json:"to_start"`
	DeltaMinutes float64   `json:"delta_minutes"`
}

// ScheduleResponse is the result of one schedule mutation.
type ScheduleResponse struct {
	Schedule     ScheduleView   `json:"schedule"`
	Conflicts    []ConflictView `json:"conflicts"`
	Shifted      []ShiftedView  `json:"shifted,omitempty"`
	AuditWarning string         `json:"audit_warning,omitempty"`
}

// ResetResponse is the result of discarding a draft.
type ResetResponse struct {
	ScheduleID   string `json:"schedule_id"`
	Reset        bool   `json:"reset"`
	AuditWarning string `json:"audit_warning,omitempty"`
}

// GanttBarView is one timeline row.
type GanttBarView struct {
	ResourceID       string    `json:"resource_id"`
	WorkOrderID      string    `json:"work_order_id"`
	Name             string    `json:"name"`
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	Sequence         int       `json:"sequence"`
	Priority         string    `json:"priority"`
	Late             bool      `json:"late"`
	TardinessMinutes float64   `json:"tardiness_minutes"`
}

// UtilizationView is the busy share of one resource.
type UtilizationView struct {
	ResourceID       string  `json:"resource_id"`
	BusyMinutes      float64 `json:"busy_minutes"`
	AvailableMinutes float64 `json:"available_minutes"`
	Utilization      float64 `json:"utilization"`
}

// MetricsView is the wire form of schedule quality metrics.
type MetricsView struct {
	Start                 time.Time         `json:"start"`
	End                   time.Time         `json:"end"`
	MakespanMinutes       float64           `json:"makespan_minutes"`
	Resources             []UtilizationView `json:"resources"`
	AverageUtilization    float64           `json:"average_utilization"`
	TotalTardinessMinutes float64           `json:"total_tardiness_minutes"`
	LateCount             int               `json:"late_count"`
	QualityScore          float64           `json:"quality_score"`
}

// GanttResponse is the timeline projection of one schedule.
type GanttResponse struct {
	Schedule  ScheduleView   `json:"schedule"`
	Bars      []GanttBarView `json:"bars"`
	Metrics   MetricsView    `json:"metrics"`
	Conflicts []ConflictView `json:"conflicts"`
}

// DiffView is one assignment difference between two plans.
type DiffView struct {
	WorkOrderID       string          `json:"work_order_id"`
	Kind              string          `json:"kind"`
	Before            *AssignmentView `json:"before,omitempty"`
	After             *AssignmentView `json:"after,omitempty"`
	StartDeltaMinutes float64         `json:"start_delta_minutes"`
}

// ComparisonResponse diffs a stored schedule against an alternative strategy.
type ComparisonResponse struct {
	ScheduleID  string           `json:"schedule_id"`
	Strategy    string           `json:"strategy"`
	Alternative []AssignmentView `json:"alternative"`
	Excluded    []ExclusionView  `json:"excluded,omitempty"`
	Diff        []DiffView       `json:"diff"`
	Current     MetricsView      `json:"current"`
	Candidate   MetricsView      `json:"candidate"`
}

// HistoryEntry is the wire form of one adjustment log entry.
type HistoryEntry struct {
	ID         int64             `json:"id"`
	LineageID  string            `json:"lineage_id"`
	ScheduleID string            `json:"schedule_id"`
	Type       string            `json:"type"`
	Actor      string            `json:"actor"`
	BeforeRef  string            `json:"before_ref,omitempty"`
	AfterRef   string            `json:"after_ref,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// SchedulingService captures the schedule operations exposed by transport adapters.
type SchedulingService interface {
	GenerateSchedule(context.Context, GenerateScheduleRequest) (ScheduleResponse, error)
	GetSchedule(context.Context, string) (ScheduleView, error)
	PreviewSchedule(context.Context, string) (GanttResponse, error)
	Gantt(context.Context, string) (GanttResponse, error)
	ListConflicts(context.Context, string, bool) ([]ConflictView, error)
	ConfirmSchedule(context.Context, ConfirmScheduleRequest) (ScheduleResponse, error)
	AdjustSchedule(context.Context, AdjustScheduleRequest) (ScheduleResponse, error)
	UrgentInsert(context.Context, UrgentInsertRequest) (ScheduleResponse, error)
	CompareStrategies(context.Context, string, string) (ComparisonResponse, error)
	ResetSchedule(context.Context, ResetScheduleRequest) (ResetResponse, error)
	Rollback(context.Context, RollbackRequest) (ScheduleResponse, error)
	History(context.Context, string, int) ([]HistoryEntry, error)
}

// CatalogService captures work-order and resource maintenance.
type CatalogService interface {
	ListWorkOrders(context.Context) ([]WorkOrderView, error)
	UpsertWorkOrder(context.Context, WorkOrderRequest) (WorkOrderView, error)
	ListResources(context.Context) ([]ResourceView, error)
	UpsertResource(context.Context, ResourceRequest) (ResourceView, error)
}

// ReadinessChecker reports whether backing storage answers.
type ReadinessChecker interface {
	Ping(context.Context) error
}
