package app

import (
	"context"
	"time"

	"github.com/hylla/takt/internal/domain"
)

// Repository persists work orders, resources, schedule versions and their conflicts.
type Repository interface {
	UpsertWorkOrder(context.Context, domain.WorkOrder) error
	GetWorkOrder(context.Context, string) (domain.WorkOrder, error)
	ListWorkOrders(context.Context, []string) ([]domain.WorkOrder, error)
	WorkOrderCommitted(context.Context, string) (bool, error)

	UpsertResource(context.Context, domain.Resource) error
	GetResource(context.Context, string) (domain.Resource, error)
	ListResources(context.Context, []string) ([]domain.Resource, error)

	LineageVersion(context.Context, string) (int, error)
	CommitVersion(context.Context, VersionCommit) error
	GetSchedule(context.Context, string) (domain.Schedule, error)
	ListLineageSchedules(context.Context, string) ([]domain.Schedule, error)
	DeleteDraftSchedule(context.Context, string, time.Time) error
	ListConflicts(context.Context, string, bool) ([]domain.ResourceConflict, error)

	AdjustmentLog
}

// AdjustmentLog is the append-only audit trail of schedule mutations.
type AdjustmentLog interface {
	AppendAdjustment(context.Context, domain.AdjustmentLogEntry) (domain.AdjustmentLogEntry, error)
	ListAdjustments(context.Context, string, int) ([]domain.AdjustmentLogEntry, error)
}

// VersionCommit is one atomic schedule write guarded by the lineage version.
// Implementations must apply every field in a single transaction and fail with
// domain.ErrStaleScheduleVersion when the lineage head is not ExpectedVersion.
type VersionCommit struct {
	ExpectedVersion  int
	Schedule         domain.Schedule
	Conflicts        []domain.ResourceConflict
	ResolveConflicts []string
	ResolvedAt       time.Time
	Supersede        *domain.Schedule
	WorkOrders       []domain.WorkOrder
}
