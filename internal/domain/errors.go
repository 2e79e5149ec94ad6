package domain

import "errors"

var (
	ErrInvalidID         = errors.New("invalid id")
	ErrInvalidPriority   = errors.New("invalid priority")
	ErrInvalidDuration   = errors.New("invalid duration")
	ErrInvalidInterval   = errors.New("invalid interval")
	ErrInvalidCapability = errors.New("invalid capability")
	ErrInvalidShift      = errors.New("invalid shift window")
	ErrInvalidStrategy   = errors.New("invalid strategy")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Scheduling failures surfaced by the engine and the application service.
var (
	ErrResourceNotFound     = errors.New("resource not found")
	ErrInfeasibleWorkOrder  = errors.New("infeasible work order")
	ErrScheduleNotConfirmed = errors.New("schedule not confirmed")
	ErrInsertionInfeasible  = errors.New("urgent insertion infeasible")
	ErrStaleScheduleVersion = errors.New("stale schedule version")
	ErrConflictsUnresolved  = errors.New("conflicts unresolved")
)

// Manual adjustment failures.
var (
	ErrAssignmentNotFound = errors.New("assignment not found")
	ErrOutsideCalendar    = errors.New("slot outside resource calendar")
)
