package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hylla/takt/internal/app"
	"github.com/hylla/takt/internal/domain"
)

// shiftRecord is the JSON form of one shift window.
type shiftRecord struct {
	StartMinute int   `json:"start_minute"`
	EndMinute   int   `json:"end_minute"`
	Weekdays    []int `json:"weekdays,omitempty"`
}

// intervalRecord is the JSON form of one calendar exception.
type intervalRecord struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

const workOrderColumns = `id, name, capability, duration_seconds, earliest_start, due_at, priority, predecessors_json, created_at, updated_at`

const resourceColumns = `id, name, capabilities_json, shifts_json, exceptions_json, created_at, updated_at`

// UpsertWorkOrder creates or replaces one work order.
func (r *Repository) UpsertWorkOrder(ctx context.Context, o domain.WorkOrder) error {
	return upsertWorkOrder(ctx, r.db, o)
}

func upsertWorkOrder(ctx context.Context, db execer, o domain.WorkOrder) error {
	predecessors := o.Predecessors
	if predecessors == nil {
		predecessors = []string{}
	}
	predecessorsJSON, err := json.Marshal(predecessors)
	if err != nil {
		return fmt.Errorf("encode predecessors: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO work_orders(`+workOrderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			capability = excluded.capability,
			duration_seconds = excluded.duration_seconds,
			earliest_start = excluded.earliest_start,
			due_at = excluded.due_at,
			priority = excluded.priority,
			predecessors_json = excluded.predecessors_json,
			updated_at = excluded.updated_at
	`,
		o.ID,
		o.Name,
		o.Capability,
		int64(o.Duration/time.Second),
		ts(o.EarliestStart),
		ts(o.DueAt),
		string(o.Priority),
		string(predecessorsJSON),
		ts(o.CreatedAt),
		ts(o.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert work order: %w", err)
	}
	return nil
}

// GetWorkOrder returns one work order.
func (r *Repository) GetWorkOrder(ctx context.Context, id string) (domain.WorkOrder, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+workOrderColumns+` FROM work_orders WHERE id = ?`, id)
	return scanWorkOrder(row)
}

// ListWorkOrders lists work orders ordered by id; an empty id list lists all of them.
func (r *Repository) ListWorkOrders(ctx context.Context, ids []string) ([]domain.WorkOrder, error) {
	query := `SELECT ` + workOrderColumns + ` FROM work_orders`
	var args []any
	if len(ids) > 0 {
		placeholders, inArgs := inClause(ids)
		query += ` WHERE id IN (` + placeholders + `)`
		args = inArgs
	}
	query += ` ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.WorkOrder{}
	for rows.Next() {
		o, err := scanWorkOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// WorkOrderCommitted reports whether any non-draft schedule assigns the work order.
func (r *Repository) WorkOrderCommitted(ctx context.Context, id string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `
		SELECT 1
		FROM schedule_assignments a
		JOIN schedules s ON s.id = a.schedule_id
		WHERE a.work_order_id = ? AND s.status != ?
		LIMIT 1
	`, id, string(domain.ScheduleStatusDraft)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// UpsertResource creates or replaces one resource.
func (r *Repository) UpsertResource(ctx context.Context, res domain.Resource) error {
	capabilitiesJSON, err := json.Marshal(res.Capabilities)
	if err != nil {
		return fmt.Errorf("encode capabilities: %w", err)
	}
	shifts := make([]shiftRecord, 0, len(res.Shifts))
	for _, s := range res.Shifts {
		rec := shiftRecord{StartMinute: s.StartMinute, EndMinute: s.EndMinute}
		for _, day := range s.Weekdays {
			rec.Weekdays = append(rec.Weekdays, int(day))
		}
		shifts = append(shifts, rec)
	}
	shiftsJSON, err := json.Marshal(shifts)
	if err != nil {
		return fmt.Errorf("encode shifts: %w", err)
	}
	exceptions := make([]intervalRecord, 0, len(res.Exceptions))
	for _, ex := range res.Exceptions {
		exceptions = append(exceptions, intervalRecord{Start: ts(ex.Start), End: ts(ex.End)})
	}
	exceptionsJSON, err := json.Marshal(exceptions)
	if err != nil {
		return fmt.Errorf("encode exceptions: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO resources(`+resourceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			capabilities_json = excluded.capabilities_json,
			shifts_json = excluded.shifts_json,
			exceptions_json = excluded.exceptions_json,
			updated_at = excluded.updated_at
	`, res.ID, res.Name, string(capabilitiesJSON), string(shiftsJSON), string(exceptionsJSON), ts(res.CreatedAt), ts(res.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert resource: %w", err)
	}
	return nil
}

// GetResource returns one resource.
func (r *Repository) GetResource(ctx context.Context, id string) (domain.Resource, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+resourceColumns+` FROM resources WHERE id = ?`, id)
	return scanResource(row)
}

// ListResources lists resources ordered by id; an empty id list lists all of them.
func (r *Repository) ListResources(ctx context.Context, ids []string) ([]domain.Resource, error) {
	query := `SELECT ` + resourceColumns + ` FROM resources`
	var args []any
	if len(ids) > 0 {
		placeholders, inArgs := inClause(ids)
		query += ` WHERE id IN (` + placeholders + `)`
		args = inArgs
	}
	query += ` ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Resource{}
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// scanWorkOrder handles scan work order.
func scanWorkOrder(s scanner) (domain.WorkOrder, error) {
	var (
		o               domain.WorkOrder
		durationSeconds int64
		earliestRaw     string
		dueRaw          string
		priority        string
		predecessorsRaw string
		createdRaw      string
		updatedRaw      string
	)
	if err := s.Scan(&o.ID, &o.Name, &o.Capability, &durationSeconds, &earliestRaw, &dueRaw, &priority, &predecessorsRaw, &createdRaw, &updatedRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WorkOrder{}, app.ErrNotFound
		}
		return domain.WorkOrder{}, err
	}
	if err := json.Unmarshal([]byte(predecessorsRaw), &o.Predecessors); err != nil {
		return domain.WorkOrder{}, fmt.Errorf("decode predecessors_json: %w", err)
	}
	o.Duration = time.Duration(durationSeconds) * time.Second
	o.EarliestStart = parseTS(earliestRaw)
	o.DueAt = parseTS(dueRaw)
	o.Priority = domain.NormalizePriority(domain.Priority(priority))
	o.CreatedAt = parseTS(createdRaw)
	o.UpdatedAt = parseTS(updatedRaw)
	return o, nil
}

// scanResource handles scan resource.
func scanResource(s scanner) (domain.Resource, error) {
	var (
		res             domain.Resource
		capabilitiesRaw string
		shiftsRaw       string
		exceptionsRaw   string
		createdRaw      string
		updatedRaw      string
	)
	if err := s.Scan(&res.ID, &res.Name, &capabilitiesRaw, &shiftsRaw, &exceptionsRaw, &createdRaw, &updatedRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Resource{}, app.ErrNotFound
		}
		return domain.Resource{}, err
	}
	if err := json.Unmarshal([]byte(capabilitiesRaw), &res.Capabilities); err != nil {
		return domain.Resource{}, fmt.Errorf("decode capabilities_json: %w", err)
	}
	var shifts []shiftRecord
	if err := json.Unmarshal([]byte(shiftsRaw), &shifts); err != nil {
		return domain.Resource{}, fmt.Errorf("decode shifts_json: %w", err)
	}
	for _, rec := range shifts {
		window := domain.ShiftWindow{StartMinute: rec.StartMinute, EndMinute: rec.EndMinute}
		for _, day := range rec.Weekdays {
			window.Weekdays = append(window.Weekdays, time.Weekday(day))
		}
		res.Shifts = append(res.Shifts, window)
	}
	var exceptions []intervalRecord
	if err := json.Unmarshal([]byte(exceptionsRaw), &exceptions); err != nil {
		return domain.Resource{}, fmt.Errorf("decode exceptions_json: %w", err)
	}
	for _, rec := range exceptions {
		res.Exceptions = append(res.Exceptions, domain.Interval{Start: parseTS(rec.Start), End: parseTS(rec.End)})
	}
	res.CreatedAt = parseTS(createdRaw)
	res.UpdatedAt = parseTS(updatedRaw)
	return res, nil
}
