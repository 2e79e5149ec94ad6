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

const scheduleColumns = `id, lineage_id, name, version, status, strategy, parent_id, horizon_start, horizon_end, work_order_ids_json, resource_ids_json, created_at, confirmed_at, superseded_at`

const conflictColumns = `id, schedule_id, resource_id, assignment_a, assignment_b, overlap_start, overlap_end, detected_at, resolved_at`

// LineageVersion returns the head version of a lineage, or zero when it has none.
func (r *Repository) LineageVersion(ctx context.Context, lineageID string) (int, error) {
	return lineageVersion(ctx, r.db, lineageID)
}

// CommitVersion writes one schedule version and its side effects atomically.
func (r *Repository) CommitVersion(ctx context.Context, c app.VersionCommit) error {
	s := c.Schedule
	return r.withTx(ctx, func(tx *sql.Tx) error {
		current, err := lineageVersion(ctx, tx, s.LineageID)
		if err != nil {
			return err
		}
		if current != c.ExpectedVersion {
			return fmt.Errorf("%w: lineage %s is at version %d, expected %d", domain.ErrStaleScheduleVersion, s.LineageID, current, c.ExpectedVersion)
		}
		now := ts(s.CreatedAt)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO schedule_lineages(id, name, current_version, created_at, updated_at)
			VALUES (?, ?, 0, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`, s.LineageID, s.Name, now, now); err != nil {
			return fmt.Errorf("insert lineage: %w", err)
		}
		for _, o := range c.WorkOrders {
			if err := upsertWorkOrder(ctx, tx, o); err != nil {
				return err
			}
		}
		if err := upsertSchedule(ctx, tx, s); err != nil {
			return err
		}
		if err := replaceAssignments(ctx, tx, s); err != nil {
			return err
		}
		for _, conflict := range c.Conflicts {
			if err := insertConflict(ctx, tx, conflict); err != nil {
				return err
			}
		}
		for _, id := range c.ResolveConflicts {
			if _, err := tx.ExecContext(ctx, `UPDATE resource_conflicts SET resolved_at = ? WHERE id = ? AND resolved_at IS NULL`, ts(c.ResolvedAt), id); err != nil {
				return fmt.Errorf("resolve conflict %s: %w", id, err)
			}
		}
		if c.Supersede != nil {
			res, err := tx.ExecContext(ctx, `
				UPDATE schedules SET status = ?, superseded_at = ? WHERE id = ?
			`, string(c.Supersede.Status), nullableTS(c.Supersede.SupersededAt), c.Supersede.ID)
			if err != nil {
				return fmt.Errorf("supersede schedule: %w", err)
			}
			if err := translateNoRows(res); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE schedule_lineages
			SET current_version = MAX(current_version, ?), updated_at = ?
			WHERE id = ?
		`, s.Version, now, s.LineageID); err != nil {
			return fmt.Errorf("advance lineage: %w", err)
		}
		return nil
	})
}

// GetSchedule returns one schedule version with its assignments and exclusions.
func (r *Repository) GetSchedule(ctx context.Context, id string) (domain.Schedule, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id)
	s, err := scanSchedule(row)
	if err != nil {
		return domain.Schedule{}, err
	}
	if err := r.loadScheduleDetail(ctx, &s); err != nil {
		return domain.Schedule{}, err
	}
	return s, nil
}

// ListLineageSchedules lists every version of one lineage, oldest first.
func (r *Repository) ListLineageSchedules(ctx context.Context, lineageID string) ([]domain.Schedule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+scheduleColumns+`
		FROM schedules
		WHERE lineage_id = ?
		ORDER BY version ASC
	`, lineageID)
	if err != nil {
		return nil, err
	}
	out := []domain.Schedule{}
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for i := range out {
		if err := r.loadScheduleDetail(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// DeleteDraftSchedule removes a draft, resolves its conflicts and lowers the lineage head.
func (r *Repository) DeleteDraftSchedule(ctx context.Context, id string, at time.Time) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		var lineageID, status string
		err := tx.QueryRowContext(ctx, `SELECT lineage_id, status FROM schedules WHERE id = ?`, id).Scan(&lineageID, &status)
		if errors.Is(err, sql.ErrNoRows) {
			return app.ErrNotFound
		}
		if err != nil {
			return err
		}
		if domain.ScheduleStatus(status) != domain.ScheduleStatusDraft {
			return fmt.Errorf("%w: schedule %s is %s", domain.ErrInvalidTransition, id, status)
		}
		for _, stmt := range []string{
			`DELETE FROM schedule_assignments WHERE schedule_id = ?`,
			`DELETE FROM schedule_exclusions WHERE schedule_id = ?`,
			`DELETE FROM schedules WHERE id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
				return fmt.Errorf("delete draft: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx, `UPDATE resource_conflicts SET resolved_at = ? WHERE schedule_id = ? AND resolved_at IS NULL`, ts(at), id); err != nil {
			return fmt.Errorf("resolve draft conflicts: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE schedule_lineages
			SET current_version = COALESCE((SELECT MAX(version) FROM schedules WHERE lineage_id = ?), 0),
				updated_at = ?
			WHERE id = ?
		`, lineageID, ts(at), lineageID); err != nil {
			return fmt.Errorf("lower lineage head: %w", err)
		}
		return nil
	})
}

// ListConflicts lists conflicts of one schedule version, open ones only unless includeResolved.
func (r *Repository) ListConflicts(ctx context.Context, scheduleID string, includeResolved bool) ([]domain.ResourceConflict, error) {
	query := `SELECT ` + conflictColumns + ` FROM resource_conflicts WHERE schedule_id = ?`
	if !includeResolved {
		query += ` AND resolved_at IS NULL`
	}
	query += ` ORDER BY overlap_start ASC, resource_id ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.ResourceConflict{}
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// lineageVersion reads the lineage head through a DB or Tx.
func lineageVersion(ctx context.Context, q queryer, lineageID string) (int, error) {
	var version int
	err := q.QueryRowContext(ctx, `SELECT current_version FROM schedule_lineages WHERE id = ?`, lineageID).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return version, nil
}

// upsertSchedule writes the schedule row.
func upsertSchedule(ctx context.Context, tx *sql.Tx, s domain.Schedule) error {
	workOrderIDs, err := json.Marshal(nonNilStrings(s.WorkOrderIDs))
	if err != nil {
		return fmt.Errorf("encode work_order_ids: %w", err)
	}
	resourceIDs, err := json.Marshal(nonNilStrings(s.ResourceIDs))
	if err != nil {
		return fmt.Errorf("encode resource_ids: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO schedules(`+scheduleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			strategy = excluded.strategy,
			horizon_start = excluded.horizon_start,
			horizon_end = excluded.horizon_end,
			work_order_ids_json = excluded.work_order_ids_json,
			resource_ids_json = excluded.resource_ids_json,
			confirmed_at = excluded.confirmed_at,
			superseded_at = excluded.superseded_at
	`,
		s.ID,
		s.LineageID,
		s.Name,
		s.Version,
		string(s.Status),
		string(s.Strategy),
		s.ParentID,
		ts(s.HorizonStart),
		ts(s.HorizonEnd),
		string(workOrderIDs),
		string(resourceIDs),
		ts(s.CreatedAt),
		nullableTS(s.ConfirmedAt),
		nullableTS(s.SupersededAt),
	)
	if err != nil {
		return fmt.Errorf("upsert schedule: %w", err)
	}
	return nil
}

// replaceAssignments rewrites assignments and exclusions of one schedule.
func replaceAssignments(ctx context.Context, tx *sql.Tx, s domain.Schedule) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM schedule_assignments WHERE schedule_id = ?`, s.ID); err != nil {
		return fmt.Errorf("clear assignments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM schedule_exclusions WHERE schedule_id = ?`, s.ID); err != nil {
		return fmt.Errorf("clear exclusions: %w", err)
	}
	for _, a := range s.Assignments {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO schedule_assignments(schedule_id, work_order_id, resource_id, start_at, end_at, sequence)
			VALUES (?, ?, ?, ?, ?, ?)
		`, s.ID, a.WorkOrderID, a.ResourceID, ts(a.Start), ts(a.End), a.Sequence); err != nil {
			return fmt.Errorf("insert assignment %s: %w", a.WorkOrderID, err)
		}
	}
	for _, ex := range s.Excluded {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO schedule_exclusions(schedule_id, work_order_id, reason)
			VALUES (?, ?, ?)
		`, s.ID, ex.WorkOrderID, ex.Reason); err != nil {
			return fmt.Errorf("insert exclusion %s: %w", ex.WorkOrderID, err)
		}
	}
	return nil
}

// insertConflict stores one conflict; an existing id keeps its resolution state.
func insertConflict(ctx context.Context, tx *sql.Tx, c domain.ResourceConflict) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO resource_conflicts(`+conflictColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET resolved_at = COALESCE(resource_conflicts.resolved_at, excluded.resolved_at)
	`,
		c.ID,
		c.ScheduleID,
		c.ResourceID,
		c.AssignmentA,
		c.AssignmentB,
		ts(c.OverlapStart),
		ts(c.OverlapEnd),
		ts(c.DetectedAt),
		nullableTS(c.ResolvedAt),
	)
	if err != nil {
		return fmt.Errorf("insert conflict: %w", err)
	}
	return nil
}

// loadScheduleDetail fills assignments and exclusions.
func (r *Repository) loadScheduleDetail(ctx context.Context, s *domain.Schedule) error {
	assignments, err := r.listAssignments(ctx, s.ID)
	if err != nil {
		return err
	}
	excluded, err := r.listExclusions(ctx, s.ID)
	if err != nil {
		return err
	}
	s.Assignments = assignments
	s.Excluded = excluded
	return nil
}

// listAssignments handles list assignments.
func (r *Repository) listAssignments(ctx context.Context, scheduleID string) ([]domain.Assignment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT work_order_id, resource_id, start_at, end_at, sequence
		FROM schedule_assignments
		WHERE schedule_id = ?
		ORDER BY resource_id ASC, start_at ASC, work_order_id ASC
	`, scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Assignment{}
	for rows.Next() {
		var (
			a        domain.Assignment
			startRaw string
			endRaw   string
		)
		if err := rows.Scan(&a.WorkOrderID, &a.ResourceID, &startRaw, &endRaw, &a.Sequence); err != nil {
			return nil, err
		}
		a.Start = parseTS(startRaw)
		a.End = parseTS(endRaw)
		out = append(out, a)
	}
	return out, rows.Err()
}

// listExclusions handles list exclusions.
func (r *Repository) listExclusions(ctx context.Context, scheduleID string) ([]domain.Exclusion, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT work_order_id, reason
		FROM schedule_exclusions
		WHERE schedule_id = ?
		ORDER BY work_order_id ASC
	`, scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Exclusion{}
	for rows.Next() {
		var ex domain.Exclusion
		if err := rows.Scan(&ex.WorkOrderID, &ex.Reason); err != nil {
			return nil, err
		}
		out = append(out, ex)
	}
	return out, rows.Err()
}

// scanSchedule handles scan schedule.
func scanSchedule(s scanner) (domain.Schedule, error) {
	var (
		out             domain.Schedule
		status          string
		strategy        string
		horizonStartRaw string
		horizonEndRaw   string
		workOrderIDsRaw string
		resourceIDsRaw  string
		createdRaw      string
		confirmedRaw    sql.NullString
		supersededRaw   sql.NullString
	)
	if err := s.Scan(
		&out.ID,
		&out.LineageID,
		&out.Name,
		&out.Version,
		&status,
		&strategy,
		&out.ParentID,
		&horizonStartRaw,
		&horizonEndRaw,
		&workOrderIDsRaw,
		&resourceIDsRaw,
		&createdRaw,
		&confirmedRaw,
		&supersededRaw,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Schedule{}, app.ErrNotFound
		}
		return domain.Schedule{}, err
	}
	if err := json.Unmarshal([]byte(workOrderIDsRaw), &out.WorkOrderIDs); err != nil {
		return domain.Schedule{}, fmt.Errorf("decode work_order_ids_json: %w", err)
	}
	if err := json.Unmarshal([]byte(resourceIDsRaw), &out.ResourceIDs); err != nil {
		return domain.Schedule{}, fmt.Errorf("decode resource_ids_json: %w", err)
	}
	out.Status = domain.ScheduleStatus(status)
	out.Strategy = domain.Strategy(strategy)
	out.HorizonStart = parseTS(horizonStartRaw)
	out.HorizonEnd = parseTS(horizonEndRaw)
	out.CreatedAt = parseTS(createdRaw)
	out.ConfirmedAt = parseNullTS(confirmedRaw)
	out.SupersededAt = parseNullTS(supersededRaw)
	return out, nil
}

// scanConflict handles scan conflict.
func scanConflict(s scanner) (domain.ResourceConflict, error) {
	var (
		c           domain.ResourceConflict
		overlapFrom string
		overlapTo   string
		detectedRaw string
		resolvedRaw sql.NullString
	)
	if err := s.Scan(&c.ID, &c.ScheduleID, &c.ResourceID, &c.AssignmentA, &c.AssignmentB, &overlapFrom, &overlapTo, &detectedRaw, &resolvedRaw); err != nil {
		return domain.ResourceConflict{}, err
	}
	c.OverlapStart = parseTS(overlapFrom)
	c.OverlapEnd = parseTS(overlapTo)
	c.DetectedAt = parseTS(detectedRaw)
	c.ResolvedAt = parseNullTS(resolvedRaw)
	return c, nil
}

func nonNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
