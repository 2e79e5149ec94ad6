package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hylla/takt/internal/domain"
)

// AppendAdjustment appends one audit entry and returns it with its assigned id.
func (r *Repository) AppendAdjustment(ctx context.Context, entry domain.AdjustmentLogEntry) (domain.AdjustmentLogEntry, error) {
	metadata := entry.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return domain.AdjustmentLogEntry{}, fmt.Errorf("encode adjustment metadata: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO adjustment_log(lineage_id, schedule_id, adjustment_type, actor, before_ref, after_ref, reason, metadata_json, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.LineageID,
		entry.ScheduleID,
		string(entry.Type),
		entry.Actor,
		entry.BeforeRef,
		entry.AfterRef,
		entry.Reason,
		string(metadataJSON),
		ts(entry.OccurredAt),
	)
	if err != nil {
		return domain.AdjustmentLogEntry{}, fmt.Errorf("append adjustment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.AdjustmentLogEntry{}, err
	}
	entry.ID = id
	entry.Metadata = metadata
	entry.OccurredAt = entry.OccurredAt.UTC()
	return entry, nil
}

// ListAdjustments lists audit entries of one lineage, oldest first.
func (r *Repository) ListAdjustments(ctx context.Context, lineageID string, limit int) ([]domain.AdjustmentLogEntry, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, lineage_id, schedule_id, adjustment_type, actor, before_ref, after_ref, reason, metadata_json, occurred_at
		FROM adjustment_log
		WHERE lineage_id = ?
		ORDER BY id ASC
		LIMIT ?
	`, lineageID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.AdjustmentLogEntry{}
	for rows.Next() {
		var (
			entry       domain.AdjustmentLogEntry
			kind        string
			metadataRaw string
			occurredRaw string
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.LineageID,
			&entry.ScheduleID,
			&kind,
			&entry.Actor,
			&entry.BeforeRef,
			&entry.AfterRef,
			&entry.Reason,
			&metadataRaw,
			&occurredRaw,
		); err != nil {
			return nil, err
		}
		if strings.TrimSpace(metadataRaw) == "" {
			metadataRaw = "{}"
		}
		if err := json.Unmarshal([]byte(metadataRaw), &entry.Metadata); err != nil {
			return nil, fmt.Errorf("decode adjustment metadata_json: %w", err)
		}
		entry.Type = domain.AdjustmentType(kind)
		entry.OccurredAt = parseTS(occurredRaw)
		out = append(out, entry)
	}
	return out, rows.Err()
}
