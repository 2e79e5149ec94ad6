package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/hylla/takt/internal/domain"
)

// DefaultHistoryLimit caps history listings when the caller does not.
const DefaultHistoryLimit = 200

// record appends one audit entry. A failed append never undoes the committed mutation;
// it is logged and returned as a degraded-audit warning.
func (s *Service) record(ctx context.Context, entry domain.AdjustmentLogEntry) string {
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = s.clock().UTC()
	}
	if _, err := s.audit.AppendAdjustment(ctx, entry); err != nil {
		s.logger.Warn("adjustment log degraded",
			"lineage_id", entry.LineageID,
			"schedule_id", entry.ScheduleID,
			"type", entry.Type,
			"err", err,
		)
		return fmt.Sprintf("adjustment log degraded: %s entry for %s not recorded: %v", entry.Type, entry.ScheduleID, err)
	}
	return ""
}

// History returns adjustment log entries of one lineage, oldest first.
func (s *Service) History(ctx context.Context, lineageID string, limit int) ([]domain.AdjustmentLogEntry, error) {
	lineageID = strings.TrimSpace(lineageID)
	if lineageID == "" {
		return nil, fmt.Errorf("%w: lineage id required", domain.ErrInvalidID)
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return s.audit.ListAdjustments(ctx, lineageID, limit)
}
