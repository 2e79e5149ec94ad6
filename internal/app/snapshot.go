package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hylla/takt/internal/domain"
)

// SnapshotVersion defines a package constant value.
const SnapshotVersion = "takt.snapshot.v1"

// Snapshot is the portable scheduling input set: work orders and resources.
type Snapshot struct {
	Version    string              `json:"version"`
	ExportedAt time.Time           `json:"exported_at"`
	WorkOrders []SnapshotWorkOrder `json:"work_orders"`
	Resources  []SnapshotResource  `json:"resources"`
}

// SnapshotWorkOrder represents snapshot work order data used by this package.
type SnapshotWorkOrder struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Capability      string          `json:"capability"`
	DurationMinutes int64           `json:"duration_minutes"`
	EarliestStart   time.Time       `json:"earliest_start"`
	DueAt           time.Time       `json:"due_at"`
	Priority        domain.Priority `json:"priority"`
	Predecessors    []string        `json:"predecessors,omitempty"`
}

// SnapshotResource represents snapshot resource data used by this package.
type SnapshotResource struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Capabilities []string         `json:"capabilities"`
	Shifts       []SnapshotShift  `json:"shifts"`
	Exceptions   []SnapshotWindow `json:"exceptions,omitempty"`
}

// SnapshotShift is one daily window in "HH:MM" form.
type SnapshotShift struct {
	Start    string   `json:"start"`
	End      string   `json:"end"`
	Weekdays []string `json:"weekdays,omitempty"`
}

// SnapshotWindow is one absolute calendar exception.
type SnapshotWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ExportSnapshot handles export snapshot.
func (s *Service) ExportSnapshot(ctx context.Context) (Snapshot, error) {
	orders, err := s.repo.ListWorkOrders(ctx, nil)
	if err != nil {
		return Snapshot{}, err
	}
	resources, err := s.repo.ListResources(ctx, nil)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		Version:    SnapshotVersion,
		ExportedAt: s.clock().UTC(),
		WorkOrders: make([]SnapshotWorkOrder, 0, len(orders)),
		Resources:  make([]SnapshotResource, 0, len(resources)),
	}
	for _, o := range orders {
		snap.WorkOrders = append(snap.WorkOrders, snapshotWorkOrderFromDomain(o))
	}
	for _, r := range resources {
		snap.Resources = append(snap.Resources, snapshotResourceFromDomain(r))
	}
	snap.sort()
	return snap, nil
}

// ImportSnapshot upserts every resource and work order in the snapshot.
func (s *Service) ImportSnapshot(ctx context.Context, snap Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	snap.sort()

	for _, r := range snap.Resources {
		in, err := r.toInput()
		if err != nil {
			return err
		}
		if _, err := s.UpsertResource(ctx, in); err != nil {
			return fmt.Errorf("import resource %s: %w", r.ID, err)
		}
	}
	for _, o := range snap.WorkOrders {
		if _, err := s.UpsertWorkOrder(ctx, o.toInput()); err != nil {
			return fmt.Errorf("import work order %s: %w", o.ID, err)
		}
	}
	return nil
}

// Validate checks version and referential integrity before anything is written.
func (s *Snapshot) Validate() error {
	if strings.TrimSpace(s.Version) != SnapshotVersion {
		return fmt.Errorf("%w: %q", ErrUnsupportedSnapshot, s.Version)
	}
	var errs []error
	resourceIDs := map[string]struct{}{}
	for i, r := range s.Resources {
		id := strings.TrimSpace(r.ID)
		if id == "" {
			errs = append(errs, fmt.Errorf("resources[%d]: empty id", i))
			continue
		}
		if _, dup := resourceIDs[id]; dup {
			errs = append(errs, fmt.Errorf("resources[%d]: duplicate id %s", i, id))
		}
		resourceIDs[id] = struct{}{}
		if _, err := r.toInput(); err != nil {
			errs = append(errs, fmt.Errorf("resources[%d]: %w", i, err))
		}
	}
	orderIDs := map[string]struct{}{}
	for i, o := range s.WorkOrders {
		id := strings.TrimSpace(o.ID)
		if id == "" {
			errs = append(errs, fmt.Errorf("work_orders[%d]: empty id", i))
			continue
		}
		if _, dup := orderIDs[id]; dup {
			errs = append(errs, fmt.Errorf("work_orders[%d]: duplicate id %s", i, id))
		}
		orderIDs[id] = struct{}{}
		if o.DurationMinutes <= 0 {
			errs = append(errs, fmt.Errorf("work_orders[%d]: duration must be positive", i))
		}
	}
	for i, o := range s.WorkOrders {
		for _, pred := range o.Predecessors {
			if _, ok := orderIDs[strings.TrimSpace(pred)]; !ok {
				errs = append(errs, fmt.Errorf("work_orders[%d]: unknown predecessor %s", i, pred))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidSnapshot, errors.Join(errs...))
	}
	return nil
}

func (s *Snapshot) sort() {
	sort.Slice(s.WorkOrders, func(i, j int) bool { return s.WorkOrders[i].ID < s.WorkOrders[j].ID })
	sort.Slice(s.Resources, func(i, j int) bool { return s.Resources[i].ID < s.Resources[j].ID })
}

func snapshotWorkOrderFromDomain(o domain.WorkOrder) SnapshotWorkOrder {
	return SnapshotWorkOrder{
		ID:              o.ID,
		Name:            o.Name,
		Capability:      o.Capability,
		DurationMinutes: int64(o.Duration / time.Minute),
		EarliestStart:   o.EarliestStart,
		DueAt:           o.DueAt,
		Priority:        o.Priority,
		Predecessors:    append([]string(nil), o.Predecessors...),
	}
}

func snapshotResourceFromDomain(r domain.Resource) SnapshotResource {
	out := SnapshotResource{
		ID:           r.ID,
		Name:         r.Name,
		Capabilities: append([]string(nil), r.Capabilities...),
		Shifts:       make([]SnapshotShift, 0, len(r.Shifts)),
	}
	for _, shift := range r.Shifts {
		out.Shifts = append(out.Shifts, SnapshotShiftFromDomain(shift))
	}
	for _, ex := range r.Exceptions {
		out.Exceptions = append(out.Exceptions, SnapshotWindow{Start: ex.Start, End: ex.End})
	}
	return out
}

func (o SnapshotWorkOrder) toInput() domain.WorkOrderInput {
	return domain.WorkOrderInput{
		ID:            o.ID,
		Name:          o.Name,
		Capability:    o.Capability,
		Duration:      time.Duration(o.DurationMinutes) * time.Minute,
		EarliestStart: o.EarliestStart,
		DueAt:         o.DueAt,
		Priority:      o.Priority,
		Predecessors:  append([]string(nil), o.Predecessors...),
	}
}

func (r SnapshotResource) toInput() (domain.ResourceInput, error) {
	in := domain.ResourceInput{
		ID:           r.ID,
		Name:         r.Name,
		Capabilities: append([]string(nil), r.Capabilities...),
		Shifts:       make([]domain.ShiftWindow, 0, len(r.Shifts)),
	}
	for _, shift := range r.Shifts {
		window, err := shift.ToDomain()
		if err != nil {
			return domain.ResourceInput{}, err
		}
		in.Shifts = append(in.Shifts, window)
	}
	for _, ex := range r.Exceptions {
		in.Exceptions = append(in.Exceptions, domain.Interval{Start: ex.Start, End: ex.End})
	}
	return in, nil
}

// SnapshotShiftFromDomain renders a shift window in "HH:MM" form.
func SnapshotShiftFromDomain(shift domain.ShiftWindow) SnapshotShift {
	out := SnapshotShift{
		Start: formatMinute(shift.StartMinute),
		End:   formatMinute(shift.EndMinute),
	}
	for _, day := range shift.Weekdays {
		out.Weekdays = append(out.Weekdays, strings.ToLower(day.String()[:3]))
	}
	return out
}

// ToDomain parses "HH:MM" bounds and short weekday names.
func (s SnapshotShift) ToDomain() (domain.ShiftWindow, error) {
	start, err := parseMinute(s.Start)
	if err != nil {
		return domain.ShiftWindow{}, err
	}
	end, err := parseMinute(s.End)
	if err != nil {
		return domain.ShiftWindow{}, err
	}
	window := domain.ShiftWindow{StartMinute: start, EndMinute: end}
	for _, raw := range s.Weekdays {
		day, ok := weekdays[strings.ToLower(strings.TrimSpace(raw))]
		if !ok {
			return domain.ShiftWindow{}, fmt.Errorf("%w: weekday %q", domain.ErrInvalidShift, raw)
		}
		window.Weekdays = append(window.Weekdays, day)
	}
	if err := window.Validate(); err != nil {
		return domain.ShiftWindow{}, err
	}
	return window, nil
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

func formatMinute(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

func parseMinute(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "24:00" {
		return 24 * 60, nil
	}
	t, err := time.Parse("15:04", raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", domain.ErrInvalidShift, raw)
	}
	return t.Hour()*60 + t.Minute(), nil
}
