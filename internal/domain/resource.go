package domain

import (
	"slices"
	"strings"
	"time"
)

// minutesPerDay bounds shift window minute offsets.
const minutesPerDay = 24 * 60

// ShiftWindow is one daily working window in minutes from midnight UTC.
type ShiftWindow struct {
	StartMinute int
	EndMinute   int
	// Weekdays limits the window to the listed days; empty means every day.
	Weekdays []time.Weekday
}

// AppliesOn reports whether the window is active on the given weekday.
func (s ShiftWindow) AppliesOn(day time.Weekday) bool {
	return len(s.Weekdays) == 0 || slices.Contains(s.Weekdays, day)
}

// Validate checks minute bounds.
func (s ShiftWindow) Validate() error {
	if s.StartMinute < 0 || s.EndMinute > minutesPerDay || s.EndMinute <= s.StartMinute {
		return ErrInvalidShift
	}
	return nil
}

// Resource is a machine or workstation with capabilities and a working calendar.
type Resource struct {
	ID           string
	Name         string
	Capabilities []string
	Shifts       []ShiftWindow
	Exceptions   []Interval
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type ResourceInput struct {
	ID           string
	Name         string
	Capabilities []string
	Shifts       []ShiftWindow
	Exceptions   []Interval
}

func NewResource(in ResourceInput, now time.Time) (Resource, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.Name = strings.TrimSpace(in.Name)
	if in.ID == "" {
		return Resource{}, ErrInvalidID
	}
	if in.Name == "" {
		in.Name = in.ID
	}
	capabilities := normalizeCapabilities(in.Capabilities)
	if len(capabilities) == 0 {
		return Resource{}, ErrInvalidCapability
	}
	if len(in.Shifts) == 0 {
		return Resource{}, ErrInvalidShift
	}
	shifts := make([]ShiftWindow, 0, len(in.Shifts))
	for _, shift := range in.Shifts {
		if err := shift.Validate(); err != nil {
			return Resource{}, err
		}
		shift.Weekdays = slices.Clone(shift.Weekdays)
		slices.Sort(shift.Weekdays)
		shifts = append(shifts, shift)
	}
	exceptions := make([]Interval, 0, len(in.Exceptions))
	for _, ex := range in.Exceptions {
		normalized, err := NewInterval(ex.Start, ex.End)
		if err != nil {
			return Resource{}, err
		}
		exceptions = append(exceptions, normalized)
	}
	slices.SortFunc(exceptions, func(a, b Interval) int { return a.Start.Compare(b.Start) })

	return Resource{
		ID:           in.ID,
		Name:         in.Name,
		Capabilities: capabilities,
		Shifts:       shifts,
		Exceptions:   exceptions,
		CreatedAt:    now.UTC(),
		UpdatedAt:    now.UTC(),
	}, nil
}

// HasCapability reports whether the resource can process the capability.
func (r Resource) HasCapability(capability string) bool {
	return slices.Contains(r.Capabilities, NormalizeCapability(capability))
}

func normalizeCapabilities(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, raw := range in {
		c := NormalizeCapability(raw)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}
