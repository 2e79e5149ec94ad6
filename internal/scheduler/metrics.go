package scheduler

import (
	"math"
	"slices"
	"strings"
	"time"

	"github.com/hylla/takt/internal/domain"
)

// Weights balances the three quality score components.
type Weights struct {
	Utilization float64
	Tardiness   float64
	Makespan    float64
}

// DefaultWeights favours utilization and punctuality over compactness.
var DefaultWeights = Weights{Utilization: 0.4, Tardiness: 0.4, Makespan: 0.2}

func (w Weights) normalized() Weights {
	sum := w.Utilization + w.Tardiness + w.Makespan
	if sum <= 0 || w.Utilization < 0 || w.Tardiness < 0 || w.Makespan < 0 {
		return DefaultWeights
	}
	return Weights{Utilization: w.Utilization / sum, Tardiness: w.Tardiness / sum, Makespan: w.Makespan / sum}
}

// ResourceUtilization is busy versus available time of one resource inside the schedule span.
type ResourceUtilization struct {
	ResourceID  string
	Busy        time.Duration
	Available   time.Duration
	Utilization float64
}

// Metrics summarizes schedule quality.
type Metrics struct {
	Start              time.Time
	End                time.Time
	Makespan           time.Duration
	Resources          []ResourceUtilization
	AverageUtilization float64
	TotalTardiness     time.Duration
	LateCount          int
	QualityScore       float64
}

// Evaluate computes makespan, utilization, tardiness and a 0-100 quality score.
func Evaluate(s domain.Schedule, orders []domain.WorkOrder, cal *Calendar, w Weights) Metrics {
	m := Metrics{Resources: []ResourceUtilization{}}
	if len(s.Assignments) == 0 {
		return m
	}
	w = w.normalized()
	byID := indexOrders(orders)

	m.Start, m.End = s.Assignments[0].Start, s.Assignments[0].End
	busy := map[string]time.Duration{}
	var totalDuration time.Duration
	for _, a := range s.Assignments {
		if a.Start.Before(m.Start) {
			m.Start = a.Start
		}
		if a.End.After(m.End) {
			m.End = a.End
		}
		busy[a.ResourceID] += a.End.Sub(a.Start)
		totalDuration += a.End.Sub(a.Start)
		if o, ok := byID[a.WorkOrderID]; ok {
			if late := o.Tardiness(a.End); late > 0 {
				m.TotalTardiness += late
				m.LateCount++
			}
		}
	}
	m.Makespan = m.End.Sub(m.Start)
	span := domain.Interval{Start: m.Start, End: m.End}

	resourceIDs := make([]string, 0, len(busy))
	for id := range busy {
		resourceIDs = append(resourceIDs, id)
	}
	slices.SortFunc(resourceIDs, strings.Compare)

	var utilSum float64
	for _, id := range resourceIDs {
		ru := ResourceUtilization{ResourceID: id, Busy: busy[id]}
		if cal != nil {
			if available, err := cal.AvailableTime(id, span); err == nil {
				ru.Available = available
			}
		}
		if ru.Available > 0 {
			ru.Utilization = round2(math.Min(100, float64(ru.Busy)/float64(ru.Available)*100))
		}
		utilSum += ru.Utilization
		m.Resources = append(m.Resources, ru)
	}
	m.AverageUtilization = round2(utilSum / float64(len(resourceIDs)))

	punctuality := 0.0
	if totalDuration > 0 {
		punctuality = math.Max(0, 1-float64(m.TotalTardiness)/float64(totalDuration)) * 100
	}
	compactness := 0.0
	if m.Makespan > 0 {
		compactness = math.Min(1, float64(totalDuration)/(float64(m.Makespan)*float64(len(resourceIDs)))) * 100
	}
	score := w.Utilization*m.AverageUtilization + w.Tardiness*punctuality + w.Makespan*compactness
	m.QualityScore = round2(math.Max(0, math.Min(100, score)))
	return m
}

// GanttBar is one timeline row.
type GanttBar struct {
	ResourceID  string
	WorkOrderID string
	Name        string
	Start       time.Time
	End         time.Time
	Sequence    int
	Priority    domain.Priority
	Late        bool
	Tardiness   time.Duration
}

// Project flattens assignments into timeline rows ordered by resource then start.
func Project(s domain.Schedule, orders []domain.WorkOrder) []GanttBar {
	byID := indexOrders(orders)
	assignments := slices.Clone(s.Assignments)
	slices.SortFunc(assignments, domain.CompareAssignments)

	out := make([]GanttBar, 0, len(assignments))
	for _, a := range assignments {
		bar := GanttBar{
			ResourceID:  a.ResourceID,
			WorkOrderID: a.WorkOrderID,
			Name:        a.WorkOrderID,
			Start:       a.Start,
			End:         a.End,
			Sequence:    a.Sequence,
			Priority:    domain.PriorityNormal,
		}
		if o, ok := byID[a.WorkOrderID]; ok {
			bar.Name = o.Name
			bar.Priority = o.Priority
			bar.Tardiness = o.Tardiness(a.End)
			bar.Late = bar.Tardiness > 0
		}
		out = append(out, bar)
	}
	return out
}

func indexOrders(orders []domain.WorkOrder) map[string]domain.WorkOrder {
	out := make(map[string]domain.WorkOrder, len(orders))
	for _, o := range orders {
		out[o.ID] = o
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
