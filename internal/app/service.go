package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hylla/takt/internal/domain"
	"github.com/hylla/takt/internal/scheduler"
)

// Logger is the subset of *log.Logger the service writes to.
type Logger interface {
	Info(msg any, keyvals ...any)
	Warn(msg any, keyvals ...any)
}

// ServiceConfig holds configuration for service.
type ServiceConfig struct {
	DefaultStrategy domain.Strategy
	HorizonDays     int
	IterationFactor int
	Weights         scheduler.Weights
	DefaultActor    string
	Logger          Logger
}

// IDGenerator returns unique identifiers for new entities.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

// Service orchestrates the scheduling engine over persisted state.
type Service struct {
	repo            Repository
	audit           AdjustmentLog
	idGen           IDGenerator
	clock           Clock
	logger          Logger
	defaultStrategy domain.Strategy
	horizon         time.Duration
	iterationFactor int
	weights         scheduler.Weights
	defaultActor    string
}

// NewService constructs a new value for this package.
func NewService(repo Repository, idGen IDGenerator, clock Clock, cfg ServiceConfig) *Service {
	if idGen == nil {
		idGen = func() string { return "" }
	}
	if clock == nil {
		clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard)
	}
	if cfg.DefaultStrategy == "" {
		cfg.DefaultStrategy = domain.StrategyGreedy
	}
	horizon := scheduler.DefaultHorizon
	if cfg.HorizonDays > 0 {
		horizon = time.Duration(cfg.HorizonDays) * 24 * time.Hour
	}
	if cfg.IterationFactor <= 0 {
		cfg.IterationFactor = scheduler.DefaultIterationFactor
	}
	if cfg.Weights == (scheduler.Weights{}) {
		cfg.Weights = scheduler.DefaultWeights
	}
	if strings.TrimSpace(cfg.DefaultActor) == "" {
		cfg.DefaultActor = "system"
	}

	return &Service{
		repo:            repo,
		audit:           repo,
		idGen:           idGen,
		clock:           clock,
		logger:          cfg.Logger,
		defaultStrategy: cfg.DefaultStrategy,
		horizon:         horizon,
		iterationFactor: cfg.IterationFactor,
		weights:         cfg.Weights,
		defaultActor:    strings.TrimSpace(cfg.DefaultActor),
	}
}

// UpsertWorkOrder creates or replaces a work order. Orders referenced by a confirmed
// schedule only accept priority escalation.
func (s *Service) UpsertWorkOrder(ctx context.Context, in domain.WorkOrderInput) (domain.WorkOrder, error) {
	order, err := s.buildWorkOrder(ctx, in)
	if err != nil {
		return domain.WorkOrder{}, err
	}
	if err := s.repo.UpsertWorkOrder(ctx, order); err != nil {
		return domain.WorkOrder{}, err
	}
	return order, nil
}

// buildWorkOrder validates in against the stored order without writing it.
func (s *Service) buildWorkOrder(ctx context.Context, in domain.WorkOrderInput) (domain.WorkOrder, error) {
	order, err := domain.NewWorkOrder(in, s.clock())
	if err != nil {
		return domain.WorkOrder{}, err
	}

	existing, err := s.repo.GetWorkOrder(ctx, order.ID)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return domain.WorkOrder{}, err
	default:
		order.CreatedAt = existing.CreatedAt
		committed, err := s.repo.WorkOrderCommitted(ctx, order.ID)
		if err != nil {
			return domain.WorkOrder{}, err
		}
		if committed && !onlyEscalation(existing, order) {
			return domain.WorkOrder{}, fmt.Errorf("%w: %s", ErrWorkOrderCommitted, order.ID)
		}
	}
	return order, nil
}

// EscalateWorkOrder raises one order to urgent.
func (s *Service) EscalateWorkOrder(ctx context.Context, id string) (domain.WorkOrder, error) {
	order, changed, err := s.escalatedWorkOrder(ctx, id)
	if err != nil || !changed {
		return order, err
	}
	if err := s.repo.UpsertWorkOrder(ctx, order); err != nil {
		return domain.WorkOrder{}, err
	}
	return order, nil
}

func (s *Service) escalatedWorkOrder(ctx context.Context, id string) (domain.WorkOrder, bool, error) {
	order, err := s.repo.GetWorkOrder(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.WorkOrder{}, false, err
	}
	if order.Urgent() {
		return order, false, nil
	}
	order.Escalate(s.clock())
	return order, true, nil
}

// ListWorkOrders lists work orders, optionally filtered by id.
func (s *Service) ListWorkOrders(ctx context.Context, ids []string) ([]domain.WorkOrder, error) {
	return s.repo.ListWorkOrders(ctx, cleanIDs(ids))
}

// UpsertResource creates or replaces a resource.
func (s *Service) UpsertResource(ctx context.Context, in domain.ResourceInput) (domain.Resource, error) {
	now := s.clock()
	resource, err := domain.NewResource(in, now)
	if err != nil {
		return domain.Resource{}, err
	}
	existing, err := s.repo.GetResource(ctx, resource.ID)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return domain.Resource{}, err
	default:
		resource.CreatedAt = existing.CreatedAt
	}
	if err := s.repo.UpsertResource(ctx, resource); err != nil {
		return domain.Resource{}, err
	}
	return resource, nil
}

// ListResources lists resources, optionally filtered by id.
func (s *Service) ListResources(ctx context.Context, ids []string) ([]domain.Resource, error) {
	return s.repo.ListResources(ctx, cleanIDs(ids))
}

// onlyEscalation reports whether next differs from prev by at most a normal to urgent change.
func onlyEscalation(prev, next domain.WorkOrder) bool {
	if prev.Priority != next.Priority && !(prev.Priority == domain.PriorityNormal && next.Priority == domain.PriorityUrgent) {
		return false
	}
	return prev.Name == next.Name &&
		prev.Capability == next.Capability &&
		prev.Duration == next.Duration &&
		prev.EarliestStart.Equal(next.EarliestStart) &&
		prev.DueAt.Equal(next.DueAt) &&
		slices.Equal(prev.Predecessors, next.Predecessors)
}

// loadWorkOrders resolves ids to orders; an empty id list selects nothing.
func (s *Service) loadWorkOrders(ctx context.Context, ids []string) ([]domain.WorkOrder, error) {
	ids = cleanIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	orders, err := s.repo.ListWorkOrders(ctx, ids)
	if err != nil {
		return nil, err
	}
	if missing := missingIDs(ids, orders, func(o domain.WorkOrder) string { return o.ID }); len(missing) > 0 {
		return nil, fmt.Errorf("%w: work orders %s", ErrNotFound, strings.Join(missing, ", "))
	}
	return orders, nil
}

// pendingWorkOrders returns catalog orders not yet placed in a confirmed or superseded version.
func (s *Service) pendingWorkOrders(ctx context.Context) ([]domain.WorkOrder, error) {
	all, err := s.repo.ListWorkOrders(ctx, nil)
	if err != nil {
		return nil, err
	}
	pending := make([]domain.WorkOrder, 0, len(all))
	for _, o := range all {
		committed, err := s.repo.WorkOrderCommitted(ctx, o.ID)
		if err != nil {
			return nil, err
		}
		if !committed {
			pending = append(pending, o)
		}
	}
	return pending, nil
}

// scheduleCatalog loads exactly the work orders and resources a schedule was built from.
func (s *Service) scheduleCatalog(ctx context.Context, schedule domain.Schedule) ([]domain.WorkOrder, []domain.Resource, error) {
	var (
		orders    []domain.WorkOrder
		resources []domain.Resource
		err       error
	)
	if len(schedule.WorkOrderIDs) > 0 {
		if orders, err = s.repo.ListWorkOrders(ctx, schedule.WorkOrderIDs); err != nil {
			return nil, nil, err
		}
	}
	if len(schedule.ResourceIDs) > 0 {
		if resources, err = s.repo.ListResources(ctx, schedule.ResourceIDs); err != nil {
			return nil, nil, err
		}
	}
	return orders, resources, nil
}

// loadResources resolves ids to resources; an empty id list loads every resource.
func (s *Service) loadResources(ctx context.Context, ids []string) ([]domain.Resource, error) {
	ids = cleanIDs(ids)
	resources, err := s.repo.ListResources(ctx, ids)
	if err != nil {
		return nil, err
	}
	if missing := missingIDs(ids, resources, func(r domain.Resource) string { return r.ID }); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrResourceNotFound, strings.Join(missing, ", "))
	}
	return resources, nil
}

func missingIDs[T any](want []string, got []T, id func(T) string) []string {
	found := make(map[string]struct{}, len(got))
	for _, item := range got {
		found[id(item)] = struct{}{}
	}
	missing := []string{}
	for _, w := range want {
		if _, ok := found[w]; !ok {
			missing = append(missing, w)
		}
	}
	return missing
}

func cleanIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		out = append(out, id)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func (s *Service) actor(ctx context.Context, explicit string) string {
	if actor := strings.TrimSpace(explicit); actor != "" {
		return actor
	}
	if actor, ok := ActorFromContext(ctx); ok {
		return actor
	}
	return s.defaultActor
}
