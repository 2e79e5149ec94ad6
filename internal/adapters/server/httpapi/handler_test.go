package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hylla/takt/internal/adapters/server/common"
)

// stubSchedulingService records requests and returns deterministic fixtures.
type stubSchedulingService struct {
	err          error
	schedule     common.ScheduleView
	lastGenerate common.GenerateScheduleRequest
	lastConfirm  common.ConfirmScheduleRequest
	lastAdjust   common.AdjustScheduleRequest
	lastUrgent   common.UrgentInsertRequest
	lastReset    common.ResetScheduleRequest
	lastRollback common.RollbackRequest
	lastID       string
	lastStrategy string
	lastInclude  bool
	lastLimit    int
}

func (s *stubSchedulingService) response() (common.ScheduleResponse, error) {
	if s.err != nil {
		return common.ScheduleResponse{}, s.err
	}
	return common.ScheduleResponse{Schedule: s.schedule, Conflicts: []common.ConflictView{}}, nil
}

func (s *stubSchedulingService) GenerateSchedule(_ context.Context, req common.GenerateScheduleRequest) (common.ScheduleResponse, error) {
	s.lastGenerate = req
	return s.response()
}

func (s *stubSchedulingService) GetSchedule(_ context.Context, id string) (common.ScheduleView, error) {
	s.lastID = id
	if s.err != nil {
		return common.ScheduleView{}, s.err
	}
	return s.schedule, nil
}

func (s *stubSchedulingService) PreviewSchedule(_ context.Context, id string) (common.GanttResponse, error) {
	s.lastID = id
	if s.err != nil {
		return common.GanttResponse{}, s.err
	}
	return common.GanttResponse{Schedule: s.schedule, Metrics: common.MetricsView{QualityScore: 92}}, nil
}

func (s *stubSchedulingService) Gantt(ctx context.Context, id string) (common.GanttResponse, error) {
	return s.PreviewSchedule(ctx, id)
}

func (s *stubSchedulingService) ListConflicts(_ context.Context, id string, includeResolved bool) ([]common.ConflictView, error) {
	s.lastID = id
	s.lastInclude = includeResolved
	if s.err != nil {
		return nil, s.err
	}
	return []common.ConflictView{{ID: "c1", ScheduleID: id, ResourceID: "m1"}}, nil
}

func (s *stubSchedulingService) ConfirmSchedule(_ context.Context, req common.ConfirmScheduleRequest) (common.ScheduleResponse, error) {
	s.lastConfirm = req
	return s.response()
}

func (s *stubSchedulingService) AdjustSchedule(_ context.Context, req common.AdjustScheduleRequest) (common.ScheduleResponse, error) {
	s.lastAdjust = req
	return s.response()
}

func (s *stubSchedulingService) UrgentInsert(_ context.Context, req common.UrgentInsertRequest) (common.ScheduleResponse, error) {
	s.lastUrgent = req
	return s.response()
}

func (s *stubSchedulingService) CompareStrategies(_ context.Context, id string, strategy string) (common.ComparisonResponse, error) {
	s.lastID = id
	s.lastStrategy = strategy
	if s.err != nil {
		return common.ComparisonResponse{}, s.err
	}
	return common.ComparisonResponse{ScheduleID: id, Strategy: "heuristic"}, nil
}

func (s *stubSchedulingService) ResetSchedule(_ context.Context, req common.ResetScheduleRequest) (common.ResetResponse, error) {
	s.lastReset = req
	if s.err != nil {
		return common.ResetResponse{}, s.err
	}
	return common.ResetResponse{ScheduleID: req.ScheduleID, Reset: true}, nil
}

func (s *stubSchedulingService) Rollback(_ context.Context, req common.RollbackRequest) (common.ScheduleResponse, error) {
	s.lastRollback = req
	return s.response()
}

func (s *stubSchedulingService) History(_ context.Context, lineageID string, limit int) ([]common.HistoryEntry, error) {
	s.lastID = lineageID
	s.lastLimit = limit
	if s.err != nil {
		return nil, s.err
	}
	return []common.HistoryEntry{{ID: 1, LineageID: lineageID, Type: "generate"}}, nil
}

// stubCatalogService returns fixed catalog rows.
type stubCatalogService struct {
	lastOrder common.WorkOrderRequest
}

func (s *stubCatalogService) ListWorkOrders(context.Context) ([]common.WorkOrderView, error) {
	return []common.WorkOrderView{{ID: "A"}}, nil
}

func (s *stubCatalogService) UpsertWorkOrder(_ context.Context, req common.WorkOrderRequest) (common.WorkOrderView, error) {
	s.lastOrder = req
	return common.WorkOrderView{ID: req.ID, DurationMinutes: req.DurationMinutes}, nil
}

func (s *stubCatalogService) ListResources(context.Context) ([]common.ResourceView, error) {
	return []common.ResourceView{{ID: "m1"}}, nil
}

func (s *stubCatalogService) UpsertResource(_ context.Context, req common.ResourceRequest) (common.ResourceView, error) {
	return common.ResourceView{ID: req.ID}, nil
}

// serve runs one request through the handler.
func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// decodeError decodes one error envelope.
func decodeError(t *testing.T, rec *httptest.ResponseRecorder) APIError {
	t.Helper()
	var env ErrorEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	return env.Error
}

// TestHandlerGenerateSchedule verifies body decoding and the created status.
func TestHandlerGenerateSchedule(t *testing.T) {
	svc := &stubSchedulingService{schedule: common.ScheduleView{ID: "s1", Version: 1, Status: "draft"}}
	handler := NewHandler(svc, nil)

	rec := serve(handler, http.MethodPost, "/schedules", `{"lineage_id":"line-1","strategy":"heuristic","work_order_ids":["A","B"],"horizon_start":"2026-03-02T00:00:00Z","horizon_days":7}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d (%s)", rec.Code, http.StatusCreated, rec.Body.String())
	}
	var got common.ScheduleResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.Schedule.ID != "s1" || got.Schedule.Status != "draft" {
		t.Fatalf("unexpected schedule %#v", got.Schedule)
	}
	req := svc.lastGenerate
	if req.LineageID != "line-1" || req.Strategy != "heuristic" || len(req.WorkOrderIDs) != 2 || req.HorizonDays != 7 {
		t.Fatalf("unexpected generate request %#v", req)
	}
	if req.HorizonStart == nil || !req.HorizonStart.Equal(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected horizon start %v", req.HorizonStart)
	}
}

// TestHandlerRejectsMalformedBodies verifies strict body decoding.
func TestHandlerRejectsMalformedBodies(t *testing.T) {
	handler := NewHandler(&stubSchedulingService{}, nil)
	cases := []struct {
		name string
		body string
	}{
		{name: "unknown field", body: `{"lineage_id":"l","bogus":1}`},
		{name: "trailing content", body: `{"lineage_id":"l"} {}`},
		{name: "not json", body: `lineage`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(handler, http.MethodPost, "/schedules", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
			if got := decodeError(t, rec); got.Code != "invalid_request" {
				t.Fatalf("code = %q, want invalid_request", got.Code)
			}
		})
	}
}

// TestHandlerScheduleActions verifies path parameters reach the service.
func TestHandlerScheduleActions(t *testing.T) {
	svc := &stubSchedulingService{schedule: common.ScheduleView{ID: "s1"}}
	handler := NewHandler(svc, nil)

	if rec := serve(handler, http.MethodPost, "/schedules/s1/confirm", ""); rec.Code != http.StatusOK {
		t.Fatalf("confirm without body status = %d", rec.Code)
	}
	if svc.lastConfirm.ScheduleID != "s1" || svc.lastConfirm.Force {
		t.Fatalf("unexpected confirm request %#v", svc.lastConfirm)
	}
	if rec := serve(handler, http.MethodPost, "/schedules/s1/confirm", `{"expected_version":2,"force":true,"actor":"lee"}`); rec.Code != http.StatusOK {
		t.Fatalf("confirm status = %d", rec.Code)
	}
	if svc.lastConfirm.ExpectedVersion != 2 || !svc.lastConfirm.Force || svc.lastConfirm.Actor != "lee" {
		t.Fatalf("unexpected confirm request %#v", svc.lastConfirm)
	}

	if rec := serve(handler, http.MethodPost, "/schedules/s1/adjust", `{"work_order_id":"A","resource_id":"m2","start":"2026-03-02T09:00:00Z"}`); rec.Code != http.StatusOK {
		t.Fatalf("adjust status = %d", rec.Code)
	}
	if svc.lastAdjust.ScheduleID != "s1" || svc.lastAdjust.ResourceID != "m2" || svc.lastAdjust.Start.Hour() != 9 {
		t.Fatalf("unexpected adjust request %#v", svc.lastAdjust)
	}

	if rec := serve(handler, http.MethodPost, "/schedules/s1/urgent-insert", `{"order":{"id":"C","capability":"cnc","duration_minutes":60,"earliest_start":"2026-03-02T08:00:00Z","due_at":"2026-03-02T09:00:00Z"}}`); rec.Code != http.StatusCreated {
		t.Fatalf("urgent-insert status = %d", rec.Code)
	}
	if svc.lastUrgent.ScheduleID != "s1" || svc.lastUrgent.Order == nil || svc.lastUrgent.Order.DurationMinutes != 60 {
		t.Fatalf("unexpected urgent request %#v", svc.lastUrgent)
	}

	if rec := serve(handler, http.MethodPost, "/schedules/s1/rollback", `{"target_version":1}`); rec.Code != http.StatusCreated {
		t.Fatalf("rollback status = %d", rec.Code)
	}
	if svc.lastRollback.TargetVersion != 1 {
		t.Fatalf("unexpected rollback request %#v", svc.lastRollback)
	}

	if rec := serve(handler, http.MethodDelete, "/schedules/s1?actor=lee&reason=wrong+inputs", ""); rec.Code != http.StatusOK {
		t.Fatalf("reset status = %d", rec.Code)
	}
	if svc.lastReset.ScheduleID != "s1" || svc.lastReset.Reason != "wrong inputs" {
		t.Fatalf("unexpected reset request %#v", svc.lastReset)
	}

	if rec := serve(handler, http.MethodGet, "/schedules/s1/comparison?strategy=greedy", ""); rec.Code != http.StatusOK {
		t.Fatalf("comparison status = %d", rec.Code)
	}
	if svc.lastStrategy != "greedy" {
		t.Fatalf("strategy = %q, want greedy", svc.lastStrategy)
	}

	rec := serve(handler, http.MethodGet, "/schedules/s1/gantt", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("gantt status = %d", rec.Code)
	}
	var gantt common.GanttResponse
	if err := json.NewDecoder(rec.Body).Decode(&gantt); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if gantt.Metrics.QualityScore != 92 {
		t.Fatalf("quality_score = %v, want 92", gantt.Metrics.QualityScore)
	}
}

// TestHandlerConflictsAndHistoryQueries verifies query parameter parsing.
func TestHandlerConflictsAndHistoryQueries(t *testing.T) {
	svc := &stubSchedulingService{}
	handler := NewHandler(svc, nil)

	if rec := serve(handler, http.MethodGet, "/schedules/s1/conflicts?include_resolved=true", ""); rec.Code != http.StatusOK {
		t.Fatalf("conflicts status = %d", rec.Code)
	}
	if !svc.lastInclude {
		t.Fatal("expected include_resolved to be forwarded")
	}
	if rec := serve(handler, http.MethodGet, "/schedules/s1/conflicts?include_resolved=maybe", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid include_resolved status = %d, want 400", rec.Code)
	}

	rec := serve(handler, http.MethodGet, "/lineages/line-1/history?limit=5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("history status = %d", rec.Code)
	}
	if svc.lastID != "line-1" || svc.lastLimit != 5 {
		t.Fatalf("unexpected history args %q %d", svc.lastID, svc.lastLimit)
	}
	var body struct {
		Entries []common.HistoryEntry `json:"entries"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(body.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(body.Entries))
	}
	if rec := serve(handler, http.MethodGet, "/lineages/line-1/history?limit=-1", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("negative limit status = %d, want 400", rec.Code)
	}
}

// TestHandlerErrorMapping verifies structured status mapping for service errors.
func TestHandlerErrorMapping(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		status   int
		code     string
		wantHint bool
	}{
		{name: "not found", err: fmt.Errorf("get: %w", common.ErrNotFound), status: http.StatusNotFound, code: "not_found"},
		{name: "invalid", err: fmt.Errorf("get: %w", common.ErrInvalidRequest), status: http.StatusBadRequest, code: "invalid_request"},
		{name: "stale", err: fmt.Errorf("get: %w", common.ErrStaleVersion), status: http.StatusConflict, code: "stale_version", wantHint: true},
		{name: "conflicts", err: fmt.Errorf("get: %w", common.ErrConflictsUnresolved), status: http.StatusConflict, code: "conflicts_unresolved", wantHint: true},
		{name: "state", err: fmt.Errorf("get: %w", common.ErrInvalidState), status: http.StatusConflict, code: "invalid_state"},
		{name: "infeasible", err: fmt.Errorf("get: %w", common.ErrInfeasible), status: http.StatusUnprocessableEntity, code: "infeasible"},
		{name: "internal", err: errors.New("disk on fire"), status: http.StatusInternalServerError, code: "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewHandler(&stubSchedulingService{err: tc.err}, nil)
			rec := serve(handler, http.MethodGet, "/schedules/s1", "")
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			got := decodeError(t, rec)
			if got.Code != tc.code {
				t.Fatalf("code = %q, want %q", got.Code, tc.code)
			}
			if tc.wantHint && got.Hint == "" {
				t.Fatal("expected hint in error envelope")
			}
		})
	}
}

// TestHandlerRouting verifies unknown endpoints and method guards.
func TestHandlerRouting(t *testing.T) {
	handler := NewHandler(&stubSchedulingService{}, nil)

	rec := serve(handler, http.MethodGet, "/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown endpoint status = %d, want 404", rec.Code)
	}
	rec = serve(handler, http.MethodGet, "/schedules/s1/unknown", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown action status = %d, want 404", rec.Code)
	}
	rec = serve(handler, http.MethodGet, "/schedules/s1/confirm", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("wrong method status = %d, want 405", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); allow != http.MethodPost {
		t.Fatalf("Allow = %q, want POST", allow)
	}
	rec = serve(handler, http.MethodPut, "/schedules/s1", "")
	if allow := rec.Header().Get("Allow"); allow != "GET, DELETE" {
		t.Fatalf("Allow = %q, want GET, DELETE", allow)
	}
	rec = serve(handler, http.MethodGet, "/work-orders", "")
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("catalog without service status = %d, want 501", rec.Code)
	}
}

// TestHandlerCatalog verifies work order and resource maintenance routes.
func TestHandlerCatalog(t *testing.T) {
	catalog := &stubCatalogService{}
	handler := NewHandler(&stubSchedulingService{}, catalog)

	rec := serve(handler, http.MethodPost, "/work-orders", `{"id":"A","capability":"cnc","duration_minutes":120,"earliest_start":"2026-03-02T08:00:00Z","due_at":"2026-03-02T10:00:00Z"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("upsert work order status = %d (%s)", rec.Code, rec.Body.String())
	}
	if catalog.lastOrder.ID != "A" || catalog.lastOrder.DurationMinutes != 120 {
		t.Fatalf("unexpected work order request %#v", catalog.lastOrder)
	}
	rec = serve(handler, http.MethodGet, "/resources", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list resources status = %d", rec.Code)
	}
	var body struct {
		Resources []common.ResourceView `json:"resources"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(body.Resources) != 1 || body.Resources[0].ID != "m1" {
		t.Fatalf("unexpected resources %#v", body.Resources)
	}
}
