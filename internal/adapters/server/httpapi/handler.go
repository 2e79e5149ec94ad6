// Package httpapi provides the REST HTTP adapter for the server surfaces.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/hylla/takt/internal/adapters/server/common"
)

// maxRequestBodyBytes limits decoded JSON payload size for fail-closed request handling.
const maxRequestBodyBytes int64 = 1 << 20

// Handler serves the versioned API subrouter mounted under `/api/v1`.
type Handler struct {
	schedules common.SchedulingService
	catalog   common.CatalogService
}

// APIError represents one structured API failure response.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Hint    string         `json:"hint,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// ErrorEnvelope wraps one structured API error.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// NewHandler constructs one HTTP API adapter from the scheduling and optional catalog services.
func NewHandler(schedules common.SchedulingService, catalog common.CatalogService) *Handler {
	return &Handler{
		schedules: schedules,
		catalog:   catalog,
	}
}

// ServeHTTP routes one versioned API request to the matching handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path)
	switch {
	case len(parts) == 1 && parts[0] == "schedules":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleGenerate(w, r)
	case len(parts) == 2 && parts[0] == "schedules":
		switch r.Method {
		case http.MethodGet:
			h.handleGetSchedule(w, r, parts[1])
		case http.MethodDelete:
			h.handleReset(w, r, parts[1])
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodDelete)
		}
	case len(parts) == 3 && parts[0] == "schedules":
		h.routeScheduleAction(w, r, parts[1], parts[2])
	case len(parts) == 3 && parts[0] == "lineages" && parts[2] == "history":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleHistory(w, r, parts[1])
	case len(parts) == 1 && parts[0] == "work-orders":
		h.routeWorkOrders(w, r)
	case len(parts) == 1 && parts[0] == "resources":
		h.routeResources(w, r)
	default:
		writeNotFound(w)
	}
}

// routeScheduleAction dispatches `/schedules/{id}/{action}`.
func (h *Handler) routeScheduleAction(w http.ResponseWriter, r *http.Request, id, action string) {
	type route struct {
		method string
		serve  func(http.ResponseWriter, *http.Request, string)
	}
	routes := map[string]route{
		"preview":       {http.MethodGet, h.handlePreview},
		"gantt":         {http.MethodGet, h.handleGantt},
		"conflicts":     {http.MethodGet, h.handleConflicts},
		"comparison":    {http.MethodGet, h.handleComparison},
		"confirm":       {http.MethodPost, h.handleConfirm},
		"adjust":        {http.MethodPost, h.handleAdjust},
		"urgent-insert": {http.MethodPost, h.handleUrgentInsert},
		"rollback":      {http.MethodPost, h.handleRollback},
	}
	rt, ok := routes[action]
	if !ok {
		writeNotFound(w)
		return
	}
	if r.Method != rt.method {
		writeMethodNotAllowed(w, rt.method)
		return
	}
	rt.serve(w, r, id)
}

// handleGenerate serves POST `/schedules`.
func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req common.GenerateScheduleRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	res, err := h.schedules.GenerateSchedule(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// handleGetSchedule serves GET `/schedules/{id}`.
func (h *Handler) handleGetSchedule(w http.ResponseWriter, r *http.Request, id string) {
	schedule, err := h.schedules.GetSchedule(r.Context(), id)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, schedule)
}

// handleReset serves DELETE `/schedules/{id}`.
func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request, id string) {
	req := common.ResetScheduleRequest{
		ScheduleID: id,
		Actor:      strings.TrimSpace(r.URL.Query().Get("actor")),
		Reason:     strings.TrimSpace(r.URL.Query().Get("reason")),
	}
	res, err := h.schedules.ResetSchedule(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handlePreview serves GET `/schedules/{id}/preview`.
func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request, id string) {
	res, err := h.schedules.PreviewSchedule(r.Context(), id)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleGantt serves GET `/schedules/{id}/gantt`.
func (h *Handler) handleGantt(w http.ResponseWriter, r *http.Request, id string) {
	res, err := h.schedules.Gantt(r.Context(), id)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleConflicts serves GET `/schedules/{id}/conflicts`.
func (h *Handler) handleConflicts(w http.ResponseWriter, r *http.Request, id string) {
	includeResolved, err := parseBoolQuery(r, "include_resolved")
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	conflicts, err := h.schedules.ListConflicts(r.Context(), id, includeResolved)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conflicts": conflicts,
	})
}

// handleComparison serves GET `/schedules/{id}/comparison`.
func (h *Handler) handleComparison(w http.ResponseWriter, r *http.Request, id string) {
	res, err := h.schedules.CompareStrategies(r.Context(), id, strings.TrimSpace(r.URL.Query().Get("strategy")))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleConfirm serves POST `/schedules/{id}/confirm`.
func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request, id string) {
	var req common.ConfirmScheduleRequest
	if err := decodeOptionalJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.ScheduleID = id
	res, err := h.schedules.ConfirmSchedule(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleAdjust serves POST `/schedules/{id}/adjust`.
func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request, id string) {
	var req common.AdjustScheduleRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.ScheduleID = id
	res, err := h.schedules.AdjustSchedule(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleUrgentInsert serves POST `/schedules/{id}/urgent-insert`.
func (h *Handler) handleUrgentInsert(w http.ResponseWriter, r *http.Request, id string) {
	var req common.UrgentInsertRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.ScheduleID = id
	res, err := h.schedules.UrgentInsert(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// handleRollback serves POST `/schedules/{id}/rollback`.
func (h *Handler) handleRollback(w http.ResponseWriter, r *http.Request, id string) {
	var req common.RollbackRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.ScheduleID = id
	res, err := h.schedules.Rollback(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// handleHistory serves GET `/lineages/{lineage_id}/history`.
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request, lineageID string) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeErrorFrom(w, fmt.Errorf("limit must be a non-negative integer: %w", common.ErrInvalidRequest))
			return
		}
		limit = parsed
	}
	entries, err := h.schedules.History(r.Context(), lineageID, limit)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
	})
}

// routeWorkOrders serves GET/POST `/work-orders`.
func (h *Handler) routeWorkOrders(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		writeNotImplemented(w, "work order APIs are not available")
		return
	}
	switch r.Method {
	case http.MethodGet:
		orders, err := h.catalog.ListWorkOrders(r.Context())
		if err != nil {
			writeErrorFrom(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"work_orders": orders})
	case http.MethodPost:
		var req common.WorkOrderRequest
		if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
			writeErrorFrom(w, err)
			return
		}
		order, err := h.catalog.UpsertWorkOrder(r.Context(), req)
		if err != nil {
			writeErrorFrom(w, err)
			return
		}
		writeJSON(w, http.StatusOK, order)
	default:
		writeMethodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

// routeResources serves GET/POST `/resources`.
func (h *Handler) routeResources(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		writeNotImplemented(w, "resource APIs are not available")
		return
	}
	switch r.Method {
	case http.MethodGet:
		resources, err := h.catalog.ListResources(r.Context())
		if err != nil {
			writeErrorFrom(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"resources": resources})
	case http.MethodPost:
		var req common.ResourceRequest
		if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
			writeErrorFrom(w, err)
			return
		}
		resource, err := h.catalog.UpsertResource(r.Context(), req)
		if err != nil {
			writeErrorFrom(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resource)
	default:
		writeMethodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

// splitPath canonicalizes one request path into non-empty segments.
func splitPath(path string) []string {
	path = strings.Trim(strings.TrimSpace(path), "/")
	if path == "" {
		return nil
	}
	parts := strings.Split(path, "/")
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			return nil
		}
	}
	return parts
}

// parseBoolQuery parses one optional boolean query parameter.
func parseBoolQuery(r *http.Request, key string) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean: %w", key, common.ErrInvalidRequest)
	}
	return v, nil
}

// writeErrorFrom maps adapter errors into structured HTTP responses.
func writeErrorFrom(w http.ResponseWriter, err error) {
	if err == nil {
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: "unknown error",
		})
		return
	}
	code := common.ErrorCode(err)
	apiErr := APIError{Code: code, Message: err.Error()}
	status := http.StatusInternalServerError
	switch code {
	case "not_found":
		status = http.StatusNotFound
	case "invalid_request":
		status = http.StatusBadRequest
	case "stale_version":
		status = http.StatusConflict
		apiErr.Hint = "Reload the schedule and retry with its current version."
	case "conflicts_unresolved":
		status = http.StatusConflict
		apiErr.Hint = "Resolve the listed resource conflicts or confirm with force."
	case "invalid_state":
		status = http.StatusConflict
	case "infeasible":
		status = http.StatusUnprocessableEntity
	}
	writeJSONError(w, status, apiErr)
}

// writeNotFound writes a structured 404 response for unknown endpoints.
func writeNotFound(w http.ResponseWriter) {
	writeJSONError(w, http.StatusNotFound, APIError{
		Code:    "not_found",
		Message: "endpoint not found",
	})
}

// writeNotImplemented writes a structured 501 response.
func writeNotImplemented(w http.ResponseWriter, message string) {
	writeJSONError(w, http.StatusNotImplemented, APIError{
		Code:    "not_implemented",
		Message: message,
	})
}

// writeMethodNotAllowed writes a structured 405 response with `Allow` headers.
func writeMethodNotAllowed(w http.ResponseWriter, methods ...string) {
	if len(methods) > 0 {
		w.Header().Set("Allow", strings.Join(methods, ", "))
	}
	writeJSONError(w, http.StatusMethodNotAllowed, APIError{
		Code:    "method_not_allowed",
		Message: "method not allowed",
	})
}

// writeJSONError writes one structured error envelope.
func writeJSONError(w http.ResponseWriter, statusCode int, apiErr APIError) {
	writeJSON(w, statusCode, ErrorEnvelope{Error: apiErr})
}

// writeJSON writes one JSON response envelope.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":{"code":"encode_error","message":"%s"}}`, err.Error()), http.StatusInternalServerError)
	}
}

// decodeJSONBody decodes one required JSON request body with strict shape checks.
func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode request body: %w", errors.Join(common.ErrInvalidRequest, err))
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request body: trailing content: %w", common.ErrInvalidRequest)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("request canceled: %w", ctx.Err())
	default:
		return nil
	}
}

// decodeOptionalJSONBody decodes one optional JSON body and ignores empty payloads.
func decodeOptionalJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	err := decoder.Decode(out)
	if err == nil {
		select {
		case <-ctx.Done():
			return fmt.Errorf("request canceled: %w", ctx.Err())
		default:
			return nil
		}
	}
	if errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("decode request body: %w", errors.Join(common.ErrInvalidRequest, err))
}
