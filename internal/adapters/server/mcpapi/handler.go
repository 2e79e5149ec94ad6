// Package mcpapi provides a stateless MCP streamable-HTTP adapter.
package mcpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/hylla/takt/internal/adapters/server/common"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Config captures MCP transport configuration.
type Config struct {
	ServerName    string
	ServerVersion string
	EndpointPath  string
}

// Handler wraps one stateless MCP streamable HTTP handler.
type Handler struct {
	httpHandler http.Handler
}

// NewHandler builds one stateless MCP adapter exposing the scheduling tools.
func NewHandler(cfg Config, schedules common.SchedulingService) (*Handler, error) {
	if schedules == nil {
		return nil, fmt.Errorf("scheduling service is required")
	}
	cfg = normalizeConfig(cfg)

	mcpSrv := mcpserver.NewMCPServer(
		cfg.ServerName,
		cfg.ServerVersion,
		mcpserver.WithToolCapabilities(false),
	)
	registerReadTools(mcpSrv, schedules)
	registerMutationTools(mcpSrv, schedules)

	streamable := mcpserver.NewStreamableHTTPServer(
		mcpSrv,
		mcpserver.WithEndpointPath(cfg.EndpointPath),
		mcpserver.WithStateLess(true),
	)
	return &Handler{httpHandler: streamable}, nil
}

// ServeHTTP handles one MCP streamable HTTP request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.httpHandler == nil {
		http.Error(w, "mcp handler unavailable", http.StatusServiceUnavailable)
		return
	}
	h.httpHandler.ServeHTTP(w, r)
}

// normalizeConfig applies deterministic defaults to MCP adapter config.
func normalizeConfig(cfg Config) Config {
	cfg.ServerName = strings.TrimSpace(cfg.ServerName)
	if cfg.ServerName == "" {
		cfg.ServerName = "takt"
	}
	cfg.ServerVersion = strings.TrimSpace(cfg.ServerVersion)
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}
	cfg.EndpointPath = strings.TrimSpace(cfg.EndpointPath)
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/mcp"
	}
	if !strings.HasPrefix(cfg.EndpointPath, "/") {
		cfg.EndpointPath = "/" + cfg.EndpointPath
	}
	cfg.EndpointPath = "/" + strings.Trim(cfg.EndpointPath, "/")
	return cfg
}

// registerReadTools registers generation and read-only schedule tools.
func registerReadTools(srv *mcpserver.MCPServer, schedules common.SchedulingService) {
	srv.AddTool(
		mcp.NewTool(
			"takt.generate_schedule",
			mcp.WithDescription("Generate a draft production schedule for a lineage from the work-order and resource catalog."),
			mcp.WithString("lineage_id", mcp.Required(), mcp.Description("Schedule lineage identifier")),
			mcp.WithString("name", mcp.Description("Optional display name")),
			mcp.WithArray("work_order_ids", mcp.Description("Work orders to plan"), mcp.WithStringItems()),
			mcp.WithBoolean("pending", mcp.Description("Plan every uncommitted catalog order when work_order_ids is empty")),
			mcp.WithArray("resource_ids", mcp.Description("Resources to plan on; defaults to the whole catalog"), mcp.WithStringItems()),
			mcp.WithString("strategy", mcp.Description("Planning strategy"), mcp.Enum("greedy", "heuristic")),
			mcp.WithString("horizon_start", mcp.Description("RFC3339 horizon start; defaults to the earliest ready time")),
			mcp.WithNumber("horizon_days", mcp.Description("Horizon length in days")),
			mcp.WithString("actor", mcp.Description("Actor recorded in the adjustment log")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args common.GenerateScheduleRequest
			if err := req.BindArguments(&args); err != nil {
				return invalidRequestToolResult(err), nil
			}
			if strings.TrimSpace(args.LineageID) == "" {
				return mcp.NewToolResultError(`invalid_request: required argument "lineage_id" not found`), nil
			}
			resp, err := schedules.GenerateSchedule(ctx, args)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonToolResult("generate_schedule", resp)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"takt.get_schedule",
			mcp.WithDescription("Return one schedule version with its assignments."),
			mcp.WithString("schedule_id", mcp.Required(), mcp.Description("Schedule identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			scheduleID, err := req.RequireString("schedule_id")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			schedule, err := schedules.GetSchedule(ctx, scheduleID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonToolResult("get_schedule", schedule)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"takt.gantt",
			mcp.WithDescription("Return the Gantt timeline and quality metrics for one schedule."),
			mcp.WithString("schedule_id", mcp.Required(), mcp.Description("Schedule identifier")),
			mcp.WithBoolean("preview", mcp.Description("Require a draft schedule and render it as a preview")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			scheduleID, err := req.RequireString("schedule_id")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			var gantt common.GanttResponse
			if req.GetBool("preview", false) {
				gantt, err = schedules.PreviewSchedule(ctx, scheduleID)
			} else {
				gantt, err = schedules.Gantt(ctx, scheduleID)
			}
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonToolResult("gantt", gantt)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"takt.list_conflicts",
			mcp.WithDescription("List resource conflicts recorded for one schedule."),
			mcp.WithString("schedule_id", mcp.Required(), mcp.Description("Schedule identifier")),
			mcp.WithBoolean("include_resolved", mcp.Description("Include conflicts that were already resolved")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			scheduleID, err := req.RequireString("schedule_id")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			conflicts, err := schedules.ListConflicts(ctx, scheduleID, req.GetBool("include_resolved", false))
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonToolResult("list_conflicts", map[string]any{
				"conflicts": conflicts,
			})
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"takt.compare_strategies",
			mcp.WithDescription("Plan the schedule's inputs with another strategy and diff the result against the stored plan."),
			mcp.WithString("schedule_id", mcp.Required(), mcp.Description("Schedule identifier")),
			mcp.WithString("strategy", mcp.Description("Alternative strategy; defaults to the other one"), mcp.Enum("greedy", "heuristic")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			scheduleID, err := req.RequireString("schedule_id")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			comparison, err := schedules.CompareStrategies(ctx, scheduleID, req.GetString("strategy", ""))
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonToolResult("compare_strategies", comparison)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"takt.history",
			mcp.WithDescription("List the adjustment log of one schedule lineage, oldest first."),
			mcp.WithString("lineage_id", mcp.Required(), mcp.Description("Schedule lineage identifier")),
			mcp.WithNumber("limit", mcp.Description("Maximum rows to return")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			lineageID, err := req.RequireString("lineage_id")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			entries, err := schedules.History(ctx, lineageID, req.GetInt("limit", 0))
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonToolResult("history", map[string]any{
				"entries": entries,
			})
		},
	)
}

// jsonToolResult encodes one structured tool response.
func jsonToolResult(tool string, payload any) (*mcp.CallToolResult, error) {
	result, err := mcp.NewToolResultJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s result: %w", tool, err)
	}
	return result, nil
}

// toolResultFromError maps service errors into MCP-visible tool errors.
func toolResultFromError(err error) *mcp.CallToolResult {
	if err == nil {
		return mcp.NewToolResultError("unknown error")
	}
	return mcp.NewToolResultError(common.ErrorCode(err) + ": " + err.Error())
}

// invalidRequestToolResult maps argument binding failures into invalid_request tool errors.
func invalidRequestToolResult(err error) *mcp.CallToolResult {
	if err == nil {
		return mcp.NewToolResultError("invalid_request: malformed arguments")
	}
	return mcp.NewToolResultError("invalid_request: " + err.Error())
}
