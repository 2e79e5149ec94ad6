package mcpapi

import (
	"context"
	"strings"

	"github.com/hylla/takt/internal/adapters/server/common"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// registerMutationTools registers tools that change schedule state.
func registerMutationTools(srv *mcpserver.MCPServer, schedules common.SchedulingService) {
	srv.AddTool(
		mcp.NewTool(
			"takt.confirm_schedule",
			mcp.WithDescription("Confirm a draft schedule version. Unresolved conflicts block confirmation unless force is set."),
			mcp.WithString("schedule_id", mcp.Required(), mcp.Description("Schedule identifier")),
			mcp.WithNumber("expected_version", mcp.Description("Lineage head the caller last observed")),
			mcp.WithBoolean("force", mcp.Description("Confirm even when conflicts remain open")),
			mcp.WithString("actor", mcp.Description("Actor recorded in the adjustment log")),
			mcp.WithString("reason", mcp.Description("Free-form reason")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			scheduleID, err := req.RequireString("schedule_id")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			resp, err := schedules.ConfirmSchedule(ctx, common.ConfirmScheduleRequest{
				ScheduleID:      scheduleID,
				ExpectedVersion: req.GetInt("expected_version", 0),
				Force:           req.GetBool("force", false),
				Actor:           req.GetString("actor", ""),
				Reason:          req.GetString("reason", ""),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonToolResult("confirm_schedule", resp)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"takt.adjust_schedule",
			mcp.WithDescription("Move one assignment to a new start and optionally another resource."),
			mcp.WithString("schedule_id", mcp.Required(), mcp.Description("Schedule identifier")),
			mcp.WithString("work_order_id", mcp.Required(), mcp.Description("Assigned work order to move")),
			mcp.WithString("start", mcp.Required(), mcp.Description("RFC3339 new start time")),
			mcp.WithString("resource_id", mcp.Description("Target resource; defaults to the current one")),
			mcp.WithNumber("expected_version", mcp.Description("Lineage head the caller last observed")),
			mcp.WithString("actor", mcp.Description("Actor recorded in the adjustment log")),
			mcp.WithString("reason", mcp.Description("Free-form reason")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args struct {
				ScheduleID string `json:"schedule_id"`
				common.AdjustScheduleRequest
			}
			if err := req.BindArguments(&args); err != nil {
				return invalidRequestToolResult(err), nil
			}
			if strings.TrimSpace(args.ScheduleID) == "" {
				return mcp.NewToolResultError(`invalid_request: required argument "schedule_id" not found`), nil
			}
			if strings.TrimSpace(args.WorkOrderID) == "" {
				return mcp.NewToolResultError(`invalid_request: required argument "work_order_id" not found`), nil
			}
			if args.Start.IsZero() {
				return mcp.NewToolResultError(`invalid_request: required argument "start" not found`), nil
			}
			adjust := args.AdjustScheduleRequest
			adjust.ScheduleID = args.ScheduleID
			resp, err := schedules.AdjustSchedule(ctx, adjust)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonToolResult("adjust_schedule", resp)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"takt.urgent_insert",
			mcp.WithDescription("Insert an urgent work order into a confirmed schedule, shifting later work on the chosen resource."),
			mcp.WithString("schedule_id", mcp.Required(), mcp.Description("Confirmed schedule identifier")),
			mcp.WithString("work_order_id", mcp.Description("Existing catalog work order to insert")),
			mcp.WithObject("order", mcp.Description("New work order to upsert and insert instead of work_order_id")),
			mcp.WithNumber("expected_version", mcp.Description("Lineage head the caller last observed")),
			mcp.WithString("actor", mcp.Description("Actor recorded in the adjustment log")),
			mcp.WithString("reason", mcp.Description("Free-form reason")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args struct {
				ScheduleID string `json:"schedule_id"`
				common.UrgentInsertRequest
			}
			if err := req.BindArguments(&args); err != nil {
				return invalidRequestToolResult(err), nil
			}
			if strings.TrimSpace(args.ScheduleID) == "" {
				return mcp.NewToolResultError(`invalid_request: required argument "schedule_id" not found`), nil
			}
			if strings.TrimSpace(args.WorkOrderID) == "" && args.Order == nil {
				return mcp.NewToolResultError(`invalid_request: one of "work_order_id" or "order" is required`), nil
			}
			insert := args.UrgentInsertRequest
			insert.ScheduleID = args.ScheduleID
			resp, err := schedules.UrgentInsert(ctx, insert)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonToolResult("urgent_insert", resp)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"takt.rollback",
			mcp.WithDescription("Re-issue an earlier version of a lineage as a new confirmed version."),
			mcp.WithString("schedule_id", mcp.Required(), mcp.Description("Any schedule in the lineage")),
			mcp.WithNumber("target_version", mcp.Required(), mcp.Description("Version to restore")),
			mcp.WithNumber("expected_version", mcp.Description("Lineage head the caller last observed")),
			mcp.WithString("actor", mcp.Description("Actor recorded in the adjustment log")),
			mcp.WithString("reason", mcp.Description("Free-form reason")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			scheduleID, err := req.RequireString("schedule_id")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			target, err := req.RequireInt("target_version")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			resp, err := schedules.Rollback(ctx, common.RollbackRequest{
				ScheduleID:      scheduleID,
				TargetVersion:   target,
				ExpectedVersion: req.GetInt("expected_version", 0),
				Actor:           req.GetString("actor", ""),
				Reason:          req.GetString("reason", ""),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonToolResult("rollback", resp)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"takt.reset_schedule",
			mcp.WithDescription("Discard a draft schedule version."),
			mcp.WithString("schedule_id", mcp.Required(), mcp.Description("Draft schedule identifier")),
			mcp.WithString("actor", mcp.Description("Actor recorded in the adjustment log")),
			mcp.WithString("reason", mcp.Description("Free-form reason")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			scheduleID, err := req.RequireString("schedule_id")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			resp, err := schedules.ResetSchedule(ctx, common.ResetScheduleRequest{
				ScheduleID: scheduleID,
				Actor:      req.GetString("actor", ""),
				Reason:     req.GetString("reason", ""),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonToolResult("reset_schedule", resp)
		},
	)
}
