package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	serveradapter "github.com/hylla/takt/internal/adapters/server"
	servercommon "github.com/hylla/takt/internal/adapters/server/common"
	"github.com/hylla/takt/internal/app"
	"github.com/hylla/takt/internal/config"
	"github.com/spf13/cobra"
)

// newPathsCommand prints resolved config and data locations.
func newPathsCommand(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print resolved config and data paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := state.resolvePaths(); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "app: %s\n", state.appName)
			_, _ = fmt.Fprintf(out, "dev_mode: %t\n", state.devMode)
			_, _ = fmt.Fprintf(out, "config: %s\n", state.paths.ConfigPath)
			_, _ = fmt.Fprintf(out, "data_dir: %s\n", state.paths.DataDir)
			_, _ = fmt.Fprintf(out, "db: %s\n", state.paths.DBPath)
			return nil
		},
	}
}

// newInitCommand writes a default config file.
func newInitCommand(state *cliState) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := state.resolveConfig(); err != nil {
				return err
			}
			if _, err := os.Stat(state.configPath); err == nil && !force {
				return fmt.Errorf("%w: config %s already exists (use --force)", errUsage, state.configPath)
			}
			if err := config.Save(state.configPath, state.cfg); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", state.configPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

// newServeCommand starts the HTTP API and MCP endpoints.
func newServeCommand(state *cliState) *cobra.Command {
	var httpBind, apiEndpoint, mcpEndpoint string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST API and MCP tools over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return state.runCommand(cmd.Context(), "serve", func(ctx context.Context) error {
				server := state.cfg.Server
				if cmd.Flags().Changed("http") {
					server.HTTPBind = httpBind
				}
				if cmd.Flags().Changed("api-endpoint") {
					server.APIEndpoint = apiEndpoint
				}
				if cmd.Flags().Changed("mcp-endpoint") {
					server.MCPEndpoint = mcpEndpoint
				}
				state.logger.Info("serving", "http", server.HTTPBind, "api", server.APIEndpoint, "mcp", server.MCPEndpoint)
				return serveCommandRunner(ctx, serveradapter.Config{
					HTTPBind:      server.HTTPBind,
					APIEndpoint:   server.APIEndpoint,
					MCPEndpoint:   server.MCPEndpoint,
					ServerName:    state.appName,
					ServerVersion: version,
				}, serveradapter.Dependencies{
					Schedules: state.adapter,
					Catalog:   state.adapter,
					Readiness: state.repo,
					Logger:    state.logger,
				})
			})
		},
	}
	cmd.Flags().StringVar(&httpBind, "http", "127.0.0.1:8080", "HTTP listen address")
	cmd.Flags().StringVar(&apiEndpoint, "api-endpoint", "/api/v1", "HTTP API base endpoint")
	cmd.Flags().StringVar(&mcpEndpoint, "mcp-endpoint", "/mcp", "MCP streamable HTTP endpoint")
	return cmd
}

// newExportCommand writes the work-order and resource catalog as a snapshot.
func newExportCommand(state *cliState) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export work orders and resources as snapshot JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return state.runCommand(cmd.Context(), "export", func(ctx context.Context) error {
				snap, err := state.svc.ExportSnapshot(ctx)
				if err != nil {
					return fmt.Errorf("export snapshot: %w", err)
				}
				encoded, err := json.MarshalIndent(snap, "", "  ")
				if err != nil {
					return fmt.Errorf("encode snapshot json: %w", err)
				}
				encoded = append(encoded, '\n')

				if outPath == "-" {
					if _, err := cmd.OutOrStdout().Write(encoded); err != nil {
						return fmt.Errorf("write snapshot to stdout: %w", err)
					}
					return nil
				}
				if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
					return fmt.Errorf("create export output dir: %w", err)
				}
				if err := os.WriteFile(outPath, encoded, 0o644); err != nil {
					return fmt.Errorf("write export file: %w", err)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "-", "output file path ('-' for stdout)")
	return cmd
}

// newImportCommand loads a snapshot into the catalog.
func newImportCommand(state *cliState) *cobra.Command {
	var inPath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import work orders and resources from snapshot JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if inPath == "" {
				return fmt.Errorf("%w: --in is required", errUsage)
			}
			return state.runCommand(cmd.Context(), "import", func(ctx context.Context) error {
				var content []byte
				var err error
				if inPath == "-" {
					content, err = io.ReadAll(cmd.InOrStdin())
				} else {
					content, err = os.ReadFile(inPath)
				}
				if err != nil {
					return fmt.Errorf("read import file: %w", err)
				}
				var snap app.Snapshot
				if err := json.Unmarshal(content, &snap); err != nil {
					return fmt.Errorf("decode snapshot json: %w", err)
				}
				if err := state.svc.ImportSnapshot(ctx, snap); err != nil {
					return fmt.Errorf("import snapshot: %w", err)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "imported %d work orders, %d resources\n", len(snap.WorkOrders), len(snap.Resources))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&inPath, "in", "", "input snapshot JSON file ('-' for stdin)")
	return cmd
}

// newEscalateCommand raises one work order to urgent priority.
func newEscalateCommand(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "escalate <work-order-id>",
		Short: "Raise a work order to urgent priority",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return state.runCommand(cmd.Context(), "escalate", func(ctx context.Context) error {
				order, err := state.svc.EscalateWorkOrder(ctx, args[0])
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "work order %s priority %s\n", order.ID, order.Priority)
				return nil
			})
		},
	}
}

// scheduleOutput holds the shared --json flag of schedule mutations.
type scheduleOutput struct {
	asJSON bool
}

// write prints a schedule response as JSON or a short summary.
func (o scheduleOutput) write(w io.Writer, resp servercommon.ScheduleResponse) error {
	if o.asJSON {
		return writeJSON(w, resp)
	}
	writeScheduleSummary(w, resp)
	return nil
}

// newGenerateCommand generates a draft schedule.
func newGenerateCommand(state *cliState) *cobra.Command {
	var (
		req          servercommon.GenerateScheduleRequest
		horizonStart string
		out          scheduleOutput
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a draft schedule for a lineage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if horizonStart != "" {
				start, err := time.Parse(time.RFC3339, horizonStart)
				if err != nil {
					return fmt.Errorf("%w: --horizon-start: %v", errUsage, err)
				}
				req.HorizonStart = &start
			}
			return state.runCommand(cmd.Context(), "generate", func(ctx context.Context) error {
				resp, err := state.adapter.GenerateSchedule(ctx, req)
				if err != nil {
					return err
				}
				return out.write(cmd.OutOrStdout(), resp)
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&req.LineageID, "lineage", "", "schedule lineage id (generated when empty)")
	flags.StringVar(&req.Name, "name", "", "display name")
	flags.StringSliceVar(&req.WorkOrderIDs, "orders", nil, "work order ids to plan")
	flags.BoolVar(&req.Pending, "pending", false, "plan every work order not yet in a confirmed schedule")
	flags.StringSliceVar(&req.ResourceIDs, "resources", nil, "resource ids (default: whole catalog)")
	flags.StringVar(&req.Strategy, "strategy", "", "greedy or heuristic (default from config)")
	flags.StringVar(&horizonStart, "horizon-start", "", "RFC3339 horizon start")
	flags.IntVar(&req.HorizonDays, "horizon-days", 0, "horizon length in days (default from config)")
	flags.StringVar(&req.Actor, "actor", "", "actor recorded in the adjustment log")
	flags.BoolVar(&out.asJSON, "json", false, "print the full response as JSON")
	return cmd
}

// newConfirmCommand confirms a draft schedule.
func newConfirmCommand(state *cliState) *cobra.Command {
	var (
		req servercommon.ConfirmScheduleRequest
		out scheduleOutput
	)
	cmd := &cobra.Command{
		Use:   "confirm <schedule-id>",
		Short: "Confirm a draft schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.ScheduleID = args[0]
			return state.runCommand(cmd.Context(), "confirm", func(ctx context.Context) error {
				resp, err := state.adapter.ConfirmSchedule(ctx, req)
				if err != nil {
					return err
				}
				return out.write(cmd.OutOrStdout(), resp)
			})
		},
	}
	flags := cmd.Flags()
	flags.IntVar(&req.ExpectedVersion, "expected-version", 0, "lineage head last observed (0 skips the check)")
	flags.BoolVar(&req.Force, "force", false, "confirm even when conflicts remain open")
	flags.StringVar(&req.Actor, "actor", "", "actor recorded in the adjustment log")
	flags.StringVar(&req.Reason, "reason", "", "free-form reason")
	flags.BoolVar(&out.asJSON, "json", false, "print the full response as JSON")
	return cmd
}

// newAdjustCommand moves one assignment.
func newAdjustCommand(state *cliState) *cobra.Command {
	var (
		req   servercommon.AdjustScheduleRequest
		start string
		out   scheduleOutput
	)
	cmd := &cobra.Command{
		Use:   "adjust <schedule-id>",
		Short: "Move one assignment to a new start or resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := time.Parse(time.RFC3339, start)
			if err != nil {
				return fmt.Errorf("%w: --start: %v", errUsage, err)
			}
			req.ScheduleID = args[0]
			req.Start = parsed
			return state.runCommand(cmd.Context(), "adjust", func(ctx context.Context) error {
				resp, err := state.adapter.AdjustSchedule(ctx, req)
				if err != nil {
					return err
				}
				return out.write(cmd.OutOrStdout(), resp)
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&req.WorkOrderID, "order", "", "assigned work order to move")
	flags.StringVar(&req.ResourceID, "resource", "", "target resource (default: current)")
	flags.StringVar(&start, "start", "", "RFC3339 new start time")
	flags.IntVar(&req.ExpectedVersion, "expected-version", 0, "lineage head last observed (0 skips the check)")
	flags.StringVar(&req.Actor, "actor", "", "actor recorded in the adjustment log")
	flags.StringVar(&req.Reason, "reason", "", "free-form reason")
	flags.BoolVar(&out.asJSON, "json", false, "print the full response as JSON")
	_ = cmd.MarkFlagRequired("order")
	_ = cmd.MarkFlagRequired("start")
	return cmd
}

// newUrgentCommand inserts an urgent order into a confirmed schedule.
func newUrgentCommand(state *cliState) *cobra.Command {
	var (
		req       servercommon.UrgentInsertRequest
		orderFile string
		out       scheduleOutput
	)
	cmd := &cobra.Command{
		Use:   "urgent <schedule-id>",
		Short: "Insert an urgent work order into a confirmed schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.ScheduleID = args[0]
			if orderFile != "" {
				order, err := readWorkOrderFile(orderFile)
				if err != nil {
					return err
				}
				req.Order = &order
			}
			if req.WorkOrderID == "" && req.Order == nil {
				return fmt.Errorf("%w: one of --order or --order-file is required", errUsage)
			}
			return state.runCommand(cmd.Context(), "urgent", func(ctx context.Context) error {
				resp, err := state.adapter.UrgentInsert(ctx, req)
				if err != nil {
					return err
				}
				return out.write(cmd.OutOrStdout(), resp)
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&req.WorkOrderID, "order", "", "existing catalog work order id")
	flags.StringVar(&orderFile, "order-file", "", "JSON file describing a new work order")
	flags.IntVar(&req.ExpectedVersion, "expected-version", 0, "lineage head last observed (0 skips the check)")
	flags.StringVar(&req.Actor, "actor", "", "actor recorded in the adjustment log")
	flags.StringVar(&req.Reason, "reason", "", "free-form reason")
	flags.BoolVar(&out.asJSON, "json", false, "print the full response as JSON")
	return cmd
}

// readWorkOrderFile decodes one work order request from disk.
func readWorkOrderFile(path string) (servercommon.WorkOrderRequest, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return servercommon.WorkOrderRequest{}, fmt.Errorf("read order file: %w", err)
	}
	var order servercommon.WorkOrderRequest
	if err := json.Unmarshal(content, &order); err != nil {
		return servercommon.WorkOrderRequest{}, fmt.Errorf("decode order file: %w", err)
	}
	return order, nil
}

// newGanttCommand renders a schedule timeline.
func newGanttCommand(state *cliState) *cobra.Command {
	var preview, asJSON bool
	cmd := &cobra.Command{
		Use:   "gantt <schedule-id>",
		Short: "Render a schedule as a Gantt table with quality metrics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return state.runCommand(cmd.Context(), "gantt", func(ctx context.Context) error {
				var (
					gantt servercommon.GanttResponse
					err   error
				)
				if preview {
					gantt, err = state.adapter.PreviewSchedule(ctx, args[0])
				} else {
					gantt, err = state.adapter.Gantt(ctx, args[0])
				}
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), gantt)
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), renderGantt(gantt, ganttTimelineWidth))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&preview, "preview", false, "require a draft and render it as a preview")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the projection as JSON")
	return cmd
}

// newCompareCommand diffs a schedule against another strategy.
func newCompareCommand(state *cliState) *cobra.Command {
	var strategy string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "compare <schedule-id>",
		Short: "Compare a schedule with the plan another strategy would produce",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return state.runCommand(cmd.Context(), "compare", func(ctx context.Context) error {
				comparison, err := state.adapter.CompareStrategies(ctx, args[0], strategy)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), comparison)
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), renderComparison(comparison))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&strategy, "strategy", "", "alternative strategy (default: the other one)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the comparison as JSON")
	return cmd
}

// newRollbackCommand re-issues an earlier version.
func newRollbackCommand(state *cliState) *cobra.Command {
	var (
		req servercommon.RollbackRequest
		out scheduleOutput
	)
	cmd := &cobra.Command{
		Use:   "rollback <schedule-id>",
		Short: "Re-issue an earlier version of the schedule's lineage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.ScheduleID = args[0]
			return state.runCommand(cmd.Context(), "rollback", func(ctx context.Context) error {
				resp, err := state.adapter.Rollback(ctx, req)
				if err != nil {
					return err
				}
				return out.write(cmd.OutOrStdout(), resp)
			})
		},
	}
	flags := cmd.Flags()
	flags.IntVar(&req.TargetVersion, "to", 0, "version to restore")
	flags.IntVar(&req.ExpectedVersion, "expected-version", 0, "lineage head last observed (0 skips the check)")
	flags.StringVar(&req.Actor, "actor", "", "actor recorded in the adjustment log")
	flags.StringVar(&req.Reason, "reason", "", "free-form reason")
	flags.BoolVar(&out.asJSON, "json", false, "print the full response as JSON")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

// newResetCommand discards a draft.
func newResetCommand(state *cliState) *cobra.Command {
	var req servercommon.ResetScheduleRequest
	cmd := &cobra.Command{
		Use:   "reset <schedule-id>",
		Short: "Discard a draft schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.ScheduleID = args[0]
			return state.runCommand(cmd.Context(), "reset", func(ctx context.Context) error {
				resp, err := state.adapter.ResetSchedule(ctx, req)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "reset %s\n", resp.ScheduleID)
				if resp.AuditWarning != "" {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "warning: %s\n", resp.AuditWarning)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.Actor, "actor", "", "actor recorded in the adjustment log")
	cmd.Flags().StringVar(&req.Reason, "reason", "", "free-form reason")
	return cmd
}

// newHistoryCommand renders the adjustment log of one lineage.
func newHistoryCommand(state *cliState) *cobra.Command {
	var (
		limit int
		raw   bool
	)
	cmd := &cobra.Command{
		Use:   "history <lineage-id>",
		Short: "Show the adjustment log of a schedule lineage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return state.runCommand(cmd.Context(), "history", func(ctx context.Context) error {
				entries, err := state.adapter.History(ctx, args[0], limit)
				if err != nil {
					return err
				}
				markdown := historyMarkdown(args[0], entries)
				if raw {
					_, _ = fmt.Fprint(cmd.OutOrStdout(), markdown)
					return nil
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), renderMarkdown(markdown, historyWrapWidth))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum entries (default 200)")
	cmd.Flags().BoolVar(&raw, "raw", false, "print markdown without terminal styling")
	return cmd
}

// writeJSON prints one indented JSON document.
func writeJSON(w io.Writer, payload any) error {
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	encoded = append(encoded, '\n')
	if _, err := w.Write(encoded); err != nil {
		return fmt.Errorf("write json: %w", err)
	}
	return nil
}
