package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/google/uuid"
	serveradapter "github.com/hylla/takt/internal/adapters/server"
	servercommon "github.com/hylla/takt/internal/adapters/server/common"
	"github.com/hylla/takt/internal/adapters/storage/sqlite"
	"github.com/hylla/takt/internal/app"
	"github.com/hylla/takt/internal/config"
	"github.com/hylla/takt/internal/domain"
	"github.com/hylla/takt/internal/platform"
	"github.com/hylla/takt/internal/scheduler"
	"github.com/spf13/cobra"
)

// version stores a package-level helper value.
var version = "dev"

// serveCommandRunner starts the HTTP+MCP serve flow.
var serveCommandRunner = func(ctx context.Context, cfg serveradapter.Config, deps serveradapter.Dependencies) error {
	return serveradapter.Run(ctx, cfg, deps)
}

// main handles main.
func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		os.Exit(1)
	}
}

// run builds the command tree and executes it against args.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	state := newCLIState(stderr)
	defer state.close()

	root := newRootCommand(state)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return fang.Execute(ctx, root, fang.WithVersion(version))
}

// cliState carries resolved flags plus the lazily opened runtime.
type cliState struct {
	stderr io.Writer

	configPath string
	dbPath     string
	appName    string
	devMode    bool
	quiet      bool

	paths   platform.Paths
	cfg     config.Config
	logger  *runtimeLogger
	repo    *sqlite.Repository
	svc     *app.Service
	adapter *servercommon.AppServiceAdapter
}

// newCLIState seeds flag defaults from the environment.
func newCLIState(stderr io.Writer) *cliState {
	opts := platform.OptionsFromEnv(os.Getenv, version == "dev")
	return &cliState{
		stderr:  stderr,
		appName: opts.AppName,
		devMode: opts.DevMode,
	}
}

// newRootCommand assembles the takt command tree.
func newRootCommand(state *cliState) *cobra.Command {
	root := &cobra.Command{
		Use:   "takt",
		Short: "Production scheduling engine",
		Long: `takt assigns work orders to production resources over time, detects
resource conflicts, inserts urgent orders into confirmed schedules and
renders Gantt views with quality scores.`,
		SilenceUsage: true,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&state.configPath, "config", "", "path to config TOML")
	flags.StringVar(&state.dbPath, "db", "", "path to sqlite database")
	flags.StringVar(&state.appName, "app", state.appName, "application name for config/data path resolution")
	flags.BoolVar(&state.devMode, "dev", state.devMode, "use dev mode paths (<app>-dev)")
	flags.BoolVarP(&state.quiet, "quiet", "q", false, "keep runtime logs off the console")

	root.AddCommand(
		newPathsCommand(state),
		newInitCommand(state),
		newServeCommand(state),
		newImportCommand(state),
		newExportCommand(state),
		newEscalateCommand(state),
		newGenerateCommand(state),
		newConfirmCommand(state),
		newAdjustCommand(state),
		newUrgentCommand(state),
		newGanttCommand(state),
		newCompareCommand(state),
		newRollbackCommand(state),
		newResetCommand(state),
		newHistoryCommand(state),
	)
	return root
}

// resolvePaths resolves platform paths from the app-name and dev flags.
func (s *cliState) resolvePaths() error {
	paths, err := platform.Resolve(platform.Options{
		AppName: s.appName,
		DevMode: s.devMode,
	})
	if err != nil {
		return err
	}
	s.paths = paths
	return nil
}

// resolveConfig applies flag, env and default precedence for config and db paths.
func (s *cliState) resolveConfig() error {
	if err := s.resolvePaths(); err != nil {
		return err
	}
	dbOverridden := strings.TrimSpace(s.dbPath) != ""
	if s.configPath == "" {
		if envPath := strings.TrimSpace(os.Getenv(platform.EnvConfigPath)); envPath != "" {
			s.configPath = envPath
		} else {
			s.configPath = s.paths.ConfigPath
		}
	}
	if !dbOverridden {
		if envPath := strings.TrimSpace(os.Getenv(platform.EnvDBPath)); envPath != "" {
			s.dbPath = envPath
			dbOverridden = true
		} else {
			s.dbPath = s.paths.DBPath
		}
	}

	cfg, err := config.Load(s.configPath, config.Default(s.dbPath))
	if err != nil {
		return fmt.Errorf("load config %q: %w", s.configPath, err)
	}
	if dbOverridden {
		cfg.Database.Path = s.dbPath
	}
	s.cfg = cfg
	return nil
}

// open resolves config, logging, storage and the application service.
func (s *cliState) open(command string) error {
	if s.svc != nil {
		return nil
	}
	if err := s.resolveConfig(); err != nil {
		return err
	}

	logger, err := newRuntimeLogger(s.stderr, s.appName, s.devMode, s.cfg.Logging, time.Now)
	if err != nil {
		return fmt.Errorf("configure runtime logger: %w", err)
	}
	s.logger = logger
	logger.SetConsoleEnabled(!s.quiet)
	logger.Info("startup configuration resolved", "app", s.appName, "dev_mode", s.devMode, "command", command)
	logger.Debug("runtime paths resolved", "config_path", s.configPath, "data_dir", s.paths.DataDir, "db_path", s.dbPath)
	if devPath := logger.DevLogPath(); devPath != "" {
		logger.Info("dev file logging enabled", "path", devPath)
	}

	logger.Info("opening sqlite repository", "db_path", s.cfg.Database.Path)
	repo, err := sqlite.Open(s.cfg.Database.Path)
	if err != nil {
		logger.Error("sqlite open failed", "db_path", s.cfg.Database.Path, "err", err)
		return fmt.Errorf("open sqlite repository: %w", err)
	}
	s.repo = repo
	logger.Info("sqlite repository ready", "db_path", s.cfg.Database.Path, "migrations", "ensured")

	strategy, err := domain.ParseStrategy(s.cfg.Scheduler.DefaultStrategy)
	if err != nil {
		return fmt.Errorf("scheduler.default_strategy: %w", err)
	}
	weights := s.cfg.Scheduler.QualityWeights
	s.svc = app.NewService(repo, uuid.NewString, nil, app.ServiceConfig{
		DefaultStrategy: strategy,
		HorizonDays:     s.cfg.Scheduler.HorizonDays,
		IterationFactor: s.cfg.Scheduler.IterationFactor,
		Weights: scheduler.Weights{
			Utilization: weights.Utilization,
			Tardiness:   weights.Tardiness,
			Makespan:    weights.Makespan,
		},
		DefaultActor: s.cfg.Identity.Actor,
		Logger:       logger,
	})
	s.adapter = servercommon.NewAppServiceAdapter(s.svc)
	logger.Debug("application service initialized", "default_strategy", strategy, "horizon_days", s.cfg.Scheduler.HorizonDays)
	return nil
}

// close releases storage and the dev log sink.
func (s *cliState) close() {
	if s.repo != nil {
		if err := s.repo.Close(); err != nil && s.logger != nil {
			s.logger.Warn("sqlite close failed", "db_path", s.cfg.Database.Path, "err", err)
		}
	}
	if s.logger != nil {
		if err := s.logger.Close(); err != nil {
			_, _ = fmt.Fprintf(s.stderr, "warning: close runtime log sink: %v\n", err)
		}
	}
}

// runCommand opens the runtime and wraps one command flow with start/complete logging.
func (s *cliState) runCommand(ctx context.Context, command string, fn func(context.Context) error) error {
	if err := s.open(command); err != nil {
		return err
	}
	s.logger.Info("command flow start", "command", command)
	if err := fn(app.WithActor(ctx, s.cfg.Identity.Actor)); err != nil {
		s.logger.Error("command flow failed", "command", command, "err", err)
		return fmt.Errorf("run %s command: %w", command, err)
	}
	s.logger.Info("command flow complete", "command", command)
	return nil
}

// errUsage marks invalid command-line input detected after flag parsing.
var errUsage = errors.New("invalid usage")
