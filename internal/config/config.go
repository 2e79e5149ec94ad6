package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// Strategy names accepted by scheduler.default_strategy.
const (
	StrategyGreedy    = "greedy"
	StrategyHeuristic = "heuristic"
)

// maxHorizonDays bounds the planning horizon a config may request.
const maxHorizonDays = 366

type Config struct {
	Database  DatabaseConfig  `toml:"database"`
	Logging   LoggingConfig   `toml:"logging"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Server    ServerConfig    `toml:"server"`
	Identity  IdentityConfig  `toml:"identity"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type LoggingConfig struct {
	Level   string        `toml:"level"` // debug | info | warn | error
	DevFile DevFileConfig `toml:"dev_file"`
}

type DevFileConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

type SchedulerConfig struct {
	DefaultStrategy string        `toml:"default_strategy"`
	HorizonDays     int           `toml:"horizon_days"`
	IterationFactor int           `toml:"heuristic_iteration_factor"`
	QualityWeights  WeightsConfig `toml:"quality_weights"`
}

type WeightsConfig struct {
	Utilization float64 `toml:"utilization"`
	Tardiness   float64 `toml:"tardiness"`
	Makespan    float64 `toml:"makespan"`
}

type ServerConfig struct {
	HTTPBind    string `toml:"http_bind"`
	APIEndpoint string `toml:"api_endpoint"`
	MCPEndpoint string `toml:"mcp_endpoint"`
}

type IdentityConfig struct {
	Actor string `toml:"actor"`
}

func Default(dbPath string) Config {
	return Config{
		Database: DatabaseConfig{
			Path: dbPath,
		},
		Logging: LoggingConfig{
			Level: "info",
			DevFile: DevFileConfig{
				Enabled: true,
				Dir:     ".takt/log",
			},
		},
		Scheduler: SchedulerConfig{
			DefaultStrategy: StrategyGreedy,
			HorizonDays:     14,
			IterationFactor: 2,
			QualityWeights: WeightsConfig{
				Utilization: 0.4,
				Tardiness:   0.4,
				Makespan:    0.2,
			},
		},
		Server: ServerConfig{
			HTTPBind:    "127.0.0.1:8080",
			APIEndpoint: "/api/v1",
			MCPEndpoint: "/mcp",
		},
		Identity: IdentityConfig{
			Actor: "planner",
		},
	}
}

func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Save writes cfg as TOML, creating the parent directory when needed.
func Save(path string, cfg Config) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("config path is required")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	encoded, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode toml: %w", err)
	}
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database path is required")
	}

	switch strings.TrimSpace(strings.ToLower(c.Logging.Level)) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}

	switch strings.TrimSpace(strings.ToLower(c.Scheduler.DefaultStrategy)) {
	case StrategyGreedy, StrategyHeuristic:
	default:
		return fmt.Errorf("invalid scheduler.default_strategy: %q", c.Scheduler.DefaultStrategy)
	}
	if c.Scheduler.HorizonDays < 1 || c.Scheduler.HorizonDays > maxHorizonDays {
		return fmt.Errorf("scheduler.horizon_days must be between 1 and %d", maxHorizonDays)
	}
	if c.Scheduler.IterationFactor < 1 {
		return errors.New("scheduler.heuristic_iteration_factor must be >= 1")
	}
	w := c.Scheduler.QualityWeights
	if w.Utilization < 0 || w.Tardiness < 0 || w.Makespan < 0 {
		return errors.New("scheduler.quality_weights must be >= 0")
	}
	if w.Utilization+w.Tardiness+w.Makespan == 0 {
		return errors.New("scheduler.quality_weights must not all be zero")
	}

	api := strings.TrimSpace(c.Server.APIEndpoint)
	mcp := strings.TrimSpace(c.Server.MCPEndpoint)
	for name, endpoint := range map[string]string{"server.api_endpoint": api, "server.mcp_endpoint": mcp} {
		if endpoint != "" && !strings.HasPrefix(endpoint, "/") {
			return fmt.Errorf("%s must start with /: %q", name, endpoint)
		}
	}
	if api != "" && strings.TrimRight(api, "/") == strings.TrimRight(mcp, "/") {
		return errors.New("server.api_endpoint and server.mcp_endpoint must differ")
	}

	if strings.TrimSpace(c.Identity.Actor) == "" {
		return errors.New("identity.actor is required")
	}
	return nil
}

func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
