package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// DefaultAppName names the config and data directories when no override is given.
const DefaultAppName = "takt"

// Environment variables consulted by the CLI.
const (
	EnvAppName    = "TAKT_APP_NAME"
	EnvDevMode    = "TAKT_DEV_MODE"
	EnvConfigPath = "TAKT_CONFIG"
	EnvDBPath     = "TAKT_DB_PATH"
)

// ErrNoHome is returned when neither the environment nor the OS names a home directory.
var ErrNoHome = errors.New("home directory unknown")

// Paths locates the config file and the sqlite schedule store.
type Paths struct {
	ConfigPath string
	DataDir    string
	DBPath     string
}

// Options selects the directory name paths resolve under.
type Options struct {
	AppName string
	DevMode bool
}

// dirName is the per-app directory and database stem; dev mode keeps a separate store.
func (o Options) dirName() string {
	name := strings.TrimSpace(o.AppName)
	if name == "" {
		name = DefaultAppName
	}
	if o.DevMode {
		name += "-dev"
	}
	return name
}

// OptionsFromEnv resolves app name and dev mode from the environment.
// Unparseable dev-mode values keep defaultDevMode.
func OptionsFromEnv(getenv func(string) string, defaultDevMode bool) Options {
	if getenv == nil {
		getenv = os.Getenv
	}
	opts := Options{AppName: DefaultAppName, DevMode: defaultDevMode}
	if v := strings.TrimSpace(getenv(EnvAppName)); v != "" {
		opts.AppName = v
	}
	if raw := strings.TrimSpace(getenv(EnvDevMode)); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			opts.DevMode = v
		}
	}
	return opts
}

// Resolve returns the paths for the running OS and user.
func Resolve(opts Options) (Paths, error) {
	home, _ := os.UserHomeDir()
	return ResolveFor(runtime.GOOS, home, os.Getenv, opts)
}

// ResolveFor returns the paths for goos with home and getenv standing in for the user environment.
// Linux and other unixes follow XDG, Windows uses APPDATA/LOCALAPPDATA and macOS keeps both
// files under Application Support.
func ResolveFor(goos, home string, getenv func(string) string, opts Options) (Paths, error) {
	if getenv == nil {
		getenv = func(string) string { return "" }
	}
	configBase, dataBase, err := baseDirs(goos, strings.TrimSpace(home), getenv)
	if err != nil {
		return Paths{}, err
	}
	name := opts.dirName()
	dataDir := filepath.Join(dataBase, name)
	return Paths{
		ConfigPath: filepath.Join(configBase, name, "config.toml"),
		DataDir:    dataDir,
		DBPath:     filepath.Join(dataDir, name+".db"),
	}, nil
}

func baseDirs(goos, home string, getenv func(string) string) (string, string, error) {
	env := func(key string) string { return strings.TrimSpace(getenv(key)) }
	fromHome := func(parts ...string) (string, error) {
		if home == "" {
			return "", fmt.Errorf("resolve %s paths: %w", goos, ErrNoHome)
		}
		return filepath.Join(append([]string{home}, parts...)...), nil
	}

	switch goos {
	case "windows":
		config, data := env("APPDATA"), env("LOCALAPPDATA")
		if config == "" {
			var err error
			if config, err = fromHome("AppData", "Roaming"); err != nil {
				return "", "", err
			}
		}
		if data == "" {
			data = config
		}
		return config, data, nil
	case "darwin":
		dir, err := fromHome("Library", "Application Support")
		return dir, dir, err
	}

	config, data := env("XDG_CONFIG_HOME"), env("XDG_DATA_HOME")
	var err error
	if config == "" {
		if config, err = fromHome(".config"); err != nil {
			return "", "", err
		}
	}
	if data == "" {
		if data, err = fromHome(".local", "share"); err != nil {
			return "", "", err
		}
	}
	return config, data, nil
}
