package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

const (
	defaultConfigPath = "~/.config/prepflow/config.json"
	defaultPipeDir    = "/tmp"
)

// Config holds user-editable settings for the preprocessing front end.
type Config struct {
	Session    Session    `json:"session"`
	Stages     Stages     `json:"stages"`
	Connection Connection `json:"connection"`
	Logging    Logging    `json:"logging"`
	Paths      Paths      `json:"paths"`
}

// Session names the conventional frame directories inside a working directory.
type Session struct {
	WorkingDir string `json:"working_dir"`
	BiasesDir  string `json:"biases_dir"`
	FlatsDir   string `json:"flats_dir"`
	DarksDir   string `json:"darks_dir"`
	LightsDir  string `json:"lights_dir"`
	ProcessDir string `json:"process_dir"`
	MastersDir string `json:"masters_dir"`
}

// Connection captures how to reach the host application.
type Connection struct {
	PipeDir        string `json:"pipe_dir"`        // directory holding siril_command.in / siril_command.out
	SirilBinary    string `json:"siril_binary"`    // override for the batch fallback, empty = auto-detect
	ConnectTimeout int    `json:"connect_timeout"` // seconds to wait for the command pipes
}

// Logging controls logging verbosity and destinations.
type Logging struct {
	Level      string `json:"level"`       // debug, info, warn, error
	Format     string `json:"format"`      // text, json
	FileOutput bool   `json:"file_output"` // Enable file logging
	LogDir     string `json:"log_dir"`     // Directory for log files
}

// Paths configures default output locations.
type Paths struct {
	ScriptOutput string `json:"script_output"` // where generated scripts are written
	ProfilesDir  string `json:"profiles_dir"`  // YAML stage presets
	DatabasePath string `json:"database_path"`
}

// Load reads configuration from disk, falling back to sensible defaults.
// Stage options are normalized so mutually exclusive settings cannot survive
// a hand-edited config file.
func Load() (*Config, error) {
	cfg := defaultConfig()

	configPath := os.Getenv("PREPFLOW_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	expanded, err := expandUser(configPath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(expanded)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	if err := dec.Decode(cfg); err != nil {
		return nil, err
	}

	cfg.Stages.Normalize()
	return cfg, nil
}

// Save writes the configuration back to the config path, creating the
// directory if needed. This backs the "remember settings" behavior.
func (c *Config) Save() error {
	configPath := os.Getenv("PREPFLOW_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}
	expanded, err := expandUser(configPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0755); err != nil {
		return err
	}
	c.Stages.Normalize()
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(expanded, data, 0644)
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		Session: Session{
			WorkingDir: ".",
			BiasesDir:  "biases",
			FlatsDir:   "flats",
			DarksDir:   "darks",
			LightsDir:  "lights",
			ProcessDir: "process",
			MastersDir: "masters",
		},
		Stages: DefaultStages(),
		Connection: Connection{
			PipeDir:        defaultPipeDir,
			ConnectTimeout: 5,
		},
		Logging: Logging{
			Level:      "info",
			Format:     "text",
			FileOutput: true,
			LogDir:     "./logs",
		},
		Paths: Paths{
			ScriptOutput: "prepflow.ssf",
			ProfilesDir:  "~/.config/prepflow/profiles",
			DatabasePath: filepath.Join(os.TempDir(), "prepflow.db"),
		},
	}
}

func expandUser(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	if path == "~" {
		return home, nil
	}

	return filepath.Join(home, path[2:]), nil
}
