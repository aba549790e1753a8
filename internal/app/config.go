package app

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/specialistvlad/shmdag/internal/procexecutor"
	"github.com/specialistvlad/shmdag/internal/shm"
	"github.com/specialistvlad/shmdag/internal/shmname"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is matched by every configuration error.
var ErrInvalidConfig = errors.New("invalid configuration")

// Executor modes.
const (
	ExecutorProcess = "process"
	ExecutorThread  = "thread"
)

// Config holds all the necessary configuration for a run.
type Config struct {
	GraphPath string `yaml:"-"`
	Suffix    string `yaml:"-"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	Executor      string        `yaml:"executor"`
	Workers       int           `yaml:"workers"`
	NodeTimeout   time.Duration `yaml:"node_timeout"`
	KillGrace     time.Duration `yaml:"kill_grace"`
	OrderedOutput bool          `yaml:"ordered_output"`
	ShmDir        string        `yaml:"shm_dir"`
	// StatusAddr enables the HTTP status server, e.g. "127.0.0.1:9090".
	StatusAddr string `yaml:"status_addr"`

	// WorkerExecutable is re-executed for every node in process mode. Empty
	// means the running binary.
	WorkerExecutable string `yaml:"-"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		LogLevel:      "info",
		LogFormat:     "auto",
		Executor:      ExecutorProcess,
		KillGrace:     procexecutor.DefaultKillGrace,
		OrderedOutput: true,
		ShmDir:        shm.DefaultDir,
	}
}

// LoadConfigFile layers the yaml file at path over base. Keys the file does
// not set keep their value from base; unknown keys are an error.
func LoadConfigFile(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	cfg := base
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return base, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
	}
	return cfg, nil
}

// NewConfig validates cfg and returns a copy of it.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.GraphPath == "" {
		return nil, invalid("graph path is required")
	}
	if _, err := shmname.Parse(cfg.Suffix); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := validateLogging(cfg.LogLevel, cfg.LogFormat); err != nil {
		return nil, err
	}

	switch cfg.Executor {
	case ExecutorProcess, ExecutorThread:
	default:
		return nil, invalid("executor must be %q or %q, got %q", ExecutorProcess, ExecutorThread, cfg.Executor)
	}
	if cfg.Workers < 0 {
		return nil, invalid("workers must not be negative")
	}
	if cfg.NodeTimeout < 0 {
		return nil, invalid("node timeout must not be negative")
	}
	if cfg.KillGrace < 0 {
		return nil, invalid("kill grace must not be negative")
	}
	if cfg.ShmDir == "" {
		cfg.ShmDir = shm.DefaultDir
	}

	return &cfg, nil
}

func validateLogging(level, format string) error {
	switch level {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log level must be one of debug, info, warn, error; got %q", level)
	}
	switch format {
	case "auto", "text", "json":
	default:
		return invalid("log format must be one of auto, text, json; got %q", format)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
