// Package config handles Go-QLab configuration loading.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/jaskrrish/Go-QLab/internal/qkd"
)

// Backend names accepted in SimulatorConfig.Backend.
const (
	BackendLocal  = "local"
	BackendQiskit = "qiskit"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Simulator SimulatorConfig `yaml:"simulator"`
	Qiskit    QiskitConfig    `yaml:"qiskit"`
	BB84      BB84Config      `yaml:"bb84"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Port         string        `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`

	// RunTTL bounds how long executed runs can be fetched again.
	RunTTL time.Duration `yaml:"run_ttl"`
}

// SimulatorConfig selects and tunes the circuit executor.
type SimulatorConfig struct {
	Backend string `yaml:"backend"`
	Shots   int    `yaml:"shots"`

	// Seed makes the local sampler reproducible; 0 seeds from the clock.
	Seed int64 `yaml:"seed"`
}

// QiskitConfig holds remote backend settings.
type QiskitConfig struct {
	APIKey       string        `yaml:"api_key"`
	BaseURL      string        `yaml:"base_url"`
	BackendName  string        `yaml:"backend_name"`
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxWait      time.Duration `yaml:"max_wait"`
}

// BB84Config holds key exchange defaults.
type BB84Config struct {
	KeyLength      int     `yaml:"key_length"`
	QBERThreshold  float64 `yaml:"qber_threshold"`
	SampleFraction float64 `yaml:"sample_fraction"`
	Oversampling   int     `yaml:"oversampling"`
	Amplification  string  `yaml:"amplification"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string `yaml:"level"`

	// Format is "json" or "console".
	Format string `yaml:"format"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         "8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
			RunTTL:       24 * time.Hour,
		},
		Simulator: SimulatorConfig{
			Backend: BackendLocal,
			Shots:   1024,
		},
		Qiskit: QiskitConfig{
			BaseURL:      "https://api.quantum-computing.ibm.com",
			BackendName:  "ibmq_qasm_simulator",
			PollInterval: 2 * time.Second,
			MaxWait:      5 * time.Minute,
		},
		BB84: BB84Config{
			KeyLength:      256,
			QBERThreshold:  0.11,
			SampleFraction: 0.10,
			Oversampling:   4,
			Amplification:  "SHA3-256",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a file on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to read config")
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to parse config")
	}
	return cfg, nil
}

// LoadOrDefault loads config from path, or returns the defaults when path is
// empty or does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// ApplyEnv overrides settings from PORT, QLAB_BACKEND, QLAB_SHOTS,
// QLAB_SEED, QLAB_QISKIT_API_KEY and QLAB_LOG_LEVEL.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := getenv("QLAB_BACKEND"); v != "" {
		c.Simulator.Backend = strings.ToLower(v)
	}
	if v := getenv("QLAB_SHOTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return pkgerrors.Wrapf(ErrInvalidConfig, "QLAB_SHOTS=%q", v)
		}
		c.Simulator.Shots = n
	}
	if v := getenv("QLAB_SEED"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return pkgerrors.Wrapf(ErrInvalidConfig, "QLAB_SEED=%q", v)
		}
		c.Simulator.Seed = n
	}
	if v := getenv("QLAB_QISKIT_API_KEY"); v != "" {
		c.Qiskit.APIKey = v
	}
	if v := getenv("QLAB_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

// Validate checks ranges and required fields.
func (c *Config) Validate() error {
	switch c.Simulator.Backend {
	case BackendLocal:
	case BackendQiskit:
		if c.Qiskit.APIKey == "" {
			return pkgerrors.Wrap(ErrInvalidConfig, "qiskit backend requires qiskit.api_key")
		}
	default:
		return pkgerrors.Wrapf(ErrInvalidConfig, "unknown simulator backend %q", c.Simulator.Backend)
	}
	if c.Simulator.Shots < 1 {
		return pkgerrors.Wrapf(ErrInvalidConfig, "simulator.shots must be at least 1, got %d", c.Simulator.Shots)
	}
	if c.Server.Port == "" {
		return pkgerrors.Wrap(ErrInvalidConfig, "server.port is empty")
	}
	if c.BB84.KeyLength < 1 {
		return pkgerrors.Wrapf(ErrInvalidConfig, "bb84.key_length must be positive, got %d", c.BB84.KeyLength)
	}
	if c.BB84.QBERThreshold <= 0 || c.BB84.QBERThreshold >= 0.5 {
		return pkgerrors.Wrapf(ErrInvalidConfig, "bb84.qber_threshold %v outside (0, 0.5)", c.BB84.QBERThreshold)
	}
	if c.BB84.SampleFraction <= 0 || c.BB84.SampleFraction >= 1 {
		return pkgerrors.Wrapf(ErrInvalidConfig, "bb84.sample_fraction %v outside (0, 1)", c.BB84.SampleFraction)
	}
	if c.BB84.Oversampling < 2 || c.BB84.Oversampling > qkd.MaxOversampling {
		return pkgerrors.Wrapf(ErrInvalidConfig, "bb84.oversampling must be between 2 and %d, got %d", qkd.MaxOversampling, c.BB84.Oversampling)
	}
	if _, err := c.Log.level(); err != nil {
		return err
	}
	return nil
}

func (l LogConfig) level() (zapcore.Level, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return lvl, pkgerrors.Wrapf(ErrInvalidConfig, "log.level %q", l.Level)
	}
	return lvl, nil
}

// NewLogger builds a zap logger writing to stderr.
func (l LogConfig) NewLogger() (*zap.Logger, error) {
	lvl, err := l.level()
	if err != nil {
		return nil, err
	}

	var zc zap.Config
	switch l.Format {
	case "json":
		zc = zap.NewProductionConfig()
	case "console", "":
		zc = zap.NewDevelopmentConfig()
	default:
		return nil, pkgerrors.Wrapf(ErrInvalidConfig, "log.format %q", l.Format)
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}

	logger, err := zc.Build()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "build logger")
	}
	return logger, nil
}
