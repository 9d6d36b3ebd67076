package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	DB        DBConfig        `yaml:"db"`
	Datasets  DatasetsConfig  `yaml:"datasets"`
	Jobs      JobsConfig      `yaml:"jobs"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Transport TransportConfig `yaml:"transport"`
}

type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	UploadMaxBytes int64         `yaml:"upload_max_bytes"`
	UploadTimeout  time.Duration `yaml:"upload_timeout"`
	CORSOrigins    []string      `yaml:"cors_origins"`
	// AuthToken enables bearer authentication on mutating routes when set.
	AuthToken string `yaml:"auth_token"`
}

type DBConfig struct {
	Path string `yaml:"path"`
}

type DatasetsConfig struct {
	// Path is the badger directory. Empty keeps datasets in memory.
	Path             string `yaml:"path"`
	CompressionLevel int    `yaml:"compression_level"`
}

type JobsConfig struct {
	Workers   int           `yaml:"workers"`
	StepDelay time.Duration `yaml:"step_delay"`
	Timeout   time.Duration `yaml:"timeout"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	Path  string `yaml:"path"`
}

type TelemetryConfig struct {
	OTLPEndpoint string        `yaml:"otlp_endpoint"`
	Insecure     bool          `yaml:"insecure"`
	Interval     time.Duration `yaml:"interval"`
}

type TransportConfig struct {
	Mode string `yaml:"mode"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8000,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   60 * time.Second,
			UploadMaxBytes: 32 << 20,
			UploadTimeout:  30 * time.Second,
			CORSOrigins:    []string{"*"},
		},
		DB: DBConfig{
			Path: "runledger.db",
		},
		Datasets: DatasetsConfig{
			Path:             "datasets",
			CompressionLevel: 2,
		},
		Jobs: JobsConfig{
			Workers:   4,
			StepDelay: 200 * time.Millisecond,
			Timeout:   30 * time.Minute,
		},
		Log: LogConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			Insecure: true,
			Interval: 30 * time.Second,
		},
		Transport: TransportConfig{
			Mode: "http",
		},
	}
}

// Load reads configuration from an optional YAML file and environment variables.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("RUNLEDGER_CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Jobs.Workers <= 0 {
		return fmt.Errorf("jobs.workers must be positive, got %d", c.Jobs.Workers)
	}
	if c.Server.UploadMaxBytes <= 0 {
		return fmt.Errorf("server.upload_max_bytes must be positive")
	}
	switch c.Transport.Mode {
	case "http", "stdio":
	default:
		return fmt.Errorf("unknown transport mode %q", c.Transport.Mode)
	}
	return nil
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func applyEnv(cfg *Config) error {
	if host := os.Getenv("RUNLEDGER_SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if portStr := os.Getenv("RUNLEDGER_SERVER_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid RUNLEDGER_SERVER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if origins := os.Getenv("RUNLEDGER_CORS_ORIGINS"); origins != "" {
		cfg.Server.CORSOrigins = strings.Split(origins, ",")
	}
	if token := os.Getenv("RUNLEDGER_AUTH_TOKEN"); token != "" {
		cfg.Server.AuthToken = token
	}
	if dbPath := os.Getenv("RUNLEDGER_DB_PATH"); dbPath != "" {
		cfg.DB.Path = dbPath
	}
	if dsPath, ok := os.LookupEnv("RUNLEDGER_DATASETS_PATH"); ok {
		cfg.Datasets.Path = dsPath
	}
	if workers := os.Getenv("RUNLEDGER_JOB_WORKERS"); workers != "" {
		n, err := strconv.Atoi(workers)
		if err != nil {
			return fmt.Errorf("invalid RUNLEDGER_JOB_WORKERS: %w", err)
		}
		cfg.Jobs.Workers = n
	}
	if delay := os.Getenv("RUNLEDGER_JOB_STEP_DELAY"); delay != "" {
		d, err := time.ParseDuration(delay)
		if err != nil {
			return fmt.Errorf("invalid RUNLEDGER_JOB_STEP_DELAY: %w", err)
		}
		cfg.Jobs.StepDelay = d
	}
	if level := os.Getenv("RUNLEDGER_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if logPath := os.Getenv("RUNLEDGER_LOG_PATH"); logPath != "" {
		cfg.Log.Path = logPath
	}
	if endpoint := os.Getenv("RUNLEDGER_OTLP_ENDPOINT"); endpoint != "" {
		cfg.Telemetry.OTLPEndpoint = endpoint
	}
	if mode := os.Getenv("RUNLEDGER_TRANSPORT_MODE"); mode != "" {
		cfg.Transport.Mode = mode
	}
	return nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}
