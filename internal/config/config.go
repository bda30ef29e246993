// Package config loads lloyd's YAML configuration and applies environment
// overrides on top of it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Node        NodeConfig        `yaml:"node"`
	Run         RunConfig         `yaml:"run"`
	S3          S3Config          `yaml:"s3"`
	Log         LogConfig         `yaml:"log"`
}

type CoordinatorConfig struct {
	Listen string `yaml:"listen"`
	// PublicAddr is the URL nodes use to reach the coordinator as rank 0.
	PublicAddr     string        `yaml:"public_addr"`
	HealthInterval time.Duration `yaml:"health_interval"`
	JobTimeout     time.Duration `yaml:"job_timeout"`
	JobHistory     int           `yaml:"job_history"`
}

type NodeConfig struct {
	ID     string `yaml:"id"`
	Listen string `yaml:"listen"`
	// Addr is the URL this node advertises when it registers.
	Addr string `yaml:"addr"`
	// Coordinator is the coordinator's base URL.
	Coordinator string `yaml:"coordinator"`
}

// RunConfig holds the defaults of `kmeans run` and `kmeans generate`.
type RunConfig struct {
	Clusters   int    `yaml:"clusters"`
	Iterations int    `yaml:"iterations"`
	Threads    int    `yaml:"threads"`
	Ranks      int    `yaml:"ranks"`
	Seed       uint64 `yaml:"seed"`
	InputDir   string `yaml:"input_dir"`
	OutputDir  string `yaml:"output_dir"`
	Filename   string `yaml:"filename"`
}

// S3Config points s3:// dataset paths at an S3-compatible endpoint.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() *Config {
	return &Config{
		Coordinator: CoordinatorConfig{
			Listen:         ":8080",
			PublicAddr:     "http://127.0.0.1:8080",
			HealthInterval: 5 * time.Second,
			JobHistory:     32,
		},
		Node: NodeConfig{
			Listen:      ":8081",
			Addr:        "http://127.0.0.1:8081",
			Coordinator: "http://127.0.0.1:8080",
		},
		Run: RunConfig{
			Clusters:   3,
			Iterations: 100,
			Seed:       1,
			InputDir:   "inputs",
			OutputDir:  "outputs",
			Filename:   "data.txt",
		},
		S3: S3Config{
			UseSSL: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path and then
// with the environment. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadYAMLFile(path, cfg); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}
	if err := applyEnvironment(cfg); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	return cfg, nil
}

func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func applyEnvironment(cfg *Config) error {
	var errs []error

	if v := os.Getenv("COORDINATOR_LISTEN"); v != "" {
		cfg.Coordinator.Listen = v
	}
	if v := os.Getenv("COORDINATOR_PUBLIC_ADDR"); v != "" {
		cfg.Coordinator.PublicAddr = v
	}
	if v := os.Getenv("COORDINATOR_HEALTH_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("COORDINATOR_HEALTH_INTERVAL: %w", err))
		} else {
			cfg.Coordinator.HealthInterval = d
		}
	}
	if v := os.Getenv("COORDINATOR_JOB_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("COORDINATOR_JOB_TIMEOUT: %w", err))
		} else {
			cfg.Coordinator.JobTimeout = d
		}
	}

	if v := os.Getenv("NODE_ID"); v != "" {
		cfg.Node.ID = v
	}
	if v := os.Getenv("NODE_LISTEN"); v != "" {
		cfg.Node.Listen = v
	}
	if v := os.Getenv("NODE_ADDR"); v != "" {
		cfg.Node.Addr = v
	}
	if v := os.Getenv("COORDINATOR_ADDR"); v != "" {
		cfg.Node.Coordinator = v
	}

	if v := os.Getenv("S3_ENDPOINT"); v != "" {
		cfg.S3.Endpoint = v
	}
	if v := os.Getenv("S3_ACCESS_KEY"); v != "" {
		cfg.S3.AccessKey = v
	}
	if v := os.Getenv("S3_SECRET_KEY"); v != "" {
		cfg.S3.SecretKey = v
	}
	if v := os.Getenv("S3_REGION"); v != "" {
		cfg.S3.Region = v
	}
	if v := os.Getenv("S3_USE_SSL"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("S3_USE_SSL: %w", err))
		} else {
			cfg.S3.UseSSL = b
		}
	}

	if v := os.Getenv("LLOYD_LOG_LEVEL"); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv("LLOYD_LOG_FORMAT"); v != "" {
		cfg.Log.Format = strings.ToLower(v)
	}

	return errors.Join(errs...)
}

// Validate checks the settings shared by every binary.
func (c *Config) Validate() error {
	var errs []error
	if c.Run.Clusters <= 0 {
		errs = append(errs, fmt.Errorf("run.clusters must be positive, got %d", c.Run.Clusters))
	}
	if c.Run.Iterations < 0 {
		errs = append(errs, fmt.Errorf("run.iterations must not be negative, got %d", c.Run.Iterations))
	}
	if c.Run.Threads < 0 {
		errs = append(errs, fmt.Errorf("run.threads must not be negative, got %d", c.Run.Threads))
	}
	if c.Run.Ranks < 0 {
		errs = append(errs, fmt.Errorf("run.ranks must not be negative, got %d", c.Run.Ranks))
	}
	if c.Coordinator.HealthInterval <= 0 {
		errs = append(errs, errors.New("coordinator.health_interval must be positive"))
	}
	if c.Coordinator.JobTimeout < 0 {
		errs = append(errs, errors.New("coordinator.job_timeout must not be negative"))
	}
	if c.S3.Endpoint != "" && (c.S3.AccessKey == "") != (c.S3.SecretKey == "") {
		errs = append(errs, errors.New("s3.access_key and s3.secret_key must be set together"))
	}
	return errors.Join(errs...)
}

// ValidateNode additionally checks the settings a node needs to join a
// cluster.
func (c *Config) ValidateNode() error {
	var errs []error
	if err := c.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Node.ID == "" {
		errs = append(errs, errors.New("node.id is required (NODE_ID)"))
	}
	if c.Node.Addr == "" {
		errs = append(errs, errors.New("node.addr is required (NODE_ADDR)"))
	}
	if c.Node.Coordinator == "" {
		errs = append(errs, errors.New("node.coordinator is required (COORDINATOR_ADDR)"))
	}
	return errors.Join(errs...)
}
