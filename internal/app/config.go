package app

import (
	"errors"
	"fmt"

	"github.com/vk/exerunner/internal/expand"
	"github.com/vk/exerunner/internal/step"
)

// DefaultWorkers is the number of steps run concurrently when Workers is 0.
const DefaultWorkers = 4

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	ConfigPaths []string // .hcl / .yaml files or directories

	// Node names the configured node steps run on. Empty means the local
	// machine with no tool location overrides.
	Node      string
	Workspace string
	Job       string
	Number    int
	Context   string // freestyle | pipeline
	Expander  string // template | env
	Workers   int

	LogLevel        string
	LogFormat       string
	ReportURL       string
	HealthcheckPort int
}

func NewConfig(cfg Config) (*Config, error) {
	if len(cfg.ConfigPaths) == 0 {
		return nil, errors.New("at least one configuration path is required")
	}
	if _, err := step.ParseContextKind(cfg.Context); err != nil {
		return nil, err
	}
	if _, err := expand.New(cfg.Expander); err != nil {
		return nil, err
	}
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("workers must not be negative, got %d", cfg.Workers)
	}
	if cfg.Workers == 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.HealthcheckPort < 0 || cfg.HealthcheckPort > 65535 {
		return nil, fmt.Errorf("invalid healthcheck port %d", cfg.HealthcheckPort)
	}
	if cfg.Job == "" {
		cfg.Job = "exerunner"
	}
	return &cfg, nil
}
