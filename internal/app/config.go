package app

import "errors"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	PipelinePath string // .hcl file or directory
	CachePath    string // bolt file; empty keeps the cache in memory

	LogFormat string
	LogLevel  string
	Workers   int
	Drains    int
}

func NewConfig(cfg Config) (*Config, error) {
	if cfg.PipelinePath == "" {
		return nil, errors.New("PipelinePath is a required configuration field and cannot be empty")
	}
	if cfg.Workers < 0 {
		return nil, errors.New("Workers cannot be negative")
	}
	if cfg.Drains < 0 {
		return nil, errors.New("Drains cannot be negative")
	}
	return &cfg, nil
}
