package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"example.com/pdfdesk/internal/pages"
)

// Config is read from an optional YAML file; command line flags win.
type Config struct {
	Addr        string        `yaml:"addr"`
	OutputDir   string        `yaml:"output_dir"`
	Retention   time.Duration `yaml:"retention"`
	MaxUploadMB int64         `yaml:"max_upload_mb"`
	RangePolicy string        `yaml:"range_policy"`
	Relaxed     bool          `yaml:"relaxed_validation"`
	FetchWait   time.Duration `yaml:"fetch_timeout"`
	UserAgent   string        `yaml:"user_agent"`
	LogLevel    string        `yaml:"log_level"`
	LogFormat   string        `yaml:"log_format"`
}

func defaultConfig() Config {
	return Config{
		Addr:        defaultAddr,
		OutputDir:   defaultOut,
		Retention:   defaultRetention,
		MaxUploadMB: defaultMaxMB,
		RangePolicy: pages.Reject.String(),
		Relaxed:     true,
		FetchWait:   defaultFetchWait,
		UserAgent:   defaultUA,
		LogLevel:    "info",
		LogFormat:   "text",
	}
}

// loadConfig returns the defaults overlaid with path, if path is set.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Addr) == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		errs = append(errs, errors.New("output_dir is required"))
	}
	if c.MaxUploadMB <= 0 {
		errs = append(errs, errors.New("max_upload_mb must be positive"))
	}
	if c.Retention < 0 {
		errs = append(errs, errors.New("retention must not be negative"))
	}
	if c.FetchWait <= 0 {
		errs = append(errs, errors.New("fetch_timeout must be positive"))
	}
	if _, err := pages.ParsePolicy(c.RangePolicy); err != nil {
		errs = append(errs, err)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// policy is the parsed RangePolicy; call after Validate.
func (c Config) policy() pages.Policy {
	p, _ := pages.ParsePolicy(c.RangePolicy)
	return p
}

func (c Config) maxUploadBytes() int64 { return c.MaxUploadMB << 20 }
