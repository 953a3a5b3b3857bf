/*
Copyright 2025 The teamwater-data Authors
SPDX-License-Identifier: Apache-2.0
*/

// Package config loads the settings for the three binaries. Values
// come from the environment, optionally overlaid on a YAML file named
// by CONFIG_FILE whose keys are the same environment variable names.
// Environment wins over file, file wins over built-in defaults.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/sethvargo/go-envconfig"
	"golang.org/x/oauth2"
	"gopkg.in/yaml.v3"
)

// Publisher selection for the updater daemon.
const (
	PublisherGit    = "git"
	PublisherGitHub = "github"
)

// Validator is implemented by configurations that check themselves
// after loading.
type Validator interface {
	Validate() error
}

// Updater configures the hourly publishing daemon.
type Updater struct {
	APIBaseURL string        `env:"API_BASE_URL,default=https://api.teamwater.org/v1"`
	APITimeout time.Duration `env:"API_TIMEOUT,default=10s"`

	// Publisher picks how changes reach the data repository, git for
	// a pushed working copy or github for the Contents API.
	Publisher string `env:"PUBLISHER,default=git"`
	RepoURL   string `env:"REPO_URL"`
	Branch    string `env:"BRANCH,default=main"`
	// WorkDir holds the working copy for the git publisher. Empty
	// means a per-user cache directory.
	WorkDir string `env:"WORK_DIR"`

	GitHubOwner string `env:"GITHUB_OWNER"`
	GitHubRepo  string `env:"GITHUB_REPO"`

	CommitAuthor string `env:"COMMIT_AUTHOR,default=teamwater-data-bot"`
	CommitEmail  string `env:"COMMIT_EMAIL"`

	GitHubToken     string `env:"GITHUB_TOKEN"`
	GitHubTokenFile string `env:"GITHUB_TOKEN_FILE"`

	Interval               time.Duration `env:"INTERVAL,default=1h"`
	AlignToInterval        bool          `env:"ALIGN_TO_INTERVAL,default=true"`
	RunOnStart             bool          `env:"RUN_ON_START,default=true"`
	CycleTimeout           time.Duration `env:"CYCLE_TIMEOUT,default=10m"`
	MaxConsecutiveFailures int           `env:"MAX_CONSECUTIVE_FAILURES,default=0"`
	SchemaExport           bool          `env:"SCHEMA_EXPORT,default=true"`

	// MetricsPort serves the Prometheus endpoint, 0 disables it.
	MetricsPort int  `env:"METRICS_PORT,default=2112"`
	EnablePprof bool `env:"ENABLE_PPROF,default=false"`
}

// Validate implements Validator.
func (c *Updater) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("INTERVAL must be positive, got %v", c.Interval)
	}
	if c.CycleTimeout < 0 {
		return fmt.Errorf("CYCLE_TIMEOUT must not be negative, got %v", c.CycleTimeout)
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		return fmt.Errorf("METRICS_PORT out of range: %d", c.MetricsPort)
	}
	switch c.Publisher {
	case PublisherGit:
		if c.RepoURL == "" {
			return fmt.Errorf("REPO_URL is required with PUBLISHER=%s", PublisherGit)
		}
	case PublisherGitHub:
		if c.GitHubOwner == "" || c.GitHubRepo == "" {
			return fmt.Errorf("GITHUB_OWNER and GITHUB_REPO are required with PUBLISHER=%s", PublisherGitHub)
		}
	default:
		return fmt.Errorf("unknown PUBLISHER %q, want %s or %s", c.Publisher, PublisherGit, PublisherGitHub)
	}
	return nil
}

// ResolveWorkDir returns the working copy location, defaulting to a
// per-user cache directory.
func (c *Updater) ResolveWorkDir() string {
	if c.WorkDir != "" {
		return c.WorkDir
	}
	return filepath.Join(xdg.CacheHome, "teamwater-data", "repo")
}

// TokenSource builds the publish credential. A literal token wins
// over a token file; with neither configured it returns nil, which
// publishes anonymously.
func (c *Updater) TokenSource(context.Context) (oauth2.TokenSource, error) {
	token := c.GitHubToken
	if token == "" && c.GitHubTokenFile != "" {
		data, err := os.ReadFile(c.GitHubTokenFile)
		if err != nil {
			return nil, fmt.Errorf("reading GITHUB_TOKEN_FILE: %w", err)
		}
		token = strings.TrimSpace(string(data))
	}
	if token == "" {
		return nil, nil
	}
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}), nil
}

// Collector configures the one-shot collection tool.
type Collector struct {
	APIBaseURL string        `env:"API_BASE_URL,default=https://api.teamwater.org/v1"`
	APITimeout time.Duration `env:"API_TIMEOUT,default=10s"`

	// DataDir is where the ledger files are written.
	DataDir      string `env:"DATA_DIR,default=."`
	SchemaExport bool   `env:"SCHEMA_EXPORT,default=false"`

	// ReportLimit caps the rows in the printed tables.
	ReportLimit int `env:"REPORT_LIMIT,default=10"`
}

// Validate implements Validator.
func (c *Collector) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("DATA_DIR must not be empty")
	}
	if c.ReportLimit < 0 {
		return fmt.Errorf("REPORT_LIMIT must not be negative, got %d", c.ReportLimit)
	}
	return nil
}

// Monitor configures the live donation watcher.
type Monitor struct {
	APIBaseURL string        `env:"API_BASE_URL,default=https://api.teamwater.org/v1"`
	APITimeout time.Duration `env:"API_TIMEOUT,default=5s"`

	DataDir string `env:"DATA_DIR,default=."`

	PollInterval   time.Duration `env:"POLL_INTERVAL,default=1s"`
	StatusInterval time.Duration `env:"STATUS_INTERVAL,default=10s"`
	MaxPollErrors  int           `env:"MAX_POLL_ERRORS,default=5"`
	ErrorPause     time.Duration `env:"ERROR_PAUSE,default=5s"`
}

// Validate implements Validator.
func (c *Monitor) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive, got %v", c.PollInterval)
	}
	if c.MaxPollErrors <= 0 {
		return fmt.Errorf("MAX_POLL_ERRORS must be positive, got %d", c.MaxPollErrors)
	}
	if c.DataDir == "" {
		return fmt.Errorf("DATA_DIR must not be empty")
	}
	return nil
}

// Load populates target from the environment and the optional
// CONFIG_FILE overlay, then validates it.
func Load(ctx context.Context, target any) error {
	lookuper := envconfig.Lookuper(envconfig.OsLookuper())
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		vals, err := fileValues(path)
		if err != nil {
			return fmt.Errorf("loading config file %s: %w", path, err)
		}
		lookuper = envconfig.MultiLookuper(envconfig.OsLookuper(), envconfig.MapLookuper(vals))
	}
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   target,
		Lookuper: lookuper,
	}); err != nil {
		return fmt.Errorf("processing environment: %w", err)
	}
	if v, ok := target.(Validator); ok {
		return v.Validate()
	}
	return nil
}

// fileValues flattens a YAML document of KEY: value pairs into the
// string map the env lookuper wants.
func fileValues(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	vals := make(map[string]string, len(raw))
	for k, v := range raw {
		vals[k] = fmt.Sprint(v)
	}
	return vals, nil
}
