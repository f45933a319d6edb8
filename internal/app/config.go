package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rancher/rollback-action/internal/event"
	"github.com/rancher/rollback-action/internal/git"
	"github.com/rancher/rollback-action/internal/rollback"
)

const (
	defaultLogLevel  = "info"
	defaultLogFormat = "text"
)

// GitConfig holds the repository settings of a run.
type GitConfig struct {
	RepoURL    string `yaml:"repo_url"`
	APIToken   string `yaml:"api_token"`
	UserName   string `yaml:"user_name"`
	Email      string `yaml:"email"`
	HostURL    string `yaml:"host_url"`
	RepoName   string `yaml:"repo_name"`
	RepoOwner  string `yaml:"repo_owner"`
	BranchName string `yaml:"branch_name"`
	CommitHash string `yaml:"commit_hash"`
	ClonePath  string `yaml:"clone_path"`
}

// WorkspaceConfig holds the optional publish destination.
type WorkspaceConfig struct {
	Instance string `yaml:"instance"`
	Token    string `yaml:"token"`
	Path     string `yaml:"path"`
}

// Config captures runtime options sourced from an optional YAML file and
// environment variables. Environment values win over the file.
type Config struct {
	Git       GitConfig       `yaml:"git"`
	Workspace WorkspaceConfig `yaml:"workspace"`

	LogLevel     string `yaml:"log_level"`
	LogFormat    string `yaml:"log_format"`
	Verbose      bool   `yaml:"verbose"`
	SkipPublish  bool   `yaml:"skip_publish"`
	SkipVerify   bool   `yaml:"skip_verify"`
	VerifyRemote bool   `yaml:"verify_remote"`
	GitHubAPIURL string `yaml:"github_api_url"`
}

// LoadConfig reads path when it is non-empty, applies environment overrides,
// then workflow_dispatch inputs, then defaults, and performs validation.
// ClonePath is made absolute.
func LoadConfig(path string) (Config, error) {
	var cfg Config

	if path = strings.TrimSpace(path); path != "" {
		if err := readConfigFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := applyDispatchInputs(&cfg); err != nil {
		return Config{}, err
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = defaultLogFormat
	}
	if cfg.Verbose {
		cfg.LogLevel = "debug"
	}

	if cfg.Git.ClonePath != "" {
		abs, err := filepath.Abs(cfg.Git.ClonePath)
		if err != nil {
			return Config{}, fmt.Errorf("resolve clone path: %w", err)
		}
		cfg.Git.ClonePath = abs
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if err := c.Repository().Validate(); err != nil {
		return err
	}

	if _, err := git.HostFromURL(c.Git.HostURL); err != nil {
		return err
	}

	set := 0
	for _, v := range []string{c.Workspace.Instance, c.Workspace.Token, c.Workspace.Path} {
		if strings.TrimSpace(v) != "" {
			set++
		}
	}
	if set != 0 && set != 3 {
		return fmt.Errorf("DATABRICKS_INSTANCE, DATABRICKS_TOKEN and DATABRICKS_WORKSPACE_PATH must be set together")
	}

	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}

	supportedFormats := map[string]struct{}{"text": {}, "json": {}}
	if _, ok := supportedFormats[c.LogFormat]; !ok {
		return fmt.Errorf("unsupported log format %q", c.LogFormat)
	}

	return nil
}

// Repository returns the settings handed to the rollback state machine.
func (c Config) Repository() rollback.Config {
	return rollback.Config{
		RemoteURL:    c.Git.RepoURL,
		Token:        c.Git.APIToken,
		UserName:     c.Git.UserName,
		UserEmail:    c.Git.Email,
		HostURL:      c.Git.HostURL,
		RepoOwner:    c.Git.RepoOwner,
		RepoName:     c.Git.RepoName,
		Branch:       c.Git.BranchName,
		TargetCommit: c.Git.CommitHash,
		ClonePath:    c.Git.ClonePath,
	}
}

// PublishEnabled reports whether a workspace destination is configured and
// publishing was not switched off.
func (c Config) PublishEnabled() bool {
	return !c.SkipPublish && c.Workspace.Instance != "" && c.Workspace.Token != "" && c.Workspace.Path != ""
}

// Redacted returns a copy safe to print: tokens are masked.
func (c Config) Redacted() Config {
	out := c
	out.Git.APIToken = mask(c.Git.APIToken)
	out.Git.RepoURL = git.RedactURL(c.Git.RepoURL)
	out.Workspace.Token = mask(c.Workspace.Token)
	return out
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "xxxxx"
}

func readConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	textVars := []struct {
		key string
		dst *string
	}{
		{"GIT_REPO_URL", &cfg.Git.RepoURL},
		{"GIT_API_TOKEN", &cfg.Git.APIToken},
		{"GIT_USER_NAME", &cfg.Git.UserName},
		{"GIT_EMAIL", &cfg.Git.Email},
		{"GIT_HOST_URL", &cfg.Git.HostURL},
		{"GIT_REPO_NAME", &cfg.Git.RepoName},
		{"GIT_REPO_OWNER", &cfg.Git.RepoOwner},
		{"GIT_BRANCH_NAME", &cfg.Git.BranchName},
		{"GIT_COMMIT_HASH", &cfg.Git.CommitHash},
		{"LOCAL_CLONE_PATH", &cfg.Git.ClonePath},
		{"DATABRICKS_INSTANCE", &cfg.Workspace.Instance},
		{"DATABRICKS_TOKEN", &cfg.Workspace.Token},
		{"DATABRICKS_WORKSPACE_PATH", &cfg.Workspace.Path},
		{"ROLLBACK_LOG_LEVEL", &cfg.LogLevel},
		{"ROLLBACK_LOG_FORMAT", &cfg.LogFormat},
		{"ROLLBACK_GITHUB_API_URL", &cfg.GitHubAPIURL},
	}
	for _, s := range textVars {
		if v := trimmedEnv(s.key); v != "" {
			*s.dst = v
		}
	}

	boolVars := []struct {
		key string
		dst *bool
	}{
		{"ROLLBACK_VERBOSE", &cfg.Verbose},
		{"ROLLBACK_SKIP_PUBLISH", &cfg.SkipPublish},
		{"ROLLBACK_SKIP_VERIFY", &cfg.SkipVerify},
		{"ROLLBACK_VERIFY_REMOTE", &cfg.VerifyRemote},
	}
	for _, b := range boolVars {
		raw := trimmedEnv(b.key)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", b.key, err)
		}
		*b.dst = v
	}

	return nil
}

// applyDispatchInputs lets a manually dispatched workflow choose the branch and
// commit for this run. Repository owner and name fall back to the event
// repository when unset.
func applyDispatchInputs(cfg *Config) error {
	if trimmedEnv("GITHUB_EVENT_NAME") != "workflow_dispatch" {
		return nil
	}
	eventPath := trimmedEnv("GITHUB_EVENT_PATH")
	if eventPath == "" {
		return fmt.Errorf("GITHUB_EVENT_PATH is required for workflow_dispatch events")
	}

	payload, err := event.ParseDispatchEventFile(eventPath)
	if err != nil {
		return fmt.Errorf("parse workflow_dispatch event: %w", err)
	}

	if payload.Inputs.Branch != "" {
		cfg.Git.BranchName = payload.Inputs.Branch
	}
	if payload.Inputs.Commit != "" {
		cfg.Git.CommitHash = payload.Inputs.Commit
	}
	if cfg.Git.RepoOwner == "" {
		cfg.Git.RepoOwner = payload.Repository.Owner
	}
	if cfg.Git.RepoName == "" {
		cfg.Git.RepoName = payload.Repository.Name
	}
	return nil
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
