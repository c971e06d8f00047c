package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"timersync/internal/domain"
)

// State backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMySQL  = "mysql"
)

const defaultBaseURL = "https://api.clockify.me/api/v1"

// Mapping is a configured selection for one repository.
type Mapping struct {
	WorkspaceID string   `yaml:"workspace_id"`
	ProjectID   string   `yaml:"project_id"`
	TaskID      string   `yaml:"task_id"`
	TagIDs      []string `yaml:"tag_ids"`
}

// Config holds file- and environment-driven configuration. Environment
// variables override the file.
type Config struct {
	Clockify struct {
		APIKey      string  `yaml:"api_key"`
		WorkspaceID string  `yaml:"workspace_id"`
		BaseURL     string  `yaml:"base_url"`  // default: https://api.clockify.me/api/v1
		RateLimit   float64 `yaml:"rate_limit"` // requests per second, 0 disables
	} `yaml:"clockify"`
	State struct {
		Backend string `yaml:"backend"` // file (default), sqlite or mysql
		Path    string `yaml:"path"`
	} `yaml:"state"`
	MySQL struct {
		DSN string `yaml:"dsn"` // e.g., user:pass@tcp(host:3306)/dbname?parseTime=true&multiStatements=true
	} `yaml:"mysql"`
	Sync struct {
		Interval    time.Duration `yaml:"interval"`
		MinInterval time.Duration `yaml:"min_interval"`
		AlertAfter  time.Duration `yaml:"alert_after"`
		Timezone    string        `yaml:"timezone"`
	} `yaml:"sync"`
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	Defaults struct {
		ProjectID string   `yaml:"project_id"`
		TaskID    string   `yaml:"task_id"`
		TagIDs    []string `yaml:"tag_ids"`
	} `yaml:"defaults"`
	RepoMappings map[string]Mapping `yaml:"repo_mappings"`
	LabelTags    map[string]string  `yaml:"label_tags"`
}

// Default returns the configuration used before file and env are applied.
func Default() Config {
	var cfg Config
	cfg.Clockify.BaseURL = defaultBaseURL
	cfg.Clockify.RateLimit = 5
	cfg.State.Backend = BackendFile
	cfg.Sync.Interval = 10 * time.Second
	cfg.Sync.MinInterval = 5 * time.Second
	cfg.Sync.AlertAfter = 2 * time.Hour
	cfg.Sync.Timezone = "Local"
	cfg.HTTP.Addr = "127.0.0.1:8377"
	return cfg
}

// DefaultPath is where the config file is looked up when none is given.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "timersync", "config.yaml")
}

// Load reads the YAML file at path, then applies environment variables.
// A missing file is only an error when path was given explicitly.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = os.Getenv("TIMERSYNC_CONFIG")
		explicit = path != ""
	}
	if !explicit {
		path = DefaultPath()
	}
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			if !explicit && errors.Is(err, os.ErrNotExist) {
				err = nil
			}
			if err != nil {
				return cfg, err
			}
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if cfg.State.Path == "" {
		cfg.State.Path = defaultStatePath(cfg.State.Backend)
	}
	return cfg, cfg.Validate()
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	str := map[string]*string{
		"CLOCKIFY_API_KEY":        &cfg.Clockify.APIKey,
		"CLOCKIFY_WORKSPACE_ID":   &cfg.Clockify.WorkspaceID,
		"CLOCKIFY_BASE_URL":       &cfg.Clockify.BaseURL,
		"TIMERSYNC_STATE_BACKEND": &cfg.State.Backend,
		"TIMERSYNC_STATE_PATH":    &cfg.State.Path,
		"MYSQL_DSN":               &cfg.MySQL.DSN,
		"TIMERSYNC_TZ":            &cfg.Sync.Timezone,
		"TIMERSYNC_HTTP_ADDR":     &cfg.HTTP.Addr,
	}
	for name, dst := range str {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			*dst = v
		}
	}

	dur := map[string]*time.Duration{
		"TIMERSYNC_SYNC_INTERVAL": &cfg.Sync.Interval,
		"TIMERSYNC_MIN_INTERVAL":  &cfg.Sync.MinInterval,
		"TIMERSYNC_ALERT_AFTER":   &cfg.Sync.AlertAfter,
	}
	for name, dst := range dur {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s must be a duration like 10s: %w", name, err)
		}
		*dst = d
	}

	if v := os.Getenv("CLOCKIFY_RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errors.New("CLOCKIFY_RATE_LIMIT must be a number")
		}
		cfg.Clockify.RateLimit = f
	}
	return nil
}

// Validate checks required settings.
func (c Config) Validate() error {
	if c.Clockify.APIKey == "" {
		return fmt.Errorf("CLOCKIFY_API_KEY is required: %w", domain.ErrAuth)
	}
	switch c.State.Backend {
	case BackendFile, BackendSQLite:
	case BackendMySQL:
		if c.MySQL.DSN == "" {
			return fmt.Errorf("MYSQL_DSN is required for the mysql backend: %w", domain.ErrMissingConfig)
		}
	default:
		return fmt.Errorf("unknown state backend %q: %w", c.State.Backend, domain.ErrMissingConfig)
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("sync interval must be positive: %w", domain.ErrMissingConfig)
	}
	if c.Sync.MinInterval < 0 {
		return fmt.Errorf("min interval must not be negative: %w", domain.ErrMissingConfig)
	}
	return nil
}

// Location resolves Sync.Timezone.
func (c Config) Location() (*time.Location, error) {
	if c.Sync.Timezone == "" || c.Sync.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Sync.Timezone)
}

// RepoSelections converts the configured mappings to domain selections.
func (c Config) RepoSelections() map[string]domain.RepoSelection {
	out := make(map[string]domain.RepoSelection, len(c.RepoMappings))
	for repo, m := range c.RepoMappings {
		out[domain.NormalizeRepo(repo)] = domain.RepoSelection{
			WorkspaceID: m.WorkspaceID,
			ProjectID:   m.ProjectID,
			TaskID:      m.TaskID,
			TagIDs:      m.TagIDs,
		}.Normalized()
	}
	return out
}

// NormalizedLabelTags lower-cases label names.
func (c Config) NormalizedLabelTags() map[string]string {
	out := make(map[string]string, len(c.LabelTags))
	for label, tag := range c.LabelTags {
		out[strings.ToLower(strings.TrimSpace(label))] = tag
	}
	return out
}

func defaultStatePath(backend string) string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	name := "state.json"
	if backend == BackendSQLite {
		name = "state.db"
	}
	return filepath.Join(dir, "timersync", name)
}
