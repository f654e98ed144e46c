package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone    = "UTC"
	configPathEnv      = "INGESTION_ALERTER_CONFIG"
	databaseDSNEnv     = "DATABASE_DSN"
	chatWebhookEnv     = "CHAT_WEBHOOK_URL"
	aepAuthHeaderEnv   = "AEP_AUTHORIZATION"
	googleCredsFileEnv = "GOOGLE_CREDENTIALS_FILE"
)

// Duration is a time.Duration that unmarshals from YAML strings like "24h".
type Duration time.Duration

// UnmarshalYAML parses the duration string form.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Std converts back to the standard library type.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds high-level settings required across the application.
type Config struct {
	Logging   LoggingConfig           `yaml:"logging"`
	RunMode   string                  `yaml:"runMode"`
	Scheduler SchedulerConfig         `yaml:"scheduler"`
	Pipeline  PipelineConfig          `yaml:"pipeline"`
	Database  DatabaseConfig          `yaml:"database"`
	Sources   map[string]SourceConfig `yaml:"sources"`
	Datasets  []DatasetConfig         `yaml:"datasets"`
	Sinks     SinksConfig             `yaml:"sinks"`
}

// LoggingConfig selects the slog level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// SchedulerConfig defines when the pipeline should run.
type SchedulerConfig struct {
	Interval Duration       `yaml:"interval"`
	Timezone string         `yaml:"timezone"`
	location *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// PipelineConfig bounds a single run.
type PipelineConfig struct {
	WindowSize   Duration        `yaml:"windowSize"`
	RunTimeout   Duration        `yaml:"runTimeout"`
	MaxTopErrors int             `yaml:"maxTopErrors"`
	Thresholds   ThresholdConfig `yaml:"thresholds"`
}

// ThresholdConfig holds the failure-ratio cutoffs as fractions of total
// events. Pointer fields distinguish "not configured" from an explicit 0,
// which is a valid cutoff (any failure trips it).
type ThresholdConfig struct {
	Degraded *float64 `yaml:"degraded"`
	Critical *float64 `yaml:"critical"`
}

// DegradedValue resolves the degraded cutoff; unset defaults to 0 so any
// failure degrades a dataset.
func (t ThresholdConfig) DegradedValue() float64 {
	if t.Degraded != nil {
		return *t.Degraded
	}
	return 0
}

// CriticalValue resolves the critical cutoff; unset defaults to 0.5.
func (t ThresholdConfig) CriticalValue() float64 {
	if t.Critical != nil {
		return *t.Critical
	}
	return 0.5
}

// DatabaseConfig describes the optional Postgres run-history store.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// SourceConfig describes one upstream API a fetcher strategy talks to.
type SourceConfig struct {
	BaseURL            string            `yaml:"baseURL"`
	Headers            map[string]string `yaml:"headers"`
	QueryParams        map[string]string `yaml:"queryParams"`
	Retries            int               `yaml:"retries"`
	Timeout            Duration          `yaml:"timeout"`
	FetchFailedRecords bool              `yaml:"fetchFailedRecords"`
}

// FieldMapping names which raw field feeds each normalized field. Paths are
// dot-separated; a segment applied to an array takes its first element.
type FieldMapping struct {
	Timestamp    string `yaml:"timestamp"`
	Status       string `yaml:"status"`
	ErrorCode    string `yaml:"errorCode"`
	ErrorMessage string `yaml:"errorMessage"`
	Count        string `yaml:"count"`
	TimeLayout   string `yaml:"timeLayout"`
}

// DatasetConfig describes a single monitored dataset.
type DatasetConfig struct {
	ID               string            `yaml:"id"`
	Source           string            `yaml:"source"`
	ExpectContinuous bool              `yaml:"expectContinuous"`
	FieldMapping     FieldMapping      `yaml:"fieldMapping"`
	StatusMap        map[string]string `yaml:"statusMap"`
	Options          map[string]string `yaml:"options"`
}

// SinksConfig groups outbound delivery targets; empty sections disable the
// corresponding sink.
type SinksConfig struct {
	Chat   ChatSinkConfig   `yaml:"chat"`
	Sheets SheetsSinkConfig `yaml:"sheets"`
	Drive  DriveSinkConfig  `yaml:"drive"`
}

// ChatSinkConfig wires the Google Chat webhook.
type ChatSinkConfig struct {
	WebhookURL string `yaml:"webhookURL"`
}

// SheetsSinkConfig wires the spreadsheet append target.
type SheetsSinkConfig struct {
	SpreadsheetID   string `yaml:"spreadsheetID"`
	SheetRange      string `yaml:"sheetRange"`
	CredentialsFile string `yaml:"credentialsFile"`
}

// DriveSinkConfig wires the report file upload target.
type DriveSinkConfig struct {
	FolderID        string `yaml:"folderID"`
	CredentialsFile string `yaml:"credentialsFile"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()
	cfg.applyDefaults()

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(chatWebhookEnv); v != "" {
		c.Sinks.Chat.WebhookURL = v
	}

	if v := os.Getenv(aepAuthHeaderEnv); v != "" {
		if c.Sources == nil {
			c.Sources = map[string]SourceConfig{}
		}
		src := c.Sources["aep"]
		if src.Headers == nil {
			src.Headers = map[string]string{}
		}
		src.Headers["Authorization"] = v
		c.Sources["aep"] = src
	}

	if v := os.Getenv(googleCredsFileEnv); v != "" {
		if c.Sinks.Sheets.SpreadsheetID != "" && c.Sinks.Sheets.CredentialsFile == "" {
			c.Sinks.Sheets.CredentialsFile = v
		}
		if c.Sinks.Drive.FolderID != "" && c.Sinks.Drive.CredentialsFile == "" {
			c.Sinks.Drive.CredentialsFile = v
		}
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func (c *Config) applyDefaults() {
	if c.RunMode == "" {
		c.RunMode = "once"
	}
	if c.Pipeline.WindowSize <= 0 {
		c.Pipeline.WindowSize = Duration(24 * time.Hour)
	}
	if c.Pipeline.RunTimeout <= 0 {
		c.Pipeline.RunTimeout = Duration(5 * time.Minute)
	}
	if c.Pipeline.MaxTopErrors <= 0 {
		c.Pipeline.MaxTopErrors = 5
	}
	if c.Scheduler.Interval <= 0 {
		c.Scheduler.Interval = Duration(24 * time.Hour)
	}
	if c.Sources == nil {
		c.Sources = map[string]SourceConfig{}
	}
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging = override.Logging
	}

	if override.RunMode != "" {
		base.RunMode = override.RunMode
	}

	if override.Scheduler.Interval != 0 {
		base.Scheduler.Interval = override.Scheduler.Interval
	}
	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}

	if override.Pipeline.WindowSize != 0 {
		base.Pipeline.WindowSize = override.Pipeline.WindowSize
	}
	if override.Pipeline.RunTimeout != 0 {
		base.Pipeline.RunTimeout = override.Pipeline.RunTimeout
	}
	if override.Pipeline.MaxTopErrors != 0 {
		base.Pipeline.MaxTopErrors = override.Pipeline.MaxTopErrors
	}
	if override.Pipeline.Thresholds.Degraded != nil {
		base.Pipeline.Thresholds.Degraded = override.Pipeline.Thresholds.Degraded
	}
	if override.Pipeline.Thresholds.Critical != nil {
		base.Pipeline.Thresholds.Critical = override.Pipeline.Thresholds.Critical
	}

	if override.Database.DSN != "" {
		base.Database = override.Database
	}

	if len(override.Sources) > 0 {
		base.Sources = override.Sources
	}
	if len(override.Datasets) > 0 {
		base.Datasets = override.Datasets
	}

	if override.Sinks.Chat.WebhookURL != "" {
		base.Sinks.Chat = override.Sinks.Chat
	}
	if override.Sinks.Sheets.SpreadsheetID != "" {
		base.Sinks.Sheets = override.Sinks.Sheets
	}
	if override.Sinks.Drive.FolderID != "" {
		base.Sinks.Drive = override.Sinks.Drive
	}

	return base
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging: LoggingConfig{Level: "info"},
		RunMode: "once",
		Scheduler: SchedulerConfig{
			Interval: Duration(24 * time.Hour),
			Timezone: defaultTimezone,
			location: tz,
		},
		Pipeline: PipelineConfig{
			WindowSize:   Duration(24 * time.Hour),
			RunTimeout:   Duration(5 * time.Minute),
			MaxTopErrors: 5,
		},
		Sources: map[string]SourceConfig{
			"aep": {
				BaseURL: "https://platform.adobe.io/data/foundation/catalog/batches",
				Retries: 2,
				Timeout: Duration(20 * time.Second),
			},
		},
	}
}
