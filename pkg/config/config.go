package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

var GlobalConfig *Config

const defaultConfigPath = "config/config.yaml"

// Config global configuration
type Config struct {
	Billing    BillingConfig    `yaml:"billing"`
	Report     ReportConfig     `yaml:"report"`
	Accounting AccountingConfig `yaml:"accounting"`
	Resources  ResourcesConfig  `yaml:"resources"`
	Logger     LoggerConfig     `yaml:"logger"`
	Redis      RedisConfig      `yaml:"redis"`
	MySQL      MySQLConfig      `yaml:"mysql"`
	Server     ServerConfig     `yaml:"server"`
}

// BillingConfig holds the cluster's published rate card
type BillingConfig struct {
	Rate      float64 `yaml:"rate"`       // currency per CPU-equivalent hour
	GPUWeight float64 `yaml:"gpu_weight"` // CPU-equivalents per allocated GPU
	Currency  string  `yaml:"currency"`
}

// ReportConfig input/output locations and presentation
type ReportConfig struct {
	TimeZone     string `yaml:"timezone"`
	SubmitOffset int    `yaml:"submit_offset"` // column of the submission timestamp on the first timing line
	TimingFile   string `yaml:"timing_file"`
	ResourceFile string `yaml:"resource_file"`
	SummaryFile  string `yaml:"summary_file"`
	JSONFile     string `yaml:"json_file"`
	MemDir       string `yaml:"mem_dir"`
	MemFile      string `yaml:"mem_file"`
}

// AccountingConfig controls how sacct output is fetched and interpreted
type AccountingConfig struct {
	Command  string        `yaml:"command"`
	StepMode string        `yaml:"step_mode"` // srun, batch
	Retries  int           `yaml:"retries"`
	Timeout  time.Duration `yaml:"timeout"`
	Backoff  time.Duration `yaml:"backoff"`
	Workers  int           `yaml:"workers"`
	DumpDir  string        `yaml:"dump_dir"` // read <dump_dir>/<jobid>.txt instead of running the command
	SaveRaw  *bool         `yaml:"save_raw"`
}

// ResourcesConfig limits checked against the resource table
type ResourcesConfig struct {
	CPUsPerNodeLimit int `yaml:"cpus_per_node_limit"`
}

// LoggerConfig logger configuration
type LoggerConfig struct {
	Level  string           `yaml:"level"`  // debug, info, warn, error
	Output string           `yaml:"output"` // console, file, both
	File   LoggerFileConfig `yaml:"file"`
}

// LoggerFileConfig logger file configuration
type LoggerFileConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"` // rotate after this size; 0 means 100
	MaxBackups int    `yaml:"max_backups"` // 0 keeps all
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// RedisConfig Redis configuration (accounting cache, optional)
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// MySQLConfig MySQL configuration (run history, optional)
type MySQLConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// DSN returns the go-sql-driver connection string
func (c MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// ServerConfig server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	Mode            string        `yaml:"mode"` // debug, release
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	APIKey          string        `yaml:"api_key"` // guards POST /api/v1/runs/refresh; empty disables auth
}

// DefaultConfig returns the configuration used when no file is present.
// The billing defaults follow the Resnick HPC rate card.
func DefaultConfig() *Config {
	saveRaw := true
	return &Config{
		Billing: BillingConfig{
			Rate:      0.008,
			GPUWeight: 10,
			Currency:  "$",
		},
		Report: ReportConfig{
			TimeZone:     "US/Pacific",
			SubmitOffset: 20,
			TimingFile:   "log_files/time_unix.txt",
			ResourceFile: "resources.cfg",
			SummaryFile:  "formatted_summary_timings.txt",
			MemDir:       "mem_usage",
			MemFile:      "max_mem_usage.txt",
		},
		Accounting: AccountingConfig{
			Command:  "sacct",
			StepMode: "srun",
			Retries:  3,
			Timeout:  30 * time.Second,
			Backoff:  time.Second,
			Workers:  4,
			SaveRaw:  &saveRaw,
		},
		Resources: ResourcesConfig{
			CPUsPerNodeLimit: 56,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Output: "console",
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			CacheTTL: 24 * time.Hour,
		},
		MySQL: MySQLConfig{
			Host:     "localhost",
			Port:     3306,
			Database: "stagecost",
		},
		Server: ServerConfig{
			Port:            8080,
			Mode:            "release",
			RefreshInterval: 5 * time.Minute,
		},
	}
}

// Init loads the configuration into GlobalConfig.
// An empty path falls back to CONFIG_PATH and then config/config.yaml.
func Init(path string) ([]string, error) {
	cfg, warnings, err := Load(path)
	if err != nil {
		return nil, err
	}
	GlobalConfig = cfg
	return warnings, nil
}

// Load reads a YAML file on top of DefaultConfig. A missing file at the
// default location is not an error; an explicitly named one is.
func Load(path string) (*Config, []string, error) {
	explicit := path != ""
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
		explicit = path != ""
	}
	if path == "" {
		path = defaultConfigPath
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		// defaults only
	default:
		return nil, nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	warnings := validateAndApplyDefaults(cfg)
	return cfg, warnings, nil
}

// validateAndApplyDefaults replaces invalid values with their defaults and
// returns one message per replaced value.
func validateAndApplyDefaults(cfg *Config) []string {
	defaults := DefaultConfig()
	var warnings []string
	warn := func(format string, args ...interface{}) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}

	if cfg.Billing.Rate < 0 {
		warn("billing.rate %v is negative, using %v", cfg.Billing.Rate, defaults.Billing.Rate)
		cfg.Billing.Rate = defaults.Billing.Rate
	}
	if cfg.Billing.GPUWeight < 0 {
		warn("billing.gpu_weight %v is negative, using %v", cfg.Billing.GPUWeight, defaults.Billing.GPUWeight)
		cfg.Billing.GPUWeight = defaults.Billing.GPUWeight
	}
	if cfg.Billing.Currency == "" {
		cfg.Billing.Currency = defaults.Billing.Currency
	}

	if cfg.Report.TimeZone == "" {
		cfg.Report.TimeZone = defaults.Report.TimeZone
	} else if _, err := time.LoadLocation(cfg.Report.TimeZone); err != nil {
		warn("report.timezone %q is unknown, using %s", cfg.Report.TimeZone, defaults.Report.TimeZone)
		cfg.Report.TimeZone = defaults.Report.TimeZone
	}
	if cfg.Report.SubmitOffset < 0 {
		warn("report.submit_offset %d is negative, using %d", cfg.Report.SubmitOffset, defaults.Report.SubmitOffset)
		cfg.Report.SubmitOffset = defaults.Report.SubmitOffset
	}
	if cfg.Report.MemFile == "" {
		cfg.Report.MemFile = defaults.Report.MemFile
	}

	cfg.Accounting.StepMode = strings.ToLower(strings.TrimSpace(cfg.Accounting.StepMode))
	switch cfg.Accounting.StepMode {
	case "srun", "batch":
	default:
		warn("accounting.step_mode %q is unknown, using %s", cfg.Accounting.StepMode, defaults.Accounting.StepMode)
		cfg.Accounting.StepMode = defaults.Accounting.StepMode
	}
	if cfg.Accounting.Command == "" {
		cfg.Accounting.Command = defaults.Accounting.Command
	}
	if cfg.Accounting.Retries <= 0 {
		warn("accounting.retries %d is not positive, using %d", cfg.Accounting.Retries, defaults.Accounting.Retries)
		cfg.Accounting.Retries = defaults.Accounting.Retries
	}
	if cfg.Accounting.Timeout <= 0 {
		warn("accounting.timeout %v is not positive, using %v", cfg.Accounting.Timeout, defaults.Accounting.Timeout)
		cfg.Accounting.Timeout = defaults.Accounting.Timeout
	}
	if cfg.Accounting.Backoff < 0 {
		warn("accounting.backoff %v is negative, using %v", cfg.Accounting.Backoff, defaults.Accounting.Backoff)
		cfg.Accounting.Backoff = defaults.Accounting.Backoff
	}
	if cfg.Accounting.Workers <= 0 {
		warn("accounting.workers %d is not positive, using %d", cfg.Accounting.Workers, defaults.Accounting.Workers)
		cfg.Accounting.Workers = defaults.Accounting.Workers
	}
	if cfg.Accounting.SaveRaw == nil {
		cfg.Accounting.SaveRaw = defaults.Accounting.SaveRaw
	}

	if cfg.Resources.CPUsPerNodeLimit <= 0 {
		cfg.Resources.CPUsPerNodeLimit = defaults.Resources.CPUsPerNodeLimit
	}

	if cfg.Redis.CacheTTL <= 0 {
		cfg.Redis.CacheTTL = defaults.Redis.CacheTTL
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		warn("server.port %d is out of range, using %d", cfg.Server.Port, defaults.Server.Port)
		cfg.Server.Port = defaults.Server.Port
	}
	switch cfg.Server.Mode {
	case "debug", "release", "test":
	default:
		warn("server.mode %q is unknown, using %s", cfg.Server.Mode, defaults.Server.Mode)
		cfg.Server.Mode = defaults.Server.Mode
	}
	if cfg.Server.RefreshInterval <= 0 {
		cfg.Server.RefreshInterval = defaults.Server.RefreshInterval
	}

	return warnings
}

// ShouldSaveRaw reports whether raw accounting dumps are written to MemDir
func (c AccountingConfig) ShouldSaveRaw() bool {
	return c.SaveRaw != nil && *c.SaveRaw
}
