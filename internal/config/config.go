// Package config loads judgeworker's startup configuration: a config.json
// file plus environment-variable overrides for deployment-specific knobs.
package config

import (
	"encoding/json"
	"os"
	"strconv"
	"time"

	appErr "judgeworker/pkg/errors"

	"github.com/joho/godotenv"
)

// Config is the full set of settings judgeworker needs to boot, per
// spec.md §6: secret_key + FRONTEND_URL loaded from config.json, with
// worker-count and debug-mode environment-variable overrides.
type Config struct {
	SecretKey   string `json:"secret_key"`
	FrontendURL string `json:"FRONTEND_URL"`

	ListenAddr string `json:"listen_addr"`

	WorkRoot      string `json:"work_root"`
	CacheDir      string `json:"cache_dir"`
	StateFile     string `json:"state_file"`
	SandboxBinary string `json:"sandbox_binary"`

	WorkerCount int  `json:"worker_count"`
	Debug       bool `json:"debug"`

	ReportMaxRetries int           `json:"report_max_retries"`
	ReportBaseDelay  time.Duration `json:"-"`
	ReportMaxDelay   time.Duration `json:"-"`
}

const (
	defaultListenAddr     = "0.0.0.0:8080"
	defaultWorkRoot       = "run"
	defaultCacheDir       = "task_info_cache"
	defaultStateFile      = "task_info_path.json"
	defaultSandboxBinary  = "isolate"
	defaultWorkerCount    = 4
	defaultReportMaxRetry = 5
)

func (c Config) withDefaults() Config {
	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}
	if c.WorkRoot == "" {
		c.WorkRoot = defaultWorkRoot
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	if c.StateFile == "" {
		c.StateFile = defaultStateFile
	}
	if c.SandboxBinary == "" {
		c.SandboxBinary = defaultSandboxBinary
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = defaultWorkerCount
	}
	if c.ReportMaxRetries <= 0 {
		c.ReportMaxRetries = defaultReportMaxRetry
	}
	if c.ReportBaseDelay <= 0 {
		c.ReportBaseDelay = time.Second
	}
	if c.ReportMaxDelay <= 0 {
		c.ReportMaxDelay = 30 * time.Second
	}
	return c
}

// Load reads configPath as JSON, then applies environment-variable
// overrides. A missing or malformed config.json is a startup failure, per
// spec.md §6 ("non-zero on startup failure (missing config)").
func Load(configPath string) (Config, error) {
	// .env is optional dev-only convenience; a missing file is not an error.
	_ = godotenv.Load()

	data, err := os.ReadFile(configPath)
	if err != nil {
		return Config{}, appErr.Wrapf(err, appErr.JudgeSystemError, "read config file failed")
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, appErr.Wrapf(err, appErr.ValidationFailed, "parse config file failed")
	}

	if cfg.SecretKey == "" {
		return Config{}, appErr.ValidationError("secret_key", "is required")
	}
	if cfg.FrontendURL == "" {
		return Config{}, appErr.ValidationError("FRONTEND_URL", "is required")
	}

	applyEnvOverrides(&cfg)
	return cfg.withDefaults(), nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("JUDGEWORKER_WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.WorkerCount = n
		}
	}
	if v := os.Getenv("JUDGEWORKER_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Debug = b
		}
	}
	if v := os.Getenv("JUDGEWORKER_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("JUDGEWORKER_SECRET_KEY"); v != "" {
		cfg.SecretKey = v
	}
	if v := os.Getenv("JUDGEWORKER_FRONTEND_URL"); v != "" {
		cfg.FrontendURL = v
	}
}
