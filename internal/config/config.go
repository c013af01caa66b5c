package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	PoolSize int    `yaml:"pool_size"`
}

type RedisConfig struct {
	URL       string        `yaml:"url"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	StatusTTL time.Duration `yaml:"status_ttl"` // job-status cache TTL
}

type AIConfig struct {
	OpenAIKey       string `yaml:"openai_key"`
	GeminiKey       string `yaml:"gemini_key"`
	GeminiURL       string `yaml:"gemini_url"`
	DefaultModel    string `yaml:"default_model"`
	ConcurrentLimit int    `yaml:"concurrent_limit"` // max concurrent AI calls
}

type GitHubConfig struct {
	Token   string `yaml:"token"`
	APIBase string `yaml:"api_base"`
}

type WorkerConfig struct {
	PoolSize     int           `yaml:"pool_size"`
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxAttempts  int           `yaml:"max_attempts"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// ReclaimerConfig carries the sweep cadence and an explicit per-job-type
// timeout table. Every known job type must resolve to a timeout; unknown
// keys are rejected at load so a new type cannot silently fall through
// to a default.
type ReclaimerConfig struct {
	SweepInterval time.Duration            `yaml:"sweep_interval"`
	Timeouts      map[string]time.Duration `yaml:"timeouts"`
}

type JuryConfig struct {
	StageLabels     []string      `yaml:"stage_labels"`
	ScoreThresholds []float64     `yaml:"score_thresholds"` // per stage, stage 1 ignores its entry
	HubReplay       int           `yaml:"hub_replay"`       // ring buffer cap
	HubGracePeriod  time.Duration `yaml:"hub_grace_period"`
}

type AdminConfig struct {
	Port      int    `yaml:"port"`
	JWTSecret string `yaml:"jwt_secret"`
}

type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"`
}

type Config struct {
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	AI        AIConfig        `yaml:"ai"`
	GitHub    GitHubConfig    `yaml:"github"`
	Worker    WorkerConfig    `yaml:"worker"`
	Reclaimer ReclaimerConfig `yaml:"reclaimer"`
	Jury      JuryConfig      `yaml:"jury"`
	Admin     AdminConfig     `yaml:"admin"`
	Telegram  TelegramConfig  `yaml:"telegram"`

	Runtime RuntimeConfig `yaml:"-"`
}

// knownJobTypes mirrors model.AllJobTypes; kept as strings here so the
// config package stays free of domain imports.
var knownJobTypes = []string{"code-quality", "coherence", "innovation", "tech-detection"}

var defaultTimeouts = map[string]time.Duration{
	"code-quality":   10 * time.Minute,
	"coherence":      5 * time.Minute,
	"innovation":     5 * time.Minute,
	"tech-detection": 3 * time.Minute,
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.PoolSize <= 0 {
		cfg.Database.PoolSize = 10
	}
	if cfg.Redis.StatusTTL <= 0 {
		cfg.Redis.StatusTTL = 30 * time.Minute
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 16
	}
	if cfg.AI.DefaultModel == "" {
		cfg.AI.DefaultModel = "gpt-4o-mini"
	}
	if cfg.GitHub.APIBase == "" {
		cfg.GitHub.APIBase = "https://api.github.com"
	}
	if cfg.Worker.PoolSize <= 0 {
		cfg.Worker.PoolSize = 4
	}
	if cfg.Worker.PollInterval <= 0 {
		cfg.Worker.PollInterval = 500 * time.Millisecond
	}
	if cfg.Worker.MaxAttempts <= 0 {
		cfg.Worker.MaxAttempts = 3
	}
	if cfg.Worker.RetryBackoff <= 0 {
		cfg.Worker.RetryBackoff = 2 * time.Second
	}
	if cfg.Reclaimer.SweepInterval <= 0 {
		cfg.Reclaimer.SweepInterval = 3 * time.Minute
	}
	if cfg.Jury.HubReplay <= 0 {
		cfg.Jury.HubReplay = 100
	}
	if cfg.Jury.HubGracePeriod <= 0 {
		cfg.Jury.HubGracePeriod = 5 * time.Second
	}
	if len(cfg.Jury.StageLabels) == 0 {
		cfg.Jury.StageLabels = []string{"ELIGIBILITY", "CODE_QUALITY", "COHERENCE", "INNOVATION"}
	}
	if len(cfg.Jury.ScoreThresholds) == 0 {
		cfg.Jury.ScoreThresholds = []float64{0, 5.0, 5.0, 6.0}
	}

	if err := normalizeTimeouts(&cfg.Reclaimer); err != nil {
		return nil, err
	}

	// minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if len(cfg.Jury.StageLabels) != len(cfg.Jury.ScoreThresholds) {
		return nil, errors.New("jury.stage_labels and jury.score_thresholds must have the same length")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func normalizeTimeouts(rc *ReclaimerConfig) error {
	if rc.Timeouts == nil {
		rc.Timeouts = map[string]time.Duration{}
	}
	for k := range rc.Timeouts {
		if !containsString(knownJobTypes, k) {
			return fmt.Errorf("reclaimer.timeouts: unknown job type %q", k)
		}
	}
	for _, k := range knownJobTypes {
		if rc.Timeouts[k] <= 0 {
			rc.Timeouts[k] = defaultTimeouts[k]
		}
	}
	return nil
}

func containsString(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
