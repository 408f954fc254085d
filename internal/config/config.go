package config

import (
	"fmt"
	"log"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"EvidenceLedger/internal/classifier"
	"EvidenceLedger/internal/corroboration"
	"EvidenceLedger/internal/infrastructure/httpclient"
	"EvidenceLedger/internal/notify"
	"EvidenceLedger/internal/orchestrator"
	"EvidenceLedger/internal/scoring"
)

const (
	configPathEnv     = "EVIDENCE_LEDGER_CONFIG"
	databaseDSNEnv    = "DATABASE_DSN"
	databaseDriverEnv = "DATABASE_DRIVER"
	newsAPIKeyEnv     = "NEWSAPI_KEY"
	logLevelEnv       = "LOG_LEVEL"
	natsURLEnv        = "NATS_URL"
	pushgatewayEnv    = "PUSHGATEWAY_URL"

	providerTypeNewsAPI = "newsapi"
)

// Queue drivers.
const (
	QueueStore = "store"
	QueueNATS  = "nats"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig        `yaml:"logging"`
	Database      DatabaseConfig       `yaml:"database"`
	Providers     []ProviderConfig     `yaml:"providers"`
	Orchestrator  orchestrator.Config  `yaml:"orchestrator"`
	Retry         httpclient.Policy    `yaml:"retry"`
	Classifier    ClassifierConfig     `yaml:"classifier"`
	Corroboration corroboration.Config `yaml:"corroboration"`
	Scoring       scoring.Config       `yaml:"scoring"`
	Notifications notify.Config        `yaml:"notifications"`
	Queue         QueueConfig          `yaml:"queue"`
	Metrics       MetricsConfig        `yaml:"metrics"`
	Pipeline      PipelineConfig       `yaml:"pipeline"`
}

// LoggingConfig selects the slog level and handler format (text or json).
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DatabaseConfig describes the ledger database. Driver is sqlite or postgres.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// ProviderConfig describes one upstream article source. Type picks the
// implementation; the remaining fields are read by that implementation only.
type ProviderConfig struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Disabled bool   `yaml:"disabled"`
	// Official marks regulator feeds whose articles are authoritative.
	Official bool `yaml:"official"`

	BaseURL  string `yaml:"baseUrl"`
	APIKey   string `yaml:"apiKey"`
	PageSize int    `yaml:"pageSize"`
	Language string `yaml:"language"`

	Pages      []string       `yaml:"pages"`
	PageParam  string         `yaml:"pageParam"`
	MaxPages   int            `yaml:"maxPages"`
	Selectors  SelectorConfig `yaml:"selectors"`
	DateLayout string         `yaml:"dateLayout"`
}

// SelectorConfig holds the CSS selectors of a listing page.
type SelectorConfig struct {
	Item    string `yaml:"item"`
	Title   string `yaml:"title"`
	Link    string `yaml:"link"`
	Summary string `yaml:"summary"`
	Date    string `yaml:"date"`
}

// ClassifierConfig points at a rules file or carries inline rules.
// RulesPath wins when both are set.
type ClassifierConfig struct {
	RulesPath string            `yaml:"rulesPath"`
	Rules     *classifier.Rules `yaml:"rules"`
}

// QueueConfig selects where notification jobs go.
type QueueConfig struct {
	Driver  string `yaml:"driver"`
	URL     string `yaml:"url"`
	Stream  string `yaml:"stream"`
	Subject string `yaml:"subject"`
}

// MetricsConfig enables pushing run metrics to a Pushgateway.
type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgatewayUrl"`
	Job            string `yaml:"job"`
}

// PipelineConfig bounds how many organizations are processed at once.
type PipelineConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// LoadRules returns the classifier rules configured for this run.
func (c ClassifierConfig) LoadRules() (classifier.Rules, error) {
	if c.RulesPath != "" {
		raw, err := os.ReadFile(c.RulesPath)
		if err != nil {
			return classifier.Rules{}, fmt.Errorf("read rules %s: %w", c.RulesPath, err)
		}
		var rules classifier.Rules
		if err := yaml.Unmarshal(raw, &rules); err != nil {
			return classifier.Rules{}, fmt.Errorf("parse rules %s: %w", c.RulesPath, err)
		}
		return rules, nil
	}
	if c.Rules != nil {
		return *c.Rules, nil
	}
	return classifier.DefaultRules(), nil
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	path := os.Getenv(configPathEnv)
	if path == "" {
		cfg := defaultConfig()
		cfg.applyEnvOverrides()
		return cfg
	}

	cfg, err := LoadFile(path)
	if err != nil {
		log.Printf("config: %v (falling back to defaults)", err)
		cfg = defaultConfig()
		cfg.applyEnvOverrides()
	}
	return cfg
}

// LoadFile reads the YAML file at path over the defaults and applies
// environment overrides. Unlike Load it reports unreadable files.
func LoadFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("cannot read %s: %w", path, err)
	}
	var fileCfg Config
	if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
		return Config{}, fmt.Errorf("cannot parse %s: %w", path, err)
	}

	cfg := mergeConfig(defaultConfig(), fileCfg)
	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(databaseDriverEnv); v != "" {
		c.Database.Driver = strings.ToLower(v)
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	// A key enables newsapi providers that have none of their own.
	if v := os.Getenv(newsAPIKeyEnv); v != "" {
		for i := range c.Providers {
			p := &c.Providers[i]
			if p.Type == providerTypeNewsAPI && p.APIKey == "" {
				p.APIKey = v
				p.Disabled = false
			}
		}
	}

	if v := os.Getenv(natsURLEnv); v != "" {
		c.Queue.URL = v
	}

	if v := os.Getenv(pushgatewayEnv); v != "" {
		c.Metrics.PushgatewayURL = v
	}
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	if override.Database.DSN != "" {
		base.Database.DSN = override.Database.DSN
	}
	if override.Database.Driver != "" {
		base.Database.Driver = strings.ToLower(override.Database.Driver)
	}

	if len(override.Providers) > 0 {
		base.Providers = override.Providers
	}

	if override.Orchestrator.Timeout > 0 {
		base.Orchestrator.Timeout = override.Orchestrator.Timeout
	}
	if override.Orchestrator.MaxResults > 0 {
		base.Orchestrator.MaxResults = override.Orchestrator.MaxResults
	}
	if override.Orchestrator.FailureThreshold > 0 {
		base.Orchestrator.FailureThreshold = override.Orchestrator.FailureThreshold
	}

	if override.Retry.Attempts > 0 {
		base.Retry.Attempts = override.Retry.Attempts
	}
	if override.Retry.BaseDelay > 0 {
		base.Retry.BaseDelay = override.Retry.BaseDelay
	}
	if override.Retry.MaxDelay > 0 {
		base.Retry.MaxDelay = override.Retry.MaxDelay
	}
	if override.Retry.Jitter > 0 {
		base.Retry.Jitter = override.Retry.Jitter
	}

	if override.Classifier.RulesPath != "" || override.Classifier.Rules != nil {
		base.Classifier = override.Classifier
	}

	if override.Corroboration.MinRelevance > 0 {
		base.Corroboration.MinRelevance = override.Corroboration.MinRelevance
	}
	if override.Corroboration.WindowDays > 0 {
		base.Corroboration.WindowDays = override.Corroboration.WindowDays
	}
	if override.Corroboration.SimilarityThreshold > 0 {
		base.Corroboration.SimilarityThreshold = override.Corroboration.SimilarityThreshold
	}
	if override.Corroboration.CorroborationSources > 0 {
		base.Corroboration.CorroborationSources = override.Corroboration.CorroborationSources
	}
	if override.Corroboration.KeepNoise {
		base.Corroboration.KeepNoise = true
	}

	if len(override.Scoring.Weights) > 0 {
		base.Scoring.Weights = override.Scoring.Weights
	}
	if len(override.Scoring.Caps) > 0 {
		base.Scoring.Caps = override.Scoring.Caps
	}
	if override.Scoring.Stability > 0 {
		base.Scoring.Stability = override.Scoring.Stability
	}

	if override.Notifications.Bucket > 0 {
		base.Notifications.Bucket = override.Notifications.Bucket
	}

	if override.Queue.Driver != "" {
		base.Queue.Driver = strings.ToLower(override.Queue.Driver)
	}
	if override.Queue.URL != "" {
		base.Queue.URL = override.Queue.URL
	}
	if override.Queue.Stream != "" {
		base.Queue.Stream = override.Queue.Stream
	}
	if override.Queue.Subject != "" {
		base.Queue.Subject = override.Queue.Subject
	}

	if override.Metrics.PushgatewayURL != "" {
		base.Metrics.PushgatewayURL = override.Metrics.PushgatewayURL
	}
	if override.Metrics.Job != "" {
		base.Metrics.Job = override.Metrics.Job
	}

	if override.Pipeline.Concurrency > 0 {
		base.Pipeline.Concurrency = override.Pipeline.Concurrency
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Database: DatabaseConfig{Driver: "sqlite", DSN: "evidence.db"},
		Providers: []ProviderConfig{
			{
				Name:     "newsapi",
				Type:     providerTypeNewsAPI,
				Disabled: true,
				BaseURL:  "https://newsapi.org/v2",
				PageSize: 50,
				Language: "en",
			},
			{
				Name:      "osha",
				Type:      "listing",
				Official:  true,
				Pages:     []string{"https://www.osha.gov/news/newsreleases"},
				PageParam: "page",
				MaxPages:  3,
				Selectors: SelectorConfig{
					Item:    ".view-content .views-row",
					Title:   "h3 a",
					Summary: ".field--name-body",
					Date:    "time",
				},
			},
		},
		Orchestrator:  orchestrator.DefaultConfig(),
		Retry:         httpclient.DefaultPolicy(),
		Corroboration: corroboration.DefaultConfig(),
		Scoring:       scoring.Config{Stability: scoring.DefaultStability},
		Notifications: notify.DefaultConfig(),
		Queue: QueueConfig{
			Driver:  QueueStore,
			URL:     "nats://127.0.0.1:4222",
			Stream:  "EVIDENCE_JOBS",
			Subject: "evidence.jobs",
		},
		Metrics:  MetricsConfig{Job: "evidenceledger"},
		Pipeline: PipelineConfig{Concurrency: 4},
	}
}
