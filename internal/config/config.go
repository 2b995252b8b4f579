package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultHTTPPort          = 8080
	DefaultBroadcastInterval = 5 * time.Second
	DefaultCycleInterval     = 5 * time.Minute

	DefaultWindowSize  = 50
	DefaultMinReadings = 5
	DefaultRecentCount = 10

	DefaultHealthCriticalBelow = 35.0
	DefaultHealthWarningBelow  = 55.0
	DefaultAnomalyCutoff       = 0.7
	DefaultAnomalyRateCritical = 35.0
	DefaultAnomalyRateWarning  = 20.0

	DefaultConfidenceFloor  = 0.65
	DefaultCooldown         = 60 * time.Minute
	DefaultEscalationWindow = 6 * time.Hour
	DefaultEscalationCount  = 5

	DefaultClassifierTimeout = 10 * time.Second
	DefaultExplainTimeout    = 15 * time.Second
	DefaultScrapeInterval    = 30 * time.Second
)

// DefaultMachines is the fixed machine roster used when ingest payloads omit
// a machine ID and no roster is configured.
var DefaultMachines = []string{"Machine_A", "Machine_B", "Machine_C", "Machine_D", "Machine_E"}

// Config is the top-level service configuration. Fields map 1:1 to
// config.example.yaml.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Fleet      FleetConfig      `yaml:"fleet"`
	Scoring    ScoringConfig    `yaml:"scoring"`
	Alerting   AlertingConfig   `yaml:"alerting"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Explain    ExplainConfig    `yaml:"explain"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Scrape     ScrapeConfig     `yaml:"scrape"`
}

// ServerConfig holds the HTTP/WebSocket listener settings.
type ServerConfig struct {
	// HTTPPort is the port the REST API and WebSocket hub listen on.
	HTTPPort int `yaml:"http_port"`

	// BroadcastInterval is how often the WebSocket hub pushes the fleet
	// snapshot to connected clients.
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`
}

// FleetConfig describes the machine roster.
type FleetConfig struct {
	// Machines is the roster readings are assigned to when the ingest payload
	// does not name a machine.
	Machines []string `yaml:"machines"`
}

// ScoringConfig holds the health aggregator thresholds. The source history of
// this logic shows repeated tuning, so every cutoff is configuration rather
// than a literal.
type ScoringConfig struct {
	// WindowSize is the maximum number of recent readings aggregated per machine.
	WindowSize int `yaml:"window_size"`

	// MinReadings is the minimum window size below which the aggregator
	// reports insufficient data.
	MinReadings int `yaml:"min_readings"`

	// RecentCount is how many of the newest readings form the recency mean.
	RecentCount int `yaml:"recent_count"`

	// HealthCriticalBelow / HealthWarningBelow are the smoothed-health bands.
	HealthCriticalBelow float64 `yaml:"health_critical_below"`
	HealthWarningBelow  float64 `yaml:"health_warning_below"`

	// AnomalyCutoff is the anomaly-score level above which a reading counts
	// as a significant anomaly.
	AnomalyCutoff float64 `yaml:"anomaly_cutoff"`

	// AnomalyRateCritical / AnomalyRateWarning are the anomaly-rate bands,
	// in percent of the window.
	AnomalyRateCritical float64 `yaml:"anomaly_rate_critical"`
	AnomalyRateWarning  float64 `yaml:"anomaly_rate_warning"`
}

// AlertingConfig holds the alert engine thresholds.
type AlertingConfig struct {
	// ConfidenceFloor suppresses alerts from predictions below this confidence.
	ConfidenceFloor float64 `yaml:"confidence_floor"`

	// Cooldown is the de-duplication window: while an unacknowledged alert of
	// the same machine and severity exists within it, no duplicate is inserted.
	Cooldown time.Duration `yaml:"cooldown"`

	// EscalationWindow and EscalationCount promote a candidate WARNING to
	// CRITICAL once EscalationCount warnings were created for the machine
	// within the trailing window.
	EscalationWindow time.Duration `yaml:"escalation_window"`
	EscalationCount  int           `yaml:"escalation_count"`

	// SeverityLadder maps a prediction's lead time and confidence to an alert
	// severity. Rules are checked in order and the first match wins; a
	// prediction matching no rule raises nothing.
	SeverityLadder []SeverityRule `yaml:"severity_ladder"`
}

// SeverityRule is one rung of the severity ladder: predictions with a lead
// time of at most MaxHours and confidence above MinConfidence get Severity.
type SeverityRule struct {
	MaxHours      int     `yaml:"max_hours"`
	MinConfidence float64 `yaml:"min_confidence"`
	Severity      string  `yaml:"severity"`
}

// DefaultSeverityLadder returns the built-in ladder.
func DefaultSeverityLadder() []SeverityRule {
	return []SeverityRule{
		{MaxHours: 12, MinConfidence: 0.80, Severity: "CRITICAL"},
		{MaxHours: 24, MinConfidence: 0.75, Severity: "CRITICAL"},
		{MaxHours: 48, MinConfidence: 0.70, Severity: "WARNING"},
		{MaxHours: 72, MinConfidence: 0, Severity: "WARNING"},
	}
}

// SchedulerConfig controls the automated evaluation cycle.
type SchedulerConfig struct {
	// Interval between evaluation cycles. A cycle also runs once at startup.
	Interval time.Duration `yaml:"interval"`
}

// ClassifierConfig points at the external failure classifier.
type ClassifierConfig struct {
	// Endpoint is the model server's predict URL. Empty disables on-demand
	// inference — the API then reports the predictor as unavailable.
	Endpoint string `yaml:"endpoint"`

	// Timeout bounds one inference call.
	Timeout time.Duration `yaml:"timeout"`
}

// ExplainConfig configures the natural-language explanation providers.
type ExplainConfig struct {
	// BaseURL is the chat-completions endpoint tried for every model.
	BaseURL string `yaml:"base_url"`

	// KeyEnv is the name of the environment variable holding the API key.
	// An empty key disables remote providers; the deterministic rule-based
	// fallback then answers everything.
	KeyEnv string `yaml:"key_env"`

	// Models is the ordered fallback list of model identifiers.
	Models []string `yaml:"models"`

	// Timeout bounds one provider attempt.
	Timeout time.Duration `yaml:"timeout"`
}

// Key returns the API key resolved from the environment.
func (e ExplainConfig) Key() string {
	if e.KeyEnv == "" {
		return ""
	}
	return os.Getenv(e.KeyEnv)
}

// MQTTConfig configures the optional MQTT reading consumer.
type MQTTConfig struct {
	// Broker is the broker URL (tcp://host:1883). Empty disables MQTT ingest.
	Broker string `yaml:"broker"`

	// Topic is the subscription topic for reading payloads.
	Topic string `yaml:"topic"`

	// ClientID identifies this subscriber to the broker.
	ClientID string `yaml:"client_id"`
}

// ScrapeConfig configures the optional Prometheus-format telemetry pollers.
type ScrapeConfig struct {
	// Interval between polls of each source.
	Interval time.Duration `yaml:"interval"`

	// Sources lists machine telemetry endpoints to poll.
	Sources []ScrapeSource `yaml:"sources"`
}

// ScrapeSource is one machine exposing telemetry in Prometheus text format.
type ScrapeSource struct {
	// MachineID the scraped readings are recorded under.
	MachineID string `yaml:"machine_id"`

	// Endpoint is the full metrics URL.
	Endpoint string `yaml:"endpoint"`
}

// Load reads and parses the config file at path. Missing fields are filled
// with defaults before validation. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Default returns a Config pre-populated with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:          DefaultHTTPPort,
			BroadcastInterval: DefaultBroadcastInterval,
		},
		Fleet: FleetConfig{
			Machines: append([]string(nil), DefaultMachines...),
		},
		Scoring: ScoringConfig{
			WindowSize:          DefaultWindowSize,
			MinReadings:         DefaultMinReadings,
			RecentCount:         DefaultRecentCount,
			HealthCriticalBelow: DefaultHealthCriticalBelow,
			HealthWarningBelow:  DefaultHealthWarningBelow,
			AnomalyCutoff:       DefaultAnomalyCutoff,
			AnomalyRateCritical: DefaultAnomalyRateCritical,
			AnomalyRateWarning:  DefaultAnomalyRateWarning,
		},
		Alerting: AlertingConfig{
			ConfidenceFloor:  DefaultConfidenceFloor,
			Cooldown:         DefaultCooldown,
			EscalationWindow: DefaultEscalationWindow,
			EscalationCount:  DefaultEscalationCount,
			SeverityLadder:   DefaultSeverityLadder(),
		},
		Scheduler: SchedulerConfig{
			Interval: DefaultCycleInterval,
		},
		Classifier: ClassifierConfig{
			Timeout: DefaultClassifierTimeout,
		},
		Explain: ExplainConfig{
			BaseURL: "https://openrouter.ai/api/v1/chat/completions",
			KeyEnv:  "OPENROUTER_API_KEY",
			Models: []string{
				"mistralai/mistral-7b-instruct",
				"mistralai/mixtral-8x7b-instruct",
				"meta-llama/llama-3-8b-instruct",
				"huggingfaceh4/zephyr-7b-beta",
				"google/gemma-7b-it",
			},
			Timeout: DefaultExplainTimeout,
		},
		MQTT: MQTTConfig{
			Topic:    "fleet/readings",
			ClientID: "fleetsentry-server",
		},
		Scrape: ScrapeConfig{
			Interval: DefaultScrapeInterval,
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", cfg.Server.HTTPPort)
	}
	if len(cfg.Fleet.Machines) == 0 {
		return fmt.Errorf("fleet.machines must list at least one machine")
	}
	if cfg.Scoring.MinReadings <= 0 {
		return fmt.Errorf("scoring.min_readings must be positive")
	}
	if cfg.Scoring.WindowSize < cfg.Scoring.MinReadings {
		return fmt.Errorf("scoring.window_size %d is smaller than min_readings %d",
			cfg.Scoring.WindowSize, cfg.Scoring.MinReadings)
	}
	if cfg.Scoring.RecentCount <= 0 || cfg.Scoring.RecentCount > cfg.Scoring.WindowSize {
		return fmt.Errorf("scoring.recent_count %d is out of range [1, %d]",
			cfg.Scoring.RecentCount, cfg.Scoring.WindowSize)
	}
	if cfg.Scoring.AnomalyCutoff < 0 || cfg.Scoring.AnomalyCutoff > 1 {
		return fmt.Errorf("scoring.anomaly_cutoff %.2f is out of range [0, 1]", cfg.Scoring.AnomalyCutoff)
	}
	if cfg.Scoring.HealthCriticalBelow > cfg.Scoring.HealthWarningBelow {
		return fmt.Errorf("scoring.health_critical_below %.1f exceeds health_warning_below %.1f",
			cfg.Scoring.HealthCriticalBelow, cfg.Scoring.HealthWarningBelow)
	}
	if cfg.Scoring.AnomalyRateWarning > cfg.Scoring.AnomalyRateCritical {
		return fmt.Errorf("scoring.anomaly_rate_warning %.1f exceeds anomaly_rate_critical %.1f",
			cfg.Scoring.AnomalyRateWarning, cfg.Scoring.AnomalyRateCritical)
	}
	if cfg.Alerting.ConfidenceFloor < 0 || cfg.Alerting.ConfidenceFloor > 1 {
		return fmt.Errorf("alerting.confidence_floor %.2f is out of range [0, 1]", cfg.Alerting.ConfidenceFloor)
	}
	if cfg.Alerting.Cooldown < 0 {
		return fmt.Errorf("alerting.cooldown must not be negative")
	}
	if cfg.Alerting.EscalationCount <= 0 {
		return fmt.Errorf("alerting.escalation_count must be positive")
	}
	if len(cfg.Alerting.SeverityLadder) == 0 {
		return fmt.Errorf("alerting.severity_ladder must not be empty")
	}
	for i, rule := range cfg.Alerting.SeverityLadder {
		if rule.MaxHours <= 0 {
			return fmt.Errorf("alerting.severity_ladder[%d]: max_hours must be positive", i)
		}
		if rule.MinConfidence < 0 || rule.MinConfidence >= 1 {
			return fmt.Errorf("alerting.severity_ladder[%d]: min_confidence %.2f is out of range [0, 1)", i, rule.MinConfidence)
		}
		if rule.Severity != "WARNING" && rule.Severity != "CRITICAL" {
			return fmt.Errorf("alerting.severity_ladder[%d]: severity must be WARNING or CRITICAL", i)
		}
	}
	if cfg.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be positive")
	}
	for i, src := range cfg.Scrape.Sources {
		if src.MachineID == "" || src.Endpoint == "" {
			return fmt.Errorf("scrape.sources[%d]: machine_id and endpoint are required", i)
		}
	}
	return nil
}
