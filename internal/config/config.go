// Package config loads the relay configuration.
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("EMA").
//	    Load()
//
// Values are applied in order: defaults, YAML file, environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

type Config struct {
	Server    ServerConfig    `yaml:"server" env:"SERVER"`
	LLM       LLMConfig       `yaml:"llm" env:"LLM"`
	Engine    EngineConfig    `yaml:"engine" env:"ENGINE"`
	Database  DatabaseConfig  `yaml:"database" env:"DATABASE"`
	Redis     RedisConfig     `yaml:"redis" env:"REDIS"`
	Prompts   PromptsConfig   `yaml:"prompts" env:"PROMPTS"`
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
	Limits    LimitsConfig    `yaml:"limits" env:"LIMITS"`
}

type ServerConfig struct {
	Addr              string        `yaml:"addr" env:"ADDR"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" env:"READ_HEADER_TIMEOUT"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

type LLMConfig struct {
	APIKey          string        `yaml:"api_key" env:"API_KEY"`
	BaseURL         string        `yaml:"base_url" env:"BASE_URL"`
	ResponseModel   string        `yaml:"response_model" env:"RESPONSE_MODEL"`
	ClassifierModel string        `yaml:"classifier_model" env:"CLASSIFIER_MODEL"`
	SummaryModel    string        `yaml:"summary_model" env:"SUMMARY_MODEL"`
	Timeout         time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// StructuredClassifier asks the classifier model for a JSON answer
	// instead of a single digit.
	StructuredClassifier bool `yaml:"structured_classifier" env:"STRUCTURED_CLASSIFIER"`
}

type EngineConfig struct {
	// Streaming sends the response fragment by fragment, otherwise it is
	// sent once fully generated.
	Streaming          bool `yaml:"streaming" env:"STREAMING"`
	ClassifyTurns      bool `yaml:"classify_turns" env:"CLASSIFY_TURNS"`
	NotDoneWaitSeconds int  `yaml:"not_done_wait_seconds" env:"NOT_DONE_WAIT_SECONDS"`
	SpeakGreeting      bool `yaml:"speak_greeting" env:"SPEAK_GREETING"`
	SummarizeOnClose   bool `yaml:"summarize_on_close" env:"SUMMARIZE_ON_CLOSE"`
}

type DatabaseConfig struct {
	// Driver is one of memory, sqlite, postgres
	Driver string `yaml:"driver" env:"DRIVER"`
	// DSN overrides the connection settings below when set.
	DSN             string        `yaml:"dsn" env:"DSN"`
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	User            string        `yaml:"user" env:"USER"`
	Password        string        `yaml:"password" env:"PASSWORD"`
	Name            string        `yaml:"name" env:"NAME"`
	SSLMode         string        `yaml:"ssl_mode" env:"SSL_MODE"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	AutoMigrate     bool          `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
}

type RedisConfig struct {
	Enabled   bool          `yaml:"enabled" env:"ENABLED"`
	Addr      string        `yaml:"addr" env:"ADDR"`
	Password  string        `yaml:"password" env:"PASSWORD"`
	DB        int           `yaml:"db" env:"DB"`
	KeyPrefix string        `yaml:"key_prefix" env:"KEY_PREFIX"`
	TTL       time.Duration `yaml:"ttl" env:"TTL"`
}

type PromptsConfig struct {
	Directory string `yaml:"directory" env:"DIRECTORY"`
	TimeZone  string `yaml:"time_zone" env:"TIME_ZONE"`
}

type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
	// StdoutLogs prints bridged logs to stdout.
	StdoutLogs bool `yaml:"stdout_logs" env:"STDOUT_LOGS"`
}

type LimitsConfig struct {
	ReadLimitBytes  int64         `yaml:"read_limit_bytes" env:"READ_LIMIT_BYTES"`
	EventsPerSecond float64       `yaml:"events_per_second" env:"EVENTS_PER_SECOND"`
	EventBurst      int           `yaml:"event_burst" env:"EVENT_BURST"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	PingInterval    time.Duration `yaml:"ping_interval" env:"PING_INTERVAL"`
	PongWait        time.Duration `yaml:"pong_wait" env:"PONG_WAIT"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   15 * time.Second,
		},
		LLM: LLMConfig{
			ResponseModel:   "gpt-4o",
			ClassifierModel: "gpt-4o-mini",
			SummaryModel:    "gpt-4o-mini",
			Timeout:         60 * time.Second,
		},
		Engine: EngineConfig{
			Streaming:          true,
			ClassifyTurns:      true,
			NotDoneWaitSeconds: 10,
		},
		Database: DatabaseConfig{
			Driver:          "sqlite",
			DSN:             "ema.db",
			Host:            "localhost",
			Port:            5432,
			User:            "admin",
			Password:        "password",
			Name:            "db0",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			AutoMigrate:     true,
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "ema:session:",
			TTL:       2 * time.Hour,
		},
		Prompts: PromptsConfig{
			TimeZone: "America/Chicago",
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: "localhost:4317",
			ServiceName:  "ema-relay",
			SampleRate:   1,
			StdoutLogs:   true,
		},
		Limits: LimitsConfig{
			ReadLimitBytes:  64 * 1024,
			EventsPerSecond: 20,
			EventBurst:      40,
			WriteTimeout:    5 * time.Second,
			PingInterval:    20 * time.Second,
			PongWait:        60 * time.Second,
		},
	}
}

// PostgresDSN builds a connection string from the individual settings
// unless DSN is set.
func (c DatabaseConfig) PostgresDSN() string {
	if c.DSN != "" && c.Driver == "postgres" {
		return c.DSN
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}

	if c.LLM.ResponseModel == "" {
		errs = append(errs, errors.New("llm.response_model is required"))
	}
	if c.LLM.BaseURL != "" {
		if u, err := url.Parse(c.LLM.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, errors.New("llm.base_url must be an http:// or https:// url"))
		}
	}
	if c.Engine.ClassifyTurns && c.LLM.ClassifierModel == "" {
		errs = append(errs, errors.New("llm.classifier_model is required when turns are classified"))
	}
	if c.Engine.NotDoneWaitSeconds < 0 {
		errs = append(errs, errors.New("engine.not_done_wait_seconds must not be negative"))
	}

	switch c.Database.Driver {
	case "memory", "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unsupported database.driver %q", c.Database.Driver))
	}
	if c.Database.Driver == "sqlite" && c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required for sqlite"))
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required when redis is enabled"))
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, errors.New("telemetry.sample_rate must be between 0 and 1"))
	}

	if c.Limits.EventsPerSecond <= 0 || c.Limits.EventBurst <= 0 {
		errs = append(errs, errors.New("limits.events_per_second and limits.event_burst must be positive"))
	}

	return errors.Join(errs...)
}
