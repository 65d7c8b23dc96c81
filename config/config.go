package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix for environment variable overrides.
const EnvPrefix = "FLOWFORGE"

// Config is the full runtime configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Log          LogConfig          `yaml:"log"`
	Database     DatabaseConfig     `yaml:"database"`
	Memory       MemoryConfig       `yaml:"memory"`
	LLM          LLMConfig          `yaml:"llm"`
	Tools        ToolsConfig        `yaml:"tools"`
	Intervention InterventionConfig `yaml:"intervention"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	MetricsPort     int           `yaml:"metrics_port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// ExecutionURL is the upstream execution server the run/abort and chat
	// relay endpoints proxy to.
	ExecutionURL string `yaml:"execution_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// DatabaseConfig configures project persistence.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// MemoryConfig configures the long-term memory backend. Backend is one of
// "inproc", "redis" or "mongo".
type MemoryConfig struct {
	Backend       string `yaml:"backend"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`
}

// LLMConfig configures the chat backend.
type LLMConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// ToolsConfig configures tool execution.
type ToolsConfig struct {
	WorkDir        string              `yaml:"work_dir"`
	CallsPerSecond float64             `yaml:"calls_per_second"`
	OpenAPISpecs   []OpenAPISpecConfig `yaml:"openapi_specs,omitempty"`
}

// OpenAPISpecConfig points at an OpenAPI document whose operations are
// registered as tools at startup.
type OpenAPISpecConfig struct {
	Source     string `yaml:"source"`
	ModulePath string `yaml:"module_path"`
	BaseURL    string `yaml:"base_url,omitempty"`
}

// InterventionConfig configures human-pause handling.
type InterventionConfig struct {
	DefaultTimeout time.Duration `yaml:"default_timeout"`
}

// TelemetryConfig configures tracing export.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	ServiceName  string  `yaml:"service_name"`
	SampleRate   float64 `yaml:"sample_rate"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			MetricsPort:     9090,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			ExecutionURL:    "http://localhost:8001",
		},
		Log: LogConfig{Level: "info"},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "flowforge.db",
		},
		Memory: MemoryConfig{
			Backend:       "inproc",
			RedisAddr:     "localhost:6379",
			MongoDatabase: "flowforge",
		},
		LLM: LLMConfig{Model: "gpt-4o-mini"},
		Tools: ToolsConfig{
			CallsPerSecond: 10,
		},
		Intervention: InterventionConfig{
			DefaultTimeout: 5 * time.Minute,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "flowforge",
			SampleRate:  1.0,
		},
	}
}

// Load reads configuration from path (optional) and applies environment
// overrides on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Server.Host, "SERVER_HOST")
	setInt(&c.Server.Port, "SERVER_PORT")
	setInt(&c.Server.MetricsPort, "SERVER_METRICS_PORT")
	setString(&c.Server.ExecutionURL, "SERVER_EXECUTION_URL")
	setString(&c.Log.Level, "LOG_LEVEL")
	setBool(&c.Log.Development, "LOG_DEVELOPMENT")
	setString(&c.Database.Driver, "DATABASE_DRIVER")
	setString(&c.Database.DSN, "DATABASE_DSN")
	setString(&c.Memory.Backend, "MEMORY_BACKEND")
	setString(&c.Memory.RedisAddr, "MEMORY_REDIS_ADDR")
	setString(&c.Memory.RedisPassword, "MEMORY_REDIS_PASSWORD")
	setInt(&c.Memory.RedisDB, "MEMORY_REDIS_DB")
	setString(&c.Memory.MongoURI, "MEMORY_MONGO_URI")
	setString(&c.Memory.MongoDatabase, "MEMORY_MONGO_DATABASE")
	setString(&c.LLM.APIKey, "LLM_API_KEY")
	setString(&c.LLM.BaseURL, "LLM_BASE_URL")
	setString(&c.LLM.Model, "LLM_MODEL")
	setString(&c.Tools.WorkDir, "TOOLS_WORK_DIR")
	setBool(&c.Telemetry.Enabled, "TELEMETRY_ENABLED")
	setString(&c.Telemetry.OTLPEndpoint, "TELEMETRY_OTLP_ENDPOINT")
	setString(&c.Telemetry.ServiceName, "TELEMETRY_SERVICE_NAME")
}

func envKey(key string) string {
	return EnvPrefix + "_" + key
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(envKey(key)); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(envKey(key)); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(envKey(key)); ok {
		*dst = strings.EqualFold(v, "true") || v == "1"
	}
}
