// Package config defines the typed configuration for the loom server and
// loads it from YAML/JSON5 files with include and env-var expansion support.
package config

import (
	"fmt"
	"time"
)

// Config is the main configuration structure for loom.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
	Tools   ToolsConfig   `yaml:"tools"`
	Cache   CacheConfig   `yaml:"cache"`
	Chat    ChatConfig    `yaml:"chat"`
	Planner PlannerConfig `yaml:"planner"`
	Answer  AnswerConfig  `yaml:"answer"`
	Actions ActionsConfig `yaml:"actions"`
	Compose ComposeConfig `yaml:"compose"`
	Events  EventsConfig  `yaml:"events"`
}

type ServerConfig struct {
	Host     string `yaml:"host"`
	HTTPPort int    `yaml:"http_port"`
}

type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// ToolsConfig configures the tool catalog and the executor's global
// defaults; per-tool values in the catalog override them.
type ToolsConfig struct {
	CatalogPath      string        `yaml:"catalog_path"`
	CatalogURL       string        `yaml:"catalog_url"`
	ReloadEvery      time.Duration `yaml:"reload_every"`
	DefaultTimeout   time.Duration `yaml:"default_timeout"`
	DefaultRetries   int           `yaml:"default_retries"`
	DefaultCacheTTL  time.Duration `yaml:"default_cache_ttl"`
	MaxResponseBytes int64         `yaml:"max_response_bytes"`
	AllowedHosts     []string      `yaml:"allowed_hosts"`
}

type CacheConfig struct {
	// Backend selects the tool-result cache: "memory" or "redis".
	Backend string      `yaml:"backend"`
	MaxSize int         `yaml:"max_size"`
	Redis   RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type ChatConfig struct {
	MaxToolSteps    int  `yaml:"max_tool_steps"`
	EnableFallback  bool `yaml:"enable_fallback"`
	BestEffortTools bool `yaml:"best_effort_tools"`
}

type PlannerConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// AnswerConfig configures the OpenAI-compatible LLM answer service used for
// general questions and template fallbacks.
type AnswerConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

type ActionsConfig struct {
	RoutesPath string `yaml:"routes_path"`
}

type ComposeConfig struct {
	TextSpecPath string          `yaml:"text_spec_path"`
	UI           UIComposeConfig `yaml:"ui"`
}

// UIComposeConfig trims the composed document. Everything is included
// unless explicitly excluded.
type UIComposeConfig struct {
	Schema               string   `yaml:"schema"`
	ExcludeDataSnapshot  bool     `yaml:"exclude_data_snapshot"`
	ExcludeBindings      bool     `yaml:"exclude_bindings"`
	ExcludeSubscriptions bool     `yaml:"exclude_subscriptions"`
	AllowedToolRefs      []string `yaml:"allowed_tool_refs"`
}

// EventsConfig configures the JetStream connection, the stream and the
// durable pull consumer. Stream and durable names are configuration, never
// discovered at runtime.
type EventsConfig struct {
	URL           string        `yaml:"url"`
	StreamName    string        `yaml:"stream_name"`
	Subjects      []string      `yaml:"subjects"`
	DurableName   string        `yaml:"durable_name"`
	BatchSize     int           `yaml:"batch_size"`
	FetchMaxWait  time.Duration `yaml:"fetch_max_wait"`
	AckWait       time.Duration `yaml:"ack_wait"`
	MaxAckPending int           `yaml:"max_ack_pending"`
}

// ApplyDefaults fills unset fields with production defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = 8080
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Tools.ReloadEvery <= 0 {
		c.Tools.ReloadEvery = 60 * time.Second
	}
	if c.Tools.DefaultTimeout <= 0 {
		c.Tools.DefaultTimeout = 5 * time.Second
	}
	if c.Tools.DefaultRetries < 0 {
		c.Tools.DefaultRetries = 0
	}
	if c.Tools.DefaultCacheTTL < 0 {
		c.Tools.DefaultCacheTTL = 0
	}
	if c.Tools.MaxResponseBytes <= 0 {
		c.Tools.MaxResponseBytes = 1 << 20
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = "memory"
	}
	if c.Chat.MaxToolSteps <= 0 {
		c.Chat.MaxToolSteps = 8
	}
	if c.Planner.Timeout <= 0 {
		c.Planner.Timeout = 30 * time.Second
	}
	if c.Compose.UI.Schema == "" {
		c.Compose.UI.Schema = "ui.v1"
	}
	if c.Events.URL == "" {
		c.Events.URL = "nats://127.0.0.1:4222"
	}
	if c.Events.StreamName == "" {
		c.Events.StreamName = "LOOM_EVENTS"
	}
	if len(c.Events.Subjects) == 0 {
		c.Events.Subjects = []string{"finance.*", "shop.*"}
	}
	if c.Events.DurableName == "" {
		c.Events.DurableName = "loom_refresh"
	}
	if c.Events.BatchSize <= 0 {
		c.Events.BatchSize = 50
	}
	if c.Events.FetchMaxWait <= 0 {
		c.Events.FetchMaxWait = time.Second
	}
	if c.Events.AckWait <= 0 {
		c.Events.AckWait = 30 * time.Second
	}
	if c.Events.MaxAckPending <= 0 {
		c.Events.MaxAckPending = 10000
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Server.HTTPPort < 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port out of range: %d", c.Server.HTTPPort)
	}
	if c.Tools.CatalogPath == "" && c.Tools.CatalogURL == "" {
		return fmt.Errorf("tools.catalog_path or tools.catalog_url is required")
	}
	if c.Cache.Backend != "memory" && c.Cache.Backend != "redis" {
		return fmt.Errorf("cache.backend must be memory or redis, got %q", c.Cache.Backend)
	}
	if c.Cache.Backend == "redis" && c.Cache.Redis.Addr == "" {
		return fmt.Errorf("cache.redis.addr is required for the redis backend")
	}
	if c.Planner.BaseURL == "" {
		return fmt.Errorf("planner.base_url is required")
	}
	if c.Actions.RoutesPath == "" {
		return fmt.Errorf("actions.routes_path is required")
	}
	return nil
}
