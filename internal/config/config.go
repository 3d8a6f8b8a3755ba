package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Defaults for the agent persona when no environment overrides are set.
const (
	DefaultVoice = "marin"

	DefaultInstructions = "You are a helpful voice assistant. Greet warmly, then help succinctly. " +
		"Keep responses concise but informative. Be friendly and professional."

	DefaultGreeting = "Hi! Thanks for calling. How can I help you today?"
)

// Config holds the voicebridge server configuration
type Config struct {
	// HTTP settings (webhook receiver + media WebSocket endpoint)
	Port     int
	BindAddr string
	LogLevel string

	// PublicDomain is the externally reachable hostname used to build the
	// wss:// stream URL handed to the telephony provider.
	PublicDomain string

	// Telephony provider (call control) settings
	TelephonyAPIKey  string
	TelephonyAPIBase string

	// AI realtime service settings
	RealtimeAPIKey string
	RealtimeURL    string
	RealtimeModel  string

	// Agent persona
	AgentVoice        string
	AgentInstructions string
	AgentGreeting     string

	// CatalogPath is the department catalog JSON file for call transfers.
	// Empty means no transfer targets are configured.
	CatalogPath string

	// ToolResultTTL bounds how long an unacknowledged tool invocation is
	// tracked before its pending entry is discarded.
	ToolResultTTL time.Duration
}

// Load loads configuration from command line flags and environment variables
func Load() (*Config, error) {
	cfg := &Config{
		ToolResultTTL: 30 * time.Second,
	}

	// Define flags
	flag.IntVar(&cfg.Port, "port", 8080, "HTTP listening port")
	flag.StringVar(&cfg.BindAddr, "bind", "0.0.0.0", "HTTP bind address")
	flag.StringVar(&cfg.LogLevel, "loglevel", "info", "Log level (debug, info, warn, error)")
	flag.StringVar(&cfg.PublicDomain, "domain", "", "Public domain for the media stream URL")
	flag.StringVar(&cfg.CatalogPath, "catalog", "", "Path to department catalog JSON file")
	flag.StringVar(&cfg.TelephonyAPIBase, "telephony-api", "https://api.telnyx.com/v2/calls", "Telephony call-control API base URL")
	flag.StringVar(&cfg.RealtimeURL, "realtime-url", "wss://api.openai.com/v1/realtime", "AI realtime WebSocket URL")
	flag.StringVar(&cfg.RealtimeModel, "realtime-model", "gpt-realtime", "AI realtime model name")

	flag.Parse()

	// Override with environment variables if set
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if bind := os.Getenv("BIND"); bind != "" {
		cfg.BindAddr = bind
	}
	if loglevel := os.Getenv("LOGLEVEL"); loglevel != "" {
		cfg.LogLevel = loglevel
	}
	if domain := os.Getenv("DOMAIN"); domain != "" {
		cfg.PublicDomain = domain
	}
	if path := os.Getenv("DEPARTMENTS_PATH"); path != "" {
		cfg.CatalogPath = path
	}

	cfg.TelephonyAPIKey = os.Getenv("TELNYX_API_KEY")
	cfg.RealtimeAPIKey = os.Getenv("OPENAI_API_KEY")

	cfg.AgentVoice = envOr("AGENT_VOICE", DefaultVoice)
	cfg.AgentInstructions = envOr("AGENT_INSTRUCTIONS", DefaultInstructions)
	cfg.AgentGreeting = envOr("AGENT_GREETING", DefaultGreeting)

	if ttl := os.Getenv("TOOL_RESULT_TTL"); ttl != "" {
		if d, err := time.ParseDuration(ttl); err == nil && d > 0 {
			cfg.ToolResultTTL = d
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that required settings are present.
func (c *Config) Validate() error {
	if c.TelephonyAPIKey == "" {
		return fmt.Errorf("missing required env var: TELNYX_API_KEY")
	}
	if c.RealtimeAPIKey == "" {
		return fmt.Errorf("missing required env var: OPENAI_API_KEY")
	}
	if c.PublicDomain == "" {
		return fmt.Errorf("missing required env var: DOMAIN")
	}
	return nil
}

// StreamURL returns the wss:// URL the telephony provider should stream
// call media to.
func (c *Config) StreamURL() string {
	return fmt.Sprintf("wss://%s/media", c.PublicDomain)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
