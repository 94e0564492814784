package config

import "time"

// Config is the root configuration structure for siteray.
// Serialised to ~/.siteray/config.json.
type Config struct {
	API      APIConfig      `mapstructure:"api"      json:"api"      yaml:"api"`
	Cache    CacheConfig    `mapstructure:"cache"    json:"cache"    yaml:"cache"`
	Poller   PollerConfig   `mapstructure:"poller"   json:"poller"   yaml:"poller"`
	Database DatabaseConfig `mapstructure:"database" json:"database" yaml:"database"`
	Gateway  GatewayConfig  `mapstructure:"gateway"  json:"gateway"  yaml:"gateway"`
	Notify   NotifyConfig   `mapstructure:"notify"   json:"notify"   yaml:"notify"`
}

// APIConfig points the agent at the remote trust-scoring service.
type APIConfig struct {
	// BaseURL is the API origin, e.g. https://siteray.io.
	BaseURL string `mapstructure:"base_url"     json:"base_url"     yaml:"base_url"`
	// WebBaseURL is the origin of the website (onboarding, OAuth callback).
	WebBaseURL string `mapstructure:"web_base_url" json:"web_base_url" yaml:"web_base_url"`
	// Timeout bounds every outbound request.
	Timeout time.Duration `mapstructure:"timeout" json:"timeout" yaml:"timeout"`
}

// CacheConfig sizes the in-memory lookup cache.
type CacheConfig struct {
	TTL        time.Duration `mapstructure:"ttl"         json:"ttl"         yaml:"ttl"`
	MaxEntries int           `mapstructure:"max_entries" json:"max_entries" yaml:"max_entries"`
}

// PollerConfig controls background polling of running scans.
type PollerConfig struct {
	// Schedule is a robfig/cron spec for the wake signal, e.g. "@every 1m".
	Schedule    string `mapstructure:"schedule"     json:"schedule"     yaml:"schedule"`
	MaxAttempts int    `mapstructure:"max_attempts" json:"max_attempts" yaml:"max_attempts"`
}

// DatabaseConfig controls the storage backend.
type DatabaseConfig struct {
	// Driver is "sqlite" (default) or "mysql".
	Driver string `mapstructure:"driver" json:"driver" yaml:"driver"`
	// Path is the SQLite file path (expanded at runtime).
	Path string `mapstructure:"path"   json:"path"   yaml:"path"`
	// DSN is the MySQL data source name (used when Driver == "mysql").
	DSN string `mapstructure:"dsn"    json:"dsn"    yaml:"dsn"`
}

// GatewayConfig controls the local daemon the extension shell talks to.
type GatewayConfig struct {
	// Port is the localhost HTTP port the gateway listens on (default: 6180).
	Port int `mapstructure:"port" json:"port" yaml:"port"`
	// AllowedOrigins lists extension origins permitted to open websockets.
	// Empty allows any origin.
	AllowedOrigins []string `mapstructure:"allowed_origins" json:"allowed_origins" yaml:"allowed_origins"`
}

// NotifyConfig controls notifications sent when a tracked scan ends.
type NotifyConfig struct {
	// Events filters which outcomes are sent: scan_completed, scan_failed,
	// scan_timed_out. Empty sends all of them.
	Events []string `mapstructure:"events" json:"events" yaml:"events"`
	// MinRisk suppresses completed scans rated below this level
	// (green < yellow < red). Empty sends every completed scan.
	MinRisk string              `mapstructure:"min_risk" json:"min_risk" yaml:"min_risk"`
	Slack   SlackNotifyConfig   `mapstructure:"slack"    json:"slack"    yaml:"slack"`
	Webhook WebhookNotifyConfig `mapstructure:"webhook"  json:"webhook"  yaml:"webhook"`
}

// SlackNotifyConfig holds the Slack incoming webhook URL.
type SlackNotifyConfig struct {
	WebhookURL string `mapstructure:"webhook_url" json:"webhook_url" yaml:"webhook_url"`
}

// WebhookNotifyConfig points at a generic JSON endpoint. When Secret is set
// each body is signed with HMAC-SHA256.
type WebhookNotifyConfig struct {
	URL    string `mapstructure:"url"    json:"url"    yaml:"url"`
	Secret string `mapstructure:"secret" json:"secret" yaml:"secret"`
}
