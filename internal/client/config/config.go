package config

import "time"

// Config holds runtime settings for the AgroLink client.
type Config struct {
	// ServerEndpointAddr is host:port of the backend gRPC endpoint.
	ServerEndpointAddr string
	// BackendURL is the base URL of the REST API used for error and metric
	// reports. Empty disables reporting.
	BackendURL string
	// ProxyURL is the same-origin proxy tried after direct REST attempts
	// fail. Empty disables the fallback.
	ProxyURL            string
	OnlineCheckInterval time.Duration
	// RetryInterval is the offline queue retry period.
	RetryInterval  time.Duration
	RequestTimeout time.Duration
	DatabasePath   string
	// AttachmentDir receives attachments when the server has object storage
	// disabled.
	AttachmentDir string
	LogLevel      string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.BackendURL = "http://127.0.0.1:8080"
	c.ProxyURL = ""
	c.OnlineCheckInterval = 3 * time.Second
	c.RetryInterval = 30 * time.Second
	c.RequestTimeout = 10 * time.Second
	c.DatabasePath = "agrolink_client.db"
	c.AttachmentDir = "attachments"
	c.LogLevel = "warn"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present), the environment and command-line flags. Later sources
// take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseEnv(cfg)
	parseFlags(cfg)
	return cfg
}
