package config

import (
	"encoding/json"
	"os"

	"github.com/agrolink/agrolink/internal/configx"
	"github.com/agrolink/agrolink/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify intervals either as strings like "3s"
// or as integer nanoseconds.
type JsonConfig struct {
	ServerEndpointAddr  string         `json:"server_endpoint_addr"`
	BackendURL          string         `json:"backend_url"`
	ProxyURL            string         `json:"proxy_url"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
	RetryInterval       timex.Duration `json:"retry_interval"`
	RequestTimeout      timex.Duration `json:"request_timeout"`
	DatabasePath        string         `json:"database_path"`
	AttachmentDir       string         `json:"attachment_dir"`
	LogLevel            string         `json:"log_level"`
}

// parseJson overlays Config with values loaded from the file given by -c or
// -config. Keys absent from the file keep their current values. Panics on
// read or unmarshal errors.
func parseJson(cfg *Config) {
	jsonConfigFile := configx.JSONConfigPath()
	if jsonConfigFile == "" {
		return
	}

	jc := JsonConfig{
		ServerEndpointAddr:  cfg.ServerEndpointAddr,
		BackendURL:          cfg.BackendURL,
		ProxyURL:            cfg.ProxyURL,
		OnlineCheckInterval: timex.Duration{Duration: cfg.OnlineCheckInterval},
		RetryInterval:       timex.Duration{Duration: cfg.RetryInterval},
		RequestTimeout:      timex.Duration{Duration: cfg.RequestTimeout},
		DatabasePath:        cfg.DatabasePath,
		AttachmentDir:       cfg.AttachmentDir,
		LogLevel:            cfg.LogLevel,
	}

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	cfg.ServerEndpointAddr = jc.ServerEndpointAddr
	cfg.BackendURL = jc.BackendURL
	cfg.ProxyURL = jc.ProxyURL
	cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	cfg.RetryInterval = jc.RetryInterval.Duration
	cfg.RequestTimeout = jc.RequestTimeout.Duration
	cfg.DatabasePath = jc.DatabasePath
	cfg.AttachmentDir = jc.AttachmentDir
	cfg.LogLevel = jc.LogLevel
}
