package config

import "github.com/agrolink/agrolink/internal/configx"

func parseEnv(cfg *Config) {
	configx.LoadDotEnv()

	configx.EnvString("SERVER_ADDR", &cfg.ServerEndpointAddr)
	configx.EnvString("BACKEND_URL", &cfg.BackendURL)
	configx.EnvString("PROXY_URL", &cfg.ProxyURL)
	configx.EnvDuration("RETRY_INTERVAL", &cfg.RetryInterval)
	configx.EnvDuration("REQUEST_TIMEOUT", &cfg.RequestTimeout)
	configx.EnvString("DATABASE_PATH", &cfg.DatabasePath)
	configx.EnvString("ATTACHMENT_DIR", &cfg.AttachmentDir)
	configx.EnvString("LOG_LEVEL", &cfg.LogLevel)
}
