package config

import "github.com/agrolink/agrolink/internal/configx"

// parseEnv applies AGROLINK_* overrides, loading .env first when present.
func parseEnv(config *Config) {
	configx.LoadDotEnv()

	configx.EnvString("GRPC_ADDR", &config.EndpointAddrGRPC)
	configx.EnvString("HTTP_ADDR", &config.EndpointAddrHTTP)
	configx.EnvString("DATABASE_DSN", &config.DatabaseDSN)
	configx.EnvString("SECRET_KEY", &config.SecretKey)
	configx.EnvDuration("ACCESS_TOKEN_TTL", &config.AccessTokenValidityDuration)
	configx.EnvString("S3_ROOT_USER", &config.S3RootUser)
	configx.EnvString("S3_ROOT_PASSWORD", &config.S3RootPassword)
	configx.EnvString("S3_BUCKET", &config.S3Bucket)
	configx.EnvString("S3_REGION", &config.S3Region)
	configx.EnvString("S3_BASE_ENDPOINT", &config.S3BaseEndpoint)
	configx.EnvBool("STORAGE_ENABLED", &config.StorageEnabled)
	configx.EnvString("REDIS_ADDR", &config.RedisAddr)
	configx.EnvList("KAFKA_BROKERS", &config.KafkaBrokers)
	configx.EnvString("KAFKA_TOPIC", &config.KafkaTopic)
	configx.EnvString("PROXY_UPSTREAM", &config.ProxyUpstream)
	configx.EnvString("LOG_LEVEL", &config.LogLevel)
}
