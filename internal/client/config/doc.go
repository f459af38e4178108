// Package config loads runtime configuration for the AgroLink client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. AGROLINK_* environment variables, with a .env file loaded when present.
//  4. Command-line flags (see parseFlags), which override earlier values.
//
// # JSON schema
//
// Intervals can be strings like "3s" or integer nanoseconds:
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "backend_url": "http://127.0.0.1:8080",
//	  "proxy_url": "http://127.0.0.1:3000/api/proxy",
//	  "online_check_interval": "3s",
//	  "retry_interval": "30s"
//	}
//
// # Environment
//
//	AGROLINK_SERVER_ADDR, AGROLINK_BACKEND_URL, AGROLINK_PROXY_URL,
//	AGROLINK_RETRY_INTERVAL, AGROLINK_REQUEST_TIMEOUT, AGROLINK_DATABASE_PATH,
//	AGROLINK_ATTACHMENT_DIR, AGROLINK_LOG_LEVEL
package config
