package config

import (
	"flag"
	"os"
	"time"

	"github.com/agrolink/agrolink/internal/configx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   address and port of the backend gRPC server
//	-b string   REST backend base URL
//	-x string   same-origin proxy URL
//	-i int      online check interval in seconds
//	-r int      offline queue retry interval in seconds
//	-d string   local database path
//	-l string   log level
//
// The function filters os.Args to only include the flags it knows about,
// using configx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := configx.FilterArgs(os.Args[1:], []string{"-a", "-b", "-x", "-i", "-r", "-d", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "address and port to access server")
	fs.StringVar(&cfg.BackendURL, "b", cfg.BackendURL, "REST backend base URL")
	fs.StringVar(&cfg.ProxyURL, "x", cfg.ProxyURL, "proxy URL")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	retryInterval := fs.Int("r", int(cfg.RetryInterval.Seconds()), "offline queue retry interval (in seconds)")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "local database path")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
	cfg.RetryInterval = time.Duration(*retryInterval) * time.Second
}
