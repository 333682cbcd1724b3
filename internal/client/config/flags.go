package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/tiergate/internal/flagx"
)

// ValueFlags lists every flag that takes a value, the JSON config selectors
// included. The CLI passes it to flagx.Positional to find its subcommand.
var ValueFlags = []string{"-a", "-i", "-d", "-t", "-r", "-c", "-config"}

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string     address and port of the backend server (default from Config)
//	-i int        online check interval in seconds (default from Config)
//	-d string     local cache directory
//	-t duration   per-request timeout (e.g., "5s")
//	-r duration   total retry budget while the server is unavailable
//
// Note: The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, so positional commands pass through untouched.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-i", "-d", "-t", "-r"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "address and port to access server")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	fs.StringVar(&cfg.CacheDir, "d", cfg.CacheDir, "local cache directory")
	fs.DurationVar(&cfg.RequestTimeout, "t", cfg.RequestTimeout, "per-request timeout")
	fs.DurationVar(&cfg.RetryMaxElapsed, "r", cfg.RetryMaxElapsed, "retry budget while the server is unavailable")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
}
