package config

import "time"

// Config holds runtime settings for the TierGate CLI.
//
// Fields:
//   - ServerEndpointAddr: host:port of the backend gRPC endpoint.
//   - OnlineCheckInterval: how often the client probes server reachability.
//   - CacheDir: directory, relative to the working directory, holding the local cache.
//   - RequestTimeout: bound on a single RPC attempt.
//   - RetryMaxElapsed: total time spent retrying an unavailable server.
type Config struct {
	ServerEndpointAddr  string
	OnlineCheckInterval time.Duration
	CacheDir            string
	RequestTimeout      time.Duration
	RetryMaxElapsed     time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.OnlineCheckInterval = 3 * time.Second
	c.CacheDir = ".tiergate"
	c.RequestTimeout = 5 * time.Second
	c.RetryMaxElapsed = 15 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
