package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/tiergate/internal/flagx"
	"github.com/dmitrijs2005/tiergate/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
// It relies on timex.Duration so JSON can specify intervals either as
// strings like "3s" or as integer nanoseconds.
type JsonConfig struct {
	ServerEndpointAddr  string         `json:"server_endpoint_addr"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
	CacheDir            string         `json:"cache_dir"`
	RequestTimeout      timex.Duration `json:"request_timeout"`
	RetryMaxElapsed     timex.Duration `json:"retry_max_elapsed"`
}

// parseJson overlays Config with values loaded from the JSON file named by
// -c or -config. Only non-empty values replace what is already set.
// Panics on read or unmarshal errors.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ServerEndpointAddr != "" {
		cfg.ServerEndpointAddr = jc.ServerEndpointAddr
	}
	if jc.OnlineCheckInterval.Duration > 0 {
		cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	}
	if jc.CacheDir != "" {
		cfg.CacheDir = jc.CacheDir
	}
	if jc.RequestTimeout.Duration > 0 {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	if jc.RetryMaxElapsed.Duration > 0 {
		cfg.RetryMaxElapsed = jc.RetryMaxElapsed.Duration
	}
}
