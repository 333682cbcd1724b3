package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/tiergate/internal/flagx"
	"github.com/dmitrijs2005/tiergate/internal/timex"
)

// JsonConfig is the on-disk shape of the server configuration. Durations
// accept both strings such as "90s" and integer nanoseconds.
type JsonConfig struct {
	EndpointAddrGRPC            string         `json:"endpoint_addr_grpc"`
	MetricsAddr                 string         `json:"metrics_addr"`
	DatabaseDSN                 string         `json:"database_dsn"`
	CacheDSN                    string         `json:"cache_dsn"`
	SecretKey                   string         `json:"secret_key"`
	IdentitySecret              string         `json:"identity_secret"`
	IdentityIssuer              string         `json:"identity_issuer"`
	AccessTokenValidityDuration timex.Duration `json:"access_token_validity_duration"`
	RemoteTimeout               timex.Duration `json:"remote_timeout"`
	RetentionWindow             timex.Duration `json:"retention_window"`
	SweepInterval               timex.Duration `json:"sweep_interval"`
	SweepStartDelay             timex.Duration `json:"sweep_start_delay"`
	SweepBatchSize              int            `json:"sweep_batch_size"`
	ReferralCodeAttempts        int            `json:"referral_code_attempts"`
	LogLevel                    string         `json:"log_level"`
	S3RootUser                  string         `json:"s3_root_user"`
	S3RootPassword              string         `json:"s3_root_password"`
	S3Bucket                    string         `json:"s3_bucket"`
	S3Region                    string         `json:"s3_region"`
	S3BaseEndpoint              string         `json:"s3_base_endpoint"`
}

// parseJson overlays the JSON file named by -c/-config onto config. Keys
// missing from the file keep their current value. An unreadable or invalid
// file panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.MetricsAddr, c.MetricsAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.CacheDSN, c.CacheDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.IdentitySecret, c.IdentitySecret)
	setString(&config.IdentityIssuer, c.IdentityIssuer)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)

	if c.AccessTokenValidityDuration.Duration > 0 {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RemoteTimeout.Duration > 0 {
		config.RemoteTimeout = c.RemoteTimeout.Duration
	}
	if c.RetentionWindow.Duration > 0 {
		config.RetentionWindow = c.RetentionWindow.Duration
	}
	if c.SweepInterval.Duration > 0 {
		config.SweepInterval = c.SweepInterval.Duration
	}
	if c.SweepStartDelay.Duration > 0 {
		config.SweepStartDelay = c.SweepStartDelay.Duration
	}
	if c.SweepBatchSize > 0 {
		config.SweepBatchSize = c.SweepBatchSize
	}
	if c.ReferralCodeAttempts > 0 {
		config.ReferralCodeAttempts = c.ReferralCodeAttempts
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
