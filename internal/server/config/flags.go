package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/tiergate/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string     gRPC bind address (e.g., ":50051")
//	-m string     metrics bind address (e.g., ":9090")
//	-d string     PostgreSQL DSN
//	-k string     local cache DSN
//	-s string     access token HMAC secret
//	-i string     identity provider secret
//	-t int        access token validity, minutes
//	-o duration   remote store timeout (e.g., "5s")
//	-w duration   retention window (e.g., "2160h")
//	-n duration   sweep interval
//	-l string     log level (debug, info, warn, error)
//	-u string     S3 root user
//	-p string     S3 root password
//	-b string     S3 archive bucket
//	-g string     S3 region
//	-e string     S3 base endpoint
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-a", "-m", "-d", "-k", "-s", "-i", "-t", "-o", "-w", "-n", "-l", "-u", "-p", "-b", "-g", "-e",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run server")
	fs.StringVar(&config.MetricsAddr, "m", config.MetricsAddr, "address and port to serve metrics")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.CacheDSN, "k", config.CacheDSN, "local cache DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.IdentitySecret, "i", config.IdentitySecret, "identity provider secret")

	accessTokenValidityDuration := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access_token_validity_duration (in minutes)")

	fs.DurationVar(&config.RemoteTimeout, "o", config.RemoteTimeout, "remote store timeout")
	fs.DurationVar(&config.RetentionWindow, "w", config.RetentionWindow, "retention window for anonymous records")
	fs.DurationVar(&config.SweepInterval, "n", config.SweepInterval, "retention sweep interval")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 archive bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 root region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenValidityDuration = time.Duration(*accessTokenValidityDuration) * time.Minute
}
