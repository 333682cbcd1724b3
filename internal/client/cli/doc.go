// Package cli provides the TierGate command-line client.
//
// Run with a command (for example "tiergate status") to execute it once, or
// without one to start an interactive shell. The shell probes the server in
// the background and shows whether it is online or offline; status and tier
// queries fall back to cached data while offline.
//
// The installation id and access token live in a SQLite cache under the
// configured cache directory, so the user is registered once per
// installation.
package cli
