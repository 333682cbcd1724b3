// Package client talks to the TierGate backend.
//
// GRPCClient implements Client over the hand-declared TierService
// descriptor in package rpc. A unary interceptor attaches the access token
// and installation id to every call, retries calls that fail with
// codes.Unavailable using exponential backoff, and re-registers the
// installation once when the server reports an expired token. Register is
// idempotent per installation, so re-registering only mints a fresh token.
//
// gRPC status codes are mapped to the sentinel errors in errors.go; match
// them with errors.Is.
package client
