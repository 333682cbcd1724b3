// Package common contains shared constants and sentinel errors used across
// TierGate components.
package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// installation access token on outbound requests.
const AccessTokenHeaderName = "access_token"

// InstallationIDHeaderName carries the client-generated installation id on
// Register calls.
const InstallationIDHeaderName = "installation_id"
