// Package common contains shared constants, sentinel errors and small helpers
// used across gophauth components.
package common

// AccessTokenHeaderName is the gRPC/HTTP metadata key used to carry the
// session token on inbound requests.
const AccessTokenHeaderName = "access_token"
