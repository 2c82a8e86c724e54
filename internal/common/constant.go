// Package common holds constants and sentinel errors shared by the client
// and the server. Match the errors with errors.Is.
package common

// AccessTokenHeaderName is the gRPC metadata key carrying the bearer token.
const AccessTokenHeaderName = "access_token"

// Table names used on the wire and in realtime subscriptions.
const (
	TableContainers = "containers"
	TableItems      = "items"
)
