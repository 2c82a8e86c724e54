// Package client talks to the sync server.
//
// GRPCClient implements the engine's Remote port over the Rows gRPC service
// and attaches the session's access token to every call. RealtimeClient
// implements the Realtime port over a websocket feed, one connection per
// table.
//
// Transport failures are mapped to the sentinel errors in package common
// (ErrUnavailable, ErrUnauthorized, ErrorNotFound) so callers can match them
// with errors.Is.
package client
