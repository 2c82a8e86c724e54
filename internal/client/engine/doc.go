// Package engine keeps a local SQLite copy of a user's containers and items
// convergent with the sync server while the device goes on and offline.
//
// Local writes are committed together with a PendingChange and drained to the
// server in order: containers before items, then oldest first. Remote
// changes arrive as realtime events and as a full snapshot on every
// (re)connect; both are merged so that unconfirmed local work is never
// silently overwritten. Deletes are soft and cascade from a container to its
// items. A session epoch discards async results that finish after the user
// has switched.
//
// All store mutations run under one mutex; network calls never do.
package engine
