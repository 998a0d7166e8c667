// Package timeouts defines shared timeout constants used across the game core.
// Centralizing these values prevents drift between the coordinator, the
// presence tracker and the transport gateway, and makes the durations
// discoverable.
package timeouts

import "time"

// HeartbeatInterval is how often clients are expected to send heartbeats.
const HeartbeatInterval = 5 * time.Second

// DisconnectThreshold is how long a participant may go without a heartbeat
// before being marked disconnected.
const DisconnectThreshold = 30 * time.Second

// RoundPlanning caps how long a round stays open for commitments before it is
// force-closed with substituted actions.
const RoundPlanning = 90 * time.Second

// LobbyIdleTTL is how long an untouched lobby room survives before the
// cleanup sweep removes it.
const LobbyIdleTTL = 2 * time.Hour

// CleanupSweepInterval is how often the lobby cleanup sweep runs. The sweep
// only affects never-started rooms, so a coarse interval is safe.
const CleanupSweepInterval = 5 * time.Minute

// SessionToken bounds the validity of an issued session integrity token.
const SessionToken = 10 * time.Minute

// ReadHeader limits how long the HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long the HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second
