// Package timeouts defines shared timeout constants used across the agentwire
// binaries. Centralizing these values prevents drift between the console and
// the simulator and makes the durations discoverable.
package timeouts

import "time"

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long an HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// StoreOpen caps the wait for the transcript store to answer its first ping.
const StoreOpen = 5 * time.Second
