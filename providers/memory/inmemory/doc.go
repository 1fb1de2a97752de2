// Package inmemory provides a concurrency-safe, map-backed implementation
// of the [memory.Backend] interface for storing session histories in process memory.
// It is designed for single-process use cases where persistence across restarts is not required.
// The main entry point is [New], which returns a ready-to-use [Store].
package inmemory
