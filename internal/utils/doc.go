// Package utils provides shared low-level helpers used by the provider
// clients: [DoPostSync] for synchronous JSON round-trips with AI provider
// APIs, and [TruncateString] for keeping log output and error previews bounded.
package utils
