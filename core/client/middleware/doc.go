// Package middleware provides built-in middleware implementations for the
// generation client. Each middleware is constructed via a New* function that
// returns a [client.Middleware] ready to be passed to [client.WithMiddleware].
//
// # Available Middleware
//
//   - [NewTimeoutMiddleware]: Adds a per-request deadline via context.WithTimeout,
//     ensuring that a stalled provider call does not block a turn indefinitely.
//
//   - [NewLoggingMiddleware]: Emits structured slog log entries before and after
//     every provider call, with three verbosity levels (Minimal, Standard, Verbose).
//
//   - [NewMetricsMiddleware]: Records call outcome, latency and token usage in
//     the Prometheus registry.
//
// There is deliberately no retry middleware: a failed turn is reported to the
// caller, which decides whether to resend.
//
// # Usage
//
//	c, err := client.New(provider,
//	    client.WithMiddleware(
//	        middleware.NewTimeoutMiddleware(30*time.Second),
//	        middleware.NewMetricsMiddleware(recorder),
//	        middleware.NewLoggingMiddleware(slog.Default(), middleware.LogLevelStandard),
//	    ),
//	)
//
// Middlewares execute outermost-first: the first entry in WithMiddleware is the
// outermost wrapper. In the example above, a request travels:
//
//	Timeout (first, outermost) → Metrics → Logging → Provider
package middleware
