// Package client wraps an [ai.Provider] in a chain of [Middleware] values
// (timeouts, logging, metrics) and exposes the result as a [SendFunc].
//
// The primary entry point is [New], which accepts an [ai.Provider] and
// functional options such as [WithMiddleware] and [WithDefaultModel].
// Built-in middlewares live in the sibling package
// [github.com/leofalp/chatkeeper/core/client/middleware].
package client
