// Package ai defines the provider-agnostic types shared by the session
// manager and the text-generation backends.
//
// Stored conversation history is a sequence of [Message] values tagged with a
// [MessageRole]. Providers never see those directly: the history formatter
// translates them into a [ChatRequest] made of [Turn] values using the
// two-party [Party] taxonomy, plus an optional instruction slot. Each
// provider's conversion layer maps that contract to its own wire format.
package ai
