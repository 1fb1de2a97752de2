// Package gemini implements the [ai.Provider] interface for Google's Gemini
// generative language API.
//
// Requests are converted from the generic [ai.ChatRequest] format to
// Gemini's generateContent wire format: requester turns become "user"
// contents, responder turns become "model" contents, and a non-empty
// instruction is sent through the dedicated systemInstruction field.
//
// The primary entry point is [New], which reads GEMINI_API_KEY and
// GEMINI_API_BASE_URL from the environment. Use [GeminiProvider.WithAPIKey],
// [GeminiProvider.WithBaseURL], or [GeminiProvider.WithHttpClient] to configure
// the provider programmatically.
package gemini
