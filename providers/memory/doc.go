// Package memory defines the Backend interface for session history
// persistence. A backend stores an ordered []ai.Message per session id and
// replaces it atomically on every save.
//
// Bundled implementations:
//   - [github.com/leofalp/chatkeeper/providers/memory/inmemory]: process memory, lost on exit
//   - [github.com/leofalp/chatkeeper/providers/memory/pgmemory]: PostgreSQL message log
//   - [github.com/leofalp/chatkeeper/providers/memory/redismemory]: one Redis list per session
package memory
