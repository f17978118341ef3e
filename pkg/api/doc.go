// Package api defines the client-facing data model of the rabbithole proxy.
//
// Clients speak a Chat Completions style dialect: a list of role-tagged
// messages whose content is either a string or an array of typed content
// items. This package decodes and validates those requests and defines the
// streamed chunk shape written back to clients.
//
// Core types:
//   - [ChatRequest]: body of POST /api/chat
//   - [ChatMessage], [MessageContent], [ContentItem]: conversation turns
//   - [ToolSpec]: abstract tool name or pre-built backend descriptor
//   - [ChatCompletionChunk]: one streamed delta
//   - [APIError]: structured error with type, code, param, and message
//
// The package has no external dependencies and performs no I/O.
package api
