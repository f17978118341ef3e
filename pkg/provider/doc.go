// Package provider defines the interface between the chat engine and the
// inference backend. An adapter (see the responses subpackage) hides the
// backend's wire protocol: the engine hands it a ChatRequest and gets back
// either the raw JSON response or a stream of chat.completion.chunk frames.
package provider
