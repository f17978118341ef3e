// Package engine connects the HTTP transport to a provider. The Engine
// implements transport.ChatHandler: it runs the message pipeline over a
// copy of the request, calls the provider, and hands the result to the
// ResponseWriter. Non-streaming bodies are forwarded unchanged; streaming
// responses are already transcoded by the provider.
package engine
