// Package storage defines the request log: one metadata record per chat
// request, written after the response has been sent. Message content is
// never stored.
//
// Implementations live in the memory and postgres subpackages. This
// package holds the shared record type, the RequestLog interface, sentinel
// errors, and the caller context helpers used to scope listings.
package storage
