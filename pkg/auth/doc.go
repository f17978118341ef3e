// Package auth guards the chat API with bearer-token authentication.
//
// Authenticators vote Yes, No or Abstain on a request. A Chain asks them in
// order and stops at the first decisive vote; when every authenticator
// abstains the chain's default decides. Middleware turns the outcome into
// a 401 with the messages clients of the proxy already know, applies the
// optional per-tier rate limit, and records the caller on the request
// context so the request log can attribute the call.
package auth
