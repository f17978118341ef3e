package storage

import "context"

// callerKey is a private type for the caller context key.
type callerKey struct{}

// Caller identifies who made a request, as far as the request log cares.
type Caller struct {
	Subject string
	Tenant  string
}

// SetCaller stores the caller in the context.
func SetCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFromContext returns the caller, or the zero Caller when none is set.
func CallerFromContext(ctx context.Context) Caller {
	if v, ok := ctx.Value(callerKey{}).(Caller); ok {
		return v
	}
	return Caller{}
}
