package ident

import "context"

type contextKey int

const clientIPKey contextKey = iota

// WithClientIP describes the withclientip operation and its observable behavior.
//
// It returns a derived context carrying the caller's network address so that
// audit events emitted downstream can record it. The engine never interprets
// the value.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

func clientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey).(string)
	return ip
}
