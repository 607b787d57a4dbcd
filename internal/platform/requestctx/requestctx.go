package requestctx

import "context"

type ctxKey string

const (
	requestIDKey ctxKey = "request_id"
	remoteIPKey  ctxKey = "remote_ip"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	if value, ok := ctx.Value(requestIDKey).(string); ok {
		return value
	}
	return ""
}

func WithRemoteIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, remoteIPKey, ip)
}

// GetRemoteIP returns the caller address recorded by the request id
// middleware.
func GetRemoteIP(ctx context.Context) string {
	if value, ok := ctx.Value(remoteIPKey).(string); ok {
		return value
	}
	return ""
}
