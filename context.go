package sessionauth

import "context"

// requestInfo carries caller details that audit events record.
type requestInfo struct {
	ip        string
	userAgent string
}

type requestInfoKey struct{}

func requestInfoFrom(ctx context.Context) requestInfo {
	if ctx == nil {
		return requestInfo{}
	}
	info, _ := ctx.Value(requestInfoKey{}).(requestInfo)
	return info
}

// WithClientIP attaches the caller's IP address to ctx. The engine copies
// it into audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	info := requestInfoFrom(ctx)
	info.ip = ip
	return context.WithValue(ctx, requestInfoKey{}, info)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	info := requestInfoFrom(ctx)
	info.userAgent = userAgent
	return context.WithValue(ctx, requestInfoKey{}, info)
}
