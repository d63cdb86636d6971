package analyses

import "context"

type ctxKey string

const requestIDKey ctxKey = "requestId"

// WithRequestID attaches the request id so the async worker logs correlate
// with the submit request.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// backgroundWithRequestID detaches from the request's cancellation while
// keeping the request id for log correlation. The analysis must outlive the
// HTTP request that started it.
func backgroundWithRequestID(ctx context.Context) context.Context {
	return WithRequestID(context.Background(), requestIDFromContext(ctx))
}
