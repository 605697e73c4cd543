package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
)

type ctxKey struct{}

// HeaderName 是 trace ID 的 HTTP header 名称
const HeaderName = "X-Trace-ID"

const requestIDHeader = "X-Request-ID"

// GenerateTraceID 生成一个新的 trace ID
func GenerateTraceID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// FromContext 从 context 中获取 trace_id
func FromContext(ctx context.Context) string {
	if traceID, ok := ctx.Value(ctxKey{}).(string); ok {
		return traceID
	}
	return ""
}

// WithContext 将 trace_id 添加到 context 中
func WithContext(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, traceID)
}

// FromRequest returns the caller's trace id (X-Trace-ID, then X-Request-ID) or a fresh one.
func FromRequest(r *http.Request) string {
	if id := r.Header.Get(HeaderName); id != "" {
		return id
	}
	if id := r.Header.Get(requestIDHeader); id != "" {
		return id
	}
	return GenerateTraceID()
}
