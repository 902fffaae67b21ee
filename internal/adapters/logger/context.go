package logger

import "context"

type contextKey string

const runIDKey contextKey = "run_id"

// ContextWithRunID returns a context whose log lines carry the given sync run ID.
func ContextWithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext returns the run ID stored in ctx, if any.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(runIDKey).(string)
	return id, ok
}

func contextFields(ctx context.Context) map[string]interface{} {
	kv := make(map[string]interface{})
	if id, ok := RunIDFromContext(ctx); ok {
		kv[string(runIDKey)] = id
	}
	return kv
}
