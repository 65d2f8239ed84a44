package ctxutil

import "context"

type traceDataKey struct{}

type TraceData struct {
	TraceID   string
	RequestID string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	if td, ok := ctx.Value(traceDataKey{}).(*TraceData); ok {
		return td
	}
	return nil
}

type operatorDataKey struct{}

// OperatorData identifies the authenticated operator behind an admin request.
type OperatorData struct {
	OperatorID string
	Name       string
}

func WithOperatorData(ctx context.Context, od *OperatorData) context.Context {
	return context.WithValue(ctx, operatorDataKey{}, od)
}

func GetOperatorData(ctx context.Context) *OperatorData {
	if od, ok := ctx.Value(operatorDataKey{}).(*OperatorData); ok {
		return od
	}
	return nil
}
