package ctxutil

import "context"

type ctxKey int

const (
	requestDataKey ctxKey = iota
	traceDataKey
)

// RequestData carries the tenant scope and asserted actor for one API call.
type RequestData struct {
	ProjectID string
	Actor     string
}

// TraceData carries correlation ids. It travels from the HTTP request into job payloads.
type TraceData struct {
	TraceID   string
	RequestID string
}

func WithRequestData(ctx context.Context, rd *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey, rd)
}

func GetRequestData(ctx context.Context) *RequestData {
	rd, _ := ctx.Value(requestDataKey).(*RequestData)
	return rd
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	td, _ := ctx.Value(traceDataKey).(*TraceData)
	return td
}

// LogFields returns the non-empty ids on ctx as logger key/value pairs.
func LogFields(ctx context.Context) []any {
	var out []any
	add := func(k, v string) {
		if v != "" {
			out = append(out, k, v)
		}
	}
	if td := GetTraceData(ctx); td != nil {
		add("trace_id", td.TraceID)
		add("request_id", td.RequestID)
	}
	if rd := GetRequestData(ctx); rd != nil {
		add("project_id", rd.ProjectID)
		add("actor", rd.Actor)
	}
	return out
}
