package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName   = "marketrank"
	dbTracerName = "marketrank/db"
)

// Attribute keys recorded on ranking and search spans.
const (
	InputCountKey   = attribute.Key("marketrank.input_count")
	ResultCountKey  = attribute.Key("marketrank.result_count")
	HasViewerKey    = attribute.Key("marketrank.has_viewer")
	ViewerSourceKey = attribute.Key("marketrank.viewer_source")
	RadiusKmKey     = attribute.Key("marketrank.radius_km")
	SearchLimitKey  = attribute.Key("marketrank.search_limit")
)

// DBOperation names the kind of catalog statement a span covers.
type DBOperation string

const (
	DBOperationQuery  DBOperation = "query"
	DBOperationInsert DBOperation = "insert"
	DBOperationUpsert DBOperation = "upsert"
	DBOperationExec   DBOperation = "exec"
)

// endFunc returns the closure handed back by the Start helpers: it records
// err on the span, if any, and ends it.
func endFunc(span trace.Span) func(error) {
	return func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// StartSpan starts an internal span named name with the given attributes.
//
//	ctx, end := tracing.StartSpan(ctx, "rank_products", tracing.InputCountKey.Int(n))
//	defer end(err)
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, endFunc(span)
}

// StartDBSpan starts a client span for a PostgreSQL statement against table.
// The span is named "<operation> <table>".
func StartDBSpan(ctx context.Context, table string, operation DBOperation) (context.Context, func(error)) {
	name := string(operation)
	attrs := []attribute.KeyValue{
		semconv.DBSystemPostgreSQL,
		semconv.DBOperation(string(operation)),
	}
	if table != "" {
		name += " " + table
		attrs = append(attrs, semconv.DBSQLTable(table))
	}

	ctx, span := otel.Tracer(dbTracerName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
	return ctx, endFunc(span)
}

// Event records a named event with attributes on the span in ctx.
func Event(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}
