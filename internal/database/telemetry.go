package database

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const dbTracerName = "github.com/irfndi/optionscope/internal/database"

// slowQueryThreshold is the duration above which queries are logged at warn.
const slowQueryThreshold = 500 * time.Millisecond

// TracedDB wraps a DatabasePool and opens a client span per statement.
type TracedDB struct {
	pool   DatabasePool
	tracer trace.Tracer
	logger *logrus.Logger
}

var _ DatabasePool = (*TracedDB)(nil)

// NewTracedDB wraps pool. A nil logger uses the logrus standard logger.
func NewTracedDB(pool DatabasePool, logger *logrus.Logger) *TracedDB {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &TracedDB{
		pool:   pool,
		tracer: otel.Tracer(dbTracerName),
		logger: logger,
	}
}

func (db *TracedDB) start(ctx context.Context, op, sql string) (context.Context, trace.Span) {
	return db.tracer.Start(ctx, "db."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.DBSystemPostgreSQL,
			attribute.String("db.query.text", compactSQL(sql)),
			attribute.String("db.operation.name", op),
		))
}

func (db *TracedDB) finish(span trace.Span, op, sql string, start time.Time, err error) {
	duration := time.Since(start)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()

	if duration > slowQueryThreshold {
		db.logger.WithFields(logrus.Fields{
			"operation": op,
			"statement": compactSQL(sql),
			"duration":  duration,
		}).Warn("Slow database statement")
	}
}

// Query executes a query that returns rows.
func (db *TracedDB) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	start := time.Now()
	ctx, span := db.start(ctx, "query", sql)
	rows, err := db.pool.Query(ctx, sql, args...)
	db.finish(span, "query", sql, start, err)
	return rows, err
}

// QueryRow executes a query that returns a single row. Scan errors surface
// on the returned row, so the span only covers sending the statement.
func (db *TracedDB) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	start := time.Now()
	ctx, span := db.start(ctx, "query_row", sql)
	row := db.pool.QueryRow(ctx, sql, args...)
	db.finish(span, "query_row", sql, start, nil)
	return row
}

// Exec executes a query without returning rows.
func (db *TracedDB) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	start := time.Now()
	ctx, span := db.start(ctx, "exec", sql)
	tag, err := db.pool.Exec(ctx, sql, args...)
	if err == nil {
		span.SetAttributes(attribute.Int64("db.rows_affected", tag.RowsAffected()))
	}
	db.finish(span, "exec", sql, start, err)
	return tag, err
}

// compactSQL collapses whitespace so statements read on one log line.
func compactSQL(sql string) string {
	return strings.Join(strings.Fields(sql), " ")
}
