package log

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

type contextKey string

// CtxLoggerKey is the context key holding the request scoped *StructuredLoggerEntry.
const CtxLoggerKey contextKey = "ctxLogger"

// StructuredLoggerEntry is the per-request log entry. It satisfies chi's middleware.LogEntry.
type StructuredLoggerEntry struct {
	Logger logrus.FieldLogger
}

func (l *StructuredLoggerEntry) Write(status, bytes int, header http.Header, elapsed time.Duration, extra interface{}) {
	l.Logger = l.Logger.WithFields(logrus.Fields{
		"resp_status": status, "resp_bytes_length": bytes,
		"resp_elapsed_ms": float64(elapsed.Nanoseconds()) / 1000000.0,
	})

	l.Logger.Infoln("request complete")
}

func (l *StructuredLoggerEntry) Panic(v interface{}, stack []byte) {
	l.Logger = l.Logger.WithFields(logrus.Fields{
		"stack": string(stack),
		"panic": fmt.Sprintf("%+v", v),
	})
}

// NewCtxLogger stores logger in the returned context.
func NewCtxLogger(ctx context.Context, logger logrus.FieldLogger) context.Context {
	return context.WithValue(ctx, CtxLoggerKey, &StructuredLoggerEntry{Logger: logger})
}

// GetCtxLogger returns the logger held by ctx, or the API logger when there is none.
func GetCtxLogger(ctx context.Context) logrus.FieldLogger {
	if entry, ok := ctx.Value(CtxLoggerKey).(*StructuredLoggerEntry); ok && entry.Logger != nil {
		return entry.Logger
	}
	return API
}

// SetLoggerFields adds fields to the context logger. The returned context
// carries the enriched logger so later calls keep the fields.
func SetLoggerFields(ctx context.Context, fields logrus.Fields) (context.Context, logrus.FieldLogger) {
	entry, ok := ctx.Value(CtxLoggerKey).(*StructuredLoggerEntry)
	if !ok || entry.Logger == nil {
		entry = &StructuredLoggerEntry{Logger: API}
	}
	logger := entry.Logger.WithFields(fields)
	return context.WithValue(ctx, CtxLoggerKey, &StructuredLoggerEntry{Logger: logger}), logger
}

func WriteErrorWithFields(ctx context.Context, msg string, fields logrus.Fields) (context.Context, logrus.FieldLogger) {
	ctx, logger := SetLoggerFields(ctx, fields)
	logger.Error(msg)
	return ctx, logger
}

func WriteWarnWithFields(ctx context.Context, msg string, fields logrus.Fields) (context.Context, logrus.FieldLogger) {
	ctx, logger := SetLoggerFields(ctx, fields)
	logger.Warn(msg)
	return ctx, logger
}

func WriteInfoWithFields(ctx context.Context, msg string, fields logrus.Fields) (context.Context, logrus.FieldLogger) {
	ctx, logger := SetLoggerFields(ctx, fields)
	logger.Info(msg)
	return ctx, logger
}
