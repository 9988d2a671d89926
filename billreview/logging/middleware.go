package logging

import (
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/clarity-dx/bill-review/log"
	appMiddleware "github.com/clarity-dx/bill-review/middleware"
)

// https://github.com/go-chi/chi/blob/master/_examples/logging/main.go

func NewStructuredLogger() func(next http.Handler) http.Handler {
	return middleware.RequestLogger(&StructuredLogger{Logger: log.Request})
}

type StructuredLogger struct {
	Logger logrus.FieldLogger
}

func (l *StructuredLogger) NewLogEntry(r *http.Request) middleware.LogEntry {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}

	fields := logrus.Fields{
		"ts":            time.Now().UTC().Format(time.RFC1123),
		"http_scheme":   scheme,
		"http_proto":    r.Proto,
		"http_method":   r.Method,
		"remote_addr":   r.RemoteAddr,
		"forwarded_for": r.Header.Get("X-Forwarded-For"),
		"user_agent":    r.UserAgent(),
		"uri":           fmt.Sprintf("%s://%s%s", scheme, r.Host, Redact(r.RequestURI)),
	}
	if reqID := middleware.GetReqID(r.Context()); reqID != "" {
		fields["req_id"] = reqID
	}
	if txID := appMiddleware.GetTransactionID(r.Context()); txID != "" {
		fields["transaction_id"] = txID
	}

	entry := &log.StructuredLoggerEntry{Logger: l.Logger.WithFields(fields)}
	entry.Logger.Infoln("request started")
	return entry
}

var filePathParam = regexp.MustCompile(`([?&]file_path=)([^&]*)`)

// Redact reduces file_path query values to their base name so server paths stay out of the request log.
func Redact(uri string) string {
	return filePathParam.ReplaceAllStringFunc(uri, func(m string) string {
		sub := filePathParam.FindStringSubmatch(m)
		if sub[2] == "" {
			return m
		}
		v, err := url.QueryUnescape(sub[2])
		if err != nil {
			return sub[1] + "<redacted>"
		}
		return sub[1] + url.QueryEscape(filepath.Base(v))
	})
}
