package logging

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	appMiddleware "github.com/clarity-dx/bill-review/middleware"
)

type LoggingMiddlewareTestSuite struct {
	suite.Suite
}

func TestLoggingMiddlewareTestSuite(t *testing.T) {
	suite.Run(t, new(LoggingMiddlewareTestSuite))
}

func (s *LoggingMiddlewareTestSuite) TestLogRequest() {
	logger, hook := test.NewNullLogger()

	r := chi.NewRouter()
	r.Use(middleware.RequestID, appMiddleware.NewTransactionID)
	r.Use(middleware.RequestLogger(&StructuredLogger{Logger: logger}))
	r.Get("/api/sessions", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	server := httptest.NewServer(r)
	defer server.Close()

	resp, err := server.Client().Get(server.URL + "/api/sessions?file_path=%2Fsrv%2Fuploads%2Fclaims.json")
	s.Require().NoError(err)
	resp.Body.Close()
	s.Equal(http.StatusTeapot, resp.StatusCode)

	entries := hook.AllEntries()
	s.Require().Len(entries, 2)
	started, complete := entries[0], entries[1]

	s.Equal("request started", started.Message)
	s.Equal("http", started.Data["http_scheme"])
	s.Equal("GET", started.Data["http_method"])
	s.Equal("HTTP/1.1", started.Data["http_proto"])
	s.NotEmpty(started.Data["req_id"])
	s.NotEmpty(started.Data["transaction_id"])
	s.NotEmpty(started.Data["ts"])
	s.Equal(server.URL+"/api/sessions?file_path=claims.json", started.Data["uri"])

	s.Equal("request complete", complete.Message)
	s.Equal(http.StatusTeapot, complete.Data["resp_status"])
	s.Equal(logrus.InfoLevel, complete.Level)
}

func TestRedact(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"/api/sessions", "/api/sessions"},
		{"/api/analyze?file_path=%2Fsrv%2Flogs%2Fvalidation_failures_1.json&use_latest=false",
			"/api/analyze?file_path=validation_failures_1.json&use_latest=false"},
		{"/api/analyze?use_latest=true&file_path=", "/api/analyze?use_latest=true&file_path="},
		{"/api/analyze?file_path=%zz", "/api/analyze?file_path=<redacted>"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Redact(tt.uri))
	}
}
