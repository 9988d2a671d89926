package log

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/pborman/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"

	"github.com/clarity-dx/bill-review/billreview/constants"
	"github.com/clarity-dx/bill-review/billreview/testUtils"
	"github.com/clarity-dx/bill-review/conf"
)

// TestLoggers verifies that all of our loggers are set up
// with the expected parameters and write to the expected files.
func TestLoggers(t *testing.T) {
	env := uuid.New()
	oldEnv := conf.GetEnv("ENVIRONMENT")
	assert.NoError(t, conf.SetEnv(t, "ENVIRONMENT", env))
	t.Cleanup(func() { assert.NoError(t, conf.SetEnv(t, "ENVIRONMENT", oldEnv)) })

	tests := []struct {
		logEnv string
		// Use a supplier since the logger's reference will be updated everytime we call
		// setup func. This allows us to retrieve the refreshed logger
		logSupplier func() logrus.FieldLogger
		application string
	}{
		{"API_LOG", func() logrus.FieldLogger { return API }, "api"},
		{"REQUEST_LOG", func() logrus.FieldLogger { return Request }, "api"},
		{"VALIDATION_LOG", func() logrus.FieldLogger { return Validation }, "validation"},
		{"ANALYZER_LOG", func() logrus.FieldLogger { return Analyzer }, "analyzer"},
	}
	for _, tt := range tests {
		t.Run(tt.logEnv, func(t *testing.T) {
			logFile, err := os.CreateTemp("", "*")
			assert.NoError(t, err)
			old := conf.GetEnv(tt.logEnv)
			t.Cleanup(func() {
				assert.NoError(t, os.Remove(logFile.Name()))
				assert.NoError(t, conf.SetEnv(t, tt.logEnv, old))
				SetupLoggers()
			})

			assert.NoError(t, conf.SetEnv(t, tt.logEnv, logFile.Name()))
			SetupLoggers()

			msg := uuid.New()
			tt.logSupplier().Info(msg)

			data, err := io.ReadAll(logFile)
			assert.NoError(t, err)
			res := strings.Split(string(data), "\n")
			// msg + new line
			assert.Len(t, res, 2)

			var fields logrus.Fields
			assert.NoError(t, json.Unmarshal([]byte(res[0]), &fields))
			assert.Equal(t, tt.application, fields["application"])
			assert.Equal(t, env, fields["environment"])
			assert.Equal(t, msg, fields["msg"])
			assert.Equal(t, "bill-review", fields["source_app"])
			assert.Equal(t, constants.Version, fields["version"])
			_, err = time.Parse(time.RFC3339Nano, fields["time"].(string))
			assert.NoError(t, err)
		})
	}
}

func TestLoggerFallsBackToStderr(t *testing.T) {
	logger := Logger(logrus.New(), "/this/path/does/not/exist/log.json", "api", "test")
	assert.Equal(t, os.Stderr, testUtils.GetLogger(logger).Out)
}

func TestGetCtxLoggerDefaultsToAPI(t *testing.T) {
	assert.Equal(t, API, GetCtxLogger(context.Background()))
}

func TestSetLoggerFields(t *testing.T) {
	apiLogger := Logger(logrus.New(), "", "api", "test")
	testLogger := test.NewLocal(testUtils.GetLogger(apiLogger))
	ctx := NewCtxLogger(context.Background(), apiLogger)
	_, logger := SetLoggerFields(ctx, logrus.Fields{"session_id": "123456", "order_id": "ORD-1"})

	logger.WithField("test", "entry").Error("test-msg")
	entry := testLogger.LastEntry()

	assert.Equal(t, "test-msg", entry.Message)
	assert.Equal(t, "123456", entry.Data["session_id"])
	assert.Equal(t, "ORD-1", entry.Data["order_id"])
	assert.Equal(t, "entry", entry.Data["test"])
}

func TestWriteWithFields(t *testing.T) {
	tests := []struct {
		name  string
		write func(context.Context, string, logrus.Fields) (context.Context, logrus.FieldLogger)
		level logrus.Level
	}{
		{"error", WriteErrorWithFields, logrus.ErrorLevel},
		{"warn", WriteWarnWithFields, logrus.WarnLevel},
		{"info", WriteInfoWithFields, logrus.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiLogger := Logger(logrus.New(), "", "api", "test")
			testLogger := test.NewLocal(testUtils.GetLogger(apiLogger))
			ctx := NewCtxLogger(context.Background(), apiLogger)

			resultCtx, resultLogger := tt.write(ctx, "test-msg", logrus.Fields{"key1": "val1", "key2": "val2"})
			entry := testLogger.LastEntry()

			assert.Equal(t, "test-msg", entry.Message)
			assert.Equal(t, "val1", entry.Data["key1"])
			assert.Equal(t, "val2", entry.Data["key2"])
			assert.Equal(t, tt.level, entry.Level)

			// verify logger retains fields
			resultLogger.Error("new-test")
			assert.Equal(t, "val1", testLogger.LastEntry().Data["key1"])

			// verify logger set in ctx retains fields
			GetCtxLogger(resultCtx).Error("newest-test")
			entry = testLogger.LastEntry()
			assert.Equal(t, "newest-test", entry.Message)
			assert.Equal(t, "val1", entry.Data["key1"])
		})
	}
}
