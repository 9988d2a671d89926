package log

import (
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/clarity-dx/bill-review/billreview/constants"
	"github.com/clarity-dx/bill-review/conf"
)

var (
	API        logrus.FieldLogger
	Request    logrus.FieldLogger
	Validation logrus.FieldLogger
	Analyzer   logrus.FieldLogger
)

func init() {
	SetupLoggers()
}

// SetupLoggers (re)builds the package loggers from the current configuration.
func SetupLoggers() {
	env := conf.GetEnv("ENVIRONMENT")
	API = Logger(logrus.New(), conf.GetEnv("API_LOG"), "api", env)
	Request = Logger(logrus.New(), conf.GetEnv("REQUEST_LOG"), "api", env)
	Validation = Logger(logrus.New(), conf.GetEnv("VALIDATION_LOG"), "validation", env)
	Analyzer = Logger(logrus.New(), conf.GetEnv("ANALYZER_LOG"), "analyzer", env)
}

func Logger(logger *logrus.Logger, outputFile string,
	application, environment string) logrus.FieldLogger {

	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
	})

	if outputFile != "" {
		if file, err := os.OpenFile(filepath.Clean(outputFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640); err == nil {
			logger.SetOutput(file)
		} else {
			logger.Infof("Failed to open output file %s. Will use stderr. %s",
				outputFile, err.Error())
		}
	}

	return logger.WithFields(logrus.Fields{
		"application": application,
		"environment": environment,
		"source_app":  "bill-review",
		"version":     constants.Version,
	})
}
