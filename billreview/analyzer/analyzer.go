package analyzer

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/clarity-dx/bill-review/billreview/constants"
)

var ErrNoRateFailures = errors.New("no rate validation failures found")

// LoadError reports a validation file that could not be read or decoded.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %s", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Result is the analysis of one validation_failures file.
type Result struct {
	Timestamp string            `json:"timestamp"`
	Source    string            `json:"source"`
	Summary   Summary           `json:"summary"`
	Rows      []Row             `json:"-"`
	Reports   map[string]string `json:"reports"`
}

// Run parses path, analyzes its rate failures and writes every report to outputDir.
func Run(path, outputDir string, now time.Time, logger logrus.FieldLogger) (*Result, error) {
	p := NewParser(logger)
	if err := p.LoadFile(path); err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	if len(p.ExtractRateFailures()) == 0 {
		return nil, ErrNoRateFailures
	}

	rows := p.Rows()
	agg := NewAggregator(rows)
	res := &Result{
		Timestamp: now.Format(constants.SessionTimestampFormat),
		Source:    path,
		Summary:   agg.Analyze(),
		Rows:      rows,
	}

	reports, err := NewReporter(outputDir, rows, agg, res.Summary, logger).GenerateAllReports(res.Timestamp)
	if err != nil {
		return nil, err
	}
	res.Reports = reports
	return res, nil
}
