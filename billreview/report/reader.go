package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"

	"github.com/clarity-dx/bill-review/billreview/constants"
)

// ReadSummaries loads every session summary in dir.
func ReadSummaries(dir string) ([]Summary, error) {
	var summaries []Summary
	err := readAll(dir, constants.SummaryFilePrefix, func(path string, data []byte) error {
		var s Summary
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		summaries = append(summaries, s)
		return nil
	})
	return summaries, err
}

// ReadFailures loads the failure records of every session in dir.
func ReadFailures(dir string) ([]FailureRecord, error) {
	var failures []FailureRecord
	err := readAll(dir, constants.FailuresFilePrefix, func(path string, data []byte) error {
		records, err := DecodeFailures(data)
		if err != nil {
			return err
		}
		failures = append(failures, records...)
		return nil
	})
	return failures, err
}

// DecodeFailures parses the content of a validation_failures file.
func DecodeFailures(data []byte) ([]FailureRecord, error) {
	var records []FailureRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// readAll calls fn for each prefix*.json file in dir, in name order.
func readAll(dir, prefix string, fn func(path string, data []byte) error) error {
	paths, err := filepath.Glob(filepath.Join(dir, prefix+"*.json"))
	if err != nil {
		return err
	}
	sort.Strings(paths)

	for _, p := range paths {
		data, err := os.ReadFile(filepath.Clean(p))
		if err != nil {
			return errors.Wrapf(err, "failed to read %s", p)
		}
		if err = fn(p, data); err != nil {
			return errors.Wrapf(err, "failed to decode %s", p)
		}
	}
	return nil
}
