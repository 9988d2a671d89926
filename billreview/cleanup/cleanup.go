package cleanup

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/clarity-dx/bill-review/billreview/constants"
	"github.com/clarity-dx/bill-review/log"
)

const ArchiveDirName = "archive"

var sessionPrefixes = []string{
	constants.PassesFilePrefix,
	constants.FailuresFilePrefix,
	constants.SummaryFilePrefix,
}

// CutoffTime returns the instant before which files are considered expired.
func CutoffTime(now time.Time, thresholdHr int) time.Time {
	return now.Add(-time.Hour * time.Duration(thresholdHr))
}

// SessionTime parses the session timestamp out of a validation log file name.
func SessionTime(name string) (time.Time, bool) {
	base := strings.TrimSuffix(filepath.Base(name), ".json")
	for _, prefix := range sessionPrefixes {
		if !strings.HasPrefix(base, prefix) {
			continue
		}
		t, err := time.ParseInLocation(constants.SessionTimestampFormat, strings.TrimPrefix(base, prefix), time.Local)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}
	return time.Time{}, false
}

// ArchiveSessions moves validation session files older than cutoff from logDir
// into archiveDir. Files that are not session files are left in place.
func ArchiveSessions(logDir, archiveDir string, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(logDir)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to read %s", logDir)
	}

	var (
		moved   int
		lastErr error
	)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ts, ok := SessionTime(entry.Name())
		if !ok || !ts.Before(cutoff) {
			continue
		}
		if moved == 0 {
			if err = os.MkdirAll(archiveDir, os.ModePerm); err != nil {
				return 0, errors.Wrapf(err, "failed to create %s", archiveDir)
			}
		}

		src := filepath.Join(logDir, entry.Name())
		if err = os.Rename(src, filepath.Join(archiveDir, entry.Name())); err != nil {
			log.API.Errorf("Unable to archive %s: %s", src, err)
			lastErr = err
			continue
		}
		moved++
	}

	log.API.WithFields(logrus.Fields{
		"cutoff":      cutoff,
		"files_moved": moved,
	}).Infof("Archived validation sessions from %s to %s", logDir, archiveDir)
	return moved, lastErr
}

// RemoveExpired deletes regular files in dir last modified before cutoff.
func RemoveExpired(dir string, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			log.API.Infof("No files to clean in %s", dir)
			return 0, nil
		}
		return 0, errors.Wrapf(err, "failed to read %s", dir)
	}

	var (
		removed int
		lastErr error
	)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			lastErr = err
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		if err = os.Remove(path); err != nil {
			log.API.Errorf("Unable to remove %s: %s", path, err)
			lastErr = err
			continue
		}
		removed++
	}

	log.API.WithFields(logrus.Fields{
		"cutoff":        cutoff,
		"files_removed": removed,
	}).Infof("Files cleaned from %s", dir)
	return removed, lastErr
}
