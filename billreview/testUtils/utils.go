package testUtils

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/otiai10/copy"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/clarity-dx/bill-review/conf"
)

// CtxMatcher allow us to validate that the caller supplied a context.Context argument
// See: https://github.com/stretchr/testify/issues/519
var CtxMatcher = mock.MatchedBy(func(ctx context.Context) bool { return true })

func setEnv(why, key, value string) {
	if err := conf.SetEnv(&testing.T{}, key, value); err != nil {
		log.Printf("Error %s env value %s to %s\n", why, key, value)
	}
}

// SetAndRestoreEnvKey replaces the current value of the env var key,
// returning a function which can be used to restore the original value.
// A key that was not set beforehand is unset again on restore.
func SetAndRestoreEnvKey(key, value string) func() {
	originalValue, found := conf.LookupEnv(key)
	setEnv("setting", key, value)
	return func() {
		if !found {
			if err := conf.UnsetEnv(&testing.T{}, key); err != nil {
				log.Printf("Error unsetting env value %s\n", key)
			}
			return
		}
		setEnv("restoring", key, originalValue)
	}
}

// CopyToTemporaryDirectory copies all of the content found at src into a temporary directory.
// The path to the temporary directory is returned along with a function that can be called to clean up the data.
func CopyToTemporaryDirectory(t *testing.T, src string) (string, func()) {
	newPath, err := os.MkdirTemp("", "*")
	if err != nil {
		t.Fatalf("Failed to create temporary directory %s", err.Error())
	}

	if err = copy.Copy(src, newPath); err != nil {
		t.Fatalf("Failed to copy contents from %s to %s %s", src, newPath, err.Error())
	}

	cleanup := func() {
		err := os.RemoveAll(newPath)
		if err != nil {
			log.Printf("Failed to cleanup data %s", err.Error())
		}
	}

	return newPath, cleanup
}

// WriteJSON marshals v into dir/name and returns the full path.
func WriteJSON(t *testing.T, dir, name string, v interface{}) string {
	data, err := json.MarshalIndent(v, "", "  ")
	assert.NoError(t, err)
	path := filepath.Join(dir, name)
	assert.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

// ReadJSON unmarshals the file at path into v.
func ReadJSON(t *testing.T, path string, v interface{}) {
	data, err := os.ReadFile(filepath.Clean(path))
	assert.NoError(t, err)
	assert.NoError(t, json.Unmarshal(data, v))
}

// GetLogger returns the underlying implementation of the field logger
func GetLogger(logger logrus.FieldLogger) *logrus.Logger {
	if entry, ok := logger.(*logrus.Entry); ok {
		return entry.Logger
	}
	// Must be a *logrus.Logger
	return logger.(*logrus.Logger)
}
