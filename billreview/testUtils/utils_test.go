package testUtils

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/clarity-dx/bill-review/conf"
)

func TestSetAndRestoreEnvKeyUnsetsAbsentKey(t *testing.T) {
	const key = "BILL_REVIEW_TEST_ABSENT_KEY"
	assert.NoError(t, conf.UnsetEnv(t, key))

	restore := SetAndRestoreEnvKey(key, "7")
	assert.Equal(t, "7", conf.GetEnv(key))

	restore()
	_, found := conf.LookupEnv(key)
	assert.False(t, found)
}

func TestSetAndRestoreEnvKeyRestoresOriginal(t *testing.T) {
	const key = "BILL_REVIEW_TEST_PRESENT_KEY"
	assert.NoError(t, conf.SetEnv(t, key, "original"))
	defer func() { assert.NoError(t, conf.UnsetEnv(t, key)) }()

	restore := SetAndRestoreEnvKey(key, "replaced")
	assert.Equal(t, "replaced", conf.GetEnv(key))

	restore()
	assert.Equal(t, "original", conf.GetEnv(key))
}
