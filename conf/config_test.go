package conf

import (
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// Point conf at the fixture env file so the tests run against a loaded config.
func TestMain(m *testing.M) {
	state = configgood
	envVars = setup("testdata")
	os.Exit(m.Run())
}

func TestGetEnv(t *testing.T) {
	type args struct {
		key string
	}
	tests := []struct {
		name string
		args args
		want string
	}{
		{"Single Value", args{"TEST_HELLO"}, "world"},
		{"Multi-value separated by commas", args{"TEST_LIST"}, "One,Two,Three,Four"},
		{"Path", args{"TEST_SOMEPATH"}, "../../FAKE/PATH"},
		{"Number", args{"TEST_NUM"}, "1234"},
		{"Boolean", args{"TEST_BOOL"}, "true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetEnv(tt.args.key); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("GetEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvFallsBackToEnvironment(t *testing.T) {
	t.Setenv("TEST_FROM_ENVIRONMENT", "present")
	assert.Equal(t, "present", GetEnv("TEST_FROM_ENVIRONMENT"))
}

func TestSetEnv(t *testing.T) {
	assert.NoError(t, SetEnv(t, "TEST_SOMEPATH", "../somepath"))
	assert.Equal(t, "../somepath", GetEnv("TEST_SOMEPATH"))
}

func TestUnsetEnv(t *testing.T) {
	assert.NoError(t, UnsetEnv(t, "TEST_HELLO"))
	assert.Equal(t, "", GetEnv("TEST_HELLO"))
	assert.Equal(t, "", os.Getenv("TEST_HELLO"))
}

func Test_setup(t *testing.T) {
	v := setup("testdata")
	assert.Equal(t, "true", v.GetString("TEST"))
}

func Test_findEnv(t *testing.T) {
	tests := []struct {
		name     string
		location []string
		want     bool
		wantLoc  string
	}{
		{"First location exists", []string{"testdata", "FAKE"}, true, "testdata"},
		{"Second location exists", []string{"FAKE", "testdata"}, true, "testdata"},
		{"Neither location exists", []string{"FAKE", "FAKE"}, false, ""},
		{"No locations", nil, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, loc := findEnv(tt.location)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantLoc, loc)
		})
	}
}

func TestLookupEnv(t *testing.T) {
	val, ok := LookupEnv("TEST_DOESNOTEXIST")
	assert.False(t, ok)
	assert.Empty(t, val)

	val, ok = LookupEnv("TEST_NUM")
	assert.True(t, ok)
	assert.Equal(t, "1234", val)
}

type checkoutConfig struct {
	Hello    string        `conf:"TEST_HELLO_CHECKOUT" conf_default:"hi"`
	Num      int           `conf:"TEST_NUM"`
	Enabled  bool          `conf:"TEST_BOOL"`
	List     []string      `conf:"TEST_LIST"`
	Timeout  time.Duration `conf:"TEST_TIMEOUT" conf_default:"5s"`
	Untagged string
}

func TestCheckout(t *testing.T) {
	var cfg checkoutConfig
	assert.NoError(t, Checkout(&cfg))

	assert.Equal(t, "hi", cfg.Hello)
	assert.Equal(t, 1234, cfg.Num)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, []string{"One", "Two", "Three", "Four"}, cfg.List)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Empty(t, cfg.Untagged)
}

func TestCheckoutRequiresPointer(t *testing.T) {
	var cfg checkoutConfig
	assert.Error(t, Checkout(cfg))
}

func TestCheckoutEmptyValueUsesDefault(t *testing.T) {
	assert.NoError(t, os.Setenv("TEST_TIMEOUT", ""))
	defer os.Unsetenv("TEST_TIMEOUT")

	var cfg checkoutConfig
	assert.NoError(t, Checkout(&cfg))
	assert.Equal(t, 5*time.Second, cfg.Timeout)
}
