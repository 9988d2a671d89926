package conf

/*
   This is a package that wraps viper, a package designed to handle config
   files, for the bill review application.

   Local environments look at a local.env file first and fall back to the
   process environment for any key the file does not track. Deployed
   environments ship without the file and only read the environment.

   Assumptions:
   1. The configuration file is an env file
   2. The configuration file, once it is made available to the application,
   will stay immutable during the uptime of the application (exception is test)
*/

import (
	"fmt"
	"os"
	"reflect"
	"testing"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// An instance of the viper struct containing the conf information. Only made
// accessible through public functions GetEnv, SetEnv, etc.
var envVars *viper.Viper

// Tracks whether a config file was found and parsed.
const (
	configgood    uint8 = 0
	configbad     uint8 = 1
	noconfigfound uint8 = 2
)

var state uint8 = configgood

func setup(dir string) *viper.Viper {
	var v = viper.New()
	v.SetConfigName("local")
	v.SetConfigType("env")
	v.AddConfigPath(dir)

	if err := v.ReadInConfig(); err != nil {
		state = configbad
	}

	return v
}

func init() {
	// Possible config file locations, most specific first.
	locations := []string{
		"./shared_files/decrypted",
		".",
	}
	if dir, ok := os.LookupEnv("BILL_REVIEW_CONFIG_DIR"); ok && dir != "" {
		locations = append([]string{dir}, locations...)
	}

	if success, loc := findEnv(locations); success {
		envVars = setup(loc)
	} else {
		envVars = viper.New()
		state = noconfigfound
	}
}

// findEnv walks the candidate directories and returns the first one holding a local.env file.
func findEnv(location []string) (bool, string) {
	if len(location) == 0 {
		return false, ""
	}

	if _, err := os.Stat(location[0] + "/local.env"); err == nil {
		return true, location[0]
	}

	return findEnv(location[1:])
}

// GetEnv retrieves the value stored in conf. If it does not exist
// "" empty string is returned.
func GetEnv(key string) string {
	if state == configgood {
		value := envVars.GetString(key)

		// Even if the config file is loaded, a key it doesn't track
		// may still live in the environment.
		if value == "" {
			var found bool
			if value, found = os.LookupEnv(key); found {
				envVars.Set(key, value)
			}
		}

		return value
	}

	return os.Getenv(key)
}

// LookupEnv augments os.LookupEnv to look in the viper struct first.
func LookupEnv(key string) (string, bool) {
	if state == configgood {
		if value := envVars.GetString(key); value != "" {
			return value, true
		}
		if v, exist := os.LookupEnv(key); exist {
			envVars.Set(key, v)
			return v, exist
		}
		return "", false
	}

	return os.LookupEnv(key)
}

// SetEnv adds key values into conf. This function should only be used
// either in this package itself or testing. Protect parameter is type *testing.T, and is there
// to ensure developers knowingly use it in the appropriate scope.
func SetEnv(protect *testing.T, key string, value string) error {
	if state == configgood {
		envVars.Set(key, value)
		return nil
	}

	return os.Setenv(key, value)
}

// UnsetEnv "unsets" a variable. Like SetEnv, this should only be used
// either in this package itself or testing.
func UnsetEnv(protect *testing.T, key string) error {
	if state == configgood {
		envVars.Set(key, "")
	}

	// The environment copy has to go as well, GetEnv falls back to it.
	return os.Unsetenv(key)
}

// Checkout populates the struct pointed to by v. Each exported field names its
// key with a `conf:"KEY"` tag and may carry a `conf_default:"value"` tag used
// when the key is unset or empty.
func Checkout(v interface{}) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("conf: Checkout requires a pointer to a struct, got %T", v)
	}

	values := make(map[string]interface{})
	rt := rv.Elem().Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		key, ok := field.Tag.Lookup("conf")
		if !ok || key == "" || key == "-" {
			continue
		}

		if value, found := LookupEnv(key); found && value != "" {
			values[key] = value
		} else if def, hasDefault := field.Tag.Lookup("conf_default"); hasDefault {
			values[key] = def
		}
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "conf",
		WeaklyTypedInput: true,
		Result:           v,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return err
	}

	return decoder.Decode(values)
}
