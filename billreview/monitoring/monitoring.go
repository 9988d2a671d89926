package monitoring

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/newrelic/go-agent/v3/integrations/nrlogrus"
	"github.com/newrelic/go-agent/v3/newrelic"

	"github.com/clarity-dx/bill-review/conf"
	"github.com/clarity-dx/bill-review/log"
)

var (
	a    *apm
	once sync.Once
)

type apm struct {
	App     *newrelic.Application
	enabled bool
}

// WrapHandler instruments h as a New Relic web transaction named after pattern.
// It returns its arguments unchanged when the agent is unavailable.
func (a *apm) WrapHandler(pattern string, h http.HandlerFunc) (string, http.HandlerFunc) {
	if a.App == nil {
		return pattern, h
	}
	p, fn := newrelic.WrapHandleFunc(a.App, pattern, h)
	return p, fn
}

func GetMonitor() *apm {
	once.Do(func() {
		license := conf.GetEnv("NEW_RELIC_LICENSE_KEY")
		a = &apm{App: newApplication(license), enabled: license != ""}
	})
	return a
}

// newApplication starts the agent. Without a license key the agent is created disabled.
func newApplication(license string) *newrelic.Application {
	env := conf.GetEnv("ENVIRONMENT")
	if env == "" {
		env = "local"
	}

	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(fmt.Sprintf("BillReview-%s", env)),
		newrelic.ConfigLicense(license),
		newrelic.ConfigEnabled(license != ""),
		func(cfg *newrelic.Config) {
			cfg.HighSecurity = true
			cfg.Logger = nrlogrus.StandardLogger()
		},
	)
	if err != nil {
		log.API.Errorf("Failed to instantiate New Relic application: %s", err)
		return nil
	}
	return app
}
