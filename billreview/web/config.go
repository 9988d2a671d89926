package web

import (
	"net/http"
	"time"

	"github.com/clarity-dx/bill-review/conf"
)

type Config struct {
	APIPort            int      `conf:"API_PORT" conf_default:"5000"`
	ConsolePort        int      `conf:"CONSOLE_PORT" conf_default:"5001"`
	CORSAllowedOrigins []string `conf:"CORS_ALLOWED_ORIGINS" conf_default:"http://localhost:3000"`
	LogDir             string   `conf:"VALIDATION_LOG_DIR" conf_default:"./validation_logs"`
	ReportDir          string   `conf:"REPORT_OUTPUT_DIR" conf_default:"./output"`

	ReadTimeoutSec  int `conf:"API_READ_TIMEOUT" conf_default:"10"`
	WriteTimeoutSec int `conf:"API_WRITE_TIMEOUT" conf_default:"60"`
	IdleTimeoutSec  int `conf:"API_IDLE_TIMEOUT" conf_default:"120"`
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := conf.Checkout(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewServer returns a server for h using the configured timeouts.
func (cfg *Config) NewServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(cfg.IdleTimeoutSec) * time.Second,
	}
}
