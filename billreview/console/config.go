package console

import (
	"os"
	"path/filepath"

	"github.com/clarity-dx/bill-review/conf"
)

// Config locates the console's working directories.
type Config struct {
	UploadDir string `conf:"CONSOLE_UPLOAD_DIR"`
	OutputDir string `conf:"REPORT_OUTPUT_DIR" conf_default:"./output"`
	LogDir    string `conf:"VALIDATION_LOG_DIR" conf_default:"./validation_logs"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	if err := conf.Checkout(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = filepath.Join(os.TempDir(), "rate_validator_uploads")
	}
	return cfg, nil
}
