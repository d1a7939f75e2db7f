package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"quickeval/internal/captcha"
	"quickeval/internal/components/telemetry"
	"quickeval/internal/portal"
	"quickeval/pkg/configutil"
	"time"

	"github.com/go-playground/validator/v10"
)

const configName = "quickeval.json5"

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config holds every tunable of the tool. Credentials are deliberately absent,
// they are always prompted for.
type Config struct {
	BaseUrl           string  `json:"base_url" validate:"required,url"`
	OcrUrl            string  `json:"ocr_url" validate:"required,url"`
	OcrType           string  `json:"ocr_type" validate:"required"`
	TimeoutSeconds    int     `json:"timeout_seconds" validate:"gte=1"`
	RequestsPerSecond float64 `json:"requests_per_second" validate:"gte=0"`
	LoginAttempts     int     `json:"login_attempts" validate:"gte=1,lte=10"`
	LoginRetryDelayMs int     `json:"login_retry_delay_ms" validate:"gte=0"`
	PhaseDelayMs      int     `json:"phase_delay_ms" validate:"gte=0"`
	RecordDelayMs     int     `json:"record_delay_ms" validate:"gte=0"`
	// Comment replaces the default free text comment when set, the portal
	// accepts at most 500 characters.
	Comment string `json:"comment" validate:"max=500"`
	// HistoryDb is the path of the submission ledger, "-" disables it.
	HistoryDb string           `json:"history_db" validate:"required"`
	Telemetry telemetry.Config `json:"telemetry"`
}

var defaultConfig = Config{
	BaseUrl:           portal.DefaultBaseUrl,
	OcrUrl:            captcha.DefaultUrl,
	OcrType:           captcha.DefaultType,
	TimeoutSeconds:    30,
	RequestsPerSecond: 2,
	LoginAttempts:     portal.DefaultRetryPolicy.Attempts,
	LoginRetryDelayMs: int(portal.DefaultRetryPolicy.Delay / time.Millisecond),
	PhaseDelayMs:      1000,
	RecordDelayMs:     2000,
	HistoryDb:         defaultHistoryPath(),
}

func defaultHistoryPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "quickeval-history.db"
	}
	return filepath.Join(dir, "quickeval", "history.db")
}

// loadConfig reads `path` if given, otherwise the nearest quickeval.json5 up
// from the working directory, over the defaults. A missing file is not an
// error. The non-zero fields of `overrides` (set from flags) win over both.
func loadConfig(path string, overrides Config) (Config, error) {
	var cfg Config
	var err error
	if path != "" {
		cfg, err = configutil.ReadConfig(path, defaultConfig)
	} else {
		cfg, err = configutil.ReadRecursively(configName, defaultConfig)
	}
	if err != nil && !(path == "" && errors.Is(err, os.ErrNotExist)) {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err = configutil.WithOverrides(cfg, overrides)
	if err != nil {
		return Config{}, err
	}
	err = validate.Struct(cfg)
	if err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c Config) timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
