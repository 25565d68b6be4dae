package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	ibErrors "github.com/context-labs/ibtop/internal/errors"
	"github.com/context-labs/ibtop/internal/fabric"
	"github.com/context-labs/ibtop/internal/monitor"
)

// Config is the validated runtime configuration.
type Config struct {
	Interval    time.Duration
	Root        string
	Color       string
	Background  string
	Smoothing   float64
	HistorySize int
	Concurrency int
	CompatFile  string
	Demo        bool
	LogFile     string

	Headless bool
	Count    int
	Format   string
}

const (
	FormatJSON = "json"
	FormatProm = "prom"
	FormatText = "text"
)

func configDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = os.TempDir()
	}
	return filepath.Join(homeDir, ".ibtop")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("interval", defaultInterval)
	v.SetDefault("root", fabric.DefaultRoot)
	v.SetDefault("color", "green")
	v.SetDefault("background", "auto")
	v.SetDefault("smoothing", 0.0)
	v.SetDefault("history_size", monitor.DefaultHistorySize)
	v.SetDefault("concurrency", monitor.DefaultConcurrency)
	v.SetDefault("compat_file", "")
	v.SetDefault("demo", false)
	v.SetDefault("log_file", filepath.Join(configDir(), "ibtop.log"))
	v.SetDefault("headless", false)
	v.SetDefault("count", 0)
	v.SetDefault("format", FormatJSON)
}

// newViper wires defaults, the optional config file and IBTOP_* env vars.
// Flags in fs override all of them when set.
func newViper(fs *pflag.FlagSet, configFile string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("IBTOP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	// Environment names the tool has always honored.
	_ = v.BindEnv("root", "IBTOP_ROOT", "INFINIBAND_PATH")
	_ = v.BindEnv("demo", "IBTOP_DEMO", "IBTOP_FAKE_DATA")

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(configDir())
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, ibErrors.WrapWithCode(err, ibErrors.ErrConfig,
				"Cannot load config file", "Check ~/.ibtop/config.yaml or the --config path")
		}
	}

	if fs != nil {
		for _, name := range []string{"interval", "root", "color", "demo", "headless", "count", "format"} {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(name, f); err != nil {
					return nil, err
				}
			}
		}
	}
	return v, nil
}

// configFromViper validates and clamps the merged settings.
func configFromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		Interval:    v.GetDuration("interval"),
		Root:        v.GetString("root"),
		Color:       strings.ToLower(v.GetString("color")),
		Background:  strings.ToLower(v.GetString("background")),
		Smoothing:   v.GetFloat64("smoothing"),
		HistorySize: v.GetInt("history_size"),
		Concurrency: v.GetInt("concurrency"),
		CompatFile:  v.GetString("compat_file"),
		Demo:        v.GetBool("demo"),
		LogFile:     v.GetString("log_file"),
		Headless:    v.GetBool("headless"),
		Count:       v.GetInt("count"),
		Format:      strings.ToLower(v.GetString("format")),
	}

	// bare integers are milliseconds, matching the old --interval flag
	if ms := v.GetString("interval"); ms != "" && isDigits(ms) {
		cfg.Interval = time.Duration(v.GetInt("interval")) * time.Millisecond
	}
	if cfg.Interval < minInterval {
		cfg.Interval = minInterval
	}
	if cfg.Interval > maxInterval {
		cfg.Interval = maxInterval
	}

	if cfg.Smoothing < 0 || cfg.Smoothing > 1 {
		return cfg, ibErrors.New(ibErrors.ErrConfig,
			fmt.Sprintf("smoothing must be between 0 and 1, got %g", cfg.Smoothing), "Set smoothing: 0 to disable")
	}
	if cfg.Count < 0 {
		return cfg, ibErrors.New(ibErrors.ErrConfig, "count must not be negative", "")
	}
	switch cfg.Format {
	case FormatJSON, FormatProm, FormatText:
	default:
		return cfg, ibErrors.New(ibErrors.ErrConfig,
			fmt.Sprintf("unknown output format %q", cfg.Format), "Use one of: json, prom, text")
	}
	if _, ok := colorMap[cfg.Color]; !ok {
		cfg.Color = "green"
	}
	if cfg.Root == "" {
		cfg.Root = fabric.DefaultRoot
	}
	return cfg, nil
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return s != ""
}
