package main

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "NVDRVCHECK"

// Config is the configuration for a driver check. It is read from flags, then
// NVDRVCHECK_* environment variables, then the config file.
type Config struct {
	BasePath   string        `mapstructure:"base-path"`
	Prefix     string        `mapstructure:"prefix"`
	TargetFile string        `mapstructure:"target-file"`
	Endpoint   string        `mapstructure:"endpoint"` // overrides Query if set
	Query      Query         `mapstructure:"query"`
	DetailsURL string        `mapstructure:"details-url"`
	Timeout    time.Duration `mapstructure:"timeout"`

	Notify   string `mapstructure:"notify"`
	Telegram struct {
		Token string `mapstructure:"token"`
		Chat  string `mapstructure:"chat"`
	} `mapstructure:"telegram"`

	MetricsFile string `mapstructure:"metrics-file"`
	Verbose     bool   `mapstructure:"verbose"`
	LogLevel    string `mapstructure:"log-level"`
	LogJSON     bool   `mapstructure:"log-json"`
}

var notifyStyles = []string{"auto", "toast", "dialog", "console", "telegram", "none"}

// NewFlagSet creates the flags for the command line.
func NewFlagSet() *pflag.FlagSet {
	q := DefaultQuery()
	fs := pflag.NewFlagSet("nvdrvcheck", pflag.ContinueOnError)
	fs.SortFlags = false
	fs.StringP("config", "c", "", "Config file (yaml, toml, or json)")
	fs.StringP("base-path", "b", `C:\Program Files\NVIDIA Corporation\Installer2`, "Directory containing the driver installer folders")
	fs.StringP("prefix", "p", "Display.Driver", "Name prefix of the driver installer folders")
	fs.StringP("target-file", "f", "DisplayDriver.nvi", "Metadata file in the driver installer folder")
	fs.StringP("endpoint", "e", "", "Full driver lookup URL (overrides the --query-* flags)")
	fs.String("query-endpoint", q.Endpoint, "Driver lookup service")
	fs.Int("query-psid", q.ProductFamilyID, "Product series ID")
	fs.Int("query-pfid", q.ProductModelID, "Product ID")
	fs.Int("query-os", q.OSID, "Operating system ID")
	fs.Int("query-lang", q.LanguageCode, "Language code")
	fs.Int("query-whql", q.Certification, "Only look up WHQL-certified drivers (1) or not (0)")
	fs.Int("query-results", q.ResultCount, "Number of results to request")
	fs.String("details-url", "https://www.nvidia.com/en-us/drivers/details/%s/", "Driver download page (%s is replaced with the driver ID)")
	fs.DurationP("timeout", "t", time.Second*4, "Timeout for the driver lookup")
	fs.StringP("notify", "n", "auto", "Notification style ("+strings.Join(notifyStyles, ", ")+")")
	fs.String("telegram-token", "", "Telegram bot token (for --notify=telegram)")
	fs.String("telegram-chat", "", "Telegram chat ID (for --notify=telegram)")
	fs.StringP("metrics-file", "m", "", "Write Prometheus metrics to this file (- for stdout)")
	fs.BoolP("verbose", "v", false, "Verbose logging")
	fs.String("log-level", "", "Log level (overrides --verbose)")
	fs.Bool("log-json", false, "Log JSON lines instead of text")
	return fs
}

// LoadConfig parses args and merges them with the environment and the config
// file (which is read from fs). If help was requested, pflag.ErrHelp is
// returned.
func LoadConfig(fs afero.Fs, flags *pflag.FlagSet, args []string) (Config, error) {
	var c Config
	if err := flags.Parse(args); err != nil {
		return c, err
	}
	if flags.NArg() != 0 {
		return c, fmt.Errorf("unexpected arguments: %q", flags.Args())
	}

	v := viper.New()
	v.SetFs(fs)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" || err != nil {
			return
		}
		err = v.BindPFlag(configKey(f.Name), f)
	})
	if err != nil {
		return c, fmt.Errorf("bind flags: %w", err)
	}

	if fn, _ := flags.GetString("config"); fn != "" {
		v.SetConfigFile(fn)
		if err := v.ReadInConfig(); err != nil {
			return c, fmt.Errorf("read config %q: %w", fn, err)
		}
	}

	if err := v.Unmarshal(&c); err != nil {
		return c, fmt.Errorf("parse config: %w", err)
	}
	return c, c.Validate()
}

// configKey converts a flag name into a config key (query-pfid -> query.pfid).
func configKey(flag string) string {
	for _, p := range []string{"query-", "telegram-"} {
		if strings.HasPrefix(flag, p) {
			return strings.TrimSuffix(p, "-") + "." + strings.TrimPrefix(flag, p)
		}
	}
	return flag
}

func (c Config) Validate() error {
	var errs []error
	if c.BasePath == "" {
		errs = append(errs, errors.New("base-path must not be empty"))
	}
	if c.Prefix == "" {
		errs = append(errs, errors.New("prefix must not be empty"))
	}
	if c.TargetFile == "" {
		errs = append(errs, errors.New("target-file must not be empty"))
	}
	if _, err := c.LookupURL(); err != nil {
		errs = append(errs, err)
	}
	if !strings.Contains(c.DetailsURL, "%s") {
		errs = append(errs, fmt.Errorf("details-url %q must contain %%s", c.DetailsURL))
	} else if u, err := url.Parse(strings.ReplaceAll(c.DetailsURL, "%s", "0")); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, fmt.Errorf("details-url %q must be a http(s) url", c.DetailsURL))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %s", c.Timeout))
	}
	var ok bool
	for _, s := range notifyStyles {
		ok = ok || s == c.Notify
	}
	if !ok {
		errs = append(errs, fmt.Errorf("notify must be one of %s, got %q", strings.Join(notifyStyles, ", "), c.Notify))
	}
	if c.Notify == "telegram" && (c.Telegram.Token == "" || c.Telegram.Chat == "") {
		errs = append(errs, errors.New("telegram-token and telegram-chat are required for telegram notifications"))
	}
	if c.LogLevel != "" {
		if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
			errs = append(errs, fmt.Errorf("log-level: %w", err))
		}
	}
	return errors.Join(errs...)
}

// LookupURL returns the driver lookup URL.
func (c Config) LookupURL() (string, error) {
	if c.Endpoint == "" {
		return c.Query.URL()
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint %q: %w", c.Endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("parse endpoint %q: unsupported scheme %q", c.Endpoint, u.Scheme)
	}
	return c.Endpoint, nil
}

// Target returns what to check.
func (c Config) Target() (Target, error) {
	u, err := c.LookupURL()
	if err != nil {
		return Target{}, err
	}
	return Target{
		BasePath:   c.BasePath,
		NamePrefix: c.Prefix,
		TargetFile: c.TargetFile,
		LookupURL:  u,
		DetailsURL: c.DetailsURL,
	}, nil
}
