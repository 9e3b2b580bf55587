// Package config defines the data structures related to configuration and
// includes functions for loading and parsing the config.
package config

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/iwvelando/billing-forecast/pkg/constants"
	"github.com/iwvelando/billing-forecast/pkg/datetime"
	"github.com/iwvelando/billing-forecast/pkg/domain"
	"github.com/iwvelando/billing-forecast/pkg/rules"
)

// DateLayout is the format expected in config files and is also the output
// date format.
const DateLayout = constants.DateLayout

// Configuration holds all configuration for billing-forecast.
type Configuration struct {
	Rules         rules.Settings      `yaml:"rules,omitempty" mapstructure:"rules"`
	Billing       BillingConfig       `yaml:"billing,omitempty" mapstructure:"billing"`
	Input         InputConfig         `yaml:"input,omitempty" mapstructure:"input"`
	ClientHistory ClientHistoryConfig `yaml:"clientHistory,omitempty" mapstructure:"clientHistory"`
	Logging       LoggingConfig       `yaml:"logging,omitempty" mapstructure:"logging"`
	Output        OutputConfig        `yaml:"output,omitempty" mapstructure:"output"`
	Tracing       TracingConfig       `yaml:"tracing,omitempty" mapstructure:"tracing"`
}

// BillingConfig selects how a run is shaped.
type BillingConfig struct {
	Mode    string `yaml:"mode,omitempty" mapstructure:"mode"`       // Contable, Financiera
	Segment string `yaml:"segment,omitempty" mapstructure:"segment"` // all, pipeline
	Today   string `yaml:"today,omitempty" mapstructure:"today"`     // optional fixed reference date
	Workers int    `yaml:"workers,omitempty" mapstructure:"workers"`
}

// InputConfig points at the opportunity list.
type InputConfig struct {
	OpportunitiesFile string `yaml:"opportunitiesFile,omitempty" mapstructure:"opportunitiesFile"`
}

// ClientHistoryConfig selects the historical client store used to backfill
// missing lead times and payment terms.
type ClientHistoryConfig struct {
	Backend string      `yaml:"backend,omitempty" mapstructure:"backend"` // none, sqlite, bolt
	Path    string      `yaml:"path,omitempty" mapstructure:"path"`
	Redis   RedisConfig `yaml:"redis,omitempty" mapstructure:"redis"`
}

// RedisConfig enables the lookup cache when Address is set.
type RedisConfig struct {
	Address  string `yaml:"address,omitempty" mapstructure:"address"`
	Password string `yaml:"password,omitempty" mapstructure:"password"`
	DB       int    `yaml:"db,omitempty" mapstructure:"db"`
	TTL      string `yaml:"ttl,omitempty" mapstructure:"ttl"`
}

// LoggingConfig holds logging configuration options
type LoggingConfig struct {
	Level      string `yaml:"level,omitempty" mapstructure:"level"`           // debug, info, warn, error
	Format     string `yaml:"format,omitempty" mapstructure:"format"`         // json, console
	OutputFile string `yaml:"outputFile,omitempty" mapstructure:"outputFile"` // optional file output
}

// OutputConfig holds output format configuration options
type OutputConfig struct {
	Format string `yaml:"format,omitempty" mapstructure:"format"` // pretty, csv, json, markdown, html
}

// TracingConfig toggles span creation around forecast runs.
type TracingConfig struct {
	Enabled bool `yaml:"enabled,omitempty" mapstructure:"enabled"`
}

// LoadConfiguration takes a file path as input and loads the YAML-formatted
// configuration there. Environment variables prefixed with BILLING_FORECAST_
// override file values.
func LoadConfiguration(configPath string) (*Configuration, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file, %s", err)
	}
	return decode(v)
}

// LoadConfigurationFromReader loads YAML configuration from r.
func LoadConfigurationFromReader(r io.Reader) (*Configuration, error) {
	v := newViper()
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("error reading config data, %s", err)
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yml")
	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults make the keys known to viper so env-only overrides unmarshal.
	v.SetDefault("billing.mode", string(domain.ModeContable))
	v.SetDefault("billing.segment", constants.SegmentAll)
	v.SetDefault("billing.today", "")
	v.SetDefault("billing.workers", 1)
	v.SetDefault("input.opportunitiesFile", constants.DefaultOpportunitiesFile)
	v.SetDefault("clientHistory.backend", constants.ClientHistoryNone)
	v.SetDefault("clientHistory.path", constants.DefaultClientHistoryPath)
	v.SetDefault("clientHistory.redis.address", "")
	v.SetDefault("clientHistory.redis.password", "")
	v.SetDefault("clientHistory.redis.db", 0)
	v.SetDefault("clientHistory.redis.ttl", constants.DefaultClientCacheTTL)
	v.SetDefault("logging.level", "")
	v.SetDefault("logging.format", "")
	v.SetDefault("logging.outputFile", "")
	v.SetDefault("output.format", "")
	v.SetDefault("tracing.enabled", false)
	return v
}

func decode(v *viper.Viper) (*Configuration, error) {
	var configuration Configuration
	if err := v.Unmarshal(&configuration); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %s", err)
	}
	return &configuration, nil
}

// BusinessRules returns the validated rule snapshot for a run: the defaults
// overlaid with the rules section. The error wraps rules.ErrInvalidRules.
func (c *Configuration) BusinessRules() (rules.BusinessRules, error) {
	r, err := c.Rules.Apply(rules.Default())
	if err != nil {
		return rules.BusinessRules{}, err
	}
	if err := r.Validate(); err != nil {
		return rules.BusinessRules{}, err
	}
	return r, nil
}

// BillingMode parses billing.mode.
func (c *Configuration) BillingMode() (domain.BillingMode, error) {
	return domain.ParseBillingMode(c.Billing.Mode)
}

// Segment parses billing.segment.
func (c *Configuration) Segment() (domain.Segment, error) {
	return domain.ParseSegment(c.Billing.Segment)
}

// ReferenceDate returns the "today" used to adjust past close dates.
func (c *Configuration) ReferenceDate() (time.Time, error) {
	return c.ReferenceDateWithFixedTime(time.Now())
}

// ReferenceDateWithFixedTime returns billing.today when configured, or the
// civil date of fixedTime otherwise.
func (c *Configuration) ReferenceDateWithFixedTime(fixedTime time.Time) (time.Time, error) {
	if strings.TrimSpace(c.Billing.Today) == "" {
		return datetime.Date(fixedTime), nil
	}
	today, err := datetime.ParseDate(strings.TrimSpace(c.Billing.Today))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid billing.today %q: %w", c.Billing.Today, err)
	}
	return today, nil
}

// CacheTTL parses clientHistory.redis.ttl.
func (c *Configuration) CacheTTL() (time.Duration, error) {
	ttl := strings.TrimSpace(c.ClientHistory.Redis.TTL)
	if ttl == "" {
		ttl = constants.DefaultClientCacheTTL
	}
	d, err := time.ParseDuration(ttl)
	if err != nil {
		return 0, fmt.Errorf("invalid clientHistory.redis.ttl %q: %w", ttl, err)
	}
	return d, nil
}

// ValidateConfiguration performs general validation of the configuration and
// returns warnings. Fatal problems surface from BusinessRules, BillingMode and
// Segment instead.
func (c *Configuration) ValidateConfiguration() []string {
	var warnings []string

	if c.Billing.Today != "" {
		warnings = append(warnings, fmt.Sprintf("billing.today is set; past close dates are adjusted relative to %s instead of the current date", c.Billing.Today))
	}

	if c.Billing.Workers < 1 {
		warnings = append(warnings, fmt.Sprintf("billing.workers is %d; using a single worker", c.Billing.Workers))
	}

	backend := strings.ToLower(strings.TrimSpace(c.ClientHistory.Backend))
	switch backend {
	case "", constants.ClientHistoryNone:
		if c.ClientHistory.Redis.Address != "" {
			warnings = append(warnings, "clientHistory.redis is configured but no client history backend is enabled; the cache is unused")
		}
	case constants.ClientHistorySQLite, constants.ClientHistoryBolt:
		if strings.TrimSpace(c.ClientHistory.Path) == "" {
			warnings = append(warnings, fmt.Sprintf("clientHistory.backend is %s but no path is set; using %s", backend, constants.DefaultClientHistoryPath))
		}
	default:
		warnings = append(warnings, fmt.Sprintf("unknown clientHistory.backend %q (expected %s, %s or %s); opening client history will fail",
			c.ClientHistory.Backend, constants.ClientHistoryNone, constants.ClientHistorySQLite, constants.ClientHistoryBolt))
	}

	if c.Rules.MinLeadTimeWeeks != nil && *c.Rules.MinLeadTimeWeeks > 26 {
		warnings = append(warnings, fmt.Sprintf("rules.minLeadTimeWeeks is %d; every schedule will span more than half a year", *c.Rules.MinLeadTimeWeeks))
	}

	return warnings
}

// Workers returns billing.workers, at least 1.
func (c *Configuration) Workers() int {
	if c.Billing.Workers < 1 {
		return 1
	}
	return c.Billing.Workers
}
