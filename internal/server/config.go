package server

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/iwvelando/billing-forecast/internal/config"
	"github.com/iwvelando/billing-forecast/pkg/constants"
)

// Config defines runtime parameters for the billing-forecast HTTP server.
type Config struct {
	Address string               `yaml:"address"`
	Limits  Limits               `yaml:"limits"`
	Logging config.LoggingConfig `yaml:"logging"`
	// ForecastConfig optionally points at a billing-forecast configuration
	// whose rules, billing defaults and client history the server uses.
	ForecastConfig  string        `yaml:"forecastConfig"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// Limits bounds what a single forecast request may carry.
type Limits struct {
	// MaxUploadSize caps the request body, JSON or multipart.
	MaxUploadSize ByteSize `yaml:"maxUploadSize"`
	// MaxOpportunities caps the opportunities forecast in one request.
	MaxOpportunities int `yaml:"maxOpportunities"`
}

func (l Limits) withFallbacks() Limits {
	if l.MaxUploadSize <= 0 {
		l.MaxUploadSize = ByteSize(constants.DefaultMaxUploadSizeBytes)
	}
	if l.MaxOpportunities <= 0 {
		l.MaxOpportunities = constants.DefaultMaxOpportunities
	}
	return l
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Address:         constants.DefaultServerAddress,
		Limits:          Limits{}.withFallbacks(),
		ShutdownTimeout: constants.DefaultShutdownTimeout,
	}
}

// LoadConfig loads the server configuration from YAML. If the file does not exist,
// defaults are returned without error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read server config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse server config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate fills unset fields with defaults and rejects limits the server
// cannot honor.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Address) == "" {
		c.Address = constants.DefaultServerAddress
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = constants.DefaultShutdownTimeout
	}
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdownTimeout must not be negative, got %s", c.ShutdownTimeout)
	}
	if c.Limits.MaxOpportunities < 0 {
		return fmt.Errorf("limits.maxOpportunities must not be negative, got %d", c.Limits.MaxOpportunities)
	}
	if int64(c.Limits.MaxUploadSize) > constants.MaxUploadSizeCeilingBytes {
		return fmt.Errorf("limits.maxUploadSize %s exceeds the ceiling of %s",
			c.Limits.MaxUploadSize, ByteSize(constants.MaxUploadSizeCeilingBytes))
	}
	c.Limits = c.Limits.withFallbacks()
	return nil
}

// ByteSize is a byte count written as a plain number or with a K, M or G
// suffix (binary multiples). It decodes from YAML and works as a flag.Value.
type ByteSize int64

var byteUnits = map[string]int64{
	"":   1,
	"B":  1,
	"K":  1 << 10,
	"KB": 1 << 10,
	"M":  1 << 20,
	"MB": 1 << 20,
	"G":  1 << 30,
	"GB": 1 << 30,
}

// ParseByteSize converts a size such as "256K" or "2M" into bytes.
func ParseByteSize(value string) (ByteSize, error) {
	s := strings.ToUpper(strings.TrimSpace(value))
	split := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsDigit(r) })
	if split == -1 {
		split = len(s)
	}
	if split == 0 {
		return 0, fmt.Errorf("invalid size %q", value)
	}

	n, err := strconv.ParseInt(s[:split], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", value, err)
	}
	unit := strings.TrimSpace(s[split:])
	multiplier, ok := byteUnits[unit]
	if !ok {
		return 0, fmt.Errorf("unsupported size unit %q in %q", unit, value)
	}
	if n > math.MaxInt64/multiplier {
		return 0, fmt.Errorf("size %q overflows", value)
	}
	return ByteSize(n * multiplier), nil
}

// String renders the size in the largest unit that divides it exactly.
func (b ByteSize) String() string {
	for _, unit := range []string{"G", "M", "K"} {
		if m := byteUnits[unit]; b > 0 && int64(b)%m == 0 {
			return fmt.Sprintf("%d%s", int64(b)/m, unit)
		}
	}
	return strconv.FormatInt(int64(b), 10)
}

// Set implements flag.Value.
func (b *ByteSize) Set(value string) error {
	size, err := ParseByteSize(value)
	if err != nil {
		return err
	}
	*b = size
	return nil
}

// UnmarshalYAML accepts both integer and suffixed string sizes.
func (b *ByteSize) UnmarshalYAML(node *yaml.Node) error {
	if strings.TrimSpace(node.Value) == "" {
		*b = 0
		return nil
	}
	return b.Set(node.Value)
}
