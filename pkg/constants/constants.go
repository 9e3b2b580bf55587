// Package constants provides shared constants for the billing-forecast application.
package constants

import "time"

// DateLayout is the calendar date format used for close dates, event dates
// and the optional fixed "today" in configuration.
const DateLayout = "2006-01-02"

// MonthLayout is the format of the monthly buckets used by aggregation and
// is also the output month format.
const MonthLayout = "2006-01"

// AltDateLayout is the day-first date format accepted from spreadsheet exports.
const AltDateLayout = "02/01/2006"

// Scheduling constants
const (
	// DaysPerWeek converts lead time weeks into calendar days
	DaysPerWeek = 7

	// DROffsetDays is the gap between INICIO (or PIA) and DR
	DROffsetDays = 30

	// SATOffsetDays is the gap between FAT and SAT
	SATOffsetDays = 30
)

// Currency constants
const (
	// CurrencyScale is the number of decimal places of the minor currency unit
	CurrencyScale int32 = 2

	// PercentageMultiplier is used for percentage conversions
	PercentageMultiplier = 100
)

// Business rule defaults
const (
	// DefaultMinLeadTimeWeeks is the minimum lead time any opportunity is clamped to
	DefaultMinLeadTimeWeeks = 4

	// DefaultPenaltyFactor applies to every probability other than 60%
	DefaultPenaltyFactor = "0.40"

	// DefaultPenaltyFactorAt60 applies when the probability is exactly 60%
	DefaultPenaltyFactorAt60 = "0.60"

	// PenaltyProbabilityPivot is the probability that selects the 60% penalty factor
	PenaltyProbabilityPivot = "0.60"

	// DefaultPaymentTerms is used when neither the record nor the client history provide one
	DefaultPaymentTerms = "NET 30"

	// FallbackLeadTimeWeeks is used when no amount range matches
	FallbackLeadTimeWeeks = 8
)

// Segment constants
const (
	// SegmentAll forecasts every opportunity that is not yet confirmed
	SegmentAll = "all"

	// SegmentPipeline forecasts only opportunities below the 60% probability pivot
	SegmentPipeline = "pipeline"
)

// Client history backends
const (
	ClientHistoryNone   = "none"
	ClientHistorySQLite = "sqlite"
	ClientHistoryBolt   = "bolt"

	// DefaultClientHistoryPath is the default location of the client history store
	DefaultClientHistoryPath = "data/client_history.db"

	// DefaultClientCacheTTL is how long a cached client lookup stays valid
	DefaultClientCacheTTL = "1h"

	// ClientCacheKeyPrefix prefixes every cached client lookup key
	ClientCacheKeyPrefix = "billing-forecast:client:"
)

// Tracing
const (
	// TracerName identifies spans emitted by the forecast engine
	TracerName = "billing-forecast/forecast"
)

// Company classifications derived from the region code
const (
	CompanyLLC          = "LLC"
	CompanySAPI         = "SAPI"
	CompanyUnclassified = "Sin Clasificar"
)

// Output format constants
const (
	// OutputFormatPretty is the human-readable output format
	OutputFormatPretty = "pretty"

	// OutputFormatCSV is the CSV output format
	OutputFormatCSV = "csv"

	// OutputFormatJSON is the machine-readable run report
	OutputFormatJSON = "json"

	// OutputFormatMarkdown is the markdown run report
	OutputFormatMarkdown = "markdown"

	// OutputFormatHTML is the markdown run report rendered to HTML
	OutputFormatHTML = "html"
)

// Configuration file constants
const (
	// DefaultConfigFile is the default configuration file name
	DefaultConfigFile = "config.yaml"

	// DefaultOpportunitiesFile is the default opportunity input file name
	DefaultOpportunitiesFile = "opportunities.yaml"

	// DefaultServerConfigFile is the default server configuration file name
	DefaultServerConfigFile = "server-config.yaml"

	// EnvPrefix is the prefix for environment overrides, e.g. BILLING_FORECAST_BILLING_MODE
	EnvPrefix = "BILLING_FORECAST"
)

// Server configuration defaults
const (
	// DefaultServerAddress is the default HTTP listen address
	DefaultServerAddress = ":8080"

	// DefaultMaxUploadSizeBytes is the default maximum request size (256 KB)
	DefaultMaxUploadSizeBytes int64 = 256 * 1024

	// MaxUploadSizeCeilingBytes is the largest request size a configuration may allow
	MaxUploadSizeCeilingBytes int64 = 64 * 1024 * 1024

	// DefaultMaxOpportunities is the default cap on opportunities per forecast request
	DefaultMaxOpportunities = 5000

	// DefaultShutdownTimeout bounds graceful shutdown of the HTTP server
	DefaultShutdownTimeout = 10 * time.Second
)
