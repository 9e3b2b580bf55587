package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hjson/hjson-go/v4"
	"gopkg.in/yaml.v3"
)

// Opportunity file formats
const (
	FormatYAML  = "yaml"
	FormatJSON  = "json"
	FormatHJSON = "hjson"
)

// OpportunityRecord is one opportunity as it appears in an input file or API
// payload, before backfill and conversion. Optional numeric fields use
// pointers so that "missing" can be told apart from zero.
type OpportunityRecord struct {
	ID            string   `yaml:"id" json:"id"`
	Name          string   `yaml:"name" json:"name"`
	BU            string   `yaml:"bu" json:"bu"`
	Amount        float64  `yaml:"amount" json:"amount"`
	CloseDate     string   `yaml:"closeDate" json:"closeDate"`
	LeadTimeWeeks *int     `yaml:"leadTimeWeeks,omitempty" json:"leadTimeWeeks,omitempty"`
	PaymentTerms  string   `yaml:"paymentTerms,omitempty" json:"paymentTerms,omitempty"`
	Probability   float64  `yaml:"probability" json:"probability"`
	PaidInAdvance *float64 `yaml:"paidInAdvance,omitempty" json:"paidInAdvance,omitempty"`
	Client        string   `yaml:"client,omitempty" json:"client,omitempty"`
	Region        string   `yaml:"region,omitempty" json:"region,omitempty"`
	Company       string   `yaml:"company,omitempty" json:"company,omitempty"`
	GrossMargin   *float64 `yaml:"grossMargin,omitempty" json:"grossMargin,omitempty"`
}

// OpportunityFile is the wrapped form of an opportunity list.
type OpportunityFile struct {
	Opportunities []OpportunityRecord `yaml:"opportunities" json:"opportunities"`
}

// LoadOpportunities reads an opportunity list, choosing the decoder from the
// file extension.
func LoadOpportunities(path string) ([]OpportunityRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read opportunities file: %w", err)
	}
	records, err := DecodeOpportunities(data, DetectFormat(path))
	if err != nil {
		return nil, fmt.Errorf("failed to parse opportunities file %s: %w", path, err)
	}
	return records, nil
}

// DetectFormat maps a file name to an opportunity file format. Unknown
// extensions are treated as YAML.
func DetectFormat(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		return FormatJSON
	case ".hjson":
		return FormatHJSON
	default:
		return FormatYAML
	}
}

// DecodeOpportunities accepts either a bare list of records or an object
// with an "opportunities" list.
func DecodeOpportunities(data []byte, format string) ([]OpportunityRecord, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	var unmarshal func([]byte, interface{}) error
	switch format {
	case FormatJSON:
		unmarshal = json.Unmarshal
	case FormatHJSON:
		unmarshal = hjson.Unmarshal
	case FormatYAML, "":
		unmarshal = yaml.Unmarshal
	default:
		return nil, fmt.Errorf("unsupported opportunities format %q", format)
	}

	var list []OpportunityRecord
	listErr := unmarshal(trimmed, &list)
	if listErr == nil {
		return list, nil
	}

	var wrapped OpportunityFile
	if err := unmarshal(trimmed, &wrapped); err != nil {
		return nil, fmt.Errorf("expected a list of opportunities or an object with an opportunities list: %v; %w", listErr, err)
	}
	return wrapped.Opportunities, nil
}
