package config

import (
	"path/filepath"
	"testing"
)

func TestLoadOpportunities(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		expected []string
	}{
		{"YAML wrapped list", "opportunities.yaml", []string{"OPP-100", "OPP-200"}},
		{"JSON bare list", "opportunities.json", []string{"OPP-100"}},
		{"HJSON wrapped list", "opportunities.hjson", []string{"OPP-100", "OPP-300"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := LoadOpportunities(filepath.Join("testdata", tt.file))
			if err != nil {
				t.Fatalf("LoadOpportunities() error = %v", err)
			}
			if len(records) != len(tt.expected) {
				t.Fatalf("LoadOpportunities() returned %d records, expected %d", len(records), len(tt.expected))
			}
			for i, id := range tt.expected {
				if records[i].ID != id {
					t.Errorf("records[%d].ID = %s, expected %s", i, records[i].ID, id)
				}
			}
		})
	}
}

func TestLoadOpportunitiesOptionalFields(t *testing.T) {
	records, err := LoadOpportunities(filepath.Join("testdata", "opportunities.yaml"))
	if err != nil {
		t.Fatalf("LoadOpportunities() error = %v", err)
	}

	first, second := records[0], records[1]
	if first.LeadTimeWeeks == nil || *first.LeadTimeWeeks != 4 {
		t.Errorf("first.LeadTimeWeeks = %v, expected 4", first.LeadTimeWeeks)
	}
	if first.PaidInAdvance != nil {
		t.Errorf("first.PaidInAdvance = %v, expected nil", *first.PaidInAdvance)
	}
	if second.LeadTimeWeeks != nil {
		t.Errorf("second.LeadTimeWeeks = %v, expected nil", *second.LeadTimeWeeks)
	}
	if second.PaidInAdvance == nil || *second.PaidInAdvance != 10000 {
		t.Errorf("second.PaidInAdvance = %v, expected 10000", second.PaidInAdvance)
	}
	if second.CloseDate != "15/02/2025" {
		t.Errorf("second.CloseDate = %s, expected 15/02/2025", second.CloseDate)
	}
	if second.GrossMargin == nil || *second.GrossMargin != 12500 {
		t.Errorf("second.GrossMargin = %v, expected 12500", second.GrossMargin)
	}
}

func TestDecodeOpportunities(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		format  string
		count   int
		wantErr bool
	}{
		{"Empty input", "  ", FormatYAML, 0, false},
		{"YAML bare list", "- id: A\n  bu: FCT\n- id: B\n  bu: ICT\n", FormatYAML, 2, false},
		{"JSON wrapped list", `{"opportunities": [{"id": "A"}]}`, FormatJSON, 1, false},
		{"JSON scalar", `"nope"`, FormatJSON, 0, true},
		{"Unknown format", `[]`, "xml", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := DecodeOpportunities([]byte(tt.data), tt.format)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeOpportunities() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(records) != tt.count {
				t.Errorf("DecodeOpportunities() returned %d records, expected %d", len(records), tt.count)
			}
		})
	}
}

func TestDetectFormat(t *testing.T) {
	tests := map[string]string{
		"pipeline.json":  FormatJSON,
		"pipeline.HJSON": FormatHJSON,
		"pipeline.yml":   FormatYAML,
		"pipeline":       FormatYAML,
	}
	for name, expected := range tests {
		if got := DetectFormat(name); got != expected {
			t.Errorf("DetectFormat(%s) = %s, expected %s", name, got, expected)
		}
	}
}

func TestLoadOpportunitiesMissingFile(t *testing.T) {
	if _, err := LoadOpportunities(filepath.Join("testdata", "missing.yaml")); err == nil {
		t.Errorf("LoadOpportunities() expected error for missing file")
	}
}
