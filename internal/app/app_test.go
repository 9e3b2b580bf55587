package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/iwvelando/billing-forecast/internal/clienthistory"
	"github.com/iwvelando/billing-forecast/internal/config"
	"github.com/iwvelando/billing-forecast/pkg/datetime"
	"github.com/iwvelando/billing-forecast/pkg/domain"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.LoggingConfig
		override string
		wantErr  bool
	}{
		{name: "defaults", cfg: config.LoggingConfig{}},
		{name: "console debug", cfg: config.LoggingConfig{Level: "debug", Format: "console"}},
		{name: "override wins", cfg: config.LoggingConfig{Level: "bogus"}, override: "warn"},
		{name: "invalid level", cfg: config.LoggingConfig{Level: "loud"}, wantErr: true},
		{name: "invalid format", cfg: config.LoggingConfig{Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.cfg, tt.override)
			if tt.wantErr {
				if err == nil {
					t.Errorf("NewLogger() expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewLogger() unexpected error: %v", err)
			}
			_ = logger.Sync()
		})
	}
}

func TestNewLoggerOutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "billing.log")
	logger, err := NewLogger(config.LoggingConfig{Level: "info", OutputFile: path}, "")
	if err != nil {
		t.Fatalf("NewLogger() unexpected error: %v", err)
	}
	logger.Info("hello", zap.String("op", "test"))
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "hello") {
		t.Errorf("log file = %q, expected the logged message", data)
	}
}

func loadConfig(t *testing.T, yaml string) *config.Configuration {
	t.Helper()
	conf, err := config.LoadConfigurationFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadConfigurationFromReader() error = %v", err)
	}
	return conf
}

func TestParams(t *testing.T) {
	conf := loadConfig(t, `
rules:
  minLeadTimeWeeks: 6
billing:
  mode: financiera
  segment: pipeline
  today: "2025-03-01"
  workers: 3
`)

	p, err := Params(conf)
	if err != nil {
		t.Fatalf("Params() error = %v", err)
	}
	if p.Mode != domain.ModeFinanciera || p.Segment != domain.SegmentPipeline {
		t.Errorf("Params() = %s/%s, expected Financiera/pipeline", p.Mode, p.Segment)
	}
	if p.Rules.MinLeadTimeWeeks != 6 || p.Workers != 3 {
		t.Errorf("Params() = min lead %d workers %d, expected 6 and 3", p.Rules.MinLeadTimeWeeks, p.Workers)
	}
	if !p.Today.Equal(datetime.MustParseTime(datetime.DateLayout, "2025-03-01")) {
		t.Errorf("Params().Today = %v, expected 2025-03-01", p.Today)
	}
}

func TestParamsErrors(t *testing.T) {
	tests := map[string]string{
		"rules":   "rules:\n  minLeadTimeWeeks: 0\n",
		"mode":    "billing:\n  mode: Mixed\n",
		"segment": "billing:\n  segment: won\n",
		"today":   "billing:\n  today: tomorrow\n",
	}
	for name, yaml := range tests {
		if _, err := Params(loadConfig(t, yaml)); err == nil {
			t.Errorf("%s: Params() expected error but got none", name)
		}
	}
}

func TestOpenClientHistory(t *testing.T) {
	disabled := loadConfig(t, "clientHistory:\n  backend: none\n")
	store, err := OpenClientHistory(zap.NewNop(), disabled)
	if err != nil || store != nil {
		t.Fatalf("OpenClientHistory(none) = %v, %v, expected nil store", store, err)
	}

	path := filepath.Join(t.TempDir(), "clients.db")
	bolt := loadConfig(t, "clientHistory:\n  backend: bolt\n  path: "+path+"\n")
	store, err = OpenClientHistory(zap.NewNop(), bolt)
	if err != nil {
		t.Fatalf("OpenClientHistory(bolt) error = %v", err)
	}
	if _, ok := store.(*clienthistory.BoltStore); !ok {
		t.Errorf("OpenClientHistory(bolt) = %T, expected *clienthistory.BoltStore", store)
	}
	LogStats(context.Background(), zap.NewNop(), store)
	_ = store.Close()

	cached := loadConfig(t, "clientHistory:\n  backend: bolt\n  path: "+path+"\n  redis:\n    address: 127.0.0.1:1\n    ttl: 5m\n")
	store, err = OpenClientHistory(zap.NewNop(), cached)
	if err != nil {
		t.Fatalf("OpenClientHistory(bolt+redis) error = %v", err)
	}
	if _, ok := store.(*clienthistory.RedisCache); !ok {
		t.Errorf("OpenClientHistory(bolt+redis) = %T, expected *clienthistory.RedisCache", store)
	}
	_ = store.Close()

	badTTL := loadConfig(t, "clientHistory:\n  backend: bolt\n  path: "+path+"\n  redis:\n    address: 127.0.0.1:1\n    ttl: soon\n")
	if _, err := OpenClientHistory(zap.NewNop(), badTTL); err == nil {
		t.Errorf("OpenClientHistory() with invalid ttl expected error")
	}
}

type failingStore struct{ clienthistory.Store }

func (failingStore) Record(context.Context, clienthistory.Project) error {
	return errors.New("disk full")
}

func TestRecordHistoryStopsOnFailure(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	confirmed := domain.Opportunity{
		ID:          "OPP-1",
		Client:      "Acme",
		BU:          domain.BUFCT,
		Amount:      decimal.NewFromInt(1000),
		Probability: decimal.NewFromInt(1),
		CloseDate:   datetime.MustParseTime(datetime.DateLayout, "2025-01-10"),
	}

	n, err := RecordHistory(context.Background(), zap.New(core), failingStore{}, []domain.Opportunity{confirmed})
	if err == nil || n != 0 {
		t.Fatalf("RecordHistory() = %d, %v, expected a failure with nothing recorded", n, err)
	}
	if got := logs.FilterMessage("recorded confirmed opportunities").Len(); got != 0 {
		t.Errorf("success logged %d times after a failed record", got)
	}
	if got := logs.FilterMessage("failed to record client history").Len(); got != 1 {
		t.Errorf("failure logged %d times, expected 1", got)
	}
}

func TestRecordHistoryWithoutStore(t *testing.T) {
	n, err := RecordHistory(context.Background(), zap.NewNop(), nil, nil)
	if err != nil || n != 0 {
		t.Errorf("RecordHistory(nil store) = %d, %v, expected 0, nil", n, err)
	}
}
