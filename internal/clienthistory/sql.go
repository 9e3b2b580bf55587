package clienthistory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/iwvelando/billing-forecast/pkg/constants"
)

type projectRow struct {
	ID            uint   `gorm:"primaryKey"`
	ClientName    string `gorm:"not null;uniqueIndex:idx_client_project_close;index"`
	ProjectName   string `gorm:"not null;uniqueIndex:idx_client_project_close"`
	BU            string
	Amount        float64
	CloseDate     string `gorm:"not null;uniqueIndex:idx_client_project_close"`
	LeadTime      *int
	PaymentTerms  string
	Probability   float64
	PaidInAdvance float64
	CreatedAt     time.Time
}

func (projectRow) TableName() string {
	return "historical_projects"
}

// SQLStore keeps the history in the historical_projects table of a SQLite
// database.
type SQLStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// OpenSQLStore opens (and migrates) the database at dsn. A plain file path
// gets its parent directory created.
func OpenSQLStore(logger *zap.Logger, dsn string) (*SQLStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(dsn); dir != "." && filepath.Ext(dsn) != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir client history path: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open client history: %w", err)
	}
	if err := db.AutoMigrate(&projectRow{}); err != nil {
		return nil, fmt.Errorf("migrate client history: %w", err)
	}

	logger.Debug("client history opened",
		zap.String("op", "clienthistory.OpenSQLStore"),
		zap.String("dsn", dsn),
	)
	return &SQLStore{db: db, logger: logger}, nil
}

// Record inserts or replaces a project.
func (s *SQLStore) Record(ctx context.Context, p Project) error {
	if err := p.validate(); err != nil {
		return err
	}
	row := projectRow{
		ClientName:    p.ClientName,
		ProjectName:   p.ProjectName,
		BU:            p.BU,
		Amount:        p.Amount.InexactFloat64(),
		CloseDate:     p.CloseDate.Format(constants.DateLayout),
		PaymentTerms:  p.PaymentTerms,
		Probability:   p.Probability.InexactFloat64(),
		PaidInAdvance: p.PaidInAdvance.InexactFloat64(),
	}
	if p.LeadTimeWeeks > 0 {
		lt := p.LeadTimeWeeks
		row.LeadTime = &lt
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "client_name"}, {Name: "project_name"}, {Name: "close_date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"bu", "amount", "lead_time", "payment_terms", "probability", "paid_in_advance",
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("record project %q for %q: %w", p.ProjectName, p.ClientName, err)
	}
	return nil
}

// Lookup implements Store.
func (s *SQLStore) Lookup(ctx context.Context, client string, amount decimal.Decimal) (Defaults, bool, error) {
	db := s.db.WithContext(ctx)

	var projects int64
	if err := db.Model(&projectRow{}).Where("client_name = ?", client).Count(&projects).Error; err != nil {
		return Defaults{}, false, fmt.Errorf("count projects of %q: %w", client, err)
	}
	if projects == 0 {
		return Defaults{}, false, nil
	}
	d := Defaults{Projects: int(projects)}

	leadQuery := db.Model(&projectRow{}).
		Select("AVG(lead_time)").
		Where("client_name = ? AND lead_time IS NOT NULL", client)
	if amount.IsPositive() {
		lo, hi := similarRange(amount)
		leadQuery = leadQuery.Where("amount BETWEEN ? AND ?", lo.InexactFloat64(), hi.InexactFloat64())
	}
	var avg sql.NullFloat64
	if err := leadQuery.Row().Scan(&avg); err != nil {
		return Defaults{}, false, fmt.Errorf("average lead time of %q: %w", client, err)
	}
	if avg.Valid {
		d.LeadTimeWeeks = roundWeeks(avg.Float64)
	}

	var terms string
	err := db.Model(&projectRow{}).
		Select("payment_terms").
		Where("client_name = ? AND payment_terms <> ''", client).
		Group("payment_terms").
		Order("COUNT(*) DESC, MAX(close_date) DESC").
		Limit(1).
		Row().Scan(&terms)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Defaults{}, false, fmt.Errorf("payment terms of %q: %w", client, err)
	}
	d.PaymentTerms = terms

	return d, d.LeadTimeWeeks > 0 || d.PaymentTerms != "", nil
}

// Stats implements Store.
func (s *SQLStore) Stats(ctx context.Context) (Stats, error) {
	db := s.db.WithContext(ctx)
	var projects, clients int64
	if err := db.Model(&projectRow{}).Count(&projects).Error; err != nil {
		return Stats{}, fmt.Errorf("count projects: %w", err)
	}
	if err := db.Model(&projectRow{}).Distinct("client_name").Count(&clients).Error; err != nil {
		return Stats{}, fmt.Errorf("count clients: %w", err)
	}
	return Stats{Clients: int(clients), Projects: int(projects)}, nil
}

// Close implements Store.
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
