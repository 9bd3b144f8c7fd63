package sqlite

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/invoscore/backend/pkg/config"
	"github.com/invoscore/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(cfg config.SQLiteConfig) (*Client, error) {
	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	logger.Info("SQLite client initialized", zap.String("path", cfg.Path))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS assessments (
		id TEXT PRIMARY KEY,
		buyer_id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		model_version TEXT NOT NULL,
		version INTEGER NOT NULL,
		previous_assessment_id TEXT,
		score_value REAL NOT NULL,
		confidence_level TEXT NOT NULL,
		risk_level TEXT NOT NULL,
		status TEXT NOT NULL,
		data_sufficiency TEXT NOT NULL,
		factors TEXT,
		evidence TEXT,
		adjustment_trace TEXT,
		assessed_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_assessments_buyer ON assessments(buyer_id, tenant_id, assessed_at DESC);

	CREATE TABLE IF NOT EXISTS scoring_models (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		version TEXT NOT NULL,
		industry TEXT,
		is_default INTEGER NOT NULL DEFAULT 0,
		min_score REAL NOT NULL,
		max_score REAL NOT NULL,
		factors TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_models_version ON scoring_models(tenant_id, version);

	CREATE TABLE IF NOT EXISTS buyer_profiles (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		legal_name TEXT,
		industry_code TEXT,
		sector TEXT,
		region_code TEXT,
		incorporated_at INTEGER,
		employee_count INTEGER,
		annual_revenue REAL,
		website_url TEXT,
		tax_id TEXT,
		verified_at INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_profiles_tenant ON buyer_profiles(tenant_id);

	CREATE TABLE IF NOT EXISTS payment_records (
		id TEXT PRIMARY KEY,
		buyer_id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		amount REAL NOT NULL,
		due_date INTEGER NOT NULL,
		paid_date INTEGER,
		days_late INTEGER NOT NULL DEFAULT 0,
		on_time INTEGER NOT NULL DEFAULT 1
	);
	CREATE INDEX IF NOT EXISTS idx_payments_buyer ON payment_records(buyer_id, tenant_id, due_date DESC);

	CREATE TABLE IF NOT EXISTS industry_risk_profiles (
		id TEXT PRIMARY KEY,
		industry_code TEXT UNIQUE NOT NULL,
		sector TEXT,
		seasonality_impact REAL,
		supply_chain_risk REAL,
		working_capital_need REAL,
		competitive_intensity REAL,
		tech_disruption_risk REAL,
		regulatory_burden REAL,
		base_risk_rating REAL,
		default_rate REAL,
		growth_trend REAL,
		benchmark_credit_amount REAL,
		factors TEXT
	);

	CREATE TABLE IF NOT EXISTS regional_risk_adjustments (
		id TEXT PRIMARY KEY,
		region_code TEXT UNIQUE NOT NULL,
		infrastructure_quality REAL,
		labor_availability REAL,
		economic_stability REAL,
		policy_support REAL,
		disaster_exposure REAL,
		risk_level REAL
	);

	CREATE TABLE IF NOT EXISTS credit_limits (
		id TEXT PRIMARY KEY,
		buyer_id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		assessment_id TEXT,
		approved_limit REAL NOT NULL,
		temporary_increase REAL,
		temporary_expires_at INTEGER,
		current_utilization REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		calculation_method TEXT,
		review_date INTEGER NOT NULL,
		expires_at INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_limits_buyer ON credit_limits(buyer_id, tenant_id, status);
	CREATE INDEX IF NOT EXISTS idx_limits_review ON credit_limits(tenant_id, review_date);

	CREATE TABLE IF NOT EXISTS credit_limit_history (
		id TEXT PRIMARY KEY,
		credit_limit_id TEXT NOT NULL,
		buyer_id TEXT NOT NULL,
		action TEXT NOT NULL,
		previous_limit REAL,
		new_limit REAL,
		reason TEXT,
		actor_id TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (credit_limit_id) REFERENCES credit_limits(id)
	);
	CREATE INDEX IF NOT EXISTS idx_limit_history ON credit_limit_history(credit_limit_id, created_at);

	CREATE TABLE IF NOT EXISTS credit_limit_approvals (
		id TEXT PRIMARY KEY,
		credit_limit_id TEXT NOT NULL,
		buyer_id TEXT NOT NULL,
		proposed_limit REAL NOT NULL,
		current_limit REAL NOT NULL,
		reason TEXT,
		status TEXT NOT NULL,
		requested_at INTEGER NOT NULL,
		decided_at INTEGER,
		decided_by TEXT,
		FOREIGN KEY (credit_limit_id) REFERENCES credit_limits(id)
	);
	CREATE INDEX IF NOT EXISTS idx_approvals_limit ON credit_limit_approvals(credit_limit_id, status);

	CREATE TABLE IF NOT EXISTS risk_indicators (
		id TEXT PRIMARY KEY,
		buyer_id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		type TEXT NOT NULL,
		risk_level TEXT NOT NULL,
		value REAL NOT NULL,
		threshold REAL NOT NULL,
		trend TEXT,
		confidence REAL,
		status TEXT NOT NULL,
		notes TEXT,
		detected_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_indicators_buyer ON risk_indicators(buyer_id, tenant_id, status);

	CREATE TABLE IF NOT EXISTS payment_terms (
		id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL,
		buyer_id TEXT NOT NULL,
		risk_category TEXT NOT NULL,
		term_days INTEGER NOT NULL,
		early_discount_pct REAL,
		late_fee_pct REAL,
		deposit_pct REAL,
		installments_allowed INTEGER,
		source TEXT NOT NULL,
		review_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_terms_buyer ON payment_terms(organization_id, buyer_id);
	`

	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("Database schema initialized")
	return nil
}
