package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/invoscore/backend/internal/storage/models"
)

type BuyerProfileRepo struct {
	db *sql.DB
}

func NewBuyerProfileRepo(c *Client) *BuyerProfileRepo {
	return &BuyerProfileRepo{db: c.db}
}

func (r *BuyerProfileRepo) Create(ctx context.Context, p *models.BuyerProfile) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO buyer_profiles (id, tenant_id, legal_name, industry_code, sector,
			region_code, incorporated_at, employee_count, annual_revenue, website_url,
			tax_id, verified_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.TenantID, p.LegalName, p.IndustryCode, p.Sector,
		p.RegionCode, unixPtr(p.IncorporatedAt), nullableInt(p.EmployeeCount),
		nullableFloat(p.AnnualRevenue), p.WebsiteURL, p.TaxID,
		unixPtr(p.VerifiedAt), p.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert buyer profile: %w", err)
	}
	return nil
}

func (r *BuyerProfileRepo) FindByID(ctx context.Context, buyerID, tenantID string) (*models.BuyerProfile, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, legal_name, industry_code, sector, region_code,
			incorporated_at, employee_count, annual_revenue, website_url, tax_id,
			verified_at, created_at
		FROM buyer_profiles WHERE id = ? AND tenant_id = ?`, buyerID, tenantID)

	var p models.BuyerProfile
	var incorporatedAt, verifiedAt, employeeCount sql.NullInt64
	var annualRevenue sql.NullFloat64
	var createdAt int64

	err := row.Scan(&p.ID, &p.TenantID, &p.LegalName, &p.IndustryCode, &p.Sector,
		&p.RegionCode, &incorporatedAt, &employeeCount, &annualRevenue,
		&p.WebsiteURL, &p.TaxID, &verifiedAt, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan buyer profile: %w", err)
	}

	p.IncorporatedAt = timePtr(incorporatedAt)
	p.VerifiedAt = timePtr(verifiedAt)
	p.EmployeeCount = intPtr(employeeCount)
	p.AnnualRevenue = floatPtr(annualRevenue)
	p.CreatedAt = time.Unix(createdAt, 0)
	return &p, nil
}

func nullableInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullableFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
