package models

import "time"

type ConfidenceLevel string

const (
	ConfidenceVeryLow  ConfidenceLevel = "very_low"
	ConfidenceLow      ConfidenceLevel = "low"
	ConfidenceModerate ConfidenceLevel = "moderate"
	ConfidenceHigh     ConfidenceLevel = "high"
	ConfidenceVeryHigh ConfidenceLevel = "very_high"
)

// confidenceRank orders confidence levels from weakest to strongest.
var confidenceRank = map[ConfidenceLevel]int{
	ConfidenceVeryLow:  0,
	ConfidenceLow:      1,
	ConfidenceModerate: 2,
	ConfidenceHigh:     3,
	ConfidenceVeryHigh: 4,
}

func (c ConfidenceLevel) Rank() int {
	return confidenceRank[c]
}

type RiskLevel string

const (
	RiskVeryLow  RiskLevel = "very_low"
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskVeryHigh RiskLevel = "very_high"
	RiskCritical RiskLevel = "critical"
	RiskExtreme  RiskLevel = "extreme"
)

type AssessmentStatus string

const (
	AssessmentFinal      AssessmentStatus = "final"
	AssessmentOverridden AssessmentStatus = "overridden"
	AssessmentSuperseded AssessmentStatus = "superseded"
)

type EvidenceSource struct {
	ID                string
	AssessmentID      string
	SourceType        string
	QualityScore      float64
	CompletenessScore float64
	FreshnessScore    float64
	Weight            float64
	Metadata          map[string]any
	CollectedAt       time.Time
	ExpiresAt         time.Time
}

func (e *EvidenceSource) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

type RiskFactor struct {
	ID              string
	AssessmentID    string
	Name            string
	RawValue        float64
	NormalizedValue float64
	Weight          float64
	Contribution    float64
	ImpactDirection string
	Explanation     string
	SourceTypes     []string
	ErrorNote       string
}

// Assessment is the immutable outcome of one scoring run. Re-scoring a
// buyer creates a new version referencing the previous one; rows are
// never updated in place.
type Assessment struct {
	ID                   string
	BuyerID              string
	TenantID             string
	ModelVersion         string
	Version              int
	PreviousAssessmentID string
	ScoreValue           float64
	ConfidenceLevel      ConfidenceLevel
	RiskLevel            RiskLevel
	Status               AssessmentStatus
	DataSufficiency      string
	Factors              []RiskFactor
	Evidence             []EvidenceSource
	AdjustmentTrace      *AdjustmentTrace
	AssessedAt           time.Time
}

type FactorDefinition struct {
	Name                string
	Weight              float64
	MinValue            float64
	MaxValue            float64
	DefaultValue        float64
	CalculationMethod   string
	SourceTypes         []string
	ExplanationTemplate map[string]string
}

type ScoringModel struct {
	ID        string
	TenantID  string
	Version   string
	Industry  string
	IsDefault bool
	MinScore  float64
	MaxScore  float64
	Factors   []FactorDefinition
	CreatedAt time.Time
}

type BuyerProfile struct {
	ID             string
	TenantID       string
	LegalName      string
	IndustryCode   string
	Sector         string
	RegionCode     string
	IncorporatedAt *time.Time
	EmployeeCount  *int
	AnnualRevenue  *float64
	WebsiteURL     string
	TaxID          string
	VerifiedAt     *time.Time
	CreatedAt      time.Time
}

type PaymentRecord struct {
	ID       string
	BuyerID  string
	TenantID string
	Amount   float64
	DueDate  time.Time
	PaidDate *time.Time
	DaysLate int
	OnTime   bool
}

type IndustryRiskFactor struct {
	Name      string
	RiskScore float64
	Weight    float64
}

type IndustryRiskProfile struct {
	ID                    string
	IndustryCode          string
	Sector                string
	SeasonalityImpact     float64
	SupplyChainRisk       float64
	WorkingCapitalNeed    float64
	CompetitiveIntensity  float64
	TechDisruptionRisk    float64
	RegulatoryBurden      float64
	BaseRiskRating        float64
	DefaultRate           float64
	GrowthTrend           float64
	BenchmarkCreditAmount float64
	Factors               []IndustryRiskFactor
}

type RegionalRiskAdjustment struct {
	ID                    string
	RegionCode            string
	InfrastructureQuality float64
	LaborAvailability     float64
	EconomicStability     float64
	PolicySupport         float64
	DisasterExposure      float64
	RiskLevel             float64
}

// AdjustmentTrace records how a raw score was shifted by structural
// industry and regional risk, adjustment by adjustment.
type AdjustmentTrace struct {
	OriginalScore   float64
	AdjustedScore   float64
	Adjustments     map[string]float64
	IndustryFactors map[string]float64
	RegionalFactors map[string]float64
	SectorAlgorithm string
}

type LimitStatus string

const (
	LimitPending  LimitStatus = "pending"
	LimitApproved LimitStatus = "approved"
	LimitInactive LimitStatus = "inactive"
)

type CreditLimit struct {
	ID                 string
	BuyerID            string
	TenantID           string
	AssessmentID       string
	ApprovedLimit      float64
	TemporaryIncrease  *float64
	TemporaryExpiresAt *time.Time
	CurrentUtilization float64
	Status             LimitStatus
	CalculationMethod  string
	ReviewDate         time.Time
	ExpiresAt          *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// EffectiveLimit is the approved amount plus any unexpired temporary increase.
func (l *CreditLimit) EffectiveLimit(now time.Time) float64 {
	limit := l.ApprovedLimit
	if l.TemporaryIncrease != nil {
		if l.TemporaryExpiresAt == nil || now.Before(*l.TemporaryExpiresAt) {
			limit += *l.TemporaryIncrease
		}
	}
	return limit
}

func (l *CreditLimit) AvailableCredit(now time.Time) float64 {
	available := l.EffectiveLimit(now) - l.CurrentUtilization
	if available < 0 {
		return 0
	}
	return available
}

func (l *CreditLimit) UtilizationPercentage(now time.Time) float64 {
	effective := l.EffectiveLimit(now)
	if effective <= 0 {
		return 0
	}
	return l.CurrentUtilization / effective * 100
}

type CreditLimitHistory struct {
	ID            string
	CreditLimitID string
	BuyerID       string
	Action        string
	PreviousLimit float64
	NewLimit      float64
	Reason        string
	ActorID       string
	CreatedAt     time.Time
}

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

type CreditLimitApproval struct {
	ID            string
	CreditLimitID string
	BuyerID       string
	ProposedLimit float64
	CurrentLimit  float64
	Reason        string
	Status        ApprovalStatus
	RequestedAt   time.Time
	DecidedAt     *time.Time
	DecidedBy     string
}

type IndicatorStatus string

const (
	IndicatorActive        IndicatorStatus = "active"
	IndicatorAcknowledged  IndicatorStatus = "acknowledged"
	IndicatorResolved      IndicatorStatus = "resolved"
	IndicatorFalsePositive IndicatorStatus = "false_positive"
)

type IndicatorType string

const (
	IndicatorScoreChange       IndicatorType = "score_change"
	IndicatorLowScore          IndicatorType = "low_score"
	IndicatorLatePayments      IndicatorType = "late_payments"
	IndicatorVeryLatePayment   IndicatorType = "very_late_payment"
	IndicatorWorseningPattern  IndicatorType = "worsening_payment_pattern"
	IndicatorCreditUtilization IndicatorType = "credit_utilization"
)

type RiskIndicator struct {
	ID         string
	BuyerID    string
	TenantID   string
	Type       IndicatorType
	RiskLevel  RiskLevel
	Value      float64
	Threshold  float64
	Trend      string
	Confidence float64
	Status     IndicatorStatus
	Notes      string
	DetectedAt time.Time
	UpdatedAt  time.Time
}

type PaymentTerms struct {
	ID                  string
	OrganizationID      string
	BuyerID             string
	RiskCategory        string
	TermDays            int
	EarlyDiscountPct    float64
	LateFeePct          float64
	DepositPct          float64
	InstallmentsAllowed int
	Source              string
	ReviewAt            time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
