package terms

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/invoscore/backend/internal/storage/models"
	"github.com/invoscore/backend/pkg/apperr"
)

// Rule maps a risk category and score range onto a payment terms
// policy. Rules are evaluated in order; the first match wins.
type Rule struct {
	Category            string  `yaml:"category"`
	MinScore            float64 `yaml:"min_score"`
	MaxScore            float64 `yaml:"max_score"`
	TermDays            int     `yaml:"term_days"`
	EarlyDiscountPct    float64 `yaml:"early_discount_pct"`
	LateFeePct          float64 `yaml:"late_fee_pct"`
	DepositPct          float64 `yaml:"deposit_pct"`
	InstallmentsAllowed int     `yaml:"installments_allowed"`
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// defaultRules is the compiled-in fallback used when no rule file is
// configured. Organizations override it with their own yaml.
var defaultRules = []Rule{
	{Category: "premium", MinScore: 90, MaxScore: 100, TermDays: 45, EarlyDiscountPct: 2.0, LateFeePct: 1.0, DepositPct: 0, InstallmentsAllowed: 3},
	{Category: "low_risk", MinScore: 75, MaxScore: 90, TermDays: 30, EarlyDiscountPct: 1.5, LateFeePct: 1.5, DepositPct: 0, InstallmentsAllowed: 2},
	{Category: "standard", MinScore: 50, MaxScore: 75, TermDays: 30, EarlyDiscountPct: 1.0, LateFeePct: 2.0, DepositPct: 0, InstallmentsAllowed: 1},
	{Category: "moderate_risk", MinScore: 25, MaxScore: 50, TermDays: 15, EarlyDiscountPct: 0.5, LateFeePct: 2.5, DepositPct: 25, InstallmentsAllowed: 0},
	{Category: "high_risk", MinScore: 10, MaxScore: 25, TermDays: 7, EarlyDiscountPct: 0, LateFeePct: 3.0, DepositPct: 50, InstallmentsAllowed: 0},
	{Category: "severe_risk", MinScore: 0, MaxScore: 10, TermDays: 0, EarlyDiscountPct: 0, LateFeePct: 3.0, DepositPct: 100, InstallmentsAllowed: 0},
}

// riskCategoryFor translates an assessment risk level to its terms
// category.
func riskCategoryFor(level models.RiskLevel) string {
	switch level {
	case models.RiskVeryLow:
		return "premium"
	case models.RiskLow:
		return "low_risk"
	case models.RiskMedium:
		return "standard"
	case models.RiskHigh:
		return "moderate_risk"
	case models.RiskVeryHigh:
		return "high_risk"
	default:
		return "severe_risk"
	}
}

// LoadRules reads the rule table from path, falling back to the
// compiled defaults when path is empty or the file does not exist.
func LoadRules(path string) ([]Rule, error) {
	if path == "" {
		return defaultRules, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultRules, nil
		}
		return nil, fmt.Errorf("failed to read terms rules file: %w", err)
	}

	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse terms rules file: %w", err)
	}
	if len(f.Rules) == 0 {
		return nil, apperr.Configuration("terms_rules", "rule file contains no rules")
	}

	for _, r := range f.Rules {
		if r.Category == "" {
			return nil, apperr.Configuration("terms_rules", "rule with empty category")
		}
		if r.MaxScore < r.MinScore {
			return nil, apperr.Configuration("terms_rules",
				fmt.Sprintf("rule %s has max_score below min_score", r.Category))
		}
	}
	return f.Rules, nil
}

func matchRule(rules []Rule, category string, score float64) *Rule {
	for i := range rules {
		if rules[i].Category == category {
			return &rules[i]
		}
	}
	for i := range rules {
		if score >= rules[i].MinScore && score < rules[i].MaxScore {
			return &rules[i]
		}
		// Top bracket is inclusive at its maximum.
		if score == rules[i].MaxScore && rules[i].MaxScore >= 100 {
			return &rules[i]
		}
	}
	return nil
}
