package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/invoscore/backend/internal/storage/models"
)

func payment(daysLate int, onTime bool) *models.PaymentRecord {
	return &models.PaymentRecord{DaysLate: daysLate, OnTime: onTime}
}

func TestPaymentTimeliness(t *testing.T) {
	tests := []struct {
		name     string
		records  []*models.PaymentRecord
		expected float64
	}{
		{"no records neutral", nil, 50},
		{
			"all on time",
			[]*models.PaymentRecord{payment(0, true), payment(0, true)},
			100, // 100 - 0 + 50, clamped
		},
		{
			"all very late",
			[]*models.PaymentRecord{payment(60, false), payment(60, false)},
			0, // 100 - 120 + 0, clamped
		},
		{
			"mixed",
			[]*models.PaymentRecord{payment(10, false), payment(0, true)},
			// avg late 5, on-time 50% -> 100 - 10 + 25 = 115, clamped to 100
			100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := paymentTimeliness(tt.records)
			assert.NoError(t, err)
			assert.InDelta(t, tt.expected, v, 0.01)
		})
	}
}

func TestPaymentConsistency(t *testing.T) {
	v, err := paymentConsistency([]*models.PaymentRecord{payment(5, false)})
	assert.NoError(t, err)
	assert.Equal(t, float64(50), v, "under three records defaults to neutral")

	v, err = paymentConsistency([]*models.PaymentRecord{payment(5, false), payment(5, false), payment(5, false)})
	assert.NoError(t, err)
	assert.Equal(t, float64(100), v, "identical lateness has zero deviation")

	v, err = paymentConsistency([]*models.PaymentRecord{payment(0, true), payment(30, false), payment(60, false)})
	assert.NoError(t, err)
	assert.Less(t, v, 50.0, "erratic lateness scores poorly")
}

func TestBusinessLongevity(t *testing.T) {
	v, err := businessLongevity(nil)
	assert.NoError(t, err)
	assert.Equal(t, float64(50), v)

	tenYearsAgo := time.Now().AddDate(-10, 0, 0)
	v, err = businessLongevity(&models.BuyerProfile{IncorporatedAt: &tenYearsAgo})
	assert.NoError(t, err)
	assert.InDelta(t, 50, v, 0.5)

	thirtyYearsAgo := time.Now().AddDate(-30, 0, 0)
	v, err = businessLongevity(&models.BuyerProfile{IncorporatedAt: &thirtyYearsAgo})
	assert.NoError(t, err)
	assert.Equal(t, float64(100), v, "longevity caps at 100")
}

func TestTransactionVolume(t *testing.T) {
	v, _ := transactionVolume(nil)
	assert.Equal(t, float64(0), v)

	records := make([]*models.PaymentRecord, 7)
	for i := range records {
		records[i] = payment(0, true)
	}
	v, _ = transactionVolume(records)
	assert.Equal(t, float64(35), v)

	records = make([]*models.PaymentRecord, 50)
	for i := range records {
		records[i] = payment(0, true)
	}
	v, _ = transactionVolume(records)
	assert.Equal(t, float64(100), v, "volume caps at 100")
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, float64(50), normalize(50, 0, 100))
	assert.Equal(t, float64(0), normalize(-10, 0, 100))
	assert.Equal(t, float64(100), normalize(150, 0, 100))
	assert.Equal(t, float64(25), normalize(25, 0, 100))
	assert.Equal(t, float64(0), normalize(50, 100, 100), "degenerate range normalizes to zero")
}

func TestScoreBands(t *testing.T) {
	assert.Equal(t, "excellent", scoreBand(85))
	assert.Equal(t, "good", scoreBand(65))
	assert.Equal(t, "average", scoreBand(45))
	assert.Equal(t, "below_average", scoreBand(25))
	assert.Equal(t, "poor", scoreBand(5))
}

func TestExplainCustomTemplate(t *testing.T) {
	def := models.FactorDefinition{
		Name: "payment_timeliness",
		ExplanationTemplate: map[string]string{
			"excellent": "%s shows outstanding discipline",
		},
	}
	assert.Equal(t, "payment_timeliness shows outstanding discipline", explain(def, 90))
	// Bands without a custom template fall back to the defaults.
	assert.Contains(t, explain(def, 45), "average")
}

func TestComputeOneRecordsErrorNote(t *testing.T) {
	calc := &FactorCalculator{log: testLogger(t)}
	def := models.FactorDefinition{
		Name:              "mystery",
		Weight:            20,
		MinValue:          0,
		MaxValue:          100,
		CalculationMethod: "not_a_method",
	}

	f := calc.computeOne(def, &factorInput{buyerID: "b1"})
	assert.NotEmpty(t, f.ErrorNote)
	assert.Equal(t, float64(0), f.Contribution)
	assert.Equal(t, "negative", f.ImpactDirection)
}

func TestComputeOneDefaultValueFallback(t *testing.T) {
	calc := &FactorCalculator{log: testLogger(t)}
	def := models.FactorDefinition{
		Name:              "external_rating",
		Weight:            10,
		MinValue:          0,
		MaxValue:          100,
		DefaultValue:      60,
		CalculationMethod: "bureau_feed",
	}

	f := calc.computeOne(def, &factorInput{buyerID: "b1"})
	assert.Empty(t, f.ErrorNote)
	assert.Equal(t, float64(60), f.NormalizedValue)
	assert.Equal(t, float64(6), f.Contribution)
	assert.Equal(t, "positive", f.ImpactDirection)
}
