package calc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBilledRate_NonIncreasingInDiscount(t *testing.T) {
	for _, tariff := range []float64{0, 0.5, 0.976, 1.1, 3} {
		prev := BilledRate(tariff, 0)
		assert.Equal(t, tariff, prev, "zero discount keeps the tariff")
		for d := 1.0; d <= 100; d++ {
			rate := BilledRate(tariff, d)
			assert.LessOrEqual(t, rate, prev+1e-12, "tariff %v discount %v", tariff, d)
			prev = rate
		}
		assert.InDelta(t, 0, BilledRate(tariff, 100), 1e-12)
	}
}

func TestCalculate_TotalLinearInKwh(t *testing.T) {
	base := CalculationInput{Tariff: 0.976, DiscountPct: 15, ConsumptionKwh: 2000}

	zero := base
	zero.KwhQuantity = 0
	assert.Equal(t, 0.0, Calculate(zero).TotalAmount)

	one := base
	one.KwhQuantity = 250
	three := base
	three.KwhQuantity = 750
	assert.InDelta(t, 3*Calculate(one).TotalAmount, Calculate(three).TotalAmount, 1e-9)
}

func TestCalculate_Scenario(t *testing.T) {
	c := Calculate(CalculationInput{Tariff: 0.976, DiscountPct: 20, KwhQuantity: 1000, ConsumptionKwh: 1000})

	assert.InDelta(t, 0.7808, c.BilledRate, 1e-9)
	assert.InDelta(t, 780.80, c.TotalAmount, 1e-9)
	assert.InDelta(t, 976.0, c.GrossValue, 1e-9)
	assert.InDelta(t, 195.2, c.Savings, 1e-9)
	assert.InDelta(t, 20.0, c.SavingsPct, 1e-9)
	assert.Equal(t, "780.80", FormatMoney(c.TotalAmount))
	assert.Equal(t, "0.781", FormatRate(c.BilledRate))
}

func TestCalculate_ZeroGrossValue(t *testing.T) {
	c := Calculate(CalculationInput{Tariff: 0.9, DiscountPct: 10, KwhQuantity: 100, ConsumptionKwh: 0})
	assert.Equal(t, 0.0, c.GrossValue)
	assert.Equal(t, 0.0, c.SavingsPct)
	assert.False(t, math.IsNaN(c.SavingsPct))
	assert.False(t, math.IsInf(c.SavingsPct, 0))

	s := SummarySavings(CalculationInput{Tariff: 0, DiscountPct: 10, KwhQuantity: 100, ConsumptionKwh: 100})
	assert.Equal(t, 0.0, s.SavingsPct)
}

func TestCalculate_Idempotent(t *testing.T) {
	in := CalculationInput{Tariff: 1.0137, DiscountPct: 12.5, KwhQuantity: 1234.567, ConsumptionKwh: 1500.25}
	first := Calculate(in)
	second := Calculate(in)
	assert.Equal(t, math.Float64bits(first.TotalAmount), math.Float64bits(second.TotalAmount))
	assert.Equal(t, math.Float64bits(first.SavingsPct), math.Float64bits(second.SavingsPct))
	assert.Equal(t, first, second)
}

func TestSummarySavings(t *testing.T) {
	in := CalculationInput{Tariff: 1, DiscountPct: 20, KwhQuantity: 800, ConsumptionKwh: 1000}
	s := SummarySavings(in)
	// 1000 - 200*0.8
	assert.InDelta(t, 840, s.Savings, 1e-9)
	assert.InDelta(t, 84, s.SavingsPct, 1e-9)
}

func TestRatio(t *testing.T) {
	assert.Equal(t, 0.0, Ratio(5, 0))
	assert.Equal(t, 0.0, Ratio(0, 0))
	assert.Equal(t, 0.5, Ratio(1, 2))
}

func TestSumEnergy(t *testing.T) {
	records := []Energy{
		{Consumption: 500, Received: 420, Compensation: 400},
		{Consumption: 300, Received: 280, Compensation: 250},
	}

	comp := SumEnergy(records, BasisCompensation)
	assert.Equal(t, 800.0, comp.Consumption)
	assert.Equal(t, 650.0, comp.Billable)

	rec := SumEnergy(records, BasisReceipt)
	assert.Equal(t, 700.0, rec.Billable)

	empty := SumEnergy(nil, BasisReceipt)
	assert.Equal(t, EnergyTotals{}, empty)
}

func TestEstimateImpact_Linear(t *testing.T) {
	for _, kwh := range []float64{0, 1, 123.4, 10000} {
		single := EstimateImpact(kwh)
		double := EstimateImpact(2 * kwh)
		assert.InDelta(t, 2*single.CO2Kg, double.CO2Kg, 1e-9)
	}

	i := EstimateImpact(1000)
	assert.InDelta(t, 90, i.CO2Kg, 1e-9)
	assert.InDelta(t, 90.0/22.0, i.TreesEquivalent, 1e-9)
}

func ptr(v float64) *float64 { return &v }

func TestResolveTariff_MixedDistributors(t *testing.T) {
	res := ResolveTariff([]InstallationTariff{
		{InstallationID: 1, DistributorID: 10, PricePerKwh: ptr(0.90)},
		{InstallationID: 2, DistributorID: 20, PricePerKwh: ptr(1.10)},
	})

	assert.Equal(t, 0.90, res.Tariff)
	assert.Equal(t, 10, res.DistributorID)
	assert.False(t, res.Placeholder)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, WarningMixedDistributors, res.Warnings[0])
}

func TestResolveTariff_SingleDistributor(t *testing.T) {
	res := ResolveTariff([]InstallationTariff{
		{InstallationID: 1, DistributorID: 7, PricePerKwh: ptr(0.85)},
		{InstallationID: 2, DistributorID: 7, PricePerKwh: ptr(0.85)},
	})
	assert.Equal(t, 0.85, res.Tariff)
	assert.Empty(t, res.Warnings)
}

func TestResolveTariff_NotLoaded(t *testing.T) {
	res := ResolveTariff([]InstallationTariff{{InstallationID: 1, DistributorID: 3}})
	assert.Equal(t, DefaultTariff, res.Tariff)
	assert.True(t, res.Placeholder)

	empty := ResolveTariff(nil)
	assert.Equal(t, DefaultTariff, empty.Tariff)
	assert.True(t, empty.Placeholder)
}

func TestSelectBasis(t *testing.T) {
	receipt := BasisReceipt
	sel := SelectBasis(BasisCompensation, &receipt)
	assert.Equal(t, BasisReceipt, sel.Basis)
	assert.True(t, sel.Overridden)
	assert.Equal(t, WarningBasisOverride, sel.Warning)

	// the stored default is untouched, so the next load starts from it again
	next := SelectBasis(BasisCompensation, nil)
	assert.Equal(t, BasisCompensation, next.Basis)
	assert.Empty(t, next.Warning)

	same := BasisCompensation
	sel = SelectBasis(BasisCompensation, &same)
	assert.Empty(t, sel.Warning)

	unknown := SelectBasis("", nil)
	assert.Equal(t, BasisCompensation, unknown.Basis)
}

func TestFormatters(t *testing.T) {
	assert.Equal(t, "1,234,568", FormatEnergy(1234567.8))
	assert.Equal(t, "999", FormatEnergy(999.2))
	assert.Equal(t, "R$ 1.234,56", FormatCurrency("R$", 1234.555))
	assert.Equal(t, "-12,50", FormatCurrency("", -12.5))
	assert.Equal(t, "0.000", FormatRate(0))
}
