// Package calc holds the invoice arithmetic: tariff resolution, billing basis
// selection, amounts, savings and the environmental estimate. Everything here
// is a pure function of its arguments.
package calc

import "github.com/samber/lo"

// Energy is the part of an energy period record the calculator needs.
type Energy struct {
	Consumption  float64 `json:"consumption"`
	Received     float64 `json:"received"`
	Compensation float64 `json:"compensation"`
}

type EnergyTotals struct {
	Consumption  float64 `json:"consumption"`
	Received     float64 `json:"received"`
	Compensation float64 `json:"compensation"`
	Billable     float64 `json:"billable"`
}

// SumEnergy adds up the periods of all selected installations and the
// quantity billed under the given basis.
func SumEnergy(records []Energy, basis Basis) EnergyTotals {
	return EnergyTotals{
		Consumption:  lo.SumBy(records, func(e Energy) float64 { return e.Consumption }),
		Received:     lo.SumBy(records, func(e Energy) float64 { return e.Received }),
		Compensation: lo.SumBy(records, func(e Energy) float64 { return e.Compensation }),
		Billable:     lo.SumBy(records, basis.Quantity),
	}
}

type CalculationInput struct {
	Tariff         float64 `json:"tariff"`
	DiscountPct    float64 `json:"discount_pct"`
	KwhQuantity    float64 `json:"kwh_quantity"`
	ConsumptionKwh float64 `json:"consumption_kwh"`
}

type Calculation struct {
	BilledRate  float64 `json:"billed_rate"`
	TotalAmount float64 `json:"total_amount"`
	GrossValue  float64 `json:"gross_value"`
	Savings     float64 `json:"savings"`
	SavingsPct  float64 `json:"savings_pct"`
}

// BilledRate is the tariff after the discount percentage.
func BilledRate(tariff, discountPct float64) float64 {
	return tariff * (1 - discountPct/100)
}

// Calculate derives the per-invoice figures. Inputs are assumed validated.
func Calculate(in CalculationInput) Calculation {
	rate := BilledRate(in.Tariff, in.DiscountPct)
	total := rate * in.KwhQuantity
	gross := in.Tariff * in.ConsumptionKwh
	savings := gross - total
	return Calculation{
		BilledRate:  rate,
		TotalAmount: total,
		GrossValue:  gross,
		Savings:     savings,
		SavingsPct:  Ratio(savings, gross) * 100,
	}
}

type Summary struct {
	GrossValue float64 `json:"gross_value"`
	Savings    float64 `json:"savings"`
	SavingsPct float64 `json:"savings_pct"`
}

// SummarySavings is the historical view: the consumption not covered by the
// billed quantity is still paid at the billed rate.
func SummarySavings(in CalculationInput) Summary {
	rate := BilledRate(in.Tariff, in.DiscountPct)
	gross := in.Tariff * in.ConsumptionKwh
	savings := gross - (in.ConsumptionKwh-in.KwhQuantity)*rate
	return Summary{
		GrossValue: gross,
		Savings:    savings,
		SavingsPct: Ratio(savings, gross) * 100,
	}
}

// Ratio returns num/den, or 0 when den is 0.
func Ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
