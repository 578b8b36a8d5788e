package calc

const (
	// KWhToCO2Factor is kg of CO2 avoided per kWh of renewable energy.
	KWhToCO2Factor = 0.09
	// CO2ToTreesFactor is kg of CO2 absorbed by one tree.
	CO2ToTreesFactor = 22.0
)

type Impact struct {
	CO2Kg           float64 `json:"co2_kg"`
	TreesEquivalent float64 `json:"trees_equivalent"`
}

// EstimateImpact converts compensated or received kWh into display figures.
// Not used for billing.
func EstimateImpact(kwh float64) Impact {
	co2 := kwh * KWhToCO2Factor
	return Impact{
		CO2Kg:           co2,
		TreesEquivalent: Ratio(co2, CO2ToTreesFactor),
	}
}
