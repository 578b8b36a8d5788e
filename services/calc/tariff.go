package calc

import "github.com/samber/lo"

// DefaultTariff is used while the distributor tariff of the selected
// installation has not been loaded yet.
const DefaultTariff = 0.976

const WarningMixedDistributors = "installations belong to different distributors"

// InstallationTariff is the tariff view of one selected installation.
// PricePerKwh is nil when the distributor price is not known yet.
type InstallationTariff struct {
	InstallationID int      `json:"installation_id"`
	DistributorID  int      `json:"distributor_id"`
	PricePerKwh    *float64 `json:"price_per_kwh"`
}

type TariffResolution struct {
	Tariff        float64  `json:"tariff"`
	DistributorID int      `json:"distributor_id"`
	Placeholder   bool     `json:"placeholder"`
	Warnings      []string `json:"warnings"`
}

// ResolveTariff picks the price per kWh for a selection of installations.
// When the selection spans several distributors the first installation's
// distributor wins and a warning is returned. No averaging is done.
func ResolveTariff(selected []InstallationTariff) TariffResolution {
	res := TariffResolution{Tariff: DefaultTariff, Placeholder: true, Warnings: []string{}}
	if len(selected) == 0 {
		return res
	}

	first := selected[0]
	res.DistributorID = first.DistributorID

	distributors := lo.Uniq(lo.Map(selected, func(t InstallationTariff, _ int) int {
		return t.DistributorID
	}))
	if len(distributors) > 1 {
		res.Warnings = append(res.Warnings, WarningMixedDistributors)
	}

	if first.PricePerKwh != nil {
		res.Tariff = *first.PricePerKwh
		res.Placeholder = false
	}
	return res
}
