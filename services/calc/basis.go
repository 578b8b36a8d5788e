package calc

type Basis string

const (
	BasisCompensation Basis = "compensation"
	BasisReceipt      Basis = "receipt"
)

const WarningBasisOverride = "selected calculation basis differs from the customer's default"

func ParseBasis(s string) (Basis, bool) {
	switch Basis(s) {
	case BasisCompensation, BasisReceipt:
		return Basis(s), true
	default:
		return "", false
	}
}

type BasisSelection struct {
	Basis           Basis  `json:"basis"`
	CustomerDefault Basis  `json:"customer_default"`
	Overridden      bool   `json:"overridden"`
	Warning         string `json:"warning,omitempty"`
}

// SelectBasis resolves the billed quantity type for one invoice. The override
// only applies to this call; callers must not persist it as the new default.
func SelectBasis(customerDefault Basis, override *Basis) BasisSelection {
	def, ok := ParseBasis(string(customerDefault))
	if !ok {
		def = BasisCompensation
	}

	sel := BasisSelection{Basis: def, CustomerDefault: def}
	if override == nil {
		return sel
	}
	chosen, ok := ParseBasis(string(*override))
	if !ok {
		return sel
	}

	sel.Basis = chosen
	sel.Overridden = true
	if chosen != def {
		sel.Warning = WarningBasisOverride
	}
	return sel
}

// Quantity returns the kWh the basis bills for a single period.
func (b Basis) Quantity(e Energy) float64 {
	if b == BasisReceipt {
		return e.Received
	}
	return e.Compensation
}
