package calc

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Presentation helpers. The calculator keeps full precision; values are only
// rounded here.

func FormatMoney(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

func FormatRate(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(3)
}

func FormatEnergy(v float64) string {
	return groupThousands(decimal.NewFromFloat(v).Round(0).String(), ",")
}

// FormatCurrency renders money the way the invoices show it, e.g. "R$ 1.234,56".
func FormatCurrency(symbol string, v float64) string {
	fixed := decimal.NewFromFloat(v).StringFixed(2)
	neg := strings.HasPrefix(fixed, "-")
	fixed = strings.TrimPrefix(fixed, "-")
	intPart, frac, _ := strings.Cut(fixed, ".")
	out := groupThousands(intPart, ".") + "," + frac
	if neg {
		out = "-" + out
	}
	if symbol == "" {
		return out
	}
	return symbol + " " + out
}

type Display struct {
	BilledRate      string `json:"billed_rate"`
	TotalAmount     string `json:"total_amount"`
	GrossValue      string `json:"gross_value"`
	Savings         string `json:"savings"`
	SavingsPct      string `json:"savings_pct"`
	KwhQuantity     string `json:"kwh_quantity"`
	CO2Kg           string `json:"co2_kg"`
	TreesEquivalent string `json:"trees_equivalent"`
}

func NewDisplay(c Calculation, kwh float64, impact Impact) Display {
	return Display{
		BilledRate:      FormatRate(c.BilledRate),
		TotalAmount:     FormatMoney(c.TotalAmount),
		GrossValue:      FormatMoney(c.GrossValue),
		Savings:         FormatMoney(c.Savings),
		SavingsPct:      FormatMoney(c.SavingsPct),
		KwhQuantity:     FormatEnergy(kwh),
		CO2Kg:           FormatMoney(impact.CO2Kg),
		TreesEquivalent: FormatEnergy(impact.TreesEquivalent),
	}
}

func groupThousands(digits, sep string) string {
	neg := strings.HasPrefix(digits, "-")
	digits = strings.TrimPrefix(digits, "-")
	if len(digits) <= 3 {
		if neg {
			return "-" + digits
		}
		return digits
	}
	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteString(sep)
		}
		b.WriteString(digits[i : i+3])
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
