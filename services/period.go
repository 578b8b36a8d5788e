package services

import "time"

const periodLayout = "01/2006"

// ParsePeriod validates a MM/YYYY reference period and returns its sortable
// YYYY-MM key.
func ParsePeriod(period string) (time.Time, string, error) {
	t, err := time.Parse(periodLayout, period)
	if err != nil || len(period) != len(periodLayout) {
		return time.Time{}, "", invalidf("period %q must be MM/YYYY", period)
	}
	return t, t.Format("2006-01"), nil
}

func FormatPeriod(t time.Time) string {
	return t.Format(periodLayout)
}

// PeriodKey is ParsePeriod without the time value, for callers that already
// validated the period.
func PeriodKey(period string) string {
	_, key, err := ParsePeriod(period)
	if err != nil {
		return ""
	}
	return key
}
