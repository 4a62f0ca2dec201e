package models

import "time"

// DateLayout is the calendar-day format used in every payload
const DateLayout = "2006-01-02"

// UnknownKey replaces a missing dimension key on a cost record
const UnknownKey = "UNKNOWN"

// Period is a half-open [Start, End) range of whole days
type Period struct {
	Start time.Time
	End   time.Time
}

// LookbackPeriod returns the `days` full days ending at the start of now's day (UTC)
func LookbackPeriod(now time.Time, days int) Period {
	if days < 1 {
		days = 1
	}
	end := StartOfDay(now)
	return Period{Start: end.AddDate(0, 0, -days), End: end}
}

// StartOfDay truncates t to midnight UTC
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// Days returns the number of calendar days covered
func (p Period) Days() int {
	if !p.End.After(p.Start) {
		return 0
	}
	return int(p.End.Sub(p.Start).Hours() / 24)
}

// Previous returns the period of equal length immediately before p
func (p Period) Previous() Period {
	days := p.Days()
	return Period{Start: p.Start.AddDate(0, 0, -days), End: p.Start}
}

// TimeRange renders p for payloads
func (p Period) TimeRange() TimeRange {
	return TimeRange{Start: p.Start.Format(DateLayout), End: p.End.Format(DateLayout)}
}

// TimeRange is the payload form of a Period
type TimeRange struct {
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`
}

// CostRecord is one provider-supplied amount for a (time bucket, dimension key) pair
type CostRecord struct {
	Period    Period
	Key       string
	AmountUsd float64
}

// DailyCost is one point of a chronological daily series
type DailyCost struct {
	Date    string  `json:"date" yaml:"date"`
	CostUsd float64 `json:"costUsd" yaml:"costUsd"`
}

// Anomaly flags a burn-rate spike
type Anomaly struct {
	Present bool   `json:"present" yaml:"present"`
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

// Efficiency is a heuristic derived from cost variance, not measured utilization.
// Estimate is always true so consumers can label it accordingly.
type Efficiency struct {
	WasteEstimateUsd          float64 `json:"wasteEstimateUsd" yaml:"wasteEstimateUsd"`
	WasteEstimatePercent      float64 `json:"wasteEstimatePercent" yaml:"wasteEstimatePercent"`
	UtilizationScore          float64 `json:"utilizationScore" yaml:"utilizationScore"`
	SavingsOpportunityUsd     float64 `json:"savingsOpportunityUsd" yaml:"savingsOpportunityUsd"`
	SavingsOpportunityPercent float64 `json:"savingsOpportunityPercent" yaml:"savingsOpportunityPercent"`
	Estimate                  bool    `json:"estimate" yaml:"estimate"`
}

// CostKpis is the headline KPI payload
type CostKpis struct {
	TotalCostUsd        float64     `json:"totalCostUsd" yaml:"totalCostUsd"`
	DailyBurnUsd        float64     `json:"dailyBurnUsd" yaml:"dailyBurnUsd"`
	ProjectedMonthlyUsd float64     `json:"projectedMonthlyUsd" yaml:"projectedMonthlyUsd"`
	LastUpdated         time.Time   `json:"lastUpdated" yaml:"lastUpdated"`
	Anomaly             Anomaly     `json:"anomaly" yaml:"anomaly"`
	Series7d            []DailyCost `json:"series7d" yaml:"series7d"`
	Efficiency          *Efficiency `json:"efficiency,omitempty" yaml:"efficiency,omitempty"`
	DayOverDayPercent   *float64    `json:"dayOverDayPercent,omitempty" yaml:"dayOverDayPercent,omitempty"`
}
