package reporting

import "time"

// RevenueRow is one month of billed, allowed and collected amounts.
type RevenueRow struct {
	Month      string  `json:"month"`
	ClaimCount int     `json:"claim_count"`
	Billed     float64 `json:"billed"`
	Allowed    float64 `json:"allowed"`
	Collected  float64 `json:"collected"`
}

// AgingRow buckets open claim balances by days since submission.
type AgingRow struct {
	Bucket     string  `json:"bucket"`
	ClaimCount int     `json:"claim_count"`
	Balance    float64 `json:"balance"`
}

// VolumeRow is appointment counts per provider for a period.
type VolumeRow struct {
	ProviderID   string `json:"provider_id"`
	ProviderName string `json:"provider_name"`
	Scheduled    int    `json:"scheduled"`
	Completed    int    `json:"completed"`
	Cancelled    int    `json:"cancelled"`
	NoShows      int    `json:"no_shows"`
}

// NoShowRow is the monthly no-show rate across the practice.
type NoShowRow struct {
	Month    string  `json:"month"`
	Total    int     `json:"total"`
	NoShows  int     `json:"no_shows"`
	RatePct  float64 `json:"rate_pct"`
}

// ConversionRow tracks referrals from sent through completed per specialty.
type ConversionRow struct {
	Specialty string  `json:"specialty"`
	Sent      int     `json:"sent"`
	Accepted  int     `json:"accepted"`
	Completed int     `json:"completed"`
	RatePct   float64 `json:"rate_pct"`
}

// StatusRow counts claims per lifecycle status.
type StatusRow struct {
	Status     string  `json:"status"`
	ClaimCount int     `json:"claim_count"`
	Billed     float64 `json:"billed"`
}

// GrowthRow counts new patient registrations per month.
type GrowthRow struct {
	Month       string `json:"month"`
	NewPatients int    `json:"new_patients"`
}

// Period bounds a report query. Zero values mean unbounded.
type Period struct {
	From time.Time
	To   time.Time
}
