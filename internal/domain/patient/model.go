package patient

import (
	"time"

	"github.com/google/uuid"
)

// Patient statuses. Deceased is terminal.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusDeceased = "deceased"
)

type Patient struct {
	ID                uuid.UUID  `json:"id"`
	MRN               string     `json:"mrn"`
	FirstName         string     `json:"first_name"`
	LastName          string     `json:"last_name"`
	DateOfBirth       time.Time  `json:"date_of_birth"`
	Gender            string     `json:"gender"`
	Email             *string    `json:"email,omitempty"`
	Phone             *string    `json:"phone,omitempty"`
	AddressLine       *string    `json:"address_line,omitempty"`
	City              *string    `json:"city,omitempty"`
	State             *string    `json:"state,omitempty"`
	PostalCode        *string    `json:"postal_code,omitempty"`
	PrimaryProviderID *uuid.UUID `json:"primary_provider_id,omitempty"`
	Status            string     `json:"status"`
	DeceasedAt        *time.Time `json:"deceased_at,omitempty"`
	Note              *string    `json:"note,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func (p *Patient) FullName() string {
	return p.FirstName + " " + p.LastName
}

// Age returns the patient's age in whole years as of now.
func (p *Patient) Age(now time.Time) int {
	years := now.Year() - p.DateOfBirth.Year()
	anniversary := p.DateOfBirth.AddDate(years, 0, 0)
	if anniversary.After(now) {
		years--
	}
	return years
}

// InsurancePolicy links a patient to a payer. Rank 1 is the primary
// policy, rank 2 secondary, and so on.
type InsurancePolicy struct {
	ID            uuid.UUID  `json:"id"`
	PatientID     uuid.UUID  `json:"patient_id"`
	Payer         string     `json:"payer"`
	MemberID      string     `json:"member_id"`
	GroupNumber   *string    `json:"group_number,omitempty"`
	PlanName      *string    `json:"plan_name,omitempty"`
	Rank          int        `json:"rank"`
	EffectiveFrom time.Time  `json:"effective_from"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// ActiveOn reports whether the policy covers the given date.
func (ip *InsurancePolicy) ActiveOn(t time.Time) bool {
	if t.Before(ip.EffectiveFrom) {
		return false
	}
	return ip.EffectiveTo == nil || !t.After(*ip.EffectiveTo)
}
