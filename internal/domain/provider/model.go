package provider

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

type Provider struct {
	ID                 uuid.UUID `json:"id"`
	NPI                string    `json:"npi"`
	FirstName          string    `json:"first_name"`
	LastName           string    `json:"last_name"`
	Credentials        *string   `json:"credentials,omitempty"`
	Specialty          string    `json:"specialty"`
	Email              *string   `json:"email,omitempty"`
	Phone              *string   `json:"phone,omitempty"`
	Status             string    `json:"status"`
	AcceptingPatients  bool      `json:"accepting_patients"`
	AcceptingReferrals bool      `json:"accepting_referrals"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (p *Provider) FullName() string {
	name := p.FirstName + " " + p.LastName
	if p.Credentials != nil && *p.Credentials != "" {
		name += ", " + *p.Credentials
	}
	return name
}
