package admin

import (
	"time"

	"github.com/google/uuid"
)

// Settings is the single per-tenant practice configuration row.
type Settings struct {
	PracticeName       string    `json:"practice_name"`
	AddressLine1       string    `json:"address_line1"`
	AddressLine2       *string   `json:"address_line2,omitempty"`
	City               string    `json:"city"`
	State              string    `json:"state"`
	PostalCode         string    `json:"postal_code"`
	Phone              string    `json:"phone"`
	DefaultApptMinutes int       `json:"default_appt_minutes"`
	NoShowFee          float64   `json:"no_show_fee"`
	ReminderHours      int       `json:"reminder_hours"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type Location struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Phone     string    `json:"phone"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Roles     []string  `json:"roles"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
