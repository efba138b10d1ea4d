package models

import "time"

// Agency is a seller account with the upstream reservation provider. Its
// API token decides which account's inventory and balance a reservation
// call charges. Unauthenticated bookings fall back to the guest agency.
type Agency struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Phone       string    `json:"phone" db:"phone"`
	ORSAPIToken string    `json:"-" db:"ors_api_token"`
	Commission  int       `json:"commission" db:"commission"`
	IsGuest     bool      `json:"is_guest" db:"is_guest"`
	JoinedAt    time.Time `json:"joined_at" db:"joined_at"`
}
