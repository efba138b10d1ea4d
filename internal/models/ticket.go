package models

import (
	"fmt"
	"time"
)

// TicketStatus represents the lifecycle state of a booking attempt.
// Matches PostgreSQL ENUM: ticket_status
//
// Success path: created -> payment_requested -> payment_verified -> reservation_confirmed.
// Every other status is terminal.
type TicketStatus string

const (
	StatusCreated              TicketStatus = "created"                     // Durable row written, no money in flight
	StatusPaymentRequested     TicketStatus = "payment_requested"           // Authority issued, customer at the gateway
	StatusPaymentVerified      TicketStatus = "payment_verified"            // Gateway confirmed the charge
	StatusReservationConfirmed TicketStatus = "reservation_confirmed"       // Provider ticket code obtained
	StatusPaymentRequestFailed TicketStatus = "payment_request_failed"      // Gateway declined before any charge
	StatusVerificationFailed   TicketStatus = "payment_verification_failed" // Cancelled at gateway or verify declined
	StatusReservationFailed    TicketStatus = "reservation_failed"          // Paid but unreserved - manual reconciliation
	StatusAbandoned            TicketStatus = "abandoned"                   // No payment ever initiated
)

// IsTerminal reports whether no further transition is allowed from s.
func (s TicketStatus) IsTerminal() bool {
	switch s {
	case StatusReservationConfirmed, StatusPaymentRequestFailed,
		StatusVerificationFailed, StatusReservationFailed, StatusAbandoned:
		return true
	}
	return false
}

// RialsPerToman is the conversion factor between the stored price unit
// (toman) and the gateway's smallest currency unit (rial). Applied exactly
// once, in the orchestrator.
const RialsPerToman = 10

// Ticket is the durable record of one booking attempt. Passenger and
// commercial fields are frozen at creation; the customer pays the price
// they saw even if the upstream price changes afterwards.
type Ticket struct {
	ID         int64        `json:"id" db:"id"`
	Status     TicketStatus `json:"status" db:"status"`
	TicketCode *string      `json:"ticket_code,omitempty" db:"ticket_code"` // provider-issued, nil until confirmed

	// Passenger - required before payment is requested, immutable after
	FirstName    string `json:"first_name" db:"first_name"`
	LastName     string `json:"last_name" db:"last_name"`
	Phone        string `json:"phone" db:"phone"`
	NationalCode string `json:"national_code" db:"national_code"`
	Gender       string `json:"gender" db:"gender"`

	// Commercial snapshot from trip lookup at creation time
	TripCode        string    `json:"trip_code" db:"trip_code"`
	TripOrigin      string    `json:"trip_origin" db:"trip_origin"`
	TripDestination string    `json:"trip_destination" db:"trip_destination"`
	OriginalPrice   int64     `json:"original_price" db:"original_price"` // tomans
	FinalPrice      int64     `json:"final_price" db:"final_price"`       // tomans, after discount
	ServiceName     string    `json:"service_name" db:"service_name"`
	CarName         string    `json:"car_name" db:"car_name"`
	DepartureAt     time.Time `json:"departure_at" db:"departure_at"`

	// Payment
	PaymentAuthority *string    `json:"-" db:"payment_authority"` // set once, unique callback correlation key
	IsPaid           bool       `json:"is_paid" db:"is_paid"`
	PaymentRefID     *string    `json:"payment_ref_id,omitempty" db:"payment_ref_id"`
	CardPan          *string    `json:"card_pan,omitempty" db:"card_pan"` // masked by the gateway
	PaidAt           *time.Time `json:"paid_at,omitempty" db:"paid_at"`
	VerifiedAt       *time.Time `json:"verified_at,omitempty" db:"verified_at"`
	ReservedAt       *time.Time `json:"reserved_at,omitempty" db:"reserved_at"`

	// Seller whose upstream credential is used for the reservation call
	AgencyID int64 `json:"agency_id" db:"agency_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// AmountRials returns the frozen amount in the gateway's unit.
func (t *Ticket) AmountRials() int64 {
	return t.FinalPrice * RialsPerToman
}

// ReconcileSentinel builds the internal ticket-code sentinel stored when a
// paid ticket could not be reserved upstream. Support locates these rows by
// prefix; the customer never sees the code as a failure.
func ReconcileSentinel(ticketID int64, now time.Time) string {
	return fmt.Sprintf("PAID-NO-RESERVE-%s-%d", now.Format("20060102150405"), ticketID)
}

// PassengerInfo carries validated passenger fields into ticket creation.
type PassengerInfo struct {
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Phone        string `json:"phone"`
	NationalCode string `json:"national_code"`
	Gender       string `json:"gender"`
}

// CreateTicketRequest is the confirmation-form payload.
type CreateTicketRequest struct {
	TripCode  string        `json:"trip_code" binding:"required"`
	Passenger PassengerInfo `json:"passenger" binding:"required"`
}

// PaymentRedirect is returned after a successful payment request: the
// client forwards the customer to the gateway page.
type PaymentRedirect struct {
	TicketID   int64  `json:"ticket_id"`
	Authority  string `json:"authority"`
	PaymentURL string `json:"payment_url"`
	Amount     int64  `json:"amount_rials"`
}

// CallbackOutcome is the orchestrator's answer to a payment callback. The
// handler only decides which page to send the customer to.
type CallbackOutcome struct {
	TicketID   int64        `json:"ticket_id"`
	Status     TicketStatus `json:"status"`
	TicketCode string       `json:"ticket_code,omitempty"`
	RefID      string       `json:"ref_id,omitempty"`
	// Paid is what the customer is told. True for reservation_failed too:
	// the payment did succeed and must never be reported as failed.
	Paid   bool   `json:"paid"`
	Reason string `json:"reason,omitempty"`
}
