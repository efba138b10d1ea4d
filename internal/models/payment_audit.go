package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentEventType identifies one step of the payment/reservation flow in
// the audit trail.
type PaymentEventType string

const (
	PaymentEventInitiated              PaymentEventType = "payment_initiated"
	PaymentEventRequestFailed          PaymentEventType = "payment_request_failed"
	PaymentEventCallbackReceived       PaymentEventType = "callback_received"
	PaymentEventCancelled              PaymentEventType = "payment_cancelled"
	PaymentEventVerified               PaymentEventType = "payment_verified"
	PaymentEventVerifyFailed           PaymentEventType = "payment_verify_failed"
	PaymentEventReservationConfirmed   PaymentEventType = "reservation_confirmed"
	PaymentEventReconciliationMismatch PaymentEventType = "reconciliation_mismatch"
	PaymentEventDuplicateCallback      PaymentEventType = "duplicate_callback"
)

// PaymentEventSource identifies where the event originated.
type PaymentEventSource string

const (
	PaymentSourceBackend  PaymentEventSource = "backend"
	PaymentSourceCallback PaymentEventSource = "gateway_callback"
	PaymentSourceSystem   PaymentEventSource = "system"
)

// PaymentAudit is an append-only record of a payment event. Rows with
// event_type = reconciliation_mismatch are the operator's work queue for
// paid-but-unreserved tickets.
type PaymentAudit struct {
	ID       uuid.UUID `json:"id" db:"id"`
	TicketID *int64    `json:"ticket_id,omitempty" db:"ticket_id"`

	EventType   PaymentEventType   `json:"event_type" db:"event_type"`
	EventSource PaymentEventSource `json:"event_source" db:"event_source"`

	Authority *string `json:"authority,omitempty" db:"authority"`

	// Amount tracking in rials; mismatches are verification failures
	ExpectedAmount *int64 `json:"expected_amount,omitempty" db:"expected_amount"`
	ReceivedAmount *int64 `json:"received_amount,omitempty" db:"received_amount"`
	AmountsMatch   *bool  `json:"amounts_match,omitempty" db:"amounts_match"`

	RefID        *string `json:"ref_id,omitempty" db:"ref_id"`
	ErrorMessage *string `json:"error_message,omitempty" db:"error_message"`

	// Request metadata for callback events
	IPAddress *string `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent *string `json:"user_agent,omitempty" db:"user_agent"`
	Browser   *string `json:"browser,omitempty" db:"browser"`

	CorrelationID *string   `json:"correlation_id,omitempty" db:"correlation_id"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// NewPaymentAudit creates an audit entry with required fields set.
func NewPaymentAudit(eventType PaymentEventType, source PaymentEventSource) *PaymentAudit {
	return &PaymentAudit{
		ID:          uuid.New(),
		EventType:   eventType,
		EventSource: source,
		CreatedAt:   time.Now(),
	}
}

// WithTicket attaches the ticket id.
func (a *PaymentAudit) WithTicket(ticketID int64) *PaymentAudit {
	a.TicketID = &ticketID
	return a
}

// WithAuthority attaches the gateway authority.
func (a *PaymentAudit) WithAuthority(authority string) *PaymentAudit {
	a.Authority = &authority
	return a
}

// WithAmounts records expected/received amounts and whether they match.
func (a *PaymentAudit) WithAmounts(expected, received int64) *PaymentAudit {
	match := expected == received
	a.ExpectedAmount = &expected
	a.ReceivedAmount = &received
	a.AmountsMatch = &match
	return a
}

// WithError attaches a failure message.
func (a *PaymentAudit) WithError(err error) *PaymentAudit {
	if err != nil {
		msg := err.Error()
		a.ErrorMessage = &msg
	}
	return a
}
