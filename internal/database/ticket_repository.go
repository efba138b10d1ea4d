package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/safarline/booking-backend/internal/models"
)

// TicketRepository handles ticket database operations. It is the
// orchestrator's single source of truth: every status change goes through a
// guarded update so that duplicate callbacks and crashed requests can never
// move a ticket twice.
type TicketRepository struct {
	db *sqlx.DB
}

// NewTicketRepository creates a new TicketRepository
func NewTicketRepository(db *sqlx.DB) *TicketRepository {
	return &TicketRepository{db: db}
}

const ticketColumns = `
	id, status, ticket_code,
	first_name, last_name, phone, national_code, gender,
	trip_code, trip_origin, trip_destination,
	original_price, final_price, service_name, car_name, departure_at,
	payment_authority, is_paid, payment_ref_id, card_pan,
	paid_at, verified_at, reserved_at,
	agency_id, created_at, updated_at`

// Create persists a new ticket in status created and fills in its id.
// This row is written before any money moves, so a crash at any later
// point is always resumable from the database.
func (r *TicketRepository) Create(ticket *models.Ticket) error {
	now := time.Now()
	ticket.Status = models.StatusCreated
	ticket.CreatedAt = now
	ticket.UpdatedAt = now

	query := `
		INSERT INTO tickets (
			status,
			first_name, last_name, phone, national_code, gender,
			trip_code, trip_origin, trip_destination,
			original_price, final_price, service_name, car_name, departure_at,
			is_paid, agency_id, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18
		) RETURNING id`

	err := r.db.QueryRow(query,
		ticket.Status,
		ticket.FirstName, ticket.LastName, ticket.Phone, ticket.NationalCode, ticket.Gender,
		ticket.TripCode, ticket.TripOrigin, ticket.TripDestination,
		ticket.OriginalPrice, ticket.FinalPrice, ticket.ServiceName, ticket.CarName, ticket.DepartureAt,
		ticket.IsPaid, ticket.AgencyID, ticket.CreatedAt, ticket.UpdatedAt,
	).Scan(&ticket.ID)
	if err != nil {
		return fmt.Errorf("failed to create ticket: %w", err)
	}
	return nil
}

// GetByID retrieves a ticket by its internal id.
func (r *TicketRepository) GetByID(id int64) (*models.Ticket, error) {
	var ticket models.Ticket
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id = $1`
	err := r.db.Get(&ticket, query, id)
	if err == sql.ErrNoRows {
		return nil, models.ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket %d: %w", id, err)
	}
	return &ticket, nil
}

// GetByAuthority retrieves a ticket by its payment authority. The
// authority is unique, so this is the callback correlation lookup.
func (r *TicketRepository) GetByAuthority(authority string) (*models.Ticket, error) {
	var ticket models.Ticket
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE payment_authority = $1`
	err := r.db.Get(&ticket, query, authority)
	if err == sql.ErrNoRows {
		return nil, models.ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket by authority: %w", err)
	}
	return &ticket, nil
}

// GetByTicketCode retrieves a ticket by its provider-issued code (or the
// internal reconcile sentinel).
func (r *TicketRepository) GetByTicketCode(code string) (*models.Ticket, error) {
	var ticket models.Ticket
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE ticket_code = $1`
	err := r.db.Get(&ticket, query, code)
	if err == sql.ErrNoRows {
		return nil, models.ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket by code: %w", err)
	}
	return &ticket, nil
}

// SetPaymentAuthority stores the gateway authority and moves the ticket to
// payment_requested. The authority is set at most once: a row that already
// carries one is never touched.
func (r *TicketRepository) SetPaymentAuthority(id int64, authority string) error {
	query := `
		UPDATE tickets
		SET payment_authority = $1, status = $2, updated_at = $3
		WHERE id = $4 AND status = $5 AND payment_authority IS NULL`

	result, err := r.db.Exec(query, authority, models.StatusPaymentRequested, time.Now(), id, models.StatusCreated)
	if err != nil {
		return fmt.Errorf("failed to set payment authority: %w", err)
	}
	return expectOneRow(result)
}

// TransitionStatus performs a compare-and-set status change. It returns
// models.ErrStatusConflict when the ticket is not in the expected status,
// which is how duplicate concurrent callbacks are serialized.
func (r *TicketRepository) TransitionStatus(id int64, from, to models.TicketStatus) error {
	query := `UPDATE tickets SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`
	result, err := r.db.Exec(query, to, time.Now(), id, from)
	if err != nil {
		return fmt.Errorf("failed to transition ticket %d %s->%s: %w", id, from, to, err)
	}
	return expectOneRow(result)
}

// MarkVerified records a successful gateway verification inside the same
// guarded update that moves payment_requested -> payment_verified. is_paid
// flips false->true here and nowhere else.
func (r *TicketRepository) MarkVerified(id int64, refID, cardPan string) error {
	now := time.Now()
	query := `
		UPDATE tickets
		SET status = $1, is_paid = TRUE, payment_ref_id = $2, card_pan = $3,
		    paid_at = $4, verified_at = $4, updated_at = $4
		WHERE id = $5 AND status = $6 AND is_paid = FALSE`

	result, err := r.db.Exec(query, models.StatusPaymentVerified, refID, cardPan, now, id, models.StatusPaymentRequested)
	if err != nil {
		return fmt.Errorf("failed to mark ticket %d verified: %w", id, err)
	}
	return expectOneRow(result)
}

// MarkReservationConfirmed stores the provider ticket code and completes
// the success path. Only reachable from payment_verified.
func (r *TicketRepository) MarkReservationConfirmed(id int64, ticketCode string) error {
	now := time.Now()
	query := `
		UPDATE tickets
		SET status = $1, ticket_code = $2, reserved_at = $3, updated_at = $3
		WHERE id = $4 AND status = $5`

	result, err := r.db.Exec(query, models.StatusReservationConfirmed, ticketCode, now, id, models.StatusPaymentVerified)
	if err != nil {
		return fmt.Errorf("failed to confirm reservation for ticket %d: %w", id, err)
	}
	return expectOneRow(result)
}

// MarkReservationFailed tags a paid ticket whose upstream reservation could
// not be completed with the reconcile sentinel. The row is kept forever for
// manual reconciliation.
func (r *TicketRepository) MarkReservationFailed(id int64, sentinel string) error {
	query := `
		UPDATE tickets
		SET status = $1, ticket_code = $2, updated_at = $3
		WHERE id = $4 AND status = $5`

	result, err := r.db.Exec(query, models.StatusReservationFailed, sentinel, time.Now(), id, models.StatusPaymentVerified)
	if err != nil {
		return fmt.Errorf("failed to mark reservation failed for ticket %d: %w", id, err)
	}
	return expectOneRow(result)
}

// DeleteUnpaid removes a ticket whose payment request was declined before
// any money moved. Paid rows are never deleted, whatever the caller thinks.
func (r *TicketRepository) DeleteUnpaid(id int64) error {
	result, err := r.db.Exec(`DELETE FROM tickets WHERE id = $1 AND is_paid = FALSE`, id)
	if err != nil {
		return fmt.Errorf("failed to delete ticket %d: %w", id, err)
	}
	return expectOneRow(result)
}

// PurgeAbandoned deletes unpaid tickets stuck in a pre-payment state for
// longer than the retention window. Returns the number of rows removed.
func (r *TicketRepository) PurgeAbandoned(olderThan time.Time) (int64, error) {
	query := `
		DELETE FROM tickets
		WHERE is_paid = FALSE
		  AND status IN ($1, $2, $3)
		  AND created_at < $4`

	result, err := r.db.Exec(query,
		models.StatusCreated, models.StatusPaymentRequestFailed, models.StatusAbandoned, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to purge abandoned tickets: %w", err)
	}
	return result.RowsAffected()
}

// ListReservationFailed returns paid-but-unreserved tickets for the
// operator reconciliation view, newest first.
func (r *TicketRepository) ListReservationFailed(limit int) ([]models.Ticket, error) {
	var tickets []models.Ticket
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE status = $1 ORDER BY updated_at DESC LIMIT $2`
	if err := r.db.Select(&tickets, query, models.StatusReservationFailed, limit); err != nil {
		return nil, fmt.Errorf("failed to list reservation-failed tickets: %w", err)
	}
	return tickets, nil
}

func expectOneRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return models.ErrStatusConflict
	}
	return nil
}
