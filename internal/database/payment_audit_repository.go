package database

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/safarline/booking-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// PaymentAuditRepository handles the append-only payment audit trail
type PaymentAuditRepository struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewPaymentAuditRepository creates a new PaymentAuditRepository
func NewPaymentAuditRepository(db *sqlx.DB, logger *logrus.Logger) *PaymentAuditRepository {
	return &PaymentAuditRepository{db: db, logger: logger}
}

// Log appends a payment audit entry. Payment events must be recorded, so a
// failure here is logged loudly but never propagated into the money flow.
func (r *PaymentAuditRepository) Log(audit *models.PaymentAudit) error {
	if audit == nil {
		return fmt.Errorf("audit entry cannot be nil")
	}
	if audit.ID == uuid.Nil {
		audit.ID = uuid.New()
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO payment_audits (
			id, ticket_id, event_type, event_source, authority,
			expected_amount, received_amount, amounts_match,
			ref_id, error_message,
			ip_address, user_agent, browser,
			correlation_id, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		)`

	_, err := r.db.Exec(query,
		audit.ID, audit.TicketID, audit.EventType, audit.EventSource, audit.Authority,
		audit.ExpectedAmount, audit.ReceivedAmount, audit.AmountsMatch,
		audit.RefID, audit.ErrorMessage,
		audit.IPAddress, audit.UserAgent, audit.Browser,
		audit.CorrelationID, audit.CreatedAt,
	)
	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"event_type": audit.EventType,
			"ticket_id":  audit.TicketID,
		}).Error("Failed to write payment audit entry")
		return fmt.Errorf("failed to write payment audit: %w", err)
	}
	return nil
}

// ListByTicket returns the audit trail for one ticket, oldest first.
func (r *PaymentAuditRepository) ListByTicket(ticketID int64) ([]models.PaymentAudit, error) {
	var audits []models.PaymentAudit
	query := `
		SELECT id, ticket_id, event_type, event_source, authority,
		       expected_amount, received_amount, amounts_match,
		       ref_id, error_message,
		       ip_address, user_agent, browser,
		       correlation_id, created_at
		FROM payment_audits
		WHERE ticket_id = $1
		ORDER BY created_at ASC`
	if err := r.db.Select(&audits, query, ticketID); err != nil {
		return nil, fmt.Errorf("failed to list audits for ticket %d: %w", ticketID, err)
	}
	return audits, nil
}

// ListReconciliationMismatches returns the operator work queue: audit rows
// for payments collected without a completed reservation.
func (r *PaymentAuditRepository) ListReconciliationMismatches(limit int) ([]models.PaymentAudit, error) {
	var audits []models.PaymentAudit
	query := `
		SELECT id, ticket_id, event_type, event_source, authority,
		       expected_amount, received_amount, amounts_match,
		       ref_id, error_message,
		       ip_address, user_agent, browser,
		       correlation_id, created_at
		FROM payment_audits
		WHERE event_type = $1
		ORDER BY created_at DESC
		LIMIT $2`
	if err := r.db.Select(&audits, query, models.PaymentEventReconciliationMismatch, limit); err != nil {
		return nil, fmt.Errorf("failed to list reconciliation mismatches: %w", err)
	}
	return audits, nil
}
