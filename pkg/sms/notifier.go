package sms

import (
	"fmt"

	"github.com/safarline/booking-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// Notifier sends the customer and operator messages of the booking flow.
// Send failures are logged and swallowed: notification must never fail a
// request that already moved money.
type Notifier struct {
	gateway       Gateway
	operatorPhone string
	logger        *logrus.Logger
}

// NewNotifier creates a new Notifier
func NewNotifier(gateway Gateway, operatorPhone string, logger *logrus.Logger) *Notifier {
	return &Notifier{gateway: gateway, operatorPhone: operatorPhone, logger: logger}
}

// TicketIssued tells the customer their ticket code after a confirmed
// reservation.
func (n *Notifier) TicketIssued(ticket *models.Ticket) {
	if ticket.TicketCode == nil {
		return
	}
	msg := fmt.Sprintf("%s %s, your ticket %s -> %s is confirmed. Ticket code: %s",
		ticket.FirstName, ticket.LastName, ticket.TripOrigin, ticket.TripDestination, *ticket.TicketCode)

	if err := n.gateway.Send(ticket.Phone, msg); err != nil {
		n.logger.WithError(err).WithField("ticket_id", ticket.ID).Error("Failed to send ticket-issued SMS")
	}
}

// OperatorAlert pages the operator about a paid-but-unreserved ticket.
func (n *Notifier) OperatorAlert(ticket *models.Ticket, refID string) {
	if n.operatorPhone == "" {
		n.logger.WithField("ticket_id", ticket.ID).Warn("No operator phone configured, alert not sent")
		return
	}
	msg := fmt.Sprintf("RECONCILE: ticket %d paid (ref %s) but reservation failed. Trip %s.",
		ticket.ID, refID, ticket.TripCode)

	if err := n.gateway.Send(n.operatorPhone, msg); err != nil {
		n.logger.WithError(err).WithField("ticket_id", ticket.ID).Error("Failed to send operator alert SMS")
	}
}
