package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/safarline/booking-backend/internal/database"
	"github.com/safarline/booking-backend/internal/models"
	"github.com/safarline/booking-backend/pkg/ors"
	"github.com/sirupsen/logrus"
)

const defaultOpsListLimit = 50

// OpsHandler serves the operator endpoints: the reconciliation work queue
// and the seller account balance at the reservation provider.
type OpsHandler struct {
	tickets     *database.TicketRepository
	audits      *database.PaymentAuditRepository
	provider    *ors.Client
	sellerToken string
	logger      *logrus.Logger
}

// NewOpsHandler creates a new OpsHandler
func NewOpsHandler(
	tickets *database.TicketRepository,
	audits *database.PaymentAuditRepository,
	provider *ors.Client,
	sellerToken string,
	logger *logrus.Logger,
) *OpsHandler {
	return &OpsHandler{
		tickets:     tickets,
		audits:      audits,
		provider:    provider,
		sellerToken: sellerToken,
		logger:      logger,
	}
}

// ListReservationFailures handles GET /api/v1/ops/reservation-failures.
// These are paid tickets whose upstream reservation never completed; every
// row here represents customer money waiting on a manual fix.
func (h *OpsHandler) ListReservationFailures(c *gin.Context) {
	limit := queryLimit(c)

	tickets, err := h.tickets.ListReservationFailed(limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list reservation failures")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load reservation failures"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tickets": tickets,
		"count":   len(tickets),
	})
}

// ListReconciliationMismatches handles GET /api/v1/ops/reconciliations.
func (h *OpsHandler) ListReconciliationMismatches(c *gin.Context) {
	limit := queryLimit(c)

	audits, err := h.audits.ListReconciliationMismatches(limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list reconciliation mismatches")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load reconciliation events"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events": audits,
		"count":  len(audits),
	})
}

// TicketAuditTrail handles GET /api/v1/ops/tickets/:id/audits.
func (h *OpsHandler) TicketAuditTrail(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ticket id"})
		return
	}

	audits, err := h.audits.ListByTicket(id)
	if err != nil {
		h.logger.WithError(err).WithField("ticket_id", id).Error("Failed to load audit trail")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load audit trail"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events": audits,
		"count":  len(audits),
	})
}

// AccountBalance handles GET /api/v1/ops/balance. A low balance is the
// most common cause of reservation failures, so it sits next to the queue.
func (h *OpsHandler) AccountBalance(c *gin.Context) {
	balance, err := h.provider.GetAccountBalance(c.Request.Context(), ors.SellerCredential{Token: h.sellerToken})
	if err != nil {
		h.logger.WithError(err).Error("Failed to fetch seller account balance")
		c.JSON(http.StatusBadGateway, gin.H{"error": "balance is temporarily unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"balance_tomans": balance,
		"balance_rials":  balance * models.RialsPerToman,
	})
}

func queryLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultOpsListLimit)))
	if err != nil || limit <= 0 {
		return defaultOpsListLimit
	}
	return limit
}
