package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/safarline/booking-backend/internal/models"
	"github.com/safarline/booking-backend/internal/services"
	"github.com/sirupsen/logrus"
)

// BookingHandler handles the confirmation form and the post-payment
// confirmation view
type BookingHandler struct {
	orchestrator *services.BookingOrchestratorService
	logger       *logrus.Logger
}

// NewBookingHandler creates a new BookingHandler
func NewBookingHandler(orchestrator *services.BookingOrchestratorService, logger *logrus.Logger) *BookingHandler {
	return &BookingHandler{orchestrator: orchestrator, logger: logger}
}

// CreateBooking handles POST /api/v1/bookings. It freezes the trip price,
// persists the ticket, requests a payment authority and returns the gateway
// redirect. The customer pays the amount returned here, nothing else.
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	var req models.CreateTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	ticket, err := h.orchestrator.CreateTicket(c.Request.Context(), req, nil)
	if err != nil {
		var vErr *models.ValidationError
		if errors.As(err, &vErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": vErr.Message, "field": vErr.Field})
			return
		}
		if errors.Is(err, models.ErrTripNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "trip not found or no longer bookable"})
			return
		}
		h.logger.WithError(err).Error("Failed to create ticket")
		c.JSON(http.StatusBadGateway, gin.H{"error": "booking is temporarily unavailable, please try again"})
		return
	}

	redirect, err := h.orchestrator.RequestPayment(c.Request.Context(), ticket.ID)
	if err != nil {
		var rejected *models.UpstreamRejectedError
		if errors.As(err, &rejected) {
			c.JSON(http.StatusBadGateway, gin.H{"error": "payment gateway declined the request: " + rejected.Reason})
			return
		}
		h.logger.WithError(err).WithField("ticket_id", ticket.ID).Error("Failed to request payment")
		c.JSON(http.StatusBadGateway, gin.H{"error": "payment is temporarily unavailable, please try again"})
		return
	}

	c.JSON(http.StatusCreated, redirect)
}

// GetConfirmation handles GET /api/v1/bookings/:ticket_code. Only paid
// tickets resolve; the page this feeds is the customer's proof of purchase.
func (h *BookingHandler) GetConfirmation(c *gin.Context) {
	code := c.Param("ticket_code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ticket_code is required"})
		return
	}

	ticket, err := h.orchestrator.GetConfirmation(code)
	if err != nil {
		if errors.Is(err, models.ErrTicketNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no paid ticket with this code"})
			return
		}
		h.logger.WithError(err).Error("Confirmation lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load ticket"})
		return
	}

	c.JSON(http.StatusOK, ticket)
}
