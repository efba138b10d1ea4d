package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	ua "github.com/mssola/user_agent"
	"github.com/safarline/booking-backend/internal/models"
	"github.com/safarline/booking-backend/internal/services"
	"github.com/sirupsen/logrus"
)

// PaymentHandler receives the gateway's return redirect
type PaymentHandler struct {
	orchestrator *services.BookingOrchestratorService
	logger       *logrus.Logger
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(orchestrator *services.BookingOrchestratorService, logger *logrus.Logger) *PaymentHandler {
	return &PaymentHandler{orchestrator: orchestrator, logger: logger}
}

// Callback handles GET /api/v1/payment/callback?Authority=&Status=. The
// gateway redirects the customer here after the payment page; duplicate
// hits are answered from the ticket's settled state.
func (h *PaymentHandler) Callback(c *gin.Context) {
	authority := c.Query("Authority")
	status := c.Query("Status")
	if authority == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Authority is required"})
		return
	}

	outcome, err := h.orchestrator.HandleCallback(c.Request.Context(), authority, status, callbackMeta(c))
	if err != nil {
		if errors.Is(err, models.ErrTicketNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no booking matches this payment"})
			return
		}
		h.logger.WithError(err).WithField("authority", authority).Error("Callback processing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not process payment result"})
		return
	}

	c.JSON(http.StatusOK, outcome)
}

// callbackMeta captures request metadata for the payment audit trail.
func callbackMeta(c *gin.Context) services.CallbackMeta {
	rawUA := c.Request.UserAgent()
	meta := services.CallbackMeta{
		IPAddress: c.ClientIP(),
		UserAgent: rawUA,
	}
	if rawUA != "" {
		parser := ua.New(rawUA)
		browser, version := parser.Browser()
		if browser != "" {
			meta.Browser = browser
			if version != "" {
				meta.Browser = browser + " " + version
			}
		}
	}
	return meta
}
