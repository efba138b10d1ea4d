package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// MockGatewayHandler stands in for the payment gateway's hosted page in
// local development. It is only routed when the mock gateway is active.
type MockGatewayHandler struct {
	callbackURL string
}

// NewMockGatewayHandler creates a new MockGatewayHandler
func NewMockGatewayHandler(callbackURL string) *MockGatewayHandler {
	return &MockGatewayHandler{callbackURL: callbackURL}
}

// Show handles GET /payment/mock-gateway?authority=. It presents the two
// choices a customer has on the real payment page.
func (h *MockGatewayHandler) Show(c *gin.Context) {
	authority := c.Query("authority")
	if authority == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "authority is required"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"authority": authority,
		"pay_url":   fmt.Sprintf("%s?Authority=%s&Status=OK", h.callbackURL, authority),
		"cancel_url": fmt.Sprintf("%s?Authority=%s&Status=NOK", h.callbackURL, authority),
	})
}
