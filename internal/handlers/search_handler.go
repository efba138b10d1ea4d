package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/safarline/booking-backend/internal/models"
	"github.com/safarline/booking-backend/internal/services"
	"github.com/sirupsen/logrus"
)

// SearchHandler handles customer-facing trip search endpoints
type SearchHandler struct {
	searchService *services.SearchService
	logger        *logrus.Logger
}

// NewSearchHandler creates a new SearchHandler
func NewSearchHandler(searchService *services.SearchService, logger *logrus.Logger) *SearchHandler {
	return &SearchHandler{searchService: searchService, logger: logger}
}

// SearchTrips handles GET /api/v1/trips/search?origin_id=&destination_id=&date=
func (h *SearchHandler) SearchTrips(c *gin.Context) {
	var req models.SearchTripsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid search parameters: " + err.Error()})
		return
	}

	offers, err := h.searchService.SearchTrips(c.Request.Context(), req)
	if err != nil {
		h.logger.WithError(err).Error("Trip search failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "trip search is temporarily unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"trips": offers,
		"count": len(offers),
	})
}

// GetTrip handles GET /api/v1/trips/:trip_code
func (h *SearchHandler) GetTrip(c *gin.Context) {
	tripCode := c.Param("trip_code")
	if tripCode == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "trip_code is required"})
		return
	}

	offer, err := h.searchService.GetTrip(c.Request.Context(), tripCode)
	if err != nil {
		if errors.Is(err, models.ErrTripNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "trip not found or no longer bookable"})
			return
		}
		h.logger.WithError(err).WithField("trip_code", tripCode).Error("Trip lookup failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "trip lookup is temporarily unavailable"})
		return
	}

	c.JSON(http.StatusOK, offer)
}
