package models

import "time"

// TripOffer is one bookable departure returned by the reservation
// provider's search/info endpoints. Prices are integer tomans.
type TripOffer struct {
	TripCode            string    `json:"tripPlanCode"`
	OriginCityName      string    `json:"originCityName"`
	OriginLocationName  string    `json:"oringinLocationName"`
	DestinationCityName string    `json:"destinationCityName"`
	DestLocationName    string    `json:"destinationLocationName"`
	DepartureAt         time.Time `json:"startingDateTime"`
	OriginalPrice       int64     `json:"originalTicketprice"`
	DiscountedPrice     int64     `json:"afterdiscticketprice"`
	CarrierName         string    `json:"taxiSupervisorName"`
	CarrierID           int       `json:"taxiSupervisorID"`
	CarName             string    `json:"carModelName"`
	Image               string    `json:"image,omitempty"`
}

// SearchTripsRequest identifies a one-day search window between two cities.
type SearchTripsRequest struct {
	OriginID      int       `form:"origin_id" binding:"required"`
	DestinationID int       `form:"destination_id" binding:"required"`
	Date          time.Time `form:"date" time_format:"2006-01-02" binding:"required"`
}
