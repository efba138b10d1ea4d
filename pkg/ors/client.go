// Package ors is the client for the upstream online reservation system:
// trip search and info, seat holds and hold confirmation, and seller
// account balance. Every call is single-attempt; retry policy belongs to
// the caller.
package ors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/safarline/booking-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// Config configures the ORS client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client talks to the reservation provider's HTTP API.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *logrus.Logger
}

// NewClient creates an ORS client.
func NewClient(cfg Config, logger *logrus.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Passenger carries the fields the provider needs to confirm a hold.
type Passenger struct {
	FirstName    string `json:"passengerFirstName"`
	LastName     string `json:"passengerLastName"`
	NationalCode string `json:"passengerNationalCode"`
	Phone        string `json:"passengerNumberPhone"`
}

type holdRequest struct {
	IsPrivate bool   `json:"isPrivate"`
	TripCode  string `json:"tripCode"`
}

type holdResponse struct {
	TicketCode string `json:"ticketCode"`
	Error      string `json:"error"`
}

type confirmRequest struct {
	ReservationCode string `json:"reservationCode"`
	Passenger
}

type confirmResponse struct {
	TicketCode string `json:"ticketCode"`
	Error      string `json:"error"`
}

type balanceResponse struct {
	AccountBalanceTomans string `json:"accountBalance_tomans"`
}

// GetTripInfo fetches one trip offer by code.
func (c *Client) GetTripInfo(ctx context.Context, cred SellerCredential, tripCode string) (*models.TripOffer, error) {
	url := fmt.Sprintf("%s/Trips/getTripinfo?tripcode=%s", c.baseURL, tripCode)

	var offer models.TripOffer
	status, err := c.getJSON(ctx, cred, url, &offer)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound || offer.TripCode == "" {
		return nil, models.ErrTripNotFound
	}
	return &offer, nil
}

// SearchTrips fetches offers between two cities for a date window.
func (c *Client) SearchTrips(ctx context.Context, cred SellerCredential, from, to time.Time, originID, destID int) ([]models.TripOffer, error) {
	url := fmt.Sprintf("%s/Trips/GetPlanedTripsbyCityID/%s/%s/%d/%d",
		c.baseURL, from.Format("2006-01-02"), to.Format("2006-01-02"), originID, destID)

	var offers []models.TripOffer
	if _, err := c.getJSON(ctx, cred, url, &offers); err != nil {
		return nil, err
	}
	return offers, nil
}

// GetAccountBalance fetches the seller account balance in tomans.
func (c *Client) GetAccountBalance(ctx context.Context, cred SellerCredential) (int64, error) {
	url := c.baseURL + "/Account/getAccountBalance"

	var resp balanceResponse
	if _, err := c.getJSON(ctx, cred, url, &resp); err != nil {
		return 0, err
	}
	balance, err := strconv.ParseInt(strings.TrimSpace(resp.AccountBalanceTomans), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse account balance %q: %w", resp.AccountBalanceTomans, err)
	}
	return balance, nil
}

// HoldSeat places a temporary hold on a seat for the trip and returns the
// provider's hold code. An insufficient seller balance is returned as
// models.ErrInsufficientBalance so the caller can treat it as a business
// condition rather than an outage.
func (c *Client) HoldSeat(ctx context.Context, cred SellerCredential, tripCode string) (string, error) {
	var resp holdResponse
	status, err := c.postJSON(ctx, cred, c.baseURL+"/Tickets/reserverTemporarily", holdRequest{
		IsPrivate: true,
		TripCode:  tripCode,
	}, &resp)
	if err != nil {
		return "", err
	}

	if status != http.StatusOK {
		if isInsufficientBalance(resp.Error) {
			return "", models.ErrInsufficientBalance
		}
		return "", &models.UpstreamRejectedError{
			System: "ors",
			Code:   status,
			Reason: orError(resp.Error, "seat hold rejected"),
		}
	}
	if resp.TicketCode == "" {
		return "", &models.UpstreamRejectedError{System: "ors", Code: status, Reason: "hold response carried no code"}
	}

	c.logger.WithFields(logrus.Fields{
		"trip_code": tripCode,
		"hold_code": resp.TicketCode,
	}).Info("Seat held temporarily")
	return resp.TicketCode, nil
}

// ConfirmHold confirms a prior hold against passenger details and returns
// the provider-issued ticket code. Single attempt: the hold may already be
// consumed, so the caller must never retry this blindly.
func (c *Client) ConfirmHold(ctx context.Context, cred SellerCredential, holdCode string, passenger Passenger) (string, error) {
	var resp confirmResponse
	status, err := c.postJSON(ctx, cred, c.baseURL+"/Tickets/confirmReserve", confirmRequest{
		ReservationCode: holdCode,
		Passenger:       passenger,
	}, &resp)
	if err != nil {
		return "", err
	}

	if status != http.StatusOK {
		if isInsufficientBalance(resp.Error) {
			return "", models.ErrInsufficientBalance
		}
		return "", &models.UpstreamRejectedError{
			System: "ors",
			Code:   status,
			Reason: orError(resp.Error, "hold confirmation rejected"),
		}
	}
	if resp.TicketCode == "" {
		return "", &models.UpstreamRejectedError{System: "ors", Code: status, Reason: "confirm response carried no ticket code"}
	}

	c.logger.WithFields(logrus.Fields{
		"hold_code":   holdCode,
		"ticket_code": resp.TicketCode,
	}).Info("Reservation confirmed")
	return resp.TicketCode, nil
}

func (c *Client) getJSON(ctx context.Context, cred SellerCredential, url string, dest interface{}) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	c.authorize(req, cred)

	return c.do(req, dest)
}

func (c *Client) postJSON(ctx context.Context, cred SellerCredential, url string, payload, dest interface{}) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req, cred)

	return c.do(req, dest)
}

// do executes the request and decodes the JSON body into dest. 5xx and
// transport errors are transient; 4xx responses are decoded and left for
// the caller to interpret.
func (c *Client) do(req *http.Request, dest interface{}) (int, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, &models.UpstreamTransientError{System: "ors", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, &models.UpstreamTransientError{System: "ors", Err: err}
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return resp.StatusCode, &models.UpstreamTransientError{
			System: "ors",
			Err:    fmt.Errorf("provider returned status %d", resp.StatusCode),
		}
	}

	if len(raw) > 0 && dest != nil {
		if err := json.Unmarshal(raw, dest); err != nil {
			// A 4xx with a non-JSON body still has a meaningful status
			if resp.StatusCode == http.StatusOK {
				return resp.StatusCode, &models.UpstreamTransientError{
					System: "ors",
					Err:    fmt.Errorf("failed to parse provider response: %w", err),
				}
			}
		}
	}
	return resp.StatusCode, nil
}

func (c *Client) authorize(req *http.Request, cred SellerCredential) {
	if cred.Valid() {
		req.Header.Set("Authorization", "Bearer "+cred.Token)
	}
	if cred.ExpiresSoon(24 * time.Hour) {
		c.logger.Warn("Seller API token expires within 24h")
	}
}

func isInsufficientBalance(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "insufficient") || strings.Contains(m, "balance")
}

func orError(msg, fallback string) string {
	if msg != "" {
		return msg
	}
	return fallback
}
