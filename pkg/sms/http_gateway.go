package sms

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
)

// HTTPGateway sends SMS through an HTTP SMS provider (Kavenegar-style
// GET API: apikey in the path, receptor/sender/message as query params).
type HTTPGateway struct {
	apiURL string
	apiKey string
	sender string
	client *http.Client
	logger *logrus.Logger
}

// HTTPConfig configures the HTTP SMS gateway.
type HTTPConfig struct {
	APIURL string
	APIKey string
	Sender string
}

// NewHTTPGateway creates a new HTTP SMS gateway
func NewHTTPGateway(cfg HTTPConfig, logger *logrus.Logger) *HTTPGateway {
	return &HTTPGateway{
		apiURL: cfg.APIURL,
		apiKey: cfg.APIKey,
		sender: cfg.Sender,
		client: &http.Client{Timeout: 15 * time.Second},
		logger: logger,
	}
}

// Send implements Gateway.
func (g *HTTPGateway) Send(phone, message string) error {
	endpoint := fmt.Sprintf("%s/%s/sms/send.json?receptor=%s&sender=%s&message=%s",
		g.apiURL, g.apiKey,
		url.QueryEscape(phone), url.QueryEscape(g.sender), url.QueryEscape(message))

	resp, err := g.client.Get(endpoint)
	if err != nil {
		return fmt.Errorf("failed to call SMS gateway: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("SMS gateway returned status %d: %s", resp.StatusCode, string(body))
	}

	g.logger.WithField("phone", phone).Debug("SMS sent")
	return nil
}

// GetName implements Gateway.
func (g *HTTPGateway) GetName() string {
	return "http"
}

// DevGateway logs messages instead of sending them. Used outside
// production so the flow can run without SMS credentials.
type DevGateway struct {
	logger *logrus.Logger
}

// NewDevGateway creates a new dev-mode gateway
func NewDevGateway(logger *logrus.Logger) *DevGateway {
	return &DevGateway{logger: logger}
}

// Send implements Gateway.
func (g *DevGateway) Send(phone, message string) error {
	g.logger.WithFields(logrus.Fields{
		"phone":   phone,
		"message": message,
	}).Info("[DEV SMS] message not sent")
	return nil
}

// GetName implements Gateway.
func (g *DevGateway) GetName() string {
	return "dev"
}
