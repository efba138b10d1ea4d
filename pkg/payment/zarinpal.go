package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/safarline/booking-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// Zarinpal v4 endpoints per environment
const (
	productionPaymentURL = "https://payment.zarinpal.com/pg/v4/payment/request.json"
	productionVerifyURL  = "https://payment.zarinpal.com/pg/v4/payment/verify.json"
	productionGatewayURL = "https://payment.zarinpal.com/pg/StartPay/"

	sandboxPaymentURL = "https://sandbox.zarinpal.com/pg/v4/payment/request.json"
	sandboxVerifyURL  = "https://sandbox.zarinpal.com/pg/v4/payment/verify.json"
	sandboxGatewayURL = "https://sandbox.zarinpal.com/pg/StartPay/"
)

// v4 status codes: 100 = success, 101 = already verified (success on
// verify), negative = error.
const (
	codeSuccess         = 100
	codeAlreadyVerified = 101
)

// ZarinpalConfig configures a Zarinpal client.
type ZarinpalConfig struct {
	MerchantID  string
	CallbackURL string
	Sandbox     bool
	Timeout     time.Duration

	// Overrides for tests; empty means environment defaults
	PaymentURL string
	VerifyURL  string
	GatewayURL string
}

// Zarinpal is the Zarinpal IPG client.
type Zarinpal struct {
	merchantID  string
	callbackURL string
	paymentURL  string
	verifyURL   string
	gatewayURL  string
	client      *http.Client
	logger      *logrus.Logger
}

// NewZarinpal creates a Zarinpal client for the configured environment.
func NewZarinpal(cfg ZarinpalConfig, logger *logrus.Logger) *Zarinpal {
	z := &Zarinpal{
		merchantID:  cfg.MerchantID,
		callbackURL: cfg.CallbackURL,
		paymentURL:  cfg.PaymentURL,
		verifyURL:   cfg.VerifyURL,
		gatewayURL:  cfg.GatewayURL,
		logger:      logger,
		client:      &http.Client{Timeout: cfg.Timeout},
	}
	if z.client.Timeout == 0 {
		z.client.Timeout = 30 * time.Second
	}

	if z.paymentURL == "" {
		if cfg.Sandbox {
			z.paymentURL, z.verifyURL, z.gatewayURL = sandboxPaymentURL, sandboxVerifyURL, sandboxGatewayURL
		} else {
			z.paymentURL, z.verifyURL, z.gatewayURL = productionPaymentURL, productionVerifyURL, productionGatewayURL
		}
	}
	return z
}

type paymentRequest struct {
	MerchantID  string `json:"merchant_id"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	CallbackURL string `json:"callback_url"`
	Mobile      string `json:"mobile,omitempty"`
}

type verifyRequest struct {
	MerchantID string `json:"merchant_id"`
	Amount     int64  `json:"amount"`
	Authority  string `json:"authority"`
}

type responseData struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Authority string `json:"authority"`
	RefID     int64  `json:"ref_id"`
	CardPan   string `json:"card_pan"`
}

type responseEnvelope struct {
	Data   json.RawMessage `json:"data"`
	Errors json.RawMessage `json:"errors"`
}

// RequestPayment implements Gateway.
func (z *Zarinpal) RequestPayment(ctx context.Context, amountRials int64, description, mobile string) (string, error) {
	req := paymentRequest{
		MerchantID:  z.merchantID,
		Amount:      amountRials,
		Description: description,
		CallbackURL: z.callbackURL,
		Mobile:      mobile,
	}

	data, err := z.post(ctx, z.paymentURL, req)
	if err != nil {
		return "", err
	}

	if data.Code == codeSuccess && data.Authority != "" {
		z.logger.WithFields(logrus.Fields{
			"authority": data.Authority,
			"amount":    amountRials,
		}).Info("Zarinpal payment request accepted")
		return data.Authority, nil
	}

	return "", &models.UpstreamRejectedError{
		System: "zarinpal",
		Code:   data.Code,
		Reason: reasonFor(data),
	}
}

// VerifyPayment implements Gateway. Code 101 (already verified) is treated
// as success so that a replayed verify returns the same outcome.
func (z *Zarinpal) VerifyPayment(ctx context.Context, authority string, amountRials int64) (int64, string, error) {
	req := verifyRequest{
		MerchantID: z.merchantID,
		Amount:     amountRials,
		Authority:  authority,
	}

	data, err := z.post(ctx, z.verifyURL, req)
	if err != nil {
		return 0, "", err
	}

	if data.Code == codeSuccess || data.Code == codeAlreadyVerified {
		z.logger.WithFields(logrus.Fields{
			"authority": authority,
			"ref_id":    data.RefID,
		}).Info("Zarinpal payment verified")
		return data.RefID, data.CardPan, nil
	}

	return 0, "", &models.UpstreamRejectedError{
		System: "zarinpal",
		Code:   data.Code,
		Reason: reasonFor(data),
	}
}

// StartPayURL implements Gateway.
func (z *Zarinpal) StartPayURL(authority string) string {
	return z.gatewayURL + authority
}

// post sends one JSON request and decodes the v4 envelope. Network
// failures, non-2xx statuses and HTML error pages are transient; a decoded
// envelope with an error code is a rejection decided by the caller.
func (z *Zarinpal) post(ctx context.Context, url string, payload interface{}) (*responseData, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := z.client.Do(httpReq)
	if err != nil {
		z.logger.WithError(err).Error("Zarinpal request failed")
		return nil, &models.UpstreamTransientError{System: "zarinpal", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &models.UpstreamTransientError{System: "zarinpal", Err: err}
	}

	// The gateway occasionally serves an HTML error page instead of JSON
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "<") {
		z.logger.WithField("status_code", resp.StatusCode).Error("Zarinpal returned HTML instead of JSON")
		return nil, &models.UpstreamTransientError{
			System: "zarinpal",
			Err:    fmt.Errorf("gateway returned HTML (status %d)", resp.StatusCode),
		}
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, &models.UpstreamTransientError{
			System: "zarinpal",
			Err:    fmt.Errorf("gateway returned status %d", resp.StatusCode),
		}
	}

	var envelope responseEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, &models.UpstreamTransientError{
			System: "zarinpal",
			Err:    fmt.Errorf("failed to parse gateway response: %w", err),
		}
	}

	var data responseData
	// data is {} or absent on errors; errors then carries the code
	if len(envelope.Data) > 0 && string(envelope.Data) != "[]" {
		if err := json.Unmarshal(envelope.Data, &data); err == nil && data.Code != 0 {
			return &data, nil
		}
	}
	if len(envelope.Errors) > 0 {
		var errData responseData
		if err := json.Unmarshal(envelope.Errors, &errData); err == nil && errData.Code != 0 {
			return &errData, nil
		}
	}

	return nil, &models.UpstreamTransientError{
		System: "zarinpal",
		Err:    fmt.Errorf("unexpected gateway response: %s", trimmed),
	}
}

func reasonFor(data *responseData) string {
	if data.Message != "" {
		return data.Message
	}
	return errorMessage(data.Code)
}

// errorMessage maps documented Zarinpal v4 codes to readable reasons.
func errorMessage(code int) string {
	switch code {
	case -1:
		return "incomplete request data"
	case -2:
		return "merchant id or acceptor ip is invalid"
	case -3:
		return "amount exceeds the allowed transaction limit"
	case -9:
		return "validation error in request fields"
	case -11:
		return "payment request not found"
	case -12:
		return "request can no longer be edited"
	case -14:
		return "callback domain does not match the registered domain"
	case -21:
		return "no financial operation found for this transaction"
	case -22:
		return "transaction was unsuccessful"
	case -33:
		return "transaction amount does not match the paid amount"
	case -34:
		return "transaction split limit exceeded"
	case -51:
		return "payment session was unsuccessful"
	case -54:
		return "payment request is archived"
	case codeSuccess:
		return "operation successful"
	case codeAlreadyVerified:
		return "payment already verified"
	default:
		return fmt.Sprintf("unknown gateway error (code %d)", code)
	}
}
