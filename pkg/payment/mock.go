package payment

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Mock is an in-process gateway for local development. It accepts every
// request and verifies every mock authority, so the full booking flow can
// be exercised without Zarinpal credentials.
type Mock struct {
	baseURL string // server base URL hosting the mock gateway page
	nextRef atomic.Int64
	logger  *logrus.Logger
}

// NewMock creates a mock gateway whose payment page lives under baseURL.
func NewMock(baseURL string, logger *logrus.Logger) *Mock {
	m := &Mock{baseURL: strings.TrimRight(baseURL, "/"), logger: logger}
	m.nextRef.Store(900000000)
	return m
}

// RequestPayment implements Gateway.
func (m *Mock) RequestPayment(ctx context.Context, amountRials int64, description, mobile string) (string, error) {
	authority := "MOCK-" + strings.ToUpper(uuid.New().String()[:8])
	m.logger.WithFields(logrus.Fields{
		"authority": authority,
		"amount":    amountRials,
	}).Info("Mock payment requested")
	return authority, nil
}

// VerifyPayment implements Gateway.
func (m *Mock) VerifyPayment(ctx context.Context, authority string, amountRials int64) (int64, string, error) {
	refID := m.nextRef.Add(1)
	m.logger.WithFields(logrus.Fields{
		"authority": authority,
		"ref_id":    refID,
	}).Info("Mock payment verified")
	return refID, "603799******1234", nil
}

// StartPayURL implements Gateway. Points at the local mock gateway page
// where the developer picks a success or failure outcome.
func (m *Mock) StartPayURL(authority string) string {
	return fmt.Sprintf("%s/payment/mock-gateway?authority=%s", m.baseURL, authority)
}
