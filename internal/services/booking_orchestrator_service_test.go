package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/safarline/booking-backend/internal/config"
	"github.com/safarline/booking-backend/internal/models"
	"github.com/safarline/booking-backend/pkg/ors"
	"github.com/safarline/booking-backend/pkg/validator"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockTicketStore is a mock implementation of TicketStore
type MockTicketStore struct {
	mock.Mock
}

func (m *MockTicketStore) Create(ticket *models.Ticket) error {
	args := m.Called(ticket)
	if args.Error(0) == nil {
		ticket.ID = 42
	}
	return args.Error(0)
}

func (m *MockTicketStore) GetByID(id int64) (*models.Ticket, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Ticket), args.Error(1)
}

func (m *MockTicketStore) GetByAuthority(authority string) (*models.Ticket, error) {
	args := m.Called(authority)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Ticket), args.Error(1)
}

func (m *MockTicketStore) GetByTicketCode(code string) (*models.Ticket, error) {
	args := m.Called(code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Ticket), args.Error(1)
}

func (m *MockTicketStore) SetPaymentAuthority(id int64, authority string) error {
	return m.Called(id, authority).Error(0)
}

func (m *MockTicketStore) TransitionStatus(id int64, from, to models.TicketStatus) error {
	return m.Called(id, from, to).Error(0)
}

func (m *MockTicketStore) MarkVerified(id int64, refID, cardPan string) error {
	return m.Called(id, refID, cardPan).Error(0)
}

func (m *MockTicketStore) MarkReservationConfirmed(id int64, ticketCode string) error {
	return m.Called(id, ticketCode).Error(0)
}

func (m *MockTicketStore) MarkReservationFailed(id int64, sentinel string) error {
	return m.Called(id, sentinel).Error(0)
}

func (m *MockTicketStore) DeleteUnpaid(id int64) error {
	return m.Called(id).Error(0)
}

// MockAgencyStore is a mock implementation of AgencyStore
type MockAgencyStore struct {
	mock.Mock
}

func (m *MockAgencyStore) GetByID(id int64) (*models.Agency, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Agency), args.Error(1)
}

func (m *MockAgencyStore) GetGuestAgency() (*models.Agency, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Agency), args.Error(1)
}

// MockPaymentGateway is a mock implementation of PaymentGateway
type MockPaymentGateway struct {
	mock.Mock
}

func (m *MockPaymentGateway) RequestPayment(ctx context.Context, amountRials int64, description, mobile string) (string, error) {
	args := m.Called(ctx, amountRials, description, mobile)
	return args.String(0), args.Error(1)
}

func (m *MockPaymentGateway) VerifyPayment(ctx context.Context, authority string, amountRials int64) (int64, string, error) {
	args := m.Called(ctx, authority, amountRials)
	return args.Get(0).(int64), args.String(1), args.Error(2)
}

func (m *MockPaymentGateway) StartPayURL(authority string) string {
	return m.Called(authority).String(0)
}

// MockReservationClient is a mock implementation of ReservationClient
type MockReservationClient struct {
	mock.Mock
}

func (m *MockReservationClient) GetTripInfo(ctx context.Context, cred ors.SellerCredential, tripCode string) (*models.TripOffer, error) {
	args := m.Called(ctx, cred, tripCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TripOffer), args.Error(1)
}

func (m *MockReservationClient) HoldSeat(ctx context.Context, cred ors.SellerCredential, tripCode string) (string, error) {
	args := m.Called(ctx, cred, tripCode)
	return args.String(0), args.Error(1)
}

func (m *MockReservationClient) ConfirmHold(ctx context.Context, cred ors.SellerCredential, holdCode string, passenger ors.Passenger) (string, error) {
	args := m.Called(ctx, cred, holdCode, passenger)
	return args.String(0), args.Error(1)
}

// MockAuditLog is a mock implementation of AuditLog
type MockAuditLog struct {
	mock.Mock
}

func (m *MockAuditLog) Log(audit *models.PaymentAudit) error {
	return m.Called(audit).Error(0)
}

// MockNotifier is a mock implementation of BookingNotifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) TicketIssued(ticket *models.Ticket) {
	m.Called(ticket)
}

func (m *MockNotifier) OperatorAlert(ticket *models.Ticket, refID string) {
	m.Called(ticket, refID)
}

type orchestratorFixture struct {
	tickets  *MockTicketStore
	agencies *MockAgencyStore
	gateway  *MockPaymentGateway
	provider *MockReservationClient
	audits   *MockAuditLog
	notifier *MockNotifier
	svc      *BookingOrchestratorService
}

func newOrchestratorFixture() *orchestratorFixture {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	f := &orchestratorFixture{
		tickets:  &MockTicketStore{},
		agencies: &MockAgencyStore{},
		gateway:  &MockPaymentGateway{},
		provider: &MockReservationClient{},
		audits:   &MockAuditLog{},
		notifier: &MockNotifier{},
	}

	cfg := config.BookingConfig{
		MinLeadTime:     45 * time.Minute,
		LookupRetries:   3,
		RetentionWindow: 48 * time.Hour,
	}

	f.svc = NewBookingOrchestratorService(
		f.tickets, f.agencies, f.gateway, f.provider, f.audits, f.notifier,
		validator.NewPassengerValidator(), cfg, "default-token", logger,
	)
	f.svc.sleep = func(time.Duration) {}
	f.audits.On("Log", mock.Anything).Return(nil).Maybe()

	return f
}

func guestAgency() *models.Agency {
	return &models.Agency{ID: 1, Name: "Guest", ORSAPIToken: "agency-token", IsGuest: true}
}

func requestedTicket() *models.Ticket {
	authority := "A0001"
	return &models.Ticket{
		ID:               42,
		Status:           models.StatusPaymentRequested,
		FirstName:        "Sara",
		LastName:         "Ahmadi",
		Phone:            "09123456789",
		NationalCode:     "0012345678",
		Gender:           "female",
		TripCode:         "TRIP-9",
		TripOrigin:       "Tehran",
		TripDestination:  "Isfahan",
		OriginalPrice:    150000,
		FinalPrice:       120000,
		DepartureAt:      time.Now().Add(3 * time.Hour),
		PaymentAuthority: &authority,
		AgencyID:         1,
	}
}

func validRequest() models.CreateTicketRequest {
	return models.CreateTicketRequest{
		TripCode: "TRIP-9",
		Passenger: models.PassengerInfo{
			FirstName:    "Sara",
			LastName:     "Ahmadi",
			Phone:        "09123456789",
			NationalCode: "0012345678",
			Gender:       "female",
		},
	}
}

func TestCreateTicket_FreezesPriceFromLookup(t *testing.T) {
	f := newOrchestratorFixture()

	f.agencies.On("GetGuestAgency").Return(guestAgency(), nil)
	f.provider.On("GetTripInfo", mock.Anything, ors.SellerCredential{Token: "agency-token"}, "TRIP-9").
		Return(&models.TripOffer{
			TripCode:            "TRIP-9",
			OriginCityName:      "Tehran",
			DestinationCityName: "Isfahan",
			OriginalPrice:       150000,
			DiscountedPrice:     120000,
			DepartureAt:         time.Now().Add(3 * time.Hour),
		}, nil)
	f.tickets.On("Create", mock.AnythingOfType("*models.Ticket")).Return(nil)

	ticket, err := f.svc.CreateTicket(context.Background(), validRequest(), nil)

	require.NoError(t, err)
	assert.Equal(t, int64(120000), ticket.FinalPrice)
	assert.Equal(t, int64(150000), ticket.OriginalPrice)
	assert.Equal(t, "Tehran", ticket.TripOrigin)
	f.tickets.AssertExpectations(t)
}

func TestCreateTicket_RetriesTransientLookup(t *testing.T) {
	f := newOrchestratorFixture()

	f.agencies.On("GetGuestAgency").Return(guestAgency(), nil)

	transient := &models.UpstreamTransientError{System: "ors", Err: errors.New("timeout")}
	f.provider.On("GetTripInfo", mock.Anything, mock.Anything, "TRIP-9").
		Return(nil, transient).Twice()
	f.provider.On("GetTripInfo", mock.Anything, mock.Anything, "TRIP-9").
		Return(&models.TripOffer{
			TripCode:        "TRIP-9",
			DiscountedPrice: 120000,
			DepartureAt:     time.Now().Add(3 * time.Hour),
		}, nil).Once()
	f.tickets.On("Create", mock.Anything).Return(nil)

	_, err := f.svc.CreateTicket(context.Background(), validRequest(), nil)

	require.NoError(t, err)
	f.provider.AssertNumberOfCalls(t, "GetTripInfo", 3)
}

func TestCreateTicket_GivesUpAfterBoundedAttempts(t *testing.T) {
	f := newOrchestratorFixture()

	f.agencies.On("GetGuestAgency").Return(guestAgency(), nil)
	f.provider.On("GetTripInfo", mock.Anything, mock.Anything, "TRIP-9").
		Return(nil, &models.UpstreamTransientError{System: "ors", Err: errors.New("down")})

	_, err := f.svc.CreateTicket(context.Background(), validRequest(), nil)

	require.Error(t, err)
	f.provider.AssertNumberOfCalls(t, "GetTripInfo", 3)
	f.tickets.AssertNotCalled(t, "Create", mock.Anything)
}

func TestCreateTicket_RejectsDepartureInsideLeadWindow(t *testing.T) {
	f := newOrchestratorFixture()

	f.agencies.On("GetGuestAgency").Return(guestAgency(), nil)
	f.provider.On("GetTripInfo", mock.Anything, mock.Anything, "TRIP-9").
		Return(&models.TripOffer{
			TripCode:    "TRIP-9",
			DepartureAt: time.Now().Add(20 * time.Minute),
		}, nil)

	_, err := f.svc.CreateTicket(context.Background(), validRequest(), nil)

	var vErr *models.ValidationError
	require.ErrorAs(t, err, &vErr)
	f.tickets.AssertNotCalled(t, "Create", mock.Anything)
}

func TestCreateTicket_RejectsInvalidPassengerWithoutLookup(t *testing.T) {
	f := newOrchestratorFixture()

	req := validRequest()
	req.Passenger.Phone = "12345"

	_, err := f.svc.CreateTicket(context.Background(), req, nil)

	var vErr *models.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "phone", vErr.Field)
	f.provider.AssertNotCalled(t, "GetTripInfo", mock.Anything, mock.Anything, mock.Anything)
}

func TestRequestPayment_ConvertsFrozenPriceToRials(t *testing.T) {
	f := newOrchestratorFixture()

	ticket := requestedTicket()
	ticket.Status = models.StatusCreated
	ticket.PaymentAuthority = nil

	f.tickets.On("GetByID", int64(42)).Return(ticket, nil)
	f.gateway.On("RequestPayment", mock.Anything, int64(1200000), mock.Anything, "09123456789").
		Return("A0001", nil)
	f.gateway.On("StartPayURL", "A0001").Return("https://gateway/StartPay/A0001")
	f.tickets.On("SetPaymentAuthority", int64(42), "A0001").Return(nil)

	redirect, err := f.svc.RequestPayment(context.Background(), 42)

	require.NoError(t, err)
	assert.Equal(t, int64(1200000), redirect.Amount)
	assert.Equal(t, "https://gateway/StartPay/A0001", redirect.PaymentURL)
	f.tickets.AssertExpectations(t)
}

func TestRequestPayment_DeclineRemovesUnpaidTicket(t *testing.T) {
	f := newOrchestratorFixture()

	ticket := requestedTicket()
	ticket.Status = models.StatusCreated
	ticket.PaymentAuthority = nil

	f.tickets.On("GetByID", int64(42)).Return(ticket, nil)
	f.gateway.On("RequestPayment", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", &models.UpstreamRejectedError{System: "zarinpal", Code: -9, Reason: "invalid amount"})
	f.tickets.On("DeleteUnpaid", int64(42)).Return(nil)

	_, err := f.svc.RequestPayment(context.Background(), 42)

	require.Error(t, err)
	f.tickets.AssertCalled(t, "DeleteUnpaid", int64(42))
	f.tickets.AssertNotCalled(t, "SetPaymentAuthority", mock.Anything, mock.Anything)
}

func TestHandleCallback_FullSuccessPath(t *testing.T) {
	f := newOrchestratorFixture()

	ticket := requestedTicket()
	f.tickets.On("GetByAuthority", "A0001").Return(ticket, nil)
	f.gateway.On("VerifyPayment", mock.Anything, "A0001", int64(1200000)).
		Return(int64(777123), "603799******1234", nil)
	f.tickets.On("MarkVerified", int64(42), "777123", "603799******1234").Return(nil)
	f.agencies.On("GetByID", int64(1)).Return(guestAgency(), nil)
	f.provider.On("HoldSeat", mock.Anything, ors.SellerCredential{Token: "agency-token"}, "TRIP-9").
		Return("HOLD-5", nil)
	f.provider.On("ConfirmHold", mock.Anything, mock.Anything, "HOLD-5", ors.Passenger{
		FirstName:    "Sara",
		LastName:     "Ahmadi",
		NationalCode: "0012345678",
		Phone:        "09123456789",
	}).Return("TKT-100", nil)
	f.tickets.On("MarkReservationConfirmed", int64(42), "TKT-100").Return(nil)
	f.notifier.On("TicketIssued", mock.Anything).Return()

	outcome, err := f.svc.HandleCallback(context.Background(), "A0001", "OK", CallbackMeta{})

	require.NoError(t, err)
	assert.True(t, outcome.Paid)
	assert.Equal(t, models.StatusReservationConfirmed, outcome.Status)
	assert.Equal(t, "TKT-100", outcome.TicketCode)
	assert.Equal(t, "777123", outcome.RefID)
	f.tickets.AssertExpectations(t)
	f.provider.AssertExpectations(t)
	f.notifier.AssertExpectations(t)
}

func TestHandleCallback_CancelledAtGateway(t *testing.T) {
	f := newOrchestratorFixture()

	ticket := requestedTicket()
	f.tickets.On("GetByAuthority", "A0001").Return(ticket, nil)
	f.tickets.On("TransitionStatus", int64(42), models.StatusPaymentRequested, models.StatusVerificationFailed).
		Return(nil)

	outcome, err := f.svc.HandleCallback(context.Background(), "A0001", "NOK", CallbackMeta{})

	require.NoError(t, err)
	assert.False(t, outcome.Paid)
	assert.Equal(t, models.StatusVerificationFailed, outcome.Status)
	f.gateway.AssertNotCalled(t, "VerifyPayment", mock.Anything, mock.Anything, mock.Anything)
	f.provider.AssertNotCalled(t, "HoldSeat", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleCallback_VerificationDeclined(t *testing.T) {
	f := newOrchestratorFixture()

	ticket := requestedTicket()
	f.tickets.On("GetByAuthority", "A0001").Return(ticket, nil)
	f.gateway.On("VerifyPayment", mock.Anything, "A0001", int64(1200000)).
		Return(int64(0), "", &models.UpstreamRejectedError{System: "zarinpal", Code: -51, Reason: "session failed"})
	f.tickets.On("TransitionStatus", int64(42), models.StatusPaymentRequested, models.StatusVerificationFailed).
		Return(nil)

	outcome, err := f.svc.HandleCallback(context.Background(), "A0001", "OK", CallbackMeta{})

	require.NoError(t, err)
	assert.False(t, outcome.Paid)
	assert.Equal(t, models.StatusVerificationFailed, outcome.Status)
	f.provider.AssertNotCalled(t, "HoldSeat", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleCallback_UnreachableVerifyLeavesTicketReplayable(t *testing.T) {
	f := newOrchestratorFixture()

	ticket := requestedTicket()
	f.tickets.On("GetByAuthority", "A0001").Return(ticket, nil)
	f.gateway.On("VerifyPayment", mock.Anything, "A0001", int64(1200000)).
		Return(int64(0), "", &models.UpstreamTransientError{System: "zarinpal", Err: errors.New("timeout")})

	_, err := f.svc.HandleCallback(context.Background(), "A0001", "OK", CallbackMeta{})

	require.Error(t, err)
	f.gateway.AssertNumberOfCalls(t, "VerifyPayment", 3)
	f.tickets.AssertNotCalled(t, "TransitionStatus", mock.Anything, mock.Anything, mock.Anything)
	f.tickets.AssertNotCalled(t, "MarkVerified", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleCallback_ReservationFailureKeepsPaymentSuccessful(t *testing.T) {
	f := newOrchestratorFixture()

	ticket := requestedTicket()
	f.tickets.On("GetByAuthority", "A0001").Return(ticket, nil)
	f.gateway.On("VerifyPayment", mock.Anything, "A0001", int64(1200000)).
		Return(int64(777123), "603799******1234", nil)
	f.tickets.On("MarkVerified", int64(42), "777123", "603799******1234").Return(nil)
	f.agencies.On("GetByID", int64(1)).Return(guestAgency(), nil)
	f.provider.On("HoldSeat", mock.Anything, mock.Anything, "TRIP-9").Return("HOLD-5", nil)
	f.provider.On("ConfirmHold", mock.Anything, mock.Anything, "HOLD-5", mock.Anything).
		Return("", &models.UpstreamRejectedError{System: "ors", Code: 400, Reason: "hold expired"})
	f.tickets.On("MarkReservationFailed", int64(42), mock.MatchedBy(func(code string) bool {
		return len(code) > 0 && code[:16] == "PAID-NO-RESERVE-"
	})).Return(nil)
	f.notifier.On("OperatorAlert", mock.Anything, "777123").Return()

	outcome, err := f.svc.HandleCallback(context.Background(), "A0001", "OK", CallbackMeta{})

	require.NoError(t, err)
	assert.True(t, outcome.Paid, "a collected payment must never be reported as failed")
	assert.Equal(t, models.StatusReservationFailed, outcome.Status)
	assert.Contains(t, outcome.TicketCode, "PAID-NO-RESERVE-")
	f.notifier.AssertExpectations(t)
	f.provider.AssertNumberOfCalls(t, "ConfirmHold", 1)
}

func TestHandleCallback_InsufficientBalanceStillFlagsForReconciliation(t *testing.T) {
	f := newOrchestratorFixture()

	ticket := requestedTicket()
	f.tickets.On("GetByAuthority", "A0001").Return(ticket, nil)
	f.gateway.On("VerifyPayment", mock.Anything, "A0001", int64(1200000)).
		Return(int64(777123), "pan", nil)
	f.tickets.On("MarkVerified", int64(42), "777123", "pan").Return(nil)
	f.agencies.On("GetByID", int64(1)).Return(guestAgency(), nil)
	f.provider.On("HoldSeat", mock.Anything, mock.Anything, "TRIP-9").
		Return("", models.ErrInsufficientBalance)
	f.tickets.On("MarkReservationFailed", int64(42), mock.Anything).Return(nil)
	f.notifier.On("OperatorAlert", mock.Anything, "777123").Return()

	outcome, err := f.svc.HandleCallback(context.Background(), "A0001", "OK", CallbackMeta{})

	require.NoError(t, err)
	assert.True(t, outcome.Paid)
	assert.Equal(t, models.StatusReservationFailed, outcome.Status)
	f.provider.AssertNumberOfCalls(t, "HoldSeat", 1)
	f.provider.AssertNotCalled(t, "ConfirmHold", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleCallback_TransientHoldFailureRetriesBeforeSentinel(t *testing.T) {
	f := newOrchestratorFixture()

	ticket := requestedTicket()
	f.tickets.On("GetByAuthority", "A0001").Return(ticket, nil)
	f.gateway.On("VerifyPayment", mock.Anything, "A0001", int64(1200000)).
		Return(int64(777123), "pan", nil)
	f.tickets.On("MarkVerified", int64(42), "777123", "pan").Return(nil)
	f.agencies.On("GetByID", int64(1)).Return(guestAgency(), nil)
	f.provider.On("HoldSeat", mock.Anything, mock.Anything, "TRIP-9").
		Return("", &models.UpstreamTransientError{System: "ors", Err: errors.New("gateway timeout")})
	f.tickets.On("MarkReservationFailed", int64(42), mock.Anything).Return(nil)
	f.notifier.On("OperatorAlert", mock.Anything, "777123").Return()

	outcome, err := f.svc.HandleCallback(context.Background(), "A0001", "OK", CallbackMeta{})

	require.NoError(t, err)
	assert.True(t, outcome.Paid)
	f.provider.AssertNumberOfCalls(t, "HoldSeat", 3)
}

func TestHandleCallback_DuplicateAfterConfirmationIsIdempotent(t *testing.T) {
	f := newOrchestratorFixture()

	ticket := requestedTicket()
	code := "TKT-100"
	ref := "777123"
	ticket.Status = models.StatusReservationConfirmed
	ticket.IsPaid = true
	ticket.TicketCode = &code
	ticket.PaymentRefID = &ref

	f.tickets.On("GetByAuthority", "A0001").Return(ticket, nil)

	outcome, err := f.svc.HandleCallback(context.Background(), "A0001", "OK", CallbackMeta{})

	require.NoError(t, err)
	assert.True(t, outcome.Paid)
	assert.Equal(t, "TKT-100", outcome.TicketCode)
	assert.Equal(t, "777123", outcome.RefID)
	f.gateway.AssertNotCalled(t, "VerifyPayment", mock.Anything, mock.Anything, mock.Anything)
	f.provider.AssertNotCalled(t, "HoldSeat", mock.Anything, mock.Anything, mock.Anything)
	f.provider.AssertNotCalled(t, "ConfirmHold", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleCallback_ResumesVerifiedTicketLeftWithoutReservation(t *testing.T) {
	f := newOrchestratorFixture()

	// the first callback verified the payment and then died, so the row
	// sits in payment_verified and MarkVerified conflicts on replay
	ticket := requestedTicket()
	f.tickets.On("GetByAuthority", "A0001").Return(ticket, nil)
	f.gateway.On("VerifyPayment", mock.Anything, "A0001", int64(1200000)).
		Return(int64(777123), "pan", nil)
	f.tickets.On("MarkVerified", int64(42), "777123", "pan").Return(models.ErrStatusConflict)

	stranded := requestedTicket()
	ref := "777123"
	stranded.Status = models.StatusPaymentVerified
	stranded.IsPaid = true
	stranded.PaymentRefID = &ref
	f.tickets.On("GetByID", int64(42)).Return(stranded, nil)

	f.agencies.On("GetByID", int64(1)).Return(guestAgency(), nil)
	f.provider.On("HoldSeat", mock.Anything, mock.Anything, "TRIP-9").Return("HOLD-5", nil)
	f.provider.On("ConfirmHold", mock.Anything, mock.Anything, "HOLD-5", mock.Anything).
		Return("TKT-100", nil)
	f.tickets.On("MarkReservationConfirmed", int64(42), "TKT-100").Return(nil)
	f.notifier.On("TicketIssued", mock.Anything).Return()

	outcome, err := f.svc.HandleCallback(context.Background(), "A0001", "OK", CallbackMeta{})

	require.NoError(t, err)
	assert.Equal(t, models.StatusReservationConfirmed, outcome.Status)
	assert.Equal(t, "TKT-100", outcome.TicketCode)
	assert.Equal(t, "777123", outcome.RefID)
	f.provider.AssertNumberOfCalls(t, "HoldSeat", 1)
	f.tickets.AssertExpectations(t)
}

func TestHandleCallback_VerifyRecordedBeforeReservationConfirm(t *testing.T) {
	f := newOrchestratorFixture()

	var (
		order      []string
		verifiedAt time.Time
		reservedAt time.Time
	)

	ticket := requestedTicket()
	f.tickets.On("GetByAuthority", "A0001").Return(ticket, nil)
	f.gateway.On("VerifyPayment", mock.Anything, "A0001", int64(1200000)).
		Return(int64(777123), "pan", nil)
	f.tickets.On("MarkVerified", int64(42), "777123", "pan").
		Run(func(mock.Arguments) {
			order = append(order, "verified")
			verifiedAt = time.Now()
		}).Return(nil)
	f.agencies.On("GetByID", int64(1)).Return(guestAgency(), nil)
	f.provider.On("HoldSeat", mock.Anything, mock.Anything, "TRIP-9").Return("HOLD-5", nil)
	f.provider.On("ConfirmHold", mock.Anything, mock.Anything, "HOLD-5", mock.Anything).
		Return("TKT-100", nil)
	f.tickets.On("MarkReservationConfirmed", int64(42), "TKT-100").
		Run(func(mock.Arguments) {
			order = append(order, "reserved")
			reservedAt = time.Now()
		}).Return(nil)
	f.notifier.On("TicketIssued", mock.Anything).Return()

	_, err := f.svc.HandleCallback(context.Background(), "A0001", "OK", CallbackMeta{})

	require.NoError(t, err)
	require.Equal(t, []string{"verified", "reserved"}, order)
	assert.False(t, reservedAt.Before(verifiedAt))
}

func TestHandleCallback_LostVerifyRaceYieldsSettledOutcome(t *testing.T) {
	f := newOrchestratorFixture()

	ticket := requestedTicket()
	f.tickets.On("GetByAuthority", "A0001").Return(ticket, nil)
	f.gateway.On("VerifyPayment", mock.Anything, "A0001", int64(1200000)).
		Return(int64(777123), "pan", nil)
	f.tickets.On("MarkVerified", int64(42), "777123", "pan").Return(models.ErrStatusConflict)

	settled := requestedTicket()
	code := "TKT-100"
	settled.Status = models.StatusReservationConfirmed
	settled.IsPaid = true
	settled.TicketCode = &code
	f.tickets.On("GetByID", int64(42)).Return(settled, nil)

	outcome, err := f.svc.HandleCallback(context.Background(), "A0001", "OK", CallbackMeta{})

	require.NoError(t, err)
	assert.Equal(t, "TKT-100", outcome.TicketCode)
	f.provider.AssertNotCalled(t, "HoldSeat", mock.Anything, mock.Anything, mock.Anything)
}

func TestGetConfirmation_HidesUnpaidTickets(t *testing.T) {
	f := newOrchestratorFixture()

	unpaid := requestedTicket()
	unpaid.IsPaid = false
	f.tickets.On("GetByTicketCode", "TKT-1").Return(unpaid, nil)

	_, err := f.svc.GetConfirmation("TKT-1")

	assert.ErrorIs(t, err, models.ErrTicketNotFound)
}

func TestGetConfirmation_ReturnsPaidTicket(t *testing.T) {
	f := newOrchestratorFixture()

	paid := requestedTicket()
	paid.IsPaid = true
	paid.Status = models.StatusReservationConfirmed
	f.tickets.On("GetByTicketCode", "TKT-1").Return(paid, nil)

	ticket, err := f.svc.GetConfirmation("TKT-1")

	require.NoError(t, err)
	assert.Equal(t, int64(42), ticket.ID)
}
