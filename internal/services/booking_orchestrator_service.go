package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/safarline/booking-backend/internal/config"
	"github.com/safarline/booking-backend/internal/models"
	"github.com/safarline/booking-backend/pkg/ors"
	"github.com/sirupsen/logrus"
)

// TicketStore is the persistence contract the orchestrator drives. All
// status-changing methods are compare-and-set and return
// models.ErrStatusConflict when the row is not in the expected state.
type TicketStore interface {
	Create(ticket *models.Ticket) error
	GetByID(id int64) (*models.Ticket, error)
	GetByAuthority(authority string) (*models.Ticket, error)
	GetByTicketCode(code string) (*models.Ticket, error)
	SetPaymentAuthority(id int64, authority string) error
	TransitionStatus(id int64, from, to models.TicketStatus) error
	MarkVerified(id int64, refID, cardPan string) error
	MarkReservationConfirmed(id int64, ticketCode string) error
	MarkReservationFailed(id int64, sentinel string) error
	DeleteUnpaid(id int64) error
}

// AgencyStore resolves seller agencies and their upstream credentials.
type AgencyStore interface {
	GetByID(id int64) (*models.Agency, error)
	GetGuestAgency() (*models.Agency, error)
}

// PaymentGateway mirrors payment.Gateway for injection.
type PaymentGateway interface {
	RequestPayment(ctx context.Context, amountRials int64, description, mobile string) (string, error)
	VerifyPayment(ctx context.Context, authority string, amountRials int64) (int64, string, error)
	StartPayURL(authority string) string
}

// ReservationClient is the upstream reservation provider contract.
type ReservationClient interface {
	GetTripInfo(ctx context.Context, cred ors.SellerCredential, tripCode string) (*models.TripOffer, error)
	HoldSeat(ctx context.Context, cred ors.SellerCredential, tripCode string) (string, error)
	ConfirmHold(ctx context.Context, cred ors.SellerCredential, holdCode string, passenger ors.Passenger) (string, error)
}

// AuditLog records payment events. Implementations must be append-only.
type AuditLog interface {
	Log(audit *models.PaymentAudit) error
}

// BookingNotifier sends the customer and operator messages.
type BookingNotifier interface {
	TicketIssued(ticket *models.Ticket)
	OperatorAlert(ticket *models.Ticket, refID string)
}

// PassengerChecker validates and sanitizes passenger form input.
type PassengerChecker interface {
	Validate(p models.PassengerInfo) (models.PassengerInfo, error)
}

// CallbackMeta carries request metadata from the gateway callback into the
// audit trail.
type CallbackMeta struct {
	IPAddress string
	UserAgent string
	Browser   string
}

// BookingOrchestratorService drives one booking attempt across the payment
// gateway and the reservation provider.
//
// The ordering is fixed: the durable ticket row is written first, payment is
// collected and verified second, and the upstream reservation runs last.
// Money is only ever at risk in one direction: a paid ticket that could not
// be reserved is flagged for manual reconciliation, never silently dropped
// and never reported to the customer as a failed payment.
type BookingOrchestratorService struct {
	tickets   TicketStore
	agencies  AgencyStore
	gateway   PaymentGateway
	provider  ReservationClient
	audits    AuditLog
	notifier  BookingNotifier
	validator PassengerChecker
	cfg       config.BookingConfig

	defaultSellerToken string
	logger             *logrus.Logger

	// injectable for tests
	sleep func(time.Duration)
	now   func() time.Time
}

// NewBookingOrchestratorService creates a new BookingOrchestratorService
func NewBookingOrchestratorService(
	tickets TicketStore,
	agencies AgencyStore,
	gateway PaymentGateway,
	provider ReservationClient,
	audits AuditLog,
	notifier BookingNotifier,
	validator PassengerChecker,
	cfg config.BookingConfig,
	defaultSellerToken string,
	logger *logrus.Logger,
) *BookingOrchestratorService {
	return &BookingOrchestratorService{
		tickets:            tickets,
		agencies:           agencies,
		gateway:            gateway,
		provider:           provider,
		audits:             audits,
		notifier:           notifier,
		validator:          validator,
		cfg:                cfg,
		defaultSellerToken: defaultSellerToken,
		logger:             logger,
		sleep:              time.Sleep,
		now:                time.Now,
	}
}

// CreateTicket validates the passenger, re-fetches the trip to freeze its
// price, and persists the ticket in status created. agencyID selects whose
// upstream credential will later confirm the reservation; nil means the
// guest agency.
func (s *BookingOrchestratorService) CreateTicket(ctx context.Context, req models.CreateTicketRequest, agencyID *int64) (*models.Ticket, error) {
	passenger, err := s.validator.Validate(req.Passenger)
	if err != nil {
		return nil, err
	}

	agency, err := s.resolveAgency(agencyID)
	if err != nil {
		return nil, err
	}
	cred := s.credentialFor(agency)

	var offer *models.TripOffer
	err = withRetry(s.cfg.LookupRetries, s.sleep, func() error {
		var lookupErr error
		offer, lookupErr = s.provider.GetTripInfo(ctx, cred, req.TripCode)
		return lookupErr
	})
	if err != nil {
		return nil, fmt.Errorf("trip lookup failed: %w", err)
	}

	if s.now().Add(s.cfg.MinLeadTime).After(offer.DepartureAt) {
		return nil, &models.ValidationError{Field: "trip_code", Message: "trip departs too soon to be booked"}
	}

	ticket := &models.Ticket{
		FirstName:    passenger.FirstName,
		LastName:     passenger.LastName,
		Phone:        passenger.Phone,
		NationalCode: passenger.NationalCode,
		Gender:       passenger.Gender,

		TripCode:        offer.TripCode,
		TripOrigin:      offer.OriginCityName,
		TripDestination: offer.DestinationCityName,
		OriginalPrice:   offer.OriginalPrice,
		FinalPrice:      offer.DiscountedPrice,
		ServiceName:     offer.CarrierName,
		CarName:         offer.CarName,
		DepartureAt:     offer.DepartureAt,

		AgencyID: agency.ID,
	}

	if err := s.tickets.Create(ticket); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"ticket_id": ticket.ID,
		"trip_code": ticket.TripCode,
		"price":     ticket.FinalPrice,
	}).Info("Ticket created with frozen price")
	return ticket, nil
}

// RequestPayment asks the gateway for an authority on the ticket's frozen
// amount and moves the ticket to payment_requested. On a gateway decline
// the unpaid row is deleted so abandoned attempts do not accumulate.
func (s *BookingOrchestratorService) RequestPayment(ctx context.Context, ticketID int64) (*models.PaymentRedirect, error) {
	ticket, err := s.tickets.GetByID(ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status != models.StatusCreated {
		return nil, models.ErrStatusConflict
	}

	amount := ticket.AmountRials()
	description := fmt.Sprintf("Bus ticket %s to %s, trip %s",
		ticket.TripOrigin, ticket.TripDestination, ticket.TripCode)

	var authority string
	err = withRetry(s.cfg.LookupRetries, s.sleep, func() error {
		var reqErr error
		authority, reqErr = s.gateway.RequestPayment(ctx, amount, description, ticket.Phone)
		return reqErr
	})
	if err != nil {
		s.audit(models.NewPaymentAudit(models.PaymentEventRequestFailed, models.PaymentSourceBackend).
			WithTicket(ticket.ID).
			WithError(err))

		if delErr := s.tickets.DeleteUnpaid(ticket.ID); delErr != nil {
			s.logger.WithError(delErr).WithField("ticket_id", ticket.ID).
				Warn("Could not remove ticket after payment request decline")
		}
		return nil, fmt.Errorf("payment request failed: %w", err)
	}

	if err := s.tickets.SetPaymentAuthority(ticket.ID, authority); err != nil {
		return nil, err
	}

	s.audit(models.NewPaymentAudit(models.PaymentEventInitiated, models.PaymentSourceBackend).
		WithTicket(ticket.ID).
		WithAuthority(authority).
		WithAmounts(amount, amount))

	s.logger.WithFields(logrus.Fields{
		"ticket_id": ticket.ID,
		"authority": authority,
		"amount":    amount,
	}).Info("Payment requested")

	return &models.PaymentRedirect{
		TicketID:   ticket.ID,
		Authority:  authority,
		PaymentURL: s.gateway.StartPayURL(authority),
		Amount:     amount,
	}, nil
}

// HandleCallback processes the gateway's return redirect. It is safe to
// call any number of times with the same authority: a ticket that already
// reached a terminal status is reported as-is with zero upstream calls.
func (s *BookingOrchestratorService) HandleCallback(ctx context.Context, authority, gatewayStatus string, meta CallbackMeta) (*models.CallbackOutcome, error) {
	ticket, err := s.tickets.GetByAuthority(authority)
	if err != nil {
		return nil, err
	}

	log := s.logger.WithFields(logrus.Fields{
		"ticket_id": ticket.ID,
		"authority": authority,
	})

	s.audit(s.callbackAudit(models.PaymentEventCallbackReceived, ticket, authority, meta))

	if ticket.Status.IsTerminal() {
		log.WithField("status", ticket.Status).Info("Duplicate callback for settled ticket")
		s.audit(s.callbackAudit(models.PaymentEventDuplicateCallback, ticket, authority, meta))
		return outcomeFor(ticket), nil
	}

	if gatewayStatus != "OK" {
		if err := s.tickets.TransitionStatus(ticket.ID, models.StatusPaymentRequested, models.StatusVerificationFailed); err != nil {
			if !errors.Is(err, models.ErrStatusConflict) {
				return nil, err
			}
			// a concurrent callback settled the ticket first
			return s.settledOutcome(ticket.ID)
		}
		log.Info("Payment cancelled at gateway")
		s.audit(s.callbackAudit(models.PaymentEventCancelled, ticket, authority, meta))
		return &models.CallbackOutcome{
			TicketID: ticket.ID,
			Status:   models.StatusVerificationFailed,
			Paid:     false,
			Reason:   "payment was cancelled",
		}, nil
	}

	amount := ticket.AmountRials()
	var (
		refID   int64
		cardPan string
	)
	// verify is replay-safe: the gateway answers an already-verified
	// payment with its original outcome
	err = withRetry(s.cfg.LookupRetries, s.sleep, func() error {
		var verifyErr error
		refID, cardPan, verifyErr = s.gateway.VerifyPayment(ctx, authority, amount)
		return verifyErr
	})
	if err != nil {
		if models.IsTransient(err) {
			// the gateway never answered; leave the ticket replayable
			// instead of failing a possibly collected payment
			log.WithError(err).Error("Payment verification unreachable, callback left replayable")
			return nil, err
		}
		if casErr := s.tickets.TransitionStatus(ticket.ID, models.StatusPaymentRequested, models.StatusVerificationFailed); casErr != nil {
			if !errors.Is(casErr, models.ErrStatusConflict) {
				return nil, casErr
			}
			return s.settledOutcome(ticket.ID)
		}
		log.WithError(err).Warn("Payment verification failed")
		s.audit(s.callbackAudit(models.PaymentEventVerifyFailed, ticket, authority, meta).
			WithAmounts(amount, amount).
			WithError(err))
		return &models.CallbackOutcome{
			TicketID: ticket.ID,
			Status:   models.StatusVerificationFailed,
			Paid:     false,
			Reason:   "payment could not be verified",
		}, nil
	}

	ref := strconv.FormatInt(refID, 10)
	if err := s.tickets.MarkVerified(ticket.ID, ref, cardPan); err != nil {
		if !errors.Is(err, models.ErrStatusConflict) {
			return nil, err
		}
		settled, getErr := s.tickets.GetByID(ticket.ID)
		if getErr != nil {
			return nil, getErr
		}
		if settled.Status == models.StatusPaymentVerified {
			// an earlier callback verified the payment but never reached
			// the reservation step; this replay picks it up. The
			// reservation CAS keeps the completion single-winner.
			log.Info("Resuming reservation for a verified ticket")
			if settled.PaymentRefID != nil {
				ref = *settled.PaymentRefID
			}
			return s.confirmReservation(ctx, settled, ref)
		}
		// lost the race: the winning callback owns the reservation step
		log.Info("Concurrent callback already verified this payment")
		return outcomeFor(settled), nil
	}

	log.WithField("ref_id", ref).Info("Payment verified")
	verifiedAudit := s.callbackAudit(models.PaymentEventVerified, ticket, authority, meta).
		WithAmounts(amount, amount)
	verifiedAudit.RefID = &ref
	s.audit(verifiedAudit)

	return s.confirmReservation(ctx, ticket, ref)
}

// confirmReservation runs the upstream hold+confirm for a freshly verified
// ticket. The hold confirmation is issued exactly once; any failure after
// payment leaves the ticket in reservation_failed with a reconcile
// sentinel instead of refunding or erroring out.
func (s *BookingOrchestratorService) confirmReservation(ctx context.Context, ticket *models.Ticket, refID string) (*models.CallbackOutcome, error) {
	log := s.logger.WithFields(logrus.Fields{
		"ticket_id": ticket.ID,
		"ref_id":    refID,
	})

	agency, err := s.resolveAgency(&ticket.AgencyID)
	if err != nil {
		return s.reservationFailed(ticket, refID, err)
	}
	cred := s.credentialFor(agency)

	var holdCode string
	err = withRetry(s.cfg.LookupRetries, s.sleep, func() error {
		var holdErr error
		holdCode, holdErr = s.provider.HoldSeat(ctx, cred, ticket.TripCode)
		return holdErr
	})
	if err != nil {
		return s.reservationFailed(ticket, refID, fmt.Errorf("seat hold failed: %w", err))
	}

	ticketCode, err := s.provider.ConfirmHold(ctx, cred, holdCode, ors.Passenger{
		FirstName:    ticket.FirstName,
		LastName:     ticket.LastName,
		NationalCode: ticket.NationalCode,
		Phone:        ticket.Phone,
	})
	if err != nil {
		return s.reservationFailed(ticket, refID, fmt.Errorf("hold confirmation failed: %w", err))
	}

	if err := s.tickets.MarkReservationConfirmed(ticket.ID, ticketCode); err != nil {
		return s.reservationFailed(ticket, refID, fmt.Errorf("could not persist confirmed reservation: %w", err))
	}
	ticket.Status = models.StatusReservationConfirmed
	ticket.TicketCode = &ticketCode

	confirmAudit := models.NewPaymentAudit(models.PaymentEventReservationConfirmed, models.PaymentSourceSystem).
		WithTicket(ticket.ID)
	confirmAudit.RefID = &refID
	s.audit(confirmAudit)

	log.WithField("ticket_code", ticketCode).Info("Booking completed")
	s.notifier.TicketIssued(ticket)

	return &models.CallbackOutcome{
		TicketID:   ticket.ID,
		Status:     models.StatusReservationConfirmed,
		TicketCode: ticketCode,
		RefID:      refID,
		Paid:       true,
	}, nil
}

// reservationFailed settles the paid-but-unreserved case: sentinel code,
// audit row, operator alert. The outcome still reports the payment as
// successful because it was.
func (s *BookingOrchestratorService) reservationFailed(ticket *models.Ticket, refID string, cause error) (*models.CallbackOutcome, error) {
	sentinel := models.ReconcileSentinel(ticket.ID, s.now())

	stateErr := &models.InconsistentStateError{TicketID: ticket.ID, RefID: refID, Err: cause}
	if errors.Is(cause, models.ErrInsufficientBalance) {
		s.logger.WithField("ticket_id", ticket.ID).WithError(stateErr).
			Warn("Reservation failed on seller balance, ticket flagged for reconciliation")
	} else {
		s.logger.WithField("ticket_id", ticket.ID).WithError(stateErr).
			Error("Reservation failed after successful payment, ticket flagged for reconciliation")
	}

	if err := s.tickets.MarkReservationFailed(ticket.ID, sentinel); err != nil {
		// the sentinel write must not be lost quietly
		s.logger.WithError(err).WithField("ticket_id", ticket.ID).
			Error("Could not persist reconcile sentinel")
	}

	mismatch := models.NewPaymentAudit(models.PaymentEventReconciliationMismatch, models.PaymentSourceSystem).
		WithTicket(ticket.ID).
		WithError(cause)
	mismatch.RefID = &refID
	s.audit(mismatch)

	s.notifier.OperatorAlert(ticket, refID)

	return &models.CallbackOutcome{
		TicketID:   ticket.ID,
		Status:     models.StatusReservationFailed,
		TicketCode: sentinel,
		RefID:      refID,
		Paid:       true,
		Reason:     "reservation is being finalized, support will contact you",
	}, nil
}

// GetConfirmation returns the ticket behind a confirmation-view lookup.
// Unpaid tickets are reported as not found: the view proves payment.
func (s *BookingOrchestratorService) GetConfirmation(ticketCode string) (*models.Ticket, error) {
	ticket, err := s.tickets.GetByTicketCode(ticketCode)
	if err != nil {
		return nil, err
	}
	if !ticket.IsPaid {
		return nil, models.ErrTicketNotFound
	}
	return ticket, nil
}

// settledOutcome reloads a ticket another callback settled and reports it.
func (s *BookingOrchestratorService) settledOutcome(ticketID int64) (*models.CallbackOutcome, error) {
	ticket, err := s.tickets.GetByID(ticketID)
	if err != nil {
		return nil, err
	}
	return outcomeFor(ticket), nil
}

func outcomeFor(ticket *models.Ticket) *models.CallbackOutcome {
	outcome := &models.CallbackOutcome{
		TicketID: ticket.ID,
		Status:   ticket.Status,
		Paid:     ticket.IsPaid,
	}
	if ticket.TicketCode != nil {
		outcome.TicketCode = *ticket.TicketCode
	}
	if ticket.PaymentRefID != nil {
		outcome.RefID = *ticket.PaymentRefID
	}
	if !ticket.IsPaid {
		outcome.Reason = "payment was not completed"
	}
	return outcome
}

func (s *BookingOrchestratorService) resolveAgency(agencyID *int64) (*models.Agency, error) {
	if agencyID != nil {
		agency, err := s.agencies.GetByID(*agencyID)
		if err != nil {
			return nil, err
		}
		if agency != nil {
			return agency, nil
		}
	}
	agency, err := s.agencies.GetGuestAgency()
	if err != nil {
		return nil, err
	}
	if agency == nil {
		return nil, fmt.Errorf("no guest agency configured")
	}
	return agency, nil
}

// credentialFor picks the agency's own seller token, falling back to the
// configured default so guest bookings still reach the provider.
func (s *BookingOrchestratorService) credentialFor(agency *models.Agency) ors.SellerCredential {
	if agency != nil && agency.ORSAPIToken != "" {
		return ors.SellerCredential{Token: agency.ORSAPIToken}
	}
	return ors.SellerCredential{Token: s.defaultSellerToken}
}

func (s *BookingOrchestratorService) callbackAudit(event models.PaymentEventType, ticket *models.Ticket, authority string, meta CallbackMeta) *models.PaymentAudit {
	audit := models.NewPaymentAudit(event, models.PaymentSourceCallback).
		WithTicket(ticket.ID).
		WithAuthority(authority)
	if meta.IPAddress != "" {
		audit.IPAddress = &meta.IPAddress
	}
	if meta.UserAgent != "" {
		audit.UserAgent = &meta.UserAgent
	}
	if meta.Browser != "" {
		audit.Browser = &meta.Browser
	}
	return audit
}

// audit writes an audit row; failures are already logged by the store.
func (s *BookingOrchestratorService) audit(entry *models.PaymentAudit) {
	if err := s.audits.Log(entry); err != nil {
		s.logger.WithError(err).WithField("event", entry.EventType).Warn("Audit write failed")
	}
}
