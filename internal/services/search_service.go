package services

import (
	"context"
	"sort"
	"time"

	"github.com/safarline/booking-backend/internal/config"
	"github.com/safarline/booking-backend/internal/models"
	"github.com/safarline/booking-backend/pkg/ors"
	"github.com/sirupsen/logrus"
)

// SearchCache is the cache-aside store for search results. A (nil, nil)
// read is a miss.
type SearchCache interface {
	GetSearch(ctx context.Context, originID, destID int, date time.Time) ([]models.TripOffer, error)
	SetSearch(ctx context.Context, originID, destID int, date time.Time, offers []models.TripOffer) error
}

// TripSearcher is the provider-side search contract.
type TripSearcher interface {
	SearchTrips(ctx context.Context, cred ors.SellerCredential, from, to time.Time, originID, destID int) ([]models.TripOffer, error)
	GetTripInfo(ctx context.Context, cred ors.SellerCredential, tripCode string) (*models.TripOffer, error)
}

// SearchService serves customer-facing trip search and trip detail. The
// provider response is filtered for bookability and sorted before anyone
// sees it: departures that are too close are not offers the customer can
// actually complete.
type SearchService struct {
	provider TripSearcher
	cache    SearchCache
	cfg      config.BookingConfig
	logger   *logrus.Logger

	sellerToken string
	sleep       func(time.Duration)
	now         func() time.Time
}

// NewSearchService creates a new SearchService
func NewSearchService(provider TripSearcher, cache SearchCache, cfg config.BookingConfig, sellerToken string, logger *logrus.Logger) *SearchService {
	return &SearchService{
		provider:    provider,
		cache:       cache,
		cfg:         cfg,
		logger:      logger,
		sellerToken: sellerToken,
		sleep:       time.Sleep,
		now:         time.Now,
	}
}

// SearchTrips returns bookable offers between two cities on one date,
// ordered by departure time and then by discounted price. Provider results
// are cached briefly; the lead-time filter is applied after the cache so a
// cached list never shows a departure that slipped inside the window.
func (s *SearchService) SearchTrips(ctx context.Context, req models.SearchTripsRequest) ([]models.TripOffer, error) {
	if s.cache != nil {
		cached, err := s.cache.GetSearch(ctx, req.OriginID, req.DestinationID, req.Date)
		if err != nil {
			s.logger.WithError(err).Warn("Search cache read failed, falling through to provider")
		}
		if cached != nil {
			return s.presentable(cached), nil
		}
	}

	from := req.Date
	to := req.Date.AddDate(0, 0, 1)

	var offers []models.TripOffer
	err := withRetry(s.cfg.LookupRetries, s.sleep, func() error {
		var searchErr error
		offers, searchErr = s.provider.SearchTrips(ctx, ors.SellerCredential{Token: s.sellerToken}, from, to, req.OriginID, req.DestinationID)
		return searchErr
	})
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetSearch(ctx, req.OriginID, req.DestinationID, req.Date, offers); err != nil {
			s.logger.WithError(err).Warn("Search cache write failed")
		}
	}

	return s.presentable(offers), nil
}

// GetTrip returns one offer by code, still subject to the lead-time rule.
func (s *SearchService) GetTrip(ctx context.Context, tripCode string) (*models.TripOffer, error) {
	var offer *models.TripOffer
	err := withRetry(s.cfg.LookupRetries, s.sleep, func() error {
		var lookupErr error
		offer, lookupErr = s.provider.GetTripInfo(ctx, ors.SellerCredential{Token: s.sellerToken}, tripCode)
		return lookupErr
	})
	if err != nil {
		return nil, err
	}
	if s.now().Add(s.cfg.MinLeadTime).After(offer.DepartureAt) {
		return nil, models.ErrTripNotFound
	}
	return offer, nil
}

// presentable filters out departures inside the lead-time window and sorts
// what remains by departure, cheapest first among equal departures.
func (s *SearchService) presentable(offers []models.TripOffer) []models.TripOffer {
	cutoff := s.now().Add(s.cfg.MinLeadTime)

	result := make([]models.TripOffer, 0, len(offers))
	for _, offer := range offers {
		if offer.DepartureAt.After(cutoff) {
			result = append(result, offer)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].DepartureAt.Equal(result[j].DepartureAt) {
			return result[i].DepartureAt.Before(result[j].DepartureAt)
		}
		return result[i].DiscountedPrice < result[j].DiscountedPrice
	})
	return result
}
