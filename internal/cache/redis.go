package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/safarline/booking-backend/internal/config"
	"github.com/safarline/booking-backend/internal/models"
)

// SearchCache caches upstream trip-search results so repeated searches for
// the same direction and date do not hammer the provider.
type SearchCache struct {
	client    *redis.Client
	searchTTL time.Duration
}

// NewSearchCache creates a Redis-backed search cache.
func NewSearchCache(cfg config.RedisConfig) *SearchCache {
	return &SearchCache{
		client:    redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
		searchTTL: cfg.SearchTTL,
	}
}

// Ping verifies the Redis connection.
func (c *SearchCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// GetSearch returns the cached offers for a search, or nil on a miss.
func (c *SearchCache) GetSearch(ctx context.Context, originID, destID int, date time.Time) ([]models.TripOffer, error) {
	data, err := c.client.Get(ctx, searchKey(originID, destID, date)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var offers []models.TripOffer
	if err := json.Unmarshal(data, &offers); err != nil {
		return nil, err
	}
	return offers, nil
}

// SetSearch stores the offers for a search with the configured TTL.
func (c *SearchCache) SetSearch(ctx context.Context, originID, destID int, date time.Time, offers []models.TripOffer) error {
	payload, err := json.Marshal(offers)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, searchKey(originID, destID, date), payload, c.searchTTL).Err()
}

func searchKey(originID, destID int, date time.Time) string {
	return fmt.Sprintf("search:%d:%d:%s", originID, destID, date.Format("2006-01-02"))
}
