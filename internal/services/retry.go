package services

import (
	"time"

	"github.com/safarline/booking-backend/internal/models"
)

// withRetry runs fn up to attempts times, sleeping attempt*1s between
// tries (1s, 2s, ...). Only transient upstream failures are retried;
// validation and business rejections surface immediately.
func withRetry(attempts int, sleep func(time.Duration), fn func() error) error {
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !models.IsTransient(err) {
			return err
		}
		if attempt < attempts {
			sleep(time.Duration(attempt) * time.Second)
		}
	}
	return err
}
