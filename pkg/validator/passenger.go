package validator

import (
	"regexp"
	"strings"

	"github.com/safarline/booking-backend/internal/models"
)

// mobileRegex matches Iranian mobile numbers: 09 followed by 9 digits
var mobileRegex = regexp.MustCompile(`^09\d{9}$`)

// nationalCodeRegex matches the fixed-length national code
var nationalCodeRegex = regexp.MustCompile(`^\d{10}$`)

// PassengerValidator validates passenger confirmation-form input. All
// failures are local ValidationErrors and are never retried.
type PassengerValidator struct{}

// NewPassengerValidator creates a new passenger validator instance
func NewPassengerValidator() *PassengerValidator {
	return &PassengerValidator{}
}

// Validate checks all passenger fields and returns the sanitized copy.
func (v *PassengerValidator) Validate(p models.PassengerInfo) (models.PassengerInfo, error) {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.Phone = sanitizeDigits(p.Phone)
	p.NationalCode = sanitizeDigits(p.NationalCode)
	p.Gender = strings.ToLower(strings.TrimSpace(p.Gender))

	if p.FirstName == "" {
		return p, &models.ValidationError{Field: "first_name", Message: "first name is required"}
	}
	if p.LastName == "" {
		return p, &models.ValidationError{Field: "last_name", Message: "last name is required"}
	}
	if !mobileRegex.MatchString(p.Phone) {
		return p, &models.ValidationError{Field: "phone", Message: "phone must be a mobile number like 09123456789"}
	}
	if !nationalCodeRegex.MatchString(p.NationalCode) {
		return p, &models.ValidationError{Field: "national_code", Message: "national code must be exactly 10 digits"}
	}
	if p.Gender != "male" && p.Gender != "female" {
		return p, &models.ValidationError{Field: "gender", Message: "gender must be male or female"}
	}

	return p, nil
}

// sanitizeDigits strips spaces and dashes so formatted input still passes.
func sanitizeDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
