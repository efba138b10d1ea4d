package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/safarline/booking-backend/internal/models"
)

// AgencyRepository handles seller agency database operations
type AgencyRepository struct {
	db *sqlx.DB
}

// NewAgencyRepository creates a new AgencyRepository
func NewAgencyRepository(db *sqlx.DB) *AgencyRepository {
	return &AgencyRepository{db: db}
}

// GetByID retrieves an agency by id.
func (r *AgencyRepository) GetByID(id int64) (*models.Agency, error) {
	var agency models.Agency
	query := `SELECT id, name, phone, ors_api_token, commission, is_guest, joined_at FROM agencies WHERE id = $1`
	err := r.db.Get(&agency, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agency %d: %w", id, err)
	}
	return &agency, nil
}

// GetGuestAgency retrieves the guest agency used for unauthenticated
// bookings.
func (r *AgencyRepository) GetGuestAgency() (*models.Agency, error) {
	var agency models.Agency
	query := `SELECT id, name, phone, ors_api_token, commission, is_guest, joined_at FROM agencies WHERE is_guest = TRUE LIMIT 1`
	err := r.db.Get(&agency, query)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get guest agency: %w", err)
	}
	return &agency, nil
}

// EnsureGuestAgency creates the guest agency if it does not exist yet and
// returns it. Called once at startup.
func (r *AgencyRepository) EnsureGuestAgency(defaultToken string) (*models.Agency, error) {
	existing, err := r.GetGuestAgency()
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	agency := &models.Agency{
		Name:        "Guest",
		Phone:       "00000000000",
		ORSAPIToken: defaultToken,
		Commission:  0,
		IsGuest:     true,
		JoinedAt:    time.Now(),
	}

	query := `
		INSERT INTO agencies (name, phone, ors_api_token, commission, is_guest, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	err = r.db.QueryRow(query,
		agency.Name, agency.Phone, agency.ORSAPIToken, agency.Commission, agency.IsGuest, agency.JoinedAt,
	).Scan(&agency.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create guest agency: %w", err)
	}
	return agency, nil
}
