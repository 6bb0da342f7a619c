package store

import (
	"database/sql"

	"github.com/dkrugman/pf-aspect/internal/domain"
)

// GetLocation returns the cached description for a coordinate pair, or nil
// when the pair has never been resolved.
func (db *DB) GetLocation(lat, lon float64) (*domain.Location, error) {
	loc := &domain.Location{}
	err := db.Get(loc, "SELECT id, latitude, longitude, description FROM location WHERE latitude = ? AND longitude = ?", lat, lon)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return loc, nil
}

// SaveLocation caches a reverse-geocoded description. Many files may share
// one coordinate pair; replace keeps the newest description.
func (db *DB) SaveLocation(lat, lon float64, description string) error {
	_, err := db.Exec(
		"INSERT OR REPLACE INTO location (latitude, longitude, description) VALUES (?, ?, ?)",
		lat, lon, description)
	return err
}
