package store

import (
	"database/sql"

	"github.com/dkrugman/pf-aspect/internal/domain"
)

// GetTimerState loads the persisted last run for a scheduled job, or nil when
// the job has never run.
func (db *DB) GetTimerState(name string) (*domain.TimerState, error) {
	state := &domain.TimerState{}
	err := db.Get(state, "SELECT name, last_run FROM timer_state WHERE name = ?", name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return state, nil
}

// SaveTimerState persists a job's last run.
func (db *DB) SaveTimerState(name string, lastRun float64) error {
	_, err := db.Exec(`
		INSERT INTO timer_state (name, last_run)
		VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET last_run = excluded.last_run`,
		name, lastRun)
	return err
}

// ListTimerStates returns every persisted job state.
func (db *DB) ListTimerStates() ([]domain.TimerState, error) {
	var states []domain.TimerState
	err := db.Select(&states, "SELECT name, last_run FROM timer_state")
	return states, err
}
