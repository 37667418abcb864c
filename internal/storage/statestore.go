// Package storage provides the durable stores the engine depends on: a
// JSON file for the registration state and a sqlite database for foods,
// meal rows and the dosing schedules.
package storage

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/mrcode/mealdose/internal/models"
)

// StateStore persists the registration state across process restarts as a
// small JSON file. Writes replace the whole file; reads of a missing file
// return the zero state.
type StateStore struct {
	mu   sync.Mutex
	path string
}

// NewStateStore creates a store writing to path.
func NewStateStore(path string) *StateStore {
	return &StateStore{path: path}
}

// SaveRegistration writes the state to disk.
func (s *StateStore) SaveRegistration(state models.RegistrationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0600)
}

// LoadRegistration reads the state from disk. A missing file yields the
// zero state, not an error.
func (s *StateStore) LoadRegistration() (models.RegistrationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var state models.RegistrationState
	data, err := os.ReadFile(s.path) //nolint:gosec // State path is controlled by the app, not user input
	if err != nil {
		if os.IsNotExist(err) {
			return state, nil
		}
		return state, err
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return models.RegistrationState{}, err
	}
	return state, nil
}
