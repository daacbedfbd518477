package database

import (
	"sync"
)

const runStateFileName = "run_state.json"

type RunStateRepository struct {
	db *DB
	mu sync.Mutex
}

func NewRunStateRepository(db *DB) *RunStateRepository {
	return &RunStateRepository{db: db}
}

func (r *RunStateRepository) Load() (RunState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var state RunState
	if _, err := r.db.readJSON(runStateFileName, &state); err != nil {
		return RunState{}, err
	}
	return state, nil
}

func (r *RunStateRepository) Save(state RunState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.db.writeJSON(runStateFileName, state)
}
