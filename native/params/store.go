package params

import (
	"bytes"
	"encoding/json"
	"fmt"

	"meritlend/config"
	"meritlend/native/credit"
	"meritlend/native/lending"
)

// StoreState captures the subset of state manager capabilities required by the
// parameter helpers.
type StoreState interface {
	ParamStoreSet(name string, value []byte) error
	ParamStoreGet(name string) ([]byte, bool, error)
}

// Store provides typed accessors for governance-controlled parameters.
type Store struct {
	state StoreState
}

// NewStore constructs a parameter store wrapper using the supplied state
// backend.
func NewStore(state StoreState) *Store {
	return &Store{state: state}
}

func (s *Store) withState() (StoreState, error) {
	if s == nil || s.state == nil {
		return nil, fmt.Errorf("params: state not configured")
	}
	return s.state, nil
}

// SetPauses persists the supplied pause configuration under the canonical
// parameter store key. Values are marshalled as JSON to align with governance
// proposal payloads.
func (s *Store) SetPauses(pauses config.Pauses) error {
	state, err := s.withState()
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(pauses)
	if err != nil {
		return fmt.Errorf("params: encode pauses: %w", err)
	}
	return state.ParamStoreSet(ParamsKeyPauses, encoded)
}

// Pauses loads the persisted pause configuration. When unset, a zero-value
// configuration is returned.
func (s *Store) Pauses() (config.Pauses, error) {
	state, err := s.withState()
	if err != nil {
		return config.Pauses{}, err
	}
	raw, ok, err := state.ParamStoreGet(ParamsKeyPauses)
	if err != nil {
		return config.Pauses{}, err
	}
	if !ok || len(bytes.TrimSpace(raw)) == 0 {
		return config.Pauses{}, nil
	}
	var pauses config.Pauses
	if err := json.Unmarshal(raw, &pauses); err != nil {
		return config.Pauses{}, fmt.Errorf("params: decode pauses: %w", err)
	}
	return pauses, nil
}

// SetCredit persists the scoring policy overrides under the canonical
// parameter store key.
func (s *Store) SetCredit(policy credit.Params) error {
	state, err := s.withState()
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(policy)
	if err != nil {
		return fmt.Errorf("params: encode credit policy: %w", err)
	}
	return state.ParamStoreSet(ParamsKeyCredit, encoded)
}

// Credit loads the persisted scoring policy overrides. When unset, the
// protocol defaults are returned.
func (s *Store) Credit() (credit.Params, error) {
	state, err := s.withState()
	if err != nil {
		return credit.Params{}, err
	}
	raw, ok, err := state.ParamStoreGet(ParamsKeyCredit)
	if err != nil {
		return credit.Params{}, err
	}
	if !ok || len(bytes.TrimSpace(raw)) == 0 {
		return credit.DefaultParams(), nil
	}
	var policy credit.Params
	if err := json.Unmarshal(raw, &policy); err != nil {
		return credit.Params{}, fmt.Errorf("params: decode credit policy: %w", err)
	}
	return policy.Normalize(), nil
}

// SetLending persists the pool admission limit overrides under the canonical
// parameter store key.
func (s *Store) SetLending(limits lending.Params) error {
	state, err := s.withState()
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(limits)
	if err != nil {
		return fmt.Errorf("params: encode lending limits: %w", err)
	}
	return state.ParamStoreSet(ParamsKeyLending, encoded)
}

// Lending loads the persisted pool admission limit overrides. When unset, the
// protocol defaults are returned.
func (s *Store) Lending() (lending.Params, error) {
	state, err := s.withState()
	if err != nil {
		return lending.Params{}, err
	}
	raw, ok, err := state.ParamStoreGet(ParamsKeyLending)
	if err != nil {
		return lending.Params{}, err
	}
	if !ok || len(bytes.TrimSpace(raw)) == 0 {
		return lending.DefaultParams(), nil
	}
	var limits lending.Params
	if err := json.Unmarshal(raw, &limits); err != nil {
		return lending.Params{}, fmt.Errorf("params: decode lending limits: %w", err)
	}
	return limits.Normalize(), nil
}
