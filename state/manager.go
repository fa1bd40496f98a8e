// Package state provides the in-memory ledger state shared by the native
// engines. Every mutation is journaled so an operation can snapshot on entry
// and restore byte-identical state on any failure path, mirroring the
// all-or-nothing semantics the engines promise.
package state

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"meritlend/core/types"
	"meritlend/crypto"
	"meritlend/native/credit"
	"meritlend/native/escrow"
	"meritlend/native/lending"
)

var (
	// ErrInsufficientBalance marks transfers exceeding the source balance.
	ErrInsufficientBalance = errors.New("state: insufficient balance")
	// ErrInvalidAmount rejects non-positive transfer amounts.
	ErrInvalidAmount = errors.New("state: amount must be positive")
)

// Manager is the single owner of all ledger tables: accounts (wallets and
// module vaults), credit profiles and identity bindings, collateral records,
// the pool ledger and the governance parameter KV store.
//
// The reference execution model is single-writer-per-operation: the host must
// serialize state-changing operations (see WithLock); the journal assumes no
// interleaving between a Snapshot and its commit or revert.
type Manager struct {
	mu sync.Mutex

	accounts   map[string]*types.Account
	profiles   map[string]*credit.Profile
	byIdentity map[crypto.IdentityHash]*credit.Binding
	byWallet   map[string]*credit.Binding
	collateral map[uint64]*escrow.Record
	ledger     *lending.Ledger
	lenders    map[string]*lending.Lender
	borrowers  map[string]*lending.BorrowerStats
	loans      map[uint64]*lending.Loan
	params     map[string][]byte

	journal []func()
}

// NewManager constructs an empty ledger state.
func NewManager() *Manager {
	return &Manager{
		accounts:   make(map[string]*types.Account),
		profiles:   make(map[string]*credit.Profile),
		byIdentity: make(map[crypto.IdentityHash]*credit.Binding),
		byWallet:   make(map[string]*credit.Binding),
		collateral: make(map[uint64]*escrow.Record),
		lenders:    make(map[string]*lending.Lender),
		borrowers:  make(map[string]*lending.BorrowerStats),
		loans:      make(map[uint64]*lending.Loan),
		params:     make(map[string][]byte),
	}
}

// WithLock runs fn while holding the global ledger lock. Hosts use it to
// serialize whole operations, including their cross-engine calls. Once fn
// returns the operation has settled — any failure path inside it has already
// reverted — so the accumulated undo closures are discarded.
func (m *Manager) WithLock(fn func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	err := fn()
	m.journal = nil
	return err
}

// Snapshot returns a revision id capturing the current journal position.
func (m *Manager) Snapshot() int {
	return len(m.journal)
}

// RevertToSnapshot unwinds every mutation recorded after the revision id, in
// reverse order.
func (m *Manager) RevertToSnapshot(id int) {
	if id < 0 || id > len(m.journal) {
		return
	}
	for i := len(m.journal) - 1; i >= id; i-- {
		m.journal[i]()
	}
	m.journal = m.journal[:id]
}

func addrKey(addr crypto.Address) string {
	return string(addr.Bytes())
}

// --- accounts and fund movement ---

// GetAccount returns a copy of the account, zero-balanced when unseen.
func (m *Manager) GetAccount(addr crypto.Address) (*types.Account, error) {
	if acc, ok := m.accounts[addrKey(addr)]; ok {
		return acc.Clone(), nil
	}
	return &types.Account{Balance: big.NewInt(0)}, nil
}

// Mint credits freshly issued funds to the account. Used for genesis funding
// and tests.
func (m *Manager) Mint(addr crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	m.creditAccount(addr, amount)
	return nil
}

// Transfer atomically moves funds between two accounts, failing without
// effect when the source balance is insufficient.
func (m *Manager) Transfer(from, to crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	fromAcc, ok := m.accounts[addrKey(from)]
	if !ok || fromAcc.Balance == nil || fromAcc.Balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s", ErrInsufficientBalance, from)
	}
	m.debitAccount(from, amount)
	m.creditAccount(to, amount)
	return nil
}

func (m *Manager) creditAccount(addr crypto.Address, amount *big.Int) {
	key := addrKey(addr)
	prev, existed := m.accounts[key]
	var prevClone *types.Account
	if existed {
		prevClone = prev.Clone()
	}
	m.journal = append(m.journal, func() {
		if existed {
			m.accounts[key] = prevClone
		} else {
			delete(m.accounts, key)
		}
	})
	next := prev.Clone()
	next.Balance = new(big.Int).Add(next.Balance, amount)
	m.accounts[key] = next
}

func (m *Manager) debitAccount(addr crypto.Address, amount *big.Int) {
	key := addrKey(addr)
	prev := m.accounts[key]
	prevClone := prev.Clone()
	m.journal = append(m.journal, func() {
		m.accounts[key] = prevClone
	})
	next := prev.Clone()
	next.Balance = new(big.Int).Sub(next.Balance, amount)
	m.accounts[key] = next
}

// --- credit engine state ---

// ProfileGet returns a copy of the stored profile, nil when absent.
func (m *Manager) ProfileGet(addr crypto.Address) (*credit.Profile, error) {
	if profile, ok := m.profiles[addrKey(addr)]; ok {
		return profile.Clone(), nil
	}
	return nil, nil
}

// ProfilePut stores the profile, journaling the previous row.
func (m *Manager) ProfilePut(profile *credit.Profile) error {
	if profile == nil {
		return errors.New("state: nil profile")
	}
	key := addrKey(profile.Address)
	prev, existed := m.profiles[key]
	var prevClone *credit.Profile
	if existed {
		prevClone = prev.Clone()
	}
	m.journal = append(m.journal, func() {
		if existed {
			m.profiles[key] = prevClone
		} else {
			delete(m.profiles, key)
		}
	})
	m.profiles[key] = profile.Clone()
	return nil
}

// BindingByIdentity returns a copy of the binding for the identity hash.
func (m *Manager) BindingByIdentity(id crypto.IdentityHash) (*credit.Binding, error) {
	if binding, ok := m.byIdentity[id]; ok {
		return binding.Clone(), nil
	}
	return nil, nil
}

// BindingByWallet returns a copy of the binding for the wallet.
func (m *Manager) BindingByWallet(addr crypto.Address) (*credit.Binding, error) {
	if binding, ok := m.byWallet[addrKey(addr)]; ok {
		return binding.Clone(), nil
	}
	return nil, nil
}

// BindingPut stores the binding under both indexes. Bindings are append-only;
// the credit engine enforces uniqueness before calling.
func (m *Manager) BindingPut(binding *credit.Binding) error {
	if binding == nil {
		return errors.New("state: nil binding")
	}
	stored := binding.Clone()
	key := addrKey(binding.Wallet)
	id := binding.Identity
	m.journal = append(m.journal, func() {
		delete(m.byIdentity, id)
		delete(m.byWallet, key)
	})
	m.byIdentity[id] = stored
	m.byWallet[key] = stored
	return nil
}

// --- escrow engine state ---

// CollateralGet returns a copy of the collateral record, nil when absent.
func (m *Manager) CollateralGet(loanID uint64) (*escrow.Record, error) {
	if record, ok := m.collateral[loanID]; ok {
		return record.Clone(), nil
	}
	return nil, nil
}

// CollateralPut stores the collateral record, journaling the previous row.
func (m *Manager) CollateralPut(record *escrow.Record) error {
	if record == nil {
		return errors.New("state: nil collateral record")
	}
	prev, existed := m.collateral[record.LoanID]
	var prevClone *escrow.Record
	if existed {
		prevClone = prev.Clone()
	}
	id := record.LoanID
	m.journal = append(m.journal, func() {
		if existed {
			m.collateral[id] = prevClone
		} else {
			delete(m.collateral, id)
		}
	})
	m.collateral[id] = record.Clone()
	return nil
}

// LockedCollateralTotal sums all locked collateral amounts. Exposed for
// invariant checks: the total must never exceed the escrow vault balance.
func (m *Manager) LockedCollateralTotal() *big.Int {
	total := big.NewInt(0)
	for _, record := range m.collateral {
		if record.Locked && record.Amount != nil {
			total.Add(total, record.Amount)
		}
	}
	return total
}

// --- lending engine state ---

// LedgerGet returns a copy of the global pool ledger, nil when uninitialised.
func (m *Manager) LedgerGet() (*lending.Ledger, error) {
	if m.ledger == nil {
		return nil, nil
	}
	return m.ledger.Clone(), nil
}

// LedgerPut stores the pool ledger, journaling the previous value.
func (m *Manager) LedgerPut(ledger *lending.Ledger) error {
	if ledger == nil {
		return errors.New("state: nil ledger")
	}
	prev := m.ledger
	var prevClone *lending.Ledger
	if prev != nil {
		prevClone = prev.Clone()
	}
	m.journal = append(m.journal, func() {
		m.ledger = prevClone
	})
	m.ledger = ledger.Clone()
	return nil
}

// LenderGet returns a copy of the lender position, nil when absent.
func (m *Manager) LenderGet(addr crypto.Address) (*lending.Lender, error) {
	if position, ok := m.lenders[addrKey(addr)]; ok {
		return position.Clone(), nil
	}
	return nil, nil
}

// LenderPut stores the lender position, journaling the previous row.
func (m *Manager) LenderPut(position *lending.Lender) error {
	if position == nil {
		return errors.New("state: nil lender")
	}
	key := addrKey(position.Address)
	prev, existed := m.lenders[key]
	var prevClone *lending.Lender
	if existed {
		prevClone = prev.Clone()
	}
	m.journal = append(m.journal, func() {
		if existed {
			m.lenders[key] = prevClone
		} else {
			delete(m.lenders, key)
		}
	})
	m.lenders[key] = position.Clone()
	return nil
}

// BorrowerGet returns a copy of the borrower stats, nil when absent.
func (m *Manager) BorrowerGet(addr crypto.Address) (*lending.BorrowerStats, error) {
	if stats, ok := m.borrowers[addrKey(addr)]; ok {
		return stats.Clone(), nil
	}
	return nil, nil
}

// BorrowerPut stores the borrower stats, journaling the previous row.
func (m *Manager) BorrowerPut(stats *lending.BorrowerStats) error {
	if stats == nil {
		return errors.New("state: nil borrower stats")
	}
	key := addrKey(stats.Address)
	prev, existed := m.borrowers[key]
	var prevClone *lending.BorrowerStats
	if existed {
		prevClone = prev.Clone()
	}
	m.journal = append(m.journal, func() {
		if existed {
			m.borrowers[key] = prevClone
		} else {
			delete(m.borrowers, key)
		}
	})
	m.borrowers[key] = stats.Clone()
	return nil
}

// LoanGet returns a copy of the loan, nil when absent.
func (m *Manager) LoanGet(id uint64) (*lending.Loan, error) {
	if loan, ok := m.loans[id]; ok {
		return loan.Clone(), nil
	}
	return nil, nil
}

// LoanPut stores the loan, journaling the previous row.
func (m *Manager) LoanPut(loan *lending.Loan) error {
	if loan == nil {
		return errors.New("state: nil loan")
	}
	prev, existed := m.loans[loan.ID]
	var prevClone *lending.Loan
	if existed {
		prevClone = prev.Clone()
	}
	id := loan.ID
	m.journal = append(m.journal, func() {
		if existed {
			m.loans[id] = prevClone
		} else {
			delete(m.loans, id)
		}
	})
	m.loans[id] = loan.Clone()
	return nil
}

// --- governance parameter store ---

// ParamStoreSet persists a raw parameter payload under the supplied key.
func (m *Manager) ParamStoreSet(name string, value []byte) error {
	prev, existed := m.params[name]
	var prevCopy []byte
	if existed {
		prevCopy = append([]byte(nil), prev...)
	}
	m.journal = append(m.journal, func() {
		if existed {
			m.params[name] = prevCopy
		} else {
			delete(m.params, name)
		}
	})
	m.params[name] = append([]byte(nil), value...)
	return nil
}

// ParamStoreGet loads a raw parameter payload.
func (m *Manager) ParamStoreGet(name string) ([]byte, bool, error) {
	value, ok := m.params[name]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), value...), true, nil
}
