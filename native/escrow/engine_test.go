package escrow

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"meritlend/crypto"
)

type mockEngineState struct {
	records      map[uint64]*Record
	balances     map[string]*big.Int
	journal      []func()
	failTransfer bool
}

func newMockEngineState() *mockEngineState {
	return &mockEngineState{
		records:  make(map[uint64]*Record),
		balances: make(map[string]*big.Int),
	}
}

func (m *mockEngineState) key(addr crypto.Address) string {
	return string(addr.Bytes())
}

func (m *mockEngineState) setBalance(addr crypto.Address, amount int64) {
	m.balances[m.key(addr)] = big.NewInt(amount)
}

func (m *mockEngineState) balance(addr crypto.Address) *big.Int {
	if bal, ok := m.balances[m.key(addr)]; ok {
		return bal
	}
	return big.NewInt(0)
}

func (m *mockEngineState) CollateralGet(loanID uint64) (*Record, error) {
	if record, ok := m.records[loanID]; ok {
		return record.Clone(), nil
	}
	return nil, nil
}

func (m *mockEngineState) CollateralPut(record *Record) error {
	prev, existed := m.records[record.LoanID]
	var prevClone *Record
	if existed {
		prevClone = prev.Clone()
	}
	id := record.LoanID
	m.journal = append(m.journal, func() {
		if existed {
			m.records[id] = prevClone
		} else {
			delete(m.records, id)
		}
	})
	m.records[id] = record.Clone()
	return nil
}

func (m *mockEngineState) Transfer(from, to crypto.Address, amount *big.Int) error {
	if m.failTransfer {
		return fmt.Errorf("transfer rejected")
	}
	fromBal := m.balance(from)
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient balance")
	}
	fromKey, toKey := m.key(from), m.key(to)
	prevFrom := new(big.Int).Set(fromBal)
	prevTo := new(big.Int).Set(m.balance(to))
	m.journal = append(m.journal, func() {
		m.balances[fromKey] = prevFrom
		m.balances[toKey] = prevTo
	})
	m.balances[fromKey] = new(big.Int).Sub(prevFrom, amount)
	m.balances[toKey] = new(big.Int).Add(prevTo, amount)
	return nil
}

func (m *mockEngineState) Snapshot() int {
	return len(m.journal)
}

func (m *mockEngineState) RevertToSnapshot(id int) {
	for i := len(m.journal) - 1; i >= id; i-- {
		m.journal[i]()
	}
	m.journal = m.journal[:id]
}

func makeAddress(suffix byte) crypto.Address {
	raw := make([]byte, 20)
	raw[len(raw)-1] = suffix
	return crypto.NewAddress(crypto.MLTPrefix, raw)
}

func newTestEngine() (*Engine, *mockEngineState, crypto.Address, crypto.Address, crypto.Address) {
	vault := makeAddress(0x01)
	pool := makeAddress(0x02)
	borrower := makeAddress(0x03)
	engine := NewEngine(vault, pool)
	state := newMockEngineState()
	engine.SetState(state)
	return engine, state, vault, pool, borrower
}

func TestLockMovesCollateralIntoVault(t *testing.T) {
	engine, state, vault, pool, borrower := newTestEngine()
	state.setBalance(borrower, 1_500)

	if err := engine.Lock(borrower, 1, borrower, big.NewInt(1_500)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := engine.Lock(pool, 1, borrower, big.NewInt(1_500)); err != nil {
		t.Fatalf("lock failed: %v", err)
	}

	if bal := state.balance(vault); bal.Cmp(big.NewInt(1_500)) != 0 {
		t.Fatalf("expected vault balance 1500, got %s", bal)
	}
	if bal := state.balance(borrower); bal.Sign() != 0 {
		t.Fatalf("expected borrower drained, got %s", bal)
	}
	record := state.records[1]
	if record == nil || !record.Locked || record.Amount.Cmp(big.NewInt(1_500)) != 0 {
		t.Fatalf("unexpected record state: %+v", record)
	}

	if err := engine.Lock(pool, 1, borrower, big.NewInt(10)); !errors.Is(err, ErrAlreadyLocked) {
		t.Fatalf("expected ErrAlreadyLocked, got %v", err)
	}
}

func TestLockAfterReleaseOverwritesRecord(t *testing.T) {
	engine, state, vault, pool, borrower := newTestEngine()
	state.setBalance(borrower, 1_500)
	if err := engine.Lock(pool, 1, borrower, big.NewInt(1_500)); err != nil {
		t.Fatalf("lock failed: %v", err)
	}
	if _, err := engine.Release(pool, 1, borrower); err != nil {
		t.Fatalf("release failed: %v", err)
	}

	// A released record no longer refuses a fresh lock.
	if err := engine.Lock(pool, 1, borrower, big.NewInt(1_000)); err != nil {
		t.Fatalf("relock failed: %v", err)
	}
	record := state.records[1]
	if !record.Locked || record.Amount.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("unexpected record after relock: %+v", record)
	}
	if bal := state.balance(vault); bal.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("expected vault balance 1000 after relock, got %s", bal)
	}
}

func TestLockRollsBackOnTransferFailure(t *testing.T) {
	engine, state, _, pool, borrower := newTestEngine()
	state.setBalance(borrower, 100)

	err := engine.Lock(pool, 1, borrower, big.NewInt(1_500))
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
	if _, ok := state.records[1]; ok {
		t.Fatalf("expected record rollback after failed transfer")
	}
}

func TestReleaseReturnsCollateral(t *testing.T) {
	engine, state, vault, pool, borrower := newTestEngine()
	state.setBalance(borrower, 1_500)
	if err := engine.Lock(pool, 1, borrower, big.NewInt(1_500)); err != nil {
		t.Fatalf("lock failed: %v", err)
	}

	amount, err := engine.Release(pool, 1, borrower)
	if err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if amount.Cmp(big.NewInt(1_500)) != 0 {
		t.Fatalf("expected release amount 1500, got %s", amount)
	}
	if bal := state.balance(vault); bal.Sign() != 0 {
		t.Fatalf("expected vault drained, got %s", bal)
	}
	if bal := state.balance(borrower); bal.Cmp(big.NewInt(1_500)) != 0 {
		t.Fatalf("expected collateral returned, got %s", bal)
	}
	record := state.records[1]
	if record.Locked || record.Amount.Sign() != 0 {
		t.Fatalf("expected unlocked zeroed record, got %+v", record)
	}

	if _, err := engine.Release(pool, 1, borrower); !errors.Is(err, ErrNotLocked) {
		t.Fatalf("expected ErrNotLocked on double release, got %v", err)
	}
}

func TestReleaseRollsBackOnTransferFailure(t *testing.T) {
	engine, state, vault, pool, borrower := newTestEngine()
	state.setBalance(borrower, 1_500)
	if err := engine.Lock(pool, 1, borrower, big.NewInt(1_500)); err != nil {
		t.Fatalf("lock failed: %v", err)
	}

	state.failTransfer = true
	if _, err := engine.Release(pool, 1, borrower); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}

	record := state.records[1]
	if !record.Locked || record.Amount.Cmp(big.NewInt(1_500)) != 0 {
		t.Fatalf("expected record restored after failed payout, got %+v", record)
	}
	if bal := state.balance(vault); bal.Cmp(big.NewInt(1_500)) != 0 {
		t.Fatalf("expected vault balance preserved, got %s", bal)
	}
}

func TestLiquidateForfeitsToPool(t *testing.T) {
	engine, state, _, pool, borrower := newTestEngine()
	state.setBalance(borrower, 1_500)
	if err := engine.Lock(pool, 7, borrower, big.NewInt(1_500)); err != nil {
		t.Fatalf("lock failed: %v", err)
	}

	amount, err := engine.Liquidate(pool, 7, pool)
	if err != nil {
		t.Fatalf("liquidate failed: %v", err)
	}
	if amount.Cmp(big.NewInt(1_500)) != 0 {
		t.Fatalf("expected forfeiture of 1500, got %s", amount)
	}
	if bal := state.balance(pool); bal.Cmp(big.NewInt(1_500)) != 0 {
		t.Fatalf("expected pool custody credited, got %s", bal)
	}
}

func TestIsUndercollateralizedSafetyFloor(t *testing.T) {
	engine, state, _, pool, borrower := newTestEngine()
	state.setBalance(borrower, 1_200)
	if err := engine.Lock(pool, 1, borrower, big.NewInt(1_200)); err != nil {
		t.Fatalf("lock failed: %v", err)
	}

	// Exactly at the 120% floor is still safe.
	under, err := engine.IsUndercollateralized(1, big.NewInt(1_000))
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if under {
		t.Fatalf("expected position at the floor to be safe")
	}

	// One unit above pushes it below the floor.
	under, err = engine.IsUndercollateralized(1, big.NewInt(1_001))
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if !under {
		t.Fatalf("expected position below the floor to be flagged")
	}

	// Zero outstanding principal can never be undercollateralized.
	under, err = engine.IsUndercollateralized(1, big.NewInt(0))
	if err != nil || under {
		t.Fatalf("expected zero-outstanding to be safe, got under=%v err=%v", under, err)
	}
}
