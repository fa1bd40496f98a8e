package escrow

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"meritlend/core/events"
	"meritlend/core/types"
	"meritlend/crypto"
	nativecommon "meritlend/native/common"
)

var (
	errNilState = errors.New("escrow engine: state not configured")

	// ErrUnauthorized marks custody calls from accounts other than the pool
	// authority.
	ErrUnauthorized = errors.New("escrow engine: caller lacks required role")
	// ErrMustBePositive rejects non-positive collateral amounts.
	ErrMustBePositive = errors.New("escrow engine: amount must be positive")
	// ErrZeroAddress rejects custody operations without a borrower or payout
	// address.
	ErrZeroAddress = errors.New("escrow engine: zero address")
	// ErrAlreadyLocked is returned when a collateral record already exists
	// for the loan id.
	ErrAlreadyLocked = errors.New("escrow engine: collateral already locked")
	// ErrNotLocked is returned when the record is absent or already
	// unlocked.
	ErrNotLocked = errors.New("escrow engine: collateral not locked")
	// ErrTransferFailed wraps payout failures. Every mutation made earlier in
	// the same operation is rolled back before this is returned.
	ErrTransferFailed = errors.New("escrow engine: transfer failed")
)

var basisPoints = big.NewInt(10_000)

const moduleName = "escrow"

// SafetyFloorBps is the fixed undercollateralization floor: a position is
// liquidatable once its collateral value drops below 120% of the outstanding
// principal, independent of the ratio at origination.
const SafetyFloorBps uint64 = 12_000

type engineState interface {
	CollateralGet(loanID uint64) (*Record, error)
	CollateralPut(record *Record) error
	Transfer(from, to crypto.Address, amount *big.Int) error
	Snapshot() int
	RevertToSnapshot(id int)
}

type escrowEvent struct {
	evt *types.Event
}

func (e escrowEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e escrowEvent) Event() *types.Event { return e.evt }

// Engine is the sole custodian of posted collateral. Funds live in the escrow
// vault account; every unit in the vault is attributable to exactly one locked
// record.
type Engine struct {
	mu sync.Mutex

	state         engineState
	vault         crypto.Address
	poolAuthority crypto.Address
	emitter       events.Emitter
	pauses        nativecommon.PauseView
}

// NewEngine constructs an escrow engine custodying funds in the supplied vault
// account and accepting custody instructions from the pool authority only.
func NewEngine(vault, poolAuthority crypto.Address) *Engine {
	return &Engine{
		vault:         vault,
		poolAuthority: poolAuthority,
		emitter:       events.NoopEmitter{},
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetPauses wires the module pause switches consulted before every mutation.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Vault returns the escrow custody address.
func (e *Engine) Vault() crypto.Address {
	return e.vault
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(escrowEvent{evt: event})
}

// Lock creates the collateral record for a loan and moves the posted amount
// from the borrower into the vault. The record is written before the inbound
// transfer; a failed transfer rolls the record back. Only a still-locked
// record refuses the call; a released one is overwritten.
func (e *Engine) Lock(caller crypto.Address, loanID uint64, borrower crypto.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if !caller.Equal(e.poolAuthority) {
		return ErrUnauthorized
	}
	if borrower.IsZero() {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrMustBePositive
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	existing, err := e.state.CollateralGet(loanID)
	if err != nil {
		return err
	}
	if existing != nil && existing.Locked {
		return ErrAlreadyLocked
	}

	snapshot := e.state.Snapshot()
	record := &Record{
		LoanID:   loanID,
		Borrower: borrower,
		Amount:   new(big.Int).Set(amount),
		Locked:   true,
	}
	if err := e.state.CollateralPut(record); err != nil {
		return err
	}
	if err := e.state.Transfer(borrower, e.vault, amount); err != nil {
		e.state.RevertToSnapshot(snapshot)
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	e.emit(NewCollateralLockedEvent(record))
	return nil
}

// Release returns the custodied collateral to the supplied address. The record
// is zeroed and unlocked strictly before the outbound transfer; a failed
// transfer reverts every mutation made in this call.
func (e *Engine) Release(caller crypto.Address, loanID uint64, to crypto.Address) (*big.Int, error) {
	return e.payout(caller, loanID, to, NewCollateralReleasedEvent)
}

// Liquidate forfeits the custodied collateral into the pool's own custody
// account. The state contract is identical to Release, only the destination
// differs.
func (e *Engine) Liquidate(caller crypto.Address, loanID uint64, poolAddr crypto.Address) (*big.Int, error) {
	return e.payout(caller, loanID, poolAddr, NewCollateralLiquidatedEvent)
}

func (e *Engine) payout(caller crypto.Address, loanID uint64, to crypto.Address, eventFn func(*Record, crypto.Address, *big.Int) *types.Event) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if !caller.Equal(e.poolAuthority) {
		return nil, ErrUnauthorized
	}
	if to.IsZero() {
		return nil, ErrZeroAddress
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	record, err := e.state.CollateralGet(loanID)
	if err != nil {
		return nil, err
	}
	if record == nil || !record.Locked {
		return nil, ErrNotLocked
	}

	amount := new(big.Int).Set(record.Amount)

	// State mutation strictly precedes the fund movement so a reentrant
	// observer can never see custodied funds still attributed to an unlocked
	// record.
	snapshot := e.state.Snapshot()
	record.Amount = big.NewInt(0)
	record.Locked = false
	if err := e.state.CollateralPut(record); err != nil {
		return nil, err
	}
	if err := e.state.Transfer(e.vault, to, amount); err != nil {
		e.state.RevertToSnapshot(snapshot)
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	e.emit(eventFn(record, to, amount))
	return amount, nil
}

// ValueOf returns the collateral currently locked for the loan, zero when no
// locked record exists.
func (e *Engine) ValueOf(loanID uint64) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	record, err := e.state.CollateralGet(loanID)
	if err != nil {
		return nil, err
	}
	if record == nil || !record.Locked || record.Amount == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(record.Amount), nil
}

// IsUndercollateralized reports whether the locked collateral has fallen below
// the fixed 120% safety floor of the outstanding principal.
func (e *Engine) IsUndercollateralized(loanID uint64, outstandingPrincipal *big.Int) (bool, error) {
	if outstandingPrincipal == nil || outstandingPrincipal.Sign() <= 0 {
		return false, nil
	}
	value, err := e.ValueOf(loanID)
	if err != nil {
		return false, err
	}
	// value * 10000 < floor * outstanding
	lhs := new(big.Int).Mul(value, basisPoints)
	rhs := new(big.Int).Mul(outstandingPrincipal, new(big.Int).SetUint64(SafetyFloorBps))
	return lhs.Cmp(rhs) < 0, nil
}
