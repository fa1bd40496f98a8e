package lending

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"meritlend/core/events"
	coretypes "meritlend/core/types"
	"meritlend/crypto"
	nativecommon "meritlend/native/common"
	"meritlend/native/credit"
)

var (
	errNilState   = errors.New("lending engine: state not configured")
	errNilScoring = errors.New("lending engine: scoring engine not configured")
	errNilEscrow  = errors.New("lending engine: escrow engine not configured")

	// ErrUnauthorized marks admin calls from accounts without the admin
	// role.
	ErrUnauthorized = errors.New("lending engine: caller lacks required role")
	// ErrInvalidAmount rejects non-positive liquidity amounts.
	ErrInvalidAmount = errors.New("lending engine: amount must be positive")
	// ErrZeroAddress rejects operations without a caller address.
	ErrZeroAddress = errors.New("lending engine: zero address")
	// ErrTransferFailed wraps fund-movement failures. The operation's ledger
	// mutations are rolled back before this is returned.
	ErrTransferFailed = errors.New("lending engine: transfer failed")

	// ErrExceedsDepositedBalance rejects withdrawals above the lender's
	// tracked deposit.
	ErrExceedsDepositedBalance = errors.New("lending engine: amount exceeds deposited balance")
	// ErrInsufficientPoolReserves blocks withdrawals that would drop custody
	// below the outstanding borrowed total.
	ErrInsufficientPoolReserves = errors.New("lending engine: insufficient pool reserves")

	// Loan admission gate errors, one per gate so callers can discriminate
	// causes.
	ErrLoanAmountZero            = errors.New("lending engine: loan amount must be positive")
	ErrSelfLendingProhibited     = errors.New("lending engine: pool cannot borrow from itself")
	ErrCooldownActive            = errors.New("lending engine: borrower cooldown active")
	ErrMaxActiveLoansReached     = errors.New("lending engine: max active loans reached")
	ErrSameEpochBorrowProhibited = errors.New("lending engine: deposit and borrow in same epoch prohibited")
	ErrAddressFlagged            = errors.New("lending engine: address flagged for anomalies")
	ErrInsufficientCollateral    = errors.New("lending engine: insufficient collateral attached")
	ErrInsufficientLiquidity     = errors.New("lending engine: insufficient pool liquidity")
	ErrUtilizationExceeded       = errors.New("lending engine: utilization ceiling exceeded")

	// Loan lifecycle errors.
	ErrLoanDoesNotExist      = errors.New("lending engine: loan does not exist")
	ErrNotBorrower           = errors.New("lending engine: caller is not the borrower")
	ErrLoanAlreadyRepaid     = errors.New("lending engine: loan already repaid")
	ErrLoanAlreadyLiquidated = errors.New("lending engine: loan already liquidated")
	ErrRepayTooEarly         = errors.New("lending engine: repayment window not yet open")
	ErrInsufficientRepayment = errors.New("lending engine: repayment below amount due")
	ErrLoanNotLiquidatable   = errors.New("lending engine: loan not liquidatable")
)

var basisPoints = big.NewInt(10_000)

const moduleName = "lending"

type engineState interface {
	LedgerGet() (*Ledger, error)
	LedgerPut(ledger *Ledger) error
	LenderGet(addr crypto.Address) (*Lender, error)
	LenderPut(lender *Lender) error
	BorrowerGet(addr crypto.Address) (*BorrowerStats, error)
	BorrowerPut(stats *BorrowerStats) error
	LoanGet(id uint64) (*Loan, error)
	LoanPut(loan *Loan) error
	GetAccount(addr crypto.Address) (*coretypes.Account, error)
	Transfer(from, to crypto.Address, amount *big.Int) error
	Snapshot() int
	RevertToSnapshot(id int)
}

// scoringEngine is the narrow view of the credit scoring engine consumed by
// the pool. Satisfied by *credit.Engine.
type scoringEngine interface {
	RequiredCollateral(wallet crypto.Address, loanAmount *big.Int) (*big.Int, error)
	GetTier(wallet crypto.Address) (credit.Tier, error)
	RecordLoanIssued(caller, wallet crypto.Address) error
	RewardRepayment(caller, wallet crypto.Address) error
	PenalizeLiquidation(caller, wallet crypto.Address) error
}

// collateralEscrow is the custody contract consumed by the pool. Satisfied by
// *escrow.Engine.
type collateralEscrow interface {
	Lock(caller crypto.Address, loanID uint64, borrower crypto.Address, amount *big.Int) error
	Release(caller crypto.Address, loanID uint64, to crypto.Address) (*big.Int, error)
	Liquidate(caller crypto.Address, loanID uint64, poolAddr crypto.Address) (*big.Int, error)
	IsUndercollateralized(loanID uint64, outstandingPrincipal *big.Int) (bool, error)
}

type poolEvent struct {
	evt *coretypes.Event
}

func (e poolEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e poolEvent) Event() *coretypes.Event { return e.evt }

// Engine owns the loan state machine and the liquidity ledger. It composes
// the scoring engine and the collateral escrow: within any operation all
// admission checks run first, then all internal ledger mutations, then fund
// movements and cross-component calls, in that order.
type Engine struct {
	mu sync.Mutex

	state      engineState
	scoring    scoringEngine
	collateral collateralEscrow
	custody    crypto.Address
	admin      crypto.Address
	params     Params
	epoch      uint64
	emitter    events.Emitter
	pauses     nativecommon.PauseView
	nowFn      func() int64
}

// NewEngine constructs a pool engine custodying liquidity in the supplied
// custody account. The custody address doubles as the pool-authority identity
// presented to the scoring engine and the escrow.
func NewEngine(custody, admin crypto.Address) *Engine {
	return &Engine{
		custody: custody,
		admin:   admin,
		params:  DefaultParams(),
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetScoringEngine wires the credit scoring engine consulted for collateral
// requirements and notified of loan outcomes.
func (e *Engine) SetScoringEngine(scoring scoringEngine) { e.scoring = scoring }

// SetCollateralEscrow wires the escrow delegated custody of posted
// collateral.
func (e *Engine) SetCollateralEscrow(escrow collateralEscrow) { e.collateral = escrow }

// SetParams overrides the admission limits. Zero-valued fields fall back to
// the protocol defaults.
func (e *Engine) SetParams(params Params) {
	if e == nil {
		return
	}
	e.params = params.Normalize()
}

// SetEpoch records the current epoch used to block same-epoch
// deposit-then-borrow cycles. The host advances it once per block or batch
// window.
func (e *Engine) SetEpoch(epoch uint64) {
	if e == nil {
		return
	}
	e.epoch = epoch
}

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

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// Custody returns the pool custody address.
func (e *Engine) Custody() crypto.Address {
	return e.custody
}

func (e *Engine) emit(event *coretypes.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(poolEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.scoring == nil {
		return errNilScoring
	}
	if e.collateral == nil {
		return errNilEscrow
	}
	return nil
}

// DepositLiquidity moves funds from the lender into pool custody and records
// the deposit. The current epoch is stamped on the lender to block same-epoch
// borrowing.
func (e *Engine) DepositLiquidity(lender crypto.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if lender.IsZero() {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ledger, err := e.ensureLedger()
	if err != nil {
		return err
	}
	position, err := e.ensureLender(lender)
	if err != nil {
		return err
	}

	snapshot := e.state.Snapshot()
	position.Deposited = new(big.Int).Add(position.Deposited, amount)
	position.LastDepositEpoch = e.epoch
	ledger.TotalLiquidity = new(big.Int).Add(ledger.TotalLiquidity, amount)
	if err := e.state.LenderPut(position); err != nil {
		return err
	}
	if err := e.state.LedgerPut(ledger); err != nil {
		return err
	}
	if err := e.state.Transfer(lender, e.custody, amount); err != nil {
		e.state.RevertToSnapshot(snapshot)
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	e.emit(NewLiquidityDepositedEvent(lender, amount, e.epoch))
	return nil
}

// WithdrawLiquidity returns funds from pool custody to the lender. Ledger
// state is mutated before the outbound transfer; a failed transfer reverts
// everything.
func (e *Engine) WithdrawLiquidity(lender crypto.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if lender.IsZero() {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ledger, err := e.ensureLedger()
	if err != nil {
		return err
	}
	position, err := e.ensureLender(lender)
	if err != nil {
		return err
	}
	if position.Deposited.Cmp(amount) < 0 {
		return ErrExceedsDepositedBalance
	}
	custodyBalance, err := e.custodyBalance()
	if err != nil {
		return err
	}
	remaining := new(big.Int).Sub(custodyBalance, amount)
	if remaining.Cmp(ledger.TotalBorrowed) < 0 {
		return ErrInsufficientPoolReserves
	}

	snapshot := e.state.Snapshot()
	position.Deposited = new(big.Int).Sub(position.Deposited, amount)
	ledger.TotalLiquidity = new(big.Int).Sub(ledger.TotalLiquidity, amount)
	if err := e.state.LenderPut(position); err != nil {
		return err
	}
	if err := e.state.LedgerPut(ledger); err != nil {
		return err
	}
	if err := e.state.Transfer(e.custody, lender, amount); err != nil {
		e.state.RevertToSnapshot(snapshot)
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	e.emit(NewLiquidityWithdrawnEvent(lender, amount))
	return nil
}

// RequestLoan runs the ordered admission gate and, only once every check has
// passed, originates the loan: ledger state first, then the escrow lock, the
// principal payout and the scoring notification. Any downstream failure rolls
// the whole operation back.
func (e *Engine) RequestLoan(borrower crypto.Address, amount, collateral *big.Int) (*Loan, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Gate 1: amount must be positive.
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrLoanAmountZero
	}
	// Gate 2: the pool cannot borrow from itself.
	if borrower.IsZero() {
		return nil, ErrZeroAddress
	}
	if borrower.Equal(e.custody) {
		return nil, ErrSelfLendingProhibited
	}

	ledger, err := e.ensureLedger()
	if err != nil {
		return nil, err
	}
	stats, err := e.ensureBorrower(borrower)
	if err != nil {
		return nil, err
	}
	now := e.now()

	// Gate 3: origination cooldown.
	if stats.LastLoanTime > 0 && now < stats.LastLoanTime+e.params.CooldownSeconds {
		return nil, ErrCooldownActive
	}
	// Gate 4: concurrent loan cap.
	if stats.ActiveLoanCount >= e.params.MaxActiveLoans {
		return nil, ErrMaxActiveLoansReached
	}
	// Gate 5: no deposit-then-borrow inside one epoch.
	position, err := e.state.LenderGet(borrower)
	if err != nil {
		return nil, err
	}
	if position != nil && position.LastDepositEpoch >= e.epoch {
		return nil, ErrSameEpochBorrowProhibited
	}
	// Gate 6: anomaly flag.
	if stats.AnomalyScore >= e.params.AnomalyThreshold {
		return nil, ErrAddressFlagged
	}
	// Gate 7: attached collateral covers the tiered requirement.
	required, err := e.scoring.RequiredCollateral(borrower, amount)
	if err != nil {
		return nil, err
	}
	if collateral == nil || collateral.Cmp(required) < 0 {
		return nil, ErrInsufficientCollateral
	}
	// Gate 8: pool custody covers the principal.
	custodyBalance, err := e.custodyBalance()
	if err != nil {
		return nil, err
	}
	if custodyBalance.Cmp(amount) < 0 {
		return nil, ErrInsufficientLiquidity
	}
	// Gate 9: utilization ceiling after the payout.
	newBorrowed := new(big.Int).Add(ledger.TotalBorrowed, amount)
	custodyAfter := new(big.Int).Sub(custodyBalance, amount)
	lhs := new(big.Int).Mul(newBorrowed, basisPoints)
	rhs := new(big.Int).Add(custodyAfter, newBorrowed)
	rhs.Mul(rhs, new(big.Int).SetUint64(e.params.MaxUtilizationBps))
	if lhs.Cmp(rhs) > 0 {
		return nil, ErrUtilizationExceeded
	}

	// All gates passed: finalize internal ledger state before any fund
	// movement or cross-component call.
	snapshot := e.state.Snapshot()
	ratioBps := new(big.Int).Mul(required, basisPoints)
	ratioBps.Quo(ratioBps, amount)
	loan := &Loan{
		ID:                 ledger.NextLoanID,
		Borrower:           borrower,
		Principal:          new(big.Int).Set(amount),
		CollateralAmount:   new(big.Int).Set(collateral),
		CollateralRatioBps: ratioBps.Uint64(),
		StartTime:          now,
		DueTime:            now + e.params.LoanTermSeconds,
		Status:             LoanActive,
	}
	ledger.NextLoanID++
	ledger.TotalBorrowed = newBorrowed
	stats.LastLoanTime = now
	stats.ActiveLoanCount++
	if err := e.state.LoanPut(loan); err != nil {
		return nil, err
	}
	if err := e.state.LedgerPut(ledger); err != nil {
		return nil, err
	}
	if err := e.state.BorrowerPut(stats); err != nil {
		return nil, err
	}

	// External effects: collateral into escrow custody, principal to the
	// borrower, loan counter to the scoring engine.
	if err := e.collateral.Lock(e.custody, loan.ID, borrower, collateral); err != nil {
		e.state.RevertToSnapshot(snapshot)
		return nil, err
	}
	if err := e.state.Transfer(e.custody, borrower, amount); err != nil {
		e.state.RevertToSnapshot(snapshot)
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err := e.scoring.RecordLoanIssued(e.custody, borrower); err != nil {
		e.state.RevertToSnapshot(snapshot)
		return nil, err
	}
	e.emit(NewLoanIssuedEvent(loan))
	return loan.Clone(), nil
}

// GetInterestRate returns the borrower's interest rate in whole percent as a
// pure function of their current tier.
func (e *Engine) GetInterestRate(borrower crypto.Address) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	tier, err := e.scoring.GetTier(borrower)
	if err != nil {
		return 0, err
	}
	return InterestRatePercent(tier), nil
}

// RepayLoan settles an active loan. The payment must cover principal plus
// interest at the borrower's current tier. On success the collateral returns
// to the borrower and the scoring engine applies the repayment reward.
func (e *Engine) RepayLoan(borrower crypto.Address, loanID uint64, payment *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if borrower.IsZero() {
		return ErrZeroAddress
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	loan, err := e.state.LoanGet(loanID)
	if err != nil {
		return err
	}
	if loan == nil {
		return ErrLoanDoesNotExist
	}
	if !loan.Borrower.Equal(borrower) {
		return ErrNotBorrower
	}
	if err := activeOnly(loan); err != nil {
		return err
	}
	now := e.now()
	if now < loan.StartTime+e.params.MinRepayDelaySeconds {
		return ErrRepayTooEarly
	}

	tier, err := e.scoring.GetTier(borrower)
	if err != nil {
		return err
	}
	rate := InterestRatePercent(tier)
	due := RepaymentAmount(loan.Principal, rate)
	if payment == nil || payment.Cmp(due) < 0 {
		return ErrInsufficientRepayment
	}
	interest := new(big.Int).Sub(due, loan.Principal)

	ledger, err := e.ensureLedger()
	if err != nil {
		return err
	}
	stats, err := e.ensureBorrower(borrower)
	if err != nil {
		return err
	}

	snapshot := e.state.Snapshot()
	loan.Status = LoanRepaid
	ledger.TotalBorrowed = new(big.Int).Sub(ledger.TotalBorrowed, loan.Principal)
	ledger.TotalInterestEarned = new(big.Int).Add(ledger.TotalInterestEarned, interest)
	if stats.ActiveLoanCount > 0 {
		stats.ActiveLoanCount--
	}
	if err := e.state.LoanPut(loan); err != nil {
		return err
	}
	if err := e.state.LedgerPut(ledger); err != nil {
		return err
	}
	if err := e.state.BorrowerPut(stats); err != nil {
		return err
	}

	// External effects after all local ledger mutation: repayment into
	// custody, collateral release, score reward.
	if err := e.state.Transfer(borrower, e.custody, due); err != nil {
		e.state.RevertToSnapshot(snapshot)
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if _, err := e.collateral.Release(e.custody, loanID, borrower); err != nil {
		e.state.RevertToSnapshot(snapshot)
		return err
	}
	if err := e.scoring.RewardRepayment(e.custody, borrower); err != nil {
		e.state.RevertToSnapshot(snapshot)
		return err
	}
	e.emit(NewLoanRepaidEvent(loan, due, rate))
	return nil
}

// LiquidateLoan forfeits an overdue or undercollateralized loan. Anyone may
// invoke it; no repayment funds are exchanged. The collateral moves into pool
// custody and the scoring engine applies the liquidation penalty.
func (e *Engine) LiquidateLoan(loanID uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	loan, err := e.state.LoanGet(loanID)
	if err != nil {
		return err
	}
	if loan == nil {
		return ErrLoanDoesNotExist
	}
	if err := activeOnly(loan); err != nil {
		return err
	}
	overdue := e.now() > loan.DueTime
	if !overdue {
		under, err := e.collateral.IsUndercollateralized(loanID, loan.Principal)
		if err != nil {
			return err
		}
		if !under {
			return ErrLoanNotLiquidatable
		}
	}

	ledger, err := e.ensureLedger()
	if err != nil {
		return err
	}
	stats, err := e.ensureBorrower(loan.Borrower)
	if err != nil {
		return err
	}

	snapshot := e.state.Snapshot()
	loan.Status = LoanLiquidated
	ledger.TotalBorrowed = new(big.Int).Sub(ledger.TotalBorrowed, loan.Principal)
	if stats.ActiveLoanCount > 0 {
		stats.ActiveLoanCount--
	}
	if err := e.state.LoanPut(loan); err != nil {
		return err
	}
	if err := e.state.LedgerPut(ledger); err != nil {
		return err
	}
	if err := e.state.BorrowerPut(stats); err != nil {
		return err
	}

	if _, err := e.collateral.Liquidate(e.custody, loanID, e.custody); err != nil {
		e.state.RevertToSnapshot(snapshot)
		return err
	}
	if err := e.scoring.PenalizeLiquidation(e.custody, loan.Borrower); err != nil {
		e.state.RevertToSnapshot(snapshot)
		return err
	}
	e.emit(NewLoanLiquidatedEvent(loan, overdue))
	return nil
}

// FlagAnomaly increments the administrative anomaly counter gating the user's
// borrowing. Admin only; the counter is never a scoring input.
func (e *Engine) FlagAnomaly(caller, user crypto.Address, reason string) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if !caller.Equal(e.admin) {
		return ErrUnauthorized
	}
	if user.IsZero() {
		return ErrZeroAddress
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	stats, err := e.ensureBorrower(user)
	if err != nil {
		return err
	}
	stats.AnomalyScore++
	if err := e.state.BorrowerPut(stats); err != nil {
		return err
	}
	e.emit(NewAnomalyFlaggedEvent(user, stats.AnomalyScore, reason))
	return nil
}

// ClearAnomaly resets the user's anomaly counter. Admin only.
func (e *Engine) ClearAnomaly(caller, user crypto.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if !caller.Equal(e.admin) {
		return ErrUnauthorized
	}
	if user.IsZero() {
		return ErrZeroAddress
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	stats, err := e.ensureBorrower(user)
	if err != nil {
		return err
	}
	stats.AnomalyScore = 0
	if err := e.state.BorrowerPut(stats); err != nil {
		return err
	}
	e.emit(NewAnomalyClearedEvent(user))
	return nil
}

// GetLoan returns a copy of the loan when it exists.
func (e *Engine) GetLoan(loanID uint64) (*Loan, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	loan, err := e.state.LoanGet(loanID)
	if err != nil {
		return nil, false, err
	}
	if loan == nil {
		return nil, false, nil
	}
	return loan.Clone(), true, nil
}

// GetSnapshot derives the informational pool snapshot from the current ledger
// and custody balance.
func (e *Engine) GetSnapshot() (*Snapshot, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ledger, err := e.ensureLedger()
	if err != nil {
		return nil, err
	}
	custodyBalance, err := e.custodyBalance()
	if err != nil {
		return nil, err
	}
	util := UtilizationBps(ledger.TotalBorrowed, custodyBalance)
	return &Snapshot{
		TotalLiquidity:      new(big.Int).Set(ledger.TotalLiquidity),
		TotalBorrowed:       new(big.Int).Set(ledger.TotalBorrowed),
		TotalInterestEarned: new(big.Int).Set(ledger.TotalInterestEarned),
		CustodyBalance:      custodyBalance,
		UtilizationBps:      util,
		MaxUtilizationBps:   e.params.MaxUtilizationBps,
		LenderAPYPercent:    LenderAPYPercent(util),
	}, nil
}

func activeOnly(loan *Loan) error {
	switch loan.Status {
	case LoanActive:
		return nil
	case LoanRepaid:
		return ErrLoanAlreadyRepaid
	case LoanLiquidated:
		return ErrLoanAlreadyLiquidated
	default:
		return ErrLoanDoesNotExist
	}
}

func (e *Engine) ensureLedger() (*Ledger, error) {
	ledger, err := e.state.LedgerGet()
	if err != nil {
		return nil, err
	}
	if ledger == nil {
		ledger = &Ledger{}
	}
	ledger.EnsureDefaults()
	return ledger, nil
}

func (e *Engine) ensureLender(addr crypto.Address) (*Lender, error) {
	position, err := e.state.LenderGet(addr)
	if err != nil {
		return nil, err
	}
	if position == nil {
		position = &Lender{Address: addr}
	}
	if position.Deposited == nil {
		position.Deposited = big.NewInt(0)
	}
	return position, nil
}

func (e *Engine) ensureBorrower(addr crypto.Address) (*BorrowerStats, error) {
	stats, err := e.state.BorrowerGet(addr)
	if err != nil {
		return nil, err
	}
	if stats == nil {
		stats = &BorrowerStats{Address: addr}
	}
	return stats, nil
}

func (e *Engine) custodyBalance() (*big.Int, error) {
	acc, err := e.state.GetAccount(e.custody)
	if err != nil {
		return nil, err
	}
	if acc == nil || acc.Balance == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(acc.Balance), nil
}
