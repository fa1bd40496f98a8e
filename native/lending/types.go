package lending

import (
	"math/big"

	"meritlend/crypto"
)

// LoanStatus tracks the lifecycle of a loan. Transitions are Active to Repaid
// or Active to Liquidated, terminal in both cases.
type LoanStatus uint8

const (
	LoanActive LoanStatus = iota
	LoanRepaid
	LoanLiquidated
)

// Valid reports whether the status value is within the supported range.
func (s LoanStatus) Valid() bool {
	return s <= LoanLiquidated
}

func (s LoanStatus) String() string {
	switch s {
	case LoanActive:
		return "active"
	case LoanRepaid:
		return "repaid"
	case LoanLiquidated:
		return "liquidated"
	default:
		return "unknown"
	}
}

// Loan captures a single loan issued against the pool. The collateral amount
// is mirrored by an escrow record that must agree while the loan is active.
type Loan struct {
	ID                 uint64
	Borrower           crypto.Address
	Principal          *big.Int
	CollateralAmount   *big.Int
	CollateralRatioBps uint64
	StartTime          int64
	DueTime            int64
	Status             LoanStatus
}

// Clone returns a deep copy of the loan.
func (l *Loan) Clone() *Loan {
	if l == nil {
		return nil
	}
	clone := *l
	if l.Principal != nil {
		clone.Principal = new(big.Int).Set(l.Principal)
	}
	if l.CollateralAmount != nil {
		clone.CollateralAmount = new(big.Int).Set(l.CollateralAmount)
	}
	return &clone
}

// Ledger captures the global accounting state for the pool. Amount values are
// denominated in base units and expressed as big integers.
type Ledger struct {
	// TotalBorrowed tracks the outstanding principal across all loans.
	TotalBorrowed *big.Int
	// TotalLiquidity is the aggregate of tracked lender deposits.
	TotalLiquidity *big.Int
	// TotalInterestEarned accumulates interest collected on repayments.
	TotalInterestEarned *big.Int
	// NextLoanID is the monotonic loan id counter.
	NextLoanID uint64
}

// EnsureDefaults populates nil big.Int fields so callers can mutate the ledger
// without nil checks.
func (l *Ledger) EnsureDefaults() {
	if l.TotalBorrowed == nil {
		l.TotalBorrowed = big.NewInt(0)
	}
	if l.TotalLiquidity == nil {
		l.TotalLiquidity = big.NewInt(0)
	}
	if l.TotalInterestEarned == nil {
		l.TotalInterestEarned = big.NewInt(0)
	}
}

// Clone returns a deep copy of the ledger.
func (l *Ledger) Clone() *Ledger {
	if l == nil {
		return nil
	}
	clone := &Ledger{NextLoanID: l.NextLoanID}
	if l.TotalBorrowed != nil {
		clone.TotalBorrowed = new(big.Int).Set(l.TotalBorrowed)
	}
	if l.TotalLiquidity != nil {
		clone.TotalLiquidity = new(big.Int).Set(l.TotalLiquidity)
	}
	if l.TotalInterestEarned != nil {
		clone.TotalInterestEarned = new(big.Int).Set(l.TotalInterestEarned)
	}
	clone.EnsureDefaults()
	return clone
}

// Lender maintains the deposit position for a liquidity supplier.
type Lender struct {
	Address crypto.Address
	// Deposited is the lender's tracked deposit balance.
	Deposited *big.Int
	// LastDepositEpoch records the epoch of the most recent deposit and
	// blocks same-epoch borrowing.
	LastDepositEpoch uint64
}

// Clone returns a deep copy of the lender position.
func (l *Lender) Clone() *Lender {
	if l == nil {
		return nil
	}
	clone := *l
	if l.Deposited != nil {
		clone.Deposited = new(big.Int).Set(l.Deposited)
	} else {
		clone.Deposited = big.NewInt(0)
	}
	return &clone
}

// BorrowerStats carries the anti-abuse counters gating loan admission.
type BorrowerStats struct {
	Address crypto.Address
	// LastLoanTime is the unix time of the most recent origination.
	LastLoanTime int64
	// ActiveLoanCount tracks concurrently open loans.
	ActiveLoanCount uint32
	// AnomalyScore is an administrative counter used purely as a borrowing
	// gate; it is not a scoring input.
	AnomalyScore uint32
}

// Clone returns a copy of the stats row.
func (b *BorrowerStats) Clone() *BorrowerStats {
	if b == nil {
		return nil
	}
	clone := *b
	return &clone
}

// Snapshot is a pure read-derivation of the pool's current shape. The lender
// APY is informational only, not a payout obligation.
type Snapshot struct {
	TotalLiquidity      *big.Int
	TotalBorrowed       *big.Int
	TotalInterestEarned *big.Int
	CustodyBalance      *big.Int
	UtilizationBps      uint64
	MaxUtilizationBps   uint64
	LenderAPYPercent    uint64
}
