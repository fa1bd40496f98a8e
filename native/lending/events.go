package lending

import (
	"math/big"
	"strconv"

	"meritlend/core/types"
	"meritlend/crypto"
)

const (
	// EventTypeLiquidityDeposited is emitted when a lender funds the pool.
	EventTypeLiquidityDeposited = "lending.liquidityDeposited"
	// EventTypeLiquidityWithdrawn is emitted when a lender exits.
	EventTypeLiquidityWithdrawn = "lending.liquidityWithdrawn"
	// EventTypeLoanIssued is emitted on origination.
	EventTypeLoanIssued = "lending.loanIssued"
	// EventTypeLoanRepaid is emitted on settlement.
	EventTypeLoanRepaid = "lending.loanRepaid"
	// EventTypeLoanLiquidated is emitted on forfeiture.
	EventTypeLoanLiquidated = "lending.loanLiquidated"
	// EventTypeAnomalyFlagged is emitted when the admin flags an address.
	EventTypeAnomalyFlagged = "lending.anomalyFlagged"
	// EventTypeAnomalyCleared is emitted when the admin clears an address.
	EventTypeAnomalyCleared = "lending.anomalyCleared"
)

// NewLiquidityDepositedEvent returns the canonical event payload for a
// deposit.
func NewLiquidityDepositedEvent(lender crypto.Address, amount *big.Int, epoch uint64) *types.Event {
	attrs := map[string]string{
		"lender": lender.String(),
		"epoch":  strconv.FormatUint(epoch, 10),
	}
	if amount != nil {
		attrs["amount"] = amount.String()
	}
	return &types.Event{Type: EventTypeLiquidityDeposited, Attributes: attrs}
}

// NewLiquidityWithdrawnEvent returns the canonical event payload for a
// withdrawal.
func NewLiquidityWithdrawnEvent(lender crypto.Address, amount *big.Int) *types.Event {
	attrs := map[string]string{"lender": lender.String()}
	if amount != nil {
		attrs["amount"] = amount.String()
	}
	return &types.Event{Type: EventTypeLiquidityWithdrawn, Attributes: attrs}
}

// NewLoanIssuedEvent returns the canonical event payload for an origination.
func NewLoanIssuedEvent(l *Loan) *types.Event {
	attrs := make(map[string]string)
	if l == nil {
		return &types.Event{Type: EventTypeLoanIssued, Attributes: attrs}
	}
	attrs["loanId"] = strconv.FormatUint(l.ID, 10)
	attrs["borrower"] = l.Borrower.String()
	if l.Principal != nil {
		attrs["principal"] = l.Principal.String()
	}
	if l.CollateralAmount != nil {
		attrs["collateral"] = l.CollateralAmount.String()
	}
	attrs["collateralRatioBps"] = strconv.FormatUint(l.CollateralRatioBps, 10)
	attrs["dueTime"] = strconv.FormatInt(l.DueTime, 10)
	return &types.Event{Type: EventTypeLoanIssued, Attributes: attrs}
}

// NewLoanRepaidEvent returns the canonical event payload for a settlement.
func NewLoanRepaidEvent(l *Loan, paid *big.Int, ratePercent uint64) *types.Event {
	attrs := make(map[string]string)
	if l == nil {
		return &types.Event{Type: EventTypeLoanRepaid, Attributes: attrs}
	}
	attrs["loanId"] = strconv.FormatUint(l.ID, 10)
	attrs["borrower"] = l.Borrower.String()
	attrs["ratePercent"] = strconv.FormatUint(ratePercent, 10)
	if paid != nil {
		attrs["paid"] = paid.String()
	}
	return &types.Event{Type: EventTypeLoanRepaid, Attributes: attrs}
}

// NewLoanLiquidatedEvent returns the canonical event payload for a
// forfeiture.
func NewLoanLiquidatedEvent(l *Loan, overdue bool) *types.Event {
	attrs := make(map[string]string)
	if l == nil {
		return &types.Event{Type: EventTypeLoanLiquidated, Attributes: attrs}
	}
	attrs["loanId"] = strconv.FormatUint(l.ID, 10)
	attrs["borrower"] = l.Borrower.String()
	attrs["overdue"] = strconv.FormatBool(overdue)
	if l.CollateralAmount != nil {
		attrs["collateral"] = l.CollateralAmount.String()
	}
	return &types.Event{Type: EventTypeLoanLiquidated, Attributes: attrs}
}

// NewAnomalyFlaggedEvent returns the canonical event payload for an anomaly
// flag.
func NewAnomalyFlaggedEvent(user crypto.Address, score uint32, reason string) *types.Event {
	return &types.Event{Type: EventTypeAnomalyFlagged, Attributes: map[string]string{
		"user":   user.String(),
		"score":  strconv.FormatUint(uint64(score), 10),
		"reason": reason,
	}}
}

// NewAnomalyClearedEvent returns the canonical event payload for an anomaly
// reset.
func NewAnomalyClearedEvent(user crypto.Address) *types.Event {
	return &types.Event{Type: EventTypeAnomalyCleared, Attributes: map[string]string{
		"user": user.String(),
	}}
}
