package escrow

import (
	"math/big"
	"strconv"

	"meritlend/core/types"
	"meritlend/crypto"
)

const (
	// EventTypeCollateralLocked is emitted when collateral enters custody.
	EventTypeCollateralLocked = "escrow.collateralLocked"
	// EventTypeCollateralReleased is emitted when collateral returns to the
	// borrower.
	EventTypeCollateralReleased = "escrow.collateralReleased"
	// EventTypeCollateralLiquidated is emitted when collateral is forfeited
	// into pool custody.
	EventTypeCollateralLiquidated = "escrow.collateralLiquidated"
)

// NewCollateralLockedEvent returns the canonical event payload for a lock.
func NewCollateralLockedEvent(r *Record) *types.Event {
	attrs := make(map[string]string)
	if r == nil {
		return &types.Event{Type: EventTypeCollateralLocked, Attributes: attrs}
	}
	attrs["loanId"] = strconv.FormatUint(r.LoanID, 10)
	attrs["borrower"] = r.Borrower.String()
	if r.Amount != nil {
		attrs["amount"] = r.Amount.String()
	}
	return &types.Event{Type: EventTypeCollateralLocked, Attributes: attrs}
}

// NewCollateralReleasedEvent returns the canonical event payload for a
// release back to the borrower.
func NewCollateralReleasedEvent(r *Record, to crypto.Address, amount *big.Int) *types.Event {
	return payoutEvent(EventTypeCollateralReleased, r, to, amount)
}

// NewCollateralLiquidatedEvent returns the canonical event payload for a
// forfeiture into pool custody.
func NewCollateralLiquidatedEvent(r *Record, to crypto.Address, amount *big.Int) *types.Event {
	return payoutEvent(EventTypeCollateralLiquidated, r, to, amount)
}

func payoutEvent(eventType string, r *Record, to crypto.Address, amount *big.Int) *types.Event {
	attrs := make(map[string]string)
	if r == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["loanId"] = strconv.FormatUint(r.LoanID, 10)
	attrs["borrower"] = r.Borrower.String()
	attrs["to"] = to.String()
	if amount != nil {
		attrs["amount"] = amount.String()
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
