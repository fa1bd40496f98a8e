package escrow

import (
	"math/big"

	"meritlend/crypto"
)

// Record tracks the collateral custodied for a single loan. The escrow never
// reasons about scores or loan terms, only about locked and unlocked funds per
// loan id. Locked is true exactly while the paired loan is active.
type Record struct {
	LoanID   uint64
	Borrower crypto.Address
	Amount   *big.Int
	Locked   bool
}

// Clone returns a deep copy of the record so callers can safely mutate the
// copy without affecting the stored instance.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	clone := *r
	if r.Amount != nil {
		clone.Amount = new(big.Int).Set(r.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}
