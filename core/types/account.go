package types

import "math/big"

// Account holds the spendable balance tracked by the ledger for a wallet or a
// module vault. Amounts are denominated in base units and expressed as big
// integers for deterministic accounting.
type Account struct {
	Balance *big.Int `json:"balance"`
}

// EnsureDefaults populates nil balance fields so callers can mutate the account
// without nil checks.
func (a *Account) EnsureDefaults() {
	if a.Balance == nil {
		a.Balance = big.NewInt(0)
	}
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return &Account{Balance: big.NewInt(0)}
	}
	clone := &Account{Balance: big.NewInt(0)}
	if a.Balance != nil {
		clone.Balance = new(big.Int).Set(a.Balance)
	}
	return clone
}
