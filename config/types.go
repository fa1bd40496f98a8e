package config

import (
	"meritlend/crypto"
	nativecommon "meritlend/native/common"
)

// Pauses toggles the governance circuit breakers per module. A paused module
// rejects every state-changing operation until governance clears the flag.
type Pauses struct {
	Credit  bool `toml:"Credit" json:"credit"`
	Escrow  bool `toml:"Escrow" json:"escrow"`
	Lending bool `toml:"Lending" json:"lending"`
}

// IsPaused reports the pause switch for the named module.
func (p Pauses) IsPaused(module string) bool {
	switch module {
	case nativecommon.ModuleCredit:
		return p.Credit
	case nativecommon.ModuleEscrow:
		return p.Escrow
	case nativecommon.ModuleLending:
		return p.Lending
	default:
		return false
	}
}

// GenesisAccount seeds an account balance at startup. Balance is a decimal
// string in base units.
type GenesisAccount struct {
	Address string `toml:"Address"`
	Balance string `toml:"Balance"`
}

// Roles holds the decoded privileged addresses referenced throughout the
// runtime.
type Roles struct {
	Admin            crypto.Address
	ScoringAuthority crypto.Address
	PoolCustody      crypto.Address
	EscrowVault      crypto.Address
}
