package common

import "errors"

// ErrModulePaused is returned by Guard when governance has paused the module.
var ErrModulePaused = errors.New("module paused")

// Module names recognised by the pause switches.
const (
	ModuleCredit  = "credit"
	ModuleEscrow  = "escrow"
	ModuleLending = "lending"
)

// PauseView exposes the governance pause switches consulted by the engines.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the operation when the module is paused. A nil view or empty
// module name disables the check.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
