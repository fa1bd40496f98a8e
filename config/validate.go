package config

import "fmt"

// ValidateConfig checks the runtime configuration invariants that must hold
// before engines are wired.
func ValidateConfig(c *Config) error {
	roles, err := c.DecodeRoles()
	if err != nil {
		return err
	}
	if roles.PoolCustody.Equal(roles.EscrowVault) {
		return fmt.Errorf("config: PoolCustody and EscrowVault must be distinct accounts")
	}
	if c.Lending.MaxUtilizationBps > 10_000 {
		return fmt.Errorf("lending: MaxUtilizationBps > 10000")
	}
	if c.Lending.MinRepayDelaySeconds >= c.Lending.LoanTermSeconds {
		return fmt.Errorf("lending: MinRepayDelaySeconds >= LoanTermSeconds")
	}
	if c.Credit.DecayIdleSeconds >= c.Credit.DecayStaleSeconds {
		return fmt.Errorf("credit: DecayIdleSeconds >= DecayStaleSeconds")
	}
	if c.Credit.RepaymentReward < 0 || c.Credit.LiquidationPenalty < 0 {
		return fmt.Errorf("credit: score deltas must be non-negative magnitudes")
	}
	return nil
}
