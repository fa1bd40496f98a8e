package credit

// Params groups the policy constants owned by the scoring engine. Governance
// may override any of them; the defaults match the protocol literals.
type Params struct {
	// RepaymentReward is the score delta applied when a loan is repaid.
	RepaymentReward int64 `toml:"RepaymentReward"`
	// LiquidationPenalty is the score delta applied when a loan is
	// liquidated, expressed as a positive magnitude.
	LiquidationPenalty int64 `toml:"LiquidationPenalty"`
	// DecayIdleSeconds is the inactivity threshold before a profile becomes
	// eligible for decay.
	DecayIdleSeconds int64 `toml:"DecayIdleSeconds"`
	// DecayStaleSeconds is the inactivity threshold for the heavier decay
	// penalty.
	DecayStaleSeconds int64 `toml:"DecayStaleSeconds"`
	// DecayMinor is the score reduction applied between the idle and stale
	// thresholds.
	DecayMinor uint64 `toml:"DecayMinor"`
	// DecayMajor is the score reduction applied past the stale threshold.
	DecayMajor uint64 `toml:"DecayMajor"`
}

const (
	day = 24 * 60 * 60
)

// DefaultParams returns the protocol default scoring policy.
func DefaultParams() Params {
	return Params{
		RepaymentReward:    50,
		LiquidationPenalty: 100,
		DecayIdleSeconds:   180 * day,
		DecayStaleSeconds:  365 * day,
		DecayMinor:         20,
		DecayMajor:         50,
	}
}

// Normalize fills zero-valued fields with their defaults so partially
// configured overrides remain safe to apply.
func (p Params) Normalize() Params {
	defaults := DefaultParams()
	if p.RepaymentReward == 0 {
		p.RepaymentReward = defaults.RepaymentReward
	}
	if p.LiquidationPenalty == 0 {
		p.LiquidationPenalty = defaults.LiquidationPenalty
	}
	if p.DecayIdleSeconds == 0 {
		p.DecayIdleSeconds = defaults.DecayIdleSeconds
	}
	if p.DecayStaleSeconds == 0 {
		p.DecayStaleSeconds = defaults.DecayStaleSeconds
	}
	if p.DecayMinor == 0 {
		p.DecayMinor = defaults.DecayMinor
	}
	if p.DecayMajor == 0 {
		p.DecayMajor = defaults.DecayMajor
	}
	return p
}
