package lending

// Params groups the governance controlled admission limits applied to pool
// activity. Zero values fall back to the protocol defaults via Normalize.
type Params struct {
	// CooldownSeconds is the minimum spacing between originations per
	// borrower.
	CooldownSeconds int64 `toml:"CooldownSeconds"`
	// MaxActiveLoans caps concurrently open loans per borrower.
	MaxActiveLoans uint32 `toml:"MaxActiveLoans"`
	// LoanTermSeconds sets the due time relative to origination.
	LoanTermSeconds int64 `toml:"LoanTermSeconds"`
	// MinRepayDelaySeconds blocks same-window open/close cycles.
	MinRepayDelaySeconds int64 `toml:"MinRepayDelaySeconds"`
	// MaxUtilizationBps bounds outstanding principal relative to custody,
	// preserving lender withdrawability.
	MaxUtilizationBps uint64 `toml:"MaxUtilizationBps"`
	// AnomalyThreshold is the anomaly score at which borrowing is refused.
	AnomalyThreshold uint32 `toml:"AnomalyThreshold"`
}

const day = 24 * 60 * 60

// DefaultParams returns the protocol default admission limits.
func DefaultParams() Params {
	return Params{
		CooldownSeconds:      7 * day,
		MaxActiveLoans:       3,
		LoanTermSeconds:      30 * day,
		MinRepayDelaySeconds: 60 * 60,
		MaxUtilizationBps:    8_000,
		AnomalyThreshold:     3,
	}
}

// Normalize fills zero-valued fields with their defaults so partially
// configured overrides remain safe to apply.
func (p Params) Normalize() Params {
	defaults := DefaultParams()
	if p.CooldownSeconds == 0 {
		p.CooldownSeconds = defaults.CooldownSeconds
	}
	if p.MaxActiveLoans == 0 {
		p.MaxActiveLoans = defaults.MaxActiveLoans
	}
	if p.LoanTermSeconds == 0 {
		p.LoanTermSeconds = defaults.LoanTermSeconds
	}
	if p.MinRepayDelaySeconds == 0 {
		p.MinRepayDelaySeconds = defaults.MinRepayDelaySeconds
	}
	if p.MaxUtilizationBps == 0 {
		p.MaxUtilizationBps = defaults.MaxUtilizationBps
	}
	if p.AnomalyThreshold == 0 {
		p.AnomalyThreshold = defaults.AnomalyThreshold
	}
	return p
}
