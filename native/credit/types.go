package credit

import (
	"meritlend/crypto"
)

// Tier buckets a score into one of four reputation bands. Higher tiers unlock
// cheaper collateral requirements.
type Tier uint8

const (
	TierUnproven Tier = iota
	TierBronze
	TierSilver
	TierGold
)

const (
	// MaxScore is the upper bound of the credit score range.
	MaxScore uint64 = 1000

	// DefaultCollateralRatioBps is applied to identities without a profile.
	DefaultCollateralRatioBps uint64 = 15_000
)

// Tier score breakpoints. Tier and collateral ratio are always derived together
// from the score; they are never stored independently of it.
const (
	bronzeScore uint64 = 200
	silverScore uint64 = 500
	goldScore   uint64 = 750
)

// TierForScore maps a score onto its tier and collateral ratio in basis
// points. The function is pure and total over the score range.
func TierForScore(score uint64) (Tier, uint64) {
	switch {
	case score >= goldScore:
		return TierGold, 11_000
	case score >= silverScore:
		return TierSilver, 12_500
	case score >= bronzeScore:
		return TierBronze, 13_500
	default:
		return TierUnproven, DefaultCollateralRatioBps
	}
}

// Valid reports whether the tier value is within the supported range.
func (t Tier) Valid() bool {
	return t <= TierGold
}

// Profile maintains the reputation state for a single identity. Profiles are
// created lazily on first mutation and never deleted.
type Profile struct {
	Address            crypto.Address
	Score              uint64
	Tier               Tier
	CollateralRatioBps uint64
	TotalLoans         uint64
	RepaidLoans        uint64
	LastUpdated        int64
	LastActivity       int64
}

// Clone returns a deep copy of the profile so callers can safely mutate the
// copy without affecting the stored instance.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

// applyScore rewrites the score together with its derived tier and ratio and
// stamps both clocks.
func (p *Profile) applyScore(score uint64, now int64) {
	p.Score = score
	p.Tier, p.CollateralRatioBps = TierForScore(score)
	p.LastUpdated = now
	p.LastActivity = now
}

// Binding records the append-only association between an identity hash and a
// wallet. There is no rebinding or revocation path: a compromised wallet cannot
// be re-associated with a fresh address. This is a known gap carried over from
// the protocol design, not an oversight.
type Binding struct {
	Identity crypto.IdentityHash
	Wallet   crypto.Address
	Verified bool
	BoundAt  int64
}

// Clone returns a copy of the binding.
func (b *Binding) Clone() *Binding {
	if b == nil {
		return nil
	}
	clone := *b
	return &clone
}
