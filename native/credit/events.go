package credit

import (
	"strconv"

	"meritlend/core/types"
)

const (
	// EventTypeIdentityBound is emitted when an identity hash is bound to a
	// wallet.
	EventTypeIdentityBound = "credit.identityBound"
	// EventTypeScoreUpdated is emitted on verified score sets and pool
	// adjustments.
	EventTypeScoreUpdated = "credit.scoreUpdated"
	// EventTypeScoreDecayed is emitted when inactivity decay is applied.
	EventTypeScoreDecayed = "credit.scoreDecayed"
)

// NewIdentityBoundEvent returns the canonical event payload for an identity
// binding.
func NewIdentityBoundEvent(b *Binding) *types.Event {
	attrs := make(map[string]string)
	if b == nil {
		return &types.Event{Type: EventTypeIdentityBound, Attributes: attrs}
	}
	attrs["identity"] = b.Identity.String()
	attrs["wallet"] = b.Wallet.String()
	attrs["boundAt"] = strconv.FormatInt(b.BoundAt, 10)
	return &types.Event{Type: EventTypeIdentityBound, Attributes: attrs}
}

// NewScoreUpdatedEvent returns the canonical event payload for a score change.
func NewScoreUpdatedEvent(p *Profile, previous uint64, reason string) *types.Event {
	attrs := make(map[string]string)
	if p == nil {
		return &types.Event{Type: EventTypeScoreUpdated, Attributes: attrs}
	}
	attrs["wallet"] = p.Address.String()
	attrs["previousScore"] = strconv.FormatUint(previous, 10)
	attrs["score"] = strconv.FormatUint(p.Score, 10)
	attrs["tier"] = strconv.FormatUint(uint64(p.Tier), 10)
	attrs["collateralRatioBps"] = strconv.FormatUint(p.CollateralRatioBps, 10)
	attrs["reason"] = reason
	return &types.Event{Type: EventTypeScoreUpdated, Attributes: attrs}
}

// NewScoreDecayedEvent returns the canonical event payload for inactivity
// decay.
func NewScoreDecayedEvent(p *Profile, previous, penalty uint64) *types.Event {
	attrs := make(map[string]string)
	if p == nil {
		return &types.Event{Type: EventTypeScoreDecayed, Attributes: attrs}
	}
	attrs["wallet"] = p.Address.String()
	attrs["previousScore"] = strconv.FormatUint(previous, 10)
	attrs["score"] = strconv.FormatUint(p.Score, 10)
	attrs["penalty"] = strconv.FormatUint(penalty, 10)
	return &types.Event{Type: EventTypeScoreDecayed, Attributes: attrs}
}
