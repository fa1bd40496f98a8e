package credit

import (
	"errors"
	"math/big"
	"sync"
	"time"

	"meritlend/core/events"
	"meritlend/core/types"
	"meritlend/crypto"
	nativecommon "meritlend/native/common"
)

var (
	errNilState = errors.New("credit engine: state not configured")

	// ErrUnauthorized marks calls from accounts that lack the required role.
	ErrUnauthorized = errors.New("credit engine: caller lacks required role")
	// ErrZeroAddress rejects operations against the zero wallet address.
	ErrZeroAddress = errors.New("credit engine: zero address")
	// ErrZeroIdentity rejects bindings without an identity hash.
	ErrZeroIdentity = errors.New("credit engine: identity hash required")
	// ErrInvalidAmount rejects non-positive loan amounts.
	ErrInvalidAmount = errors.New("credit engine: amount must be positive")
	// ErrAlreadyBound is returned when either side of a binding is already
	// mapped. Bindings are append-only.
	ErrAlreadyBound = errors.New("credit engine: identity or wallet already bound")
	// ErrIdentityNotVerified gates proof-based score updates on a verified
	// wallet binding.
	ErrIdentityNotVerified = errors.New("credit engine: identity not verified")
	// ErrScoreOutOfRange rejects verified scores above the maximum.
	ErrScoreOutOfRange = errors.New("credit engine: score exceeds maximum")
	// ErrScoreAlreadyZero is returned when decay has nothing left to reduce.
	ErrScoreAlreadyZero = errors.New("credit engine: score already zero")
	// ErrNotEligibleForDecay is returned before the inactivity threshold has
	// elapsed.
	ErrNotEligibleForDecay = errors.New("credit engine: decay not yet eligible")
)

var basisPoints = big.NewInt(10_000)

const moduleName = "credit"

type engineState interface {
	ProfileGet(addr crypto.Address) (*Profile, error)
	ProfilePut(profile *Profile) error
	BindingByIdentity(id crypto.IdentityHash) (*Binding, error)
	BindingByWallet(addr crypto.Address) (*Binding, error)
	BindingPut(binding *Binding) error
}

type creditEvent struct {
	evt *types.Event
}

func (e creditEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e creditEvent) Event() *types.Event { return e.evt }

// Engine is the single source of truth for reputation, tiering and identity
// binding. Score mutation is restricted to the identity admin, the scoring
// authority (attested proofs) and the pool authority (loan outcomes); decay is
// deliberately permissionless.
type Engine struct {
	mu sync.Mutex

	state            engineState
	admin            crypto.Address
	scoringAuthority crypto.Address
	poolAuthority    crypto.Address
	params           Params
	emitter          events.Emitter
	pauses           nativecommon.PauseView
	nowFn            func() int64
}

// NewEngine constructs a scoring engine bound to its three authority
// addresses.
func NewEngine(admin, scoringAuthority, poolAuthority crypto.Address) *Engine {
	return &Engine{
		admin:            admin,
		scoringAuthority: scoringAuthority,
		poolAuthority:    poolAuthority,
		params:           DefaultParams(),
		emitter:          events.NoopEmitter{},
		nowFn:            func() int64 { return time.Now().Unix() },
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetParams overrides the scoring policy. Zero-valued fields fall back to the
// protocol defaults.
func (e *Engine) SetParams(params Params) {
	if e == nil {
		return
	}
	e.params = params.Normalize()
}

// SetPauses wires the module pause switches consulted before every mutation.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(creditEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// BindIdentity permanently associates an identity hash with a wallet and marks
// the wallet verified. Only the identity admin may bind. There is no unbinding
// path: once bound, neither side can be re-associated.
func (e *Engine) BindIdentity(caller crypto.Address, identity crypto.IdentityHash, wallet crypto.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if !caller.Equal(e.admin) {
		return ErrUnauthorized
	}
	if identity.IsZero() {
		return ErrZeroIdentity
	}
	if wallet.IsZero() {
		return ErrZeroAddress
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if existing, err := e.state.BindingByIdentity(identity); err != nil {
		return err
	} else if existing != nil {
		return ErrAlreadyBound
	}
	if existing, err := e.state.BindingByWallet(wallet); err != nil {
		return err
	} else if existing != nil {
		return ErrAlreadyBound
	}

	binding := &Binding{
		Identity: identity,
		Wallet:   wallet,
		Verified: true,
		BoundAt:  e.now(),
	}
	if err := e.state.BindingPut(binding); err != nil {
		return err
	}
	e.emit(NewIdentityBoundEvent(binding))
	return nil
}

// SetVerifiedScore applies an attested score for a verified wallet. The caller
// must hold the scoring-authority role; the proof itself is verified upstream
// and is never inspected here.
func (e *Engine) SetVerifiedScore(caller, wallet crypto.Address, score uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if !caller.Equal(e.scoringAuthority) {
		return ErrUnauthorized
	}
	if wallet.IsZero() {
		return ErrZeroAddress
	}
	if score > MaxScore {
		return ErrScoreOutOfRange
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	binding, err := e.state.BindingByWallet(wallet)
	if err != nil {
		return err
	}
	if binding == nil || !binding.Verified {
		return ErrIdentityNotVerified
	}

	profile, err := e.ensureProfile(wallet)
	if err != nil {
		return err
	}
	previous := profile.Score
	profile.applyScore(score, e.now())
	if err := e.state.ProfilePut(profile); err != nil {
		return err
	}
	e.emit(NewScoreUpdatedEvent(profile, previous, "verified"))
	return nil
}

// AdjustScore applies a signed delta to the wallet's score, clamped to the
// valid range. Only the pool authority may adjust; it does so on loan
// outcomes.
func (e *Engine) AdjustScore(caller, wallet crypto.Address, delta int64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if !caller.Equal(e.poolAuthority) {
		return ErrUnauthorized
	}
	if wallet.IsZero() {
		return ErrZeroAddress
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	profile, err := e.ensureProfile(wallet)
	if err != nil {
		return err
	}
	previous := profile.Score
	profile.applyScore(clampScore(int64(profile.Score)+delta), e.now())
	if err := e.state.ProfilePut(profile); err != nil {
		return err
	}
	e.emit(NewScoreUpdatedEvent(profile, previous, "adjustment"))
	return nil
}

// ApplyDecay reduces the score of an identity that has been inactive beyond
// the idle threshold. The call is deliberately permissionless: anyone may pay
// for the janitorial work, and the eligibility predicate is the only gate.
// Applying decay resets the activity clock so it cannot be reapplied
// immediately.
func (e *Engine) ApplyDecay(wallet crypto.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if wallet.IsZero() {
		return ErrZeroAddress
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	profile, err := e.state.ProfileGet(wallet)
	if err != nil {
		return err
	}
	if profile == nil || profile.Score == 0 {
		return ErrScoreAlreadyZero
	}

	now := e.now()
	elapsed := now - profile.LastActivity
	if elapsed < e.params.DecayIdleSeconds {
		return ErrNotEligibleForDecay
	}
	penalty := e.params.DecayMinor
	if elapsed >= e.params.DecayStaleSeconds {
		penalty = e.params.DecayMajor
	}

	previous := profile.Score
	next := uint64(0)
	if profile.Score > penalty {
		next = profile.Score - penalty
	}
	profile.applyScore(next, now)
	if err := e.state.ProfilePut(profile); err != nil {
		return err
	}
	e.emit(NewScoreDecayedEvent(profile, previous, penalty))
	return nil
}

// RecordLoanIssued increments the wallet's loan counter. Called by the pool
// authority after a loan is originated.
func (e *Engine) RecordLoanIssued(caller, wallet crypto.Address) error {
	return e.recordOutcome(caller, wallet, func(p *Profile) {
		p.TotalLoans++
	})
}

// RewardRepayment applies the repayment reward to the wallet's score and
// increments its repaid-loan counter. The reward magnitude is policy owned by
// this engine.
func (e *Engine) RewardRepayment(caller, wallet crypto.Address) error {
	return e.recordOutcome(caller, wallet, func(p *Profile) {
		p.RepaidLoans++
		p.applyScore(clampScore(int64(p.Score)+e.params.RepaymentReward), p.LastUpdated)
	})
}

// PenalizeLiquidation applies the liquidation penalty to the wallet's score.
// The penalty magnitude is policy owned by this engine.
func (e *Engine) PenalizeLiquidation(caller, wallet crypto.Address) error {
	return e.recordOutcome(caller, wallet, func(p *Profile) {
		p.applyScore(clampScore(int64(p.Score)-e.params.LiquidationPenalty), p.LastUpdated)
	})
}

func (e *Engine) recordOutcome(caller, wallet crypto.Address, apply func(*Profile)) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if !caller.Equal(e.poolAuthority) {
		return ErrUnauthorized
	}
	if wallet.IsZero() {
		return ErrZeroAddress
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	profile, err := e.ensureProfile(wallet)
	if err != nil {
		return err
	}
	previous := profile.Score
	now := e.now()
	profile.LastUpdated = now
	profile.LastActivity = now
	apply(profile)
	if err := e.state.ProfilePut(profile); err != nil {
		return err
	}
	if profile.Score != previous {
		e.emit(NewScoreUpdatedEvent(profile, previous, "loan outcome"))
	}
	return nil
}

// RequiredCollateral returns the collateral that must be posted for the given
// loan amount at the wallet's current tier. Unseen identities pay the default
// 150% ratio.
func (e *Engine) RequiredCollateral(wallet crypto.Address, loanAmount *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if loanAmount == nil || loanAmount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ratio := DefaultCollateralRatioBps
	profile, err := e.state.ProfileGet(wallet)
	if err != nil {
		return nil, err
	}
	if profile != nil {
		ratio = profile.CollateralRatioBps
	}
	required := new(big.Int).Mul(loanAmount, new(big.Int).SetUint64(ratio))
	return required.Quo(required, basisPoints), nil
}

// GetTier returns the wallet's current tier, defaulting to the unproven tier
// for unseen identities.
func (e *Engine) GetTier(wallet crypto.Address) (Tier, error) {
	if e == nil || e.state == nil {
		return TierUnproven, errNilState
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	profile, err := e.state.ProfileGet(wallet)
	if err != nil {
		return TierUnproven, err
	}
	if profile == nil {
		return TierUnproven, nil
	}
	return profile.Tier, nil
}

// GetProfile returns a copy of the wallet's profile when one exists.
func (e *Engine) GetProfile(wallet crypto.Address) (*Profile, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	profile, err := e.state.ProfileGet(wallet)
	if err != nil {
		return nil, false, err
	}
	if profile == nil {
		return nil, false, nil
	}
	return profile.Clone(), true, nil
}

// GetBinding returns a copy of the wallet's identity binding when one exists.
func (e *Engine) GetBinding(wallet crypto.Address) (*Binding, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	binding, err := e.state.BindingByWallet(wallet)
	if err != nil {
		return nil, false, err
	}
	if binding == nil {
		return nil, false, nil
	}
	return binding.Clone(), true, nil
}

func (e *Engine) ensureProfile(wallet crypto.Address) (*Profile, error) {
	profile, err := e.state.ProfileGet(wallet)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		tier, ratio := TierForScore(0)
		profile = &Profile{
			Address:            wallet,
			Tier:               tier,
			CollateralRatioBps: ratio,
		}
	}
	return profile, nil
}

func clampScore(score int64) uint64 {
	if score < 0 {
		return 0
	}
	if score > int64(MaxScore) {
		return MaxScore
	}
	return uint64(score)
}
