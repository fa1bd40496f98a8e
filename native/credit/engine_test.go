package credit

import (
	"errors"
	"math/big"
	"testing"

	"meritlend/crypto"
	nativecommon "meritlend/native/common"
)

type mockEngineState struct {
	profiles   map[string]*Profile
	byIdentity map[crypto.IdentityHash]*Binding
	byWallet   map[string]*Binding
}

func newMockEngineState() *mockEngineState {
	return &mockEngineState{
		profiles:   make(map[string]*Profile),
		byIdentity: make(map[crypto.IdentityHash]*Binding),
		byWallet:   make(map[string]*Binding),
	}
}

func (m *mockEngineState) key(addr crypto.Address) string {
	return string(addr.Bytes())
}

func (m *mockEngineState) ProfileGet(addr crypto.Address) (*Profile, error) {
	if profile, ok := m.profiles[m.key(addr)]; ok {
		return profile.Clone(), nil
	}
	return nil, nil
}

func (m *mockEngineState) ProfilePut(profile *Profile) error {
	m.profiles[m.key(profile.Address)] = profile.Clone()
	return nil
}

func (m *mockEngineState) BindingByIdentity(id crypto.IdentityHash) (*Binding, error) {
	if binding, ok := m.byIdentity[id]; ok {
		return binding.Clone(), nil
	}
	return nil, nil
}

func (m *mockEngineState) BindingByWallet(addr crypto.Address) (*Binding, error) {
	if binding, ok := m.byWallet[m.key(addr)]; ok {
		return binding.Clone(), nil
	}
	return nil, nil
}

func (m *mockEngineState) BindingPut(binding *Binding) error {
	stored := binding.Clone()
	m.byIdentity[binding.Identity] = stored
	m.byWallet[m.key(binding.Wallet)] = stored
	return nil
}

type stubPauseView struct {
	modules map[string]bool
}

func (s stubPauseView) IsPaused(module string) bool {
	if s.modules == nil {
		return false
	}
	return s.modules[module]
}

func makeAddress(suffix byte) crypto.Address {
	raw := make([]byte, 20)
	raw[len(raw)-1] = suffix
	return crypto.NewAddress(crypto.MLTPrefix, raw)
}

func makeIdentity(suffix byte) crypto.IdentityHash {
	var id crypto.IdentityHash
	id[len(id)-1] = suffix
	return id
}

func newTestEngine() (*Engine, *mockEngineState, crypto.Address, crypto.Address, crypto.Address) {
	admin := makeAddress(0x01)
	scoring := makeAddress(0x02)
	pool := makeAddress(0x03)
	engine := NewEngine(admin, scoring, pool)
	state := newMockEngineState()
	engine.SetState(state)
	engine.SetNowFunc(func() int64 { return 1_000_000 })
	return engine, state, admin, scoring, pool
}

func TestTierForScore(t *testing.T) {
	cases := []struct {
		score uint64
		tier  Tier
		ratio uint64
	}{
		{0, TierUnproven, 15_000},
		{199, TierUnproven, 15_000},
		{200, TierBronze, 13_500},
		{499, TierBronze, 13_500},
		{500, TierSilver, 12_500},
		{749, TierSilver, 12_500},
		{750, TierGold, 11_000},
		{1000, TierGold, 11_000},
	}
	for _, tc := range cases {
		tier, ratio := TierForScore(tc.score)
		if tier != tc.tier || ratio != tc.ratio {
			t.Fatalf("score %d: got tier %d ratio %d, want tier %d ratio %d", tc.score, tier, ratio, tc.tier, tc.ratio)
		}
	}
}

func TestBindIdentityAdminOnly(t *testing.T) {
	engine, _, admin, scoring, _ := newTestEngine()
	wallet := makeAddress(0x10)
	identity := makeIdentity(0xA1)

	if err := engine.BindIdentity(scoring, identity, wallet); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := engine.BindIdentity(admin, identity, wallet); err != nil {
		t.Fatalf("bind failed: %v", err)
	}

	binding, ok, err := engine.GetBinding(wallet)
	if err != nil || !ok {
		t.Fatalf("expected binding, got ok=%v err=%v", ok, err)
	}
	if !binding.Verified {
		t.Fatalf("expected binding to be verified")
	}
	if binding.BoundAt != 1_000_000 {
		t.Fatalf("expected BoundAt stamp, got %d", binding.BoundAt)
	}
}

func TestBindIdentityAppendOnly(t *testing.T) {
	engine, _, admin, _, _ := newTestEngine()
	wallet := makeAddress(0x10)
	otherWallet := makeAddress(0x11)
	identity := makeIdentity(0xA1)
	otherIdentity := makeIdentity(0xA2)

	if err := engine.BindIdentity(admin, identity, wallet); err != nil {
		t.Fatalf("bind failed: %v", err)
	}
	// Same identity, different wallet.
	if err := engine.BindIdentity(admin, identity, otherWallet); !errors.Is(err, ErrAlreadyBound) {
		t.Fatalf("expected ErrAlreadyBound, got %v", err)
	}
	// Same wallet, different identity.
	if err := engine.BindIdentity(admin, otherIdentity, wallet); !errors.Is(err, ErrAlreadyBound) {
		t.Fatalf("expected ErrAlreadyBound, got %v", err)
	}
}

func TestSetVerifiedScoreRequiresBinding(t *testing.T) {
	engine, _, admin, scoring, _ := newTestEngine()
	wallet := makeAddress(0x10)

	if err := engine.SetVerifiedScore(admin, wallet, 600); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := engine.SetVerifiedScore(scoring, wallet, 600); !errors.Is(err, ErrIdentityNotVerified) {
		t.Fatalf("expected ErrIdentityNotVerified, got %v", err)
	}

	if err := engine.BindIdentity(admin, makeIdentity(0xA1), wallet); err != nil {
		t.Fatalf("bind failed: %v", err)
	}
	if err := engine.SetVerifiedScore(scoring, wallet, MaxScore+1); !errors.Is(err, ErrScoreOutOfRange) {
		t.Fatalf("expected ErrScoreOutOfRange, got %v", err)
	}
	if err := engine.SetVerifiedScore(scoring, wallet, 600); err != nil {
		t.Fatalf("set score failed: %v", err)
	}

	profile, ok, err := engine.GetProfile(wallet)
	if err != nil || !ok {
		t.Fatalf("expected profile, got ok=%v err=%v", ok, err)
	}
	if profile.Score != 600 || profile.Tier != TierSilver || profile.CollateralRatioBps != 12_500 {
		t.Fatalf("unexpected profile state: score=%d tier=%d ratio=%d", profile.Score, profile.Tier, profile.CollateralRatioBps)
	}
}

func TestApplyDecayThresholds(t *testing.T) {
	engine, state, admin, scoring, _ := newTestEngine()
	wallet := makeAddress(0x10)
	if err := engine.BindIdentity(admin, makeIdentity(0xA1), wallet); err != nil {
		t.Fatalf("bind failed: %v", err)
	}
	if err := engine.SetVerifiedScore(scoring, wallet, 800); err != nil {
		t.Fatalf("set score failed: %v", err)
	}

	// Below the idle threshold nothing decays.
	engine.SetNowFunc(func() int64 { return 1_000_000 + 179*24*60*60 })
	if err := engine.ApplyDecay(wallet); !errors.Is(err, ErrNotEligibleForDecay) {
		t.Fatalf("expected ErrNotEligibleForDecay, got %v", err)
	}

	// Past the idle threshold the minor penalty applies.
	engine.SetNowFunc(func() int64 { return 1_000_000 + 180*24*60*60 })
	if err := engine.ApplyDecay(wallet); err != nil {
		t.Fatalf("minor decay failed: %v", err)
	}
	profile := state.profiles[state.key(wallet)]
	if profile.Score != 780 {
		t.Fatalf("expected score 780 after minor decay, got %d", profile.Score)
	}

	// Decay stamps activity, so an immediate second call is ineligible.
	if err := engine.ApplyDecay(wallet); !errors.Is(err, ErrNotEligibleForDecay) {
		t.Fatalf("expected ErrNotEligibleForDecay after reset, got %v", err)
	}

	// Past the stale threshold the major penalty applies.
	base := profile.LastActivity
	engine.SetNowFunc(func() int64 { return base + 365*24*60*60 })
	if err := engine.ApplyDecay(wallet); err != nil {
		t.Fatalf("major decay failed: %v", err)
	}
	profile = state.profiles[state.key(wallet)]
	if profile.Score != 730 {
		t.Fatalf("expected score 730 after major decay, got %d", profile.Score)
	}
	if profile.Tier != TierSilver {
		t.Fatalf("expected tier to drop to silver, got %d", profile.Tier)
	}
}

func TestApplyDecayZeroScore(t *testing.T) {
	engine, _, _, _, _ := newTestEngine()
	wallet := makeAddress(0x10)
	if err := engine.ApplyDecay(wallet); !errors.Is(err, ErrScoreAlreadyZero) {
		t.Fatalf("expected ErrScoreAlreadyZero, got %v", err)
	}
}

func TestLoanOutcomesPoolAuthorityOnly(t *testing.T) {
	engine, state, admin, _, pool := newTestEngine()
	wallet := makeAddress(0x10)

	if err := engine.RewardRepayment(admin, wallet); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	if err := engine.RecordLoanIssued(pool, wallet); err != nil {
		t.Fatalf("record issuance failed: %v", err)
	}
	if err := engine.RewardRepayment(pool, wallet); err != nil {
		t.Fatalf("reward failed: %v", err)
	}
	profile := state.profiles[state.key(wallet)]
	if profile.Score != 50 || profile.TotalLoans != 1 || profile.RepaidLoans != 1 {
		t.Fatalf("unexpected profile after repayment: score=%d total=%d repaid=%d", profile.Score, profile.TotalLoans, profile.RepaidLoans)
	}

	// Penalty clamps at zero rather than underflowing.
	if err := engine.PenalizeLiquidation(pool, wallet); err != nil {
		t.Fatalf("penalty failed: %v", err)
	}
	profile = state.profiles[state.key(wallet)]
	if profile.Score != 0 {
		t.Fatalf("expected score clamped to 0, got %d", profile.Score)
	}
}

func TestRequiredCollateralByTier(t *testing.T) {
	engine, state, _, _, _ := newTestEngine()
	wallet := makeAddress(0x10)
	amount := big.NewInt(1_000)

	// Unseen identities pay the 150% default.
	required, err := engine.RequiredCollateral(wallet, amount)
	if err != nil {
		t.Fatalf("required collateral failed: %v", err)
	}
	if required.Cmp(big.NewInt(1_500)) != 0 {
		t.Fatalf("expected 1500, got %s", required)
	}

	gold := &Profile{Address: wallet}
	gold.applyScore(900, 1)
	state.profiles[state.key(wallet)] = gold
	required, err = engine.RequiredCollateral(wallet, amount)
	if err != nil {
		t.Fatalf("required collateral failed: %v", err)
	}
	if required.Cmp(big.NewInt(1_100)) != 0 {
		t.Fatalf("expected 1100 for gold tier, got %s", required)
	}

	if _, err := engine.RequiredCollateral(wallet, big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestGuardBlocksMutation(t *testing.T) {
	engine, _, admin, _, _ := newTestEngine()
	engine.SetPauses(stubPauseView{modules: map[string]bool{"credit": true}})
	err := engine.BindIdentity(admin, makeIdentity(0xA1), makeAddress(0x10))
	if !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
}
