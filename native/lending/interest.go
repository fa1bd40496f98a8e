package lending

import (
	"math/big"

	"meritlend/native/credit"
)

// InterestRatePercent maps a credit tier onto the borrow interest rate in
// whole percent. The rate is re-evaluated at repayment time against the
// borrower's current tier rather than the tier at origination, so a tier
// change between issuance and repayment changes the rate after the fact.
func InterestRatePercent(tier credit.Tier) uint64 {
	switch tier {
	case credit.TierGold:
		return 2
	case credit.TierSilver:
		return 3
	case credit.TierBronze:
		return 4
	default:
		return 5
	}
}

// UtilizationBps computes outstanding principal relative to total pool value
// (custody plus outstanding) in basis points. Zero when the pool is empty.
func UtilizationBps(totalBorrowed, custodyBalance *big.Int) uint64 {
	if totalBorrowed == nil || totalBorrowed.Sign() <= 0 {
		return 0
	}
	denom := new(big.Int).Set(totalBorrowed)
	if custodyBalance != nil && custodyBalance.Sign() > 0 {
		denom.Add(denom, custodyBalance)
	}
	if denom.Sign() == 0 {
		return 0
	}
	util := new(big.Int).Mul(totalBorrowed, basisPoints)
	util.Quo(util, denom)
	if !util.IsUint64() {
		return 10_000
	}
	return util.Uint64()
}

// LenderAPYPercent derives the informational lender APY from the current
// utilization band.
func LenderAPYPercent(utilizationBps uint64) uint64 {
	switch {
	case utilizationBps <= 4_000:
		return 4
	case utilizationBps <= 7_000:
		return 6
	default:
		return 8
	}
}

// RepaymentAmount computes principal plus simple interest at the supplied
// whole-percent rate.
func RepaymentAmount(principal *big.Int, ratePercent uint64) *big.Int {
	if principal == nil || principal.Sign() <= 0 {
		return big.NewInt(0)
	}
	interest := new(big.Int).Mul(principal, new(big.Int).SetUint64(ratePercent))
	interest.Quo(interest, big.NewInt(100))
	return new(big.Int).Add(principal, interest)
}
