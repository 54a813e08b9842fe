/*
repayment.go - Tiered debt repayment against a gross payout

PURPOSE:
  Pure computation: given an agent's gross payout, outstanding debt, and
  active status, decide how much of the gross is withheld to repay debt and
  what the net payout is.

RATE TABLE (mutually exclusive, evaluated in order):
  inactive                     → 100%  (full claw-back, bounded by the debt)
  active, total_debt ≤ 0       →   0%
  active, total_debt < 1000    →  30%
  active, 1000 ≤ debt < 2000   →  40%
  active, total_debt ≥ 2000    →  50%

ALLOCATION PRIORITY:
  Chargebacks are repaid before lead balances. Chargebacks represent
  commission the agency already clawed back from a carrier; they age worse.

ROUNDING:
  Two decimal places at EVERY boundary (max repay, each repayment, net), not
  just at the end, so the figures match the audit trail cent for cent.
*/
package commission

import "github.com/shopspring/decimal"

var (
	tierLow  = decimal.NewFromInt(1000)
	tierHigh = decimal.NewFromInt(2000)

	rateZero = decimal.Zero
	rate30   = decimal.NewFromFloat(0.30)
	rate40   = decimal.NewFromFloat(0.40)
	rate50   = decimal.NewFromFloat(0.50)
	rateFull = decimal.NewFromInt(1)
)

// RepaymentInput is everything the allocator looks at. Debt figures come
// from the agent's DebtSnapshot; Active from the agent directory.
type RepaymentInput struct {
	Gross          decimal.Decimal
	TotalDebt      decimal.Decimal
	ChargebackDebt decimal.Decimal
	LeadDebt       decimal.Decimal
	Active         bool
}

// RepaymentResult is the allocation breakdown. Net + ChargebackRepaid +
// LeadRepaid reconciles to Gross within a cent.
type RepaymentResult struct {
	Rate             decimal.Decimal
	ChargebackRepaid decimal.Decimal
	LeadRepaid       decimal.Decimal
	Net              decimal.Decimal
}

func (r RepaymentResult) TotalRepaid() decimal.Decimal {
	return r.ChargebackRepaid.Add(r.LeadRepaid)
}

// RepaymentRate picks the withholding rate for an agent's standing.
func RepaymentRate(totalDebt decimal.Decimal, active bool) decimal.Decimal {
	switch {
	case !active:
		return rateFull
	case !totalDebt.IsPositive():
		return rateZero
	case totalDebt.LessThan(tierLow):
		return rate30
	case totalDebt.LessThan(tierHigh):
		return rate40
	default:
		return rate50
	}
}

// Allocate computes the repayment split and net payout. No side effects.
func Allocate(in RepaymentInput) RepaymentResult {
	rate := RepaymentRate(in.TotalDebt, in.Active)

	maxRepay := Cents(in.Gross.Mul(rate))
	toRepay := decimal.Min(maxRepay, in.TotalDebt)
	if toRepay.IsNegative() {
		toRepay = decimal.Zero
	}

	chargebackOut := in.ChargebackDebt
	if chargebackOut.IsNegative() {
		chargebackOut = decimal.Zero
	}
	leadOut := in.LeadDebt
	if leadOut.IsNegative() {
		leadOut = decimal.Zero
	}

	chargebackRepaid := Cents(decimal.Min(toRepay, chargebackOut))
	leadRepaid := Cents(decimal.Min(toRepay.Sub(chargebackRepaid), leadOut))

	net := Cents(in.Gross.Sub(chargebackRepaid).Sub(leadRepaid))

	return RepaymentResult{
		Rate:             rate,
		ChargebackRepaid: chargebackRepaid,
		LeadRepaid:       leadRepaid,
		Net:              net,
	}
}
