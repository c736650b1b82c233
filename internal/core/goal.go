package core

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Fallback used when recent activity is too thin to estimate a saving pace.
// Roughly the couple's combined planned monthly contribution.
var (
	DefaultFallbackMonthly = USDCents(120000)

	// Below this amount per month the observed pace is treated as noise
	// and the fallback kicks in.
	minMeaningfulMonthly = USDCents(10000)
)

// GoalProgress is the shared goal as the dashboard renders it.
type GoalProgress struct {
	Goal      Goal    `json:"goal"`
	Saved     Money   `json:"saved"`
	Remaining Money   `json:"remaining"`
	// Percent is 0..100, capped at 100 once the goal is exceeded.
	Percent float64 `json:"percent"`
	// MonthsLeft is the estimated months until the target at the current
	// pace. Zero when the goal is already met.
	MonthsLeft int `json:"months_left"`
	// Estimated is true when MonthsLeft came from the fallback pace
	// rather than observed contributions.
	Estimated bool `json:"estimated"`
}

// Progress computes how far the combined savings have come toward the goal.
// savedUSD is the couple's combined savings balance in USD.
func (g Goal) Progress(savedUSD Money, monthlyUSD Money) GoalProgress {
	return g.ProgressWithFallback(savedUSD, monthlyUSD, DefaultFallbackMonthly)
}

// ProgressWithFallback is Progress with an explicit fallback pace, for
// callers that configure the estimate.
func (g Goal) ProgressWithFallback(savedUSD, monthlyUSD, fallback Money) GoalProgress {
	p := GoalProgress{Goal: g, Saved: savedUSD}

	target := g.Target.Cents
	if target <= 0 {
		p.Percent = 100
		p.Remaining = USDCents(0)
		return p
	}

	pct, _ := decimal.New(savedUSD.Cents, 0).
		Div(decimal.New(target, 0)).
		Mul(decimal.New(100, 0)).
		Round(2).
		Float64()
	p.Percent = math.Min(100, pct)

	remaining := target - savedUSD.Cents
	if remaining <= 0 {
		p.Remaining = USDCents(0)
		return p
	}
	p.Remaining = USDCents(remaining)

	rate := monthlyUSD
	if rate.Cents < minMeaningfulMonthly.Cents {
		rate = fallback
		p.Estimated = true
	}
	if rate.Cents <= 0 {
		rate = DefaultFallbackMonthly
	}
	p.MonthsLeft = int(math.Ceil(float64(remaining) / float64(rate.Cents)))
	return p
}

// MonthlyPace averages the last n months of savings contributions for both
// users, in USD. n of zero defaults to three months.
func (l Ledger) MonthlyPace(cv *Converter, end Date, n int) (Money, error) {
	if n <= 0 {
		n = 3
	}
	total := int64(0)
	y, m := end.Year(), end.Month()
	for i := 0; i < n; i++ {
		sum, err := l.sumConverted(cv, Filter{Type: Savings, Year: y, Month: m}, USD)
		if err != nil {
			return Money{}, err
		}
		total += sum.Cents
		m--
		if m < time.January {
			m = time.December
			y--
		}
	}
	return USDCents(total / int64(n)), nil
}
