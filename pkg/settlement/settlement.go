package settlement

import (
	"fmt"
	"math/big"
	"time"
)

// UrgencyTier classifies how close the requested deadline is.
type UrgencyTier string

const (
	UrgencyStandard  UrgencyTier = "standard"
	UrgencyExpedited UrgencyTier = "expedited"
	UrgencyUrgent    UrgencyTier = "urgent"
	UrgencyExpress   UrgencyTier = "express"
)

// ComplexityTier classifies the difficulty of the assignment.
type ComplexityTier string

const (
	ComplexityBasic        ComplexityTier = "basic"
	ComplexityIntermediate ComplexityTier = "intermediate"
	ComplexityAdvanced     ComplexityTier = "advanced"
)

// Split shares in basis points of the client quote. The platform fee takes the remainder.
const (
	DoerShareBPS       = 6500
	SupervisorShareBPS = 1500
	PlatformShareBPS   = 2000

	bpsScale = 10000
)

// PricingTable holds multipliers expressed in basis points (10000 == 1.0).
type PricingTable struct {
	Urgency    map[UrgencyTier]int64
	Complexity map[ComplexityTier]int64
}

// DefaultPricing returns the standard multiplier table.
func DefaultPricing() PricingTable {
	return PricingTable{
		Urgency: map[UrgencyTier]int64{
			UrgencyStandard:  10000,
			UrgencyExpedited: 11500,
			UrgencyUrgent:    13000,
			UrgencyExpress:   15000,
		},
		Complexity: map[ComplexityTier]int64{
			ComplexityBasic:        10000,
			ComplexityIntermediate: 12000,
			ComplexityAdvanced:     15000,
		},
	}
}

// Input describes a quote request. Amounts are minor currency units.
type Input struct {
	BaseRate   int64          `json:"baseRate"`
	Count      int64          `json:"count"`
	Urgency    UrgencyTier    `json:"urgencyTier"`
	Complexity ComplexityTier `json:"complexityTier"`
}

// Result is the computed three-way split.
type Result struct {
	ClientQuote          int64 `json:"clientQuote"`
	DoerPayout           int64 `json:"doerPayout"`
	SupervisorCommission int64 `json:"supervisorCommission"`
	PlatformFee          int64 `json:"platformFee"`
}

// Calculator computes settlements against a pricing table.
type Calculator struct {
	table PricingTable
}

// NewCalculator builds a calculator, falling back to defaults for missing tiers.
func NewCalculator(table PricingTable) *Calculator {
	defaults := DefaultPricing()
	merged := PricingTable{
		Urgency:    make(map[UrgencyTier]int64, len(defaults.Urgency)),
		Complexity: make(map[ComplexityTier]int64, len(defaults.Complexity)),
	}
	for k, v := range defaults.Urgency {
		merged.Urgency[k] = v
	}
	for k, v := range defaults.Complexity {
		merged.Complexity[k] = v
	}
	for k, v := range table.Urgency {
		if v > 0 {
			merged.Urgency[k] = v
		}
	}
	for k, v := range table.Complexity {
		if v > 0 {
			merged.Complexity[k] = v
		}
	}
	return &Calculator{table: merged}
}

// Table exposes the effective pricing table.
func (c *Calculator) Table() PricingTable {
	return c.table
}

// Calculate returns the client quote and its split.
func (c *Calculator) Calculate(in Input) (Result, error) {
	if in.BaseRate <= 0 {
		return Result{}, fmt.Errorf("base rate must be positive")
	}
	if in.Count <= 0 {
		return Result{}, fmt.Errorf("count must be positive")
	}
	if in.Urgency == "" {
		in.Urgency = UrgencyStandard
	}
	if in.Complexity == "" {
		in.Complexity = ComplexityBasic
	}
	urgency, ok := c.table.Urgency[in.Urgency]
	if !ok {
		return Result{}, fmt.Errorf("unknown urgency tier %q", in.Urgency)
	}
	complexity, ok := c.table.Complexity[in.Complexity]
	if !ok {
		return Result{}, fmt.Errorf("unknown complexity tier %q", in.Complexity)
	}

	// quote = rate * count * u/10000 * c/10000, rounded half up
	num := new(big.Int).Mul(big.NewInt(in.BaseRate), big.NewInt(in.Count))
	num.Mul(num, big.NewInt(urgency))
	num.Mul(num, big.NewInt(complexity))
	den := big.NewInt(bpsScale * bpsScale)
	num.Add(num, new(big.Int).Quo(den, big.NewInt(2)))
	quote := num.Quo(num, den)
	if !quote.IsInt64() {
		return Result{}, fmt.Errorf("quote overflows minor unit range")
	}
	return Split(quote.Int64())
}

// Split divides an existing quote. Remainders go to the platform fee.
func Split(quote int64) (Result, error) {
	if quote <= 0 {
		return Result{}, fmt.Errorf("quote must be positive")
	}
	doer := shareOf(quote, DoerShareBPS)
	supervisor := shareOf(quote, SupervisorShareBPS)
	return Result{
		ClientQuote:          quote,
		DoerPayout:           doer,
		SupervisorCommission: supervisor,
		PlatformFee:          quote - doer - supervisor,
	}, nil
}

// Verify checks that the split adds up to the quote and nothing is negative.
func Verify(r Result) error {
	if r.DoerPayout < 0 || r.SupervisorCommission < 0 || r.PlatformFee < 0 {
		return fmt.Errorf("settlement contains negative amounts")
	}
	if r.DoerPayout+r.SupervisorCommission+r.PlatformFee != r.ClientQuote {
		return fmt.Errorf("settlement split %d+%d+%d does not equal quote %d",
			r.DoerPayout, r.SupervisorCommission, r.PlatformFee, r.ClientQuote)
	}
	return nil
}

func shareOf(quote, bps int64) int64 {
	v := new(big.Int).Mul(big.NewInt(quote), big.NewInt(bps))
	return v.Quo(v, big.NewInt(bpsScale)).Int64()
}

// ValidUrgency reports whether the tier is known to the default table.
func ValidUrgency(t UrgencyTier) bool {
	_, ok := DefaultPricing().Urgency[t]
	return ok
}

// ValidComplexity reports whether the tier is known to the default table.
func ValidComplexity(t ComplexityTier) bool {
	_, ok := DefaultPricing().Complexity[t]
	return ok
}

// UrgencyFor derives the urgency tier from the time left until the deadline.
func UrgencyFor(lead time.Duration) UrgencyTier {
	switch {
	case lead < 24*time.Hour:
		return UrgencyExpress
	case lead < 72*time.Hour:
		return UrgencyUrgent
	case lead < 7*24*time.Hour:
		return UrgencyExpedited
	default:
		return UrgencyStandard
	}
}
