package settlement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateFlatRate(t *testing.T) {
	calc := NewCalculator(DefaultPricing())

	res, err := calc.Calculate(Input{BaseRate: 10, Count: 1000})
	require.NoError(t, err)
	assert.Equal(t, int64(10000), res.ClientQuote)
	assert.Equal(t, int64(6500), res.DoerPayout)
	assert.Equal(t, int64(1500), res.SupervisorCommission)
	assert.Equal(t, int64(2000), res.PlatformFee)
}

func TestCalculateIsDeterministic(t *testing.T) {
	calc := NewCalculator(DefaultPricing())
	in := Input{BaseRate: 500, Count: 1000, Urgency: UrgencyUrgent, Complexity: ComplexityIntermediate}

	first, err := calc.Calculate(in)
	require.NoError(t, err)
	second, err := calc.Calculate(in)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(780000), first.ClientQuote)
	require.NoError(t, Verify(first))
}

func TestSplitRemainderGoesToPlatform(t *testing.T) {
	for _, quote := range []int64{1, 7, 99, 101, 333, 1001, 123457} {
		res, err := Split(quote)
		require.NoError(t, err)
		require.NoError(t, Verify(res), "quote %d", quote)
		assert.Equal(t, quote*DoerShareBPS/10000, res.DoerPayout)
		assert.Equal(t, quote*SupervisorShareBPS/10000, res.SupervisorCommission)
	}
}

func TestCalculateRoundsHalfUp(t *testing.T) {
	calc := NewCalculator(DefaultPricing())

	// 3 * 1 * 1.15 = 3.45 -> 3 ; 10 * 1 * 1.15 = 11.5 -> 12
	res, err := calc.Calculate(Input{BaseRate: 3, Count: 1, Urgency: UrgencyExpedited})
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.ClientQuote)

	res, err = calc.Calculate(Input{BaseRate: 10, Count: 1, Urgency: UrgencyExpedited})
	require.NoError(t, err)
	assert.Equal(t, int64(12), res.ClientQuote)
}

func TestCalculateRejectsBadInput(t *testing.T) {
	calc := NewCalculator(PricingTable{})

	_, err := calc.Calculate(Input{BaseRate: 0, Count: 10})
	require.Error(t, err)
	_, err = calc.Calculate(Input{BaseRate: 10, Count: -1})
	require.Error(t, err)
	_, err = calc.Calculate(Input{BaseRate: 10, Count: 1, Urgency: "overnight"})
	require.Error(t, err)
	_, err = calc.Calculate(Input{BaseRate: 10, Count: 1, Complexity: "phd"})
	require.Error(t, err)
}

func TestNewCalculatorOverridesTiers(t *testing.T) {
	calc := NewCalculator(PricingTable{Urgency: map[UrgencyTier]int64{UrgencyExpress: 20000}})

	res, err := calc.Calculate(Input{BaseRate: 100, Count: 1, Urgency: UrgencyExpress})
	require.NoError(t, err)
	assert.Equal(t, int64(200), res.ClientQuote)
	assert.Equal(t, int64(12000), calc.Table().Complexity[ComplexityIntermediate])
}

func TestVerifyDetectsBrokenSplit(t *testing.T) {
	err := Verify(Result{ClientQuote: 100, DoerPayout: 65, SupervisorCommission: 15, PlatformFee: 19})
	require.Error(t, err)
}

func TestUrgencyFor(t *testing.T) {
	assert.Equal(t, UrgencyExpress, UrgencyFor(12*time.Hour))
	assert.Equal(t, UrgencyUrgent, UrgencyFor(48*time.Hour))
	assert.Equal(t, UrgencyExpedited, UrgencyFor(5*24*time.Hour))
	assert.Equal(t, UrgencyStandard, UrgencyFor(14*24*time.Hour))
}
