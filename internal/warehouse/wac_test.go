package warehouse

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCalculateWACStandard(t *testing.T) {
	// 10 units at 1000, add 10 units at 2000 -> average 1500.
	res := CalculateWAC(1000, 10, 10, 2000)
	require.InDelta(t, 1500, res.NewWAC, 0.001)
	require.InDelta(t, 20, res.NewStock, 0.001)
	require.False(t, res.PricePreserved)
}

func TestCalculateWACInitialStock(t *testing.T) {
	res := CalculateWAC(0, 0, 5, 1200)
	require.InDelta(t, 1200, res.NewWAC, 0.001)
	require.InDelta(t, 5, res.NewStock, 0.001)
}

func TestCalculateWACZeroPriceInbound(t *testing.T) {
	res := CalculateWAC(800, 4, 6, 0)
	require.InDelta(t, 800, res.NewWAC, 0.001)
	require.InDelta(t, 10, res.NewStock, 0.001)
}

func TestCalculateWACPreservesPriceAtZeroStock(t *testing.T) {
	res := CalculateWAC(900, 10, -10, 900)
	require.True(t, res.PricePreserved)
	require.InDelta(t, 900, res.NewWAC, 0.001)
	require.InDelta(t, 0, res.NewStock, 0.001)
}

func TestCalculateWACReversalBelowZero(t *testing.T) {
	res := CalculateWAC(500, 3, -5, 500)
	require.True(t, res.PricePreserved)
	require.InDelta(t, 500, res.NewWAC, 0.001)
	require.InDelta(t, -2, res.NewStock, 0.001)
}

func TestCalculateWACNormalisesNegativeInputs(t *testing.T) {
	res := CalculateWAC(-100, -5, 5, 250)
	require.InDelta(t, 250, res.NewWAC, 0.001)
	require.NotEmpty(t, res.Warnings)
}

func TestCalculateWACReversalKeepsAverage(t *testing.T) {
	// Partial reversal leaves a positive balance priced at the running average.
	res := CalculateWAC(1500, 20, -10, 2000)
	require.InDelta(t, 1000, res.NewWAC, 0.001)
	require.InDelta(t, 10, res.NewStock, 0.001)
}
