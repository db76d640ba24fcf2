package warehouse

import "math"

// WACResult carries the outcome of a weighted-average-cost recomputation.
type WACResult struct {
	NewWAC         float64
	NewStock       float64
	PricePreserved bool
	Warnings       []string
}

// CalculateWAC recomputes the weighted average cost after a stock change.
// qty is signed: positive for inbound, negative for reversal.
//
// Edge cases, in order:
//   - stock falling to zero or below preserves the last known price so the
//     next inbound does not start from a zero cost basis;
//   - the first inbound takes the unit price directly;
//   - inbound at zero price leaves the average untouched;
//   - a non-finite or negative result falls back to the previous average.
func CalculateWAC(oldWAC, oldStock, qty, unitPrice float64) WACResult {
	var warnings []string
	if oldWAC < 0 || oldStock < 0 || unitPrice < 0 {
		warnings = append(warnings, "negative inputs normalised")
	}
	oldWAC = math.Max(0, oldWAC)
	oldStock = math.Max(0, oldStock)
	unitPrice = math.Max(0, unitPrice)

	newStock := oldStock + qty

	if newStock <= 0 {
		preserved := oldWAC
		if preserved <= 0 {
			preserved = unitPrice
		}
		return WACResult{
			NewWAC:         preserved,
			NewStock:       newStock,
			PricePreserved: true,
			Warnings:       append(warnings, "stock reached zero, price preserved"),
		}
	}
	if oldStock <= 0 {
		return WACResult{NewWAC: unitPrice, NewStock: newStock, Warnings: append(warnings, "initial stock entry")}
	}
	if qty > 0 && unitPrice <= 0 {
		return WACResult{NewWAC: oldWAC, NewStock: newStock, Warnings: append(warnings, "zero-price inbound, average unchanged")}
	}

	newWAC := (oldStock*oldWAC + qty*unitPrice) / newStock
	if math.IsNaN(newWAC) || math.IsInf(newWAC, 0) || newWAC < 0 {
		fallback := oldWAC
		if fallback <= 0 {
			fallback = unitPrice
		}
		return WACResult{NewWAC: fallback, NewStock: newStock, Warnings: append(warnings, "invalid result, fallback applied")}
	}
	return WACResult{NewWAC: newWAC, NewStock: newStock, Warnings: warnings}
}
