// Package budget holds the pure cost and token arithmetic behind file selection.
package budget

import "github.com/temirov/codesentry/internal/models"

const (
	bytesPerTokenEstimateConstant = 4
	fullLevelBudgetPercentage     = 100.0
	thoroughBudgetPercentage      = 33.0
	opportunisticBudgetPercentage = 10.0

	inputCostPerMillionTokensConstant  = 3.0
	outputCostPerMillionTokensConstant = 15.0
	tokensPerMillionConstant           = 1_000_000.0
)

// EstimateTokens converts a byte size into a rough token count. The heuristic
// intentionally over-approximates small files so the batcher's exact
// verification only ever tightens the estimate.
func EstimateTokens(byteCount int) int {
	if byteCount <= 0 {
		return 0
	}
	estimated := byteCount / bytesPerTokenEstimateConstant
	if estimated == 0 {
		estimated = 1
	}
	return estimated
}

// LevelBudgetPercentage returns the share of a project's total tokens the given
// level may spend on file selection.
func LevelBudgetPercentage(level models.AuditLevel) float64 {
	switch level {
	case models.AuditLevelThorough:
		return thoroughBudgetPercentage
	case models.AuditLevelOpportunistic:
		return opportunisticBudgetPercentage
	default:
		return fullLevelBudgetPercentage
	}
}

// TokenBudget computes the absolute token budget for a level given the
// project's total token count.
func TokenBudget(level models.AuditLevel, totalProjectTokens int) int {
	percentage := LevelBudgetPercentage(level)
	return int(float64(totalProjectTokens) * percentage / 100.0)
}

// EstimateCost converts input and output token counts into a dollar estimate.
func EstimateCost(inputTokens int, outputTokens int) float64 {
	inputCost := float64(inputTokens) / tokensPerMillionConstant * inputCostPerMillionTokensConstant
	outputCost := float64(outputTokens) / tokensPerMillionConstant * outputCostPerMillionTokensConstant
	return inputCost + outputCost
}
