package budget_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/codesentry/internal/budget"
	"github.com/temirov/codesentry/internal/models"
)

func TestEstimateTokens(testInstance *testing.T) {
	testCases := []struct {
		name           string
		byteCount      int
		expectedTokens int
	}{
		{name: "zero_bytes", byteCount: 0, expectedTokens: 0},
		{name: "negative_bytes", byteCount: -8, expectedTokens: 0},
		{name: "below_one_token", byteCount: 3, expectedTokens: 1},
		{name: "exact_division", byteCount: 4096, expectedTokens: 1024},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			require.Equal(testInstance, testCase.expectedTokens, budget.EstimateTokens(testCase.byteCount))
		})
	}
}

func TestTokenBudgetPerLevel(testInstance *testing.T) {
	const totalProjectTokens = 100_000

	testCases := []struct {
		name           string
		level          models.AuditLevel
		expectedBudget int
	}{
		{name: "full_takes_everything", level: models.AuditLevelFull, expectedBudget: 100_000},
		{name: "thorough_takes_third", level: models.AuditLevelThorough, expectedBudget: 33_000},
		{name: "opportunistic_takes_tenth", level: models.AuditLevelOpportunistic, expectedBudget: 10_000},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			require.Equal(testInstance, testCase.expectedBudget, budget.TokenBudget(testCase.level, totalProjectTokens))
		})
	}
}

func TestEstimateCost(testInstance *testing.T) {
	require.InDelta(testInstance, 3.0, budget.EstimateCost(1_000_000, 0), 0.0001)
	require.InDelta(testInstance, 15.0, budget.EstimateCost(0, 1_000_000), 0.0001)
	require.InDelta(testInstance, 0.0, budget.EstimateCost(0, 0), 0.0001)
}
