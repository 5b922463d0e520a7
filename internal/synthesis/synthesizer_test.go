package synthesis_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/temirov/codesentry/internal/inference"
	"github.com/temirov/codesentry/internal/models"
	"github.com/temirov/codesentry/internal/synthesis"
)

type stubSummarizer struct {
	observedRequest inference.SummaryRequest
	result          inference.SummaryResult
	err             error
}

func (summarizer *stubSummarizer) Summarize(_ context.Context, request inference.SummaryRequest) (inference.SummaryResult, error) {
	summarizer.observedRequest = request
	return summarizer.result, summarizer.err
}

type stubFindingLister struct {
	findings []models.Finding
	err      error
}

func (lister *stubFindingLister) ListFindings(_ context.Context, _ string) ([]models.Finding, error) {
	return lister.findings, lister.err
}

func TestSynthesize(testInstance *testing.T) {
	sampleFindings := []models.Finding{
		{ID: "finding-1", Title: "SQL injection", Severity: models.SeverityCritical, FilePath: "api/query.go"},
		{ID: "finding-2", Title: "Weak hash", Severity: models.SeverityLow, FilePath: "auth/hash.go"},
		{ID: "finding-3", Title: "Hardcoded key", Severity: models.SeverityHigh, FilePath: "config/keys.go"},
	}

	testCases := []struct {
		name                string
		findings            []models.Finding
		summaryResult       inference.SummaryResult
		summaryError        error
		expectError         bool
		expectedSummary     string
		expectedMaxSeverity models.Severity
	}{
		{
			name:                "successful_summary_carries_narrative_and_rollup",
			findings:            sampleFindings,
			summaryResult:       inference.SummaryResult{Summary: "Critical injection risk in the API layer."},
			expectedSummary:     "Critical injection risk in the API layer.",
			expectedMaxSeverity: models.SeverityCritical,
		},
		{
			name:                "failed_summary_still_returns_rollup",
			findings:            sampleFindings,
			summaryError:        errors.New("engine unavailable"),
			expectError:         true,
			expectedSummary:     "",
			expectedMaxSeverity: models.SeverityCritical,
		},
		{
			name:                "no_findings_produces_informational_rollup",
			findings:            nil,
			summaryResult:       inference.SummaryResult{Summary: "No issues were identified."},
			expectedSummary:     "No issues were identified.",
			expectedMaxSeverity: models.SeverityInformational,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			summarizer := &stubSummarizer{result: testCase.summaryResult, err: testCase.summaryError}
			service := synthesis.NewService(summarizer, &stubFindingLister{findings: testCase.findings}, zap.NewNop())

			result, synthesizeError := service.Synthesize(context.Background(), models.Audit{ID: "audit-1"}, "payment gateway")
			if testCase.expectError {
				require.Error(testInstance, synthesizeError)
			} else {
				require.NoError(testInstance, synthesizeError)
			}
			require.Equal(testInstance, testCase.expectedSummary, result.Summary)
			require.Equal(testInstance, testCase.expectedMaxSeverity, result.MaxSeverity)
			require.Len(testInstance, summarizer.observedRequest.FindingDigests, len(testCase.findings))
		})
	}
}

func TestSynthesizeListFailure(testInstance *testing.T) {
	service := synthesis.NewService(&stubSummarizer{}, &stubFindingLister{err: errors.New("database locked")}, zap.NewNop())

	_, synthesizeError := service.Synthesize(context.Background(), models.Audit{ID: "audit-1"}, "")
	require.Error(testInstance, synthesizeError)
	require.Contains(testInstance, synthesizeError.Error(), "listing findings")
}
