package planner_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/temirov/codesentry/internal/inference"
	"github.com/temirov/codesentry/internal/models"
	"github.com/temirov/codesentry/internal/planner"
)

type stubRanker struct {
	rankings     map[string]models.RankedFile
	failUntilLen int
	callCount    int
}

func (ranker *stubRanker) RankFiles(executionContext context.Context, request inference.RankingRequest) ([]models.RankedFile, error) {
	ranker.callCount++
	if ranker.failUntilLen > 0 && len(request.Files) > ranker.failUntilLen {
		return nil, inference.ParseError{Reason: "malformed ranking output"}
	}

	rankedFiles := make([]models.RankedFile, 0, len(request.Files))
	for _, filePath := range request.Files {
		if ranking, found := ranker.rankings[filePath]; found {
			rankedFiles = append(rankedFiles, ranking)
		}
	}
	return rankedFiles, nil
}

func testScannedFiles() []models.ScannedFile {
	return []models.ScannedFile{
		{Repository: "api", Path: "internal/auth/token.go", RoughTokens: 4000},
		{Repository: "api", Path: "internal/server/server.go", RoughTokens: 3000},
		{Repository: "api", Path: "internal/util/strings.go", RoughTokens: 2000},
		{Repository: "api", Path: "docs/notes.md", RoughTokens: 1000},
	}
}

func testRankings() map[string]models.RankedFile {
	return map[string]models.RankedFile{
		"api:internal/auth/token.go":    {Path: "api:internal/auth/token.go", Priority: 9, Reason: "token handling"},
		"api:internal/server/server.go": {Path: "api:internal/server/server.go", Priority: 7, Reason: "request surface"},
		"api:internal/util/strings.go":  {Path: "api:internal/util/strings.go", Priority: 3, Reason: "helpers"},
		"api:docs/notes.md":             {Path: "api:docs/notes.md", Priority: 1, Reason: "documentation"},
	}
}

func TestBuildPlanSelectsUnderBudget(testInstance *testing.T) {
	service := planner.NewService(&stubRanker{rankings: testRankings()}, zap.NewNop())

	plan, planError := service.BuildPlan(context.Background(), planner.PlanningInput{
		Level:        models.AuditLevelThorough,
		ScannedFiles: testScannedFiles(),
	})

	require.NoError(testInstance, planError)
	// Thorough budget is 33% of 10000 tokens = 3300: the top file alone exceeds
	// it but is always selected; nothing else fits after that.
	require.Len(testInstance, plan, 1)
	require.Equal(testInstance, "internal/auth/token.go", plan[0].Path)
	require.Equal(testInstance, 9, plan[0].Priority)
}

func TestBuildPlanFullLevelTakesEverything(testInstance *testing.T) {
	service := planner.NewService(&stubRanker{rankings: testRankings()}, zap.NewNop())

	plan, planError := service.BuildPlan(context.Background(), planner.PlanningInput{
		Level:        models.AuditLevelFull,
		ScannedFiles: testScannedFiles(),
	})

	require.NoError(testInstance, planError)
	require.Len(testInstance, plan, 4)
	require.Equal(testInstance, "internal/auth/token.go", plan[0].Path)
}

func TestBuildPlanBisectsOnParseFailures(testInstance *testing.T) {
	ranker := &stubRanker{rankings: testRankings(), failUntilLen: 2}
	service := planner.NewService(ranker, zap.NewNop())

	plan, planError := service.BuildPlan(context.Background(), planner.PlanningInput{
		Level:        models.AuditLevelFull,
		ScannedFiles: testScannedFiles(),
	})

	require.NoError(testInstance, planError)
	require.Len(testInstance, plan, 4)
	require.Greater(testInstance, ranker.callCount, 1)
}

func TestBuildPlanFallsBackToPathHeuristic(testInstance *testing.T) {
	service := planner.NewService(&stubRanker{rankings: map[string]models.RankedFile{}}, zap.NewNop())

	plan, planError := service.BuildPlan(context.Background(), planner.PlanningInput{
		Level:        models.AuditLevelOpportunistic,
		ScannedFiles: testScannedFiles(),
	})

	require.NoError(testInstance, planError)
	require.NotEmpty(testInstance, plan)
	require.Equal(testInstance, "internal/auth/token.go", plan[0].Path)
}

func TestSelectFilesByBudgetNeverEmptyWhenRankedFilesExist(testInstance *testing.T) {
	scannedFiles := []models.ScannedFile{{Repository: "api", Path: "huge.go", RoughTokens: 1_000_000}}
	rankedFiles := []models.RankedFile{{Path: "api:huge.go", Priority: 8, Reason: "everything lives here"}}

	for _, level := range []models.AuditLevel{models.AuditLevelFull, models.AuditLevelThorough, models.AuditLevelOpportunistic} {
		plan := planner.SelectFilesByBudget(level, scannedFiles, rankedFiles)
		require.Len(testInstance, plan, 1, "level %s", level)
	}
}

func TestSelectFilesByBudgetStopsAtFirstOversizeFile(testInstance *testing.T) {
	scannedFiles := []models.ScannedFile{
		{Repository: "api", Path: "big.go", RoughTokens: 50},
		{Repository: "api", Path: "huge.go", RoughTokens: 60},
		{Repository: "api", Path: "tiny.go", RoughTokens: 400},
		{Repository: "api", Path: "small.go", RoughTokens: 5},
	}
	rankedFiles := []models.RankedFile{
		{Path: "api:big.go", Priority: 10},
		{Path: "api:huge.go", Priority: 9},
		{Path: "api:tiny.go", Priority: 8},
		{Path: "api:small.go", Priority: 7},
	}

	plan := planner.SelectFilesByBudget(models.AuditLevelThorough, scannedFiles, rankedFiles)

	// Thorough budget is 33% of 515 tokens = 169. Accumulation stops at
	// tiny.go; the lower-priority small.go must not slip in afterwards.
	require.Len(testInstance, plan, 2)
	require.Equal(testInstance, "big.go", plan[0].Path)
	require.Equal(testInstance, "huge.go", plan[1].Path)
}

func TestSelectFilesByBudgetIgnoresUnknownPaths(testInstance *testing.T) {
	plan := planner.SelectFilesByBudget(models.AuditLevelFull, testScannedFiles(), []models.RankedFile{
		{Path: "api:internal/auth/token.go", Priority: 9},
		{Path: "api:does/not/exist.go", Priority: 10},
	})

	require.Len(testInstance, plan, 1)
	require.Equal(testInstance, "internal/auth/token.go", plan[0].Path)
}

func TestLoadComponentProfiles(testInstance *testing.T) {
	profilePath := filepath.Join(testInstance.TempDir(), "profiles.yaml")
	profileContents := "components:\n  - name: billing\n    threat_notes: handles card data\n"
	require.NoError(testInstance, os.WriteFile(profilePath, []byte(profileContents), 0o600))

	profiles, loadError := planner.LoadComponentProfiles(profilePath)
	require.NoError(testInstance, loadError)
	require.Len(testInstance, profiles, 1)
	require.Equal(testInstance, "billing", profiles[0].Name)

	missingProfiles, missingError := planner.LoadComponentProfiles(filepath.Join(testInstance.TempDir(), "absent.yaml"))
	require.NoError(testInstance, missingError)
	require.Nil(testInstance, missingProfiles)
}
