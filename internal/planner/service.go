package planner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/codesentry/internal/bisect"
	"github.com/temirov/codesentry/internal/budget"
	"github.com/temirov/codesentry/internal/grepscan"
	"github.com/temirov/codesentry/internal/inference"
	"github.com/temirov/codesentry/internal/models"
)

const (
	maximumFilesPerRankingCallConstant = 200
	minimumViableChunkSizeConstant     = 1
	namespaceSeparatorConstant         = ":"

	rankingFailedTemplateConstant = "ranking files: %w"

	fallbackReasonConstant         = "matched security-critical path pattern"
	fallbackPriorityConstant       = 5
	rankedChunkMessageConstant     = "ranked file chunk"
	fallbackAppliedMessageConstant = "ranking returned no files, applying path heuristic fallback"
	logFieldChunkSizeConstant      = "chunk_size"
	logFieldRankedCountConstant    = "ranked_count"
	logFieldSelectedCountConstant  = "selected_count"
)

// FileRanker is the slice of the inference contract the planner consumes.
type FileRanker interface {
	RankFiles(executionContext context.Context, request inference.RankingRequest) ([]models.RankedFile, error)
}

// PlanningInput aggregates everything the ranking context is built from.
type PlanningInput struct {
	Level             models.AuditLevel
	ScannedFiles      []models.ScannedFile
	GrepSignals       []grepscan.FileSignal
	Classification    models.ProjectClassification
	ComponentProfiles []ComponentProfile
}

// Service builds audit plans.
type Service struct {
	ranker FileRanker
	logger *zap.Logger
}

// NewService constructs a planner Service.
func NewService(ranker FileRanker, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{ranker: ranker, logger: logger}
}

// BuildPlan ranks the scanned files and selects a subset under the level's
// token budget. The returned plan is never empty when scanned files exist.
func (service *Service) BuildPlan(executionContext context.Context, input PlanningInput) ([]models.AuditPlanEntry, error) {
	rankingContext := buildRankingContext(input)
	namespacedPaths := make([]string, 0, len(input.ScannedFiles))
	for _, scannedFile := range input.ScannedFiles {
		namespacedPaths = append(namespacedPaths, namespacePath(scannedFile.Repository, scannedFile.Path))
	}

	rankedFiles := make([]models.RankedFile, 0, len(namespacedPaths))
	for chunkStart := 0; chunkStart < len(namespacedPaths); chunkStart += maximumFilesPerRankingCallConstant {
		chunkEnd := chunkStart + maximumFilesPerRankingCallConstant
		if chunkEnd > len(namespacedPaths) {
			chunkEnd = len(namespacedPaths)
		}
		chunk := namespacedPaths[chunkStart:chunkEnd]

		chunkRankings, rankError := bisect.ProcessOrSplit(executionContext, chunk, minimumViableChunkSizeConstant,
			func(executionContext context.Context, chunkPaths []string) ([]models.RankedFile, error) {
				return service.ranker.RankFiles(executionContext, inference.RankingRequest{
					Context: rankingContext,
					Files:   chunkPaths,
				})
			},
			isParseFailure,
		)
		if rankError != nil {
			return nil, fmt.Errorf(rankingFailedTemplateConstant, rankError)
		}

		service.logger.Debug(rankedChunkMessageConstant,
			zap.Int(logFieldChunkSizeConstant, len(chunk)),
			zap.Int(logFieldRankedCountConstant, len(chunkRankings)),
		)
		rankedFiles = append(rankedFiles, chunkRankings...)
	}

	if len(rankedFiles) == 0 {
		service.logger.Warn(fallbackAppliedMessageConstant)
		rankedFiles = heuristicFallbackRanking(input.ScannedFiles)
	}

	plan := SelectFilesByBudget(input.Level, input.ScannedFiles, rankedFiles)
	service.logger.Debug(rankedChunkMessageConstant, zap.Int(logFieldSelectedCountConstant, len(plan)))
	return plan, nil
}

func isParseFailure(failure error) bool {
	parseFailure := inference.ParseError{}
	return errors.As(failure, &parseFailure)
}

func namespacePath(repository string, path string) string {
	if len(repository) == 0 {
		return path
	}
	return repository + namespaceSeparatorConstant + path
}

// SelectFilesByBudget orders ranked files by descending priority and
// accumulates them until the level's token budget is exhausted. Full takes
// every ranked file regardless of budget. At least one file is always
// selected, even when it alone exceeds the budget; an empty plan would mean
// analyzing nothing at all.
func SelectFilesByBudget(level models.AuditLevel, scannedFiles []models.ScannedFile, rankedFiles []models.RankedFile) []models.AuditPlanEntry {
	scannedByNamespacedPath := make(map[string]models.ScannedFile, len(scannedFiles))
	scannedByBarePath := make(map[string]models.ScannedFile, len(scannedFiles))
	totalProjectTokens := 0
	for _, scannedFile := range scannedFiles {
		scannedByNamespacedPath[namespacePath(scannedFile.Repository, scannedFile.Path)] = scannedFile
		scannedByBarePath[scannedFile.Path] = scannedFile
		totalProjectTokens += scannedFile.RoughTokens
	}

	ordered := make([]models.RankedFile, len(rankedFiles))
	copy(ordered, rankedFiles)
	sort.SliceStable(ordered, func(first int, second int) bool {
		return ordered[first].Priority > ordered[second].Priority
	})

	tokenBudget := budget.TokenBudget(level, totalProjectTokens)
	selectEverything := level == models.AuditLevelFull

	plan := make([]models.AuditPlanEntry, 0, len(ordered))
	selectedPaths := map[string]bool{}
	runningTokens := 0

	for _, rankedFile := range ordered {
		scannedFile, known := scannedByNamespacedPath[rankedFile.Path]
		if !known {
			scannedFile, known = scannedByBarePath[rankedFile.Path]
		}
		if !known {
			continue
		}

		selectionKey := namespacePath(scannedFile.Repository, scannedFile.Path)
		if selectedPaths[selectionKey] {
			continue
		}

		// Accumulation stops at the first file that would exceed the budget;
		// lower-priority files are never admitted past a skipped one.
		if !selectEverything && len(plan) > 0 && runningTokens+scannedFile.RoughTokens > tokenBudget {
			break
		}

		selectedPaths[selectionKey] = true
		runningTokens += scannedFile.RoughTokens
		plan = append(plan, models.AuditPlanEntry{
			Repository: scannedFile.Repository,
			Path:       scannedFile.Path,
			Tokens:     scannedFile.RoughTokens,
			Priority:   rankedFile.Priority,
			Reason:     rankedFile.Reason,
		})
	}

	return plan
}

func buildRankingContext(input PlanningInput) string {
	var contextBuilder strings.Builder

	if len(input.Classification.Category) > 0 {
		contextBuilder.WriteString("Project category: " + input.Classification.Category + "\n")
	}
	if len(input.Classification.Description) > 0 {
		contextBuilder.WriteString("Project description: " + input.Classification.Description + "\n")
	}
	if len(input.Classification.ThreatModel) > 0 {
		contextBuilder.WriteString("Threat model: " + input.Classification.ThreatModel + "\n")
	}

	for _, profile := range input.ComponentProfiles {
		contextBuilder.WriteString("Component " + profile.Name + ": " + profile.ThreatNotes + "\n")
	}

	if len(input.GrepSignals) > 0 {
		contextBuilder.WriteString("\nLocal security signal (pattern hits per file):\n")
		for _, signal := range input.GrepSignals {
			contextBuilder.WriteString(fmt.Sprintf("- %s (%d hits, %s)\n",
				namespacePath(signal.Repository, signal.Path), signal.HitCount, strings.Join(signal.Concerns, ", ")))
			for _, sampleLine := range signal.SampleLines {
				contextBuilder.WriteString("    " + sampleLine + "\n")
			}
		}
	}

	// Files with zero grep hits are still listed so the ranking call sees everything.
	contextBuilder.WriteString("\nComplete file inventory:\n")
	for _, scannedFile := range input.ScannedFiles {
		contextBuilder.WriteString(fmt.Sprintf("- %s (~%d tokens)\n",
			namespacePath(scannedFile.Repository, scannedFile.Path), scannedFile.RoughTokens))
	}

	return contextBuilder.String()
}

var securityCriticalPathFragments = []string{
	"auth", "login", "session", "token", "crypt", "secret", "password",
	"acl", "permission", "security", "net", "http", "api", "payment",
}

// heuristicFallbackRanking selects files by known security-critical path
// patterns when the ranking call returns nothing; an empty ranking must not
// fail the audit. If no path matches, every file is ranked at the lowest
// priority so budget selection still produces a plan.
func heuristicFallbackRanking(scannedFiles []models.ScannedFile) []models.RankedFile {
	rankedFiles := make([]models.RankedFile, 0, len(scannedFiles))
	for _, scannedFile := range scannedFiles {
		lowerPath := strings.ToLower(scannedFile.Path)
		for _, fragment := range securityCriticalPathFragments {
			if strings.Contains(lowerPath, fragment) {
				rankedFiles = append(rankedFiles, models.RankedFile{
					Path:     namespacePath(scannedFile.Repository, scannedFile.Path),
					Priority: fallbackPriorityConstant,
					Reason:   fallbackReasonConstant,
				})
				break
			}
		}
	}

	if len(rankedFiles) == 0 {
		for _, scannedFile := range scannedFiles {
			rankedFiles = append(rankedFiles, models.RankedFile{
				Path:     namespacePath(scannedFile.Repository, scannedFile.Path),
				Priority: 1,
				Reason:   "no ranking available",
			})
		}
	}
	return rankedFiles
}
