// Package batcher groups selected files into batches safe to submit to the
// inference service in one call. Rough estimates build preliminary batches
// cheaply; every batch is then verified against the service's exact token
// counter and recursively halved until it fits under the hard input limit.
package batcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/codesentry/internal/bisect"
	"github.com/temirov/codesentry/internal/inference"
	"github.com/temirov/codesentry/internal/models"
)

const (
	defaultSoftTokenCapConstant   = 30_000
	defaultHardTokenLimitConstant = 180_000
	defaultSafetyMarginConstant   = 2_000

	fileHeaderTemplateConstant = "\n===== %s:%s =====\n"

	loadContentTemplateConstant = "loading %s for batching: %w"
	verifyBatchTemplateConstant = "verifying batch token count: %w"

	batchVerifiedMessageConstant = "batch verified"
	batchSplitMessageConstant    = "batch exceeds hard limit, splitting"
	logFieldFileCountConstant    = "file_count"
	logFieldExactTokensConstant  = "exact_tokens"
)

// errBatchOversized marks a verified batch exceeding the hard limit; it is the
// splittable signal consumed by the bisection combinator.
var errBatchOversized = errors.New("batch exceeds hard token limit")

// Batch is one verified group of files ready for a single analysis call.
type Batch struct {
	Files       []inference.BatchFile
	RoughTokens int
	ExactTokens int
}

// TokenCounter is the exact-counting slice of the inference contract.
type TokenCounter interface {
	CountTokens(executionContext context.Context, text string) (int, error)
}

// ContentLoader reads file contents for batching.
type ContentLoader interface {
	ReadFile(executionContext context.Context, repository string, path string, maxLines int) (string, error)
}

// Limits bound batch sizes. Zero values fall back to defaults.
type Limits struct {
	SoftTokenCap   int
	HardTokenLimit int
	SafetyMargin   int
}

func (limits Limits) sanitized() Limits {
	if limits.SoftTokenCap <= 0 {
		limits.SoftTokenCap = defaultSoftTokenCapConstant
	}
	if limits.HardTokenLimit <= 0 {
		limits.HardTokenLimit = defaultHardTokenLimitConstant
	}
	if limits.SafetyMargin <= 0 {
		limits.SafetyMargin = defaultSafetyMarginConstant
	}
	return limits
}

type loadedFile struct {
	entry   models.AuditPlanEntry
	content string
}

// Batcher builds verified batches.
type Batcher struct {
	counter TokenCounter
	loader  ContentLoader
	limits  Limits
	logger  *zap.Logger
}

// NewBatcher constructs a Batcher with the supplied limits.
func NewBatcher(counter TokenCounter, loader ContentLoader, limits Limits, logger *zap.Logger) *Batcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Batcher{counter: counter, loader: loader, limits: limits.sanitized(), logger: logger}
}

// BuildBatches sorts the plan by directory path so related code stays
// adjacent, accumulates files under the soft rough-token cap, and verifies
// each batch's exact token count, recursively splitting any batch above the
// hard limit minus the safety margin. A single file exceeding the limit alone
// is placed in its own batch rather than splitting forever.
func (batcher *Batcher) BuildBatches(executionContext context.Context, entries []models.AuditPlanEntry) ([]Batch, error) {
	sortedEntries := make([]models.AuditPlanEntry, len(entries))
	copy(sortedEntries, entries)
	sort.SliceStable(sortedEntries, func(first int, second int) bool {
		firstKey := filepath.Dir(sortedEntries[first].Path) + "\x00" + sortedEntries[first].Path
		secondKey := filepath.Dir(sortedEntries[second].Path) + "\x00" + sortedEntries[second].Path
		return firstKey < secondKey
	})

	loadedFiles := make([]loadedFile, 0, len(sortedEntries))
	for _, entry := range sortedEntries {
		content, loadError := batcher.loader.ReadFile(executionContext, entry.Repository, entry.Path, 0)
		if loadError != nil {
			return nil, fmt.Errorf(loadContentTemplateConstant, entry.Path, loadError)
		}
		loadedFiles = append(loadedFiles, loadedFile{entry: entry, content: content})
	}

	batches := make([]Batch, 0, 4)
	for _, preliminaryBatch := range groupBySoftCap(loadedFiles, batcher.limits.SoftTokenCap) {
		verifiedBatches, verifyError := bisect.ProcessOrSplit(executionContext, preliminaryBatch, 1,
			batcher.verifyBatch,
			func(failure error) bool { return errors.Is(failure, errBatchOversized) },
		)
		if verifyError != nil {
			return nil, fmt.Errorf(verifyBatchTemplateConstant, verifyError)
		}
		batches = append(batches, verifiedBatches...)
	}
	return batches, nil
}

func groupBySoftCap(files []loadedFile, softTokenCap int) [][]loadedFile {
	groups := make([][]loadedFile, 0, 4)
	currentGroup := make([]loadedFile, 0, 8)
	runningTokens := 0

	for _, file := range files {
		if len(currentGroup) > 0 && runningTokens+file.entry.Tokens > softTokenCap {
			groups = append(groups, currentGroup)
			currentGroup = make([]loadedFile, 0, 8)
			runningTokens = 0
		}
		currentGroup = append(currentGroup, file)
		runningTokens += file.entry.Tokens
	}
	if len(currentGroup) > 0 {
		groups = append(groups, currentGroup)
	}
	return groups
}

// verifyBatch confirms the exact token count via the counting capability. The
// rough estimate is a heuristic and can under- or over-count, so only the
// verified count decides compliance with the hard external limit.
func (batcher *Batcher) verifyBatch(executionContext context.Context, files []loadedFile) ([]Batch, error) {
	batch := assembleBatch(files)
	exactTokens, countError := batcher.counter.CountTokens(executionContext, batchText(files))
	if countError != nil {
		return nil, countError
	}
	batch.ExactTokens = exactTokens

	effectiveLimit := batcher.limits.HardTokenLimit - batcher.limits.SafetyMargin
	if exactTokens > effectiveLimit && len(files) > 1 {
		batcher.logger.Debug(batchSplitMessageConstant,
			zap.Int(logFieldFileCountConstant, len(files)),
			zap.Int(logFieldExactTokensConstant, exactTokens),
		)
		return nil, errBatchOversized
	}

	batcher.logger.Debug(batchVerifiedMessageConstant,
		zap.Int(logFieldFileCountConstant, len(files)),
		zap.Int(logFieldExactTokensConstant, exactTokens),
	)
	return []Batch{batch}, nil
}

func assembleBatch(files []loadedFile) Batch {
	batch := Batch{Files: make([]inference.BatchFile, 0, len(files))}
	for _, file := range files {
		batch.Files = append(batch.Files, inference.BatchFile{
			Repository: file.entry.Repository,
			Path:       file.entry.Path,
			Content:    file.content,
		})
		batch.RoughTokens += file.entry.Tokens
	}
	return batch
}

func batchText(files []loadedFile) string {
	var textBuilder strings.Builder
	for _, file := range files {
		textBuilder.WriteString(fmt.Sprintf(fileHeaderTemplateConstant, file.entry.Repository, file.entry.Path))
		textBuilder.WriteString(file.content)
	}
	return textBuilder.String()
}
