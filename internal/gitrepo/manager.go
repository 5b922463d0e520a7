package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/temirov/codesentry/internal/budget"
	"github.com/temirov/codesentry/internal/execshell"
	"github.com/temirov/codesentry/internal/models"
)

const (
	gitCloneSubcommandConstant      = "clone"
	gitFetchSubcommandConstant      = "fetch"
	gitCheckoutSubcommandConstant   = "checkout"
	gitRevParseSubcommandConstant   = "rev-parse"
	gitDiffSubcommandConstant       = "diff"
	gitLSFilesSubcommandConstant    = "ls-files"
	gitDirectoryFlagConstant        = "-C"
	gitDepthFlagConstant            = "--depth"
	gitRenameDetectionFlagConstant  = "-M"
	gitNameStatusFlagConstant       = "--name-status"
	gitOriginRemoteNameConstant     = "origin"
	gitHeadReferenceConstant        = "HEAD"
	cloneDepthValueConstant         = "1"
	diffStatusFieldSeparatorRuneSet = "\t"

	cloneErrorTemplateConstant    = "cloning %s: %w"
	updateErrorTemplateConstant   = "updating %s: %w"
	revParseErrorTemplateConstant = "resolving head commit of %s: %w"
	diffErrorTemplateConstant     = "diffing %s against %s: %w"
	scanErrorTemplateConstant     = "scanning files of %s: %w"
	readErrorTemplateConstant     = "reading %s: %w"
)

// ErrPathOutsideRepository indicates a read request escaping the repository root.
var ErrPathOutsideRepository = errors.New("path escapes repository root")

// RepositorySpec identifies one repository to audit.
type RepositorySpec struct {
	Name      string
	RemoteURL string
	Reference string
}

// Handle refers to a locally materialized repository.
type Handle struct {
	Name     string
	RootPath string
}

// GitExecutor is the subset of shell execution the manager requires.
type GitExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// Manager materializes repositories under a clone root and answers the
// pipeline's scan, diff, and read requests.
type Manager struct {
	executor  GitExecutor
	cloneRoot string
}

// NewManager constructs a Manager cloning repositories under cloneRoot.
func NewManager(executor GitExecutor, cloneRoot string) *Manager {
	return &Manager{executor: executor, cloneRoot: cloneRoot}
}

// CloneOrUpdate materializes the repository at the requested reference and
// returns its handle together with the resolved head commit.
func (manager *Manager) CloneOrUpdate(executionContext context.Context, repository RepositorySpec) (Handle, string, error) {
	repositoryPath := filepath.Join(manager.cloneRoot, repository.Name)
	handle := Handle{Name: repository.Name, RootPath: repositoryPath}

	if _, statError := os.Stat(filepath.Join(repositoryPath, ".git")); statError == nil {
		fetchDetails := execshell.CommandDetails{Arguments: []string{gitDirectoryFlagConstant, repositoryPath, gitFetchSubcommandConstant, gitOriginRemoteNameConstant}}
		if _, fetchError := manager.executor.ExecuteGit(executionContext, fetchDetails); fetchError != nil {
			return Handle{}, "", fmt.Errorf(updateErrorTemplateConstant, repository.Name, fetchError)
		}
	} else {
		cloneArguments := []string{gitCloneSubcommandConstant, repository.RemoteURL, repositoryPath}
		if _, cloneError := manager.executor.ExecuteGit(executionContext, execshell.CommandDetails{Arguments: cloneArguments}); cloneError != nil {
			return Handle{}, "", fmt.Errorf(cloneErrorTemplateConstant, repository.Name, cloneError)
		}
	}

	if len(repository.Reference) > 0 {
		checkoutDetails := execshell.CommandDetails{Arguments: []string{gitDirectoryFlagConstant, repositoryPath, gitCheckoutSubcommandConstant, repository.Reference}}
		if _, checkoutError := manager.executor.ExecuteGit(executionContext, checkoutDetails); checkoutError != nil {
			return Handle{}, "", fmt.Errorf(updateErrorTemplateConstant, repository.Name, checkoutError)
		}
	}

	revParseDetails := execshell.CommandDetails{Arguments: []string{gitDirectoryFlagConstant, repositoryPath, gitRevParseSubcommandConstant, gitHeadReferenceConstant}}
	revParseResult, revParseError := manager.executor.ExecuteGit(executionContext, revParseDetails)
	if revParseError != nil {
		return Handle{}, "", fmt.Errorf(revParseErrorTemplateConstant, repository.Name, revParseError)
	}

	headCommit := strings.TrimSpace(revParseResult.StandardOutput)
	return handle, headCommit, nil
}

// Diff computes the categorized file-level changes between two commits using
// git's rename detection.
func (manager *Manager) Diff(executionContext context.Context, handle Handle, baseCommit string, headCommit string) (models.DiffResult, error) {
	diffDetails := execshell.CommandDetails{Arguments: []string{
		gitDirectoryFlagConstant, handle.RootPath,
		gitDiffSubcommandConstant, gitNameStatusFlagConstant, gitRenameDetectionFlagConstant,
		baseCommit, headCommit,
	}}
	diffResult, diffError := manager.executor.ExecuteGit(executionContext, diffDetails)
	if diffError != nil {
		return models.DiffResult{}, fmt.Errorf(diffErrorTemplateConstant, baseCommit, headCommit, diffError)
	}

	return ParseNameStatusOutput(diffResult.StandardOutput), nil
}

// ParseNameStatusOutput converts `git diff --name-status -M` output into a DiffResult.
func ParseNameStatusOutput(output string) models.DiffResult {
	diff := models.DiffResult{Renamed: map[string]string{}}

	for _, line := range strings.Split(output, "\n") {
		trimmedLine := strings.TrimRight(line, "\r")
		if len(strings.TrimSpace(trimmedLine)) == 0 {
			continue
		}

		fields := strings.Split(trimmedLine, diffStatusFieldSeparatorRuneSet)
		if len(fields) < 2 {
			continue
		}

		statusCode := fields[0]
		switch {
		case strings.HasPrefix(statusCode, "A"):
			diff.Added = append(diff.Added, fields[1])
		case strings.HasPrefix(statusCode, "M"):
			diff.Modified = append(diff.Modified, fields[1])
		case strings.HasPrefix(statusCode, "D"):
			diff.Deleted = append(diff.Deleted, fields[1])
		case strings.HasPrefix(statusCode, "R") && len(fields) >= 3:
			diff.Renamed[fields[1]] = fields[2]
		}
	}

	return diff
}

// ScanFiles lists the repository's tracked files with rough token estimates.
// Binary and oversized files are excluded from candidacy.
func (manager *Manager) ScanFiles(executionContext context.Context, handle Handle) ([]models.ScannedFile, error) {
	listDetails := execshell.CommandDetails{Arguments: []string{gitDirectoryFlagConstant, handle.RootPath, gitLSFilesSubcommandConstant}}
	listResult, listError := manager.executor.ExecuteGit(executionContext, listDetails)
	if listError != nil {
		return nil, fmt.Errorf(scanErrorTemplateConstant, handle.Name, listError)
	}

	scannedFiles := make([]models.ScannedFile, 0, 128)
	for _, line := range strings.Split(listResult.StandardOutput, "\n") {
		relativePath := strings.TrimSpace(line)
		if len(relativePath) == 0 || !isAnalyzableFile(relativePath) {
			continue
		}

		fileInfo, statError := os.Stat(filepath.Join(handle.RootPath, relativePath))
		if statError != nil || fileInfo.IsDir() || fileInfo.Size() > analyzableFileSizeLimitConstant {
			continue
		}

		scannedFiles = append(scannedFiles, models.ScannedFile{
			Repository:  handle.Name,
			Path:        relativePath,
			RoughTokens: budget.EstimateTokens(int(fileInfo.Size())),
		})
	}

	return scannedFiles, nil
}

// ReadFile returns up to maxLines lines of the file after validating that the
// path stays within the repository root. maxLines of zero reads the whole file.
func (manager *Manager) ReadFile(executionContext context.Context, handle Handle, relativePath string, maxLines int) (string, error) {
	containedPath, validationError := ValidateRepositoryPath(handle.RootPath, relativePath)
	if validationError != nil {
		return "", validationError
	}

	contentBytes, readError := os.ReadFile(containedPath)
	if readError != nil {
		return "", fmt.Errorf(readErrorTemplateConstant, relativePath, readError)
	}

	content := string(contentBytes)
	if maxLines <= 0 {
		return content, nil
	}

	lines := strings.Split(content, "\n")
	if len(lines) <= maxLines {
		return content, nil
	}
	return strings.Join(lines[:maxLines], "\n"), nil
}

// ValidateRepositoryPath resolves relativePath under rootPath and rejects any
// path that would escape the repository root.
func ValidateRepositoryPath(rootPath string, relativePath string) (string, error) {
	if filepath.IsAbs(relativePath) {
		return "", ErrPathOutsideRepository
	}

	resolvedPath := filepath.Join(rootPath, filepath.Clean(relativePath))
	cleanedRoot := filepath.Clean(rootPath)
	if resolvedPath != cleanedRoot && !strings.HasPrefix(resolvedPath, cleanedRoot+string(filepath.Separator)) {
		return "", ErrPathOutsideRepository
	}

	return resolvedPath, nil
}
