package orchestrator

import (
	"context"
	"fmt"

	"github.com/temirov/codesentry/internal/gitrepo"
)

const unknownRepositoryTemplateConstant = "repository %s is not part of this audit workspace"

// Workspace maps repository names to the handles cloned for one audit and
// serves file reads against them. It satisfies the content reader contracts
// of both the signal scanner and the batcher.
type Workspace struct {
	repositories RepositoryManager
	handles      map[string]gitrepo.Handle
}

// NewWorkspace constructs an empty workspace backed by the repository manager.
func NewWorkspace(repositories RepositoryManager) *Workspace {
	return &Workspace{repositories: repositories, handles: make(map[string]gitrepo.Handle)}
}

// Register adds a cloned repository handle to the workspace.
func (workspace *Workspace) Register(handle gitrepo.Handle) {
	workspace.handles[handle.Name] = handle
}

// Handles returns the registered handles keyed by repository name.
func (workspace *Workspace) Handles() map[string]gitrepo.Handle {
	return workspace.handles
}

// ReadFile reads a repository-relative path. A maxLines of zero reads the
// whole file.
func (workspace *Workspace) ReadFile(executionContext context.Context, repository string, path string, maxLines int) (string, error) {
	handle, handleFound := workspace.handles[repository]
	if !handleFound {
		return "", fmt.Errorf(unknownRepositoryTemplateConstant, repository)
	}
	return workspace.repositories.ReadFile(executionContext, handle, path, maxLines)
}
