package cli

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/temirov/codesentry/internal/models"
	"github.com/temirov/codesentry/internal/store"
)

func TestAuditCommandRejectsCrossProjectBaseAudit(testInstance *testing.T) {
	databasePath := filepath.Join(testInstance.TempDir(), "codesentry.db")
	testInstance.Setenv("CODESENTRY_SERVER_DATABASE_PATH", databasePath)

	seedStore, openError := store.Open(databasePath)
	require.NoError(testInstance, openError)
	creationTime := time.Now().UTC()
	require.NoError(testInstance, seedStore.CreateAudit(context.Background(), models.Audit{
		ID:        "base-1",
		ProjectID: "project-other",
		Level:     models.AuditLevelThorough,
		Status:    models.AuditStatusCompleted,
		CreatedAt: creationTime,
		UpdatedAt: creationTime,
	}))
	require.NoError(testInstance, seedStore.Close())

	application := NewApplication()
	application.rootCommand.SetArgs([]string{"audit", "--project", "project-1", "--base-audit", "base-1"})

	executionError := application.rootCommand.Execute()
	require.Error(testInstance, executionError)
	require.Contains(testInstance, executionError.Error(), "belongs to project project-other")
}
