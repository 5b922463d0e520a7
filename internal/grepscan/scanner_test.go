package grepscan_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/codesentry/internal/grepscan"
	"github.com/temirov/codesentry/internal/models"
)

type stubContentReader struct {
	contents map[string]string
}

func (reader stubContentReader) ReadFile(executionContext context.Context, repository string, path string, maxLines int) (string, error) {
	content, found := reader.contents[path]
	if !found {
		return "", errors.New("unreadable file")
	}
	return content, nil
}

func TestScannerRanksByHitCount(testInstance *testing.T) {
	reader := stubContentReader{contents: map[string]string{
		"auth/login.go":  "session := cookie.Value\npassword := request.FormValue(\"password\")\ntoken := jwt.Sign(claims)",
		"docs/readme.md": "just prose with no signal",
		"db/query.go":    "rows, err := db.Query(statement)",
	}}

	scanner := grepscan.NewScanner(reader)
	signals, scanError := scanner.Scan(context.Background(), []models.ScannedFile{
		{Repository: "api", Path: "auth/login.go"},
		{Repository: "api", Path: "docs/readme.md"},
		{Repository: "api", Path: "db/query.go"},
		{Repository: "api", Path: "missing.go"},
	})

	require.NoError(testInstance, scanError)
	require.Len(testInstance, signals, 2)
	require.Equal(testInstance, "auth/login.go", signals[0].Path)
	require.Greater(testInstance, signals[0].HitCount, signals[1].HitCount)
	require.NotEmpty(testInstance, signals[0].Concerns)
	require.LessOrEqual(testInstance, len(signals[0].SampleLines), 3)
}

func TestScannerHonorsContextCancellation(testInstance *testing.T) {
	cancelledContext, cancelFunction := context.WithCancel(context.Background())
	cancelFunction()

	scanner := grepscan.NewScanner(stubContentReader{})
	_, scanError := scanner.Scan(cancelledContext, []models.ScannedFile{{Repository: "api", Path: "main.go"}})

	require.ErrorIs(testInstance, scanError, context.Canceled)
}
