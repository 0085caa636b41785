package pattern

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cfernhout/reviewd/internal/domain"
	"github.com/cfernhout/reviewd/internal/usecase/scan"
)

func scanContent(t *testing.T, path, content string) []domain.Finding {
	t.Helper()
	findings, err := New().Scan(context.Background(), []scan.SourceFile{{Path: path, Content: content}})
	require.NoError(t, err)
	return findings
}

func TestDetectsHardcodedSecret(t *testing.T) {
	findings := scanContent(t, "config.go", "port := 8080\napi_key = \"sk-abc123\"\n")

	require.Len(t, findings, 1)
	f := findings[0]
	assert.Equal(t, domain.SeverityCritical, f.Severity)
	assert.Equal(t, "Hardcoded Secret", f.Type)
	assert.Equal(t, "config.go", f.FilePath)
	assert.Equal(t, 2, f.LineNumber)
	assert.Equal(t, `api_key = "sk-abc123"`, f.CodeSnippet)
	assert.Equal(t, "pattern-match", f.Scanner)
}

func TestDetectsInjectionPatterns(t *testing.T) {
	content := `cursor.execute("SELECT * FROM users WHERE id = %s" % uid)
out := exec.Command("sh", "-c", input)
`
	findings := scanContent(t, "db.py", content)

	require.Len(t, findings, 2)
	assert.Equal(t, "SQL Injection Risk", findings[0].Type)
	assert.Equal(t, domain.SeverityHigh, findings[0].Severity)
	assert.Equal(t, "Command Injection Risk", findings[1].Type)
}

func TestDetectsDebtMarkers(t *testing.T) {
	findings := scanContent(t, "svc.go", "// TODO: handle retries\n")

	require.Len(t, findings, 1)
	assert.Equal(t, domain.SeverityInfo, findings[0].Severity)
	assert.Equal(t, "TODO/FIXME Comment", findings[0].Type)
}

func TestCleanFileYieldsNothing(t *testing.T) {
	assert.Empty(t, scanContent(t, "clean.go", "package clean\n\nfunc Add(a, b int) int { return a + b }\n"))
}

func TestMultipleFilesKeepOriginalPaths(t *testing.T) {
	findings, err := New().Scan(context.Background(), []scan.SourceFile{
		{Path: "a/secret.go", Content: `password = "hunter2"`},
		{Path: "b/ok.go", Content: "x := 1"},
	})

	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "a/secret.go", findings[0].FilePath)
}

func TestScanRespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().Scan(ctx, []scan.SourceFile{{Path: "x.go", Content: "y"}})
	assert.Error(t, err)
}
