package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prcontext/internal/contextbuilder"
	"github.com/prcontext/internal/validator"
)

const prDiff = `diff --git a/src/a.ts b/src/a.ts
--- a/src/a.ts
+++ b/src/a.ts
@@ -8,3 +8,4 @@
 const a = 1;
 const b = 2;
+const token = "sk-AAAAAAAAAAAAAAAAAAAA";
 const c = 3;
diff --git a/package-lock.json b/package-lock.json
--- a/package-lock.json
+++ b/package-lock.json
@@ -1 +1 @@
-{"lockfileVersion": 2}
+{"lockfileVersion": 3}
diff --git a/README.md b/README.md
--- a/README.md
+++ b/README.md
@@ -1 +1 @@
-old title
+new title
`

func TestPrepare_SelectsAndAssembles(t *testing.T) {
	p := New(Options{DefaultModel: "gpt-4o"})

	got, err := p.Prepare(context.Background(), Request{Input: contextbuilder.Input{
		RepositoryFullName: "acme/api",
		PRNumber:           7,
		PRTitle:            "Add token",
		Diff:               prDiff,
		UserPrompt:         "focus on secrets",
	}})
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o", got.Model)
	assert.Equal(t, []string{"src/a.ts"}, got.Selected)
	assert.Len(t, got.Files, 3)
	assert.Contains(t, got.Complexity.Factors, "risk_pattern")
	assert.Equal(t, contextbuilder.DefaultBudgets().ForTier("gpt-4o", got.Complexity.Tier), got.Budget)
	assert.LessOrEqual(t, got.Context.UsedTokens, got.Budget)

	content := got.Context.Content
	assert.True(t, strings.HasPrefix(content, contextbuilder.DefaultGuardrails))
	assert.Contains(t, content, "# Code Changes")
	assert.Contains(t, content, `+const token = "sk-AAAAAAAAAAAAAAAAAAAA";`)
	assert.NotContains(t, content, "lockfileVersion")
	assert.NotContains(t, content, "new title")
	assert.True(t, strings.HasSuffix(content, "</user_instructions>"))
}

func TestPrepare_ModelOverridesDefault(t *testing.T) {
	p := New(Options{DefaultModel: "gpt-4o", Budgets: contextbuilder.Budgets{"tiny": 5000}})
	got, err := p.Prepare(context.Background(), Request{Model: "tiny", Input: contextbuilder.Input{Diff: prDiff}})
	require.NoError(t, err)
	assert.Equal(t, "tiny", got.Model)
	assert.LessOrEqual(t, got.Budget, 5000)
}

func TestPrepare_OnlyNoise(t *testing.T) {
	onlyLock := `diff --git a/yarn.lock b/yarn.lock
--- a/yarn.lock
+++ b/yarn.lock
@@ -1 +1 @@
-a
+b
`
	_, err := New(Options{}).Prepare(context.Background(), Request{Input: contextbuilder.Input{Diff: onlyLock}})
	assert.ErrorIs(t, err, ErrEmptyDiff)

	_, err = New(Options{}).Prepare(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrEmptyDiff)
}

func TestFinalize_AnchorsCommentsToDiff(t *testing.T) {
	p := New(Options{})
	prepared, err := p.Prepare(context.Background(), Request{Input: contextbuilder.Input{Diff: prDiff}})
	require.NoError(t, err)

	raw := "Here is my review:\n```json\n" + `{"comments": [
		{"file": "src/a.ts", "line": 10, "severity": "critical", "message": "Hard-coded token"},
		{"file": "src/a.ts", "line": 20, "severity": "critical", "message": "Hard-coded token"},
	]}` + "\n```"

	res, stats, err := p.Finalize(raw, prepared)
	require.NoError(t, err)
	assert.True(t, stats.WasRepaired)
	require.Len(t, res.Comments, 1)
	assert.Equal(t, 10, res.Comments[0].Line)
	assert.Equal(t, 1, res.Dropped[validator.DropOutsideHunk])
}

func TestFinalize_NoJSON(t *testing.T) {
	_, _, err := New(Options{}).Finalize("looks good to me", Prepared{})
	assert.Error(t, err)
}

func TestValidate_RawDiff(t *testing.T) {
	res := New(Options{MaxComments: 1}).Validate(prDiff, nil)
	assert.Empty(t, res.Comments)
	assert.Zero(t, res.DroppedTotal())
}

func TestFinalizeDiff(t *testing.T) {
	raw := `[{"filePath": "src/a.ts", "lineNumber": 10, "severity": "major", "comment": "Use env"}]`
	res, stats, err := New(Options{}).FinalizeDiff(raw, prDiff)
	require.NoError(t, err)
	assert.False(t, stats.WasRepaired)
	require.Len(t, res.Comments, 1)
	assert.Equal(t, "Use env", res.Comments[0].Message)
}
