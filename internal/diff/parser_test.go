package diff

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prcontext/pkg/models"
)

const sampleDiff = `diff --git a/src/a.ts b/src/a.ts
index 1111111..2222222 100644
--- a/src/a.ts
+++ b/src/a.ts
@@ -8,3 +8,4 @@ export function load() {
 const a = 1;
 const b = 2;
+const token = "sk-AAAAAAAAAAAAAAAAAAAA";
 const c = 3;
diff --git a/README.md b/README.md
--- a/README.md
+++ b/README.md
@@ -1 +1 @@
-old title
+new title
`

func TestParse_Sample(t *testing.T) {
	files := NewParser().Parse(sampleDiff)
	require.Len(t, files, 2)

	want := &models.ParsedFile{
		Path:      "src/a.ts",
		Additions: []models.DiffLine{{Line: 10, Content: `const token = "sk-AAAAAAAAAAAAAAAAAAAA";`}},
		Hunks:     []models.Hunk{{OldStart: 8, OldLines: 3, NewStart: 8, NewLines: 4}},
	}
	if diff := cmp.Diff(want, files[0]); diff != "" {
		t.Errorf("parsed file mismatch (-want +got):\n%s", diff)
	}

	readme := files[1]
	assert.Equal(t, "README.md", readme.Path)
	assert.Equal(t, []models.Hunk{{OldStart: 1, OldLines: 1, NewStart: 1, NewLines: 1}}, readme.Hunks)
	assert.Equal(t, []models.DiffLine{{Line: 1, Content: "old title"}}, readme.Deletions)
	assert.Equal(t, []models.DiffLine{{Line: 1, Content: "new title"}}, readme.Additions)
}

func TestParse_EmptyAndHeaderless(t *testing.T) {
	p := NewParser()
	assert.Empty(t, p.Parse(""))
	assert.Empty(t, p.Parse("@@ -1,2 +1,2 @@\n+x\n"))
}

func TestParse_UnparseableHeaderDefaultsToUnknown(t *testing.T) {
	files := NewParser().Parse("diff --git weird-header\n@@ -1,0 +1,1 @@\n+added\n")
	require.Len(t, files, 1)
	assert.Equal(t, "unknown", files[0].Path)
	assert.Len(t, files[0].Additions, 1)
}

func TestParse_MalformedLinesAreSkipped(t *testing.T) {
	input := strings.Join([]string{
		"diff --git a/x.go b/x.go",
		"garbage before hunk",
		"+not counted",
		"@@ -1,2 +1,2 @@",
		" ctx",
		"?? what",
		"-gone",
		"+here",
		`\ No newline at end of file`,
	}, "\n")
	files := NewParser().Parse(input)
	require.Len(t, files, 1)
	assert.Equal(t, []models.DiffLine{{Line: 2, Content: "here"}}, files[0].Additions)
	assert.Equal(t, []models.DiffLine{{Line: 2, Content: "gone"}}, files[0].Deletions)
}

func TestParse_CountersAdvanceToHunkEnd(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		hunk  models.Hunk
	}{
		{
			name:  "mixed",
			lines: []string{" a", "-b", "+c", "+d", " e"},
			hunk:  models.Hunk{OldStart: 5, OldLines: 3, NewStart: 7, NewLines: 4},
		},
		{
			name:  "only additions",
			lines: []string{"+a", "+b"},
			hunk:  models.Hunk{OldStart: 0, OldLines: 0, NewStart: 1, NewLines: 2},
		},
		{
			name:  "sql comment deletion",
			lines: []string{"--- comment", " keep"},
			hunk:  models.Hunk{OldStart: 3, OldLines: 2, NewStart: 3, NewLines: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &fileState{file: &models.ParsedFile{Path: "f"}}
			s.consume(headerFor(tt.hunk))
			for _, l := range tt.lines {
				s.consume(l)
			}
			assert.Equal(t, tt.hunk.OldStart+tt.hunk.OldLines, s.oldLine)
			assert.Equal(t, tt.hunk.NewStart+tt.hunk.NewLines, s.newLine)
		})
	}
}

func TestParse_MissingCountDefaultsToOne(t *testing.T) {
	files := NewParser().Parse("diff --git a/a b/a\n@@ -4 +4,2 @@\n-x\n+y\n+z\n")
	require.Len(t, files, 1)
	assert.Equal(t, models.Hunk{OldStart: 4, OldLines: 1, NewStart: 4, NewLines: 2}, files[0].Hunks[0])
}

func TestStats(t *testing.T) {
	p := NewParser()
	add, del := p.Stats(p.Parse(sampleDiff))
	assert.Equal(t, 2, add)
	assert.Equal(t, 1, del)
}

func TestAnnotate(t *testing.T) {
	out := Annotate(sampleDiff)
	assert.Contains(t, out, "     -     10 | +const token")
	assert.Contains(t, out, "     8      8 |  const a = 1;")
	assert.Contains(t, out, "+++ b/src/a.ts")
}

func TestAnnotate_DashContentMatchesParser(t *testing.T) {
	d := "diff --git a/q.sql b/q.sql\n" +
		"--- a/q.sql\n" +
		"+++ b/q.sql\n" +
		"@@ -1,3 +1,3 @@\n" +
		" select 1;\n" +
		"--- old note\n" +
		"+++ new note\n" +
		" select 2;\n" +
		"--- a/r.sql\n" +
		"+++ b/r.sql\n"

	out := Annotate(d)
	tests := []struct {
		name string
		want string
	}{
		{"deleted dash comment", "     2      - | --- old note"},
		{"added plus line", "     -      2 | +++ new note"},
		{"context after", "     3      3 |  select 2;"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, out, tt.want)
		})
	}
	lines := strings.Split(out, "\n")
	assert.Equal(t, "--- a/r.sql", lines[len(lines)-3])
	assert.Equal(t, "+++ b/r.sql", lines[len(lines)-2])

	files := NewParser().Parse(d)
	require.Len(t, files, 1)
	require.Len(t, files[0].Deletions, 1)
	require.Len(t, files[0].Additions, 1)
	assert.Equal(t, models.DiffLine{Line: 2, Content: "-- old note"}, files[0].Deletions[0])
	assert.Equal(t, models.DiffLine{Line: 2, Content: "++ new note"}, files[0].Additions[0])
}

func headerFor(h models.Hunk) string {
	return fmt.Sprintf("@@ -%d,%d +%d,%d @@", h.OldStart, h.OldLines, h.NewStart, h.NewLines)
}

func TestRestrict(t *testing.T) {
	onlyTS := Restrict(sampleDiff, func(p string) bool { return strings.HasSuffix(p, ".ts") })
	files := NewParser().Parse(onlyTS)
	require.Len(t, files, 1)
	assert.Equal(t, "src/a.ts", files[0].Path)
	assert.NotContains(t, onlyTS, "README")

	assert.Empty(t, Restrict(sampleDiff, func(string) bool { return false }))
	assert.Equal(t, strings.TrimRight(sampleDiff, "\n"), Restrict(sampleDiff, func(string) bool { return true }))
}
