package selection

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prcontext/pkg/models"
)

func TestIsNoise(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"package-lock.json", true},
		{"web/yarn.lock", true},
		{"go.sum", true},
		{"dist/app.js", true},
		{"packages/ui/build/index.js", true},
		{"static/app.min.js", true},
		{"static/app.js.map", true},
		{"assets/logo.PNG", true},
		{"vendor/github.com/x/y.go", true},
		{"node_modules/react/index.js", true},
		{".env", true},
		{"config/.env.production", true},
		{"prompts/review.txt", true},
		{"README.md", true},
		{"docs/guide.html", true},
		{"api/v1/service.pb.go", true},
		{"types/index.d.ts", true},
		{"db/migrations/0001_init.sql", true},
		{"internal/diff/parser_test.go", true},
		{"src/app.spec.ts", true},
		{"tests/helpers.py", true},
		{"src/a.ts", false},
		{"internal/auth/token.go", false},
		{"Dockerfile", false},
		{"db/schema.sql", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, IsNoise(tt.path))
		})
	}
}

func TestFilterNoise_Idempotent(t *testing.T) {
	files := []*models.ParsedFile{
		{Path: "src/a.ts"},
		{Path: "yarn.lock"},
		{Path: "internal/service.go"},
		{Path: "docs/readme.md"},
		{Path: "blob.unknown", Additions: []models.DiffLine{{Line: 1, Content: "\x00\x01\x02"}}},
	}

	once := FilterNoise(files)
	twice := FilterNoise(once)

	require.Len(t, once, 2)
	assert.Equal(t, once, twice)
}

func TestIsBinaryContent(t *testing.T) {
	assert.False(t, IsBinaryContent(""))
	assert.False(t, IsBinaryContent("package main\n\nfunc main() {}\n"))
	assert.False(t, IsBinaryContent("héllo wörld — unicode is text"))
	assert.True(t, IsBinaryContent("has a null \x00 byte"))
	assert.True(t, IsBinaryContent("\x01\x02\x03\x04\x05\x06\x07\x08ab"))
}

func TestScore(t *testing.T) {
	big := make([]models.DiffLine, 301)
	for i := range big {
		big[i] = models.DiffLine{Line: i + 1, Content: "x"}
	}

	tests := []struct {
		name string
		file *models.ParsedFile
		want int
	}{
		{"backend source", &models.ParsedFile{Path: "internal/handler.go"}, 3 + 2},
		{"auth path", &models.ParsedFile{Path: "internal/auth/handler.go"}, 3 + 7 + 2},
		{"infra", &models.ParsedFile{Path: "Dockerfile"}, 5},
		{"db", &models.ParsedFile{Path: "db/schema.sql"}, 2 + 5},
		{"ui", &models.ParsedFile{Path: "web/components/Button.tsx"}, 2 - 2},
		{"test floors at zero", &models.ParsedFile{Path: "tests/helper.py"}, 0},
		{"markdown floors at zero", &models.ParsedFile{Path: "notes.md"}, 0},
		{"large change", &models.ParsedFile{Path: "main.go", Additions: big}, 2 + 2},
		{
			"secret literal in content",
			&models.ParsedFile{Path: "src/a.ts", Additions: []models.DiffLine{{Line: 10, Content: `const token = "sk-AAAAAAAAAAAA";`}}},
			3 + 7 + 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(tt.file))
			assert.Equal(t, Score(tt.file), Score(tt.file))
		})
	}
}

func TestScore_SecretKeywordCountedOnce(t *testing.T) {
	f := &models.ParsedFile{
		Path:      "internal/auth/token.go",
		Additions: []models.DiffLine{{Line: 1, Content: `password := "hunter2hunter2"`}},
	}
	assert.Equal(t, ScorePath(f.Path), Score(f))
}

func TestSelector_SortsStableAndTruncates(t *testing.T) {
	var files []*models.ParsedFile
	for i := 0; i < 20; i++ {
		files = append(files, &models.ParsedFile{Path: fmt.Sprintf("web/components/c%02d.tsx", i)})
	}
	files = append(files, &models.ParsedFile{Path: "internal/auth/session.go"})

	sel := NewSelector(0).Select(files)

	require.Len(t, sel.Files, DefaultCap)
	assert.Equal(t, 21-DefaultCap, sel.Dropped)
	assert.Equal(t, "internal/auth/session.go", sel.Files[0].Path)
	// equal scores keep input order
	assert.Equal(t, "web/components/c00.tsx", sel.Files[1].Path)
	assert.Equal(t, "web/components/c13.tsx", sel.Files[DefaultCap-1].Path)
}

func TestSelector_UnderCap(t *testing.T) {
	sel := NewSelector(5).Select([]*models.ParsedFile{{Path: "a.go"}, {Path: "b.go"}})
	assert.Len(t, sel.Files, 2)
	assert.Zero(t, sel.Dropped)
}

func TestIsTestAndConfigPath(t *testing.T) {
	assert.True(t, IsTestPath("pkg/x_test.go"))
	assert.True(t, IsTestPath("src/__tests__/a.js"))
	assert.False(t, IsTestPath("src/contest.go"))
	assert.True(t, IsConfigPath("deploy/values.yaml"))
	assert.True(t, IsConfigPath("config/app.go"))
	assert.False(t, IsConfigPath("src/a.ts"))
}
