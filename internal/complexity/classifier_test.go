package complexity

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func lines(n int, content string) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = content
	}
	return out
}

func TestClassify_Trivial(t *testing.T) {
	s := Classify(1, []FileChange{{Path: "web/components/Button.tsx", AddedLines: lines(3, "x := 1")}})
	assert.Equal(t, 0, s.Value)
	assert.Equal(t, TierTrivial, s.Tier)
	assert.Equal(t, "small, low-risk change", s.Reason)
}

func TestClassify_Bands(t *testing.T) {
	tests := []struct {
		name      string
		fileCount int
		added     int
		wantFiles int
		wantLines int
	}{
		{"one file", 1, 20, 0, 0},
		{"three files", 3, 21, 1, 1},
		{"seven files", 7, 100, 2, 1},
		{"eight files", 8, 101, 3, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Classify(tt.fileCount, []FileChange{{Path: "notes.txt", AddedLines: lines(tt.added, "plain")}})
			assert.Equal(t, tt.wantFiles, s.Factors["file_count"])
			assert.Equal(t, tt.wantLines, s.Factors["added_lines"])
		})
	}
}

func TestClassify_RiskFactors(t *testing.T) {
	files := []FileChange{
		{Path: "internal/auth/session.go", AddedLines: []string{`apiKey := "abcdefghijkl"`, `out, _ := exec.Command("sh").Output()`}},
		{Path: "web/src/render.ts", AddedLines: []string{"el.innerHTML = html", "await Promise.all(tasks)"}},
		{Path: "db/query.py", AddedLines: []string{`cur.execute("DELETE FROM users WHERE id = %s")`, "except Exception: pass"}},
	}

	s := Classify(len(files), files)

	assert.Equal(t, 1, s.Factors["file_count"])
	assert.Equal(t, 0, s.Factors["added_lines"])
	// auth/session.go = 3+7+2, web/src/render.ts = 3+2, db/query.py = 2+5
	assert.Equal(t, 2, s.Factors["high_risk"])
	assert.Equal(t, 1, s.Factors["multi_lang"])
	// secret 3 + raw_html 2 + sql 2 + empty catch 1 + async 1
	assert.Equal(t, 2, s.Factors["risk_pattern"])
	assert.Equal(t, 6, s.Value)
	assert.Equal(t, TierSimple, s.Tier)
	assert.Contains(t, s.Reason, "secret_assignment")
}

func TestClassify_ClampedAtTen(t *testing.T) {
	var files []FileChange
	for i := 0; i < 10; i++ {
		files = append(files, FileChange{
			Path:       fmt.Sprintf("internal/auth/f%d.go", i),
			AddedLines: append(lines(20, `eval(x); el.innerHTML = y; password = "supersecret"`), "DROP TABLE users", "catch (e) {}", "await x"),
		})
	}
	files = append(files, FileChange{Path: "svc/a.py"})

	s := Classify(len(files), files)
	assert.Equal(t, MaxScore, s.Value)
	assert.Equal(t, TierComplex, s.Tier)
}

func TestClassify_MonotonicInFileCountAndLines(t *testing.T) {
	prev := -1
	for n := 0; n <= 12; n++ {
		s := Classify(n, []FileChange{{Path: "a.go", AddedLines: lines(5, "x")}})
		assert.GreaterOrEqual(t, s.Value, prev)
		prev = s.Value
	}

	prev = -1
	for added := 0; added <= 250; added += 10 {
		s := Classify(2, []FileChange{{Path: "a.go", AddedLines: lines(added, "x")}})
		assert.GreaterOrEqual(t, s.Value, prev)
		prev = s.Value
	}
}

func TestClassify_Deterministic(t *testing.T) {
	files := []FileChange{{Path: "internal/auth/token.go", AddedLines: []string{"await run()"}}}
	assert.Equal(t, Classify(2, files), Classify(2, files))
}

func TestTierFor(t *testing.T) {
	assert.Equal(t, TierTrivial, TierFor(2))
	assert.Equal(t, TierSimple, TierFor(3))
	assert.Equal(t, TierSimple, TierFor(6))
	assert.Equal(t, TierComplex, TierFor(7))
	assert.Equal(t, 0.5, TierTrivial.BudgetFactor())
	assert.Equal(t, 1.0, TierComplex.BudgetFactor())
}
