package selection

import (
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/prcontext/pkg/models"
)

// DefaultCap is the number of files kept after ranking
const DefaultCap = 15

// Heuristic weights. They are independent and summed.
const (
	weightBackend    = 3
	weightSecurity   = 7
	weightInfra      = 5
	weightSource     = 2
	weightLarge      = 2
	weightDatabase   = 5
	weightUI         = -2
	weightTest       = -5
	weightMarkdown   = -8
	largeChangeLines = 300
)

var (
	backendSegments = []string{"src", "server", "backend", "api", "lib", "internal", "pkg", "services", "service", "app", "core", "handlers", "controllers", "routes", "cmd"}
	securityWords   = []string{"auth", "security", "secret", "token", "password", "passwd", "credential", "crypto", "session", "oauth", "jwt", "permission", "login", "apikey", "api_key"}
	infraExts       = map[string]bool{".yml": true, ".yaml": true, ".tf": true, ".tfvars": true, ".toml": true, ".ini": true, ".conf": true, ".cfg": true, ".hcl": true, ".dockerfile": true}
	infraNames      = map[string]bool{"dockerfile": true, "makefile": true, "docker-compose.yml": true, "docker-compose.yaml": true, "jenkinsfile": true, "procfile": true}
	infraSegments   = []string{"infra", "deploy", "deployment", "terraform", "k8s", "kubernetes", "helm", "charts", ".github", "ci", "config", "configs", "ansible", "nginx"}
	dbSegments      = []string{"db", "database", "schema", "schemas", "model", "models", "entities", "prisma", "sql", "repository", "repositories"}
	uiSegments      = []string{"ui", "component", "components", "styles", "style", "css", "views", "pages", "templates", "assets", "public"}
	uiExts          = map[string]bool{".css": true, ".scss": true, ".sass": true, ".less": true, ".html": true, ".vue": true, ".svelte": true}
	testSegments    = []string{"test", "tests", "__tests__", "spec", "specs", "testdata", "e2e"}
	markdownExts    = map[string]bool{".md": true, ".mdx": true, ".markdown": true}

	// SourceExtensions maps recognized source extensions to their language
	SourceExtensions = map[string]string{
		".go": "go", ".ts": "typescript", ".tsx": "typescript", ".js": "javascript", ".jsx": "javascript",
		".mjs": "javascript", ".cjs": "javascript", ".py": "python", ".rb": "ruby", ".java": "java",
		".kt": "kotlin", ".kts": "kotlin", ".rs": "rust", ".c": "c", ".h": "c", ".cc": "cpp", ".cpp": "cpp",
		".hpp": "cpp", ".cs": "csharp", ".php": "php", ".swift": "swift", ".scala": "scala", ".m": "objc",
		".sql": "sql", ".sh": "shell", ".bash": "shell", ".ex": "elixir", ".exs": "elixir", ".dart": "dart",
	}

	// secretAssignmentRe matches an identifier that names a credential being assigned a literal
	secretAssignmentRe = regexp.MustCompile(`(?i)(secret|token|passw(or)?d|api[_-]?key|private[_-]?key|access[_-]?key|credential)s?\w*["']?\s*(?::=|=|:)\s*["'][^"']{6,}["']`)
)

// ScorePath returns the path-only risk score of a file, floored at 0
func ScorePath(filePath string) int {
	return floor(pathScore(normalizePath(filePath)))
}

// Score returns the risk score of a parsed file: path heuristics, size and added content.
// Identical inputs always yield the identical score.
func Score(f *models.ParsedFile) int {
	p := normalizePath(f.Path)
	s := pathScore(p)
	if !hasSecurityWord(p) && containsSecretAssignment(f.AddedContent()) {
		s += weightSecurity
	}
	if f.ChangedLines() > largeChangeLines {
		s += weightLarge
	}
	return floor(s)
}

// ContainsSecretAssignment reports whether any line assigns a literal to a secret-like name
func ContainsSecretAssignment(lines []string) bool {
	return containsSecretAssignment(lines)
}

func containsSecretAssignment(lines []string) bool {
	for _, l := range lines {
		if secretAssignmentRe.MatchString(l) {
			return true
		}
	}
	return false
}

func pathScore(p string) int {
	segments := strings.Split(path.Dir(p), "/")
	base := path.Base(p)
	ext := path.Ext(base)

	score := 0
	if hasSegment(segments, backendSegments) {
		score += weightBackend
	}
	if hasSecurityWord(p) {
		score += weightSecurity
	}
	if infraExts[ext] || infraNames[base] || hasSegment(segments, infraSegments) {
		score += weightInfra
	}
	if _, ok := SourceExtensions[ext]; ok {
		score += weightSource
	}
	if hasSegment(segments, dbSegments) || ext == ".sql" || ext == ".prisma" || strings.Contains(base, "schema") {
		score += weightDatabase
	}
	if uiExts[ext] || hasSegment(segments, uiSegments) {
		score += weightUI
	}
	if IsTestPath(p) {
		score += weightTest
	}
	if markdownExts[ext] {
		score += weightMarkdown
	}
	return score
}

// IsTestPath reports whether the path looks like a test file or lives in a test tree
func IsTestPath(filePath string) bool {
	p := normalizePath(filePath)
	base := path.Base(p)
	if strings.HasSuffix(strings.TrimSuffix(base, path.Ext(base)), "_test") ||
		strings.Contains(base, ".test.") || strings.Contains(base, ".spec.") ||
		strings.HasPrefix(base, "test_") {
		return true
	}
	return hasSegment(strings.Split(path.Dir(p), "/"), testSegments)
}

// IsConfigPath reports whether the path is an infrastructure or configuration file
func IsConfigPath(filePath string) bool {
	p := normalizePath(filePath)
	base := path.Base(p)
	ext := path.Ext(base)
	if infraExts[ext] || infraNames[base] {
		return true
	}
	if ext == ".json" && strings.Contains(base, "config") {
		return true
	}
	return hasSegment(strings.Split(path.Dir(p), "/"), []string{"config", "configs", ".github"})
}

func hasSecurityWord(p string) bool {
	for _, w := range securityWords {
		if strings.Contains(p, w) {
			return true
		}
	}
	return false
}

func hasSegment(segments, wanted []string) bool {
	for _, s := range segments {
		for _, w := range wanted {
			if s == w {
				return true
			}
		}
	}
	return false
}

func floor(s int) int {
	if s < 0 {
		return 0
	}
	return s
}

// Selection is the ranked, truncated file set
type Selection struct {
	Files   []*models.ParsedFile
	Scores  map[string]int
	Dropped int
}

// Selector ranks files by risk and keeps the top Cap
type Selector struct {
	Cap int
}

// NewSelector creates a selector; a non-positive cap falls back to DefaultCap
func NewSelector(maxFiles int) *Selector {
	if maxFiles <= 0 {
		maxFiles = DefaultCap
	}
	return &Selector{Cap: maxFiles}
}

// Select stable-sorts files by descending score and truncates to the cap
func (s *Selector) Select(files []*models.ParsedFile) Selection {
	type scored struct {
		file  *models.ParsedFile
		score int
	}

	ranked := make([]scored, 0, len(files))
	scores := make(map[string]int, len(files))
	for _, f := range files {
		sc := Score(f)
		ranked = append(ranked, scored{file: f, score: sc})
		scores[f.Path] = sc
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	limit := s.Cap
	if limit <= 0 {
		limit = DefaultCap
	}

	sel := Selection{Scores: scores}
	for i, r := range ranked {
		if i >= limit {
			sel.Dropped = len(ranked) - limit
			break
		}
		sel.Files = append(sel.Files, r.file)
	}

	if sel.Dropped > 0 {
		log.Info().
			Int("kept", len(sel.Files)).
			Int("dropped", sel.Dropped).
			Int("cap", limit).
			Msg("Truncated ranked files to cap")
	}
	return sel
}
