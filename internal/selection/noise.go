package selection

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog/log"

	"github.com/prcontext/pkg/models"
)

// noisePatterns are matched against the lower-cased, slash-separated file path.
// A match excludes the file before scoring.
var noisePatterns = []string{
	// lockfiles
	"**/package-lock.json",
	"**/npm-shrinkwrap.json",
	"**/yarn.lock",
	"**/pnpm-lock.yaml",
	"**/bun.lockb",
	"**/go.sum",
	"**/cargo.lock",
	"**/poetry.lock",
	"**/pipfile.lock",
	"**/gemfile.lock",
	"**/composer.lock",
	"**/*.lock",

	// build and output directories
	"**/dist/**",
	"**/build/**",
	"**/out/**",
	"**/target/**",
	"**/.next/**",
	"**/.nuxt/**",
	"**/coverage/**",
	"**/.cache/**",
	"**/__pycache__/**",

	// minified bundles and sourcemaps
	"**/*.min.js",
	"**/*.min.css",
	"**/*.map",
	"**/*.bundle.js",

	// binary and media assets
	"**/*.{png,jpg,jpeg,gif,bmp,ico,tif,tiff,webp,svg,avif}",
	"**/*.{mp3,mp4,avi,mov,wmv,flv,webm,wav,ogg}",
	"**/*.{ttf,otf,woff,woff2,eot}",
	"**/*.{zip,tar,gz,tgz,bz2,xz,7z,rar,jar,war,ear}",
	"**/*.{exe,dll,so,dylib,a,lib,o,obj,class,pyc,pyd,pyo,bin,dat,wasm}",
	"**/*.{pdf,doc,docx,xls,xlsx,ppt,pptx}",

	// vendored trees
	"**/vendor/**",
	"**/node_modules/**",
	"**/third_party/**",
	"**/bower_components/**",

	// prompts, secrets and environment files
	"**/.env",
	"**/.env.*",
	"**/*.{pem,key,crt,p12,pfx,jks}",
	"**/secrets/**",
	"**/prompts/**",
	"**/*.prompt",

	// documentation
	"**/docs/**",
	"**/*.{md,mdx,rst,txt,adoc}",
	"**/license*",
	"**/changelog*",

	// generated code
	"**/*.pb.go",
	"**/*_pb2.py",
	"**/*.generated.*",
	"**/*_generated.*",
	"**/*.gen.*",
	"**/generated/**",
	"**/__generated__/**",
	"**/*.d.ts",
	"**/*.snap",

	// migrations
	"**/migrations/**",
	"**/migrate/**",
	"**/alembic/versions/**",

	// tests
	"**/*_test.go",
	"**/*.test.*",
	"**/*.spec.*",
	"**/test/**",
	"**/tests/**",
	"**/__tests__/**",
	"**/testdata/**",
	"**/test_*.py",
}

// IsNoise reports whether path matches any of the low-value file patterns
func IsNoise(path string) bool {
	p := normalizePath(path)
	for _, pattern := range noisePatterns {
		if ok, err := doublestar.Match(pattern, p); err == nil && ok {
			return true
		}
	}
	return false
}

// FilterNoise drops files whose path is noise or whose added content looks binary.
// Filtering its own output is a no-op.
func FilterNoise(files []*models.ParsedFile) []*models.ParsedFile {
	kept := make([]*models.ParsedFile, 0, len(files))
	for _, f := range files {
		if IsNoise(f.Path) {
			log.Debug().Str("file", f.Path).Msg("Skipping noise file")
			continue
		}
		if IsBinaryContent(strings.Join(sampleAdditions(f, 20), "\n")) {
			log.Debug().Str("file", f.Path).Msg("Skipping binary content")
			continue
		}
		kept = append(kept, f)
	}
	if dropped := len(files) - len(kept); dropped > 0 {
		log.Info().Int("kept", len(kept)).Int("dropped", dropped).Msg("Noise filter applied")
	}
	return kept
}

// IsBinaryContent checks if content is likely binary: a null byte, or more than
// 30% non-printable characters in the first 512 bytes.
func IsBinaryContent(content string) bool {
	if len(content) == 0 {
		return false
	}
	if strings.Contains(content, "\x00") {
		return true
	}

	sample := content
	if len(sample) > 512 {
		sample = sample[:512]
	}

	total, nonPrintable := 0, 0
	for _, r := range sample {
		total++
		if (r < 32 && r != '\t' && r != '\n' && r != '\r') || r == 127 || r == '�' {
			nonPrintable++
		}
	}
	return float64(nonPrintable)/float64(total) > 0.3
}

func sampleAdditions(f *models.ParsedFile, n int) []string {
	if len(f.Additions) < n {
		n = len(f.Additions)
	}
	out := make([]string, 0, n)
	for _, l := range f.Additions[:n] {
		out = append(out, l.Content)
	}
	return out
}

func normalizePath(path string) string {
	p := strings.ToLower(strings.ReplaceAll(path, "\\", "/"))
	return strings.TrimPrefix(p, "./")
}
