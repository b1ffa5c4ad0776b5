// Package registry discovers GGUF model files on disk.
package registry

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"omnid/internal/common/fsutil"
	"omnid/pkg/types"
)

// Scanner discovers models under a directory.
type Scanner interface {
	Scan(dir string) ([]types.Model, error)
}

// GGUFScanner walks a directory tree for *.gguf files.
type GGUFScanner struct{}

// NewGGUFScanner returns a scanner for GGUF files.
func NewGGUFScanner() *GGUFScanner { return &GGUFScanner{} }

// Scan walks dir recursively. A model's ID is its slash-separated path
// relative to dir, extension included, so files fetched as
// <owner>/<repo>/<file>.gguf are addressed as such. Hidden directories and
// partial downloads are skipped. Results are sorted by ID.
func (GGUFScanner) Scan(dir string) ([]types.Model, error) {
	abs, err := fsutil.AbsDir(dir)
	if err != nil {
		return nil, err
	}
	var models []types.Model
	err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if p != abs && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(name), ".gguf") {
			return nil
		}
		rel, err := filepath.Rel(abs, p)
		if err != nil {
			return err
		}
		m := types.Model{
			ID:     filepath.ToSlash(rel),
			Name:   strings.TrimSuffix(name, filepath.Ext(name)),
			Path:   p,
			Quant:  DetectQuant(name),
			Family: DetectFamily(filepath.ToSlash(rel)),
		}
		if info, err := d.Info(); err == nil {
			m.SizeBytes = info.Size()
			m.ModifiedUnix = info.ModTime().Unix()
		}
		models = append(models, m)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", abs, err)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

// LoadDir scans dir with the GGUF scanner.
func LoadDir(dir string) ([]types.Model, error) {
	return NewGGUFScanner().Scan(dir)
}

var quantPattern = regexp.MustCompile(`(?i)(?:^|[-_.])((?:I?Q\d(?:_[A-Z0-9]+)*)|BF16|F16|F32)(?:[-_.]|$)`)

// DetectQuant extracts the quantization tag from a file name, upper-cased.
func DetectQuant(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	m := quantPattern.FindAllStringSubmatch(base, -1)
	if len(m) == 0 {
		return ""
	}
	return strings.ToUpper(m[len(m)-1][1])
}

// families is checked in order; earlier entries win on overlap.
var families = []struct{ needle, family string }{
	{"deepseek", "deepseek"},
	{"qwen", "qwen"},
	{"mixtral", "mistral"},
	{"mistral", "mistral"},
	{"ministral", "mistral"},
	{"gemma", "gemma"},
	{"llama", "llama"},
	{"phi", "phi"},
}

// DetectFamily guesses the model family from its path; empty if unknown.
func DetectFamily(path string) string {
	p := strings.ToLower(path)
	for _, f := range families {
		if strings.Contains(p, f.needle) {
			return f.family
		}
	}
	return ""
}
