// Package resources scans the agent's skills and prompts directories and
// reads individual resource files on demand. These are read-only: the
// session manager never writes or executes them.
package resources

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Entry describes one discovered skill or prompt file.
type Entry struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// ScanDir lists every non-directory entry directly under dir whose name does
// not start with a dot, in filename order (os.ReadDir sorts by name).
func ScanDir(dir string) ([]Entry, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	var out []Entry
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		out = append(out, Entry{
			Name: strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())),
			Path: filepath.Join(dir, e.Name()),
		})
	}
	return out, nil
}

// ReadContent reads the content of a resource file. baseDir restricts the
// read to files inside it, preventing a crafted path from escaping the
// skills/prompts tree.
func ReadContent(baseDir, path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	base, err := filepath.Abs(baseDir)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(abs, base+string(filepath.Separator)) && abs != base {
		return "", fmt.Errorf("path escapes resource directory: %s", path)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", abs, err)
	}
	return string(data), nil
}

// SkillsDir and PromptsDir return the well-known resource directories under
// the agent's config tree.
func SkillsDir(configDir string) string  { return filepath.Join(configDir, "skills") }
func PromptsDir(configDir string) string { return filepath.Join(configDir, "prompts") }
