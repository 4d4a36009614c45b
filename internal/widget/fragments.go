package widget

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Markdown markup fragments are converted to HTML after templating, so
// template actions keep their quoting. Widgets are trusted code, so raw HTML
// inside markdown is kept.
var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithUnsafe()),
)

// loadFragments reads every path (relative to base), trims each file and joins
// them with a newline. An empty list yields "".
func loadFragments(base string, paths Paths) (string, error) {
	if len(paths) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(paths))
	for _, p := range paths {
		s, err := loadFragment(base, p)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, "\n"), nil
}

func loadFragment(base, rel string) (string, error) {
	file := filepath.Join(base, rel)
	b, err := os.ReadFile(file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", &MissingResourceError{Path: file}
		}
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// renderMarkup renders each markup path through render, converts markdown
// files to HTML and joins the results like loadFragments.
func renderMarkup(base string, paths Paths, render func(src string) (string, error)) (string, error) {
	if len(paths) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(paths))
	for _, p := range paths {
		src, err := loadFragment(base, p)
		if err != nil {
			return "", err
		}
		out, err := render(src)
		if err != nil {
			return "", err
		}
		if isMarkdown(p) {
			var buf bytes.Buffer
			if err := markdown.Convert([]byte(out), &buf); err != nil {
				return "", err
			}
			out = buf.String()
		}
		parts = append(parts, strings.TrimSpace(out))
	}
	return strings.Join(parts, "\n"), nil
}

func isMarkdown(file string) bool {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".md", ".markdown":
		return true
	}
	return false
}
