package widget

import (
	"errors"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Resolve(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	reg := NewRegistry(root, WithWorkDir(filepath.Dir(root)))
	reg.Register(static("clock", Module{}), static("heading", Module{}))

	tests := []struct {
		name string
		ref  string
		want string
		ok   bool
	}{
		{"by name", "clock", "clock", true},
		{"by absolute dir", filepath.Join(root, "heading"), "heading", true},
		{"by relative dir", filepath.Join(filepath.Base(root), "clock"), "clock", true},
		{"relative dir with dots", filepath.Join(filepath.Base(root), "x", "..", "heading"), "heading", true},
		{"unknown", "nope", "", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, dir, err := reg.Resolve(tt.ref)
			if !tt.ok {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrNotFound))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Name())
			assert.Equal(t, filepath.Join(root, tt.want), dir)
		})
	}
}

func TestRegistry_ResolutionErrorNamesPath(t *testing.T) {
	t.Parallel()
	wd := t.TempDir()
	reg := NewRegistry(t.TempDir(), WithWorkDir(wd))

	_, _, err := reg.Resolve("widgets/missing")
	var re *ResolutionError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, filepath.Join(wd, "widgets", "missing"), re.Path)
	assert.Contains(t, err.Error(), re.Path)
}

func TestRegistry_LaterRegistrationWins(t *testing.T) {
	t.Parallel()
	reg := NewRegistry(t.TempDir())
	reg.Register(static("a", Module{Update: "one.js"}))
	reg.Register(static("a", Module{Update: "two.js"}))

	f, _, err := reg.Resolve("a")
	require.NoError(t, err)
	m, err := f.Register(nil)
	require.NoError(t, err)
	assert.Equal(t, "two.js", m.Update)
	assert.Equal(t, []string{"a"}, reg.Names())
}

func TestNewID_Shape(t *testing.T) {
	t.Parallel()
	re := regexp.MustCompile(`^[a-z][a-z0-9]+$`)
	for i := 0; i < 100; i++ {
		id := NewID()
		assert.Regexp(t, re, id)
	}
}
