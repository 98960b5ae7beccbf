package active

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyforge/pyforge/internal/core/version"
)

func TestFindVersionFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	root := filepath.FromSlash("/work/proj")
	require.NoError(t, fs.MkdirAll(filepath.Join(root, "src", "pkg"), 0o755))
	require.NoError(t, afero.WriteFile(fs, filepath.Join(root, ".python-version"), []byte("3.8.6\n"), 0o644))

	t.Run("WalksParents", func(t *testing.T) {
		path, ok, err := FindVersionFile(fs, filepath.Join(root, "src", "pkg"), true)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, filepath.Join(root, ".python-version"), path)
	})

	t.Run("CurrentDirectoryOnly", func(t *testing.T) {
		_, ok, err := FindVersionFile(fs, filepath.Join(root, "src", "pkg"), false)
		require.NoError(t, err)
		assert.False(t, ok)

		path, ok, err := FindVersionFile(fs, root, false)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, filepath.Join(root, ".python-version"), path)
	})

	t.Run("NearestWins", func(t *testing.T) {
		inner := filepath.Join(root, "src", ".python-version")
		require.NoError(t, afero.WriteFile(fs, inner, []byte("3.9.0\n"), 0o644))
		t.Cleanup(func() { _ = fs.Remove(inner) })

		path, ok, err := FindVersionFile(fs, filepath.Join(root, "src", "pkg"), true)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, inner, path)
	})

	t.Run("DirectoryNamedLikeFileIgnored", func(t *testing.T) {
		other := filepath.FromSlash("/elsewhere")
		require.NoError(t, fs.MkdirAll(filepath.Join(other, ".python-version"), 0o755))

		_, ok, err := FindVersionFile(fs, other, true)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("NothingToRoot", func(t *testing.T) {
		_, ok, err := FindVersionFile(afero.NewMemMapFs(), filepath.FromSlash("/a/b/c"), true)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestReadVersionFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	dir := filepath.FromSlash("/proj")
	file := filepath.Join(dir, ".python-version")
	write := func(t *testing.T, content string) {
		t.Helper()
		require.NoError(t, afero.WriteFile(fs, file, []byte(content), 0o644))
	}

	t.Run("ExactVersion", func(t *testing.T) {
		write(t, "3.8.6  \nignored second line\n")
		c, err := ReadVersionFile(fs, file)
		require.NoError(t, err)
		require.False(t, c.IsPath())
		assert.Equal(t, version.KindExact, c.Spec.Kind)
		assert.Equal(t, "3.8.6", c.Spec.Exact.String())
	})

	t.Run("PrefixedForms", func(t *testing.T) {
		write(t, "~3.7\n")
		c, err := ReadVersionFile(fs, file)
		require.NoError(t, err)
		assert.Equal(t, version.KindCompatible, c.Spec.Kind)

		write(t, "=3.7.3")
		c, err = ReadVersionFile(fs, file)
		require.NoError(t, err)
		assert.Equal(t, version.KindExact, c.Spec.Kind)
	})

	t.Run("AbsolutePath", func(t *testing.T) {
		exe := filepath.FromSlash("/usr/local/bin/python3")
		require.NoError(t, afero.WriteFile(fs, exe, []byte("#!"), 0o755))
		write(t, exe+"\n")

		c, err := ReadVersionFile(fs, file)
		require.NoError(t, err)
		require.True(t, c.IsPath())
		assert.Equal(t, exe, c.Path)
	})

	t.Run("RelativePathResolvedAgainstFile", func(t *testing.T) {
		exe := filepath.Join(dir, "venv", "bin", "python")
		require.NoError(t, afero.WriteFile(fs, exe, []byte("#!"), 0o755))
		write(t, filepath.Join("venv", "bin", "..", "bin", "python"))

		c, err := ReadVersionFile(fs, file)
		require.NoError(t, err)
		require.True(t, c.IsPath())
		assert.Equal(t, exe, c.Path)
	})

	t.Run("NeitherVersionNorPath", func(t *testing.T) {
		write(t, "three point eight\n")
		_, err := ReadVersionFile(fs, file)
		require.Error(t, err)
	})

	t.Run("Empty", func(t *testing.T) {
		write(t, "\n")
		_, err := ReadVersionFile(fs, file)
		require.Error(t, err)
	})
}

func TestWriteVersionFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	dir := filepath.FromSlash("/proj")
	require.NoError(t, fs.MkdirAll(dir, 0o755))

	path, err := WriteVersionFile(fs, dir, version.MustParseVersion("3.9.1"))
	require.NoError(t, err)

	c, err := ReadVersionFile(fs, path)
	require.NoError(t, err)
	assert.Equal(t, "3.9.1", c.Spec.Exact.String())
}
