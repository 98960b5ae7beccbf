package install

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadExtras(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/home/extras.txt", []byte("# dev tools\nblack\n\n   \n  # indented comment\n  ruff  \nrequests\r\n"), 0o644))

	pkgs, err := ReadExtras(fs, "/home/extras.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"black", "ruff", "requests"}, pkgs)
}

func TestCollectExtras(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/home/default.txt", []byte("black\nRequests\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/proj/extras.txt", []byte("requests\nhttpx\n"), 0o644))

	t.Run("None", func(t *testing.T) {
		pkgs, err := collectExtras(fs, ExtrasNone, "/home/default.txt", "/proj/extras.txt")
		require.NoError(t, err)
		assert.Empty(t, pkgs)
	})

	t.Run("DefaultFile", func(t *testing.T) {
		pkgs, err := collectExtras(fs, ExtrasDefaultFile, "/home/default.txt", "")
		require.NoError(t, err)
		assert.Equal(t, []string{"black", "Requests"}, pkgs)
	})

	t.Run("BothDeduplicates", func(t *testing.T) {
		pkgs, err := collectExtras(fs, ExtrasBoth, "/home/default.txt", "/proj/extras.txt")
		require.NoError(t, err)
		assert.Equal(t, []string{"black", "Requests", "httpx"}, pkgs)
	})

	t.Run("MissingDefaultIsEmpty", func(t *testing.T) {
		pkgs, err := collectExtras(fs, ExtrasDefaultFile, "/nowhere.txt", "")
		require.NoError(t, err)
		assert.Empty(t, pkgs)
	})

	t.Run("MissingExplicitFails", func(t *testing.T) {
		_, err := collectExtras(fs, ExtrasFile, "/home/default.txt", "/proj/missing.txt")
		require.Error(t, err)
	})

	t.Run("ExplicitRequiresPath", func(t *testing.T) {
		_, err := collectExtras(fs, ExtrasFile, "/home/default.txt", "")
		require.Error(t, err)
	})
}
