package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	return map[string]Store{
		"fs":     NewFS(t.TempDir()),
		"memory": NewMemory(nil),
	}
}

func TestStoreBasics(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Read("scenes/main.pzscene")
			assert.ErrorIs(t, err, ErrNotExist)

			require.NoError(t, s.Write("scenes/main.pzscene", []byte("name: Main\n")))
			ok, err := s.Exists("scenes/main.pzscene")
			require.NoError(t, err)
			assert.True(t, ok)

			data, err := s.Read("./scenes//main.pzscene")
			require.NoError(t, err)
			assert.Equal(t, "name: Main\n", string(data))

			require.NoError(t, s.Delete("scenes/main.pzscene"))
			assert.ErrorIs(t, s.Delete("scenes/main.pzscene"), ErrNotExist)
		})
	}
}

func TestMove(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Write("scenes/oldScene.pzscene", []byte("id: s1\n")))
			require.NoError(t, Move(s, "scenes/oldScene.pzscene", "scenes/newScene.pzscene"))

			gone, err := s.Exists("scenes/oldScene.pzscene")
			require.NoError(t, err)
			assert.False(t, gone)
			data, err := s.Read("scenes/newScene.pzscene")
			require.NoError(t, err)
			assert.Equal(t, "id: s1\n", string(data))

			require.NoError(t, s.Write("scenes/other.pzscene", nil))
			assert.ErrorIs(t, Move(s, "scenes/other.pzscene", "scenes/newScene.pzscene"), ErrExist)
			assert.ErrorIs(t, Move(s, "scenes/missing.pzscene", "scenes/x.pzscene"), ErrNotExist)
		})
	}
}

func TestKeysCannotEscape(t *testing.T) {
	for _, key := range []string{"", "../x", "/etc/passwd", "a/../../x", ".."} {
		_, err := CleanKey(key)
		assert.Error(t, err, key)
	}
	key, err := CleanKey("a/./b/../c")
	require.NoError(t, err)
	assert.Equal(t, "a/c", key)
}

func TestFSWritesUnderRoot(t *testing.T) {
	dir := t.TempDir()
	s := NewFS(dir)
	require.NoError(t, s.Write("project.yaml", []byte("name: Demo\n")))

	data, err := os.ReadFile(filepath.Join(dir, "project.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "name: Demo\n", string(data))

	key, err := s.Key(filepath.Join(dir, "meshes", "cube.glb"))
	require.NoError(t, err)
	assert.Equal(t, "meshes/cube.glb", key)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files are cleaned up")
}
