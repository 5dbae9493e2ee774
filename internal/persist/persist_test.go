package persist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	out := map[string]Store{}
	for _, d := range Drivers {
		s, err := Open(d, filepath.Join(dir, d, "filters.db"))
		require.NoError(t, err, d)
		t.Cleanup(func() { _ = s.Close() })
		out[d] = s
	}
	return out
}

func TestStoreContract(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := s.Get("/pages/sinks")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Set("/pages/sinks", `[{"name":"Name"}]`))
			v, ok, err := s.Get("/pages/sinks")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, `[{"name":"Name"}]`, v)

			require.NoError(t, s.Set("/pages/sinks", `[]`))
			v, _, _ = s.Get("/pages/sinks")
			assert.Equal(t, `[]`, v)

			_, ok, _ = s.Get("/pages/sinks/")
			assert.False(t, ok, "keys are exact routes")
		})
	}
}

func TestFileSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filters.json")
	f, err := OpenFile(path)
	require.NoError(t, err)
	require.NoError(t, f.Set("/", `[]`))
	require.NoError(t, f.Set("/pages/fleet/agents", `[{"name":"Tags"}]`))

	again, err := OpenFile(path)
	require.NoError(t, err)
	v, ok, err := again.Get("/pages/fleet/agents")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[{"name":"Tags"}]`, v)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are renamed into place")
}

func TestFileRejectsCorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filters.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))
	_, err := OpenFile(path)
	assert.Error(t, err)
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filters.db")
	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Set("/pages/sinks", "a"))
	require.NoError(t, s.Close())

	again, err := OpenSQLite(path)
	require.NoError(t, err)
	defer again.Close()
	v, ok, err := again.Get("/pages/sinks")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a", v)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open("redis", "")
	assert.ErrorIs(t, err, ErrUnknownDriver)
}
