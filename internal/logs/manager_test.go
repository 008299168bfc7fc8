package logs

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWritersCreatesDistinctFiles(t *testing.T) {
	dir := t.TempDir()
	m, err := New(Options{Dir: dir})
	require.NoError(t, err)

	out, errw := m.Writers("web", "")
	require.Equal(t, filepath.Join(dir, "web.out"), out.Filename)
	require.Equal(t, filepath.Join(dir, "web.err"), errw.Filename)

	for i := 0; i < 5; i++ {
		fmt.Fprintf(out, "line %d\n", i)
	}
	require.NoError(t, out.Close())

	lines, err := m.Tail("web", 3)
	require.NoError(t, err)
	require.Equal(t, []string{"line 2", "line 3", "line 4"}, lines)
}

func TestTailUnknownProcess(t *testing.T) {
	dir := t.TempDir()
	m, err := New(Options{Dir: dir})
	require.NoError(t, err)
	_, err = m.Tail("ghost", 10)
	require.Error(t, err)
}
