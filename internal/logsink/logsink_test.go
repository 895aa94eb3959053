package logsink

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dvproto/ripsim/internal/rib"
)

func TestLogsink_OpenCreatesFileNamedByRouterID(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s, err := Open(dir, 7)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, "7_log.txt"))
	require.NoError(t, err)
}

func TestLogsink_SnapshotWritesHeaderAndEntries(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s, err := Open(dir, 1)
	require.NoError(t, err)

	tbl := rib.New(1)
	tbl.Insert(tbl.Self().Timeout, 2, 2, 1)

	require.NoError(t, s.Snapshot(1, tbl.All()))
	require.NoError(t, s.Close())

	data, err := os.ReadFile(filepath.Join(dir, "1_log.txt"))
	require.NoError(t, err)
	content := string(data)

	require.Contains(t, content, "Router #1  Routing Table")
	require.Contains(t, content, "destination")
	require.Contains(t, content, "is garbage")
	require.Contains(t, content, "+-------------+----------+------------+--------------+------------+")
	require.Regexp(t, `\|\s*destination\s*\|`, content)
	require.True(t, strings.HasSuffix(content, "\n\n"), "a snapshot ends with a blank separator line")
}

func TestLogsink_OpenTruncatesExistingFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "3_log.txt")
	require.NoError(t, os.WriteFile(path, []byte("stale content from a previous run"), 0o644))

	s, err := Open(dir, 3)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(data), "stale content")
}
