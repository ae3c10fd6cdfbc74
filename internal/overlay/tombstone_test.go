package overlay

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTombstoneDirCoversSubtree(t *testing.T) {
	ts := NewTombstones()
	ts.Add("/a/b", KindDir)

	require.True(t, ts.IsTombstoned("/a/b"))
	require.True(t, ts.IsTombstoned("/a/b/c"))
	require.True(t, ts.IsTombstoned("/a/b/c/d"))
	require.False(t, ts.IsTombstoned("/a/bc"))
	require.False(t, ts.IsTombstoned("/a"))
}

func TestTombstoneFileDoesNotCoverSubtree(t *testing.T) {
	ts := NewTombstones()
	ts.Add("/a/b", KindFile)

	require.True(t, ts.IsTombstoned("/a/b"))
	require.False(t, ts.IsTombstoned("/a/b/c"))
}

func TestTombstoneClear(t *testing.T) {
	ts := NewTombstones()
	ts.Add("/a/b", KindFile)
	require.True(t, ts.IsTombstoned("/a/b"))

	ts.Clear("/a/b")
	require.False(t, ts.IsTombstoned("/a/b"))
}
