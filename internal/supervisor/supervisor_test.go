package supervisor

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRegistersRootThreadAndClosesCleanly(t *testing.T) {
	base := t.TempDir()

	s, err := New(Params{
		NotifFd: -1, // never dereferenced by New; Run is what touches it
		RootTid: 1,
		Cwd:     "/",
		Root:    "/",
		Umask:   0o022,

		OverlayBase: base,
	})
	require.NoError(t, err)

	root, ok := s.threads.Get(1)
	require.True(t, ok)
	require.Equal(t, "/", root.Fs.Cwd())

	entries, err := os.ReadDir(base)
	require.NoError(t, err)
	require.Len(t, entries, 1) // the sandbox's overlay UID directory

	require.NoError(t, s.Close())

	entries, err = os.ReadDir(base)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestNewDefaultsConfigAndLog(t *testing.T) {
	base := t.TempDir()

	s, err := New(Params{
		NotifFd:     -1,
		RootTid:     1,
		Cwd:         "/",
		Root:        "/",
		OverlayBase: base,
	})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	require.Equal(t, 8, s.cfg.MaxInflight)
	require.NotNil(t, s.log)
}
