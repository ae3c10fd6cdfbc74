package router

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/canonical/bvisor/internal/errno"
)

func TestResolve(t *testing.T) {
	r := New()

	cases := []struct {
		path string
		want Decision
	}{
		{"/sys/class/net", Block},
		{"/run/lock", Block},
		{"/dev/null", PassthroughDevice},
		{"/dev/zero", PassthroughDevice},
		{"/dev/random", PassthroughDevice},
		{"/dev/urandom", PassthroughDevice},
		{"/dev/sda", Block},
		{"/proc/self/status", ProcVirtual},
		{"/tmp/.bvisor/anything", Block},
		{"/tmp/foo.txt", TmpOverlay},
		{"/etc/passwd", CowOverlay},
		{"/", CowOverlay},
	}

	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			got, e := r.Resolve(tc.path)
			require.Equal(t, errno.Success, e)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestResolveNormalizesFirst(t *testing.T) {
	r := New()

	cases := []struct {
		path string
		want Decision
	}{
		{"/proc/../sys/class/net", Block},
		{"/dev/null/../zero", PassthroughDevice},
		{"/tmp/.bvisor/../foo.txt", TmpOverlay},
	}

	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			got, e := r.Resolve(tc.path)
			require.Equal(t, errno.Success, e)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestResolveIsIdempotentUnderNormalization(t *testing.T) {
	r := New()
	paths := []string{"/a/b/../c", "/tmp/../tmp/x", "/proc/1/../2/status"}

	for _, p := range paths {
		norm, e := Normalize(p)
		require.Equal(t, errno.Success, e)

		got1, _ := r.Resolve(p)
		got2, _ := r.Resolve(norm)
		require.Equal(t, got1, got2)
	}
}

func TestNormalizeForbidsEscapeAboveRoot(t *testing.T) {
	norm, e := Normalize("/../../etc/passwd")
	require.Equal(t, errno.Success, e)
	require.Equal(t, "/etc/passwd", norm)
}

func TestNormalizePathLengthBoundary(t *testing.T) {
	// Exactly at capacity succeeds.
	name := strings.Repeat("a", maxPathLen-1)
	_, e := Normalize("/" + name)
	require.Equal(t, errno.Success, e)

	// One byte more fails.
	name = strings.Repeat("a", maxPathLen)
	_, e = Normalize("/" + name)
	require.Equal(t, errno.ENAMETOOLONG, e)
}
