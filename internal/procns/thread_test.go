package procns

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewThreadRootHasNoParentAndIsNamespaceRoot(t *testing.T) {
	root, err := NewThread(NewThreadParams{Tid: 100, Cwd: "/", Root: "/", Umask: 0o22})
	require.NoError(t, err)

	require.Nil(t, root.Parent())
	require.True(t, root.IsNamespaceRoot())

	id, ok := root.NS.NsTidOf(root)
	require.True(t, ok)
	require.Equal(t, NsTid(root.AbsTid), id) // root namespace: NsTid == AbsTid
}

func TestNewThreadInheritsParentNamespaceByDefault(t *testing.T) {
	root, err := NewThread(NewThreadParams{Tid: 100, Cwd: "/", Root: "/"})
	require.NoError(t, err)

	child, err := NewThread(NewThreadParams{Parent: root, Tid: 101})
	require.NoError(t, err)

	require.Same(t, root.NS, child.NS)
	require.False(t, child.IsNamespaceRoot())

	childID, ok := root.NS.NsTidOf(child)
	require.True(t, ok)
	require.Equal(t, NsTid(child.AbsTid), childID) // root namespace: NsTid == AbsTid
}

func TestNewThreadWithNewPidCreatesNestedNamespaceVisibleFromParent(t *testing.T) {
	root, err := NewThread(NewThreadParams{Tid: 100, Cwd: "/", Root: "/"})
	require.NoError(t, err)

	child, err := NewThread(NewThreadParams{Parent: root, Tid: 101, Flags: FlagNewPid})
	require.NoError(t, err)

	require.NotSame(t, root.NS, child.NS)
	require.True(t, child.IsNamespaceRoot())
	require.Equal(t, 1, child.NS.Depth())

	// The child is visible in its own namespace under NsTid 1 (the
	// first registration there) and in the parent's namespace under a
	// separate NsTid (spec.md §3: registered in every ancestor).
	innerID, ok := child.NS.NsTidOf(child)
	require.True(t, ok)
	require.Equal(t, NsTid(1), innerID)

	outerID, ok := root.NS.NsTidOf(child)
	require.True(t, ok)
	require.Equal(t, NsTid(child.AbsTid), outerID) // root namespace: NsTid == AbsTid
}

func TestNewThreadRejectsUnsupportedCloneFlags(t *testing.T) {
	root, err := NewThread(NewThreadParams{Tid: 100})
	require.NoError(t, err)

	_, err = NewThread(NewThreadParams{Parent: root, Tid: 101, Flags: FlagNewUser})
	require.Error(t, err)
}

func TestNewThreadWithThreadFlagJoinsParentGroup(t *testing.T) {
	root, err := NewThread(NewThreadParams{Tid: 100})
	require.NoError(t, err)

	sibling, err := NewThread(NewThreadParams{Parent: root, Tid: 101, Flags: FlagThread})
	require.NoError(t, err)

	require.Same(t, root.Group, sibling.Group)
	require.True(t, root.Group.IsMember(sibling))
}

func TestNewThreadWithParentFlagReparentsToGrandparent(t *testing.T) {
	grandparent, err := NewThread(NewThreadParams{Tid: 100})
	require.NoError(t, err)

	parent, err := NewThread(NewThreadParams{Parent: grandparent, Tid: 101})
	require.NoError(t, err)

	child, err := NewThread(NewThreadParams{Parent: parent, Tid: 102, Flags: FlagParent})
	require.NoError(t, err)

	require.Same(t, grandparent, child.Parent())
}

func TestNewThreadWithFilesFlagSharesFdTable(t *testing.T) {
	root, err := NewThread(NewThreadParams{Tid: 100})
	require.NoError(t, err)

	child, err := NewThread(NewThreadParams{Parent: root, Tid: 101, Flags: FlagFiles})
	require.NoError(t, err)

	require.Same(t, root.Fds, child.Fds)
}

func TestNewThreadWithoutFilesFlagClonesFdTable(t *testing.T) {
	root, err := NewThread(NewThreadParams{Tid: 100})
	require.NoError(t, err)

	child, err := NewThread(NewThreadParams{Parent: root, Tid: 101})
	require.NoError(t, err)

	require.NotSame(t, root.Fds, child.Fds)
}

func TestThreadExitCascadesToChildrenAndUnregistersFromNamespace(t *testing.T) {
	root, err := NewThread(NewThreadParams{Tid: 100})
	require.NoError(t, err)

	child, err := NewThread(NewThreadParams{Parent: root, Tid: 101})
	require.NoError(t, err)

	grandchild, err := NewThread(NewThreadParams{Parent: child, Tid: 102})
	require.NoError(t, err)

	child.Exit()

	require.False(t, root.NS.Contains(child))
	require.False(t, root.NS.Contains(grandchild))
	require.Empty(t, root.Children())
}
