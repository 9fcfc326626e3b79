package storage

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/oasis/pkg/schedule"
)

const validWorkflow = "version: 1\nplan:\n  - expert: creative#temp#1\n"

func TestWorkflowStore_SaveGetList(t *testing.T) {
	store, err := NewWorkflowStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Save("alice", "brainstorm", validWorkflow))
	require.NoError(t, store.Save("alice", "review", validWorkflow))
	require.NoError(t, store.Save("bob", "other", validWorkflow))

	source, err := store.Get("alice", "brainstorm")
	require.NoError(t, err)
	assert.Equal(t, validWorkflow, source)

	infos, err := store.List("alice")
	require.NoError(t, err)
	require.Len(t, infos, 2, "listing is scoped per owner")
	assert.Equal(t, "brainstorm", infos[0].Name)
	assert.Equal(t, "review", infos[1].Name)
}

func TestWorkflowStore_RejectsInvalidSchedule(t *testing.T) {
	store, err := NewWorkflowStore(t.TempDir())
	require.NoError(t, err)

	err = store.Save("alice", "broken", "version: 1\nplan: []\n")
	assert.ErrorIs(t, err, schedule.ErrBadSchedule)

	_, err = store.Get("alice", "broken")
	assert.True(t, os.IsNotExist(err), "rejected workflows are not stored")
}

func TestWorkflowStore_RejectsUnsafeNames(t *testing.T) {
	store, err := NewWorkflowStore(t.TempDir())
	require.NoError(t, err)

	assert.ErrorIs(t, store.Save("alice", "../escape", validWorkflow), ErrBadName)
	assert.ErrorIs(t, store.Save("../alice", "plan", validWorkflow), ErrBadName)
	_, err = store.List("a/b")
	assert.ErrorIs(t, err, ErrBadName)
}

func TestWorkflowStore_ListUnknownOwner(t *testing.T) {
	store, err := NewWorkflowStore(t.TempDir())
	require.NoError(t, err)

	infos, err := store.List("nobody")
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestWorkflowStore_Delete(t *testing.T) {
	store, err := NewWorkflowStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Save("alice", "plan", validWorkflow))
	require.NoError(t, store.Delete("alice", "plan"))
	_, err = store.Get("alice", "plan")
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, store.Delete("alice", "plan"), "double delete is not an error")
}
