package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/oasis/pkg/models"
)

func testSnapshot(topicID string) models.TopicSnapshot {
	one := 1
	return models.TopicSnapshot{
		TopicID:      topicID,
		Question:     "q",
		Owner:        "alice",
		Status:       models.StatusConcluded,
		CurrentRound: 2,
		MaxRounds:    3,
		Discussion:   true,
		CreatedAt:    1_700_000_000,
		Conclusion:   "done",
		Posts: []models.Post{
			{ID: 1, Author: "a", Content: "first", Upvotes: 2, Timestamp: 1_700_000_001, Elapsed: 1},
			{ID: 2, Author: "b", Content: "second", ReplyTo: &one, Downvotes: 1, Timestamp: 1_700_000_002, Elapsed: 2},
		},
		Timeline: []models.TimelineEvent{
			{Elapsed: 0, Event: models.EventStart},
			{Elapsed: 2, Event: models.EventConclude},
		},
	}
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	snap := testSnapshot("t-1")
	require.NoError(t, store.Save(snap))

	loaded, err := store.Load("t-1")
	require.NoError(t, err)
	assert.Equal(t, snap, loaded)
}

func TestStore_LoadMissing(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load("nope")
	assert.True(t, os.IsNotExist(err))
}

func TestStore_UnknownFieldsPreserved(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	// A blob written by a newer build carries a field this build does not know.
	blob := map[string]any{
		"topic_id":   "t-2",
		"question":   "q",
		"owner":      "alice",
		"status":     "concluded",
		"conclusion": "done",
		"created_at": 1_700_000_000,
		"layout":     map[string]any{"theme": "dark"},
	}
	data, err := json.Marshal(blob)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "t-2.json"), data, 0o644))

	snap, err := store.Load("t-2")
	require.NoError(t, err)
	require.Contains(t, snap.Extra, "layout")

	require.NoError(t, store.Save(snap))
	rewritten, err := os.ReadFile(filepath.Join(dir, "t-2.json"))
	require.NoError(t, err)
	var parsed map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rewritten, &parsed))
	assert.JSONEq(t, `{"theme":"dark"}`, string(parsed["layout"]))
}

func TestStore_LoadAllSkipsCorrupt(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Save(testSnapshot("good-1")))
	require.NoError(t, store.Save(testSnapshot("good-2")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0o644))

	snaps, err := store.LoadAll()
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	ids := []string{snaps[0].TopicID, snaps[1].TopicID}
	assert.ElementsMatch(t, []string{"good-1", "good-2"}, ids)
}

func TestStore_Delete(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Save(testSnapshot("t-3")))
	require.NoError(t, store.Delete("t-3"))
	_, err = store.Load("t-3")
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, store.Delete("t-3"), "double delete is not an error")
}

func TestStore_SaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Save(testSnapshot("t-4")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "t-4.json", entries[0].Name())
}
