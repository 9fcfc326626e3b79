package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/oasis/pkg/forum"
	"github.com/codeready-toolchain/oasis/pkg/models"
)

func collect(t *testing.T, ch <-chan Message) []Message {
	t.Helper()
	var messages []Message
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return messages
			}
			messages = append(messages, msg)
		case <-time.After(5 * time.Second):
			t.Fatal("stream did not close")
		}
	}
}

func TestStream_ConcludedDiscussionReplaysEverything(t *testing.T) {
	f := forum.New("t-1", "q", "alice", 3, true, forum.Options{})
	require.NoError(t, f.SetStatus(models.StatusDiscussing))
	f.SetCurrentRound(1)
	_, err := f.Publish("a", "first", nil)
	require.NoError(t, err)
	_, err = f.Publish("b", "second", nil)
	require.NoError(t, err)
	f.SetConclusion("the answer")
	require.NoError(t, f.SetStatus(models.StatusConcluded))

	messages := collect(t, Stream(context.Background(), f, 10*time.Millisecond))
	require.Len(t, messages, 5)
	assert.Equal(t, Message{Event: "round", Data: "round 1"}, messages[0])
	assert.Equal(t, Message{Event: "post", Data: "#1 [a] first"}, messages[1])
	assert.Equal(t, Message{Event: "post", Data: "#2 [b] second"}, messages[2])
	assert.Equal(t, Message{Event: "conclude", Data: "the answer"}, messages[3])
	assert.Equal(t, doneMarker, messages[4])
}

func TestStream_LivePostsEmittedExactlyOnce(t *testing.T) {
	f := forum.New("t-1", "q", "alice", 3, true, forum.Options{})
	require.NoError(t, f.SetStatus(models.StatusDiscussing))
	f.SetCurrentRound(1)

	ch := Stream(context.Background(), f, 10*time.Millisecond)

	_, err := f.Publish("a", "first", nil)
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	f.SetCurrentRound(2)
	_, err = f.Publish("b", "second", nil)
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	f.SetConclusion("done deal")
	require.NoError(t, f.SetStatus(models.StatusConcluded))

	messages := collect(t, ch)

	var posts, rounds []string
	for _, msg := range messages {
		switch msg.Event {
		case "post":
			posts = append(posts, msg.Data)
		case "round":
			rounds = append(rounds, msg.Data)
		}
	}
	assert.Equal(t, []string{"#1 [a] first", "#2 [b] second"}, posts,
		"each post appears exactly once, in order")
	assert.Equal(t, []string{"round 1", "round 2"}, rounds)
	assert.Equal(t, doneMarker, messages[len(messages)-1])
}

func TestStream_RoundHeadersGapless(t *testing.T) {
	f := forum.New("t-1", "q", "alice", 5, true, forum.Options{})
	require.NoError(t, f.SetStatus(models.StatusDiscussing))
	_, err := f.Publish("a", "early", nil)
	require.NoError(t, err)
	// Several rounds elapse between polls.
	f.SetCurrentRound(3)
	_, err = f.Publish("b", "late", nil)
	require.NoError(t, err)
	f.SetConclusion("done")
	require.NoError(t, f.SetStatus(models.StatusConcluded))

	messages := collect(t, Stream(context.Background(), f, 10*time.Millisecond))

	var rounds []string
	for _, msg := range messages {
		if msg.Event == "round" {
			rounds = append(rounds, msg.Data)
		}
	}
	assert.Equal(t, []string{"round 1", "round 2", "round 3"}, rounds,
		"every round gets a header even when polls skip over transitions")
}

func TestStream_ExecutionModeEmitsCoarseEvents(t *testing.T) {
	f := forum.New("t-1", "q", "alice", 3, false, forum.Options{})
	require.NoError(t, f.SetStatus(models.StatusDiscussing))
	f.AppendTimeline(models.EventRound, "", "round 1 of 3")
	f.AppendTimeline(models.EventAgentCall, "worker", "")
	f.AppendTimeline(models.EventVote, "worker", "never surfaced")
	f.AppendTimeline(models.EventAgentDone, "worker", "")
	_, err := f.Publish("worker", "raw output", nil)
	require.NoError(t, err)
	f.SetConclusion("summary")
	require.NoError(t, f.SetStatus(models.StatusConcluded))

	messages := collect(t, Stream(context.Background(), f, 10*time.Millisecond))

	var kinds []string
	for _, msg := range messages {
		kinds = append(kinds, msg.Event)
		assert.NotEqual(t, "post", msg.Event, "execution mode never streams posts")
		if msg.Event == "event" {
			assert.NotContains(t, msg.Data, "never surfaced")
		}
	}
	assert.Contains(t, kinds, "event")
	assert.Equal(t, "done", kinds[len(kinds)-1])
}

func TestStream_ClientDisconnectStopsStream(t *testing.T) {
	f := forum.New("t-1", "q", "alice", 3, true, forum.Options{})
	require.NoError(t, f.SetStatus(models.StatusDiscussing))

	ctx, cancel := context.WithCancel(context.Background())
	ch := Stream(ctx, f, 10*time.Millisecond)
	cancel()

	select {
	case _, ok := <-ch:
		for ok {
			_, ok = <-ch
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not stop after cancel")
	}
}
