package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/oasis/pkg/config"
	"github.com/codeready-toolchain/oasis/pkg/experts"
	"github.com/codeready-toolchain/oasis/pkg/forum"
	"github.com/codeready-toolchain/oasis/pkg/llm"
	"github.com/codeready-toolchain/oasis/pkg/models"
	"github.com/codeready-toolchain/oasis/pkg/schedule"
)

// fakeLLM answers every completion with a fixed text. Safe for concurrent
// fan-out.
type fakeLLM struct {
	mu    sync.Mutex
	text  string
	err   error
	calls int
}

func (f *fakeLLM) Complete(_ context.Context, _ llm.CompletionRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type stubPresets map[string]config.Preset

func (s stubPresets) LookupByTag(tag, owner string) (config.Preset, bool) {
	p, ok := s[tag]
	return p, ok
}

type testTopic struct {
	forum  *forum.Forum
	engine *Engine
}

// newTestTopic builds a forum, pool, and engine over a stub LLM. Early stop
// is always enabled; whether it can fire depends on discussion mode and the
// votes the stub emits.
func newTestTopic(t *testing.T, source string, maxRounds int, discussion bool, client llm.Client) *testTopic {
	t.Helper()
	sched, err := schedule.Parse(source)
	require.NoError(t, err)

	f := forum.New("t-1", "the question", "alice", maxRounds, discussion, forum.Options{})
	pool := experts.Resolve(sched, experts.Deps{
		Owner:   "alice",
		Presets: stubPresets{"creative": {Tag: "creative", Name: "Creator", Persona: "wild"}},
		LLM:     client,
		Window:  10,
	})
	eng := New(f, sched, pool, Options{
		EarlyStop:  true,
		Summarizer: NewSummarizer(client, "", time.Second),
	})
	return &testTopic{forum: f, engine: eng}
}

func TestRun_SingleDirectAgentSingleRound(t *testing.T) {
	client := &fakeLLM{text: "IDEA-A"}
	topic := newTestTopic(t, `
version: 1
repeat: true
plan:
  - expert: creative#temp#1
`, 1, true, client)

	status := topic.engine.Run(context.Background())
	assert.Equal(t, models.StatusConcluded, status)

	posts := topic.forum.Browse()
	require.Len(t, posts, 1)
	assert.Equal(t, 1, posts[0].ID)
	assert.Equal(t, "Creator", posts[0].Author)
	assert.Contains(t, posts[0].Content, "IDEA-A")

	assert.Equal(t, models.StatusConcluded, topic.forum.Status())
	assert.NotEmpty(t, topic.forum.Conclusion())
	assert.Equal(t, 1, topic.forum.CurrentRound())
}

func TestRun_ParallelFanOutPreservesStepBoundary(t *testing.T) {
	client := &fakeLLM{text: "contribution"}
	topic := newTestTopic(t, `
version: 1
repeat: false
plan:
  - parallel:
      - a#temp#1
      - b#temp#1
  - expert: c#temp#1
`, 5, true, client)

	status := topic.engine.Run(context.Background())
	require.Equal(t, models.StatusConcluded, status)

	posts := topic.forum.Browse()
	require.Len(t, posts, 3)
	parallelAuthors := []string{posts[0].Author, posts[1].Author}
	assert.ElementsMatch(t, []string{"a", "b"}, parallelAuthors,
		"posts 1 and 2 belong to the parallel step in either order")
	assert.Equal(t, "c", posts[2].Author, "the next step's post always follows")

	// Step-wise execution pins the round counters to the step count.
	assert.Equal(t, 2, topic.forum.MaxRounds())
	assert.Equal(t, topic.forum.MaxRounds(), topic.forum.CurrentRound())
}

func TestRun_ConsensusEarlyStop(t *testing.T) {
	// Every agent upvotes post 1; the check only fires from round 2 on.
	client := &fakeLLM{text: `{"content": "x", "votes": [{"post_id": 1, "vote": "up"}]}`}
	topic := newTestTopic(t, `
version: 1
repeat: true
plan:
  - parallel:
      - a#temp#1
      - b#temp#1
      - c#temp#1
      - d#temp#1
`, 5, true, client)

	status := topic.engine.Run(context.Background())
	require.Equal(t, models.StatusConcluded, status)

	// ceil(0.7 * 4) = 3 upvotes are reached during round 1 already, but the
	// topic still runs round 2 before stopping.
	assert.Equal(t, 2, topic.forum.CurrentRound())
	assert.Len(t, topic.forum.Browse(), 8)
}

func TestRun_ConsensusNeverStopsInExecutionMode(t *testing.T) {
	client := &fakeLLM{text: "output"}
	topic := newTestTopic(t, `
version: 1
repeat: true
plan:
  - expert: a#temp#1
`, 3, false, client)

	topic.engine.Run(context.Background())
	assert.Equal(t, 3, topic.forum.CurrentRound(), "execution mode runs every round")
	assert.Len(t, topic.forum.Browse(), 3)
}

func TestRun_StepwiseEarlyStopFromSecondStep(t *testing.T) {
	client := &fakeLLM{text: `{"content": "x", "votes": [{"post_id": 1, "vote": "up"}]}`}
	topic := newTestTopic(t, `
version: 1
repeat: false
plan:
  - expert: a#temp#1
  - all_experts: true
  - all_experts: true
`, 9, true, client)

	topic.engine.Run(context.Background())

	// Pool of one: a single upvote is consensus, but step-wise execution
	// never stops before the second step.
	assert.Equal(t, 2, topic.forum.CurrentRound())
	assert.Equal(t, 3, topic.forum.MaxRounds())
	assert.Len(t, topic.forum.Browse(), 2)
}

func TestRun_ManualInjectionAndReplyTo(t *testing.T) {
	client := &fakeLLM{text: `{"content": "noted", "reply_to": 1, "votes": []}`}
	topic := newTestTopic(t, `
version: 1
repeat: false
plan:
  - manual:
      author: host
      content: rule
  - expert: x#temp#1
`, 5, true, client)

	status := topic.engine.Run(context.Background())
	require.Equal(t, models.StatusConcluded, status)

	posts := topic.forum.Browse()
	require.Len(t, posts, 2)
	assert.Equal(t, "host", posts[0].Author)
	assert.Equal(t, "rule", posts[0].Content)
	require.NotNil(t, posts[1].ReplyTo)
	assert.Equal(t, 1, *posts[1].ReplyTo)
}

func TestRun_ManualDanglingReplyToRejected(t *testing.T) {
	client := &fakeLLM{text: "x"}
	topic := newTestTopic(t, `
version: 1
repeat: false
plan:
  - manual:
      author: host
      content: rule
      reply_to: 99
`, 5, true, client)

	status := topic.engine.Run(context.Background())
	assert.Equal(t, models.StatusConcluded, status, "a rejected injection is local")
	assert.Empty(t, topic.forum.Browse(), "the dangling reply is not published")

	var sawError bool
	for _, ev := range topic.forum.Timeline() {
		if ev.Event == models.EventError {
			sawError = true
		}
	}
	assert.True(t, sawError)
}

func TestRun_UnknownAgentSkipsStep(t *testing.T) {
	client := &fakeLLM{text: "x"}
	topic := newTestTopic(t, `
version: 1
repeat: false
plan:
  - expert: known#temp#1
  - expert: stranger
`, 5, true, client)

	status := topic.engine.Run(context.Background())
	assert.Equal(t, models.StatusConcluded, status)
	assert.Len(t, topic.forum.Browse(), 1, "the unresolvable step is skipped")
}

// gatedLLM blocks each completion until the test releases it. It honors its
// context, so an interrupted call fails the way a real transport would.
type gatedLLM struct {
	started chan struct{}
	release chan struct{}
}

func (g *gatedLLM) Complete(ctx context.Context, _ llm.CompletionRequest) (string, error) {
	g.started <- struct{}{}
	select {
	case <-g.release:
		return "late answer", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestRun_CancelMidRun(t *testing.T) {
	client := &gatedLLM{started: make(chan struct{}, 4), release: make(chan struct{})}
	topic := newTestTopic(t, `
version: 1
repeat: true
plan:
  - expert: a#temp#1
`, 5, true, client)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan models.Status, 1)
	go func() { done <- topic.engine.Run(ctx) }()

	// Cancel while the round-1 call is in flight, then let it finish.
	<-client.started
	cancel()
	close(client.release)

	select {
	case status := <-done:
		assert.Equal(t, models.StatusCancelled, status)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop after cancel")
	}

	assert.Len(t, topic.forum.Browse(), 1,
		"cancellation is cooperative: the in-flight call completes and publishes")
	assert.Equal(t, models.StatusCancelled, topic.forum.Status())
	assert.Equal(t, CancelledConclusion, topic.forum.Conclusion())
}

func TestRun_AgentFailureIsLocal(t *testing.T) {
	client := &fakeLLM{err: errors.New("llm down")}
	topic := newTestTopic(t, `
version: 1
repeat: false
plan:
  - manual:
      author: host
      content: still here
  - expert: a#temp#1
`, 5, true, client)

	status := topic.engine.Run(context.Background())
	assert.Equal(t, models.StatusConcluded, status)
	require.Len(t, topic.forum.Browse(), 1)
	assert.Equal(t, "host", topic.forum.Browse()[0].Author)
	assert.Contains(t, topic.forum.Conclusion(), "summary failed:",
		"summarization shares the broken client")
}

func TestRun_RepeatBudgetBound(t *testing.T) {
	client := &fakeLLM{text: "x"}
	topic := newTestTopic(t, `
version: 1
repeat: true
plan:
  - expert: a#temp#1
  - expert: a#temp#1
`, 3, true, client)

	topic.engine.Run(context.Background())
	assert.Len(t, topic.forum.Browse(), 6,
		"max_rounds passes over the step list, one post per dispatch")
}
