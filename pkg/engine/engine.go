// Package engine drives one topic: the round loop over the schedule, step
// dispatch and fan-out, cooperative cancellation, consensus early-stop, and
// final summarization.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/codeready-toolchain/oasis/pkg/experts"
	"github.com/codeready-toolchain/oasis/pkg/forum"
	"github.com/codeready-toolchain/oasis/pkg/models"
	"github.com/codeready-toolchain/oasis/pkg/schedule"
)

// CancelledConclusion is the conclusion written when a topic is cancelled.
const CancelledConclusion = "discussion cancelled by user"

// Options configures one engine instance.
type Options struct {
	// EarlyStop enables the consensus check in discussion mode.
	EarlyStop bool

	// Summarizer produces the conclusion. Required.
	Summarizer *Summarizer
}

// Engine orchestrates one topic from pending to a terminal state.
type Engine struct {
	forum      *forum.Forum
	sched      *schedule.Schedule
	pool       *experts.Pool
	earlyStop  bool
	summarizer *Summarizer
}

// New builds an engine over an already-resolved pool.
func New(f *forum.Forum, sched *schedule.Schedule, pool *experts.Pool, opts Options) *Engine {
	return &Engine{
		forum:      f,
		sched:      sched,
		pool:       pool,
		earlyStop:  opts.EarlyStop,
		summarizer: opts.Summarizer,
	}
}

// Run executes the schedule until completion, cancellation, or a fatal
// error, leaving the topic in a terminal state. It is the body of the
// topic's driver goroutine and always returns the terminal status.
func (e *Engine) Run(ctx context.Context) (status models.Status) {
	defer func() {
		if r := recover(); r != nil {
			status = e.fail(fmt.Sprintf("%v", r))
		}
	}()

	if err := e.forum.SetStatus(models.StatusDiscussing); err != nil {
		slog.Warn("Topic is not startable", "topic_id", e.forum.TopicID(), "error", err)
		return e.forum.Status()
	}
	e.forum.AppendTimeline(models.EventStart, "", e.forum.Question())
	direct, session, external := e.pool.Counts()
	slog.Info("Topic started",
		"topic_id", e.forum.TopicID(),
		"steps", len(e.sched.Steps),
		"repeat", e.sched.Repeat,
		"direct_agents", direct,
		"session_agents", session,
		"external_agents", external)

	var cancelled bool
	if e.sched.Repeat {
		cancelled = e.runRepeating(ctx)
	} else {
		cancelled = e.runStepwise(ctx)
	}
	if cancelled {
		return e.cancel()
	}

	return e.conclude(ctx)
}

// runRepeating replays the step list once per round up to max_rounds,
// checking consensus at the end of every round from the second on.
// Returns true when cancellation was observed.
func (e *Engine) runRepeating(ctx context.Context) bool {
	maxRounds := e.forum.MaxRounds()
	for round := 1; round <= maxRounds; round++ {
		if ctx.Err() != nil {
			return true
		}
		e.forum.SetCurrentRound(round)
		e.forum.AppendTimeline(models.EventRound, "", fmt.Sprintf("round %d/%d", round, maxRounds))

		for _, step := range e.sched.Steps {
			if ctx.Err() != nil {
				return true
			}
			e.executeStep(ctx, step)
		}

		if e.earlyStop && round >= 2 && e.consensusReached() {
			slog.Info("Consensus reached, stopping early",
				"topic_id", e.forum.TopicID(), "round", round)
			e.forum.AppendTimeline(models.EventRound, "", "consensus reached, stopping early")
			break
		}
	}
	return false
}

// runStepwise executes the step list exactly once; each step counts as one
// round. Consensus is checked from the second step on.
func (e *Engine) runStepwise(ctx context.Context) bool {
	e.forum.SetMaxRounds(len(e.sched.Steps))
	for i, step := range e.sched.Steps {
		if ctx.Err() != nil {
			return true
		}
		e.forum.SetCurrentRound(i + 1)
		e.forum.AppendTimeline(models.EventRound, "", fmt.Sprintf("step %d/%d", i+1, len(e.sched.Steps)))

		e.executeStep(ctx, step)

		if e.earlyStop && i >= 1 && e.consensusReached() {
			slog.Info("Consensus reached, stopping early",
				"topic_id", e.forum.TopicID(), "step", i+1)
			e.forum.AppendTimeline(models.EventRound, "", "consensus reached, stopping early")
			break
		}
	}
	return false
}

// executeStep dispatches one step. Agent failures are local: they are logged
// and recorded on the timeline but never fail the step.
func (e *Engine) executeStep(ctx context.Context, step schedule.Step) {
	switch step.Type {
	case schedule.StepManual:
		replyTo := step.Manual.ReplyTo
		if _, err := e.forum.Publish(step.Manual.Author, step.Manual.Content, replyTo); err != nil {
			slog.Warn("Manual injection rejected",
				"topic_id", e.forum.TopicID(), "author", step.Manual.Author, "error", err)
			e.forum.AppendTimeline(models.EventError, step.Manual.Author, err.Error())
		}

	case schedule.StepExpert:
		agent, ok := e.pool.Lookup(step.Expert.Name)
		if !ok {
			slog.Warn("Schedule references unknown agent, skipping step",
				"topic_id", e.forum.TopicID(), "name", step.Expert.Name)
			return
		}
		e.dispatch(ctx, agent, step.Expert.Instruction)

	case schedule.StepParallel:
		var agents []experts.Agent
		var instructions []string
		for _, member := range step.Members {
			agent, ok := e.pool.Lookup(member.Name)
			if !ok {
				slog.Warn("Schedule references unknown agent, skipping member",
					"topic_id", e.forum.TopicID(), "name", member.Name)
				continue
			}
			agents = append(agents, agent)
			instructions = append(instructions, member.Instruction)
		}
		e.fanOut(ctx, agents, instructions)

	case schedule.StepAll:
		instructions := make([]string, len(e.pool.Agents))
		for i := range instructions {
			instructions[i] = step.Instruction
		}
		e.fanOut(ctx, e.pool.Agents, instructions)
	}
}

// fanOut runs every agent concurrently and waits for the last to return.
func (e *Engine) fanOut(ctx context.Context, agents []experts.Agent, instructions []string) {
	var wg sync.WaitGroup
	for i, agent := range agents {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(a experts.Agent, instruction string) {
			defer wg.Done()
			e.dispatch(ctx, a, instruction)
		}(agent, instructions[i])
	}
	wg.Wait()
}

// dispatch runs one participate call. The agent already records its own
// error timeline event; this only logs. A panicking agent must not take the
// process down since fan-out goroutines are outside the driver's recover.
func (e *Engine) dispatch(ctx context.Context, agent experts.Agent, instruction string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Agent panicked",
				"topic_id", e.forum.TopicID(),
				"agent", agent.DisplayName(),
				"panic", r)
			e.forum.AppendTimeline(models.EventError, agent.DisplayName(), fmt.Sprintf("%v", r))
		}
	}()
	if err := agent.Participate(ctx, e.forum, instruction); err != nil {
		slog.Warn("Agent participation failed",
			"topic_id", e.forum.TopicID(),
			"agent", agent.DisplayName(),
			"kind", agent.Kind(),
			"error", err)
	}
}

// consensusReached holds when the top-ranked post carries upvotes from at
// least 70% of the pool. Only meaningful in discussion mode; execution-mode
// topics always run to the last scheduled step.
func (e *Engine) consensusReached() bool {
	if !e.forum.Discussion() || e.pool.Size() == 0 {
		return false
	}
	top := e.forum.TopPosts(1)
	if len(top) == 0 {
		return false
	}
	needed := (e.pool.Size()*7 + 9) / 10
	return top[0].Upvotes >= needed
}

// conclude summarizes the forum and marks the topic concluded. Summarization
// runs detached from the driver context so a late cancel cannot strand a
// finished discussion without a conclusion.
func (e *Engine) conclude(ctx context.Context) models.Status {
	text, err := e.summarizer.Summarize(context.WithoutCancel(ctx), e.forum)
	if err != nil {
		slog.Warn("Summarization failed",
			"topic_id", e.forum.TopicID(), "error", err)
		text = "summary failed: " + err.Error()
	}
	e.forum.SetConclusion(text)
	if err := e.forum.SetStatus(models.StatusConcluded); err != nil {
		slog.Warn("Failed to conclude topic", "topic_id", e.forum.TopicID(), "error", err)
		return e.forum.Status()
	}
	e.forum.AppendTimeline(models.EventConclude, "", "")
	slog.Info("Topic concluded",
		"topic_id", e.forum.TopicID(),
		"posts", e.forum.PostCount(),
		"rounds", e.forum.CurrentRound())
	return models.StatusConcluded
}

// cancel writes the standard cancellation note and marks the topic cancelled.
func (e *Engine) cancel() models.Status {
	e.forum.SetConclusion(CancelledConclusion)
	if err := e.forum.SetStatus(models.StatusCancelled); err != nil {
		slog.Warn("Failed to cancel topic", "topic_id", e.forum.TopicID(), "error", err)
		return e.forum.Status()
	}
	e.forum.AppendTimeline(models.EventCancel, "", CancelledConclusion)
	slog.Info("Topic cancelled", "topic_id", e.forum.TopicID())
	return models.StatusCancelled
}

// fail records a fatal engine error as the conclusion and marks the topic
// errored.
func (e *Engine) fail(message string) models.Status {
	slog.Error("Topic failed", "topic_id", e.forum.TopicID(), "error", message)
	e.forum.SetConclusion(message)
	if err := e.forum.SetStatus(models.StatusError); err != nil {
		slog.Warn("Failed to mark topic errored", "topic_id", e.forum.TopicID(), "error", err)
		return e.forum.Status()
	}
	e.forum.AppendTimeline(models.EventError, "", message)
	return models.StatusError
}
