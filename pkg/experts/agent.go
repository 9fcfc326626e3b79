// Package experts resolves schedule names to concrete agents and implements
// the four agent variants: stateless direct LLM, oasis-managed stateful
// session, externally-owned regular session, and external OpenAI-compatible
// endpoint.
//
// All variants share one contract: read the current forum, produce at most
// one new post authored by themselves. A failed underlying call records an
// error timeline event and publishes nothing; it never fails the step.
package experts

import (
	"context"
	"fmt"
	"time"

	"github.com/codeready-toolchain/oasis/pkg/forum"
	"github.com/codeready-toolchain/oasis/pkg/models"
)

// Kind discriminates the agent variants.
type Kind string

const (
	KindDirect         Kind = "direct"
	KindOasisSession   Kind = "oasis_session"
	KindRegularSession Kind = "regular_session"
	KindExternal       Kind = "external"
)

// Agent is a resolved discussion participant.
type Agent interface {
	// DisplayName is the author name used on published posts.
	DisplayName() string
	Kind() Kind
	// Participate reads the forum and publishes at most one post.
	// Returns a non-nil error only for logging; the step always continues.
	Participate(ctx context.Context, f *forum.Forum, instruction string) error
}

// producer turns the rendered prompt into raw reply text. Each variant
// supplies its own transport.
type producer func(ctx context.Context, prompt string) (string, error)

// speak is the shared participate path: render the prompt, call the
// variant's transport under its timeout, parse the reply leniently, publish,
// and apply any votes. Failures record an error timeline event and publish
// nothing.
func speak(ctx context.Context, f *forum.Forum, name string, window int, instruction string, timeout time.Duration, produce producer) error {
	f.AppendTimeline(models.EventAgentCall, name, "")

	prompt := BuildPrompt(f, window, instruction)

	// Cancellation is cooperative: the engine stops dispatching at step
	// boundaries, but a call already in flight runs to completion (bounded by
	// its timeout) and may still publish.
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	text, err := produce(callCtx, prompt)
	if err != nil {
		f.AppendTimeline(models.EventError, name, err.Error())
		return fmt.Errorf("agent %s: %w", name, err)
	}

	reply := ParseReply(text, f.Discussion())
	if _, err := f.Publish(name, reply.Content, reply.ReplyTo); err != nil {
		f.AppendTimeline(models.EventError, name, err.Error())
		return fmt.Errorf("agent %s: %w", name, err)
	}
	if len(reply.Votes) > 0 {
		f.ApplyVotes(name, reply.Votes)
	}

	f.AppendTimeline(models.EventAgentDone, name, "")
	return nil
}
