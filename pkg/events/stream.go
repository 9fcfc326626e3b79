// Package events turns a live forum into an ordered message stream suitable
// for SSE bridging. The stream is poll-based: it reads the forum at a fixed
// interval and emits only what is new, so each post appears exactly once in
// append order.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/codeready-toolchain/oasis/pkg/forum"
	"github.com/codeready-toolchain/oasis/pkg/models"
)

// DefaultInterval is the poll period when none is given.
const DefaultInterval = time.Second

// Message is one streamed update.
type Message struct {
	// Event discriminates the payload: "round", "post", "event",
	// "conclude", or "done".
	Event string `json:"event"`
	Data  string `json:"data"`
}

// doneMarker terminates every stream.
var doneMarker = Message{Event: "done", Data: "[DONE]"}

// coarseEvents are the timeline kinds surfaced in execution mode.
var coarseEvents = map[models.EventKind]bool{
	models.EventStart:     true,
	models.EventRound:     true,
	models.EventAgentCall: true,
	models.EventAgentDone: true,
	models.EventConclude:  true,
}

// Stream emits updates for one topic until it reaches a terminal state, then
// a conclusion message and the done marker, and closes the channel. The
// caller cancels ctx to stop early (client disconnect).
//
// Discussion mode emits per-round headers and one message per new post.
// Execution mode emits the coarse timeline events instead.
func Stream(ctx context.Context, f *forum.Forum, interval time.Duration) <-chan Message {
	if interval <= 0 {
		interval = DefaultInterval
	}
	out := make(chan Message, 16)
	go func() {
		defer close(out)
		run(ctx, f, interval, out)
	}()
	return out
}

func run(ctx context.Context, f *forum.Forum, interval time.Duration, out chan<- Message) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastRound, lastPost, lastEvent int
	for {
		status := f.Status()

		if f.Discussion() {
			lastRound, lastPost = emitPosts(ctx, f, out, lastRound, lastPost)
		} else {
			lastEvent = emitTimeline(ctx, f, out, lastEvent)
		}
		if ctx.Err() != nil {
			return
		}

		// Status was read before the drain, so anything appended between
		// the terminal transition and the drain has already been emitted.
		if status.Terminal() {
			if conclusion := f.Conclusion(); conclusion != "" {
				if !send(ctx, out, Message{Event: "conclude", Data: conclusion}) {
					return
				}
			}
			send(ctx, out, doneMarker)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// emitPosts sends a header for every not-yet-announced round and every
// not-yet-seen post. Headers stay gapless even when one poll spans several
// round transitions.
func emitPosts(ctx context.Context, f *forum.Forum, out chan<- Message, lastRound, lastPost int) (int, int) {
	for r := lastRound + 1; r <= f.CurrentRound(); r++ {
		if !send(ctx, out, Message{Event: "round", Data: fmt.Sprintf("round %d", r)}) {
			return lastRound, lastPost
		}
		lastRound = r
	}
	for _, post := range f.Browse()[lastPost:] {
		data := fmt.Sprintf("#%d [%s] %s", post.ID, post.Author, post.Content)
		if !send(ctx, out, Message{Event: "post", Data: data}) {
			return lastRound, lastPost
		}
		lastPost = post.ID
	}
	return lastRound, lastPost
}

// emitTimeline sends every not-yet-seen coarse timeline event.
func emitTimeline(ctx context.Context, f *forum.Forum, out chan<- Message, lastEvent int) int {
	timeline := f.Timeline()
	for i := lastEvent; i < len(timeline); i++ {
		ev := timeline[i]
		if coarseEvents[ev.Event] {
			data := string(ev.Event)
			if ev.Agent != "" {
				data += " " + ev.Agent
			}
			if ev.Detail != "" {
				data += ": " + ev.Detail
			}
			if !send(ctx, out, Message{Event: "event", Data: data}) {
				return i
			}
		}
		lastEvent = i + 1
	}
	return lastEvent
}

func send(ctx context.Context, out chan<- Message, msg Message) bool {
	select {
	case out <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}
