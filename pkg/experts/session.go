package experts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/codeready-toolchain/oasis/pkg/forum"
)

// SessionClient is the bot-runtime surface session experts depend on.
// Implemented by bot.Client.
type SessionClient interface {
	Ask(ctx context.Context, owner, sessionID, message, persona string) (string, error)
}

// SessionExpert is a stateful variant backed by the sibling bot runtime,
// addressed by (owner, session id). The runtime persists conversation
// history across rounds and creates unknown sessions lazily.
//
// Oasis-managed sessions ("#oasis#" ids) inject the persona as a system
// prompt on the first call; regular sessions never do — their own
// configuration governs the agent's identity.
type SessionExpert struct {
	name      string
	tag       string
	persona   string
	owner     string
	sessionID string
	oasis     bool

	client  SessionClient
	timeout time.Duration
	window  int

	mu      sync.Mutex
	started bool
}

func (e *SessionExpert) DisplayName() string { return e.name }

func (e *SessionExpert) Kind() Kind {
	if e.oasis {
		return KindOasisSession
	}
	return KindRegularSession
}

// SessionID exposes the session identifier for alias registration.
func (e *SessionExpert) SessionID() string { return e.sessionID }

// Participate sends the forum view into the session and publishes the reply.
func (e *SessionExpert) Participate(ctx context.Context, f *forum.Forum, instruction string) error {
	return speak(ctx, f, e.name, e.window, instruction, e.timeout, func(ctx context.Context, prompt string) (string, error) {
		if e.client == nil {
			return "", fmt.Errorf("no bot runtime configured for session %s", e.sessionID)
		}
		persona := ""
		if e.oasis && e.persona != "" {
			e.mu.Lock()
			if !e.started {
				persona = e.persona
			}
			e.mu.Unlock()
		}
		text, err := e.client.Ask(ctx, e.owner, e.sessionID, prompt, persona)
		if err == nil {
			e.mu.Lock()
			e.started = true
			e.mu.Unlock()
		}
		return text, err
	})
}
