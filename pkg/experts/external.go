package experts

import (
	"context"
	"time"

	"github.com/codeready-toolchain/oasis/pkg/forum"
	"github.com/codeready-toolchain/oasis/pkg/llm"
)

// ExternalExpert calls an external OpenAI-compatible chat endpoint. The
// endpoint is assumed stateful on its own side, so only the current forum
// view is sent — never accumulated history.
type ExternalExpert struct {
	name       string
	tag        string
	persona    string
	externalID string

	client  llm.Client
	timeout time.Duration
	window  int
}

func (e *ExternalExpert) DisplayName() string { return e.name }
func (e *ExternalExpert) Kind() Kind          { return KindExternal }

// ExternalID exposes the external id for alias registration.
func (e *ExternalExpert) ExternalID() string { return e.externalID }

// Participate sends the forum view to the external endpoint.
func (e *ExternalExpert) Participate(ctx context.Context, f *forum.Forum, instruction string) error {
	return speak(ctx, f, e.name, e.window, instruction, e.timeout, func(ctx context.Context, prompt string) (string, error) {
		messages := []llm.Message{}
		if e.persona != "" {
			messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: e.persona})
		}
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: prompt})
		return e.client.Complete(ctx, llm.CompletionRequest{Messages: messages})
	})
}
