package experts

import (
	"context"
	"time"

	"github.com/codeready-toolchain/oasis/pkg/forum"
	"github.com/codeready-toolchain/oasis/pkg/llm"
)

// DirectExpert is the stateless variant: every call builds the full prompt
// from scratch and issues one completion. Nothing persists between rounds.
// The instance number only distinguishes otherwise identical handles in a
// pool; it has no behavioral effect.
type DirectExpert struct {
	name        string
	tag         string
	persona     string
	instance    int
	temperature float64

	client  llm.Client
	timeout time.Duration
	window  int
}

func (e *DirectExpert) DisplayName() string { return e.name }
func (e *DirectExpert) Kind() Kind          { return KindDirect }

// Participate builds the forum prompt and publishes one completion.
func (e *DirectExpert) Participate(ctx context.Context, f *forum.Forum, instruction string) error {
	return speak(ctx, f, e.name, e.window, instruction, e.timeout, func(ctx context.Context, prompt string) (string, error) {
		messages := []llm.Message{}
		if e.persona != "" {
			messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: e.persona})
		}
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: prompt})
		return e.client.Complete(ctx, llm.CompletionRequest{
			Messages:    messages,
			Temperature: e.temperature,
		})
	})
}
