package llm

import (
	"errors"
	"fmt"
)

// ErrLLM is wrapped by every failure surfaced from an LLM call (network,
// HTTP status, decode). Agent failures built on it stay local to the agent.
var ErrLLM = errors.New("llm call failed")

// HTTPError carries a non-200 response from a chat endpoint.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("llm endpoint returned HTTP %d: %s", e.Status, e.Body)
}

func (e *HTTPError) Unwrap() error { return ErrLLM }
