// Package bot is the client for the sibling bot-session runtime that backs
// stateful session experts. Sessions are created lazily on the runtime side:
// asking an unknown session id creates it.
package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrSession is wrapped by every failure surfaced from the session runtime.
var ErrSession = errors.New("bot session call failed")

// Client talks to the bot runtime's chat API.
type Client struct {
	baseURL       string
	internalToken string
	client        *http.Client
}

// NewClient creates a bot-session client. timeout bounds each Ask call;
// session calls run longer than direct LLM calls because the runtime may
// execute tools.
func NewClient(baseURL, internalToken string, timeout time.Duration) *Client {
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		internalToken: internalToken,
		client:        &http.Client{Timeout: timeout},
	}
}

// askRequest is the runtime's chat request body.
type askRequest struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
	// SystemPrompt is injected only on the first call of an oasis-managed
	// session; empty otherwise.
	SystemPrompt string `json:"system_prompt,omitempty"`
}

type askResponse struct {
	Text  string `json:"text"`
	Error string `json:"error"`
}

// Ask sends one message into the session identified by (owner, sessionID)
// and returns the reply. A non-empty persona is injected as the session's
// system prompt (first oasis-session call only; callers decide).
func (c *Client) Ask(ctx context.Context, owner, sessionID, message, persona string) (string, error) {
	payload, err := json.Marshal(askRequest{
		UserID:       owner,
		SessionID:    sessionID,
		Text:         message,
		SystemPrompt: persona,
	})
	if err != nil {
		return "", fmt.Errorf("%w: marshal request: %v", ErrSession, err)
	}

	url := c.baseURL + "/chat"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: create request: %v", ErrSession, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.internalToken != "" {
		req.Header.Set("X-Internal-Token", c.internalToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSession, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("%w: HTTP %d: %s", ErrSession, resp.StatusCode, string(raw))
	}

	var parsed askResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrSession, err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrSession, parsed.Error)
	}
	return parsed.Text, nil
}
