package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/codeready-toolchain/oasis/pkg/models"
)

// CallbackClient delivers the completion notification a topic creator may
// request. Delivery failures are logged only; they never affect topic state.
type CallbackClient struct {
	httpClient    *http.Client
	internalToken string
}

// NewCallbackClient builds a callback client. The token, when non-empty, is
// sent as X-Internal-Token so receivers can authenticate the service.
func NewCallbackClient(token string, timeout time.Duration) *CallbackClient {
	return &CallbackClient{
		httpClient:    &http.Client{Timeout: timeout},
		internalToken: token,
	}
}

// completionNotice is the POST body sent to the on-complete URL.
type completionNotice struct {
	UserID  string `json:"user_id"`
	TopicID string `json:"topic_id"`
	Status  string `json:"status"`
	Text    string `json:"text"`
}

// Notify posts the terminal status and conclusion to the given URL.
func (c *CallbackClient) Notify(ctx context.Context, url, owner, topicID string, status models.Status, conclusion string) {
	body, err := json.Marshal(completionNotice{
		UserID:  owner,
		TopicID: topicID,
		Status:  string(status),
		Text:    conclusion,
	})
	if err != nil {
		slog.Warn("Failed to encode completion callback", "topic_id", topicID, "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		slog.Warn("Failed to build completion callback", "topic_id", topicID, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if c.internalToken != "" {
		req.Header.Set("X-Internal-Token", c.internalToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Warn("Completion callback failed", "topic_id", topicID, "url", url, "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		slog.Warn("Completion callback rejected",
			"topic_id", topicID, "url", url, "status", fmt.Sprintf("%d", resp.StatusCode))
		return
	}
	slog.Info("Completion callback delivered", "topic_id", topicID, "url", url)
}
