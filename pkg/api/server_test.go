package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/oasis/pkg/config"
	"github.com/codeready-toolchain/oasis/pkg/llm"
	"github.com/codeready-toolchain/oasis/pkg/registry"
	"github.com/codeready-toolchain/oasis/pkg/storage"
)

const testPlan = "version: 1\nrepeat: true\nplan:\n  - expert: creative#temp#1\n"

// fixedLLM answers every completion with the same text.
type fixedLLM struct{ text string }

func (f *fixedLLM) Complete(_ context.Context, _ llm.CompletionRequest) (string, error) {
	return f.text, nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	presets, err := config.NewPresetStore([]config.Preset{
		{Tag: "creative", Name: "Creator", Persona: "wild"},
	}, filepath.Join(t.TempDir(), "user_experts.json"))
	require.NoError(t, err)

	cfg := &config.Config{
		DataDir: t.TempDir(),
		Defaults: &config.Defaults{
			MaxRounds:     1,
			EarlyStop:     true,
			Discussion:    true,
			TopPostWindow: 10,
		},
		Timeouts: &config.Timeouts{
			Agent:    time.Second,
			Session:  time.Second,
			Summary:  time.Second,
			Callback: time.Second,
		},
		Presets: presets,
	}

	store, err := storage.NewStore(t.TempDir())
	require.NoError(t, err)
	workflows, err := storage.NewWorkflowStore(t.TempDir())
	require.NoError(t, err)

	reg := registry.New(registry.Options{
		Config: cfg,
		Store:  store,
		LLM:    &fixedLLM{text: "IDEA-A"},
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		reg.Shutdown(ctx)
	})

	s := NewServer("127.0.0.1:0", reg, presets, workflows)
	server := httptest.NewServer(s.router())
	t.Cleanup(server.Close)
	return server
}

func doJSON(t *testing.T, server *httptest.Server, method, path, user string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, server.URL+path, reader)
	require.NoError(t, err)
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var parsed map[string]any
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &parsed), "body: %s", data)
	}
	return resp, parsed
}

func createTopic(t *testing.T, server *httptest.Server, user string) string {
	t.Helper()
	resp, body := doJSON(t, server, http.MethodPost, "/api/v1/topics", user, jsonBody{
		"question": "which db?",
		"schedule": testPlan,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	topicID, _ := body["topic_id"].(string)
	require.NotEmpty(t, topicID)
	return topicID
}

// jsonBody mirrors gin.H for request bodies without importing gin here.
type jsonBody = map[string]any

func TestHealth_NoIdentityRequired(t *testing.T) {
	server := newTestServer(t)
	resp, body := doJSON(t, server, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
}

func TestAPI_RequiresIdentityHeader(t *testing.T) {
	server := newTestServer(t)
	resp, body := doJSON(t, server, http.MethodGet, "/api/v1/topics", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, body["error"], "X-User-ID")
}

func TestTopics_CreateGetList(t *testing.T) {
	server := newTestServer(t)
	topicID := createTopic(t, server, "alice")

	resp, body := doJSON(t, server, http.MethodGet,
		"/api/v1/topics/"+topicID+"/conclusion?timeout=5s", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["conclusion"])

	resp, body = doJSON(t, server, http.MethodGet, "/api/v1/topics/"+topicID, "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "which db?", body["question"])
	assert.Equal(t, "concluded", body["status"])
	posts, _ := body["posts"].([]any)
	assert.Len(t, posts, 1)

	resp, body = doJSON(t, server, http.MethodGet, "/api/v1/topics", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	topics, _ := body["topics"].([]any)
	assert.Len(t, topics, 1)
}

func TestTopics_ErrorMapping(t *testing.T) {
	server := newTestServer(t)
	topicID := createTopic(t, server, "alice")

	resp, _ := doJSON(t, server, http.MethodGet, "/api/v1/topics/"+topicID, "mallory", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = doJSON(t, server, http.MethodGet, "/api/v1/topics/missing", "alice", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doJSON(t, server, http.MethodPost, "/api/v1/topics", "alice", jsonBody{
		"question": "q",
		"schedule": "version: 1\nplan: []\n",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "invalid schedule")

	resp, _ = doJSON(t, server, http.MethodPost, "/api/v1/topics", "alice", jsonBody{
		"question": "q",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "missing schedule field")
}

func TestTopics_CancelPurge(t *testing.T) {
	server := newTestServer(t)
	topicID := createTopic(t, server, "alice")

	resp, _ := doJSON(t, server, http.MethodPost, "/api/v1/topics/"+topicID+"/cancel", "alice", nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, _ = doJSON(t, server, http.MethodDelete, "/api/v1/topics/"+topicID, "alice", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = doJSON(t, server, http.MethodGet, "/api/v1/topics/"+topicID, "alice", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	createTopic(t, server, "alice")
	createTopic(t, server, "alice")
	resp, body := doJSON(t, server, http.MethodDelete, "/api/v1/topics", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), body["purged"])
}

func TestTopics_StreamEndsWithDone(t *testing.T) {
	server := newTestServer(t)
	topicID := createTopic(t, server, "alice")
	resp, _ := doJSON(t, server, http.MethodGet,
		"/api/v1/topics/"+topicID+"/conclusion?timeout=5s", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, server.URL+"/api/v1/topics/"+topicID+"/stream", nil)
	require.NoError(t, err)
	req.Header.Set("X-User-ID", "alice")
	streamResp, err := server.Client().Do(req)
	require.NoError(t, err)
	defer streamResp.Body.Close()
	require.Equal(t, http.StatusOK, streamResp.StatusCode)
	assert.Contains(t, streamResp.Header.Get("Content-Type"), "text/event-stream")

	var events []string
	scanner := bufio.NewScanner(streamResp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			events = append(events, strings.TrimPrefix(line, "event: "))
		}
	}
	require.NotEmpty(t, events)
	assert.Contains(t, events, "post")
	assert.Equal(t, "done", events[len(events)-1])
}

func TestExperts_CRUD(t *testing.T) {
	server := newTestServer(t)

	resp, body := doJSON(t, server, http.MethodGet, "/api/v1/experts", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	experts, _ := body["experts"].([]any)
	require.Len(t, experts, 1, "the public preset")

	resp, body = doJSON(t, server, http.MethodPost, "/api/v1/experts", "alice", jsonBody{
		"tag": "mine", "name": "Mine", "persona": "p", "temperature": 0.3,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "user", body["source"])

	resp, _ = doJSON(t, server, http.MethodPost, "/api/v1/experts", "alice", jsonBody{
		"tag": "mine",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "name is required")

	resp, body = doJSON(t, server, http.MethodPut, "/api/v1/experts/mine", "alice", jsonBody{
		"name": "Mine v2",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Mine v2", body["name"])

	resp, _ = doJSON(t, server, http.MethodPut, "/api/v1/experts/ghost", "alice", jsonBody{
		"name": "x",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doJSON(t, server, http.MethodDelete, "/api/v1/experts/mine", "alice", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = doJSON(t, server, http.MethodDelete, "/api/v1/experts/mine", "alice", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWorkflows_CRUD(t *testing.T) {
	server := newTestServer(t)

	resp, _ := doJSON(t, server, http.MethodPut, "/api/v1/workflows/brainstorm", "alice", jsonBody{
		"schedule": testPlan,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, server, http.MethodPut, "/api/v1/workflows/broken", "alice", jsonBody{
		"schedule": "version: 1\nplan: []\n",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "workflows are validated before saving")

	resp, body := doJSON(t, server, http.MethodGet, "/api/v1/workflows/brainstorm", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, testPlan, body["schedule"])

	resp, _ = doJSON(t, server, http.MethodGet, "/api/v1/workflows/brainstorm", "bob", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "workflows are scoped per owner")

	resp, body = doJSON(t, server, http.MethodGet, "/api/v1/workflows", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	workflows, _ := body["workflows"].([]any)
	assert.Len(t, workflows, 1)

	resp, _ = doJSON(t, server, http.MethodDelete, "/api/v1/workflows/brainstorm", "alice", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = doJSON(t, server, http.MethodGet, "/api/v1/workflows/brainstorm", "alice", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
