package engine

import (
	"context"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/codeready-toolchain/oasis/pkg/forum"
	"github.com/codeready-toolchain/oasis/pkg/llm"
)

// summaryTopPosts is how many top-voted posts feed the summary prompt.
const summaryTopPosts = 5

// summaryTemperature keeps the conclusion close to the source material.
const summaryTemperature = 0.2

// summaryMaxTokens bounds the conclusion length.
const summaryMaxTokens = 1024

// defaultSummaryTemplate is used when no template file is configured.
const defaultSummaryTemplate = `A multi-agent discussion on the following question has ended.

Question: {{.Question}}

The discussion produced {{.PostCount}} posts over {{.Rounds}} rounds. The top-voted posts were:

{{.TopPosts}}

Write a concise conclusion that synthesizes the strongest points above and directly answers the question. Do not mention the voting or the discussion process.`

// summaryData is the template context.
type summaryData struct {
	Question  string
	PostCount int
	Rounds    int
	TopPosts  string
}

// Summarizer turns a finished forum into a conclusion via one LLM call.
type Summarizer struct {
	client   llm.Client
	template *template.Template
	timeout  time.Duration
}

// NewSummarizer compiles the template (the built-in default when source is
// empty). An invalid custom template falls back to the default.
func NewSummarizer(client llm.Client, source string, timeout time.Duration) *Summarizer {
	if source == "" {
		source = defaultSummaryTemplate
	}
	tmpl, err := template.New("summary").Parse(source)
	if err != nil {
		tmpl = template.Must(template.New("summary").Parse(defaultSummaryTemplate))
	}
	return &Summarizer{client: client, template: tmpl, timeout: timeout}
}

// Summarize renders the summary prompt from the top-voted posts and asks the
// LLM for the conclusion.
func (s *Summarizer) Summarize(ctx context.Context, f *forum.Forum) (string, error) {
	if s.client == nil {
		return "", fmt.Errorf("no LLM client configured for summarization")
	}

	prompt, err := s.buildPrompt(f)
	if err != nil {
		return "", fmt.Errorf("failed to render summary prompt: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	text, err := s.client.Complete(callCtx, llm.CompletionRequest{
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Temperature: summaryTemperature,
		MaxTokens:   summaryMaxTokens,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (s *Summarizer) buildPrompt(f *forum.Forum) (string, error) {
	var top strings.Builder
	for _, post := range f.TopPosts(summaryTopPosts) {
		fmt.Fprintf(&top, "#%d [%s] (+%d/-%d)\n%s\n\n",
			post.ID, post.Author, post.Upvotes, post.Downvotes, post.Content)
	}

	var out strings.Builder
	err := s.template.Execute(&out, summaryData{
		Question:  f.Question(),
		PostCount: f.PostCount(),
		Rounds:    f.CurrentRound(),
		TopPosts:  strings.TrimSpace(top.String()),
	})
	if err != nil {
		return "", err
	}
	return out.String(), nil
}
