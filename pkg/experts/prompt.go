package experts

import (
	"fmt"
	"strings"

	"github.com/codeready-toolchain/oasis/pkg/forum"
)

// discussionSchema is appended to prompts in discussion mode. The reply is
// parsed leniently: anything that is not valid JSON in this shape is kept as
// plain content with no votes and no reply target.
const discussionSchema = `Reply with a single JSON object in this exact shape:
{"content": "<your contribution>", "reply_to": <post id or null>, "votes": [{"post_id": <id>, "vote": "up"|"down"}]}
Vote on posts you find convincing or flawed. Omit "votes" or use [] when you have none.`

// BuildPrompt renders the forum view an agent sees for one turn: the topic
// question, the last window posts with authors and vote tallies, the per-step
// instruction, and (in discussion mode) the structured reply schema.
func BuildPrompt(f *forum.Forum, window int, instruction string) string {
	var sb strings.Builder

	sb.WriteString("Discussion topic: ")
	sb.WriteString(f.Question())
	sb.WriteString("\n\n")

	posts := f.Browse()
	if len(posts) == 0 {
		sb.WriteString("No posts yet. You open the discussion.\n")
	} else {
		start := 0
		if len(posts) > window {
			start = len(posts) - window
			fmt.Fprintf(&sb, "Recent posts (%d of %d):\n", window, len(posts))
		} else {
			sb.WriteString("Posts so far:\n")
		}
		for _, p := range posts[start:] {
			fmt.Fprintf(&sb, "#%d [%s] (+%d/-%d)", p.ID, p.Author, p.Upvotes, p.Downvotes)
			if p.ReplyTo != nil {
				fmt.Fprintf(&sb, " replying to #%d", *p.ReplyTo)
			}
			sb.WriteString(": ")
			sb.WriteString(p.Content)
			sb.WriteString("\n")
		}
	}

	if instruction != "" {
		sb.WriteString("\nInstruction for this turn: ")
		sb.WriteString(instruction)
		sb.WriteString("\n")
	}

	if f.Discussion() {
		sb.WriteString("\n")
		sb.WriteString(discussionSchema)
	} else {
		sb.WriteString("\nProduce your task output as plain text.")
	}
	return sb.String()
}
