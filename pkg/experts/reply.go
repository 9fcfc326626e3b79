package experts

import (
	"encoding/json"
	"strings"

	"github.com/codeready-toolchain/oasis/pkg/forum"
)

// Reply is the parsed form of an agent's raw response.
type Reply struct {
	Content string
	ReplyTo *int
	Votes   []forum.Vote
}

// structuredReply is the JSON schema agents are asked to follow in
// discussion mode.
type structuredReply struct {
	Content string `json:"content"`
	ReplyTo *int   `json:"reply_to"`
	Votes   []struct {
		PostID int    `json:"post_id"`
		Vote   string `json:"vote"`
	} `json:"votes"`
}

// ParseReply interprets raw agent output. In execution mode the text is the
// content verbatim. In discussion mode a JSON object matching the schema is
// decoded (markdown fences tolerated); anything non-conforming is accepted
// as plain content with no votes and no reply target.
func ParseReply(raw string, discussion bool) Reply {
	text := strings.TrimSpace(raw)
	if !discussion {
		return Reply{Content: text}
	}

	candidate := stripFences(text)
	start := strings.Index(candidate, "{")
	end := strings.LastIndex(candidate, "}")
	if start < 0 || end <= start {
		return Reply{Content: text}
	}

	var structured structuredReply
	if err := json.Unmarshal([]byte(candidate[start:end+1]), &structured); err != nil {
		return Reply{Content: text}
	}
	if structured.Content == "" {
		return Reply{Content: text}
	}

	reply := Reply{Content: structured.Content, ReplyTo: structured.ReplyTo}
	for _, v := range structured.Votes {
		switch strings.ToLower(v.Vote) {
		case "up":
			reply.Votes = append(reply.Votes, forum.Vote{PostID: v.PostID, Up: true})
		case "down":
			reply.Votes = append(reply.Votes, forum.Vote{PostID: v.PostID, Up: false})
		}
	}
	return reply
}

// stripFences removes a surrounding markdown code fence if present.
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
