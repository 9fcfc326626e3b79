package models

// Post is one append-only entry in a topic's forum.
// IDs are dense and strictly increasing within a topic, starting at 1.
type Post struct {
	ID        int    `json:"id"`
	Author    string `json:"author"`
	Content   string `json:"content"`
	ReplyTo   *int   `json:"reply_to,omitempty"`
	Upvotes   int    `json:"upvotes"`
	Downvotes int    `json:"downvotes"`
	Timestamp int64  `json:"timestamp"`
	Elapsed   int64  `json:"elapsed"`
}

// Score is the vote balance used for ranking top posts.
func (p Post) Score() int { return p.Upvotes - p.Downvotes }

// EventKind identifies a coarse-grained timeline event.
type EventKind string

const (
	EventStart     EventKind = "start"
	EventRound     EventKind = "round"
	EventAgentCall EventKind = "agent_call"
	EventAgentDone EventKind = "agent_done"
	EventPost      EventKind = "post"
	EventVote      EventKind = "vote"
	EventConclude  EventKind = "conclude"
	EventError     EventKind = "error"
	EventCancel    EventKind = "cancel"
)

// TimelineEvent is a progress marker consumed by the event stream.
// Events are totally ordered by append time and never rewritten.
type TimelineEvent struct {
	Elapsed int64     `json:"elapsed"`
	Event   EventKind `json:"event"`
	Agent   string    `json:"agent,omitempty"`
	Detail  string    `json:"detail,omitempty"`
}
