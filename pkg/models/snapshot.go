package models

import "encoding/json"

// TopicSnapshot is the persisted form of a topic: everything a reader-visible
// view needs, written as one self-describing JSON document per topic after
// every forum mutation.
//
// Forward compatibility: fields unknown to this build are captured in Extra
// on read and re-emitted verbatim on rewrite, so newer blobs survive a
// round-trip through an older process.
type TopicSnapshot struct {
	TopicID      string          `json:"topic_id"`
	Question     string          `json:"question"`
	Owner        string          `json:"owner"`
	Status       Status          `json:"status"`
	CurrentRound int             `json:"current_round"`
	MaxRounds    int             `json:"max_rounds"`
	Discussion   bool            `json:"discussion"`
	CreatedAt    int64           `json:"created_at"`
	Conclusion   string          `json:"conclusion"`
	Posts        []Post          `json:"posts"`
	Timeline     []TimelineEvent `json:"timeline"`

	Extra map[string]json.RawMessage `json:"-"`
}

// snapshotAlias avoids marshal/unmarshal recursion on TopicSnapshot.
type snapshotAlias TopicSnapshot

// knownSnapshotFields are the JSON keys owned by this build. Anything else
// found in a blob is preserved in Extra.
var knownSnapshotFields = map[string]bool{
	"topic_id": true, "question": true, "owner": true, "status": true,
	"current_round": true, "max_rounds": true, "discussion": true,
	"created_at": true, "conclusion": true, "posts": true, "timeline": true,
}

// MarshalJSON emits the known fields plus any preserved unknown fields.
func (s TopicSnapshot) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(snapshotAlias(s))
	if err != nil {
		return nil, err
	}
	if len(s.Extra) == 0 {
		return base, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range s.Extra {
		if !knownSnapshotFields[k] {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// UnmarshalJSON decodes the known fields and stashes unknown ones in Extra.
func (s *TopicSnapshot) UnmarshalJSON(data []byte) error {
	var alias snapshotAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for k := range raw {
		if knownSnapshotFields[k] {
			delete(raw, k)
		}
	}
	*s = TopicSnapshot(alias)
	if len(raw) > 0 {
		s.Extra = raw
	}
	return nil
}

// TopicSummary is the list-view projection of a topic.
type TopicSummary struct {
	TopicID      string `json:"topic_id"`
	Question     string `json:"question"`
	Owner        string `json:"owner"`
	Status       Status `json:"status"`
	PostCount    int    `json:"post_count"`
	CurrentRound int    `json:"current_round"`
	MaxRounds    int    `json:"max_rounds"`
	CreatedAt    int64  `json:"created_at"`
}

// TopicDetail is the full read view of a topic.
type TopicDetail struct {
	TopicID      string          `json:"topic_id"`
	Question     string          `json:"question"`
	Owner        string          `json:"owner"`
	Status       Status          `json:"status"`
	CurrentRound int             `json:"current_round"`
	MaxRounds    int             `json:"max_rounds"`
	Discussion   bool            `json:"discussion"`
	Posts        []Post          `json:"posts"`
	Timeline     []TimelineEvent `json:"timeline"`
	Conclusion   string          `json:"conclusion"`
	CreatedAt    int64           `json:"created_at"`
}
