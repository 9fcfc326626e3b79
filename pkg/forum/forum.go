// Package forum holds the in-memory state of one discussion topic: the
// append-only post log, vote tallies, the timeline, and the topic lifecycle.
//
// The forum is the single serialization point for a topic. Every mutation
// takes the forum lock, enforces the invariants, and persists a snapshot
// before returning. Agent and LLM calls never run under the lock.
package forum

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/codeready-toolchain/oasis/pkg/models"
)

// ErrForumClosed is returned by Publish after the topic reached a terminal
// status. It indicates a programming error, not user input.
var ErrForumClosed = errors.New("forum is closed for new posts")

// ErrUnknownReplyTo is returned when a post references a nonexistent post id.
var ErrUnknownReplyTo = errors.New("reply_to references unknown post")

// SnapshotSink receives a full topic snapshot after every mutation.
// Implemented by storage.Store.
type SnapshotSink interface {
	Save(models.TopicSnapshot) error
}

// Vote is a single polarity cast on a post by an agent.
type Vote struct {
	PostID int
	Up     bool
}

// Options configures collaborator injection points. Zero values mean
// wall-clock time and no persistence (used by tests).
type Options struct {
	Clock func() time.Time
	Sink  SnapshotSink
}

// Forum is the mutable state of one topic.
type Forum struct {
	mu sync.Mutex

	topicID    string
	question   string
	owner      string
	discussion bool

	status       models.Status
	currentRound int
	maxRounds    int
	conclusion   string
	createdAt    time.Time

	posts       []models.Post
	timeline    []models.TimelineEvent
	lastElapsed int64

	// Unknown snapshot fields preserved across restore/save cycles.
	extra map[string]json.RawMessage

	clock func() time.Time
	sink  SnapshotSink
}

// New creates a pending topic forum.
func New(topicID, question, owner string, maxRounds int, discussion bool, opts Options) *Forum {
	f := &Forum{
		topicID:    topicID,
		question:   question,
		owner:      owner,
		discussion: discussion,
		status:     models.StatusPending,
		maxRounds:  maxRounds,
		clock:      opts.Clock,
		sink:       opts.Sink,
	}
	if f.clock == nil {
		f.clock = time.Now
	}
	f.createdAt = f.clock()
	return f
}

// Restore rebuilds a forum from a persisted snapshot. No derived data is
// recomputed: the blob is the full reader-visible state.
func Restore(snap models.TopicSnapshot, opts Options) *Forum {
	f := &Forum{
		topicID:      snap.TopicID,
		question:     snap.Question,
		owner:        snap.Owner,
		discussion:   snap.Discussion,
		status:       snap.Status,
		currentRound: snap.CurrentRound,
		maxRounds:    snap.MaxRounds,
		conclusion:   snap.Conclusion,
		createdAt:    time.Unix(snap.CreatedAt, 0),
		posts:        append([]models.Post(nil), snap.Posts...),
		timeline:     append([]models.TimelineEvent(nil), snap.Timeline...),
		clock:        opts.Clock,
		sink:         opts.Sink,
	}
	if f.clock == nil {
		f.clock = time.Now
	}
	if len(snap.Extra) > 0 {
		f.extra = make(map[string]json.RawMessage, len(snap.Extra))
		for k, v := range snap.Extra {
			f.extra[k] = v
		}
	}
	if n := len(f.posts); n > 0 {
		f.lastElapsed = f.posts[n-1].Elapsed
	}
	return f
}

// --- Accessors ---

func (f *Forum) TopicID() string  { return f.topicID }
func (f *Forum) Question() string { return f.question }
func (f *Forum) Owner() string    { return f.owner }

// Discussion reports whether the topic runs with discussion/voting semantics.
func (f *Forum) Discussion() bool { return f.discussion }

func (f *Forum) Status() models.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *Forum) CurrentRound() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.currentRound
}

func (f *Forum) MaxRounds() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxRounds
}

func (f *Forum) Conclusion() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conclusion
}

func (f *Forum) CreatedAt() time.Time { return f.createdAt }

func (f *Forum) PostCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.posts)
}

// --- Mutations ---

// Publish appends a post. The id is dense and strictly increasing; reply
// targets must name an existing earlier post. Fails with ErrForumClosed once
// the topic is terminal.
func (f *Forum) Publish(author, content string, replyTo *int) (models.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.status != models.StatusPending && f.status != models.StatusDiscussing {
		return models.Post{}, fmt.Errorf("%w: topic %s is %s", ErrForumClosed, f.topicID, f.status)
	}
	if replyTo != nil {
		if *replyTo < 1 || *replyTo > len(f.posts) {
			return models.Post{}, fmt.Errorf("%w: post %d", ErrUnknownReplyTo, *replyTo)
		}
	}

	now := f.clock()
	post := models.Post{
		ID:        len(f.posts) + 1,
		Author:    author,
		Content:   content,
		ReplyTo:   replyTo,
		Timestamp: now.Unix(),
		Elapsed:   f.elapsedLocked(now),
	}
	f.posts = append(f.posts, post)
	f.appendTimelineLocked(models.EventPost, author, fmt.Sprintf("post #%d", post.ID))
	f.persistLocked()
	return post, nil
}

// ApplyVotes applies one agent's ballot from a single participate call.
// Duplicate (post, polarity) pairs within the ballot count once; votes on
// unknown ids are silently dropped. Returns the number of votes applied.
func (f *Forum) ApplyVotes(voter string, votes []Vote) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	type ballot struct {
		id int
		up bool
	}
	seen := make(map[ballot]bool)
	applied := 0
	for _, v := range votes {
		if v.PostID < 1 || v.PostID > len(f.posts) {
			continue
		}
		key := ballot{v.PostID, v.Up}
		if seen[key] {
			continue
		}
		seen[key] = true
		p := &f.posts[v.PostID-1]
		if v.Up {
			p.Upvotes++
		} else {
			p.Downvotes++
		}
		applied++
	}
	if applied > 0 {
		f.appendTimelineLocked(models.EventVote, voter, fmt.Sprintf("%d votes", applied))
		f.persistLocked()
	}
	return applied
}

// AppendTimeline records a progress marker and persists.
func (f *Forum) AppendTimeline(kind models.EventKind, agent, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appendTimelineLocked(kind, agent, detail)
	f.persistLocked()
}

// SetStatus moves the topic along the lifecycle DAG. Invalid transitions are
// rejected; terminal states never change.
func (f *Forum) SetStatus(next models.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status == next {
		return nil
	}
	if !f.status.CanTransitionTo(next) {
		return fmt.Errorf("invalid status transition %s → %s for topic %s", f.status, next, f.topicID)
	}
	f.status = next
	f.persistLocked()
	return nil
}

// SetConclusion records the final (or failure/cancellation) conclusion text.
// Once the topic is terminal with a conclusion, later writes are dropped.
func (f *Forum) SetConclusion(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status.Terminal() && f.conclusion != "" {
		slog.Warn("Ignoring conclusion write on terminal topic",
			"topic_id", f.topicID, "status", f.status)
		return
	}
	f.conclusion = text
	f.persistLocked()
}

// SetCurrentRound updates the round counter shown to readers.
func (f *Forum) SetCurrentRound(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.currentRound = n
	f.persistLocked()
}

// SetMaxRounds overrides the round budget (step-wise schedules pin it to the
// step count).
func (f *Forum) SetMaxRounds(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.maxRounds = n
	f.persistLocked()
}

// --- Read views ---

// Browse returns a copy of all posts in append order.
func (f *Forum) Browse() []models.Post {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Post(nil), f.posts...)
}

// Timeline returns a copy of the timeline in append order.
func (f *Forum) Timeline() []models.TimelineEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.TimelineEvent(nil), f.timeline...)
}

// TopPosts returns up to k posts sorted by upvotes−downvotes descending,
// ties broken by ascending id. Deterministic for equal inputs.
func (f *Forum) TopPosts(k int) []models.Post {
	f.mu.Lock()
	defer f.mu.Unlock()

	sorted := append([]models.Post(nil), f.posts...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Score() != sorted[j].Score() {
			return sorted[i].Score() > sorted[j].Score()
		}
		return sorted[i].ID < sorted[j].ID
	})
	if k < len(sorted) {
		sorted = sorted[:k]
	}
	return sorted
}

// Snapshot captures the full persisted form of the topic.
func (f *Forum) Snapshot() models.TopicSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

// Summary projects the list view.
func (f *Forum) Summary() models.TopicSummary {
	f.mu.Lock()
	defer f.mu.Unlock()
	return models.TopicSummary{
		TopicID:      f.topicID,
		Question:     f.question,
		Owner:        f.owner,
		Status:       f.status,
		PostCount:    len(f.posts),
		CurrentRound: f.currentRound,
		MaxRounds:    f.maxRounds,
		CreatedAt:    f.createdAt.Unix(),
	}
}

// Detail projects the full read view.
func (f *Forum) Detail() models.TopicDetail {
	f.mu.Lock()
	defer f.mu.Unlock()
	return models.TopicDetail{
		TopicID:      f.topicID,
		Question:     f.question,
		Owner:        f.owner,
		Status:       f.status,
		CurrentRound: f.currentRound,
		MaxRounds:    f.maxRounds,
		Discussion:   f.discussion,
		Posts:        append([]models.Post(nil), f.posts...),
		Timeline:     append([]models.TimelineEvent(nil), f.timeline...),
		Conclusion:   f.conclusion,
		CreatedAt:    f.createdAt.Unix(),
	}
}

// --- Internal (caller holds f.mu) ---

// elapsedLocked computes seconds since topic creation, clamped so it never
// decreases across consecutive posts even if the clock steps backwards.
func (f *Forum) elapsedLocked(now time.Time) int64 {
	elapsed := int64(now.Sub(f.createdAt).Seconds())
	if elapsed < f.lastElapsed {
		elapsed = f.lastElapsed
	}
	f.lastElapsed = elapsed
	return elapsed
}

func (f *Forum) appendTimelineLocked(kind models.EventKind, agent, detail string) {
	f.timeline = append(f.timeline, models.TimelineEvent{
		Elapsed: f.elapsedLocked(f.clock()),
		Event:   kind,
		Agent:   agent,
		Detail:  detail,
	})
}

func (f *Forum) snapshotLocked() models.TopicSnapshot {
	snap := models.TopicSnapshot{
		TopicID:      f.topicID,
		Question:     f.question,
		Owner:        f.owner,
		Status:       f.status,
		CurrentRound: f.currentRound,
		MaxRounds:    f.maxRounds,
		Discussion:   f.discussion,
		CreatedAt:    f.createdAt.Unix(),
		Conclusion:   f.conclusion,
		Posts:        append([]models.Post(nil), f.posts...),
		Timeline:     append([]models.TimelineEvent(nil), f.timeline...),
		Extra:        f.extra,
	}
	return snap
}

// persistLocked writes the snapshot through the sink. Store failures are
// logged and not propagated: the next successful write supersedes.
func (f *Forum) persistLocked() {
	if f.sink == nil {
		return
	}
	if err := f.sink.Save(f.snapshotLocked()); err != nil {
		slog.Warn("Failed to persist topic snapshot",
			"topic_id", f.topicID, "error", err)
	}
}
