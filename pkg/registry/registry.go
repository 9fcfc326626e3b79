// Package registry owns the process-wide map of live topics and their driver
// goroutines. It creates topics, enforces owner access on every lookup,
// relays cancellation, purges topics and their persisted blobs, reloads
// persisted topics on start-up, and marks live topics errored on shutdown.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/oasis/pkg/config"
	"github.com/codeready-toolchain/oasis/pkg/engine"
	"github.com/codeready-toolchain/oasis/pkg/experts"
	"github.com/codeready-toolchain/oasis/pkg/forum"
	"github.com/codeready-toolchain/oasis/pkg/llm"
	"github.com/codeready-toolchain/oasis/pkg/models"
	"github.com/codeready-toolchain/oasis/pkg/schedule"
	"github.com/codeready-toolchain/oasis/pkg/storage"
)

// ErrNotFound is returned when a topic id is unknown.
var ErrNotFound = errors.New("topic not found")

// ErrForbidden is returned when a topic exists but belongs to another owner.
var ErrForbidden = errors.New("topic belongs to another owner")

// ErrTimeout is returned by WaitConclusion when the topic does not reach a
// terminal state in time.
var ErrTimeout = errors.New("timed out waiting for conclusion")

// ShutdownConclusion is written to topics interrupted by process shutdown.
const ShutdownConclusion = "service shut down"

// CreateRequest carries everything needed to start a topic.
type CreateRequest struct {
	Question     string
	Owner        string
	ScheduleYAML string

	// MaxRounds overrides the configured default when > 0.
	MaxRounds int
	// Discussion overrides both the schedule's and the configured default.
	Discussion *bool
	// OnComplete, when non-empty, receives a POST with the conclusion once
	// the topic reaches a terminal state.
	OnComplete string
}

// Options wires the registry's collaborators.
type Options struct {
	Config   *config.Config
	Store    *storage.Store
	LLM      llm.Client
	Bot      experts.SessionClient
	Callback *CallbackClient

	// Clock and NewID are injectable for deterministic tests.
	Clock func() time.Time
	NewID func() string
}

// entry is one registered topic: its forum plus the driver's control handles.
type entry struct {
	forum  *forum.Forum
	cancel context.CancelFunc
	done   chan struct{}
}

// Registry is the process-wide topic map.
type Registry struct {
	mu     sync.RWMutex
	topics map[string]*entry

	cfg      *config.Config
	store    *storage.Store
	llm      llm.Client
	bot      experts.SessionClient
	callback *CallbackClient
	clock    func() time.Time
	newID    func() string

	drivers sync.WaitGroup
}

// New builds an empty registry.
func New(opts Options) *Registry {
	r := &Registry{
		topics:   make(map[string]*entry),
		cfg:      opts.Config,
		store:    opts.Store,
		llm:      opts.LLM,
		bot:      opts.Bot,
		callback: opts.Callback,
		clock:    opts.Clock,
		newID:    opts.NewID,
	}
	if r.clock == nil {
		r.clock = time.Now
	}
	if r.newID == nil {
		r.newID = func() string { return uuid.NewString()[:8] }
	}
	return r
}

// Create validates the schedule, builds the forum and engine, and starts the
// driver goroutine. An invalid schedule fails here and no topic is created.
func (r *Registry) Create(req CreateRequest) (string, error) {
	sched, err := schedule.Parse(req.ScheduleYAML)
	if err != nil {
		return "", err
	}

	discussion := r.cfg.Defaults.Discussion
	if sched.Discussion != nil {
		discussion = *sched.Discussion
	}
	if req.Discussion != nil {
		discussion = *req.Discussion
	}
	maxRounds := req.MaxRounds
	if maxRounds <= 0 {
		maxRounds = r.cfg.Defaults.MaxRounds
	}

	topicID := r.newID()
	f := forum.New(topicID, req.Question, req.Owner, maxRounds, discussion, forum.Options{
		Clock: r.clock,
		Sink:  r.store,
	})

	pool := experts.Resolve(sched, experts.Deps{
		Owner:          req.Owner,
		Presets:        r.cfg.Presets,
		LLM:            r.llm,
		Bot:            r.bot,
		ExternalAgents: r.cfg.ExternalAgents,
		Timeouts:       r.cfg.Timeouts,
		Window:         r.cfg.Defaults.TopPostWindow,
	})

	eng := engine.New(f, sched, pool, engine.Options{
		EarlyStop:  r.cfg.Defaults.EarlyStop,
		Summarizer: engine.NewSummarizer(r.llm, r.cfg.SummaryTemplate, r.cfg.Timeouts.Summary),
	})

	ctx, cancel := context.WithCancel(context.Background())
	ent := &entry{forum: f, cancel: cancel, done: make(chan struct{})}

	r.mu.Lock()
	r.topics[topicID] = ent
	r.mu.Unlock()

	r.drivers.Add(1)
	go r.drive(ctx, ent, eng, req.OnComplete)

	slog.Info("Topic created",
		"topic_id", topicID,
		"owner", req.Owner,
		"discussion", discussion,
		"max_rounds", maxRounds,
		"pool_size", pool.Size())
	return topicID, nil
}

// drive is the per-topic driver goroutine body.
func (r *Registry) drive(ctx context.Context, ent *entry, eng *engine.Engine, onComplete string) {
	defer r.drivers.Done()
	defer close(ent.done)

	status := eng.Run(ctx)

	if onComplete != "" && r.callback != nil {
		notifyCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		r.callback.Notify(notifyCtx, onComplete,
			ent.forum.Owner(), ent.forum.TopicID(), status, ent.forum.Conclusion())
	}
}

// lookup fetches an entry with the owner check applied.
func (r *Registry) lookup(topicID, owner string) (*entry, error) {
	r.mu.RLock()
	ent, ok := r.topics[topicID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, topicID)
	}
	if ent.forum.Owner() != owner {
		return nil, fmt.Errorf("%w: %s", ErrForbidden, topicID)
	}
	return ent, nil
}

// Get returns the full read view of one topic.
func (r *Registry) Get(topicID, owner string) (models.TopicDetail, error) {
	ent, err := r.lookup(topicID, owner)
	if err != nil {
		return models.TopicDetail{}, err
	}
	return ent.forum.Detail(), nil
}

// Forum returns the live forum of one topic, for the event stream.
func (r *Registry) Forum(topicID, owner string) (*forum.Forum, error) {
	ent, err := r.lookup(topicID, owner)
	if err != nil {
		return nil, err
	}
	return ent.forum, nil
}

// List returns summaries of the owner's topics, newest first.
func (r *Registry) List(owner string) []models.TopicSummary {
	r.mu.RLock()
	var summaries []models.TopicSummary
	for _, ent := range r.topics {
		if ent.forum.Owner() == owner {
			summaries = append(summaries, ent.forum.Summary())
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(summaries, func(i, j int) bool {
		if summaries[i].CreatedAt != summaries[j].CreatedAt {
			return summaries[i].CreatedAt > summaries[j].CreatedAt
		}
		return summaries[i].TopicID < summaries[j].TopicID
	})
	return summaries
}

// Cancel signals the topic's driver to stop dispatching further work. An
// in-flight agent call is not interrupted. A second cancel is a no-op.
func (r *Registry) Cancel(topicID, owner string) error {
	ent, err := r.lookup(topicID, owner)
	if err != nil {
		return err
	}
	ent.cancel()
	slog.Info("Topic cancel requested", "topic_id", topicID, "owner", owner)
	return nil
}

// Purge cancels the topic, removes it from the registry, and deletes its
// persisted blob. The blob is deleted again once the driver has fully
// stopped, since a late snapshot write may recreate it.
func (r *Registry) Purge(topicID, owner string) error {
	ent, err := r.lookup(topicID, owner)
	if err != nil {
		return err
	}
	ent.cancel()

	r.mu.Lock()
	delete(r.topics, topicID)
	r.mu.Unlock()

	if err := r.store.Delete(topicID); err != nil {
		slog.Warn("Failed to delete topic blob", "topic_id", topicID, "error", err)
	}
	go func() {
		<-ent.done
		if err := r.store.Delete(topicID); err != nil {
			slog.Warn("Failed to delete topic blob", "topic_id", topicID, "error", err)
		}
	}()

	slog.Info("Topic purged", "topic_id", topicID, "owner", owner)
	return nil
}

// PurgeAll purges every topic of the owner and returns how many were removed.
func (r *Registry) PurgeAll(owner string) int {
	r.mu.RLock()
	var ids []string
	for id, ent := range r.topics {
		if ent.forum.Owner() == owner {
			ids = append(ids, id)
		}
	}
	r.mu.RUnlock()

	count := 0
	for _, id := range ids {
		if err := r.Purge(id, owner); err == nil {
			count++
		}
	}
	return count
}

// WaitConclusion blocks until the topic reaches a terminal state or the
// timeout elapses.
func (r *Registry) WaitConclusion(ctx context.Context, topicID, owner string, timeout time.Duration) (string, error) {
	ent, err := r.lookup(topicID, owner)
	if err != nil {
		return "", err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ent.done:
		return ent.forum.Conclusion(), nil
	case <-timer.C:
		return "", fmt.Errorf("%w: topic %s after %s", ErrTimeout, topicID, timeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// LoadAll restores every persisted topic on start-up. Topics that were still
// running when the previous process died are marked errored; they have no
// driver to resume.
func (r *Registry) LoadAll() error {
	snaps, err := r.store.LoadAll()
	if err != nil {
		return err
	}

	restored, failed := 0, 0
	for _, snap := range snaps {
		f := forum.Restore(snap, forum.Options{Clock: r.clock, Sink: r.store})
		if !f.Status().Terminal() {
			f.SetConclusion(ShutdownConclusion)
			if err := f.SetStatus(models.StatusError); err != nil {
				slog.Warn("Failed to mark interrupted topic errored",
					"topic_id", snap.TopicID, "error", err)
			}
			failed++
		}

		done := make(chan struct{})
		close(done)
		r.mu.Lock()
		r.topics[snap.TopicID] = &entry{
			forum:  f,
			cancel: func() {},
			done:   done,
		}
		r.mu.Unlock()
		restored++
	}

	slog.Info("Restored persisted topics", "restored", restored, "interrupted", failed)
	return nil
}

// Shutdown marks still-running topics errored with the standard shutdown
// reason, cancels every driver, and waits for them to stop (bounded by ctx).
// Marking precedes cancellation so the persisted reason is the shutdown one,
// not the regular cancellation note.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.topics))
	for _, ent := range r.topics {
		entries = append(entries, ent)
	}
	r.mu.RUnlock()

	for _, ent := range entries {
		if !ent.forum.Status().Terminal() {
			ent.forum.SetConclusion(ShutdownConclusion)
			if err := ent.forum.SetStatus(models.StatusError); err != nil {
				slog.Warn("Failed to mark topic errored on shutdown",
					"topic_id", ent.forum.TopicID(), "error", err)
			}
		}
		ent.cancel()
	}

	stopped := make(chan struct{})
	go func() {
		r.drivers.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		slog.Warn("Shutdown wait for topic drivers timed out")
	}
	slog.Info("Topic registry shut down", "topics", len(entries))
}
