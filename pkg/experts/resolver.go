package experts

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/oasis/pkg/config"
	"github.com/codeready-toolchain/oasis/pkg/llm"
	"github.com/codeready-toolchain/oasis/pkg/schedule"
)

// PresetLookup resolves an expert tag to its preset. Implemented by
// config.PresetStore.
type PresetLookup interface {
	LookupByTag(tag, owner string) (config.Preset, bool)
}

// Deps carries the collaborators agents are wired with at resolve time.
type Deps struct {
	Owner          string
	Presets        PresetLookup
	LLM            llm.Client
	Bot            SessionClient
	ExternalAgents map[string]config.ExternalAgentConfig
	Timeouts       *config.Timeouts
	// Window is how many recent posts agents see in their prompt.
	Window int
	// NewID generates the short random token substituted by "#new".
	// Defaults to an 8-char UUID prefix.
	NewID func() string
}

// Pool is the ordered, de-duplicated set of agents resolved from a schedule,
// plus the alias map later steps use to reference them.
type Pool struct {
	Agents  []Agent
	byAlias map[string]Agent
}

// Lookup resolves a schedule reference. Aliases are registered in priority
// order: full original name, display name, tag, session or external id.
func (p *Pool) Lookup(name string) (Agent, bool) {
	a, ok := p.byAlias[name]
	return a, ok
}

// Size returns the number of distinct agents in the pool.
func (p *Pool) Size() int { return len(p.Agents) }

// Counts returns the number of direct and session-backed agents, for
// startup logging.
func (p *Pool) Counts() (direct, session, external int) {
	for _, a := range p.Agents {
		switch a.Kind() {
		case KindDirect:
			direct++
		case KindExternal:
			external++
		default:
			session++
		}
	}
	return
}

// Resolve builds the agent pool from every non-manual name in the schedule,
// in first-appearance order. Names without '#' are skipped with a warning.
func Resolve(sched *schedule.Schedule, deps Deps) *Pool {
	if deps.NewID == nil {
		deps.NewID = func() string { return uuid.NewString()[:8] }
	}
	if deps.Window < 1 {
		deps.Window = config.DefaultTopPostWindow
	}

	pool := &Pool{byAlias: make(map[string]Agent)}
	seen := make(map[string]bool)

	for _, member := range scheduleMembers(sched) {
		if seen[member.Name] {
			continue
		}
		seen[member.Name] = true

		agent := resolveOne(member, deps)
		if agent == nil {
			continue
		}
		pool.Agents = append(pool.Agents, agent)
		registerAliases(pool, member.Name, agent)
	}
	return pool
}

// scheduleMembers lists every agent-bearing member in plan order, keeping
// inline endpoint config attached to the reference.
func scheduleMembers(sched *schedule.Schedule) []schedule.Member {
	var members []schedule.Member
	for _, step := range sched.Steps {
		switch step.Type {
		case schedule.StepExpert:
			members = append(members, step.Expert)
		case schedule.StepParallel:
			members = append(members, step.Members...)
		}
	}
	return members
}

func resolveOne(member schedule.Member, deps Deps) Agent {
	parsed, ok := parseName(member.Name, deps.NewID)
	if !ok {
		slog.Warn("Schedule expert name has no '#', skipping",
			"name", member.Name,
			"hint", "use tag#temp#N, tag#oasis#id, tag#ext#id, or title#session_id")
		return nil
	}

	switch parsed.kind {
	case KindDirect:
		name, persona, temperature := adoptPreset(parsed.tag, deps)
		return &DirectExpert{
			name:        name,
			tag:         parsed.tag,
			persona:     persona,
			instance:    parsed.instance,
			temperature: temperature,
			client:      deps.LLM,
			timeout:     agentTimeout(deps.Timeouts),
			window:      deps.Window,
		}

	case KindOasisSession:
		name, persona, _ := adoptPreset(parsed.tag, deps)
		return &SessionExpert{
			name:      name,
			tag:       parsed.tag,
			persona:   persona,
			owner:     deps.Owner,
			sessionID: parsed.sessionID,
			oasis:     true,
			client:    deps.Bot,
			timeout:   sessionTimeout(deps.Timeouts),
			window:    deps.Window,
		}

	case KindRegularSession:
		return &SessionExpert{
			name:      parsed.tag,
			sessionID: parsed.sessionID,
			owner:     deps.Owner,
			client:    deps.Bot,
			timeout:   sessionTimeout(deps.Timeouts),
			window:    deps.Window,
		}

	default: // KindExternal
		endpoint, model, headers := externalConfig(member, parsed.externalID, deps)
		if endpoint == "" {
			slog.Warn("External expert has no endpoint config, skipping",
				"name", member.Name, "external_id", parsed.externalID)
			return nil
		}
		name, persona, _ := adoptPreset(parsed.tag, deps)
		return &ExternalExpert{
			name:       name,
			tag:        parsed.tag,
			persona:    persona,
			externalID: parsed.externalID,
			client:     llm.NewEndpointClient(endpoint, model, headers),
			timeout:    agentTimeout(deps.Timeouts),
			window:     deps.Window,
		}
	}
}

// adoptPreset resolves a tag through the preset store: on a hit the preset's
// name, persona, and temperature are adopted; otherwise the tag itself is
// the display name with no persona.
func adoptPreset(tag string, deps Deps) (name, persona string, temperature float64) {
	if deps.Presets != nil {
		if preset, ok := deps.Presets.LookupByTag(tag, deps.Owner); ok {
			return preset.Name, preset.Persona, preset.Temperature
		}
	}
	return tag, "", 0
}

// externalConfig prefers the step's inline endpoint config over the
// configured directory default for the external id.
func externalConfig(member schedule.Member, externalID string, deps Deps) (endpoint, model string, headers map[string]string) {
	if member.Endpoint != "" {
		return member.Endpoint, member.Model, member.Headers
	}
	if cfg, ok := deps.ExternalAgents[externalID]; ok {
		return cfg.Endpoint, cfg.Model, cfg.Headers
	}
	return "", "", nil
}

// registerAliases indexes an agent under every name a later step may use:
// the full original name, the display name, the tag, and the session or
// external id. First registration wins on conflicts.
func registerAliases(pool *Pool, fullName string, agent Agent) {
	add := func(alias string) {
		if alias == "" {
			return
		}
		if _, taken := pool.byAlias[alias]; !taken {
			pool.byAlias[alias] = agent
		}
	}
	add(fullName)
	add(agent.DisplayName())

	switch a := agent.(type) {
	case *DirectExpert:
		add(a.tag)
	case *SessionExpert:
		add(a.tag)
		add(a.sessionID)
	case *ExternalExpert:
		add(a.tag)
		add(a.externalID)
	}
}

// parsedName is the decomposed form of a schedule agent name.
type parsedName struct {
	kind       Kind
	tag        string
	sessionID  string
	externalID string
	instance   int
}

// parseName decomposes a schedule name per the grammar:
//
//	tag#temp#N        direct
//	tag#oasis#ID      oasis session (also tag#x#oasis#ID)
//	tag#ext#ID        external endpoint
//	Title#session_id  regular session
//	any of the above + "#new"  fresh random identifier segment
//
// Returns ok=false when the name contains no '#'.
func parseName(name string, newID func() string) (parsedName, bool) {
	if !strings.Contains(name, "#") {
		return parsedName{}, false
	}

	forceNew := strings.HasSuffix(name, "#new")
	working := strings.TrimSuffix(name, "#new")

	head, rest, _ := strings.Cut(working, "#")

	switch {
	case strings.HasPrefix(rest, "temp#"):
		instance := 1
		if n, err := strconv.Atoi(strings.TrimPrefix(rest, "temp#")); err == nil {
			instance = n
		}
		return parsedName{kind: KindDirect, tag: head, instance: instance}, true

	case strings.HasPrefix(rest, "oasis#") || strings.Contains(rest, "#oasis#"):
		if forceNew {
			// Replace the identifier after the oasis marker with a fresh
			// token so an existing session is never reused by accident.
			idx := strings.Index(rest, "oasis#") + len("oasis#")
			fresh := rest[:idx] + newID()
			slog.Info("Forcing new oasis session", "name", name, "session", head+"#"+fresh)
			rest = fresh
		}
		return parsedName{kind: KindOasisSession, tag: head, sessionID: head + "#" + rest}, true

	case strings.HasPrefix(rest, "ext#"):
		id := strings.TrimPrefix(rest, "ext#")
		if forceNew {
			id = newID()
			slog.Info("Forcing new external id", "name", name, "external_id", id)
		}
		return parsedName{kind: KindExternal, tag: head, externalID: id}, true

	default:
		if forceNew {
			fresh := newID()
			slog.Info("Forcing new session", "name", name, "session", fresh)
			rest = fresh
		}
		return parsedName{kind: KindRegularSession, tag: head, sessionID: rest}, true
	}
}

// agentTimeout and sessionTimeout guard against a nil Timeouts in tests.
func agentTimeout(t *config.Timeouts) time.Duration {
	if t == nil {
		return 60 * time.Second
	}
	return t.Agent
}

func sessionTimeout(t *config.Timeouts) time.Duration {
	if t == nil {
		return 180 * time.Second
	}
	return t.Session
}
