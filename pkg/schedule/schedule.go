// Package schedule parses YAML discussion plans into typed step sequences.
//
// A schedule names the participating agents and the order in which they
// speak. Steps come in four shapes: a single expert, a parallel fan-out,
// an all-experts broadcast, and a manual forum injection.
package schedule

import "errors"

// ErrBadSchedule is wrapped by every parse failure. Callers surface it at
// topic creation; a topic is never created from an invalid schedule.
var ErrBadSchedule = errors.New("bad schedule")

// StepType discriminates the step variants.
type StepType string

const (
	StepExpert   StepType = "expert"
	StepParallel StepType = "parallel"
	StepAll      StepType = "all"
	StepManual   StepType = "manual"
)

// Member is one agent reference inside a step, with an optional per-step
// instruction and optional inline external-endpoint overrides.
type Member struct {
	Name        string
	Instruction string

	// Inline config for external agents ("tag#ext#id" names). Preferred over
	// the directory defaults when present.
	Endpoint string
	Model    string
	Headers  map[string]string
}

// Manual is a forum post injected without any agent call.
type Manual struct {
	Author  string
	Content string
	ReplyTo *int
}

// Step is exactly one unit of the plan.
type Step struct {
	Type        StepType
	Expert      Member   // StepExpert
	Members     []Member // StepParallel
	Instruction string   // StepAll
	Manual      Manual   // StepManual
}

// Schedule is the typed execution plan.
type Schedule struct {
	Version int
	// Repeat replays the step list once per round up to max_rounds.
	// When false the step list runs exactly once and each step is a round.
	Repeat bool
	// Discussion, when set, overrides the engine-level discussion mode.
	Discussion *bool
	Steps      []Step
}

// ExpertNames returns every non-manual agent name literal in plan order,
// de-duplicated on first occurrence. This is the resolver's input.
func (s *Schedule) ExpertNames() []string {
	var names []string
	seen := make(map[string]bool)
	add := func(n string) {
		if n == "" || seen[n] {
			return
		}
		seen[n] = true
		names = append(names, n)
	}
	for _, step := range s.Steps {
		switch step.Type {
		case StepExpert:
			add(step.Expert.Name)
		case StepParallel:
			for _, m := range step.Members {
				add(m.Name)
			}
		}
	}
	return names
}
