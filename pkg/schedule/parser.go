package schedule

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// supportedVersion is the only schedule format version this build accepts.
const supportedVersion = 1

// rawDoc mirrors the YAML top level. Unknown keys are ignored by design so
// older services can read newer schedules.
type rawDoc struct {
	Version    int       `yaml:"version"`
	Repeat     *bool     `yaml:"repeat"`
	Discussion *bool     `yaml:"discussion"`
	Plan       []rawStep `yaml:"plan"`
}

// rawStep carries every recognized step key; exactly one of the four
// step-defining keys must be present.
type rawStep struct {
	Expert      string      `yaml:"expert"`
	Parallel    []yaml.Node `yaml:"parallel"`
	AllExperts  bool        `yaml:"all_experts"`
	Manual      *rawManual  `yaml:"manual"`
	Instruction string      `yaml:"instruction"`

	// Inline external-endpoint config, honored on expert steps.
	Endpoint string            `yaml:"endpoint"`
	Model    string            `yaml:"model"`
	Headers  map[string]string `yaml:"headers"`
}

type rawMember struct {
	Expert      string            `yaml:"expert"`
	Instruction string            `yaml:"instruction"`
	Endpoint    string            `yaml:"endpoint"`
	Model       string            `yaml:"model"`
	Headers     map[string]string `yaml:"headers"`
}

type rawManual struct {
	Author  string `yaml:"author"`
	Content string `yaml:"content"`
	ReplyTo *int   `yaml:"reply_to"`
}

// Parse turns a YAML schedule document into a typed Schedule.
// Every failure wraps ErrBadSchedule.
func Parse(source string) (*Schedule, error) {
	var doc rawDoc
	if err := yaml.Unmarshal([]byte(source), &doc); err != nil {
		return nil, fmt.Errorf("%w: invalid yaml: %v", ErrBadSchedule, err)
	}
	if doc.Version != supportedVersion {
		return nil, fmt.Errorf("%w: unsupported version %d (expected %d)",
			ErrBadSchedule, doc.Version, supportedVersion)
	}
	if len(doc.Plan) == 0 {
		return nil, fmt.Errorf("%w: missing or empty plan", ErrBadSchedule)
	}

	sched := &Schedule{
		Version:    doc.Version,
		Repeat:     true,
		Discussion: doc.Discussion,
	}
	if doc.Repeat != nil {
		sched.Repeat = *doc.Repeat
	}

	for i, raw := range doc.Plan {
		step, err := parseStep(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: plan step %d: %v", ErrBadSchedule, i+1, err)
		}
		sched.Steps = append(sched.Steps, step)
	}
	return sched, nil
}

func parseStep(raw rawStep) (Step, error) {
	defined := 0
	if raw.Expert != "" {
		defined++
	}
	if len(raw.Parallel) > 0 {
		defined++
	}
	if raw.AllExperts {
		defined++
	}
	if raw.Manual != nil {
		defined++
	}
	switch {
	case defined == 0:
		return Step{}, fmt.Errorf("no step key (expected one of expert, parallel, all_experts, manual)")
	case defined > 1:
		return Step{}, fmt.Errorf("ambiguous step: multiple step keys present")
	}

	switch {
	case raw.Expert != "":
		return Step{
			Type: StepExpert,
			Expert: Member{
				Name:        raw.Expert,
				Instruction: raw.Instruction,
				Endpoint:    raw.Endpoint,
				Model:       raw.Model,
				Headers:     raw.Headers,
			},
		}, nil

	case len(raw.Parallel) > 0:
		members := make([]Member, 0, len(raw.Parallel))
		for i, node := range raw.Parallel {
			m, err := parseMember(node)
			if err != nil {
				return Step{}, fmt.Errorf("parallel member %d: %v", i+1, err)
			}
			members = append(members, m)
		}
		return Step{Type: StepParallel, Members: members}, nil

	case raw.AllExperts:
		return Step{Type: StepAll, Instruction: raw.Instruction}, nil

	default:
		if raw.Manual.Author == "" || raw.Manual.Content == "" {
			return Step{}, fmt.Errorf("manual step requires author and content")
		}
		return Step{Type: StepManual, Manual: Manual(*raw.Manual)}, nil
	}
}

// parseMember accepts either a bare name string or a {expert, instruction}
// mapping as a parallel member.
func parseMember(node yaml.Node) (Member, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		var name string
		if err := node.Decode(&name); err != nil {
			return Member{}, fmt.Errorf("invalid scalar: %v", err)
		}
		if name == "" {
			return Member{}, fmt.Errorf("empty expert name")
		}
		return Member{Name: name}, nil

	case yaml.MappingNode:
		var raw rawMember
		if err := node.Decode(&raw); err != nil {
			return Member{}, fmt.Errorf("invalid mapping: %v", err)
		}
		if raw.Expert == "" {
			return Member{}, fmt.Errorf("mapping member requires expert key")
		}
		return Member{
			Name:        raw.Expert,
			Instruction: raw.Instruction,
			Endpoint:    raw.Endpoint,
			Model:       raw.Model,
			Headers:     raw.Headers,
		}, nil

	default:
		return Member{}, fmt.Errorf("member must be a string or a mapping")
	}
}
