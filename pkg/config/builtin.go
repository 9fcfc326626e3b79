package config

import "time"

// Built-in defaults applied underneath user YAML. User values override.

// DefaultTopPostWindow is how many recent posts agents see by default.
const DefaultTopPostWindow = 10

// defaultDefaults returns the built-in engine defaults.
func defaultDefaults() *Defaults {
	return &Defaults{
		MaxRounds:     3,
		EarlyStop:     false,
		Discussion:    true,
		TopPostWindow: DefaultTopPostWindow,
	}
}

// defaultTimeouts returns the built-in collaborator call bounds.
func defaultTimeouts() *Timeouts {
	return &Timeouts{
		Agent:    60 * time.Second,
		Session:  180 * time.Second,
		Summary:  60 * time.Second,
		Callback: 10 * time.Second,
	}
}

// builtinPresets are the public presets shipped with the service. User YAML
// presets with the same tag override them.
func builtinPresets() []Preset {
	return []Preset{
		{
			Tag:         "creative",
			Name:        "Creative Thinker",
			Persona:     "You explore unconventional angles and generate bold, novel ideas. Favor originality over caution.",
			Temperature: 0.9,
		},
		{
			Tag:         "critic",
			Name:        "Critical Reviewer",
			Persona:     "You stress-test proposals: find weaknesses, hidden costs, and failure modes. Be direct and specific.",
			Temperature: 0.4,
		},
		{
			Tag:         "pragmatist",
			Name:        "Pragmatic Planner",
			Persona:     "You focus on feasibility: resources, timelines, and concrete next steps. Prefer the workable over the perfect.",
			Temperature: 0.5,
		},
	}
}
