package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Preset is one expert persona definition. The tag is the lookup key used in
// schedule names ("creative#temp#1" looks up tag "creative").
type Preset struct {
	Tag         string  `yaml:"tag" json:"tag"`
	Name        string  `yaml:"name" json:"name"`
	Persona     string  `yaml:"persona" json:"persona"`
	Temperature float64 `yaml:"temperature" json:"temperature"`
	// Source is "public" for YAML/built-in presets, "user" for user-defined.
	Source string `yaml:"-" json:"source"`
}

// PresetStore resolves expert tags to presets. Public presets come from
// configuration; user presets are persisted as one JSON file under the data
// dir and scoped per owner.
type PresetStore struct {
	mu     sync.RWMutex
	public map[string]Preset
	// user presets: owner → tag → preset
	user map[string]map[string]Preset
	path string
}

// userPresetFile is the persisted shape of the user preset map.
type userPresetFile struct {
	Users map[string]map[string]Preset `json:"users"`
}

// NewPresetStore builds a store over the given public presets and loads any
// previously saved user presets from path (absent file is fine).
func NewPresetStore(public []Preset, path string) (*PresetStore, error) {
	s := &PresetStore{
		public: make(map[string]Preset, len(public)),
		user:   make(map[string]map[string]Preset),
		path:   path,
	}
	for _, p := range public {
		p.Source = "public"
		s.public[p.Tag] = p
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read user presets %s: %w", path, err)
	}
	var file userPresetFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to decode user presets %s: %w", path, err)
	}
	if file.Users != nil {
		s.user = file.Users
	}
	return s, nil
}

// LookupByTag resolves a tag for an owner: the owner's user presets shadow
// public ones. The second return is false when the tag is unknown.
func (s *PresetStore) LookupByTag(tag, owner string) (Preset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if owner != "" {
		if presets, ok := s.user[owner]; ok {
			if p, ok := presets[tag]; ok {
				p.Source = "user"
				return p, true
			}
		}
	}
	p, ok := s.public[tag]
	return p, ok
}

// List returns public presets plus the owner's user presets, sorted by tag.
func (s *PresetStore) List(owner string) []Preset {
	s.mu.RLock()
	defer s.mu.RUnlock()

	merged := make(map[string]Preset, len(s.public))
	for tag, p := range s.public {
		merged[tag] = p
	}
	if owner != "" {
		for tag, p := range s.user[owner] {
			p.Source = "user"
			merged[tag] = p
		}
	}

	out := make([]Preset, 0, len(merged))
	for _, p := range merged {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return out
}

// Add creates a user preset. Fails if the tag already exists for the owner.
func (s *PresetStore) Add(owner string, p Preset) (Preset, error) {
	if p.Tag == "" || p.Name == "" {
		return Preset{}, &ValidationError{Field: "preset", Message: "tag and name are required"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.user[owner][p.Tag]; ok {
		return Preset{}, fmt.Errorf("preset %q already exists for user %s", p.Tag, owner)
	}
	if s.user[owner] == nil {
		s.user[owner] = make(map[string]Preset)
	}
	p.Source = "user"
	s.user[owner][p.Tag] = p
	return p, s.saveLocked()
}

// Update replaces an existing user preset.
func (s *PresetStore) Update(owner, tag string, p Preset) (Preset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.user[owner][tag]; !ok {
		return Preset{}, fmt.Errorf("preset %q not found for user %s", tag, owner)
	}
	p.Tag = tag
	p.Source = "user"
	s.user[owner][tag] = p
	return p, s.saveLocked()
}

// Delete removes a user preset.
func (s *PresetStore) Delete(owner, tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.user[owner][tag]; !ok {
		return fmt.Errorf("preset %q not found for user %s", tag, owner)
	}
	delete(s.user[owner], tag)
	if len(s.user[owner]) == 0 {
		delete(s.user, owner)
	}
	return s.saveLocked()
}

// PublicCount returns the number of public presets (for startup logging).
func (s *PresetStore) PublicCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.public)
}

// saveLocked persists user presets (caller holds s.mu). Write-to-temp plus
// rename, same discipline as topic snapshots.
func (s *PresetStore) saveLocked() error {
	if s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(userPresetFile{Users: s.user}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal user presets: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create preset dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "presets.*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp preset file: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("failed to write user presets: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("failed to close user presets: %w", err)
	}
	if err := os.Rename(name, s.path); err != nil {
		os.Remove(name)
		return fmt.Errorf("failed to rename user presets: %w", err)
	}
	return nil
}
