package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile is a named stage preset stored as a YAML file in the profiles
// directory. Only the fields present in the file are meaningful; Apply
// overlays the whole stage block onto the current configuration.
type Profile struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Stages      Stages `yaml:"stages"`
}

// ListProfiles returns the profiles found in dir, sorted by name. A missing
// directory is not an error; it just means no presets exist yet.
func ListProfiles(dir string) ([]Profile, error) {
	expanded, err := expandUser(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(expanded)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var profiles []Profile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		p, err := loadProfileFile(filepath.Join(expanded, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("profile %s: %w", e.Name(), err)
		}
		profiles = append(profiles, p)
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Name < profiles[j].Name })
	return profiles, nil
}

// LoadProfile finds a profile by name in dir.
func LoadProfile(dir, name string) (Profile, error) {
	profiles, err := ListProfiles(dir)
	if err != nil {
		return Profile{}, err
	}
	for _, p := range profiles {
		if p.Name == name {
			return p, nil
		}
	}
	return Profile{}, fmt.Errorf("profile %q not found in %s", name, dir)
}

// Apply overlays the profile's stage options onto cfg and re-normalizes.
func (p Profile) Apply(cfg *Config) {
	cfg.Stages = p.Stages
	cfg.Stages.Normalize()
}

func loadProfileFile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, err
	}
	p := Profile{Stages: DefaultStages()}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, err
	}
	if p.Name == "" {
		base := filepath.Base(path)
		p.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return p, nil
}
