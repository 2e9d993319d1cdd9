package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// StartupTab describes a tab to open when the shell starts.
type StartupTab struct {
	URL string `yaml:"url"`
}

// StartupTabs is the top-level YAML document listing startup tabs.
type StartupTabs struct {
	Tabs []StartupTab `yaml:"tabs"`
}

// URLs returns the startup URLs in file order.
func (s *StartupTabs) URLs() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.Tabs))
	for _, t := range s.Tabs {
		out = append(out, t.URL)
	}
	return out
}

// LoadStartupTabs reads a startup tabs YAML file. Returns an
// os.ErrNotExist-wrapped error if the file is absent (caller silently skips
// in that case). An empty list is valid.
func LoadStartupTabs(path string) (*StartupTabs, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("startup tabs: %w", err)
	}
	var st StartupTabs
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("startup tabs: %w", err)
	}
	for i, t := range st.Tabs {
		if t.URL == "" {
			return nil, fmt.Errorf("startup tabs: tabs[%d] missing url", i)
		}
	}
	return &st, nil
}
