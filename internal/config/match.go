package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Match describes one game: which agent drives each power and how
// negotiation is configured. Loaded from a YAML match file.
type Match struct {
	Game              string       `yaml:"game"`
	NegotiationRounds int          `yaml:"negotiation_rounds"`
	Powers            []Assignment `yaml:"powers"`
}

// Assignment binds a power to an agent. Assignments sharing a non-empty
// Bloc name are driven by a single agent controlling all of them.
type Assignment struct {
	Power   string `yaml:"power"`
	Agent   string `yaml:"agent"` // hold, random, external
	Command string `yaml:"command,omitempty"`
	Bloc    string `yaml:"bloc,omitempty"`
}

// LoadMatch reads and validates a match file.
func LoadMatch(path string) (*Match, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Match
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("match file: %w", err)
	}
	if m.NegotiationRounds < 1 {
		m.NegotiationRounds = 1
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("match file: %w", err)
	}
	return &m, nil
}

func (m *Match) validate() error {
	if len(m.Powers) == 0 {
		return fmt.Errorf("no powers configured")
	}
	seen := make(map[string]bool)
	blocAgents := make(map[string]string)
	for _, a := range m.Powers {
		if a.Power == "" {
			return fmt.Errorf("assignment missing power")
		}
		if seen[a.Power] {
			return fmt.Errorf("power %s assigned twice", a.Power)
		}
		seen[a.Power] = true
		if a.Agent == "" {
			return fmt.Errorf("power %s has no agent", a.Power)
		}
		if a.Bloc != "" {
			// All members of a bloc must use the same agent spec.
			key := a.Agent + "|" + a.Command
			if prev, ok := blocAgents[a.Bloc]; ok && prev != key {
				return fmt.Errorf("bloc %s has conflicting agent specs", a.Bloc)
			}
			blocAgents[a.Bloc] = key
		}
	}
	return nil
}

// Blocs groups assignments by bloc name. Assignments without a bloc are
// returned under their own power name as singleton groups.
func (m *Match) Blocs() map[string][]Assignment {
	groups := make(map[string][]Assignment)
	for _, a := range m.Powers {
		key := a.Bloc
		if key == "" {
			key = a.Power
		}
		groups[key] = append(groups[key], a)
	}
	return groups
}
