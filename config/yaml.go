package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// yamlProfile mirrors Profile with yaml tags; kept separate so Profile
// itself stays a plain struct for the in-code named profiles above.
type yamlProfile struct {
	Name            string `yaml:"name"`
	MaxNodes        int    `yaml:"max_nodes"`
	MaxRegisters    int    `yaml:"max_registers"`
	MaxCounters     int    `yaml:"max_counters"`
	MaxSets         int    `yaml:"max_sets"`
	MaxMaps         int    `yaml:"max_maps"`
	MaxSetElements  int    `yaml:"max_set_elements"`
	MaxMapEntries   int    `yaml:"max_map_entries"`
	MaxHistorySize  int    `yaml:"max_history_size"`
	TotalCRDTMemory int    `yaml:"total_crdt_memory"`
	ClockBudget     int    `yaml:"clock_budget"`
	ErrorBufferSize int    `yaml:"error_buffer_size"`
	MemoryAlignment int    `yaml:"memory_alignment"`
	CacheLineSize   int    `yaml:"cache_line_size"`
}

// LoadProfile reads a named ceiling profile from a YAML file, validating it
// before returning. Used by the domain bundles (bundles/automotive) to pick
// a per-ECU-class profile without recompiling, the way calvinalkan-agent-task
// and vjache-cie load their own YAML-based settings.
func LoadProfile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("config: reading profile %s: %w", path, err)
	}
	var y yamlProfile
	if err := yaml.Unmarshal(data, &y); err != nil {
		return Profile{}, fmt.Errorf("config: parsing profile %s: %w", path, err)
	}
	p := Profile(y)
	if err := p.Validate(); err != nil {
		return Profile{}, fmt.Errorf("config: profile %s invalid: %w", path, err)
	}
	return p, nil
}

// MarshalYAML lets a Profile be written back out, e.g. by an operator
// dumping the effective configuration a bundle resolved at startup.
func (p Profile) MarshalYAML() (any, error) {
	return yamlProfile(p), nil
}
