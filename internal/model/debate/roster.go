package debate

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type rosterFile struct {
	Agents []struct {
		Name          string `yaml:"name"`
		SystemMessage string `yaml:"system_message"`
	} `yaml:"agents"`
}

// LoadRoster 从 YAML 文件读取默认阵容，空路径返回 Seed()。
//
//	agents:
//	  - name: Debater_A
//	    system_message: You argue for the proposition.
func LoadRoster(path string) ([]Agent, error) {
	if path == "" {
		return Seed(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster file: %w", err)
	}

	var file rosterFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse roster file %s: %w", path, err)
	}

	agents := make([]Agent, 0, len(file.Agents))
	for _, item := range file.Agents {
		agents = append(agents, Agent{Name: strings.TrimSpace(item.Name), SystemMessage: item.SystemMessage})
	}

	if err := ValidateAgents(agents); err != nil {
		return nil, fmt.Errorf("roster file %s: %w", path, err)
	}
	return agents, nil
}
