package config

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/pairium/experimentd/pkg/agentrunner"
	"github.com/pairium/experimentd/pkg/llmstream"
)

// toolYAML is the on-disk shape of one tool a chat agent may call.
type toolYAML struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Parameters  map[string]any `yaml:"parameters,omitempty"`
}

// agentYAML is the on-disk shape of one entry under agents.yaml's top-level
// "agents" map, keyed by agent id.
type agentYAML struct {
	Model           string     `yaml:"model"`
	System          string     `yaml:"system"`
	ReasoningEffort string     `yaml:"reasoning_effort,omitempty"`
	Tools           []toolYAML `yaml:"tools,omitempty"`
}

type agentsFile struct {
	Agents map[string]agentYAML `yaml:"agents"`
}

// AgentRegistry holds the chat-agent definitions a config's chat
// components reference by id. Generalizes the teacher's AgentRegistry
// (pkg/config/agent.go) from investigation-agent metadata (MCP servers,
// LLM backend, max iterations) to chat-agent definitions (model, system
// prompt, callable tools) — same in-memory-map-with-RWMutex shape, new
// payload.
type AgentRegistry struct {
	mu     sync.RWMutex
	agents map[string]agentrunner.AgentDef
}

// LoadAgentRegistry reads an agents.yaml file, expanding ${VAR} references
// the same way the teacher's loader expands tarsy.yaml (pkg/config's
// ExpandEnv, envexpand.go, kept unchanged).
func LoadAgentRegistry(path string) (*AgentRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read agents file %s: %w", path, err)
	}
	data = ExpandEnv(data)

	var file agentsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("config: parse agents file %s: %w", path, err)
	}

	agents := make(map[string]agentrunner.AgentDef, len(file.Agents))
	for id, a := range file.Agents {
		if a.Model == "" {
			return nil, fmt.Errorf("config: agent %q missing required field 'model'", id)
		}
		tools := make([]llmstream.ToolSchema, 0, len(a.Tools))
		for _, t := range a.Tools {
			tools = append(tools, llmstream.ToolSchema{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			})
		}
		agents[id] = agentrunner.AgentDef{
			ID:              id,
			Model:           a.Model,
			System:          a.System,
			Tools:           tools,
			ReasoningEffort: a.ReasoningEffort,
		}
	}

	return &AgentRegistry{agents: agents}, nil
}

// Agent implements agentrunner.AgentLookup.
func (r *AgentRegistry) Agent(id string) (agentrunner.AgentDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.agents[id]
	return def, ok
}

// Len reports the number of configured agents.
func (r *AgentRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}
