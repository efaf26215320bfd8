package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/edufund/veriflow/internal/domain"
)

// PromptConfig is the optional YAML file that overrides the built-in
// oracle prompts and request settings. Missing kinds keep the default
// prompt.
type PromptConfig struct {
	// Prompts maps entity kind to a replacement prompt template. The
	// templates receive .Name, .Fields, .DocumentCount, and .Documents.
	Prompts map[string]string `yaml:"prompts" validate:"dive,keys,oneof=school student request college,endkeys,required"`

	// Temperature for oracle requests.
	Temperature float64 `yaml:"temperature" validate:"gte=0,lte=2"`

	// MaxTokens bounds oracle response length.
	MaxTokens int `yaml:"max_tokens" validate:"gte=0,lte=32768"`
}

// LoadPromptConfig reads and validates a prompt override file. An empty
// path returns a zero config, which leaves all defaults in place.
func LoadPromptConfig(path string) (PromptConfig, error) {
	var cfg PromptConfig
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return PromptConfig{}, fmt.Errorf("config: read prompt config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return PromptConfig{}, fmt.Errorf("config: parse prompt config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return PromptConfig{}, fmt.Errorf("config: invalid prompt config: %w", err)
	}
	return cfg, nil
}

// Templates converts the string-keyed overrides into the kind-keyed map
// the oracle consumes.
func (p PromptConfig) Templates() map[domain.EntityKind]string {
	if len(p.Prompts) == 0 {
		return nil
	}
	templates := make(map[domain.EntityKind]string, len(p.Prompts))
	for key, prompt := range p.Prompts {
		kind, err := domain.ParseEntityKind(key)
		if err != nil {
			continue
		}
		templates[kind] = prompt
	}
	return templates
}
