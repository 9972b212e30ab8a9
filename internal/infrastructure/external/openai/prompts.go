package openai

import (
	"bytes"
	"fmt"
	"os"
	"text/template"

	"gopkg.in/yaml.v3"
)

// PromptConfig holds the prompts and model parameters used by the advisor
type PromptConfig struct {
	Advisory struct {
		Temperature  float32 `yaml:"temperature"`
		MaxTokens    int     `yaml:"max_tokens"`
		System       string  `yaml:"system"`
		UserTemplate string  `yaml:"user_template"`
	} `yaml:"advisory"`
}

const defaultPrompts = `
advisory:
  temperature: 0.2
  max_tokens: 300
  system: >-
    You review employee expense claims before a manager sees them.
    Point out anything a reviewer should double check, such as unusual amounts
    for the category, vague descriptions or a missing receipt.
    Respond with JSON {"note": string, "flags": [string]} and keep the note under 60 words.
  user_template: |-
    Category: {{.Category}}
    Amount: {{.Amount}} {{.Currency}}
    Date: {{.Date}}
    Description: {{.Description}}
    Receipt attached: {{.HasReceipt}}
`

// DefaultPrompts returns the built-in prompt configuration
func DefaultPrompts() *PromptConfig {
	prompts, err := parsePrompts([]byte(defaultPrompts))
	if err != nil {
		panic(fmt.Sprintf("built-in prompts are invalid: %v", err))
	}
	return prompts
}

// LoadPrompts loads prompt configuration from a YAML file
func LoadPrompts(promptsPath string) (*PromptConfig, error) {
	data, err := os.ReadFile(promptsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}
	return parsePrompts(data)
}

func parsePrompts(data []byte) (*PromptConfig, error) {
	var prompts PromptConfig
	if err := yaml.Unmarshal(data, &prompts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prompts: %w", err)
	}
	if prompts.Advisory.System == "" || prompts.Advisory.UserTemplate == "" {
		return nil, fmt.Errorf("advisory prompt requires system and user_template")
	}
	return &prompts, nil
}

func renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("prompt").Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}
