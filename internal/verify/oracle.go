// Package verify implements the AI-assisted verification engine: the
// scoring-oracle adapter, the response normalizer, and the orchestrator
// that drives entity status transitions and the audit trail.
package verify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/edufund/veriflow/internal/domain"
	"github.com/edufund/veriflow/internal/ports"
)

// OracleErrorKind categorizes scoring-oracle failures. The normalizer
// keys its fallback policy off this: Unavailable yields the neutral
// fallback, Timeout and Call yield the penalized fallback.
type OracleErrorKind int

const (
	// OracleUnavailable means the oracle was never reached: no client
	// is configured or the provider rejected the request outright.
	OracleUnavailable OracleErrorKind = iota
	// OracleTimeout means a call was attempted but exceeded its bound.
	OracleTimeout
	// OracleCallFailed means a call was attempted and failed.
	OracleCallFailed
)

// OracleError wraps a scoring-oracle failure with its category.
type OracleError struct {
	Kind OracleErrorKind
	Err  error
}

// Error satisfies the error interface.
func (e *OracleError) Error() string {
	switch e.Kind {
	case OracleUnavailable:
		return fmt.Sprintf("oracle unavailable: %v", e.Err)
	case OracleTimeout:
		return fmt.Sprintf("oracle timeout: %v", e.Err)
	default:
		return fmt.Sprintf("oracle call failed: %v", e.Err)
	}
}

// Unwrap returns the underlying error.
func (e *OracleError) Unwrap() error { return e.Err }

// Default oracle request settings. Temperature zero keeps scoring as
// deterministic as the model allows.
const (
	DefaultOracleTemperature = 0.0
	DefaultOracleMaxTokens   = 1024
)

// jsonFormatInstruction is appended to every prompt so responses can be
// parsed reliably even when the model wraps JSON in prose.
const jsonFormatInstruction = "\n\nIMPORTANT: You must respond with valid JSON in exactly this format:\n" +
	`{"score": <0-100>, "subScores": {"<aspect>": <0-100>}, "keyFindings": ["<finding>"], "flags": ["<concern>"], "recommendations": "<follow-up>", "confidence": <0-100>}`

// defaultPromptTemplates holds the per-kind scoring prompts. Each
// template receives the entity name, its flattened fields, and the
// document references (count and URIs, never content).
var defaultPromptTemplates = map[domain.EntityKind]string{
	domain.KindSchool: `You are verifying the legitimacy of a school applying to a donation platform.

School name: {{.Name}}
{{.Fields}}
Supporting documents uploaded: {{.DocumentCount}}
{{.Documents}}
Assess registration details, address plausibility, contact information consistency, and documentation coverage. Score 0-100 where 100 is clearly legitimate.`,

	domain.KindStudent: `You are verifying a student profile applying for scholarships on a donation platform.

Student name: {{.Name}}
{{.Fields}}
Supporting documents uploaded: {{.DocumentCount}}
{{.Documents}}
Assess identity consistency, enrollment plausibility, and documentation coverage. Score 0-100 where 100 is clearly genuine.`,

	domain.KindRequest: `You are verifying a funding request submitted on a donation platform.

Request title: {{.Name}}
{{.Fields}}
Supporting documents uploaded: {{.DocumentCount}}
{{.Documents}}
Assess whether the declared amount is proportionate to the stated purpose, whether the details are internally consistent, and whether the documentation supports the request. Score 0-100 where 100 clearly merits approval.`,

	domain.KindCollege: `You are verifying the legitimacy of a college registering on a donation platform.

College name: {{.Name}}
{{.Fields}}
Supporting documents uploaded: {{.DocumentCount}}
{{.Documents}}
Assess accreditation details, registration numbers, address plausibility, and documentation coverage. Score 0-100 where 100 is clearly legitimate.`,
}

// OracleConfig tunes the scoring-oracle adapter.
type OracleConfig struct {
	// Templates overrides the default per-kind prompt templates.
	// Missing kinds fall back to the defaults.
	Templates map[domain.EntityKind]string

	// Temperature for oracle requests.
	Temperature float64

	// MaxTokens bounds oracle response length.
	MaxTokens int
}

// Oracle adapts the generative-model client into the scoring boundary:
// it renders an entity snapshot into a kind-specific prompt, invokes
// the model, and classifies failures. It holds no persistent state and
// is safe for concurrent use.
type Oracle struct {
	client    ports.LLMClient
	templates map[domain.EntityKind]*template.Template
	config    OracleConfig
}

// NewOracle builds an Oracle over the given client. A nil client is
// legal and yields OracleUnavailable on every Score call, which the
// normalizer converts into the neutral fallback.
func NewOracle(client ports.LLMClient, config OracleConfig) (*Oracle, error) {
	if config.Temperature == 0 {
		config.Temperature = DefaultOracleTemperature
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = DefaultOracleMaxTokens
	}

	templates := make(map[domain.EntityKind]*template.Template, len(defaultPromptTemplates))
	for kind, text := range defaultPromptTemplates {
		if override, ok := config.Templates[kind]; ok && override != "" {
			text = override
		}
		tmpl, err := template.New(kind.String()).Parse(text)
		if err != nil {
			return nil, fmt.Errorf("parse %s prompt template: %w", kind, err)
		}
		templates[kind] = tmpl
	}

	return &Oracle{client: client, templates: templates, config: config}, nil
}

// Configured reports whether an oracle client is wired in.
func (o *Oracle) Configured() bool { return o.client != nil }

// Score sends the entity snapshot to the oracle and returns the raw
// response text. All failures come back as *OracleError; the caller
// decides the fallback policy.
func (o *Oracle) Score(ctx context.Context, entity domain.Entity) (string, error) {
	if o.client == nil {
		return "", &OracleError{Kind: OracleUnavailable, Err: errors.New("no oracle client configured")}
	}

	prompt, err := o.buildPrompt(entity)
	if err != nil {
		return "", &OracleError{Kind: OracleUnavailable, Err: err}
	}

	options := map[string]any{
		"temperature": o.config.Temperature,
		"max_tokens":  o.config.MaxTokens,
	}
	if supportsJSONMode(o.client) {
		options["response_format"] = map[string]string{"type": "json_object"}
	}

	response, err := o.client.Complete(ctx, prompt, options)
	if err != nil {
		return "", classifyOracleErr(err)
	}
	return response, nil
}

// buildPrompt renders the kind-specific template with a sanitized
// entity snapshot and appends the JSON format instruction.
func (o *Oracle) buildPrompt(entity domain.Entity) (string, error) {
	tmpl, ok := o.templates[entity.Kind]
	if !ok {
		return "", fmt.Errorf("no prompt template for kind %q", entity.Kind)
	}

	var buf bytes.Buffer
	data := struct {
		Name          string
		Fields        string
		DocumentCount int
		Documents     string
	}{
		Name:          sanitizeContent(entity.Name),
		Fields:        formatFields(entity.Fields),
		DocumentCount: len(entity.Documents),
		Documents:     formatDocuments(entity.Documents),
	}
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute %s prompt template: %w", entity.Kind, err)
	}

	return buf.String() + jsonFormatInstruction, nil
}

// formatFields renders the entity's flattened fields in a stable order
// so prompts are deterministic for a given snapshot.
func formatFields(fields map[string]string) string {
	if len(fields) == 0 {
		return "No additional details provided.\n"
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, sanitizeContent(fields[k]))
	}
	return b.String()
}

func formatDocuments(docs []string) string {
	if len(docs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Document references:\n")
	for _, d := range docs {
		fmt.Fprintf(&b, "- %s\n", sanitizeContent(d))
	}
	return b.String()
}

// sanitizeContent guards against prompt injection from user-supplied
// fields by neutralizing code fences and collapsing newlines.
func sanitizeContent(s string) string {
	s = strings.ReplaceAll(s, "```", "'''")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}

// supportsJSONMode reports whether the provider accepts a structured
// JSON response format hint.
func supportsJSONMode(client ports.LLMClient) bool {
	model := strings.ToLower(client.GetModel())
	return strings.Contains(model, "gpt") || strings.Contains(model, "gemini")
}

// classifyOracleErr maps a transport failure onto the oracle error
// taxonomy using the provider's error classification.
func classifyOracleErr(err error) *OracleError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &OracleError{Kind: OracleTimeout, Err: err}
	}

	var timeouter interface{ IsTimeout() bool }
	if errors.As(err, &timeouter) && timeouter.IsTimeout() {
		return &OracleError{Kind: OracleTimeout, Err: err}
	}

	return &OracleError{Kind: OracleCallFailed, Err: err}
}
