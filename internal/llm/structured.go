package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ppiankov/autoclaim/internal/model"
	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/sirupsen/logrus"
)

// Schema is a record type the model can be asked to produce
type Schema interface {
	SchemaName() string
	JSONSchema() jsonschema.Definition
}

// Validator is implemented by records with checks beyond the JSON schema
type Validator interface {
	Validate() error
}

// Generator turns prompts into typed records using a Provider
type Generator struct {
	provider    Provider
	model       string
	maxTokens   int
	temperature float32
	logger      logrus.FieldLogger
}

// NewGenerator creates a structured generator over provider
func NewGenerator(provider Provider, config Config, logger logrus.FieldLogger) *Generator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Generator{
		provider:    provider,
		model:       config.Model,
		maxTokens:   config.MaxTokens,
		temperature: config.Temperature,
		logger:      logger,
	}
}

// GenerateStructured renders prompt with args, asks the model for a value
// conforming to schema, and decodes it into out (a pointer).
// Transport failures wrap model.ErrInference; output that does not match the
// schema wraps model.ErrSchemaValidation.
func (g *Generator) GenerateStructured(ctx context.Context, schema Schema, prompt *Prompt, args map[string]string, out any) error {
	text, err := prompt.Render(args)
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrInference, err)
	}

	def := schema.JSONSchema()
	schemaJSON, err := json.Marshal(&def)
	if err != nil {
		return fmt.Errorf("%w: marshal %s schema: %w", model.ErrInference, schema.SchemaName(), err)
	}

	req := CompletionRequest{
		Model:       g.model,
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
		Messages: []Message{
			{Role: RoleSystem, Content: fmt.Sprintf(
				"Respond only with one JSON object matching the %s JSON schema below. Do not add commentary.\n%s",
				schema.SchemaName(), schemaJSON)},
			{Role: RoleUser, Content: text},
		},
		Schema: &ResponseSchema{Name: schema.SchemaName(), Schema: &def},
	}

	log := g.logger.WithFields(logrus.Fields{
		"provider": g.provider.Name(),
		"prompt":   prompt.Name(),
		"schema":   schema.SchemaName(),
	})
	log.Debug("requesting structured completion")

	resp, err := g.provider.Complete(ctx, req)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", model.ErrInference, g.provider.Name(), err)
	}

	log.WithFields(logrus.Fields{
		"input_tokens":  resp.InputTokens,
		"output_tokens": resp.OutputTokens,
		"finish_reason": resp.FinishReason,
	}).Debug("structured completion received")

	if err := DecodeStructured(resp.Content, def, out); err != nil {
		return fmt.Errorf("%w: %s: %w", model.ErrSchemaValidation, schema.SchemaName(), err)
	}
	return nil
}

// Generate is the typed form of GenerateStructured
func Generate[T Schema](ctx context.Context, g *Generator, prompt *Prompt, args map[string]string) (T, error) {
	var out T
	err := g.GenerateStructured(ctx, out, prompt, args, &out)
	return out, err
}

// DecodeStructured parses model output into out. Code fences and text around
// the outermost JSON object are ignored; required keys of def must be present
// and non-null.
func DecodeStructured(content string, def jsonschema.Definition, out any) error {
	payload := extractJSONObject(content)
	if payload == "" {
		return errors.New("response contains no JSON object")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &fields); err != nil {
		return fmt.Errorf("response is not a JSON object: %w", err)
	}

	var missing []string
	for _, key := range def.Required {
		raw, ok := fields[key]
		if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}

	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if v, ok := out.(Validator); ok {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// extractJSONObject strips markdown fences and returns the outermost {...} span
func extractJSONObject(content string) string {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}
