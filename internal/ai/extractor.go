package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"text/template"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/amishk599/inboxsheet/internal/model"
)

// envelopeSchema is the only shape the oracle output is held to: an object
// with a "jobs" list of objects. Field values are not checked.
const envelopeSchema = `{
	"type": "object",
	"required": ["jobs"],
	"properties": {
		"jobs": {
			"type": ["array", "null"],
			"items": {"type": "object"}
		}
	}
}`

var compiledEnvelope = mustCompile("envelope.json", envelopeSchema)

func mustCompile(name, schema string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(schema)); err != nil {
		panic(fmt.Sprintf("add schema %s: %v", name, err))
	}
	return compiler.MustCompile(name)
}

var codeFence = regexp.MustCompile("```[A-Za-z]*")

// RecordExtractor turns message text into job records through an LLM.
type RecordExtractor struct {
	provider      LLMProvider
	tmpl          *template.Template
	maxInputChars int
	logger        *slog.Logger
}

// NewRecordExtractor creates an extractor. Text longer than maxInputChars
// runes is cut before it is sent; 0 disables the cut.
func NewRecordExtractor(provider LLMProvider, tmpl *template.Template, maxInputChars int, logger *slog.Logger) *RecordExtractor {
	return &RecordExtractor{
		provider:      provider,
		tmpl:          tmpl,
		maxInputChars: maxInputChars,
		logger:        logger,
	}
}

// Extract returns the job records found in text.
//
// Output that is not JSON, or JSON without a "jobs" list, yields no records
// and no error. An error is only returned when the LLM call itself fails, so
// the caller can retry the message later.
func (x *RecordExtractor) Extract(ctx context.Context, text string) ([]model.JobRecord, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	var promptBuf bytes.Buffer
	if err := x.tmpl.Execute(&promptBuf, promptData{
		Fields: model.RecordFields,
		Body:   truncate(text, x.maxInputChars),
	}); err != nil {
		return nil, fmt.Errorf("render prompt: %w", err)
	}

	raw, err := x.provider.Complete(ctx, promptBuf.String())
	if err != nil {
		return nil, fmt.Errorf("llm complete: %w", err)
	}

	records, err := ParseRecords(raw)
	if err != nil {
		x.logger.Warn("discarding unusable llm output", "error", err, "output", preview(raw, 200))
		return nil, nil
	}
	return records, nil
}

// ParseRecords parses an oracle response into records. Markdown code fences
// around the JSON are tolerated.
func ParseRecords(raw string) ([]model.JobRecord, error) {
	cleaned := StripCodeFences(raw)
	if cleaned == "" {
		return nil, errors.New("empty response")
	}

	var doc any
	if err := json.Unmarshal([]byte(cleaned), &doc); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if err := compiledEnvelope.Validate(doc); err != nil {
		return nil, fmt.Errorf("response does not match envelope: %w", err)
	}

	var env struct {
		Jobs []model.JobRecord `json:"jobs"`
	}
	if err := json.Unmarshal([]byte(cleaned), &env); err != nil {
		return nil, fmt.Errorf("decode jobs: %w", err)
	}
	return env.Jobs, nil
}

// StripCodeFences removes ``` markers (with an optional language tag) and
// surrounding whitespace.
func StripCodeFences(s string) string {
	return strings.TrimSpace(codeFence.ReplaceAllString(strings.TrimSpace(s), ""))
}

func truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}

func preview(s string, max int) string {
	s = truncate(s, max)
	return strings.ReplaceAll(s, "\n", " ")
}
