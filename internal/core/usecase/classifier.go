package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/kirillkom/script-kb-assistant/internal/core/domain"
	"github.com/kirillkom/script-kb-assistant/internal/core/ports"
)

// Classifier routes a query to structured, semantic or hybrid retrieval with a single
// schema-constrained model call. Errors are returned as-is; there is no fallback route.
type Classifier struct {
	generator ports.StructuredGenerator
	schema    map[string]any
	validator *gojsonschema.Schema
}

func NewClassifier(generator ports.StructuredGenerator) (*Classifier, error) {
	schema := ClassificationSchema()
	validator, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
	if err != nil {
		return nil, fmt.Errorf("compile classification schema: %w", err)
	}
	return &Classifier{generator: generator, schema: schema, validator: validator}, nil
}

type classificationOutput struct {
	QueryType     string          `json:"query_type"`
	Filters       json.RawMessage `json:"filters"`
	SemanticQuery *string         `json:"semantic_query"`
}

func (c *Classifier) Classify(ctx context.Context, query string) (domain.IntentClassification, error) {
	if strings.TrimSpace(query) == "" {
		return domain.IntentClassification{}, domain.WrapError(domain.ErrInvalidInput, "classify query", errors.New("query is required"))
	}

	raw, err := c.generator.GenerateStructured(ctx, buildClassificationPrompt(query), c.schema)
	if err != nil {
		if domain.IsKind(err, domain.ErrUpstreamModel) {
			return domain.IntentClassification{}, err
		}
		return domain.IntentClassification{}, domain.WrapError(domain.ErrUpstreamModel, "classify query", err)
	}

	result, err := c.validator.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return domain.IntentClassification{}, domain.WrapError(domain.ErrSchemaMismatch, "classify query", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return domain.IntentClassification{}, domain.WrapError(domain.ErrSchemaMismatch, "classify query", errors.New(strings.Join(msgs, "; ")))
	}

	var out classificationOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return domain.IntentClassification{}, domain.WrapError(domain.ErrSchemaMismatch, "classify query", err)
	}

	kind := domain.QueryKind(out.QueryType)
	if !kind.Valid() {
		return domain.IntentClassification{}, domain.WrapError(domain.ErrSchemaMismatch, "classify query", fmt.Errorf("unknown query_type %q", out.QueryType))
	}

	cls := domain.IntentClassification{QueryKind: kind}
	if kind.UsesStructured() {
		filters, err := domain.DecodeFilters(out.Filters)
		if err != nil {
			return domain.IntentClassification{}, err
		}
		cls.Filters = filters
	}
	if kind.UsesSemantic() {
		cls.SemanticQuery = query
		if out.SemanticQuery != nil && strings.TrimSpace(*out.SemanticQuery) != "" {
			cls.SemanticQuery = strings.TrimSpace(*out.SemanticQuery)
		}
	}
	return cls, nil
}

// ClassificationSchema is the JSON schema the classifier output must satisfy. Filter
// properties are the union of every kind's vocabulary; per-kind membership is enforced
// by domain.DecodeFilters.
func ClassificationSchema() map[string]any {
	kinds := make([]any, 0, len(domain.StructuredKinds())+1)
	for _, k := range domain.StructuredKinds() {
		kinds = append(kinds, string(k))
	}
	kinds = append(kinds, nil)

	filterProps := map[string]any{
		"entity_kind":        map[string]any{"type": []string{"string", "null"}, "enum": kinds},
		domain.ScriptIDField: map[string]any{"type": []string{"string", "null"}},
	}
	for _, k := range domain.StructuredKinds() {
		for _, f := range k.Fields() {
			filterProps[f.Name] = map[string]any{"type": []string{string(f.Type), "null"}}
		}
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query_type": map[string]any{
				"type": "string",
				"enum": []any{string(domain.QueryStructured), string(domain.QuerySemantic), string(domain.QueryHybrid)},
			},
			"filters": map[string]any{
				"type":                 []string{"object", "null"},
				"properties":           filterProps,
				"additionalProperties": false,
			},
			"semantic_query": map[string]any{"type": []string{"string", "null"}},
		},
		"required":             []string{"query_type"},
		"additionalProperties": false,
	}
}

func buildClassificationPrompt(query string) string {
	var b strings.Builder
	b.WriteString("You route questions about a murder-mystery script (剧本杀) knowledge base.\n")
	b.WriteString("Return JSON with fields query_type, filters and semantic_query.\n\n")
	b.WriteString("query_type:\n")
	b.WriteString("- structured: the question asks for entities matching exact attributes (e.g. \"所有硬核难度的诡计\").\n")
	b.WriteString("- semantic: the question is open-ended and needs free-text passages (e.g. \"凶手的作案动机是什么\").\n")
	b.WriteString("- hybrid: the question combines attribute constraints with open-ended content.\n\n")
	b.WriteString("filters (structured and hybrid only): set entity_kind and only the fields listed for that kind; omit unknown values.\n")
	b.WriteString("Every kind also accepts script_id.\n")

	for _, k := range domain.StructuredKinds() {
		fmt.Fprintf(&b, "- %s (%s):", k, k.Label())
		fields := k.Fields()
		for i, f := range fields {
			if i > 0 {
				b.WriteString(",")
			}
			fmt.Fprintf(&b, " %s [%s] %s", f.Name, f.Type, f.Description)
		}
		b.WriteString("\n")
	}

	b.WriteString("\nsemantic_query (semantic and hybrid only): the part of the question to search as free text.\n\n")
	b.WriteString("Question: ")
	b.WriteString(query)
	return b.String()
}
