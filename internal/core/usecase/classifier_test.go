package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/script-kb-assistant/internal/core/domain"
)

func newTestClassifier(t *testing.T, gen *structuredGeneratorFake) *Classifier {
	t.Helper()
	c, err := NewClassifier(gen)
	if err != nil {
		t.Fatalf("NewClassifier() error = %v", err)
	}
	return c
}

func TestClassifierStructured(t *testing.T) {
	gen := &structuredGeneratorFake{out: `{"query_type":"structured","filters":{"entity_kind":"trick","difficulty":"硬核"},"semantic_query":"ignored"}`}
	cls, err := newTestClassifier(t, gen).Classify(context.Background(), "列出所有硬核难度的诡计")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if cls.QueryKind != domain.QueryStructured {
		t.Fatalf("unexpected kind %s", cls.QueryKind)
	}
	if cls.Filters == nil || cls.Filters.Kind() != domain.KindTrick {
		t.Fatalf("unexpected filters %#v", cls.Filters)
	}
	if cls.SemanticQuery != "" {
		t.Fatalf("semantic query must be dropped for structured queries, got %q", cls.SemanticQuery)
	}
	if !strings.Contains(gen.prompt, "列出所有硬核难度的诡计") {
		t.Fatalf("prompt does not contain the query")
	}
	if gen.schema == nil {
		t.Fatalf("schema was not passed to the generator")
	}
}

func TestClassifierSemanticDefaultsToRawQuery(t *testing.T) {
	gen := &structuredGeneratorFake{out: `{"query_type":"semantic","filters":{"entity_kind":"clue"},"semantic_query":"  "}`}
	cls, err := newTestClassifier(t, gen).Classify(context.Background(), "凶手为什么要这么做")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if cls.Filters != nil {
		t.Fatalf("filters must be dropped for semantic queries")
	}
	if cls.SemanticQuery != "凶手为什么要这么做" {
		t.Fatalf("expected raw query fallback, got %q", cls.SemanticQuery)
	}
}

func TestClassifierHybridKeepsBoth(t *testing.T) {
	gen := &structuredGeneratorFake{out: `{"query_type":"hybrid","filters":{"entity_kind":"character","role":"murderer","script_id":null},"semantic_query":"作案动机"}`}
	cls, err := newTestClassifier(t, gen).Classify(context.Background(), "凶手的作案动机")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if cls.Filters == nil || len(cls.Filters.Conditions()) != 1 {
		t.Fatalf("unexpected filters %#v", cls.Filters)
	}
	if cls.SemanticQuery != "作案动机" {
		t.Fatalf("unexpected semantic query %q", cls.SemanticQuery)
	}
}

func TestClassifierIgnoresNullFieldsOfOtherKinds(t *testing.T) {
	gen := &structuredGeneratorFake{out: `{"query_type":"structured","filters":{"entity_kind":"trick","difficulty":"硬核","role":null,"era":null,"is_key":null}}`}
	cls, err := newTestClassifier(t, gen).Classify(context.Background(), "列出所有硬核难度的诡计")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if cls.Filters == nil || cls.Filters.Kind() != domain.KindTrick {
		t.Fatalf("unexpected filters %#v", cls.Filters)
	}
	conds := cls.Filters.Conditions()
	if len(conds) != 1 || conds[0].Field != "difficulty" || conds[0].Value != "硬核" {
		t.Fatalf("unexpected conditions %#v", conds)
	}
}

func TestClassifierStructuredWithoutKind(t *testing.T) {
	gen := &structuredGeneratorFake{out: `{"query_type":"structured","filters":null}`}
	cls, err := newTestClassifier(t, gen).Classify(context.Background(), "随便问问")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if cls.Filters != nil {
		t.Fatalf("expected nil filters")
	}
}

func TestClassifierSchemaMismatch(t *testing.T) {
	cases := map[string]string{
		"not json":      `not json`,
		"bad kind":      `{"query_type":"fuzzy"}`,
		"unknown field": `{"query_type":"structured","filters":{"entity_kind":"scene","weapon":"knife"}}`,
		"wrong type":    `{"query_type":"structured","filters":{"entity_kind":"clue","is_key":"yes"}}`,
		"kind mismatch": `{"query_type":"structured","filters":{"entity_kind":"scene","role":"victim"}}`,
		"missing kind":  `{"filters":null}`,
	}
	for name, out := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := newTestClassifier(t, &structuredGeneratorFake{out: out}).Classify(context.Background(), "q")
			if !errors.Is(err, domain.ErrSchemaMismatch) {
				t.Fatalf("expected schema mismatch, got %v", err)
			}
			if !errors.Is(err, domain.ErrUpstreamModel) {
				t.Fatalf("schema mismatch must be an upstream model error, got %v", err)
			}
		})
	}
}

func TestClassifierPropagatesGeneratorError(t *testing.T) {
	genErr := errors.New("connection refused")
	_, err := newTestClassifier(t, &structuredGeneratorFake{err: genErr}).Classify(context.Background(), "q")
	if !errors.Is(err, genErr) || !errors.Is(err, domain.ErrUpstreamModel) {
		t.Fatalf("expected wrapped upstream error, got %v", err)
	}
}

func TestClassifierRejectsBlankQuery(t *testing.T) {
	gen := &structuredGeneratorFake{}
	_, err := newTestClassifier(t, gen).Classify(context.Background(), " ")
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if gen.prompt != "" {
		t.Fatalf("generator must not be called")
	}
}
