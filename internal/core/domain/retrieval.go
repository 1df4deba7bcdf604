package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// QueryKind is the routing decision made by the intent classifier.
type QueryKind string

const (
	QueryStructured QueryKind = "structured"
	QuerySemantic   QueryKind = "semantic"
	QueryHybrid     QueryKind = "hybrid"
)

func (k QueryKind) Valid() bool {
	switch k {
	case QueryStructured, QuerySemantic, QueryHybrid:
		return true
	}
	return false
}

func (k QueryKind) UsesStructured() bool { return k == QueryStructured || k == QueryHybrid }
func (k QueryKind) UsesSemantic() bool   { return k == QuerySemantic || k == QueryHybrid }

// IntentClassification is created once per pipeline run and not mutated afterwards.
type IntentClassification struct {
	QueryKind     QueryKind
	Filters       Filters
	SemanticQuery string
}

// Provenance attributes a retrieved item to its source document.
type Provenance struct {
	DocumentName string `json:"document_name"`
	ScriptName   string `json:"script_name,omitempty"`
	PageStart    *int   `json:"page_start,omitempty"`
	PageEnd      *int   `json:"page_end,omitempty"`
}

// PageLabel renders "s-e", "s" when both pages match, or "" without page info.
func (p Provenance) PageLabel() string {
	switch {
	case p.PageStart == nil && p.PageEnd == nil:
		return ""
	case p.PageStart == nil:
		return fmt.Sprintf("%d", *p.PageEnd)
	case p.PageEnd == nil || *p.PageStart == *p.PageEnd:
		return fmt.Sprintf("%d", *p.PageStart)
	default:
		return fmt.Sprintf("%d-%d", *p.PageStart, *p.PageEnd)
	}
}

// RankedItem is one retrieval candidate. Score is only comparable within the list
// that produced it.
type RankedItem struct {
	ID         string
	Kind       EntityKind
	Payload    Payload
	Provenance Provenance
	Score      float64
}

// Citation is the (document, page range) attribution surfaced with an answer.
type Citation struct {
	DocumentName string `json:"document_name"`
	PageStart    *int   `json:"page_start,omitempty"`
	PageEnd      *int   `json:"page_end,omitempty"`
}

// Key is the dedup key of a citation.
func (c Citation) Key() string {
	return c.DocumentName + "\x00" + optionalInt(c.PageStart) + "\x00" + optionalInt(c.PageEnd)
}

func optionalInt(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}

// CitationsFromItems extracts citations in first-seen order, dropping duplicates.
func CitationsFromItems(items []RankedItem) []Citation {
	seen := make(map[string]struct{}, len(items))
	out := make([]Citation, 0, len(items))
	for _, item := range items {
		c := Citation{
			DocumentName: item.Provenance.DocumentName,
			PageStart:    item.Provenance.PageStart,
			PageEnd:      item.Provenance.PageEnd,
		}
		key := c.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

// EntityRow is what a structured store returns for one matching row.
type EntityRow struct {
	ID           string
	Fields       map[string]any
	DocumentName string
	ScriptName   string
	PageStart    *int
	PageEnd      *int
}

// VectorHit is one nearest-neighbour match over chunk embeddings.
type VectorHit struct {
	ChunkID    string
	DocumentID string
	Content    string
	ChunkIndex *int
	PageStart  *int
	PageEnd    *int
	Similarity float64
}

// QueryRequest is the pipeline input.
type QueryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
	RequestID string `json:"-"`
}

func (r QueryRequest) Validate() error {
	if strings.TrimSpace(r.Query) == "" {
		return WrapError(ErrInvalidInput, "validate query", fmt.Errorf("query is required"))
	}
	return nil
}

// QueryResult is the blocking pipeline output.
type QueryResult struct {
	SessionID      string
	Answer         string
	Citations      []Citation
	FusedResults   []RankedItem
	Classification IntentClassification
}

// PipelineState accumulates stage outputs for one request.
type PipelineState struct {
	Query             string
	SessionID         string
	History           []ChatMessage
	Classification    IntentClassification
	StructuredResults []RankedItem
	SemanticResults   []RankedItem
	FusedResults      []RankedItem
	Answer            string
	Citations         []Citation
}

// MarshalJSON renders a ranked item for API responses.
func (r RankedItem) MarshalJSON() ([]byte, error) {
	payload := json.RawMessage("{}")
	if r.Payload != nil {
		body, err := MarshalPayload(r.Payload)
		if err != nil {
			return nil, err
		}
		payload = json.RawMessage(body)
	}
	return json.Marshal(struct {
		ID         string          `json:"id"`
		Kind       EntityKind      `json:"entity_kind"`
		Payload    json.RawMessage `json:"payload"`
		Provenance Provenance      `json:"provenance"`
		Score      float64         `json:"score"`
	}{
		ID:         r.ID,
		Kind:       r.Kind,
		Payload:    payload,
		Provenance: r.Provenance,
		Score:      r.Score,
	})
}

// StreamEvent is one fragment of a streamed answer. A non-nil Err is terminal.
type StreamEvent struct {
	Text string
	Err  error
}

// StreamResult carries citations known before generation together with the fragment
// channel. Events is single-consumer and closed after the last event.
type StreamResult struct {
	SessionID      string
	Citations      []Citation
	FusedResults   []RankedItem
	Classification IntentClassification
	Events         <-chan StreamEvent
}
