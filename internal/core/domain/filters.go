package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// FieldCondition is one equality constraint against an entity table column.
type FieldCondition struct {
	Field string
	Value any
}

// Filters is the closed set of per-kind structured filters. Each variant carries its
// own typed field set; Conditions lists defined fields with script_id first.
type Filters interface {
	Kind() EntityKind
	Conditions() []FieldCondition
	sealed()
}

// Scope is shared by every variant.
type Scope struct {
	ScriptID *string `json:"script_id,omitempty"`
}

func (Scope) sealed() {}

type ScriptFilters struct {
	Scope
	Type               *string `json:"type,omitempty"`
	Era                *string `json:"era,omitempty"`
	Difficulty         *string `json:"difficulty,omitempty"`
	CoreGameplay       *string `json:"core_gameplay,omitempty"`
	NarrativeStructure *string `json:"narrative_structure,omitempty"`
	MinPlayers         *int    `json:"min_players,omitempty"`
	MaxPlayers         *int    `json:"max_players,omitempty"`
}

type CharacterFilters struct {
	Scope
	Role    *string `json:"role,omitempty"`
	Gender  *string `json:"gender,omitempty"`
	Faction *string `json:"faction,omitempty"`
}

type TrickFilters struct {
	Scope
	TrickType  *string `json:"trick_type,omitempty"`
	Difficulty *string `json:"difficulty,omitempty"`
}

type ClueFilters struct {
	Scope
	ClueType *string `json:"clue_type,omitempty"`
	IsKey    *bool   `json:"is_key,omitempty"`
}

type SceneFilters struct {
	Scope
	SceneType *string `json:"scene_type,omitempty"`
}

type TimelineEventFilters struct {
	Scope
	Phase *string `json:"phase,omitempty"`
}

type RelationshipFilters struct {
	Scope
	RelationType *string `json:"relation_type,omitempty"`
}

type MotiveFilters struct {
	Scope
	MotiveType *string `json:"motive_type,omitempty"`
}

type PuzzleFilters struct {
	Scope
	PuzzleType *string `json:"puzzle_type,omitempty"`
	Difficulty *string `json:"difficulty,omitempty"`
}

type EndingFilters struct {
	Scope
	EndingType *string `json:"ending_type,omitempty"`
}

type StoryBackgroundFilters struct {
	Scope
	Era     *string `json:"era,omitempty"`
	Setting *string `json:"setting,omitempty"`
}

type ReasoningChainFilters struct {
	Scope
	Difficulty *string `json:"difficulty,omitempty"`
}

type HostGuideFilters struct {
	Scope
	Phase *string `json:"phase,omitempty"`
}

func (ScriptFilters) Kind() EntityKind          { return KindScript }
func (CharacterFilters) Kind() EntityKind       { return KindCharacter }
func (TrickFilters) Kind() EntityKind           { return KindTrick }
func (ClueFilters) Kind() EntityKind            { return KindClue }
func (SceneFilters) Kind() EntityKind           { return KindScene }
func (TimelineEventFilters) Kind() EntityKind   { return KindTimelineEvent }
func (RelationshipFilters) Kind() EntityKind    { return KindRelationship }
func (MotiveFilters) Kind() EntityKind          { return KindMotive }
func (PuzzleFilters) Kind() EntityKind          { return KindPuzzle }
func (EndingFilters) Kind() EntityKind          { return KindEnding }
func (StoryBackgroundFilters) Kind() EntityKind { return KindStoryBackground }
func (ReasoningChainFilters) Kind() EntityKind  { return KindReasoningChain }
func (HostGuideFilters) Kind() EntityKind       { return KindHostGuide }

func (f ScriptFilters) Conditions() []FieldCondition {
	return collect(f.Scope,
		str("type", f.Type),
		str("era", f.Era),
		str("difficulty", f.Difficulty),
		str("core_gameplay", f.CoreGameplay),
		str("narrative_structure", f.NarrativeStructure),
		num("min_players", f.MinPlayers),
		num("max_players", f.MaxPlayers),
	)
}

func (f CharacterFilters) Conditions() []FieldCondition {
	return collect(f.Scope, str("role", f.Role), str("gender", f.Gender), str("faction", f.Faction))
}

func (f TrickFilters) Conditions() []FieldCondition {
	return collect(f.Scope, str("trick_type", f.TrickType), str("difficulty", f.Difficulty))
}

func (f ClueFilters) Conditions() []FieldCondition {
	return collect(f.Scope, str("clue_type", f.ClueType), flag("is_key", f.IsKey))
}

func (f SceneFilters) Conditions() []FieldCondition {
	return collect(f.Scope, str("scene_type", f.SceneType))
}

func (f TimelineEventFilters) Conditions() []FieldCondition {
	return collect(f.Scope, str("phase", f.Phase))
}

func (f RelationshipFilters) Conditions() []FieldCondition {
	return collect(f.Scope, str("relation_type", f.RelationType))
}

func (f MotiveFilters) Conditions() []FieldCondition {
	return collect(f.Scope, str("motive_type", f.MotiveType))
}

func (f PuzzleFilters) Conditions() []FieldCondition {
	return collect(f.Scope, str("puzzle_type", f.PuzzleType), str("difficulty", f.Difficulty))
}

func (f EndingFilters) Conditions() []FieldCondition {
	return collect(f.Scope, str("ending_type", f.EndingType))
}

func (f StoryBackgroundFilters) Conditions() []FieldCondition {
	return collect(f.Scope, str("era", f.Era), str("setting", f.Setting))
}

func (f ReasoningChainFilters) Conditions() []FieldCondition {
	return collect(f.Scope, str("difficulty", f.Difficulty))
}

func (f HostGuideFilters) Conditions() []FieldCondition {
	return collect(f.Scope, str("phase", f.Phase))
}

type optionalCondition struct {
	cond FieldCondition
	set  bool
}

// Empty strings count as undefined: models emit "" for fields they could not fill.
func str(field string, v *string) optionalCondition {
	if v == nil || strings.TrimSpace(*v) == "" {
		return optionalCondition{}
	}
	return optionalCondition{cond: FieldCondition{Field: field, Value: strings.TrimSpace(*v)}, set: true}
}

func num(field string, v *int) optionalCondition {
	if v == nil {
		return optionalCondition{}
	}
	return optionalCondition{cond: FieldCondition{Field: field, Value: *v}, set: true}
}

func flag(field string, v *bool) optionalCondition {
	if v == nil {
		return optionalCondition{}
	}
	return optionalCondition{cond: FieldCondition{Field: field, Value: *v}, set: true}
}

func collect(scope Scope, fields ...optionalCondition) []FieldCondition {
	out := make([]FieldCondition, 0, len(fields)+1)
	if c := str(ScriptIDField, scope.ScriptID); c.set {
		out = append(out, c.cond)
	}
	for _, f := range fields {
		if f.set {
			out = append(out, f.cond)
		}
	}
	return out
}

func newFilters(kind EntityKind) (any, bool) {
	switch kind {
	case KindScript:
		return &ScriptFilters{}, true
	case KindCharacter:
		return &CharacterFilters{}, true
	case KindTrick:
		return &TrickFilters{}, true
	case KindClue:
		return &ClueFilters{}, true
	case KindScene:
		return &SceneFilters{}, true
	case KindTimelineEvent:
		return &TimelineEventFilters{}, true
	case KindRelationship:
		return &RelationshipFilters{}, true
	case KindMotive:
		return &MotiveFilters{}, true
	case KindPuzzle:
		return &PuzzleFilters{}, true
	case KindEnding:
		return &EndingFilters{}, true
	case KindStoryBackground:
		return &StoryBackgroundFilters{}, true
	case KindReasoningChain:
		return &ReasoningChainFilters{}, true
	case KindHostGuide:
		return &HostGuideFilters{}, true
	default:
		return nil, false
	}
}

// DecodeFilters parses a classifier filter object {"entity_kind": ..., <fields>}.
// A missing or null entity_kind yields (nil, nil). Null fields count as undefined, so
// another kind's vocabulary may appear as null. Unknown kinds and non-null fields outside
// the kind's vocabulary are reported as ErrSchemaMismatch.
func DecodeFilters(raw json.RawMessage) (Filters, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, WrapError(ErrSchemaMismatch, "decode filters", err)
	}

	kindRaw, ok := fields["entity_kind"]
	delete(fields, "entity_kind")
	if !ok || bytes.Equal(bytes.TrimSpace(kindRaw), []byte("null")) {
		return nil, nil
	}
	var kind EntityKind
	if err := json.Unmarshal(kindRaw, &kind); err != nil {
		return nil, WrapError(ErrSchemaMismatch, "decode filters", err)
	}
	if kind == "" {
		return nil, nil
	}

	for name, value := range fields {
		if bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
			delete(fields, name)
		}
	}

	target, ok := newFilters(kind)
	if !ok {
		return nil, WrapError(ErrSchemaMismatch, "decode filters", fmt.Errorf("unknown entity kind %q", kind))
	}

	body, err := json.Marshal(fields)
	if err != nil {
		return nil, WrapError(ErrSchemaMismatch, "decode filters", err)
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return nil, WrapError(ErrSchemaMismatch, "decode filters", fmt.Errorf("%s: %w", kind, err))
	}

	switch v := target.(type) {
	case *ScriptFilters:
		return *v, nil
	case *CharacterFilters:
		return *v, nil
	case *TrickFilters:
		return *v, nil
	case *ClueFilters:
		return *v, nil
	case *SceneFilters:
		return *v, nil
	case *TimelineEventFilters:
		return *v, nil
	case *RelationshipFilters:
		return *v, nil
	case *MotiveFilters:
		return *v, nil
	case *PuzzleFilters:
		return *v, nil
	case *EndingFilters:
		return *v, nil
	case *StoryBackgroundFilters:
		return *v, nil
	case *ReasoningChainFilters:
		return *v, nil
	case *HostGuideFilters:
		return *v, nil
	}
	return nil, WrapError(ErrSchemaMismatch, "decode filters", errors.New("unsupported filter variant"))
}

// EncodeFilters renders f back to the classifier wire shape.
func EncodeFilters(f Filters) (json.RawMessage, error) {
	if f == nil {
		return json.RawMessage("null"), nil
	}
	out := map[string]any{"entity_kind": f.Kind()}
	for _, c := range f.Conditions() {
		out[c.Field] = c.Value
	}
	return json.Marshal(out)
}
