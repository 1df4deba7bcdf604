package domain

import (
	"encoding/json"
	"fmt"
)

// Payload is the kind-specific body of a RankedItem.
type Payload interface {
	EntityKind() EntityKind
}

type ScriptPayload struct {
	Name               string   `json:"name"`
	Type               string   `json:"type,omitempty"`
	Era                string   `json:"era,omitempty"`
	Difficulty         string   `json:"difficulty,omitempty"`
	CoreGameplay       string   `json:"core_gameplay,omitempty"`
	NarrativeStructure string   `json:"narrative_structure,omitempty"`
	MinPlayers         *int     `json:"min_players,omitempty"`
	MaxPlayers         *int     `json:"max_players,omitempty"`
	DurationHours      *float64 `json:"duration_hours,omitempty"`
	Synopsis           string   `json:"synopsis,omitempty"`
}

type CharacterPayload struct {
	Name       string `json:"name"`
	Role       string `json:"role,omitempty"`
	Gender     string `json:"gender,omitempty"`
	Faction    string `json:"faction,omitempty"`
	Age        *int   `json:"age,omitempty"`
	Background string `json:"background,omitempty"`
	Secret     string `json:"secret,omitempty"`
}

type TrickPayload struct {
	Name       string `json:"name"`
	TrickType  string `json:"trick_type,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
	Method     string `json:"method,omitempty"`
	Reveal     string `json:"reveal,omitempty"`
}

type CluePayload struct {
	Name     string `json:"name"`
	ClueType string `json:"clue_type,omitempty"`
	IsKey    *bool  `json:"is_key,omitempty"`
	Content  string `json:"content,omitempty"`
	Location string `json:"location,omitempty"`
}

type ScenePayload struct {
	Name        string `json:"name"`
	SceneType   string `json:"scene_type,omitempty"`
	Description string `json:"description,omitempty"`
}

type TimelineEventPayload struct {
	Phase        string   `json:"phase,omitempty"`
	OccurredAt   string   `json:"occurred_at,omitempty"`
	Description  string   `json:"description,omitempty"`
	Participants []string `json:"participants,omitempty"`
}

type RelationshipPayload struct {
	RelationType string `json:"relation_type,omitempty"`
	CharacterA   string `json:"character_a,omitempty"`
	CharacterB   string `json:"character_b,omitempty"`
	Description  string `json:"description,omitempty"`
}

type MotivePayload struct {
	MotiveType  string `json:"motive_type,omitempty"`
	Character   string `json:"character,omitempty"`
	Description string `json:"description,omitempty"`
}

type PuzzlePayload struct {
	Name       string `json:"name"`
	PuzzleType string `json:"puzzle_type,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
	Question   string `json:"question,omitempty"`
	Solution   string `json:"solution,omitempty"`
}

type EndingPayload struct {
	Name        string `json:"name"`
	EndingType  string `json:"ending_type,omitempty"`
	Condition   string `json:"condition,omitempty"`
	Description string `json:"description,omitempty"`
}

type StoryBackgroundPayload struct {
	Era     string `json:"era,omitempty"`
	Setting string `json:"setting,omitempty"`
	Summary string `json:"summary,omitempty"`
}

type ReasoningChainPayload struct {
	Difficulty string   `json:"difficulty,omitempty"`
	Premise    string   `json:"premise,omitempty"`
	Steps      []string `json:"steps,omitempty"`
	Conclusion string   `json:"conclusion,omitempty"`
}

type HostGuidePayload struct {
	Phase        string `json:"phase,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

type ChunkPayload struct {
	Content    string `json:"content"`
	ChunkIndex *int   `json:"chunk_index,omitempty"`
}

// GenericPayload carries rows whose kind has no dedicated variant. Presentation code
// that only needs provenance and score can treat every item this way.
type GenericPayload struct {
	Kind   EntityKind     `json:"-"`
	Fields map[string]any `json:"fields"`
}

func (ScriptPayload) EntityKind() EntityKind          { return KindScript }
func (CharacterPayload) EntityKind() EntityKind       { return KindCharacter }
func (TrickPayload) EntityKind() EntityKind           { return KindTrick }
func (CluePayload) EntityKind() EntityKind            { return KindClue }
func (ScenePayload) EntityKind() EntityKind           { return KindScene }
func (TimelineEventPayload) EntityKind() EntityKind   { return KindTimelineEvent }
func (RelationshipPayload) EntityKind() EntityKind    { return KindRelationship }
func (MotivePayload) EntityKind() EntityKind          { return KindMotive }
func (PuzzlePayload) EntityKind() EntityKind          { return KindPuzzle }
func (EndingPayload) EntityKind() EntityKind          { return KindEnding }
func (StoryBackgroundPayload) EntityKind() EntityKind { return KindStoryBackground }
func (ReasoningChainPayload) EntityKind() EntityKind  { return KindReasoningChain }
func (HostGuidePayload) EntityKind() EntityKind       { return KindHostGuide }
func (ChunkPayload) EntityKind() EntityKind           { return KindChunk }
func (p GenericPayload) EntityKind() EntityKind       { return p.Kind }

// DecodePayload converts a storage row into the payload variant for kind. Unknown
// kinds fall back to GenericPayload.
func DecodePayload(kind EntityKind, fields map[string]any) (Payload, error) {
	var target Payload
	switch kind {
	case KindScript:
		target = &ScriptPayload{}
	case KindCharacter:
		target = &CharacterPayload{}
	case KindTrick:
		target = &TrickPayload{}
	case KindClue:
		target = &CluePayload{}
	case KindScene:
		target = &ScenePayload{}
	case KindTimelineEvent:
		target = &TimelineEventPayload{}
	case KindRelationship:
		target = &RelationshipPayload{}
	case KindMotive:
		target = &MotivePayload{}
	case KindPuzzle:
		target = &PuzzlePayload{}
	case KindEnding:
		target = &EndingPayload{}
	case KindStoryBackground:
		target = &StoryBackgroundPayload{}
	case KindReasoningChain:
		target = &ReasoningChainPayload{}
	case KindHostGuide:
		target = &HostGuidePayload{}
	case KindChunk:
		target = &ChunkPayload{}
	default:
		return GenericPayload{Kind: kind, Fields: fields}, nil
	}

	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshal %s row: %w", kind, err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", kind, err)
	}
	return derefPayload(target), nil
}

func derefPayload(p Payload) Payload {
	switch v := p.(type) {
	case *ScriptPayload:
		return *v
	case *CharacterPayload:
		return *v
	case *TrickPayload:
		return *v
	case *CluePayload:
		return *v
	case *ScenePayload:
		return *v
	case *TimelineEventPayload:
		return *v
	case *RelationshipPayload:
		return *v
	case *MotivePayload:
		return *v
	case *PuzzlePayload:
		return *v
	case *EndingPayload:
		return *v
	case *StoryBackgroundPayload:
		return *v
	case *ReasoningChainPayload:
		return *v
	case *HostGuidePayload:
		return *v
	case *ChunkPayload:
		return *v
	default:
		return p
	}
}

// MarshalPayload renders a payload for prompt context.
func MarshalPayload(p Payload) (string, error) {
	if p == nil {
		return "{}", nil
	}
	if g, ok := p.(GenericPayload); ok {
		raw, err := json.Marshal(g.Fields)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
