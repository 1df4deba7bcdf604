package domain

// EntityKind tags the category a retrieved item belongs to.
type EntityKind string

const (
	KindScript          EntityKind = "script"
	KindCharacter       EntityKind = "character"
	KindTrick           EntityKind = "trick"
	KindClue            EntityKind = "clue"
	KindScene           EntityKind = "scene"
	KindTimelineEvent   EntityKind = "timeline_event"
	KindRelationship    EntityKind = "relationship"
	KindMotive          EntityKind = "motive"
	KindPuzzle          EntityKind = "puzzle"
	KindEnding          EntityKind = "ending"
	KindStoryBackground EntityKind = "story_background"
	KindReasoningChain  EntityKind = "reasoning_chain"
	KindHostGuide       EntityKind = "host_guide"

	// KindChunk marks raw text chunks returned by semantic search.
	KindChunk EntityKind = "chunk"
)

// FieldType is the JSON type of a filterable field.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldInteger FieldType = "integer"
	FieldBoolean FieldType = "boolean"
)

// FieldSpec describes one equality-filterable column of an entity table.
type FieldSpec struct {
	Name        string
	Type        FieldType
	Description string
}

// ScriptIDField scopes any structured query to one script.
const ScriptIDField = "script_id"

type entitySpec struct {
	table  string
	label  string
	fields []FieldSpec
}

var structuredKinds = []EntityKind{
	KindScript,
	KindCharacter,
	KindTrick,
	KindClue,
	KindScene,
	KindTimelineEvent,
	KindRelationship,
	KindMotive,
	KindPuzzle,
	KindEnding,
	KindStoryBackground,
	KindReasoningChain,
	KindHostGuide,
}

var entitySpecs = map[EntityKind]entitySpec{
	KindScript: {
		table: "scripts",
		label: "script overview (genre, era, difficulty, player count)",
		fields: []FieldSpec{
			{Name: "type", Type: FieldString, Description: "script genre, e.g. 本格, 变格, 情感, 欢乐, 恐怖, 机制"},
			{Name: "era", Type: FieldString, Description: "historical setting, e.g. 古代, 民国, 现代, 未来"},
			{Name: "difficulty", Type: FieldString, Description: "新手, 进阶, 硬核"},
			{Name: "core_gameplay", Type: FieldString, Description: "core gameplay, e.g. 推理, 阵营, 机制, 还原"},
			{Name: "narrative_structure", Type: FieldString, Description: "linear, multi-line, non-linear"},
			{Name: "min_players", Type: FieldInteger, Description: "minimum player count"},
			{Name: "max_players", Type: FieldInteger, Description: "maximum player count"},
		},
	},
	KindCharacter: {
		table: "characters",
		label: "playable or non-playable character",
		fields: []FieldSpec{
			{Name: "role", Type: FieldString, Description: "murderer, detective, victim, suspect, npc"},
			{Name: "gender", Type: FieldString, Description: "male, female, unknown"},
			{Name: "faction", Type: FieldString, Description: "camp or faction name"},
		},
	},
	KindTrick: {
		table: "tricks",
		label: "murder trick or misdirection technique",
		fields: []FieldSpec{
			{Name: "trick_type", Type: FieldString, Description: "locked room, alibi, identity swap, time trick"},
			{Name: "difficulty", Type: FieldString, Description: "新手, 进阶, 硬核"},
		},
	},
	KindClue: {
		table: "clues",
		label: "clue card or evidence",
		fields: []FieldSpec{
			{Name: "clue_type", Type: FieldString, Description: "physical, testimony, document, hidden"},
			{Name: "is_key", Type: FieldBoolean, Description: "whether the clue is decisive"},
		},
	},
	KindScene: {
		table: "scenes",
		label: "location or scene",
		fields: []FieldSpec{
			{Name: "scene_type", Type: FieldString, Description: "crime scene, search area, public area"},
		},
	},
	KindTimelineEvent: {
		table: "timeline_events",
		label: "event on the case timeline",
		fields: []FieldSpec{
			{Name: "phase", Type: FieldString, Description: "backstory, before crime, crime, after crime"},
		},
	},
	KindRelationship: {
		table: "relationships",
		label: "relationship between characters",
		fields: []FieldSpec{
			{Name: "relation_type", Type: FieldString, Description: "family, lovers, rivals, colleagues"},
		},
	},
	KindMotive: {
		table: "motives",
		label: "character motive",
		fields: []FieldSpec{
			{Name: "motive_type", Type: FieldString, Description: "revenge, money, love, self-defense"},
		},
	},
	KindPuzzle: {
		table: "puzzles",
		label: "puzzle or mechanic challenge",
		fields: []FieldSpec{
			{Name: "puzzle_type", Type: FieldString, Description: "cipher, logic, riddle, mechanism"},
			{Name: "difficulty", Type: FieldString, Description: "新手, 进阶, 硬核"},
		},
	},
	KindEnding: {
		table: "endings",
		label: "story ending",
		fields: []FieldSpec{
			{Name: "ending_type", Type: FieldString, Description: "good, bad, hidden, open"},
		},
	},
	KindStoryBackground: {
		table: "story_backgrounds",
		label: "world and story background",
		fields: []FieldSpec{
			{Name: "era", Type: FieldString, Description: "historical setting"},
			{Name: "setting", Type: FieldString, Description: "place or world setting"},
		},
	},
	KindReasoningChain: {
		table: "reasoning_chains",
		label: "deduction chain from clues to truth",
		fields: []FieldSpec{
			{Name: "difficulty", Type: FieldString, Description: "新手, 进阶, 硬核"},
		},
	},
	KindHostGuide: {
		table: "host_guides",
		label: "game master (DM) instructions",
		fields: []FieldSpec{
			{Name: "phase", Type: FieldString, Description: "opening, search, discussion, vote, reveal"},
		},
	},
}

// StructuredKinds returns the 13 structured entity kinds in a stable order.
func StructuredKinds() []EntityKind {
	out := make([]EntityKind, len(structuredKinds))
	copy(out, structuredKinds)
	return out
}

// IsStructured reports whether k is one of the 13 structured kinds.
func (k EntityKind) IsStructured() bool {
	_, ok := entitySpecs[k]
	return ok
}

// Valid reports whether k is a structured kind or the chunk kind.
func (k EntityKind) Valid() bool {
	return k == KindChunk || k.IsStructured()
}

// Table returns the table backing a structured kind, or "" for chunks and unknown kinds.
func (k EntityKind) Table() string {
	return entitySpecs[k].table
}

// Label is a short human description used in prompts.
func (k EntityKind) Label() string {
	if k == KindChunk {
		return "raw document text"
	}
	return entitySpecs[k].label
}

// Fields returns the filter vocabulary of k, excluding script_id.
func (k EntityKind) Fields() []FieldSpec {
	spec := entitySpecs[k]
	out := make([]FieldSpec, len(spec.fields))
	copy(out, spec.fields)
	return out
}
