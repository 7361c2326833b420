package models

// DefaultBranchID is the branch every root starts with.
const DefaultBranchID = "main"

// ProjectSummary is one entry of the project listing.
type ProjectSummary struct {
	RootID    string `json:"root_id"`
	Name      string `json:"name"`
	Logline   string `json:"logline,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// ProjectDetail is the project detail payload used to resolve the working
// context after opening a project. Every field is optional on the wire.
type ProjectDetail struct {
	RootID    string `json:"root_id,omitempty"`
	BranchID  string `json:"branch_id,omitempty"`
	SceneID   string `json:"scene_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Logline   string `json:"logline,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// BranchRef is the backend's answer to branch mutations.
type BranchRef struct {
	RootID   string `json:"root_id,omitempty"`
	BranchID string `json:"branch_id,omitempty"`
}

// Commit is an immutable, parent-linked history record.
type Commit struct {
	ID        string  `json:"id"`
	ParentID  *string `json:"parent_id"`
	RootID    string  `json:"root_id,omitempty"`
	BranchID  string  `json:"branch_id,omitempty"`
	Message   string  `json:"message"`
	CreatedAt string  `json:"created_at"`
}

// CommitRequest is the body of a scene commit.
type CommitRequest struct {
	SceneOriginID string         `json:"scene_origin_id"`
	Content       map[string]any `json:"content"`
	Message       string         `json:"message"`
}

// CommitResult is the backend's answer to a scene commit.
type CommitResult struct {
	CommitID        string   `json:"commit_id"`
	SceneVersionIDs []string `json:"scene_version_ids"`
}

// GCResult lists what a commit garbage collection removed.
type GCResult struct {
	DeletedCommitIDs       []string `json:"deleted_commit_ids"`
	DeletedSceneVersionIDs []string `json:"deleted_scene_version_ids"`
}

// SceneDiff maps field name to {"from": ..., "to": ...} between two commits.
type SceneDiff map[string]map[string]any

// Character is a character sheet produced by stage 3.
type Character struct {
	ID                 string `json:"id,omitempty"`
	EntityID           string `json:"entity_id,omitempty"`
	Name               string `json:"name"`
	Ambition           string `json:"ambition"`
	Conflict           string `json:"conflict"`
	Epiphany           string `json:"epiphany"`
	VoiceDNA           string `json:"voice_dna"`
	OneSentenceSummary string `json:"one_sentence_summary,omitempty"`
}

// SceneNode is a scene skeleton produced by stage 4.
type SceneNode struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	SequenceIndex   int    `json:"sequence_index"`
	ParentActID     string `json:"parent_act_id"`
	ChapterID       string `json:"chapter_id,omitempty"`
	IsSkeleton      bool   `json:"is_skeleton,omitempty"`
	BranchID        string `json:"branch_id,omitempty"`
	POVCharacterID  string `json:"pov_character_id,omitempty"`
	ExpectedOutcome string `json:"expected_outcome,omitempty"`
	ConflictType    string `json:"conflict_type,omitempty"`
	ActualOutcome   string `json:"actual_outcome,omitempty"`
	IsDirty         bool   `json:"is_dirty,omitempty"`
}

// Act groups chapters; produced by stage 5.
type Act struct {
	ID       string `json:"id"`
	RootID   string `json:"root_id"`
	Sequence int    `json:"sequence"`
	Title    string `json:"title"`
	Purpose  string `json:"purpose"`
	Tone     string `json:"tone"`
}

// Chapter belongs to an act; produced by stage 5.
type Chapter struct {
	ID             string `json:"id"`
	ActID          string `json:"act_id"`
	Sequence       int    `json:"sequence"`
	Title          string `json:"title"`
	Focus          string `json:"focus"`
	POVCharacterID string `json:"pov_character_id,omitempty"`
	WordCount      int    `json:"word_count,omitempty"`
	ReviewStatus   string `json:"review_status,omitempty"`
}

// Anchor is a backend-defined story anchor; its shape is opaque to the client.
type Anchor map[string]any

// Entity is a story-graph node of a snapshot. Its shape is backend defined.
type Entity map[string]any

// Relation is a directed edge between two entities. Tension grades how
// strained the relationship is.
type Relation struct {
	FromEntityID string `json:"from_entity_id"`
	ToEntityID   string `json:"to_entity_id"`
	RelationType string `json:"relation_type"`
	Tension      int    `json:"tension"`
}

// Snapshot is the materialized story graph at a root and branch.
type Snapshot struct {
	RootID         string      `json:"root_id"`
	BranchID       string      `json:"branch_id"`
	Logline        string      `json:"logline"`
	Theme          string      `json:"theme"`
	Ending         string      `json:"ending"`
	ThreeDisasters []string    `json:"three_disasters,omitempty"`
	Characters     []Character `json:"characters"`
	Scenes         []SceneNode `json:"scenes"`
	Entities       []Entity    `json:"entities,omitempty"`
	Relations      []Relation  `json:"relations,omitempty"`
	CreatedAt      string      `json:"created_at,omitempty"`
}

// PromptSet holds the custom generation prompt of each stage.
type PromptSet struct {
	Step1 string `json:"step1"`
	Step2 string `json:"step2"`
	Step3 string `json:"step3"`
	Step4 string `json:"step4"`
	Step5 string `json:"step5"`
	Step6 string `json:"step6"`
}

// StepSave is the body of a per-stage save.
type StepSave struct {
	RootID string         `json:"root_id"`
	Step   string         `json:"step"`
	Data   map[string]any `json:"data"`
}

// ScenesResult is the generator's answer for stage 4.
type ScenesResult struct {
	RootID   string      `json:"root_id"`
	BranchID string      `json:"branch_id"`
	Scenes   []SceneNode `json:"scenes"`
}
