package models

import (
	"slices"
	"strconv"
)

// Stage is one of the six ordered pipeline steps.
type Stage int

const (
	StageLogline Stage = iota + 1
	StageStructure
	StageCharacters
	StageScenes
	StageActsChapters
	StageAnchors
)

// Key is the wire name of the stage used by per-stage saves ("step1".."step6").
func (s Stage) Key() string {
	return "step" + strconv.Itoa(int(s))
}

// Valid reports whether s is within 1..6.
func (s Stage) Valid() bool {
	return s >= StageLogline && s <= StageAnchors
}

// disasterCount is the fixed length of RootStructure.ThreeDisasters.
const disasterCount = 3

// RootStructure is the stage-2 story skeleton.
type RootStructure struct {
	ID             string   `json:"id,omitempty"`
	Logline        string   `json:"logline"`
	Theme          string   `json:"theme"`
	Ending         string   `json:"ending"`
	ThreeDisasters []string `json:"three_disasters"`
	CreatedAt      string   `json:"created_at,omitempty"`
}

// Normalize returns a copy whose ThreeDisasters has exactly three entries,
// padded with empty strings or truncated.
func (r RootStructure) Normalize() RootStructure {
	out := r
	disasters := make([]string, disasterCount)
	copy(disasters, r.ThreeDisasters)
	out.ThreeDisasters = disasters
	return out
}

// WorkingContext is the active (root, branch, scene) triple.
type WorkingContext struct {
	RootID   string `json:"root_id"`
	BranchID string `json:"branch_id"`
	SceneID  string `json:"scene_id"`
}

// EmptyContext is the cleared working context.
func EmptyContext() WorkingContext {
	return WorkingContext{BranchID: DefaultBranchID}
}

// PipelineState is the client reconstruction of a snapshot into stages.
type PipelineState struct {
	Logline    []string       `json:"logline"`
	Root       *RootStructure `json:"root"`
	Characters []Character    `json:"characters"`
	Scenes     []SceneNode    `json:"scenes"`
	Acts       []Act          `json:"acts"`
	Chapters   []Chapter      `json:"chapters"`
	Anchors    []Anchor       `json:"anchors"`
}

// EmptyPipeline returns a state with every stage empty and non-nil slices.
func EmptyPipeline() PipelineState {
	return PipelineState{
		Logline:    []string{},
		Characters: []Character{},
		Scenes:     []SceneNode{},
		Acts:       []Act{},
		Chapters:   []Chapter{},
		Anchors:    []Anchor{},
	}
}

// Clone returns a copy that shares no slices with p. Anchor maps are copied
// one level deep.
func (p PipelineState) Clone() PipelineState {
	out := PipelineState{
		Logline:    slices.Clone(p.Logline),
		Characters: slices.Clone(p.Characters),
		Scenes:     slices.Clone(p.Scenes),
		Acts:       slices.Clone(p.Acts),
		Chapters:   slices.Clone(p.Chapters),
	}
	if p.Root != nil {
		root := *p.Root
		root.ThreeDisasters = slices.Clone(p.Root.ThreeDisasters)
		out.Root = &root
	}
	if p.Anchors != nil {
		out.Anchors = make([]Anchor, len(p.Anchors))
		for i, a := range p.Anchors {
			cp := make(Anchor, len(a))
			for k, v := range a {
				cp[k] = v
			}
			out.Anchors[i] = cp
		}
	}
	return out
}

// InferStage returns the furthest reached stage of a restored state using
// the strict priority anchors > acts|chapters > scenes > characters >
// logline|theme|ending > logline stage.
func InferStage(snap Snapshot, acts []Act, chapters []Chapter, anchors []Anchor) Stage {
	switch {
	case len(anchors) > 0:
		return StageAnchors
	case len(chapters) > 0 || len(acts) > 0:
		return StageActsChapters
	case len(snap.Scenes) > 0:
		return StageScenes
	case len(snap.Characters) > 0:
		return StageCharacters
	case snap.Logline != "" || snap.Theme != "" || snap.Ending != "":
		return StageStructure
	default:
		return StageLogline
	}
}

// Stage infers the furthest reached stage of p with the same priority as
// InferStage.
func (p PipelineState) Stage() Stage {
	var snap Snapshot
	snap.Characters = p.Characters
	snap.Scenes = p.Scenes
	if p.Root != nil {
		snap.Logline = p.Root.Logline
		snap.Theme = p.Root.Theme
		snap.Ending = p.Root.Ending
	}
	return InferStage(snap, p.Acts, p.Chapters, p.Anchors)
}
