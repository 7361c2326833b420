// Package backend holds the request/response contracts of the story backend
// and an HTTP adapter implementing them. Identifier validation is the
// caller's job; nothing here checks for empty arguments.
package backend

import (
	"context"
	"encoding/json"

	"github.com/pilixiaohui/testnovel/internal/models"
)

// Branches covers branch and commit history operations.
type Branches interface {
	ListBranches(ctx context.Context, rootID string) ([]string, error)
	CreateBranch(ctx context.Context, rootID, branchID string) (models.BranchRef, error)
	SwitchBranch(ctx context.Context, rootID, branchID string) (models.BranchRef, error)
	ForkFromCommit(ctx context.Context, rootID, sourceCommitID, newBranchID string) (models.BranchRef, error)
	ForkFromScene(ctx context.Context, rootID, sceneOriginID, newBranchID, sourceBranchID string) (models.BranchRef, error)
	ResetBranch(ctx context.Context, rootID, branchID, commitID string) (models.BranchRef, error)
	History(ctx context.Context, rootID, branchID string) ([]models.Commit, error)
	CommitScene(ctx context.Context, rootID, branchID string, req models.CommitRequest) (models.CommitResult, error)
	CollectGarbage(ctx context.Context, rootID string, retentionDays int) (models.GCResult, error)
	DiffScene(ctx context.Context, sceneID, branchID, fromCommitID, toCommitID string) (models.SceneDiff, error)
}

// Projects covers the project listing and lifecycle.
type Projects interface {
	ListProjects(ctx context.Context) ([]models.ProjectSummary, error)
	CreateProject(ctx context.Context, name string) (models.ProjectSummary, error)
	DeleteProject(ctx context.Context, rootID string) (bool, error)
	// ProjectDetail returns the undecoded detail payload; see DecodeObject.
	ProjectDetail(ctx context.Context, rootID, branchID string) (json.RawMessage, error)
}

// Snapshots covers the read side of a branch plus per-stage persistence.
type Snapshots interface {
	RootSnapshot(ctx context.Context, rootID, branchID string) (models.Snapshot, error)
	ListActs(ctx context.Context, rootID string) ([]models.Act, error)
	ListChapters(ctx context.Context, actID string) ([]models.Chapter, error)
	ListAnchors(ctx context.Context, rootID, branchID string) ([]models.Anchor, error)
	SaveStep(ctx context.Context, save models.StepSave) error
	Prompts(ctx context.Context, rootID, branchID string) (models.PromptSet, error)
	SavePrompts(ctx context.Context, rootID, branchID string, prompts models.PromptSet) (models.PromptSet, error)
	ResetPrompts(ctx context.Context, rootID, branchID string) (models.PromptSet, error)
}

// Generator is the content generation service. An empty prompt means the
// service default.
type Generator interface {
	GenerateLoglines(ctx context.Context, idea, prompt string) ([]string, error)
	GenerateStructure(ctx context.Context, logline, prompt string) (models.RootStructure, error)
	GenerateCharacters(ctx context.Context, root models.RootStructure, prompt string) ([]models.Character, error)
	GenerateScenes(ctx context.Context, root models.RootStructure, characters []models.Character, prompt string) (models.ScenesResult, error)
	GenerateActs(ctx context.Context, rootID string, root models.RootStructure, characters []models.Character, prompt string) ([]models.Act, error)
	GenerateChapters(ctx context.Context, rootID string, root models.RootStructure, characters []models.Character, prompt string) ([]models.Chapter, error)
	GenerateAnchors(ctx context.Context, rootID, branchID string, root models.RootStructure, characters []models.Character, prompt string) ([]models.Anchor, error)
}

// Client is everything the stores consume.
type Client interface {
	Branches
	Projects
	Snapshots
	Generator
}
