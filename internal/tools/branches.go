package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/pilixiaohui/testnovel/internal/apperr"
	"github.com/pilixiaohui/testnovel/internal/session"
)

// BranchTools holds references needed by branch and history tool handlers.
type BranchTools struct {
	Session *session.Session
}

// --- Input types ---

type BranchInput struct {
	RootID   string `json:"root_id" jsonschema:"Project root id"`
	BranchID string `json:"branch_id" jsonschema:"Branch id"`
}

type ForkFromCommitInput struct {
	RootID         string `json:"root_id" jsonschema:"Project root id"`
	SourceCommitID string `json:"source_commit_id" jsonschema:"Commit to fork from"`
	NewBranchID    string `json:"new_branch_id" jsonschema:"Name of the new branch"`
}

type ForkFromSceneInput struct {
	RootID         string `json:"root_id" jsonschema:"Project root id"`
	SceneOriginID  string `json:"scene_origin_id" jsonschema:"Scene whose history the fork starts from"`
	NewBranchID    string `json:"new_branch_id" jsonschema:"Name of the new branch"`
	SourceBranchID string `json:"source_branch_id,omitempty" jsonschema:"Branch to fork from, defaults to the active branch"`
}

type ResetBranchInput struct {
	RootID   string `json:"root_id" jsonschema:"Project root id"`
	BranchID string `json:"branch_id" jsonschema:"Branch to reset"`
	CommitID string `json:"commit_id" jsonschema:"Commit the branch should point at"`
}

type DiffSceneInput struct {
	SceneID      string `json:"scene_id" jsonschema:"Scene id"`
	BranchID     string `json:"branch_id,omitempty" jsonschema:"Branch id, defaults to the active branch"`
	FromCommitID string `json:"from_commit_id" jsonschema:"Older commit"`
	ToCommitID   string `json:"to_commit_id" jsonschema:"Newer commit"`
}

type GCInput struct {
	RootID        string `json:"root_id" jsonschema:"Project root id"`
	RetentionDays int    `json:"retention_days,omitempty" jsonschema:"Keep unreachable commits younger than this many days"`
}

// --- Handlers ---

func (t *BranchTools) ListBranches(ctx context.Context, _ *mcp.CallToolRequest, input RootInput) (*mcp.CallToolResult, any, error) {
	branches, err := t.Session.LoadBranches(ctx, input.RootID)
	if err != nil {
		return toolError("Failed to list branches: %s", apperr.Message(err)), nil, nil
	}
	return toolJSON(branches)
}

func (t *BranchTools) CreateBranch(ctx context.Context, _ *mcp.CallToolRequest, input BranchInput) (*mcp.CallToolResult, any, error) {
	ref, err := t.Session.CreateBranch(ctx, input.RootID, input.BranchID)
	if err != nil {
		return toolError("Failed to create branch: %s", apperr.Message(err)), nil, nil
	}
	return toolJSON(ref)
}

func (t *BranchTools) SwitchBranch(ctx context.Context, _ *mcp.CallToolRequest, input BranchInput) (*mcp.CallToolResult, any, error) {
	ref, err := t.Session.SwitchBranch(ctx, input.RootID, input.BranchID)
	if err != nil {
		return toolError("Failed to switch branch: %s", apperr.Message(err)), nil, nil
	}
	return toolJSON(ref)
}

func (t *BranchTools) ForkFromCommit(ctx context.Context, _ *mcp.CallToolRequest, input ForkFromCommitInput) (*mcp.CallToolResult, any, error) {
	ref, err := t.Session.ForkFromCommit(ctx, input.RootID, input.SourceCommitID, input.NewBranchID)
	if err != nil {
		return toolError("Failed to fork branch: %s", apperr.Message(err)), nil, nil
	}
	return toolJSON(ref)
}

func (t *BranchTools) ForkFromScene(ctx context.Context, _ *mcp.CallToolRequest, input ForkFromSceneInput) (*mcp.CallToolResult, any, error) {
	ref, err := t.Session.ForkFromScene(ctx, input.RootID, input.SceneOriginID, input.NewBranchID, input.SourceBranchID)
	if err != nil {
		return toolError("Failed to fork branch: %s", apperr.Message(err)), nil, nil
	}
	return toolJSON(ref)
}

func (t *BranchTools) ResetBranch(ctx context.Context, _ *mcp.CallToolRequest, input ResetBranchInput) (*mcp.CallToolResult, any, error) {
	ref, err := t.Session.ResetBranch(ctx, input.RootID, input.BranchID, input.CommitID)
	if err != nil {
		return toolError("Failed to reset branch: %s", apperr.Message(err)), nil, nil
	}
	return toolJSON(ref)
}

func (t *BranchTools) History(ctx context.Context, _ *mcp.CallToolRequest, input BranchInput) (*mcp.CallToolResult, any, error) {
	commits, err := t.Session.History(ctx, input.RootID, input.BranchID)
	if err != nil {
		return toolError("Failed to load history: %s", apperr.Message(err)), nil, nil
	}
	return toolJSON(commits)
}

func (t *BranchTools) DiffScene(ctx context.Context, _ *mcp.CallToolRequest, input DiffSceneInput) (*mcp.CallToolResult, any, error) {
	branchID := input.BranchID
	if branchID == "" {
		branchID = t.Session.Context().BranchID
	}
	diff, err := t.Session.DiffScene(ctx, input.SceneID, branchID, input.FromCommitID, input.ToCommitID)
	if err != nil {
		return toolError("Failed to diff scene: %s", apperr.Message(err)), nil, nil
	}
	return toolJSON(diff)
}

func (t *BranchTools) CollectGarbage(ctx context.Context, _ *mcp.CallToolRequest, input GCInput) (*mcp.CallToolResult, any, error) {
	result, err := t.Session.CollectGarbage(ctx, input.RootID, input.RetentionDays)
	if err != nil {
		return toolError("Failed to collect commits: %s", apperr.Message(err)), nil, nil
	}
	return toolJSON(result)
}
