package tools

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/pilixiaohui/testnovel/internal/apperr"
	"github.com/pilixiaohui/testnovel/internal/models"
	"github.com/pilixiaohui/testnovel/internal/session"
	"github.com/pilixiaohui/testnovel/internal/snowflake"
)

// PipelineTools holds references needed by the six-stage pipeline tool
// handlers. Root and branch arguments fall back to the session context.
type PipelineTools struct {
	Session  *session.Session
	Pipeline *snowflake.Store
}

// --- Input types ---

type RestorePipelineInput struct {
	RootID   string `json:"root_id,omitempty" jsonschema:"Project root id, defaults to the active root"`
	BranchID string `json:"branch_id,omitempty" jsonschema:"Branch id, defaults to the active branch"`
}

type UpdateStepInput struct {
	Step    int    `json:"step" jsonschema:"Stage number from 1 to 6"`
	Content string `json:"content" jsonschema:"Stage 1 takes one logline per line, other stages take JSON"`
}

type GenerateLoglinesInput struct {
	Idea   string `json:"idea" jsonschema:"Story idea"`
	Prompt string `json:"prompt,omitempty" jsonschema:"Prompt override"`
}

type GenerateStructureInput struct {
	Logline string `json:"logline" jsonschema:"Chosen logline"`
	Prompt  string `json:"prompt,omitempty" jsonschema:"Prompt override"`
}

type GenerateFromRootInput struct {
	Root       *models.RootStructure `json:"root,omitempty" jsonschema:"Root structure, defaults to the stored one"`
	Characters []models.Character    `json:"characters,omitempty" jsonschema:"Characters, default to the stored ones"`
	Prompt     string                `json:"prompt,omitempty" jsonschema:"Prompt override"`
}

type GenerateActsChaptersInput struct {
	RootID     string                `json:"root_id,omitempty" jsonschema:"Project root id, defaults to the pipeline root"`
	Root       *models.RootStructure `json:"root,omitempty" jsonschema:"Root structure, defaults to the stored one"`
	Characters []models.Character    `json:"characters,omitempty" jsonschema:"Characters, default to the stored ones"`
	Prompt     string                `json:"prompt,omitempty" jsonschema:"Prompt override"`
}

type GenerateAnchorsInput struct {
	BranchID string `json:"branch_id,omitempty" jsonschema:"Branch id, defaults to the active branch"`
	Prompt   string `json:"prompt,omitempty" jsonschema:"Prompt override"`
}

type PromptsInput struct {
	RootID   string `json:"root_id,omitempty" jsonschema:"Project root id, defaults to the active root"`
	BranchID string `json:"branch_id,omitempty" jsonschema:"Branch id, defaults to the active branch"`
}

type SavePromptsInput struct {
	RootID   string           `json:"root_id,omitempty" jsonschema:"Project root id, defaults to the active root"`
	BranchID string           `json:"branch_id,omitempty" jsonschema:"Branch id, defaults to the active branch"`
	Prompts  models.PromptSet `json:"prompts" jsonschema:"Prompt text per stage"`
}

// --- Handlers ---

func (t *PipelineTools) RestorePipeline(ctx context.Context, _ *mcp.CallToolRequest, input RestorePipelineInput) (*mcp.CallToolResult, any, error) {
	rootID, branchID := t.target(input.RootID, input.BranchID)
	if _, err := t.Pipeline.RestoreFromBackend(ctx, rootID, branchID); err != nil {
		if errors.Is(err, apperr.ErrSuperseded) {
			return toolError("Restore discarded: the working context changed while it was running"), nil, nil
		}
		return toolError("Failed to restore pipeline: %s", apperr.Message(err)), nil, nil
	}
	return toolJSON(t.Pipeline.State())
}

func (t *PipelineTools) GetPipeline(_ context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
	return toolJSON(t.Pipeline.State())
}

func (t *PipelineTools) UpdateStepContent(_ context.Context, _ *mcp.CallToolRequest, input UpdateStepInput) (*mcp.CallToolResult, any, error) {
	if err := t.Pipeline.UpdateStepContent(models.Stage(input.Step), input.Content); err != nil {
		return toolError("Failed to update step %d: %s", input.Step, apperr.Message(err)), nil, nil
	}
	return toolJSON(t.Pipeline.State())
}

func (t *PipelineTools) GenerateLoglines(ctx context.Context, _ *mcp.CallToolRequest, input GenerateLoglinesInput) (*mcp.CallToolResult, any, error) {
	if input.Idea == "" {
		return toolError("idea is required"), nil, nil
	}
	loglines, err := t.Pipeline.GenerateLoglines(ctx, input.Idea, input.Prompt)
	if err != nil {
		return toolError("Failed to generate loglines: %s", apperr.Message(err)), nil, nil
	}
	return toolJSON(loglines)
}

func (t *PipelineTools) GenerateStructure(ctx context.Context, _ *mcp.CallToolRequest, input GenerateStructureInput) (*mcp.CallToolResult, any, error) {
	if input.Logline == "" {
		return toolError("logline is required"), nil, nil
	}
	root, err := t.Pipeline.GenerateStructure(ctx, input.Logline, input.Prompt)
	if err != nil {
		return toolError("Failed to generate structure: %s", apperr.Message(err)), nil, nil
	}
	return toolJSON(root)
}

func (t *PipelineTools) GenerateCharacters(ctx context.Context, _ *mcp.CallToolRequest, input GenerateFromRootInput) (*mcp.CallToolResult, any, error) {
	root, _, err := t.inputs(input.Root, input.Characters)
	if err != nil {
		return toolError("Failed to generate characters: %s", apperr.Message(err)), nil, nil
	}
	characters, err := t.Pipeline.GenerateCharacters(ctx, root, input.Prompt)
	if err != nil {
		return toolError("Failed to generate characters: %s", apperr.Message(err)), nil, nil
	}
	return toolJSON(characters)
}

func (t *PipelineTools) GenerateScenes(ctx context.Context, _ *mcp.CallToolRequest, input GenerateFromRootInput) (*mcp.CallToolResult, any, error) {
	root, characters, err := t.inputs(input.Root, input.Characters)
	if err != nil {
		return toolError("Failed to generate scenes: %s", apperr.Message(err)), nil, nil
	}
	result, err := t.Pipeline.GenerateScenes(ctx, root, characters, input.Prompt)
	if err != nil {
		return toolError("Failed to generate scenes: %s", apperr.Message(err)), nil, nil
	}
	return toolJSON(result)
}

func (t *PipelineTools) GenerateActsChapters(ctx context.Context, _ *mcp.CallToolRequest, input GenerateActsChaptersInput) (*mcp.CallToolResult, any, error) {
	root, characters, err := t.inputs(input.Root, input.Characters)
	if err != nil {
		return toolError("Failed to generate acts and chapters: %s", apperr.Message(err)), nil, nil
	}
	acts, chapters, err := t.Pipeline.GenerateActsChapters(ctx, input.RootID, root, characters, input.Prompt)
	if err != nil {
		return toolError("Failed to generate acts and chapters: %s", apperr.Message(err)), nil, nil
	}
	return toolJSON(map[string]any{"acts": acts, "chapters": chapters})
}

func (t *PipelineTools) GenerateAnchors(ctx context.Context, _ *mcp.CallToolRequest, input GenerateAnchorsInput) (*mcp.CallToolResult, any, error) {
	_, branchID := t.target("", input.BranchID)
	anchors, err := t.Pipeline.GenerateAnchors(ctx, branchID, input.Prompt)
	if err != nil {
		return toolError("Failed to generate anchors: %s", apperr.Message(err)), nil, nil
	}
	return toolJSON(anchors)
}

func (t *PipelineTools) GetPrompts(ctx context.Context, _ *mcp.CallToolRequest, input PromptsInput) (*mcp.CallToolResult, any, error) {
	rootID, branchID := t.target(input.RootID, input.BranchID)
	prompts, err := t.Pipeline.Prompts(ctx, rootID, branchID)
	if err != nil {
		return toolError("Failed to load prompts: %s", apperr.Message(err)), nil, nil
	}
	return toolJSON(prompts)
}

func (t *PipelineTools) SavePrompts(ctx context.Context, _ *mcp.CallToolRequest, input SavePromptsInput) (*mcp.CallToolResult, any, error) {
	rootID, branchID := t.target(input.RootID, input.BranchID)
	prompts, err := t.Pipeline.SavePrompts(ctx, rootID, branchID, input.Prompts)
	if err != nil {
		return toolError("Failed to save prompts: %s", apperr.Message(err)), nil, nil
	}
	return toolJSON(prompts)
}

func (t *PipelineTools) ResetPrompts(ctx context.Context, _ *mcp.CallToolRequest, input PromptsInput) (*mcp.CallToolResult, any, error) {
	rootID, branchID := t.target(input.RootID, input.BranchID)
	prompts, err := t.Pipeline.ResetPrompts(ctx, rootID, branchID)
	if err != nil {
		return toolError("Failed to reset prompts: %s", apperr.Message(err)), nil, nil
	}
	return toolJSON(prompts)
}

// target fills empty root and branch ids from the session context.
func (t *PipelineTools) target(rootID, branchID string) (string, string) {
	wc := t.Session.Context()
	if rootID == "" {
		rootID = wc.RootID
	}
	if branchID == "" {
		branchID = wc.BranchID
	}
	return rootID, branchID
}

// inputs returns the given root and characters, or the stored ones when
// omitted.
func (t *PipelineTools) inputs(root *models.RootStructure, characters []models.Character) (models.RootStructure, []models.Character, error) {
	steps := t.Pipeline.State().Steps
	if root == nil {
		root = steps.Root
	}
	if root == nil {
		return models.RootStructure{}, nil, apperr.Missing("root")
	}
	if characters == nil {
		characters = steps.Characters
	}
	return *root, characters, nil
}
