package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/pilixiaohui/testnovel/internal/apperr"
	"github.com/pilixiaohui/testnovel/internal/models"
	"github.com/pilixiaohui/testnovel/internal/session"
)

// ProjectTools holds references needed by context and project tool handlers.
type ProjectTools struct {
	Session *session.Session
}

// --- Input types ---

type SetContextInput struct {
	RootID   string  `json:"root_id" jsonschema:"Project root id (may be empty)"`
	BranchID *string `json:"branch_id,omitempty" jsonschema:"Branch id, defaults to main when omitted"`
	SceneID  string  `json:"scene_id,omitempty" jsonschema:"Active scene id"`
}

type SyncNavigationInput struct {
	Name   string                   `json:"name,omitempty" jsonschema:"Route name"`
	Params session.NavigationParams `json:"params,omitempty" jsonschema:"Route path parameters: sceneId, rootId, branchId"`
	Query  session.NavigationQuery  `json:"query,omitempty" jsonschema:"Route query: root_id, branch_id"`
}

type NavigationTargetInput struct {
	Section string `json:"section" jsonschema:"Section path such as /snowflake, /editor, /simulation, /world"`
}

type CreateProjectInput struct {
	Name string `json:"name" jsonschema:"Project name (1 to 255 characters)"`
}

type RootInput struct {
	RootID string `json:"root_id" jsonschema:"Project root id"`
}

type SaveProjectDataInput struct {
	RootID  string         `json:"root_id" jsonschema:"Project root id"`
	Content map[string]any `json:"content" jsonschema:"Scene content to commit on the active branch"`
}

// --- Handlers ---

func (t *ProjectTools) GetContext(_ context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
	return toolJSON(t.Session.State())
}

func (t *ProjectTools) SetContext(ctx context.Context, _ *mcp.CallToolRequest, input SetContextInput) (*mcp.CallToolResult, any, error) {
	branchID := models.DefaultBranchID
	if input.BranchID != nil {
		branchID = *input.BranchID
	}
	if err := t.Session.SetContext(ctx, input.RootID, branchID, input.SceneID); err != nil {
		return toolError("Failed to set context: %v", err), nil, nil
	}
	return toolJSON(t.Session.Context())
}

func (t *ProjectTools) ClearContext(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
	if err := t.Session.ClearContext(ctx); err != nil {
		return toolError("Failed to clear context: %v", err), nil, nil
	}
	return toolJSON(t.Session.Context())
}

func (t *ProjectTools) SyncNavigation(ctx context.Context, _ *mcp.CallToolRequest, input SyncNavigationInput) (*mcp.CallToolResult, any, error) {
	nav := session.Navigation{Name: input.Name, Params: input.Params, Query: input.Query}
	if err := t.Session.ReconcileFromNavigation(ctx, nav); err != nil {
		return toolError("Failed to sync navigation: %v", err), nil, nil
	}
	return toolJSON(t.Session.Context())
}

func (t *ProjectTools) NavigationTarget(_ context.Context, _ *mcp.CallToolRequest, input NavigationTargetInput) (*mcp.CallToolResult, any, error) {
	if input.Section == "" {
		return toolError("section is required"), nil, nil
	}
	return toolJSON(t.Session.NavigationTarget(input.Section))
}

func (t *ProjectTools) ListProjects(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
	projects, err := t.Session.ListProjects(ctx)
	if err != nil {
		if apperr.IsTimeout(err) {
			return toolError("Listing projects timed out, try again"), nil, nil
		}
		return toolError("Failed to list projects: %s", apperr.Message(err)), nil, nil
	}
	return toolJSON(projects)
}

func (t *ProjectTools) CreateProject(ctx context.Context, _ *mcp.CallToolRequest, input CreateProjectInput) (*mcp.CallToolResult, any, error) {
	proj, err := t.Session.SaveProject(ctx, input.Name)
	if err != nil {
		return toolError("Failed to create project: %s", apperr.Message(err)), nil, nil
	}
	return toolJSON(proj)
}

func (t *ProjectTools) LoadProject(ctx context.Context, _ *mcp.CallToolRequest, input RootInput) (*mcp.CallToolResult, any, error) {
	if _, err := t.Session.LoadProject(ctx, input.RootID); err != nil {
		return toolError("Failed to load project: %s", apperr.Message(err)), nil, nil
	}
	return toolJSON(t.Session.Context())
}

func (t *ProjectTools) DeleteProject(ctx context.Context, _ *mcp.CallToolRequest, input RootInput) (*mcp.CallToolResult, any, error) {
	if err := t.Session.DeleteProject(ctx, input.RootID); err != nil {
		return toolError("Failed to delete project: %s", apperr.Message(err)), nil, nil
	}
	return toolText(fmt.Sprintf("Project %q permanently deleted.", input.RootID)), nil, nil
}

func (t *ProjectTools) SaveProjectData(ctx context.Context, _ *mcp.CallToolRequest, input SaveProjectDataInput) (*mcp.CallToolResult, any, error) {
	result, err := t.Session.SaveProjectData(ctx, input.RootID, input.Content)
	if err != nil {
		return toolError("Failed to save project data: %s", apperr.Message(err)), nil, nil
	}
	return toolJSON(result)
}

// --- Helpers ---

func toolText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func toolError(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}

func toolJSON(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError("Failed to marshal result: %v", err), nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}
