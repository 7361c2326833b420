package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/pilixiaohui/testnovel/internal/backend"
	"github.com/pilixiaohui/testnovel/internal/session"
	"github.com/pilixiaohui/testnovel/internal/snowflake"
	"github.com/pilixiaohui/testnovel/internal/storage"
	"github.com/pilixiaohui/testnovel/internal/tools"
)

// Version is reported to MCP clients during initialization.
const Version = "0.1.0"

// New creates a fully configured MCP server with all tools registered. The
// persisted working context is loaded before any tool is exposed.
func New(ctx context.Context, client backend.Client, prefs storage.Prefs, logger *slog.Logger) (*mcp.Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	sess := session.New(client, prefs, logger)
	if err := sess.Init(ctx); err != nil {
		return nil, fmt.Errorf("init session: %w", err)
	}
	pipeline := snowflake.New(client, logger)
	pipeline.Bind(sess)
	sess.Subscribe(pipeline.OnContextChange)

	pt := &tools.ProjectTools{Session: sess}
	bt := &tools.BranchTools{Session: sess}
	st := &tools.PipelineTools{Session: sess, Pipeline: pipeline}

	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "story-mcp",
		Version: Version,
	}, nil)

	// Working context tools
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_context",
		Description: "Get the active root, branch and scene together with loading and error flags",
	}, pt.GetContext)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "set_context",
		Description: "Set the active root, branch and scene (branch defaults to main when omitted)",
	}, pt.SetContext)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "clear_context",
		Description: "Clear the active root, branch and scene",
	}, pt.ClearContext)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "sync_navigation",
		Description: "Adopt the identifiers carried by a route (query first, then path parameters)",
	}, pt.SyncNavigation)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "navigation_target",
		Description: "Build the route of a project section carrying the active root and branch",
	}, pt.NavigationTarget)

	// Project tools
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list_projects",
		Description: "List all projects, clearing the context when its root no longer exists",
	}, pt.ListProjects)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "create_project",
		Description: "Create a new project (name of 1 to 255 characters)",
	}, pt.CreateProject)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "load_project",
		Description: "Load a project's detail and adopt its root and branch",
	}, pt.LoadProject)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "delete_project",
		Description: "Permanently delete a project (irreversible)",
	}, pt.DeleteProject)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "save_project_data",
		Description: "Commit scene content on the active branch (requires active root, branch and scene)",
	}, pt.SaveProjectData)

	// Branch and history tools
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list_branches",
		Description: "List the branches of a root",
	}, bt.ListBranches)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "create_branch",
		Description: "Create a branch and make it active",
	}, bt.CreateBranch)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "switch_branch",
		Description: "Switch the active branch",
	}, bt.SwitchBranch)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "fork_from_commit",
		Description: "Create a branch starting at a commit and make it active",
	}, bt.ForkFromCommit)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "fork_from_scene",
		Description: "Create a branch from a scene's history and make it active",
	}, bt.ForkFromScene)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "reset_branch",
		Description: "Move a branch head to an earlier commit",
	}, bt.ResetBranch)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "branch_history",
		Description: "List the commits of a branch, newest first",
	}, bt.History)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "diff_scene",
		Description: "Compare a scene between two commits",
	}, bt.DiffScene)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "gc_commits",
		Description: "Delete unreachable commits older than the retention window",
	}, bt.CollectGarbage)

	// Pipeline tools
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "restore_pipeline",
		Description: "Rebuild the six-stage pipeline from the branch snapshot (defaults to the active root and branch)",
	}, st.RestorePipeline)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_pipeline",
		Description: "Get the pipeline state and the furthest reached stage",
	}, st.GetPipeline)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "update_step_content",
		Description: "Replace one stage's content with a manual edit",
	}, st.UpdateStepContent)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "generate_loglines",
		Description: "Stage 1: generate logline candidates from an idea",
	}, st.GenerateLoglines)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "generate_structure",
		Description: "Stage 2: generate the root structure from a logline",
	}, st.GenerateStructure)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "generate_characters",
		Description: "Stage 3: generate characters from the root structure",
	}, st.GenerateCharacters)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "generate_scenes",
		Description: "Stage 4: generate scene skeletons and persist stages 1 to 4",
	}, st.GenerateScenes)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "generate_acts_chapters",
		Description: "Stage 5: generate acts and chapters",
	}, st.GenerateActsChapters)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "generate_anchors",
		Description: "Stage 6: generate story anchors (requires root and structure)",
	}, st.GenerateAnchors)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_prompts",
		Description: "Get the per-stage prompt set of a root and branch",
	}, st.GetPrompts)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "save_prompts",
		Description: "Save the per-stage prompt set of a root and branch",
	}, st.SavePrompts)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "reset_prompts",
		Description: "Restore the default prompt set of a root and branch",
	}, st.ResetPrompts)

	return srv, nil
}
