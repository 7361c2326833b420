package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pilixiaohui/testnovel/internal/apperr"
	"github.com/pilixiaohui/testnovel/internal/models"
)

// DefaultBaseURL is the backend API root used when none is configured.
const DefaultBaseURL = "http://localhost:8000/api/v1"

// HTTPClient talks to the story backend over its JSON API.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewHTTPClient returns a client for baseURL. A zero timeout disables the
// per-request deadline.
func NewHTTPClient(baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

var _ Client = (*HTTPClient)(nil)

// do issues one request. body is JSON-encoded when non-nil; the response is
// decoded into out when out is non-nil.
func (c *HTTPClient) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	requestID := uuid.New().String()
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("backend request failed", "op", op, "request_id", requestID, "error", err)
		return transportError(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(op, err)
	}
	c.logger.Debug("backend request",
		"op", op, "method", method, "path", path,
		"status", resp.StatusCode, "request_id", requestID,
		"duration", time.Since(start))

	if resp.StatusCode >= 400 {
		return &apperr.NetworkError{Op: op, Status: resp.StatusCode, Message: detailMessage(resp.StatusCode, data)}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: %w", op, apperr.Invalid("%v", err))
	}
	return nil
}

func transportError(op string, err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return &apperr.NetworkError{Op: op, Message: apperr.TimeoutMessage, Err: err}
	}
	return &apperr.NetworkError{Op: op, Message: err.Error(), Err: err}
}

// detailMessage extracts the "detail" field of an error body. String details
// are used as is; anything else is JSON-encoded.
func detailMessage(status int, body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		detail := bytes.TrimSpace(payload.Detail)
		if len(detail) > 0 && !bytes.Equal(detail, []byte("null")) {
			var s string
			if json.Unmarshal(detail, &s) == nil {
				return s
			}
			var buf bytes.Buffer
			if json.Compact(&buf, detail) == nil {
				return buf.String()
			}
			return string(detail)
		}
	}
	return fmt.Sprintf("request failed with status code %d", status)
}

func branchQuery(branchID string) url.Values {
	return url.Values{"branch_id": {branchID}}
}

func rootPath(rootID string, rest ...string) string {
	parts := []string{"/roots", url.PathEscape(rootID)}
	for _, r := range rest {
		parts = append(parts, url.PathEscape(r))
	}
	return strings.Join(parts, "/")
}

// ---------------------------------------------------------------------------
// Projects
// ---------------------------------------------------------------------------

func (c *HTTPClient) ListProjects(ctx context.Context) ([]models.ProjectSummary, error) {
	var out struct {
		Roots []models.ProjectSummary `json:"roots"`
	}
	if err := c.do(ctx, "list projects", http.MethodGet, "/roots", nil, nil, &out); err != nil {
		return nil, err
	}
	if out.Roots == nil {
		out.Roots = []models.ProjectSummary{}
	}
	return out.Roots, nil
}

func (c *HTTPClient) CreateProject(ctx context.Context, name string) (models.ProjectSummary, error) {
	var out models.ProjectSummary
	err := c.do(ctx, "create project", http.MethodPost, "/roots", nil, map[string]string{"name": name}, &out)
	return out, err
}

func (c *HTTPClient) DeleteProject(ctx context.Context, rootID string) (bool, error) {
	var out struct {
		Success bool `json:"success"`
	}
	err := c.do(ctx, "delete project", http.MethodDelete, rootPath(rootID), nil, nil, &out)
	return out.Success, err
}

func (c *HTTPClient) ProjectDetail(ctx context.Context, rootID, branchID string) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.do(ctx, "load project", http.MethodGet, rootPath(rootID), branchQuery(branchID), nil, &out)
	return out, err
}

// ---------------------------------------------------------------------------
// Branches and commits
// ---------------------------------------------------------------------------

func (c *HTTPClient) ListBranches(ctx context.Context, rootID string) ([]string, error) {
	var out []string
	if err := c.do(ctx, "list branches", http.MethodGet, rootPath(rootID, "branches"), nil, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

func (c *HTTPClient) CreateBranch(ctx context.Context, rootID, branchID string) (models.BranchRef, error) {
	var out models.BranchRef
	err := c.do(ctx, "create branch", http.MethodPost, rootPath(rootID, "branches"), nil,
		map[string]string{"branch_id": branchID}, &out)
	return out, err
}

func (c *HTTPClient) SwitchBranch(ctx context.Context, rootID, branchID string) (models.BranchRef, error) {
	var out models.BranchRef
	err := c.do(ctx, "switch branch", http.MethodPost, rootPath(rootID, "branches", branchID, "switch"), nil, nil, &out)
	return out, err
}

func (c *HTTPClient) ForkFromCommit(ctx context.Context, rootID, sourceCommitID, newBranchID string) (models.BranchRef, error) {
	var out models.BranchRef
	err := c.do(ctx, "fork from commit", http.MethodPost, rootPath(rootID, "branches", "fork_from_commit"), nil,
		map[string]string{"source_commit_id": sourceCommitID, "new_branch_id": newBranchID}, &out)
	return out, err
}

func (c *HTTPClient) ForkFromScene(ctx context.Context, rootID, sceneOriginID, newBranchID, sourceBranchID string) (models.BranchRef, error) {
	var out models.BranchRef
	err := c.do(ctx, "fork from scene", http.MethodPost, rootPath(rootID, "branches", "fork_from_scene"), nil,
		map[string]string{
			"scene_origin_id":  sceneOriginID,
			"new_branch_id":    newBranchID,
			"source_branch_id": sourceBranchID,
		}, &out)
	return out, err
}

func (c *HTTPClient) ResetBranch(ctx context.Context, rootID, branchID, commitID string) (models.BranchRef, error) {
	var out models.BranchRef
	err := c.do(ctx, "reset branch", http.MethodPost, rootPath(rootID, "branches", branchID, "reset"), nil,
		map[string]string{"commit_id": commitID}, &out)
	return out, err
}

func (c *HTTPClient) History(ctx context.Context, rootID, branchID string) ([]models.Commit, error) {
	var out []models.Commit
	if err := c.do(ctx, "branch history", http.MethodGet, rootPath(rootID, "branches", branchID, "history"), nil, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.Commit{}
	}
	return out, nil
}

func (c *HTTPClient) CommitScene(ctx context.Context, rootID, branchID string, req models.CommitRequest) (models.CommitResult, error) {
	var out models.CommitResult
	err := c.do(ctx, "commit scene", http.MethodPost, rootPath(rootID, "branches", branchID, "commit"), nil, req, &out)
	return out, err
}

func (c *HTTPClient) CollectGarbage(ctx context.Context, rootID string, retentionDays int) (models.GCResult, error) {
	body := map[string]any{"root_id": rootID}
	if retentionDays > 0 {
		body["retention_days"] = retentionDays
	}
	var out models.GCResult
	err := c.do(ctx, "gc commits", http.MethodPost, "/commits/gc", nil, body, &out)
	return out, err
}

func (c *HTTPClient) DiffScene(ctx context.Context, sceneID, branchID, fromCommitID, toCommitID string) (models.SceneDiff, error) {
	q := url.Values{
		"branch_id":      {branchID},
		"from_commit_id": {fromCommitID},
		"to_commit_id":   {toCommitID},
	}
	var out models.SceneDiff
	if err := c.do(ctx, "diff scene", http.MethodGet, "/scenes/"+url.PathEscape(sceneID)+"/diff", q, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = models.SceneDiff{}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Snapshots, stage saves and prompts
// ---------------------------------------------------------------------------

func (c *HTTPClient) RootSnapshot(ctx context.Context, rootID, branchID string) (models.Snapshot, error) {
	var out models.Snapshot
	err := c.do(ctx, "root snapshot", http.MethodGet, rootPath(rootID), branchQuery(branchID), nil, &out)
	return out, err
}

func (c *HTTPClient) ListActs(ctx context.Context, rootID string) ([]models.Act, error) {
	var out []models.Act
	err := c.do(ctx, "list acts", http.MethodGet, rootPath(rootID, "acts"), nil, nil, &out)
	return out, err
}

func (c *HTTPClient) ListChapters(ctx context.Context, actID string) ([]models.Chapter, error) {
	var out []models.Chapter
	err := c.do(ctx, "list chapters", http.MethodGet, "/acts/"+url.PathEscape(actID)+"/chapters", nil, nil, &out)
	return out, err
}

func (c *HTTPClient) ListAnchors(ctx context.Context, rootID, branchID string) ([]models.Anchor, error) {
	var out []models.Anchor
	err := c.do(ctx, "list anchors", http.MethodGet, rootPath(rootID, "anchors"), branchQuery(branchID), nil, &out)
	return out, err
}

func (c *HTTPClient) SaveStep(ctx context.Context, save models.StepSave) error {
	body := map[string]any{"step": save.Step, "data": save.Data}
	return c.do(ctx, "save "+save.Step, http.MethodPost, rootPath(save.RootID, "snowflake", "steps"), nil, body, nil)
}

func (c *HTTPClient) Prompts(ctx context.Context, rootID, branchID string) (models.PromptSet, error) {
	var out models.PromptSet
	err := c.do(ctx, "get prompts", http.MethodGet, rootPath(rootID, "snowflake", "prompts"), branchQuery(branchID), nil, &out)
	return out, err
}

func (c *HTTPClient) SavePrompts(ctx context.Context, rootID, branchID string, prompts models.PromptSet) (models.PromptSet, error) {
	out := prompts
	err := c.do(ctx, "save prompts", http.MethodPut, rootPath(rootID, "snowflake", "prompts"), branchQuery(branchID), prompts, &out)
	return out, err
}

func (c *HTTPClient) ResetPrompts(ctx context.Context, rootID, branchID string) (models.PromptSet, error) {
	var out models.PromptSet
	err := c.do(ctx, "reset prompts", http.MethodPost, rootPath(rootID, "snowflake", "prompts", "reset"), branchQuery(branchID),
		map[string]any{}, &out)
	return out, err
}

// ---------------------------------------------------------------------------
// Generation
// ---------------------------------------------------------------------------

type structureRequest struct {
	models.RootStructure
	Prompt string `json:"prompt,omitempty"`
}

type castRequest struct {
	RootID     string               `json:"root_id,omitempty"`
	BranchID   string               `json:"branch_id,omitempty"`
	Root       models.RootStructure `json:"root"`
	Characters []models.Character   `json:"characters"`
	Prompt     string               `json:"prompt,omitempty"`
}

func (c *HTTPClient) GenerateLoglines(ctx context.Context, idea, prompt string) ([]string, error) {
	body := struct {
		Idea   string `json:"idea"`
		Prompt string `json:"prompt,omitempty"`
	}{idea, prompt}
	var out []string
	err := c.do(ctx, "generate loglines", http.MethodPost, "/snowflake/step1", nil, body, &out)
	return out, err
}

func (c *HTTPClient) GenerateStructure(ctx context.Context, logline, prompt string) (models.RootStructure, error) {
	body := struct {
		Logline string `json:"logline"`
		Prompt  string `json:"prompt,omitempty"`
	}{logline, prompt}
	var out models.RootStructure
	err := c.do(ctx, "generate structure", http.MethodPost, "/snowflake/step2", nil, body, &out)
	return out, err
}

func (c *HTTPClient) GenerateCharacters(ctx context.Context, root models.RootStructure, prompt string) ([]models.Character, error) {
	var out []models.Character
	err := c.do(ctx, "generate characters", http.MethodPost, "/snowflake/step3", nil,
		structureRequest{RootStructure: root, Prompt: prompt}, &out)
	return out, err
}

func (c *HTTPClient) GenerateScenes(ctx context.Context, root models.RootStructure, characters []models.Character, prompt string) (models.ScenesResult, error) {
	var out models.ScenesResult
	err := c.do(ctx, "generate scenes", http.MethodPost, "/snowflake/step4", nil,
		castRequest{Root: root, Characters: characters, Prompt: prompt}, &out)
	return out, err
}

func (c *HTTPClient) GenerateActs(ctx context.Context, rootID string, root models.RootStructure, characters []models.Character, prompt string) ([]models.Act, error) {
	var out []models.Act
	err := c.do(ctx, "generate acts", http.MethodPost, "/snowflake/step5a", nil,
		castRequest{RootID: rootID, Root: root, Characters: characters, Prompt: prompt}, &out)
	return out, err
}

func (c *HTTPClient) GenerateChapters(ctx context.Context, rootID string, root models.RootStructure, characters []models.Character, prompt string) ([]models.Chapter, error) {
	var out []models.Chapter
	err := c.do(ctx, "generate chapters", http.MethodPost, "/snowflake/step5b", nil,
		castRequest{RootID: rootID, Root: root, Characters: characters, Prompt: prompt}, &out)
	return out, err
}

func (c *HTTPClient) GenerateAnchors(ctx context.Context, rootID, branchID string, root models.RootStructure, characters []models.Character, prompt string) ([]models.Anchor, error) {
	var out []models.Anchor
	err := c.do(ctx, "generate anchors", http.MethodPost, rootPath(rootID, "anchors"), nil,
		castRequest{BranchID: branchID, Root: root, Characters: characters, Prompt: prompt}, &out)
	return out, err
}
