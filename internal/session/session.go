// Package session holds the active working context (root, branch, scene),
// the known branches of the active root and the cached project listing.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/pilixiaohui/testnovel/internal/apperr"
	"github.com/pilixiaohui/testnovel/internal/backend"
	"github.com/pilixiaohui/testnovel/internal/models"
	"github.com/pilixiaohui/testnovel/internal/storage"
)

// MaxProjectNameLength is the longest accepted project name, in characters.
const MaxProjectNameLength = 255

// SaveMessage is the commit message used by SaveProjectData.
const SaveMessage = "Saved project data"

// Backend is the part of the backend the session talks to.
type Backend interface {
	backend.Branches
	backend.Projects
}

// State is a read-only view of the session.
type State struct {
	Context            models.WorkingContext   `json:"context"`
	Branches           []string                `json:"branches"`
	Projects           []models.ProjectSummary `json:"projects"`
	Loading            bool                    `json:"is_loading"`
	APIError           string                  `json:"api_error"`
	ProjectListError   string                  `json:"project_list_error,omitempty"`
	ProjectListTimeout bool                    `json:"project_list_timeout"`
}

// Listener is called after the working context changed. It runs outside the
// session lock, so it may call back into the session.
type Listener func(prev, next models.WorkingContext)

// Session is the process-wide context store.
type Session struct {
	client Backend
	prefs  storage.Prefs
	logger *slog.Logger

	mu          sync.Mutex
	wc          models.WorkingContext
	generation  uint64
	branches    []string
	projects    []models.ProjectSummary
	inflight    int
	apiError    string
	listError   string
	listTimeout bool

	listeners []listenerEntry
	nextID    int
}

type listenerEntry struct {
	id int
	fn Listener
}

// New creates a session with the cleared working context. Call Init to load
// the persisted one.
func New(client Backend, prefs storage.Prefs, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		client:   client,
		prefs:    prefs,
		logger:   logger,
		wc:       models.EmptyContext(),
		branches: []string{},
		projects: []models.ProjectSummary{},
	}
}

// Init replaces the working context with the persisted one. Missing keys
// fall back to the cleared defaults.
func (s *Session) Init(ctx context.Context) error {
	wc, err := storage.LoadContext(ctx, s.prefs)
	if err != nil {
		return fmt.Errorf("restore context: %w", err)
	}
	s.mu.Lock()
	prev := s.wc
	changed := s.swap(wc)
	s.mu.Unlock()
	if changed {
		s.notify(prev, wc)
	}
	s.logger.Debug("context restored", "root_id", wc.RootID, "branch_id", wc.BranchID, "scene_id", wc.SceneID)
	return nil
}

// Context returns the active working context.
func (s *Session) Context() models.WorkingContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wc
}

// Generation increases every time the root or branch of the working context
// changes. Scene changes leave it alone.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// State returns a copy of everything the session exposes.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Context:            s.wc,
		Branches:           slices.Clone(s.branches),
		Projects:           slices.Clone(s.projects),
		Loading:            s.inflight > 0,
		APIError:           s.apiError,
		ProjectListError:   s.listError,
		ProjectListTimeout: s.listTimeout,
	}
}

// Subscribe registers fn for context changes and returns a function that
// removes it.
func (s *Session) Subscribe(fn Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listenerEntry{id: id, fn: fn})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.listeners = slices.DeleteFunc(s.listeners, func(e listenerEntry) bool { return e.id == id })
	}
}

// SetContext replaces the working context and persists all three keys
// together. Values are taken as given, including empty strings.
func (s *Session) SetContext(ctx context.Context, rootID, branchID, sceneID string) error {
	next := models.WorkingContext{RootID: rootID, BranchID: branchID, SceneID: sceneID}
	return s.apply(ctx, func(models.WorkingContext) models.WorkingContext { return next })
}

// ClearContext resets the working context to its defaults, forgets the
// known branches and removes the persisted keys.
func (s *Session) ClearContext(ctx context.Context) error {
	s.mu.Lock()
	prev := s.wc
	err := s.clearLocked(ctx)
	next := s.wc
	s.mu.Unlock()
	if prev != next {
		s.notify(prev, next)
	}
	return err
}

// clearLocked must be called with s.mu held.
func (s *Session) clearLocked(ctx context.Context) error {
	s.swap(models.EmptyContext())
	s.branches = []string{}
	if err := storage.ClearContext(ctx, s.prefs); err != nil {
		s.logger.Warn("clear persisted context", "error", err)
		return fmt.Errorf("clear persisted context: %w", err)
	}
	return nil
}

// apply computes the next context from the current one under the lock,
// persists it, and notifies listeners if it changed.
func (s *Session) apply(ctx context.Context, next func(models.WorkingContext) models.WorkingContext) error {
	s.mu.Lock()
	prev := s.wc
	wc := next(prev)
	s.swap(wc)
	err := storage.SaveContext(ctx, s.prefs, wc)
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("persist context", "error", err)
		err = fmt.Errorf("persist context: %w", err)
	}
	if prev != wc {
		s.notify(prev, wc)
	}
	return err
}

// swap must be called with s.mu held.
func (s *Session) swap(wc models.WorkingContext) bool {
	if s.wc == wc {
		return false
	}
	if s.wc.RootID != wc.RootID || s.wc.BranchID != wc.BranchID {
		s.generation++
	}
	s.wc = wc
	return true
}

func (s *Session) notify(prev, next models.WorkingContext) {
	s.mu.Lock()
	fns := make([]Listener, len(s.listeners))
	for i, e := range s.listeners {
		fns[i] = e.fn
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(prev, next)
	}
}

// begin marks a network action as started and clears the last error.
func (s *Session) begin() {
	s.mu.Lock()
	s.inflight++
	s.apiError = ""
	s.mu.Unlock()
}

// end marks a network action as finished and records its failure, if any.
func (s *Session) end(op string, err error) {
	s.mu.Lock()
	s.inflight--
	if err != nil {
		s.apiError = apperr.Message(err)
	}
	s.mu.Unlock()
	if err != nil {
		s.logger.Warn("action failed", "op", op, "error", err)
	}
}

// ListProjects replaces the cached listing. If the active root is not in
// the fresh listing the working context is cleared.
func (s *Session) ListProjects(ctx context.Context) (_ []models.ProjectSummary, err error) {
	s.mu.Lock()
	s.listError = ""
	s.listTimeout = false
	s.mu.Unlock()

	s.begin()
	defer func() { s.end("list projects", err) }()

	roots, err := s.client.ListProjects(ctx)
	if err != nil {
		s.mu.Lock()
		s.listError = apperr.Message(err)
		s.listTimeout = apperr.IsTimeout(err)
		s.mu.Unlock()
		return nil, fmt.Errorf("list projects: %w", err)
	}

	s.mu.Lock()
	s.projects = slices.Clone(roots)
	prev := s.wc
	var clearErr error
	stale := prev.RootID != "" && !slices.ContainsFunc(roots, func(p models.ProjectSummary) bool {
		return p.RootID == prev.RootID
	})
	if stale {
		clearErr = s.clearLocked(ctx)
	}
	next := s.wc
	s.mu.Unlock()

	if stale {
		s.logger.Info("active project no longer listed, context cleared", "root_id", prev.RootID)
		s.notify(prev, next)
	}
	return roots, clearErr
}

// SaveProject validates name and creates a project, appending it to the
// cached listing.
func (s *Session) SaveProject(ctx context.Context, name string) (_ models.ProjectSummary, err error) {
	if err := validate.Struct(projectName{Name: name}); err != nil {
		return models.ProjectSummary{}, fieldError(err)
	}

	s.begin()
	defer func() { s.end("create project", err) }()

	created, err := s.client.CreateProject(ctx, name)
	if err != nil {
		return models.ProjectSummary{}, fmt.Errorf("create project: %w", err)
	}
	s.mu.Lock()
	s.projects = append(s.projects, created)
	s.mu.Unlock()
	return created, nil
}

// DeleteProject deletes a root, drops it from the cached listing and clears
// the working context if it pointed at it.
func (s *Session) DeleteProject(ctx context.Context, rootID string) (err error) {
	if rootID == "" {
		return apperr.Missing("root_id")
	}

	s.begin()
	defer func() { s.end("delete project", err) }()

	if _, err := s.client.DeleteProject(ctx, rootID); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}

	s.mu.Lock()
	s.projects = slices.DeleteFunc(s.projects, func(p models.ProjectSummary) bool { return p.RootID == rootID })
	prev := s.wc
	var clearErr error
	if prev.RootID == rootID {
		clearErr = s.clearLocked(ctx)
	}
	next := s.wc
	s.mu.Unlock()

	if prev != next {
		s.notify(prev, next)
	}
	return clearErr
}

// LoadProject fetches a project's detail for the active branch and makes it
// the working context.
func (s *Session) LoadProject(ctx context.Context, rootID string) (_ models.ProjectDetail, err error) {
	if rootID == "" {
		return models.ProjectDetail{}, apperr.Missing("root_id")
	}
	branchID := s.Context().BranchID
	if branchID == "" {
		branchID = models.DefaultBranchID
	}

	s.begin()
	defer func() { s.end("load project", err) }()

	raw, err := s.client.ProjectDetail(ctx, rootID, branchID)
	if err != nil {
		return models.ProjectDetail{}, fmt.Errorf("load project: %w", err)
	}
	var detail models.ProjectDetail
	if err := backend.DecodeInto(raw, &detail); err != nil {
		return models.ProjectDetail{}, fmt.Errorf("load project: %w", err)
	}
	resolved := ResolveDetail(detail, rootID)
	if err := s.SetContext(ctx, resolved.RootID, resolved.BranchID, resolved.SceneID); err != nil {
		return detail, err
	}
	return detail, nil
}

// ResolveDetail derives a working context from a project detail, falling
// back to fallbackRoot, the default branch and no scene.
func ResolveDetail(detail models.ProjectDetail, fallbackRoot string) models.WorkingContext {
	wc := models.WorkingContext{RootID: detail.RootID, BranchID: detail.BranchID, SceneID: detail.SceneID}
	if wc.RootID == "" {
		wc.RootID = fallbackRoot
	}
	if isBlank(wc.BranchID) {
		wc.BranchID = models.DefaultBranchID
	}
	return wc
}

// SaveProjectData commits content for the active scene on the active
// branch of rootID.
func (s *Session) SaveProjectData(ctx context.Context, rootID string, content map[string]any) (_ models.CommitResult, err error) {
	wc := s.Context()
	target := commitTarget{RootID: rootID, BranchID: wc.BranchID, SceneID: wc.SceneID, Content: content}
	if err := validate.Struct(target); err != nil {
		return models.CommitResult{}, fieldError(err)
	}

	s.begin()
	defer func() { s.end("save project data", err) }()

	result, err := s.client.CommitScene(ctx, rootID, wc.BranchID, models.CommitRequest{
		SceneOriginID: wc.SceneID,
		Content:       content,
		Message:       SaveMessage,
	})
	if err != nil {
		return models.CommitResult{}, fmt.Errorf("save project data: %w", err)
	}
	s.logger.Debug("project data committed", "root_id", rootID, "branch_id", wc.BranchID, "commit_id", result.CommitID)
	return result, nil
}
