// Package snowflake holds the six-stage pipeline state of the active root:
// forward generation stage by stage, and reconstruction from a branch
// snapshot.
package snowflake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pilixiaohui/testnovel/internal/apperr"
	"github.com/pilixiaohui/testnovel/internal/backend"
	"github.com/pilixiaohui/testnovel/internal/models"
)

// Backend is the part of the backend the pipeline talks to.
type Backend interface {
	backend.Snapshots
	backend.Generator
}

// ContextSource reports the active working context and how often its root
// or branch has changed. The session implements it.
type ContextSource interface {
	Context() models.WorkingContext
	Generation() uint64
}

// View is a read-only copy of the pipeline.
type View struct {
	RootID    string               `json:"root_id"`
	BranchID  string               `json:"branch_id,omitempty"`
	CreatedAt string               `json:"created_at,omitempty"`
	Stage     models.Stage         `json:"stage"`
	Steps     models.PipelineState `json:"steps"`
	Loading   bool                 `json:"is_loading"`
	APIError  string               `json:"api_error"`
}

// Store is the pipeline state store.
type Store struct {
	client Backend
	logger *slog.Logger

	mu        sync.Mutex
	id        string
	branch    string // set by restore; "" when the branch is unknown
	createdAt string
	steps     models.PipelineState
	source    ContextSource
	inflight  int
	apiError  string
}

// New creates an empty store.
func New(client Backend, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{client: client, logger: logger, steps: models.EmptyPipeline()}
}

// Bind makes RestoreFromBackend discard responses that arrive after src's
// working context changed.
func (s *Store) Bind(src ContextSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = src
}

// RootID returns the root the pipeline belongs to, or "" if none is known.
func (s *Store) RootID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// State returns a deep copy of the pipeline.
func (s *Store) State() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return View{
		RootID:    s.id,
		BranchID:  s.branch,
		CreatedAt: s.createdAt,
		Stage:     s.steps.Stage(),
		Steps:     s.steps.Clone(),
		Loading:   s.inflight > 0,
		APIError:  s.apiError,
	}
}

// Stage returns the furthest stage the current state has reached.
func (s *Store) Stage() models.Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.steps.Stage()
}

// Reset forgets the root and empties every stage.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

func (s *Store) reset() {
	s.id = ""
	s.branch = ""
	s.createdAt = ""
	s.steps = models.EmptyPipeline()
}

// OnContextChange empties the pipeline when the working context moves to
// another root or branch. A context that only catches up with the root and
// branch the pipeline already holds keeps it. When the held branch is
// unknown, the branch must not have changed.
func (s *Store) OnContextChange(prev, next models.WorkingContext) {
	if prev.RootID == next.RootID && prev.BranchID == next.BranchID {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if next.RootID == s.id {
		held := s.branch
		if held == "" {
			held = prev.BranchID
		}
		if next.BranchID == held {
			return
		}
	}
	s.logger.Debug("pipeline reset for new context", "root_id", next.RootID, "branch_id", next.BranchID)
	s.reset()
}

// SaveStep persists data as stage of the known root.
func (s *Store) SaveStep(ctx context.Context, stage models.Stage, data map[string]any) error {
	if !stage.Valid() {
		return apperr.Missing("step")
	}
	rootID := s.RootID()
	if rootID == "" {
		return apperr.Missing("root_id")
	}
	return s.save(ctx, rootID, stage, data)
}

// begin marks a backend call as started and clears the last error.
func (s *Store) begin() {
	s.mu.Lock()
	s.inflight++
	s.apiError = ""
	s.mu.Unlock()
}

// end marks a backend call as finished and records its failure, if any.
func (s *Store) end(err error) {
	s.mu.Lock()
	s.inflight--
	if err != nil && !errors.Is(err, apperr.ErrSuperseded) {
		s.apiError = apperr.Message(err)
	}
	s.mu.Unlock()
}

func (s *Store) save(ctx context.Context, rootID string, stage models.Stage, data map[string]any) (err error) {
	s.begin()
	defer func() { s.end(err) }()

	err = s.client.SaveStep(ctx, models.StepSave{RootID: rootID, Step: stage.Key(), Data: data})
	if err != nil {
		s.logger.Warn("stage save failed", "root_id", rootID, "step", stage.Key(), "error", err)
		err = fmt.Errorf("save %s: %w", stage.Key(), err)
		return err
	}
	s.logger.Debug("stage saved", "root_id", rootID, "step", stage.Key())
	return nil
}

// Prompts returns the custom generation prompts of a root and branch.
func (s *Store) Prompts(ctx context.Context, rootID, branchID string) (_ models.PromptSet, err error) {
	if rootID == "" {
		return models.PromptSet{}, apperr.Missing("root_id")
	}
	s.begin()
	defer func() { s.end(err) }()

	p, err := s.client.Prompts(ctx, rootID, defaultBranch(branchID))
	if err != nil {
		return models.PromptSet{}, fmt.Errorf("get prompts: %w", err)
	}
	return p, nil
}

// SavePrompts stores custom generation prompts for a root and branch.
func (s *Store) SavePrompts(ctx context.Context, rootID, branchID string, prompts models.PromptSet) (_ models.PromptSet, err error) {
	if rootID == "" {
		return models.PromptSet{}, apperr.Missing("root_id")
	}
	s.begin()
	defer func() { s.end(err) }()

	p, err := s.client.SavePrompts(ctx, rootID, defaultBranch(branchID), prompts)
	if err != nil {
		return models.PromptSet{}, fmt.Errorf("save prompts: %w", err)
	}
	return p, nil
}

// ResetPrompts restores the default prompts of a root and branch.
func (s *Store) ResetPrompts(ctx context.Context, rootID, branchID string) (_ models.PromptSet, err error) {
	if rootID == "" {
		return models.PromptSet{}, apperr.Missing("root_id")
	}
	s.begin()
	defer func() { s.end(err) }()

	p, err := s.client.ResetPrompts(ctx, rootID, defaultBranch(branchID))
	if err != nil {
		return models.PromptSet{}, fmt.Errorf("reset prompts: %w", err)
	}
	return p, nil
}

func defaultBranch(branchID string) string {
	if branchID == "" {
		return models.DefaultBranchID
	}
	return branchID
}
