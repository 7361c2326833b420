package session

import (
	"context"
	"fmt"
	"slices"

	"github.com/pilixiaohui/testnovel/internal/apperr"
	"github.com/pilixiaohui/testnovel/internal/models"
)

// LoadBranches fetches and stores the branch ids of rootID.
func (s *Session) LoadBranches(ctx context.Context, rootID string) (_ []string, err error) {
	if rootID == "" {
		return nil, apperr.Missing("root_id")
	}

	s.begin()
	defer func() { s.end("list branches", err) }()

	branches, err := s.client.ListBranches(ctx, rootID)
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	s.mu.Lock()
	s.branches = slices.Clone(branches)
	s.mu.Unlock()
	return branches, nil
}

// CreateBranch creates branchID under rootID and makes it active.
func (s *Session) CreateBranch(ctx context.Context, rootID, branchID string) (models.BranchRef, error) {
	if err := requireAll("root_id", rootID, "branch_id", branchID); err != nil {
		return models.BranchRef{}, err
	}
	return s.activate(ctx, "create branch", func() (models.BranchRef, error) {
		return s.client.CreateBranch(ctx, rootID, branchID)
	}, true)
}

// SwitchBranch makes branchID the active branch of rootID.
func (s *Session) SwitchBranch(ctx context.Context, rootID, branchID string) (models.BranchRef, error) {
	if err := requireAll("root_id", rootID, "branch_id", branchID); err != nil {
		return models.BranchRef{}, err
	}
	return s.activate(ctx, "switch branch", func() (models.BranchRef, error) {
		return s.client.SwitchBranch(ctx, rootID, branchID)
	}, false)
}

// ForkFromCommit creates newBranchID at commitID and makes it active.
func (s *Session) ForkFromCommit(ctx context.Context, rootID, commitID, newBranchID string) (models.BranchRef, error) {
	if err := requireAll("root_id", rootID, "source_commit_id", commitID, "new_branch_id", newBranchID); err != nil {
		return models.BranchRef{}, err
	}
	return s.activate(ctx, "fork from commit", func() (models.BranchRef, error) {
		return s.client.ForkFromCommit(ctx, rootID, commitID, newBranchID)
	}, true)
}

// ForkFromScene creates newBranchID from the history of sceneOriginID on
// sourceBranchID (the active branch when empty) and makes it active.
func (s *Session) ForkFromScene(ctx context.Context, rootID, sceneOriginID, newBranchID, sourceBranchID string) (models.BranchRef, error) {
	if sourceBranchID == "" {
		sourceBranchID = s.Context().BranchID
	}
	if err := requireAll("root_id", rootID, "scene_origin_id", sceneOriginID,
		"new_branch_id", newBranchID, "source_branch_id", sourceBranchID); err != nil {
		return models.BranchRef{}, err
	}
	return s.activate(ctx, "fork from scene", func() (models.BranchRef, error) {
		return s.client.ForkFromScene(ctx, rootID, sceneOriginID, newBranchID, sourceBranchID)
	}, true)
}

// ResetBranch moves branchID of rootID back to commitID. The working
// context is not changed.
func (s *Session) ResetBranch(ctx context.Context, rootID, branchID, commitID string) (_ models.BranchRef, err error) {
	if err := requireAll("root_id", rootID, "branch_id", branchID, "commit_id", commitID); err != nil {
		return models.BranchRef{}, err
	}

	s.begin()
	defer func() { s.end("reset branch", err) }()

	ref, err := s.client.ResetBranch(ctx, rootID, branchID, commitID)
	if err != nil {
		return models.BranchRef{}, fmt.Errorf("reset branch: %w", err)
	}
	return ref, nil
}

// History returns the commits of branchID, newest first.
func (s *Session) History(ctx context.Context, rootID, branchID string) (_ []models.Commit, err error) {
	if err := requireAll("root_id", rootID, "branch_id", branchID); err != nil {
		return nil, err
	}

	s.begin()
	defer func() { s.end("branch history", err) }()

	commits, err := s.client.History(ctx, rootID, branchID)
	if err != nil {
		return nil, fmt.Errorf("branch history: %w", err)
	}
	return commits, nil
}

// DiffScene compares a scene between two commits of branchID.
func (s *Session) DiffScene(ctx context.Context, sceneID, branchID, fromCommitID, toCommitID string) (_ models.SceneDiff, err error) {
	if err := requireAll("scene_id", sceneID, "branch_id", branchID,
		"from_commit_id", fromCommitID, "to_commit_id", toCommitID); err != nil {
		return nil, err
	}

	s.begin()
	defer func() { s.end("diff scene", err) }()

	diff, err := s.client.DiffScene(ctx, sceneID, branchID, fromCommitID, toCommitID)
	if err != nil {
		return nil, fmt.Errorf("diff scene: %w", err)
	}
	return diff, nil
}

// CollectGarbage removes unreachable commits of rootID older than
// retentionDays. Zero leaves the retention to the backend.
func (s *Session) CollectGarbage(ctx context.Context, rootID string, retentionDays int) (_ models.GCResult, err error) {
	if rootID == "" {
		return models.GCResult{}, apperr.Missing("root_id")
	}

	s.begin()
	defer func() { s.end("gc commits", err) }()

	result, err := s.client.CollectGarbage(ctx, rootID, retentionDays)
	if err != nil {
		return models.GCResult{}, fmt.Errorf("gc commits: %w", err)
	}
	s.logger.Info("commits collected", "root_id", rootID,
		"commits", len(result.DeletedCommitIDs), "scene_versions", len(result.DeletedSceneVersionIDs))
	return result, nil
}

// activate runs a branch mutation and makes the branch it answers with the
// active one. With remember set the branch is also added to the known list.
func (s *Session) activate(ctx context.Context, op string, call func() (models.BranchRef, error), remember bool) (_ models.BranchRef, err error) {
	s.begin()
	defer func() { s.end(op, err) }()

	ref, err := call()
	if err != nil {
		return models.BranchRef{}, fmt.Errorf("%s: %w", op, err)
	}
	if ref.BranchID == "" {
		return ref, fmt.Errorf("%s: %w", op, apperr.Missing("branch_id"))
	}

	if remember {
		s.mu.Lock()
		if !slices.Contains(s.branches, ref.BranchID) {
			s.branches = append(s.branches, ref.BranchID)
		}
		s.mu.Unlock()
	}
	err = s.apply(ctx, func(wc models.WorkingContext) models.WorkingContext {
		wc.BranchID = ref.BranchID
		return wc
	})
	return ref, err
}
