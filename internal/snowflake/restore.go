package snowflake

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/pilixiaohui/testnovel/internal/apperr"
	"github.com/pilixiaohui/testnovel/internal/models"
)

// RestoreFromBackend rebuilds every stage from the branch snapshot of
// rootID and returns the furthest stage reached. Snapshot, acts and anchors
// are fetched concurrently, then the chapters of every act. Nothing is
// applied unless every fetch succeeds and the root and branch of the working
// context stayed put meanwhile.
func (s *Store) RestoreFromBackend(ctx context.Context, rootID, branchID string) (_ models.Stage, err error) {
	if rootID == "" {
		return 0, apperr.Missing("root_id")
	}
	branchID = defaultBranch(branchID)
	s.begin()
	defer func() { s.end(err) }()

	s.mu.Lock()
	source := s.source
	s.mu.Unlock()
	var issued uint64
	if source != nil {
		issued = source.Generation()
	}

	var (
		snap    models.Snapshot
		acts    []models.Act
		anchors []models.Anchor
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snap, err = s.client.RootSnapshot(gctx, rootID, branchID)
		return err
	})
	g.Go(func() error {
		var err error
		acts, err = s.client.ListActs(gctx, rootID)
		return err
	})
	g.Go(func() error {
		var err error
		anchors, err = s.client.ListAnchors(gctx, rootID, branchID)
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger.Warn("restore failed", "root_id", rootID, "branch_id", branchID, "error", err)
		return 0, fmt.Errorf("restore pipeline: %w", err)
	}

	chaptersByAct := make([][]models.Chapter, len(acts))
	g, gctx = errgroup.WithContext(ctx)
	for i, act := range acts {
		g.Go(func() error {
			chapters, err := s.client.ListChapters(gctx, act.ID)
			if err != nil {
				return fmt.Errorf("chapters of act %s: %w", act.ID, err)
			}
			chaptersByAct[i] = chapters
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Warn("restore failed", "root_id", rootID, "branch_id", branchID, "error", err)
		return 0, fmt.Errorf("restore pipeline: %w", err)
	}

	chapters := []models.Chapter{}
	for _, c := range chaptersByAct {
		chapters = append(chapters, c...)
	}
	steps := Rebuild(rootID, snap, acts, chapters, anchors)
	stage := models.InferStage(snap, acts, chapters, anchors)

	s.mu.Lock()
	defer s.mu.Unlock()
	if source != nil && source.Generation() != issued {
		s.logger.Info("restore discarded, context changed", "root_id", rootID, "branch_id", branchID)
		return 0, apperr.ErrSuperseded
	}
	s.id = rootID
	s.branch = branchID
	s.createdAt = snap.CreatedAt
	s.steps = steps
	s.logger.Debug("pipeline restored", "root_id", rootID, "branch_id", branchID, "stage", int(stage))
	return stage, nil
}

// Rebuild turns a snapshot and its sibling collections into pipeline stages.
func Rebuild(rootID string, snap models.Snapshot, acts []models.Act, chapters []models.Chapter, anchors []models.Anchor) models.PipelineState {
	root := models.RootStructure{
		ID:             rootID,
		Logline:        snap.Logline,
		Theme:          snap.Theme,
		Ending:         snap.Ending,
		ThreeDisasters: snap.ThreeDisasters,
		CreatedAt:      snap.CreatedAt,
	}.Normalize()

	steps := models.EmptyPipeline()
	if snap.Logline != "" {
		steps.Logline = []string{snap.Logline}
	}
	steps.Root = &root
	steps.Characters = orEmpty(snap.Characters)
	steps.Scenes = orEmpty(snap.Scenes)
	steps.Acts = orEmpty(acts)
	steps.Chapters = orEmpty(chapters)
	steps.Anchors = orEmpty(anchors)
	return steps
}

func orEmpty[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
