package snowflake

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/pilixiaohui/testnovel/internal/apperr"
	"github.com/pilixiaohui/testnovel/internal/models"
)

// GenerateLoglines replaces the logline candidates with what the generator
// produces for idea.
func (s *Store) GenerateLoglines(ctx context.Context, idea, prompt string) (_ []string, err error) {
	s.begin()
	defer func() { s.end(err) }()

	loglines, err := s.client.GenerateLoglines(ctx, idea, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate loglines: %w", err)
	}
	loglines = orEmpty(loglines)

	s.mu.Lock()
	s.steps.Logline = slices.Clone(loglines)
	rootID := s.id
	s.mu.Unlock()

	if rootID != "" {
		if err := s.save(ctx, rootID, models.StageLogline, map[string]any{"logline": loglines}); err != nil {
			return loglines, err
		}
	}
	return loglines, nil
}

// GenerateStructure produces the root structure for logline. The backend id
// is adopted when no root is known yet.
func (s *Store) GenerateStructure(ctx context.Context, logline, prompt string) (_ models.RootStructure, err error) {
	s.begin()
	defer func() { s.end(err) }()

	generated, err := s.client.GenerateStructure(ctx, logline, prompt)
	if err != nil {
		return models.RootStructure{}, fmt.Errorf("generate structure: %w", err)
	}
	root := generated.Normalize()

	s.mu.Lock()
	stored := root
	s.steps.Root = &stored
	if trimmed := strings.TrimSpace(logline); trimmed != "" && len(s.steps.Logline) == 0 {
		s.steps.Logline = []string{trimmed}
	}
	if root.ID != "" && s.id == "" {
		s.id = root.ID
	}
	rootID := s.id
	s.mu.Unlock()

	if rootID != "" {
		if err := s.save(ctx, rootID, models.StageStructure, map[string]any{"root": root}); err != nil {
			return root, err
		}
	}
	return root, nil
}

// GenerateCharacters replaces the character list with the generator output.
func (s *Store) GenerateCharacters(ctx context.Context, root models.RootStructure, prompt string) (_ []models.Character, err error) {
	s.begin()
	defer func() { s.end(err) }()

	characters, err := s.client.GenerateCharacters(ctx, root.Normalize(), prompt)
	if err != nil {
		return nil, fmt.Errorf("generate characters: %w", err)
	}
	characters = orEmpty(characters)

	s.mu.Lock()
	s.steps.Characters = slices.Clone(characters)
	rootID := s.id
	s.mu.Unlock()

	if rootID != "" {
		if err := s.save(ctx, rootID, models.StageCharacters, map[string]any{"characters": characters}); err != nil {
			return characters, err
		}
	}
	return characters, nil
}

// GenerateScenes produces the scene skeletons. This is where the backend
// mints the root id, so stages 1 to 3 are saved again alongside stage 4.
func (s *Store) GenerateScenes(ctx context.Context, root models.RootStructure, characters []models.Character, prompt string) (_ models.ScenesResult, err error) {
	s.begin()
	defer func() { s.end(err) }()

	root = root.Normalize()
	characters = orEmpty(characters)
	result, err := s.client.GenerateScenes(ctx, root, characters, prompt)
	if err != nil {
		return models.ScenesResult{}, fmt.Errorf("generate scenes: %w", err)
	}
	result.Scenes = orEmpty(result.Scenes)

	s.mu.Lock()
	s.steps.Scenes = slices.Clone(result.Scenes)
	stored := root
	s.steps.Root = &stored
	s.steps.Characters = slices.Clone(characters)
	if result.RootID != "" {
		s.id = result.RootID
	}
	if len(s.steps.Logline) == 0 {
		if derived := strings.TrimSpace(root.Logline); derived != "" {
			s.steps.Logline = []string{derived}
		}
	}
	rootID := s.id
	loglines := slices.Clone(s.steps.Logline)
	s.mu.Unlock()

	if rootID == "" {
		return result, fmt.Errorf("generate scenes: %w", apperr.Missing("root_id"))
	}
	if len(loglines) > 0 {
		if err := s.save(ctx, rootID, models.StageLogline, map[string]any{"logline": loglines}); err != nil {
			return result, err
		}
	}
	saves := []struct {
		stage models.Stage
		data  map[string]any
	}{
		{models.StageStructure, map[string]any{"root": root}},
		{models.StageCharacters, map[string]any{"characters": characters}},
		{models.StageScenes, map[string]any{"root": root, "characters": characters, "scenes": result.Scenes}},
	}
	for _, sv := range saves {
		if err := s.save(ctx, rootID, sv.stage, sv.data); err != nil {
			return result, err
		}
	}
	return result, nil
}

// GenerateActsChapters produces acts and then chapters from the same inputs
// and saves both under stage 5. An empty rootID uses the known root.
func (s *Store) GenerateActsChapters(ctx context.Context, rootID string, root models.RootStructure, characters []models.Character, prompt string) (_ []models.Act, _ []models.Chapter, err error) {
	if rootID == "" {
		rootID = s.RootID()
	}
	if rootID == "" {
		return nil, nil, apperr.Missing("root_id")
	}
	s.begin()
	defer func() { s.end(err) }()

	root = root.Normalize()
	characters = orEmpty(characters)

	acts, err := s.client.GenerateActs(ctx, rootID, root, characters, prompt)
	if err != nil {
		return nil, nil, fmt.Errorf("generate acts: %w", err)
	}
	chapters, err := s.client.GenerateChapters(ctx, rootID, root, characters, prompt)
	if err != nil {
		return nil, nil, fmt.Errorf("generate chapters: %w", err)
	}
	acts, chapters = orEmpty(acts), orEmpty(chapters)

	s.mu.Lock()
	s.id = rootID
	s.steps.Acts = slices.Clone(acts)
	s.steps.Chapters = slices.Clone(chapters)
	s.mu.Unlock()

	err = s.save(ctx, rootID, models.StageActsChapters, map[string]any{"acts": acts, "chapters": chapters})
	return acts, chapters, err
}

// GenerateAnchors produces story anchors for branchID from the stored root
// structure and characters.
func (s *Store) GenerateAnchors(ctx context.Context, branchID, prompt string) (_ []models.Anchor, err error) {
	s.mu.Lock()
	rootID := s.id
	if rootID == "" {
		s.mu.Unlock()
		return nil, apperr.ErrMissingRoot
	}
	if s.steps.Root == nil {
		s.mu.Unlock()
		return nil, apperr.ErrMissingStructure
	}
	root := s.steps.Root.Normalize()
	s.steps.Root = &root
	characters := slices.Clone(s.steps.Characters)
	s.mu.Unlock()
	s.begin()
	defer func() { s.end(err) }()

	anchors, err := s.client.GenerateAnchors(ctx, rootID, defaultBranch(branchID), root, orEmpty(characters), prompt)
	if err != nil {
		return nil, fmt.Errorf("generate anchors: %w", err)
	}
	anchors = orEmpty(anchors)

	s.mu.Lock()
	s.steps.Anchors = cloneAnchors(anchors)
	s.mu.Unlock()

	if err := s.save(ctx, rootID, models.StageAnchors, map[string]any{"anchors": anchors}); err != nil {
		return anchors, err
	}
	return anchors, nil
}

func cloneAnchors(anchors []models.Anchor) []models.Anchor {
	return models.PipelineState{Anchors: anchors}.Clone().Anchors
}
