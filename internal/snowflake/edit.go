package snowflake

import (
	"encoding/json"
	"strings"

	"github.com/pilixiaohui/testnovel/internal/apperr"
	"github.com/pilixiaohui/testnovel/internal/models"
)

// UpdateStepContent applies a manual edit of one stage. Stage 1 takes raw
// text, one candidate per line (empty lines included). Every other stage
// takes JSON: an object for the root structure, {"acts": [...],
// "chapters": [...]} for stage 5 and an array otherwise. Nothing changes
// unless content has the right shape.
func (s *Store) UpdateStepContent(stage models.Stage, content string) error {
	if !stage.Valid() {
		return apperr.Missing("step")
	}
	if stage == models.StageLogline {
		lines := strings.Split(content, "\n")
		s.mu.Lock()
		s.steps.Logline = lines
		s.mu.Unlock()
		return nil
	}

	var parsed any
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return apperr.Invalid("%s content is not JSON", stage.Key())
	}

	switch stage {
	case models.StageStructure:
		if _, ok := parsed.(map[string]any); !ok {
			return apperr.Invalid("root object is required")
		}
		var root models.RootStructure
		if err := json.Unmarshal([]byte(content), &root); err != nil {
			return apperr.Invalid("root: %v", err)
		}
		root = root.Normalize()
		s.mu.Lock()
		s.steps.Root = &root
		if root.ID != "" {
			s.id = root.ID
		}
		s.mu.Unlock()

	case models.StageCharacters:
		var characters []models.Character
		if err := decodeList(parsed, content, "characters", &characters); err != nil {
			return err
		}
		s.mu.Lock()
		s.steps.Characters = characters
		s.mu.Unlock()

	case models.StageScenes:
		var scenes []models.SceneNode
		if err := decodeList(parsed, content, "scenes", &scenes); err != nil {
			return err
		}
		s.mu.Lock()
		s.steps.Scenes = scenes
		s.mu.Unlock()

	case models.StageActsChapters:
		record, ok := parsed.(map[string]any)
		if !ok {
			return apperr.Invalid("step5 payload object is required")
		}
		var acts []models.Act
		if err := decodeField(record, "acts", &acts); err != nil {
			return err
		}
		var chapters []models.Chapter
		if err := decodeField(record, "chapters", &chapters); err != nil {
			return err
		}
		s.mu.Lock()
		s.steps.Acts = acts
		s.steps.Chapters = chapters
		s.mu.Unlock()

	case models.StageAnchors:
		var anchors []models.Anchor
		if err := decodeList(parsed, content, "anchors", &anchors); err != nil {
			return err
		}
		s.mu.Lock()
		s.steps.Anchors = anchors
		s.mu.Unlock()
	}
	return nil
}

// decodeList checks that parsed is an array and decodes raw into out.
func decodeList(parsed any, raw, label string, out any) error {
	if _, ok := parsed.([]any); !ok {
		return apperr.Invalid("%s list is required", label)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return apperr.Invalid("%s: %v", label, err)
	}
	return nil
}

// decodeField checks that record[key] is an array and decodes it into out.
func decodeField(record map[string]any, key string, out any) error {
	value, ok := record[key].([]any)
	if !ok {
		return apperr.Invalid("%s list is required", key)
	}
	data, err := json.Marshal(value)
	if err != nil {
		return apperr.Invalid("%s: %v", key, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return apperr.Invalid("%s: %v", key, err)
	}
	return nil
}
