package snowflake

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/pilixiaohui/testnovel/internal/apperr"
	"github.com/pilixiaohui/testnovel/internal/models"
)

func TestUpdateStepContentLoglinesKeepEmptyLines(t *testing.T) {
	s, _ := newTestStore()
	if err := s.UpdateStepContent(models.StageLogline, "one\n\nthree"); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"one", "", "three"}, s.State().Steps.Logline); diff != "" {
		t.Errorf("logline mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateStepContentShapes(t *testing.T) {
	tests := []struct {
		name    string
		stage   models.Stage
		content string
		check   func(t *testing.T, v View)
	}{
		{"root", models.StageStructure, `{"id":"r","theme":"T","three_disasters":["a","b","c","d"]}`, func(t *testing.T, v View) {
			if v.RootID != "r" || v.Steps.Root.Theme != "T" || len(v.Steps.Root.ThreeDisasters) != 3 {
				t.Errorf("view = %+v", v)
			}
		}},
		{"characters", models.StageCharacters, `[{"name":"A"},{"name":"B"}]`, func(t *testing.T, v View) {
			if len(v.Steps.Characters) != 2 || v.Steps.Characters[1].Name != "B" {
				t.Errorf("characters = %+v", v.Steps.Characters)
			}
		}},
		{"scenes", models.StageScenes, `[{"id":"s1","title":"Opening"}]`, func(t *testing.T, v View) {
			if len(v.Steps.Scenes) != 1 || v.Steps.Scenes[0].Title != "Opening" {
				t.Errorf("scenes = %+v", v.Steps.Scenes)
			}
		}},
		{"acts and chapters", models.StageActsChapters, `{"acts":[{"id":"a"}],"chapters":[]}`, func(t *testing.T, v View) {
			if len(v.Steps.Acts) != 1 || v.Steps.Chapters == nil || v.Stage != models.StageActsChapters {
				t.Errorf("view = %+v", v)
			}
		}},
		{"anchors", models.StageAnchors, `[{"id":"x","kind":"midpoint"}]`, func(t *testing.T, v View) {
			if len(v.Steps.Anchors) != 1 || v.Steps.Anchors[0]["kind"] != "midpoint" {
				t.Errorf("anchors = %+v", v.Steps.Anchors)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestStore()
			if err := s.UpdateStepContent(tt.stage, tt.content); err != nil {
				t.Fatalf("UpdateStepContent: %v", err)
			}
			tt.check(t, s.State())
		})
	}
}

func TestUpdateStepContentRejects(t *testing.T) {
	tests := []struct {
		name    string
		stage   models.Stage
		content string
		want    error
	}{
		{"step zero", models.Stage(0), "x", apperr.ErrMissingField},
		{"step seven", models.Stage(7), "x", apperr.ErrMissingField},
		{"not json", models.StageCharacters, "not json", apperr.ErrInvalidPayload},
		{"root as array", models.StageStructure, `[1]`, apperr.ErrInvalidPayload},
		{"characters as object", models.StageCharacters, `{"name":"A"}`, apperr.ErrInvalidPayload},
		{"step5 as array", models.StageActsChapters, `[]`, apperr.ErrInvalidPayload},
		{"step5 without chapters", models.StageActsChapters, `{"acts":[]}`, apperr.ErrInvalidPayload},
		{"anchors as null", models.StageAnchors, `null`, apperr.ErrInvalidPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestStore()
			before := s.State()
			err := s.UpdateStepContent(tt.stage, tt.content)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if diff := cmp.Diff(before, s.State()); diff != "" {
				t.Errorf("state changed on rejected edit (-before +after):\n%s", diff)
			}
		})
	}
}
