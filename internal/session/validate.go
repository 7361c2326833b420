package session

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/pilixiaohui/testnovel/internal/apperr"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report fields under their wire names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// projectName bounds a project name to MaxProjectNameLength characters.
type projectName struct {
	Name string `json:"name" validate:"required,max=255"`
}

// commitTarget is what SaveProjectData needs before it can commit. Fields
// are checked in declaration order.
type commitTarget struct {
	RootID   string         `json:"root_id" validate:"required"`
	BranchID string         `json:"branch_id" validate:"required"`
	SceneID  string         `json:"scene_id" validate:"required"`
	Content  map[string]any `json:"content" validate:"min=1"`
}

// fieldError turns the first failed rule of a validation error into the
// matching apperr value.
func fieldError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	switch {
	case fe.Field() == "name" && fe.Tag() == "required":
		return apperr.ErrEmptyName
	case fe.Field() == "name" && fe.Tag() == "max":
		return apperr.ErrNameTooLong
	case fe.Field() == "content":
		return apperr.EmptyContent()
	}
	return apperr.Missing(fe.Field())
}

// requireAll takes name/value pairs and reports the first empty value.
func requireAll(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if err := validate.Var(pairs[i+1], "required"); err != nil {
			return apperr.Missing(pairs[i])
		}
	}
	return nil
}
