package session

import (
	"context"
	"strings"

	"github.com/pilixiaohui/testnovel/internal/models"
)

// Navigation is a route descriptor as delivered by the router.
type Navigation struct {
	Name   string           `json:"name,omitempty"`
	Params NavigationParams `json:"params"`
	Query  NavigationQuery  `json:"query"`
}

// NavigationParams are the path parameters of a route.
type NavigationParams struct {
	SceneID  string `json:"sceneId,omitempty"`
	RootID   string `json:"rootId,omitempty"`
	BranchID string `json:"branchId,omitempty"`
}

// NavigationQuery is the query string of a route.
type NavigationQuery struct {
	RootID   string `json:"root_id,omitempty"`
	BranchID string `json:"branch_id,omitempty"`
}

// ReconcileFromNavigation copies the non-empty identifiers of nav into the
// working context. Root and branch come from the query, falling back to the
// path parameters; the scene comes from the path. Empty values never erase.
func (s *Session) ReconcileFromNavigation(ctx context.Context, nav Navigation) error {
	rootID := firstNonEmpty(nav.Query.RootID, nav.Params.RootID)
	branchID := firstNonEmpty(nav.Query.BranchID, nav.Params.BranchID)
	sceneID := nav.Params.SceneID
	if rootID == "" && branchID == "" && sceneID == "" {
		return nil
	}
	return s.apply(ctx, func(wc models.WorkingContext) models.WorkingContext {
		if rootID != "" {
			wc.RootID = rootID
		}
		if branchID != "" {
			wc.BranchID = branchID
		}
		if sceneID != "" {
			wc.SceneID = sceneID
		}
		return wc
	})
}

// Target is where a navigation section should route to.
type Target struct {
	Path  string            `json:"path"`
	Query map[string]string `json:"query,omitempty"`
}

// projectSections need a root and branch in their query.
var projectSections = map[string]bool{
	"/snowflake":  true,
	"/simulation": true,
	"/editor":     true,
	"/world":      true,
}

// NavigationTarget builds the route for section from the working context.
func (s *Session) NavigationTarget(section string) Target {
	return BuildTarget(section, s.Context())
}

// BuildTarget builds the route for section from wc. Project sections carry
// root and branch in the query once both are set; the editor and the
// simulation also append the active scene to the path.
func BuildTarget(section string, wc models.WorkingContext) Target {
	rootID := strings.TrimSpace(wc.RootID)
	branchID := strings.TrimSpace(wc.BranchID)
	if !projectSections[section] || rootID == "" || branchID == "" {
		return Target{Path: section}
	}

	t := Target{
		Path:  section,
		Query: map[string]string{"root_id": rootID, "branch_id": branchID},
	}
	sceneID := strings.TrimSpace(wc.SceneID)
	if sceneID != "" && (section == "/editor" || section == "/simulation") {
		t.Path = section + "/" + sceneID
	}
	return t
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
