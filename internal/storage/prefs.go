// Package storage persists the active working context on the client.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pilixiaohui/testnovel/internal/models"
)

// Persisted keys of the working context.
const (
	KeyRootID   = "project_root_id"
	KeyBranchID = "project_branch_id"
	KeySceneID  = "project_scene_id"
)

// ContextKeys lists every key written for a working context.
var ContextKeys = []string{KeyRootID, KeyBranchID, KeySceneID}

// Prefs is a durable client key-value store. Save and Delete apply all of
// their keys together or not at all.
type Prefs interface {
	Load(ctx context.Context) (map[string]string, error)
	Save(ctx context.Context, values map[string]string) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// Drivers accepted by Open.
const (
	DriverSQLite = "sqlite"
	DriverFile   = "file"
)

// Open creates dataDir if needed and opens the prefs store for driver.
func Open(driver, dataDir string) (Prefs, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	switch driver {
	case DriverSQLite, "":
		return OpenSQLite(filepath.Join(dataDir, "prefs.db"))
	case DriverFile:
		return OpenFile(filepath.Join(dataDir, "context.json"))
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}

// ContextValues maps a working context onto the persisted keys.
func ContextValues(wc models.WorkingContext) map[string]string {
	return map[string]string{
		KeyRootID:   wc.RootID,
		KeyBranchID: wc.BranchID,
		KeySceneID:  wc.SceneID,
	}
}

// LoadContext reads the persisted working context. A missing or empty branch
// falls back to the default branch.
func LoadContext(ctx context.Context, p Prefs) (models.WorkingContext, error) {
	values, err := p.Load(ctx)
	if err != nil {
		return models.EmptyContext(), err
	}
	wc := models.WorkingContext{
		RootID:   values[KeyRootID],
		BranchID: values[KeyBranchID],
		SceneID:  values[KeySceneID],
	}
	if wc.BranchID == "" {
		wc.BranchID = models.DefaultBranchID
	}
	return wc, nil
}

// SaveContext writes all three context keys in one step.
func SaveContext(ctx context.Context, p Prefs, wc models.WorkingContext) error {
	return p.Save(ctx, ContextValues(wc))
}

// ClearContext removes all three context keys in one step.
func ClearContext(ctx context.Context, p Prefs) error {
	return p.Delete(ctx, ContextKeys...)
}
