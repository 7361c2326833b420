package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/pilixiaohui/testnovel/internal/models"
)

func openDrivers(t *testing.T) map[string]Prefs {
	t.Helper()
	out := map[string]Prefs{}
	for _, driver := range []string{DriverSQLite, DriverFile} {
		p, err := Open(driver, t.TempDir())
		if err != nil {
			t.Fatalf("Open(%s): %v", driver, err)
		}
		t.Cleanup(func() { p.Close() })
		out[driver] = p
	}
	return out
}

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	for driver, p := range openDrivers(t) {
		t.Run(driver, func(t *testing.T) {
			want := models.WorkingContext{RootID: "root-A", BranchID: "branch-A", SceneID: "scene-A"}
			if err := SaveContext(ctx, p, want); err != nil {
				t.Fatalf("SaveContext: %v", err)
			}
			got, err := LoadContext(ctx, p)
			if err != nil {
				t.Fatalf("LoadContext: %v", err)
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("context mismatch (-want +got):\n%s", diff)
			}

			if err := ClearContext(ctx, p); err != nil {
				t.Fatalf("ClearContext: %v", err)
			}
			values, err := p.Load(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if len(values) != 0 {
				t.Errorf("values after clear = %v, want none", values)
			}
			got, _ = LoadContext(ctx, p)
			if diff := cmp.Diff(models.EmptyContext(), got); diff != "" {
				t.Errorf("cleared context mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadContextDefaultsBranch(t *testing.T) {
	ctx := context.Background()
	for driver, p := range openDrivers(t) {
		t.Run(driver, func(t *testing.T) {
			if err := p.Save(ctx, map[string]string{KeyRootID: "r", KeyBranchID: ""}); err != nil {
				t.Fatal(err)
			}
			got, err := LoadContext(ctx, p)
			if err != nil {
				t.Fatal(err)
			}
			if got.RootID != "r" || got.BranchID != "main" || got.SceneID != "" {
				t.Errorf("got %+v", got)
			}
		})
	}
}

func TestSaveOverwritesAndKeepsOtherKeys(t *testing.T) {
	ctx := context.Background()
	for driver, p := range openDrivers(t) {
		t.Run(driver, func(t *testing.T) {
			if err := p.Save(ctx, map[string]string{"theme": "dark", KeyRootID: "a"}); err != nil {
				t.Fatal(err)
			}
			if err := p.Save(ctx, map[string]string{KeyRootID: "b"}); err != nil {
				t.Fatal(err)
			}
			if err := ClearContext(ctx, p); err != nil {
				t.Fatal(err)
			}
			values, err := p.Load(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(map[string]string{"theme": "dark"}, values); diff != "" {
				t.Errorf("values mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	p, err := Open(DriverSQLite, dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := SaveContext(ctx, p, models.WorkingContext{RootID: "r", BranchID: "dev"}); err != nil {
		t.Fatal(err)
	}
	p.Close()

	if _, err := os.Stat(filepath.Join(dir, "prefs.db")); err != nil {
		t.Fatalf("expected prefs.db: %v", err)
	}
	p, err = Open(DriverSQLite, dir)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	got, err := LoadContext(ctx, p)
	if err != nil {
		t.Fatal(err)
	}
	if got.RootID != "r" || got.BranchID != "dev" {
		t.Errorf("got %+v after reopen", got)
	}
}

func TestFileCorruptIsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "context.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	p, _ := OpenFile(path)
	if _, err := p.Load(context.Background()); err == nil {
		t.Error("expected parse error")
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open("redis", t.TempDir()); err == nil {
		t.Error("expected error for unknown driver")
	}
}
