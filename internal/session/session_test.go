package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/pilixiaohui/testnovel/internal/apperr"
	"github.com/pilixiaohui/testnovel/internal/models"
	"github.com/pilixiaohui/testnovel/internal/storage"
)

// fakeBackend records every call and answers from its fields.
type fakeBackend struct {
	calls  []string
	onCall func(name string)

	projects   []models.ProjectSummary
	listErr    error
	created    models.ProjectSummary
	branches   []string
	ref        models.BranchRef
	refErr     error
	detail     string
	commitReqs []models.CommitRequest
	history    []models.Commit
}

func (f *fakeBackend) record(name string) {
	f.calls = append(f.calls, name)
	if f.onCall != nil {
		f.onCall(name)
	}
}

func (f *fakeBackend) ListProjects(context.Context) ([]models.ProjectSummary, error) {
	f.record("ListProjects")
	return f.projects, f.listErr
}

func (f *fakeBackend) CreateProject(_ context.Context, name string) (models.ProjectSummary, error) {
	f.record("CreateProject")
	p := f.created
	if p.Name == "" {
		p.Name = name
	}
	return p, nil
}

func (f *fakeBackend) DeleteProject(context.Context, string) (bool, error) {
	f.record("DeleteProject")
	return true, nil
}

func (f *fakeBackend) ProjectDetail(context.Context, string, string) (json.RawMessage, error) {
	f.record("ProjectDetail")
	return json.RawMessage(f.detail), nil
}

func (f *fakeBackend) ListBranches(context.Context, string) ([]string, error) {
	f.record("ListBranches")
	return f.branches, nil
}

func (f *fakeBackend) CreateBranch(context.Context, string, string) (models.BranchRef, error) {
	f.record("CreateBranch")
	return f.ref, f.refErr
}

func (f *fakeBackend) SwitchBranch(context.Context, string, string) (models.BranchRef, error) {
	f.record("SwitchBranch")
	return f.ref, f.refErr
}

func (f *fakeBackend) ForkFromCommit(context.Context, string, string, string) (models.BranchRef, error) {
	f.record("ForkFromCommit")
	return f.ref, f.refErr
}

func (f *fakeBackend) ForkFromScene(_ context.Context, _, _, _, source string) (models.BranchRef, error) {
	f.record("ForkFromScene:" + source)
	return f.ref, f.refErr
}

func (f *fakeBackend) ResetBranch(context.Context, string, string, string) (models.BranchRef, error) {
	f.record("ResetBranch")
	return f.ref, f.refErr
}

func (f *fakeBackend) History(context.Context, string, string) ([]models.Commit, error) {
	f.record("History")
	return f.history, nil
}

func (f *fakeBackend) CommitScene(_ context.Context, _, _ string, req models.CommitRequest) (models.CommitResult, error) {
	f.record("CommitScene")
	f.commitReqs = append(f.commitReqs, req)
	return models.CommitResult{CommitID: "c1", SceneVersionIDs: []string{"sv1"}}, nil
}

func (f *fakeBackend) CollectGarbage(context.Context, string, int) (models.GCResult, error) {
	f.record("CollectGarbage")
	return models.GCResult{DeletedCommitIDs: []string{"old"}}, nil
}

func (f *fakeBackend) DiffScene(context.Context, string, string, string, string) (models.SceneDiff, error) {
	f.record("DiffScene")
	return models.SceneDiff{"title": {"from": "a", "to": "b"}}, nil
}

func newTestSession(t *testing.T) (*Session, *fakeBackend, storage.Prefs) {
	t.Helper()
	prefs, err := storage.Open(storage.DriverFile, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	fb := &fakeBackend{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(fb, prefs, logger), fb, prefs
}

func persisted(t *testing.T, p storage.Prefs) map[string]string {
	t.Helper()
	values, err := p.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return values
}

func TestSetThenClearContext(t *testing.T) {
	ctx := context.Background()
	s, _, prefs := newTestSession(t)

	if err := s.SetContext(ctx, "root-A", "branch-A", "scene-A"); err != nil {
		t.Fatal(err)
	}
	want := map[string]string{
		storage.KeyRootID:   "root-A",
		storage.KeyBranchID: "branch-A",
		storage.KeySceneID:  "scene-A",
	}
	if diff := cmp.Diff(want, persisted(t, prefs)); diff != "" {
		t.Errorf("persisted mismatch (-want +got):\n%s", diff)
	}

	if err := s.ClearContext(ctx); err != nil {
		t.Fatal(err)
	}
	if got := s.Context(); got != (models.WorkingContext{RootID: "", BranchID: "main", SceneID: ""}) {
		t.Errorf("context after clear = %+v", got)
	}
	if values := persisted(t, prefs); len(values) != 0 {
		t.Errorf("persisted keys after clear = %v, want none", values)
	}
}

func TestInitRestoresPersistedContext(t *testing.T) {
	ctx := context.Background()
	s, _, prefs := newTestSession(t)
	if err := prefs.Save(ctx, map[string]string{storage.KeyRootID: "r", storage.KeySceneID: "s"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Init(ctx); err != nil {
		t.Fatal(err)
	}
	if got := s.Context(); got != (models.WorkingContext{RootID: "r", BranchID: "main", SceneID: "s"}) {
		t.Errorf("context = %+v", got)
	}
}

func TestMissingFieldsIssueNoCalls(t *testing.T) {
	ctx := context.Background()
	s, fb, _ := newTestSession(t)

	checks := []struct {
		name string
		call func() error
	}{
		{"loadBranches empty root", func() error { _, err := s.LoadBranches(ctx, ""); return err }},
		{"createBranch empty root", func() error { _, err := s.CreateBranch(ctx, "", "b"); return err }},
		{"createBranch empty branch", func() error { _, err := s.CreateBranch(ctx, "r", ""); return err }},
		{"switchBranch empty branch", func() error { _, err := s.SwitchBranch(ctx, "r", ""); return err }},
		{"switchBranch empty root", func() error { _, err := s.SwitchBranch(ctx, "", "b"); return err }},
		{"deleteProject empty root", func() error { return s.DeleteProject(ctx, "") }},
		{"loadProject empty root", func() error { _, err := s.LoadProject(ctx, ""); return err }},
		{"forkFromCommit empty commit", func() error { _, err := s.ForkFromCommit(ctx, "r", "", "b"); return err }},
		{"resetBranch empty commit", func() error { _, err := s.ResetBranch(ctx, "r", "b", ""); return err }},
		{"history empty branch", func() error { _, err := s.History(ctx, "r", ""); return err }},
		{"gc empty root", func() error { _, err := s.CollectGarbage(ctx, "", 0); return err }},
	}
	for _, c := range checks {
		t.Run(c.name, func(t *testing.T) {
			if err := c.call(); !errors.Is(err, apperr.ErrMissingField) {
				t.Errorf("err = %v, want ErrMissingField", err)
			}
		})
	}
	if len(fb.calls) != 0 {
		t.Errorf("backend calls = %v, want none", fb.calls)
	}
}

func TestSaveProjectNameLength(t *testing.T) {
	ctx := context.Background()
	s, fb, _ := newTestSession(t)

	if _, err := s.SaveProject(ctx, strings.Repeat("a", 255)); err != nil {
		t.Errorf("255 chars: %v", err)
	}
	if _, err := s.SaveProject(ctx, strings.Repeat("界", 255)); err != nil {
		t.Errorf("255 multi-byte chars: %v", err)
	}
	if _, err := s.SaveProject(ctx, strings.Repeat("a", 256)); !errors.Is(err, apperr.ErrNameTooLong) {
		t.Errorf("256 chars err = %v, want ErrNameTooLong", err)
	}
	if _, err := s.SaveProject(ctx, ""); !errors.Is(err, apperr.ErrEmptyName) {
		t.Errorf("empty err = %v, want ErrEmptyName", err)
	}
	if len(fb.calls) != 2 {
		t.Errorf("calls = %v, want two creates", fb.calls)
	}
	if got := len(s.State().Projects); got != 2 {
		t.Errorf("cached projects = %d, want 2", got)
	}
}

func TestListProjectsClearsStaleContext(t *testing.T) {
	ctx := context.Background()
	s, fb, prefs := newTestSession(t)
	fb.projects = []models.ProjectSummary{{RootID: "other", Name: "Other"}}

	if err := s.SetContext(ctx, "gone", "dev", "s1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ListProjects(ctx); err != nil {
		t.Fatal(err)
	}
	if got := s.Context(); got != models.EmptyContext() {
		t.Errorf("context = %+v, want cleared", got)
	}
	if values := persisted(t, prefs); len(values) != 0 {
		t.Errorf("persisted keys = %v, want none", values)
	}
	if diff := cmp.Diff(fb.projects, s.State().Projects); diff != "" {
		t.Errorf("projects mismatch (-want +got):\n%s", diff)
	}
}

func TestListProjectsKeepsListedContext(t *testing.T) {
	ctx := context.Background()
	s, fb, _ := newTestSession(t)
	fb.projects = []models.ProjectSummary{{RootID: "r1"}}
	s.SetContext(ctx, "r1", "main", "")

	if _, err := s.ListProjects(ctx); err != nil {
		t.Fatal(err)
	}
	if s.Context().RootID != "r1" {
		t.Errorf("context cleared unexpectedly: %+v", s.Context())
	}
}

func TestListProjectsTimeout(t *testing.T) {
	ctx := context.Background()
	s, fb, _ := newTestSession(t)
	fb.listErr = &apperr.NetworkError{Op: "list projects", Message: apperr.TimeoutMessage}

	_, err := s.ListProjects(ctx)
	if !errors.Is(err, apperr.ErrNetwork) {
		t.Fatalf("err = %v, want ErrNetwork", err)
	}
	st := s.State()
	if !st.ProjectListTimeout || st.ProjectListError != "timeout" || st.APIError != "timeout" {
		t.Errorf("state = %+v", st)
	}
	if st.Loading {
		t.Error("loading flag left set after failure")
	}

	fb.listErr = &apperr.NetworkError{Op: "list projects", Status: 500, Message: "boom"}
	s.ListProjects(ctx)
	st = s.State()
	if st.ProjectListTimeout || st.ProjectListError != "boom" {
		t.Errorf("state = %+v", st)
	}

	fb.listErr = nil
	s.ListProjects(ctx)
	st = s.State()
	if st.ProjectListError != "" || st.APIError != "" {
		t.Errorf("errors not reset on success: %+v", st)
	}
}

func TestSaveProjectDataPreconditionOrder(t *testing.T) {
	ctx := context.Background()
	content := map[string]any{"title": "T"}

	tests := []struct {
		name    string
		rootID  string
		wc      models.WorkingContext
		content map[string]any
		field   string
	}{
		{"missing root", "", models.WorkingContext{BranchID: "b", SceneID: "s"}, content, "root_id"},
		{"missing branch", "r", models.WorkingContext{RootID: "r", SceneID: "s"}, content, "branch_id"},
		{"missing scene", "r", models.WorkingContext{RootID: "r", BranchID: "b"}, content, "scene_id"},
		{"empty content", "r", models.WorkingContext{RootID: "r", BranchID: "b", SceneID: "s"}, map[string]any{}, "content"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, fb, _ := newTestSession(t)
			s.SetContext(ctx, tt.wc.RootID, tt.wc.BranchID, tt.wc.SceneID)

			_, err := s.SaveProjectData(ctx, tt.rootID, tt.content)
			var fe *apperr.FieldError
			if !errors.As(err, &fe) || fe.Field != tt.field {
				t.Fatalf("err = %v, want missing %s", err, tt.field)
			}
			if tt.field == "content" && !errors.Is(err, apperr.ErrEmptyContent) {
				t.Errorf("err = %v, want ErrEmptyContent", err)
			}
			if len(fb.calls) != 0 {
				t.Errorf("calls = %v, want none", fb.calls)
			}
		})
	}
}

func TestSaveProjectDataCommits(t *testing.T) {
	ctx := context.Background()
	s, fb, _ := newTestSession(t)
	s.SetContext(ctx, "r", "dev", "scene-9")

	res, err := s.SaveProjectData(ctx, "r", map[string]any{"title": "T"})
	if err != nil {
		t.Fatal(err)
	}
	if res.CommitID != "c1" {
		t.Errorf("result = %+v", res)
	}
	want := models.CommitRequest{SceneOriginID: "scene-9", Content: map[string]any{"title": "T"}, Message: "Saved project data"}
	if diff := cmp.Diff(want, fb.commitReqs[0]); diff != "" {
		t.Errorf("commit request mismatch (-want +got):\n%s", diff)
	}
}

func TestReconcileNeverErasesByOmission(t *testing.T) {
	ctx := context.Background()
	s, _, prefs := newTestSession(t)
	s.SetContext(ctx, "kept", "dev", "s1")

	if err := s.ReconcileFromNavigation(ctx, Navigation{Query: NavigationQuery{RootID: ""}}); err != nil {
		t.Fatal(err)
	}
	if got := s.Context(); got != (models.WorkingContext{RootID: "kept", BranchID: "dev", SceneID: "s1"}) {
		t.Errorf("context = %+v", got)
	}

	nav := Navigation{
		Params: NavigationParams{SceneID: "s2", RootID: "param-root", BranchID: "param-branch"},
		Query:  NavigationQuery{RootID: "query-root"},
	}
	if err := s.ReconcileFromNavigation(ctx, nav); err != nil {
		t.Fatal(err)
	}
	want := models.WorkingContext{RootID: "query-root", BranchID: "param-branch", SceneID: "s2"}
	if got := s.Context(); got != want {
		t.Errorf("context = %+v, want %+v", got, want)
	}
	if got := persisted(t, prefs)[storage.KeyRootID]; got != "query-root" {
		t.Errorf("persisted root = %q", got)
	}
}

func TestCreateBranchActivatesAndRemembers(t *testing.T) {
	ctx := context.Background()
	s, fb, prefs := newTestSession(t)
	s.SetContext(ctx, "r", "main", "")
	fb.branches = []string{"main"}
	if _, err := s.LoadBranches(ctx, "r"); err != nil {
		t.Fatal(err)
	}

	fb.ref = models.BranchRef{RootID: "r", BranchID: "dev"}
	if _, err := s.CreateBranch(ctx, "r", "dev"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateBranch(ctx, "r", "dev"); err != nil {
		t.Fatal(err)
	}
	st := s.State()
	if st.Context.BranchID != "dev" {
		t.Errorf("active branch = %q", st.Context.BranchID)
	}
	if diff := cmp.Diff([]string{"main", "dev"}, st.Branches); diff != "" {
		t.Errorf("branches mismatch (-want +got):\n%s", diff)
	}
	if got := persisted(t, prefs)[storage.KeyBranchID]; got != "dev" {
		t.Errorf("persisted branch = %q", got)
	}

	fb.ref = models.BranchRef{RootID: "r", BranchID: "feature"}
	s.SwitchBranch(ctx, "r", "feature")
	st = s.State()
	if st.Context.BranchID != "feature" || len(st.Branches) != 2 {
		t.Errorf("after switch: %+v", st)
	}
}

func TestBranchResponseWithoutID(t *testing.T) {
	ctx := context.Background()
	s, fb, _ := newTestSession(t)
	s.SetContext(ctx, "r", "main", "")
	fb.ref = models.BranchRef{RootID: "r"}

	_, err := s.SwitchBranch(ctx, "r", "dev")
	if !errors.Is(err, apperr.ErrMissingField) {
		t.Fatalf("err = %v, want ErrMissingField", err)
	}
	if s.Context().BranchID != "main" {
		t.Errorf("branch changed to %q", s.Context().BranchID)
	}
}

func TestForkFromSceneDefaultsSource(t *testing.T) {
	ctx := context.Background()
	s, fb, _ := newTestSession(t)
	s.SetContext(ctx, "r", "dev", "s1")
	fb.ref = models.BranchRef{RootID: "r", BranchID: "alt"}

	if _, err := s.ForkFromScene(ctx, "r", "s1", "alt", ""); err != nil {
		t.Fatal(err)
	}
	if fb.calls[0] != "ForkFromScene:dev" {
		t.Errorf("calls = %v", fb.calls)
	}
	st := s.State()
	if st.Context.BranchID != "alt" || !strings.Contains(strings.Join(st.Branches, ","), "alt") {
		t.Errorf("state = %+v", st)
	}
}

func TestDeleteProjectClearsMatchingContext(t *testing.T) {
	ctx := context.Background()
	s, fb, prefs := newTestSession(t)
	fb.projects = []models.ProjectSummary{{RootID: "a"}, {RootID: "b"}}
	s.ListProjects(ctx)

	s.SetContext(ctx, "b", "main", "")
	if err := s.DeleteProject(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if s.Context().RootID != "b" {
		t.Error("deleting another project must not clear the context")
	}
	if err := s.DeleteProject(ctx, "b"); err != nil {
		t.Fatal(err)
	}
	st := s.State()
	if st.Context != models.EmptyContext() || len(st.Projects) != 0 {
		t.Errorf("state = %+v", st)
	}
	if values := persisted(t, prefs); len(values) != 0 {
		t.Errorf("persisted = %v", values)
	}
}

func TestLoadProjectResolvesDetail(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name   string
		detail string
		want   models.WorkingContext
	}{
		{"envelope", `{"data":{"root_id":"r2","branch_id":"dev","scene_id":"s"}}`, models.WorkingContext{RootID: "r2", BranchID: "dev", SceneID: "s"}},
		{"bare with blank branch", `{"branch_id":"  "}`, models.WorkingContext{RootID: "r", BranchID: "main"}},
		{"json string", `"{\"root_id\":\"r3\"}"`, models.WorkingContext{RootID: "r3", BranchID: "main"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, fb, _ := newTestSession(t)
			fb.detail = tt.detail
			if _, err := s.LoadProject(ctx, "r"); err != nil {
				t.Fatal(err)
			}
			if got := s.Context(); got != tt.want {
				t.Errorf("context = %+v, want %+v", got, tt.want)
			}
		})
	}

	s, fb, _ := newTestSession(t)
	fb.detail = `[1,2]`
	if _, err := s.LoadProject(ctx, "r"); !errors.Is(err, apperr.ErrInvalidPayload) {
		t.Errorf("err = %v, want ErrInvalidPayload", err)
	}
	if s.Context() != models.EmptyContext() {
		t.Error("invalid payload must not change the context")
	}
}

func TestSubscribeAndGeneration(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestSession(t)

	var seen []models.WorkingContext
	cancel := s.Subscribe(func(_, next models.WorkingContext) { seen = append(seen, next) })

	g0 := s.Generation()
	s.SetContext(ctx, "r", "main", "")
	s.SetContext(ctx, "r", "main", "")
	s.ReconcileFromNavigation(ctx, Navigation{Params: NavigationParams{SceneID: "s"}})
	if got := s.Generation() - g0; got != 1 {
		t.Errorf("generation advanced by %d, want 1", got)
	}
	if len(seen) != 2 || seen[1].SceneID != "s" {
		t.Errorf("seen = %+v", seen)
	}

	cancel()
	s.ClearContext(ctx)
	if len(seen) != 2 {
		t.Errorf("listener called after cancel: %+v", seen)
	}
}

func TestLoadingWhileInFlight(t *testing.T) {
	ctx := context.Background()
	s, fb, _ := newTestSession(t)
	fb.ref = models.BranchRef{RootID: "r", BranchID: "dev"}

	during := map[string]bool{}
	fb.onCall = func(name string) { during[name] = s.State().Loading }

	if _, err := s.ListProjects(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := s.History(ctx, "r", "main"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateBranch(ctx, "r", "dev"); err != nil {
		t.Fatal(err)
	}
	want := map[string]bool{"ListProjects": true, "History": true, "CreateBranch": true}
	if diff := cmp.Diff(want, during); diff != "" {
		t.Errorf("loading during calls (-want +got):\n%s", diff)
	}
	if s.State().Loading {
		t.Error("Loading still set after the calls returned")
	}
}

func TestGenerationIgnoresSceneChanges(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestSession(t)
	if err := s.SetContext(ctx, "r", "main", ""); err != nil {
		t.Fatal(err)
	}

	steps := []struct {
		name    string
		root    string
		branch  string
		scene   string
		advance uint64
	}{
		{"scene only", "r", "main", "s1", 0},
		{"another scene", "r", "main", "s2", 0},
		{"branch", "r", "dev", "s2", 1},
		{"root", "r2", "dev", "", 1},
		{"root and branch", "r3", "main", "", 1},
	}
	for _, tt := range steps {
		before := s.Generation()
		if err := s.SetContext(ctx, tt.root, tt.branch, tt.scene); err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if got := s.Generation() - before; got != tt.advance {
			t.Errorf("%s: generation advanced by %d, want %d", tt.name, got, tt.advance)
		}
	}
}

func TestHistoryDiffAndGC(t *testing.T) {
	ctx := context.Background()
	s, fb, _ := newTestSession(t)
	parent := "c0"
	fb.history = []models.Commit{{ID: "c1", ParentID: &parent, Message: "m"}, {ID: "c0"}}

	commits, err := s.History(ctx, "r", "main")
	if err != nil || len(commits) != 2 || *commits[0].ParentID != "c0" {
		t.Errorf("History = %+v, %v", commits, err)
	}
	diff, err := s.DiffScene(ctx, "s", "main", "c0", "c1")
	if err != nil || diff["title"]["to"] != "b" {
		t.Errorf("DiffScene = %+v, %v", diff, err)
	}
	gc, err := s.CollectGarbage(ctx, "r", 30)
	if err != nil || len(gc.DeletedCommitIDs) != 1 {
		t.Errorf("CollectGarbage = %+v, %v", gc, err)
	}
}

func TestBuildTarget(t *testing.T) {
	wc := models.WorkingContext{RootID: " r ", BranchID: "main", SceneID: "s1"}
	tests := []struct {
		section string
		wc      models.WorkingContext
		want    Target
	}{
		{"/", wc, Target{Path: "/"}},
		{"/settings", wc, Target{Path: "/settings"}},
		{"/snowflake", wc, Target{Path: "/snowflake", Query: map[string]string{"root_id": "r", "branch_id": "main"}}},
		{"/editor", wc, Target{Path: "/editor/s1", Query: map[string]string{"root_id": "r", "branch_id": "main"}}},
		{"/simulation", wc, Target{Path: "/simulation/s1", Query: map[string]string{"root_id": "r", "branch_id": "main"}}},
		{"/world", wc, Target{Path: "/world", Query: map[string]string{"root_id": "r", "branch_id": "main"}}},
		{"/editor", models.WorkingContext{RootID: "r", BranchID: "main"}, Target{Path: "/editor", Query: map[string]string{"root_id": "r", "branch_id": "main"}}},
		{"/editor", models.WorkingContext{RootID: "r", BranchID: " "}, Target{Path: "/editor"}},
		{"/world", models.WorkingContext{BranchID: "main"}, Target{Path: "/world"}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, BuildTarget(tt.section, tt.wc)); diff != "" {
			t.Errorf("BuildTarget(%q, %+v) mismatch (-want +got):\n%s", tt.section, tt.wc, diff)
		}
	}
}
