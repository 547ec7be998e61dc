package notion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GeoTool/internal/config"
	"GeoTool/internal/domain"
	"GeoTool/internal/infrastructure/docblocks"
)

type storedPage struct {
	parent     map[string]any
	properties map[string]map[string]any
	children   int
}

// fakeNotion keeps pages in memory and answers the endpoints the adapters use.
type fakeNotion struct {
	t *testing.T

	mu       sync.Mutex
	pages    map[string]*storedPage
	nextID   int
	queries  []map[string]any
	appended []int
}

func newFakeNotion(t *testing.T) (*fakeNotion, *httptest.Server) {
	t.Helper()
	f := &fakeNotion{t: t, pages: map[string]*storedPage{}}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeNotion) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer secret_test" || r.Header.Get("Notion-Version") != "2022-06-28" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var body map[string]any
	if r.Body != nil && r.Method != http.MethodGet {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/pages":
		parent := body["parent"].(map[string]any)
		if parent["database_id"] == "bad" {
			writeError(w, http.StatusBadRequest, "validation_error")
			return
		}
		f.nextID++
		id := fmt.Sprintf("page-%d", f.nextID)
		stored := &storedPage{parent: parent, properties: map[string]map[string]any{}}
		for k, v := range body["properties"].(map[string]any) {
			stored.properties[k] = v.(map[string]any)
		}
		if children, ok := body["children"].([]any); ok {
			stored.children = len(children)
		}
		f.pages[id] = stored
		writeJSON(w, f.render(id))
	case r.Method == http.MethodGet && len(parts) == 2 && parts[0] == "pages":
		if _, ok := f.pages[parts[1]]; !ok {
			writeError(w, http.StatusNotFound, "object_not_found")
			return
		}
		writeJSON(w, f.render(parts[1]))
	case r.Method == http.MethodPatch && len(parts) == 2 && parts[0] == "pages":
		stored, ok := f.pages[parts[1]]
		if !ok {
			writeError(w, http.StatusNotFound, "object_not_found")
			return
		}
		for k, v := range body["properties"].(map[string]any) {
			stored.properties[k] = v.(map[string]any)
		}
		writeJSON(w, f.render(parts[1]))
	case r.Method == http.MethodPost && len(parts) == 3 && parts[0] == "databases" && parts[2] == "query":
		f.queries = append(f.queries, body)
		if body["start_cursor"] == nil {
			writeJSON(w, map[string]any{
				"results":     []any{pageJSON("p1", "甲", "进行中")},
				"has_more":    true,
				"next_cursor": "cursor-2",
			})
			return
		}
		writeJSON(w, map[string]any{"results": []any{pageJSON("p2", "乙", "进行中")}, "has_more": false, "next_cursor": nil})
	case r.Method == http.MethodPatch && len(parts) == 3 && parts[0] == "blocks":
		f.appended = append(f.appended, len(body["children"].([]any)))
		writeJSON(w, map[string]any{"object": "list"})
	default:
		writeError(w, http.StatusNotFound, "object_not_found")
	}
}

// render echoes stored request properties in response shape.
func (f *fakeNotion) render(id string) map[string]any {
	props := map[string]any{}
	for name, value := range f.pages[id].properties {
		for kind, v := range value {
			props[name] = map[string]any{"type": kind, kind: v}
		}
	}
	return map[string]any{
		"object":       "page",
		"id":           id,
		"url":          "https://www.notion.so/" + id,
		"created_time": "2026-01-02T03:04:05.000Z",
		"properties":   props,
	}
}

func pageJSON(id, client, status string) map[string]any {
	return map[string]any{
		"id": id,
		"properties": map[string]any{
			propClientName: map[string]any{"type": "title", "title": []any{map[string]any{"plain_text": client}}},
			propStatus:     map[string]any{"type": "select", "select": map[string]any{"name": status}},
		},
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"object": "error", "status": status, "code": code, "message": code})
}

func testConfig(srv *httptest.Server) config.NotionConfig {
	return config.NotionConfig{
		APIKey:       "secret_test",
		BaseURL:      srv.URL,
		Databases:    config.TableConfig{Projects: "db-projects", StageRecords: "db-stages", PressureTests: "db-tests"},
		ParentPageID: "parent-page",
	}
}

func newProjectManager(t *testing.T) (*fakeNotion, *ProjectManager) {
	t.Helper()
	fake, srv := newFakeNotion(t)
	cfg := testConfig(srv)
	return fake, NewProjectManager(NewClient(cfg, nil), cfg.Databases, nil)
}

func TestProjectRoundTrip(t *testing.T) {
	t.Parallel()
	fake, pm := newProjectManager(t)
	ctx := context.Background()

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	id, err := pm.CreateProject(ctx, domain.Project{ClientName: "悦白之几", Industry: "医美", StartDate: start})
	require.NoError(t, err)

	stored := fake.pages[id]
	assert.Equal(t, "db-projects", stored.parent["database_id"])
	assert.NotContains(t, stored.properties, propContact, "empty optional properties are omitted")

	got, err := pm.GetProjectInfo(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "悦白之几", got.ClientName)
	assert.Equal(t, "医美", got.Industry)
	assert.Equal(t, domain.ProjectPending, got.Status)
	assert.True(t, start.Equal(got.StartDate))
	assert.Equal(t, 2026, got.CreatedAt.Year())

	require.True(t, pm.UpdateProjectStatus(ctx, id, domain.ProjectCompleted))
	got, err = pm.GetProjectInfo(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectCompleted, got.Status)
}

func TestRecordsLinkToProject(t *testing.T) {
	t.Parallel()
	fake, pm := newProjectManager(t)
	ctx := context.Background()

	stageID, err := pm.AddStageRecord(ctx, domain.StageRecord{ProjectID: "p1", Stage: domain.StageB, Status: domain.StageRunning})
	require.NoError(t, err)
	stage := fake.pages[stageID]
	assert.Equal(t, "db-stages", stage.parent["database_id"])
	assert.Equal(t, []any{map[string]any{"id": "p1"}}, stage.properties[propProject]["relation"])
	assert.Equal(t, map[string]any{"name": "执行中"}, stage.properties[propStageStatus]["select"])
	assert.NotContains(t, stage.properties, propEndedAt)

	testID, err := pm.AddPressureTestRecord(ctx, domain.PressureTestRecord{ProjectID: "p1", Engines: []string{"DeepSeek", "ChatGPT"}, AvgScore: 42.5, Trend: domain.TrendDown})
	require.NoError(t, err)
	test := fake.pages[testID]
	assert.Equal(t, "db-tests", test.parent["database_id"])
	assert.Len(t, test.properties[propEngines]["multi_select"], 2)
	assert.Equal(t, 42.5, test.properties[propAvgScore]["number"])
	assert.Equal(t, map[string]any{"name": "↓"}, test.properties[propTrend]["select"])
}

func TestGetProjectInfoNotFound(t *testing.T) {
	t.Parallel()
	_, pm := newProjectManager(t)

	got, err := pm.GetProjectInfo(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListProjectsFollowsCursor(t *testing.T) {
	t.Parallel()
	fake, pm := newProjectManager(t)

	status := domain.ProjectInProgress
	projects, err := pm.ListProjects(context.Background(), &status)
	require.NoError(t, err)

	require.Len(t, projects, 2)
	assert.Equal(t, "甲", projects[0].ClientName)
	assert.Equal(t, domain.ProjectInProgress, projects[1].Status)

	require.Len(t, fake.queries, 2)
	filter := fake.queries[0]["filter"].(map[string]any)
	assert.Equal(t, propStatus, filter["property"])
	assert.Equal(t, "cursor-2", fake.queries[1]["start_cursor"])
}

func TestUpdateProjectStatusFalseForUnknownPage(t *testing.T) {
	t.Parallel()
	_, pm := newProjectManager(t)

	assert.False(t, pm.UpdateProjectStatus(context.Background(), "missing", domain.ProjectPaused))
}

func TestBackendAndTransportErrors(t *testing.T) {
	t.Parallel()
	_, srv := newFakeNotion(t)
	cfg := testConfig(srv)
	cfg.Databases.Projects = "bad"

	pm := NewProjectManager(NewClient(cfg, nil), cfg.Databases, nil)
	_, err := pm.CreateProject(context.Background(), domain.Project{ClientName: "品牌"})
	var backendErr *domain.BackendError
	require.True(t, errors.As(err, &backendErr))
	assert.Equal(t, http.StatusBadRequest, backendErr.StatusCode)
	assert.Contains(t, backendErr.Payload, "validation_error")
	assert.False(t, domain.IsTransient(err))

	closed := httptest.NewServer(http.NotFoundHandler())
	cfg.BaseURL = closed.URL
	closed.Close()
	pm = NewProjectManager(NewClient(cfg, nil), cfg.Databases, nil)
	_, err = pm.CreateProject(context.Background(), domain.Project{ClientName: "品牌"})
	assert.True(t, domain.IsTransient(err))
}

func TestDocumentGenerator(t *testing.T) {
	t.Parallel()
	fake, srv := newFakeNotion(t)
	gen := NewDocumentGenerator(NewClient(testConfig(srv), nil), "parent-page", nil)
	ctx := context.Background()

	artifact := filepath.Join(t.TempDir(), "品牌_A_商业提案.md")
	require.NoError(t, os.WriteFile(artifact, []byte("## 提案\n\n正文"), 0o644))

	docURL, err := gen.CreateProjectDocument(ctx, "p1", "品牌", map[string]string{"A": artifact})
	require.NoError(t, err)
	assert.Equal(t, "https://www.notion.so/page-1", docURL)

	doc := fake.pages["page-1"]
	assert.Equal(t, "parent-page", doc.parent["page_id"])
	assert.Greater(t, doc.children, 3)
	assert.Empty(t, fake.appended)

	var long strings.Builder
	for i := 0; i < 150; i++ {
		fmt.Fprintf(&long, "段落 %d\n\n", i)
	}
	require.NoError(t, gen.UpdateDocument(ctx, "page-1", long.String()))
	assert.Equal(t, []int{100, 50}, fake.appended)

	require.NoError(t, gen.SetDocumentPermission(ctx, "page-1", []string{"u1"}, domain.PermissionView))

	link, err := gen.GenerateShareLink(ctx, "page-1")
	require.NoError(t, err)
	assert.Equal(t, docURL, link)

	_, err = gen.GenerateShareLink(ctx, "missing")
	assert.Error(t, err)
}

func TestToBlock(t *testing.T) {
	t.Parallel()

	heading := toBlock(docblocks.H(2, "标题"))
	assert.Equal(t, "heading_2", heading["type"])
	assert.Contains(t, heading, "heading_2")

	code := toBlock(docblocks.Block{Kind: docblocks.Code, Text: "x := 1"})
	assert.Equal(t, "plain text", code["code"].(map[string]any)["language"])

	divider := toBlock(docblocks.Block{Kind: docblocks.Divider})
	assert.Equal(t, map[string]any{}, divider["divider"])
}

func TestRichTextSplitsLongContent(t *testing.T) {
	t.Parallel()

	parts := richText(strings.Repeat("字", 4500))
	require.Len(t, parts, 3)
	last := parts[2]["text"].(map[string]string)["content"]
	assert.Equal(t, 500, len([]rune(last)))

	assert.Empty(t, richText(""))
}

func TestFileManager(t *testing.T) {
	t.Parallel()
	fake, srv := newFakeNotion(t)
	fm := NewFileManager(NewClient(testConfig(srv), nil), "", nil)
	ctx := context.Background()

	folder, err := fm.CreateClientFolder(ctx, "品牌")
	require.NoError(t, err)
	assert.Equal(t, true, fake.pages[folder].parent["workspace"])

	path := filepath.Join(t.TempDir(), "报告.md")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	got, err := fm.UploadFile(ctx, folder, path)
	require.NoError(t, err)
	assert.Equal(t, path, got)

	_, err = fm.UploadFile(ctx, folder, filepath.Join(t.TempDir(), "missing.md"))
	assert.Error(t, err)

	files, err := fm.ListFiles(ctx, folder)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestNotifier(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	assert.True(t, NewNotifier("", nil).SendAlert(ctx, "任务失败", "B 阶段失败"))

	var texts []string
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		texts = append(texts, body["text"])
		mu.Unlock()
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, nil)
	assert.True(t, n.SendProgressNotification(ctx, "p1", "D - 矩阵提取", domain.StageCompleted, "ok"))
	assert.True(t, n.SendCompletionNotification(ctx, "p1", "品牌", "https://www.notion.so/x"))
	require.Len(t, texts, 2)
	assert.Contains(t, texts[0], "已完成")
	assert.Contains(t, texts[1], "https://www.notion.so/x")

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failing.Close()
	assert.False(t, NewNotifier(failing.URL, nil).SendAlert(ctx, "x", "y"))
}

func TestTruncateKeepsRunes(t *testing.T) {
	t.Parallel()

	got := truncate([]byte("a" + strings.Repeat("错", maxPayload)))
	assert.True(t, utf8.ValidString(got))
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.LessOrEqual(t, len(got), maxPayload+len("..."))

	assert.Equal(t, "short", truncate([]byte(" short \n")))
}
