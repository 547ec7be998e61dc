package usecase

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"GeoTool/internal/domain"
	"GeoTool/internal/platform"
	"GeoTool/internal/ports"
)

// callLog records adapter calls in order across all fakes of one set.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type fakeProjects struct {
	log         *callLog
	mu          sync.Mutex
	projects    map[string]domain.Project
	stages      []domain.StageRecord
	tests       []domain.PressureTestRecord
	failStatus  bool
	failCreate  error
	failStageOp error
}

var _ ports.ProjectManager = (*fakeProjects)(nil)

func (f *fakeProjects) CreateProject(_ context.Context, p domain.Project) (string, error) {
	f.log.add("create_project %s", p.ClientName)
	if f.failCreate != nil {
		return "", f.failCreate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.projects == nil {
		f.projects = map[string]domain.Project{}
	}
	p.ID = fmt.Sprintf("rec%d", len(f.projects)+1)
	if p.Status == "" {
		p.Status = domain.ProjectPending
	}
	f.projects[p.ID] = p
	return p.ID, nil
}

func (f *fakeProjects) UpdateProjectStatus(_ context.Context, id string, status domain.ProjectStatus) bool {
	f.log.add("update_status %s %s", id, status)
	if f.failStatus {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok {
		return false
	}
	p.Status = status
	f.projects[id] = p
	return true
}

func (f *fakeProjects) AddStageRecord(_ context.Context, rec domain.StageRecord) (string, error) {
	f.log.add("stage_record %s %s", rec.Stage, rec.Status)
	if f.failStageOp != nil {
		return "", f.failStageOp
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stages = append(f.stages, rec)
	return fmt.Sprintf("stage%d", len(f.stages)), nil
}

func (f *fakeProjects) AddPressureTestRecord(_ context.Context, rec domain.PressureTestRecord) (string, error) {
	f.log.add("pressure_record %s", rec.ProjectID)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tests = append(f.tests, rec)
	return fmt.Sprintf("test%d", len(f.tests)), nil
}

func (f *fakeProjects) GetProjectInfo(_ context.Context, id string) (*domain.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (f *fakeProjects) ListProjects(_ context.Context, status *domain.ProjectStatus) ([]domain.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Project
	for _, p := range f.projects {
		if status == nil || p.Status == *status {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeDocuments struct {
	log     *callLog
	fail    error
	results map[string]string
}

var _ ports.DocumentGenerator = (*fakeDocuments)(nil)

func (f *fakeDocuments) CreateProjectDocument(_ context.Context, projectID, clientName string, results map[string]string) (string, error) {
	f.log.add("create_document %s", projectID)
	if f.fail != nil {
		return "", f.fail
	}
	f.results = results
	return "https://docs.example/" + projectID, nil
}

func (f *fakeDocuments) UpdateDocument(context.Context, string, string) error { return nil }

func (f *fakeDocuments) SetDocumentPermission(context.Context, string, []string, domain.Permission) error {
	return nil
}

func (f *fakeDocuments) GenerateShareLink(_ context.Context, docID string) (string, error) {
	return "https://docs.example/" + docID, nil
}

type fakeNotifier struct {
	log  *callLog
	fail bool
}

var _ ports.Notifier = (*fakeNotifier)(nil)

func (f *fakeNotifier) SendProgressNotification(_ context.Context, projectID, stage string, status domain.StageStatus, _ string) bool {
	f.log.add("notify_progress %s %s %s", projectID, stage, status)
	return !f.fail
}

func (f *fakeNotifier) SendCompletionNotification(_ context.Context, projectID, _, _ string) bool {
	f.log.add("notify_completion %s", projectID)
	return !f.fail
}

func (f *fakeNotifier) SendAlert(_ context.Context, kind, _ string) bool {
	f.log.add("alert %s", kind)
	return !f.fail
}

type fakeFiles struct {
	log        *callLog
	failFolder bool
}

var _ ports.FileManager = (*fakeFiles)(nil)

func (f *fakeFiles) CreateClientFolder(_ context.Context, clientName string) (string, error) {
	f.log.add("create_folder %s", clientName)
	if f.failFolder {
		return "", errors.New("folder quota exceeded")
	}
	return "fld-" + clientName, nil
}

func (f *fakeFiles) UploadFile(_ context.Context, folderID, path string) (string, error) {
	f.log.add("upload %s", filepath.Base(path))
	return folderID + "/" + filepath.Base(path), nil
}

func (f *fakeFiles) ListFiles(context.Context, string) ([]domain.FileInfo, error) {
	return nil, nil
}

// fakeSet is one platform's fakes sharing a call log.
type fakeSet struct {
	log       *callLog
	projects  *fakeProjects
	documents *fakeDocuments
	notifier  *fakeNotifier
	files     *fakeFiles
}

func newFakeSet() *fakeSet {
	log := &callLog{}
	return &fakeSet{
		log:       log,
		projects:  &fakeProjects{log: log},
		documents: &fakeDocuments{log: log},
		notifier:  &fakeNotifier{log: log},
		files:     &fakeFiles{log: log},
	}
}

func (s *fakeSet) capabilities(p domain.Platform) platform.Capabilities {
	return platform.Capabilities{Platform: p, Projects: s.projects, Documents: s.documents, Notifier: s.notifier, Files: s.files}
}

type fakeFactory struct {
	sets map[domain.Platform]*fakeSet
}

func (f *fakeFactory) Build(p domain.Platform) (platform.Capabilities, error) {
	set, ok := f.sets[p]
	if !ok {
		return platform.Capabilities{}, &domain.ConfigurationError{Field: "platform", Reason: "unsupported platform " + string(p)}
	}
	return set.capabilities(p), nil
}

type fakeChat struct {
	mu      sync.Mutex
	calls   int
	respond func(req ports.ChatRequest) (string, error)
}

func (f *fakeChat) Complete(_ context.Context, req ports.ChatRequest) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.respond(req)
}

type memoryHistory struct {
	mu    sync.Mutex
	runs  []domain.RunSummary
	tests map[string][]domain.PressureTestRecord
}

var _ ports.RunHistory = (*memoryHistory)(nil)

func (h *memoryHistory) SaveRun(_ context.Context, s domain.RunSummary) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs = append(h.runs, s)
	return nil
}

func (h *memoryHistory) ListRuns(_ context.Context, client string, limit int) ([]domain.RunSummary, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []domain.RunSummary
	for i := len(h.runs) - 1; i >= 0; i-- {
		if client == "" || h.runs[i].ClientName == client {
			out = append(out, h.runs[i])
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (h *memoryHistory) SavePressureTest(_ context.Context, client string, rec domain.PressureTestRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.tests == nil {
		h.tests = map[string][]domain.PressureTestRecord{}
	}
	h.tests[client] = append(h.tests[client], rec)
	return nil
}

func (h *memoryHistory) LastPressureTest(_ context.Context, client string) (*domain.PressureTestRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := h.tests[client]
	if len(list) == 0 {
		return nil, nil
	}
	rec := list[len(list)-1]
	return &rec, nil
}
