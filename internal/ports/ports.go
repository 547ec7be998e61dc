package ports

import (
	"context"
	"time"

	"GeoTool/internal/domain"
)

// ProjectManager tracks projects, stage executions and pressure tests on a backend.
type ProjectManager interface {
	CreateProject(ctx context.Context, project domain.Project) (string, error)
	// UpdateProjectStatus reports failure as false instead of an error so a
	// status-sync glitch never aborts a pipeline run.
	UpdateProjectStatus(ctx context.Context, projectID string, status domain.ProjectStatus) bool
	AddStageRecord(ctx context.Context, record domain.StageRecord) (string, error)
	AddPressureTestRecord(ctx context.Context, record domain.PressureTestRecord) (string, error)
	// GetProjectInfo returns nil without error when the project does not exist.
	GetProjectInfo(ctx context.Context, projectID string) (*domain.Project, error)
	ListProjects(ctx context.Context, status *domain.ProjectStatus) ([]domain.Project, error)
}

// DocumentGenerator builds shareable delivery documents.
type DocumentGenerator interface {
	// CreateProjectDocument returns the document URL. results maps stage tags
	// (and domain.ResultPressureTest) to local artifact paths.
	CreateProjectDocument(ctx context.Context, projectID, clientName string, results map[string]string) (string, error)
	UpdateDocument(ctx context.Context, docID, content string) error
	SetDocumentPermission(ctx context.Context, docID string, userIDs []string, perm domain.Permission) error
	GenerateShareLink(ctx context.Context, docID string) (string, error)
}

// Notifier pushes progress to people. Failures are reported as false and
// never abort the caller.
type Notifier interface {
	SendProgressNotification(ctx context.Context, projectID, stage string, status domain.StageStatus, message string) bool
	SendCompletionNotification(ctx context.Context, projectID, clientName, docURL string) bool
	SendAlert(ctx context.Context, kind, message string) bool
}

// FileManager stores client artifacts on the backend.
type FileManager interface {
	CreateClientFolder(ctx context.Context, clientName string) (string, error)
	UploadFile(ctx context.Context, folderID, path string) (string, error)
	ListFiles(ctx context.Context, folderID string) ([]domain.FileInfo, error)
}

// ChatMessage is one role-tagged message of a completion request.
type ChatMessage struct {
	Role    string
	Content string
}

// ChatRequest describes a chat-completion call.
type ChatRequest struct {
	Model       string
	Messages    []ChatMessage
	Temperature float64
	MaxTokens   int
}

// ChatClient talks to an LLM as an opaque text-in/text-out service.
type ChatClient interface {
	Complete(ctx context.Context, req ChatRequest) (string, error)
}

// RunHistory persists run summaries and pressure results locally.
type RunHistory interface {
	SaveRun(ctx context.Context, summary domain.RunSummary) error
	ListRuns(ctx context.Context, clientName string, limit int) ([]domain.RunSummary, error)
	SavePressureTest(ctx context.Context, clientName string, record domain.PressureTestRecord) error
	LastPressureTest(ctx context.Context, clientName string) (*domain.PressureTestRecord, error)
}

// Scheduler controls when recurring jobs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
