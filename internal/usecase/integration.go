package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"GeoTool/internal/domain"
	"GeoTool/internal/platform"
)

// CapabilityFactory builds the adapter set of a platform.
type CapabilityFactory interface {
	Build(p domain.Platform) (platform.Capabilities, error)
}

// NewProject is the input of CreateNewProject.
type NewProject struct {
	ClientName  string
	Industry    string
	Contact     string
	Description string
	Status      domain.ProjectStatus
	StartDate   time.Time
}

// ProjectCreated is the result of CreateNewProject.
type ProjectCreated struct {
	ID       string
	FolderID string
	Outcome  domain.Outcome
}

// Completion is the result of CompleteProject.
type Completion struct {
	DocURL   string
	Uploaded []string
	Skipped  []string
	Outcome  domain.Outcome
}

// Integration composes the four capabilities of the active platform into
// business operations. It is safe for concurrent use.
type Integration struct {
	factory CapabilityFactory
	logger  *slog.Logger
	now     func() time.Time

	mu   sync.RWMutex
	caps platform.Capabilities
}

// NewIntegration builds the adapters of the initial platform.
func NewIntegration(factory CapabilityFactory, initial domain.Platform, logger *slog.Logger) (*Integration, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	caps, err := factory.Build(initial)
	if err != nil {
		return nil, err
	}
	return &Integration{
		factory: factory,
		logger:  logger,
		now:     time.Now,
		caps:    caps,
	}, nil
}

func (m *Integration) current() platform.Capabilities {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.caps
}

// CurrentPlatform reports the active platform.
func (m *Integration) CurrentPlatform() domain.Platform {
	return m.current().Platform
}

// SwitchPlatform rebuilds every adapter for p and swaps them in at once.
// On failure the previous set stays active.
func (m *Integration) SwitchPlatform(p domain.Platform) error {
	caps, err := m.factory.Build(p)
	if err != nil {
		return fmt.Errorf("switch platform to %s: %w", p, err)
	}

	m.mu.Lock()
	previous := m.caps.Platform
	m.caps = caps
	m.mu.Unlock()

	m.logger.Info("platform switched", "from", previous, "to", p)
	return nil
}

// CreateNewProject creates the project record, then best-effort creates the
// client folder and announces the project.
func (m *Integration) CreateNewProject(ctx context.Context, in NewProject) (ProjectCreated, error) {
	caps := m.current()
	logger := m.logger.With("client", in.ClientName, "platform", caps.Platform)

	id, err := caps.Projects.CreateProject(ctx, domain.Project{
		ClientName:  in.ClientName,
		Industry:    in.Industry,
		Contact:     in.Contact,
		Description: in.Description,
		Status:      in.Status,
		StartDate:   in.StartDate,
	})
	if err != nil {
		return ProjectCreated{}, fmt.Errorf("create project %s: %w", in.ClientName, err)
	}
	logger.Info("project created", "project_id", id)

	res := ProjectCreated{ID: id}

	folder, err := caps.Files.CreateClientFolder(ctx, in.ClientName)
	if err != nil {
		logger.Warn("create client folder failed", "error", err)
		res.Outcome.Degrade("create_client_folder", err.Error())
	} else {
		res.FolderID = folder
	}

	message := fmt.Sprintf("客户【%s】的项目已成功创建！", in.ClientName)
	if !caps.Notifier.SendProgressNotification(ctx, id, "项目创建", domain.StageCompleted, message) {
		res.Outcome.Degrade("send_progress_notification", "notifier reported failure")
	}

	return res, nil
}

// UpdateStageProgress records one stage execution stamped at call time and
// announces it.
func (m *Integration) UpdateStageProgress(ctx context.Context, projectID string, stage domain.StageTag, status domain.StageStatus, durationMinutes int, resultFile string) (domain.Outcome, error) {
	caps := m.current()
	now := m.now()

	rec := domain.StageRecord{
		ProjectID:       projectID,
		Stage:           stage,
		Status:          status,
		StartedAt:       now,
		DurationMinutes: durationMinutes,
		ResultFile:      resultFile,
		Notes:           fmt.Sprintf("%s阶段执行中", stage),
	}
	switch status {
	case domain.StageCompleted:
		rec.EndedAt = now
		rec.Notes = fmt.Sprintf("%s阶段执行完成", stage)
	case domain.StageFailed:
		rec.EndedAt = now
		rec.Notes = fmt.Sprintf("%s阶段执行失败", stage)
	}

	var outcome domain.Outcome
	if _, err := caps.Projects.AddStageRecord(ctx, rec); err != nil {
		return outcome, fmt.Errorf("add stage record %s: %w", stage, err)
	}

	message := "正在执行中..."
	if durationMinutes > 0 {
		message = fmt.Sprintf("耗时: %d分钟", durationMinutes)
	}
	if !caps.Notifier.SendProgressNotification(ctx, projectID, domain.StageTitle(stage), status, message) {
		outcome.Degrade("send_progress_notification", "notifier reported failure")
	}
	return outcome, nil
}

// CompleteProject marks the project completed, builds the delivery document,
// uploads the artifacts that exist and finally sends the completion notice.
func (m *Integration) CompleteProject(ctx context.Context, projectID, clientName string, results map[string]string) (Completion, error) {
	caps := m.current()
	logger := m.logger.With("project_id", projectID, "client", clientName)

	var res Completion
	if !caps.Projects.UpdateProjectStatus(ctx, projectID, domain.ProjectCompleted) {
		res.Outcome.Degrade("update_project_status", "backend rejected status update")
	}

	docURL, err := caps.Documents.CreateProjectDocument(ctx, projectID, clientName, results)
	if err != nil {
		return res, fmt.Errorf("create delivery document: %w", err)
	}
	res.DocURL = docURL
	logger.Info("delivery document created", "url", docURL)

	m.uploadResults(ctx, caps, clientName, results, &res)

	if !caps.Notifier.SendCompletionNotification(ctx, projectID, clientName, docURL) {
		res.Outcome.Degrade("send_completion_notification", "notifier reported failure")
	}
	return res, nil
}

func (m *Integration) uploadResults(ctx context.Context, caps platform.Capabilities, clientName string, results map[string]string, res *Completion) {
	var existing []string
	for _, key := range resultKeys(results) {
		path := results[key]
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			res.Skipped = append(res.Skipped, path)
			continue
		}
		existing = append(existing, path)
	}
	if len(existing) == 0 {
		return
	}

	folder, err := caps.Files.CreateClientFolder(ctx, clientName)
	if err != nil {
		m.logger.Warn("create client folder failed, skipping uploads", "client", clientName, "error", err)
		res.Outcome.Degrade("create_client_folder", err.Error())
		return
	}

	for _, path := range existing {
		if _, err := caps.Files.UploadFile(ctx, folder, path); err != nil {
			m.logger.Warn("upload failed", "file", path, "error", err)
			res.Outcome.Degrade("upload_file:"+filepath.Base(path), err.Error())
			continue
		}
		res.Uploaded = append(res.Uploaded, path)
	}
}

// resultKeys orders stage keys first, then the pressure test, then the rest.
func resultKeys(results map[string]string) []string {
	keys := make([]string, 0, len(results))
	seen := make(map[string]bool, len(results))
	for _, stage := range domain.Stages {
		if _, ok := results[string(stage.Tag)]; ok {
			keys = append(keys, string(stage.Tag))
			seen[string(stage.Tag)] = true
		}
	}
	if _, ok := results[domain.ResultPressureTest]; ok {
		keys = append(keys, domain.ResultPressureTest)
		seen[domain.ResultPressureTest] = true
	}

	var rest []string
	for key := range results {
		if !seen[key] {
			rest = append(rest, key)
		}
	}
	slices.Sort(rest)
	return append(keys, rest...)
}

// AddPressureTestResult records one pressure-test batch without notifying.
func (m *Integration) AddPressureTestResult(ctx context.Context, rec domain.PressureTestRecord) (string, error) {
	if rec.TestedAt.IsZero() {
		rec.TestedAt = m.now()
	}
	id, err := m.current().Projects.AddPressureTestRecord(ctx, rec)
	if err != nil {
		return "", fmt.Errorf("add pressure test record: %w", err)
	}
	m.logger.Info("pressure test recorded", "project_id", rec.ProjectID, "avg_score", rec.AvgScore, "mention_rate", rec.MentionRate)
	return id, nil
}

// ListProjects lists projects on the current platform, all when status is nil.
func (m *Integration) ListProjects(ctx context.Context, status *domain.ProjectStatus) ([]domain.Project, error) {
	return m.current().Projects.ListProjects(ctx, status)
}

// GetProject returns nil without error when the project does not exist.
func (m *Integration) GetProject(ctx context.Context, projectID string) (*domain.Project, error) {
	return m.current().Projects.GetProjectInfo(ctx, projectID)
}

// UpdateProjectStatus reports whether the current platform accepted the change.
func (m *Integration) UpdateProjectStatus(ctx context.Context, projectID string, status domain.ProjectStatus) bool {
	return m.current().Projects.UpdateProjectStatus(ctx, projectID, status)
}
