package notion

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"GeoTool/internal/config"
	"GeoTool/internal/domain"
	"GeoTool/internal/ports"
)

const (
	propClientName  = "客户名称"
	propIndustry    = "行业类型"
	propContact     = "联系人"
	propStatus      = "项目状态"
	propStartDate   = "开始日期"
	propDescription = "描述"

	propTaskName     = "任务名称"
	propProject      = "项目"
	propStage        = "执行阶段"
	propStageStatus  = "状态"
	propStartedAt    = "开始时间"
	propEndedAt      = "完成时间"
	propDuration     = "耗时(分钟)"
	propQuality      = "质量评分"
	propResultFile   = "结果文件"
	propNotes        = "备注"
	propTestName     = "测试名称"
	propTestedAt     = "测试时间"
	propEngines      = "测试引擎"
	propKeywordCount = "关键词数量"
	propAvgScore     = "平均得分"
	propMentionRate  = "提及率"
	propTrend        = "趋势"
	propReportFile   = "报告文件"
)

const queryPageSize = 100

// ProjectManager keeps projects and their records in three databases.
type ProjectManager struct {
	client    *Client
	databases config.TableConfig
	logger    *slog.Logger
	now       func() time.Time
}

var _ ports.ProjectManager = (*ProjectManager)(nil)

// NewProjectManager stores records in the Notion databases listed in databases.
func NewProjectManager(client *Client, databases config.TableConfig, logger *slog.Logger) *ProjectManager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ProjectManager{client: client, databases: databases, logger: logger, now: time.Now}
}

// CreateProject adds a page to the project database and returns its id.
func (m *ProjectManager) CreateProject(ctx context.Context, project domain.Project) (string, error) {
	status := project.Status
	if status == "" {
		status = domain.ProjectPending
	}

	props := Properties{}.
		Title(propClientName, project.ClientName).
		Select(propStatus, status.Label()).
		Select(propIndustry, project.Industry).
		Text(propContact, project.Contact).
		Text(propDescription, project.Description).
		Date(propStartDate, project.StartDate)

	created, err := m.client.createPage(ctx, "create_project", databaseParent(m.databases.Projects), props, nil)
	if err != nil {
		return "", err
	}
	m.logger.Info("project page created", "page_id", created.ID, "client", project.ClientName)
	return created.ID, nil
}

// UpdateProjectStatus reports failures as false.
func (m *ProjectManager) UpdateProjectStatus(ctx context.Context, projectID string, status domain.ProjectStatus) bool {
	body := map[string]any{"properties": Properties{}.Select(propStatus, status.Label())}
	if err := m.client.do(ctx, "update_project_status", http.MethodPatch, "/pages/"+projectID, body, nil); err != nil {
		m.logger.Warn("update project status failed", "project_id", projectID, "status", status, "error", err)
		return false
	}
	m.logger.Info("project status updated", "project_id", projectID, "status", status)
	return true
}

// AddStageRecord adds a page to the stage database linked to the project.
func (m *ProjectManager) AddStageRecord(ctx context.Context, rec domain.StageRecord) (string, error) {
	started := rec.StartedAt
	if started.IsZero() {
		started = m.now()
	}
	status := rec.Status
	if status == "" {
		status = domain.StagePending
	}

	props := Properties{}.
		Title(propTaskName, fmt.Sprintf("%s阶段", rec.Stage)).
		Relation(propProject, rec.ProjectID).
		Select(propStage, string(rec.Stage)).
		Select(propStageStatus, status.Label()).
		Date(propStartedAt, started).
		Date(propEndedAt, rec.EndedAt).
		Number(propDuration, float64(rec.DurationMinutes)).
		Number(propQuality, rec.QualityScore).
		Text(propResultFile, rec.ResultFile).
		Text(propNotes, rec.Notes)

	created, err := m.client.createPage(ctx, "add_stage_record", databaseParent(m.databases.StageRecords), props, nil)
	if err != nil {
		return "", err
	}
	m.logger.Info("stage record created", "page_id", created.ID, "stage", rec.Stage)
	return created.ID, nil
}

// AddPressureTestRecord adds a page to the pressure-test database.
func (m *ProjectManager) AddPressureTestRecord(ctx context.Context, rec domain.PressureTestRecord) (string, error) {
	tested := rec.TestedAt
	if tested.IsZero() {
		tested = m.now()
	}

	props := Properties{}.
		Title(propTestName, "压力测试 "+tested.Format("2006-01-02 15:04")).
		Relation(propProject, rec.ProjectID).
		Date(propTestedAt, tested).
		MultiSelect(propEngines, rec.Engines).
		Number(propKeywordCount, float64(rec.KeywordCount)).
		Number(propAvgScore, rec.AvgScore).
		Number(propMentionRate, rec.MentionRate).
		Select(propTrend, rec.Trend.Label()).
		Text(propReportFile, rec.ReportFile)

	created, err := m.client.createPage(ctx, "add_pressure_test_record", databaseParent(m.databases.PressureTests), props, nil)
	if err != nil {
		return "", err
	}
	m.logger.Info("pressure test record created", "page_id", created.ID)
	return created.ID, nil
}

// GetProjectInfo returns nil without error for unknown or archived pages.
func (m *ProjectManager) GetProjectInfo(ctx context.Context, projectID string) (*domain.Project, error) {
	p, err := m.client.retrievePage(ctx, "get_project_info", projectID)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if p.Archived {
		return nil, nil
	}
	project := toProject(p)
	return &project, nil
}

// ListProjects queries the project database, following cursors.
func (m *ProjectManager) ListProjects(ctx context.Context, status *domain.ProjectStatus) ([]domain.Project, error) {
	body := map[string]any{"page_size": queryPageSize}
	if status != nil {
		body["filter"] = map[string]any{
			"property": propStatus,
			"select":   map[string]string{"equals": status.Label()},
		}
	}
	path := fmt.Sprintf("/databases/%s/query", m.databases.Projects)

	var projects []domain.Project
	for {
		var result struct {
			Results    []page `json:"results"`
			HasMore    bool   `json:"has_more"`
			NextCursor string `json:"next_cursor"`
		}
		if err := m.client.do(ctx, "list_projects", http.MethodPost, path, body, &result); err != nil {
			return nil, err
		}
		for _, p := range result.Results {
			projects = append(projects, toProject(p))
		}
		if !result.HasMore || result.NextCursor == "" {
			break
		}
		body["start_cursor"] = result.NextCursor
	}

	m.logger.Debug("projects listed", "count", len(projects))
	return projects, nil
}

func databaseParent(id string) map[string]any {
	return map[string]any{"database_id": id}
}

func toProject(p page) domain.Project {
	project := domain.Project{
		ID:          p.ID,
		ClientName:  p.Properties[propClientName].String(),
		Industry:    p.Properties[propIndustry].String(),
		Contact:     p.Properties[propContact].String(),
		Description: p.Properties[propDescription].String(),
		StartDate:   p.Properties[propStartDate].Time(),
		CreatedAt:   p.CreatedTime,
	}

	label := p.Properties[propStatus].String()
	if status, err := domain.ParseProjectStatus(label); err == nil {
		project.Status = status
	} else {
		project.Status = domain.ProjectStatus(label)
	}
	return project
}
