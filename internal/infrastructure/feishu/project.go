package feishu

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"GeoTool/internal/config"
	"GeoTool/internal/domain"
	"GeoTool/internal/ports"
)

// Bitable field names.
const (
	fieldClientName   = "客户名称"
	fieldIndustry     = "行业类型"
	fieldContact      = "联系人"
	fieldStatus       = "项目状态"
	fieldStartDate    = "开始日期"
	fieldDescription  = "备注"
	fieldProjectID    = "项目ID"
	fieldStage        = "执行阶段"
	fieldStageStatus  = "执行状态"
	fieldStartedAt    = "开始时间"
	fieldEndedAt      = "完成时间"
	fieldDuration     = "耗时(分钟)"
	fieldQuality      = "质量评分"
	fieldResultFile   = "结果文件"
	fieldTestedAt     = "测试时间"
	fieldEngines      = "测试引擎"
	fieldKeywordCount = "关键词数量"
	fieldAvgScore     = "平均得分"
	fieldMentionRate  = "提及率"
	fieldTrend        = "趋势"
	fieldReportFile   = "报告文件"
)

// codeRecordNotFound is returned by bitable for unknown record ids.
const codeRecordNotFound = 1254043

const listPageSize = 100

// ProjectManager stores projects, stage records and pressure tests as
// bitable records.
type ProjectManager struct {
	client   *Client
	appToken string
	tables   config.TableConfig
	logger   *slog.Logger
	now      func() time.Time
}

var _ ports.ProjectManager = (*ProjectManager)(nil)

// NewProjectManager binds a client to one bitable app.
func NewProjectManager(client *Client, cfg config.BitableConfig, logger *slog.Logger) *ProjectManager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ProjectManager{
		client:   client,
		appToken: cfg.AppToken,
		tables:   cfg.Tables,
		logger:   logger,
		now:      time.Now,
	}
}

type record struct {
	RecordID    string         `json:"record_id"`
	Fields      map[string]any `json:"fields"`
	CreatedTime int64          `json:"created_time"`
}

type recordData struct {
	Record record `json:"record"`
}

type recordPage struct {
	Items     []record `json:"items"`
	HasMore   bool     `json:"has_more"`
	PageToken string   `json:"page_token"`
}

func (m *ProjectManager) recordsPath(table string) string {
	return fmt.Sprintf("/bitable/v1/apps/%s/tables/%s/records", m.appToken, table)
}

// CreateProject inserts a project record and returns its record id.
func (m *ProjectManager) CreateProject(ctx context.Context, project domain.Project) (string, error) {
	status := project.Status
	if status == "" {
		status = domain.ProjectPending
	}
	start := project.StartDate
	if start.IsZero() {
		start = m.now()
	}

	fields := map[string]any{
		fieldClientName: project.ClientName,
		fieldStatus:     status.Label(),
		fieldStartDate:  start.UnixMilli(),
	}
	setText(fields, fieldIndustry, project.Industry)
	setText(fields, fieldContact, project.Contact)
	setText(fields, fieldDescription, project.Description)

	return m.insert(ctx, "create_project", m.tables.Projects, fields)
}

// UpdateProjectStatus reports failures as false.
func (m *ProjectManager) UpdateProjectStatus(ctx context.Context, projectID string, status domain.ProjectStatus) bool {
	body := map[string]any{"fields": map[string]any{fieldStatus: status.Label()}}
	err := m.client.doJSON(ctx, "update_project_status", http.MethodPut, m.recordsPath(m.tables.Projects)+"/"+projectID, nil, body, nil)
	if err != nil {
		m.logger.Warn("update project status failed", "project_id", projectID, "status", status, "error", err)
		return false
	}
	m.logger.Info("project status updated", "project_id", projectID, "status", status)
	return true
}

// AddStageRecord inserts one stage execution into the stage table.
func (m *ProjectManager) AddStageRecord(ctx context.Context, rec domain.StageRecord) (string, error) {
	started := rec.StartedAt
	if started.IsZero() {
		started = m.now()
	}
	status := rec.Status
	if status == "" {
		status = domain.StagePending
	}

	fields := map[string]any{
		fieldProjectID:   rec.ProjectID,
		fieldStage:       string(rec.Stage),
		fieldStageStatus: status.Label(),
		fieldStartedAt:   started.UnixMilli(),
		fieldDuration:    rec.DurationMinutes,
		fieldQuality:     rec.QualityScore,
	}
	if !rec.EndedAt.IsZero() {
		fields[fieldEndedAt] = rec.EndedAt.UnixMilli()
	}
	setText(fields, fieldResultFile, rec.ResultFile)
	setText(fields, fieldDescription, rec.Notes)

	return m.insert(ctx, "add_stage_record", m.tables.StageRecords, fields)
}

// AddPressureTestRecord inserts one pressure-test batch.
func (m *ProjectManager) AddPressureTestRecord(ctx context.Context, rec domain.PressureTestRecord) (string, error) {
	tested := rec.TestedAt
	if tested.IsZero() {
		tested = m.now()
	}
	engines := rec.Engines
	if engines == nil {
		engines = []string{}
	}

	fields := map[string]any{
		fieldProjectID:    rec.ProjectID,
		fieldTestedAt:     tested.UnixMilli(),
		fieldEngines:      engines,
		fieldKeywordCount: rec.KeywordCount,
		fieldAvgScore:     rec.AvgScore,
		fieldMentionRate:  rec.MentionRate,
		fieldTrend:        rec.Trend.Label(),
	}
	setText(fields, fieldReportFile, rec.ReportFile)

	return m.insert(ctx, "add_pressure_test_record", m.tables.PressureTests, fields)
}

// GetProjectInfo returns nil without error when the record does not exist.
func (m *ProjectManager) GetProjectInfo(ctx context.Context, projectID string) (*domain.Project, error) {
	var data recordData
	query := url.Values{"automatic_fields": {"true"}}
	err := m.client.doJSON(ctx, "get_project_info", http.MethodGet, m.recordsPath(m.tables.Projects)+"/"+projectID, query, nil, &data)
	if err != nil {
		var backendErr *domain.BackendError
		if errors.As(err, &backendErr) && (backendErr.Code == codeRecordNotFound || backendErr.StatusCode == http.StatusNotFound) {
			return nil, nil
		}
		return nil, err
	}

	project := toProject(data.Record)
	return &project, nil
}

// ListProjects pages through the project table, optionally filtered by status.
func (m *ProjectManager) ListProjects(ctx context.Context, status *domain.ProjectStatus) ([]domain.Project, error) {
	query := url.Values{
		"page_size":        {strconv.Itoa(listPageSize)},
		"automatic_fields": {"true"},
	}
	if status != nil {
		query.Set("filter", fmt.Sprintf("CurrentValue.[%s]='%s'", fieldStatus, status.Label()))
	}

	var projects []domain.Project
	for {
		var page recordPage
		if err := m.client.doJSON(ctx, "list_projects", http.MethodGet, m.recordsPath(m.tables.Projects), query, nil, &page); err != nil {
			return nil, err
		}
		for _, rec := range page.Items {
			projects = append(projects, toProject(rec))
		}
		if !page.HasMore || page.PageToken == "" {
			break
		}
		query.Set("page_token", page.PageToken)
	}

	m.logger.Debug("projects listed", "count", len(projects))
	return projects, nil
}

func (m *ProjectManager) insert(ctx context.Context, op, table string, fields map[string]any) (string, error) {
	var data recordData
	if err := m.client.doJSON(ctx, op, http.MethodPost, m.recordsPath(table), nil, map[string]any{"fields": fields}, &data); err != nil {
		return "", err
	}
	if data.Record.RecordID == "" {
		return "", &domain.BackendError{Platform: domain.PlatformFeishu, Op: op, Payload: "response carries no record_id"}
	}
	m.logger.Info("record created", "op", op, "record_id", data.Record.RecordID)
	return data.Record.RecordID, nil
}

func toProject(rec record) domain.Project {
	project := domain.Project{
		ID:          rec.RecordID,
		ClientName:  fieldString(rec.Fields[fieldClientName]),
		Industry:    fieldString(rec.Fields[fieldIndustry]),
		Contact:     fieldString(rec.Fields[fieldContact]),
		Description: fieldString(rec.Fields[fieldDescription]),
		StartDate:   fieldTime(rec.Fields[fieldStartDate]),
	}
	if rec.CreatedTime > 0 {
		project.CreatedAt = time.UnixMilli(rec.CreatedTime)
	}

	label := fieldString(rec.Fields[fieldStatus])
	if status, err := domain.ParseProjectStatus(label); err == nil {
		project.Status = status
	} else {
		project.Status = domain.ProjectStatus(label)
	}
	return project
}

func setText(fields map[string]any, name, value string) {
	if strings.TrimSpace(value) != "" {
		fields[name] = value
	}
}

// fieldString flattens the shapes bitable uses for text-like cells: plain
// strings, rich-text segment arrays and option objects.
func fieldString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case map[string]any:
		if text, ok := v["text"].(string); ok {
			return text
		}
		if name, ok := v["name"].(string); ok {
			return name
		}
		return ""
	case []any:
		var sb strings.Builder
		for _, item := range v {
			sb.WriteString(fieldString(item))
		}
		return sb.String()
	default:
		return fmt.Sprint(v)
	}
}

func fieldTime(value any) time.Time {
	if ms, ok := value.(float64); ok && ms > 0 {
		return time.UnixMilli(int64(ms))
	}
	return time.Time{}
}
