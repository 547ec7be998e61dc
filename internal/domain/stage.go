package domain

import (
	"fmt"
	"strings"
	"time"
)

// StageTag identifies one phase of the GEO pipeline.
type StageTag string

const (
	StageD StageTag = "D"
	StageB StageTag = "B"
	StageC StageTag = "C"
	StageA StageTag = "A"
)

// Stage describes a pipeline phase and its human readable names.
type Stage struct {
	Tag   StageTag
	Name  string
	Title string
}

// Stages lists the pipeline phases in execution order.
var Stages = []Stage{
	{Tag: StageD, Name: "矩阵提取", Title: "D - 矩阵提取"},
	{Tag: StageB, Name: "转化路径", Title: "B - 转化路径设计"},
	{Tag: StageC, Name: "质检暴改", Title: "C - 质检暴改"},
	{Tag: StageA, Name: "商业提案", Title: "A - 商业提案"},
}

// ResultPressureTest keys the pressure-test report inside a results mapping.
const ResultPressureTest = "pressure_test"

// LookupStage returns the stage definition for a tag.
func LookupStage(tag StageTag) (Stage, bool) {
	for _, stage := range Stages {
		if stage.Tag == tag {
			return stage, true
		}
	}
	return Stage{}, false
}

// ParseStageTag normalizes user input such as "d" into a known tag.
func ParseStageTag(value string) (StageTag, error) {
	tag := StageTag(strings.ToUpper(strings.TrimSpace(value)))
	if _, ok := LookupStage(tag); !ok {
		return "", fmt.Errorf("unknown stage %q, expected one of D/B/C/A", value)
	}
	return tag, nil
}

// StageTitle falls back to the raw tag for unknown stages.
func StageTitle(tag StageTag) string {
	if stage, ok := LookupStage(tag); ok {
		return stage.Title
	}
	return string(tag)
}

// StageStatus enumerates execution states of a stage record.
type StageStatus string

const (
	StagePending   StageStatus = "pending"
	StageRunning   StageStatus = "running"
	StageCompleted StageStatus = "completed"
	StageFailed    StageStatus = "failed"
)

var stageStatusLabels = map[StageStatus]string{
	StagePending:   "待执行",
	StageRunning:   "执行中",
	StageCompleted: "已完成",
	StageFailed:    "失败",
}

// Label is the value stored on the backend.
func (s StageStatus) Label() string {
	if label, ok := stageStatusLabels[s]; ok {
		return label
	}
	return string(s)
}

// StageRecord captures one execution of a pipeline stage for a project.
type StageRecord struct {
	ProjectID       string
	Stage           StageTag
	Status          StageStatus
	StartedAt       time.Time
	EndedAt         time.Time
	DurationMinutes int
	ResultFile      string
	QualityScore    float64
	Notes           string
}

// Trend compares a pressure test against the previous one.
type Trend string

const (
	TrendUp   Trend = "up"
	TrendFlat Trend = "flat"
	TrendDown Trend = "down"
)

// Label renders the arrow used in backend records and reports.
func (t Trend) Label() string {
	switch t {
	case TrendUp:
		return "↑"
	case TrendDown:
		return "↓"
	default:
		return "→"
	}
}

// PressureTestRecord is one batch of brand-mention probing.
type PressureTestRecord struct {
	ProjectID    string
	TestedAt     time.Time
	Engines      []string
	KeywordCount int
	AvgScore     float64
	MentionRate  float64
	Trend        Trend
	ReportFile   string
}
