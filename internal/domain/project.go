package domain

import (
	"fmt"
	"strings"
	"time"
)

// Platform names a collaboration backend.
type Platform string

const (
	PlatformFeishu Platform = "feishu"
	PlatformNotion Platform = "notion"
)

// ProjectStatus enumerates the lifecycle of a client engagement.
type ProjectStatus string

const (
	ProjectPending    ProjectStatus = "pending"
	ProjectInProgress ProjectStatus = "in_progress"
	ProjectCompleted  ProjectStatus = "completed"
	ProjectPaused     ProjectStatus = "paused"
)

var projectStatusLabels = map[ProjectStatus]string{
	ProjectPending:    "待启动",
	ProjectInProgress: "进行中",
	ProjectCompleted:  "已完成",
	ProjectPaused:     "暂停",
}

// Label is the value stored in backend select/text fields.
func (s ProjectStatus) Label() string {
	if label, ok := projectStatusLabels[s]; ok {
		return label
	}
	return string(s)
}

// ParseProjectStatus accepts either the code or the backend label.
func ParseProjectStatus(value string) (ProjectStatus, error) {
	value = strings.TrimSpace(value)
	for status, label := range projectStatusLabels {
		if value == string(status) || value == label {
			return status, nil
		}
	}
	return "", fmt.Errorf("unknown project status %q", value)
}

// Project is one client engagement as tracked on the backend.
type Project struct {
	ID          string
	ClientName  string
	Industry    string
	Contact     string
	Status      ProjectStatus
	Description string
	StartDate   time.Time
	CreatedAt   time.Time
}

// FileInfo describes a file stored by a backend file capability.
type FileInfo struct {
	Token string `json:"token"`
	Name  string `json:"name"`
	Type  string `json:"type"`
	URL   string `json:"url"`
}

// Permission is a document access level.
type Permission string

const (
	PermissionView Permission = "view"
	PermissionEdit Permission = "edit"
)
