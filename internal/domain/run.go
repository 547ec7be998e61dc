package domain

import (
	"errors"
	"fmt"
	"time"
)

// StageRunStatus is the per-stage result recorded in a run summary.
type StageRunStatus string

const (
	StageRunSuccess StageRunStatus = "success"
	StageRunFailed  StageRunStatus = "failed"
)

// StageResult is one entry of a RunSummary.
type StageResult struct {
	Stage    StageTag       `json:"stage"`
	Name     string         `json:"name"`
	Status   StageRunStatus `json:"status"`
	File     string         `json:"file,omitempty"`
	Error    string         `json:"error,omitempty"`
	Duration time.Duration  `json:"duration_ns"`
}

// ExtractionSummary is the persisted view of an extraction result.
type ExtractionSummary struct {
	Keywords  []string `json:"keywords"`
	Questions []string `json:"questions"`
	Degraded  bool     `json:"degraded"`
	Warnings  []string `json:"warnings,omitempty"`
	File      string   `json:"file,omitempty"`
}

// RunSummary records one full D→B→C→A execution.
type RunSummary struct {
	RunID         string             `json:"run_id"`
	ClientName    string             `json:"client_name"`
	InputFile     string             `json:"input_file"`
	OutputDir     string             `json:"output_dir"`
	ExecutionTime time.Time          `json:"execution_time"`
	Results       []StageResult      `json:"results"`
	Extraction    *ExtractionSummary `json:"extraction,omitempty"`
}

// SuccessCount returns how many stages succeeded.
func (s RunSummary) SuccessCount() int {
	n := 0
	for _, r := range s.Results {
		if r.Status == StageRunSuccess {
			n++
		}
	}
	return n
}

// Result looks up the entry for a stage.
func (s RunSummary) Result(tag StageTag) (StageResult, bool) {
	for _, r := range s.Results {
		if r.Stage == tag {
			return r, true
		}
	}
	return StageResult{}, false
}

// Err aggregates failed stages into a single error, nil when all succeeded.
func (s RunSummary) Err() error {
	var errs []error
	for _, r := range s.Results {
		if r.Status == StageRunFailed {
			errs = append(errs, fmt.Errorf("stage %s (%s): %s", r.Stage, r.Name, r.Error))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d stages failed: %w", len(errs), len(s.Results), errors.Join(errs...))
}
