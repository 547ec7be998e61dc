package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"GeoTool/internal/domain"
	"GeoTool/internal/extract"
	"GeoTool/internal/ports"
	"GeoTool/internal/prompt"
	"GeoTool/internal/retry"
)

const (
	summaryFileName  = "执行摘要.json"
	defaultExtractTo = 10
)

// StageTracker receives per-stage progress for a tracked project.
type StageTracker interface {
	UpdateStageProgress(ctx context.Context, projectID string, stage domain.StageTag, status domain.StageStatus, durationMinutes int, resultFile string) (domain.Outcome, error)
}

// PipelineDeps wires the collaborators of the stage pipeline.
type PipelineDeps struct {
	Chat         ports.ChatClient
	Prompts      *prompt.Renderer
	Executor     *retry.Executor
	Policy       retry.Policy
	History      ports.RunHistory
	Tracker      StageTracker
	OutputRoot   string
	ExtractLimit int
	Logger       *slog.Logger
}

// Pipeline runs the D→B→C→A prompt series for one client.
type Pipeline struct {
	chat         ports.ChatClient
	prompts      *prompt.Renderer
	executor     *retry.Executor
	policy       retry.Policy
	history      ports.RunHistory
	tracker      StageTracker
	outputRoot   string
	extractLimit int
	logger       *slog.Logger
	now          func() time.Time
	newID        func() string
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	executor := deps.Executor
	if executor == nil {
		executor = retry.NewExecutor(logger)
	}
	limit := deps.ExtractLimit
	if limit <= 0 {
		limit = defaultExtractTo
	}
	return &Pipeline{
		chat:         deps.Chat,
		prompts:      deps.Prompts,
		executor:     executor,
		policy:       deps.Policy,
		history:      deps.History,
		tracker:      deps.Tracker,
		outputRoot:   deps.OutputRoot,
		extractLimit: limit,
		logger:       logger,
		now:          time.Now,
		newID:        uuid.NewString,
	}
}

// RunRequest describes one pipeline execution.
type RunRequest struct {
	ClientName string
	InputFile  string
	// OutputDir defaults to <output root>/<client>.
	OutputDir string
	// ProjectID enables stage tracking when non-empty.
	ProjectID string
}

// Run executes every stage in order. A failed stage is recorded and the next
// one still runs; the returned error covers setup problems only. Use
// RunSummary.Err for stage failures.
func (p *Pipeline) Run(ctx context.Context, req RunRequest) (domain.RunSummary, error) {
	if p.chat == nil || p.prompts == nil {
		return domain.RunSummary{}, errors.New("pipeline: chat client and prompts are required")
	}
	if strings.TrimSpace(req.ClientName) == "" {
		return domain.RunSummary{}, &domain.ConfigurationError{Field: "client", Reason: "must not be empty"}
	}

	raw, err := os.ReadFile(req.InputFile)
	if err != nil {
		return domain.RunSummary{}, fmt.Errorf("read client card: %w", err)
	}
	card, err := prompt.ParseCard(raw)
	if err != nil {
		return domain.RunSummary{}, err
	}

	outDir := req.OutputDir
	if outDir == "" {
		outDir = filepath.Join(p.outputRoot, req.ClientName)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return domain.RunSummary{}, fmt.Errorf("create output dir: %w", err)
	}

	logger := p.logger.With("client", req.ClientName)
	if err := writeCardCopy(outDir, req.ClientName, card); err != nil {
		logger.Warn("copy client card failed", "error", err)
	}

	summary := domain.RunSummary{
		RunID:         p.newID(),
		ClientName:    req.ClientName,
		InputFile:     req.InputFile,
		OutputDir:     outDir,
		ExecutionTime: p.now(),
	}

	for _, stage := range domain.Stages {
		result, text := p.runStage(ctx, logger, req, outDir, card, stage)
		summary.Results = append(summary.Results, result)

		if stage.Tag == domain.StageD && result.Status == domain.StageRunSuccess {
			summary.Extraction = p.extractQuestions(logger, outDir, req.ClientName, text)
		}
	}

	if err := writeJSON(filepath.Join(outDir, summaryFileName), summary); err != nil {
		logger.Warn("write run summary failed", "error", err)
	}
	if p.history != nil {
		if err := p.history.SaveRun(ctx, summary); err != nil {
			logger.Warn("save run history failed", "error", err)
		}
	}

	logger.Info("pipeline finished", "run_id", summary.RunID, "succeeded", summary.SuccessCount(), "stages", len(summary.Results))
	return summary, nil
}

func (p *Pipeline) runStage(ctx context.Context, logger *slog.Logger, req RunRequest, outDir string, card prompt.Card, stage domain.Stage) (domain.StageResult, string) {
	logger = logger.With("stage", stage.Tag)
	result := domain.StageResult{Stage: stage.Tag, Name: stage.Name}
	started := p.now()

	text, err := p.complete(ctx, stage.Tag, card)
	if err == nil {
		path := filepath.Join(outDir, StageFileName(req.ClientName, stage))
		if err = os.WriteFile(path, []byte(text), 0o644); err != nil {
			err = fmt.Errorf("write artifact: %w", err)
		} else {
			result.File = path
		}
	}
	result.Duration = p.now().Sub(started)

	if err != nil {
		result.Status = domain.StageRunFailed
		result.Error = err.Error()
		logger.Error("stage failed", "error", err)
		p.track(ctx, logger, req.ProjectID, stage.Tag, domain.StageFailed, minutes(result.Duration), "")
		return result, ""
	}

	result.Status = domain.StageRunSuccess
	logger.Info("stage completed", "file", result.File, "duration", result.Duration)
	p.track(ctx, logger, req.ProjectID, stage.Tag, domain.StageCompleted, minutes(result.Duration), result.File)
	return result, text
}

func (p *Pipeline) complete(ctx context.Context, tag domain.StageTag, card prompt.Card) (string, error) {
	messages, err := p.prompts.Messages(tag, card)
	if err != nil {
		return "", err
	}
	return retry.Run(ctx, p.executor, "llm.stage_"+string(tag), p.policy, func(ctx context.Context) (string, error) {
		return p.chat.Complete(ctx, ports.ChatRequest{Messages: messages})
	})
}

func (p *Pipeline) track(ctx context.Context, logger *slog.Logger, projectID string, tag domain.StageTag, status domain.StageStatus, durationMinutes int, file string) {
	if p.tracker == nil || projectID == "" {
		return
	}
	outcome, err := p.tracker.UpdateStageProgress(ctx, projectID, tag, status, durationMinutes, file)
	if err != nil {
		logger.Warn("stage progress not recorded", "status", status, "error", err)
		return
	}
	if outcome.Degraded() {
		logger.Warn("stage progress degraded", "status", status, "outcome", outcome.String())
	}
}

func (p *Pipeline) extractQuestions(logger *slog.Logger, outDir, clientName, text string) *domain.ExtractionSummary {
	res := extract.Extract(text)
	if res.Degraded() {
		logger.Warn("extraction degraded", "warnings", res.Warnings)
	}
	summary, err := WriteExtraction(outDir, clientName, res, p.extractLimit)
	if err != nil {
		logger.Warn("write extraction failed", "error", err)
	}
	return summary
}

// ExtractionFile is the JSON document consumed by the pressure test.
type ExtractionFile struct {
	Keywords  []string `json:"keywords"`
	Questions []string `json:"questions"`
}

// ExtractionFileName names the extraction artifact of a client.
func ExtractionFileName(clientName string) string {
	return clientName + "_提取问题.json"
}

// StageFileName names the markdown artifact of a stage.
func StageFileName(clientName string, stage domain.Stage) string {
	return fmt.Sprintf("%s_%s_%s.md", clientName, stage.Tag, stage.Name)
}

// WriteExtraction truncates both lists to limit and writes them next to the
// stage artifacts. The summary is returned even when writing fails.
func WriteExtraction(outDir, clientName string, res extract.Result, limit int) (*domain.ExtractionSummary, error) {
	file := ExtractionFile{
		Keywords:  extract.Limit(res.Keywords, limit),
		Questions: extract.Limit(res.Questions, limit),
	}
	summary := &domain.ExtractionSummary{
		Keywords:  file.Keywords,
		Questions: file.Questions,
		Degraded:  res.Degraded(),
		Warnings:  res.Warnings,
	}
	path := filepath.Join(outDir, ExtractionFileName(clientName))
	if err := writeJSON(path, file); err != nil {
		return summary, err
	}
	summary.File = path
	return summary, nil
}

// CollectResults maps stage tags and the pressure-test key to the artifacts
// found in dir.
func CollectResults(dir, clientName string) map[string]string {
	results := make(map[string]string, len(domain.Stages)+1)
	for _, stage := range domain.Stages {
		if path := filepath.Join(dir, StageFileName(clientName, stage)); fileExists(path) {
			results[string(stage.Tag)] = path
		}
	}
	if path := filepath.Join(dir, PressureReportFile); fileExists(path) {
		results[domain.ResultPressureTest] = path
	}
	return results
}

// Results maps each successful stage of the run to its artifact.
func Results(summary domain.RunSummary) map[string]string {
	results := make(map[string]string, len(summary.Results))
	for _, r := range summary.Results {
		if r.Status == domain.StageRunSuccess && r.File != "" {
			results[string(r.Stage)] = r.File
		}
	}
	return results
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ReadExtraction loads a file written by WriteExtraction.
func ReadExtraction(path string) (ExtractionFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ExtractionFile{}, fmt.Errorf("read extraction: %w", err)
	}
	var file ExtractionFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return ExtractionFile{}, fmt.Errorf("decode extraction %s: %w", path, err)
	}
	return file, nil
}

func writeCardCopy(outDir, clientName string, card prompt.Card) error {
	data, err := card.JSON()
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outDir, clientName+"_输入卡.json"), data, 0o644)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func minutes(d time.Duration) int {
	return int(math.Round(d.Minutes()))
}
