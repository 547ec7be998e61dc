package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"GeoTool/internal/domain"
	"GeoTool/internal/ports"
	"GeoTool/internal/report"
	"GeoTool/internal/retry"
)

const (
	PressureReportFile = "压力测试报告.md"
	PressureResultFile = "压力测试结果.json"
)

// Engine is one AI engine queried by the pressure test. Err marks an engine
// that could not be configured; it is reported instead of queried.
type Engine struct {
	Name  string
	Label string
	Chat  ports.ChatClient
	Err   error
}

// PressureRecorder stores pressure results on the collaboration backend.
type PressureRecorder interface {
	AddPressureTestResult(ctx context.Context, rec domain.PressureTestRecord) (string, error)
}

// PressureDeps wires the pressure tester.
type PressureDeps struct {
	Engines  []Engine
	Executor *retry.Executor
	Policy   retry.Policy
	History  ports.RunHistory
	Recorder PressureRecorder
	Logger   *slog.Logger
}

// PressureTester asks every engine the extracted questions and scores brand
// mentions in the answers.
type PressureTester struct {
	engines  []Engine
	executor *retry.Executor
	policy   retry.Policy
	history  ports.RunHistory
	recorder PressureRecorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewPressureTester fills unset dependencies with defaults.
func NewPressureTester(deps PressureDeps) *PressureTester {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	executor := deps.Executor
	if executor == nil {
		executor = retry.NewExecutor(logger)
	}
	return &PressureTester{
		engines:  deps.Engines,
		executor: executor,
		policy:   deps.Policy,
		history:  deps.History,
		recorder: deps.Recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// PressureRequest describes one pressure test.
type PressureRequest struct {
	ClientName string
	// Keywords are the brand terms searched for in answers.
	Keywords  []string
	Questions []string
	// Engines restricts the run to these engine names; empty means all.
	Engines   []string
	OutputDir string
	ProjectID string
}

// PressureRun is the outcome of PressureTester.Run.
type PressureRun struct {
	Result     domain.PressureResult
	ReportFile string
	ResultFile string
	RecordID   string
	Outcome    domain.Outcome
}

// Run queries engines one after another and questions one after another. A
// failing question is recorded and the run goes on; only cancellation and
// invalid input stop it.
func (t *PressureTester) Run(ctx context.Context, req PressureRequest) (PressureRun, error) {
	keywords := nonEmpty(req.Keywords)
	questions := nonEmpty(req.Questions)
	switch {
	case strings.TrimSpace(req.ClientName) == "":
		return PressureRun{}, &domain.ConfigurationError{Field: "client", Reason: "must not be empty"}
	case len(keywords) == 0:
		return PressureRun{}, &domain.ConfigurationError{Field: "keywords", Reason: "at least one brand keyword is required"}
	case len(questions) == 0:
		return PressureRun{}, &domain.ConfigurationError{Field: "questions", Reason: "at least one question is required"}
	}

	engines, err := t.selectEngines(req.Engines)
	if err != nil {
		return PressureRun{}, err
	}

	logger := t.logger.With("client", req.ClientName)
	res := domain.PressureResult{
		ClientName: req.ClientName,
		Keywords:   keywords,
		Questions:  questions,
		TestedAt:   t.now(),
	}

	for _, engine := range engines {
		result, err := t.askEngine(ctx, logger, engine, keywords, questions)
		if err != nil {
			return PressureRun{}, err
		}
		res.Engines = append(res.Engines, result)
	}
	res.Overall = domain.Measure(res.Answers())
	res.Trend = domain.TrendFlat

	var run PressureRun
	if t.history != nil {
		prev, err := t.history.LastPressureTest(ctx, req.ClientName)
		if err != nil {
			logger.Warn("load previous pressure test failed", "error", err)
			run.Outcome.Degrade("last_pressure_test", err.Error())
		} else if prev != nil {
			score := prev.AvgScore
			res.Previous = &score
			res.Trend = domain.TrendBetween(prev.AvgScore, res.Overall.AvgScore)
		}
	}
	run.Result = res

	if req.OutputDir != "" {
		if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
			return run, fmt.Errorf("create output dir: %w", err)
		}
		run.ReportFile = filepath.Join(req.OutputDir, PressureReportFile)
		if err := os.WriteFile(run.ReportFile, []byte(report.Pressure(res)), 0o644); err != nil {
			return run, fmt.Errorf("write pressure report: %w", err)
		}
		run.ResultFile = filepath.Join(req.OutputDir, PressureResultFile)
		if err := writeJSON(run.ResultFile, res); err != nil {
			return run, err
		}
	}

	rec := domain.PressureTestRecord{
		ProjectID:    req.ProjectID,
		TestedAt:     res.TestedAt,
		Engines:      engineLabels(res.Engines),
		KeywordCount: len(keywords),
		AvgScore:     res.Overall.AvgScore,
		MentionRate:  res.Overall.MentionRate,
		Trend:        res.Trend,
		ReportFile:   run.ReportFile,
	}
	if t.history != nil {
		if err := t.history.SavePressureTest(ctx, req.ClientName, rec); err != nil {
			logger.Warn("save pressure test failed", "error", err)
			run.Outcome.Degrade("save_pressure_test", err.Error())
		}
	}
	if t.recorder != nil && req.ProjectID != "" {
		id, err := t.recorder.AddPressureTestResult(ctx, rec)
		if err != nil {
			logger.Warn("record pressure test on backend failed", "project_id", req.ProjectID, "error", err)
			run.Outcome.Degrade("add_pressure_test_record", err.Error())
		}
		run.RecordID = id
	}

	logger.Info("pressure test finished",
		"engines", len(res.Engines),
		"questions", len(questions),
		"avg_score", res.Overall.AvgScore,
		"mention_rate", res.Overall.MentionRate,
		"trend", res.Trend)
	return run, nil
}

func (t *PressureTester) selectEngines(names []string) ([]Engine, error) {
	if len(t.engines) == 0 {
		return nil, &domain.ConfigurationError{Field: "engines", Reason: "no pressure-test engine configured"}
	}
	if len(names) == 0 {
		return t.engines, nil
	}
	out := make([]Engine, 0, len(names))
	for _, name := range names {
		idx := slices.IndexFunc(t.engines, func(e Engine) bool { return e.Name == name })
		if idx < 0 {
			return nil, &domain.ConfigurationError{Field: "engines", Reason: fmt.Sprintf("unknown engine %q", name)}
		}
		out = append(out, t.engines[idx])
	}
	return out, nil
}

func (t *PressureTester) askEngine(ctx context.Context, logger *slog.Logger, engine Engine, keywords, questions []string) (domain.EngineResult, error) {
	result := domain.EngineResult{Engine: engine.Name, Name: engine.Label}
	if result.Name == "" {
		result.Name = engine.Name
	}
	logger = logger.With("engine", engine.Name)

	if engine.Err != nil || engine.Chat == nil {
		err := engine.Err
		if err == nil {
			err = errors.New("no chat client")
		}
		logger.Warn("engine unavailable", "error", err)
		result.Error = err.Error()
		return result, nil
	}

	for i, question := range questions {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		logger.Debug("probing", "question", i+1, "of", len(questions))

		answer := domain.EngineAnswer{Question: question}
		text, err := retry.Run(ctx, t.executor, "pressure."+engine.Name, t.policy, func(ctx context.Context) (string, error) {
			return engine.Chat.Complete(ctx, ports.ChatRequest{Messages: []ports.ChatMessage{{Role: "user", Content: question}}})
		})
		answer.Timestamp = t.now()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, ctxErr
			}
			logger.Warn("question failed", "question", i+1, "error", err)
			answer.Error = err.Error()
			result.Answers = append(result.Answers, answer)
			continue
		}

		answer.Answer = text
		answer.Mentions = domain.Mentions(text, keywords)
		answer.Position = domain.LocateMention(text, keywords)
		answer.AnyMention = answer.Position != domain.PositionMissing
		answer.Score = answer.Position.Score()
		result.Answers = append(result.Answers, answer)
	}
	return result, nil
}

func engineLabels(results []domain.EngineResult) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Name)
	}
	return out
}

func nonEmpty(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
