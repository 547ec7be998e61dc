package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"GeoTool/internal/config"
	"GeoTool/internal/domain"
	"GeoTool/internal/infrastructure/llm"
	"GeoTool/internal/infrastructure/scheduler"
	"GeoTool/internal/infrastructure/storage"
	"GeoTool/internal/logging"
	"GeoTool/internal/platform"
	"GeoTool/internal/ports"
	"GeoTool/internal/prompt"
	"GeoTool/internal/retry"
	"GeoTool/internal/usecase"
)

// Application wires configs to use cases. Backend adapters are built on
// first use so commands that never touch a platform work without credentials.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	executor *retry.Executor
	factory  *platform.Factory
	history  *storage.SQLiteHistory

	mu          sync.Mutex
	platform    string
	integration *usecase.Integration
}

// New builds the application. The run history is opened when configured;
// failing to open it is an error.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.NewWithWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	}

	executor := retry.NewExecutor(baseLogger.With("component", "retry"))
	a := &Application{
		cfg:      cfg,
		logger:   baseLogger,
		executor: executor,
		platform: cfg.Platform.Default,
		factory:  platform.NewFactory(cfg.Platform, executor, cfg.Retry.Backend.Policy(), baseLogger.With("component", "platform")),
	}

	if cfg.History.Path != "" {
		h, err := storage.OpenSQLiteHistory(ctx, cfg.History.Path)
		if err != nil {
			return nil, err
		}
		a.history = h
	}
	return a, nil
}

// Close releases the run history.
func (a *Application) Close() error {
	if a.history == nil {
		return nil
	}
	return a.history.Close()
}

// Config returns the loaded configuration.
func (a *Application) Config() config.Config { return a.cfg }

// Logger returns the root logger.
func (a *Application) Logger() *slog.Logger { return a.logger }

// History returns nil when the history is disabled.
func (a *Application) History() ports.RunHistory {
	if a.history == nil {
		return nil
	}
	return a.history
}

// Integration builds the integration manager on first use.
func (a *Application) Integration() (*usecase.Integration, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.integration != nil {
		return a.integration, nil
	}

	p, err := config.ParsePlatform(a.platform)
	if err != nil {
		return nil, err
	}
	m, err := usecase.NewIntegration(a.factory, p, a.logger.With("component", "integration"))
	if err != nil {
		return nil, err
	}
	a.integration = m
	return m, nil
}

// UsePlatform selects the backend. Before the integration manager exists this
// only changes which platform it starts on.
func (a *Application) UsePlatform(p domain.Platform) error {
	a.mu.Lock()
	m := a.integration
	if m == nil {
		a.platform = string(p)
	}
	a.mu.Unlock()

	if m == nil {
		return nil
	}
	return m.SwitchPlatform(p)
}

// Pipeline builds the stage pipeline. With track set, stage progress is
// reported through the integration manager.
func (a *Application) Pipeline(track bool) (*usecase.Pipeline, error) {
	renderer, err := prompt.NewRenderer(a.cfg.Output.TemplatesDir, a.cfg.LLM.SystemPrompt)
	if err != nil {
		return nil, err
	}

	deps := usecase.PipelineDeps{
		Chat:         llm.NewClient(a.cfg.LLM, a.logger),
		Prompts:      renderer,
		Executor:     a.executor,
		Policy:       a.cfg.Retry.LLM.Policy(),
		OutputRoot:   a.cfg.Output.Dir,
		ExtractLimit: a.cfg.Output.ExtractLimit,
		Logger:       a.logger.With("component", "pipeline"),
	}
	if h := a.History(); h != nil {
		deps.History = h
	}
	if track {
		m, err := a.Integration()
		if err != nil {
			return nil, err
		}
		deps.Tracker = m
	}
	return usecase.NewPipeline(deps), nil
}

// PressureTester builds the tester over every configured engine. With record
// set, results are also stored on the collaboration backend.
func (a *Application) PressureTester(record bool) (*usecase.PressureTester, error) {
	engines := make([]usecase.Engine, 0, len(a.cfg.Engines))
	for _, cfg := range a.cfg.Engines {
		engine := usecase.Engine{Name: cfg.Name, Label: cfg.Label()}
		if cfg.APIKey == "" {
			engine.Err = &domain.ConfigurationError{Field: fmt.Sprintf("engines.%s.apiKey", cfg.Name), Reason: "no API key configured"}
		} else {
			engine.Chat = llm.NewEngineClient(cfg, a.cfg.LLM.Timeout, a.logger)
		}
		engines = append(engines, engine)
	}

	deps := usecase.PressureDeps{
		Engines:  engines,
		Executor: a.executor,
		Policy:   a.cfg.Retry.LLM.Policy(),
		Logger:   a.logger.With("component", "pressure"),
	}
	if h := a.History(); h != nil {
		deps.History = h
	}
	if record {
		m, err := a.Integration()
		if err != nil {
			return nil, err
		}
		deps.Recorder = m
	}
	return usecase.NewPressureTester(deps), nil
}

// Monitor re-runs the pressure test for req every interval, falling back to
// the configured interval when every is not positive.
func (a *Application) Monitor(tester *usecase.PressureTester, req usecase.PressureRequest, every time.Duration) *usecase.Monitor {
	if every <= 0 {
		every = a.cfg.Monitor.Interval
	}
	driver := scheduler.NewIntervalScheduler(every)
	return usecase.NewMonitor(driver, tester, req, a.logger.With("component", "monitor"))
}

// Hooks returns the runner for the configured post-run commands.
func (a *Application) Hooks() *usecase.Hooks {
	return usecase.NewHooks(a.executor, a.cfg.Retry.Command.Policy(), a.logger.With("component", "hooks"))
}
