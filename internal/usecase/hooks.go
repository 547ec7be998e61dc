package usecase

import (
	"context"
	"log/slog"

	"GeoTool/internal/domain"
	"GeoTool/internal/retry"
)

// Hooks runs configured external commands after a run.
type Hooks struct {
	executor *retry.Executor
	policy   retry.Policy
	logger   *slog.Logger
}

// NewHooks runs each hook command through executor under policy.
func NewHooks(executor *retry.Executor, policy retry.Policy, logger *slog.Logger) *Hooks {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if executor == nil {
		executor = retry.NewExecutor(logger)
	}
	return &Hooks{executor: executor, policy: policy, logger: logger}
}

// Run executes every command in dir, in order. A failing command is recorded
// in the outcome and the remaining ones still run.
func (h *Hooks) Run(ctx context.Context, event, dir string, commands [][]string) domain.Outcome {
	var outcome domain.Outcome
	for _, argv := range commands {
		if len(argv) == 0 {
			continue
		}
		cmd := retry.Command{Name: argv[0], Args: argv[1:], Dir: dir}
		res, err := h.executor.RunCommand(ctx, h.policy, cmd)
		if err != nil {
			h.logger.Warn("hook failed", "event", event, "command", cmd.String(), "error", err)
			outcome.Degrade("hook:"+cmd.String(), err.Error())
			continue
		}
		h.logger.Info("hook finished", "event", event, "command", cmd.String(), "stdout_bytes", len(res.Stdout))
	}
	return outcome
}
