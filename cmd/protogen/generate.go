package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bizmatters/prototype-builder/orchestrator/internal/config"
	"github.com/bizmatters/prototype-builder/orchestrator/internal/generation"
	"github.com/bizmatters/prototype-builder/orchestrator/internal/llm"
	"github.com/bizmatters/prototype-builder/orchestrator/internal/logging"
	"github.com/bizmatters/prototype-builder/orchestrator/internal/metrics"
	"github.com/bizmatters/prototype-builder/orchestrator/internal/models"
	"github.com/bizmatters/prototype-builder/orchestrator/internal/orchestration"
	"github.com/bizmatters/prototype-builder/orchestrator/internal/storage"
	"github.com/bizmatters/prototype-builder/orchestrator/internal/surgical"
)

var generateCmd = &cobra.Command{
	Use:   "generate <prompt>",
	Short: "Generate a prototype and print the lifecycle events",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runGenerate,
}

func runGenerate(cmd *cobra.Command, args []string) error {
	prompt := strings.Join(args, " ")
	runMode := generation.Mode(strings.ToLower(mode))
	if runMode != generation.ModeAgent && runMode != generation.ModeChat {
		return fmt.Errorf("unknown mode %q", mode)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	service, err := buildService(ctx, cfg, logger)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	sink := &printer{out: out}

	if mock {
		result, err := service.Mock(ctx, prompt, "", sink)
		if err != nil {
			return err
		}
		return writeOutput(result.Payload, outputFile)
	}

	project, err := service.CreateProject(ctx, models.CreateProjectRequest{})
	if err != nil {
		return err
	}
	result, err := service.Generate(ctx, project.ID, generation.Request{UserMessage: prompt, Mode: runMode}, sink)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "\nattempts=%d strategy=%s partial=%t\n", result.Attempts, result.Strategy, result.IsPartial)
	for _, w := range result.Warnings {
		fmt.Fprintf(out, "warning: %s\n", w)
	}
	return writeOutput(result.Payload, outputFile)
}

// buildService wires the generation pipeline onto an in-memory project store
func buildService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*orchestration.Service, error) {
	var (
		orchestrator orchestration.Generator     = unavailable{}
		editor       orchestration.EditGenerator = unavailable{}
	)
	if !mock {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		capability, err := llm.NewCapability(ctx, cfg.ProviderConfig())
		if err != nil {
			return nil, err
		}
		guarded := llm.NewBreakerCapability(capability, logger)
		generationMetrics, err := metrics.NewGenerationMetrics()
		if err != nil {
			return nil, err
		}
		orchestrator = generation.NewOrchestrator(guarded, cfg.OrchestratorConfig(), logger,
			generation.WithMetrics(generationMetrics),
			generation.WithTokenCounter(llm.NewTokenCounter(cfg.ModelName())),
		)
		editor = surgical.NewService(guarded, logger)
	}

	return orchestration.NewService(storage.NewMemoryProjects(), orchestrator, editor, cfg.Generation.HistoryDepth, logger), nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level := "warn"
	if verbose {
		level = "debug"
	}
	return logging.New(level, cfg.Logging.Development)
}

func writeOutput(payload *generation.Payload, path string) error {
	if path == "" || payload == nil {
		return nil
	}
	page := fmt.Sprintf(pageTemplate, payload.CSS, payload.HTML, payload.JS)
	if err := os.WriteFile(path, []byte(page), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

const pageTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
%s
</style>
</head>
<body>
%s
<script>
%s
</script>
</body>
</html>
`

// printer renders lifecycle events for a terminal
type printer struct {
	out io.Writer
}

func (p *printer) Emit(event generation.Event) error {
	switch event.Type {
	case generation.EventTextMessageContent:
		_, err := fmt.Fprint(p.out, event.Delta)
		return err
	case generation.EventTextMessageEnd:
		_, err := fmt.Fprintln(p.out)
		return err
	case generation.EventCustom:
		if event.Name != generation.CustomCodeGenerated {
			_, err := fmt.Fprintf(p.out, "[%s] %v\n", event.Name, event.Value)
			return err
		}
		if code, ok := event.Value.(generation.CodeGenerated); ok {
			_, err := fmt.Fprintf(p.out, "[code] html=%d css=%d js=%d bytes\n", len(code.HTML), len(code.CSS), len(code.JS))
			return err
		}
		return nil
	case generation.EventRunError:
		_, err := fmt.Fprintf(p.out, "[error] %s\n", event.Message)
		for _, s := range event.Suggestions {
			fmt.Fprintf(p.out, "  - %s\n", s)
		}
		return err
	case generation.EventTextMessageStart:
		return nil
	default:
		_, err := fmt.Fprintf(p.out, "[%s]\n", event.Type)
		return err
	}
}

// unavailable stands in for the provider in --mock runs
type unavailable struct{}

func (unavailable) Run(context.Context, generation.Request, generation.EventSink) (*generation.Result, error) {
	return nil, fmt.Errorf("provider disabled in mock mode")
}

func (unavailable) Generate(context.Context, surgical.Request) (*surgical.Response, error) {
	return nil, fmt.Errorf("provider disabled in mock mode")
}
