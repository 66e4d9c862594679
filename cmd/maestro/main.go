// Command maestro runs, validates and generates LLM workflow documents
// against a local Ollama server.
//
// Usage:
//
//	maestro [flags] run <workflow> [-prompt TEXT] [-stream]
//	maestro [flags] plan <request> [-complexity simple|complexe]
//	maestro [flags] validate <file>
//	maestro [flags] list
//	maestro [flags] models
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nebuai/maestro/pkg/maestro"
	"github.com/nebuai/maestro/pkg/maestro/config"
	"github.com/nebuai/maestro/pkg/maestro/event"
	"github.com/nebuai/maestro/pkg/maestro/llm"
	"github.com/nebuai/maestro/pkg/maestro/planner"
	"github.com/nebuai/maestro/pkg/maestro/registry"
	"github.com/nebuai/maestro/pkg/maestro/store"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "maestro:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	global := flag.NewFlagSet("maestro", flag.ExitOnError)
	configPath := global.String("config", "", "settings file (yaml or json)")
	host := global.String("host", "", "Ollama host (overrides config)")
	model := global.String("model", "", "globally selected model (overrides config)")
	dir := global.String("dir", "", "workflow directory (overrides config)")
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		global.Usage()
		return fmt.Errorf("missing command")
	}

	settings, err := loadSettings(*configPath)
	if err != nil {
		return err
	}
	if *host != "" {
		settings.OllamaHost = *host
	}
	if *model != "" {
		settings.DefaultModel = *model
	}
	if *dir != "" {
		settings.WorkflowDir = *dir
	}

	logger := newLogger(settings.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, rest := global.Arg(0), global.Args()[1:]
	switch cmd {
	case "run":
		return cmdRun(ctx, settings, logger, rest)
	case "plan":
		return cmdPlan(ctx, settings, logger, rest)
	case "validate":
		return cmdValidate(rest)
	case "list":
		return cmdList(settings)
	case "models":
		return cmdModels(ctx, settings)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func loadSettings(path string) (config.Settings, error) {
	if path == "" {
		var s config.Settings
		s.Normalize()
		return s, nil
	}
	return config.FromFile(path)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func openStore(settings config.Settings) (store.Store, error) {
	if settings.StorePath != "" {
		return store.NewSQLiteStore(settings.StorePath)
	}
	return store.NewFileStore(settings.WorkflowDir)
}

// newBus creates the event bus printing run progress to stdout.
// Streamed chunks print as they arrive; everything else is quiet detail.
func newBus() *event.LocalBus {
	bus := event.NewBus(event.DefaultBusConfig)
	bus.Subscribe([]event.Type{event.TypeNodeChunk}, func(evt event.Event) {
		fmt.Print(evt.Content)
	})
	bus.Subscribe([]event.Type{event.TypeNodeProgress}, func(evt event.Event) {
		fmt.Fprintf(os.Stderr, "  [%s] %s\n", evt.NodeTitle, evt.Content)
	})
	return bus
}

func newEngine(settings config.Settings, logger *slog.Logger, bus event.Bus) *maestro.Engine {
	client := llm.NewOllama(settings.OllamaHost)
	return maestro.NewEngine(client,
		maestro.WithLogger(logger),
		maestro.WithBus(bus),
		maestro.WithDefaultModel(settings.DefaultModel),
	)
}

func cmdRun(ctx context.Context, settings config.Settings, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	prompt := fs.String("prompt", "", "replace the first text input's value")
	stream := fs.Bool("stream", false, "stream LLM responses")
	strict := fs.Bool("strict", false, "fail on cyclic workflows instead of repairing")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: maestro run <workflow>")
	}

	st, err := openStore(settings)
	if err != nil {
		return err
	}
	defer st.Close()

	data, err := st.Load(fs.Arg(0))
	if err != nil {
		return err
	}
	g, err := maestro.Parse(data)
	if err != nil {
		return err
	}

	bus := newBus()
	defer bus.Close()
	engine := newEngine(settings, logger, bus)

	opts := []maestro.RunOption{
		maestro.WithModel(settings.DefaultModel),
		maestro.WithWorkflowName(fs.Arg(0)),
	}
	if *prompt != "" {
		opts = append(opts, maestro.WithPrompt(*prompt))
	}
	if *stream {
		opts = append(opts, maestro.WithStreaming())
	}
	if *strict {
		opts = append(opts, maestro.WithStrictSchedule())
	}

	result, err := engine.Run(ctx, g, opts...)
	if err != nil {
		return err
	}
	if *stream {
		fmt.Println()
	}

	for _, out := range result.Outputs {
		fmt.Printf("## %s\n\n%s\n\n", out.SourceTitle, out.Content)
	}
	logger.Info("run finished",
		slog.String("run_id", result.RunID),
		slog.Duration("duration", result.Duration),
		slog.Bool("repaired", result.Repaired))
	return nil
}

func cmdPlan(ctx context.Context, settings config.Settings, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("plan", flag.ExitOnError)
	complexity := fs.String("complexity", "", "plan size: simple or complexe")
	noRun := fs.Bool("no-run", false, "generate and save the plan without executing it")
	noBeautify := fs.Bool("no-beautify", false, "skip the final report formatting pass")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: maestro plan <request>")
	}
	if settings.DefaultModel == "" {
		return fmt.Errorf("plan requires a model (-model or config)")
	}

	st, err := openStore(settings)
	if err != nil {
		return err
	}
	defer st.Close()

	bus := newBus()
	defer bus.Close()
	engine := newEngine(settings, logger, bus)

	popts := []planner.Option{
		planner.WithStore(st),
		planner.WithLogger(logger),
	}
	if *noBeautify {
		popts = append(popts, planner.WithoutBeautifier())
	}
	p := planner.New(llm.NewOllama(settings.OllamaHost), engine, popts...)

	req := planner.Request{
		Prompt:     fs.Arg(0),
		Model:      settings.DefaultModel,
		Complexity: planner.Complexity(*complexity),
	}

	if *noRun {
		_, name, err := p.Plan(ctx, req)
		if err != nil {
			return err
		}
		fmt.Println("saved:", name)
		return nil
	}

	report, err := p.PlanAndRun(ctx, req)
	if err != nil {
		return err
	}
	fmt.Println(report.Text)
	logger.Info("plan executed", slog.String("workflow", report.WorkflowName))
	return nil
}

func cmdValidate(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: maestro validate <file>")
	}
	g, err := maestro.LoadFile(args[0])
	if err != nil {
		return err
	}

	problems := maestro.Validate(g, registry.Builtin())
	if len(problems) == 0 {
		fmt.Println("valide")
		return nil
	}
	for _, p := range problems {
		fmt.Println("-", p)
	}
	return fmt.Errorf("%d problème(s)", len(problems))
}

func cmdList(settings config.Settings) error {
	st, err := openStore(settings)
	if err != nil {
		return err
	}
	defer st.Close()

	infos, err := st.List()
	if err != nil {
		return err
	}
	for _, info := range infos {
		fmt.Printf("%s\t%d octets\t%s\n", info.Name, info.Size, info.Timestamp.Format("2006-01-02 15:04"))
	}
	return nil
}

func cmdModels(ctx context.Context, settings config.Settings) error {
	client := llm.NewOllama(settings.OllamaHost)
	models, err := client.ListModels(ctx)
	if err != nil {
		return err
	}
	for _, m := range models {
		fmt.Println(m)
	}
	return nil
}
