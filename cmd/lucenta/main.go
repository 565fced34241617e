// Package main is the entry point for the Lucenta CLI: a personal
// task-orchestration agent that answers questions, runs gated research
// workflows, and keeps notes and scheduled tasks between sessions.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/InfamousPlatypus/Lucenta/internal/agent"
	"github.com/InfamousPlatypus/Lucenta/internal/bus"
	"github.com/InfamousPlatypus/Lucenta/internal/config"
	"github.com/InfamousPlatypus/Lucenta/internal/llm"
	"github.com/InfamousPlatypus/Lucenta/internal/logging"
	"github.com/InfamousPlatypus/Lucenta/internal/memory"
	"github.com/InfamousPlatypus/Lucenta/internal/orchestrator"
	"github.com/InfamousPlatypus/Lucenta/internal/router"
	"github.com/InfamousPlatypus/Lucenta/internal/scheduler"
	"github.com/InfamousPlatypus/Lucenta/internal/tools"
	"github.com/InfamousPlatypus/Lucenta/internal/trust"
	"github.com/InfamousPlatypus/Lucenta/internal/workers"
	"github.com/InfamousPlatypus/Lucenta/internal/workflow"
)

var version = "dev"

var (
	flagConfig  string
	flagVerbose bool
)

func main() {
	root := &cobra.Command{
		Use:   "lucenta",
		Short: "Lucenta is a personal task-orchestration agent",
		Long: `Lucenta answers questions through a local or hosted model, runs
trust-gated research workflows, remembers notes, and schedules tasks.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default ~/.lucenta/config.yaml)")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newAskCmd(), newChatCmd(), newResearchCmd(), newTasksCmd(), newVersionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds the wired runtime.
type app struct {
	cfg       *config.Config
	orch      *orchestrator.Orchestrator
	boss      *workflow.Boss
	tasks     *scheduler.Store
	runner    *scheduler.Runner
	events    *bus.Bus
	stdin     *bufio.Reader
	closeFunc func()
}

// buildApp wires the runtime from config. interactive controls whether the
// workflow gets a terminal approver.
func buildApp(interactive bool) (*app, error) {
	var cfg *config.Config
	var err error
	if flagConfig != "" {
		cfg, err = config.LoadFromPath(flagConfig)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	setupLogging(cfg)

	defaultProvider, err := llm.NewProvider(cfg.Providers[cfg.DefaultProvider])
	if err != nil {
		return nil, fmt.Errorf("default provider: %w", err)
	}

	routerOpts := []router.Option{
		router.WithPolicy(router.RoutingPolicy{
			CPUThreshold: cfg.Router.CPUThreshold,
			MemThreshold: cfg.Router.MemThreshold,
		}),
	}
	if cfg.StepUpProvider != "" && cfg.StepUpProvider != cfg.DefaultProvider {
		stepUp, err := llm.NewProvider(cfg.Providers[cfg.StepUpProvider])
		if err != nil {
			return nil, fmt.Errorf("step-up provider: %w", err)
		}
		routerOpts = append(routerOpts, router.WithStepUp(stepUp))
	}
	gen := router.New(defaultProvider, routerOpts...)

	notes, err := memory.NewStore(cfg.MemoryDir())
	if err != nil {
		return nil, err
	}
	trustStore, err := trust.NewStore(cfg.TrustFile())
	if err != nil {
		return nil, err
	}
	taskStore, err := scheduler.NewStore(cfg.SchedulerDB())
	if err != nil {
		return nil, err
	}

	events := bus.New()
	searchWorker := workers.NewSearchWorker(nil)
	docWorker := workers.NewDocWorker(nil)
	weather := tools.NewWeatherClient(nil)

	registry := tools.NewRegistry()
	weather.Register(registry)
	registry.Register(&tools.Func{
		ToolName: "search",
		Doc:      "web search; args: {\"query\": \"...\"}",
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			results, err := searchWorker.Search(ctx, tools.StringArg(args, "query"))
			if err != nil {
				return "", err
			}
			return workers.FormatResults(results), nil
		},
	})
	registry.Register(&tools.Func{
		ToolName: "fetch",
		Doc:      "fetch a url and extract its text; args: {\"url\": \"...\"}",
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			doc, err := docWorker.Fetch(ctx, tools.StringArg(args, "url"))
			if err != nil {
				return "", err
			}
			return doc.Text, nil
		},
	})

	loop := agent.NewLoop(gen, registry,
		agent.WithMaxTurns(cfg.Agent.MaxTurns),
		agent.WithWindow(cfg.Agent.ContextWindow),
		agent.WithMemory(notes),
		agent.WithScheduler(taskStore),
	)

	bossOpts := []workflow.BossOption{workflow.WithEvents(events)}
	if cfg.Workflow.StrictValidation {
		bossOpts = append(bossOpts, workflow.WithStrictValidation())
	}
	// One buffered reader owns stdin for the whole session; the approval
	// prompts and the chat loop read lines from the same buffer.
	stdin := bufio.NewReader(os.Stdin)
	if interactive {
		bossOpts = append(bossOpts, workflow.WithApprover(workflow.NewPromptApprover(stdin, os.Stdout)))
	}
	boss := workflow.NewBoss(gen, searchWorker, docWorker, trustStore, cfg.Workflow.ReportsDir, bossOpts...)

	orch := orchestrator.New(weather, boss, loop, orchestrator.WithReflection(notes, gen))

	runner := scheduler.NewRunner(taskStore, cfg.Scheduler.PollInterval, func(ctx context.Context, task *scheduler.Task) error {
		reply, err := orch.Handle(ctx, task.Description)
		if err != nil {
			return err
		}
		fmt.Printf("\n[reminder] %s\n> %s\n", task.Description, reply.Text)
		return nil
	})

	return &app{
		cfg:    cfg,
		orch:   orch,
		boss:   boss,
		tasks:  taskStore,
		runner: runner,
		events: events,
		stdin:  stdin,
		closeFunc: func() {
			events.Close()
			taskStore.Close()
		},
	}, nil
}

func setupLogging(cfg *config.Config) {
	level := cfg.LogLevel
	if flagVerbose {
		level = "debug"
	}
	logging.SetGlobal(logging.New(&logging.Config{
		Level:    logging.ParseLevel(level),
		FilePath: cfg.LogFile,
		Colored:  true,
		ShowTime: true,
	}))

	// zerolog (memory, scheduler) goes to a file, keeping the terminal
	// for conversation output.
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if flagVerbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	logPath := filepath.Join(cfg.DataDir, "lucenta.log")
	if f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644); err == nil {
		zlog.Logger = zerolog.New(zerolog.ConsoleWriter{Out: f, NoColor: true}).With().Timestamp().Logger()
	}
}

func newAskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <message>",
		Short: "Ask a single question and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(true)
			if err != nil {
				return err
			}
			defer a.closeFunc()

			reply, err := a.orch.Handle(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Println(reply.Text)
			return nil
		},
	}
}

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(true)
			if err != nil {
				return err
			}
			defer a.closeFunc()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// Due reminders fire into the terminal while chatting.
			go a.runner.Run(ctx)

			a.events.Subscribe(bus.TypeStep, func(ev bus.Event) {
				fmt.Printf("  … %s\n", ev.Message)
			})

			fmt.Println("Lucenta ready. Type a message, or 'exit' to quit.")
			for {
				fmt.Print("\n> ")
				line, err := a.stdin.ReadString('\n')
				if err != nil && line == "" {
					return nil
				}
				line = strings.TrimSpace(line)
				if line == "" {
					continue
				}
				if line == "exit" || line == "quit" {
					return nil
				}

				reply, err := a.orch.Handle(ctx, line)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					fmt.Printf("error: %v\n", err)
					continue
				}
				fmt.Println(reply.Text)
			}
		},
	}
}

func newResearchCmd() *cobra.Command {
	var deep bool
	cmd := &cobra.Command{
		Use:   "research <goal>",
		Short: "Run the research workflow for a goal",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(true)
			if err != nil {
				return err
			}
			defer a.closeFunc()

			a.events.Subscribe("", func(ev bus.Event) {
				if ev.Type == bus.TypeStep || ev.Type == bus.TypePlan {
					fmt.Printf("  … %s\n", ev.Message)
				}
			})

			depth := workflow.DepthStandard
			if deep {
				depth = workflow.DepthDeep
			}

			outcome, err := a.boss.Run(cmd.Context(), strings.Join(args, " "), depth)
			if err != nil {
				return err
			}
			fmt.Println(outcome.Summary)
			if outcome.ReportPath != "" {
				fmt.Println("\nFull report:", outcome.ReportPath)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&deep, "deep", false, "produce a longer plan (7+ steps)")
	return cmd
}

func newTasksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List scheduled tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(false)
			if err != nil {
				return err
			}
			defer a.closeFunc()

			pending, err := a.tasks.Pending()
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				fmt.Println("No scheduled tasks.")
				return nil
			}
			for _, t := range pending {
				fmt.Printf("%s  %s  %s\n", t.ID[:8], t.RunAt.Format("2006-01-02 15:04"), t.Description)
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("lucenta", version)
		},
	}
}
