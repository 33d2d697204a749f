package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jriewerts/metalus/internal/config"
	"github.com/jriewerts/metalus/internal/model"
	"github.com/jriewerts/metalus/internal/plan"
	"github.com/jriewerts/metalus/internal/resolver"
	"github.com/jriewerts/metalus/internal/steps"

	// Blank imports trigger each built-in step package's init()
	// self-registration onto steps.Default.
	_ "github.com/jriewerts/metalus/internal/steps/flow"
	_ "github.com/jriewerts/metalus/internal/steps/jsonstep"
	_ "github.com/jriewerts/metalus/internal/steps/text"
)

type runOptions struct {
	ConfigPath string
	Workers    int
}

func newRunCmd(log zerolog.Logger) *cobra.Command {
	opts := runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run an Application document to a terminal plan state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApplication(cmd.Context(), log, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to the Application JSON document")
	cmd.Flags().IntVar(&opts.Workers, "workers", 4, "maximum executions dispatched concurrently within a plan level")
	cmd.MarkFlagRequired("config") //nolint:errcheck

	return cmd
}

func runApplication(ctx context.Context, log zerolog.Logger, opts runOptions) error {
	raw, err := os.ReadFile(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("read application config: %w", err)
	}

	app, err := config.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse application config: %w", err)
	}

	for _, e := range app.Executions {
		if len(e.StepPackages) == 0 {
			e.StepPackages = []string{steps.PackageName}
		}
	}

	mgr := libraryManager(app.Pipelines)
	res := resolver.New(steps.Default)
	res.Logger = log.With().Str("component", "resolver").Logger()

	sched := plan.New(steps.Default, res, mgr, opts.Workers)

	builtPlan, err := plan.Build(app.Executions)
	if err != nil {
		return fmt.Errorf("build plan: %w", err)
	}

	outcomes, err := sched.Run(ctx, builtPlan, app.Globals)
	if err != nil {
		return fmt.Errorf("run plan: %w", err)
	}

	for id, o := range outcomes {
		log.Info().
			Str("execution", id).
			Str("state", string(o.State)).
			Str("last_step", o.LastStepID).
			Msg("execution finished")
	}

	switch builtPlan.Outcome(outcomes) {
	case plan.ExecutionComplete:
		return nil
	case plan.ExecutionPaused:
		return fmt.Errorf("plan paused")
	default:
		return fmt.Errorf("plan errored")
	}
}

type libraryManager map[string]*model.Pipeline

func (m libraryManager) Get(id string) (*model.Pipeline, bool) {
	p, ok := m[id]
	return p, ok
}
