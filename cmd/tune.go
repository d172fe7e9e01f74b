package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cwbudde/markedpoint/internal/config"
	"github.com/cwbudde/markedpoint/internal/pipeline"
)

var (
	tuneOpts   runFlags
	tuneBudget = pipeline.DefaultTuneBudget()
	tuneWrite  string
)

var tuneCmd = &cobra.Command{
	Use:   "tune",
	Short: "Search an annealing schedule with Mayfly",
	Long: `Runs short pilot chains for candidate geometric schedules and searches
the initial temperature and cooling rate that reach the lowest energy.`,
	Args: cobra.NoArgs,
	RunE: runTune,
}

func init() {
	tuneOpts.register(tuneCmd)
	tuneCmd.Flags().IntVar(&tuneBudget.PilotIterations, "pilot-iterations", tuneBudget.PilotIterations, "Iterations per pilot chain")
	tuneCmd.Flags().IntVar(&tuneBudget.Iterations, "tune-iterations", tuneBudget.Iterations, "Mayfly iterations")
	tuneCmd.Flags().IntVar(&tuneBudget.Population, "population", tuneBudget.Population, "Mayfly population size")
	tuneCmd.Flags().StringVar(&tuneWrite, "write", "", "Write the configuration with the tuned schedule to this path")
	rootCmd.AddCommand(tuneCmd)
}

func runTune(cmd *cobra.Command, args []string) error {
	cfg, err := tuneOpts.load(cmd)
	if err != nil {
		return err
	}
	cp, err := pipeline.Build(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := pipeline.Tune(ctx, cp, tuneBudget)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Initial temperature: %g\n", res.Schedule.Initial)
	fmt.Fprintf(out, "Cooling rate:        %g\n", res.Schedule.Rate)
	fmt.Fprintf(out, "Pilot energy:        %.6f\n", res.Energy)
	fmt.Fprintf(out, "Pilot runs:          %d\n", res.Evaluations)

	if tuneWrite == "" {
		return nil
	}
	cfg.Schedule = config.ScheduleConfig{
		Type:    config.ScheduleGeometric,
		Initial: res.Schedule.Initial,
		Rate:    res.Schedule.Rate,
		Floor:   res.Schedule.Floor,
	}
	data, err := cfg.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(tuneWrite, data, 0644); err != nil {
		return fmt.Errorf("failed to write configuration: %w", err)
	}
	fmt.Fprintf(out, "Wrote %s\n", tuneWrite)
	return nil
}
