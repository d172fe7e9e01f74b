package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cwbudde/markedpoint/internal/config"
	"github.com/cwbudde/markedpoint/internal/mark"
	"github.com/cwbudde/markedpoint/internal/pipeline"
)

// runFlags are shared by run, resume and tune. Flags override the
// configuration file only when set.
type runFlags struct {
	configPath string
	images     []string
	seed       uint64
	iterations int
	chains     int
	backend    string
	storePath  string
	outPath    string
	trace      bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "Run configuration file (YAML or JSON)")
	cmd.Flags().StringSliceVar(&f.images, "image", nil, "Input image path; repeat for a z-stack")
	cmd.Flags().Uint64Var(&f.seed, "seed", 0, "Random seed")
	cmd.Flags().IntVar(&f.iterations, "iterations", 0, "Maximum non-null iterations")
	cmd.Flags().IntVar(&f.chains, "chains", 0, "Number of independent chains")
	cmd.Flags().StringVar(&f.backend, "store-backend", "", "Checkpoint backend (fs, sqlite)")
	cmd.Flags().StringVar(&f.storePath, "store-path", "", "Checkpoint directory (fs) or database file (sqlite)")
	cmd.Flags().StringVarP(&f.outPath, "out", "o", "", "Write the final marks as JSON to this path")
	cmd.Flags().BoolVar(&f.trace, "trace", true, "Write a JSONL trace next to the checkpoints")
}

// load resolves defaults, file, environment and flags, in that order.
func (f *runFlags) load(cmd *cobra.Command) (config.RunConfig, error) {
	cfg := config.Default()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	config.ApplyEnv(&cfg)

	flags := cmd.Flags()
	if flags.Changed("image") {
		cfg.Image.Paths = f.images
	}
	if flags.Changed("seed") {
		cfg.Seed = f.seed
	}
	if flags.Changed("iterations") {
		cfg.Termination.MaxIterations = f.iterations
	}
	if flags.Changed("chains") {
		cfg.Chains = f.chains
	}
	if flags.Changed("store-backend") {
		cfg.Store.Backend = f.backend
	}
	if flags.Changed("store-path") {
		cfg.Store.Path = f.storePath
		cfg.Store.Dir = f.storePath
	}
	return cfg, cfg.Validate()
}

var (
	runOpts  runFlags
	runJobID string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an optimization",
	Long: `Runs one optimization job: builds the energy and kernels from the
configuration, anneals the configured number of chains and checkpoints the
best one. Interrupting the run saves the current state for resume.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		id := runJobID
		if id == "" {
			id = uuid.New().String()
		}
		return execute(cmd, &runOpts, id, false)
	},
}

func init() {
	runOpts.register(runCmd)
	runCmd.Flags().StringVar(&runJobID, "job-id", "", "Job ID for checkpoints (default: random UUID)")
	rootCmd.AddCommand(runCmd)
}

// execute runs or resumes the job id.
func execute(cmd *cobra.Command, f *runFlags, id string, resume bool) error {
	cfg, err := f.load(cmd)
	if err != nil {
		return err
	}

	cp, err := pipeline.Build(cfg)
	if err != nil {
		return err
	}
	st, release, err := pipeline.OpenStore(cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint store: %w", err)
	}
	defer func() {
		if err := release(); err != nil {
			slog.Warn("Failed to close checkpoint store", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	job := pipeline.Job{
		ID:         id,
		Components: cp,
		Store:      st,
		Resume:     resume,
	}
	if f.trace {
		job.TraceDir = cfg.Store.Dir
	}

	slog.Info("Starting optimization",
		"job_id", id,
		"resume", resume,
		"energy", cfg.Energy.Name(),
		"mark_kind", cfg.Marks.Kind,
		"chains", cfg.Chains,
		"max_iterations", cfg.Termination.MaxIterations,
	)

	res, err := pipeline.Execute(ctx, job)
	if err != nil {
		return err
	}
	best := res.Best.Result

	if f.outPath != "" {
		data, err := json.MarshalIndent(mark.Records(best.Final.Marks()), "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(f.outPath, data, 0644); err != nil {
			return fmt.Errorf("failed to write marks: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Job:          %s\n", id)
	fmt.Fprintf(out, "Stopped:      %s\n", best.Reason)
	fmt.Fprintf(out, "Iterations:   %d (%d null)\n", res.StartIteration+best.Iterations, best.NullIterations)
	fmt.Fprintf(out, "Acceptance:   %.1f%%\n", 100*best.AcceptanceRate())
	fmt.Fprintf(out, "Energy:       %.6f -> %.6f (best %.6f)\n", best.InitialEnergy, best.FinalEnergy, best.BestEnergy)
	fmt.Fprintf(out, "Marks:        %d\n", best.Final.Len())
	fmt.Fprintf(out, "Elapsed:      %s\n", best.Elapsed)
	if len(res.Chains) > 1 {
		fmt.Fprintf(out, "Best chain:   %d of %d\n", res.Best.Chain, len(res.Chains))
	}
	return nil
}
