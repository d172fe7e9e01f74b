package main

import (
	"github.com/spf13/cobra"
)

var resumeOpts runFlags

var resumeCmd = &cobra.Command{
	Use:   "resume [job-id]",
	Short: "Resume a job from its checkpoint",
	Long: `Continues a checkpointed job. The configuration must use the same
images, mark kind and energy as the original run; the iteration budget,
seed and schedule may change.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return execute(cmd, &resumeOpts, args[0], true)
	},
}

func init() {
	resumeOpts.register(resumeCmd)
	rootCmd.AddCommand(resumeCmd)
}
