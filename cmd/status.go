package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL string
)

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Query server status or specific job",
	Long: `Queries the server for job status information.
If no job-id is provided, lists all jobs.
If job-id is provided, shows detailed status for that job.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

// jobStatus is the subset of the status response shown to users.
type jobStatus struct {
	ID             string  `json:"id"`
	State          string  `json:"state"`
	Iterations     int     `json:"iterations"`
	AcceptanceRate float64 `json:"acceptanceRate"`
	Energy         float64 `json:"energy"`
	BestEnergy     float64 `json:"bestEnergy"`
	InitialEnergy  float64 `json:"initialEnergy"`
	Temperature    float64 `json:"temperature"`
	Marks          int     `json:"marks"`
	StopReason     string  `json:"stopReason"`
	Elapsed        float64 `json:"elapsed"`
	Rate           float64 `json:"iterationsPerSecond"`
	Error          string  `json:"error"`
	Config         struct {
		Energy struct {
			Terms []struct {
				Type string `json:"type"`
			} `json:"terms"`
		} `json:"energy"`
		Marks struct {
			Kind string `json:"kind"`
		} `json:"marks"`
		Image struct {
			Paths []string `json:"paths"`
		} `json:"image"`
		Termination struct {
			MaxIterations int `json:"max_iterations"`
		} `json:"termination"`
	} `json:"config"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if len(args) == 0 {
		var jobs []jobStatus
		if err := getJSON(fmt.Sprintf("%s/api/v1/jobs", serverURL), &jobs); err != nil {
			return err
		}
		if len(jobs) == 0 {
			fmt.Fprintln(out, "No jobs found")
			return nil
		}
		fmt.Fprintf(out, "Found %d job(s):\n\n", len(jobs))
		for _, job := range jobs {
			fmt.Fprintf(out, "Job ID: %s\n", job.ID)
			fmt.Fprintf(out, "  State: %s\n", job.State)
			fmt.Fprintf(out, "  Marks: %d (%s)\n", job.Marks, job.Config.Marks.Kind)
			fmt.Fprintf(out, "  Iterations: %d/%d\n", job.Iterations, job.Config.Termination.MaxIterations)
			fmt.Fprintf(out, "  Energy: %.4f (best %.4f)\n", job.Energy, job.BestEnergy)
			fmt.Fprintln(out)
		}
		return nil
	}

	jobID := args[0]
	var status jobStatus
	if err := getJSON(fmt.Sprintf("%s/api/v1/jobs/%s/status", serverURL, jobID), &status); err != nil {
		return err
	}

	fmt.Fprintf(out, "Job: %s\n", status.ID)
	fmt.Fprintf(out, "State: %s\n", status.State)
	if status.StopReason != "" {
		fmt.Fprintf(out, "Stopped: %s\n", status.StopReason)
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Configuration:")
	if len(status.Config.Image.Paths) > 0 {
		fmt.Fprintf(out, "  Images: %v\n", status.Config.Image.Paths)
	}
	fmt.Fprintf(out, "  Mark kind: %s\n", status.Config.Marks.Kind)
	for _, term := range status.Config.Energy.Terms {
		fmt.Fprintf(out, "  Energy term: %s\n", term.Type)
	}
	fmt.Fprintf(out, "  Max iterations: %d\n", status.Config.Termination.MaxIterations)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Progress:")
	fmt.Fprintf(out, "  Iterations: %d\n", status.Iterations)
	fmt.Fprintf(out, "  Acceptance: %.1f%%\n", 100*status.AcceptanceRate)
	fmt.Fprintf(out, "  Temperature: %.4g\n", status.Temperature)
	fmt.Fprintf(out, "  Marks: %d\n", status.Marks)
	fmt.Fprintf(out, "  Energy: %.4f -> %.4f (best %.4f)\n", status.InitialEnergy, status.Energy, status.BestEnergy)
	elapsed := time.Duration(status.Elapsed * float64(time.Second))
	fmt.Fprintf(out, "  Elapsed: %s\n", elapsed.Round(time.Millisecond))
	if status.Rate > 0 {
		fmt.Fprintf(out, "  Throughput: %.0f iterations/sec\n", status.Rate)
	}
	if status.Error != "" {
		fmt.Fprintf(out, "\nError: %s\n", status.Error)
	}
	return nil
}

func getJSON(url string, v any) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("not found: %s", url)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
