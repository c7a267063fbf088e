package main

import (
	"time"

	"github.com/spf13/cobra"

	cserrors "codeshrink/internal/errors"
	"codeshrink/internal/jobs"
	"codeshrink/internal/paths"
	"codeshrink/internal/slogutil"
)

var (
	jobsFormat string
	jobsLimit  int
	jobsOffset int
	jobsStatus string
	jobsType   string
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect compaction jobs",
	Long: `List, check status, and cancel the jobs recorded by ingest and watch.

Examples:
  codeshrink jobs list
  codeshrink jobs status <job-id>
  codeshrink jobs cancel <job-id>`,
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent jobs",
	Long: `List recent jobs with optional filtering.

Examples:
  codeshrink jobs list
  codeshrink jobs list --status=failed
  codeshrink jobs list --type=compact_group --limit=50`,
	RunE: runJobsList,
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show one job with its result",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsStatus,
}

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a queued job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsCancel,
}

func init() {
	jobsCmd.PersistentFlags().StringVar(&jobsFormat, "format", "human", "Output format (human, json, yaml, toml)")

	jobsListCmd.Flags().IntVar(&jobsLimit, "limit", 20, "Maximum jobs to return")
	jobsListCmd.Flags().IntVar(&jobsOffset, "offset", 0, "Jobs to skip")
	jobsListCmd.Flags().StringVar(&jobsStatus, "status", "", "Filter by status (queued, running, completed, failed, cancelled)")
	jobsListCmd.Flags().StringVar(&jobsType, "type", "", "Filter by type (compact_file, compact_group)")

	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsStatusCmd)
	jobsCmd.AddCommand(jobsCancelCmd)
	rootCmd.AddCommand(jobsCmd)
}

func openJobStore(a *app) (*jobs.Store, error) {
	store, err := jobs.OpenStore(paths.GetJobsDBPath(a.root), a.logger)
	if err != nil {
		return nil, cserrors.New(cserrors.StorageError, "failed to open job store", err)
	}
	return store, nil
}

func runJobsList(cmd *cobra.Command, args []string) error {
	start := time.Now()
	a, err := newApp(cmd, slogutil.SubsystemJobs)
	if err != nil {
		return err
	}
	defer a.Close()

	store, err := openJobStore(a)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	opts := jobs.ListJobsOptions{Limit: jobsLimit, Offset: jobsOffset}
	if jobsStatus != "" {
		opts.Status = []jobs.JobStatus{jobs.JobStatus(jobsStatus)}
	}
	if jobsType != "" {
		opts.Type = []jobs.JobType{jobs.JobType(jobsType)}
	}

	resp, err := store.ListJobs(opts)
	if err != nil {
		return cserrors.New(cserrors.StorageError, "failed to list jobs", err)
	}

	a.logger.Debug("Jobs list completed",
		"count", len(resp.Jobs),
		"duration", time.Since(start).Milliseconds(),
	)
	return printResponse(cmd, resp, jobsFormat)
}

func runJobsStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, slogutil.SubsystemJobs)
	if err != nil {
		return err
	}
	defer a.Close()

	store, err := openJobStore(a)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	job, err := store.GetJob(args[0])
	if err != nil {
		return cserrors.New(cserrors.StorageError, "failed to read job", err)
	}
	if job == nil {
		return cserrors.New(cserrors.JobNotFound, "job not found: "+args[0], nil)
	}
	return printResponse(cmd, job, jobsFormat)
}

// JobCancelResponse contains the cancel result for CLI output.
type JobCancelResponse struct {
	JobID     string `json:"jobId" yaml:"jobId" toml:"jobId"`
	Cancelled bool   `json:"cancelled" yaml:"cancelled" toml:"cancelled"`
	Message   string `json:"message" yaml:"message" toml:"message"`
}

func runJobsCancel(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, slogutil.SubsystemJobs)
	if err != nil {
		return err
	}
	defer a.Close()

	store, err := openJobStore(a)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	// The runner is not started; Cancel records the state in the store.
	runner := jobs.NewRunner(store, a.logger, jobs.RunnerConfigFrom(a.cfg))
	if err := runner.Cancel(args[0]); err != nil {
		return err
	}
	return printResponse(cmd, &JobCancelResponse{
		JobID:     args[0],
		Cancelled: true,
		Message:   "Job cancelled",
	}, jobsFormat)
}
