package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sweeply/sweeply/internal/db/models"
	"github.com/sweeply/sweeply/internal/db/repos"
	"github.com/sweeply/sweeply/internal/matching"
)

func init() {
	jobsCmd.AddCommand(listJobsCmd)
	jobsCmd.AddCommand(getJobCmd)
	jobsCmd.AddCommand(attentionJobsCmd)
	jobsCmd.AddCommand(dispatchJobCmd)

	// Add flags
	listJobsCmd.Flags().IntP("limit", "l", 0, "Limit the number of jobs returned")
	listJobsCmd.Flags().IntP("offset", "o", 0, "Number of jobs to skip")
	listJobsCmd.Flags().StringP("status", "s", "", "Filter jobs by status")

	getJobCmd.Flags().UintP("id", "i", 0, "Job ID to fetch")
	_ = getJobCmd.MarkFlagRequired("id")

	dispatchJobCmd.Flags().UintP("id", "i", 0, "Job ID to dispatch")
	_ = dispatchJobCmd.MarkFlagRequired("id")
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and dispatch bookings",
}

var listJobsCmd = &cobra.Command{
	Use:   "list",
	Short: "List bookings",
	RunE: func(cmd *cobra.Command, _ []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		rawStatus, _ := cmd.Flags().GetString("status")

		var status models.JobStatus
		if rawStatus != "" {
			parsed, err := models.ParseJobStatus(rawStatus)
			if err != nil {
				return err
			}
			status = parsed
		}

		jobs, err := repos.NewJobRepository(database).
			List(cmd.Context(), status, &models.ListOptions{Limit: limit, Offset: offset})
		if err != nil {
			return fmt.Errorf("error fetching jobs: %w", err)
		}
		return printJSON(jobs)
	},
}

var getJobCmd = &cobra.Command{
	Use:   "get",
	Short: "Get a booking with its offers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		id, _ := cmd.Flags().GetUint("id")

		job, err := repos.NewJobRepository(database).GetByID(cmd.Context(), id)
		if err != nil {
			return fmt.Errorf("error fetching job %d: %w", id, err)
		}
		offers, err := repos.NewAssignmentRepository(database).ListByJob(cmd.Context(), id)
		if err != nil {
			return fmt.Errorf("error fetching offers for job %d: %w", id, err)
		}

		return printJSON(map[string]interface{}{
			"job":    job,
			"offers": offers,
		})
	},
}

var attentionJobsCmd = &cobra.Command{
	Use:   "attention",
	Short: "List bookings flagged for manual review",
	RunE: func(cmd *cobra.Command, _ []string) error {
		jobs, err := repos.NewJobRepository(database).ListNeedingAttention(cmd.Context(), nil)
		if err != nil {
			return fmt.Errorf("error fetching review queue: %w", err)
		}
		return printJSON(jobs)
	},
}

var dispatchJobCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Re-run candidate matching for a booking",
	RunE: func(cmd *cobra.Command, _ []string) error {
		id, _ := cmd.Flags().GetUint("id")

		dispatcher, err := buildDispatcher(cmd.Context())
		if err != nil {
			return err
		}

		created, err := dispatcher.Dispatch(cmd.Context(), id)
		if errors.Is(err, matching.ErrNoCandidates) {
			fmt.Printf("no eligible candidates for job %d; left in the review queue\n", id)
			return nil
		}
		if err != nil {
			return fmt.Errorf("dispatch failed: %w", err)
		}
		fmt.Printf("created %d offer(s)\n", len(created))
		return printJSON(created)
	},
}
