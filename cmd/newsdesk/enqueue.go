package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jdziat/newsdesk/pkg/core"
)

var (
	enqueuePriority    string
	enqueueUnprocessed bool
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue all|<articleID>",
	Short: "Queue AI content processing for one article or all of them",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := appFromContext(cmd.Context())
		if err != nil {
			return err
		}
		priority, err := parsePriority(enqueuePriority)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		ids := []string{args[0]}
		if args[0] == "all" {
			if ids, err = a.Articles.ListIDs(ctx, enqueueUnprocessed); err != nil {
				return err
			}
		} else if _, err := a.Articles.Get(ctx, args[0]); err != nil {
			return err
		}

		var queued, skipped int
		for _, id := range ids {
			_, err := a.Jobs.Content(ctx, id, priority)
			switch {
			case errors.Is(err, core.ErrDuplicateJob):
				skipped++
			case err != nil:
				return fmt.Errorf("article %s: %w", id, err)
			default:
				queued++
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "queued %d content jobs, %d already in flight\n", queued, skipped)
		return nil
	},
}

var reprocessQueue string

var reprocessCmd = &cobra.Command{
	Use:   "reprocess-failed",
	Short: "Reset failed jobs to pending with a fresh attempt budget",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := appFromContext(cmd.Context())
		if err != nil {
			return err
		}
		n, err := a.Queue.RetryFailed(cmd.Context(), reprocessQueue)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "requeued %d failed jobs\n", n)
		return nil
	},
}

func parsePriority(s string) (int, error) {
	switch strings.ToLower(s) {
	case "high":
		return core.PriorityHigh, nil
	case "", "normal":
		return core.PriorityNormal, nil
	case "low":
		return core.PriorityLow, nil
	}
	return 0, fmt.Errorf("priority %q is not one of high, normal, low", s)
}

func init() {
	enqueueCmd.Flags().StringVarP(&enqueuePriority, "priority", "p", "normal", "job priority: high, normal or low")
	enqueueCmd.Flags().BoolVar(&enqueueUnprocessed, "unprocessed", false, "with all, only articles not yet processed")
	reprocessCmd.Flags().StringVarP(&reprocessQueue, "queue", "q", "", "limit to one queue")
	rootCmd.AddCommand(enqueueCmd, reprocessCmd)
}
