package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/jdziat/newsdesk/pkg/core"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Pause, resume and inspect queues",
}

var queuePauseCmd = &cobra.Command{
	Use:       "pause <queue>",
	Short:     "Stop dispatching jobs from a queue",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{core.QueueContent, core.QueueImage, core.QueueSocial},
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := appFromContext(cmd.Context())
		if err != nil {
			return err
		}
		if err := a.Queue.PauseQueue(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "queue %s paused\n", args[0])
		return nil
	},
}

var queueResumeCmd = &cobra.Command{
	Use:       "resume <queue>",
	Short:     "Resume dispatching jobs from a queue",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{core.QueueContent, core.QueueImage, core.QueueSocial},
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := appFromContext(cmd.Context())
		if err != nil {
			return err
		}
		if err := a.Queue.ResumeQueue(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "queue %s resumed\n", args[0])
		return nil
	},
}

var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show job counts per queue",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := appFromContext(cmd.Context())
		if err != nil {
			return err
		}
		stats, err := a.Queue.AllStats(cmd.Context())
		if err != nil {
			return err
		}
		renderStats(cmd.OutOrStdout(), stats)
		return nil
	},
}

func renderStats(w io.Writer, stats []*core.QueueStats) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Queue", "State", "Waiting", "Active", "Delayed", "Completed", "Failed", "Cancelled"})
	table.SetBorder(true)
	table.SetAutoFormatHeaders(false)

	count := func(n int64) string { return strconv.FormatInt(n, 10) }
	for _, s := range stats {
		state := "running"
		if s.Paused {
			state = "paused"
		}
		table.Append([]string{
			s.Queue,
			state,
			count(s.Waiting),
			count(s.Active),
			count(s.Delayed),
			count(s.Completed),
			count(s.Failed),
			count(s.Cancelled),
		})
	}
	table.Render()
}

func init() {
	queueCmd.AddCommand(queuePauseCmd, queueResumeCmd, queueStatsCmd)
	rootCmd.AddCommand(queueCmd)
}
