package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jdziat/newsdesk/pkg/core"
)

var cancelKind string

var cancelCmd = &cobra.Command{
	Use:   "cancel <articleID>",
	Short: "Cancel the pending and delayed jobs of an article",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := appFromContext(cmd.Context())
		if err != nil {
			return err
		}
		filter := core.JobFilter{EntityID: args[0], Kind: core.JobKind(cancelKind)}
		n, err := a.Queue.Cancel(cmd.Context(), filter)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "cancelled %d jobs\n", n)
		return nil
	},
}

var triggerCmd = &cobra.Command{
	Use:       "trigger fetch|reconcile|report|cleanup",
	Short:     "Run a scheduled trigger once",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"fetch", "reconcile", "report", "cleanup"},
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := appFromContext(cmd.Context())
		if err != nil {
			return err
		}
		if err := a.Scheduler.RunNow(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "trigger %s completed\n", args[0])
		return nil
	},
}

func init() {
	cancelCmd.Flags().StringVar(&cancelKind, "kind", "", "only jobs of this kind (content.process, image.generate, social.publish)")
	rootCmd.AddCommand(cancelCmd, triggerCmd)
}
