package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jdziat/newsdesk/pkg/core"
)

var (
	publishPlatform string
	publishCaption  string
)

var publishCmd = &cobra.Command{
	Use:   "publish <articleID>",
	Short: "Queue a social post of an article",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := appFromContext(cmd.Context())
		if err != nil {
			return err
		}
		if _, err := a.Social.Get(publishPlatform); err != nil {
			return fmt.Errorf("%w (configured: %v)", err, a.Social.Platforms())
		}
		if _, err := a.Articles.Get(cmd.Context(), args[0]); err != nil {
			return err
		}
		id, err := a.Jobs.Publish(cmd.Context(), args[0], publishPlatform, publishCaption)
		if errors.Is(err, core.ErrDuplicateJob) {
			fmt.Fprintf(cmd.OutOrStdout(), "a %s post of %s is already queued\n", publishPlatform, args[0])
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "queued publish job %s\n", id)
		return nil
	},
}

func init() {
	publishCmd.Flags().StringVar(&publishPlatform, "platform", "", "social platform name")
	publishCmd.Flags().StringVar(&publishCaption, "caption", "", "caption override")
	_ = publishCmd.MarkFlagRequired("platform")
	rootCmd.AddCommand(publishCmd)
}
