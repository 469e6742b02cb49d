package main

import (
	"context"

	"github.com/spf13/cobra"
)

var flagWait bool

var runCmd = &cobra.Command{
	Use:     "run [keyword]",
	Aliases: []string{"start"},
	Short:   "Run all cells in matching notebook tabs (omit keyword to use the saved one)",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBackend(func(ctx context.Context, b backend) error {
			res, err := b.Start(ctx, keywordArg(args), flagWait || flagDirect)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), res)
		})
	},
}

var stopCmd = &cobra.Command{
	Use:     "stop [keyword]",
	Aliases: []string{"interrupt"},
	Short:   "Interrupt execution in matching notebook tabs",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBackend(func(ctx context.Context, b backend) error {
			res, err := b.Stop(ctx, keywordArg(args), flagWait || flagDirect)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), res)
		})
	},
}

var toggleCmd = &cobra.Command{
	Use:   "toggle [keyword]",
	Short: "Stop when running, otherwise run",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBackend(func(ctx context.Context, b backend) error {
			res, err := b.Toggle(ctx, keywordArg(args))
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), res)
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show session state, current batch and last status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBackend(func(ctx context.Context, b backend) error {
			res, err := b.Status(ctx)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), res)
		})
	},
}

var outcomesCmd = &cobra.Command{
	Use:   "outcomes <batch-id>",
	Short: "Show per-tab outcomes of a recent batch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBackend(func(ctx context.Context, b backend) error {
			res, err := b.Batch(ctx, args[0])
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), res)
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{runCmd, stopCmd} {
		c.Flags().BoolVarP(&flagWait, "wait", "w", false, "wait for every tab to report before printing")
	}
	rootCmd.AddCommand(runCmd, stopCmd, toggleCmd, statusCmd, outcomesCmd)
}
