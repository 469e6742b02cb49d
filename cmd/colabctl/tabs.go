package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var tabsCmd = &cobra.Command{
	Use:   "tabs [keyword]",
	Short: "List notebook tabs a keyword would act on",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kw := ""
		if len(args) == 1 {
			kw = args[0]
		}
		return withBackend(func(ctx context.Context, b backend) error {
			res, err := b.Tabs(ctx, kw)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), res)
		})
	},
}

var keywordCmd = &cobra.Command{
	Use:   "keyword",
	Short: "Show the saved keyword",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBackend(func(ctx context.Context, b backend) error {
			kw, err := b.Keyword(ctx)
			if err != nil {
				return err
			}
			if flagJSON {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"keyword": kw})
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), renderKeyword(kw))
			return err
		})
	},
}

var keywordSetCmd = &cobra.Command{
	Use:   "set <keyword>",
	Short: "Save the keyword used when run/stop get none",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBackend(func(ctx context.Context, b backend) error {
			if err := b.SetKeyword(ctx, args[0]); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "saved "+renderKeyword(args[0]))
			return err
		})
	},
}

func init() {
	keywordCmd.AddCommand(keywordSetCmd)
	rootCmd.AddCommand(tabsCmd, keywordCmd)
}
